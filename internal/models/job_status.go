package models

// Job kinds, one per registry.
const (
	JobKindFeedSync        = "feed_sync"
	JobKindImageDownload   = "image_download"
	JobKindGalleryDownload = "gallery_download"
)

// Feed kinds stored in feed params, per community.
const (
	FeedKindTimeline  = "timeline"
	FeedKindBookmarks = "bookmarks"
	FeedKindLikes     = "likes"
	FeedKindPosts     = "posts"
	FeedKindSearch    = "search"
	FeedKindTags      = "tags"
	FeedKindPool      = "pool"
	FeedKindWatched   = "watched"
	FeedKindFavorites = "favorites"
)
