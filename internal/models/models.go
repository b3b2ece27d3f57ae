package models

import (
	"encoding/json"
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/google/uuid"
)

// Community identifies one upstream content source.
type Community string

const (
	CommunityPixiv   Community = "pixiv"
	CommunityTwitter Community = "twitter"
	CommunityYandere Community = "yandere"
	CommunityPanda   Community = "panda"
)

// Communities lists every supported community in a stable order.
var Communities = []Community{CommunityPixiv, CommunityTwitter, CommunityYandere, CommunityPanda}

// ParseCommunity validates a community name coming from user input.
func ParseCommunity(s string) (Community, error) {
	c := Community(strings.ToLower(strings.TrimSpace(s)))
	for _, known := range Communities {
		if c == known {
			return c, nil
		}
	}
	return "", fmt.Errorf("%w: unknown community %q", ErrInvalidInput, s)
}

// FeedID is the job key of a feed sync. It renders as "<id>@<community>".
type FeedID struct {
	Community Community `json:"community"`
	FeedID    int64     `json:"feed_id"`
}

func (id FeedID) String() string {
	return fmt.Sprintf("%d@%s", id.FeedID, id.Community)
}

// ParseFeedID is the inverse of FeedID.String.
func ParseFeedID(s string) (FeedID, error) {
	idPart, communityPart, ok := strings.Cut(s, "@")
	if !ok {
		return FeedID{}, fmt.Errorf("%w: feed key %q is not <id>@<community>", ErrInvalidInput, s)
	}
	id, err := strconv.ParseInt(idPart, 10, 64)
	if err != nil {
		return FeedID{}, fmt.Errorf("%w: feed id %q: %v", ErrInvalidInput, idPart, err)
	}
	community, err := ParseCommunity(communityPart)
	if err != nil {
		return FeedID{}, err
	}
	return FeedID{Community: community, FeedID: id}, nil
}

// Feed is one persisted subscription.
type Feed struct {
	ID              int64           `json:"id"`
	Community       Community       `json:"community"`
	Name            string          `json:"name"`
	Params          json.RawMessage `json:"params"`
	Watching        bool            `json:"watching"`
	FirstFetchLimit *int            `json:"first_fetch_limit,omitempty"`
	ReachedEnd      bool            `json:"reached_end"`
	CreatedAt       time.Time       `json:"created_at"`
	UpdatedAt       time.Time       `json:"updated_at"`
}

// Key returns the registry key of this feed.
func (f *Feed) Key() FeedID {
	return FeedID{Community: f.Community, FeedID: f.ID}
}

// Cursor is an opaque upstream position plus a rank used to order cursors
// of the same feed (higher rank is newer).
type Cursor struct {
	Value string `json:"value"`
	Rank  int64  `json:"rank"`
}

// FeedHistory is one append-only row recorded per saved page.
type FeedHistory struct {
	ID        int64     `json:"id"`
	FeedID    int64     `json:"feed_id"`
	Top       *Cursor   `json:"top,omitempty"`
	Bottom    *Cursor   `json:"bottom,omitempty"`
	PostIDs   []string  `json:"post_ids"`
	Count     int       `json:"count"`
	CreatedAt time.Time `json:"created_at"`
}

// Post is one upstream item normalized for storage.
type Post struct {
	PostID   string       `json:"post_id"`
	UserID   string       `json:"user_id"`
	Title    string       `json:"title"`
	URL      string       `json:"url"`
	PostedAt *time.Time   `json:"posted_at,omitempty"`
	Deleted  bool         `json:"deleted,omitempty"`
	Media    []Media      `json:"media,omitempty"`
	Gallery  *GalleryInfo `json:"gallery,omitempty"`
}

// Media is one downloadable file attached to a post.
type Media struct {
	URL       string `json:"url"`
	Filename  string `json:"filename"`
	PageIndex int    `json:"page_index"`
}

// GalleryInfo is attached to panda posts, whose images are resolved later
// by the gallery orchestrator instead of being listed up front.
type GalleryInfo struct {
	GalleryID  int64  `json:"gid"`
	Token      string `json:"token"`
	MediaCount int    `json:"media_count"`
}

// SaveResult is produced once per fetch/save cycle of a feed sync.
type SaveResult struct {
	PostIDs    []string `json:"post_ids"`
	ShouldStop bool     `json:"should_stop"`
	ReachedEnd bool     `json:"reached_end"`
}

// Work is the archive entry created for one post.
type Work struct {
	ID                 int64      `json:"id"`
	Community          Community  `json:"community"`
	PostID             string     `json:"post_id"`
	UserID             string     `json:"user_id"`
	Title              string     `json:"title"`
	URL                string     `json:"url"`
	ThumbnailPath      *string    `json:"thumbnail_path,omitempty"`
	SmallThumbnailPath *string    `json:"small_thumbnail_path,omitempty"`
	ImageCount         int        `json:"image_count"`
	PostedAt           *time.Time `json:"posted_at,omitempty"`
	CreatedAt          time.Time  `json:"created_at"`
}

// Image is one media file of a work, local columns are nil until downloaded.
type Image struct {
	ID                 int64   `json:"id"`
	WorkID             int64   `json:"work_id"`
	Filename           string  `json:"filename"`
	RemoteURL          *string `json:"remote_url,omitempty"`
	PageIndex          *int    `json:"page_index,omitempty"`
	Path               *string `json:"path,omitempty"`
	ThumbnailPath      *string `json:"thumbnail_path,omitempty"`
	SmallThumbnailPath *string `json:"small_thumbnail_path,omitempty"`
	Width              *int    `json:"width,omitempty"`
	Height             *int    `json:"height,omitempty"`
	Size               *int64  `json:"size,omitempty"`
}

// Downloaded reports whether any local material exists for the image.
func (i *Image) Downloaded() bool {
	return i.Path != nil || i.ThumbnailPath != nil
}

// LocalImage describes a file persisted in the media bucket.
type LocalImage struct {
	Filename           string  `json:"filename"`
	Path               string  `json:"path"`
	Width              *int    `json:"width,omitempty"`
	Height             *int    `json:"height,omitempty"`
	Size               int64   `json:"size"`
	ThumbnailPath      *string `json:"thumbnail_path,omitempty"`
	SmallThumbnailPath *string `json:"small_thumbnail_path,omitempty"`
}

// PendingImage is an image row with a remote URL but no local file.
type PendingImage struct {
	ImageID   int64
	Community Community
	UserID    string
	URL       string
	Filename  string
}

// Gallery is the persisted panda gallery aggregate.
type Gallery struct {
	ID         int64     `json:"gid"`
	Token      string    `json:"token"`
	Title      string    `json:"title"`
	TitleJpn   string    `json:"title_jpn"`
	Category   string    `json:"category"`
	Uploader   string    `json:"uploader"`
	MediaCount int       `json:"media_count"`
	HasDetail  bool      `json:"has_detail"`
	WorkID     int64     `json:"work_id"`
	UpdatedAt  time.Time `json:"updated_at"`
}

// GalleryDetail is the upstream description of a gallery.
type GalleryDetail struct {
	Title      string `json:"title"`
	TitleJpn   string `json:"title_jpn"`
	Category   string `json:"category"`
	Uploader   string `json:"uploader"`
	MediaCount int    `json:"media_count"`
}

// GalleryMedia is one image preview of a gallery. ImageURL and Filename are
// filled in once the image page has been resolved.
type GalleryMedia struct {
	GalleryID int64   `json:"gid"`
	Index     int     `json:"index"`
	Token     string  `json:"token"`
	ImageURL  *string `json:"image_url,omitempty"`
	Filename  *string `json:"filename,omitempty"`
}

// JobRun is one finished or in-flight registry job recorded for history.
type JobRun struct {
	ID         uuid.UUID  `json:"id"`
	Kind       string     `json:"kind"`
	JobKey     string     `json:"job_key"`
	State      string     `json:"state"`
	Total      int        `json:"total"`
	Success    int        `json:"success"`
	Failure    int        `json:"failure"`
	Error      *string    `json:"error,omitempty"`
	StartedAt  time.Time  `json:"started_at"`
	FinishedAt *time.Time `json:"finished_at,omitempty"`
}
