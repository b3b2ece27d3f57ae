package primary

import (
	"context"
	"encoding/json"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"bottle/internal/models"
	"bottle/internal/store"
)

// runStoreSuite exercises every store method against a migrated, empty
// store. Each backend test provides its own constructor.
func runStoreSuite(t *testing.T, open func(t *testing.T) *StoreImpl) {
	t.Run("Feeds", func(t *testing.T) { testFeeds(t, open(t)) })
	t.Run("SavePageAndHistory", func(t *testing.T) { testSavePageAndHistory(t, open(t)) })
	t.Run("Memberships", func(t *testing.T) { testMemberships(t, open(t)) })
	t.Run("Library", func(t *testing.T) { testLibrary(t, open(t)) })
	t.Run("Galleries", func(t *testing.T) { testGalleries(t, open(t)) })
	t.Run("JobRuns", func(t *testing.T) { testJobRuns(t, open(t)) })
}

func newFeed(t *testing.T, st *StoreImpl, community models.Community, params string) *models.Feed {
	t.Helper()
	feed := &models.Feed{Community: community, Name: string(community) + " feed", Params: json.RawMessage(params), Watching: true}
	require.NoError(t, st.CreateFeed(context.Background(), feed))
	require.NotZero(t, feed.ID)
	return feed
}

func post(id string, media ...string) models.Post {
	p := models.Post{PostID: id, UserID: "u1", Title: "post " + id, URL: "https://example.com/" + id}
	for i, m := range media {
		p.Media = append(p.Media, models.Media{URL: "https://cdn.example.com/" + m, Filename: m, PageIndex: i})
	}
	return p
}

func testFeeds(t *testing.T, st *StoreImpl) {
	ctx := context.Background()
	limit := 50
	yandere := &models.Feed{Community: models.CommunityYandere, Name: "clouds", Params: json.RawMessage(`{"kind":"tags","tags":"cloud"}`), FirstFetchLimit: &limit}
	require.NoError(t, st.CreateFeed(ctx, yandere))
	newFeed(t, st, models.CommunityPixiv, `{"kind":"timeline"}`)

	got, err := st.GetFeed(ctx, yandere.Key())
	require.NoError(t, err)
	assert.Equal(t, "clouds", got.Name)
	assert.JSONEq(t, `{"kind":"tags","tags":"cloud"}`, string(got.Params))
	require.NotNil(t, got.FirstFetchLimit)
	assert.Equal(t, 50, *got.FirstFetchLimit)
	assert.False(t, got.ReachedEnd)

	_, err = st.GetFeed(ctx, models.FeedID{Community: models.CommunityPixiv, FeedID: yandere.ID})
	assert.True(t, store.IsNotFound(err))

	all, err := st.ListFeeds(ctx, "")
	require.NoError(t, err)
	assert.Len(t, all, 2)
	only, err := st.ListFeeds(ctx, models.CommunityYandere)
	require.NoError(t, err)
	require.Len(t, only, 1)
	assert.Equal(t, yandere.ID, only[0].ID)

	require.NoError(t, st.MarkReachedEnd(ctx, yandere.ID))
	got, err = st.GetFeed(ctx, yandere.Key())
	require.NoError(t, err)
	assert.True(t, got.ReachedEnd)
	assert.True(t, store.IsNotFound(st.MarkReachedEnd(ctx, 9999)))
}

func testSavePageAndHistory(t *testing.T, st *StoreImpl) {
	ctx := context.Background()
	feed := newFeed(t, st, models.CommunityPixiv, `{"kind":"bookmarks","user_id":1}`)

	top, bottom, err := st.Cursors(ctx, feed.ID)
	require.NoError(t, err)
	assert.Nil(t, top)
	assert.Nil(t, bottom)

	first := &models.FeedHistory{Top: &models.Cursor{Value: "c30", Rank: 30}, Bottom: &models.Cursor{Value: "c20", Rank: 20}, PostIDs: []string{"30", "20"}}
	require.NoError(t, st.SavePage(ctx, feed, []models.Post{post("30", "a.jpg"), post("20")}, first))
	assert.NotZero(t, first.ID)
	assert.Equal(t, 2, first.Count)

	second := &models.FeedHistory{Top: &models.Cursor{Value: "c10", Rank: 10}, Bottom: &models.Cursor{Value: "c5", Rank: 5}, PostIDs: []string{"10"}}
	require.NoError(t, st.SavePage(ctx, feed, []models.Post{post("10")}, second))

	top, bottom, err = st.Cursors(ctx, feed.ID)
	require.NoError(t, err)
	require.NotNil(t, top)
	require.NotNil(t, bottom)
	assert.Equal(t, models.Cursor{Value: "c30", Rank: 30}, *top)
	assert.Equal(t, models.Cursor{Value: "c5", Rank: 5}, *bottom)

	history, err := st.ListHistory(ctx, feed.ID, 10)
	require.NoError(t, err)
	require.Len(t, history, 2)
	assert.Equal(t, []string{"10"}, history[0].PostIDs)
	assert.Equal(t, []string{"30", "20"}, history[1].PostIDs)

	// Saving the same post again keeps one work and one image.
	require.NoError(t, st.SavePage(ctx, feed, []models.Post{post("30", "a.jpg")}, nil))
	pending, err := st.ListPendingImages(ctx)
	require.NoError(t, err)
	require.Len(t, pending, 1)
	assert.Equal(t, "https://cdn.example.com/a.jpg", pending[0].URL)
	assert.Equal(t, models.CommunityPixiv, pending[0].Community)
}

func testMemberships(t *testing.T, st *StoreImpl) {
	ctx := context.Background()
	feed := newFeed(t, st, models.CommunityYandere, `{"kind":"tags"}`)
	require.NoError(t, st.SavePage(ctx, feed, []models.Post{post("3"), post("2"), post("1")}, &models.FeedHistory{PostIDs: []string{"3", "2", "1"}}))

	existing, err := st.ExistingMemberships(ctx, feed.ID, []string{"1", "3", "9"})
	require.NoError(t, err)
	assert.Equal(t, map[string]bool{"1": true, "3": true}, existing)

	// Nothing is listed before sort indices exist.
	works, err := st.ListFeedWorks(ctx, feed.ID, 10, 0)
	require.NoError(t, err)
	assert.Empty(t, works)

	require.NoError(t, st.AssignSortIndices(ctx, feed.ID, []string{"3", "2"}))
	works, err = st.ListFeedWorks(ctx, feed.ID, 10, 0)
	require.NoError(t, err)
	require.Len(t, works, 2)
	assert.Equal(t, "3", works[0].PostID)
	assert.Equal(t, "2", works[1].PostID)

	err = st.AssignSortIndices(ctx, feed.ID, []string{"404"})
	assert.True(t, store.IsNotFound(err))

	deleted, err := st.DeleteUnsortedMemberships(ctx, feed.ID)
	require.NoError(t, err)
	assert.Equal(t, []string{"1"}, deleted)
	existing, err = st.ExistingMemberships(ctx, feed.ID, []string{"1"})
	require.NoError(t, err)
	assert.Empty(t, existing)

	// A newer post lands above the existing ones.
	require.NoError(t, st.SavePage(ctx, feed, []models.Post{post("4")}, nil))
	require.NoError(t, st.AssignSortIndices(ctx, feed.ID, []string{"4"}))
	require.NoError(t, st.MarkStale(ctx, feed.ID, []string{"2"}))
	works, err = st.ListFeedWorks(ctx, feed.ID, 2, 0)
	require.NoError(t, err)
	require.Len(t, works, 2)
	assert.Equal(t, "4", works[0].PostID)
	assert.Equal(t, "3", works[1].PostID)

	works, err = st.ListFeedWorks(ctx, feed.ID, 10, 2)
	require.NoError(t, err)
	require.Len(t, works, 1)
	assert.Equal(t, "2", works[0].PostID)
}

func testLibrary(t *testing.T, st *StoreImpl) {
	ctx := context.Background()
	feed := newFeed(t, st, models.CommunityTwitter, `{"kind":"timeline"}`)
	require.NoError(t, st.SavePage(ctx, feed, []models.Post{post("7", "p0.jpg", "p1.mp4")}, nil))

	pending, err := st.ListPendingImages(ctx)
	require.NoError(t, err)
	require.Len(t, pending, 2)
	assert.Equal(t, "u1", pending[0].UserID)

	w, h := 640, 480
	thumb := "thumb/twitter/u1/p0.1200.jpg"
	local := &models.LocalImage{Filename: "p0.jpg", Path: "twitter/u1/p0.jpg", Width: &w, Height: &h, Size: 1234, ThumbnailPath: &thumb}
	require.NoError(t, st.UpdateImageFromLocal(ctx, pending[0].ImageID, local))
	assert.True(t, store.IsNotFound(st.UpdateImageFromLocal(ctx, 9999, local)))

	pending, err = st.ListPendingImages(ctx)
	require.NoError(t, err)
	require.Len(t, pending, 1)
	assert.Equal(t, "p1.mp4", pending[0].Filename)

	works, err := st.ListFeedWorks(ctx, feed.ID, 10, 0)
	require.NoError(t, err)
	assert.Empty(t, works)
	require.NoError(t, st.AssignSortIndices(ctx, feed.ID, []string{"7"}))
	works, err = st.ListFeedWorks(ctx, feed.ID, 10, 0)
	require.NoError(t, err)
	require.Len(t, works, 1)
	workID := works[0].ID
	assert.Equal(t, 2, works[0].ImageCount)

	require.NoError(t, st.UpdateWorkFromLocal(ctx, workID, local))
	work, err := st.GetWork(ctx, workID)
	require.NoError(t, err)
	require.NotNil(t, work.ThumbnailPath)
	assert.Equal(t, thumb, *work.ThumbnailPath)
	_, err = st.GetWork(ctx, 9999)
	assert.True(t, store.IsNotFound(err))
	images, err := st.ListWorkImages(ctx, workID)
	require.NoError(t, err)
	require.Len(t, images, 2)
	assert.True(t, images[0].Downloaded())
	require.NotNil(t, images[0].Size)
	assert.Equal(t, int64(1234), *images[0].Size)
	assert.False(t, images[1].Downloaded())

	// Re-adding page 1 updates the row in place.
	id, err := st.AddRemoteImage(ctx, workID, "p1.webm", "https://cdn.example.com/p1.webm", 1)
	require.NoError(t, err)
	assert.Equal(t, images[1].ID, id)
	_, err = st.AddRemoteImage(ctx, 9999, "x.jpg", "https://cdn.example.com/x.jpg", 0)
	assert.True(t, store.IsNotFound(err))
}

func testGalleries(t *testing.T, st *StoreImpl) {
	ctx := context.Background()
	feed := newFeed(t, st, models.CommunityPanda, `{"kind":"watched"}`)
	p := post("g1")
	p.Gallery = &models.GalleryInfo{GalleryID: 501, Token: "tok", MediaCount: 3}
	require.NoError(t, st.SavePage(ctx, feed, []models.Post{p}, nil))

	g, err := st.GetGallery(ctx, 501)
	require.NoError(t, err)
	assert.Equal(t, "tok", g.Token)
	assert.Equal(t, 3, g.MediaCount)
	assert.False(t, g.HasDetail)
	_, err = st.GetGallery(ctx, 502)
	assert.True(t, store.IsNotFound(err))

	ids, err := st.ListGalleryIDs(ctx)
	require.NoError(t, err)
	assert.Equal(t, []int64{501}, ids)

	require.NoError(t, st.UpdateGallery(ctx, 501, models.GalleryDetail{Title: "Album", Category: "Misc", MediaCount: 4}))
	g, err = st.GetGallery(ctx, 501)
	require.NoError(t, err)
	assert.True(t, g.HasDetail)
	assert.Equal(t, "Album", g.Title)
	assert.Equal(t, 4, g.MediaCount)
	assert.True(t, store.IsNotFound(st.UpdateGallery(ctx, 999, models.GalleryDetail{})))

	require.NoError(t, st.SavePreviews(ctx, 501, []models.GalleryMedia{{Index: 0, Token: "a"}, {Index: 1, Token: "b"}}))
	require.NoError(t, st.SavePreviews(ctx, 501, []models.GalleryMedia{{Index: 1, Token: "b2"}}))
	require.NoError(t, st.SaveMediaInfo(ctx, 501, 0, "https://img.example.com/0.jpg", "0.jpg"))
	assert.True(t, store.IsNotFound(st.SaveMediaInfo(ctx, 501, 7, "u", "f")))

	media, err := st.ListGalleryMedia(ctx, 501)
	require.NoError(t, err)
	require.Len(t, media, 2)
	require.NotNil(t, media[0].Filename)
	assert.Equal(t, "0.jpg", *media[0].Filename)
	assert.Equal(t, "b2", media[1].Token)
	assert.Nil(t, media[1].ImageURL)

	// Gallery images go through the orchestrator, not the image job.
	_, err = st.AddRemoteImage(ctx, g.WorkID, "0.jpg", "https://img.example.com/0.jpg", 0)
	require.NoError(t, err)
	pending, err := st.ListPendingImages(ctx)
	require.NoError(t, err)
	assert.Empty(t, pending)

	require.NoError(t, st.RemovePreviews(ctx, 501))
	media, err = st.ListGalleryMedia(ctx, 501)
	require.NoError(t, err)
	assert.Empty(t, media)
}

func testJobRuns(t *testing.T, st *StoreImpl) {
	ctx := context.Background()
	started := time.Now().UTC().Truncate(time.Second)

	first := &models.JobRun{ID: uuid.New(), Kind: models.JobKindFeedSync, JobKey: "1@yandere", State: "running", StartedAt: started.Add(-time.Minute)}
	second := &models.JobRun{ID: uuid.New(), Kind: models.JobKindImageDownload, JobKey: "images", State: "running", StartedAt: started}
	require.NoError(t, st.RecordJobStart(ctx, first))
	require.NoError(t, st.RecordJobStart(ctx, second))

	finished := started.Add(2 * time.Second)
	msg := "boom"
	second.State, second.Total, second.Success, second.Failure = "partial_success", 3, 2, 1
	second.Error, second.FinishedAt = &msg, &finished
	require.NoError(t, st.RecordJobFinish(ctx, second))

	missing := &models.JobRun{ID: uuid.New(), State: "success", FinishedAt: &finished}
	assert.True(t, store.IsNotFound(st.RecordJobFinish(ctx, missing)))

	runs, err := st.ListJobRuns(ctx, "", 10)
	require.NoError(t, err)
	require.Len(t, runs, 2)
	assert.Equal(t, second.ID, runs[0].ID)
	assert.Equal(t, 2, runs[0].Success)
	require.NotNil(t, runs[0].Error)
	assert.Equal(t, "boom", *runs[0].Error)
	require.NotNil(t, runs[0].FinishedAt)
	assert.Nil(t, runs[1].FinishedAt)

	runs, err = st.ListJobRuns(ctx, models.JobKindFeedSync, 10)
	require.NoError(t, err)
	require.Len(t, runs, 1)
	assert.Equal(t, "1@yandere", runs[0].JobKey)
}
