package source

import (
	"context"
	"encoding/json"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"

	"bottle/internal/models"
)

type mockFeedStore struct {
	mock.Mock
}

func (m *mockFeedStore) CreateFeed(ctx context.Context, feed *models.Feed) error {
	return m.Called(ctx, feed).Error(0)
}

func (m *mockFeedStore) GetFeed(ctx context.Context, id models.FeedID) (*models.Feed, error) {
	args := m.Called(ctx, id)
	feed, _ := args.Get(0).(*models.Feed)
	return feed, args.Error(1)
}

func (m *mockFeedStore) ListFeeds(ctx context.Context, community models.Community) ([]*models.Feed, error) {
	args := m.Called(ctx, community)
	feeds, _ := args.Get(0).([]*models.Feed)
	return feeds, args.Error(1)
}

func (m *mockFeedStore) MarkReachedEnd(ctx context.Context, feedID int64) error {
	return m.Called(ctx, feedID).Error(0)
}

func (m *mockFeedStore) Cursors(ctx context.Context, feedID int64) (*models.Cursor, *models.Cursor, error) {
	args := m.Called(ctx, feedID)
	top, _ := args.Get(0).(*models.Cursor)
	bottom, _ := args.Get(1).(*models.Cursor)
	return top, bottom, args.Error(2)
}

func (m *mockFeedStore) ListHistory(ctx context.Context, feedID int64, limit int) ([]*models.FeedHistory, error) {
	args := m.Called(ctx, feedID, limit)
	history, _ := args.Get(0).([]*models.FeedHistory)
	return history, args.Error(1)
}

func (m *mockFeedStore) DeleteUnsortedMemberships(ctx context.Context, feedID int64) ([]string, error) {
	args := m.Called(ctx, feedID)
	ids, _ := args.Get(0).([]string)
	return ids, args.Error(1)
}

func (m *mockFeedStore) ExistingMemberships(ctx context.Context, feedID int64, postIDs []string) (map[string]bool, error) {
	args := m.Called(ctx, feedID, postIDs)
	existing, _ := args.Get(0).(map[string]bool)
	return existing, args.Error(1)
}

func (m *mockFeedStore) SavePage(ctx context.Context, feed *models.Feed, posts []models.Post, history *models.FeedHistory) error {
	return m.Called(ctx, feed, posts, history).Error(0)
}

func (m *mockFeedStore) MarkStale(ctx context.Context, feedID int64, postIDs []string) error {
	return m.Called(ctx, feedID, postIDs).Error(0)
}

func (m *mockFeedStore) AssignSortIndices(ctx context.Context, feedID int64, postIDs []string) error {
	return m.Called(ctx, feedID, postIDs).Error(0)
}

func (m *mockFeedStore) ListFeedWorks(ctx context.Context, feedID int64, limit, offset int) ([]*models.Work, error) {
	args := m.Called(ctx, feedID, limit, offset)
	works, _ := args.Get(0).([]*models.Work)
	return works, args.Error(1)
}

type stubYandere struct {
	page *Page
	err  error
	reqs []PageRequest
}

func (s *stubYandere) Posts(_ context.Context, _ YandereParams, req PageRequest) (*Page, error) {
	s.reqs = append(s.reqs, req)
	return s.page, s.err
}

func newTestFeed(t *testing.T, model *models.Feed, st *mockFeedStore, clients Clients) *Feed {
	t.Helper()
	f, err := New(model, st, clients)
	require.NoError(t, err)
	return f
}

func pixivBookmarks(reachedEnd bool) *models.Feed {
	return &models.Feed{ID: 4, Community: models.CommunityPixiv, Params: json.RawMessage(`{"kind":"bookmarks","user_id":1}`), ReachedEnd: reachedEnd}
}

func yandereTags() *models.Feed {
	return &models.Feed{ID: 2, Community: models.CommunityYandere, Params: json.RawMessage(`{"kind":"tags","tags":"sky"}`)}
}

func posts(ids ...string) []models.Post {
	out := make([]models.Post, len(ids))
	for i, id := range ids {
		out[i] = models.Post{PostID: id}
	}
	return out
}

func TestNew_InvalidParams(t *testing.T) {
	model := &models.Feed{ID: 1, Community: models.CommunityYandere, Params: json.RawMessage(`{"kind":"nope"}`)}
	_, err := New(model, &mockFeedStore{}, Clients{})
	require.Error(t, err)
	assert.ErrorIs(t, err, models.ErrInvalidInput)
	assert.Contains(t, err.Error(), "1@yandere")
}

func TestFeed_FetchContext(t *testing.T) {
	ctx := context.Background()
	top := &models.Cursor{Value: "top", Rank: 9}
	bottom := &models.Cursor{Value: "bottom", Rank: 1}

	t.Run("non directional starts at page one", func(t *testing.T) {
		st := &mockFeedStore{}
		fc, err := newTestFeed(t, yandereTags(), st, Clients{}).FetchContext(ctx)
		require.NoError(t, err)
		assert.Equal(t, FetchContext{Direction: Backward, Page: 1}, fc)
		st.AssertNotCalled(t, "Cursors", mock.Anything, mock.Anything)
	})

	t.Run("catching up backward resumes at the bottom cursor", func(t *testing.T) {
		st := &mockFeedStore{}
		st.On("Cursors", ctx, int64(4)).Return(top, bottom, nil)
		fc, err := newTestFeed(t, pixivBookmarks(false), st, Clients{}).FetchContext(ctx)
		require.NoError(t, err)
		assert.Equal(t, FetchContext{Direction: Backward, Cursor: "bottom", Page: 1}, fc)
	})

	t.Run("reached end walks forward from the top cursor", func(t *testing.T) {
		st := &mockFeedStore{}
		st.On("Cursors", ctx, int64(4)).Return(top, bottom, nil)
		fc, err := newTestFeed(t, pixivBookmarks(true), st, Clients{}).FetchContext(ctx)
		require.NoError(t, err)
		assert.Equal(t, FetchContext{Direction: Forward, Cursor: "top", Page: 1}, fc)
	})

	t.Run("no history yet", func(t *testing.T) {
		st := &mockFeedStore{}
		st.On("Cursors", ctx, int64(4)).Return(nil, nil, nil)
		fc, err := newTestFeed(t, pixivBookmarks(false), st, Clients{}).FetchContext(ctx)
		require.NoError(t, err)
		assert.Equal(t, FetchContext{Direction: Backward, Page: 1}, fc)
	})
}

func TestFeed_Fetch(t *testing.T) {
	ctx := context.Background()

	t.Run("advances page and cursor", func(t *testing.T) {
		client := &stubYandere{page: &Page{
			Posts:   posts("3", "2"),
			Top:     &models.Cursor{Value: "t"},
			Bottom:  &models.Cursor{Value: "b"},
			HasMore: true,
		}}
		f := newTestFeed(t, yandereTags(), &mockFeedStore{}, Clients{Yandere: client})
		page, next, err := f.Fetch(ctx, FetchContext{Direction: Backward, Page: 1})
		require.NoError(t, err)
		assert.Len(t, page.Posts, 2)
		assert.Equal(t, FetchContext{Direction: Backward, Cursor: "b", Page: 2, TotalFetched: 2}, next)
		assert.Equal(t, []PageRequest{{Direction: Backward, Page: 1}}, client.reqs)
	})

	t.Run("forward uses the top cursor", func(t *testing.T) {
		client := &stubYandere{page: &Page{Top: &models.Cursor{Value: "t"}, Bottom: &models.Cursor{Value: "b"}}}
		f := newTestFeed(t, yandereTags(), &mockFeedStore{}, Clients{Yandere: client})
		_, next, err := f.Fetch(ctx, FetchContext{Direction: Forward, Cursor: "x", Page: 3})
		require.NoError(t, err)
		assert.Equal(t, "t", next.Cursor)
		assert.Equal(t, 4, next.Page)
	})

	t.Run("nil page is empty", func(t *testing.T) {
		f := newTestFeed(t, yandereTags(), &mockFeedStore{}, Clients{Yandere: &stubYandere{}})
		page, next, err := f.Fetch(ctx, FetchContext{Direction: Backward, Page: 1})
		require.NoError(t, err)
		assert.Empty(t, page.Posts)
		assert.Equal(t, 2, next.Page)
	})

	t.Run("client error is returned with the old context", func(t *testing.T) {
		boom := errors.New("boom")
		f := newTestFeed(t, yandereTags(), &mockFeedStore{}, Clients{Yandere: &stubYandere{err: boom}})
		fc := FetchContext{Direction: Backward, Page: 5}
		_, next, err := f.Fetch(ctx, fc)
		assert.ErrorIs(t, err, boom)
		assert.Equal(t, fc, next)
	})

	t.Run("missing client is an authentication error", func(t *testing.T) {
		f := newTestFeed(t, pixivBookmarks(false), &mockFeedStore{}, Clients{})
		_, _, err := f.Fetch(ctx, FetchContext{Direction: Backward, Page: 1})
		assert.ErrorIs(t, err, models.ErrAuthentication)
	})
}

func TestFeed_Save(t *testing.T) {
	ctx := context.Background()

	t.Run("fresh page continues", func(t *testing.T) {
		st := &mockFeedStore{}
		model := yandereTags()
		st.On("ExistingMemberships", ctx, int64(2), []string{"3", "2"}).Return(map[string]bool{}, nil)
		st.On("SavePage", ctx, model, posts("3", "2"), mock.MatchedBy(func(h *models.FeedHistory) bool {
			return assert.ObjectsAreEqual([]string{"3", "2"}, h.PostIDs)
		})).Return(nil)

		res, err := newTestFeed(t, model, st, Clients{}).Save(ctx, &Page{Posts: posts("3", "2"), HasMore: true}, FetchContext{Direction: Backward, Page: 2, TotalFetched: 2})
		require.NoError(t, err)
		assert.Equal(t, models.SaveResult{PostIDs: []string{"3", "2"}}, res)
		st.AssertExpectations(t)
	})

	t.Run("known post stops after saving the rest", func(t *testing.T) {
		st := &mockFeedStore{}
		model := yandereTags()
		st.On("ExistingMemberships", ctx, int64(2), []string{"3", "2"}).Return(map[string]bool{"2": true}, nil)
		st.On("SavePage", ctx, model, posts("3"), mock.Anything).Return(nil)

		res, err := newTestFeed(t, model, st, Clients{}).Save(ctx, &Page{Posts: posts("3", "2"), HasMore: true}, FetchContext{Direction: Backward})
		require.NoError(t, err)
		assert.True(t, res.ShouldStop)
		assert.Equal(t, []string{"3"}, res.PostIDs)
	})

	t.Run("all known stops without saving", func(t *testing.T) {
		st := &mockFeedStore{}
		st.On("ExistingMemberships", ctx, int64(2), []string{"1"}).Return(map[string]bool{"1": true}, nil)

		res, err := newTestFeed(t, yandereTags(), st, Clients{}).Save(ctx, &Page{Posts: posts("1"), HasMore: true}, FetchContext{Direction: Backward})
		require.NoError(t, err)
		assert.True(t, res.ShouldStop)
		assert.Empty(t, res.PostIDs)
		st.AssertNotCalled(t, "SavePage", mock.Anything, mock.Anything, mock.Anything, mock.Anything)
	})

	t.Run("deleted known post is marked stale", func(t *testing.T) {
		st := &mockFeedStore{}
		model := yandereTags()
		page := posts("5", "4")
		page[1].Deleted = true
		st.On("ExistingMemberships", ctx, int64(2), []string{"5", "4"}).Return(map[string]bool{"4": true}, nil)
		st.On("MarkStale", ctx, int64(2), []string{"4"}).Return(nil)
		st.On("SavePage", ctx, model, posts("5"), mock.Anything).Return(nil)

		res, err := newTestFeed(t, model, st, Clients{}).Save(ctx, &Page{Posts: page, HasMore: true}, FetchContext{Direction: Backward})
		require.NoError(t, err)
		assert.Equal(t, []string{"5"}, res.PostIDs)
		st.AssertExpectations(t)
	})

	t.Run("last backward page marks reached end once", func(t *testing.T) {
		st := &mockFeedStore{}
		st.On("MarkReachedEnd", ctx, int64(2)).Return(nil).Once()

		res, err := newTestFeed(t, yandereTags(), st, Clients{}).Save(ctx, &Page{}, FetchContext{Direction: Backward})
		require.NoError(t, err)
		assert.True(t, res.ReachedEnd)
		assert.True(t, res.ShouldStop)
		st.AssertExpectations(t)

		done := yandereTags()
		done.ReachedEnd = true
		st2 := &mockFeedStore{}
		res, err = newTestFeed(t, done, st2, Clients{}).Save(ctx, &Page{}, FetchContext{Direction: Backward})
		require.NoError(t, err)
		assert.True(t, res.ReachedEnd)
		st2.AssertNotCalled(t, "MarkReachedEnd", mock.Anything, mock.Anything)
	})

	t.Run("first fetch limit stops without reaching the end", func(t *testing.T) {
		st := &mockFeedStore{}
		model := yandereTags()
		limit := 2
		model.FirstFetchLimit = &limit
		st.On("ExistingMemberships", ctx, int64(2), []string{"9", "8"}).Return(map[string]bool{}, nil)
		st.On("SavePage", ctx, model, posts("9", "8"), mock.Anything).Return(nil)

		res, err := newTestFeed(t, model, st, Clients{}).Save(ctx, &Page{Posts: posts("9", "8"), HasMore: true}, FetchContext{Direction: Backward, TotalFetched: 2})
		require.NoError(t, err)
		assert.True(t, res.ShouldStop)
		assert.False(t, res.ReachedEnd)
		st.AssertNotCalled(t, "MarkReachedEnd", mock.Anything, mock.Anything)
	})

	t.Run("store error is returned", func(t *testing.T) {
		st := &mockFeedStore{}
		boom := errors.New("db down")
		st.On("ExistingMemberships", ctx, int64(2), []string{"1"}).Return(nil, boom)
		_, err := newTestFeed(t, yandereTags(), st, Clients{}).Save(ctx, &Page{Posts: posts("1"), HasMore: true}, FetchContext{Direction: Backward})
		assert.ErrorIs(t, err, boom)
	})
}

func TestFeed_BeforeAndAfterUpdate(t *testing.T) {
	ctx := context.Background()
	st := &mockFeedStore{}
	st.On("DeleteUnsortedMemberships", ctx, int64(2)).Return([]string{"7"}, nil)
	st.On("AssignSortIndices", ctx, int64(2), []string{"3", "2", "1"}).Return(nil)

	f := newTestFeed(t, yandereTags(), st, Clients{})
	require.NoError(t, f.BeforeUpdate(ctx))
	require.NoError(t, f.AfterUpdate(ctx, []models.SaveResult{
		{PostIDs: []string{"3", "2"}},
		{PostIDs: []string{"2", "1"}},
		{},
	}))
	st.AssertExpectations(t)
}
