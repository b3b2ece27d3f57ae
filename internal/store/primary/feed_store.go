package primary

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"bottle/internal/models"
	"bottle/internal/store"
)

// --- Feed Store Implementation ---

var _ store.FeedStore = (*StoreImpl)(nil)

// sqlite caps host parameters per statement, stay well below it.
const maxInListSize = 500

const feedColumns = `id, community, name, params, watching, first_fetch_limit, reached_end, created_at, updated_at`

func scanFeed(r row) (*models.Feed, error) {
	var (
		f         models.Feed
		community string
		params    string
	)
	if err := r.Scan(&f.ID, &community, &f.Name, &params, &f.Watching, &f.FirstFetchLimit, &f.ReachedEnd, &f.CreatedAt, &f.UpdatedAt); err != nil {
		return nil, err
	}
	f.Community = models.Community(community)
	f.Params = json.RawMessage(params)
	return &f, nil
}

func (s *StoreImpl) CreateFeed(ctx context.Context, feed *models.Feed) error {
	now := time.Now().UTC()
	params := string(feed.Params)
	if params == "" {
		params = "{}"
	}
	query := `
		INSERT INTO feeds (community, name, params, watching, first_fetch_limit, reached_end, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8)
		RETURNING id`
	err := s.db.queryRow(ctx, query,
		string(feed.Community), feed.Name, params, feed.Watching, feed.FirstFetchLimit, feed.ReachedEnd, now, now,
	).Scan(&feed.ID)
	if err != nil {
		return fmt.Errorf("create feed: %w", err)
	}
	feed.Params = json.RawMessage(params)
	feed.CreatedAt = now
	feed.UpdatedAt = now
	return nil
}

func (s *StoreImpl) GetFeed(ctx context.Context, id models.FeedID) (*models.Feed, error) {
	query := `SELECT ` + feedColumns + ` FROM feeds WHERE id = $1 AND community = $2`
	feed, err := scanFeed(s.db.queryRow(ctx, query, id.FeedID, string(id.Community)))
	if err != nil {
		if errors.Is(err, store.ErrNotFound) {
			return nil, fmt.Errorf("feed %s: %w", id, store.ErrNotFound)
		}
		return nil, fmt.Errorf("get feed %s: %w", id, err)
	}
	return feed, nil
}

func (s *StoreImpl) ListFeeds(ctx context.Context, community models.Community) ([]*models.Feed, error) {
	var (
		rs  rows
		err error
	)
	if community == "" {
		rs, err = s.db.query(ctx, `SELECT `+feedColumns+` FROM feeds ORDER BY id`)
	} else {
		rs, err = s.db.query(ctx, `SELECT `+feedColumns+` FROM feeds WHERE community = $1 ORDER BY id`, string(community))
	}
	if err != nil {
		return nil, fmt.Errorf("list feeds: %w", err)
	}
	defer rs.Close()

	var feeds []*models.Feed
	for rs.Next() {
		feed, err := scanFeed(rs)
		if err != nil {
			return nil, fmt.Errorf("scan feed: %w", err)
		}
		feeds = append(feeds, feed)
	}
	return feeds, rs.Err()
}

func (s *StoreImpl) MarkReachedEnd(ctx context.Context, feedID int64) error {
	n, err := s.db.exec(ctx, `UPDATE feeds SET reached_end = $1, updated_at = $2 WHERE id = $3`, true, time.Now().UTC(), feedID)
	if err != nil {
		return fmt.Errorf("mark feed %d reached end: %w", feedID, err)
	}
	if n == 0 {
		return fmt.Errorf("feed %d: %w", feedID, store.ErrNotFound)
	}
	return nil
}

func (s *StoreImpl) Cursors(ctx context.Context, feedID int64) (*models.Cursor, *models.Cursor, error) {
	top, err := s.cursor(ctx, `
		SELECT top_cursor, top_rank FROM feed_history
		WHERE feed_id = $1 AND top_cursor IS NOT NULL
		ORDER BY top_rank DESC, id DESC LIMIT 1`, feedID)
	if err != nil {
		return nil, nil, err
	}
	bottom, err := s.cursor(ctx, `
		SELECT bottom_cursor, bottom_rank FROM feed_history
		WHERE feed_id = $1 AND bottom_cursor IS NOT NULL
		ORDER BY bottom_rank ASC, id DESC LIMIT 1`, feedID)
	if err != nil {
		return nil, nil, err
	}
	return top, bottom, nil
}

func (s *StoreImpl) cursor(ctx context.Context, query string, feedID int64) (*models.Cursor, error) {
	var (
		value string
		rank  *int64
	)
	err := s.db.queryRow(ctx, query, feedID).Scan(&value, &rank)
	if errors.Is(err, store.ErrNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("load cursor for feed %d: %w", feedID, err)
	}
	c := &models.Cursor{Value: value}
	if rank != nil {
		c.Rank = *rank
	}
	return c, nil
}

func (s *StoreImpl) ListHistory(ctx context.Context, feedID int64, limit int) ([]*models.FeedHistory, error) {
	query := `
		SELECT id, feed_id, top_cursor, top_rank, bottom_cursor, bottom_rank, post_ids, count, created_at
		FROM feed_history WHERE feed_id = $1 ORDER BY id DESC LIMIT $2`
	rs, err := s.db.query(ctx, query, feedID, limit)
	if err != nil {
		return nil, fmt.Errorf("list history for feed %d: %w", feedID, err)
	}
	defer rs.Close()

	var history []*models.FeedHistory
	for rs.Next() {
		var (
			h                     models.FeedHistory
			topValue, bottomValue *string
			topRank, bottomRank   *int64
			postIDs               string
		)
		if err := rs.Scan(&h.ID, &h.FeedID, &topValue, &topRank, &bottomValue, &bottomRank, &postIDs, &h.Count, &h.CreatedAt); err != nil {
			return nil, fmt.Errorf("scan history: %w", err)
		}
		h.Top = cursorFromColumns(topValue, topRank)
		h.Bottom = cursorFromColumns(bottomValue, bottomRank)
		if err := json.Unmarshal([]byte(postIDs), &h.PostIDs); err != nil {
			return nil, fmt.Errorf("decode history %d post ids: %w", h.ID, err)
		}
		history = append(history, &h)
	}
	return history, rs.Err()
}

func cursorFromColumns(value *string, rank *int64) *models.Cursor {
	if value == nil {
		return nil
	}
	c := &models.Cursor{Value: *value}
	if rank != nil {
		c.Rank = *rank
	}
	return c
}

func cursorColumns(c *models.Cursor) (*string, *int64) {
	if c == nil {
		return nil, nil
	}
	value, rank := c.Value, c.Rank
	return &value, &rank
}

func (s *StoreImpl) DeleteUnsortedMemberships(ctx context.Context, feedID int64) ([]string, error) {
	var deleted []string
	err := s.db.inTx(ctx, func(q querier) error {
		rs, err := q.query(ctx, `SELECT post_id FROM feed_works WHERE feed_id = $1 AND sort_index IS NULL`, feedID)
		if err != nil {
			return err
		}
		for rs.Next() {
			var postID string
			if err := rs.Scan(&postID); err != nil {
				rs.Close()
				return err
			}
			deleted = append(deleted, postID)
		}
		err = rs.Err()
		rs.Close()
		if err != nil {
			return err
		}
		if len(deleted) == 0 {
			return nil
		}
		_, err = q.exec(ctx, `DELETE FROM feed_works WHERE feed_id = $1 AND sort_index IS NULL`, feedID)
		return err
	})
	if err != nil {
		return nil, fmt.Errorf("delete unsorted memberships of feed %d: %w", feedID, err)
	}
	return deleted, nil
}

func (s *StoreImpl) ExistingMemberships(ctx context.Context, feedID int64, postIDs []string) (map[string]bool, error) {
	existing := make(map[string]bool)
	for start := 0; start < len(postIDs); start += maxInListSize {
		end := min(start+maxInListSize, len(postIDs))
		chunk := postIDs[start:end]
		query := `SELECT post_id FROM feed_works WHERE feed_id = $1 AND post_id IN (` + placeholders(2, len(chunk)) + `)`
		args := append([]any{feedID}, stringArgs(chunk)...)
		rs, err := s.db.query(ctx, query, args...)
		if err != nil {
			return nil, fmt.Errorf("query memberships of feed %d: %w", feedID, err)
		}
		for rs.Next() {
			var postID string
			if err := rs.Scan(&postID); err != nil {
				rs.Close()
				return nil, fmt.Errorf("scan membership: %w", err)
			}
			existing[postID] = true
		}
		err = rs.Err()
		rs.Close()
		if err != nil {
			return nil, err
		}
	}
	return existing, nil
}

func (s *StoreImpl) SavePage(ctx context.Context, feed *models.Feed, posts []models.Post, history *models.FeedHistory) error {
	now := time.Now().UTC()
	err := s.db.inTx(ctx, func(q querier) error {
		for i := range posts {
			post := &posts[i]
			workID, err := upsertWork(ctx, q, feed.Community, post, now)
			if err != nil {
				return err
			}
			for _, media := range post.Media {
				_, err := q.exec(ctx, `
					INSERT INTO images (work_id, filename, remote_url, page_index, created_at)
					VALUES ($1, $2, $3, $4, $5)
					ON CONFLICT (work_id, page_index) DO NOTHING`,
					workID, media.Filename, media.URL, media.PageIndex, now)
				if err != nil {
					return fmt.Errorf("insert image of post %s: %w", post.PostID, err)
				}
			}
			if g := post.Gallery; g != nil {
				_, err := q.exec(ctx, `
					INSERT INTO galleries (id, token, title, media_count, work_id, updated_at)
					VALUES ($1, $2, $3, $4, $5, $6)
					ON CONFLICT (id) DO UPDATE SET token = excluded.token, updated_at = excluded.updated_at`,
					g.GalleryID, g.Token, post.Title, g.MediaCount, workID, now)
				if err != nil {
					return fmt.Errorf("upsert gallery %d: %w", g.GalleryID, err)
				}
			}
			_, err = q.exec(ctx, `
				INSERT INTO feed_works (feed_id, post_id, work_id, created_at)
				VALUES ($1, $2, $3, $4)
				ON CONFLICT (feed_id, post_id) DO NOTHING`,
				feed.ID, post.PostID, workID, now)
			if err != nil {
				return fmt.Errorf("insert membership of post %s: %w", post.PostID, err)
			}
		}
		if history == nil {
			return nil
		}
		return insertHistory(ctx, q, feed.ID, history, now)
	})
	if err != nil {
		return fmt.Errorf("save page of feed %s: %w", feed.Key(), err)
	}
	return nil
}

func upsertWork(ctx context.Context, q querier, community models.Community, post *models.Post, now time.Time) (int64, error) {
	imageCount := len(post.Media)
	if post.Gallery != nil {
		imageCount = post.Gallery.MediaCount
	}
	var workID int64
	err := q.queryRow(ctx, `
		INSERT INTO works (community, post_id, user_id, title, url, image_count, posted_at, created_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8)
		ON CONFLICT (community, post_id) DO UPDATE SET title = excluded.title, url = excluded.url
		RETURNING id`,
		string(community), post.PostID, post.UserID, post.Title, post.URL, imageCount, post.PostedAt, now,
	).Scan(&workID)
	if err != nil {
		return 0, fmt.Errorf("upsert work for post %s: %w", post.PostID, err)
	}
	return workID, nil
}

func insertHistory(ctx context.Context, q querier, feedID int64, history *models.FeedHistory, now time.Time) error {
	ids := history.PostIDs
	if ids == nil {
		ids = []string{}
	}
	encoded, err := json.Marshal(ids)
	if err != nil {
		return fmt.Errorf("encode history post ids: %w", err)
	}
	topValue, topRank := cursorColumns(history.Top)
	bottomValue, bottomRank := cursorColumns(history.Bottom)
	err = q.queryRow(ctx, `
		INSERT INTO feed_history (feed_id, top_cursor, top_rank, bottom_cursor, bottom_rank, post_ids, count, created_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8)
		RETURNING id`,
		feedID, topValue, topRank, bottomValue, bottomRank, string(encoded), len(ids), now,
	).Scan(&history.ID)
	if err != nil {
		return fmt.Errorf("insert history: %w", err)
	}
	history.FeedID = feedID
	history.Count = len(ids)
	history.CreatedAt = now
	return nil
}

func (s *StoreImpl) MarkStale(ctx context.Context, feedID int64, postIDs []string) error {
	for start := 0; start < len(postIDs); start += maxInListSize {
		end := min(start+maxInListSize, len(postIDs))
		chunk := postIDs[start:end]
		query := `UPDATE feed_works SET stale = $1 WHERE feed_id = $2 AND post_id IN (` + placeholders(3, len(chunk)) + `)`
		args := append([]any{true, feedID}, stringArgs(chunk)...)
		if _, err := s.db.exec(ctx, query, args...); err != nil {
			return fmt.Errorf("mark stale memberships of feed %d: %w", feedID, err)
		}
	}
	return nil
}

func (s *StoreImpl) AssignSortIndices(ctx context.Context, feedID int64, postIDs []string) error {
	if len(postIDs) == 0 {
		return nil
	}
	err := s.db.inTx(ctx, func(q querier) error {
		var last int64
		err := q.queryRow(ctx, `SELECT COALESCE(MAX(sort_index), -1) FROM feed_works WHERE feed_id = $1`, feedID).Scan(&last)
		if err != nil {
			return fmt.Errorf("load max sort index: %w", err)
		}
		n := int64(len(postIDs))
		for i, postID := range postIDs {
			idx := last + n - int64(i)
			affected, err := q.exec(ctx, `UPDATE feed_works SET sort_index = $1 WHERE feed_id = $2 AND post_id = $3`, idx, feedID, postID)
			if err != nil {
				return fmt.Errorf("set sort index of post %s: %w", postID, err)
			}
			if affected == 0 {
				return fmt.Errorf("membership of post %s: %w", postID, store.ErrNotFound)
			}
		}
		return nil
	})
	if err != nil {
		return fmt.Errorf("assign sort indices for feed %d: %w", feedID, err)
	}
	return nil
}

func (s *StoreImpl) ListFeedWorks(ctx context.Context, feedID int64, limit, offset int) ([]*models.Work, error) {
	query := `
		SELECT ` + workColumns("w") + `
		FROM feed_works fw JOIN works w ON w.id = fw.work_id
		WHERE fw.feed_id = $1 AND fw.sort_index IS NOT NULL
		ORDER BY fw.sort_index DESC
		LIMIT $2 OFFSET $3`
	rs, err := s.db.query(ctx, query, feedID, limit, offset)
	if err != nil {
		return nil, fmt.Errorf("list works of feed %d: %w", feedID, err)
	}
	defer rs.Close()

	var works []*models.Work
	for rs.Next() {
		w, err := scanWork(rs)
		if err != nil {
			return nil, fmt.Errorf("scan work: %w", err)
		}
		works = append(works, w)
	}
	return works, rs.Err()
}
