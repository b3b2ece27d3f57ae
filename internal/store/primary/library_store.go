package primary

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"bottle/internal/models"
	"bottle/internal/store"
)

// --- Library Store Implementation ---

var _ store.LibraryStore = (*StoreImpl)(nil)

func workColumns(alias string) string {
	cols := []string{"id", "community", "post_id", "user_id", "title", "url", "thumbnail_path", "small_thumbnail_path", "image_count", "posted_at", "created_at"}
	for i, c := range cols {
		cols[i] = alias + "." + c
	}
	return strings.Join(cols, ", ")
}

func scanWork(r row) (*models.Work, error) {
	var (
		w         models.Work
		community string
	)
	err := r.Scan(&w.ID, &community, &w.PostID, &w.UserID, &w.Title, &w.URL,
		&w.ThumbnailPath, &w.SmallThumbnailPath, &w.ImageCount, &w.PostedAt, &w.CreatedAt)
	if err != nil {
		return nil, err
	}
	w.Community = models.Community(community)
	return &w, nil
}

func (s *StoreImpl) ListPendingImages(ctx context.Context) ([]models.PendingImage, error) {
	query := `
		SELECT i.id, w.community, w.user_id, i.remote_url, i.filename
		FROM images i JOIN works w ON w.id = i.work_id
		WHERE i.remote_url IS NOT NULL AND i.path IS NULL AND w.community <> $1
		ORDER BY i.id`
	rs, err := s.db.query(ctx, query, string(models.CommunityPanda))
	if err != nil {
		return nil, fmt.Errorf("list pending images: %w", err)
	}
	defer rs.Close()

	var pending []models.PendingImage
	for rs.Next() {
		var (
			p         models.PendingImage
			community string
		)
		if err := rs.Scan(&p.ImageID, &community, &p.UserID, &p.URL, &p.Filename); err != nil {
			return nil, fmt.Errorf("scan pending image: %w", err)
		}
		p.Community = models.Community(community)
		pending = append(pending, p)
	}
	return pending, rs.Err()
}

func (s *StoreImpl) GetWork(ctx context.Context, workID int64) (*models.Work, error) {
	w, err := scanWork(s.db.queryRow(ctx, `SELECT `+workColumns("w")+` FROM works w WHERE w.id = $1`, workID))
	if err != nil {
		if errors.Is(err, store.ErrNotFound) {
			return nil, fmt.Errorf("work %d: %w", workID, store.ErrNotFound)
		}
		return nil, fmt.Errorf("get work %d: %w", workID, err)
	}
	return w, nil
}

func (s *StoreImpl) ListWorkImages(ctx context.Context, workID int64) ([]*models.Image, error) {
	query := `
		SELECT id, work_id, filename, remote_url, page_index, path, thumbnail_path, small_thumbnail_path, width, height, size
		FROM images WHERE work_id = $1 ORDER BY page_index`
	rs, err := s.db.query(ctx, query, workID)
	if err != nil {
		return nil, fmt.Errorf("list images of work %d: %w", workID, err)
	}
	defer rs.Close()

	var images []*models.Image
	for rs.Next() {
		var img models.Image
		err := rs.Scan(&img.ID, &img.WorkID, &img.Filename, &img.RemoteURL, &img.PageIndex,
			&img.Path, &img.ThumbnailPath, &img.SmallThumbnailPath, &img.Width, &img.Height, &img.Size)
		if err != nil {
			return nil, fmt.Errorf("scan image: %w", err)
		}
		images = append(images, &img)
	}
	return images, rs.Err()
}

func (s *StoreImpl) AddRemoteImage(ctx context.Context, workID int64, filename, url string, pageIndex int) (int64, error) {
	var id int64
	err := s.db.queryRow(ctx, `
		INSERT INTO images (work_id, filename, remote_url, page_index, created_at)
		VALUES ($1, $2, $3, $4, $5)
		ON CONFLICT (work_id, page_index) DO UPDATE SET filename = excluded.filename, remote_url = excluded.remote_url
		RETURNING id`,
		workID, filename, url, pageIndex, time.Now().UTC(),
	).Scan(&id)
	if err != nil {
		if errors.Is(err, store.ErrForeignKeyViolation) {
			return 0, fmt.Errorf("work %d: %w", workID, store.ErrNotFound)
		}
		return 0, fmt.Errorf("add image to work %d: %w", workID, err)
	}
	return id, nil
}

func (s *StoreImpl) UpdateImageFromLocal(ctx context.Context, imageID int64, local *models.LocalImage) error {
	n, err := s.db.exec(ctx, `
		UPDATE images
		SET path = $1, thumbnail_path = $2, small_thumbnail_path = $3, width = $4, height = $5, size = $6, filename = $7
		WHERE id = $8`,
		local.Path, local.ThumbnailPath, local.SmallThumbnailPath, local.Width, local.Height, local.Size, local.Filename, imageID)
	if err != nil {
		return fmt.Errorf("update image %d: %w", imageID, err)
	}
	if n == 0 {
		return fmt.Errorf("image %d: %w", imageID, store.ErrNotFound)
	}
	return nil
}

func (s *StoreImpl) UpdateWorkFromLocal(ctx context.Context, workID int64, local *models.LocalImage) error {
	n, err := s.db.exec(ctx, `UPDATE works SET thumbnail_path = $1, small_thumbnail_path = $2 WHERE id = $3`,
		local.ThumbnailPath, local.SmallThumbnailPath, workID)
	if err != nil {
		return fmt.Errorf("update work %d: %w", workID, err)
	}
	if n == 0 {
		return fmt.Errorf("work %d: %w", workID, store.ErrNotFound)
	}
	return nil
}
