package primary

import (
	"context"
	"errors"
	"fmt"
	"time"

	"bottle/internal/models"
	"bottle/internal/store"
)

// --- Gallery Store Implementation ---

var _ store.GalleryStore = (*StoreImpl)(nil)

func (s *StoreImpl) GetGallery(ctx context.Context, gid int64) (*models.Gallery, error) {
	var g models.Gallery
	err := s.db.queryRow(ctx, `
		SELECT id, token, title, title_jpn, category, uploader, media_count, has_detail, work_id, updated_at
		FROM galleries WHERE id = $1`, gid,
	).Scan(&g.ID, &g.Token, &g.Title, &g.TitleJpn, &g.Category, &g.Uploader, &g.MediaCount, &g.HasDetail, &g.WorkID, &g.UpdatedAt)
	if err != nil {
		if errors.Is(err, store.ErrNotFound) {
			return nil, fmt.Errorf("gallery %d: %w", gid, store.ErrNotFound)
		}
		return nil, fmt.Errorf("get gallery %d: %w", gid, err)
	}
	return &g, nil
}

func (s *StoreImpl) ListGalleryIDs(ctx context.Context) ([]int64, error) {
	rs, err := s.db.query(ctx, `SELECT id FROM galleries ORDER BY id`)
	if err != nil {
		return nil, fmt.Errorf("list galleries: %w", err)
	}
	defer rs.Close()

	var ids []int64
	for rs.Next() {
		var id int64
		if err := rs.Scan(&id); err != nil {
			return nil, fmt.Errorf("scan gallery id: %w", err)
		}
		ids = append(ids, id)
	}
	return ids, rs.Err()
}

func (s *StoreImpl) ListGalleryMedia(ctx context.Context, gid int64) ([]*models.GalleryMedia, error) {
	rs, err := s.db.query(ctx, `
		SELECT gallery_id, media_index, token, image_url, filename
		FROM gallery_media WHERE gallery_id = $1 ORDER BY media_index`, gid)
	if err != nil {
		return nil, fmt.Errorf("list media of gallery %d: %w", gid, err)
	}
	defer rs.Close()

	var media []*models.GalleryMedia
	for rs.Next() {
		var m models.GalleryMedia
		if err := rs.Scan(&m.GalleryID, &m.Index, &m.Token, &m.ImageURL, &m.Filename); err != nil {
			return nil, fmt.Errorf("scan gallery media: %w", err)
		}
		media = append(media, &m)
	}
	return media, rs.Err()
}

func (s *StoreImpl) UpdateGallery(ctx context.Context, gid int64, detail models.GalleryDetail) error {
	err := s.db.inTx(ctx, func(q querier) error {
		n, err := q.exec(ctx, `
			UPDATE galleries
			SET title = $1, title_jpn = $2, category = $3, uploader = $4, media_count = $5, has_detail = $6, updated_at = $7
			WHERE id = $8`,
			detail.Title, detail.TitleJpn, detail.Category, detail.Uploader, detail.MediaCount, true, time.Now().UTC(), gid)
		if err != nil {
			return err
		}
		if n == 0 {
			return store.ErrNotFound
		}
		_, err = q.exec(ctx, `
			UPDATE works SET title = $1, image_count = $2
			WHERE id = (SELECT work_id FROM galleries WHERE id = $3)`,
			detail.Title, detail.MediaCount, gid)
		return err
	})
	if err != nil {
		return fmt.Errorf("update gallery %d: %w", gid, err)
	}
	return nil
}

func (s *StoreImpl) SavePreviews(ctx context.Context, gid int64, previews []models.GalleryMedia) error {
	if len(previews) == 0 {
		return nil
	}
	err := s.db.inTx(ctx, func(q querier) error {
		for _, p := range previews {
			_, err := q.exec(ctx, `
				INSERT INTO gallery_media (gallery_id, media_index, token)
				VALUES ($1, $2, $3)
				ON CONFLICT (gallery_id, media_index) DO UPDATE SET token = excluded.token`,
				gid, p.Index, p.Token)
			if err != nil {
				return fmt.Errorf("preview %d: %w", p.Index, err)
			}
		}
		return nil
	})
	if err != nil {
		return fmt.Errorf("save previews of gallery %d: %w", gid, err)
	}
	return nil
}

func (s *StoreImpl) RemovePreviews(ctx context.Context, gid int64) error {
	if _, err := s.db.exec(ctx, `DELETE FROM gallery_media WHERE gallery_id = $1`, gid); err != nil {
		return fmt.Errorf("remove previews of gallery %d: %w", gid, err)
	}
	return nil
}

func (s *StoreImpl) SaveMediaInfo(ctx context.Context, gid int64, index int, imageURL, filename string) error {
	n, err := s.db.exec(ctx, `
		UPDATE gallery_media SET image_url = $1, filename = $2
		WHERE gallery_id = $3 AND media_index = $4`,
		imageURL, filename, gid, index)
	if err != nil {
		return fmt.Errorf("save media info %d/%d: %w", gid, index, err)
	}
	if n == 0 {
		return fmt.Errorf("gallery media %d/%d: %w", gid, index, store.ErrNotFound)
	}
	return nil
}
