package gallery

import (
	"context"
	"errors"
	"fmt"
	"sort"

	"bottle/internal/models"
	"bottle/internal/store"
)

// Store is what gallery downloads read and write.
type Store interface {
	store.GalleryStore
	store.LibraryStore
}

// ImageTask is one gallery image. ImageID is nil until an images row exists.
type ImageTask struct {
	Index      int
	Token      string
	ImageID    *int64
	Downloaded bool
}

// Task is the download plan of one gallery.
type Task struct {
	GalleryID  int64
	Token      string
	Title      string
	HasDetail  bool
	MediaCount int
	WorkID     int64
	Images     []ImageTask
}

// Downloaded counts images already stored.
func (t *Task) Downloaded() int {
	n := 0
	for _, img := range t.Images {
		if img.Downloaded {
			n++
		}
	}
	return n
}

// GetGalleryTask builds the plan of gid from persisted state. A gallery whose
// images are all stored yields models.ErrAlreadyExists.
func GetGalleryTask(ctx context.Context, st Store, gid int64) (*Task, error) {
	g, err := st.GetGallery(ctx, gid)
	if err != nil {
		if store.IsNotFound(err) {
			return nil, fmt.Errorf("gallery %d: %w", gid, models.ErrNotFound)
		}
		return nil, err
	}
	images, err := st.ListWorkImages(ctx, g.WorkID)
	if err != nil {
		return nil, err
	}

	byIndex := make(map[int]*models.Image, len(images))
	downloaded := 0
	for _, img := range images {
		if img.PageIndex == nil {
			continue
		}
		byIndex[*img.PageIndex] = img
		if img.Downloaded() {
			downloaded++
		}
	}
	if g.MediaCount > 0 && downloaded >= g.MediaCount {
		return nil, fmt.Errorf("gallery %d is already downloaded: %w", gid, models.ErrAlreadyExists)
	}

	media, err := st.ListGalleryMedia(ctx, gid)
	if err != nil {
		return nil, err
	}
	task := &Task{
		GalleryID:  g.ID,
		Token:      g.Token,
		Title:      g.Title,
		HasDetail:  g.HasDetail,
		MediaCount: g.MediaCount,
		WorkID:     g.WorkID,
	}
	for _, m := range media {
		it := ImageTask{Index: m.Index, Token: m.Token}
		if img, ok := byIndex[m.Index]; ok {
			id := img.ID
			it.ImageID = &id
			it.Downloaded = img.Downloaded()
		}
		task.Images = append(task.Images, it)
	}
	sort.Slice(task.Images, func(i, j int) bool { return task.Images[i].Index < task.Images[j].Index })
	return task, nil
}

// AllGalleryTasks plans every gallery that still has images to download.
func AllGalleryTasks(ctx context.Context, st Store) ([]*Task, error) {
	ids, err := st.ListGalleryIDs(ctx)
	if err != nil {
		return nil, err
	}
	var tasks []*Task
	for _, gid := range ids {
		task, err := GetGalleryTask(ctx, st, gid)
		if errors.Is(err, models.ErrAlreadyExists) {
			continue
		}
		if err != nil {
			return nil, err
		}
		tasks = append(tasks, task)
	}
	return tasks, nil
}
