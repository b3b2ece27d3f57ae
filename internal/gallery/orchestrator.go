package gallery

import (
	"context"
	"fmt"
	"path"
	"strconv"
	"time"

	log "github.com/sirupsen/logrus"

	"bottle/internal/download"
	"bottle/internal/jobs"
	"bottle/internal/models"
)

// Preview is one entry of a gallery preview page.
type Preview struct {
	Index int
	Token string
}

// PageResult is one preview page. Detail.MediaCount is the image count the
// site reports right now.
type PageResult struct {
	Detail    models.GalleryDetail
	PageCount int
	Previews  []Preview
}

// ImageResult is a resolved image page.
type ImageResult struct {
	Index    int
	URL      string
	Filename string
}

// Client reads gallery pages from panda.
type Client interface {
	GalleryPage(ctx context.Context, gid int64, token string, page int) (*PageResult, error)
	Image(ctx context.Context, gid int64, mediaToken string, index int) (*ImageResult, error)
}

type Options struct {
	Concurrency int
	Overwrite   bool
	// Delay separates preview page fetches.
	Delay time.Duration
	// MaxDrift is how many count or token changes a run tolerates.
	MaxDrift int
}

// Orchestrator downloads a gallery in two phases: preview metadata first,
// then the images.
type Orchestrator struct {
	store   Store
	client  Client
	fetcher download.Fetcher
	policy  jobs.Policy
	opts    Options
}

func NewOrchestrator(st Store, client Client, fetcher download.Fetcher, policy jobs.Policy, opts Options) *Orchestrator {
	return &Orchestrator{store: st, client: client, fetcher: fetcher, policy: policy, opts: opts}
}

// Run is the registry runner of gallery downloads.
func (o *Orchestrator) Run(ctx context.Context, gid int64, cell *jobs.Cell) error {
	if o.client == nil {
		return fmt.Errorf("%w: no panda account configured", models.ErrAuthentication)
	}
	task, err := GetGalleryTask(ctx, o.store, gid)
	if err != nil {
		return err
	}
	log.WithField("gid", gid).Infof("Gallery download started: %s", task.Title)

	if err := o.FetchMetadata(ctx, task, cell); err != nil {
		return err
	}
	cell.Store(o.Download(ctx, task, cell))
	return nil
}

// FetchMetadata fetches preview pages until every index in [0, MediaCount)
// has a token, updating task in place.
func (o *Orchestrator) FetchMetadata(ctx context.Context, task *Task, cell *jobs.Cell) error {
	logger := log.WithField("gid", task.GalleryID)

	tokens := make(map[int]string, len(task.Images))
	known := make(map[int]bool, len(task.Images))
	for _, img := range task.Images {
		tokens[img.Index] = img.Token
		known[img.Index] = true
	}

	var pageCount, pageSize, drift int
	pages := PagesToFetch(task.MediaCount, 0, 0, known)
	if len(pages) == 0 && task.MediaCount == 0 && !task.HasDetail {
		// Nothing is known about the gallery; page 0 reports its count.
		pages = []int{0}
	}
	guessed := guessedPageCount(task.MediaCount, GuessedPageSize)
	cell.Store(jobs.FetchingMetadata(guessed, guessed-len(pages)))

	for len(pages) > 0 {
		page := pages[0]
		res, err := jobs.Call(ctx, o.policy, func(ctx context.Context) (*PageResult, error) {
			return o.client.GalleryPage(ctx, task.GalleryID, task.Token, page)
		})
		if err != nil {
			return fmt.Errorf("fetch preview page %d of gallery %d: %w", page, task.GalleryID, err)
		}

		pageCount = res.PageCount
		// The last page is usually short.
		if pageSize == 0 || page < res.PageCount-1 {
			pageSize = len(res.Previews)
		}

		countDrift := res.Detail.MediaCount != task.MediaCount
		if countDrift {
			if task.HasDetail || task.MediaCount > 0 {
				logger.Warnf("Media count changed from %d to %d", task.MediaCount, res.Detail.MediaCount)
				drift++
			}
			task.MediaCount = res.Detail.MediaCount
		}
		if !task.HasDetail || countDrift {
			if err := o.store.UpdateGallery(ctx, task.GalleryID, res.Detail); err != nil {
				return err
			}
			task.HasDetail = true
			if res.Detail.Title != "" {
				task.Title = res.Detail.Title
			}
		}

		tokenDrift := false
		for _, p := range res.Previews {
			if tok, ok := tokens[p.Index]; ok && tok != p.Token {
				logger.Warnf("Media token changed at index %d", p.Index)
				tokenDrift = true
				break
			}
		}

		if tokenDrift {
			drift++
			if err := o.store.RemovePreviews(ctx, task.GalleryID); err != nil {
				return err
			}
			task.Images = nil
			clear(tokens)
			clear(known)
		} else {
			added, err := o.savePreviews(ctx, task, res.Previews, tokens, known)
			if err != nil {
				return err
			}
			if added == 0 && !countDrift {
				// A page that teaches nothing would be fetched forever.
				drift++
			}
			logger.Debugf("Saved %d new previews from page %d", added, page)
		}

		if o.opts.MaxDrift > 0 && drift > o.opts.MaxDrift {
			return fmt.Errorf("gallery %d changed %d times while fetching metadata: %w", task.GalleryID, drift, models.ErrMetadataUnstable)
		}

		pages = PagesToFetch(task.MediaCount, pageCount, pageSize, known)
		total := pageCount
		if total == 0 {
			total = guessed
		}
		cell.Store(jobs.FetchingMetadata(total, total-len(pages)))

		if len(pages) == 0 {
			break
		}
		if err := sleep(ctx, o.opts.Delay); err != nil {
			return err
		}
	}

	// A shrunken gallery leaves indices that no longer exist.
	kept := task.Images[:0]
	for _, img := range task.Images {
		if img.Index < task.MediaCount {
			kept = append(kept, img)
		}
	}
	task.Images = kept
	logger.Info("Gallery metadata fetched")
	return nil
}

func (o *Orchestrator) savePreviews(ctx context.Context, task *Task, previews []Preview, tokens map[int]string, known map[int]bool) (int, error) {
	media := make([]models.GalleryMedia, 0, len(previews))
	for _, p := range previews {
		media = append(media, models.GalleryMedia{GalleryID: task.GalleryID, Index: p.Index, Token: p.Token})
	}
	if err := o.store.SavePreviews(ctx, task.GalleryID, media); err != nil {
		return 0, err
	}

	added := 0
	for _, p := range previews {
		if known[p.Index] {
			continue
		}
		known[p.Index] = true
		tokens[p.Index] = p.Token
		task.Images = append(task.Images, ImageTask{Index: p.Index, Token: p.Token})
		added++
	}
	return added, nil
}

// Download fetches every image of task that is not stored yet and returns
// the terminal state.
func (o *Orchestrator) Download(ctx context.Context, task *Task, cell *jobs.Cell) jobs.State {
	var pending []ImageTask
	for _, img := range task.Images {
		if !img.Downloaded {
			pending = append(pending, img)
		}
	}
	log.WithFields(log.Fields{"gid": task.GalleryID, "count": len(pending)}).Info("Downloading gallery images")

	base := jobs.Running(task.MediaCount, task.Downloaded(), 0)
	errs := download.RunPipeline(ctx, cell, o.opts.Concurrency, base, pending, func(ctx context.Context, img ImageTask) error {
		return o.downloadImage(ctx, task, img)
	})

	var failures []jobs.Failure
	for i, err := range errs {
		if err == nil {
			continue
		}
		index := pending[i].Index
		log.WithFields(log.Fields{"gid": task.GalleryID, "index": index}).Warnf("Gallery image failed: %v", err)
		failures = append(failures, jobs.Failure{GalleryID: task.GalleryID, Index: &index, Error: err.Error()})
	}
	return jobs.Finish(task.MediaCount, failures)
}

func (o *Orchestrator) downloadImage(ctx context.Context, task *Task, img ImageTask) error {
	res, err := jobs.Call(ctx, o.policy, func(ctx context.Context) (*ImageResult, error) {
		return o.client.Image(ctx, task.GalleryID, img.Token, img.Index)
	})
	if err != nil {
		return fmt.Errorf("resolve image %d: %w", img.Index, err)
	}

	dl := download.Task{
		URL:      res.URL,
		Subdir:   path.Join(string(models.CommunityPanda), strconv.FormatInt(task.GalleryID, 10)),
		Filename: IndexedFilename(img.Index, task.MediaCount, res.Filename),
	}
	local, err := jobs.Call(ctx, o.policy, func(ctx context.Context) (*models.LocalImage, error) {
		return o.fetcher.Download(ctx, dl, o.opts.Overwrite)
	})
	if err != nil {
		return err
	}

	var imageID int64
	if img.ImageID != nil {
		imageID = *img.ImageID
	} else {
		imageID, err = o.store.AddRemoteImage(ctx, task.WorkID, res.Filename, res.URL, img.Index)
		if err != nil {
			return err
		}
	}
	if err := o.store.SaveMediaInfo(ctx, task.GalleryID, img.Index, res.URL, res.Filename); err != nil {
		return err
	}
	if err := o.store.UpdateImageFromLocal(ctx, imageID, local); err != nil {
		return err
	}
	if img.Index == 0 {
		return o.store.UpdateWorkFromLocal(ctx, task.WorkID, local)
	}
	return nil
}

// IndexedFilename prefixes filename with index, zero padded to the width of
// count so files sort in gallery order.
func IndexedFilename(index, count int, filename string) string {
	width := len(strconv.Itoa(count))
	return fmt.Sprintf("%0*d_%s", width, index, filename)
}

func sleep(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return nil
	}
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-t.C:
		return nil
	}
}
