package download

import (
	"context"
	"fmt"
	"image"
	"io"
	"net/http"
	"net/url"
	"path"
	"strings"

	log "github.com/sirupsen/logrus"
	"gocloud.dev/blob"
	"gocloud.dev/gcerrors"

	"bottle/internal/models"
)

// Task is one file to fetch into the media bucket.
type Task struct {
	URL      string
	Subdir   string
	Filename string
	// RecordID is the images row the result is written back to.
	RecordID int64
}

// Key is the bucket key of the downloaded file.
func (t Task) Key() string {
	return path.Join(t.Subdir, t.Filename)
}

// Fetcher downloads a task and describes the stored file.
type Fetcher interface {
	Download(ctx context.Context, task Task, overwrite bool) (*models.LocalImage, error)
}

// Downloader stores remote files in a blob bucket and renders thumbnails
// next to them.
type Downloader struct {
	bucket    *blob.Bucket
	client    *http.Client
	thumbs    *Thumbnailer
	userAgent string
}

var _ Fetcher = (*Downloader)(nil)

func NewDownloader(bucket *blob.Bucket, client *http.Client, userAgent string) *Downloader {
	if client == nil {
		client = http.DefaultClient
	}
	return &Downloader{bucket: bucket, client: client, thumbs: NewThumbnailer(), userAgent: userAgent}
}

// Download fetches task into the bucket. Without overwrite an existing file
// is described without touching the network.
func (d *Downloader) Download(ctx context.Context, task Task, overwrite bool) (*models.LocalImage, error) {
	u, err := url.Parse(task.URL)
	if err != nil || u.Scheme == "" || u.Host == "" {
		return nil, fmt.Errorf("%w: %q", models.ErrInvalidURL, task.URL)
	}
	if task.Filename == "" {
		task.Filename = path.Base(u.Path)
	}
	key := task.Key()

	if !overwrite {
		exists, err := d.bucket.Exists(ctx, key)
		if err != nil {
			return nil, fmt.Errorf("%w: stat %s: %v", models.ErrIO, key, err)
		}
		if exists {
			return d.describe(ctx, task)
		}
	}

	resp, err := d.get(ctx, u)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	data, err := d.store(ctx, key, resp)
	if err != nil {
		return nil, err
	}

	local := &models.LocalImage{Filename: task.Filename, Path: key, Size: int64(len(data))}
	if IsVideo(task.Filename) {
		return local, nil
	}
	if err := d.thumbnail(ctx, task, data, local); err != nil {
		log.WithField("key", key).Warnf("Thumbnail skipped: %v", err)
	}
	return local, nil
}

func (d *Downloader) get(ctx context.Context, u *url.URL) (*http.Response, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, u.String(), nil)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", models.ErrInvalidURL, err)
	}
	if d.userAgent != "" {
		req.Header.Set("User-Agent", d.userAgent)
	}
	// pximg rejects hotlinks without a pixiv referer.
	if strings.HasSuffix(u.Hostname(), "pximg.net") {
		req.Header.Set("Referer", "https://www.pixiv.net/")
	}

	resp, err := d.client.Do(req)
	if err != nil {
		if ctx.Err() != nil {
			return nil, ctx.Err()
		}
		return nil, fmt.Errorf("%w: GET %s: %v", models.ErrNetwork, u.Redacted(), err)
	}
	if err := classifyStatus(resp.StatusCode); err != nil {
		resp.Body.Close()
		return nil, fmt.Errorf("GET %s: %w", u.Redacted(), err)
	}
	return resp, nil
}

// store writes the body to key. A short or empty body aborts the write so
// no partial file is left behind.
func (d *Downloader) store(ctx context.Context, key string, resp *http.Response) ([]byte, error) {
	data, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("%w: read %s: %v", models.ErrIncompleteTransfer, key, err)
	}
	if len(data) == 0 {
		return nil, fmt.Errorf("%w: empty body for %s", models.ErrIncompleteTransfer, key)
	}
	if resp.ContentLength >= 0 && int64(len(data)) != resp.ContentLength {
		return nil, fmt.Errorf("%w: %s got %d of %d bytes", models.ErrIncompleteTransfer, key, len(data), resp.ContentLength)
	}

	opts := &blob.WriterOptions{ContentType: resp.Header.Get("Content-Type")}
	if err := d.bucket.WriteAll(ctx, key, data, opts); err != nil {
		return nil, fmt.Errorf("%w: write %s: %v", models.ErrIO, key, err)
	}
	return data, nil
}

func (d *Downloader) thumbnail(ctx context.Context, task Task, data []byte, local *models.LocalImage) error {
	img, err := d.thumbs.Decode(data)
	if err != nil {
		return err
	}
	b := img.Bounds()
	w, h := b.Dx(), b.Dy()
	local.Width, local.Height = &w, &h

	for _, size := range []int{LargeThumbnailSize, SmallThumbnailSize} {
		out, err := d.thumbs.Render(img, size)
		if err != nil {
			return err
		}
		key := ThumbnailKey(task.Subdir, task.Filename, size)
		if err := d.bucket.WriteAll(ctx, key, out, &blob.WriterOptions{ContentType: "image/jpeg"}); err != nil {
			return fmt.Errorf("%w: write %s: %v", models.ErrIO, key, err)
		}
		setThumbnail(local, size, key)
	}
	return nil
}

// describe reads back what an earlier download left in the bucket.
func (d *Downloader) describe(ctx context.Context, task Task) (*models.LocalImage, error) {
	key := task.Key()
	attrs, err := d.bucket.Attributes(ctx, key)
	if err != nil {
		if gcerrors.Code(err) == gcerrors.NotFound {
			return nil, fmt.Errorf("%w: %s", models.ErrNotFound, key)
		}
		return nil, fmt.Errorf("%w: stat %s: %v", models.ErrIO, key, err)
	}
	local := &models.LocalImage{Filename: task.Filename, Path: key, Size: attrs.Size}
	if IsVideo(task.Filename) {
		return local, nil
	}

	if cfg, err := d.decodeConfig(ctx, key); err == nil {
		local.Width, local.Height = &cfg.Width, &cfg.Height
	}
	for _, size := range []int{LargeThumbnailSize, SmallThumbnailSize} {
		thumb := ThumbnailKey(task.Subdir, task.Filename, size)
		if ok, err := d.bucket.Exists(ctx, thumb); err == nil && ok {
			setThumbnail(local, size, thumb)
		}
	}
	return local, nil
}

func (d *Downloader) decodeConfig(ctx context.Context, key string) (image.Config, error) {
	r, err := d.bucket.NewReader(ctx, key, nil)
	if err != nil {
		return image.Config{}, err
	}
	defer r.Close()
	cfg, _, err := image.DecodeConfig(r)
	return cfg, err
}

func setThumbnail(local *models.LocalImage, size int, key string) {
	k := key
	if size == SmallThumbnailSize {
		local.SmallThumbnailPath = &k
	} else {
		local.ThumbnailPath = &k
	}
}

func classifyStatus(status int) error {
	switch {
	case status >= 200 && status < 300:
		return nil
	case status == http.StatusTooManyRequests:
		return fmt.Errorf("%w: status %d", models.ErrRateLimited, status)
	case status == http.StatusUnauthorized || status == http.StatusForbidden:
		return fmt.Errorf("%w: status %d", models.ErrAuthentication, status)
	case status == http.StatusNotFound || status == http.StatusGone:
		return fmt.Errorf("%w: status %d", models.ErrNotFound, status)
	case status >= 500:
		return fmt.Errorf("%w: status %d", models.ErrNetwork, status)
	default:
		return fmt.Errorf("%w: unexpected status %d", models.ErrMalformed, status)
	}
}
