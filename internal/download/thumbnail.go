package download

import (
	"bytes"
	"fmt"
	"image"
	_ "image/gif"
	"image/jpeg"
	_ "image/png"
	"path"
	"strings"

	"golang.org/x/image/draw"
	_ "golang.org/x/image/webp"
)

const (
	LargeThumbnailSize = 1200
	SmallThumbnailSize = 300
)

var videoExtensions = map[string]bool{
	"mp4": true, "webm": true, "mkv": true, "avi": true,
	"flv": true, "mov": true, "wmv": true, "m4v": true,
}

// IsVideo reports whether filename has a video extension.
func IsVideo(filename string) bool {
	ext := strings.TrimPrefix(strings.ToLower(path.Ext(filename)), ".")
	return videoExtensions[ext]
}

// ThumbnailKey is where the thumbnail of subdir/filename at size is stored.
func ThumbnailKey(subdir, filename string, size int) string {
	stem := strings.TrimSuffix(filename, path.Ext(filename))
	return path.Join("thumb", subdir, fmt.Sprintf("%s.%d.jpg", stem, size))
}

// Thumbnailer renders JPEG thumbnails that fit in a size x size box.
type Thumbnailer struct {
	Quality int
}

func NewThumbnailer() *Thumbnailer {
	return &Thumbnailer{Quality: 85}
}

// Decode parses any registered image format.
func (t *Thumbnailer) Decode(data []byte) (image.Image, error) {
	img, _, err := image.Decode(bytes.NewReader(data))
	if err != nil {
		return nil, fmt.Errorf("decode image: %w", err)
	}
	return img, nil
}

// Render scales img down to fit size. Smaller images are not enlarged.
func (t *Thumbnailer) Render(img image.Image, size int) ([]byte, error) {
	b := img.Bounds()
	w, h := fit(b.Dx(), b.Dy(), size)
	dst := image.NewRGBA(image.Rect(0, 0, w, h))
	draw.CatmullRom.Scale(dst, dst.Bounds(), img, b, draw.Src, nil)

	var buf bytes.Buffer
	if err := jpeg.Encode(&buf, dst, &jpeg.Options{Quality: t.Quality}); err != nil {
		return nil, fmt.Errorf("encode thumbnail: %w", err)
	}
	return buf.Bytes(), nil
}

func fit(w, h, size int) (int, int) {
	if w <= size && h <= size {
		return max(w, 1), max(h, 1)
	}
	if w >= h {
		return size, max(h*size/w, 1)
	}
	return max(w*size/h, 1), size
}
