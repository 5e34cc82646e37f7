// Package upload stores event images on local disk together with a
// fixed-width thumbnail.
package upload

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"os"
	"path/filepath"
	"strings"

	"github.com/disintegration/imaging"
	"github.com/google/uuid"
	"github.com/rs/zerolog"
)

const (
	// MaxSize is the largest accepted upload in bytes.
	MaxSize = 5 << 20
	// ThumbWidth is the width of generated thumbnails in pixels.
	ThumbWidth = 400

	// URLPrefix is where the upload directory is served.
	URLPrefix = "/uploads/"

	eventsDir = "events"
	thumbDir  = "thumb"
)

var (
	ErrTooLarge        = errors.New("image is larger than 5 MiB")
	ErrUnsupportedType = errors.New("image must be JPEG, PNG or GIF")
	ErrUndecodable     = errors.New("image could not be decoded")
)

var allowedMIMEs = map[string]bool{
	"image/jpeg": true,
	"image/png":  true,
	"image/gif":  true,
}

// Store writes images below a root directory.
type Store struct {
	root string
	log  zerolog.Logger
}

// NewStore returns a Store rooted at dir.
func NewStore(dir string, log zerolog.Logger) *Store {
	return &Store{root: dir, log: log.With().Str("component", "upload").Logger()}
}

// Root returns the directory served under URLPrefix.
func (s *Store) Root() string { return s.root }

// Save validates r, re-encodes it as JPEG under events/ and writes a
// thumbnail under events/thumb/. It returns the public path of the image.
func (s *Store) Save(ctx context.Context, r io.Reader) (string, error) {
	if err := ctx.Err(); err != nil {
		return "", err
	}

	buf, err := io.ReadAll(io.LimitReader(r, MaxSize+1))
	if err != nil {
		return "", fmt.Errorf("read upload: %w", err)
	}
	if len(buf) > MaxSize {
		return "", ErrTooLarge
	}

	// The client's Content-Type header is ignored.
	mimeType := http.DetectContentType(buf)
	if !allowedMIMEs[mimeType] {
		return "", fmt.Errorf("%w: got %s", ErrUnsupportedType, mimeType)
	}

	img, err := imaging.Decode(bytes.NewReader(buf), imaging.AutoOrientation(true))
	if err != nil {
		return "", fmt.Errorf("%w: %v", ErrUndecodable, err)
	}

	dir := filepath.Join(s.root, eventsDir)
	thumbs := filepath.Join(dir, thumbDir)
	if err := os.MkdirAll(thumbs, 0o755); err != nil {
		return "", fmt.Errorf("mkdir %s: %w", thumbs, err)
	}

	name := uuid.NewString() + ".jpg"
	full := filepath.Join(dir, name)
	if err := imaging.Save(img, full, imaging.JPEGQuality(90)); err != nil {
		return "", fmt.Errorf("save image: %w", err)
	}

	thumb := img
	if img.Bounds().Dx() > ThumbWidth {
		thumb = imaging.Resize(img, ThumbWidth, 0, imaging.Lanczos)
	}
	if err := imaging.Save(thumb, filepath.Join(thumbs, name), imaging.JPEGQuality(85)); err != nil {
		_ = os.Remove(full)
		return "", fmt.Errorf("save thumbnail: %w", err)
	}

	s.log.Debug().Str("file", name).Str("mime", mimeType).Int("bytes", len(buf)).Msg("image stored")
	return URLPrefix + eventsDir + "/" + name, nil
}

// Remove deletes an image previously returned by Save and its thumbnail.
// Missing files are not an error.
func (s *Store) Remove(path string) error {
	rel := strings.TrimPrefix(path, URLPrefix+eventsDir+"/")
	if rel == path || rel == "" || strings.ContainsAny(rel, `/\`) || strings.Contains(rel, "..") {
		return fmt.Errorf("not an upload path: %q", path)
	}
	dir := filepath.Join(s.root, eventsDir)
	for _, p := range []string{filepath.Join(dir, rel), filepath.Join(dir, thumbDir, rel)} {
		if err := os.Remove(p); err != nil && !errors.Is(err, os.ErrNotExist) {
			return fmt.Errorf("remove %s: %w", p, err)
		}
	}
	return nil
}

// ThumbPath returns the public path of the thumbnail for an image path.
func ThumbPath(path string) string {
	prefix := URLPrefix + eventsDir + "/"
	if !strings.HasPrefix(path, prefix) {
		return path
	}
	return prefix + thumbDir + "/" + strings.TrimPrefix(path, prefix)
}
