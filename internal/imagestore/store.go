// Package imagestore persists uploaded profile images under generated names
// and serves them back by name.
package imagestore

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"image"
	"io"
	"math/rand/v2"
	"path"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	// Decoders registered for image.DecodeConfig.
	_ "image/gif"
	_ "image/jpeg"
	_ "image/png"

	_ "golang.org/x/image/bmp"
	_ "golang.org/x/image/tiff"
	_ "golang.org/x/image/webp"
)

// PathPrefix is the URL prefix stored images are served under.
const PathPrefix = "/uploads/"

var (
	ErrNotFound    = errors.New("image not found")
	ErrNotAnImage  = errors.New("file is not a supported image")
	ErrInvalidName = errors.New("invalid image name")
)

// Info describes a stored image.
type Info struct {
	Name        string
	Size        int64
	ContentType string
	ModTime     time.Time
}

// Store is implemented by every image backend.
type Store interface {
	// Save validates and persists the content, returning its public path.
	Save(ctx context.Context, originalName string, r io.Reader) (string, error)
	// Open returns the stored image by name. The caller closes the reader.
	Open(ctx context.Context, name string) (io.ReadCloser, Info, error)
	// Delete removes the image behind a public path returned by Save.
	Delete(ctx context.Context, publicPath string) error
}

var contentTypes = map[string]string{
	"jpeg": "image/jpeg",
	"png":  "image/png",
	"gif":  "image/gif",
	"webp": "image/webp",
	"bmp":  "image/bmp",
	"tiff": "image/tiff",
}

var formatExts = map[string]string{
	"jpeg": ".jpg",
	"png":  ".png",
	"gif":  ".gif",
	"webp": ".webp",
	"bmp":  ".bmp",
	"tiff": ".tiff",
}

// Sniff reads the image header and returns the detected format together with
// a reader that still yields the full content.
func Sniff(r io.Reader) (string, io.Reader, error) {
	var head bytes.Buffer

	_, format, err := image.DecodeConfig(io.TeeReader(r, &head))
	if err != nil {
		return "", nil, fmt.Errorf("%w: %v", ErrNotAnImage, err)
	}

	return format, io.MultiReader(&head, r), nil
}

// NewName builds "<unix-millis>-<random><ext>".
func NewName(originalName, format string, now time.Time) string {
	ext := strings.ToLower(filepath.Ext(originalName))
	if ext == "" || !validExt(ext) {
		ext = formatExts[format]
	}

	return strconv.FormatInt(now.UnixMilli(), 10) + "-" + strconv.Itoa(rand.IntN(1e9)) + ext
}

func validExt(ext string) bool {
	for _, r := range ext[1:] {
		if (r < 'a' || r > 'z') && (r < '0' || r > '9') {
			return false
		}
	}
	return len(ext) > 1 && len(ext) <= 8
}

// PublicPath maps a stored name to the path recorded on the user.
func PublicPath(name string) string {
	return PathPrefix + name
}

// NameFromPath is the inverse of PublicPath.
func NameFromPath(publicPath string) (string, error) {
	if !strings.HasPrefix(publicPath, PathPrefix) {
		return "", ErrInvalidName
	}
	name := strings.TrimPrefix(publicPath, PathPrefix)
	if err := CheckName(name); err != nil {
		return "", err
	}
	return name, nil
}

// CheckName rejects anything that is not a single plain path element.
func CheckName(name string) error {
	if name == "" || name != path.Base(name) || strings.ContainsAny(name, `/\`) || strings.HasPrefix(name, ".") {
		return ErrInvalidName
	}
	return nil
}

// ContentTypeFor guesses the content type from the stored name.
func ContentTypeFor(name string) string {
	switch strings.ToLower(filepath.Ext(name)) {
	case ".jpg", ".jpeg":
		return contentTypes["jpeg"]
	case ".png":
		return contentTypes["png"]
	case ".gif":
		return contentTypes["gif"]
	case ".webp":
		return contentTypes["webp"]
	case ".bmp":
		return contentTypes["bmp"]
	case ".tif", ".tiff":
		return contentTypes["tiff"]
	default:
		return "application/octet-stream"
	}
}
