package media

import (
	"context"
	"errors"
	"fmt"
	"io"
	"mime"
	"mime/multipart"
	"net/http"
	"path/filepath"
	"strings"

	"golang.org/x/sync/errgroup"

	"promptmaster-nano/internal/model"
)

var (
	ErrNoMedia         = errors.New("no media provided")
	ErrTooMany         = errors.New("too many media items")
	ErrTooLarge        = errors.New("media item too large")
	ErrUnsupportedType = errors.New("unsupported media type")
)

type Item struct {
	Name     string
	MimeType string
	Data     []byte
}

func (i Item) IsVideo() bool {
	return strings.HasPrefix(i.MimeType, "video/")
}

type Limits struct {
	MaxItems int
	MaxBytes int64
}

func (l Limits) Check(items []Item) error {
	if len(items) == 0 {
		return ErrNoMedia
	}
	if l.MaxItems > 0 && len(items) > l.MaxItems {
		return fmt.Errorf("%w: %d > %d", ErrTooMany, len(items), l.MaxItems)
	}
	for _, it := range items {
		if l.MaxBytes > 0 && int64(len(it.Data)) > l.MaxBytes {
			return fmt.Errorf("%w: %s", ErrTooLarge, it.Name)
		}
		if err := Validate(it); err != nil {
			return err
		}
	}
	return nil
}

func Validate(item Item) error {
	if len(item.Data) == 0 {
		return fmt.Errorf("%w: %s is empty", ErrNoMedia, item.Name)
	}
	if strings.HasPrefix(item.MimeType, "image/") || strings.HasPrefix(item.MimeType, "video/") {
		return nil
	}
	return fmt.Errorf("%w: %s", ErrUnsupportedType, item.MimeType)
}

func HasVideo(items []Item) bool {
	for _, it := range items {
		if it.IsVideo() {
			return true
		}
	}
	return false
}

// Kind is the media type stored on a history record.
func Kind(items []Item) string {
	switch len(items) {
	case 0:
		return ""
	case 1:
		return items[0].MimeType
	default:
		return model.MediaTypeFusion
	}
}

// ResolveMimeType prefers the declared type, then content sniffing, then the
// file extension.
func ResolveMimeType(declared, name string, data []byte) string {
	mimeType := stripParams(declared)
	if mimeType == "" || mimeType == "application/octet-stream" {
		mimeType = stripParams(http.DetectContentType(data))
	}
	if mimeType == "" || mimeType == "application/octet-stream" || mimeType == "text/plain" {
		if byExt := stripParams(mime.TypeByExtension(strings.ToLower(filepath.Ext(name)))); byExt != "" {
			mimeType = byExt
		}
	}
	if mimeType == "" || mimeType == "application/octet-stream" {
		mimeType = "image/jpeg"
	}
	return mimeType
}

// ReadAll loads uploaded files concurrently, keeping their order.
func ReadAll(ctx context.Context, files []*multipart.FileHeader, limits Limits) ([]Item, error) {
	if len(files) == 0 {
		return nil, ErrNoMedia
	}
	if limits.MaxItems > 0 && len(files) > limits.MaxItems {
		return nil, fmt.Errorf("%w: %d > %d", ErrTooMany, len(files), limits.MaxItems)
	}

	items := make([]Item, len(files))
	eg, egCtx := errgroup.WithContext(ctx)
	for i, fh := range files {
		eg.Go(func() error {
			if err := egCtx.Err(); err != nil {
				return err
			}
			item, err := readOne(fh, limits.MaxBytes)
			if err != nil {
				return err
			}
			items[i] = item
			return nil
		})
	}
	if err := eg.Wait(); err != nil {
		return nil, err
	}

	if err := limits.Check(items); err != nil {
		return nil, err
	}
	return items, nil
}

func readOne(fh *multipart.FileHeader, maxBytes int64) (Item, error) {
	if maxBytes > 0 && fh.Size > maxBytes {
		return Item{}, fmt.Errorf("%w: %s", ErrTooLarge, fh.Filename)
	}

	f, err := fh.Open()
	if err != nil {
		return Item{}, fmt.Errorf("open %s: %w", fh.Filename, err)
	}
	defer f.Close()

	var r io.Reader = f
	if maxBytes > 0 {
		r = io.LimitReader(f, maxBytes+1)
	}
	data, err := io.ReadAll(r)
	if err != nil {
		return Item{}, fmt.Errorf("read %s: %w", fh.Filename, err)
	}
	if maxBytes > 0 && int64(len(data)) > maxBytes {
		return Item{}, fmt.Errorf("%w: %s", ErrTooLarge, fh.Filename)
	}

	return Item{
		Name:     fh.Filename,
		MimeType: ResolveMimeType(fh.Header.Get("Content-Type"), fh.Filename, data),
		Data:     data,
	}, nil
}

func stripParams(mimeType string) string {
	mimeType = strings.TrimSpace(mimeType)
	if idx := strings.IndexByte(mimeType, ';'); idx >= 0 {
		mimeType = strings.TrimSpace(mimeType[:idx])
	}
	return strings.ToLower(mimeType)
}
