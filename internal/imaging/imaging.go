// Package imaging validates uploaded images and re-encodes them as bounded
// WebP before they are stored.
package imaging

import (
	"bytes"
	"errors"
	"fmt"
	"image"
	_ "image/gif" // Register GIF decoder
	_ "image/jpeg"
	_ "image/png"
	"mime"
	"net/http"
	"path"
	"strings"

	"github.com/chai2010/webp"
	xdraw "golang.org/x/image/draw"
	_ "golang.org/x/image/webp" // Register WebP decoder
)

const (
	DefaultMaxDimension = 1080
	WebPQuality         = 80
	ContentType         = "image/webp"
)

var (
	ErrEmpty       = errors.New("no file uploaded")
	ErrTooLarge    = errors.New("file too large")
	ErrInvalidType = errors.New("invalid image type")
	ErrUndecodable = errors.New("invalid image file")
)

// Options bound the accepted input and the produced output.
type Options struct {
	MaxDimension int
	MaxBytes     int64
}

// Result is a normalized image ready for upload.
type Result struct {
	Data   []byte
	Width  int
	Height int
}

// Normalize decodes a JPEG, PNG, GIF or WebP upload, shrinks it to fit within
// MaxDimension on both axes and re-encodes it as WebP.
func Normalize(content []byte, opts Options) (*Result, error) {
	if len(content) == 0 {
		return nil, ErrEmpty
	}
	if opts.MaxBytes > 0 && int64(len(content)) > opts.MaxBytes {
		return nil, fmt.Errorf("%w (max %dMB)", ErrTooLarge, opts.MaxBytes/(1024*1024))
	}
	if !isAllowedImageMIME(http.DetectContentType(content)) {
		return nil, ErrInvalidType
	}

	decoded, format, err := image.Decode(bytes.NewReader(content))
	if err != nil {
		return nil, ErrUndecodable
	}
	if !isSupportedDecodedFormat(format) {
		return nil, ErrInvalidType
	}

	maxDim := opts.MaxDimension
	if maxDim <= 0 {
		maxDim = DefaultMaxDimension
	}
	resized := resizeToFit(decoded, maxDim, maxDim)

	buf := bytes.NewBuffer(nil)
	if err := webp.Encode(buf, resized, &webp.Options{Quality: WebPQuality}); err != nil {
		return nil, fmt.Errorf("encode webp: %w", err)
	}

	b := resized.Bounds()
	return &Result{Data: buf.Bytes(), Width: b.Dx(), Height: b.Dy()}, nil
}

// ObjectName turns a client-supplied file name into a safe object name with
// a .webp extension.
func ObjectName(filename string) string {
	base := path.Base(strings.ReplaceAll(filename, "\\", "/"))
	base = strings.TrimSuffix(base, path.Ext(base))

	var b strings.Builder
	for _, r := range base {
		switch {
		case r >= 'a' && r <= 'z', r >= 'A' && r <= 'Z', r >= '0' && r <= '9', r == '-', r == '_':
			b.WriteRune(r)
		case r == ' ' || r == '.':
			b.WriteRune('_')
		}
	}
	name := b.String()
	if len(name) > 64 {
		name = name[:64]
	}
	if name == "" {
		name = "image"
	}
	return name + ".webp"
}

func resizeToFit(src image.Image, maxWidth, maxHeight int) image.Image {
	bounds := src.Bounds()
	w := bounds.Dx()
	h := bounds.Dy()
	if w <= 0 || h <= 0 {
		return src
	}
	if w <= maxWidth && h <= maxHeight {
		return src
	}

	scale := min(float64(maxWidth)/float64(w), float64(maxHeight)/float64(h))
	newW := max(int(float64(w)*scale), 1)
	newH := max(int(float64(h)*scale), 1)

	dst := image.NewRGBA(image.Rect(0, 0, newW, newH))
	xdraw.CatmullRom.Scale(dst, dst.Bounds(), src, bounds, xdraw.Over, nil)
	return dst
}

func isAllowedImageMIME(contentType string) bool {
	switch normalizeContentType(contentType) {
	case "image/jpeg", "image/jpg", "image/png", "image/gif", "image/webp":
		return true
	default:
		return false
	}
}

func normalizeContentType(contentType string) string {
	if contentType == "" {
		return ""
	}
	mediaType, _, err := mime.ParseMediaType(contentType)
	if err != nil {
		return strings.ToLower(strings.TrimSpace(contentType))
	}
	return strings.ToLower(strings.TrimSpace(mediaType))
}

func isSupportedDecodedFormat(format string) bool {
	switch strings.ToLower(strings.TrimSpace(format)) {
	case "jpeg", "jpg", "png", "gif", "webp":
		return true
	default:
		return false
	}
}
