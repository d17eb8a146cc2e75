// Package avatar validates uploaded profile pictures and normalizes them to
// a fixed-size PNG.
package avatar

import (
	"bytes"
	"errors"
	"fmt"
	"image"
	"image/png"
	"path/filepath"
	"strings"

	// Register decoders used by image.Decode.
	_ "image/jpeg"

	"golang.org/x/image/draw"
)

const (
	// Size is the edge length of a stored avatar.
	Size = 250
	// DefaultMaxBytes is the default upload limit.
	DefaultMaxBytes = 1_000_000
	// MaxPixels caps the decoded frame. A small compressed file can declare
	// huge dimensions, so the header is checked before decoding.
	MaxPixels = 4096 * 4096
)

var (
	ErrUnsupportedType = errors.New("avatar: please upload an image (jpg, jpeg or png)")
	ErrTooLarge        = errors.New("avatar: file too large")
	ErrUndecodable     = errors.New("avatar: file is not a readable image")
)

var allowedExt = map[string]bool{".jpg": true, ".jpeg": true, ".png": true}

// Normalizer checks uploads against the type/size policy and resizes them.
type Normalizer struct {
	maxBytes int64
}

// NewNormalizer returns a Normalizer accepting files up to maxBytes.
// Zero selects DefaultMaxBytes.
func NewNormalizer(maxBytes int64) *Normalizer {
	if maxBytes <= 0 {
		maxBytes = DefaultMaxBytes
	}
	return &Normalizer{maxBytes: maxBytes}
}

// MaxBytes is the largest accepted upload.
func (n *Normalizer) MaxBytes() int64 { return n.maxBytes }

// Check validates the declared filename and the size of an upload.
func (n *Normalizer) Check(filename string, size int64) error {
	if !allowedExt[strings.ToLower(filepath.Ext(filename))] {
		return ErrUnsupportedType
	}
	if size > n.maxBytes {
		return ErrTooLarge
	}
	return nil
}

// Normalize validates the upload and returns it as a Size×Size PNG.
//
// The image is cropped to its centered square first, then scaled, so the
// result fills the frame without distortion.
func (n *Normalizer) Normalize(filename string, data []byte) ([]byte, error) {
	if err := n.Check(filename, int64(len(data))); err != nil {
		return nil, err
	}

	cfg, _, err := image.DecodeConfig(bytes.NewReader(data))
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrUndecodable, err)
	}
	if cfg.Width <= 0 || cfg.Height <= 0 {
		return nil, ErrUndecodable
	}
	if int64(cfg.Width)*int64(cfg.Height) > MaxPixels {
		return nil, fmt.Errorf("%w: %dx%d exceeds the pixel limit", ErrTooLarge, cfg.Width, cfg.Height)
	}

	src, _, err := image.Decode(bytes.NewReader(data))
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrUndecodable, err)
	}

	dst := image.NewRGBA(image.Rect(0, 0, Size, Size))
	draw.CatmullRom.Scale(dst, dst.Bounds(), src, centerSquare(src.Bounds()), draw.Src, nil)

	var buf bytes.Buffer
	if err := png.Encode(&buf, dst); err != nil {
		return nil, fmt.Errorf("avatar: encoding png: %w", err)
	}
	return buf.Bytes(), nil
}

// centerSquare returns the largest square centered in r.
func centerSquare(r image.Rectangle) image.Rectangle {
	w, h := r.Dx(), r.Dy()
	if w == h {
		return r
	}
	if w > h {
		off := (w - h) / 2
		return image.Rect(r.Min.X+off, r.Min.Y, r.Min.X+off+h, r.Max.Y)
	}
	off := (h - w) / 2
	return image.Rect(r.Min.X, r.Min.Y+off, r.Max.X, r.Min.Y+off+w)
}
