package pipeline

import (
	"bytes"
	"context"
	"fmt"
	"image"
	_ "image/gif"
	"image/png"
	"strings"

	webp "github.com/chai2010/webp"
	"github.com/gabriel-vasile/mimetype"
	"github.com/gen2brain/avif"
	"github.com/gen2brain/jpegn"
	"go.uber.org/zap"
	_ "golang.org/x/image/bmp"
	_ "golang.org/x/image/tiff"
)

// DefaultMaxUploadBytes caps the size of an accepted upload.
const DefaultMaxUploadBytes = 25 << 20

// Decoder turns uploaded bytes into a Raster.
type Decoder struct {
	MaxBytes     int64
	MaxDimension int
}

// NewDecoder returns a Decoder with the given limits; zero values select defaults.
func NewDecoder(maxBytes int64, maxDimension int) *Decoder {
	if maxBytes <= 0 {
		maxBytes = DefaultMaxUploadBytes
	}
	if maxDimension <= 0 {
		maxDimension = MaxDimension
	}
	return &Decoder{MaxBytes: maxBytes, MaxDimension: maxDimension}
}

// IsImageType reports whether a declared MIME type belongs to the image category.
func IsImageType(contentType string) bool {
	return strings.HasPrefix(strings.ToLower(strings.TrimSpace(contentType)), "image/")
}

// DetectFormat returns the sniffed MIME type of data.
func DetectFormat(data []byte) string {
	return mimetype.Detect(data).String()
}

// Decode validates the declared type and size of up, then decodes it. It first
// tries an orientation-aware decode; if that fails it falls back to the plain
// registered decoders. The Raster reports Oriented=false when EXIF metadata is
// present but unreadable, or when the fallback skipped a non-trivial orientation.
//
// Errors: ErrInvalidInputType when the declared type is not an image (no decode
// is attempted), ErrTooLarge, ErrInvalidDimensions, or ErrDecodeFailure.
func (d *Decoder) Decode(ctx context.Context, up Upload) (*Raster, error) {
	if !IsImageType(up.ContentType) {
		return nil, fmt.Errorf("%w: declared type %q", ErrInvalidInputType, up.ContentType)
	}
	if int64(len(up.Data)) > d.MaxBytes {
		return nil, ErrTooLarge
	}
	if len(up.Data) == 0 {
		return nil, fmt.Errorf("%w: empty file", ErrDecodeFailure)
	}
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	ct := DetectFormat(up.Data)
	if !IsImageType(ct) {
		return nil, fmt.Errorf("%w: %w (%s)", ErrDecodeFailure, ErrNotAnImage, ct)
	}

	raster := &Raster{Name: up.Name, ContentType: ct, Oriented: true}
	orientation, err := ReadOrientation(up.Data)
	if err != nil {
		zap.L().Warn("orientation metadata unreadable, keeping stored pixel order",
			zap.String("name", up.Name),
			zap.String("content_type", ct),
			zap.Error(err),
		)
		raster.Oriented = false
	}
	raster.Orientation = orientation

	img, err := decodeOriented(up.Data, ct, raster.Orientation)
	if err != nil {
		zap.L().Warn("orientation-aware decode failed, falling back to plain decode",
			zap.String("name", up.Name),
			zap.String("content_type", ct),
			zap.Int("orientation", raster.Orientation),
			zap.Error(err),
		)
		var naiveErr error
		img, _, naiveErr = image.Decode(bytes.NewReader(up.Data))
		if naiveErr != nil {
			return nil, fmt.Errorf("%w: %w", ErrDecodeFailure, naiveErr)
		}
		raster.Oriented = raster.Oriented && raster.Orientation == 1
	}

	if err := ctx.Err(); err != nil {
		return nil, err
	}

	b := img.Bounds()
	if b.Dx() <= 0 || b.Dy() <= 0 || b.Dx() > d.MaxDimension || b.Dy() > d.MaxDimension {
		return nil, fmt.Errorf("%w: %dx%d", ErrInvalidDimensions, b.Dx(), b.Dy())
	}
	raster.Image = img
	return raster, nil
}

// decodeOriented decodes data and applies its EXIF orientation.
//
// jpegn silently hands variants it can't decode to image/jpeg, which skips
// AutoRotate, so orientation is applied here for every format instead.
func decodeOriented(data []byte, ct string, orientation int) (image.Image, error) {
	var img image.Image
	var err error

	switch {
	case strings.HasPrefix(ct, "image/jpeg"):
		img, err = jpegn.Decode(bytes.NewReader(data), &jpegn.Options{
			UpsampleMethod: jpegn.CatmullRom,
		})
	case strings.HasPrefix(ct, "image/png"):
		img, err = png.Decode(bytes.NewReader(data))
	case strings.HasPrefix(ct, "image/webp"):
		img, err = webp.Decode(bytes.NewReader(data))
	case strings.HasPrefix(ct, "image/avif"):
		img, err = avif.Decode(bytes.NewReader(data))
	default:
		img, _, err = image.Decode(bytes.NewReader(data))
	}
	if err != nil {
		return nil, err
	}
	return ApplyOrientation(img, orientation), nil
}
