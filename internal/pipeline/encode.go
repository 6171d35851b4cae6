package pipeline

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"image"
	"image/jpeg"
	"image/png"
	"io"
	"math"

	webp "github.com/chai2010/webp"
	"github.com/gen2brain/avif"
	"go.uber.org/zap"
)

// DefaultAVIFSpeed is the standard speed used for AVIF encoding.
const DefaultAVIFSpeed = 6

// Encoder serializes an output canvas.
type Encoder struct {
	// AVIFSpeed is the AVIF encoder speed (0-10).
	AVIFSpeed int
}

// Encode serializes img as format. quality in [0,1] applies to lossy formats.
// A failing encoder or an empty result is reported as ErrEncodeFailure.
func (e Encoder) Encode(ctx context.Context, img image.Image, format Format, quality float64) ([]byte, error) {
	if img == nil || img.Bounds().Empty() {
		return nil, fmt.Errorf("%w: empty canvas", ErrEncodeFailure)
	}
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	q := qualityPercent(quality)
	var buf bytes.Buffer
	var err error
	switch format {
	case FormatJPEG:
		err = EncodeJPEG(img, &buf, q)
	case FormatPNG:
		err = EncodePNG(img, &buf)
	case FormatWebP:
		err = EncodeWebP(img, &buf, q)
	case FormatAVIF:
		speed := e.AVIFSpeed
		if speed <= 0 {
			speed = DefaultAVIFSpeed
		}
		err = EncodeAVIF(img, &buf, q, speed)
	default:
		return nil, fmt.Errorf("%w: %w: %q", ErrEncodeFailure, ErrInvalidFormat, format)
	}
	if err != nil {
		return nil, fmt.Errorf("%w: %s: %w", ErrEncodeFailure, format, err)
	}
	if buf.Len() == 0 {
		return nil, fmt.Errorf("%w: %s encoder produced no data", ErrEncodeFailure, format)
	}
	return buf.Bytes(), nil
}

// qualityPercent maps a [0,1] quality onto the 0-100 scale the encoders use.
func qualityPercent(q float64) int {
	p := int(math.Round(q * 100))
	if p < 0 {
		p = 0
	}
	if p > 100 {
		p = 100
	}
	return p
}

// EncodeJPEG encodes img to JPEG written to w with given quality (0-100).
func EncodeJPEG(img image.Image, w io.Writer, quality int) error {
	if err := checkEncodeArgs(img, w); err != nil {
		return err
	}
	if quality < 1 {
		quality = 1
	}
	c := &countingWriter{w: w}
	if err := jpeg.Encode(c, img, &jpeg.Options{Quality: quality}); err != nil {
		return err
	}
	zap.L().Debug("jpeg encoded", zap.Int64("size", c.n), zap.Int("quality", quality))
	return nil
}

// EncodePNG encodes img losslessly to PNG written to w.
func EncodePNG(img image.Image, w io.Writer) error {
	if err := checkEncodeArgs(img, w); err != nil {
		return err
	}
	c := &countingWriter{w: w}
	enc := png.Encoder{CompressionLevel: png.BestCompression}
	if err := enc.Encode(c, img); err != nil {
		return err
	}
	zap.L().Debug("png encoded", zap.Int64("size", c.n))
	return nil
}

// EncodeWebP encodes img to lossy WebP written to w with given quality (0-100).
func EncodeWebP(img image.Image, w io.Writer, quality int) error {
	if err := checkEncodeArgs(img, w); err != nil {
		return err
	}
	c := &countingWriter{w: w}
	if err := webp.Encode(c, img, &webp.Options{Quality: float32(quality)}); err != nil {
		return err
	}
	zap.L().Debug("webp encoded", zap.Int64("size", c.n), zap.Int("quality", quality))
	return nil
}

// EncodeAVIF encodes img to AVIF written to w with given quality (0-100) and speed (0-10).
func EncodeAVIF(img image.Image, w io.Writer, quality, speed int) error {
	if err := checkEncodeArgs(img, w); err != nil {
		return err
	}
	if speed > 10 {
		speed = 10
	}
	c := &countingWriter{w: w}
	if err := avif.Encode(c, img, avif.Options{Quality: quality, QualityAlpha: quality, Speed: speed}); err != nil {
		return err
	}
	zap.L().Debug("avif encoded", zap.Int64("size", c.n), zap.Int("quality", quality), zap.Int("speed", speed))
	return nil
}

func checkEncodeArgs(img image.Image, w io.Writer) error {
	if img == nil {
		return errors.New("nil image")
	}
	if w == nil {
		return errors.New("nil writer")
	}
	return nil
}

// countingWriter wraps an io.Writer and counts bytes written.
type countingWriter struct {
	w io.Writer
	n int64
}

func (c *countingWriter) Write(p []byte) (int, error) {
	m, err := c.w.Write(p)
	c.n += int64(m)
	return m, err
}
