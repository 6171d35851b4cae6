package pipeline

import (
	"bytes"
	"context"
	"fmt"
	"image"
	"image/color"
	"image/jpeg"
	"image/png"
	"testing"

	webp "github.com/chai2010/webp"
	"github.com/gen2brain/avif"
)

func smallTestImage() image.Image {
	img := image.NewRGBA(image.Rect(0, 0, 64, 48))
	for y := 0; y < 48; y++ {
		for x := 0; x < 64; x++ {
			img.Set(x, y, color.RGBA{uint8(x * 4), uint8(y * 5), 90, 255})
		}
	}
	return img
}

func TestEncode_AllFormatsDecodeBack(t *testing.T) {
	img := smallTestImage()
	decoders := map[Format]func([]byte) (image.Image, error){
		FormatJPEG: func(b []byte) (image.Image, error) { return jpeg.Decode(bytes.NewReader(b)) },
		FormatPNG:  func(b []byte) (image.Image, error) { return png.Decode(bytes.NewReader(b)) },
		FormatWebP: func(b []byte) (image.Image, error) { return webp.Decode(bytes.NewReader(b)) },
		FormatAVIF: func(b []byte) (image.Image, error) { return avif.Decode(bytes.NewReader(b)) },
	}
	for format, decode := range decoders {
		data, err := Encoder{}.Encode(context.Background(), img, format, DefaultQuality)
		if err != nil {
			t.Fatalf("%s: encode failed: %v", format, err)
		}
		out, err := decode(data)
		if err != nil {
			t.Fatalf("%s: decode failed: %v", format, err)
		}
		if out.Bounds().Dx() != 64 || out.Bounds().Dy() != 48 {
			t.Fatalf("%s: expected 64x48, got %v", format, out.Bounds())
		}
	}
}

func TestEncode_QualityAffectsSize(t *testing.T) {
	img := smallTestImage()
	for _, format := range []Format{FormatJPEG, FormatWebP} {
		low, err := Encoder{}.Encode(context.Background(), img, format, 0.1)
		if err != nil {
			t.Fatalf("%s: encode low quality failed: %v", format, err)
		}
		high, err := Encoder{}.Encode(context.Background(), img, format, 1.0)
		if err != nil {
			t.Fatalf("%s: encode high quality failed: %v", format, err)
		}
		if len(low) >= len(high) {
			t.Fatalf("%s: expected low quality size < high quality size, got %d >= %d", format, len(low), len(high))
		}
	}
}

func TestEncode_EmptyCanvas(t *testing.T) {
	empty := image.NewNRGBA(image.Rect(0, 0, 0, 0))
	_, err := Encoder{}.Encode(context.Background(), empty, FormatPNG, 1)
	if KindOf(err) != KindEncodeFailure {
		t.Fatalf("expected encode failure, got %v", err)
	}
	_, err = Encoder{}.Encode(context.Background(), nil, FormatPNG, 1)
	if KindOf(err) != KindEncodeFailure {
		t.Fatalf("expected encode failure for nil canvas, got %v", err)
	}
}

func TestEncode_UnknownFormat(t *testing.T) {
	_, err := Encoder{}.Encode(context.Background(), smallTestImage(), Format("gif"), 1)
	if KindOf(err) != KindEncodeFailure {
		t.Fatalf("expected encode failure, got %v", err)
	}
}

type badWriter struct{}

func (badWriter) Write(p []byte) (int, error) { return 0, fmt.Errorf("closed writer") }

func TestEncodeWebP_ClosedWriter(t *testing.T) {
	if err := EncodeWebP(smallTestImage(), badWriter{}, 80); err == nil {
		t.Fatalf("expected error when writing to closed writer")
	}
}

func TestEncodeJPEG_NilArgs(t *testing.T) {
	if err := EncodeJPEG(nil, &bytes.Buffer{}, 80); err == nil {
		t.Fatalf("expected error for nil image")
	}
	if err := EncodeJPEG(smallTestImage(), nil, 80); err == nil {
		t.Fatalf("expected error for nil writer")
	}
}

func TestQualityPercent(t *testing.T) {
	cases := map[float64]int{0: 0, 0.5: 50, 0.92: 92, 1: 100, 1.5: 100, -1: 0}
	for in, want := range cases {
		if got := qualityPercent(in); got != want {
			t.Errorf("qualityPercent(%v) = %d, want %d", in, got, want)
		}
	}
}
