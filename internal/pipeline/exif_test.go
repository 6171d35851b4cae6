package pipeline

import (
	"bytes"
	"errors"
	"image"
	"image/color"
	"testing"

	"idphoto/internal/testutil"
)

// Helper to build a simple image with a colored pixel to track transforms.
func coloredImage(w, h int) image.Image {
	img := image.NewRGBA(image.Rect(0, 0, w, h))
	// put a red pixel at (1,0)
	if w > 1 && h > 0 {
		img.Set(1, 0, color.RGBA{255, 0, 0, 255})
	}
	return img
}

func redAt(img image.Image) (int, int, bool) {
	b := img.Bounds()
	for y := b.Min.Y; y < b.Max.Y; y++ {
		for x := b.Min.X; x < b.Max.X; x++ {
			r, _, _, a := img.At(x, y).RGBA()
			if a != 0 && r>>8 == 255 {
				return x - b.Min.X, y - b.Min.Y, true
			}
		}
	}
	return 0, 0, false
}

func TestApplyOrientation_Basic(t *testing.T) {
	src := coloredImage(3, 2) // width 3, height 2

	cases := []struct {
		orientation int
		w, h        int
		x, y        int
	}{
		{1, 3, 2, 1, 0},
		{2, 3, 2, 1, 0}, // mirror of column 1 in a 3-wide image is column 1
		{3, 3, 2, 1, 1},
		{4, 3, 2, 1, 1},
		{5, 2, 3, 0, 1},
		{6, 2, 3, 1, 1},
		{7, 2, 3, 1, 1},
		{8, 2, 3, 0, 1},
	}
	for _, tc := range cases {
		out := ApplyOrientation(src, tc.orientation)
		b := out.Bounds()
		if b.Dx() != tc.w || b.Dy() != tc.h {
			t.Fatalf("orientation %d: expected %dx%d, got %dx%d", tc.orientation, tc.w, tc.h, b.Dx(), b.Dy())
		}
		x, y, ok := redAt(out)
		if !ok {
			t.Fatalf("orientation %d: red pixel lost", tc.orientation)
		}
		if x != tc.x || y != tc.y {
			t.Fatalf("orientation %d: expected red at (%d,%d), got (%d,%d)", tc.orientation, tc.x, tc.y, x, y)
		}
	}
}

func TestApplyOrientation_UnknownIsIdentity(t *testing.T) {
	src := coloredImage(3, 2)
	for _, o := range []int{0, 9, -1} {
		if out := ApplyOrientation(src, o); out != src {
			t.Fatalf("orientation %d: expected the same image back", o)
		}
	}
}

func TestReadOrientation(t *testing.T) {
	img := testutil.Gradient(8, 8)

	for name, data := range map[string][]byte{
		"plain jpeg": testutil.JPEG(t, img),
		"png":        testutil.PNG(t, img),
		"garbage":    []byte("garbage"),
		"nil":        nil,
	} {
		got, err := ReadOrientation(data)
		if err != nil || got != 1 {
			t.Fatalf("%s: expected 1 without error, got %d (%v)", name, got, err)
		}
	}
	for _, o := range []int{2, 3, 6, 8} {
		got, err := ReadOrientation(testutil.JPEGWithOrientation(t, img, o))
		if err != nil || got != o {
			t.Fatalf("expected orientation %d, got %d (%v)", o, got, err)
		}
	}
}

func TestReadOrientation_UnreadableEXIF(t *testing.T) {
	img := testutil.Gradient(8, 8)

	cases := map[string][]byte{
		"corrupt byte order": corruptByteOrder(t, testutil.JPEGWithOrientation(t, img, 6)),
		"tag out of range":   testutil.JPEGWithOrientation(t, img, 9),
		"tag zero":           testutil.JPEGWithOrientation(t, img, 0),
	}
	for name, data := range cases {
		got, err := ReadOrientation(data)
		if !errors.Is(err, errOrientation) {
			t.Fatalf("%s: expected errOrientation, got %v", name, err)
		}
		if got != 1 {
			t.Fatalf("%s: expected fallback orientation 1, got %d", name, got)
		}
	}
}

// corruptByteOrder replaces the TIFF byte-order mark inside the EXIF segment.
func corruptByteOrder(t *testing.T, data []byte) []byte {
	t.Helper()
	i := bytes.Index(data, []byte("Exif\x00\x00MM"))
	if i < 0 {
		t.Fatalf("no EXIF header in test data")
	}
	out := bytes.Clone(data)
	out[i+6], out[i+7] = 'X', 'X'
	return out
}
