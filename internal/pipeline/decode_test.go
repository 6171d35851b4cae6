package pipeline

import (
	"bytes"
	"context"
	"image"
	"image/color"
	"image/jpeg"
	"testing"

	webp "github.com/chai2010/webp"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"idphoto/internal/testutil"
)

func TestDecode_JPEG(t *testing.T) {
	d := NewDecoder(1<<20, 0)
	r, err := d.Decode(context.Background(), Upload{Name: "me.jpg", ContentType: "image/jpeg", Data: testutil.JPEG(t, testutil.Gradient(40, 30))})
	require.NoError(t, err)
	assert.Equal(t, 40, r.Width())
	assert.Equal(t, 30, r.Height())
	assert.Equal(t, "image/jpeg", r.ContentType)
	assert.Equal(t, 1, r.Orientation)
	assert.True(t, r.Oriented)
}

func TestDecode_PNG(t *testing.T) {
	d := NewDecoder(1<<20, 0)
	r, err := d.Decode(context.Background(), Upload{Name: "me.png", ContentType: "image/png", Data: testutil.PNG(t, testutil.Gradient(12, 34))})
	require.NoError(t, err)
	assert.Equal(t, 12, r.Width())
	assert.Equal(t, 34, r.Height())
	assert.Equal(t, "image/png", r.ContentType)
}

func TestDecode_WebP(t *testing.T) {
	var buf bytes.Buffer
	require.NoError(t, webp.Encode(&buf, testutil.Gradient(16, 8), &webp.Options{Lossless: true}))

	d := NewDecoder(1<<20, 0)
	r, err := d.Decode(context.Background(), Upload{Name: "me.webp", ContentType: "image/webp", Data: buf.Bytes()})
	require.NoError(t, err)
	assert.Equal(t, 16, r.Width())
	assert.Equal(t, 8, r.Height())
}

func TestDecode_AppliesEXIFOrientation(t *testing.T) {
	src := testutil.Gradient(40, 20)
	d := NewDecoder(1<<20, 0)

	for _, tc := range []struct {
		orientation int
		w, h        int
	}{
		{1, 40, 20},
		{3, 40, 20},
		{6, 20, 40},
		{8, 20, 40},
	} {
		data := testutil.JPEGWithOrientation(t, src, tc.orientation)
		r, err := d.Decode(context.Background(), Upload{Name: "rotated.jpg", ContentType: "image/jpeg", Data: data})
		require.NoError(t, err)
		assert.Equal(t, tc.orientation, r.Orientation)
		assert.True(t, r.Oriented)
		assert.Equal(t, tc.w, r.Width(), "orientation %d", tc.orientation)
		assert.Equal(t, tc.h, r.Height(), "orientation %d", tc.orientation)
	}
}

func TestDecode_UnreadableEXIFClearsOriented(t *testing.T) {
	src := testutil.Gradient(40, 20)
	d := NewDecoder(1<<20, 0)

	for name, data := range map[string][]byte{
		"corrupt exif":  corruptByteOrder(t, testutil.JPEGWithOrientation(t, src, 6)),
		"orientation 9": testutil.JPEGWithOrientation(t, src, 9),
	} {
		r, err := d.Decode(context.Background(), Upload{Name: "sideways.jpg", ContentType: "image/jpeg", Data: data})
		require.NoError(t, err, name)
		assert.False(t, r.Oriented, name)
		assert.Equal(t, 1, r.Orientation, name)
		// pixels keep their stored order
		assert.Equal(t, 40, r.Width(), name)
		assert.Equal(t, 20, r.Height(), name)
	}
}

func TestDecode_Orientation6TurnsClockwise(t *testing.T) {
	// red marker in the top-left corner ends up top-right after a clockwise turn
	src := testutil.Solid(40, 20, color.NRGBA{B: 255, A: 255})
	for y := 0; y < 8; y++ {
		for x := 0; x < 8; x++ {
			src.Set(x, y, color.NRGBA{R: 255, A: 255})
		}
	}
	data := testutil.JPEGWithOrientation(t, src, 6)

	r, err := NewDecoder(1<<20, 0).Decode(context.Background(), Upload{ContentType: "image/jpeg", Data: data})
	require.NoError(t, err)

	topRight := color.NRGBAModel.Convert(r.Image.At(r.Image.Bounds().Max.X-3, 3)).(color.NRGBA)
	topLeft := color.NRGBAModel.Convert(r.Image.At(3, 3)).(color.NRGBA)
	assert.Greater(t, topRight.R, topRight.B)
	assert.Greater(t, topLeft.B, topLeft.R)
}

func TestDecode_RejectsNonImageDeclaredType(t *testing.T) {
	d := NewDecoder(1<<20, 0)
	// valid image bytes, but the declared type is text: no decode attempt
	data := testutil.PNG(t, testutil.Gradient(4, 4))
	r, err := d.Decode(context.Background(), Upload{Name: "notes.txt", ContentType: "text/plain", Data: data})
	require.Nil(t, r)
	require.ErrorIs(t, err, ErrInvalidInputType)
	assert.Equal(t, KindInvalidInputType, KindOf(err))
}

func TestDecode_DeclaredTypeCaseInsensitive(t *testing.T) {
	d := NewDecoder(1<<20, 0)
	_, err := d.Decode(context.Background(), Upload{ContentType: " IMAGE/PNG", Data: testutil.PNG(t, testutil.Gradient(4, 4))})
	require.NoError(t, err)
}

func TestDecode_CorruptImage(t *testing.T) {
	d := NewDecoder(1<<20, 0)
	_, err := d.Decode(context.Background(), Upload{ContentType: "image/jpeg", Data: []byte("this is not an image")})
	require.ErrorIs(t, err, ErrDecodeFailure)
	assert.Equal(t, KindDecodeFailure, KindOf(err))

	truncated := testutil.JPEG(t, testutil.Gradient(64, 64))[:40]
	_, err = d.Decode(context.Background(), Upload{ContentType: "image/jpeg", Data: truncated})
	require.ErrorIs(t, err, ErrDecodeFailure)
}

func TestDecode_Empty(t *testing.T) {
	_, err := NewDecoder(1<<20, 0).Decode(context.Background(), Upload{ContentType: "image/png"})
	require.ErrorIs(t, err, ErrDecodeFailure)
}

func TestDecode_TooLarge(t *testing.T) {
	data := testutil.PNG(t, testutil.Gradient(64, 64))
	_, err := NewDecoder(int64(len(data)-1), 0).Decode(context.Background(), Upload{ContentType: "image/png", Data: data})
	require.ErrorIs(t, err, ErrTooLarge)
	assert.Equal(t, KindDecodeFailure, KindOf(err))
}

func TestDecode_InvalidDimensions(t *testing.T) {
	img := image.NewRGBA(image.Rect(0, 0, 101, 1))
	var b bytes.Buffer
	require.NoError(t, jpeg.Encode(&b, img, &jpeg.Options{Quality: 80}))

	_, err := NewDecoder(1<<20, 100).Decode(context.Background(), Upload{ContentType: "image/jpeg", Data: b.Bytes()})
	require.ErrorIs(t, err, ErrInvalidDimensions)
}

func TestDecode_CanceledContext(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	_, err := NewDecoder(1<<20, 0).Decode(ctx, Upload{ContentType: "image/png", Data: testutil.PNG(t, testutil.Gradient(4, 4))})
	require.ErrorIs(t, err, context.Canceled)
}
