package pipeline

import (
	"image"
	"image/color"
	"image/draw"
)

// Render allocates a canvas of exactly size, fills it with bg and draws the crop
// of src scaled to cover the whole canvas. Exactly one fill and one draw happen;
// the fill shows through only where the source has alpha or where rounding leaves
// a sub-pixel border.
func Render(src image.Image, crop CropRect, size TargetSize, bg color.Color, r Resampler) *image.NRGBA {
	canvas := image.NewNRGBA(image.Rect(0, 0, size.Width, size.Height))
	draw.Draw(canvas, canvas.Bounds(), image.NewUniform(bg), image.Point{}, draw.Src)
	r.Draw(canvas, src, crop)
	return canvas
}
