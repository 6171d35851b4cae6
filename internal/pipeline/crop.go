package pipeline

import (
	"fmt"
	"image"
	"math"
)

// CropRect is a sub-rectangle of the source in pixel units, relative to the
// source bounds origin. Offsets may be fractional.
type CropRect struct {
	X float64 `json:"x"`
	Y float64 `json:"y"`
	W float64 `json:"w"`
	H float64 `json:"h"`
}

func (c CropRect) String() string {
	return fmt.Sprintf("%.2f,%.2f,%.2f,%.2f", c.X, c.Y, c.W, c.H)
}

// Bounds rounds the crop to whole pixels inside a source of size srcW x srcH.
// The result is never empty.
func (c CropRect) Bounds(srcW, srcH int) image.Rectangle {
	x0 := clamp(int(math.Round(c.X)), 0, srcW-1)
	y0 := clamp(int(math.Round(c.Y)), 0, srcH-1)
	x1 := clamp(int(math.Round(c.X+c.W)), x0+1, srcW)
	y1 := clamp(int(math.Round(c.Y+c.H)), y0+1, srcH)
	return image.Rect(x0, y0, x1, y1)
}

func clamp(v, lo, hi int) int {
	return min(max(v, lo), hi)
}

// CoverCrop returns the largest centered rectangle of a srcW x srcH source whose
// aspect ratio equals targetW/targetH. Scaling that rectangle to the target fills
// it completely ("cover" rather than "contain"). All arguments must be positive.
func CoverCrop(srcW, srcH, targetW, targetH int) CropRect {
	sw := float64(srcW)
	sh := float64(srcH)
	srcAspect := sw / sh
	dstAspect := float64(targetW) / float64(targetH)

	var c CropRect
	if srcAspect > dstAspect {
		// source is wider: keep full height, trim the sides
		c.H = sh
		c.W = sh * dstAspect
		c.X = (sw - c.W) / 2
	} else {
		// source is taller or equal: keep full width, trim top and bottom
		c.W = sw
		c.H = sw / dstAspect
		c.Y = (sh - c.H) / 2
	}

	// negative zero and rounding residue
	c.X = math.Max(c.X, 0)
	c.Y = math.Max(c.Y, 0)
	return c
}
