package pipeline

import (
	"fmt"
	"image"

	"github.com/disintegration/imaging"
)

// Rotate turns img clockwise by degrees. Negative angles turn counter-clockwise;
// only multiples of 90 are accepted. imaging.Rotate* functions turn
// counter-clockwise, hence the inverted mapping.
func Rotate(img image.Image, degrees int) (image.Image, error) {
	switch ((degrees % 360) + 360) % 360 {
	case 0:
		return img, nil
	case 90:
		return imaging.Rotate270(img), nil
	case 180:
		return imaging.Rotate180(img), nil
	case 270:
		return imaging.Rotate90(img), nil
	default:
		return nil, fmt.Errorf("%w: %d", ErrInvalidAngle, degrees)
	}
}

// RotateRaster returns a copy of r turned clockwise by degrees. The original
// raster is left untouched.
func RotateRaster(r *Raster, degrees int) (*Raster, error) {
	if r.Released() {
		return nil, ErrMissingSource
	}
	img, err := Rotate(r.Image, degrees)
	if err != nil {
		return nil, err
	}
	out := *r
	out.Image = img
	return &out, nil
}
