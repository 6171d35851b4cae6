package pipeline

import (
	"fmt"
	"image"
	"math"
	"strings"

	"github.com/disintegration/imaging"
	"github.com/nfnt/resize"
	"golang.org/x/image/draw"
	"golang.org/x/image/math/f64"
)

// Filter names the resampling kernel used to scale the crop onto the canvas.
type Filter string

const (
	FilterCatmullRom Filter = "catmullrom"
	FilterBilinear   Filter = "bilinear"
	FilterLanczos    Filter = "lanczos"
	FilterMitchell   Filter = "mitchell"
)

// Filters lists the accepted filters, default first.
var Filters = []Filter{FilterCatmullRom, FilterBilinear, FilterLanczos, FilterMitchell}

// ParseFilter parses a filter name. Nearest-neighbor is never accepted: output
// quality below bilinear is not good enough for ID photos.
func ParseFilter(s string) (Filter, error) {
	switch f := Filter(strings.ToLower(strings.TrimSpace(s))); f {
	case FilterCatmullRom, FilterBilinear, FilterLanczos, FilterMitchell:
		return f, nil
	case "bicubic":
		return FilterCatmullRom, nil
	default:
		return "", fmt.Errorf("%w: %q", ErrInvalidFilter, s)
	}
}

// Resampler draws the crop of src scaled to fill dst exactly, compositing over
// whatever dst already holds.
type Resampler interface {
	Draw(dst *image.NRGBA, src image.Image, crop CropRect)
}

// NewResampler returns the resampler for f.
func NewResampler(f Filter) (Resampler, error) {
	switch f {
	case FilterCatmullRom:
		return kernelResampler{kernel: draw.CatmullRom}, nil
	case FilterBilinear:
		return kernelResampler{kernel: draw.BiLinear}, nil
	case FilterLanczos:
		return imagingResampler{filter: imaging.Lanczos}, nil
	case FilterMitchell:
		return nfntResampler{interp: resize.MitchellNetravali}, nil
	default:
		return nil, fmt.Errorf("%w: %q", ErrInvalidFilter, f)
	}
}

// kernelResampler maps the fractional crop onto the canvas with one affine
// transform, so sub-pixel crop offsets are kept.
type kernelResampler struct {
	kernel *draw.Kernel
}

func (k kernelResampler) Draw(dst *image.NRGBA, src image.Image, crop CropRect) {
	b := src.Bounds()
	db := dst.Bounds()
	sx := float64(db.Dx()) / crop.W
	sy := float64(db.Dy()) / crop.H
	x0 := float64(b.Min.X) + crop.X
	y0 := float64(b.Min.Y) + crop.Y

	s2d := f64.Aff3{
		sx, 0, float64(db.Min.X) - x0*sx,
		0, sy, float64(db.Min.Y) - y0*sy,
	}
	sr := image.Rect(
		int(math.Floor(x0)), int(math.Floor(y0)),
		int(math.Ceil(x0+crop.W)), int(math.Ceil(y0+crop.H)),
	).Intersect(b)

	k.kernel.Transform(dst, s2d, src, sr, draw.Over, nil)
}

// imagingResampler crops to whole pixels and scales with a disintegration/imaging filter.
type imagingResampler struct {
	filter imaging.ResampleFilter
}

func (r imagingResampler) Draw(dst *image.NRGBA, src image.Image, crop CropRect) {
	db := dst.Bounds()
	scaled := imaging.Resize(cropPixels(src, crop), db.Dx(), db.Dy(), r.filter)
	draw.Draw(dst, db, scaled, image.Point{}, draw.Over)
}

// nfntResampler crops to whole pixels and scales with nfnt/resize.
type nfntResampler struct {
	interp resize.InterpolationFunction
}

func (r nfntResampler) Draw(dst *image.NRGBA, src image.Image, crop CropRect) {
	db := dst.Bounds()
	scaled := resize.Resize(uint(db.Dx()), uint(db.Dy()), cropPixels(src, crop), r.interp)
	draw.Draw(dst, db, scaled, scaled.Bounds().Min, draw.Over)
}

func cropPixels(src image.Image, crop CropRect) *image.NRGBA {
	b := src.Bounds()
	rect := crop.Bounds(b.Dx(), b.Dy()).Add(b.Min)
	return imaging.Crop(src, rect)
}
