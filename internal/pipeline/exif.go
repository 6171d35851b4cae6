package pipeline

import (
	"bytes"
	"errors"
	"fmt"
	"image"

	"github.com/disintegration/imaging"
	"github.com/rwcarlsen/goexif/exif"
)

// errOrientation marks EXIF data that is present but can't be trusted.
var errOrientation = errors.New("unreadable exif orientation")

var exifHeader = []byte("Exif\x00\x00")

// ReadOrientation returns the EXIF orientation tag (1-8) stored in data. A file
// without EXIF, or without the tag, reports 1 and no error. An EXIF block that
// is present but corrupt, or a tag outside 1-8, reports 1 and an error so the
// caller knows the raster may be sideways.
func ReadOrientation(data []byte) (int, error) {
	x, err := exif.Decode(bytes.NewReader(data))
	if err != nil && (x == nil || exif.IsCriticalError(err)) {
		if !bytes.Contains(data, exifHeader) {
			// Not a fatal error for formats without EXIF
			return 1, nil
		}
		return 1, fmt.Errorf("%w: %w", errOrientation, err)
	}
	tag, err := x.Get(exif.Orientation)
	if err != nil {
		var missing exif.TagNotPresentError
		if errors.As(err, &missing) {
			return 1, nil
		}
		return 1, fmt.Errorf("%w: %w", errOrientation, err)
	}
	if tag.Count < 1 {
		return 1, fmt.Errorf("%w: empty tag", errOrientation)
	}
	orient, err := tag.Int(0)
	if err != nil {
		return 1, fmt.Errorf("%w: %w", errOrientation, err)
	}
	if orient < 1 || orient > 8 {
		return 1, fmt.Errorf("%w: tag value %d", errOrientation, orient)
	}
	return orient, nil
}

// ApplyOrientation rotates/flips img so it displays upright for the given EXIF
// orientation.
func ApplyOrientation(img image.Image, orientation int) image.Image {
	switch orientation {
	case 2:
		return imaging.FlipH(img)
	case 3:
		return imaging.Rotate180(img)
	case 4:
		return imaging.FlipV(img)
	case 5:
		// transpose
		return imaging.Transpose(img)
	case 6:
		// rotate 90 CW
		return imaging.Rotate270(img)
	case 7:
		// transverse
		return imaging.Transverse(img)
	case 8:
		// rotate 90 CCW
		return imaging.Rotate90(img)
	default:
		return img
	}
}
