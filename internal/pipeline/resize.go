package pipeline

import (
	"bytes"
	"image"

	"github.com/disintegration/imaging"
)

// DefaultPreviewDimension bounds the longer side of source previews.
const DefaultPreviewDimension = 480

// Preview shrinks img to fit within maxDimension, preserving aspect ratio.
// Smaller images are returned unchanged.
func Preview(img image.Image, maxDimension int) image.Image {
	if img == nil {
		return nil
	}
	b := img.Bounds()
	w := b.Dx()
	h := b.Dy()
	if w <= 0 || h <= 0 {
		return img
	}
	if w <= maxDimension && h <= maxDimension {
		return img
	}

	nw, nh := calculateDimensions(w, h, maxDimension)
	return imaging.Resize(img, nw, nh, imaging.Linear)
}

// PreviewPNG renders the preview of img as PNG bytes.
func PreviewPNG(img image.Image, maxDimension int) ([]byte, error) {
	var buf bytes.Buffer
	if err := EncodePNG(Preview(img, maxDimension), &buf); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}

// calculateDimensions computes new width/height preserving aspect ratio so the
// larger side equals maxDim.
func calculateDimensions(origWidth, origHeight, maxDim int) (int, int) {
	if origWidth <= 0 || origHeight <= 0 || maxDim <= 0 {
		return origWidth, origHeight
	}
	if origWidth <= maxDim && origHeight <= maxDim {
		return origWidth, origHeight
	}
	if origWidth > origHeight {
		newH := max((origHeight*maxDim)/origWidth, 1)
		return maxDim, newH
	}
	newW := max((origWidth*maxDim)/origHeight, 1)
	return newW, maxDim
}
