package pipeline

import (
	"errors"
	"fmt"
	"image"
	"image/color"
	"math"
	"strings"
)

var (
	ErrInvalidInputType  = errors.New("selected file is not an image")
	ErrNotAnImage        = errors.New("file content is not a supported image")
	ErrTooLarge          = errors.New("image exceeds size limit")
	ErrInvalidDimensions = errors.New("image dimensions out of range")
	ErrDecodeFailure     = errors.New("image could not be decoded")
	ErrEncodeFailure     = errors.New("image could not be encoded")
	ErrMissingSource     = errors.New("no photo loaded")
	ErrBusy              = errors.New("another operation is in progress")

	ErrInvalidTargetSize = errors.New("target size out of range")
	ErrInvalidFormat     = errors.New("unsupported output format")
	ErrInvalidQuality    = errors.New("quality must be between 0 and 1")
	ErrInvalidFilter     = errors.New("unsupported resampling filter")
	ErrInvalidColor      = errors.New("invalid background color")
	ErrInvalidAngle      = errors.New("rotation must be a multiple of 90 degrees")
)

// Default maximum dimension (width or height) accepted for a decoded source.
const MaxDimension = 8000

// MaxTargetDimension bounds the output canvas on either axis.
const MaxTargetDimension = 4000

// DefaultQuality is the fixed lossy quality used when the caller supplies none.
const DefaultQuality = 0.92

// TargetSize is the exact pixel size of the produced photo.
type TargetSize struct {
	Width  int `json:"width" toml:"width"`
	Height int `json:"height" toml:"height"`
}

// Validate rejects sizes that cannot be rendered.
func (s TargetSize) Validate() error {
	if s.Width < 1 || s.Height < 1 || s.Width > MaxTargetDimension || s.Height > MaxTargetDimension {
		return fmt.Errorf("%w: %dx%d", ErrInvalidTargetSize, s.Width, s.Height)
	}
	return nil
}

func (s TargetSize) String() string {
	return fmt.Sprintf("%dx%d", s.Width, s.Height)
}

// Format is the output encoding.
type Format string

const (
	FormatJPEG Format = "jpeg"
	FormatPNG  Format = "png"
	FormatWebP Format = "webp"
	FormatAVIF Format = "avif"
)

// ParseFormat parses a format name or MIME type.
func ParseFormat(s string) (Format, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "jpeg", "jpg", "image/jpeg":
		return FormatJPEG, nil
	case "png", "image/png":
		return FormatPNG, nil
	case "webp", "image/webp":
		return FormatWebP, nil
	case "avif", "image/avif":
		return FormatAVIF, nil
	default:
		return "", fmt.Errorf("%w: %q", ErrInvalidFormat, s)
	}
}

// Lossless reports whether the format ignores the quality parameter.
func (f Format) Lossless() bool {
	return f == FormatPNG
}

// ContentType returns the MIME type for a format.
func (f Format) ContentType() string {
	switch f {
	case FormatJPEG:
		return "image/jpeg"
	case FormatPNG:
		return "image/png"
	case FormatWebP:
		return "image/webp"
	case FormatAVIF:
		return "image/avif"
	default:
		return "application/octet-stream"
	}
}

// Extension returns the file extension without the dot.
func (f Format) Extension() string {
	if f == FormatJPEG {
		return "jpg"
	}
	return string(f)
}

// Upload is a file handed over by the acquisition side (browser form, clipboard
// paste, CLI argument).
type Upload struct {
	Name        string
	ContentType string
	Data        []byte
}

// Raster is a decoded source photo.
type Raster struct {
	Image       image.Image
	Name        string
	ContentType string
	// Orientation is the EXIF orientation value found in the file (1 when absent).
	Orientation int
	// Oriented is false when decoding had to fall back to a path that ignores
	// orientation metadata.
	Oriented bool
}

// Width returns the natural pixel width.
func (r *Raster) Width() int {
	if r == nil || r.Image == nil {
		return 0
	}
	return r.Image.Bounds().Dx()
}

// Height returns the natural pixel height.
func (r *Raster) Height() int {
	if r == nil || r.Image == nil {
		return 0
	}
	return r.Image.Bounds().Dy()
}

// Released reports whether the pixel buffer has been dropped.
func (r *Raster) Released() bool {
	return r == nil || r.Image == nil
}

// Release drops the pixel buffer so it can be collected.
func (r *Raster) Release() {
	if r != nil {
		r.Image = nil
	}
}

// Options configures one resize-and-encode call.
type Options struct {
	Size   TargetSize
	Format Format
	// Quality is the lossy quality in [0,1]. nil selects DefaultQuality; an
	// explicit 0 is honored.
	Quality    *float64
	Background color.Color
	Filter     Filter
}

// Quality returns a pointer to q for Options.Quality.
func Quality(q float64) *float64 {
	return &q
}

// withDefaults fills zero fields.
func (o Options) withDefaults() Options {
	if o.Format == "" {
		o.Format = FormatJPEG
	}
	if o.Quality == nil {
		o.Quality = Quality(DefaultQuality)
	}
	if o.Background == nil {
		o.Background = color.White
	}
	if o.Filter == "" {
		o.Filter = FilterCatmullRom
	}
	return o
}

// Validate checks every option after defaults are applied.
func (o Options) Validate() error {
	if err := o.Size.Validate(); err != nil {
		return err
	}
	if _, err := ParseFormat(string(o.Format)); err != nil {
		return err
	}
	if q := o.Quality; q != nil && (math.IsNaN(*q) || *q < 0 || *q > 1) {
		return fmt.Errorf("%w: %v", ErrInvalidQuality, *q)
	}
	if _, err := ParseFilter(string(o.Filter)); err != nil {
		return err
	}
	return nil
}

// Result is the encoded output of one pipeline run.
type Result struct {
	Data     []byte
	Format   Format
	Crop     CropRect
	Width    int
	Height   int
	Filename string
}

// Kind classifies pipeline errors into user-facing categories.
type Kind string

const (
	KindNone             Kind = ""
	KindInvalidInputType Kind = "invalid_input_type"
	KindDecodeFailure    Kind = "decode_failure"
	KindEncodeFailure    Kind = "encode_failure"
	KindMissingSource    Kind = "missing_source"
	KindBusy             Kind = "busy"
	KindInvalidOptions   Kind = "invalid_options"
	KindInternal         Kind = "internal"
)

// KindOf maps an error returned by this package (possibly wrapped) to its category.
func KindOf(err error) Kind {
	switch {
	case err == nil:
		return KindNone
	case errors.Is(err, ErrInvalidInputType):
		return KindInvalidInputType
	case errors.Is(err, ErrDecodeFailure), errors.Is(err, ErrTooLarge),
		errors.Is(err, ErrInvalidDimensions), errors.Is(err, ErrNotAnImage):
		return KindDecodeFailure
	case errors.Is(err, ErrEncodeFailure):
		return KindEncodeFailure
	case errors.Is(err, ErrMissingSource):
		return KindMissingSource
	case errors.Is(err, ErrBusy):
		return KindBusy
	case errors.Is(err, ErrInvalidTargetSize), errors.Is(err, ErrInvalidFormat),
		errors.Is(err, ErrInvalidQuality), errors.Is(err, ErrInvalidFilter),
		errors.Is(err, ErrInvalidColor), errors.Is(err, ErrInvalidAngle):
		return KindInvalidOptions
	default:
		return KindInternal
	}
}
