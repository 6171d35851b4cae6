package pipeline

import (
	"context"
	"fmt"

	"go.uber.org/zap"
)

// Process runs the full pipeline on src: cover crop -> fill -> draw -> encode.
func Process(ctx context.Context, src *Raster, opts Options) (*Result, error) {
	return ProcessWithEncoder(ctx, src, opts, Encoder{})
}

// ProcessWithEncoder is Process with explicit encoder settings.
func ProcessWithEncoder(ctx context.Context, src *Raster, opts Options, enc Encoder) (*Result, error) {
	if src.Released() {
		return nil, ErrMissingSource
	}
	opts = opts.withDefaults()
	if err := opts.Validate(); err != nil {
		return nil, err
	}
	resampler, err := NewResampler(opts.Filter)
	if err != nil {
		return nil, err
	}

	crop := CoverCrop(src.Width(), src.Height(), opts.Size.Width, opts.Size.Height)

	if err := ctx.Err(); err != nil {
		return nil, err
	}
	canvas := Render(src.Image, crop, opts.Size, opts.Background, resampler)

	data, err := enc.Encode(ctx, canvas, opts.Format, *opts.Quality)
	if err != nil {
		return nil, fmt.Errorf("encode %s: %w", opts.Format, err)
	}

	zap.L().Info("photo resized",
		zap.String("name", src.Name),
		zap.Int("src_width", src.Width()),
		zap.Int("src_height", src.Height()),
		zap.Stringer("size", opts.Size),
		zap.Stringer("crop", crop),
		zap.String("format", string(opts.Format)),
		zap.String("filter", string(opts.Filter)),
		zap.Int("bytes", len(data)),
	)

	return &Result{
		Data:     data,
		Format:   opts.Format,
		Crop:     crop,
		Width:    opts.Size.Width,
		Height:   opts.Size.Height,
		Filename: OutputFilename(src.Name, opts.Size, opts.Format),
	}, nil
}
