package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"mime"
	"os"
	"os/signal"
	"path/filepath"
	"strings"
	"time"

	"github.com/spf13/pflag"
	"go.uber.org/zap"

	"idphoto/internal/config"
	"idphoto/internal/logging"
	"idphoto/internal/pipeline"
	"idphoto/internal/preset"
	"idphoto/internal/storage"
	"idphoto/internal/worker"
)

func runResize(args []string, stdout io.Writer) error {
	fs := pflag.NewFlagSet("resize", pflag.ContinueOnError)
	fs.StringP("config", "c", "", "config file (yaml, toml or json)")
	in := fs.StringP("in", "i", "", "source photo")
	presetID := fs.StringP("preset", "p", "", "preset id, see 'app presets'")
	width := fs.String("width", "", "custom width in pixels")
	height := fs.String("height", "", "custom height in pixels")
	fs.StringP("format", "f", "jpeg", "output format (jpeg, png, webp, avif)")
	fs.Float64P("quality", "q", pipeline.DefaultQuality, "lossy quality in [0,1]")
	fs.String("background", pipeline.DefaultBackground, "background color (#rgb or #rrggbb)")
	fs.String("filter", string(pipeline.FilterCatmullRom), "resampling filter")
	outDir := fs.StringP("out-dir", "o", ".", "output directory")
	overwrite := fs.Bool("overwrite", false, "replace an existing output file")
	timeout := fs.Duration("timeout", 2*time.Minute, "give up on the photo after this long (0 disables)")
	if err := fs.Parse(args); err != nil {
		return err
	}
	if *in == "" {
		return errors.New("resize: --in is required")
	}
	if fs.NArg() > 0 {
		return fmt.Errorf("resize: one photo at a time, unexpected arguments %q", fs.Args())
	}

	_, cfg, err := loadConfig(fs, map[string]string{
		"format":     "pipeline.default_format",
		"quality":    "pipeline.default_quality",
		"background": "pipeline.default_background",
		"filter":     "pipeline.default_filter",
	})
	if err != nil {
		return err
	}
	cfg.Log.Level = quietLevel(cfg.Log.Level)
	logger, cleanup, err := logging.New(cfg.Log)
	if err != nil {
		return err
	}
	defer cleanup()

	catalog, err := preset.Load(cfg.Pipeline.PresetsFile)
	if err != nil {
		return err
	}
	size, err := catalog.Resolve(*presetID, *width, *height)
	if err != nil {
		return err
	}
	opts, err := optionsFrom(cfg.Pipeline, size)
	if err != nil {
		return err
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt)
	defer stop()

	out := storage.New(*outDir)
	out.Overwrite = *overwrite
	if n, err := out.CleanTemp(15 * time.Minute); err != nil {
		logger.Warn("temp cleanup failed", zap.String("dir", *outDir), zap.Error(err))
	} else if n > 0 {
		logger.Info("removed stale temp files", zap.Int("count", n))
	}

	r := &resizer{
		dec:    pipeline.NewDecoder(cfg.Pipeline.MaxUploadBytes, cfg.Pipeline.MaxSourceDimension),
		enc:    pipeline.Encoder{AVIFSpeed: cfg.Pipeline.AVIFSpeed},
		opts:   opts,
		out:    out,
		logger: logger,
	}
	res := worker.New(r.process, *timeout, logger).Run(ctx, worker.Job{ID: "resize", Path: *in})
	if res.Status != worker.StatusCompleted {
		return fmt.Errorf("resize %s: %w", *in, res.Err)
	}
	o := res.Output
	fmt.Fprintf(stdout, "%s\t%dx%d\t%s\t%d bytes\n", o.Path, o.Width, o.Height, o.Detail, o.Bytes)
	return nil
}

// resizer runs the pipeline for one source file.
type resizer struct {
	dec    *pipeline.Decoder
	enc    pipeline.Encoder
	opts   pipeline.Options
	out    *storage.Storage
	logger *zap.Logger
}

func (r *resizer) process(ctx context.Context, job worker.Job) (worker.Output, error) {
	up, err := readSource(job.Path)
	if err != nil {
		return worker.Output{}, err
	}
	src, err := r.dec.Decode(ctx, up)
	if err != nil {
		return worker.Output{}, err
	}
	defer src.Release()
	if !src.Oriented {
		r.logger.Warn("orientation metadata could not be applied; check the result and rotate if needed",
			zap.String("file", job.Path))
	}

	res, err := pipeline.ProcessWithEncoder(ctx, src, r.opts, r.enc)
	if err != nil {
		return worker.Output{}, err
	}

	path, err := r.out.Save(res.Filename, res.Data)
	if err != nil {
		return worker.Output{}, err
	}
	return worker.Output{
		Path:   path,
		Width:  res.Width,
		Height: res.Height,
		Bytes:  len(res.Data),
		Detail: "crop " + res.Crop.String(),
	}, nil
}

// readSource reads a photo from disk. The declared type comes from the file
// extension, or from the content when the extension is unknown.
func readSource(path string) (pipeline.Upload, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return pipeline.Upload{}, err
	}
	ct := mime.TypeByExtension(strings.ToLower(filepath.Ext(path)))
	if ct == "" {
		ct = pipeline.DetectFormat(data)
	}
	return pipeline.Upload{Name: filepath.Base(path), ContentType: ct, Data: data}, nil
}

// optionsFrom builds pipeline options from the config defaults, which carry
// the bound command-line flags.
func optionsFrom(cfg config.PipelineConfig, size pipeline.TargetSize) (pipeline.Options, error) {
	format, err := pipeline.ParseFormat(cfg.DefaultFormat)
	if err != nil {
		return pipeline.Options{}, err
	}
	filter, err := pipeline.ParseFilter(cfg.DefaultFilter)
	if err != nil {
		return pipeline.Options{}, err
	}
	bg, err := pipeline.ParseColor(cfg.DefaultBackground)
	if err != nil {
		return pipeline.Options{}, err
	}
	return pipeline.Options{
		Size:       size,
		Format:     format,
		Quality:    pipeline.Quality(cfg.DefaultQuality),
		Background: bg,
		Filter:     filter,
	}, nil
}

// quietLevel keeps one-shot commands from printing info lines unless asked.
func quietLevel(level string) string {
	if level == "" || level == "info" {
		return "warn"
	}
	return level
}
