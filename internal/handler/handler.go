package handler

import (
	"fmt"
	"html/template"
	"io/fs"
	"net/http"
	"strings"
	"sync"
	"time"

	jsoniter "github.com/json-iterator/go"
	"go.uber.org/zap"

	"idphoto/internal/config"
	"idphoto/internal/metrics"
	"idphoto/internal/pipeline"
	"idphoto/internal/preset"
	"idphoto/internal/session"
)

var json = jsoniter.ConfigCompatibleWithStandardLibrary

// Settings are the pipeline defaults and limits applied to requests. They can
// be swapped at runtime with SetSettings.
type Settings struct {
	MaxUploadBytes     int64
	MaxSourceDimension int
	PreviewDimension   int
	Format             pipeline.Format
	Quality            float64
	Background         string
	Filter             pipeline.Filter
	AVIFSpeed          int
}

// SettingsFrom converts the pipeline config section, rejecting values the
// pipeline would refuse later.
func SettingsFrom(cfg config.PipelineConfig) (Settings, error) {
	format, err := pipeline.ParseFormat(cfg.DefaultFormat)
	if err != nil {
		return Settings{}, err
	}
	filter, err := pipeline.ParseFilter(cfg.DefaultFilter)
	if err != nil {
		return Settings{}, err
	}
	bg, err := pipeline.ParseColor(cfg.DefaultBackground)
	if err != nil {
		return Settings{}, err
	}
	return Settings{
		MaxUploadBytes:     cfg.MaxUploadBytes,
		MaxSourceDimension: cfg.MaxSourceDimension,
		PreviewDimension:   cfg.PreviewDimension,
		Format:             format,
		Quality:            cfg.DefaultQuality,
		Background:         pipeline.FormatColor(bg),
		Filter:             filter,
		AVIFSpeed:          cfg.AVIFSpeed,
	}, nil
}

// DefaultSettings returns the settings of an unconfigured server.
func DefaultSettings() Settings {
	s, err := SettingsFrom(config.Default().Pipeline)
	if err != nil {
		panic(fmt.Sprintf("handler: default settings: %v", err))
	}
	return s
}

type Handler struct {
	store     *session.Store
	catalog   *preset.Catalog
	metrics   *metrics.Logger
	log       *zap.Logger
	templates *template.Template
	webFS     fs.FS
	started   time.Time

	mu       sync.RWMutex
	settings Settings
	decoder  *pipeline.Decoder
}

// New builds a Handler. webFS holds templates/*.html and static/.
func New(store *session.Store, catalog *preset.Catalog, m *metrics.Logger, webFS fs.FS, settings Settings, log *zap.Logger) *Handler {
	if log == nil {
		log = zap.L()
	}
	if catalog == nil {
		catalog = preset.Default()
	}
	if m == nil {
		m = metrics.New(log)
	}

	h := &Handler{
		store:     store,
		catalog:   catalog,
		metrics:   m,
		log:       log,
		templates: parseTemplates(webFS, log),
		webFS:     webFS,
		started:   time.Now().UTC(),
	}
	h.SetSettings(settings)
	return h
}

// parseTemplates collects every embedded .html file by walking the FS.
func parseTemplates(webFS fs.FS, log *zap.Logger) *template.Template {
	if webFS == nil {
		return template.New("base")
	}
	var files []string
	_ = fs.WalkDir(webFS, ".", func(path string, d fs.DirEntry, walkErr error) error {
		if walkErr != nil {
			return walkErr
		}
		if !d.IsDir() && strings.HasSuffix(path, ".html") {
			files = append(files, path)
		}
		return nil
	})
	if len(files) == 0 {
		log.Warn("no embedded templates found")
		return template.New("base")
	}

	tmpl, err := template.ParseFS(webFS, files...)
	if err != nil {
		log.Error("template parse error", zap.Error(err))
		return template.New("base")
	}
	var names []string
	for _, t := range tmpl.Templates() {
		if t.Name() != "" {
			names = append(names, t.Name())
		}
	}
	log.Debug("loaded templates", zap.Strings("templates", names))
	return tmpl
}

// SetSettings replaces the request defaults. Requests already running keep the
// settings they started with.
func (h *Handler) SetSettings(s Settings) {
	dec := pipeline.NewDecoder(s.MaxUploadBytes, s.MaxSourceDimension)
	if s.PreviewDimension <= 0 {
		s.PreviewDimension = pipeline.DefaultPreviewDimension
	}
	s.MaxUploadBytes = dec.MaxBytes
	s.MaxSourceDimension = dec.MaxDimension

	h.mu.Lock()
	h.settings = s
	h.decoder = dec
	h.mu.Unlock()
}

// Settings returns the current request defaults.
func (h *Handler) Settings() Settings {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return h.settings
}

func (h *Handler) current() (Settings, *pipeline.Decoder) {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return h.settings, h.decoder
}

// RenderTemplate renders a template with data
func (h *Handler) RenderTemplate(w http.ResponseWriter, name string, data any) error {
	return h.templates.ExecuteTemplate(w, name, data)
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		zap.L().Debug("write json response", zap.Error(err))
	}
}
