package handler

import (
	"net/http"

	"go.uber.org/zap"

	"idphoto/internal/logging"
	"idphoto/internal/middleware"
	"idphoto/internal/pipeline"
	"idphoto/internal/preset"
)

// PresetsResponse is the body of GET /api/presets.
type PresetsResponse struct {
	Presets  []preset.Preset `json:"presets"`
	Custom   string          `json:"custom"`
	Defaults Defaults        `json:"defaults"`
}

// Defaults are the form values preselected in the UI.
type Defaults struct {
	Format         string   `json:"format"`
	Quality        float64  `json:"quality"`
	Background     string   `json:"background"`
	Filter         string   `json:"filter"`
	Width          int      `json:"width"`
	Height         int      `json:"height"`
	MaxUploadBytes int64    `json:"maxUploadBytes"`
	Formats        []string `json:"formats"`
	Filters        []string `json:"filters"`
}

var formats = []pipeline.Format{pipeline.FormatJPEG, pipeline.FormatPNG, pipeline.FormatWebP, pipeline.FormatAVIF}

func defaultsOf(s Settings) Defaults {
	d := Defaults{
		Format:         string(s.Format),
		Quality:        s.Quality,
		Background:     s.Background,
		Filter:         string(s.Filter),
		Width:          preset.DefaultDimension,
		Height:         preset.DefaultDimension,
		MaxUploadBytes: s.MaxUploadBytes,
	}
	for _, f := range formats {
		d.Formats = append(d.Formats, string(f))
	}
	for _, f := range pipeline.Filters {
		d.Filters = append(d.Filters, string(f))
	}
	return d
}

// Presets handles GET /api/presets.
func (h *Handler) Presets(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, PresetsResponse{
		Presets:  h.catalog.All(),
		Custom:   preset.CustomID,
		Defaults: defaultsOf(h.Settings()),
	})
}

type indexPage struct {
	Presets    []preset.Preset
	CustomID   string
	Defaults   Defaults
	CSRFToken  string
	MaxUploadM int64
}

// HomePage renders the single-page UI.
func (h *Handler) HomePage(w http.ResponseWriter, r *http.Request) {
	d := defaultsOf(h.Settings())
	data := indexPage{
		Presets:    h.catalog.All(),
		CustomID:   preset.CustomID,
		Defaults:   d,
		CSRFToken:  middleware.CSRFToken(r.Context()),
		MaxUploadM: d.MaxUploadBytes >> 20,
	}

	w.Header().Set("Content-Type", "text/html; charset=utf-8")
	if err := h.RenderTemplate(w, "index.html", data); err != nil {
		logging.FromContext(r.Context()).Error("template render error", zap.String("template", "index.html"), zap.Error(err))
		http.Error(w, "template render error", http.StatusInternalServerError)
	}
}
