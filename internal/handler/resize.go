package handler

import (
	"fmt"
	"mime"
	"net/http"
	"strconv"
	"strings"

	"idphoto/internal/pipeline"
)

// ResizePhoto handles POST /api/resize. The encoded photo is returned as an
// attachment; X-Crop-Rect carries the source rectangle that was used.
func (h *Handler) ResizePhoto(w http.ResponseWriter, r *http.Request) {
	sess, ok := h.session(w, r)
	if !ok {
		return
	}
	if err := r.ParseForm(); err != nil {
		badRequest(w, "Invalid form data.")
		return
	}

	settings, _ := h.current()
	opts, err := h.resizeOptions(r, settings)
	if err != nil {
		h.writeError(w, r, err)
		return
	}

	res, err := sess.ResizeWith(r.Context(), opts, pipeline.Encoder{AVIFSpeed: settings.AVIFSpeed})
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	h.metrics.LogResize(res.Width, res.Height, string(res.Format), len(res.Data))

	w.Header().Set("Content-Type", res.Format.ContentType())
	w.Header().Set("Content-Length", strconv.Itoa(len(res.Data)))
	w.Header().Set("Content-Disposition", attachment(res.Filename))
	w.Header().Set("Cache-Control", "no-store")
	w.Header().Set("X-Crop-Rect", res.Crop.String())
	w.Header().Set("X-Image-Size", fmt.Sprintf("%dx%d", res.Width, res.Height))
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write(res.Data)
}

// resizeOptions reads the resize form. Empty fields fall back to settings.
func (h *Handler) resizeOptions(r *http.Request, s Settings) (pipeline.Options, error) {
	size, err := h.catalog.Resolve(r.FormValue("preset"), r.FormValue("width"), r.FormValue("height"))
	if err != nil {
		return pipeline.Options{}, err
	}
	opts := pipeline.Options{
		Size:    size,
		Format:  s.Format,
		Quality: pipeline.Quality(s.Quality),
		Filter:  s.Filter,
	}

	if v := strings.TrimSpace(r.FormValue("format")); v != "" {
		if opts.Format, err = pipeline.ParseFormat(v); err != nil {
			return pipeline.Options{}, err
		}
	}
	if v := strings.TrimSpace(r.FormValue("quality")); v != "" {
		q, err := strconv.ParseFloat(v, 64)
		if err != nil {
			return pipeline.Options{}, fmt.Errorf("%w: %q", pipeline.ErrInvalidQuality, v)
		}
		opts.Quality = &q
	}
	if v := strings.TrimSpace(r.FormValue("filter")); v != "" {
		if opts.Filter, err = pipeline.ParseFilter(v); err != nil {
			return pipeline.Options{}, err
		}
	}

	bg := s.Background
	if v := strings.TrimSpace(r.FormValue("background")); v != "" {
		bg = v
	}
	c, err := pipeline.ParseColor(bg)
	if err != nil {
		return pipeline.Options{}, err
	}
	opts.Background = c
	return opts, nil
}

// attachment builds a Content-Disposition value. Non-ASCII names get an
// ASCII filename= for old clients plus the RFC 2231 filename*= form.
func attachment(name string) string {
	fallback := asciiFilename(name)
	cd := mime.FormatMediaType("attachment", map[string]string{"filename": fallback})
	if fallback == name {
		return cd
	}
	ext := mime.FormatMediaType("attachment", map[string]string{"filename": name})
	if rest, ok := strings.CutPrefix(ext, "attachment; "); ok && strings.HasPrefix(rest, "filename*=") {
		cd += "; " + rest
	}
	return cd
}

// asciiFilename replaces each run of non-ASCII or control characters with a
// single underscore.
func asciiFilename(name string) string {
	var b strings.Builder
	replaced := false
	for _, r := range name {
		if r < 0x20 || r > 0x7e {
			if !replaced {
				b.WriteByte('_')
			}
			replaced = true
			continue
		}
		replaced = false
		b.WriteRune(r)
	}
	return b.String()
}
