package handler

import (
	"errors"
	"fmt"
	"io"
	"net/http"
	"strconv"
	"strings"

	"idphoto/internal/middleware"
	"idphoto/internal/pipeline"
	"idphoto/internal/session"
)

// uploadField is the multipart field carrying the photo.
const uploadField = "photo"

// multipartOverhead is allowed on top of the file size for boundaries and
// part headers.
const multipartOverhead = 1 << 20

var (
	errBadUpload   = errors.New("malformed upload")
	errNoPhotoPart = errors.New("no photo in upload")
	errNoSession   = errors.New("no session attached to request")
)

func (h *Handler) session(w http.ResponseWriter, r *http.Request) (*session.Session, bool) {
	sess := middleware.SessionFrom(r.Context())
	if sess == nil {
		h.writeError(w, r, errNoSession)
		return nil, false
	}
	return sess, true
}

// UploadPhoto handles POST /api/photo: decodes the "photo" part and makes it
// the session's source.
func (h *Handler) UploadPhoto(w http.ResponseWriter, r *http.Request) {
	sess, ok := h.session(w, r)
	if !ok {
		return
	}
	settings, dec := h.current()

	up, err := readUpload(w, r, settings.MaxUploadBytes)
	if err != nil {
		if errors.Is(err, errBadUpload) || errors.Is(err, errNoPhotoPart) {
			badRequest(w, "Choose a photo to upload.")
			return
		}
		h.writeError(w, r, err)
		return
	}

	info, err := sess.Load(r.Context(), dec, up)
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	h.metrics.LogUpload(info.Name, info.Width, info.Height)
	writeJSON(w, http.StatusOK, info)
}

// readUpload streams the multipart body and returns the first "photo" part.
// Parts larger than maxBytes fail with pipeline.ErrTooLarge.
func readUpload(w http.ResponseWriter, r *http.Request, maxBytes int64) (pipeline.Upload, error) {
	r.Body = http.MaxBytesReader(w, r.Body, maxBytes+multipartOverhead)

	mr, err := r.MultipartReader()
	if err != nil {
		return pipeline.Upload{}, fmt.Errorf("%w: %v", errBadUpload, err)
	}
	for {
		part, err := mr.NextPart()
		if err == io.EOF {
			return pipeline.Upload{}, errNoPhotoPart
		}
		if err != nil {
			return pipeline.Upload{}, uploadReadError(err)
		}
		if part.FormName() != uploadField {
			part.Close()
			continue
		}

		data, err := io.ReadAll(io.LimitReader(part, maxBytes+1))
		part.Close()
		if err != nil {
			return pipeline.Upload{}, uploadReadError(err)
		}
		if int64(len(data)) > maxBytes {
			return pipeline.Upload{}, fmt.Errorf("%w: upload exceeds %d bytes", pipeline.ErrTooLarge, maxBytes)
		}
		return pipeline.Upload{
			Name:        part.FileName(),
			ContentType: part.Header.Get("Content-Type"),
			Data:        data,
		}, nil
	}
}

func uploadReadError(err error) error {
	var mbe *http.MaxBytesError
	if errors.As(err, &mbe) {
		return fmt.Errorf("%w: request body exceeds %d bytes", pipeline.ErrTooLarge, mbe.Limit)
	}
	return fmt.Errorf("%w: %v", errBadUpload, err)
}

// PhotoInfo handles GET /api/photo.
func (h *Handler) PhotoInfo(w http.ResponseWriter, r *http.Request) {
	sess, ok := h.session(w, r)
	if !ok {
		return
	}
	_, info, loaded := sess.Snapshot()
	if !loaded {
		h.writeError(w, r, pipeline.ErrMissingSource)
		return
	}
	writeJSON(w, http.StatusOK, info)
}

// PhotoPreview handles GET /api/photo/preview with a downscaled PNG.
func (h *Handler) PhotoPreview(w http.ResponseWriter, r *http.Request) {
	sess, ok := h.session(w, r)
	if !ok {
		return
	}
	img, _, loaded := sess.Snapshot()
	if !loaded {
		h.writeError(w, r, pipeline.ErrMissingSource)
		return
	}

	settings, _ := h.current()
	data, err := pipeline.PreviewPNG(img, settings.PreviewDimension)
	if err != nil {
		h.writeError(w, r, fmt.Errorf("%w: preview: %w", pipeline.ErrEncodeFailure, err))
		return
	}
	w.Header().Set("Content-Type", "image/png")
	w.Header().Set("Content-Length", strconv.Itoa(len(data)))
	w.Header().Set("Cache-Control", "no-store")
	_, _ = w.Write(data)
}

// RotatePhoto handles POST /api/photo/rotate with form field "degrees".
func (h *Handler) RotatePhoto(w http.ResponseWriter, r *http.Request) {
	sess, ok := h.session(w, r)
	if !ok {
		return
	}
	if err := r.ParseForm(); err != nil {
		badRequest(w, "Invalid form data.")
		return
	}

	raw := strings.TrimSpace(r.FormValue("degrees"))
	degrees, err := strconv.Atoi(raw)
	if err != nil {
		h.writeError(w, r, fmt.Errorf("%w: %q", pipeline.ErrInvalidAngle, raw))
		return
	}

	info, err := sess.Rotate(r.Context(), degrees)
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	h.metrics.LogRotate(degrees)
	writeJSON(w, http.StatusOK, info)
}

// ClearPhoto handles DELETE /api/photo.
func (h *Handler) ClearPhoto(w http.ResponseWriter, r *http.Request) {
	sess, ok := h.session(w, r)
	if !ok {
		return
	}
	if err := sess.Clear(); err != nil {
		h.writeError(w, r, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}
