package handler

import (
	"context"
	"errors"
	"net/http"
	"strconv"
	"time"

	"go.uber.org/zap"

	"idphoto/internal/logging"
	"idphoto/internal/metrics"
	"idphoto/internal/pipeline"
)

// ErrorResponse is the JSON body of every failed API call.
type ErrorResponse struct {
	Error string `json:"error"`
	Kind  string `json:"kind"`
}

const (
	kindForbidden   = "forbidden"
	kindRateLimited = "rate_limited"
	kindBadRequest  = "bad_request"
)

var kindMessages = map[pipeline.Kind]string{
	pipeline.KindInvalidInputType: "Unsupported file type. Choose an image such as JPEG, PNG, WebP or AVIF.",
	pipeline.KindDecodeFailure:    "We couldn't read that photo. Try another file or export it again.",
	pipeline.KindEncodeFailure:    "The photo could not be saved in that format. Try another format.",
	pipeline.KindMissingSource:    "Load a photo first.",
	pipeline.KindBusy:             "Still working on the previous request. Try again in a moment.",
	pipeline.KindInvalidOptions:   "Some settings are invalid. Check the size, format, quality and color.",
	pipeline.KindInternal:         "Something went wrong. Please try again.",
}

var kindStatus = map[pipeline.Kind]int{
	pipeline.KindInvalidInputType: http.StatusUnsupportedMediaType,
	pipeline.KindDecodeFailure:    http.StatusUnprocessableEntity,
	pipeline.KindEncodeFailure:    http.StatusInternalServerError,
	pipeline.KindMissingSource:    http.StatusConflict,
	pipeline.KindBusy:             http.StatusLocked,
	pipeline.KindInvalidOptions:   http.StatusBadRequest,
	pipeline.KindInternal:         http.StatusInternalServerError,
}

var kindEvents = map[pipeline.Kind]metrics.EventType{
	pipeline.KindInvalidInputType: metrics.EventRejectedType,
	pipeline.KindDecodeFailure:    metrics.EventDecodeFailure,
	pipeline.KindEncodeFailure:    metrics.EventEncodeFailure,
	pipeline.KindMissingSource:    metrics.EventMissingSource,
	pipeline.KindBusy:             metrics.EventBusy,
}

// friendlyError maps err to a status code, its category and the one message
// shown for that category.
func friendlyError(err error) (int, pipeline.Kind, string) {
	kind := pipeline.KindOf(err)
	if kind == pipeline.KindNone {
		kind = pipeline.KindInternal
	}
	status := kindStatus[kind]
	if errors.Is(err, pipeline.ErrTooLarge) {
		status = http.StatusRequestEntityTooLarge
	}
	return status, kind, kindMessages[kind]
}

// writeError reports err to the client and records it.
func (h *Handler) writeError(w http.ResponseWriter, r *http.Request, err error) {
	status, kind, msg := friendlyError(err)
	log := logging.FromContext(r.Context())

	switch {
	case errors.Is(err, context.Canceled):
		log.Debug("request canceled", zap.String("path", r.URL.Path))
	case kind == pipeline.KindInternal || kind == pipeline.KindEncodeFailure:
		log.Error("request failed", zap.String("kind", string(kind)), zap.Error(err))
	default:
		log.Info("request rejected", zap.String("kind", string(kind)), zap.Error(err))
	}
	if ev, ok := kindEvents[kind]; ok {
		h.metrics.LogEvent(ev, zap.String("path", r.URL.Path))
	}

	writeJSON(w, status, ErrorResponse{Error: msg, Kind: string(kind)})
}

func badRequest(w http.ResponseWriter, msg string) {
	writeJSON(w, http.StatusBadRequest, ErrorResponse{Error: msg, Kind: kindBadRequest})
}

// CSRFFailed answers requests rejected by the CSRF middleware.
func (h *Handler) CSRFFailed(w http.ResponseWriter, r *http.Request, err error) {
	logging.FromContext(r.Context()).Warn("csrf check failed", zap.String("path", r.URL.Path), zap.Error(err))
	writeJSON(w, http.StatusForbidden, ErrorResponse{
		Error: "Your session expired. Reload the page and try again.",
		Kind:  kindForbidden,
	})
}

// RateLimited answers requests rejected by the rate limiter.
func (h *Handler) RateLimited(w http.ResponseWriter, _ *http.Request, retryAfter time.Duration) {
	secs := int(retryAfter.Round(time.Second).Seconds())
	if secs < 1 {
		secs = 1
	}
	writeJSON(w, http.StatusTooManyRequests, ErrorResponse{
		Error: "Too many requests. Try again in " + strconv.Itoa(secs) + "s.",
		Kind:  kindRateLimited,
	})
}
