package handlers

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"strconv"
	"strings"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/lumen-lms/apiserver/internal/apperr"
	"github.com/lumen-lms/apiserver/internal/logger"
)

const (
	maxJSONBytes       = 1 << 20
	maxUploadBytes     = 512 << 20
	maxImportBytes     = 10 << 20
	maxMultipartMemory = 32 << 20
)

// envelope is the body of every API response. writeJSON adds success=true.
type envelope map[string]any

// ErrorResponse is the body of a failed request.
type ErrorResponse struct {
	Success bool   `json:"success"`
	Error   string `json:"error"`
}

func writeJSON(w http.ResponseWriter, status int, payload envelope) {
	if payload == nil {
		payload = envelope{}
	}
	payload["success"] = true
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(payload)
}

// writeError logs err with the request id and writes the failure envelope.
// Internal details never reach the client.
func writeError(w http.ResponseWriter, r *http.Request, log *logger.Logger, err error) {
	status := apperr.Status(err)
	kv := []any{
		"request_id", middleware.GetReqID(r.Context()),
		"method", r.Method,
		"path", r.URL.Path,
		"status", status,
		"error", err,
	}
	if status >= http.StatusInternalServerError {
		log.Error("request failed", kv...)
	} else {
		log.Debug("request rejected", kv...)
	}

	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(ErrorResponse{Success: false, Error: apperr.Message(err)})
}

// decodeJSON reads a bounded JSON body into v.
func decodeJSON(w http.ResponseWriter, r *http.Request, v any) error {
	r.Body = http.MaxBytesReader(w, r.Body, maxJSONBytes)
	if err := json.NewDecoder(r.Body).Decode(v); err != nil {
		var tooLarge *http.MaxBytesError
		switch {
		case errors.As(err, &tooLarge):
			return apperr.Validation("request body is too large")
		case errors.Is(err, io.EOF):
			return apperr.Validation("request body is required")
		default:
			return apperr.Validation("invalid request body")
		}
	}
	return nil
}

func parseID(raw, name string) (int64, error) {
	id, err := strconv.ParseInt(strings.TrimSpace(raw), 10, 64)
	if err != nil || id < 1 {
		return 0, apperr.Validation("invalid %s", name)
	}
	return id, nil
}

// urlID reads a positive id from a chi path parameter.
func urlID(r *http.Request, param, name string) (int64, error) {
	return parseID(chi.URLParam(r, param), name)
}

// queryID reads an optional positive id from the query string.
func queryID(r *http.Request, key string) (*int64, error) {
	raw := strings.TrimSpace(r.URL.Query().Get(key))
	if raw == "" {
		return nil, nil
	}
	id, err := parseID(raw, key)
	if err != nil {
		return nil, err
	}
	return &id, nil
}

// requiredQueryID reads a mandatory positive id from the query string.
func requiredQueryID(r *http.Request, key string) (int64, error) {
	id, err := queryID(r, key)
	if err != nil {
		return 0, err
	}
	if id == nil {
		return 0, apperr.Validation("%s is required", key)
	}
	return *id, nil
}

func queryBool(r *http.Request, key string) (*bool, error) {
	raw := strings.TrimSpace(r.URL.Query().Get(key))
	if raw == "" {
		return nil, nil
	}
	v, err := strconv.ParseBool(raw)
	if err != nil {
		return nil, apperr.Validation("invalid %s", key)
	}
	return &v, nil
}

// Pinger reports whether a dependency is reachable.
type Pinger interface {
	PingContext(ctx context.Context) error
}

// Healthz answers liveness probes, checking db when given.
func Healthz(db Pinger, log *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if db != nil {
			if err := db.PingContext(r.Context()); err != nil {
				writeError(w, r, log, apperr.Dependency(err, "database unavailable"))
				return
			}
		}
		writeJSON(w, http.StatusOK, envelope{"status": "ok"})
	}
}

// NotFound and MethodNotAllowed keep unknown routes inside the envelope.
func NotFound(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusNotFound)
	_ = json.NewEncoder(w).Encode(ErrorResponse{Error: "not found"})
}

func MethodNotAllowed(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusMethodNotAllowed)
	_ = json.NewEncoder(w).Encode(ErrorResponse{Error: "method not allowed"})
}
