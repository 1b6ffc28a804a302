package bridge

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"

	"github.com/voidstore/storesync/logging"
	"github.com/voidstore/storesync/store"
	storesync "github.com/voidstore/storesync/sync"
	"github.com/voidstore/storesync/tree"
)

// ErrorResponse is the body of every failed request.
type ErrorResponse struct {
	Error string `json:"error"`
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		logging.Sub("bridge").Warn("encode response failed", "err", err)
	}
}

func writeOK(w http.ResponseWriter) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

func writeErrorMessage(w http.ResponseWriter, status int, msg string) {
	writeJSON(w, status, ErrorResponse{Error: msg})
}

// statusFor maps store result codes onto HTTP statuses.
func statusFor(err error) int {
	switch {
	case errors.Is(err, tree.ErrInvalidFilename), errors.Is(err, store.ErrInvalidPath):
		return http.StatusBadRequest
	case errors.Is(err, store.ErrNoSuchFile):
		return http.StatusNotFound
	case errors.Is(err, store.ErrFileAlreadyExists):
		return http.StatusConflict
	case errors.Is(err, store.ErrPermission):
		return http.StatusForbidden
	case errors.Is(err, store.ErrFileTooLarge):
		return http.StatusRequestEntityTooLarge
	case errors.Is(err, storesync.ErrClosed):
		return http.StatusServiceUnavailable
	case errors.Is(err, context.Canceled), errors.Is(err, context.DeadlineExceeded):
		return http.StatusRequestTimeout
	}
	return http.StatusInternalServerError
}

func writeError(w http.ResponseWriter, err error) {
	status := statusFor(err)
	if status >= http.StatusInternalServerError {
		logging.Sub("bridge").Error("request failed", "err", err)
	}
	writeErrorMessage(w, status, store.Message(err))
}

func decode(w http.ResponseWriter, r *http.Request, v any) bool {
	if err := json.NewDecoder(r.Body).Decode(v); err != nil {
		logging.Sub("bridge").Warn("bad body", "path", r.URL.Path, "err", err)
		writeErrorMessage(w, http.StatusBadRequest, "invalid request body")
		return false
	}
	return true
}

// validPath rejects malformed store paths before any store call.
func validPath(w http.ResponseWriter, p string) bool {
	if _, err := store.CleanPath(p); err != nil || p == "" {
		writeErrorMessage(w, http.StatusBadRequest, "invalid path: "+p)
		return false
	}
	return true
}

func queryPath(w http.ResponseWriter, r *http.Request) (string, bool) {
	p := r.URL.Query().Get("path")
	if p == "" {
		p = tree.RootPath
	}
	if !validPath(w, p) {
		return "", false
	}
	clean, _ := store.CleanPath(p)
	return clean, true
}
