// Package http provides the HTTP handlers of the app interface: version
// probing, organization listing, login/logout and the mission endpoints.
package http

import (
	"encoding/json"
	"errors"
	"net/http"

	"go.uber.org/zap"

	"github.com/etrax-rescue/etrax-rescue-app-interface/internal/apperr"
)

// writeJSON encodes v with the charset headers the app expects.
func writeJSON(w http.ResponseWriter, v any) {
	w.Header().Set("Content-Type", "application/json;charset=UTF-8")
	_ = json.NewEncoder(w).Encode(v)
}

// writeServiceError maps service failures onto the response contract:
// absent entities become an empty "no content" response rather than an
// error, conflicts invite a retry, and credential failures stay
// undifferentiated.
func writeServiceError(w http.ResponseWriter, log *zap.Logger, err error) {
	switch {
	case errors.Is(err, apperr.ErrNotFound):
		w.WriteHeader(http.StatusNoContent)
	case errors.Is(err, apperr.ErrConflict):
		http.Error(w, "conflict, retry", http.StatusConflict)
	case errors.Is(err, apperr.ErrInvalidCredentials):
		http.Error(w, "unauthorized", http.StatusUnauthorized)
	default:
		log.Error("request failed", zap.Error(err))
		http.Error(w, "internal error", http.StatusInternalServerError)
	}
}
