package http

import (
	"context"
	"encoding/json"
	"net/http"

	"go.uber.org/zap"

	"github.com/etrax-rescue/etrax-rescue-app-interface/internal/middleware"
	"github.com/etrax-rescue/etrax-rescue-app-interface/internal/models"
)

// LocationRecorder stores batches of location fixes reported by the app.
type LocationRecorder interface {
	RecordLocations(ctx context.Context, user *models.User, fixes []models.LocationFix) error
}

// LocationHandler handles location update requests.
type LocationHandler struct {
	Recorder LocationRecorder
	Log      *zap.Logger
}

// Update handles POST /locationupdate. The body is a JSON array of
// location fixes; the whole batch is stored as tracking rows used for
// track rendering in the web interface.
func (h *LocationHandler) Update(w http.ResponseWriter, r *http.Request) {
	user := middleware.GetUserFromContext(r.Context())

	var fixes []models.LocationFix
	if err := json.NewDecoder(r.Body).Decode(&fixes); err != nil {
		http.Error(w, "bad request", http.StatusBadRequest)
		return
	}

	if err := h.Recorder.RecordLocations(r.Context(), user, fixes); err != nil {
		writeServiceError(w, h.Log, err)
		return
	}
	w.WriteHeader(http.StatusCreated)
	_, _ = w.Write([]byte("created"))
}
