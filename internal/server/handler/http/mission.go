package http

import (
	"context"
	"encoding/json"
	"io"
	"net/http"

	"go.uber.org/zap"

	"github.com/etrax-rescue/etrax-rescue-app-interface/internal/middleware"
	"github.com/etrax-rescue/etrax-rescue-app-interface/internal/models"
	"github.com/etrax-rescue/etrax-rescue-app-interface/internal/service"
)

// maxPOIImageSize bounds an uploaded POI image.
const maxPOIImageSize = 20 << 20

// MissionService defines the mission operations required by the HTTP
// handlers.
type MissionService interface {
	Initialization(ctx context.Context, user *models.User) (*service.InitializationData, error)
	SelectMission(ctx context.Context, user *models.User, eid int64) error
	SelectRole(ctx context.Context, user *models.User, roleID int) error
	SelectState(ctx context.Context, user *models.User, stateID int) error
	QuickAction(ctx context.Context, user *models.User, actionID int, location *models.LocationFix) error
	MissionActive(ctx context.Context, user *models.User) (bool, error)
	Details(ctx context.Context, user *models.User) ([]service.DetailEntry, error)
	SearchAreas(ctx context.Context, user *models.User) ([]service.SearchArea, error)
	UploadPOI(ctx context.Context, user *models.User, latitude, longitude float64, description string, image []byte) error
}

// MissionHandler handles the mission endpoints for the authenticated user.
type MissionHandler struct {
	MissionService MissionService
	Log            *zap.Logger
}

// Initialization handles GET /initialization: app configuration, state,
// action and role catalogs, and the missions selectable by the user.
func (h *MissionHandler) Initialization(w http.ResponseWriter, r *http.Request) {
	user := middleware.GetUserFromContext(r.Context())

	data, err := h.MissionService.Initialization(r.Context(), user)
	if err != nil {
		writeServiceError(w, h.Log, err)
		return
	}
	writeJSON(w, data)
}

// SelectMission handles POST /missionselect with {"mission_id": ...}.
func (h *MissionHandler) SelectMission(w http.ResponseWriter, r *http.Request) {
	user := middleware.GetUserFromContext(r.Context())

	var req struct {
		MissionID *json.Number `json:"mission_id"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil || req.MissionID == nil {
		http.Error(w, "bad request", http.StatusBadRequest)
		return
	}
	eid, err := req.MissionID.Int64()
	if err != nil {
		http.Error(w, "bad request", http.StatusBadRequest)
		return
	}

	if err := h.MissionService.SelectMission(r.Context(), user, eid); err != nil {
		writeServiceError(w, h.Log, err)
		return
	}
	_, _ = w.Write([]byte("ok"))
}

// SelectRole handles POST /roleselect with {"role_id": ...}.
func (h *MissionHandler) SelectRole(w http.ResponseWriter, r *http.Request) {
	user := middleware.GetUserFromContext(r.Context())

	id, ok := decodeIDRequest(r, "role_id")
	if !ok {
		http.Error(w, "bad request", http.StatusBadRequest)
		return
	}

	if err := h.MissionService.SelectRole(r.Context(), user, id); err != nil {
		writeServiceError(w, h.Log, err)
		return
	}
	_, _ = w.Write([]byte("ok"))
}

// SelectState handles POST /stateselect with {"state_id": ...}.
func (h *MissionHandler) SelectState(w http.ResponseWriter, r *http.Request) {
	user := middleware.GetUserFromContext(r.Context())

	id, ok := decodeIDRequest(r, "state_id")
	if !ok {
		http.Error(w, "bad request", http.StatusBadRequest)
		return
	}

	if err := h.MissionService.SelectState(r.Context(), user, id); err != nil {
		writeServiceError(w, h.Log, err)
		return
	}
	_, _ = w.Write([]byte("ok"))
}

// QuickAction handles POST /quickaction with {"action_id": ...,
// "location": {...}}; the location is optional.
func (h *MissionHandler) QuickAction(w http.ResponseWriter, r *http.Request) {
	user := middleware.GetUserFromContext(r.Context())

	var req struct {
		ActionID *json.Number        `json:"action_id"`
		Location *models.LocationFix `json:"location"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil || req.ActionID == nil {
		http.Error(w, "bad request", http.StatusBadRequest)
		return
	}
	id, err := req.ActionID.Int64()
	if err != nil {
		http.Error(w, "bad request", http.StatusBadRequest)
		return
	}

	if err := h.MissionService.QuickAction(r.Context(), user, int(id), req.Location); err != nil {
		writeServiceError(w, h.Log, err)
		return
	}
	_, _ = w.Write([]byte("ok"))
}

// MissionActive handles GET /missionactive and reports whether the user's
// selected mission is still running.
func (h *MissionHandler) MissionActive(w http.ResponseWriter, r *http.Request) {
	user := middleware.GetUserFromContext(r.Context())

	active, err := h.MissionService.MissionActive(r.Context(), user)
	if err != nil {
		writeServiceError(w, h.Log, err)
		return
	}
	writeJSON(w, active)
}

// Details handles GET /missiondetails and returns the target-person
// information of the active mission.
func (h *MissionHandler) Details(w http.ResponseWriter, r *http.Request) {
	user := middleware.GetUserFromContext(r.Context())

	entries, err := h.MissionService.Details(r.Context(), user)
	if err != nil {
		writeServiceError(w, h.Log, err)
		return
	}
	writeJSON(w, entries)
}

// SearchAreas handles GET /searchareas and returns the search areas of the
// active mission.
func (h *MissionHandler) SearchAreas(w http.ResponseWriter, r *http.Request) {
	user := middleware.GetUserFromContext(r.Context())

	areas, err := h.MissionService.SearchAreas(r.Context(), user)
	if err != nil {
		writeServiceError(w, h.Log, err)
		return
	}
	writeJSON(w, areas)
}

// UploadPOI handles POST /uploadpoi. The multipart form carries a
// "location_data" JSON field, a "description" field and the "image" file.
func (h *MissionHandler) UploadPOI(w http.ResponseWriter, r *http.Request) {
	user := middleware.GetUserFromContext(r.Context())

	if err := r.ParseMultipartForm(maxPOIImageSize); err != nil {
		http.Error(w, "bad request", http.StatusBadRequest)
		return
	}

	var location struct {
		Latitude  *float64 `json:"latitude"`
		Longitude *float64 `json:"longitude"`
	}
	locationData := r.FormValue("location_data")
	description := r.FormValue("description")
	if err := json.Unmarshal([]byte(locationData), &location); err != nil ||
		location.Latitude == nil || location.Longitude == nil || description == "" {
		http.Error(w, "bad request", http.StatusBadRequest)
		return
	}

	file, _, err := r.FormFile("image")
	if err != nil {
		http.Error(w, "bad request", http.StatusBadRequest)
		return
	}
	defer file.Close()
	image, err := io.ReadAll(io.LimitReader(file, maxPOIImageSize))
	if err != nil || len(image) == 0 {
		http.Error(w, "bad request", http.StatusBadRequest)
		return
	}

	if err := h.MissionService.UploadPOI(r.Context(), user, *location.Latitude, *location.Longitude, description, image); err != nil {
		writeServiceError(w, h.Log, err)
		return
	}
	w.WriteHeader(http.StatusCreated)
	_, _ = w.Write([]byte("created"))
}

// decodeIDRequest reads a single numeric id field from a JSON body.
func decodeIDRequest(r *http.Request, field string) (int, bool) {
	var body map[string]json.Number
	decoder := json.NewDecoder(r.Body)
	decoder.UseNumber()
	if err := decoder.Decode(&body); err != nil {
		return 0, false
	}
	id, ok := body[field]
	if !ok {
		return 0, false
	}
	n, err := id.Int64()
	if err != nil {
		return 0, false
	}
	return int(n), true
}
