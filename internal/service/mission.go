package service

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/etrax-rescue/etrax-rescue-app-interface/internal/apperr"
	"github.com/etrax-rescue/etrax-rescue-app-interface/internal/models"
	"github.com/etrax-rescue/etrax-rescue-app-interface/internal/roster"
)

// MissionRepository defines the mission persistence operations required by
// the MissionService.
type MissionRepository interface {
	// GetByEID returns a mission's core record or apperr.ErrNotFound.
	GetByEID(ctx context.Context, eid int64) (*models.Mission, error)
	// ListAll returns all missions, newest first.
	ListAll(ctx context.Context) ([]models.Mission, error)
	// GetWanted returns the target-person record of a mission.
	GetWanted(ctx context.Context, eid int64) (map[string]any, error)
	// GetSearchAreas returns the search-area GeoJSON document of a mission.
	GetSearchAreas(ctx context.Context, eid int64) (map[string]any, error)
	// MutateRoster transforms the roster document under the mission's
	// write lock.
	MutateRoster(ctx context.Context, eid int64, fn func([]models.Participant) ([]models.Participant, error)) error
	// MutatePOIs transforms the POI document under the mission's write
	// lock.
	MutatePOIs(ctx context.Context, eid int64, fn func(map[string]any) (map[string]any, error)) error
}

// LocationRepository defines the tracking persistence required by the
// MissionService.
type LocationRepository interface {
	InsertBatch(ctx context.Context, points []models.TrackPoint) error
}

// ImageStore abstracts mission image persistence; scaling and serving are
// handled elsewhere.
type ImageStore interface {
	Save(eid int64, name string, data []byte) error
	Exists(eid int64, name string) bool
}

// AppConfiguration carries the app's polling settings.
type AppConfiguration struct {
	LocationUpdateInterval    int `json:"locationUpdateInterval"`
	LocationUpdateMinDistance int `json:"locationUpdateMinDistance"`
	InfoUpdateInterval        int `json:"infoUpdateInterval"`
}

// StateOption is a selectable state or quick action offered to the app.
type StateOption struct {
	ID               int    `json:"id"`
	Name             string `json:"name"`
	Description      string `json:"description"`
	LocationAccuracy int    `json:"locationAccuracy"`
}

// RoleOption is a selectable mission role offered to the app.
type RoleOption struct {
	ID          int    `json:"id"`
	Name        string `json:"name"`
	Description string `json:"description"`
}

// MissionSummary is one selectable mission in the initialization data.
type MissionSummary struct {
	ID        int64     `json:"id"`
	Name      string    `json:"name"`
	Start     time.Time `json:"start"`
	Latitude  float64   `json:"latitude"`
	Longitude float64   `json:"longitude"`
	Exercise  bool      `json:"exercise"`
}

// InitializationData is the payload of the initialization endpoint.
type InitializationData struct {
	AppConfiguration AppConfiguration `json:"appConfiguration"`
	States           []StateOption    `json:"states"`
	Roles            []RoleOption     `json:"roles"`
	Actions          []StateOption    `json:"actions"`
	Missions         []MissionSummary `json:"missions"`
}

// DetailEntry is one item of the mission details response; either a text
// entry (Title/Body) or an image reference (Title/UID).
type DetailEntry struct {
	Type  string `json:"type"`
	Title string `json:"title"`
	Body  any    `json:"body,omitempty"`
	UID   string `json:"uid,omitempty"`
}

// SearchArea is one search area of the active mission in app form.
type SearchArea struct {
	ID          any    `json:"id"`
	Label       string `json:"label"`
	Description string `json:"description"`
	Color       string `json:"color"`
	Coordinates any    `json:"coordinates"`
}

// MissionService implements mission participation: joining a mission,
// role/state selection, mission metadata, POIs and location tracking.
type MissionService struct {
	users     UserRepository
	orgs      OrganizationRepository
	missions  MissionRepository
	locations LocationRepository
	images    ImageStore
	notifier  StatusNotifier
	log       *zap.Logger

	// now is swapped out in tests.
	now func() time.Time
}

// NewMissionService constructs a MissionService from its collaborators.
func NewMissionService(
	users UserRepository,
	orgs OrganizationRepository,
	missions MissionRepository,
	locations LocationRepository,
	images ImageStore,
	notifier StatusNotifier,
	log *zap.Logger,
) *MissionService {
	return &MissionService{
		users:     users,
		orgs:      orgs,
		missions:  missions,
		locations: locations,
		images:    images,
		notifier:  notifier,
		log:       log,
		now:       time.Now,
	}
}

// Initialization assembles the app configuration, the state/action/role
// catalogs of the user's organization and the active missions visible to
// it.
func (s *MissionService) Initialization(ctx context.Context, user *models.User) (*InitializationData, error) {
	org, err := s.orgs.GetByOID(ctx, user.OID)
	if err != nil {
		return nil, err
	}

	data := &InitializationData{
		AppConfiguration: AppConfiguration{
			LocationUpdateInterval:    toInt(org.AppSettings["readposition"]),
			LocationUpdateMinDistance: toInt(org.AppSettings["distance"]),
			InfoUpdateInterval:        toInt(org.AppSettings["updateinfo"]),
		},
		States:   []StateOption{},
		Roles:    []RoleOption{},
		Actions:  []StateOption{},
		Missions: []MissionSummary{},
	}

	for _, entry := range appStatusEntries(org) {
		option := StateOption{ID: entry.ID, Name: entry.Text, LocationAccuracy: entry.Tracking}
		switch {
		case entry.ID > quickActionThreshold:
			data.Actions = append(data.Actions, option)
		case entry.ID < quickActionThreshold:
			// The sign-off status itself is never offered for selection.
			data.States = append(data.States, option)
		}
	}

	for _, role := range appRoleEntries(org) {
		data.Roles = append(data.Roles, RoleOption{ID: role.ID, Name: role.Long})
	}

	missions, err := s.missions.ListAll(ctx)
	if err != nil {
		return nil, err
	}
	for i := range missions {
		mission := &missions[i]
		if !mission.Active() || !containsString(mission.ParticipatingOrganizations(), user.OID) {
			continue
		}
		name, _ := mission.Data["einsatz"].(string)
		start, _ := parseTime(stringField(mission.Data, "anfang"))
		data.Missions = append(data.Missions, MissionSummary{
			ID:        mission.EID,
			Name:      name,
			Start:     start,
			Latitude:  toFloat(mission.Data["elat"]),
			Longitude: toFloat(mission.Data["elon"]),
			Exercise:  mission.Exercise(),
		})
	}

	return data, nil
}

// SelectMission records that the user joined the given mission: the user's
// active mission is set and a join record with the user's identity and
// contact data is merged into the mission's roster.
func (s *MissionService) SelectMission(ctx context.Context, user *models.User, eid int64) error {
	mission, err := s.missions.GetByEID(ctx, eid)
	if err != nil {
		return err
	}
	if !mission.Active() {
		return fmt.Errorf("mission %d is closed: %w", eid, apperr.ErrNotFound)
	}

	org, err := s.orgs.GetByOID(ctx, user.OID)
	if err != nil {
		return err
	}

	if err := s.users.SetActiveMission(ctx, user.ID, eid); err != nil {
		return err
	}

	patch := map[string]any{
		"UID":              user.UID,
		"OID":              user.OID,
		"dienstnummer":     user.Field("dienstnummer"),
		"name":             user.Field("name"),
		"phone":            user.Field("telefon"),
		"email":            user.Field("email"),
		"bos":              user.Field("bos"),
		"orgname":          org.Field("kurzname"),
		"ausbildungen":     user.Field("ausbildungen"),
		"aktivierungszeit": strconv.FormatInt(s.now().Unix(), 10),
		"sender":           "active",
	}
	return s.upsertParticipant(ctx, eid, user.UID, patch)
}

// SelectRole records the role the user takes during the active mission.
// The role's abbreviation is merged into the user's roster entry.
func (s *MissionService) SelectRole(ctx context.Context, user *models.User, roleID int) error {
	org, err := s.orgs.GetByOID(ctx, user.OID)
	if err != nil {
		return err
	}

	var role *roleEntry
	for _, r := range appRoleEntries(org) {
		if r.ID == roleID {
			role = &r
			break
		}
	}
	if role == nil {
		return fmt.Errorf("role %d: %w", roleID, apperr.ErrNotFound)
	}

	eid, err := s.activeMission(ctx, user)
	if err != nil {
		return err
	}
	return s.upsertParticipant(ctx, eid, user.UID, map[string]any{"typ": role.Short})
}

// SelectState reports the user's new status during the active mission to
// the web interface.
func (s *MissionService) SelectState(ctx context.Context, user *models.User, stateID int) error {
	org, err := s.orgs.GetByOID(ctx, user.OID)
	if err != nil {
		return err
	}
	if !statusExists(org, stateID, false) {
		return fmt.Errorf("state %d: %w", stateID, apperr.ErrNotFound)
	}

	if _, err := s.activeMission(ctx, user); err != nil {
		return err
	}

	props := map[string]any{"status": strconv.Itoa(stateID)}
	return s.notifier.SendStatus(ctx, org.Token, user.UID, props)
}

// QuickAction triggers a quick action (a status above the selectable
// range) together with the user's current location.
func (s *MissionService) QuickAction(ctx context.Context, user *models.User, actionID int, location *models.LocationFix) error {
	org, err := s.orgs.GetByOID(ctx, user.OID)
	if err != nil {
		return err
	}
	if !statusExists(org, actionID, true) {
		return fmt.Errorf("action %d: %w", actionID, apperr.ErrNotFound)
	}

	if _, err := s.activeMission(ctx, user); err != nil {
		return err
	}

	props := map[string]any{
		"status":    strconv.Itoa(actionID),
		"lat":       -1.0,
		"lon":       -1.0,
		"altitude":  0.0,
		"hdop":      -1.0,
		"speed":     -1.0,
		"timestamp": "0",
	}
	if location != nil {
		props["lat"] = location.Latitude
		props["lon"] = location.Longitude
		props["altitude"] = location.Altitude
		props["hdop"] = location.Accuracy
		props["speed"] = location.Speed
		props["timestamp"] = strconv.FormatInt(int64(location.Time), 10)
	}
	return s.notifier.SendStatus(ctx, org.Token, user.UID, props)
}

// MissionActive reports whether the user's selected mission is still
// running. A user without a selection, or with a vanished mission, simply
// has no active mission.
func (s *MissionService) MissionActive(ctx context.Context, user *models.User) (bool, error) {
	if user.ActiveMissionID == nil {
		return false, nil
	}
	mission, err := s.missions.GetByEID(ctx, *user.ActiveMissionID)
	if err != nil {
		if isNotFound(err) {
			return false, nil
		}
		return false, err
	}
	return mission.Active(), nil
}

// detailLabels maps target-person record fields to the titles shown in the
// app, in display order.
var detailLabels = []struct {
	field string
	title string
}{
	{"gesuchtbeschreibung", "Beschreibung"},
	{"gesuchtname", "Name"},
	{"gesuchtalter", "Alter"},
}

// Details returns the target-person information of the active mission: an
// image reference when one is stored, and the non-empty text fields. A
// missing age is derived from the birthdate field when possible.
func (s *MissionService) Details(ctx context.Context, user *models.User) ([]DetailEntry, error) {
	eid, err := s.selectedMission(user)
	if err != nil {
		return nil, err
	}

	wanted, err := s.missions.GetWanted(ctx, eid)
	if err != nil {
		return nil, err
	}

	entries := []DetailEntry{}
	if s.images.Exists(eid, "gesucht_big") {
		entries = append(entries, DetailEntry{Type: "image", Title: "Bild", UID: "gesucht_big"})
	}

	for _, label := range detailLabels {
		value := wanted[label.field]
		if label.field == "gesuchtalter" && stringField(wanted, label.field) == "" {
			if age, ok := s.ageFromBirthdate(stringField(wanted, "gesuchtgebdatum")); ok {
				value = age
			}
		}
		switch v := value.(type) {
		case string:
			if v == "" || v == " " {
				continue
			}
		case nil:
			continue
		}
		entries = append(entries, DetailEntry{Type: "text", Title: label.title, Body: value})
	}
	return entries, nil
}

func (s *MissionService) ageFromBirthdate(birthdate string) (int, bool) {
	if birthdate == "" {
		return 0, false
	}
	born, ok := parseTime(birthdate)
	if !ok {
		s.log.Info("failed to parse birthdate field")
		return 0, false
	}
	now := s.now()
	age := now.Year() - born.Year()
	if now.YearDay() < born.YearDay() {
		age--
	}
	if age < 0 {
		return 0, false
	}
	return age, true
}

// searchAreaTypes are the feature types of the search-area document the
// app can display.
var searchAreaTypes = map[string]bool{
	"Wegsuche":   true,
	"Punktsuche": true,
	"Suchgebiet": true,
}

// SearchAreas returns the displayable search areas of the active mission.
// Polygon features contribute their outer ring; point features a single
// coordinate pair.
func (s *MissionService) SearchAreas(ctx context.Context, user *models.User) ([]SearchArea, error) {
	eid, err := s.selectedMission(user)
	if err != nil {
		return nil, err
	}

	doc, err := s.missions.GetSearchAreas(ctx, eid)
	if err != nil {
		return nil, err
	}

	areas := []SearchArea{}
	features, _ := doc["features"].([]any)
	for _, item := range features {
		feature, ok := item.(map[string]any)
		if !ok {
			continue
		}
		props, _ := feature["properties"].(map[string]any)
		geometry, _ := feature["geometry"].(map[string]any)
		if props == nil || geometry == nil || !searchAreaTypes[stringField(props, "typ")] {
			continue
		}

		area := SearchArea{
			ID:          props["id"],
			Label:       stringField(props, "name"),
			Description: stringField(props, "beschreibung"),
			Color:       stringField(props, "color"),
		}
		switch stringField(geometry, "type") {
		case "Polygon":
			coords, _ := geometry["coordinates"].([]any)
			if len(coords) == 0 {
				continue
			}
			area.Coordinates = coords[0]
		case "Point":
			area.Coordinates = []any{geometry["coordinates"]}
		default:
			continue
		}
		areas = append(areas, area)
	}
	return areas, nil
}

// UploadPOI stores a point of interest reported from the field: the image
// bytes go to the image store (under the original and the "_big" name, so
// the web interface finds both variants) and a GeoJSON feature is appended
// to the mission's encrypted POI document.
func (s *MissionService) UploadPOI(ctx context.Context, user *models.User, latitude, longitude float64, description string, image []byte) error {
	eid, err := s.selectedMission(user)
	if err != nil {
		return err
	}
	if _, err := s.missions.GetByEID(ctx, eid); err != nil {
		return err
	}

	nowMS := strconv.FormatInt(s.now().UnixMilli(), 10)
	imageName := "poi_" + user.UID + "_" + nowMS
	if err := s.images.Save(eid, imageName+"_big", image); err != nil {
		return err
	}
	if err := s.images.Save(eid, imageName, image); err != nil {
		return err
	}

	feature := map[string]any{
		"type": "Feature",
		"properties": map[string]any{
			"id":           uuid.NewString(),
			"uid":          user.UID,
			"oid":          user.OID,
			"name":         "POI",
			"color":        "#c00",
			"beschreibung": description,
			"img":          imageName,
			"poi":          nowMS,
		},
		"geometry": map[string]any{
			"type":        "Point",
			"coordinates": []any{longitude, latitude},
		},
	}

	return s.missions.MutatePOIs(ctx, eid, func(pois map[string]any) (map[string]any, error) {
		features, _ := pois["features"].([]any)
		pois["features"] = append(features, feature)
		return pois, nil
	})
}

// RecordLocations stores a batch of location fixes as tracking rows
// attributed to the user and their active mission.
func (s *MissionService) RecordLocations(ctx context.Context, user *models.User, fixes []models.LocationFix) error {
	points := make([]models.TrackPoint, 0, len(fixes))
	for _, fix := range fixes {
		points = append(points, models.TrackPoint{
			EID:       user.ActiveMissionID,
			OID:       user.OID,
			UID:       user.UID,
			Lat:       fix.Latitude,
			Lon:       fix.Longitude,
			Timestamp: strconv.FormatInt(int64(fix.Time), 10),
			HDOP:      fix.Accuracy,
			Altitude:  fix.Altitude,
			Speed:     fix.Speed,
			Origin:    "APP",
			MemberOID: user.OID,
		})
	}
	return s.locations.InsertBatch(ctx, points)
}

// upsertParticipant merges a patch into the user's roster entry under the
// mission's write lock.
func (s *MissionService) upsertParticipant(ctx context.Context, eid int64, uid string, patch map[string]any) error {
	return s.missions.MutateRoster(ctx, eid, func(participants []models.Participant) ([]models.Participant, error) {
		return roster.Upsert(participants, uid, patch), nil
	})
}

// activeMission resolves the user's selected mission and verifies it is
// still running.
func (s *MissionService) activeMission(ctx context.Context, user *models.User) (int64, error) {
	eid, err := s.selectedMission(user)
	if err != nil {
		return 0, err
	}
	mission, err := s.missions.GetByEID(ctx, eid)
	if err != nil {
		return 0, err
	}
	if !mission.Active() {
		return 0, fmt.Errorf("mission %d is closed: %w", eid, apperr.ErrNotFound)
	}
	return eid, nil
}

func (s *MissionService) selectedMission(user *models.User) (int64, error) {
	if user.ActiveMissionID == nil {
		return 0, fmt.Errorf("no mission selected: %w", apperr.ErrNotFound)
	}
	return *user.ActiveMissionID, nil
}

// statusExists reports whether the given status code is offered by the
// organization; quickActionsOnly restricts the check to quick actions.
func statusExists(org *models.Organization, id int, quickActionsOnly bool) bool {
	for _, entry := range appStatusEntries(org) {
		if quickActionsOnly && entry.ID <= quickActionThreshold {
			continue
		}
		if entry.ID == id {
			return true
		}
	}
	return false
}

func isNotFound(err error) bool {
	return errors.Is(err, apperr.ErrNotFound)
}

func stringField(fields map[string]any, name string) string {
	s, _ := fields[name].(string)
	return s
}

func containsString(list []string, want string) bool {
	for _, s := range list {
		if s == want {
			return true
		}
	}
	return false
}
