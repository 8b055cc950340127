// Package models defines the core data structures shared between the
// repositories, services and handlers. JSON field names on persisted
// documents are a wire contract with the web interface that owns the same
// database and must not be renamed.
package models

import (
	"strings"
	"time"
)

// User represents a row of the user table. Data holds the decrypted
// content of the encrypted "data" column.
type User struct {
	// ID is the primary key of the user row.
	ID int64
	// UID is the user identity referenced by rosters and tracking rows.
	UID string
	// OID identifies the organization the user belongs to.
	OID string
	// Data is the decrypted user record (name, contact info, password).
	Data map[string]any
	// TokenHash is the sha256 hex digest of the current session token.
	// Empty when the user has no live session.
	TokenHash string
	// TokenExpiresAt is the expiry instant of the current session token.
	TokenExpiresAt *time.Time
	// ActiveMissionID is the mission the user joined, nil when none.
	ActiveMissionID *int64
}

// Field returns a string field from the decrypted user record, or "" when
// absent or of a different type.
func (u *User) Field(name string) string {
	s, _ := u.Data[name].(string)
	return s
}

// Participant is one entry of a mission's roster document. The data array
// holds exactly one field map; the surrounding array is part of the stored
// shape.
type Participant struct {
	ID   string           `json:"id"`
	Data []map[string]any `json:"data"`
}

// Fields returns the participant's field map, or nil for a malformed entry.
func (p *Participant) Fields() map[string]any {
	if len(p.Data) == 0 {
		return nil
	}
	return p.Data[0]
}

// Mission represents a row of the settings table. Data holds the first
// element of the decrypted "data" document.
type Mission struct {
	// EID is the mission identifier.
	EID int64
	// Type distinguishes real missions from exercises ("uebung").
	Type string
	// Data is the decrypted mission record.
	Data map[string]any
}

// Active reports whether the mission is still running, i.e. has no end
// timestamp yet.
func (m *Mission) Active() bool {
	ende, _ := m.Data["ende"].(string)
	return ende == ""
}

// Exercise reports whether the mission is a training exercise.
func (m *Mission) Exercise() bool {
	return m.Type == "uebung"
}

// ParticipatingOrganizations collects the organization ids allowed to see
// this mission: the owning OID plus the comma-separated access lists.
func (m *Mission) ParticipatingOrganizations() []string {
	seen := make(map[string]struct{})
	var orgs []string
	add := func(oid string) {
		if oid == "" {
			return
		}
		if _, ok := seen[oid]; ok {
			return
		}
		seen[oid] = struct{}{}
		orgs = append(orgs, oid)
	}

	if oid, ok := m.Data["OID"].(string); ok {
		add(oid)
	}
	for _, key := range []string{"Ogleich", "Ozeichnen", "Ozuweisen", "Olesen"} {
		if list, ok := m.Data[key].(string); ok {
			for _, oid := range strings.Split(list, ",") {
				add(strings.TrimSpace(oid))
			}
		}
	}
	return orgs
}

// Organization represents a row of the organisation table. Data holds the
// decrypted organization record; Status, Functions and AppSettings are
// stored as plain JSON.
type Organization struct {
	// ID is the primary key of the organisation row.
	ID int64
	// OID is the public organization identifier.
	OID string
	// Token authenticates this server against the web interface's status
	// update endpoint on behalf of the organization.
	Token string
	// Active reports whether the organization is enabled.
	Active bool
	// Data is the decrypted organization record (display name, short name).
	Data map[string]any
	// Status holds the status catalog; Status["app"] lists the states and
	// quick actions selectable in the app, indexed by status code.
	Status map[string]any
	// Functions lists the mission roles, indexed by role id.
	Functions []map[string]any
	// AppSettings holds the app configuration values (update intervals).
	AppSettings map[string]any
}

// Field returns a string field from the decrypted organization record, or
// "" when absent or of a different type.
func (o *Organization) Field(name string) string {
	s, _ := o.Data[name].(string)
	return s
}

// LocationFix is a single location measurement reported by the app.
type LocationFix struct {
	Latitude  float64 `json:"latitude"`
	Longitude float64 `json:"longitude"`
	Altitude  float64 `json:"altitude"`
	Accuracy  float64 `json:"accuracy"`
	Speed     float64 `json:"speed"`
	// Time is the measurement timestamp in unix milliseconds.
	Time float64 `json:"time"`
}

// TrackPoint is a row of the tracking table.
type TrackPoint struct {
	// EID is the mission during which the point was recorded, nil when the
	// user had no mission selected.
	EID *int64
	// OID and UID identify the reporting user.
	OID string
	UID string
	// Lat and Lon are the coordinates in degrees.
	Lat float64
	Lon float64
	// Timestamp is the measurement time as a unix-second string.
	Timestamp string
	// HDOP is the horizontal accuracy estimate in meters.
	HDOP float64
	// Altitude is in meters above sea level.
	Altitude float64
	// Speed is in meters per second.
	Speed float64
	// Origin marks the source of the point; the app always reports "APP".
	Origin string
	// MemberOID is the organization membership the point is billed to.
	MemberOID string
}
