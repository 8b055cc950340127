// Package roster maintains the "personen_im_einsatz" document of a mission:
// the list of participants currently active in it. It is a pure document
// transformer; serialization against concurrent writers is the caller's
// responsibility (see repository.MutateRoster).
package roster

import (
	"github.com/etrax-rescue/etrax-rescue-app-interface/internal/models"
)

// defaultFields is the canonical field set every participant entry carries.
// The keys are a wire contract with the web interface; entries written by
// older versions may miss some of them and are healed on the next merge.
var defaultFields = map[string]any{
	"UID":              "",
	"OID":              "",
	"dienstnummer":     "",
	"orgname":          "",
	"name":             "",
	"phone":            "",
	"email":            "",
	"bos":              "",
	"typ":              "",
	"pause":            "",
	"sender":           "",
	"ausbildungen":     "",
	"gruppe":           "",
	"status":           0,
	"aktivierungszeit": "",
	"eingerueckt":      "",
	"inPause":          "",
	"ausPause":         "",
	"abgemeldet":       "",
}

// Defaults returns a fresh copy of the canonical participant field map.
func Defaults() map[string]any {
	fields := make(map[string]any, len(defaultFields))
	for k, v := range defaultFields {
		fields[k] = v
	}
	return fields
}

// Upsert merges a participant's patch into the roster and returns the
// updated roster.
//
// If an entry with the given id exists, every canonical field missing from
// it is first backfilled with its default value; present values are never
// reset. Otherwise a fully-defaulted entry is appended. The patch is then
// applied to the entry's existing keys only: a patch cannot introduce new
// field names, and a patch touching a single field leaves all others exactly
// as stored. Duplicate ids are not expected, but if present only the first
// occurrence is updated.
func Upsert(participants []models.Participant, id string, patch map[string]any) []models.Participant {
	if participants == nil {
		participants = []models.Participant{}
	}

	index := -1
	for i := range participants {
		if participants[i].ID == id {
			index = i
			break
		}
	}

	var fields map[string]any
	if index >= 0 {
		fields = cloneFields(participants[index].Fields())
		for k, v := range defaultFields {
			if _, ok := fields[k]; !ok {
				fields[k] = v
			}
		}
	} else {
		fields = Defaults()
	}

	for k := range fields {
		if v, ok := patch[k]; ok {
			fields[k] = v
		}
	}

	if index >= 0 {
		participants[index] = models.Participant{ID: id, Data: []map[string]any{fields}}
		return participants
	}
	return append(participants, models.Participant{ID: id, Data: []map[string]any{fields}})
}

func cloneFields(fields map[string]any) map[string]any {
	clone := make(map[string]any, len(fields))
	for k, v := range fields {
		clone[k] = v
	}
	return clone
}
