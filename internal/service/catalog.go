package service

import (
	"strconv"
	"time"

	"github.com/etrax-rescue/etrax-rescue-app-interface/internal/models"
)

// The status and role catalogs come from loosely typed JSON documents
// maintained in the web interface; numeric values arrive as numbers or
// digit strings interchangeably.

// statusEntry is one entry of the organization's status catalog. Entries
// with an index of quickActionThreshold or below are selectable states;
// entries above it are quick actions.
type statusEntry struct {
	ID       int
	Text     string
	Tracking int
	Enabled  bool
}

// quickActionThreshold separates regular states from quick actions in the
// status catalog; the index equal to it is the sign-off status.
const quickActionThreshold = 11

// appStatusEntries extracts the app-enabled entries of the organization's
// status catalog, indexed by status code.
func appStatusEntries(org *models.Organization) []statusEntry {
	list, ok := org.Status["app"].([]any)
	if !ok {
		return nil
	}
	var entries []statusEntry
	for i, item := range list {
		fields, ok := item.(map[string]any)
		if !ok {
			continue
		}
		if toInt(fields["use"]) != 1 {
			continue
		}
		text, _ := fields["text"].(string)
		entries = append(entries, statusEntry{
			ID:       i,
			Text:     text,
			Tracking: toInt(fields["tracking"]),
			Enabled:  true,
		})
	}
	return entries
}

// roleEntry is one app-enabled entry of the organization's role catalog.
type roleEntry struct {
	ID int
	// Long is the display name, Short the abbreviation recorded in rosters.
	Long  string
	Short string
}

// appRoleEntries extracts the app-enabled roles, indexed by role id.
func appRoleEntries(org *models.Organization) []roleEntry {
	var roles []roleEntry
	for i, fields := range org.Functions {
		if toInt(fields["app"]) != 1 {
			continue
		}
		long, _ := fields["lang"].(string)
		short, _ := fields["kurz"].(string)
		roles = append(roles, roleEntry{ID: i, Long: long, Short: short})
	}
	return roles
}

// toInt coerces a loosely typed JSON value to an int; unparseable values
// yield 0.
func toInt(v any) int {
	switch n := v.(type) {
	case float64:
		return int(n)
	case int:
		return n
	case string:
		i, _ := strconv.Atoi(n)
		return i
	case bool:
		if n {
			return 1
		}
	}
	return 0
}

// toFloat coerces a loosely typed JSON value to a float64; unparseable
// values yield 0.
func toFloat(v any) float64 {
	switch n := v.(type) {
	case float64:
		return n
	case int:
		return float64(n)
	case string:
		f, _ := strconv.ParseFloat(n, 64)
		return f
	}
	return 0
}

// timeLayouts are the formats mission timestamps have been observed in.
var timeLayouts = []string{
	time.RFC3339,
	"2006-01-02 15:04:05",
	"2006-01-02 15:04",
	"2006-01-02",
	"02.01.2006",
}

// parseTime parses a loosely formatted timestamp; the zero time and false
// are returned when no known layout matches.
func parseTime(value string) (time.Time, bool) {
	for _, layout := range timeLayouts {
		if t, err := time.Parse(layout, value); err == nil {
			return t, true
		}
	}
	return time.Time{}, false
}
