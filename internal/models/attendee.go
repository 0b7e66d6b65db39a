package models

import (
	"cmp"
	"slices"
	"strings"
	"unicode"
	"unicode/utf8"
)

// AttendeeStatus is an attendee's participation status. The declaration
// order is the display order.
type AttendeeStatus int

const (
	StatusOrganizer AttendeeStatus = iota
	StatusAccepted
	StatusTentative
	StatusNeedsAction
	StatusDeclined
)

var statusNames = [...]string{
	StatusOrganizer:   "organizer",
	StatusAccepted:    "accepted",
	StatusTentative:   "tentative",
	StatusNeedsAction: "needs-action",
	StatusDeclined:    "declined",
}

func (s AttendeeStatus) String() string {
	if s < 0 || int(s) >= len(statusNames) {
		return "unknown"
	}
	return statusNames[s]
}

// MarshalText encodes the status by name.
func (s AttendeeStatus) MarshalText() ([]byte, error) {
	return []byte(s.String()), nil
}

// UnmarshalText decodes a status name; unknown names become NeedsAction.
func (s *AttendeeStatus) UnmarshalText(text []byte) error {
	for i, name := range statusNames {
		if name == string(text) {
			*s = AttendeeStatus(i)
			return nil
		}
	}
	*s = StatusNeedsAction
	return nil
}

// Attendee is a participant of an event.
type Attendee struct {
	Name   string         `json:"name"`
	Email  string         `json:"email"`
	Status AttendeeStatus `json:"status"`
}

// SortAttendees orders attendees by status, then by name.
func SortAttendees(attendees []Attendee) {
	slices.SortStableFunc(attendees, func(a, b Attendee) int {
		if c := cmp.Compare(a.Status, b.Status); c != 0 {
			return c
		}
		return cmp.Compare(strings.ToLower(a.Name), strings.ToLower(b.Name))
	})
}

// DedupeAttendees keeps the first entry per email (case-insensitive).
// Call it on a sorted list so the highest-ranked entry survives.
func DedupeAttendees(attendees []Attendee) []Attendee {
	seen := make(map[string]bool, len(attendees))
	out := attendees[:0]
	for _, a := range attendees {
		key := strings.ToLower(a.Email)
		if key != "" && seen[key] {
			continue
		}
		seen[key] = true
		out = append(out, a)
	}
	return out
}

// NameFromEmail derives a display name from the local part of an address:
// "jane.doe-smith@x.com" becomes "Jane Doe Smith".
func NameFromEmail(email string) string {
	local, _, _ := strings.Cut(email, "@")
	parts := strings.FieldsFunc(local, func(r rune) bool {
		return r == '.' || r == '_' || r == '-'
	})
	for i, p := range parts {
		r, size := utf8.DecodeRuneInString(p)
		parts[i] = string(unicode.ToUpper(r)) + p[size:]
	}
	return strings.Join(parts, " ")
}
