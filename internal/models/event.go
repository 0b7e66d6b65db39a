package models

import (
	"fmt"
	"strings"
	"time"
)

// AllDay is the StartTime of an event that has no time of day.
const AllDay = "All day"

// NoTitle is the Title of an event without a summary.
const NoTitle = "(No title)"

// Provider names the calendar backend an event came from.
type Provider string

const (
	ProviderGoogle Provider = "google"
	ProviderICloud Provider = "icloud"
)

// EventID identifies an event at its provider. It carries exactly the keys
// needed to accept, decline or delete that event later. The set of
// implementations is closed: GoogleEventID and ICloudEventID.
type EventID interface {
	Provider() Provider
	eventID()
}

// GoogleEventID identifies a Google Calendar event.
type GoogleEventID struct {
	CalendarID   string `json:"calendar_id"`
	EventID      string `json:"event_id"`
	CalendarName string `json:"calendar_name,omitempty"`
}

func (GoogleEventID) Provider() Provider { return ProviderGoogle }
func (GoogleEventID) eventID()           {}

// ICloudEventID identifies a CalDAV calendar object.
type ICloudEventID struct {
	CalendarURL  string `json:"calendar_url"`
	UID          string `json:"uid"`
	ETag         string `json:"etag,omitempty"`
	Href         string `json:"href,omitempty"` // resource URL as reported by the server
	CalendarName string `json:"calendar_name,omitempty"`
}

func (ICloudEventID) Provider() Provider { return ProviderICloud }
func (ICloudEventID) eventID()           {}

// Event is the provider-independent representation of a calendar event.
// Events are rebuilt on every fetch; they are never updated in place.
type Event struct {
	ID          EventID    `json:"id"`
	Title       string     `json:"title"`
	Date        time.Time  `json:"date"`                 // midnight UTC of the start day
	StartTime   string     `json:"start_time"`           // "HH:MM" or AllDay
	EndTime     string     `json:"end_time,omitempty"`   // "HH:MM", empty for all-day events
	Accepted    bool       `json:"accepted"`             // accepted, organizer, or no response required
	Organizer   bool       `json:"organizer"`            // the user owns the event
	Free        bool       `json:"free"`                 // transparent, does not block time
	MeetingURL  string     `json:"meeting_url,omitempty"`
	Description string     `json:"description,omitempty"`
	Location    string     `json:"location,omitempty"`
	Attendees   []Attendee `json:"attendees,omitempty"`
}

// IsAllDay reports whether the event has no start time of day.
func (e *Event) IsAllDay() bool {
	return e.StartTime == AllDay
}

// CalendarHandle is a calendar discovered on a provider.
type CalendarHandle struct {
	URL  string `json:"url"`
	Name string `json:"name,omitempty"`
}

// DisplayName returns the calendar name, falling back to its URL.
func (h CalendarHandle) DisplayName() string {
	if h.Name != "" {
		return h.Name
	}
	return h.URL
}

// CivilDate truncates t to midnight UTC of its calendar day in t's location.
func CivilDate(t time.Time) time.Time {
	y, m, d := t.Date()
	return time.Date(y, m, d, 0, 0, 0, 0, time.UTC)
}

// ClockString formats the time of day as HH:MM.
func ClockString(t time.Time) string {
	return t.Format("15:04")
}

// Response is a reply to an invitation.
type Response string

const (
	ResponseAccepted  Response = "accepted"
	ResponseDeclined  Response = "declined"
	ResponseTentative Response = "tentative"
)

// ParseResponse accepts "accepted", "declined" or "tentative" in any case.
func ParseResponse(s string) (Response, error) {
	switch r := Response(strings.ToLower(strings.TrimSpace(s))); r {
	case ResponseAccepted, ResponseDeclined, ResponseTentative:
		return r, nil
	}
	return "", fmt.Errorf("invalid response %q: want accepted, declined or tentative", s)
}
