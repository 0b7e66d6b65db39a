// Package ics decodes the subset of iCalendar (RFC 5545) that CalDAV
// servers return for calendar-query reports: VEVENT blocks with their
// times, text fields, attendees and transparency. Recurrence rules are not
// expanded and TZID parameters are recorded but not resolved.
package ics

import (
	"time"

	"calendarchy/internal/models"
)

// Participation status values used by ATTENDEE and ORGANIZER lines.
const (
	PartStatAccepted    = "ACCEPTED"
	PartStatDeclined    = "DECLINED"
	PartStatTentative   = "TENTATIVE"
	PartStatNeedsAction = "NEEDS-ACTION"
)

// Time is a decoded DTSTART or DTEND value.
type Time struct {
	time.Time
	AllDay bool   // VALUE=DATE, Time is midnight UTC
	TZID   string // carried from the parameter, never resolved
}

// Attendee is a decoded ATTENDEE or ORGANIZER line.
type Attendee struct {
	Name      string
	Email     string
	PartStat  string
	Organizer bool
}

// Status maps the attendee onto the shared status taxonomy.
func (a Attendee) Status() models.AttendeeStatus {
	if a.Organizer {
		return models.StatusOrganizer
	}
	switch a.PartStat {
	case PartStatAccepted:
		return models.StatusAccepted
	case PartStatTentative:
		return models.StatusTentative
	case PartStatDeclined:
		return models.StatusDeclined
	default:
		return models.StatusNeedsAction
	}
}

// Event is one decoded VEVENT. UID and Start are always present.
type Event struct {
	UID         string
	Summary     string
	Start       Time
	End         *Time
	Location    string
	Description string
	URL         string
	Transparent bool
	Accepted    bool
	Attendees   []Attendee
}

// Title returns the summary or a placeholder when it is empty.
func (e *Event) Title() string {
	if e.Summary == "" {
		return models.NoTitle
	}
	return e.Summary
}

// MeetingURL prefers a conferencing URL property, then scans the location
// and description text.
func (e *Event) MeetingURL() string {
	if e.URL != "" && models.IsMeetingURL(e.URL) {
		return e.URL
	}
	if u := models.ExtractMeetingURL(e.Location); u != "" {
		return u
	}
	return models.ExtractMeetingURL(e.Description)
}

// builder accumulates the fields of an open VEVENT. Nothing is defaulted
// until build.
type builder struct {
	uid         *string
	summary     *string
	start       *Time
	end         *Time
	location    *string
	description *string
	url         *string
	transp      *string
	partStat    *string // from the last ATTENDEE line carrying one
	attendees   []Attendee
}

func (b *builder) build() (Event, bool) {
	if b.uid == nil || *b.uid == "" || b.start == nil {
		return Event{}, false
	}
	return Event{
		UID:         *b.uid,
		Summary:     deref(b.summary),
		Start:       *b.start,
		End:         b.end,
		Location:    deref(b.location),
		Description: deref(b.description),
		URL:         deref(b.url),
		Transparent: b.transp != nil && *b.transp == "TRANSPARENT",
		Accepted:    acceptedFrom(b.partStat),
		Attendees:   b.attendees,
	}, true
}

// acceptedFrom treats a missing or unrecognised status as accepted.
func acceptedFrom(partStat *string) bool {
	if partStat == nil {
		return true
	}
	switch *partStat {
	case PartStatNeedsAction, PartStatTentative, PartStatDeclined:
		return false
	default:
		return true
	}
}

func deref(s *string) string {
	if s == nil {
		return ""
	}
	return *s
}

func ptr[T any](v T) *T { return &v }
