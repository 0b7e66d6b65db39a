// Package normalize converts provider events into models.Event.
package normalize

import (
	"time"

	"calendarchy/internal/icloud"
	"calendarchy/internal/models"

	"google.golang.org/api/calendar/v3"
)

// Google response statuses.
const (
	googleAccepted    = "accepted"
	googleTentative   = "tentative"
	googleDeclined    = "declined"
	googleTransparent = "transparent"
)

// FromGoogle converts a Google event, rendering its times in loc. It
// returns false when the event has no usable start.
func FromGoogle(ev *calendar.Event, calendarID, calendarName string, loc *time.Location) (models.Event, bool) {
	if ev == nil || ev.Start == nil {
		return models.Event{}, false
	}
	if loc == nil {
		loc = time.Local
	}

	out := models.Event{
		ID: models.GoogleEventID{
			CalendarID:   calendarID,
			EventID:      ev.Id,
			CalendarName: calendarName,
		},
		Title:       title(ev.Summary),
		Description: ev.Description,
		Location:    ev.Location,
		Free:        ev.Transparency == googleTransparent,
	}

	switch {
	case ev.Start.DateTime != "":
		start, err := time.Parse(time.RFC3339, ev.Start.DateTime)
		if err != nil {
			return models.Event{}, false
		}
		start = start.In(loc)
		out.Date = models.CivilDate(start)
		out.StartTime = models.ClockString(start)
		if ev.End != nil && ev.End.DateTime != "" {
			if end, err := time.Parse(time.RFC3339, ev.End.DateTime); err == nil {
				out.EndTime = models.ClockString(end.In(loc))
			}
		}
	case ev.Start.Date != "":
		day, err := time.Parse(time.DateOnly, ev.Start.Date)
		if err != nil {
			return models.Event{}, false
		}
		out.Date = day
		out.StartTime = models.AllDay
	default:
		return models.Event{}, false
	}

	out.Organizer, out.Accepted = googleSelf(ev.Attendees)
	out.Attendees = googleAttendees(ev.Attendees)
	out.MeetingURL = googleMeetingURL(ev)
	return out, true
}

// googleSelf derives the organizer and acceptance flags from the attendee
// marked as the authenticated user.
func googleSelf(attendees []*calendar.EventAttendee) (organizer, accepted bool) {
	if len(attendees) == 0 {
		return true, true
	}
	for _, a := range attendees {
		if a == nil || !a.Self {
			continue
		}
		if a.Organizer {
			return true, true
		}
		return false, a.ResponseStatus == googleAccepted
	}
	return false, true
}

func googleAttendees(in []*calendar.EventAttendee) []models.Attendee {
	if len(in) == 0 {
		return nil
	}
	out := make([]models.Attendee, 0, len(in))
	for _, a := range in {
		if a == nil || a.Email == "" {
			continue
		}
		status := models.StatusNeedsAction
		switch {
		case a.Organizer:
			status = models.StatusOrganizer
		case a.ResponseStatus == googleAccepted:
			status = models.StatusAccepted
		case a.ResponseStatus == googleTentative:
			status = models.StatusTentative
		case a.ResponseStatus == googleDeclined:
			status = models.StatusDeclined
		}
		out = append(out, models.Attendee{
			Name:   displayName(a.DisplayName, a.Email),
			Email:  a.Email,
			Status: status,
		})
	}
	return finishAttendees(out)
}

func googleMeetingURL(ev *calendar.Event) string {
	if ev.HangoutLink != "" {
		return ev.HangoutLink
	}
	if ev.ConferenceData != nil {
		for _, ep := range ev.ConferenceData.EntryPoints {
			if ep != nil && ep.EntryPointType == "video" && ep.Uri != "" {
				return ep.Uri
			}
		}
	}
	if u := models.ExtractMeetingURL(ev.Location); u != "" {
		return u
	}
	return models.ExtractMeetingURL(ev.Description)
}

// FromICloud converts a decoded CalDAV event. Times are used as decoded.
func FromICloud(ev icloud.Event, calendarName string) models.Event {
	out := models.Event{
		ID: models.ICloudEventID{
			CalendarURL:  ev.CalendarURL,
			UID:          ev.UID,
			ETag:         ev.ETag,
			Href:         ev.Href,
			CalendarName: calendarName,
		},
		Title:       ev.Title(),
		Date:        models.CivilDate(ev.Start.Time),
		Accepted:    ev.Accepted,
		Organizer:   len(ev.Attendees) == 0,
		Free:        ev.Transparent,
		MeetingURL:  ev.MeetingURL(),
		Description: ev.Description,
		Location:    ev.Location,
	}

	if ev.Start.AllDay {
		out.StartTime = models.AllDay
	} else {
		out.StartTime = models.ClockString(ev.Start.Time)
		if ev.End != nil && !ev.End.AllDay {
			out.EndTime = models.ClockString(ev.End.Time)
		}
	}

	if len(ev.Attendees) > 0 {
		attendees := make([]models.Attendee, 0, len(ev.Attendees))
		for _, a := range ev.Attendees {
			attendees = append(attendees, models.Attendee{
				Name:   displayName(a.Name, a.Email),
				Email:  a.Email,
				Status: a.Status(),
			})
		}
		out.Attendees = finishAttendees(attendees)
	}
	return out
}

// finishAttendees sorts and drops repeated addresses, keeping the
// highest-ranked entry.
func finishAttendees(attendees []models.Attendee) []models.Attendee {
	models.SortAttendees(attendees)
	return models.DedupeAttendees(attendees)
}

func displayName(name, email string) string {
	if name != "" {
		return name
	}
	return models.NameFromEmail(email)
}

func title(summary string) string {
	if summary == "" {
		return models.NoTitle
	}
	return summary
}
