package main

import (
	"encoding/json"
	"fmt"
	"io"
	"strings"
	"text/tabwriter"
	"time"

	"calendarchy/internal/models"
)

// dateRange parses --from and --to as whole days in now's location. An
// empty from means today and an empty to means six days after from.
func dateRange(from, to string, now time.Time) (time.Time, time.Time, error) {
	loc := now.Location()
	start := time.Date(now.Year(), now.Month(), now.Day(), 0, 0, 0, 0, loc)
	if from != "" {
		t, err := time.ParseInLocation(time.DateOnly, from, loc)
		if err != nil {
			return time.Time{}, time.Time{}, fmt.Errorf("invalid --from date %q: %w", from, err)
		}
		start = t
	}

	end := start.AddDate(0, 0, 6)
	if to != "" {
		t, err := time.ParseInLocation(time.DateOnly, to, loc)
		if err != nil {
			return time.Time{}, time.Time{}, fmt.Errorf("invalid --to date %q: %w", to, err)
		}
		end = t
	}
	if end.Before(start) {
		return time.Time{}, time.Time{}, fmt.Errorf("--to %s is before --from %s", end.Format(time.DateOnly), start.Format(time.DateOnly))
	}
	return start, end, nil
}

func writeCalendars(w io.Writer, provider models.Provider, handles []models.CalendarHandle) {
	tw := tabwriter.NewWriter(w, 0, 4, 2, ' ', 0)
	for _, h := range handles {
		fmt.Fprintf(tw, "%s\t%s\t%s\n", provider, h.DisplayName(), h.URL)
	}
	tw.Flush()
}

// writeEvents prints one line per event grouped under a date header.
func writeEvents(w io.Writer, events []models.Event) {
	var day time.Time
	for i, ev := range events {
		if i == 0 || !ev.Date.Equal(day) {
			if i > 0 {
				fmt.Fprintln(w)
			}
			day = ev.Date
			fmt.Fprintln(w, day.Format("Monday, 2 January 2006"))
		}
		fmt.Fprintln(w, eventLine(ev))
	}
}

func eventLine(ev models.Event) string {
	var b strings.Builder
	b.WriteString("  ")
	if ev.IsAllDay() {
		b.WriteString(fmt.Sprintf("%-11s", models.AllDay))
	} else if ev.EndTime != "" {
		b.WriteString(ev.StartTime + "-" + ev.EndTime)
	} else {
		b.WriteString(fmt.Sprintf("%-11s", ev.StartTime))
	}
	b.WriteString("  ")

	switch {
	case ev.Organizer:
		b.WriteString("*")
	case !ev.Accepted:
		b.WriteString("?")
	default:
		b.WriteString(" ")
	}
	b.WriteString(" ")
	b.WriteString(ev.Title)

	if ev.Free {
		b.WriteString(" (free)")
	}
	if ev.MeetingURL != "" {
		b.WriteString("  " + ev.MeetingURL)
	}
	if ev.ID != nil {
		b.WriteString("  [" + string(ev.ID.Provider()) + "]")
	}
	return b.String()
}

// jsonEvent adds the provider name beside the event id.
type jsonEvent struct {
	Provider models.Provider `json:"provider"`
	models.Event
}

func writeJSON(w io.Writer, events []models.Event) error {
	out := make([]jsonEvent, 0, len(events))
	for _, ev := range events {
		je := jsonEvent{Event: ev}
		if ev.ID != nil {
			je.Provider = ev.ID.Provider()
		}
		out = append(out, je)
	}
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	return enc.Encode(out)
}
