package models

import (
	"encoding/json"
	"testing"
	"time"
)

func TestExtractMeetingURL(t *testing.T) {
	testCases := []struct {
		name     string
		text     string
		expected string
	}{
		{
			name:     "zoom link in sentence",
			text:     "Join: https://us04web.zoom.us/j/123 now",
			expected: "https://us04web.zoom.us/j/123",
		},
		{
			name:     "meet link at end of text",
			text:     "Join meeting at https://meet.google.com/abc-def-ghi",
			expected: "https://meet.google.com/abc-def-ghi",
		},
		{
			name:     "teams link in html",
			text:     `<a href="https://teams.microsoft.com/l/meetup-join/19">Join</a>`,
			expected: "https://teams.microsoft.com/l/meetup-join/19",
		},
		{
			name:     "link followed by newline",
			text:     "https://zoom.us/j/999\nPasscode: 1",
			expected: "https://zoom.us/j/999",
		},
		{
			name:     "no meeting link",
			text:     "https://example.com/not-a-meeting",
			expected: "",
		},
		{
			name:     "empty text",
			text:     "",
			expected: "",
		},
	}

	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			if got := ExtractMeetingURL(tc.text); got != tc.expected {
				t.Errorf("expected %q, got %q", tc.expected, got)
			}
		})
	}
}

func TestIsMeetingURL(t *testing.T) {
	if !IsMeetingURL("https://zoom.us/j/123") {
		t.Error("expected zoom url to be a meeting url")
	}
	if !IsMeetingURL("https://teams.microsoft.com/l/meetup") {
		t.Error("expected teams url to be a meeting url")
	}
	if IsMeetingURL("https://example.com") {
		t.Error("did not expect example.com to be a meeting url")
	}
}

func TestSortAttendees(t *testing.T) {
	attendees := []Attendee{
		{Name: "Zed", Status: StatusDeclined},
		{Name: "bob", Status: StatusAccepted},
		{Name: "Carol", Status: StatusNeedsAction},
		{Name: "Alice", Status: StatusAccepted},
		{Name: "Olga", Status: StatusOrganizer},
		{Name: "Tom", Status: StatusTentative},
	}

	SortAttendees(attendees)

	expected := []string{"Olga", "Alice", "bob", "Tom", "Carol", "Zed"}
	for i, name := range expected {
		if attendees[i].Name != name {
			t.Errorf("expected %q at index %d, got %q", name, i, attendees[i].Name)
		}
	}
}

func TestDedupeAttendees(t *testing.T) {
	attendees := []Attendee{
		{Name: "Olga", Email: "olga@x.com", Status: StatusOrganizer},
		{Name: "Olga", Email: "OLGA@x.com", Status: StatusAccepted},
		{Name: "Bob", Email: "bob@x.com", Status: StatusAccepted},
	}

	got := DedupeAttendees(attendees)
	if len(got) != 2 {
		t.Fatalf("expected 2 attendees, got %d", len(got))
	}
	if got[0].Status != StatusOrganizer {
		t.Errorf("expected organizer entry to survive, got %v", got[0].Status)
	}
}

func TestNameFromEmail(t *testing.T) {
	testCases := []struct {
		email    string
		expected string
	}{
		{"jane.doe@example.com", "Jane Doe"},
		{"john_smith@example.com", "John Smith"},
		{"mary-ann.lee@example.com", "Mary Ann Lee"},
		{"solo@example.com", "Solo"},
		{"no-at-sign", "No At Sign"},
		{"", ""},
	}

	for _, tc := range testCases {
		t.Run(tc.email, func(t *testing.T) {
			if got := NameFromEmail(tc.email); got != tc.expected {
				t.Errorf("expected %q, got %q", tc.expected, got)
			}
		})
	}
}

func TestAttendeeStatusText(t *testing.T) {
	data, err := json.Marshal(Attendee{Name: "A", Email: "a@x.com", Status: StatusTentative})
	if err != nil {
		t.Fatal(err)
	}
	if string(data) != `{"name":"A","email":"a@x.com","status":"tentative"}` {
		t.Errorf("unexpected json: %s", data)
	}

	var status AttendeeStatus
	if err := status.UnmarshalText([]byte("declined")); err != nil || status != StatusDeclined {
		t.Errorf("expected declined, got %v (%v)", status, err)
	}
	if err := status.UnmarshalText([]byte("bogus")); err != nil || status != StatusNeedsAction {
		t.Errorf("expected needs-action for unknown status, got %v", status)
	}
}

func TestEventIDProvider(t *testing.T) {
	var ids = []EventID{
		GoogleEventID{CalendarID: "primary", EventID: "e1"},
		ICloudEventID{CalendarURL: "https://caldav.icloud.com/1/calendars/home/", UID: "u1"},
	}
	expected := []Provider{ProviderGoogle, ProviderICloud}
	for i, id := range ids {
		if id.Provider() != expected[i] {
			t.Errorf("expected provider %q, got %q", expected[i], id.Provider())
		}
	}
}

func TestCivilDateAndClock(t *testing.T) {
	loc := time.FixedZone("UTC+2", 2*3600)
	ts := time.Date(2026, 1, 8, 0, 30, 0, 0, loc)

	if got := CivilDate(ts); !got.Equal(time.Date(2026, 1, 8, 0, 0, 0, 0, time.UTC)) {
		t.Errorf("unexpected civil date %v", got)
	}
	if got := ClockString(ts); got != "00:30" {
		t.Errorf("expected 00:30, got %q", got)
	}
}

func TestParseResponse(t *testing.T) {
	testCases := []struct {
		in       string
		expected Response
		wantErr  bool
	}{
		{in: "accepted", expected: ResponseAccepted},
		{in: " Declined ", expected: ResponseDeclined},
		{in: "TENTATIVE", expected: ResponseTentative},
		{in: "maybe", wantErr: true},
	}

	for _, tc := range testCases {
		t.Run(tc.in, func(t *testing.T) {
			got, err := ParseResponse(tc.in)
			if tc.wantErr {
				if err == nil {
					t.Errorf("expected error for %q", tc.in)
				}
				return
			}
			if err != nil {
				t.Fatalf("unexpected error: %v", err)
			}
			if got != tc.expected {
				t.Errorf("expected %q, got %q", tc.expected, got)
			}
		})
	}
}
