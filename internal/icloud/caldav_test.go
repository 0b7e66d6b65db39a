package icloud

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"calendarchy/internal/calerr"
	"calendarchy/internal/models"
	"calendarchy/internal/tracelog"
)

const (
	testUser     = "me@icloud.com"
	testPassword = "app-password"
)

func newTestClient(t *testing.T, handler http.HandlerFunc, opts ...Option) (*Client, *httptest.Server) {
	t.Helper()
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		user, pass, ok := r.BasicAuth()
		if !ok || user != testUser || pass != testPassword {
			t.Errorf("expected basic auth credentials, got %q/%q", user, pass)
		}
		handler(w, r)
	}))
	t.Cleanup(server.Close)

	opts = append([]Option{WithHTTPClient(server.Client())}, opts...)
	client, err := NewClient(server.URL, testUser, testPassword, opts...)
	if err != nil {
		t.Fatalf("failed to create client: %v", err)
	}
	return client, server
}

func multistatus(inner string) string {
	return `<?xml version="1.0" encoding="UTF-8"?>` +
		`<d:multistatus xmlns:d="DAV:" xmlns:c="urn:ietf:params:xml:ns:caldav">` + inner + `</d:multistatus>`
}

func TestResolveURL(t *testing.T) {
	client, err := NewClient("https://caldav.icloud.com", testUser, testPassword)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	testCases := []struct {
		href     string
		expected string
	}{
		{"/cal/home/", "https://caldav.icloud.com/cal/home/"},
		{"https://p42-caldav.icloud.com/123/calendars/", "https://p42-caldav.icloud.com/123/calendars/"},
		{"http://other.example.com/x", "http://other.example.com/x"},
	}

	for _, tc := range testCases {
		t.Run(tc.href, func(t *testing.T) {
			if got := client.ResolveURL(tc.href); got != tc.expected {
				t.Errorf("expected %q, got %q", tc.expected, got)
			}
		})
	}
}

func TestNewClientRejectsBadURL(t *testing.T) {
	if _, err := NewClient("not a url", testUser, testPassword); err == nil {
		t.Error("expected error for invalid server URL")
	}
}

func TestDiscoverCalendars(t *testing.T) {
	var depths []string
	client, _ := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		if r.Method != "PROPFIND" {
			t.Errorf("expected PROPFIND, got %s", r.Method)
		}
		depths = append(depths, r.URL.Path+"="+r.Header.Get("Depth"))
		body, _ := io.ReadAll(r.Body)

		w.WriteHeader(http.StatusMultiStatus)
		switch r.URL.Path {
		case "/":
			if !strings.Contains(string(body), "current-user-principal") {
				t.Errorf("unexpected principal body %s", body)
			}
			fmt.Fprint(w, multistatus(`<d:response><d:href>/</d:href><d:propstat><d:prop>
				<d:current-user-principal><d:href>/123/principal/</d:href></d:current-user-principal>
				</d:prop></d:propstat></d:response>`))
		case "/123/principal/":
			fmt.Fprint(w, multistatus(`<d:response><d:href>/123/principal/</d:href><d:propstat><d:prop>
				<c:calendar-home-set><d:href>/123/calendars/</d:href></c:calendar-home-set>
				</d:prop></d:propstat></d:response>`))
		case "/123/calendars/":
			fmt.Fprint(w, multistatus(`
				<d:response><d:href>/123/calendars/</d:href><d:propstat><d:prop>
					<d:resourcetype><d:collection/></d:resourcetype></d:prop></d:propstat></d:response>
				<d:response><d:href>/123/calendars/home/</d:href><d:propstat><d:prop>
					<d:displayname>Home</d:displayname>
					<d:resourcetype><d:collection/><c:calendar/></d:resourcetype></d:prop></d:propstat></d:response>`))
		default:
			t.Errorf("unexpected path %q", r.URL.Path)
		}
	})

	calendars, err := client.DiscoverCalendars(context.Background())
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(calendars) != 1 {
		t.Fatalf("expected 1 calendar, got %d", len(calendars))
	}
	if calendars[0].Name != "Home" || !strings.HasSuffix(calendars[0].URL, "/123/calendars/home/") {
		t.Errorf("unexpected calendar %+v", calendars[0])
	}
	if !strings.HasPrefix(calendars[0].URL, "http://") {
		t.Errorf("expected an absolute calendar URL, got %q", calendars[0].URL)
	}

	expected := []string{"/=0", "/123/principal/=0", "/123/calendars/=1"}
	if strings.Join(depths, ",") != strings.Join(expected, ",") {
		t.Errorf("expected requests %v, got %v", expected, depths)
	}
}

func TestDiscoverCalendarsEmpty(t *testing.T) {
	client, _ := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusMultiStatus)
		switch r.URL.Path {
		case "/":
			fmt.Fprint(w, multistatus(`<d:response><d:propstat><d:prop><d:current-user-principal><d:href>/p/</d:href></d:current-user-principal></d:prop></d:propstat></d:response>`))
		case "/p/":
			fmt.Fprint(w, multistatus(`<d:response><d:propstat><d:prop><c:calendar-home-set><d:href>/h/</d:href></c:calendar-home-set></d:prop></d:propstat></d:response>`))
		default:
			fmt.Fprint(w, multistatus(`<d:response><d:href>/h/</d:href></d:response>`))
		}
	})

	calendars, err := client.DiscoverCalendars(context.Background())
	if err != nil {
		t.Fatalf("expected zero calendars to succeed, got %v", err)
	}
	if len(calendars) != 0 {
		t.Errorf("expected no calendars, got %+v", calendars)
	}
}

func TestDiscoveryFailuresAreDistinct(t *testing.T) {
	t.Run("principal missing", func(t *testing.T) {
		client, _ := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
			w.WriteHeader(http.StatusMultiStatus)
			fmt.Fprint(w, multistatus(`<d:response><d:href>/</d:href></d:response>`))
		})

		_, err := client.DiscoverCalendars(context.Background())
		if !errors.Is(err, calerr.ErrPrincipalNotFound) {
			t.Fatalf("expected ErrPrincipalNotFound, got %v", err)
		}
		if errors.Is(err, calerr.ErrCalendarHomeNotFound) {
			t.Error("principal failure must not match ErrCalendarHomeNotFound")
		}
		if !errors.Is(err, calerr.ErrCalDAV) {
			t.Error("expected discovery failure to also match ErrCalDAV")
		}
	})

	t.Run("calendar home missing", func(t *testing.T) {
		client, _ := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
			w.WriteHeader(http.StatusMultiStatus)
			if r.URL.Path == "/" {
				fmt.Fprint(w, multistatus(`<d:response><d:propstat><d:prop><d:current-user-principal><d:href>/p/</d:href></d:current-user-principal></d:prop></d:propstat></d:response>`))
				return
			}
			fmt.Fprint(w, multistatus(`<d:response><d:href>/p/</d:href></d:response>`))
		})

		_, err := client.DiscoverCalendars(context.Background())
		if !errors.Is(err, calerr.ErrCalendarHomeNotFound) {
			t.Fatalf("expected ErrCalendarHomeNotFound, got %v", err)
		}
		if errors.Is(err, calerr.ErrPrincipalNotFound) {
			t.Error("calendar home failure must not match ErrPrincipalNotFound")
		}
	})
}

func TestStatusMapping(t *testing.T) {
	testCases := []struct {
		name     string
		status   int
		expected error
	}{
		{"unauthorized", http.StatusUnauthorized, calerr.ErrTokenExpired},
		{"forbidden", http.StatusForbidden, calerr.ErrCalDAV},
		{"server error", http.StatusInternalServerError, calerr.ErrCalDAV},
	}

	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			client, _ := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
				w.WriteHeader(tc.status)
				fmt.Fprint(w, "nope")
			})

			_, err := client.FindPrincipal(context.Background())
			if !errors.Is(err, tc.expected) {
				t.Fatalf("expected %v, got %v", tc.expected, err)
			}
			if tc.expected == calerr.ErrCalDAV && calerr.StatusCode(err) != tc.status {
				t.Errorf("expected status %d, got %d", tc.status, calerr.StatusCode(err))
			}
		})
	}
}

func TestNetworkError(t *testing.T) {
	client, server := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {})
	server.Close()

	if _, err := client.FindPrincipal(context.Background()); !errors.Is(err, calerr.ErrNetwork) {
		t.Errorf("expected ErrNetwork, got %v", err)
	}
}

const reportBody = `<d:response>
  <d:href>/123/calendars/home/a.ics</d:href>
  <d:propstat><d:prop>
    <d:getetag>"etag-a"</d:getetag>
    <c:calendar-data>BEGIN:VCALENDAR
VERSION:2.0
BEGIN:VEVENT
UID:a
SUMMARY:Standup
DTSTART:20260108T090000Z
DTEND:20260108T091500Z
END:VEVENT
BEGIN:VEVENT
UID:a2
DTSTART;VALUE=DATE:20260109
END:VEVENT
END:VCALENDAR
</c:calendar-data>
  </d:prop></d:propstat>
</d:response>
<d:response>
  <d:href>/123/calendars/home/broken.ics</d:href>
  <d:propstat><d:prop>
    <d:getetag>"etag-b"</d:getetag>
    <c:calendar-data>BEGIN:VCALENDAR
BEGIN:VEVENT
SUMMARY:no uid
END:VEVENT
END:VCALENDAR
</c:calendar-data>
  </d:prop></d:propstat>
</d:response>`

func TestFetchEvents(t *testing.T) {
	client, server := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		if r.Method != "REPORT" || r.Header.Get("Depth") != "1" {
			t.Errorf("expected REPORT with Depth 1, got %s %q", r.Method, r.Header.Get("Depth"))
		}
		body, _ := io.ReadAll(r.Body)
		if !strings.Contains(string(body), `start="20260108T000000Z" end="20260109T235959Z"`) {
			t.Errorf("unexpected time range in %s", body)
		}
		w.WriteHeader(http.StatusMultiStatus)
		fmt.Fprint(w, multistatus(reportBody))
	})

	calURL := server.URL + "/123/calendars/home/"
	start := time.Date(2026, 1, 8, 0, 0, 0, 0, time.UTC)
	end := time.Date(2026, 1, 9, 0, 0, 0, 0, time.UTC)

	events, err := client.FetchEvents(context.Background(), calURL, start, end)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(events) != 2 {
		t.Fatalf("expected 2 events, got %d", len(events))
	}
	for _, ev := range events {
		if ev.CalendarURL != calURL {
			t.Errorf("expected calendar url %q, got %q", calURL, ev.CalendarURL)
		}
		if ev.ETag != "etag-a" {
			t.Errorf("expected etag-a on every event of the object, got %q", ev.ETag)
		}
		if ev.Href != server.URL+"/123/calendars/home/a.ics" {
			t.Errorf("unexpected href %q", ev.Href)
		}
	}
	if events[0].Title() != "Standup" || events[1].Title() != models.NoTitle {
		t.Errorf("unexpected titles %q, %q", events[0].Title(), events[1].Title())
	}
	if !events[1].Start.AllDay {
		t.Error("expected second event to be all-day")
	}
}

func TestDeleteEvent(t *testing.T) {
	testCases := []struct {
		name        string
		status      int
		etag        string
		wantIfMatch string
		expected    error
	}{
		{"no content", http.StatusNoContent, "etag-1", `"etag-1"`, nil},
		{"ok without etag", http.StatusOK, "", "", nil},
		{"already gone", http.StatusNotFound, "etag-1", `"etag-1"`, nil},
		{"precondition failed", http.StatusPreconditionFailed, "stale", `"stale"`, calerr.ErrCalDAV},
		{"unauthorized", http.StatusUnauthorized, "", "", calerr.ErrTokenExpired},
	}

	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			client, server := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
				if r.Method != http.MethodDelete {
					t.Errorf("expected DELETE, got %s", r.Method)
				}
				if r.URL.EscapedPath() != "/123/calendars/home/ev%201.ics" {
					t.Errorf("unexpected path %q", r.URL.EscapedPath())
				}
				if got := r.Header.Get("If-Match"); got != tc.wantIfMatch {
					t.Errorf("expected If-Match %q, got %q", tc.wantIfMatch, got)
				}
				w.WriteHeader(tc.status)
			})

			err := client.DeleteEvent(context.Background(), server.URL+"/123/calendars/home/", "ev 1", tc.etag)
			if tc.expected == nil {
				if err != nil {
					t.Errorf("unexpected error: %v", err)
				}
				return
			}
			if !errors.Is(err, tc.expected) {
				t.Errorf("expected %v, got %v", tc.expected, err)
			}
		})
	}
}

const storedEvent = "BEGIN:VCALENDAR\r\n" +
	"VERSION:2.0\r\n" +
	"PRODID:-//Apple Inc.//iCloud//EN\r\n" +
	"BEGIN:VEVENT\r\n" +
	"UID:ev1\r\n" +
	"DTSTAMP:20260101T000000Z\r\n" +
	"DTSTART:20260108T090000Z\r\n" +
	"SUMMARY:Review\r\n" +
	"ORGANIZER;CN=Boss:mailto:boss@x.com\r\n" +
	"ATTENDEE;CN=Boss;PARTSTAT=ACCEPTED:mailto:boss@x.com\r\n" +
	"ATTENDEE;CN=Me;PARTSTAT=NEEDS-ACTION;RSVP=TRUE:mailto:ME@icloud.com\r\n" +
	"END:VEVENT\r\n" +
	"END:VCALENDAR\r\n"

func TestRespondEvent(t *testing.T) {
	var put string
	client, server := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/123/calendars/home/ev1.ics" {
			t.Errorf("unexpected path %q", r.URL.Path)
		}
		switch r.Method {
		case http.MethodGet:
			w.Header().Set("ETag", `"server-etag"`)
			w.Header().Set("Content-Type", "text/calendar")
			fmt.Fprint(w, storedEvent)
		case http.MethodPut:
			if got := r.Header.Get("If-Match"); got != `"server-etag"` {
				t.Errorf("expected If-Match from GET, got %q", got)
			}
			if !strings.HasPrefix(r.Header.Get("Content-Type"), "text/calendar") {
				t.Errorf("unexpected content type %q", r.Header.Get("Content-Type"))
			}
			body, _ := io.ReadAll(r.Body)
			put = string(body)
			w.WriteHeader(http.StatusNoContent)
		default:
			t.Errorf("unexpected method %s", r.Method)
		}
	})

	id := models.ICloudEventID{
		CalendarURL: server.URL + "/123/calendars/home/",
		UID:         "ev1",
		ETag:        "stale-etag",
	}
	if err := client.RespondEvent(context.Background(), id, models.ResponseAccepted); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	if put == "" {
		t.Fatal("expected the event to be written back")
	}
	unfolded := strings.Join(strings.Split(strings.ReplaceAll(put, "\r\n ", ""), "\r\n"), "\n")
	var mine string
	for _, line := range strings.Split(unfolded, "\n") {
		if strings.HasPrefix(line, "ATTENDEE") && strings.Contains(strings.ToLower(line), "me@icloud.com") {
			mine = line
		}
	}
	if !strings.Contains(mine, "PARTSTAT=ACCEPTED") {
		t.Errorf("expected own attendee line to be accepted, got %q", mine)
	}
	if strings.Contains(mine, "RSVP") {
		t.Errorf("expected RSVP to be cleared, got %q", mine)
	}
	if !strings.Contains(unfolded, "UID:ev1") {
		t.Errorf("expected the rest of the event to survive, got %q", put)
	}
}

func TestRespondEventNotAnAttendee(t *testing.T) {
	client, server := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodGet {
			t.Errorf("expected no write, got %s", r.Method)
		}
		fmt.Fprint(w, strings.ReplaceAll(storedEvent, "ME@icloud.com", "someone@else.com"))
	})

	id := models.ICloudEventID{CalendarURL: server.URL + "/cal/", UID: "ev1", Href: server.URL + "/cal/ev1.ics"}
	if err := client.RespondEvent(context.Background(), id, models.ResponseDeclined); err != nil {
		t.Errorf("unexpected error: %v", err)
	}
}

func TestTraceSinkRecordsRequests(t *testing.T) {
	ring := tracelog.NewRing(10)
	client, _ := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		if r.Header.Get("User-Agent") != userAgent {
			t.Errorf("expected user agent %q, got %q", userAgent, r.Header.Get("User-Agent"))
		}
		w.WriteHeader(http.StatusMultiStatus)
		fmt.Fprint(w, multistatus(`<d:response><d:propstat><d:prop><d:current-user-principal><d:href>/p/</d:href></d:current-user-principal></d:prop></d:propstat></d:response>`))
	}, WithTraceSink(ring))

	if _, err := client.FindPrincipal(context.Background()); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	events := ring.Recent(2)
	if len(events) != 2 {
		t.Fatalf("expected request and response traces, got %d", len(events))
	}
	if events[1].Method != "PROPFIND" || events[0].Status != http.StatusMultiStatus {
		t.Errorf("unexpected trace events %+v", events)
	}
}
