package tracelog

import (
	"bytes"
	"fmt"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"
)

func TestRingKeepsMostRecent(t *testing.T) {
	ring := NewRing(3)
	for i := 0; i < 5; i++ {
		ring.Record(Event{URL: fmt.Sprintf("/%d", i)})
	}

	if ring.Len() != 3 {
		t.Fatalf("expected 3 buffered events, got %d", ring.Len())
	}

	recent := ring.Recent(10)
	expected := []string{"/4", "/3", "/2"}
	for i, url := range expected {
		if recent[i].URL != url {
			t.Errorf("expected %q at index %d, got %q", url, i, recent[i].URL)
		}
	}

	if got := ring.Recent(1); len(got) != 1 || got[0].URL != "/4" {
		t.Errorf("expected only the newest event, got %+v", got)
	}
}

func TestNewRingDefaultSize(t *testing.T) {
	ring := NewRing(0)
	for i := 0; i < DefaultRingSize+10; i++ {
		ring.Record(Event{})
	}
	if ring.Len() != DefaultRingSize {
		t.Errorf("expected %d events, got %d", DefaultRingSize, ring.Len())
	}
}

func TestEventString(t *testing.T) {
	ts := time.Date(2026, 1, 8, 9, 5, 7, 0, time.UTC)

	testCases := []struct {
		name     string
		event    Event
		expected string
	}{
		{
			name:     "request",
			event:    Event{Time: ts, Direction: Request, Method: "PROPFIND", URL: "https://caldav.icloud.com"},
			expected: "[09:05:07] PROPFIND https://caldav.icloud.com",
		},
		{
			name:     "response",
			event:    Event{Time: ts, Direction: Response, Status: 207, URL: "https://caldav.icloud.com"},
			expected: "[09:05:07] <- 207 https://caldav.icloud.com",
		},
	}

	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			if got := tc.event.String(); got != tc.expected {
				t.Errorf("expected %q, got %q", tc.expected, got)
			}
		})
	}
}

func TestTransportRecordsRequestAndResponse(t *testing.T) {
	var userAgent string
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		userAgent = r.Header.Get("User-Agent")
		w.WriteHeader(http.StatusMultiStatus)
	}))
	defer server.Close()

	ring := NewRing(10)
	client := &http.Client{Transport: NewTransport(nil, ring, "calendarchy-test")}

	req, err := http.NewRequest("PROPFIND", server.URL+"/cal/?pageToken=secret", nil)
	if err != nil {
		t.Fatal(err)
	}
	resp, err := client.Do(req)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	resp.Body.Close()

	if userAgent != "calendarchy-test" {
		t.Errorf("expected user agent to be set, got %q", userAgent)
	}

	events := ring.Recent(2)
	if len(events) != 2 {
		t.Fatalf("expected 2 events, got %d", len(events))
	}
	response, request := events[0], events[1]

	if request.Direction != Request || request.Method != "PROPFIND" {
		t.Errorf("unexpected request event: %+v", request)
	}
	if response.Direction != Response || response.Status != http.StatusMultiStatus {
		t.Errorf("unexpected response event: %+v", response)
	}
	if request.RequestID == "" || request.RequestID != response.RequestID {
		t.Errorf("expected matching request ids, got %q and %q", request.RequestID, response.RequestID)
	}
	if strings.Contains(request.URL, "secret") {
		t.Errorf("expected query to be redacted, got %q", request.URL)
	}
}

func TestTransportRecordsTransportError(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {}))
	url := server.URL
	server.Close()

	ring := NewRing(10)
	client := &http.Client{Transport: NewTransport(nil, ring, "")}

	if _, err := client.Get(url); err == nil {
		t.Fatal("expected transport error")
	}

	events := ring.Recent(1)
	if len(events) != 1 || events[0].Err == nil {
		t.Fatalf("expected a response event carrying the error, got %+v", events)
	}
}

func TestSlogSinkWritesDebugLines(t *testing.T) {
	var buf bytes.Buffer
	logger := slog.New(slog.NewTextHandler(&buf, &slog.HandlerOptions{Level: slog.LevelDebug}))
	sink := NewSlogSink(logger)

	sink.Record(Event{Direction: Request, Method: "REPORT", URL: "https://example.com/cal/", RequestID: "abc"})
	sink.Record(Event{Direction: Response, Method: "REPORT", URL: "https://example.com/cal/", RequestID: "abc", Status: 207})

	out := buf.String()
	for _, want := range []string{"HTTP request", "HTTP response", "status=207", "id=abc"} {
		if !strings.Contains(out, want) {
			t.Errorf("expected output to contain %q, got:\n%s", want, out)
		}
	}
}

func TestMultiSkipsNilSinks(t *testing.T) {
	ring := NewRing(5)
	Multi(nil, ring, Nop).Record(Event{URL: "/x"})

	if ring.Len() != 1 {
		t.Errorf("expected 1 event, got %d", ring.Len())
	}
}
