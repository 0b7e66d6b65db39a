package google

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"time"

	"calendarchy/internal/calerr"
	"calendarchy/internal/models"

	"golang.org/x/oauth2"
	"google.golang.org/api/calendar/v3"
	"google.golang.org/api/googleapi"
	"google.golang.org/api/option"
)

// maxResults is the page size requested from events.list.
const maxResults = 250

// CalendarClient provides a client for interacting with the Google Calendar API.
// Every call takes the bearer token to use, so one client serves an account
// across token refreshes.
type CalendarClient struct {
	httpClient *http.Client
	endpoint   string
	logger     *slog.Logger
}

// ClientOption configures a CalendarClient.
type ClientOption func(*CalendarClient)

// WithEndpoint overrides the Calendar API base URL.
func WithEndpoint(endpoint string) ClientOption {
	return func(c *CalendarClient) { c.endpoint = endpoint }
}

// WithHTTPClient sets the client whose transport carries the API requests.
// The bearer token is added on top of its transport.
func WithHTTPClient(hc *http.Client) ClientOption {
	return func(c *CalendarClient) { c.httpClient = hc }
}

// WithLogger sets the logger for debug output.
func WithLogger(logger *slog.Logger) ClientOption {
	return func(c *CalendarClient) { c.logger = logger }
}

// NewCalendarClient creates a new Google Calendar client.
func NewCalendarClient(opts ...ClientOption) *CalendarClient {
	c := &CalendarClient{
		httpClient: http.DefaultClient,
		logger:     slog.New(slog.NewTextHandler(io.Discard, nil)),
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// service builds a Calendar service authorised with token.
func (c *CalendarClient) service(ctx context.Context, token *Token) (*calendar.Service, error) {
	if token == nil {
		return nil, fmt.Errorf("%w: no token", calerr.ErrTokenExpired)
	}
	hc := &http.Client{
		Transport: &oauth2.Transport{
			Source: oauth2.StaticTokenSource(token.OAuth2()),
			Base:   c.httpClient.Transport,
		},
		Timeout: c.httpClient.Timeout,
	}
	opts := []option.ClientOption{option.WithHTTPClient(hc)}
	if c.endpoint != "" {
		opts = append(opts, option.WithEndpoint(c.endpoint))
	}
	svc, err := calendar.NewService(ctx, opts...)
	if err != nil {
		return nil, fmt.Errorf("failed to create calendar service: %w", err)
	}
	return svc, nil
}

// ListEvents fetches every event of calendarID that overlaps the days from
// start to end inclusive, following page tokens until exhausted. Recurring
// events are expanded into instances by the server.
func (c *CalendarClient) ListEvents(ctx context.Context, token *Token, calendarID string, start, end time.Time) ([]*calendar.Event, error) {
	svc, err := c.service(ctx, token)
	if err != nil {
		return nil, err
	}

	timeMin := start.Format("2006-01-02") + "T00:00:00Z"
	timeMax := end.Format("2006-01-02") + "T23:59:59Z"
	c.logger.Debug("Fetching Google events", "calendarID", calendarID, "timeMin", timeMin, "timeMax", timeMax)

	var events []*calendar.Event
	err = svc.Events.List(calendarID).
		SingleEvents(true).
		OrderBy("startTime").
		MaxResults(maxResults).
		TimeMin(timeMin).
		TimeMax(timeMax).
		Pages(ctx, func(page *calendar.Events) error {
			events = append(events, page.Items...)
			return nil
		})
	if err != nil {
		return nil, classifyAPIError("list events", err)
	}

	c.logger.Debug("Fetched Google events", "calendarID", calendarID, "count", len(events))
	return events, nil
}

// Respond sets the authenticated user's response on an event without
// notifying other attendees. An event with no attendee marked as self is
// left unchanged.
func (c *CalendarClient) Respond(ctx context.Context, token *Token, calendarID, eventID string, response models.Response) error {
	svc, err := c.service(ctx, token)
	if err != nil {
		return err
	}

	ev, err := svc.Events.Get(calendarID, eventID).Context(ctx).Do()
	if err != nil {
		return classifyAPIError("get event", err)
	}

	found := false
	for _, a := range ev.Attendees {
		if a.Self {
			a.ResponseStatus = string(response)
			found = true
		}
	}
	if !found {
		c.logger.Debug("No self attendee, nothing to respond", "calendarID", calendarID, "eventID", eventID)
		return nil
	}

	patch := &calendar.Event{Attendees: ev.Attendees}
	if _, err := svc.Events.Patch(calendarID, eventID, patch).SendUpdates("none").Context(ctx).Do(); err != nil {
		return classifyAPIError("patch event", err)
	}
	return nil
}

// Delete removes an event without notifying attendees.
func (c *CalendarClient) Delete(ctx context.Context, token *Token, calendarID, eventID string) error {
	svc, err := c.service(ctx, token)
	if err != nil {
		return err
	}
	if err := svc.Events.Delete(calendarID, eventID).SendUpdates("none").Context(ctx).Do(); err != nil {
		return classifyAPIError("delete event", err)
	}
	return nil
}

// CalendarName returns the calendar's summary, or "" if it cannot be read.
func (c *CalendarClient) CalendarName(ctx context.Context, token *Token, calendarID string) string {
	svc, err := c.service(ctx, token)
	if err != nil {
		return ""
	}
	cal, err := svc.Calendars.Get(calendarID).Context(ctx).Do()
	if err != nil {
		c.logger.Debug("Could not read calendar name", "calendarID", calendarID, "error", err)
		return ""
	}
	return cal.Summary
}

// ListCalendars returns the calendars on the account's calendar list. The
// handle URL is the calendar ID.
func (c *CalendarClient) ListCalendars(ctx context.Context, token *Token) ([]models.CalendarHandle, error) {
	svc, err := c.service(ctx, token)
	if err != nil {
		return nil, err
	}

	var handles []models.CalendarHandle
	err = svc.CalendarList.List().Pages(ctx, func(page *calendar.CalendarList) error {
		for _, item := range page.Items {
			name := item.SummaryOverride
			if name == "" {
				name = item.Summary
			}
			handles = append(handles, models.CalendarHandle{URL: item.Id, Name: name})
		}
		return nil
	})
	if err != nil {
		return nil, classifyAPIError("list calendars", err)
	}
	return handles, nil
}

// classifyAPIError maps a client library error onto the calerr kinds.
func classifyAPIError(op string, err error) error {
	var gerr *googleapi.Error
	if errors.As(err, &gerr) {
		if gerr.Code == http.StatusUnauthorized {
			return fmt.Errorf("%w: %s", calerr.ErrTokenExpired, op)
		}
		return calerr.NewStatusError(calerr.ErrAPI, op, gerr.Code, gerr.Body)
	}
	return fmt.Errorf("%w: %s: %v", calerr.ErrNetwork, op, err)
}
