// Package agenda fetches the configured Google and iCloud calendars and
// routes replies and deletions back to the provider an event came from.
package agenda

import (
	"cmp"
	"context"
	"fmt"
	"io"
	"log/slog"
	"slices"
	"time"

	"calendarchy/internal/calerr"
	"calendarchy/internal/google"
	"calendarchy/internal/icloud"
	"calendarchy/internal/models"
	"calendarchy/internal/normalize"

	"golang.org/x/sync/errgroup"
	"google.golang.org/api/calendar/v3"
)

// GoogleCalendar is the part of google.CalendarClient the agenda uses.
type GoogleCalendar interface {
	ListEvents(ctx context.Context, token *google.Token, calendarID string, start, end time.Time) ([]*calendar.Event, error)
	CalendarName(ctx context.Context, token *google.Token, calendarID string) string
	Respond(ctx context.Context, token *google.Token, calendarID, eventID string, response models.Response) error
	Delete(ctx context.Context, token *google.Token, calendarID, eventID string) error
}

// ICloudCalendar is the part of icloud.Client the agenda uses.
type ICloudCalendar interface {
	FetchEvents(ctx context.Context, calendarURL string, start, end time.Time) ([]icloud.Event, error)
	RespondEvent(ctx context.Context, id models.ICloudEventID, response models.Response) error
	DeleteEvent(ctx context.Context, calendarURL, uid, etag string) error
}

// Config lists the providers and calendars to read. A nil client disables
// its provider.
type Config struct {
	Google            GoogleCalendar
	GoogleCalendarIDs []string

	ICloud          ICloudCalendar
	ICloudCalendars []models.CalendarHandle

	// Location renders Google date-times; defaults to time.Local.
	Location *time.Location
}

// Agenda orchestrates reads and writes across providers.
type Agenda struct {
	logger *slog.Logger
	cfg    Config
}

// New creates a new Agenda.
func New(logger *slog.Logger, cfg Config) *Agenda {
	if logger == nil {
		logger = slog.New(slog.NewTextHandler(io.Discard, nil))
	}
	if cfg.Location == nil {
		cfg.Location = time.Local
	}
	return &Agenda{logger: logger, cfg: cfg}
}

// Fetch returns the events of every configured calendar between start and
// end (whole days), ordered by date and start time. Calendars are read
// concurrently; the first failure cancels the rest and is returned.
func (a *Agenda) Fetch(ctx context.Context, token *google.Token, start, end time.Time) ([]models.Event, error) {
	if a.cfg.Google != nil && len(a.cfg.GoogleCalendarIDs) > 0 && token == nil {
		return nil, fmt.Errorf("%w: no Google token", calerr.ErrTokenExpired)
	}

	var (
		googleIDs []string
		handles   = a.cfg.ICloudCalendars
	)
	if a.cfg.Google != nil {
		googleIDs = a.cfg.GoogleCalendarIDs
	}
	if a.cfg.ICloud == nil {
		handles = nil
	}

	results := make([][]models.Event, len(googleIDs)+len(handles))
	g, gctx := errgroup.WithContext(ctx)

	for i, calID := range googleIDs {
		g.Go(func() error {
			events, err := a.fetchGoogle(gctx, token, calID, start, end)
			if err != nil {
				return fmt.Errorf("google calendar %s: %w", calID, err)
			}
			results[i] = events
			return nil
		})
	}
	for i, h := range handles {
		slot := len(googleIDs) + i
		g.Go(func() error {
			events, err := a.fetchICloud(gctx, h, start, end)
			if err != nil {
				return fmt.Errorf("icloud calendar %s: %w", h.DisplayName(), err)
			}
			results[slot] = events
			return nil
		})
	}

	if err := g.Wait(); err != nil {
		return nil, err
	}

	var all []models.Event
	for _, events := range results {
		all = append(all, events...)
	}
	SortEvents(all)
	a.logger.Info("Fetched agenda", "events", len(all), "calendars", len(results))
	return all, nil
}

func (a *Agenda) fetchGoogle(ctx context.Context, token *google.Token, calID string, start, end time.Time) ([]models.Event, error) {
	raw, err := a.cfg.Google.ListEvents(ctx, token, calID, start, end)
	if err != nil {
		return nil, err
	}
	name := a.cfg.Google.CalendarName(ctx, token, calID)

	events := make([]models.Event, 0, len(raw))
	for _, item := range raw {
		ev, ok := normalize.FromGoogle(item, calID, name, a.cfg.Location)
		if !ok {
			a.logger.Debug("Skipping Google event without start", "calendarID", calID, "eventID", item.Id)
			continue
		}
		events = append(events, ev)
	}
	a.logger.Debug("Fetched Google calendar", "calendarID", calID, "count", len(events))
	return events, nil
}

func (a *Agenda) fetchICloud(ctx context.Context, h models.CalendarHandle, start, end time.Time) ([]models.Event, error) {
	raw, err := a.cfg.ICloud.FetchEvents(ctx, h.URL, start, end)
	if err != nil {
		return nil, err
	}
	events := make([]models.Event, 0, len(raw))
	for _, item := range raw {
		events = append(events, normalize.FromICloud(item, h.Name))
	}
	a.logger.Debug("Fetched iCloud calendar", "calendar", h.DisplayName(), "count", len(events))
	return events, nil
}

// Respond sends an invitation reply to the event's provider.
func (a *Agenda) Respond(ctx context.Context, token *google.Token, id models.EventID, response models.Response) error {
	switch id := id.(type) {
	case models.GoogleEventID:
		if a.cfg.Google == nil {
			return errProviderDisabled(id.Provider())
		}
		return a.cfg.Google.Respond(ctx, token, id.CalendarID, id.EventID, response)
	case models.ICloudEventID:
		if a.cfg.ICloud == nil {
			return errProviderDisabled(id.Provider())
		}
		return a.cfg.ICloud.RespondEvent(ctx, id, response)
	default:
		return fmt.Errorf("unsupported event id %T", id)
	}
}

// Delete removes the event at its provider.
func (a *Agenda) Delete(ctx context.Context, token *google.Token, id models.EventID) error {
	switch id := id.(type) {
	case models.GoogleEventID:
		if a.cfg.Google == nil {
			return errProviderDisabled(id.Provider())
		}
		return a.cfg.Google.Delete(ctx, token, id.CalendarID, id.EventID)
	case models.ICloudEventID:
		if a.cfg.ICloud == nil {
			return errProviderDisabled(id.Provider())
		}
		return a.cfg.ICloud.DeleteEvent(ctx, id.CalendarURL, id.UID, id.ETag)
	default:
		return fmt.Errorf("unsupported event id %T", id)
	}
}

func errProviderDisabled(p models.Provider) error {
	return fmt.Errorf("%s provider is not configured", p)
}

// SortEvents orders events by date, all-day events first, then by start
// time and title.
func SortEvents(events []models.Event) {
	slices.SortStableFunc(events, func(x, y models.Event) int {
		if c := x.Date.Compare(y.Date); c != 0 {
			return c
		}
		if x.IsAllDay() != y.IsAllDay() {
			if x.IsAllDay() {
				return -1
			}
			return 1
		}
		if c := cmp.Compare(x.StartTime, y.StartTime); c != 0 {
			return c
		}
		return cmp.Compare(x.Title, y.Title)
	})
}
