package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"strings"
	"time"

	"calendarchy/internal/agenda"
	"calendarchy/internal/calerr"
	"calendarchy/internal/config"
	"calendarchy/internal/google"
	"calendarchy/internal/icloud"
	"calendarchy/internal/models"
	"calendarchy/internal/tracelog"

	"github.com/urfave/cli/v2"
	"golang.org/x/time/rate"
)

const userAgent = "calendarchy/1.0"

func main() {
	app := &cli.App{
		Name:  "calendarchy",
		Usage: "Read and answer Google and iCloud calendar events from the terminal.",
		Flags: []cli.Flag{
			&cli.IntFlag{Name: "trace", Usage: "Print the last N HTTP exchanges when the command finishes."},
		},
		Commands: []*cli.Command{
			authCommand(),
			calendarsCommand(),
			eventsCommand(),
			respondCommand(),
			deleteCommand(),
		},
	}

	if err := app.Run(os.Args); err != nil {
		slog.Error("Application failed", "error", err)
		os.Exit(1)
	}
}

// env bundles what every command needs.
type env struct {
	cfg    *config.Config
	logger *slog.Logger
	ring   *tracelog.Ring
	http   *http.Client
}

func newEnv() (*env, error) {
	cfg, err := config.Load()
	if err != nil {
		return nil, err
	}
	logger := setupLogger(cfg.LogLevel)
	ring := tracelog.NewRing(tracelog.DefaultRingSize)
	sink := tracelog.Multi(ring, tracelog.NewSlogSink(logger))

	e := &env{
		cfg:    cfg,
		logger: logger,
		ring:   ring,
		http: &http.Client{
			Timeout:   cfg.HTTPTimeout,
			Transport: tracelog.NewTransport(http.DefaultTransport, sink, userAgent),
		},
	}
	return e, nil
}

// dumpTrace prints the most recent exchanges when --trace is set.
func (e *env) dumpTrace(c *cli.Context) {
	n := c.Int("trace")
	if n <= 0 {
		return
	}
	events := e.ring.Recent(n)
	for i := len(events) - 1; i >= 0; i-- {
		fmt.Fprintln(os.Stderr, events[i].String())
	}
}

// run wraps a command action with environment setup and trace output.
func run(fn func(c *cli.Context, e *env) error) cli.ActionFunc {
	return func(c *cli.Context) error {
		e, err := newEnv()
		if err != nil {
			return err
		}
		defer e.dumpTrace(c)
		return fn(c, e)
	}
}

func (e *env) googleAuth() (*google.Auth, error) {
	if !e.cfg.Google.Enabled() {
		return nil, fmt.Errorf("%w: GOOGLE_CLIENT_ID and GOOGLE_CLIENT_SECRET", config.ErrMissingConfig)
	}
	return google.NewAuth(e.cfg.Google.ClientID, e.cfg.Google.ClientSecret, google.WithAuthHTTPClient(e.http)), nil
}

// googleToken loads the saved token, refreshing and saving it when it is
// about to expire.
func (e *env) googleToken(ctx context.Context) (*google.Token, error) {
	auth, err := e.googleAuth()
	if err != nil {
		return nil, err
	}
	token, err := google.LoadToken(e.cfg.Google.TokenFile)
	if err != nil {
		return nil, err
	}
	if !token.Expired() {
		return token, nil
	}
	if token.RefreshToken == "" {
		return nil, fmt.Errorf("%w: no refresh token, run the 'auth' command", calerr.ErrTokenExpired)
	}

	e.logger.Info("Refreshing Google token.")
	fresh, err := auth.Refresh(ctx, token.RefreshToken)
	if err != nil {
		return nil, fmt.Errorf("failed to refresh google token: %w", err)
	}
	if err := google.SaveToken(e.cfg.Google.TokenFile, fresh); err != nil {
		return nil, fmt.Errorf("failed to save token: %w", err)
	}
	return fresh, nil
}

func (e *env) googleClient() *google.CalendarClient {
	return google.NewCalendarClient(google.WithHTTPClient(e.http), google.WithLogger(e.logger))
}

func (e *env) icloudClient() (*icloud.Client, error) {
	if !e.cfg.ICloud.Enabled() {
		return nil, fmt.Errorf("%w: ICLOUD_USERNAME and ICLOUD_APP_SPECIFIC_PASSWORD", config.ErrMissingConfig)
	}
	// The client adds its own tracing transport on top of this one.
	hc := &http.Client{Timeout: e.cfg.HTTPTimeout}
	return icloud.NewClient(e.cfg.ICloud.ServerURL, e.cfg.ICloud.Username, e.cfg.ICloud.Password,
		icloud.WithHTTPClient(hc),
		icloud.WithTraceSink(tracelog.Multi(e.ring, tracelog.NewSlogSink(e.logger))),
		icloud.WithLogger(e.logger),
	)
}

// icloudCalendars returns the configured calendar URLs, discovering them
// when none are set.
func (e *env) icloudCalendars(ctx context.Context, client *icloud.Client) ([]models.CalendarHandle, error) {
	if len(e.cfg.ICloud.CalendarURLs) == 0 {
		return client.DiscoverCalendars(ctx)
	}
	handles := make([]models.CalendarHandle, 0, len(e.cfg.ICloud.CalendarURLs))
	for _, u := range e.cfg.ICloud.CalendarURLs {
		handles = append(handles, models.CalendarHandle{URL: client.ResolveURL(u)})
	}
	return handles, nil
}

func authCommand() *cli.Command {
	return &cli.Command{
		Name:  "auth",
		Usage: "Authenticate with a Google account using a device code.",
		Action: run(func(c *cli.Context, e *env) error {
			auth, err := e.googleAuth()
			if err != nil {
				return err
			}
			e.logger.Info("Starting Google authentication flow.")

			flow := google.NewDeviceFlow(auth)
			grant, err := flow.Start(c.Context)
			if err != nil {
				return fmt.Errorf("failed to request device code: %w", err)
			}
			fmt.Printf("Go to %s and enter the code: %s\n", grant.VerificationURL, grant.UserCode)

			interval := grant.Interval
			limiter := rate.NewLimiter(rate.Every(interval), 1)
			limiter.Allow()

			for {
				if err := limiter.Wait(c.Context); err != nil {
					return err
				}
				status, err := flow.Poll(c.Context)
				if err != nil {
					if errors.Is(err, calerr.ErrNetwork) {
						e.logger.Warn("Token poll failed, retrying.", "error", err)
						continue
					}
					return fmt.Errorf("authentication failed: %w", err)
				}

				switch status {
				case google.PollSuccess:
					if err := google.SaveToken(e.cfg.Google.TokenFile, flow.Token()); err != nil {
						return fmt.Errorf("failed to save token: %w", err)
					}
					e.logger.Info("Successfully authenticated and saved token.", "file", e.cfg.Google.TokenFile)
					return nil
				case google.PollSlowDown:
					interval += 5 * time.Second
					limiter.SetLimit(rate.Every(interval))
					e.logger.Debug("Server asked to slow down.", "interval", interval)
				case google.PollPending:
				default:
					return fmt.Errorf("authentication failed: %w", flow.Err())
				}
			}
		}),
	}
}

func calendarsCommand() *cli.Command {
	return &cli.Command{
		Name:  "calendars",
		Usage: "List the calendars of every configured account.",
		Action: run(func(c *cli.Context, e *env) error {
			w := c.App.Writer
			if e.cfg.Google.Enabled() {
				token, err := e.googleToken(c.Context)
				if err != nil {
					return err
				}
				handles, err := e.googleClient().ListCalendars(c.Context, token)
				if err != nil {
					return fmt.Errorf("failed to list google calendars: %w", err)
				}
				writeCalendars(w, models.ProviderGoogle, handles)
			}
			if e.cfg.ICloud.Enabled() {
				client, err := e.icloudClient()
				if err != nil {
					return err
				}
				handles, err := client.DiscoverCalendars(c.Context)
				if err != nil {
					return fmt.Errorf("failed to discover icloud calendars: %w", err)
				}
				writeCalendars(w, models.ProviderICloud, handles)
			}
			return nil
		}),
	}
}

// newAgenda wires the enabled providers, or only the one named by only.
// Calendars are resolved only when every provider is wanted. The Google
// token is nil when Google is not wired.
func (e *env) newAgenda(ctx context.Context, only models.Provider) (*agenda.Agenda, *google.Token, error) {
	cfg := agenda.Config{Location: e.cfg.Location}
	var token *google.Token

	if e.cfg.Google.Enabled() && (only == "" || only == models.ProviderGoogle) {
		t, err := e.googleToken(ctx)
		if err != nil {
			return nil, nil, err
		}
		token = t
		cfg.Google = e.googleClient()
		cfg.GoogleCalendarIDs = e.cfg.Google.CalendarIDs
	}
	if e.cfg.ICloud.Enabled() && (only == "" || only == models.ProviderICloud) {
		client, err := e.icloudClient()
		if err != nil {
			return nil, nil, err
		}
		cfg.ICloud = client
		if only == "" {
			handles, err := e.icloudCalendars(ctx, client)
			if err != nil {
				return nil, nil, fmt.Errorf("failed to discover icloud calendars: %w", err)
			}
			cfg.ICloudCalendars = handles
		}
	}
	return agenda.New(e.logger, cfg), token, nil
}

func eventsCommand() *cli.Command {
	return &cli.Command{
		Name:  "events",
		Usage: "Print events between two dates.",
		Flags: []cli.Flag{
			&cli.StringFlag{Name: "from", Usage: "First day (YYYY-MM-DD), defaults to today."},
			&cli.StringFlag{Name: "to", Usage: "Last day (YYYY-MM-DD), defaults to a week after --from."},
			&cli.BoolFlag{Name: "json", Usage: "Print events as JSON."},
		},
		Action: run(func(c *cli.Context, e *env) error {
			start, end, err := dateRange(c.String("from"), c.String("to"), time.Now().In(e.cfg.Location))
			if err != nil {
				return err
			}

			a, token, err := e.newAgenda(c.Context, "")
			if err != nil {
				return err
			}
			events, err := a.Fetch(c.Context, token, start, end)
			if err != nil {
				return fmt.Errorf("failed to fetch events: %w", err)
			}

			if c.Bool("json") {
				return writeJSON(c.App.Writer, events)
			}
			writeEvents(c.App.Writer, events)
			return nil
		}),
	}
}

var idFlags = []cli.Flag{
	&cli.StringFlag{Name: "provider", Required: true, Usage: "google or icloud"},
	&cli.StringFlag{Name: "calendar", Required: true, Usage: "Google calendar id or CalDAV calendar URL"},
	&cli.StringFlag{Name: "event", Usage: "Google event id or CalDAV UID"},
	&cli.StringFlag{Name: "href", Usage: "CalDAV object URL, if known"},
	&cli.StringFlag{Name: "etag", Usage: "CalDAV ETag for conditional writes"},
}

func eventIDFromFlags(c *cli.Context) (models.EventID, error) {
	event := c.String("event")
	switch models.Provider(strings.ToLower(c.String("provider"))) {
	case models.ProviderGoogle:
		if event == "" {
			return nil, errors.New("--event is required for google events")
		}
		return models.GoogleEventID{CalendarID: c.String("calendar"), EventID: event}, nil
	case models.ProviderICloud:
		if event == "" {
			return nil, errors.New("--event is required for icloud events")
		}
		return models.ICloudEventID{
			CalendarURL: c.String("calendar"),
			UID:         event,
			ETag:        c.String("etag"),
			Href:        c.String("href"),
		}, nil
	default:
		return nil, fmt.Errorf("unknown provider %q", c.String("provider"))
	}
}

func respondCommand() *cli.Command {
	return &cli.Command{
		Name:  "respond",
		Usage: "Accept, decline or tentatively accept an invitation.",
		Flags: append([]cli.Flag{
			&cli.StringFlag{Name: "response", Required: true, Usage: "accepted, declined or tentative"},
		}, idFlags...),
		Action: run(func(c *cli.Context, e *env) error {
			response, err := models.ParseResponse(c.String("response"))
			if err != nil {
				return err
			}
			id, err := eventIDFromFlags(c)
			if err != nil {
				return err
			}
			a, token, err := e.newAgenda(c.Context, id.Provider())
			if err != nil {
				return err
			}
			if err := a.Respond(c.Context, token, id, response); err != nil {
				return fmt.Errorf("failed to respond: %w", err)
			}
			e.logger.Info("Response sent.", "provider", id.Provider(), "response", response)
			return nil
		}),
	}
}

func deleteCommand() *cli.Command {
	return &cli.Command{
		Name:  "delete",
		Usage: "Delete an event.",
		Flags: idFlags,
		Action: run(func(c *cli.Context, e *env) error {
			id, err := eventIDFromFlags(c)
			if err != nil {
				return err
			}
			a, token, err := e.newAgenda(c.Context, id.Provider())
			if err != nil {
				return err
			}
			if err := a.Delete(c.Context, token, id); err != nil {
				return fmt.Errorf("failed to delete: %w", err)
			}
			e.logger.Info("Event deleted.", "provider", id.Provider())
			return nil
		}),
	}
}

func setupLogger(level string) *slog.Logger {
	var logLevel slog.Level
	switch strings.ToLower(level) {
	case "debug":
		logLevel = slog.LevelDebug
	case "warn":
		logLevel = slog.LevelWarn
	case "error":
		logLevel = slog.LevelError
	default:
		logLevel = slog.LevelInfo
	}

	return slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: logLevel}))
}
