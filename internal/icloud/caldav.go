package icloud

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"strings"

	"calendarchy/internal/calerr"
	"calendarchy/internal/tracelog"

	"github.com/emersion/go-webdav"
)

const (
	// DefaultServerURL is iCloud's CalDAV entry point.
	DefaultServerURL = "https://caldav.icloud.com"

	userAgent = "calendarchy/1.0"

	xmlContentType = "application/xml; charset=utf-8"
	icsContentType = "text/calendar; charset=utf-8"
)

// Client talks CalDAV to iCloud (or any server answering the same
// discovery chain) with an account id and app-specific password.
type Client struct {
	http     webdav.HTTPClient
	origin   *url.URL
	server   string
	username string
	logger   *slog.Logger
}

type clientOptions struct {
	httpClient *http.Client
	sink       tracelog.Sink
	logger     *slog.Logger
}

// Option configures a Client.
type Option func(*clientOptions)

// WithHTTPClient sets the underlying HTTP client.
func WithHTTPClient(hc *http.Client) Option {
	return func(o *clientOptions) { o.httpClient = hc }
}

// WithTraceSink records every request and response to sink.
func WithTraceSink(sink tracelog.Sink) Option {
	return func(o *clientOptions) { o.sink = sink }
}

// WithLogger sets the logger for debug output.
func WithLogger(logger *slog.Logger) Option {
	return func(o *clientOptions) { o.logger = logger }
}

// NewClient creates a CalDAV client for serverURL (DefaultServerURL when
// empty). Requests carry Basic credentials.
func NewClient(serverURL, username, password string, opts ...Option) (*Client, error) {
	if serverURL == "" {
		serverURL = DefaultServerURL
	}
	u, err := url.Parse(serverURL)
	if err != nil || u.Scheme == "" || u.Host == "" {
		return nil, fmt.Errorf("invalid CalDAV server URL %q", serverURL)
	}

	o := clientOptions{httpClient: &http.Client{}}
	for _, opt := range opts {
		opt(&o)
	}
	if o.logger == nil {
		o.logger = slog.New(slog.NewTextHandler(io.Discard, nil))
	}

	hc := *o.httpClient
	hc.Transport = tracelog.NewTransport(hc.Transport, o.sink, userAgent)

	return &Client{
		http:     webdav.HTTPClientWithBasicAuth(&hc, username, password),
		origin:   &url.URL{Scheme: u.Scheme, Host: u.Host},
		server:   serverURL,
		username: username,
		logger:   o.logger,
	}, nil
}

// ResolveURL turns an href from a multistatus body into an absolute URL. An
// href with a scheme is returned unchanged; anything else is joined to the
// server origin.
func (c *Client) ResolveURL(href string) string {
	ref, err := url.Parse(href)
	if err != nil {
		return href
	}
	if ref.Scheme != "" {
		return href
	}
	return c.origin.ResolveReference(ref).String()
}

// request is a single CalDAV call.
type request struct {
	op      string
	method  string
	url     string
	depth   string
	body    string
	ctype   string
	ifMatch string // etag without quotes
}

// send performs req and returns the response. Transport failures are
// ErrNetwork; the status is not inspected.
func (c *Client) send(ctx context.Context, req request) (*http.Response, error) {
	var body io.Reader
	if req.body != "" {
		body = strings.NewReader(req.body)
	}
	hr, err := http.NewRequestWithContext(ctx, req.method, req.url, body)
	if err != nil {
		return nil, fmt.Errorf("%w: %s: %v", calerr.ErrCalDAV, req.op, err)
	}
	if req.ctype != "" {
		hr.Header.Set("Content-Type", req.ctype)
	}
	if req.depth != "" {
		hr.Header.Set("Depth", req.depth)
	}
	if req.ifMatch != "" {
		hr.Header.Set("If-Match", `"`+req.ifMatch+`"`)
	}

	c.logger.Debug("CalDAV request", "op", req.op, "method", req.method, "url", req.url)
	resp, err := c.http.Do(hr)
	if err != nil {
		return nil, fmt.Errorf("%w: %s: %v", calerr.ErrNetwork, req.op, err)
	}
	return resp, nil
}

// do performs req and fails on any non-2xx status. The caller closes the
// body.
func (c *Client) do(ctx context.Context, req request) (*http.Response, error) {
	resp, err := c.send(ctx, req)
	if err != nil {
		return nil, err
	}
	if err := checkStatus(req.op, resp); err != nil {
		resp.Body.Close()
		return nil, err
	}
	return resp, nil
}

// checkStatus maps 401 to ErrTokenExpired and other non-2xx statuses to a
// StatusError of kind ErrCalDAV.
func checkStatus(op string, resp *http.Response) error {
	if resp.StatusCode >= 200 && resp.StatusCode < 300 {
		return nil
	}
	if resp.StatusCode == http.StatusUnauthorized {
		return fmt.Errorf("%w: %s: HTTP 401", calerr.ErrTokenExpired, op)
	}
	body, _ := io.ReadAll(io.LimitReader(resp.Body, 4096))
	return calerr.NewStatusError(calerr.ErrCalDAV, op, resp.StatusCode, string(body))
}

// objectURL is where a calendar object with the given UID lives.
func objectURL(calendarURL, uid string) string {
	return strings.TrimRight(calendarURL, "/") + "/" + url.PathEscape(uid) + ".ics"
}

func trimETag(s string) string {
	return strings.Trim(strings.TrimSpace(s), `"`)
}
