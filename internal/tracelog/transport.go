package tracelog

import (
	"net/http"
	"time"

	"github.com/google/uuid"
)

// Transport traces every round trip to a Sink and sets a User-Agent.
type Transport struct {
	Base      http.RoundTripper
	Sink      Sink
	UserAgent string

	now func() time.Time
}

// NewTransport wraps base (http.DefaultTransport when nil).
func NewTransport(base http.RoundTripper, sink Sink, userAgent string) *Transport {
	if base == nil {
		base = http.DefaultTransport
	}
	if sink == nil {
		sink = Nop
	}
	return &Transport{Base: base, Sink: sink, UserAgent: userAgent, now: time.Now}
}

// RoundTrip implements http.RoundTripper.
func (t *Transport) RoundTrip(req *http.Request) (*http.Response, error) {
	if t.UserAgent != "" && req.Header.Get("User-Agent") == "" {
		req = req.Clone(req.Context())
		req.Header.Set("User-Agent", t.UserAgent)
	}

	id := uuid.NewString()
	target := redactedURL(req)
	start := t.now()
	t.Sink.Record(Event{
		Time:      start,
		RequestID: id,
		Direction: Request,
		Method:    req.Method,
		URL:       target,
	})

	resp, err := t.Base.RoundTrip(req)

	end := t.now()
	ev := Event{
		Time:      end,
		RequestID: id,
		Direction: Response,
		Method:    req.Method,
		URL:       target,
		Duration:  end.Sub(start),
		Err:       err,
	}
	if resp != nil {
		ev.Status = resp.StatusCode
	}
	t.Sink.Record(ev)

	return resp, err
}

// redactedURL drops userinfo and the query string; page tokens and
// access tokens never reach the sink.
func redactedURL(req *http.Request) string {
	u := *req.URL
	u.User = nil
	u.RawQuery = ""
	u.ForceQuery = false
	return u.String()
}
