package icloud

import (
	"context"
	"fmt"
	"net/http"
	"time"

	"calendarchy/internal/calerr"
	"calendarchy/internal/davxml"
	"calendarchy/internal/ics"
)

const calendarQueryBody = `<?xml version="1.0" encoding="utf-8" ?>
<c:calendar-query xmlns:d="DAV:" xmlns:c="urn:ietf:params:xml:ns:caldav">
  <d:prop>
    <d:getetag/>
    <c:calendar-data/>
  </d:prop>
  <c:filter>
    <c:comp-filter name="VCALENDAR">
      <c:comp-filter name="VEVENT">
        <c:time-range start="%s" end="%s"/>
      </c:comp-filter>
    </c:comp-filter>
  </c:filter>
</c:calendar-query>`

// Event is a decoded VEVENT together with where it was stored.
type Event struct {
	ics.Event
	CalendarURL string
	ETag        string
	Href        string // absolute URL of the calendar object
}

// FetchEvents returns the events of calendarURL that overlap the days from
// start to end inclusive. Calendar objects that do not decode are skipped.
func (c *Client) FetchEvents(ctx context.Context, calendarURL string, start, end time.Time) ([]Event, error) {
	const op = "calendar query"
	body := fmt.Sprintf(calendarQueryBody,
		start.Format("20060102")+"T000000Z",
		end.Format("20060102")+"T235959Z")

	resp, err := c.do(ctx, request{
		op:     op,
		method: "REPORT",
		url:    calendarURL,
		depth:  "1",
		body:   body,
		ctype:  xmlContentType,
	})
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	entries, err := davxml.ParseReport(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("%w: %s: malformed response: %v", calerr.ErrCalDAV, op, err)
	}

	var events []Event
	for _, entry := range entries {
		href := ""
		if entry.Href != "" {
			href = c.ResolveURL(entry.Href)
		}
		for _, ev := range ics.Decode(entry.CalendarData) {
			events = append(events, Event{
				Event:       ev,
				CalendarURL: calendarURL,
				ETag:        entry.ETag,
				Href:        href,
			})
		}
	}
	c.logger.Debug("Fetched iCloud events", "calendar", calendarURL, "objects", len(entries), "events", len(events))
	return events, nil
}

// DeleteEvent removes the object for uid from calendarURL. A known etag is
// sent as If-Match. An object that is already gone counts as deleted.
func (c *Client) DeleteEvent(ctx context.Context, calendarURL, uid, etag string) error {
	const op = "delete event"
	resp, err := c.send(ctx, request{
		op:      op,
		method:  http.MethodDelete,
		url:     objectURL(calendarURL, uid),
		ifMatch: etag,
	})
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	if resp.StatusCode == http.StatusNotFound {
		c.logger.Debug("Event already deleted", "uid", uid)
		return nil
	}
	return checkStatus(op, resp)
}
