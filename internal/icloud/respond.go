package icloud

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"net/http"
	"strings"

	"calendarchy/internal/calerr"
	"calendarchy/internal/models"

	"github.com/emersion/go-ical"
)

// RespondEvent sets the account's PARTSTAT on the event and writes the
// object back with a single If-Match attempt. An event where the account is
// not an attendee is left unchanged.
func (c *Client) RespondEvent(ctx context.Context, id models.ICloudEventID, response models.Response) error {
	target := id.Href
	if target == "" {
		target = objectURL(id.CalendarURL, id.UID)
	}

	resp, err := c.do(ctx, request{op: "get event", method: http.MethodGet, url: target})
	if err != nil {
		return err
	}
	data, err := io.ReadAll(resp.Body)
	resp.Body.Close()
	if err != nil {
		return fmt.Errorf("%w: get event: %v", calerr.ErrNetwork, err)
	}

	etag := trimETag(resp.Header.Get("ETag"))
	if etag == "" {
		etag = id.ETag
	}

	cal, err := ical.NewDecoder(bytes.NewReader(data)).Decode()
	if err != nil {
		return fmt.Errorf("%w: get event: cannot decode calendar object: %v", calerr.ErrCalDAV, err)
	}

	if !setPartStat(cal, c.username, strings.ToUpper(string(response))) {
		c.logger.Debug("Account is not an attendee, nothing to respond", "uid", id.UID)
		return nil
	}

	var buf bytes.Buffer
	if err := ical.NewEncoder(&buf).Encode(cal); err != nil {
		return fmt.Errorf("%w: put event: cannot encode calendar object: %v", calerr.ErrCalDAV, err)
	}

	resp, err = c.do(ctx, request{
		op:      "put event",
		method:  http.MethodPut,
		url:     target,
		body:    buf.String(),
		ctype:   icsContentType,
		ifMatch: etag,
	})
	if err != nil {
		return err
	}
	resp.Body.Close()
	return nil
}

// setPartStat updates every ATTENDEE line addressed to email across the
// calendar's events and reports whether any matched.
func setPartStat(cal *ical.Calendar, email, partStat string) bool {
	changed := false
	for _, comp := range cal.Children {
		if comp.Name != ical.CompEvent {
			continue
		}
		attendees := comp.Props[ical.PropAttendee]
		for i := range attendees {
			p := &attendees[i]
			if !strings.EqualFold(mailtoAddress(p.Value), email) {
				continue
			}
			if p.Params == nil {
				p.Params = make(ical.Params)
			}
			p.Params.Set("PARTSTAT", partStat)
			delete(p.Params, "RSVP")
			changed = true
		}
	}
	return changed
}

func mailtoAddress(value string) string {
	value = strings.TrimSpace(value)
	if len(value) >= len("mailto:") && strings.EqualFold(value[:len("mailto:")], "mailto:") {
		return value[len("mailto:"):]
	}
	return value
}
