package icloud

import (
	"context"
	"fmt"

	"calendarchy/internal/calerr"
	"calendarchy/internal/davxml"
	"calendarchy/internal/models"
)

const principalBody = `<?xml version="1.0" encoding="utf-8" ?>
<d:propfind xmlns:d="DAV:">
  <d:prop>
    <d:current-user-principal/>
  </d:prop>
</d:propfind>`

const calendarHomeBody = `<?xml version="1.0" encoding="utf-8" ?>
<d:propfind xmlns:d="DAV:" xmlns:c="urn:ietf:params:xml:ns:caldav">
  <d:prop>
    <c:calendar-home-set/>
  </d:prop>
</d:propfind>`

const calendarListBody = `<?xml version="1.0" encoding="utf-8" ?>
<d:propfind xmlns:d="DAV:" xmlns:c="urn:ietf:params:xml:ns:caldav" xmlns:cs="http://calendarserver.org/ns/">
  <d:prop>
    <d:displayname/>
    <d:resourcetype/>
    <cs:getctag/>
  </d:prop>
</d:propfind>`

// DiscoverCalendars walks principal, calendar home and calendar list in
// order and returns every calendar collection. No calendars is not an
// error.
func (c *Client) DiscoverCalendars(ctx context.Context) ([]models.CalendarHandle, error) {
	principal, err := c.FindPrincipal(ctx)
	if err != nil {
		return nil, err
	}
	home, err := c.FindCalendarHome(ctx, principal)
	if err != nil {
		return nil, err
	}
	return c.ListCalendars(ctx, home)
}

// FindPrincipal returns the absolute URL of the current user principal.
func (c *Client) FindPrincipal(ctx context.Context) (string, error) {
	href, err := c.propfindHref(ctx, "principal discovery", c.server, principalBody, "current-user-principal")
	if err != nil {
		return "", err
	}
	if href == "" {
		return "", fmt.Errorf("%w: %w", calerr.ErrCalDAV, calerr.ErrPrincipalNotFound)
	}
	c.logger.Debug("Found principal", "url", href)
	return href, nil
}

// FindCalendarHome returns the absolute URL of the principal's calendar home.
func (c *Client) FindCalendarHome(ctx context.Context, principalURL string) (string, error) {
	href, err := c.propfindHref(ctx, "calendar home discovery", principalURL, calendarHomeBody, "calendar-home-set")
	if err != nil {
		return "", err
	}
	if href == "" {
		return "", fmt.Errorf("%w: %w", calerr.ErrCalDAV, calerr.ErrCalendarHomeNotFound)
	}
	c.logger.Debug("Found calendar home", "url", href)
	return href, nil
}

// propfindHref runs a Depth:0 PROPFIND and returns the resolved href inside
// property, or "" when the property is absent.
func (c *Client) propfindHref(ctx context.Context, op, target, body, property string) (string, error) {
	resp, err := c.do(ctx, request{
		op:     op,
		method: "PROPFIND",
		url:    c.ResolveURL(target),
		depth:  "0",
		body:   body,
		ctype:  xmlContentType,
	})
	if err != nil {
		return "", err
	}
	defer resp.Body.Close()

	href, found, err := davxml.ExtractHref(resp.Body, property)
	if err != nil {
		return "", fmt.Errorf("%w: %s: malformed response: %v", calerr.ErrCalDAV, op, err)
	}
	if !found {
		return "", nil
	}
	return c.ResolveURL(href), nil
}

// ListCalendars returns the calendar collections under homeURL.
func (c *Client) ListCalendars(ctx context.Context, homeURL string) ([]models.CalendarHandle, error) {
	const op = "calendar list"
	resp, err := c.do(ctx, request{
		op:     op,
		method: "PROPFIND",
		url:    c.ResolveURL(homeURL),
		depth:  "1",
		body:   calendarListBody,
		ctype:  xmlContentType,
	})
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	entries, err := davxml.ParseCalendarList(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("%w: %s: malformed response: %v", calerr.ErrCalDAV, op, err)
	}

	handles := make([]models.CalendarHandle, 0, len(entries))
	for _, e := range entries {
		handles = append(handles, models.CalendarHandle{URL: c.ResolveURL(e.Href), Name: e.DisplayName})
	}
	c.logger.Debug("Listed calendars", "home", homeURL, "count", len(handles))
	return handles, nil
}
