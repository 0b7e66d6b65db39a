// Package davxml extracts the handful of values the CalDAV client needs from
// WebDAV multistatus bodies. Elements are matched by local name only, so any
// namespace prefix the server picks (d:, D:, none) is accepted.
package davxml

import (
	"encoding/xml"
	"errors"
	"io"
	"strings"
)

// CalendarEntry is one calendar collection listed under a calendar home.
type CalendarEntry struct {
	Href        string
	DisplayName string
}

// ReportEntry is one calendar object returned by a calendar-query REPORT.
type ReportEntry struct {
	Href         string
	ETag         string // without surrounding quotes
	CalendarData string
}

// walker tracks the path of open elements while streaming tokens.
type walker struct {
	dec   *xml.Decoder
	stack []string
}

func newWalker(r io.Reader) *walker {
	return &walker{dec: xml.NewDecoder(r)}
}

// next returns the next token, keeping the element stack current.
// io.EOF is returned at the end of the document.
func (w *walker) next() (xml.Token, error) {
	tok, err := w.dec.Token()
	if err != nil {
		return nil, err
	}
	switch t := tok.(type) {
	case xml.StartElement:
		w.stack = append(w.stack, t.Name.Local)
	case xml.EndElement:
		if len(w.stack) > 0 {
			w.stack = w.stack[:len(w.stack)-1]
		}
	}
	return tok, nil
}

// parent returns the local name n levels above the current element.
func (w *walker) parent(n int) string {
	i := len(w.stack) - 1 - n
	if i < 0 {
		return ""
	}
	return w.stack[i]
}

func (w *walker) inside(name string) bool {
	for _, s := range w.stack {
		if s == name {
			return true
		}
	}
	return false
}

// ExtractHref returns the text of the first href element nested inside an
// element named parent, e.g. "current-user-principal" or
// "calendar-home-set". found is false when no such href exists.
func ExtractHref(r io.Reader, parent string) (href string, found bool, err error) {
	w := newWalker(r)
	for {
		tok, err := w.next()
		if errors.Is(err, io.EOF) {
			return "", false, nil
		}
		if err != nil {
			return "", false, err
		}
		cd, ok := tok.(xml.CharData)
		if !ok || w.parent(0) != "href" || !w.inside(parent) {
			continue
		}
		if text := strings.TrimSpace(string(cd)); text != "" {
			return text, true, nil
		}
	}
}

// ParseCalendarList returns the responses of a Depth:1 PROPFIND whose
// resourcetype contains a calendar element. The calendar home itself and
// any other collection types are skipped.
func ParseCalendarList(r io.Reader) ([]CalendarEntry, error) {
	var (
		calendars  []CalendarEntry
		current    CalendarEntry
		isCalendar bool
	)

	w := newWalker(r)
	for {
		tok, err := w.next()
		if errors.Is(err, io.EOF) {
			return calendars, nil
		}
		if err != nil {
			return calendars, err
		}

		switch t := tok.(type) {
		case xml.StartElement:
			switch {
			case t.Name.Local == "response":
				current = CalendarEntry{}
				isCalendar = false
			case t.Name.Local == "calendar" && w.parent(1) == "resourcetype":
				isCalendar = true
			}
		case xml.EndElement:
			if t.Name.Local == "response" && isCalendar && current.Href != "" {
				calendars = append(calendars, current)
			}
		case xml.CharData:
			text := strings.TrimSpace(string(t))
			if text == "" {
				continue
			}
			switch {
			case w.parent(0) == "href" && w.parent(1) == "response":
				current.Href = text
			case w.parent(0) == "displayname" && w.inside("response"):
				current.DisplayName += text
			}
		}
	}
}

// ParseReport returns the href, etag and calendar-data of every response in
// a calendar-query REPORT body. Responses without calendar data are skipped.
func ParseReport(r io.Reader) ([]ReportEntry, error) {
	var (
		entries []ReportEntry
		current ReportEntry
		data    strings.Builder
	)

	w := newWalker(r)
	for {
		tok, err := w.next()
		if errors.Is(err, io.EOF) {
			return entries, nil
		}
		if err != nil {
			return entries, err
		}

		switch t := tok.(type) {
		case xml.StartElement:
			if t.Name.Local == "response" {
				current = ReportEntry{}
				data.Reset()
			}
		case xml.EndElement:
			if t.Name.Local == "response" {
				current.CalendarData = data.String()
				if strings.TrimSpace(current.CalendarData) != "" {
					entries = append(entries, current)
				}
			}
		case xml.CharData:
			switch {
			case w.parent(0) == "href" && w.parent(1) == "response":
				current.Href = strings.TrimSpace(string(t))
			case w.parent(0) == "getetag":
				current.ETag = trimETag(string(t))
			case w.parent(0) == "calendar-data":
				// CDATA sections arrive as separate tokens.
				data.Write(t)
			}
		}
	}
}

func trimETag(s string) string {
	return strings.Trim(strings.TrimSpace(s), `"`)
}
