package ics

import (
	"strings"
	"time"
)

// Decode returns every valid VEVENT in data. A block missing UID or DTSTART
// is dropped without affecting its siblings; Decode itself never fails.
func Decode(data string) []Event {
	var (
		events []Event
		cur    *builder
		depth  int // nesting of sub-components (VALARM) inside the open VEVENT
	)

	for _, raw := range Unfold(data) {
		line := strings.TrimSpace(raw)
		if line == "" {
			continue
		}
		name, params, value, ok := splitLine(line)
		if !ok {
			continue
		}

		switch name {
		case "BEGIN":
			if strings.EqualFold(value, "VEVENT") {
				cur, depth = &builder{}, 0
			} else if cur != nil {
				depth++
			}
			continue
		case "END":
			if cur == nil {
				continue
			}
			if depth > 0 {
				depth--
				continue
			}
			if strings.EqualFold(value, "VEVENT") {
				if ev, ok := cur.build(); ok {
					events = append(events, ev)
				}
				cur = nil
			}
			continue
		}

		if cur == nil || depth > 0 {
			continue
		}
		cur.apply(name, params, value)
	}

	return events
}

// apply dispatches one property line of an open VEVENT.
func (b *builder) apply(name string, params map[string]string, value string) {
	switch name {
	case "UID":
		b.uid = ptr(strings.TrimSpace(value))
	case "SUMMARY":
		b.summary = ptr(unescape(value))
	case "LOCATION":
		b.location = ptr(unescape(value))
	case "DESCRIPTION":
		b.description = ptr(unescape(value))
	case "URL":
		b.url = ptr(strings.TrimSpace(value))
	case "TRANSP":
		b.transp = ptr(strings.ToUpper(strings.TrimSpace(value)))
	case "DTSTART":
		b.start = parseTime(params, value)
	case "DTEND":
		b.end = parseTime(params, value)
	case "ATTENDEE":
		if ps, ok := params["PARTSTAT"]; ok {
			b.partStat = ptr(strings.ToUpper(ps))
		}
		if a, ok := parseAttendee(params, value); ok {
			b.attendees = append(b.attendees, a)
		}
	case "ORGANIZER":
		if a, ok := parseAttendee(params, value); ok {
			a.Organizer = true
			a.PartStat = PartStatAccepted
			b.attendees = append(b.attendees, a)
		}
	}
}

// Unfold joins continuation lines (those starting with a space or tab) onto
// the preceding line. Line endings may be CRLF or LF. Empty lines are
// dropped.
func Unfold(data string) []string {
	var (
		lines []string
		cur   strings.Builder
	)
	flush := func() {
		if cur.Len() > 0 {
			lines = append(lines, cur.String())
			cur.Reset()
		}
	}

	for _, line := range strings.Split(data, "\n") {
		line = strings.TrimSuffix(line, "\r")
		if strings.HasPrefix(line, " ") || strings.HasPrefix(line, "\t") {
			cur.WriteString(strings.TrimLeft(line, " \t"))
			continue
		}
		flush()
		cur.WriteString(line)
	}
	flush()

	return lines
}

// splitLine separates "NAME;P1=V1;P2=V2:value". Colons and semicolons inside
// double-quoted parameter values do not split. The name is upper-cased and
// parameter names are upper-cased with quotes stripped from their values.
func splitLine(line string) (name string, params map[string]string, value string, ok bool) {
	colon := indexUnquoted(line, ':')
	if colon < 0 {
		return "", nil, "", false
	}
	head, value := line[:colon], line[colon+1:]

	parts := splitUnquoted(head, ';')
	name = strings.ToUpper(strings.TrimSpace(parts[0]))
	if name == "" {
		return "", nil, "", false
	}
	for _, p := range parts[1:] {
		k, v, found := strings.Cut(p, "=")
		if !found {
			continue
		}
		if params == nil {
			params = make(map[string]string, len(parts)-1)
		}
		params[strings.ToUpper(strings.TrimSpace(k))] = strings.Trim(v, `"`)
	}
	return name, params, value, true
}

func indexUnquoted(s string, sep byte) int {
	quoted := false
	for i := 0; i < len(s); i++ {
		switch s[i] {
		case '"':
			quoted = !quoted
		case sep:
			if !quoted {
				return i
			}
		}
	}
	return -1
}

func splitUnquoted(s string, sep byte) []string {
	var parts []string
	for {
		i := indexUnquoted(s, sep)
		if i < 0 {
			return append(parts, s)
		}
		parts = append(parts, s[:i])
		s = s[i+1:]
	}
}

const (
	dateLayout     = "20060102"
	dateTimeLayout = "20060102T150405"
)

// parseTime decodes a DATE or DATE-TIME value. It returns nil when the
// value is malformed.
func parseTime(params map[string]string, value string) *Time {
	value = strings.TrimSpace(value)
	tzid := params["TZID"]

	if strings.EqualFold(params["VALUE"], "DATE") || (len(value) == 8 && !strings.Contains(value, "T")) {
		if len(value) < 8 {
			return nil
		}
		d, err := time.Parse(dateLayout, value[:8])
		if err != nil {
			return nil
		}
		return &Time{Time: d, AllDay: true, TZID: tzid}
	}

	value = strings.TrimSuffix(value, "Z")
	if len(value) < len(dateTimeLayout) {
		return nil
	}
	t, err := time.Parse(dateTimeLayout, value[:len(dateTimeLayout)])
	if err != nil {
		return nil
	}
	return &Time{Time: t, TZID: tzid}
}

// unescape reverses TEXT escaping in a single left-to-right pass.
func unescape(value string) string {
	if !strings.Contains(value, `\`) {
		return value
	}
	var sb strings.Builder
	sb.Grow(len(value))
	for i := 0; i < len(value); i++ {
		c := value[i]
		if c != '\\' || i+1 == len(value) {
			sb.WriteByte(c)
			continue
		}
		i++
		switch next := value[i]; next {
		case 'n', 'N':
			sb.WriteByte('\n')
		case ',', ';', '\\':
			sb.WriteByte(next)
		default:
			sb.WriteByte('\\')
			sb.WriteByte(next)
		}
	}
	return sb.String()
}

// parseAttendee reads the shared ATTENDEE/ORGANIZER shape. Lines without an
// address are dropped.
func parseAttendee(params map[string]string, value string) (Attendee, bool) {
	email := strings.TrimSpace(value)
	if len(email) >= len("mailto:") && strings.EqualFold(email[:len("mailto:")], "mailto:") {
		email = email[len("mailto:"):]
	}
	if email == "" {
		return Attendee{}, false
	}

	partStat := strings.ToUpper(params["PARTSTAT"])
	if partStat == "" {
		partStat = PartStatNeedsAction
	}
	return Attendee{
		Name:     params["CN"],
		Email:    email,
		PartStat: partStat,
	}, true
}
