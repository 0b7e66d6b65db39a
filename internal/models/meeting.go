package models

import "strings"

// meetingURLPrefixes are the video-conferencing links recognised in free text.
var meetingURLPrefixes = []string{
	"https://zoom.us/",
	"https://us02web.zoom.us/",
	"https://us04web.zoom.us/",
	"https://us05web.zoom.us/",
	"https://us06web.zoom.us/",
	"https://meet.google.com/",
	"https://teams.microsoft.com/",
}

// IsMeetingURL reports whether url points at a known conferencing service.
func IsMeetingURL(url string) bool {
	return strings.Contains(url, "zoom.us") ||
		strings.Contains(url, "meet.google.com") ||
		strings.Contains(url, "teams.microsoft.com")
}

// ExtractMeetingURL returns the first conferencing link found in text,
// cut at the next whitespace, quote or angle bracket.
func ExtractMeetingURL(text string) string {
	for _, prefix := range meetingURLPrefixes {
		start := strings.Index(text, prefix)
		if start < 0 {
			continue
		}
		rest := text[start:]
		if end := strings.IndexFunc(rest, isURLTerminator); end >= 0 {
			rest = rest[:end]
		}
		return rest
	}
	return ""
}

func isURLTerminator(r rune) bool {
	switch r {
	case ' ', '\t', '\n', '\r', '\v', '\f', '"', '<', '>':
		return true
	}
	return false
}
