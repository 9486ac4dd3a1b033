package gcal

import (
	"encoding/base64"
	"net/url"
	"strings"
	"unicode/utf8"
)

// DefaultCalendarID is used when nothing else identifies a calendar.
const DefaultCalendarID = "primary"

// RefSource records which input a CalendarRef was resolved from.
type RefSource string

const (
	RefExplicit RefSource = "explicit"
	RefShareID  RefSource = "share_id"
	RefURL      RefSource = "url"
	RefDefault  RefSource = "default"
)

// CalendarRef is a resolved calendar identifier. It is a value type and is
// never modified after ResolveCalendar returns it.
type CalendarRef struct {
	ID     string
	Source RefSource
}

// Escaped returns the id percent-encoded for use as a URL path segment.
func (r CalendarRef) Escaped() string {
	return url.PathEscape(r.ID)
}

func (r CalendarRef) String() string {
	return r.ID
}

// ResolveCalendar picks the calendar id with precedence: explicit id, then
// the base64url "cid" share parameter of sourceURL, then an id embedded in
// sourceURL ("src" parameter or the path segment after /calendars/), then
// "primary".
func ResolveCalendar(explicit, sourceURL string) CalendarRef {
	if id := strings.TrimSpace(explicit); id != "" {
		return CalendarRef{ID: id, Source: RefExplicit}
	}

	u, err := url.Parse(strings.TrimSpace(sourceURL))
	if err != nil || sourceURL == "" {
		return CalendarRef{ID: DefaultCalendarID, Source: RefDefault}
	}

	if id, ok := decodeShareID(u.Query().Get("cid")); ok {
		return CalendarRef{ID: id, Source: RefShareID}
	}

	if id := embeddedID(u); id != "" {
		return CalendarRef{ID: id, Source: RefURL}
	}

	return CalendarRef{ID: DefaultCalendarID, Source: RefDefault}
}

// decodeShareID decodes a shareable calendar id. Google emits these as
// base64url, with or without padding; some links use the standard alphabet.
func decodeShareID(cid string) (string, bool) {
	cid = strings.TrimRight(strings.TrimSpace(cid), "=")
	if cid == "" {
		return "", false
	}

	for _, enc := range []*base64.Encoding{base64.RawURLEncoding, base64.RawStdEncoding} {
		raw, err := enc.DecodeString(cid)
		if err != nil || len(raw) == 0 || !utf8.Valid(raw) {
			continue
		}

		return string(raw), true
	}

	return "", false
}

func embeddedID(u *url.URL) string {
	if src := strings.TrimSpace(u.Query().Get("src")); src != "" {
		return src
	}

	const marker = "/calendars/"

	path := u.EscapedPath()

	idx := strings.Index(path, marker)
	if idx < 0 {
		return ""
	}

	seg := path[idx+len(marker):]
	if slash := strings.IndexByte(seg, '/'); slash >= 0 {
		seg = seg[:slash]
	}

	id, err := url.PathUnescape(seg)
	if err != nil {
		return ""
	}

	return id
}
