package mets

import (
	"strings"
	"time"
)

const (
	// PageIDSeparator separates the prefix from the group id of a page id.
	PageIDSeparator = "-id_"

	// DateLayout is the mets date format (yyyy-MM-dd'T'HH:mm:ss.SSS).
	DateLayout = "2006-01-02T15:04:05.000"
)

// Page encodes and decodes mets page ids bound to a prefix.
type Page struct {
	prefix string
}

// NewPage creates a page id codec. The prefix is trimmed.
func NewPage(prefix string) Page {
	return Page{prefix: strings.TrimSpace(prefix)}
}

// ID returns the page id of the trimmed group id.
func (p Page) ID(groupID string) string {
	return p.prefix + PageIDSeparator + strings.TrimSpace(groupID)
}

// GroupID returns the group id of the page id.
func (p Page) GroupID(pageID string) (string, error) {
	head := p.prefix + PageIDSeparator
	if !strings.HasPrefix(pageID, head) {
		return "", &AddressingError{Value: pageID, Prefix: p.prefix, Reason: "missing page id prefix"}
	}
	return pageID[len(head):], nil
}

// FormatDate renders the time in the mets date format.
func FormatDate(t time.Time) string {
	return t.Format(DateLayout)
}

// ParseDate parses a mets date in the local time zone.
func ParseDate(value string) (time.Time, error) {
	return time.ParseInLocation(DateLayout, strings.TrimSpace(value), time.Local)
}

// Now returns the current time in the mets date format.
func Now() string {
	return FormatDate(time.Now())
}
