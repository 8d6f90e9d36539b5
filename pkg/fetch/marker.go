package fetch

import (
	"fmt"
	"strings"
)

// MarkerKind identifies the carrier of a continuation marker.
type MarkerKind int

const (
	// MarkerAbsent means no further pages or polls exist.
	MarkerAbsent MarkerKind = iota

	// MarkerNextLink carries a full (or relative) URL for the next request.
	MarkerNextLink

	// MarkerToken carries an opaque token that is re-injected into a header,
	// query parameter or nested body field of the next request.
	MarkerToken
)

// String returns the kind name.
func (k MarkerKind) String() string {
	switch k {
	case MarkerNextLink:
		return "link"
	case MarkerToken:
		return "token"
	default:
		return "absent"
	}
}

// Marker is the opaque data needed to fetch the next page.
type Marker struct {
	Kind  MarkerKind
	Value string
}

// Absent is the marker for "no more pages".
var Absent = Marker{}

// NextLink returns a next-link marker. An empty link is treated as absent;
// servers commonly send "" or an empty XML element on the last page.
func NextLink(link string) Marker {
	if link == "" {
		return Absent
	}
	return Marker{Kind: MarkerNextLink, Value: link}
}

// Token returns a token marker. An empty token is treated as absent.
func Token(token string) Marker {
	if token == "" {
		return Absent
	}
	return Marker{Kind: MarkerToken, Value: token}
}

// IsAbsent reports whether the marker signals the end of the sequence.
func (m Marker) IsAbsent() bool {
	return m.Kind == MarkerAbsent || m.Value == ""
}

// String encodes the marker as "<kind>:<value>" for checkpointing.
// The absent marker encodes as the empty string.
func (m Marker) String() string {
	if m.IsAbsent() {
		return ""
	}
	return m.Kind.String() + ":" + m.Value
}

// ParseMarker decodes the output of Marker.String.
func ParseMarker(s string) (Marker, error) {
	if s == "" {
		return Absent, nil
	}

	kind, value, ok := strings.Cut(s, ":")
	if !ok {
		return Absent, fmt.Errorf("parse marker %q: missing kind", s)
	}

	switch kind {
	case "link":
		return NextLink(value), nil
	case "token":
		return Token(value), nil
	default:
		return Absent, fmt.Errorf("parse marker %q: unknown kind %q", s, kind)
	}
}
