package cache

import (
	"net/http"
	"time"

	"github.com/Sternrassler/clientrt/pkg/fetch"
)

// DefaultTTL is how long an entry is kept in Redis when no TTL is configured.
const DefaultTTL = 10 * time.Minute

// FromResponse builds an Entry from a successful GET response. It returns
// false when the response cannot be revalidated later.
func FromResponse(resp *fetch.Response) (*Entry, bool) {
	if resp == nil || resp.StatusCode != http.StatusOK {
		return nil, false
	}
	if resp.Request.Method != "" && resp.Request.Method != http.MethodGet {
		return nil, false
	}

	entry := &Entry{
		Data:       append([]byte(nil), resp.Body...),
		ETag:       resp.Header.Get("ETag"),
		StatusCode: resp.StatusCode,
		Headers:    resp.Header.Clone(),
		StoredAt:   time.Now(),
	}

	if lastModStr := resp.Header.Get("Last-Modified"); lastModStr != "" {
		if lastMod, err := http.ParseTime(lastModStr); err == nil {
			entry.LastModified = lastMod
		}
	}

	if !entry.Revalidatable() {
		return nil, false
	}
	return entry, true
}

// AddConditionalHeaders sets If-None-Match (preferred) or If-Modified-Since
// on req from entry.
func AddConditionalHeaders(req *fetch.Request, entry *Entry) {
	if req == nil || !entry.Revalidatable() {
		return
	}
	if req.Header == nil {
		req.Header = http.Header{}
	}

	if entry.ETag != "" {
		req.Header.Set("If-None-Match", entry.ETag)
	} else {
		req.Header.Set("If-Modified-Since", entry.LastModified.Format(http.TimeFormat))
	}
}

// ToResponse rebuilds the stored response for req. Headers from the 304
// response, if given, override stored ones as RFC 9111 requires.
func ToResponse(entry *Entry, req fetch.Request, notModified http.Header) *fetch.Response {
	header := entry.Headers.Clone()
	if header == nil {
		header = http.Header{}
	}
	for k, v := range notModified {
		header[k] = append([]string(nil), v...)
	}

	return &fetch.Response{
		StatusCode: entry.StatusCode,
		Header:     header,
		Body:       append([]byte(nil), entry.Data...),
		Request:    req,
	}
}
