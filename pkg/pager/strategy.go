package pager

import (
	"fmt"
	"net/url"
	"strconv"

	"github.com/Sternrassler/clientrt/pkg/fetch"
)

// ExtractFunc reads the continuation marker from a page's raw response.
// It returns fetch.Absent when no further pages exist.
type ExtractFunc func(resp *fetch.Response) (fetch.Marker, error)

// InjectFunc builds the next request-state from the listing's first request
// and a marker. It must not modify initial.
type InjectFunc func(initial fetch.Request, m fetch.Marker) (fetch.Request, error)

// Strategy is the per-operation knowledge of where the continuation marker
// lives. Strategies are plain function values; the engine is generic over them.
type Strategy struct {
	Name    string
	Extract ExtractFunc
	Inject  InjectFunc
}

// Custom builds a strategy from arbitrary extract and inject functions.
func Custom(name string, extract ExtractFunc, inject InjectFunc) Strategy {
	return Strategy{Name: name, Extract: extract, Inject: inject}
}

// Single is the strategy for operations that return exactly one page.
func Single() Strategy {
	return Strategy{
		Name: "single",
		Extract: func(*fetch.Response) (fetch.Marker, error) {
			return fetch.Absent, nil
		},
		Inject: func(fetch.Request, fetch.Marker) (fetch.Request, error) {
			return fetch.Request{}, fmt.Errorf("single-page operation has no next page")
		},
	}
}

// NextLink reads a next-page URL from the dotted JSON field path and requests
// it as-is. Query parameters named in preserveQuery (typically "api-version")
// are copied from the first request onto every next link.
func NextLink(path string, preserveQuery ...string) Strategy {
	return Strategy{
		Name:    "nextLink",
		Extract: ExtractBodyLink(path),
		Inject:  InjectLink(preserveQuery...),
	}
}

// HeaderToken reads a token from a response header and sends it back in a
// request header.
func HeaderToken(responseHeader, requestHeader string) Strategy {
	return Strategy{
		Name:    "headerToken",
		Extract: ExtractHeaderToken(responseHeader),
		Inject:  InjectHeader(requestHeader),
	}
}

// QueryToken reads a token from the dotted JSON field path and sends it as
// query parameter param.
func QueryToken(path, param string) Strategy {
	return Strategy{
		Name:    "queryToken",
		Extract: ExtractBodyToken(path),
		Inject:  InjectQuery(param),
	}
}

// HeaderToQuery reads a token from a response header and sends it as query
// parameter param.
func HeaderToQuery(responseHeader, param string) Strategy {
	return Strategy{
		Name:    "headerToQuery",
		Extract: ExtractHeaderToken(responseHeader),
		Inject:  InjectQuery(param),
	}
}

// BodyToken reads a token from the dotted JSON field path and writes it into
// the nested field requestPath of the JSON request body.
func BodyToken(path, requestPath string) Strategy {
	return Strategy{
		Name:    "bodyToken",
		Extract: ExtractBodyToken(path),
		Inject:  InjectBodyField(requestPath),
	}
}

// PageCount is the page-number strategy for APIs that report the total page
// count in a response header (e.g. X-Pages). The current page number is read
// from query parameter param of the request that produced the page; a missing
// parameter means page 1.
func PageCount(totalHeader, param string) Strategy {
	return Strategy{
		Name: "pageCount",
		Extract: func(resp *fetch.Response) (fetch.Marker, error) {
			if resp == nil {
				return fetch.Absent, nil
			}
			totalStr := resp.Header.Get(totalHeader)
			if totalStr == "" {
				return fetch.Absent, nil
			}
			total, err := strconv.Atoi(totalStr)
			if err != nil {
				return fetch.Absent, fmt.Errorf("parse %s header: %w", totalHeader, err)
			}

			current := 1
			if u, err := url.Parse(resp.Request.URL); err == nil {
				if v := u.Query().Get(param); v != "" {
					if current, err = strconv.Atoi(v); err != nil {
						return fetch.Absent, fmt.Errorf("parse %s query parameter: %w", param, err)
					}
				}
			}

			if current >= total {
				return fetch.Absent, nil
			}
			return fetch.Token(strconv.Itoa(current + 1)), nil
		},
		Inject: InjectQuery(param),
	}
}

// ExtractBodyLink reads a next link from the dotted JSON field path.
// Relative links are resolved against the URL of the request that produced
// the response, so the marker is usable on its own.
func ExtractBodyLink(path string) ExtractFunc {
	return func(resp *fetch.Response) (fetch.Marker, error) {
		if resp == nil {
			return fetch.Absent, nil
		}
		link, found, err := fetch.LookupString(resp.Body, path)
		if err != nil || !found || link == "" {
			return fetch.Absent, err
		}

		ref, err := url.Parse(link)
		if err != nil {
			return fetch.Absent, fmt.Errorf("parse next link: %w", err)
		}
		if !ref.IsAbs() && resp.Request.URL != "" {
			base, err := url.Parse(resp.Request.URL)
			if err != nil {
				return fetch.Absent, fmt.Errorf("parse request url: %w", err)
			}
			ref = base.ResolveReference(ref)
		}
		return fetch.NextLink(ref.String()), nil
	}
}

// ExtractBodyToken reads an opaque token from the dotted JSON field path.
func ExtractBodyToken(path string) ExtractFunc {
	return func(resp *fetch.Response) (fetch.Marker, error) {
		if resp == nil {
			return fetch.Absent, nil
		}
		token, _, err := fetch.LookupString(resp.Body, path)
		if err != nil {
			return fetch.Absent, err
		}
		return fetch.Token(token), nil
	}
}

// ExtractHeaderToken reads an opaque token from a response header.
func ExtractHeaderToken(name string) ExtractFunc {
	return func(resp *fetch.Response) (fetch.Marker, error) {
		if resp == nil {
			return fetch.Absent, nil
		}
		return fetch.Token(resp.Header.Get(name)), nil
	}
}

// InjectLink replaces the request URL with the marker's link.
func InjectLink(preserveQuery ...string) InjectFunc {
	return func(initial fetch.Request, m fetch.Marker) (fetch.Request, error) {
		if m.Kind != fetch.MarkerNextLink {
			return fetch.Request{}, fmt.Errorf("inject link: unexpected %s marker", m.Kind)
		}

		next, err := url.Parse(m.Value)
		if err != nil {
			return fetch.Request{}, fmt.Errorf("inject link: %w", err)
		}

		if len(preserveQuery) > 0 {
			first, err := url.Parse(initial.URL)
			if err != nil {
				return fetch.Request{}, fmt.Errorf("inject link: parse first url: %w", err)
			}
			src := first.Query()
			q := next.Query()
			for _, name := range preserveQuery {
				if v := src.Get(name); v != "" {
					q.Del(name)
					q.Set(name, v)
				}
			}
			next.RawQuery = q.Encode()
		}

		req := initial.Clone()
		req.URL = next.String()
		return req, nil
	}
}

// InjectHeader sets the token as request header name.
func InjectHeader(name string) InjectFunc {
	return func(initial fetch.Request, m fetch.Marker) (fetch.Request, error) {
		req := initial.Clone()
		req.Header.Set(name, m.Value)
		return req, nil
	}
}

// InjectQuery sets the token as query parameter name, replacing any value
// already present on the first request.
func InjectQuery(name string) InjectFunc {
	return func(initial fetch.Request, m fetch.Marker) (fetch.Request, error) {
		u, err := url.Parse(initial.URL)
		if err != nil {
			return fetch.Request{}, fmt.Errorf("inject query %q: %w", name, err)
		}
		q := u.Query()
		q.Del(name)
		q.Set(name, m.Value)
		u.RawQuery = q.Encode()

		req := initial.Clone()
		req.URL = u.String()
		return req, nil
	}
}

// InjectBodyField writes the token into the nested dotted field path of the
// JSON request body. Other fields of the body are kept.
func InjectBodyField(path string) InjectFunc {
	return func(initial fetch.Request, m fetch.Marker) (fetch.Request, error) {
		body, err := fetch.SetString(initial.Body, path, m.Value)
		if err != nil {
			return fetch.Request{}, fmt.Errorf("inject body field: %w", err)
		}
		req := initial.Clone()
		req.Body = body
		return req, nil
	}
}
