package fetch

import (
	"bytes"
	"encoding/json"
	"fmt"
	"strings"
)

// LookupString drills into a JSON document by a dotted path and returns the
// string found there. A missing field or a JSON null reports found=false.
func LookupString(body []byte, path string) (value string, found bool, err error) {
	if len(bytes.TrimSpace(body)) == 0 {
		return "", false, nil
	}

	var doc any
	if err := json.Unmarshal(body, &doc); err != nil {
		return "", false, fmt.Errorf("lookup %q: %w", path, err)
	}

	cur := doc
	for _, key := range strings.Split(path, ".") {
		m, ok := cur.(map[string]any)
		if !ok {
			return "", false, fmt.Errorf("lookup %q: %q is not an object", path, key)
		}
		cur, ok = m[key]
		if !ok {
			return "", false, nil
		}
	}

	switch v := cur.(type) {
	case nil:
		return "", false, nil
	case string:
		return v, true, nil
	default:
		return "", false, fmt.Errorf("lookup %q: field is %T, not a string", path, cur)
	}
}

// SetString writes value at the dotted path of a JSON object document,
// creating intermediate objects as needed. Sibling fields are preserved.
// An empty body is treated as an empty object.
func SetString(body []byte, path, value string) ([]byte, error) {
	doc := map[string]any{}
	if len(bytes.TrimSpace(body)) > 0 {
		dec := json.NewDecoder(bytes.NewReader(body))
		dec.UseNumber()
		if err := dec.Decode(&doc); err != nil {
			return nil, fmt.Errorf("set %q: %w", path, err)
		}
	}

	keys := strings.Split(path, ".")
	cur := doc
	for _, key := range keys[:len(keys)-1] {
		next, ok := cur[key]
		if !ok || next == nil {
			child := map[string]any{}
			cur[key] = child
			cur = child
			continue
		}
		child, ok := next.(map[string]any)
		if !ok {
			return nil, fmt.Errorf("set %q: %q is not an object", path, key)
		}
		cur = child
	}
	cur[keys[len(keys)-1]] = value

	out, err := json.Marshal(doc)
	if err != nil {
		return nil, fmt.Errorf("set %q: %w", path, err)
	}
	return out, nil
}

// LookupRaw returns the raw JSON value at the dotted path. An empty path
// returns the whole document.
func LookupRaw(body []byte, path string) (json.RawMessage, bool, error) {
	if path == "" {
		return json.RawMessage(body), len(bytes.TrimSpace(body)) > 0, nil
	}
	if len(bytes.TrimSpace(body)) == 0 {
		return nil, false, nil
	}

	cur := json.RawMessage(body)
	for _, key := range strings.Split(path, ".") {
		var m map[string]json.RawMessage
		if err := json.Unmarshal(cur, &m); err != nil {
			return nil, false, fmt.Errorf("lookup %q: %q is not an object: %w", path, key, err)
		}
		next, ok := m[key]
		if !ok {
			return nil, false, nil
		}
		cur = next
	}

	if bytes.Equal(bytes.TrimSpace(cur), []byte("null")) {
		return nil, false, nil
	}
	return cur, true, nil
}
