package fetch

import (
	"encoding/json"
	"testing"
)

func TestLookupString(t *testing.T) {
	tests := []struct {
		name      string
		body      string
		path      string
		want      string
		wantFound bool
		expectErr bool
	}{
		{"top level", `{"nextLink":"http://x/2"}`, "nextLink", "http://x/2", true, false},
		{"nested", `{"meta":{"next":{"token":"t2"}}}`, "meta.next.token", "t2", true, false},
		{"missing", `{"value":[]}`, "nextLink", "", false, false},
		{"null", `{"nextLink":null}`, "nextLink", "", false, false},
		{"empty body", ``, "nextLink", "", false, false},
		{"not a string", `{"nextLink":5}`, "nextLink", "", false, true},
		{"not an object", `{"meta":"x"}`, "meta.next", "", false, true},
		{"invalid json", `{`, "a", "", false, true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, found, err := LookupString([]byte(tt.body), tt.path)
			if tt.expectErr {
				if err == nil {
					t.Fatal("expected error")
				}
				return
			}
			if err != nil {
				t.Fatalf("unexpected error: %v", err)
			}
			if got != tt.want || found != tt.wantFound {
				t.Errorf("LookupString() = (%q, %v), want (%q, %v)", got, found, tt.want, tt.wantFound)
			}
		})
	}
}

func TestSetString(t *testing.T) {
	out, err := SetString([]byte(`{"filter":"x","paging":{"size":10}}`), "paging.token", "abc")
	if err != nil {
		t.Fatalf("SetString() error = %v", err)
	}

	var doc struct {
		Filter string `json:"filter"`
		Paging struct {
			Size  int    `json:"size"`
			Token string `json:"token"`
		} `json:"paging"`
	}
	if err := json.Unmarshal(out, &doc); err != nil {
		t.Fatalf("unmarshal: %v", err)
	}
	if doc.Filter != "x" || doc.Paging.Size != 10 || doc.Paging.Token != "abc" {
		t.Errorf("unexpected document: %s", out)
	}

	out, err = SetString(nil, "a.b", "v")
	if err != nil {
		t.Fatalf("SetString(nil) error = %v", err)
	}
	if string(out) != `{"a":{"b":"v"}}` {
		t.Errorf("SetString(nil) = %s", out)
	}

	if _, err := SetString([]byte(`{"a":"scalar"}`), "a.b", "v"); err == nil {
		t.Error("expected error when an intermediate field is not an object")
	}
}

func TestLookupRaw(t *testing.T) {
	body := []byte(`{"data":{"items":[1,2,3]},"empty":null}`)

	raw, found, err := LookupRaw(body, "data.items")
	if err != nil || !found {
		t.Fatalf("LookupRaw() = (%s, %v, %v)", raw, found, err)
	}
	if string(raw) != "[1,2,3]" {
		t.Errorf("LookupRaw() = %s, want [1,2,3]", raw)
	}

	if _, found, _ := LookupRaw(body, "empty"); found {
		t.Error("null field should not be found")
	}
	if _, found, _ := LookupRaw(body, "missing"); found {
		t.Error("missing field should not be found")
	}

	whole, found, err := LookupRaw(body, "")
	if err != nil || !found || string(whole) != string(body) {
		t.Errorf("empty path should return whole document")
	}
}
