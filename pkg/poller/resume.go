package poller

import (
	"encoding/base64"
	"encoding/json"
	"fmt"
	"net/http"
	"net/url"

	"github.com/Sternrassler/clientrt/pkg/fetch"
)

const resumeTokenVersion = 1

// resumeState is the serialized form of a Poller's position. Request headers
// are not included.
type resumeState struct {
	Version int    `json:"v"`
	Method  string `json:"method"`
	URL     string `json:"url"`
}

// ResumeToken returns an opaque string from which Resume can rebuild an
// equivalent Poller, possibly in another process. It fails with
// ErrTerminalState once the operation has finished.
func (p *Poller[T]) ResumeToken() (string, error) {
	if p.state.IsTerminal() {
		return "", ErrTerminalState
	}

	raw, err := json.Marshal(resumeState{
		Version: resumeTokenVersion,
		Method:  p.next.Method,
		URL:     p.next.URL,
	})
	if err != nil {
		return "", fmt.Errorf("encode resume token: %w", err)
	}
	return base64.RawURLEncoding.EncodeToString(raw), nil
}

// Resume rebuilds a Poller from a token produced by ResumeToken. The first
// status check is issued without waiting.
func Resume[T any](token string, op Operation[T], opts Options) (*Poller[T], error) {
	op, err := op.withDefaults()
	if err != nil {
		return nil, err
	}

	state, err := decodeResumeToken(token)
	if err != nil {
		return nil, err
	}

	p := newPoller(op, opts)
	p.next = fetch.NewRequest(state.Method, state.URL, nil)

	p.logger.Debug().
		Str("monitor", state.URL).
		Msg("Operation resumed")

	return p, nil
}

func decodeResumeToken(token string) (resumeState, error) {
	var state resumeState

	raw, err := base64.RawURLEncoding.DecodeString(token)
	if err != nil {
		return state, fmt.Errorf("%w: %v", ErrInvalidResumeToken, err)
	}
	if err := json.Unmarshal(raw, &state); err != nil {
		return state, fmt.Errorf("%w: %v", ErrInvalidResumeToken, err)
	}
	if state.Version != resumeTokenVersion {
		return state, fmt.Errorf("%w: unsupported version %d", ErrInvalidResumeToken, state.Version)
	}
	if state.Method == "" {
		state.Method = http.MethodGet
	}
	u, err := url.Parse(state.URL)
	if err != nil || !u.IsAbs() {
		return state, fmt.Errorf("%w: monitor url %q is not absolute", ErrInvalidResumeToken, state.URL)
	}
	return state, nil
}
