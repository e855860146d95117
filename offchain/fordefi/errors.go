package fordefi

import (
	"encoding/json"
	"errors"
	"fmt"
	"strings"
)

var (
	// ErrAuth covers credential and permission failures; never retried.
	ErrAuth = errors.New("fordefi auth error")
	// ErrProtocol marks responses the client cannot interpret.
	ErrProtocol = errors.New("fordefi protocol error")
	// ErrPollTimeout is returned when a transaction does not reach a terminal
	// state within the caller's budget.
	ErrPollTimeout = errors.New("fordefi poll timeout")

	ErrInvalidSigningKey = errors.New("invalid api signer key")
)

// APIError is a non-auth HTTP failure from the API.
type APIError struct {
	StatusCode int
	Message    string
}

func (e *APIError) Error() string {
	return fmt.Sprintf("fordefi api error: http %d: %s", e.StatusCode, e.Message)
}

// TerminalStateError reports a transaction Fordefi itself declared dead.
type TerminalStateError struct {
	ID    string
	State State
}

func (e *TerminalStateError) Error() string {
	return fmt.Sprintf("fordefi transaction %s terminal state %q", e.ID, e.State)
}

func apiErrorMessage(raw []byte) string {
	var body struct {
		Detail  string `json:"detail"`
		Message string `json:"message"`
		Error   struct {
			Message string `json:"message"`
		} `json:"error"`
	}
	if err := json.Unmarshal(raw, &body); err == nil {
		for _, m := range []string{body.Detail, body.Message, body.Error.Message} {
			if strings.TrimSpace(m) != "" {
				return strings.TrimSpace(m)
			}
		}
	}
	s := strings.TrimSpace(string(raw))
	if len(s) > 256 {
		s = s[:256]
	}
	return s
}
