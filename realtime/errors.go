package realtime

import (
	"errors"
	"fmt"
	"strings"
)

// ErrAlreadyConnected is returned by Connect while a connection is open.
var ErrAlreadyConnected = errors.New("realtime: already connected")

// ErrNotConnected is returned by Send unless the connection is open.
var ErrNotConnected = errors.New("realtime: not connected")

// ParseError reports a malformed inbound frame. It is surfaced through the
// OnError handler and does not close the connection.
type ParseError struct {
	Data []byte
	Err  error
}

func (e *ParseError) Error() string {
	return fmt.Sprintf("realtime: parse inbound frame: %v", e.Err)
}

func (e *ParseError) Unwrap() error { return e.Err }

// authErrorHints are substrings the provider has been observed to use in
// error text for expired or rejected credentials.
var authErrorHints = []string{
	"expired",
	"invalid_api_key",
	"invalid token",
	"authentication",
	"unauthorized",
	"401",
}

// LooksLikeAuthError reports whether an error message resembles an
// expired-credential failure. Detection is a best-effort substring scan over
// provider error text; it cannot reliably distinguish authentication
// failures from other connection failures.
func LooksLikeAuthError(message string) bool {
	message = strings.ToLower(message)
	for _, hint := range authErrorHints {
		if strings.Contains(message, hint) {
			return true
		}
	}
	return false
}
