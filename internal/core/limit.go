package core

import (
	"errors"
	"fmt"
)

var (
	// ErrUnknownIdentity is returned when a caller token does not map to any identity.
	ErrUnknownIdentity = errors.New("unknown identity")

	// ErrLimitNotFound is returned by limit sources that have no SLA for an identity.
	ErrLimitNotFound = errors.New("limit not found")

	// ErrInvalidLimit is returned when a limit source yields a non-positive RPS.
	ErrInvalidLimit = errors.New("invalid limit")
)

// Limit is the SLA provisioned for a single identity.
type Limit struct {
	Identity string `json:"identity"`
	RPS      int    `json:"rps"`
}

// Validate reports whether the limit can back a window counter.
func (l Limit) Validate() error {
	if l.RPS <= 0 {
		return fmt.Errorf("%w: identity %q has rps %d", ErrInvalidLimit, l.Identity, l.RPS)
	}
	return nil
}

// UnknownTokenError wraps ErrUnknownIdentity with the offending token.
type UnknownTokenError struct {
	Token string
}

func (e *UnknownTokenError) Error() string {
	return fmt.Sprintf("token %q: %s", maskToken(e.Token), ErrUnknownIdentity.Error())
}

func (e *UnknownTokenError) Unwrap() error {
	return ErrUnknownIdentity
}

// maskToken keeps bearer tokens out of logs and error bodies.
func maskToken(token string) string {
	if len(token) <= 4 {
		return "****"
	}
	return token[:2] + "****" + token[len(token)-2:]
}
