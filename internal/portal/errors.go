package portal

import (
	"errors"
	"fmt"
)

var (
	// ErrRejected marks a logical failure reported by the portal: wrong code,
	// expired step, bad format. It is never retried.
	ErrRejected = errors.New("portal: rejected")
	// ErrUnavailable marks a transient failure that outlived the retries.
	ErrUnavailable = errors.New("portal: unavailable")
	// ErrLoginTimeout is returned when an interactive login is not finished in time.
	ErrLoginTimeout = errors.New("portal: login timed out")
)

// RejectedError carries the portal's reason for a logical failure.
type RejectedError struct {
	Op     string
	Status int
	Reason string
}

func (e *RejectedError) Error() string {
	if e.Reason == "" {
		return fmt.Sprintf("portal: %s rejected (status %d)", e.Op, e.Status)
	}
	return fmt.Sprintf("portal: %s rejected: %s", e.Op, e.Reason)
}

// Is lets errors.Is(err, ErrRejected) match.
func (e *RejectedError) Is(target error) bool { return target == ErrRejected }

// Code is picked up by handler logging as err_code.
func (e *RejectedError) Code() string { return "portal_rejected" }

// Reason extracts the portal's reason from err, if it carries one.
func Reason(err error) string {
	var re *RejectedError
	if errors.As(err, &re) {
		return re.Reason
	}
	return ""
}
