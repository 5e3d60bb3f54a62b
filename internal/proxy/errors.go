package proxy

import (
	"errors"
	"fmt"
)

var (
	// ErrEmptyPrefix is returned when a rule is registered without a path prefix.
	ErrEmptyPrefix = errors.New("proxy prefix must not be empty")

	// ErrTableSealed is returned by Register once the table has been sealed.
	ErrTableSealed = errors.New("routing table is sealed")
)

// InvalidTargetError is returned when a rule target cannot be used as an
// absolute forwarding URI.
type InvalidTargetError struct {
	Prefix string
	Target string
	Reason string
	Err    error
}

func (e *InvalidTargetError) Error() string {
	msg := e.Reason
	if e.Err != nil {
		msg = e.Err.Error()
	}
	if e.Prefix != "" {
		return fmt.Sprintf("proxy %q: invalid target %q: %s", e.Prefix, e.Target, msg)
	}
	return fmt.Sprintf("invalid target %q: %s", e.Target, msg)
}

func (e *InvalidTargetError) Unwrap() error {
	return e.Err
}

// DuplicatePrefixError is returned when the same prefix is registered twice.
type DuplicatePrefixError struct {
	Prefix string
}

func (e *DuplicatePrefixError) Error() string {
	return fmt.Sprintf("proxy prefix %q is already registered", e.Prefix)
}
