package sem

import (
	"context"
	"errors"
)

var (
	ErrMalformedFrame     = errors.New("malformed frame")
	ErrChecksumMismatch   = errors.New("checksum mismatch")
	ErrAuthRejected       = errors.New("authentication rejected")
	ErrAuthTimeout        = errors.New("authentication timed out")
	ErrCommandTimeout     = errors.New("command timed out")
	ErrUnknownCommand     = errors.New("unknown command")
	ErrInvalidValue       = errors.New("invalid value field")
	ErrCycleInProgress    = errors.New("poll cycle in progress")
	ErrDriverStarted      = errors.New("driver already started")
	ErrInvalidAddress     = errors.New("invalid address")
	ErrInvalidPassword    = errors.New("invalid password")
	ErrDuplicateCommand   = errors.New("duplicate command")
	ErrUnsupportedCommand = errors.New("unsupported command")
	ErrLinkClosed         = errors.New("link not open")
)

// IsFrameError reports whether err comes from a corrupt or unparseable reply.
func IsFrameError(err error) bool {
	return errors.Is(err, ErrMalformedFrame) || errors.Is(err, ErrChecksumMismatch) || errors.Is(err, ErrInvalidValue)
}

// IsLinkError reports whether err is a transport failure, as opposed to a
// silent meter, a corrupt reply or an abandoned cycle.
func IsLinkError(err error) bool {
	if err == nil {
		return false
	}
	if errors.Is(err, ErrCommandTimeout) || IsFrameError(err) {
		return false
	}
	if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
		return false
	}
	return true
}
