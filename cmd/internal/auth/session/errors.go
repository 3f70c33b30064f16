package session

import "errors"

var (
	// ErrConfig is returned for invalid configuration.
	ErrConfig = errors.New("invalid config")

	// ErrSeriesExhausted is returned when no unused series was found within
	// Config.MaxSeriesAttempts draws. It points at a broken random source.
	ErrSeriesExhausted = errors.New("series attempts exhausted")
)
