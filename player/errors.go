package player

import (
	"errors"
	"fmt"
)

var (
	ErrOpenFailed        = errors.New("failed to open audio file")
	ErrDecodeFailed      = errors.New("failed to decode audio file")
	ErrUnsupportedFormat = errors.New("unsupported audio format")
	ErrNoOutput          = errors.New("audio output unavailable")
)

// PlaybackError describes a failure to start a track. It unwraps to one of
// the sentinel errors above.
type PlaybackError struct {
	Op   string
	Path string
	Err  error
}

func (e *PlaybackError) Error() string {
	return fmt.Sprintf("%s %s: %v", e.Op, e.Path, e.Err)
}

func (e *PlaybackError) Unwrap() error {
	return e.Err
}
