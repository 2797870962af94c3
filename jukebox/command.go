package jukebox

import (
	"errors"

	"github.com/google/uuid"
)

var (
	ErrUnknownTrack  = errors.New("track is not in the library")
	ErrEmptyLibrary  = errors.New("library is empty")
	ErrNotRunning    = errors.New("jukebox is not running")
	ErrInvalidVolume = errors.New("volume is required")
)

type CommandType string

const (
	CmdPlay    CommandType = "play"
	CmdPause   CommandType = "pause"
	CmdResume  CommandType = "resume"
	CmdToggle  CommandType = "toggle"
	CmdStop    CommandType = "stop"
	CmdNext    CommandType = "next"
	CmdPrev    CommandType = "prev"
	CmdSkip    CommandType = "skip"
	CmdVolume  CommandType = "volume"
	CmdShuffle CommandType = "shuffle"
)

// Command is a request from a UI. TrackID is optional for play; Reason only
// applies to skip; Volume to volume; Size to shuffle.
type Command struct {
	Type    CommandType `json:"type"`
	TrackID uuid.UUID   `json:"track_id,omitempty"`
	Reason  string      `json:"reason,omitempty"`
	Volume  *float64    `json:"volume,omitempty"`
	Size    int         `json:"size,omitempty"`
}

type request struct {
	cmd   Command
	reply chan error
}
