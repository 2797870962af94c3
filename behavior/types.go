// Package behavior turns listening sessions into per-track aggregates and
// scores them for weighted shuffle.
package behavior

import (
	"errors"
	"time"

	"github.com/google/uuid"
)

// DefaultTrackDuration is assumed, in seconds, when a track's length is unknown.
const DefaultTrackDuration uint64 = 180

// ErrTrackNotFound is returned by lookups for a track with no behavior record.
var ErrTrackNotFound = errors.New("track behavior not found")

// SkipReason says why a session ended before the track completed.
type SkipReason string

const (
	SkipUser          SkipReason = "user_skip"
	SkipNextTrack     SkipReason = "next_track"
	SkipPreviousTrack SkipReason = "previous_track"
	SkipPlaylistEnd   SkipReason = "playlist_end"
	SkipError         SkipReason = "error"
)

// ParseSkipReason validates a stored reason. Unknown values are not an error
// for callers reading old rows; they get ok=false and treat it as absent.
func ParseSkipReason(s string) (SkipReason, bool) {
	switch r := SkipReason(s); r {
	case SkipUser, SkipNextTrack, SkipPreviousTrack, SkipPlaylistEnd, SkipError:
		return r, true
	default:
		return "", false
	}
}

// Behavior tags.
const (
	TagFavorite         = "favorite"
	TagOftenSkipped     = "often_skipped"
	TagSkipEarly        = "skip_early"
	TagSkipLate         = "skip_late"
	TagFrequentlyPlayed = "frequently_played"
	TagHighSkipRate     = "high_skip_rate"
	TagLowSkipRate      = "low_skip_rate"
)

// PlaySession is one continuous attempt to listen to a track.
type PlaySession struct {
	ID                   uuid.UUID   `json:"session_id"`
	TrackID              uuid.UUID   `json:"track_id"`
	StartedAt            time.Time   `json:"started_at"`
	EndedAt              *time.Time  `json:"ended_at,omitempty"`
	PlayDuration         uint64      `json:"play_duration"`  // seconds heard
	TrackDuration        uint64      `json:"track_duration"` // seconds
	SkipReason           *SkipReason `json:"skip_reason,omitempty"`
	CompletionPercentage float64     `json:"completion_percentage"`
}

// Skipped reports whether the session ended with a skip reason.
func (s PlaySession) Skipped() bool {
	return s.SkipReason != nil
}

// TrackBehavior aggregates every committed session of one track.
// Weight is the last computed shuffle weight, kept for display only.
type TrackBehavior struct {
	TrackID        uuid.UUID  `json:"track_id"`
	TotalPlays     uint64     `json:"total_plays"`
	TotalSkips     uint64     `json:"total_skips"`
	TotalPlayTime  uint64     `json:"total_play_time"`
	LastPlayed     *time.Time `json:"last_played,omitempty"`
	SkipPositions  []int      `json:"skip_positions"`
	CompletionRate float64    `json:"completion_rate"`
	Weight         float64    `json:"weight"`
	Tags           []string   `json:"tags"`
}

// NewTrackBehavior returns an empty aggregate with a neutral weight.
func NewTrackBehavior(trackID uuid.UUID) *TrackBehavior {
	return &TrackBehavior{
		TrackID:       trackID,
		SkipPositions: []int{},
		Weight:        1.0,
		Tags:          []string{},
	}
}
