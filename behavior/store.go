package behavior

import (
	"context"

	"github.com/google/uuid"
)

// Store is the persistence contract the tracker depends on.
//
// GetTrackBehavior returns (nil, nil) when the track has no record.
// GetAllTrackBehaviors is ordered by weight, highest first.
// GetTrackDuration returns ok=false when the length is unknown.
type Store interface {
	SaveTrackBehavior(ctx context.Context, b *TrackBehavior) error
	GetTrackBehavior(ctx context.Context, trackID uuid.UUID) (*TrackBehavior, error)
	GetAllTrackBehaviors(ctx context.Context) ([]*TrackBehavior, error)
	SaveSession(ctx context.Context, s *PlaySession) error
	GetTrackDuration(ctx context.Context, trackID uuid.UUID) (seconds uint64, ok bool, err error)
}
