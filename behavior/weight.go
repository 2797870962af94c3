package behavior

import (
	"math"
	"time"
)

// Weight bounds and the neutral weight of a track with no history.
const (
	MinWeight          = 0.05
	MaxWeight          = 5.0
	UnknownTrackWeight = 1.2
)

var tagMultipliers = map[string]float64{
	TagFavorite:         1.8,
	TagOftenSkipped:     0.2,
	TagSkipEarly:        0.4,
	TagFrequentlyPlayed: 0.9,
	TagHighSkipRate:     0.3,
	TagLowSkipRate:      1.2,
}

// WeightCalculator scores a behavior snapshot for weighted shuffle.
type WeightCalculator struct {
	DecayDays uint64
}

// NewWeightCalculator returns a calculator boosting tracks unplayed for longer
// than decayDays.
func NewWeightCalculator(decayDays uint64) WeightCalculator {
	return WeightCalculator{DecayDays: decayDays}
}

// DaysSince returns whole days between last and now; nil when never played.
// A timestamp in the future counts as zero days.
func DaysSince(last *time.Time, now time.Time) *uint64 {
	if last == nil {
		return nil
	}
	d := now.Sub(*last)
	if d < 0 {
		d = 0
	}
	days := uint64(d / (24 * time.Hour))
	return &days
}

// Weight computes the bounded shuffle weight of b at now. A nil behavior is an
// unknown track.
func (c WeightCalculator) Weight(b *TrackBehavior, now time.Time) float64 {
	if b == nil {
		return UnknownTrackWeight
	}

	weight := 1.0

	decay := c.DecayDays
	if decay == 0 {
		decay = 1
	}
	if days := DaysSince(b.LastPlayed, now); days == nil {
		weight *= 1.3
	} else if *days > decay {
		boost := min(float64(*days)/float64(decay), 3.0)
		weight *= 1 + boost*0.2
	} else if *days < 1 {
		weight *= 0.8
	}

	if b.CompletionRate > 80 {
		weight *= 1.5
	} else if b.CompletionRate < 30 {
		weight *= 0.3
	}

	if b.TotalPlays > 0 {
		weight *= max(1-b.SkipRatio()*0.6, 0.2)
	}

	for _, tag := range b.Tags {
		if m, ok := tagMultipliers[tag]; ok {
			weight *= m
		}
	}

	if math.IsNaN(weight) {
		return MinWeight
	}
	return min(max(weight, MinWeight), MaxWeight)
}
