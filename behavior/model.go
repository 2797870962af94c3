package behavior

import (
	"math"
	"slices"

	"github.com/samber/lo"
)

// Update folds a finalized session into the aggregate and recomputes tags.
func (b *TrackBehavior) Update(s PlaySession) {
	b.TotalPlays++
	b.TotalPlayTime += s.PlayDuration
	started := s.StartedAt
	b.LastPlayed = &started

	if s.Skipped() {
		b.TotalSkips++
		b.SkipPositions = append(b.SkipPositions, skipPosition(s))
	}

	if b.TotalPlays == 1 {
		b.CompletionRate = s.CompletionPercentage
	} else {
		b.CompletionRate = b.CompletionRate*0.7 + s.CompletionPercentage*0.3
	}

	b.Tags = computeTags(b)
}

func skipPosition(s PlaySession) int {
	if s.TrackDuration == 0 {
		return 0
	}
	return int(math.Round(float64(s.PlayDuration) / float64(s.TrackDuration) * 100))
}

// SkipRatio is skips over plays, 0 when never played.
func (b *TrackBehavior) SkipRatio() float64 {
	if b.TotalPlays == 0 {
		return 0
	}
	return float64(b.TotalSkips) / float64(b.TotalPlays)
}

// HasTag reports whether tag is currently derived for the track.
func (b *TrackBehavior) HasTag(tag string) bool {
	return slices.Contains(b.Tags, tag)
}

// computeTags derives the tag set from scratch. Every rule is evaluated on its own.
func computeTags(b *TrackBehavior) []string {
	tags := []string{}

	if b.CompletionRate > 90 {
		tags = append(tags, TagFavorite)
	}
	if b.CompletionRate < 30 {
		tags = append(tags, TagOftenSkipped)
	}

	if len(b.SkipPositions) > 3 {
		avg := float64(lo.Sum(b.SkipPositions)) / float64(len(b.SkipPositions))
		if avg < 25 {
			tags = append(tags, TagSkipEarly)
		}
		if avg > 75 {
			tags = append(tags, TagSkipLate)
		}
	}

	if b.TotalPlays > 10 {
		tags = append(tags, TagFrequentlyPlayed)
	}

	if b.TotalPlays > 0 {
		ratio := b.SkipRatio()
		if ratio > 0.7 {
			tags = append(tags, TagHighSkipRate)
		}
		if ratio < 0.2 {
			tags = append(tags, TagLowSkipRate)
		}
	}

	return tags
}
