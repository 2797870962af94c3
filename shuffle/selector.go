// Package shuffle picks tracks at random in proportion to their behavior
// weights while keeping recently played tracks out of the way.
package shuffle

import (
	"math/rand/v2"
	"slices"
	"sync"
	"time"

	"cryogon/panpipe/behavior"

	"github.com/google/uuid"
	"github.com/samber/lo"
)

// Behaviors maps a track id to its aggregate. Tracks missing from the map
// are unknown and get the neutral weight.
type Behaviors map[uuid.UUID]*behavior.TrackBehavior

// Index builds a Behaviors map from a list such as the one returned by
// Store.GetAllTrackBehaviors.
func Index(list []*behavior.TrackBehavior) Behaviors {
	return lo.KeyBy(list, func(b *behavior.TrackBehavior) uuid.UUID { return b.TrackID })
}

// RecentBufferSize is how many recent picks are kept out of the pool when
// shuffling a library of n tracks.
func RecentBufferSize(n int) int {
	return max(n/4, 5)
}

// Selector is safe for concurrent use.
type Selector struct {
	calc behavior.WeightCalculator
	now  func() time.Time

	mu  sync.Mutex
	rng *rand.Rand
}

func NewSelector(calc behavior.WeightCalculator) *Selector {
	return NewSeededSelector(calc, rand.Uint64())
}

// NewSeededSelector returns a selector whose picks are reproducible for a
// given seed and set of weights.
func NewSeededSelector(calc behavior.WeightCalculator, seed uint64) *Selector {
	return &Selector{
		calc: calc,
		rng:  rand.New(rand.NewPCG(seed, seed^0x9e3779b97f4a7c15)),
		now:  time.Now,
	}
}

func (s *Selector) weight(id uuid.UUID, behaviors Behaviors, now time.Time) float64 {
	return s.calc.Weight(behaviors[id], now)
}

// SelectNext draws one candidate with probability proportional to its
// weight. Recently played ids are skipped unless that leaves nothing, in
// which case the pick is uniform over all candidates. ok is false only when
// there are no candidates.
func (s *Selector) SelectNext(candidates []uuid.UUID, behaviors Behaviors, recent []uuid.UUID) (uuid.UUID, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.selectNext(candidates, behaviors, recent)
}

func (s *Selector) selectNext(candidates []uuid.UUID, behaviors Behaviors, recent []uuid.UUID) (uuid.UUID, bool) {
	if len(candidates) == 0 {
		return uuid.Nil, false
	}

	pool := lo.Without(candidates, recent...)
	if len(pool) == 0 {
		return candidates[s.rng.IntN(len(candidates))], true
	}

	now := s.now()
	weights := lo.Map(pool, func(id uuid.UUID, _ int) float64 {
		return s.weight(id, behaviors, now)
	})
	total := lo.Sum(weights)
	if !(total > 0) {
		return pool[s.rng.IntN(len(pool))], true
	}

	remaining := s.rng.Float64() * total
	for i, w := range weights {
		remaining -= w
		if remaining <= 0 {
			return pool[i], true
		}
	}
	return pool[len(pool)-1], true
}

// GeneratePlaylist builds a playlist of size picks from tracks. Each pick
// leaves the pool until the pool is empty; the pool is then refilled with
// every track not in the recent buffer, or every track if that is nothing.
func (s *Selector) GeneratePlaylist(tracks []uuid.UUID, behaviors Behaviors, size int) []uuid.UUID {
	s.mu.Lock()
	defer s.mu.Unlock()

	tracks = lo.Uniq(tracks)
	bufferSize := RecentBufferSize(len(tracks))

	playlist := make([]uuid.UUID, 0, max(size, 0))
	available := slices.Clone(tracks)
	recent := make([]uuid.UUID, 0, bufferSize+1)

	for len(playlist) < size {
		if len(available) == 0 {
			available = lo.Without(tracks, recent...)
			if len(available) == 0 {
				available = slices.Clone(tracks)
			}
		}

		next, ok := s.selectNext(available, behaviors, recent)
		if !ok {
			break
		}

		playlist = append(playlist, next)
		available = lo.Without(available, next)
		recent = append(recent, next)
		if len(recent) > bufferSize {
			recent = recent[1:]
		}
	}

	return playlist
}

// Ranked is a track with its current weight.
type Ranked struct {
	TrackID  uuid.UUID               `json:"track_id"`
	Weight   float64                 `json:"weight"`
	Behavior *behavior.TrackBehavior `json:"behavior,omitempty"`
}

// RankByWeight scores tracks and sorts them heaviest first. Equal weights
// keep the input order.
func (s *Selector) RankByWeight(tracks []uuid.UUID, behaviors Behaviors) []Ranked {
	now := s.now()
	ranked := lo.Map(tracks, func(id uuid.UUID, _ int) Ranked {
		return Ranked{TrackID: id, Weight: s.weight(id, behaviors, now), Behavior: behaviors[id]}
	})

	slices.SortStableFunc(ranked, func(a, b Ranked) int {
		switch {
		case a.Weight > b.Weight:
			return -1
		case a.Weight < b.Weight:
			return 1
		default:
			return 0
		}
	})
	return ranked
}

// RecalculateAll refreshes the cached weight on every aggregate.
func (s *Selector) RecalculateAll(behaviors Behaviors) {
	now := s.now()
	for _, b := range behaviors {
		b.Weight = s.calc.Weight(b, now)
	}
}
