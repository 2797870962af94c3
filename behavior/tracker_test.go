package behavior

import (
	"context"
	"errors"
	"slices"
	"sort"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// memStore is an in-memory Store with switchable failures.
type memStore struct {
	behaviors map[uuid.UUID]*TrackBehavior
	sessions  []PlaySession
	durations map[uuid.UUID]uint64

	failSaveSession  error
	failSaveBehavior error
	failDuration     error
}

func newMemStore() *memStore {
	return &memStore{
		behaviors: map[uuid.UUID]*TrackBehavior{},
		durations: map[uuid.UUID]uint64{},
	}
}

func (m *memStore) SaveTrackBehavior(_ context.Context, b *TrackBehavior) error {
	if m.failSaveBehavior != nil {
		return m.failSaveBehavior
	}
	m.behaviors[b.TrackID] = cloneBehavior(b)
	return nil
}

// cloneBehavior copies b deeply enough that neither side can see the
// other's appends.
func cloneBehavior(b *TrackBehavior) *TrackBehavior {
	cp := *b
	cp.SkipPositions = slices.Clone(b.SkipPositions)
	cp.Tags = slices.Clone(b.Tags)
	if b.LastPlayed != nil {
		at := *b.LastPlayed
		cp.LastPlayed = &at
	}
	return &cp
}

func (m *memStore) GetTrackBehavior(_ context.Context, id uuid.UUID) (*TrackBehavior, error) {
	b, ok := m.behaviors[id]
	if !ok {
		return nil, nil
	}
	return cloneBehavior(b), nil
}

func (m *memStore) GetAllTrackBehaviors(context.Context) ([]*TrackBehavior, error) {
	out := make([]*TrackBehavior, 0, len(m.behaviors))
	for _, b := range m.behaviors {
		out = append(out, cloneBehavior(b))
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Weight > out[j].Weight })
	return out, nil
}

func (m *memStore) SaveSession(_ context.Context, s *PlaySession) error {
	if m.failSaveSession != nil {
		return m.failSaveSession
	}
	m.sessions = append(m.sessions, *s)
	return nil
}

func (m *memStore) GetTrackDuration(_ context.Context, id uuid.UUID) (uint64, bool, error) {
	if m.failDuration != nil {
		return 0, false, m.failDuration
	}
	d, ok := m.durations[id]
	return d, ok, nil
}

var t0 = time.Date(2026, 5, 10, 20, 0, 0, 0, time.UTC)

func at(sec int) time.Time { return t0.Add(time.Duration(sec) * time.Second) }

func newTestTracker(store Store, minPlay uint64) *Tracker {
	tr := NewTracker(store, NewWeightCalculator(30), minPlay)
	tr.now = func() time.Time { return at(3600) }
	return tr
}

func TestMemStoreDoesNotShareSlices(t *testing.T) {
	ctx := context.Background()
	store := newMemStore()
	id := uuid.New()

	b := NewTrackBehavior(id)
	b.SkipPositions = make([]int, 1, 8)
	b.Tags = []string{"calm"}
	require.NoError(t, store.SaveTrackBehavior(ctx, b))

	b.SkipPositions = append(b.SkipPositions, 50)
	b.SkipPositions[0] = 99
	b.Tags[0] = "loud"

	got, err := store.GetTrackBehavior(ctx, id)
	require.NoError(t, err)
	assert.Equal(t, []int{0}, got.SkipPositions)
	assert.Equal(t, []string{"calm"}, got.Tags)

	got.SkipPositions = append(got.SkipPositions, 10)
	again, err := store.GetTrackBehavior(ctx, id)
	require.NoError(t, err)
	assert.Equal(t, []int{0}, again.SkipPositions)
}

func TestTracker_StartOpensSessionWithStoredDuration(t *testing.T) {
	store := newMemStore()
	id := uuid.New()
	store.durations[id] = 240
	tr := newTestTracker(store, 10)

	require.NoError(t, tr.HandleEvent(context.Background(), Started(id, at(0))))

	s, ok := tr.Active()
	require.True(t, ok)
	assert.Equal(t, id, s.TrackID)
	assert.Equal(t, uint64(240), s.TrackDuration)
	assert.Equal(t, at(0), s.StartedAt)
	assert.Zero(t, s.PlayDuration)
	assert.NotEqual(t, uuid.Nil, s.ID)
}

func TestTracker_StartFallsBackToDefaultDuration(t *testing.T) {
	tr := newTestTracker(newMemStore(), 10)
	require.NoError(t, tr.HandleEvent(context.Background(), Started(uuid.New(), at(0))))

	s, _ := tr.Active()
	assert.Equal(t, DefaultTrackDuration, s.TrackDuration)
}

func TestTracker_CompletedCommitsFullPlay(t *testing.T) {
	ctx := context.Background()
	store := newMemStore()
	id := uuid.New()
	store.durations[id] = 200
	tr := newTestTracker(store, 10)

	var committed []PlaySession
	tr.OnCommit(func(s PlaySession, _ *TrackBehavior) { committed = append(committed, s) })

	require.NoError(t, tr.HandleEvent(ctx, Started(id, at(0))))
	require.NoError(t, tr.HandleEvent(ctx, Completed(id, at(200))))

	_, active := tr.Active()
	assert.False(t, active)

	require.Len(t, store.sessions, 1)
	s := store.sessions[0]
	assert.Equal(t, uint64(200), s.PlayDuration)
	assert.Equal(t, 100.0, s.CompletionPercentage)
	assert.Nil(t, s.SkipReason)
	require.NotNil(t, s.EndedAt)
	assert.Equal(t, at(200), *s.EndedAt)
	assert.Len(t, committed, 1)

	b := store.behaviors[id]
	require.NotNil(t, b)
	assert.Equal(t, uint64(1), b.TotalPlays)
	assert.Equal(t, uint64(0), b.TotalSkips)
	assert.Contains(t, b.Tags, TagFavorite)
	assert.InDelta(t, NewWeightCalculator(30).Weight(b, at(3600)), b.Weight, 1e-9)
}

func TestTracker_SkipUsesPositionAndReason(t *testing.T) {
	ctx := context.Background()
	store := newMemStore()
	id := uuid.New()
	store.durations[id] = 100
	tr := newTestTracker(store, 10)

	require.NoError(t, tr.HandleEvent(ctx, Started(id, at(0))))
	require.NoError(t, tr.HandleEvent(ctx, Skipped(id, 40, SkipUser, at(41))))

	require.Len(t, store.sessions, 1)
	s := store.sessions[0]
	assert.Equal(t, uint64(40), s.PlayDuration)
	assert.Equal(t, 40.0, s.CompletionPercentage)
	require.NotNil(t, s.SkipReason)
	assert.Equal(t, SkipUser, *s.SkipReason)
	assert.Equal(t, []int{40}, store.behaviors[id].SkipPositions)
}

func TestTracker_ShortSessionIsDiscarded(t *testing.T) {
	ctx := context.Background()
	store := newMemStore()
	id := uuid.New()
	tr := newTestTracker(store, 10)

	require.NoError(t, tr.HandleEvent(ctx, Started(id, at(0))))
	require.NoError(t, tr.HandleEvent(ctx, Skipped(id, 9, SkipUser, at(9))))

	_, active := tr.Active()
	assert.False(t, active)
	assert.Empty(t, store.sessions)

	all, err := store.GetAllTrackBehaviors(ctx)
	require.NoError(t, err)
	assert.Empty(t, all)
}

func TestTracker_PauseFreezesAndResumeKeepsProgress(t *testing.T) {
	ctx := context.Background()
	store := newMemStore()
	id := uuid.New()
	store.durations[id] = 300
	tr := newTestTracker(store, 10)

	require.NoError(t, tr.HandleEvent(ctx, Started(id, at(0))))
	require.NoError(t, tr.HandleEvent(ctx, Paused(id, 60, at(60))))
	assert.True(t, tr.IsPaused())

	// A second pause while paused is ignored.
	require.NoError(t, tr.HandleEvent(ctx, Paused(id, 5, at(70))))
	require.NoError(t, tr.HandleEvent(ctx, Resumed(id, 60, at(500))))
	assert.False(t, tr.IsPaused())

	// The skip position is behind the frozen time, so the frozen time wins.
	require.NoError(t, tr.HandleEvent(ctx, Skipped(id, 30, SkipUser, at(510))))

	require.Len(t, store.sessions, 1)
	assert.Equal(t, uint64(60), store.sessions[0].PlayDuration)
}

func TestTracker_RepeatedPausesKeepFurthestPosition(t *testing.T) {
	ctx := context.Background()
	store := newMemStore()
	id := uuid.New()
	tr := newTestTracker(store, 10)

	require.NoError(t, tr.HandleEvent(ctx, Started(id, at(0))))
	require.NoError(t, tr.HandleEvent(ctx, Paused(id, 50, at(50))))
	require.NoError(t, tr.HandleEvent(ctx, Resumed(id, 50, at(60))))
	require.NoError(t, tr.HandleEvent(ctx, Paused(id, 20, at(70)))) // seeked back
	require.NoError(t, tr.HandleEvent(ctx, Resumed(id, 20, at(80))))
	require.NoError(t, tr.HandleEvent(ctx, Skipped(id, 0, SkipUser, at(90))))

	require.Len(t, store.sessions, 1)
	assert.Equal(t, uint64(50), store.sessions[0].PlayDuration)
}

func TestTracker_NewStartSupersedesActiveSession(t *testing.T) {
	ctx := context.Background()
	store := newMemStore()
	a, b := uuid.New(), uuid.New()
	tr := newTestTracker(store, 10)

	require.NoError(t, tr.HandleEvent(ctx, Started(a, at(0))))
	require.NoError(t, tr.HandleEvent(ctx, Started(b, at(45))))

	require.Len(t, store.sessions, 1)
	s := store.sessions[0]
	assert.Equal(t, a, s.TrackID)
	require.NotNil(t, s.SkipReason)
	assert.Equal(t, SkipNextTrack, *s.SkipReason)
	assert.Equal(t, at(45), *s.EndedAt)
	assert.Equal(t, uint64(45), s.PlayDuration)

	ab := store.behaviors[a]
	require.NotNil(t, ab)
	assert.Equal(t, uint64(1), ab.TotalPlays)
	assert.Equal(t, uint64(1), ab.TotalSkips)
	assert.Equal(t, []int{25}, ab.SkipPositions)

	active, ok := tr.Active()
	require.True(t, ok)
	assert.Equal(t, b, active.TrackID)
}

func TestTracker_SupersedeExcludesPausedTime(t *testing.T) {
	ctx := context.Background()
	store := newMemStore()
	a := uuid.New()
	tr := newTestTracker(store, 10)

	require.NoError(t, tr.HandleEvent(ctx, Started(a, at(0))))
	require.NoError(t, tr.HandleEvent(ctx, Paused(a, 20, at(20))))
	require.NoError(t, tr.HandleEvent(ctx, Resumed(a, 20, at(620))))
	require.NoError(t, tr.HandleEvent(ctx, Started(a, at(635))))

	require.Len(t, store.sessions, 1)
	assert.Equal(t, uint64(35), store.sessions[0].PlayDuration)
}

func TestTracker_SupersedeOfShortSessionIsDiscarded(t *testing.T) {
	ctx := context.Background()
	store := newMemStore()
	a, b := uuid.New(), uuid.New()
	tr := newTestTracker(store, 10)

	require.NoError(t, tr.HandleEvent(ctx, Started(a, at(0))))
	require.NoError(t, tr.HandleEvent(ctx, Started(b, at(3))))

	assert.Empty(t, store.sessions)
	assert.Nil(t, store.behaviors[a])
}

func TestTracker_EventsForOtherTracksAreIgnored(t *testing.T) {
	ctx := context.Background()
	store := newMemStore()
	a, other := uuid.New(), uuid.New()
	tr := newTestTracker(store, 10)

	require.NoError(t, tr.HandleEvent(ctx, Started(a, at(0))))
	require.NoError(t, tr.HandleEvent(ctx, Paused(other, 30, at(30))))
	assert.False(t, tr.IsPaused())

	require.NoError(t, tr.HandleEvent(ctx, Skipped(other, 30, SkipUser, at(40))))
	require.NoError(t, tr.HandleEvent(ctx, Completed(other, at(50))))

	s, ok := tr.Active()
	require.True(t, ok)
	assert.Equal(t, a, s.TrackID)
	assert.Empty(t, store.sessions)
}

func TestTracker_CompletedWithoutSessionIsNoop(t *testing.T) {
	tr := newTestTracker(newMemStore(), 10)
	assert.NoError(t, tr.HandleEvent(context.Background(), Completed(uuid.New(), at(0))))
}

func TestTracker_PersistenceFailureClearsSession(t *testing.T) {
	ctx := context.Background()
	store := newMemStore()
	store.failSaveSession = errors.New("disk full")
	id := uuid.New()
	tr := newTestTracker(store, 10)

	require.NoError(t, tr.HandleEvent(ctx, Started(id, at(0))))
	err := tr.HandleEvent(ctx, Skipped(id, 90, SkipUser, at(90)))

	require.Error(t, err)
	assert.ErrorIs(t, err, store.failSaveSession)
	_, active := tr.Active()
	assert.False(t, active)
	assert.Nil(t, store.behaviors[id])
}

func TestTracker_BehaviorSaveFailureIsReported(t *testing.T) {
	ctx := context.Background()
	store := newMemStore()
	store.failSaveBehavior = errors.New("locked")
	id := uuid.New()
	tr := newTestTracker(store, 10)

	require.NoError(t, tr.HandleEvent(ctx, Started(id, at(0))))
	err := tr.HandleEvent(ctx, Completed(id, at(180)))

	assert.ErrorIs(t, err, store.failSaveBehavior)
	_, active := tr.Active()
	assert.False(t, active)
}

func TestTracker_SupersedeFailureStillOpensNewSession(t *testing.T) {
	ctx := context.Background()
	store := newMemStore()
	a, b := uuid.New(), uuid.New()
	tr := newTestTracker(store, 10)

	require.NoError(t, tr.HandleEvent(ctx, Started(a, at(0))))
	store.failSaveSession = errors.New("boom")
	err := tr.HandleEvent(ctx, Started(b, at(60)))

	assert.Error(t, err)
	s, ok := tr.Active()
	require.True(t, ok)
	assert.Equal(t, b, s.TrackID)
}

func TestTracker_DurationLookupFailureUsesDefault(t *testing.T) {
	store := newMemStore()
	store.failDuration = errors.New("no table")
	tr := newTestTracker(store, 10)

	err := tr.HandleEvent(context.Background(), Started(uuid.New(), at(0)))

	assert.Error(t, err)
	s, ok := tr.Active()
	require.True(t, ok)
	assert.Equal(t, DefaultTrackDuration, s.TrackDuration)
}

func TestTracker_SkipsNeverExceedPlays(t *testing.T) {
	ctx := context.Background()
	store := newMemStore()
	id := uuid.New()
	tr := newTestTracker(store, 1)

	for i := range 20 {
		start := i * 1000
		require.NoError(t, tr.HandleEvent(ctx, Started(id, at(start))))
		if i%3 == 0 {
			require.NoError(t, tr.HandleEvent(ctx, Completed(id, at(start+180))))
		} else {
			require.NoError(t, tr.HandleEvent(ctx, Skipped(id, 30, SkipUser, at(start+30))))
		}
	}

	b := store.behaviors[id]
	require.NotNil(t, b)
	assert.Equal(t, uint64(20), b.TotalPlays)
	assert.LessOrEqual(t, b.TotalSkips, b.TotalPlays)
}
