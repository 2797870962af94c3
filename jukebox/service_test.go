package jukebox

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"cryogon/panpipe/behavior"
	"cryogon/panpipe/library"
	"cryogon/panpipe/player"
	"cryogon/panpipe/store"
	"cryogon/panpipe/track"

	"github.com/google/uuid"
	"github.com/gopxl/beep"
	"github.com/gopxl/beep/wav"
	logtest "github.com/sirupsen/logrus/hooks/test"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type clock struct {
	mu sync.Mutex
	t  time.Time
}

func (c *clock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.t
}

func (c *clock) Advance(d time.Duration) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.t = c.t.Add(d)
}

// fakePlayer mimics player.Engine's state machine and events without audio.
type fakePlayer struct {
	mu       sync.Mutex
	clock    *clock
	events   chan player.Event
	closed   bool
	state    player.State
	current  *track.Track
	position time.Duration
	volume   float64
	fail     map[uuid.UUID]error
}

func newFakePlayer(c *clock) *fakePlayer {
	return &fakePlayer{
		clock:  c,
		events: make(chan player.Event, 256),
		volume: 0.7,
		fail:   map[uuid.UUID]error{},
	}
}

func (p *fakePlayer) emit(ev player.Event) {
	if p.closed {
		return
	}
	ev.At = p.clock.Now()
	p.events <- ev
}

func (p *fakePlayer) PlayTrack(t track.Track) error {
	p.mu.Lock()
	defer p.mu.Unlock()

	p.state = player.Stopped
	p.emit(player.Event{Kind: player.TrackStopped})

	if err := p.fail[t.ID]; err != nil {
		p.emit(player.Event{Kind: player.PlaybackFailed, Message: err.Error()})
		return err
	}

	p.current = &t
	p.state = player.Playing
	p.position = 0
	started := t
	p.emit(player.Event{Kind: player.TrackStarted, Track: &started})
	return nil
}

func (p *fakePlayer) Pause() {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.state != player.Playing {
		return
	}
	p.state = player.Paused
	p.emit(player.Event{Kind: player.TrackPaused})
}

func (p *fakePlayer) Resume() {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.state != player.Paused {
		return
	}
	p.state = player.Playing
	p.emit(player.Event{Kind: player.TrackResumed})
}

func (p *fakePlayer) Stop() {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.state = player.Stopped
	p.emit(player.Event{Kind: player.TrackStopped})
}

func (p *fakePlayer) SetVolume(v float64) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.volume = max(0, min(v, 1))
	p.emit(player.Event{Kind: player.VolumeChanged, Volume: p.volume})
}

func (p *fakePlayer) State() player.State {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.state
}

func (p *fakePlayer) CurrentTrack() (track.Track, bool) {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.current == nil {
		return track.Track{}, false
	}
	return *p.current, true
}

func (p *fakePlayer) Volume() float64 {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.volume
}

func (p *fakePlayer) Position() time.Duration {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.position
}

func (p *fakePlayer) Tick() {}

func (p *fakePlayer) Events() <-chan player.Event {
	return p.events
}

func (p *fakePlayer) Close() error {
	p.mu.Lock()
	defer p.mu.Unlock()
	if !p.closed {
		p.closed = true
		close(p.events)
	}
	return nil
}

func (p *fakePlayer) setPosition(d time.Duration) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.position = d
}

// finish plays the current track out, as Engine.Tick does on a drained sink.
func (p *fakePlayer) finish() {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.state = player.Stopped
	finished := *p.current
	p.emit(player.Event{Kind: player.TrackFinished, Track: &finished})
}

func (p *fakePlayer) learn(d time.Duration) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.current.Duration = d
	learned := *p.current
	p.emit(player.Event{Kind: player.DurationLearned, Track: &learned, Duration: d})
}

type harness struct {
	svc     *Service
	store   *store.Store
	player  *fakePlayer
	clock   *clock
	tracks  []track.Track
	notices <-chan Notice
}

func newHarness(t *testing.T, n int, autoplay bool) *harness {
	t.Helper()

	st, err := store.NewSQLiteStore(filepath.Join(t.TempDir(), "panpipe.db"))
	require.NoError(t, err)

	ctx := context.Background()
	lib := library.New()
	var tracks []track.Track
	for i := range n {
		tr := track.New(fmt.Sprintf("/music/%02d.mp3", i))
		tr.Duration = 200 * time.Second
		require.NoError(t, st.SaveTrackMetadata(ctx, tr))
		tracks = append(tracks, tr)
	}
	lib.Add(tracks...)

	c := &clock{t: time.Date(2026, 7, 4, 18, 0, 0, 0, time.UTC)}
	fp := newFakePlayer(c)
	svc := New(fp, st, lib, Options{MinPlayTime: 10, DecayDays: 30, Autoplay: autoplay, TickInterval: time.Hour})
	svc.now = c.Now
	notices, _ := svc.Subscribe(128)

	runCtx, cancel := context.WithCancel(ctx)
	done := make(chan error, 1)
	go func() { done <- svc.Run(runCtx) }()

	t.Cleanup(func() {
		cancel()
		<-done
		st.Close()
	})

	return &harness{svc: svc, store: st, player: fp, clock: c, tracks: tracks, notices: notices}
}

func (h *harness) do(t *testing.T, cmd Command) {
	t.Helper()
	require.NoError(t, h.svc.Do(context.Background(), cmd))
}

func (h *harness) waitEvent(t *testing.T, kind player.EventKind) Notice {
	t.Helper()
	timeout := time.After(2 * time.Second)
	for {
		select {
		case n := <-h.notices:
			if n.Kind == NoticeEvent && n.Event.Kind == kind {
				return n
			}
		case <-timeout:
			t.Fatalf("no %s event", kind)
			return Notice{}
		}
	}
}

func (h *harness) behaviorOf(t *testing.T, id uuid.UUID) *behavior.TrackBehavior {
	t.Helper()
	b, err := h.store.GetTrackBehavior(context.Background(), id)
	require.NoError(t, err)
	return b
}

func TestNextRecordsSkip(t *testing.T) {
	h := newHarness(t, 4, true)
	a := h.tracks[0]

	h.do(t, Command{Type: CmdPlay, TrackID: a.ID})
	h.waitEvent(t, player.TrackStarted)

	h.clock.Advance(60 * time.Second)
	h.player.setPosition(60 * time.Second)
	h.do(t, Command{Type: CmdNext})
	started := h.waitEvent(t, player.TrackStarted)
	assert.NotEqual(t, a.ID, started.Event.Track.ID)

	b := h.behaviorOf(t, a.ID)
	require.NotNil(t, b)
	assert.Equal(t, uint64(1), b.TotalPlays)
	assert.Equal(t, uint64(1), b.TotalSkips)
	assert.Equal(t, []int{30}, b.SkipPositions)

	sessions, err := h.store.GetSessions(context.Background(), a.ID, 1)
	require.NoError(t, err)
	require.Len(t, sessions, 1)
	require.NotNil(t, sessions[0].SkipReason)
	assert.Equal(t, behavior.SkipUser, *sessions[0].SkipReason)
}

func TestFinishedTrackCompletesAndAutoplays(t *testing.T) {
	h := newHarness(t, 3, true)
	a := h.tracks[1]

	h.do(t, Command{Type: CmdPlay, TrackID: a.ID})
	h.waitEvent(t, player.TrackStarted)

	h.clock.Advance(200 * time.Second)
	h.player.finish()
	h.waitEvent(t, player.TrackFinished)
	next := h.waitEvent(t, player.TrackStarted)
	assert.NotEqual(t, a.ID, next.Event.Track.ID)

	b := h.behaviorOf(t, a.ID)
	require.NotNil(t, b)
	assert.Equal(t, uint64(1), b.TotalPlays)
	assert.Zero(t, b.TotalSkips)
	assert.Equal(t, 100.0, b.CompletionRate)
}

func TestShortListenIsNotAPlay(t *testing.T) {
	h := newHarness(t, 2, true)
	a := h.tracks[0]

	h.do(t, Command{Type: CmdPlay, TrackID: a.ID})
	h.waitEvent(t, player.TrackStarted)

	h.player.setPosition(3 * time.Second)
	h.do(t, Command{Type: CmdStop})
	h.waitEvent(t, player.TrackStopped)

	assert.Nil(t, h.behaviorOf(t, a.ID))
	n, err := h.store.CountSessions(context.Background())
	require.NoError(t, err)
	assert.Zero(t, n)
}

func TestPauseResumeKeepsProgress(t *testing.T) {
	h := newHarness(t, 2, true)
	a := h.tracks[0]

	h.do(t, Command{Type: CmdPlay, TrackID: a.ID})
	h.waitEvent(t, player.TrackStarted)

	h.player.setPosition(40 * time.Second)
	h.do(t, Command{Type: CmdToggle})
	h.waitEvent(t, player.TrackPaused)
	assert.Equal(t, player.Paused, h.svc.Status().State)

	h.clock.Advance(time.Hour)
	h.do(t, Command{Type: CmdToggle})
	h.waitEvent(t, player.TrackResumed)

	h.player.setPosition(90 * time.Second)
	h.do(t, Command{Type: CmdStop})
	h.waitEvent(t, player.TrackStopped)

	b := h.behaviorOf(t, a.ID)
	require.NotNil(t, b)
	assert.Equal(t, uint64(90), b.TotalPlayTime)
	assert.Equal(t, []int{45}, b.SkipPositions)
}

func writeSilence(t *testing.T, dir, name string) track.Track {
	t.Helper()
	path := filepath.Join(dir, name)
	f, err := os.Create(path)
	require.NoError(t, err)
	defer f.Close()

	format := beep.Format{SampleRate: 8000, NumChannels: 1, Precision: 2}
	require.NoError(t, wav.Encode(f, beep.Silence(format.SampleRate.N(time.Minute)), format))
	return track.New(path)
}

// A command that arrives while the engine is still fading a track in must
// close that track's session rather than leave it for a late Started event.
func TestCommandDuringFadeIn(t *testing.T) {
	for _, cmd := range []CommandType{CmdStop, CmdNext} {
		t.Run(string(cmd), func(t *testing.T) {
			ctx := context.Background()
			dir := t.TempDir()

			st, err := store.NewSQLiteStore(filepath.Join(dir, "panpipe.db"))
			require.NoError(t, err)
			defer st.Close()

			tracks := []track.Track{writeSilence(t, dir, "a.wav"), writeSilence(t, dir, "b.wav")}
			lib := library.New()
			lib.Add(tracks...)
			a := tracks[0]

			engine := player.New(player.NewNullOutput(), player.Options{
				Volume:  0.7,
				FadeIn:  300 * time.Millisecond,
				FadeOut: 50 * time.Millisecond,
			})
			svc := New(engine, st, lib, Options{MinPlayTime: 10, DecayDays: 30, Autoplay: true, TickInterval: time.Hour})
			notices, _ := svc.Subscribe(128)

			runCtx, cancel := context.WithCancel(ctx)
			done := make(chan error, 1)
			go func() { done <- svc.Run(runCtx) }()
			defer func() {
				cancel()
				<-done
			}()

			played := make(chan error, 1)
			go func() { played <- svc.Do(ctx, Command{Type: CmdPlay, TrackID: a.ID}) }()
			time.Sleep(100 * time.Millisecond)
			require.NoError(t, svc.Do(ctx, Command{Type: cmd}))
			require.NoError(t, <-played)

			// Drain the engine's events so the late Started has been handled.
			started := 0
			timeout := time.After(3 * time.Second)
			for started < 1 || (cmd == CmdNext && started < 2) {
				select {
				case n := <-notices:
					if n.Kind == NoticeEvent && n.Event.Kind == player.TrackStarted {
						started++
					}
				case <-timeout:
					t.Fatalf("saw %d started events", started)
				}
			}
			v := 0.5
			require.NoError(t, svc.Do(ctx, Command{Type: CmdVolume, Volume: &v}))

			b, err := st.GetTrackBehavior(ctx, a.ID)
			require.NoError(t, err)
			assert.Nil(t, b)

			n, err := st.CountSessions(ctx)
			require.NoError(t, err)
			assert.Zero(t, n)

			active, ok := svc.tracker.Active()
			if cmd == CmdStop {
				assert.False(t, ok, "session left open for %s", active.TrackID)
			} else {
				require.True(t, ok)
				assert.NotEqual(t, a.ID, active.TrackID)
			}
		})
	}
}

func TestPreviousReplaysLastTrack(t *testing.T) {
	h := newHarness(t, 3, true)
	a, b := h.tracks[0], h.tracks[2]

	h.do(t, Command{Type: CmdPlay, TrackID: a.ID})
	h.waitEvent(t, player.TrackStarted)
	h.do(t, Command{Type: CmdPlay, TrackID: b.ID})
	h.waitEvent(t, player.TrackStarted)

	h.player.setPosition(30 * time.Second)
	h.do(t, Command{Type: CmdPrev})
	started := h.waitEvent(t, player.TrackStarted)
	assert.Equal(t, a.ID, started.Event.Track.ID)

	sessions, err := h.store.GetSessions(context.Background(), b.ID, 0)
	require.NoError(t, err)
	require.Len(t, sessions, 1)
	assert.Equal(t, behavior.SkipPreviousTrack, *sessions[0].SkipReason)
}

func TestNextWithoutAutoplayEndsPlaylist(t *testing.T) {
	h := newHarness(t, 2, false)
	a := h.tracks[0]

	h.do(t, Command{Type: CmdPlay, TrackID: a.ID})
	h.waitEvent(t, player.TrackStarted)

	h.player.setPosition(50 * time.Second)
	h.do(t, Command{Type: CmdNext})
	h.waitEvent(t, player.TrackStopped)
	assert.Equal(t, player.Stopped, h.svc.Status().State)

	sessions, err := h.store.GetSessions(context.Background(), a.ID, 0)
	require.NoError(t, err)
	require.Len(t, sessions, 1)
	assert.Equal(t, behavior.SkipPlaylistEnd, *sessions[0].SkipReason)
}

func TestShuffleQueue(t *testing.T) {
	h := newHarness(t, 6, false)

	h.do(t, Command{Type: CmdShuffle, Size: 4})
	queue := h.svc.Queue()
	require.Len(t, queue, 4)
	assert.Equal(t, 4, h.svc.Status().Queued)

	h.do(t, Command{Type: CmdNext})
	started := h.waitEvent(t, player.TrackStarted)
	assert.Equal(t, queue[0].ID, started.Event.Track.ID)
	assert.Equal(t, 3, h.svc.Status().Queued)
}

func TestDurationLearned(t *testing.T) {
	h := newHarness(t, 2, true)
	a := h.tracks[0]

	h.do(t, Command{Type: CmdPlay, TrackID: a.ID})
	h.waitEvent(t, player.TrackStarted)

	h.player.learn(123 * time.Second)
	h.waitEvent(t, player.DurationLearned)

	got, ok := h.svc.Library().Get(a.ID)
	require.True(t, ok)
	assert.Equal(t, 123*time.Second, got.Duration)

	secs, ok, err := h.store.GetTrackDuration(context.Background(), a.ID)
	require.NoError(t, err)
	assert.True(t, ok)
	assert.Equal(t, uint64(123), secs)
}

func TestCommandErrors(t *testing.T) {
	h := newHarness(t, 1, true)
	ctx := context.Background()

	err := h.svc.Do(ctx, Command{Type: CmdPlay, TrackID: uuid.New()})
	assert.ErrorIs(t, err, ErrUnknownTrack)

	assert.ErrorIs(t, h.svc.Do(ctx, Command{Type: CmdVolume}), ErrInvalidVolume)
	assert.Error(t, h.svc.Do(ctx, Command{Type: "dance"}))

	v := 1.4
	h.do(t, Command{Type: CmdVolume, Volume: &v})
	assert.Equal(t, 1.0, h.svc.Status().Volume)

	h.player.fail[h.tracks[0].ID] = errors.New("decode failed")
	assert.Error(t, h.svc.Do(ctx, Command{Type: CmdPlay, TrackID: h.tracks[0].ID}))
}

func TestEmptyLibrary(t *testing.T) {
	h := newHarness(t, 0, true)
	ctx := context.Background()

	assert.ErrorIs(t, h.svc.Do(ctx, Command{Type: CmdNext}), ErrEmptyLibrary)
	assert.ErrorIs(t, h.svc.Do(ctx, Command{Type: CmdShuffle}), ErrEmptyLibrary)
	assert.Empty(t, h.svc.Weights(ctx))
}

func TestDoAfterShutdown(t *testing.T) {
	st, err := store.NewSQLiteStore(filepath.Join(t.TempDir(), "panpipe.db"))
	require.NoError(t, err)
	defer st.Close()

	svc := New(newFakePlayer(&clock{}), st, library.New(), Options{})
	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- svc.Run(ctx) }()
	cancel()
	require.NoError(t, <-done)

	assert.ErrorIs(t, svc.Do(context.Background(), Command{Type: CmdStop}), ErrNotRunning)
}

func TestLoadLibrary(t *testing.T) {
	ctx := context.Background()
	root := t.TempDir()
	for _, name := range []string{"a.wav", "b.wav", "notes.txt"} {
		require.NoError(t, os.WriteFile(filepath.Join(root, name), []byte("x"), 0o644))
	}

	st, err := store.NewSQLiteStore(filepath.Join(t.TempDir(), "panpipe.db"))
	require.NoError(t, err)
	defer st.Close()

	known := track.IDForPath(filepath.Join(root, "a.wav"))
	require.NoError(t, st.UpdateTrackDuration(ctx, known, 240))

	hook := logtest.NewGlobal()
	defer hook.Reset()

	lib := library.New()
	require.NoError(t, LoadLibrary(ctx, lib, st, []string{root}))
	assert.Equal(t, 2, lib.Len())
	require.NotNil(t, hook.LastEntry())
	assert.Equal(t, "[Jukebox] Library ready: 2 tracks, 1 learned durations restored, 1 unknown", hook.LastEntry().Message)

	a, ok := lib.Get(known)
	require.True(t, ok)
	assert.Equal(t, 4*time.Minute, a.Duration)

	stored, err := st.GetTracks(ctx)
	require.NoError(t, err)
	assert.Len(t, stored, 2)
}
