// Package jukebox ties the player, the session tracker, the library and the
// shuffle selector together. A single goroutine (Run) applies UI commands
// and player events in order, so the tracker never sees concurrent calls.
package jukebox

import (
	"context"
	"fmt"
	"slices"
	"sync"
	"time"

	"cryogon/panpipe/behavior"
	"cryogon/panpipe/library"
	"cryogon/panpipe/player"
	"cryogon/panpipe/shuffle"
	"cryogon/panpipe/track"

	"github.com/google/uuid"
	"github.com/samber/lo"
	log "github.com/sirupsen/logrus"
)

// Player is the part of player.Engine the jukebox drives.
type Player interface {
	PlayTrack(t track.Track) error
	Pause()
	Resume()
	Stop()
	SetVolume(v float64)
	State() player.State
	CurrentTrack() (track.Track, bool)
	Volume() float64
	Position() time.Duration
	Tick()
	Events() <-chan player.Event
	Close() error
}

// Store is the behavior store plus track metadata.
type Store interface {
	behavior.Store
	SaveTrackMetadata(ctx context.Context, t track.Track) error
	UpdateTrackDuration(ctx context.Context, trackID uuid.UUID, seconds uint64) error
}

type Options struct {
	MinPlayTime  uint64 // seconds
	DecayDays    uint64
	Autoplay     bool
	TickInterval time.Duration
}

type Service struct {
	engine   Player
	store    Store
	lib      *library.Library
	tracker  *behavior.Tracker
	selector *shuffle.Selector
	tick     time.Duration
	now      func() time.Time

	requests chan request
	done     chan struct{}

	// owned by the Run goroutine
	recent  []uuid.UUID
	history []uuid.UUID

	mu       sync.Mutex
	queue    []uuid.UUID
	autoplay bool

	subMu   sync.Mutex
	subs    map[int]chan Notice
	nextSub int
}

func New(engine Player, store Store, lib *library.Library, opts Options) *Service {
	calc := behavior.NewWeightCalculator(opts.DecayDays)

	s := &Service{
		engine:   engine,
		store:    store,
		lib:      lib,
		tracker:  behavior.NewTracker(store, calc, opts.MinPlayTime),
		selector: shuffle.NewSelector(calc),
		tick:     opts.TickInterval,
		now:      time.Now,
		requests: make(chan request),
		done:     make(chan struct{}),
		autoplay: opts.Autoplay,
		subs:     make(map[int]chan Notice),
	}
	if s.tick <= 0 {
		s.tick = 500 * time.Millisecond
	}

	s.tracker.OnCommit(func(session behavior.PlaySession, b *behavior.TrackBehavior) {
		s.publish(Notice{Kind: NoticeCommit, Session: &session, Behavior: b})
	})
	return s
}

// Run processes commands and player events until ctx is cancelled. On exit
// the current session is recorded and the engine is closed.
func (s *Service) Run(ctx context.Context) error {
	defer close(s.done)
	defer s.closeSubscribers()

	ticker := time.NewTicker(s.tick)
	defer ticker.Stop()

	events := s.engine.Events()
	for {
		select {
		case <-ctx.Done():
			s.shutdown()
			return nil

		case req := <-s.requests:
			req.reply <- s.handle(ctx, req.cmd)

		case ev, ok := <-events:
			if !ok {
				events = nil
				continue
			}
			s.handleEvent(ctx, ev)

		case <-ticker.C:
			s.engine.Tick()
		}
	}
}

func (s *Service) shutdown() {
	// The caller's context is gone; give the last commit its own deadline.
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	s.endCurrent(ctx, behavior.SkipUser)
	if err := s.engine.Close(); err != nil {
		log.Warnf("[Jukebox] Closing player: %v", err)
	}
	log.Info("[Jukebox] Stopped")
}

// Do hands cmd to the Run loop and waits for it to be applied.
func (s *Service) Do(ctx context.Context, cmd Command) error {
	req := request{cmd: cmd, reply: make(chan error, 1)}

	select {
	case s.requests <- req:
	case <-s.done:
		return ErrNotRunning
	case <-ctx.Done():
		return ctx.Err()
	}

	select {
	case err := <-req.reply:
		return err
	case <-s.done:
		return ErrNotRunning
	case <-ctx.Done():
		return ctx.Err()
	}
}

func (s *Service) handle(ctx context.Context, cmd Command) error {
	log.Debugf("[Jukebox] Command %s", cmd.Type)

	switch cmd.Type {
	case CmdPlay:
		return s.play(ctx, cmd.TrackID)
	case CmdPause:
		s.pause(ctx)
	case CmdResume:
		s.resume(ctx)
	case CmdToggle:
		switch s.engine.State() {
		case player.Playing:
			s.pause(ctx)
		case player.Paused:
			s.resume(ctx)
		default:
			return s.play(ctx, uuid.Nil)
		}
	case CmdStop:
		s.endCurrent(ctx, behavior.SkipUser)
		s.engine.Stop()
	case CmdNext:
		return s.next(ctx, behavior.SkipUser)
	case CmdSkip:
		reason, ok := behavior.ParseSkipReason(cmd.Reason)
		if !ok {
			reason = behavior.SkipUser
		}
		return s.next(ctx, reason)
	case CmdPrev:
		return s.previous(ctx)
	case CmdVolume:
		if cmd.Volume == nil {
			return ErrInvalidVolume
		}
		s.engine.SetVolume(*cmd.Volume)
	case CmdShuffle:
		return s.shuffle(ctx, cmd.Size)
	default:
		return fmt.Errorf("unknown command %q", cmd.Type)
	}
	return nil
}

func (s *Service) play(ctx context.Context, id uuid.UUID) error {
	if id == uuid.Nil {
		switch s.engine.State() {
		case player.Paused:
			s.resume(ctx)
			return nil
		case player.Playing:
			return nil
		}
		return s.next(ctx, behavior.SkipUser)
	}

	t, ok := s.lib.Get(id)
	if !ok {
		return fmt.Errorf("%w: %s", ErrUnknownTrack, id)
	}

	s.endCurrent(ctx, behavior.SkipUser)
	return s.start(ctx, t)
}

func (s *Service) next(ctx context.Context, reason behavior.SkipReason) error {
	t, ok := s.pickNext(ctx)
	if !ok {
		s.endCurrent(ctx, behavior.SkipPlaylistEnd)
		s.engine.Stop()
		if s.lib.Len() == 0 {
			return ErrEmptyLibrary
		}
		return nil
	}

	s.endCurrent(ctx, reason)
	return s.start(ctx, t)
}

func (s *Service) previous(ctx context.Context) error {
	var (
		t  track.Track
		ok bool
	)

	// history ends with the current track.
	if len(s.history) >= 2 {
		s.history = s.history[:len(s.history)-1]
		prev := s.history[len(s.history)-1]
		s.history = s.history[:len(s.history)-1]
		t, ok = s.lib.Get(prev)
	}
	if !ok {
		if cur, has := s.engine.CurrentTrack(); has {
			t, ok = s.lib.Neighbor(cur.ID, -1)
		}
	}
	if !ok {
		return s.next(ctx, behavior.SkipPreviousTrack)
	}

	s.endCurrent(ctx, behavior.SkipPreviousTrack)
	return s.start(ctx, t)
}

func (s *Service) shuffle(ctx context.Context, size int) error {
	ids := s.lib.IDs()
	if len(ids) == 0 {
		return ErrEmptyLibrary
	}
	if size <= 0 {
		size = len(ids)
	}

	playlist := s.selector.GeneratePlaylist(ids, s.behaviors(ctx), size)

	s.mu.Lock()
	s.queue = playlist
	s.mu.Unlock()

	log.Infof("[Jukebox] Queued %d shuffled tracks", len(playlist))
	return nil
}

// pickNext takes the head of the queue, or draws from the whole library
// when autoplay is on and the queue is empty.
func (s *Service) pickNext(ctx context.Context) (track.Track, bool) {
	s.mu.Lock()
	for len(s.queue) > 0 {
		id := s.queue[0]
		s.queue = s.queue[1:]
		if t, ok := s.lib.Get(id); ok {
			s.mu.Unlock()
			return t, true
		}
	}
	autoplay := s.autoplay
	s.mu.Unlock()

	if !autoplay {
		return track.Track{}, false
	}

	id, ok := s.selector.SelectNext(s.lib.IDs(), s.behaviors(ctx), s.recent)
	if !ok {
		return track.Track{}, false
	}
	return s.lib.Get(id)
}

// start plays t and opens its session. The tracker is fed here rather than
// from the engine's TrackStarted event, which may still be queued when the
// next command arrives.
func (s *Service) start(ctx context.Context, t track.Track) error {
	at := s.now()
	if err := s.engine.PlayTrack(t); err != nil {
		s.publish(Notice{Kind: NoticeError, Error: err.Error()})
		return err
	}
	s.track(ctx, behavior.Started(t.ID, at))

	s.history = append(s.history, t.ID)
	if len(s.history) > 100 {
		s.history = slices.Clone(s.history[len(s.history)-100:])
	}

	s.recent = append(lo.Without(s.recent, t.ID), t.ID)
	if n := shuffle.RecentBufferSize(s.lib.Len()); len(s.recent) > n {
		s.recent = s.recent[len(s.recent)-n:]
	}
	return nil
}

func (s *Service) pause(ctx context.Context) {
	if s.engine.State() != player.Playing {
		return
	}
	s.engine.Pause()
	if cur, ok := s.engine.CurrentTrack(); ok {
		s.track(ctx, behavior.Paused(cur.ID, seconds(s.engine.Position()), s.now()))
	}
}

func (s *Service) resume(ctx context.Context) {
	if s.engine.State() != player.Paused {
		return
	}
	s.engine.Resume()
	if cur, ok := s.engine.CurrentTrack(); ok {
		s.track(ctx, behavior.Resumed(cur.ID, seconds(s.engine.Position()), s.now()))
	}
}

// endCurrent records a skip of whatever is loaded at the current position.
func (s *Service) endCurrent(ctx context.Context, reason behavior.SkipReason) {
	if s.engine.State() == player.Stopped {
		return
	}
	cur, ok := s.engine.CurrentTrack()
	if !ok {
		return
	}

	ev := behavior.Skipped(cur.ID, seconds(s.engine.Position()), reason, s.now())
	s.track(ctx, ev)
}

func (s *Service) handleEvent(ctx context.Context, ev player.Event) {
	at := ev.At
	if at.IsZero() {
		at = s.now()
	}

	// Started, paused and resumed sessions are tracked when the command is
	// applied; those events are only forwarded.
	switch ev.Kind {
	case player.TrackFinished:
		s.track(ctx, behavior.Completed(ev.Track.ID, at))
		s.publish(Notice{Kind: NoticeEvent, Event: &ev})
		if !s.stillFinished(ev.Track.ID) {
			return
		}
		if err := s.next(ctx, behavior.SkipNextTrack); err != nil {
			log.Warnf("[Jukebox] Autoplay: %v", err)
		}
		return

	case player.DurationLearned:
		s.learned(ctx, *ev.Track)

	case player.PlaybackFailed:
		log.Warnf("[Jukebox] Player error: %s", ev.Message)
	}

	s.publish(Notice{Kind: NoticeEvent, Event: &ev})
}

// stillFinished reports whether nothing was started since id played out.
func (s *Service) stillFinished(id uuid.UUID) bool {
	if s.engine.State() != player.Stopped {
		return false
	}
	cur, ok := s.engine.CurrentTrack()
	return ok && cur.ID == id
}

func (s *Service) learned(ctx context.Context, t track.Track) {
	s.lib.SetDuration(t.ID, t.Duration)

	secs, ok := t.Seconds()
	if !ok {
		return
	}
	if err := s.store.UpdateTrackDuration(ctx, t.ID, secs); err != nil {
		log.Warnf("[Jukebox] Saving learned duration for %s: %v", t.DisplayTitle(), err)
	}
}

func (s *Service) track(ctx context.Context, ev behavior.PlaybackEvent) {
	if err := s.tracker.HandleEvent(ctx, ev); err != nil {
		log.Warnf("[Tracker] %s %s: %v", ev.Kind, ev.TrackID, err)
		s.publish(Notice{Kind: NoticeError, Error: err.Error()})
	}
}

func (s *Service) behaviors(ctx context.Context) shuffle.Behaviors {
	all, err := s.store.GetAllTrackBehaviors(ctx)
	if err != nil {
		log.Warnf("[Jukebox] Loading behaviors, shuffling without history: %v", err)
		return shuffle.Behaviors{}
	}
	return shuffle.Index(all)
}

// Status is safe to call from any goroutine.
func (s *Service) Status() Status {
	st := Status{
		State:    s.engine.State(),
		Position: s.engine.Position().Seconds(),
		Volume:   s.engine.Volume(),
	}
	if t, ok := s.engine.CurrentTrack(); ok {
		st.Track = &t
		st.Duration = t.Duration.Seconds()
	}

	s.mu.Lock()
	st.Queued = len(s.queue)
	st.Autoplay = s.autoplay
	s.mu.Unlock()

	return st
}

// Queue returns the upcoming tracks.
func (s *Service) Queue() []track.Track {
	s.mu.Lock()
	ids := slices.Clone(s.queue)
	s.mu.Unlock()

	return lo.FilterMap(ids, func(id uuid.UUID, _ int) (track.Track, bool) {
		return s.lib.Get(id)
	})
}

func (s *Service) SetAutoplay(on bool) {
	s.mu.Lock()
	s.autoplay = on
	s.mu.Unlock()
}

// WeightedTrack is one row of the library ranked by shuffle weight.
// Behavior is nil for a track that was never played.
type WeightedTrack struct {
	Track    track.Track             `json:"track"`
	Weight   float64                 `json:"weight"`
	Behavior *behavior.TrackBehavior `json:"behavior,omitempty"`
}

// Weights ranks the whole library by current shuffle weight, heaviest first.
func (s *Service) Weights(ctx context.Context) []WeightedTrack {
	ranked := s.selector.RankByWeight(s.lib.IDs(), s.behaviors(ctx))
	return lo.FilterMap(ranked, func(r shuffle.Ranked, _ int) (WeightedTrack, bool) {
		t, ok := s.lib.Get(r.TrackID)
		return WeightedTrack{Track: t, Weight: r.Weight, Behavior: r.Behavior}, ok
	})
}

// Preview generates a shuffled playlist without queueing it.
func (s *Service) Preview(ctx context.Context, size int) []track.Track {
	ids := s.selector.GeneratePlaylist(s.lib.IDs(), s.behaviors(ctx), size)
	return lo.FilterMap(ids, func(id uuid.UUID, _ int) (track.Track, bool) {
		return s.lib.Get(id)
	})
}

func (s *Service) Library() *library.Library {
	return s.lib
}

func seconds(d time.Duration) uint64 {
	if d <= 0 {
		return 0
	}
	return uint64(d / time.Second)
}
