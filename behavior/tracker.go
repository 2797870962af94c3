package behavior

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	log "github.com/sirupsen/logrus"
)

// EventKind enumerates the playback transitions the tracker understands.
type EventKind int

const (
	TrackStarted EventKind = iota
	TrackPaused
	TrackResumed
	TrackSkipped
	TrackCompleted
)

func (k EventKind) String() string {
	switch k {
	case TrackStarted:
		return "started"
	case TrackPaused:
		return "paused"
	case TrackResumed:
		return "resumed"
	case TrackSkipped:
		return "skipped"
	case TrackCompleted:
		return "completed"
	default:
		return "unknown"
	}
}

// PlaybackEvent is one input to the tracker. Position is in seconds and is
// only meaningful for pause, resume and skip.
type PlaybackEvent struct {
	Kind     EventKind
	TrackID  uuid.UUID
	Position uint64
	Reason   SkipReason
	At       time.Time
}

func Started(trackID uuid.UUID, at time.Time) PlaybackEvent {
	return PlaybackEvent{Kind: TrackStarted, TrackID: trackID, At: at}
}

func Paused(trackID uuid.UUID, position uint64, at time.Time) PlaybackEvent {
	return PlaybackEvent{Kind: TrackPaused, TrackID: trackID, Position: position, At: at}
}

func Resumed(trackID uuid.UUID, position uint64, at time.Time) PlaybackEvent {
	return PlaybackEvent{Kind: TrackResumed, TrackID: trackID, Position: position, At: at}
}

func Skipped(trackID uuid.UUID, position uint64, reason SkipReason, at time.Time) PlaybackEvent {
	return PlaybackEvent{Kind: TrackSkipped, TrackID: trackID, Position: position, Reason: reason, At: at}
}

func Completed(trackID uuid.UUID, at time.Time) PlaybackEvent {
	return PlaybackEvent{Kind: TrackCompleted, TrackID: trackID, At: at}
}

// activeSession is the in-flight session plus its listening accounting:
// frozen is the furthest position reported by a pause, listened the wall-clock
// time spent running before the last pause.
type activeSession struct {
	session      PlaySession
	frozen       uint64
	pausedAt     *time.Time
	runningSince time.Time
	listened     time.Duration
}

func (a *activeSession) elapsed(at time.Time) uint64 {
	total := a.listened
	if a.pausedAt == nil {
		if d := at.Sub(a.runningSince); d > 0 {
			total += d
		}
	}
	return uint64(total / time.Second)
}

// CommitFunc observes every session that was persisted along with the
// behavior it produced.
type CommitFunc func(PlaySession, *TrackBehavior)

// Tracker turns playback events into sessions and behavior updates. It holds
// at most one active session and is not safe for concurrent use.
type Tracker struct {
	store       Store
	calc        WeightCalculator
	minPlayTime uint64
	now         func() time.Time
	onCommit    CommitFunc

	active *activeSession
}

// NewTracker returns a tracker that ignores sessions shorter than minPlayTime seconds.
func NewTracker(store Store, calc WeightCalculator, minPlayTime uint64) *Tracker {
	return &Tracker{
		store:       store,
		calc:        calc,
		minPlayTime: minPlayTime,
		now:         time.Now,
	}
}

// OnCommit registers fn to be called after each successful commit.
func (t *Tracker) OnCommit(fn CommitFunc) {
	t.onCommit = fn
}

// Active returns a copy of the in-flight session.
func (t *Tracker) Active() (PlaySession, bool) {
	if t.active == nil {
		return PlaySession{}, false
	}
	return t.active.session, true
}

// IsPaused reports whether the in-flight session is paused.
func (t *Tracker) IsPaused() bool {
	return t.active != nil && t.active.pausedAt != nil
}

// HandleEvent applies one transition. Persistence errors are returned but
// never leave a session half-finalized: the session is dropped instead.
func (t *Tracker) HandleEvent(ctx context.Context, ev PlaybackEvent) error {
	switch ev.Kind {
	case TrackStarted:
		return t.start(ctx, ev)
	case TrackPaused:
		t.pause(ev)
	case TrackResumed:
		t.resume(ev)
	case TrackSkipped:
		reason := ev.Reason
		if reason == "" {
			reason = SkipUser
		}
		return t.finish(ctx, ev.TrackID, ev.Position, &reason, ev.At)
	case TrackCompleted:
		if t.active == nil {
			return nil
		}
		return t.finish(ctx, ev.TrackID, t.active.session.TrackDuration, nil, ev.At)
	default:
		return fmt.Errorf("unknown playback event %d", ev.Kind)
	}
	return nil
}

func (t *Tracker) start(ctx context.Context, ev PlaybackEvent) error {
	var errs []error

	if prev := t.active; prev != nil {
		reason := SkipNextTrack
		if err := t.finish(ctx, prev.session.TrackID, prev.elapsed(ev.At), &reason, ev.At); err != nil {
			errs = append(errs, err)
		}
	}

	duration := DefaultTrackDuration
	secs, ok, err := t.store.GetTrackDuration(ctx, ev.TrackID)
	switch {
	case err != nil:
		errs = append(errs, fmt.Errorf("look up track duration: %w", err))
	case ok && secs > 0:
		duration = secs
	}

	t.active = &activeSession{
		session: PlaySession{
			ID:            uuid.New(),
			TrackID:       ev.TrackID,
			StartedAt:     ev.At,
			TrackDuration: duration,
		},
		runningSince: ev.At,
	}
	log.Debugf("[Tracker] Session %s opened for track %s (%ds)", t.active.session.ID, ev.TrackID, duration)

	return errors.Join(errs...)
}

func (t *Tracker) pause(ev PlaybackEvent) {
	a := t.active
	if a == nil || a.session.TrackID != ev.TrackID || a.pausedAt != nil {
		return
	}
	a.frozen = max(a.frozen, ev.Position)
	if d := ev.At.Sub(a.runningSince); d > 0 {
		a.listened += d
	}
	at := ev.At
	a.pausedAt = &at
}

func (t *Tracker) resume(ev PlaybackEvent) {
	a := t.active
	if a == nil || a.session.TrackID != ev.TrackID || a.pausedAt == nil {
		return
	}
	a.pausedAt = nil
	a.runningSince = ev.At
}

func (t *Tracker) finish(ctx context.Context, trackID uuid.UUID, position uint64, reason *SkipReason, at time.Time) error {
	a := t.active
	if a == nil || a.session.TrackID != trackID {
		return nil
	}
	t.active = nil

	s := a.session
	ended := at
	s.EndedAt = &ended
	s.PlayDuration = max(position, a.frozen)
	s.SkipReason = reason
	s.CompletionPercentage = min(100, float64(s.PlayDuration)/float64(s.TrackDuration)*100)

	if s.PlayDuration < t.minPlayTime {
		log.Debugf("[Tracker] Discarding session %s: %ds is under the %ds minimum", s.ID, s.PlayDuration, t.minPlayTime)
		return nil
	}

	return t.commit(ctx, s)
}

func (t *Tracker) commit(ctx context.Context, s PlaySession) error {
	if err := t.store.SaveSession(ctx, &s); err != nil {
		return fmt.Errorf("save session %s: %w", s.ID, err)
	}

	b, err := t.store.GetTrackBehavior(ctx, s.TrackID)
	if err != nil {
		return fmt.Errorf("load behavior for %s: %w", s.TrackID, err)
	}
	if b == nil {
		b = NewTrackBehavior(s.TrackID)
	}

	b.Update(s)
	b.Weight = t.calc.Weight(b, t.now())

	if err := t.store.SaveTrackBehavior(ctx, b); err != nil {
		return fmt.Errorf("save behavior for %s: %w", s.TrackID, err)
	}

	log.Infof("[Tracker] Recorded %s play of %s: %ds/%ds (%.0f%%), weight %.2f",
		reasonLabel(s.SkipReason), s.TrackID, s.PlayDuration, s.TrackDuration, s.CompletionPercentage, b.Weight)

	if t.onCommit != nil {
		t.onCommit(s, b)
	}
	return nil
}

func reasonLabel(r *SkipReason) string {
	if r == nil {
		return "completed"
	}
	return string(*r)
}
