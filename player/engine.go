// Package player drives audio output: it plays one track at a time with
// fades, tracks the playback state, learns missing track lengths and reports
// everything it does as a stream of events.
package player

import (
	"errors"
	"sync"
	"time"

	"cryogon/panpipe/track"

	log "github.com/sirupsen/logrus"
)

type Options struct {
	Volume  float64
	FadeIn  time.Duration
	FadeOut time.Duration
}

// learning is the wall-clock timing of a track whose length is unknown.
type learning struct {
	started  time.Time
	pausedAt *time.Time
}

func (l *learning) elapsed(now time.Time) time.Duration {
	if l.pausedAt != nil {
		return l.pausedAt.Sub(l.started)
	}
	return now.Sub(l.started)
}

// Engine owns the output and the one sink playing on it.
//
// Commands (play, pause, resume, stop, volume, tick) are serialized by cmdMu
// and may block for the length of a fade. mu guards the fields below it and
// is only held briefly, so status reads never wait on a fade. Lock order is
// cmdMu then mu.
type Engine struct {
	out             Output
	fadeInDuration  time.Duration
	fadeOutDuration time.Duration
	events          *eventQueue

	sleep func(time.Duration)
	now   func() time.Time

	cmdMu sync.Mutex

	mu      sync.Mutex
	sink    Sink
	current *track.Track
	state   State
	volume  float64
	learn   *learning
}

func New(out Output, opts Options) *Engine {
	return &Engine{
		out:             out,
		fadeInDuration:  max(opts.FadeIn, 0),
		fadeOutDuration: max(opts.FadeOut, 0),
		events:          newEventQueue(),
		sleep:           time.Sleep,
		now:             time.Now,
		volume:          clamp(opts.Volume, 0, 1),
	}
}

// Events is closed by Close. Events emitted while nobody reads are queued.
func (e *Engine) Events() <-chan Event {
	return e.events.out
}

func (e *Engine) emit(ev Event) {
	ev.At = e.now()
	e.events.push(ev)
}

func (e *Engine) fail(err error) error {
	log.Errorf("[Player] %v", err)
	e.emit(Event{Kind: PlaybackFailed, Message: err.Error()})
	return err
}

// PlayTrack stops whatever is playing and starts t with a fade-in. On error
// the engine is left stopped with no sink and an error event is emitted.
func (e *Engine) PlayTrack(t track.Track) error {
	e.cmdMu.Lock()
	defer e.cmdMu.Unlock()

	e.stopLocked()

	streamer, format, err := decode(t)
	if err != nil {
		return e.fail(err)
	}

	sink, err := e.out.NewSink(streamer, format)
	if err != nil {
		streamer.Close()
		return e.fail(&PlaybackError{Op: "output", Path: t.Path, Err: errors.Join(ErrNoOutput, err)})
	}

	e.mu.Lock()
	volume := e.volume
	e.mu.Unlock()

	e.fadeIn(sink, volume)

	e.mu.Lock()
	e.sink = sink
	e.current = &t
	e.state = Playing
	e.learn = nil
	if !t.HasDuration() {
		e.learn = &learning{started: e.now()}
	}
	e.mu.Unlock()

	log.Infof("[Player] Playing %s - %s", t.DisplayArtist(), t.DisplayTitle())
	started := t
	e.emit(Event{Kind: TrackStarted, Track: &started})
	return nil
}

// Pause quickly fades out and pauses the active sink. It does nothing unless
// a track is playing.
func (e *Engine) Pause() {
	e.cmdMu.Lock()
	defer e.cmdMu.Unlock()

	sink := e.sinkIn(Playing)
	if sink == nil {
		return
	}

	e.fadeOutQuick(sink)
	sink.Pause()

	e.mu.Lock()
	e.state = Paused
	if e.learn != nil && e.learn.pausedAt == nil {
		at := e.now()
		e.learn.pausedAt = &at
	}
	e.mu.Unlock()

	e.emit(Event{Kind: TrackPaused})
}

// Resume restarts a paused sink and fades back in.
func (e *Engine) Resume() {
	e.cmdMu.Lock()
	defer e.cmdMu.Unlock()

	sink := e.sinkIn(Paused)
	if sink == nil {
		return
	}

	sink.Play()

	e.mu.Lock()
	volume := e.volume
	if e.learn != nil && e.learn.pausedAt != nil {
		e.learn.started = e.learn.started.Add(e.now().Sub(*e.learn.pausedAt))
		e.learn.pausedAt = nil
	}
	e.mu.Unlock()

	e.fadeIn(sink, volume)

	e.mu.Lock()
	e.state = Playing
	e.mu.Unlock()

	e.emit(Event{Kind: TrackResumed})
}

// Stop fades out and discards the active sink. TrackStopped is emitted even
// when nothing was playing.
func (e *Engine) Stop() {
	e.cmdMu.Lock()
	defer e.cmdMu.Unlock()

	e.stopLocked()
}

func (e *Engine) stopLocked() {
	if sink := e.activeSink(); sink != nil {
		e.fadeOut(sink)
		sink.Stop()
	}

	e.mu.Lock()
	e.sink = nil
	e.state = Stopped
	e.learn = nil
	e.mu.Unlock()

	e.emit(Event{Kind: TrackStopped})
}

// SetVolume clamps v to [0, 1] and applies it to the active sink.
func (e *Engine) SetVolume(v float64) {
	e.cmdMu.Lock()
	defer e.cmdMu.Unlock()

	v = clamp(v, 0, 1)

	e.mu.Lock()
	e.volume = v
	sink := e.sink
	e.mu.Unlock()

	if sink != nil {
		sink.SetVolume(v)
	}

	e.emit(Event{Kind: VolumeChanged, Volume: v})
}

func (e *Engine) State() State {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.state
}

// CurrentTrack returns the last track started, which stays set after stop.
func (e *Engine) CurrentTrack() (track.Track, bool) {
	e.mu.Lock()
	defer e.mu.Unlock()

	if e.current == nil {
		return track.Track{}, false
	}
	return *e.current, true
}

// IsFinished reports whether there is nothing left to play.
func (e *Engine) IsFinished() bool {
	sink := e.activeSink()
	return sink == nil || sink.Empty()
}

func (e *Engine) Volume() float64 {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.volume
}

func (e *Engine) Position() time.Duration {
	if sink := e.activeSink(); sink != nil {
		return sink.Position()
	}
	return 0
}

// Tick reports progress of a playing track. Once the sink has drained it
// emits TrackFinished, learns the length of a track that had none and moves
// to Stopped.
func (e *Engine) Tick() {
	e.cmdMu.Lock()
	defer e.cmdMu.Unlock()

	e.mu.Lock()
	sink, state := e.sink, e.state
	e.mu.Unlock()

	if sink == nil || state != Playing {
		return
	}

	if !sink.Empty() {
		e.emit(Event{Kind: PositionChanged, Duration: sink.Position()})
		return
	}

	sink.Stop()

	e.mu.Lock()
	var observed time.Duration
	if e.learn != nil {
		observed = e.learn.elapsed(e.now())
	}
	e.sink = nil
	e.state = Stopped
	e.learn = nil
	e.mu.Unlock()

	if observed > 0 {
		e.learnDuration(observed)
	}

	finished, _ := e.CurrentTrack()
	log.Debugf("[Player] Finished %s", finished.DisplayTitle())
	e.emit(Event{Kind: TrackFinished, Track: &finished})
}

// LearnDuration feeds an observed length for the current track through
// track.LearnDuration and emits DurationLearned when the length changed.
func (e *Engine) LearnDuration(actual time.Duration) (track.Track, bool) {
	e.cmdMu.Lock()
	defer e.cmdMu.Unlock()

	return e.learnDuration(actual)
}

func (e *Engine) learnDuration(actual time.Duration) (track.Track, bool) {
	e.mu.Lock()
	if e.current == nil {
		e.mu.Unlock()
		return track.Track{}, false
	}
	changed := e.current.LearnDuration(actual)
	learned := *e.current
	e.mu.Unlock()

	if !changed {
		return learned, false
	}

	log.Infof("[Player] Learned duration %s for %s", actual.Round(time.Second), learned.DisplayTitle())
	e.emit(Event{Kind: DurationLearned, Track: &learned, Duration: actual})
	return learned, true
}

// Close stops playback without a fade, releases the output and closes the
// event stream.
func (e *Engine) Close() error {
	e.cmdMu.Lock()
	defer e.cmdMu.Unlock()

	e.mu.Lock()
	sink := e.sink
	e.sink = nil
	e.state = Stopped
	e.learn = nil
	e.mu.Unlock()

	if sink != nil {
		sink.Stop()
	}

	e.events.close()
	return e.out.Close()
}

func (e *Engine) activeSink() Sink {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.sink
}

// sinkIn returns the active sink only while the engine is in state st.
func (e *Engine) sinkIn(st State) Sink {
	e.mu.Lock()
	defer e.mu.Unlock()
	if e.state != st {
		return nil
	}
	return e.sink
}
