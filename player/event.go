package player

import (
	"fmt"
	"sync"
	"time"

	"cryogon/panpipe/track"

	log "github.com/sirupsen/logrus"
)

// State is the engine's playback state.
type State int

const (
	Stopped State = iota
	Playing
	Paused
)

func (s State) String() string {
	switch s {
	case Stopped:
		return "stopped"
	case Playing:
		return "playing"
	case Paused:
		return "paused"
	default:
		return fmt.Sprintf("state(%d)", int(s))
	}
}

func (s State) MarshalText() ([]byte, error) {
	return []byte(s.String()), nil
}

func (s *State) UnmarshalText(text []byte) error {
	for _, st := range []State{Stopped, Playing, Paused} {
		if st.String() == string(text) {
			*s = st
			return nil
		}
	}
	return fmt.Errorf("unknown playback state %q", text)
}

type EventKind int

const (
	TrackStarted EventKind = iota
	TrackPaused
	TrackResumed
	TrackStopped
	TrackFinished
	DurationLearned
	PositionChanged
	VolumeChanged
	PlaybackFailed
)

var eventNames = map[EventKind]string{
	TrackStarted:    "track_started",
	TrackPaused:     "track_paused",
	TrackResumed:    "track_resumed",
	TrackStopped:    "track_stopped",
	TrackFinished:   "track_finished",
	DurationLearned: "duration_learned",
	PositionChanged: "position_changed",
	VolumeChanged:   "volume_changed",
	PlaybackFailed:  "error",
}

func (k EventKind) String() string {
	if name, ok := eventNames[k]; ok {
		return name
	}
	return fmt.Sprintf("event(%d)", int(k))
}

func (k EventKind) MarshalText() ([]byte, error) {
	return []byte(k.String()), nil
}

func (k *EventKind) UnmarshalText(text []byte) error {
	for kind, name := range eventNames {
		if name == string(text) {
			*k = kind
			return nil
		}
	}
	return fmt.Errorf("unknown event kind %q", text)
}

// Event is emitted by the engine. Which fields are set depends on Kind:
// Track for started/finished/duration_learned, Duration for
// duration_learned and position_changed, Volume for volume_changed and
// Message for error.
type Event struct {
	Kind     EventKind     `json:"kind"`
	Track    *track.Track  `json:"track,omitempty"`
	Duration time.Duration `json:"duration,omitempty"`
	Volume   float64       `json:"volume,omitempty"`
	Message  string        `json:"message,omitempty"`
	At       time.Time     `json:"at"`
}

// eventQueue is an unbounded FIFO between the engine and whoever reads
// Events(). push never blocks on a slow reader.
type eventQueue struct {
	in     chan Event
	out    chan Event
	done   chan struct{}
	closed sync.Once
}

func newEventQueue() *eventQueue {
	q := &eventQueue{
		in:   make(chan Event),
		out:  make(chan Event),
		done: make(chan struct{}),
	}
	go q.run()
	return q
}

func (q *eventQueue) run() {
	defer close(q.out)

	var pending []Event
	for {
		var out chan Event
		var next Event
		if len(pending) > 0 {
			out = q.out
			next = pending[0]
		}

		select {
		case ev := <-q.in:
			pending = append(pending, ev)
		case out <- next:
			pending[0] = Event{}
			pending = pending[1:]
		case <-q.done:
			if len(pending) > 0 {
				log.Debugf("[Player] Dropping %d undelivered events", len(pending))
			}
			return
		}
	}
}

func (q *eventQueue) push(ev Event) {
	select {
	case q.in <- ev:
	case <-q.done:
		log.Debugf("[Player] Event %s after close, dropped", ev.Kind)
	}
}

func (q *eventQueue) close() {
	q.closed.Do(func() { close(q.done) })
}
