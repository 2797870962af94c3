package jukebox

import (
	"time"

	"cryogon/panpipe/behavior"
	"cryogon/panpipe/player"
	"cryogon/panpipe/track"

	log "github.com/sirupsen/logrus"
)

// Status is a snapshot of the player for display. Times are in seconds.
type Status struct {
	State    player.State `json:"state"`
	Track    *track.Track `json:"track,omitempty"`
	Position float64      `json:"position"`
	Duration float64      `json:"duration"`
	Volume   float64      `json:"volume"`
	Queued   int          `json:"queued"`
	Autoplay bool         `json:"autoplay"`
}

type NoticeKind string

const (
	NoticeEvent  NoticeKind = "event"
	NoticeCommit NoticeKind = "commit"
	NoticeError  NoticeKind = "error"
)

// Notice is pushed to subscribers whenever something happens.
type Notice struct {
	Kind     NoticeKind              `json:"kind"`
	Event    *player.Event           `json:"event,omitempty"`
	Session  *behavior.PlaySession   `json:"session,omitempty"`
	Behavior *behavior.TrackBehavior `json:"behavior,omitempty"`
	Error    string                  `json:"error,omitempty"`
	Status   Status                  `json:"status"`
	At       time.Time               `json:"at"`
}

// Subscribe returns a channel of notices and a function to stop receiving
// them. Notices are dropped for a subscriber whose buffer is full.
func (s *Service) Subscribe(buffer int) (<-chan Notice, func()) {
	ch := make(chan Notice, max(buffer, 1))

	s.subMu.Lock()
	id := s.nextSub
	s.nextSub++
	s.subs[id] = ch
	s.subMu.Unlock()

	cancel := func() {
		s.subMu.Lock()
		defer s.subMu.Unlock()
		if _, ok := s.subs[id]; !ok {
			return
		}
		delete(s.subs, id)
		close(ch)
	}
	return ch, cancel
}

func (s *Service) publish(n Notice) {
	n.Status = s.Status()
	n.At = s.now()

	s.subMu.Lock()
	defer s.subMu.Unlock()

	for id, ch := range s.subs {
		select {
		case ch <- n:
		default:
			log.Debugf("[Jukebox] Subscriber %d is behind, dropped %s notice", id, n.Kind)
		}
	}
}

func (s *Service) closeSubscribers() {
	s.subMu.Lock()
	defer s.subMu.Unlock()

	for id, ch := range s.subs {
		close(ch)
		delete(s.subs, id)
	}
}
