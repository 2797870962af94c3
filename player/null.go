package player

import (
	"sync"
	"time"

	"github.com/gopxl/beep"
	log "github.com/sirupsen/logrus"
)

// NullOutput plays nothing. Its sinks advance with the wall clock and drain
// after the stream's length, so sessions behave as if audio were playing on
// machines without a sound device.
type NullOutput struct {
	now func() time.Time
}

func NewNullOutput() *NullOutput {
	return &NullOutput{now: time.Now}
}

func (o *NullOutput) NewSink(s beep.StreamSeekCloser, format beep.Format) (Sink, error) {
	return &nullSink{
		streamer: s,
		length:   format.SampleRate.D(s.Len()),
		now:      o.now,
		since:    o.now(),
	}, nil
}

func (o *NullOutput) Close() error { return nil }

type nullSink struct {
	mu       sync.Mutex
	streamer beep.StreamSeekCloser
	length   time.Duration
	now      func() time.Time

	volume  float64
	played  time.Duration
	since   time.Time
	paused  bool
	stopped bool
}

func (s *nullSink) SetVolume(v float64) {
	s.mu.Lock()
	s.volume = v
	s.mu.Unlock()
}

func (s *nullSink) Volume() float64 {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.volume
}

func (s *nullSink) Pause() {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.paused || s.stopped {
		return
	}
	s.played += s.now().Sub(s.since)
	s.paused = true
}

func (s *nullSink) Play() {
	s.mu.Lock()
	defer s.mu.Unlock()

	if !s.paused || s.stopped {
		return
	}
	s.since = s.now()
	s.paused = false
}

func (s *nullSink) Stop() {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.stopped {
		return
	}
	s.stopped = true
	if err := s.streamer.Close(); err != nil {
		log.Warnf("[Player] Closing stream: %v", err)
	}
}

func (s *nullSink) Empty() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.stopped || s.elapsed() >= s.length
}

func (s *nullSink) Position() time.Duration {
	s.mu.Lock()
	defer s.mu.Unlock()
	return min(s.elapsed(), s.length)
}

func (s *nullSink) elapsed() time.Duration {
	if s.paused || s.stopped {
		return s.played
	}
	return s.played + s.now().Sub(s.since)
}
