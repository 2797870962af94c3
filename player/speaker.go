package player

import (
	"sync"
	"time"

	"github.com/gopxl/beep"
	"github.com/gopxl/beep/effects"
	"github.com/gopxl/beep/speaker"
	log "github.com/sirupsen/logrus"
)

// SpeakerOutput plays through the system audio device. Every stream is
// resampled to one device rate.
type SpeakerOutput struct {
	mu          sync.Mutex
	sampleRate  beep.SampleRate
	initialized bool
}

func NewSpeakerOutput(sampleRate int) *SpeakerOutput {
	return &SpeakerOutput{sampleRate: beep.SampleRate(sampleRate)}
}

func (o *SpeakerOutput) init() error {
	o.mu.Lock()
	defer o.mu.Unlock()

	if o.initialized {
		return nil
	}

	if err := speaker.Init(o.sampleRate, o.sampleRate.N(time.Second/10)); err != nil {
		return err
	}
	o.initialized = true
	log.Infof("[Player] Speaker initialized at %d Hz", o.sampleRate)
	return nil
}

func (o *SpeakerOutput) NewSink(s beep.StreamSeekCloser, format beep.Format) (Sink, error) {
	if err := o.init(); err != nil {
		return nil, err
	}

	var resampled beep.Streamer = s
	if format.SampleRate != o.sampleRate {
		resampled = beep.Resample(4, format.SampleRate, o.sampleRate, s)
	}

	sink := &speakerSink{
		streamer: s,
		format:   format,
		ctrl:     &beep.Ctrl{Streamer: resampled},
		done:     make(chan struct{}),
	}
	// Gain is added to 1, so -1 is silence and 0 is unity.
	sink.gain = &effects.Gain{Streamer: sink.ctrl, Gain: -1}

	speaker.Play(beep.Seq(sink.gain, beep.Callback(func() {
		close(sink.done)
	})))

	return sink, nil
}

func (o *SpeakerOutput) Close() error {
	o.mu.Lock()
	defer o.mu.Unlock()

	if o.initialized {
		speaker.Clear()
		speaker.Close()
		o.initialized = false
	}
	return nil
}

type speakerSink struct {
	streamer beep.StreamSeekCloser
	format   beep.Format
	ctrl     *beep.Ctrl
	gain     *effects.Gain
	done     chan struct{}

	// guarded by the speaker lock
	volume  float64
	stopped bool
}

func (s *speakerSink) SetVolume(v float64) {
	speaker.Lock()
	s.volume = v
	s.gain.Gain = v - 1
	speaker.Unlock()
}

func (s *speakerSink) Volume() float64 {
	speaker.Lock()
	defer speaker.Unlock()
	return s.volume
}

func (s *speakerSink) Pause() {
	speaker.Lock()
	s.ctrl.Paused = true
	speaker.Unlock()
}

func (s *speakerSink) Play() {
	speaker.Lock()
	s.ctrl.Paused = false
	speaker.Unlock()
}

func (s *speakerSink) Stop() {
	speaker.Lock()
	if s.stopped {
		speaker.Unlock()
		return
	}
	s.stopped = true
	s.ctrl.Streamer = nil
	speaker.Unlock()

	if err := s.streamer.Close(); err != nil {
		log.Warnf("[Player] Closing stream: %v", err)
	}
}

func (s *speakerSink) Empty() bool {
	select {
	case <-s.done:
		return true
	default:
	}

	speaker.Lock()
	defer speaker.Unlock()
	return s.stopped
}

func (s *speakerSink) Position() time.Duration {
	speaker.Lock()
	defer speaker.Unlock()

	if s.stopped {
		return 0
	}
	return s.format.SampleRate.D(s.streamer.Position())
}
