package player

import "time"

const (
	fadeInSteps       = 10
	fadeOutSteps      = 15
	quickFadeSteps    = 10
	quickFadeDuration = 100 * time.Millisecond
)

// ramp moves the sink volume from one level to another in equal steps,
// sleeping between them. The last write is exactly `to`.
func ramp(s Sink, from, to float64, steps int, d time.Duration, sleep func(time.Duration)) {
	lo, hi := min(from, to), max(from, to)
	step := (to - from) / float64(steps)
	pause := d / time.Duration(steps)

	for i := 1; i <= steps; i++ {
		s.SetVolume(clamp(from+step*float64(i), lo, hi))
		sleep(pause)
	}
	s.SetVolume(to)
}

func (e *Engine) fadeIn(s Sink, target float64) {
	if e.fadeInDuration <= 0 {
		s.SetVolume(target)
		return
	}
	s.SetVolume(0)
	ramp(s, 0, target, fadeInSteps, e.fadeInDuration, e.sleep)
}

// fadeOut does nothing with a zero fade-out duration; the sink keeps its
// volume until it is stopped.
func (e *Engine) fadeOut(s Sink) {
	if e.fadeOutDuration <= 0 {
		return
	}
	ramp(s, s.Volume(), 0, fadeOutSteps, e.fadeOutDuration, e.sleep)
}

// fadeOutQuick is used before pausing and ignores the configured duration.
func (e *Engine) fadeOutQuick(s Sink) {
	ramp(s, s.Volume(), 0, quickFadeSteps, quickFadeDuration, e.sleep)
}

func clamp(v, lo, hi float64) float64 {
	return max(lo, min(v, hi))
}
