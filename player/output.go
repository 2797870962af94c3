package player

import (
	"fmt"
	"os"
	"time"

	"cryogon/panpipe/track"

	"github.com/gopxl/beep"
	"github.com/gopxl/beep/flac"
	"github.com/gopxl/beep/mp3"
	"github.com/gopxl/beep/vorbis"
	"github.com/gopxl/beep/wav"
)

// Output is the process-wide audio device. It is opened once and handed to
// a single Engine, which closes it on shutdown.
type Output interface {
	// NewSink starts playing s. The returned sink starts silent; the caller
	// raises the volume.
	NewSink(s beep.StreamSeekCloser, format beep.Format) (Sink, error)
	Close() error
}

// Sink is one playing stream on an Output.
type Sink interface {
	SetVolume(v float64)
	Volume() float64
	Pause()
	Play()
	// Stop silences the sink for good and releases the stream.
	Stop()
	// Empty reports whether the stream has played out or was stopped.
	Empty() bool
	Position() time.Duration
}

// decode opens t.Path and picks a decoder from the file extension. The
// file is owned by the returned streamer.
func decode(t track.Track) (beep.StreamSeekCloser, beep.Format, error) {
	f, err := os.Open(t.Path)
	if err != nil {
		return nil, beep.Format{}, &PlaybackError{Op: "open", Path: t.Path, Err: fmt.Errorf("%w: %v", ErrOpenFailed, err)}
	}

	var (
		streamer beep.StreamSeekCloser
		format   beep.Format
	)
	switch t.Format {
	case track.FormatMP3:
		streamer, format, err = mp3.Decode(f)
	case track.FormatWAV:
		streamer, format, err = wav.Decode(f)
	case track.FormatFLAC:
		streamer, format, err = flac.Decode(f)
	case track.FormatOGG:
		streamer, format, err = vorbis.Decode(f)
	default:
		f.Close()
		return nil, beep.Format{}, &PlaybackError{Op: "decode", Path: t.Path, Err: fmt.Errorf("%w: %s", ErrUnsupportedFormat, t.Format)}
	}
	if err != nil {
		f.Close()
		return nil, beep.Format{}, &PlaybackError{Op: "decode", Path: t.Path, Err: fmt.Errorf("%w: %v", ErrDecodeFailed, err)}
	}

	return streamer, format, nil
}
