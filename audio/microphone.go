package audio

import (
	"fmt"
	"sync"

	"github.com/gordonklaus/portaudio"
)

// Microphone captures mono 16-bit PCM from the default input device using
// PortAudio. It delivers fixed-size chunks to the callback registered via
// Open until Close is called.
type Microphone struct {
	sampleRate int
	frames     int

	mu     sync.Mutex
	stream *portaudio.Stream
}

// NewMicrophone creates a microphone source. Zero values select
// DefaultSampleRate and DefaultFramesPerChunk.
func NewMicrophone(sampleRate, framesPerChunk int) *Microphone {
	if sampleRate <= 0 {
		sampleRate = DefaultSampleRate
	}
	if framesPerChunk <= 0 {
		framesPerChunk = DefaultFramesPerChunk
	}
	return &Microphone{sampleRate: sampleRate, frames: framesPerChunk}
}

// Open initializes PortAudio and starts the input stream. onChunk runs on
// the audio callback goroutine and must not block; the chunk slice is
// reused between invocations.
func (m *Microphone) Open(onChunk func(chunk []int16)) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.stream != nil {
		return ErrAlreadyOpen
	}

	if err := portaudio.Initialize(); err != nil {
		return fmt.Errorf("initialize portaudio: %w", err)
	}

	stream, err := portaudio.OpenDefaultStream(1, 0, float64(m.sampleRate), m.frames,
		func(in []int16) {
			onChunk(in)
		})
	if err != nil {
		_ = portaudio.Terminate()
		return fmt.Errorf("open input stream: %w", err)
	}

	if err := stream.Start(); err != nil {
		_ = stream.Close()
		_ = portaudio.Terminate()
		return fmt.Errorf("start input stream: %w", err)
	}

	m.stream = stream
	return nil
}

// Close stops the stream and tears down PortAudio. After Close returns, the
// callback is guaranteed not to be invoked again. Closing a closed
// microphone is a no-op.
func (m *Microphone) Close() error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.stream == nil {
		return nil
	}

	err := m.stream.Stop()
	if cerr := m.stream.Close(); err == nil {
		err = cerr
	}
	m.stream = nil

	if terr := portaudio.Terminate(); err == nil {
		err = terr
	}
	return err
}

// SampleRate returns the configured sample rate.
func (m *Microphone) SampleRate() int {
	return m.sampleRate
}
