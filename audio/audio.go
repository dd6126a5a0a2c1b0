// Package audio provides microphone capture and thread-safe sample
// accumulation for the recording pipeline.
package audio

import "errors"

// ErrAlreadyOpen is returned when trying to open a source that is already open.
var ErrAlreadyOpen = errors.New("audio source already open")

// ErrNoDevice is returned when no input device is available.
var ErrNoDevice = errors.New("no audio input device found")

const (
	// DefaultSampleRate is the capture rate expected by Whisper models.
	DefaultSampleRate = 16000

	// DefaultFramesPerChunk is the number of samples delivered per
	// callback invocation (32ms at 16kHz).
	DefaultFramesPerChunk = 512
)

// Source delivers fixed-size chunks of mono 16-bit PCM samples via a
// callback until closed. The chunk slice is only valid for the duration
// of the callback; implementations may reuse it.
type Source interface {
	Open(onChunk func(chunk []int16)) error
	Close() error
}
