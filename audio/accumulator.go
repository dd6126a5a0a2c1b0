package audio

import (
	"sync"
	"time"
)

// Accumulator absorbs streaming audio chunks from the capture callback and
// exposes a stable snapshot for transcription. It bounds memory with a
// sliding window: when an append would exceed the cap, the oldest samples
// are evicted first, so the buffer always holds the most recent audio.
//
// It also tracks voice activity inline: a chunk whose peak normalized
// amplitude exceeds the silence threshold refreshes the last-voice
// timestamp. Buffer and voice state share one mutex; they are the only
// state touched by more than one goroutine.
type Accumulator struct {
	mu        sync.Mutex
	samples   []int16
	max       int
	threshold float32
	lastVoice time.Time // zero until the first voiced chunk
}

// NewAccumulator creates an accumulator holding at most maxSamples samples.
// silenceThreshold is the normalized amplitude (0-1) above which a chunk
// counts as voiced.
func NewAccumulator(maxSamples int, silenceThreshold float32) *Accumulator {
	return &Accumulator{
		max:       maxSamples,
		threshold: silenceThreshold,
	}
}

// Push appends a chunk, evicting the oldest samples if the cap would be
// exceeded. Safe to call from the real-time capture callback: the critical
// section is O(len(chunk)) and performs no I/O.
func (a *Accumulator) Push(chunk []int16) {
	if len(chunk) == 0 {
		return
	}
	peak := Peak(chunk)

	a.mu.Lock()
	defer a.mu.Unlock()

	n := len(chunk)
	if n >= a.max {
		// Chunk alone exceeds the cap; keep only its tail.
		a.samples = append(a.samples[:0], chunk[n-a.max:]...)
	} else {
		if over := len(a.samples) + n - a.max; over > 0 {
			a.samples = a.samples[:copy(a.samples, a.samples[over:])]
		}
		a.samples = append(a.samples, chunk...)
	}

	if peak > a.threshold {
		a.lastVoice = time.Now()
	}
}

// Snapshot returns a copy of the buffered samples. It does not clear the
// buffer and is safe to call from any goroutine.
func (a *Accumulator) Snapshot() []int16 {
	a.mu.Lock()
	defer a.mu.Unlock()

	if len(a.samples) == 0 {
		return nil
	}
	out := make([]int16, len(a.samples))
	copy(out, a.samples)
	return out
}

// Clear empties the buffer, releases its backing storage, and resets the
// voice state to "no voice yet". Called at the start of each session and
// after a snapshot has been handed off.
func (a *Accumulator) Clear() {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.samples = nil
	a.lastVoice = time.Time{}
}

// Len returns the number of buffered samples.
func (a *Accumulator) Len() int {
	a.mu.Lock()
	defer a.mu.Unlock()
	return len(a.samples)
}

// LastVoice returns the time of the most recent voiced chunk. ok is false
// if no chunk has exceeded the threshold since the last Clear.
func (a *Accumulator) LastVoice() (t time.Time, ok bool) {
	a.mu.Lock()
	defer a.mu.Unlock()
	if a.lastVoice.IsZero() {
		return time.Time{}, false
	}
	return a.lastVoice, true
}

// SilentFor returns how long the input has been silent as of now. ok is
// false if no voiced chunk has been observed yet, in which case
// silence-based auto-stop must not fire.
func (a *Accumulator) SilentFor(now time.Time) (d time.Duration, ok bool) {
	a.mu.Lock()
	defer a.mu.Unlock()
	if a.lastVoice.IsZero() {
		return 0, false
	}
	return now.Sub(a.lastVoice), true
}

// Peak returns the peak normalized amplitude of a chunk (0-1).
func Peak(chunk []int16) float32 {
	var max float32
	for _, s := range chunk {
		a := float32(s)
		if a < 0 {
			a = -a
		}
		a /= 32768.0
		if a > max {
			max = a
		}
	}
	return max
}
