package recorder

import (
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/murmur-stt/murmur/audio"
)

// fakeSource is an in-memory audio.Source driven by the test.
type fakeSource struct {
	mu      sync.Mutex
	onChunk func([]int16)
	openErr error
	opens   int
	closes  int
}

func (f *fakeSource) Open(onChunk func(chunk []int16)) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.openErr != nil {
		return f.openErr
	}
	f.onChunk = onChunk
	f.opens++
	return nil
}

func (f *fakeSource) Close() error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.onChunk = nil
	f.closes++
	return nil
}

// deliver simulates the device callback.
func (f *fakeSource) deliver(chunk []int16) {
	f.mu.Lock()
	cb := f.onChunk
	f.mu.Unlock()
	if cb != nil {
		cb(chunk)
	}
}

func newTestSession(src *fakeSource, silence, max time.Duration, onAutoStop func(StopReason)) *Session {
	acc := audio.NewAccumulator(16000*30, 0.01)
	return NewSession(src, acc, Config{
		MaxDuration:     max,
		SilenceDuration: silence,
		PollInterval:    5 * time.Millisecond,
		OnAutoStop:      onAutoStop,
	})
}

func TestSession_EmptyStop(t *testing.T) {
	src := &fakeSource{}
	s := newTestSession(src, time.Second, 30*time.Second, nil)

	if err := s.Start(); err != nil {
		t.Fatalf("Start() error = %v", err)
	}
	snap := s.Stop()

	if snap != nil {
		t.Errorf("Stop() with no audio = %d samples, want nil", len(snap))
	}
	if src.closes != 1 {
		t.Errorf("source closes = %d, want 1", src.closes)
	}
	if s.Active() {
		t.Error("session still active after Stop")
	}
}

func TestSession_StartWhileActive(t *testing.T) {
	src := &fakeSource{}
	s := newTestSession(src, time.Second, 30*time.Second, nil)

	if err := s.Start(); err != nil {
		t.Fatalf("Start() error = %v", err)
	}
	defer s.Stop()

	// Second start is ignored, not an error, and does not reopen the source.
	if err := s.Start(); err != nil {
		t.Errorf("Start() while active = %v, want nil", err)
	}
	if src.opens != 1 {
		t.Errorf("source opens = %d, want 1", src.opens)
	}
}

func TestSession_StartError(t *testing.T) {
	src := &fakeSource{openErr: errors.New("device busy")}
	s := newTestSession(src, time.Second, 30*time.Second, nil)

	if err := s.Start(); err == nil {
		t.Fatal("Start() error = nil, want device error")
	}
	if s.Active() {
		t.Error("session active after failed Start")
	}
}

func TestSession_StopReturnsSnapshot(t *testing.T) {
	src := &fakeSource{}
	s := newTestSession(src, time.Second, 30*time.Second, nil)

	if err := s.Start(); err != nil {
		t.Fatalf("Start() error = %v", err)
	}

	src.deliver(make([]int16, 512))
	src.deliver(make([]int16, 512))
	src.deliver(make([]int16, 512))

	snap := s.Stop()
	if len(snap) != 1536 {
		t.Fatalf("Stop() = %d samples, want 1536", len(snap))
	}
	for i, v := range snap {
		if v != 0 {
			t.Fatalf("snapshot[%d] = %d, want 0", i, v)
		}
	}
}

// TestSession_SilenceAutoStop plays a voiced chunk followed by silence and
// waits for the silence watchdog to fire.
func TestSession_SilenceAutoStop(t *testing.T) {
	reasons := make(chan StopReason, 1)
	src := &fakeSource{}
	s := newTestSession(src, 80*time.Millisecond, 30*time.Second, func(r StopReason) {
		reasons <- r
	})

	if err := s.Start(); err != nil {
		t.Fatalf("Start() error = %v", err)
	}

	src.deliver([]int16{8000, -8000, 4000}) // voiced
	src.deliver(make([]int16, 512))         // then silence

	select {
	case r := <-reasons:
		if r != StopSilence {
			t.Errorf("auto-stop reason = %v, want StopSilence", r)
		}
	case <-time.After(2 * time.Second):
		t.Fatal("silence auto-stop did not fire")
	}

	snap := s.Stop()
	if len(snap) != 515 {
		t.Errorf("snapshot = %d samples, want 515", len(snap))
	}
}

// TestSession_NoVoiceSilenceImmunity: with only silence pushed, the silence
// path must never fire; only the duration cap can stop the session.
func TestSession_NoVoiceSilenceImmunity(t *testing.T) {
	reasons := make(chan StopReason, 1)
	src := &fakeSource{}
	s := newTestSession(src, 30*time.Millisecond, 200*time.Millisecond, func(r StopReason) {
		reasons <- r
	})

	if err := s.Start(); err != nil {
		t.Fatalf("Start() error = %v", err)
	}

	src.deliver(make([]int16, 512))
	src.deliver(make([]int16, 512))

	select {
	case r := <-reasons:
		if r != StopMaxDuration {
			t.Errorf("auto-stop reason = %v, want StopMaxDuration", r)
		}
	case <-time.After(2 * time.Second):
		t.Fatal("duration cap did not fire")
	}

	s.Stop()
}

func TestSession_MaxDurationBeatsSilence(t *testing.T) {
	reasons := make(chan StopReason, 1)
	src := &fakeSource{}
	// Both limits already expired by the first poll; duration must win.
	s := newTestSession(src, time.Nanosecond, time.Nanosecond, func(r StopReason) {
		reasons <- r
	})

	if err := s.Start(); err != nil {
		t.Fatalf("Start() error = %v", err)
	}
	src.deliver([]int16{8000})

	select {
	case r := <-reasons:
		if r != StopMaxDuration {
			t.Errorf("auto-stop reason = %v, want StopMaxDuration", r)
		}
	case <-time.After(2 * time.Second):
		t.Fatal("watchdog did not fire")
	}

	s.Stop()
}

func TestSession_Restart(t *testing.T) {
	src := &fakeSource{}
	s := newTestSession(src, time.Second, 30*time.Second, nil)

	if err := s.Start(); err != nil {
		t.Fatalf("first Start() error = %v", err)
	}
	src.deliver([]int16{1, 2, 3})
	if got := len(s.Stop()); got != 3 {
		t.Fatalf("first snapshot = %d samples, want 3", got)
	}

	// A new session starts from a clean accumulator.
	if err := s.Start(); err != nil {
		t.Fatalf("second Start() error = %v", err)
	}
	src.deliver([]int16{4})
	snap := s.Stop()
	if len(snap) != 1 || snap[0] != 4 {
		t.Errorf("second snapshot = %v, want [4]", snap)
	}
}
