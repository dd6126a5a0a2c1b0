// Package recorder governs the lifetime of one recording attempt: opening
// the audio source, feeding the accumulator, and auto-stopping on silence
// or the maximum-duration cap.
package recorder

import (
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/murmur-stt/murmur/audio"
)

// StopReason reports why a session ended.
type StopReason int

const (
	StopManual StopReason = iota
	StopMaxDuration
	StopSilence
)

func (r StopReason) String() string {
	switch r {
	case StopManual:
		return "manual"
	case StopMaxDuration:
		return "max-duration"
	case StopSilence:
		return "silence"
	default:
		return "unknown"
	}
}

type sessionState int

const (
	stateIdle sessionState = iota
	stateActive
	stateStopping
)

// DefaultPollInterval is the watchdog poll period. Auto-stop latency is
// bounded by this plus one audio-callback period.
const DefaultPollInterval = 25 * time.Millisecond

// Config holds session tunables.
type Config struct {
	MaxDuration     time.Duration // absolute cap on one recording
	SilenceDuration time.Duration // silence after last voice that stops the session
	PollInterval    time.Duration // watchdog period, DefaultPollInterval if zero

	// OnAutoStop is invoked once from the watchdog goroutine when either
	// limit trips. It must not call Stop directly; post a request to the
	// owning control loop instead.
	OnAutoStop func(reason StopReason)
}

// Session owns one recording attempt at a time: Idle -> Active -> Stopping
// -> Idle. Start and Stop must be serialized by the caller (the app control
// loop); the watchdog goroutine and the audio callback run concurrently and
// synchronize through the accumulator's lock.
type Session struct {
	src audio.Source
	acc *audio.Accumulator
	cfg Config

	mu      sync.Mutex
	state   sessionState
	started time.Time
	quit    chan struct{}
	wg      sync.WaitGroup
}

// NewSession creates a session over the given source and accumulator.
func NewSession(src audio.Source, acc *audio.Accumulator, cfg Config) *Session {
	if cfg.PollInterval <= 0 {
		cfg.PollInterval = DefaultPollInterval
	}
	return &Session{src: src, acc: acc, cfg: cfg}
}

// Start begins recording. Valid only from Idle; calling it while a session
// is active is a no-op. It clears the accumulator (which also resets the
// voice state), opens the source, and launches the watchdog.
func (s *Session) Start() error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.state != stateIdle {
		slog.Debug("start ignored, session not idle")
		return nil
	}

	s.acc.Clear()

	if err := s.src.Open(s.acc.Push); err != nil {
		return fmt.Errorf("open audio source: %w", err)
	}

	s.state = stateActive
	s.started = time.Now()
	s.quit = make(chan struct{})

	s.wg.Add(1)
	go s.watchdog(s.quit, s.started)

	return nil
}

// Stop ends the recording and returns the final snapshot (possibly empty).
// The snapshot is taken only after the source is closed and the watchdog
// has exited, so no chunk can arrive after it. Stop from Idle returns nil.
func (s *Session) Stop() []int16 {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.state != stateActive {
		return nil
	}
	s.state = stateStopping

	if err := s.src.Close(); err != nil {
		slog.Error("close audio source", "error", err)
	}

	close(s.quit)
	s.wg.Wait()

	snap := s.acc.Snapshot()
	s.state = stateIdle
	return snap
}

// Active reports whether a recording is in progress.
func (s *Session) Active() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.state == stateActive
}

// Elapsed returns how long the current recording has been running, or zero
// when idle.
func (s *Session) Elapsed() time.Duration {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.state != stateActive {
		return 0
	}
	return time.Since(s.started)
}

// watchdog polls until a stop limit trips or the session is stopped. The
// duration cap is checked first: it is the absolute safety limit, so it
// wins when both conditions become true in the same poll.
func (s *Session) watchdog(quit chan struct{}, started time.Time) {
	defer s.wg.Done()

	ticker := time.NewTicker(s.cfg.PollInterval)
	defer ticker.Stop()

	for {
		select {
		case <-quit:
			return
		case now := <-ticker.C:
			if now.Sub(started) >= s.cfg.MaxDuration {
				s.notify(StopMaxDuration)
				return
			}
			if d, ok := s.acc.SilentFor(now); ok && d > s.cfg.SilenceDuration {
				s.notify(StopSilence)
				return
			}
		}
	}
}

func (s *Session) notify(reason StopReason) {
	slog.Info("auto-stop", "reason", reason.String())
	if s.cfg.OnAutoStop != nil {
		s.cfg.OnAutoStop(reason)
	}
}
