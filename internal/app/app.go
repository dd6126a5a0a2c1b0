// Package app coordinates recording, transcription, and output behind a
// single control loop.
package app

import (
	"context"
	"errors"
	"log/slog"
	"os"
	"path/filepath"
	"sync"
	"sync/atomic"
	"time"

	"github.com/murmur-stt/murmur/audio"
	"github.com/murmur-stt/murmur/config"
	"github.com/murmur-stt/murmur/history"
	"github.com/murmur-stt/murmur/output"
	"github.com/murmur-stt/murmur/recorder"
	"github.com/murmur-stt/murmur/stt"
)

// State is the application lifecycle state.
type State int32

const (
	StateReady State = iota
	StateRecording
	StateTranscribing
	StateError
)

func (s State) String() string {
	switch s {
	case StateReady:
		return "Ready"
	case StateRecording:
		return "Recording"
	case StateTranscribing:
		return "Transcribing"
	case StateError:
		return "Error"
	default:
		return "Unknown"
	}
}

// DefaultErrorRecovery is how long the Error state is shown before the
// controller returns to Ready.
const DefaultErrorRecovery = 3 * time.Second

// Observers receives state-machine notifications. All callbacks are invoked
// from the control loop goroutine and must return quickly. Nil fields are
// skipped.
type Observers struct {
	// OnStateChanged fires on every transition.
	OnStateChanged func(old, now State)

	// OnStatus receives the short user-facing status line ("Ready",
	// "Recording...", "Transcribing...", "Error").
	OnStatus func(status string)

	// OnHint receives transient messages that do not change state, such as
	// "No audio" after an empty recording.
	OnHint func(hint string)
}

type requestKind int

const (
	reqStart requestKind = iota
	reqStop
	reqResult
	reqRecover
)

type request struct {
	kind   requestKind
	reason recorder.StopReason

	// reqResult payload
	result   *stt.Result
	err      error
	samples  int
	duration time.Duration
}

// Controller is the application state machine. All transitions happen on
// the Run goroutine; external callers interact through RequestStart and
// RequestStop, which never block.
type Controller struct {
	cfg      *config.Config
	session  *recorder.Session
	provider stt.Provider
	sinks    *output.Router
	hist     *history.Store // nil when history is disabled
	obs      Observers

	recovery time.Duration
	state    atomic.Int32

	requests chan request
	quit     chan struct{}
	quitOnce sync.Once
	done     chan struct{}
	wg       sync.WaitGroup
}

// New wires a Controller over the given audio source and speech provider.
// hist may be nil.
func New(cfg *config.Config, src audio.Source, provider stt.Provider, sinks *output.Router, hist *history.Store, obs Observers) *Controller {
	c := &Controller{
		cfg:      cfg,
		provider: provider,
		sinks:    sinks,
		hist:     hist,
		obs:      obs,
		recovery: DefaultErrorRecovery,
		requests: make(chan request, 16),
		quit:     make(chan struct{}),
		done:     make(chan struct{}),
	}

	acc := audio.NewAccumulator(cfg.MaxBufferSamples(), cfg.SilenceThreshold)
	c.session = recorder.NewSession(src, acc, recorder.Config{
		MaxDuration:     cfg.RecordingCap(),
		SilenceDuration: cfg.SilenceWindow(),
		OnAutoStop: func(reason recorder.StopReason) {
			c.post(request{kind: reqStop, reason: reason})
		},
	})

	return c
}

// State returns the current state. Safe from any goroutine.
func (c *Controller) State() State {
	return State(c.state.Load())
}

// RequestStart asks the control loop to begin recording. Ignored unless the
// controller is Ready.
func (c *Controller) RequestStart() {
	c.post(request{kind: reqStart})
}

// RequestStop asks the control loop to stop recording and transcribe.
// Ignored unless the controller is Recording.
func (c *Controller) RequestStop() {
	c.post(request{kind: reqStop, reason: recorder.StopManual})
}

// RequestQuit asks the control loop to shut down. Valid from any state and
// safe to call more than once.
func (c *Controller) RequestQuit() {
	c.quitOnce.Do(func() { close(c.quit) })
}

// post enqueues a request without blocking. The queue is sized for human
// input rates; overflow means the caller is spamming and the request is
// dropped.
func (c *Controller) post(r request) {
	select {
	case c.requests <- r:
	case <-c.done:
	default:
		slog.Debug("request dropped, queue full", "kind", r.kind)
	}
}

// Run executes the control loop until ctx is cancelled. On return every
// recording and transcription worker has been joined.
func (c *Controller) Run(ctx context.Context) {
	c.setState(StateReady)
	c.status("Ready")

	for {
		select {
		case <-ctx.Done():
			c.shutdown()
			return
		case <-c.quit:
			c.shutdown()
			return
		case r := <-c.requests:
			c.handle(ctx, r)
		}
	}
}

func (c *Controller) handle(ctx context.Context, r request) {
	switch r.kind {
	case reqStart:
		c.handleStart()
	case reqStop:
		c.handleStop(ctx, r.reason)
	case reqResult:
		c.handleResult(r)
	case reqRecover:
		if c.State() == StateError {
			c.setState(StateReady)
			c.status("Ready")
		}
	}
}

func (c *Controller) handleStart() {
	if c.State() != StateReady {
		slog.Debug("start ignored", "state", c.State().String())
		return
	}
	if err := c.session.Start(); err != nil {
		c.fail(err)
		return
	}
	c.setState(StateRecording)
	c.status("Recording...")
}

func (c *Controller) handleStop(ctx context.Context, reason recorder.StopReason) {
	if c.State() != StateRecording {
		slog.Debug("stop ignored", "state", c.State().String())
		return
	}

	elapsed := c.session.Elapsed()
	snap := c.session.Stop()
	slog.Info("recording stopped",
		"reason", reason.String(), "samples", len(snap), "elapsed", elapsed)

	if len(snap) == 0 {
		c.hint("No audio")
		c.status("Ready")
		c.setState(StateReady)
		return
	}

	if c.cfg.DebugWAVDir != "" {
		c.dumpWAV(snap)
	}

	c.setState(StateTranscribing)
	c.status("Transcribing...")

	c.wg.Add(1)
	go c.transcribe(ctx, snap, reason, elapsed)
}

// dumpWAV writes the snapshot to the debug directory for offline listening.
func (c *Controller) dumpWAV(pcm []int16) {
	if err := os.MkdirAll(c.cfg.DebugWAVDir, 0755); err != nil {
		slog.Warn("create debug wav dir", "error", err)
		return
	}
	name := time.Now().Format("20060102-150405.000") + ".wav"
	path := filepath.Join(c.cfg.DebugWAVDir, name)
	if err := os.WriteFile(path, stt.EncodeWAV(pcm, c.cfg.SampleRate), 0644); err != nil {
		slog.Warn("write debug wav", "path", path, "error", err)
		return
	}
	slog.Debug("debug wav written", "path", path)
}

// transcribe runs off the control loop and reports back through the request
// queue. The send selects on done so a worker finishing after shutdown does
// not leak.
func (c *Controller) transcribe(ctx context.Context, pcm []int16, reason recorder.StopReason, elapsed time.Duration) {
	defer c.wg.Done()

	res, err := c.provider.Transcribe(ctx, pcm, c.cfg.Language)
	r := request{
		kind:     reqResult,
		reason:   reason,
		result:   res,
		err:      err,
		samples:  len(pcm),
		duration: elapsed,
	}
	select {
	case c.requests <- r:
	case <-c.done:
	}
}

func (c *Controller) handleResult(r request) {
	if c.State() != StateTranscribing {
		return
	}
	if r.err != nil {
		// Empty output and engine failure are one error class here; both
		// show Error briefly and recover on their own.
		if errors.Is(r.err, stt.ErrNoSpeech) {
			c.hint("No speech recognized")
		}
		c.fail(r.err)
		return
	}

	slog.Info("transcription complete",
		"chars", len(r.result.Text), "language", r.result.Language)
	c.sinks.Write(r.result.Text)

	if c.hist != nil {
		entry := &history.Entry{
			Text:     r.result.Text,
			Language: r.result.Language,
			Samples:  r.samples,
			Duration: r.duration,
			Reason:   r.reason.String(),
		}
		if err := c.hist.Save(entry); err != nil {
			slog.Warn("save history entry", "error", err)
		}
	}

	c.setState(StateReady)
	c.status("Ready")
}

// fail enters the Error state and schedules automatic recovery. The recover
// request must not be dropped on a full queue, or the controller would stay
// in Error forever; the timer goroutine blocks until the loop takes it.
func (c *Controller) fail(err error) {
	slog.Error("entering error state", "error", err)
	c.setState(StateError)
	c.status("Error")

	time.AfterFunc(c.recovery, func() {
		select {
		case c.requests <- request{kind: reqRecover}:
		case <-c.done:
		}
	})
}

// shutdown stops any active recording and joins the transcription workers.
func (c *Controller) shutdown() {
	if c.State() == StateRecording {
		c.session.Stop()
	}
	close(c.done)
	c.wg.Wait()
}

func (c *Controller) setState(s State) {
	old := State(c.state.Swap(int32(s)))
	if old != s && c.obs.OnStateChanged != nil {
		c.obs.OnStateChanged(old, s)
	}
}

func (c *Controller) status(s string) {
	if c.obs.OnStatus != nil {
		c.obs.OnStatus(s)
	}
}

func (c *Controller) hint(s string) {
	if c.obs.OnHint != nil {
		c.obs.OnHint(s)
	}
}
