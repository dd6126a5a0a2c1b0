package app

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/murmur-stt/murmur/config"
	"github.com/murmur-stt/murmur/output"
	"github.com/murmur-stt/murmur/stt"
)

type fakeSource struct {
	mu      sync.Mutex
	onChunk func([]int16)
	opens   int
	openErr error
}

func (f *fakeSource) Open(onChunk func([]int16)) error {
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
	return nil
}

func (f *fakeSource) deliver(chunk []int16) {
	f.mu.Lock()
	cb := f.onChunk
	f.mu.Unlock()
	if cb != nil {
		cb(chunk)
	}
}

func (f *fakeSource) setOpenErr(err error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.openErr = err
}

func (f *fakeSource) openCount() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.opens
}

type fakeProvider struct {
	mu      sync.Mutex
	result  *stt.Result
	err     error
	calls   int
	release chan struct{} // when non-nil, Transcribe blocks until closed
}

func (f *fakeProvider) Name() string  { return "fake" }
func (f *fakeProvider) IsReady() bool { return true }
func (f *fakeProvider) Close() error  { return nil }

func (f *fakeProvider) Transcribe(ctx context.Context, pcm []int16, language string) (*stt.Result, error) {
	f.mu.Lock()
	f.calls++
	release := f.release
	res, err := f.result, f.err
	f.mu.Unlock()

	if release != nil {
		select {
		case <-release:
		case <-ctx.Done():
			return nil, ctx.Err()
		}
	}
	return res, err
}

func (f *fakeProvider) callCount() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.calls
}

type captureSink struct {
	mu  sync.Mutex
	got []string
}

func (s *captureSink) Name() string { return "capture" }

func (s *captureSink) Write(text string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.got = append(s.got, text)
	return nil
}

func (s *captureSink) texts() []string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]string(nil), s.got...)
}

type hintLog struct {
	mu    sync.Mutex
	hints []string
}

func (h *hintLog) add(hint string) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.hints = append(h.hints, hint)
}

func (h *hintLog) contains(want string) bool {
	h.mu.Lock()
	defer h.mu.Unlock()
	for _, hint := range h.hints {
		if hint == want {
			return true
		}
	}
	return false
}

func testConfig() *config.Config {
	cfg := config.Default()
	cfg.MaxDuration = 1
	cfg.SilenceDuration = 0.05
	return cfg
}

type fixture struct {
	ctrl   *Controller
	src    *fakeSource
	prov   *fakeProvider
	sink   *captureSink
	hints  *hintLog
	cancel context.CancelFunc
	ran    chan struct{}
}

func newFixture(t *testing.T, cfg *config.Config, prov *fakeProvider) *fixture {
	t.Helper()

	f := &fixture{
		src:   &fakeSource{},
		prov:  prov,
		sink:  &captureSink{},
		hints: &hintLog{},
	}
	f.ctrl = New(cfg, f.src, f.prov, output.NewRouter(f.sink), nil, Observers{
		OnHint: f.hints.add,
	})
	f.ctrl.recovery = 50 * time.Millisecond

	ctx, cancel := context.WithCancel(context.Background())
	f.cancel = cancel
	f.ran = make(chan struct{})
	go func() {
		defer close(f.ran)
		f.ctrl.Run(ctx)
	}()
	t.Cleanup(func() {
		cancel()
		<-f.ran
	})
	return f
}

func waitForState(t *testing.T, c *Controller, want State) {
	t.Helper()
	deadline := time.Now().Add(2 * time.Second)
	for time.Now().Before(deadline) {
		if c.State() == want {
			return
		}
		time.Sleep(time.Millisecond)
	}
	t.Fatalf("state = %v, want %v", c.State(), want)
}

func voiced(n int) []int16 {
	chunk := make([]int16, n)
	for i := range chunk {
		chunk[i] = 400 // above the default silence threshold
	}
	return chunk
}

func TestRecordTranscribeDeliver(t *testing.T) {
	prov := &fakeProvider{result: &stt.Result{Text: "hello world", Language: "en"}}
	f := newFixture(t, testConfig(), prov)

	f.ctrl.RequestStart()
	waitForState(t, f.ctrl, StateRecording)

	f.src.deliver(voiced(512))
	f.ctrl.RequestStop()
	waitForState(t, f.ctrl, StateReady)

	if got := f.sink.texts(); len(got) != 1 || got[0] != "hello world" {
		t.Errorf("sink got %v, want [hello world]", got)
	}
	if prov.callCount() != 1 {
		t.Errorf("provider calls = %d, want 1", prov.callCount())
	}
}

func TestEmptyRecordingSkipsTranscription(t *testing.T) {
	prov := &fakeProvider{result: &stt.Result{Text: "never"}}
	f := newFixture(t, testConfig(), prov)

	f.ctrl.RequestStart()
	waitForState(t, f.ctrl, StateRecording)
	f.ctrl.RequestStop()
	waitForState(t, f.ctrl, StateReady)

	if prov.callCount() != 0 {
		t.Errorf("provider calls = %d, want 0", prov.callCount())
	}
	if !f.hints.contains("No audio") {
		t.Error("expected a No audio hint")
	}
	if got := f.sink.texts(); len(got) != 0 {
		t.Errorf("sink got %v, want none", got)
	}
}

func TestStartIgnoredWhileTranscribing(t *testing.T) {
	release := make(chan struct{})
	prov := &fakeProvider{result: &stt.Result{Text: "slow"}, release: release}
	f := newFixture(t, testConfig(), prov)

	f.ctrl.RequestStart()
	waitForState(t, f.ctrl, StateRecording)
	f.src.deliver(voiced(512))
	f.ctrl.RequestStop()
	waitForState(t, f.ctrl, StateTranscribing)

	f.ctrl.RequestStart()
	time.Sleep(20 * time.Millisecond)
	if got := f.ctrl.State(); got != StateTranscribing {
		t.Fatalf("state = %v, want Transcribing", got)
	}
	if f.src.openCount() != 1 {
		t.Errorf("source opened %d times, want 1", f.src.openCount())
	}

	close(release)
	waitForState(t, f.ctrl, StateReady)
}

func TestTranscriptionErrorRecovers(t *testing.T) {
	prov := &fakeProvider{err: errors.New("engine exploded")}
	f := newFixture(t, testConfig(), prov)

	f.ctrl.RequestStart()
	waitForState(t, f.ctrl, StateRecording)
	f.src.deliver(voiced(512))
	f.ctrl.RequestStop()
	waitForState(t, f.ctrl, StateError)

	// Error state clears on its own after the recovery delay.
	waitForState(t, f.ctrl, StateReady)

	if got := f.sink.texts(); len(got) != 0 {
		t.Errorf("sink got %v, want none", got)
	}
}

func TestNoSpeechEntersErrorAndRecovers(t *testing.T) {
	prov := &fakeProvider{err: stt.ErrNoSpeech}
	f := newFixture(t, testConfig(), prov)

	f.ctrl.RequestStart()
	waitForState(t, f.ctrl, StateRecording)
	f.src.deliver(voiced(512))
	f.ctrl.RequestStop()
	waitForState(t, f.ctrl, StateError)
	waitForState(t, f.ctrl, StateReady)

	if !f.hints.contains("No speech recognized") {
		t.Error("expected a no-speech hint")
	}
	if got := f.sink.texts(); len(got) != 0 {
		t.Errorf("sink got %v, want none", got)
	}
}

// The recovery timer must deliver its request even when the queue is full
// at the moment it fires; a dropped recover would leave the controller in
// Error permanently.
func TestErrorRecoverySurvivesFullQueue(t *testing.T) {
	prov := &fakeProvider{}
	c := New(testConfig(), &fakeSource{}, prov, output.NewRouter(), nil, Observers{})
	c.recovery = 10 * time.Millisecond

	for i := 0; i < cap(c.requests); i++ {
		c.post(request{kind: reqStart})
	}
	c.fail(errors.New("engine exploded"))

	// Let the timer fire while the queue is still full.
	time.Sleep(50 * time.Millisecond)

	deadline := time.After(2 * time.Second)
	for {
		select {
		case r := <-c.requests:
			if r.kind == reqRecover {
				return
			}
		case <-deadline:
			t.Fatal("recover request never arrived after the queue drained")
		}
	}
}

func TestRequestQuitStopsLoop(t *testing.T) {
	prov := &fakeProvider{result: &stt.Result{Text: "x"}}
	f := newFixture(t, testConfig(), prov)

	f.ctrl.RequestStart()
	waitForState(t, f.ctrl, StateRecording)

	f.ctrl.RequestQuit()
	f.ctrl.RequestQuit() // idempotent

	select {
	case <-f.ran:
	case <-time.After(2 * time.Second):
		t.Fatal("Run did not return after RequestQuit")
	}
}

func TestSilenceAutoStopTranscribes(t *testing.T) {
	prov := &fakeProvider{result: &stt.Result{Text: "auto"}}
	f := newFixture(t, testConfig(), prov)

	f.ctrl.RequestStart()
	waitForState(t, f.ctrl, StateRecording)

	// One voiced chunk, then nothing: the silence watchdog should stop the
	// session and hand the snapshot to the provider without a manual stop.
	f.src.deliver(voiced(512))
	waitForState(t, f.ctrl, StateReady)

	if got := f.sink.texts(); len(got) != 1 || got[0] != "auto" {
		t.Errorf("sink got %v, want [auto]", got)
	}
}

func TestStartErrorEntersErrorState(t *testing.T) {
	prov := &fakeProvider{}
	f := newFixture(t, testConfig(), prov)
	f.src.setOpenErr(errors.New("no capture device"))

	f.ctrl.RequestStart()
	waitForState(t, f.ctrl, StateError)
	waitForState(t, f.ctrl, StateReady)
}
