package stt

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"strings"
	"sync"

	whisperlib "github.com/ggerganov/whisper.cpp/bindings/go/pkg/whisper"

	"github.com/murmur-stt/murmur/audio"
)

// Compile-time assertion that WhisperLocal satisfies Provider.
var _ Provider = (*WhisperLocal)(nil)

// WhisperLocal implements Provider using the whisper.cpp CGO bindings. The
// model is loaded once at startup; each Transcribe call creates a fresh
// whisper context, because contexts are not thread-safe while the model is.
type WhisperLocal struct {
	cfg LocalConfig

	mu    sync.Mutex
	model whisperlib.Model
}

// LocalConfig holds configuration for WhisperLocal.
type LocalConfig struct {
	ModelPath   string  // path to a ggml model file
	Threads     int     // inference threads, 0 for library default
	Translate   bool    // translate output to English
	Temperature float32 // decoding temperature, 0 for library default
}

// NewWhisperLocal loads the whisper model from cfg.ModelPath. The caller
// must Close the provider when done.
func NewWhisperLocal(cfg LocalConfig) (*WhisperLocal, error) {
	if cfg.ModelPath == "" {
		return nil, errors.New("model path required")
	}
	model, err := whisperlib.New(cfg.ModelPath)
	if err != nil {
		return nil, fmt.Errorf("load model %q: %w", cfg.ModelPath, err)
	}
	return &WhisperLocal{cfg: cfg, model: model}, nil
}

func (w *WhisperLocal) Name() string { return "whisper-local" }

func (w *WhisperLocal) IsReady() bool {
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.model != nil
}

// Transcribe runs whisper.cpp inference over the snapshot and returns the
// concatenated segment text. ErrNoSpeech is returned when decoding yields
// no text.
func (w *WhisperLocal) Transcribe(ctx context.Context, pcm []int16, language string) (*Result, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	w.mu.Lock()
	model := w.model
	w.mu.Unlock()
	if model == nil {
		return nil, errors.New("model not loaded")
	}

	wctx, err := model.NewContext()
	if err != nil {
		return nil, fmt.Errorf("create whisper context: %w", err)
	}

	lang := language
	if lang == "" {
		lang = "auto"
	}
	if err := wctx.SetLanguage(lang); err != nil {
		slog.Warn("set language failed, using default", "language", lang, "error", err)
	}
	if w.cfg.Threads > 0 {
		wctx.SetThreads(uint(w.cfg.Threads))
	}
	wctx.SetTranslate(w.cfg.Translate)
	if w.cfg.Temperature > 0 {
		wctx.SetTemperature(w.cfg.Temperature)
	}

	samples := audio.Float32(pcm)
	if err := wctx.Process(samples, nil, nil, nil); err != nil {
		return nil, fmt.Errorf("process audio: %w", err)
	}

	result := &Result{Language: wctx.Language()}
	var parts []string
	for {
		segment, err := wctx.NextSegment()
		if errors.Is(err, io.EOF) {
			break
		}
		if err != nil {
			return nil, fmt.Errorf("read segment: %w", err)
		}
		text := strings.TrimSpace(segment.Text)
		if text == "" {
			continue
		}
		parts = append(parts, text)
		result.Segments = append(result.Segments, Segment{
			Text:  text,
			Start: segment.Start,
			End:   segment.End,
		})
	}

	result.Text = strings.Join(parts, " ")
	if result.Text == "" {
		return nil, ErrNoSpeech
	}
	return result, nil
}

// Close releases the whisper model.
func (w *WhisperLocal) Close() error {
	w.mu.Lock()
	defer w.mu.Unlock()
	if w.model == nil {
		return nil
	}
	err := w.model.Close()
	w.model = nil
	return err
}
