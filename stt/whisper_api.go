package stt

import (
	"bytes"
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/openai/openai-go/v3"
	"github.com/openai/openai-go/v3/option"

	"github.com/murmur-stt/murmur/audio"
)

// Compile-time assertion that WhisperAPI satisfies Provider.
var _ Provider = (*WhisperAPI)(nil)

// WhisperAPI implements Provider using the OpenAI audio transcription API.
// Snapshots are encoded as WAV in memory and uploaded; no state is kept
// between calls.
type WhisperAPI struct {
	client openai.Client
	model  string
	ready  bool
}

// APIConfig holds configuration for WhisperAPI.
type APIConfig struct {
	APIKey  string
	BaseURL string // optional, for OpenAI-compatible endpoints
	Model   string // optional, defaults to whisper-1
}

// NewWhisperAPI creates a WhisperAPI provider.
func NewWhisperAPI(cfg APIConfig) *WhisperAPI {
	opts := []option.RequestOption{
		option.WithAPIKey(cfg.APIKey),
		option.WithRequestTimeout(60 * time.Second),
	}
	if cfg.BaseURL != "" {
		opts = append(opts, option.WithBaseURL(cfg.BaseURL))
	}

	model := cfg.Model
	if model == "" {
		model = string(openai.AudioModelWhisper1)
	}

	return &WhisperAPI{
		client: openai.NewClient(opts...),
		model:  model,
		ready:  cfg.APIKey != "",
	}
}

func (w *WhisperAPI) Name() string { return "whisper-api" }

func (w *WhisperAPI) IsReady() bool { return w.ready }

// Transcribe uploads the snapshot and returns the transcription text.
func (w *WhisperAPI) Transcribe(ctx context.Context, pcm []int16, language string) (*Result, error) {
	if !w.ready {
		return nil, fmt.Errorf("api key required")
	}

	wav := EncodeWAV(pcm, audio.DefaultSampleRate)

	params := openai.AudioTranscriptionNewParams{
		Model: openai.AudioModel(w.model),
		File:  openai.File(bytes.NewReader(wav), "audio.wav", "audio/wav"),
	}
	// The API rejects "auto"; an absent language means auto-detect.
	if language != "" && language != "auto" {
		params.Language = openai.String(language)
	}

	resp, err := w.client.Audio.Transcriptions.New(ctx, params)
	if err != nil {
		return nil, fmt.Errorf("transcription request: %w", err)
	}

	text := strings.TrimSpace(resp.Text)
	if text == "" {
		return nil, ErrNoSpeech
	}
	return &Result{Text: text, Language: language}, nil
}

func (w *WhisperAPI) Close() error { return nil }
