// Package stt provides the speech-to-text provider interface and
// implementations.
package stt

import (
	"context"
	"errors"
	"time"
)

// ErrNoSpeech is returned when the engine produced no text for a snapshot.
// Empty output and engine failure are collapsed into one error class at
// this boundary.
var ErrNoSpeech = errors.New("no speech recognized")

// Result represents the result of a transcription.
type Result struct {
	Text     string    `json:"text"`     // Transcribed text
	Language string    `json:"language"` // Detected language code
	Segments []Segment `json:"segments"` // Time-stamped segments
}

// Segment represents a time-stamped audio segment.
type Segment struct {
	Text  string        `json:"text"`
	Start time.Duration `json:"start"`
	End   time.Duration `json:"end"`
}

// Provider defines the interface for speech-to-text engines. Both local
// (whisper.cpp) and remote (OpenAI API) implementations satisfy it.
type Provider interface {
	// Name returns the provider identifier.
	Name() string

	// IsReady returns true if the provider can accept audio.
	IsReady() bool

	// Transcribe converts mono 16-bit PCM samples at 16000 Hz to text.
	// language is a source language code, empty or "auto" for detection.
	Transcribe(ctx context.Context, pcm []int16, language string) (*Result, error)

	// Close releases resources held by the provider.
	Close() error
}

// Registry holds registered STT providers.
type Registry struct {
	providers map[string]Provider
}

// NewRegistry creates a new provider registry.
func NewRegistry() *Registry {
	return &Registry{providers: make(map[string]Provider)}
}

// Register adds a provider to the registry.
func (r *Registry) Register(p Provider) {
	r.providers[p.Name()] = p
}

// Get returns a provider by name, or nil.
func (r *Registry) Get(name string) Provider {
	return r.providers[name]
}

// Close releases all providers.
func (r *Registry) Close() error {
	for _, p := range r.providers {
		if err := p.Close(); err != nil {
			return err
		}
	}
	return nil
}
