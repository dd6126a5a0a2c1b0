// Package config handles application configuration.
package config

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"time"
)

const (
	appName        = "murmur"
	configFileName = "config.json"
)

// Config represents the application configuration. It is resolved once at
// startup from defaults, the config file, and CLI overrides, and is
// read-only for the lifetime of a session.
type Config struct {
	// Speech engine
	Provider    string  `json:"provider"`               // "whisper-local" or "whisper-api"
	ModelPath   string  `json:"model_path"`             // ggml model file for whisper-local
	APIKey      string  `json:"api_key,omitempty"`      // whisper-api credential
	APIBaseURL  string  `json:"api_base_url,omitempty"` // OpenAI-compatible endpoint override
	APIModel    string  `json:"api_model,omitempty"`    // remote model name
	Language    string  `json:"language"`               // source language, "auto" to detect
	Translate   bool    `json:"translate"`              // translate output to English
	NumThreads  int     `json:"num_threads"`            // local inference threads
	Temperature float32 `json:"temperature"`            // decoding temperature

	// Recording
	SampleRate       int     `json:"sample_rate"`
	FramesPerChunk   int     `json:"frames_per_chunk"`
	SilenceThreshold float32 `json:"silence_threshold"` // normalized amplitude 0-1
	SilenceDuration  float64 `json:"silence_duration"`  // seconds of silence before auto-stop
	MaxDuration      int     `json:"max_duration"`      // seconds, absolute recording cap

	// Output
	CopyToClipboard bool   `json:"copy_to_clipboard"`
	OutputFile      string `json:"output_file,omitempty"`
	OutputFormat    string `json:"output_format"` // "text" or "json"
	DebugWAVDir     string `json:"debug_wav_dir,omitempty"`
	HistoryEnabled  bool   `json:"history_enabled"`

	// Input
	EnableTerminalInput bool   `json:"enable_terminal_input"`
	EnableGlobalHotkeys bool   `json:"enable_global_hotkeys"`
	StartHotkey         string `json:"start_hotkey"`
	StopHotkey          string `json:"stop_hotkey"`
	QuitHotkey          string `json:"quit_hotkey"`
}

// Default returns the built-in configuration.
func Default() *Config {
	return &Config{
		Provider:            "whisper-local",
		ModelPath:           "model/ggml-base.en-q5_1.bin",
		Language:            "auto",
		NumThreads:          4,
		SampleRate:          16000,
		FramesPerChunk:      512,
		SilenceThreshold:    0.01,
		SilenceDuration:     1.0,
		MaxDuration:         30,
		CopyToClipboard:     true,
		OutputFormat:        "text",
		HistoryEnabled:      true,
		EnableTerminalInput: true,
		EnableGlobalHotkeys: true,
		StartHotkey:         "f9",
		StopHotkey:          "f10",
		QuitHotkey:          "f12",
	}
}

// Load reads configuration from path, or from the default location when
// path is empty. A missing file yields the defaults.
func Load(path string) (*Config, error) {
	if path == "" {
		var err error
		path, err = DefaultPath()
		if err != nil {
			return nil, err
		}
	}

	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return Default(), nil
		}
		return nil, fmt.Errorf("read config: %w", err)
	}

	cfg := Default()
	if err := json.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("unmarshal config: %w", err)
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// Save persists the configuration to path, or to the default location when
// path is empty.
func (c *Config) Save(path string) error {
	if path == "" {
		var err error
		path, err = DefaultPath()
		if err != nil {
			return err
		}
	}

	if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
		return fmt.Errorf("create config dir: %w", err)
	}

	data, err := json.MarshalIndent(c, "", "  ")
	if err != nil {
		return fmt.Errorf("marshal config: %w", err)
	}

	if err := os.WriteFile(path, data, 0644); err != nil {
		return fmt.Errorf("write config: %w", err)
	}
	return nil
}

// Validate rejects configurations the engine cannot run with.
func (c *Config) Validate() error {
	if c.SampleRate <= 0 {
		return fmt.Errorf("sample_rate must be positive, got %d", c.SampleRate)
	}
	if c.FramesPerChunk <= 0 {
		return fmt.Errorf("frames_per_chunk must be positive, got %d", c.FramesPerChunk)
	}
	if c.MaxDuration <= 0 {
		return fmt.Errorf("max_duration must be positive, got %d", c.MaxDuration)
	}
	if c.SilenceDuration <= 0 {
		return fmt.Errorf("silence_duration must be positive, got %v", c.SilenceDuration)
	}
	if c.SilenceThreshold < 0 || c.SilenceThreshold > 1 {
		return fmt.Errorf("silence_threshold must be in [0,1], got %v", c.SilenceThreshold)
	}
	switch c.OutputFormat {
	case "text", "json":
	default:
		return fmt.Errorf("output_format must be \"text\" or \"json\", got %q", c.OutputFormat)
	}
	switch c.Provider {
	case "whisper-local", "whisper-api":
	default:
		return fmt.Errorf("unknown provider %q", c.Provider)
	}
	return nil
}

// MaxBufferSamples derives the accumulator cap from the duration cap.
func (c *Config) MaxBufferSamples() int {
	return c.SampleRate * c.MaxDuration
}

// SilenceWindow returns the silence duration as a time.Duration.
func (c *Config) SilenceWindow() time.Duration {
	return time.Duration(c.SilenceDuration * float64(time.Second))
}

// RecordingCap returns the maximum recording duration.
func (c *Config) RecordingCap() time.Duration {
	return time.Duration(c.MaxDuration) * time.Second
}

// DefaultPath returns the default config file location.
func DefaultPath() (string, error) {
	dir, err := os.UserConfigDir()
	if err != nil {
		return "", fmt.Errorf("get user config dir: %w", err)
	}
	return filepath.Join(dir, appName, configFileName), nil
}

// DataDir returns the directory for application data such as the
// transcription history.
func DataDir() (string, error) {
	dir, err := os.UserConfigDir()
	if err != nil {
		return "", fmt.Errorf("get user config dir: %w", err)
	}
	return filepath.Join(dir, appName), nil
}
