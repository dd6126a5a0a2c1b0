// Package output delivers transcription results to their destinations.
package output

import (
	"encoding/json"
	"fmt"
	"log/slog"
	"os"
	"time"

	"github.com/atotto/clipboard"
)

// Sink receives finished transcription text.
type Sink interface {
	// Name returns the sink identifier for logging.
	Name() string

	// Write delivers text to the destination.
	Write(text string) error
}

// Clipboard copies text to the system clipboard.
type Clipboard struct{}

func (Clipboard) Name() string { return "clipboard" }

func (Clipboard) Write(text string) error {
	if err := clipboard.WriteAll(text); err != nil {
		return fmt.Errorf("write clipboard: %w", err)
	}
	return nil
}

// File appends transcriptions to a file. In "text" format each result is
// written as a line; in "json" format each result is a JSON object per line.
type File struct {
	Path   string
	Format string // "text" or "json"
}

func (f File) Name() string { return "file" }

func (f File) Write(text string) error {
	out, err := os.OpenFile(f.Path, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0644)
	if err != nil {
		return fmt.Errorf("open output file: %w", err)
	}
	defer out.Close()

	var line []byte
	if f.Format == "json" {
		line, err = json.Marshal(struct {
			Text string    `json:"text"`
			Time time.Time `json:"time"`
		}{Text: text, Time: time.Now()})
		if err != nil {
			return fmt.Errorf("marshal output: %w", err)
		}
	} else {
		line = []byte(text)
	}

	if _, err := out.Write(append(line, '\n')); err != nil {
		return fmt.Errorf("write output file: %w", err)
	}
	return nil
}

// Stdout prints transcriptions to standard output.
type Stdout struct{}

func (Stdout) Name() string { return "stdout" }

func (Stdout) Write(text string) error {
	_, err := fmt.Println(text)
	return err
}

// Router fans a result out to every sink. A failing sink is logged and
// skipped so one broken destination never blocks the others.
type Router struct {
	sinks []Sink
}

// NewRouter creates a Router over the given sinks.
func NewRouter(sinks ...Sink) *Router {
	return &Router{sinks: sinks}
}

// Write delivers text to all sinks. It always succeeds from the caller's
// point of view; per-sink failures are logged.
func (r *Router) Write(text string) {
	for _, s := range r.sinks {
		if err := s.Write(text); err != nil {
			slog.Warn("output sink failed", "sink", s.Name(), "error", err)
		}
	}
}
