// Command murmur is a push-to-talk dictation tool: press a hotkey, speak,
// and the transcription lands on the clipboard.
package main

import (
	"context"
	"encoding/json"
	"flag"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"

	"golang.org/x/term"

	"github.com/murmur-stt/murmur/audio"
	"github.com/murmur-stt/murmur/config"
	"github.com/murmur-stt/murmur/history"
	"github.com/murmur-stt/murmur/hotkey"
	"github.com/murmur-stt/murmur/internal/app"
	"github.com/murmur-stt/murmur/output"
	"github.com/murmur-stt/murmur/stt"
)

var (
	version = "dev"
	commit  = "none"
	date    = "unknown"
)

func main() {
	var (
		configPath  = flag.String("config", "", "config file path (default: user config dir)")
		modelPath   = flag.String("model", "", "override the whisper model path")
		language    = flag.String("language", "", "override the source language")
		outputFile  = flag.String("output", "", "append transcriptions to this file")
		noClipboard = flag.Bool("no-clipboard", false, "do not copy transcriptions to the clipboard")
		noHotkeys   = flag.Bool("no-hotkeys", false, "disable global hotkeys")
		historyN    = flag.Int("history", 0, "print the last N transcriptions and exit")
		settings    = flag.Bool("settings", false, "write the default config file if missing, print its path, and exit")
		debug       = flag.Bool("debug", false, "enable debug logging")
		showVersion = flag.Bool("version", false, "print version and exit")
	)
	flag.Parse()

	if *showVersion {
		fmt.Printf("murmur %s (commit %s, built %s)\n", version, commit, date)
		return
	}

	level := slog.LevelInfo
	if *debug {
		level = slog.LevelDebug
	}
	slog.SetDefault(slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: level})))

	if err := run(runOptions{
		configPath:  *configPath,
		modelPath:   *modelPath,
		language:    *language,
		outputFile:  *outputFile,
		noClipboard: *noClipboard,
		noHotkeys:   *noHotkeys,
		historyN:    *historyN,
		settings:    *settings,
	}); err != nil {
		slog.Error("fatal", "error", err)
		os.Exit(1)
	}
}

type runOptions struct {
	configPath  string
	modelPath   string
	language    string
	outputFile  string
	noClipboard bool
	noHotkeys   bool
	historyN    int
	settings    bool
}

func run(opts runOptions) error {
	if opts.settings {
		return writeSettings(opts.configPath)
	}
	if opts.historyN > 0 {
		return printHistory(opts.historyN)
	}

	cfg, err := config.Load(opts.configPath)
	if err != nil {
		return fmt.Errorf("load config: %w", err)
	}
	applyOverrides(cfg, opts)
	if err := cfg.Validate(); err != nil {
		return fmt.Errorf("invalid config: %w", err)
	}

	provider, err := setupSTT(cfg)
	if err != nil {
		return err
	}
	defer provider.Close()

	sinks := setupOutput(cfg)

	var hist *history.Store
	if cfg.HistoryEnabled {
		hist, err = openHistory()
		if err != nil {
			slog.Warn("history disabled", "error", err)
		} else {
			defer hist.Close()
		}
	}

	ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	mic := audio.NewMicrophone(cfg.SampleRate, cfg.FramesPerChunk)
	ctrl := app.New(cfg, mic, provider, sinks, hist, app.Observers{
		OnStatus: func(status string) { fmt.Printf("[%s]\r\n", status) },
		OnHint:   func(hint string) { fmt.Printf("%s\r\n", hint) },
	})

	if cfg.EnableGlobalHotkeys {
		hk := hotkey.NewManager()
		err := hk.Start(hotkey.Bindings{
			StartKey: cfg.StartHotkey,
			StopKey:  cfg.StopHotkey,
			QuitKey:  cfg.QuitHotkey,
			OnStart:  ctrl.RequestStart,
			OnStop:   ctrl.RequestStop,
			OnQuit:   ctrl.RequestQuit,
		})
		if err != nil {
			slog.Warn("global hotkeys unavailable", "error", err)
		} else {
			defer hk.Stop()
		}
	}

	if cfg.EnableTerminalInput && term.IsTerminal(int(os.Stdin.Fd())) {
		restore, err := startTerminalInput(ctrl)
		if err != nil {
			slog.Warn("terminal input unavailable", "error", err)
		} else {
			defer restore()
			fmt.Printf("r: record  s: stop  q: quit  (hotkeys: %s/%s/%s)\r\n",
				cfg.StartHotkey, cfg.StopHotkey, cfg.QuitHotkey)
		}
	}

	slog.Info("starting", "version", version, "provider", provider.Name())
	ctrl.Run(ctx)
	slog.Info("shut down")
	return nil
}

func applyOverrides(cfg *config.Config, opts runOptions) {
	if opts.modelPath != "" {
		cfg.ModelPath = opts.modelPath
	}
	if opts.language != "" {
		cfg.Language = opts.language
	}
	if opts.outputFile != "" {
		cfg.OutputFile = opts.outputFile
	}
	if opts.noClipboard {
		cfg.CopyToClipboard = false
	}
	if opts.noHotkeys {
		cfg.EnableGlobalHotkeys = false
	}
}

// setupSTT registers the available providers and returns the configured one.
func setupSTT(cfg *config.Config) (stt.Provider, error) {
	registry := stt.NewRegistry()

	if cfg.ModelPath != "" {
		local, err := stt.NewWhisperLocal(stt.LocalConfig{
			ModelPath:   cfg.ModelPath,
			Threads:     cfg.NumThreads,
			Translate:   cfg.Translate,
			Temperature: cfg.Temperature,
		})
		if err != nil {
			if cfg.Provider == "whisper-local" {
				return nil, err
			}
			slog.Warn("whisper local unavailable", "error", err)
		} else {
			registry.Register(local)
			slog.Info("registered whisper local provider", "model", cfg.ModelPath)
		}
	}

	if cfg.APIKey != "" {
		registry.Register(stt.NewWhisperAPI(stt.APIConfig{
			APIKey:  cfg.APIKey,
			BaseURL: cfg.APIBaseURL,
			Model:   cfg.APIModel,
		}))
		slog.Info("registered whisper API provider")
	}

	provider := registry.Get(cfg.Provider)
	if provider == nil {
		return nil, fmt.Errorf("provider %q not available", cfg.Provider)
	}
	if !provider.IsReady() {
		return nil, fmt.Errorf("provider %q not ready", cfg.Provider)
	}
	return provider, nil
}

func setupOutput(cfg *config.Config) *output.Router {
	var sinks []output.Sink
	if cfg.CopyToClipboard {
		sinks = append(sinks, output.Clipboard{})
	}
	if cfg.OutputFile != "" {
		sinks = append(sinks, output.File{Path: cfg.OutputFile, Format: cfg.OutputFormat})
	}
	sinks = append(sinks, output.Stdout{})
	return output.NewRouter(sinks...)
}

func openHistory() (*history.Store, error) {
	dir, err := config.DataDir()
	if err != nil {
		return nil, err
	}
	return history.Open(filepath.Join(dir, "history"))
}

// startTerminalInput puts stdin into raw mode and maps single keys to
// controller requests. The returned func restores the terminal.
func startTerminalInput(ctrl *app.Controller) (func(), error) {
	fd := int(os.Stdin.Fd())
	oldState, err := term.MakeRaw(fd)
	if err != nil {
		return nil, fmt.Errorf("set raw terminal: %w", err)
	}

	go func() {
		buf := make([]byte, 1)
		for {
			n, err := os.Stdin.Read(buf)
			if err != nil || n == 0 {
				return
			}
			switch buf[0] {
			case 'r', 'R':
				ctrl.RequestStart()
			case 's', 'S':
				ctrl.RequestStop()
			case 'q', 'Q', 3: // 3 is ctrl-c in raw mode
				ctrl.RequestQuit()
				return
			}
		}
	}()

	return func() { term.Restore(fd, oldState) }, nil
}

// writeSettings prints the resolved configuration, creating the config file
// with defaults first if it does not exist yet.
func writeSettings(path string) error {
	if path == "" {
		var err error
		path, err = config.DefaultPath()
		if err != nil {
			return err
		}
	}
	if _, err := os.Stat(path); os.IsNotExist(err) {
		if err := config.Default().Save(path); err != nil {
			return err
		}
		fmt.Printf("wrote default config to %s\n", path)
	}

	cfg, err := config.Load(path)
	if err != nil {
		return err
	}
	data, err := json.MarshalIndent(cfg, "", "  ")
	if err != nil {
		return err
	}
	fmt.Printf("config file: %s\n%s\n", path, data)
	return nil
}

func printHistory(n int) error {
	hist, err := openHistory()
	if err != nil {
		return err
	}
	defer hist.Close()

	entries, err := hist.Recent(n)
	if err != nil {
		return fmt.Errorf("read history: %w", err)
	}
	for _, e := range entries {
		fmt.Printf("%s  [%s, %s]  %s\n",
			e.CreatedAt.Local().Format("2006-01-02 15:04:05"), e.Language, e.Reason, e.Text)
	}
	return nil
}
