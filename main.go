// rigrun mobile - a streaming chat client for phone-sized terminals.
//
// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later
package main

import (
	"bytes"
	"context"
	"encoding/json"
	"flag"
	"fmt"
	"io"
	"log"
	"net/http"
	"os"
	"path/filepath"
	"strings"
	"time"

	tea "github.com/charmbracelet/bubbletea"
	"golang.org/x/term"

	"github.com/jeranaias/rigrun-mobile/internal/config"
	"github.com/jeranaias/rigrun-mobile/internal/coordinator"
	"github.com/jeranaias/rigrun-mobile/internal/history"
	"github.com/jeranaias/rigrun-mobile/internal/model"
	"github.com/jeranaias/rigrun-mobile/internal/persist"
	"github.com/jeranaias/rigrun-mobile/internal/stream"
	"github.com/jeranaias/rigrun-mobile/internal/telemetry"
	"github.com/jeranaias/rigrun-mobile/internal/ui/chat"
)

// Version information (set at build time)
var (
	Version   = "0.2.0"
	GitCommit = "unknown"
	BuildDate = "unknown"
)

func main() {
	var (
		configPath  = flag.String("config", "", "path to a config file (TOML or JSON)")
		serverURL   = flag.String("server", "http://localhost:8090/v1/stream", "streaming endpoint URL")
		modelName   = flag.String("model", "", "override the configured text model")
		demo        = flag.Bool("demo", false, "run against a built-in scripted transport")
		showVersion = flag.Bool("version", false, "print version and exit")
	)
	flag.Parse()

	if *showVersion {
		fmt.Printf("rigrun mobile %s (%s, built %s)\n", Version, GitCommit, BuildDate)
		return
	}

	if !term.IsTerminal(int(os.Stdout.Fd())) {
		fmt.Fprintln(os.Stderr, "rigrun mobile requires an interactive terminal")
		os.Exit(1)
	}

	cfg, err := loadConfig(*configPath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "config: %v\n", err)
		os.Exit(1)
	}
	if *modelName != "" {
		cfg.DefaultModel = *modelName
	}
	config.SetGlobal(cfg)

	logger, logClose := openLogger()
	defer logClose()

	if err := run(cfg, *serverURL, *demo, logger); err != nil {
		fmt.Fprintf(os.Stderr, "rigrun: %v\n", err)
		os.Exit(1)
	}
}

func run(cfg *config.Config, serverURL string, demo bool, logger *log.Logger) error {
	conv := model.NewConversation()
	conv.Model = cfg.DefaultModel

	store, err := openStore(cfg)
	if err != nil {
		return fmt.Errorf("conversation store: %w", err)
	}
	saveInterval := time.Duration(cfg.Storage.SaveIntervalMs) * time.Millisecond
	saver := persist.NewSaver(store, conv, saveInterval, logger)
	defer saver.Close()

	// History archiving is best-effort; the client runs without it.
	archive := openArchive(cfg, logger)
	if archive != nil {
		defer archive.Close()
	}

	var transport stream.Transport
	if demo {
		transport = &demoTransport{}
	} else {
		transport = newHTTPTransport(serverURL)
	}

	relay := chat.NewRelay()
	metrics := telemetry.NewFlushMetrics()
	coord := coordinator.Build(
		cfg.CoordinatorConfig(), cfg.ProjectorConfig(),
		transport, conv, saver, metrics, relay.Send, logger)

	screen := chat.New(chat.Options{
		Config:       cfg,
		Coordinator:  coord,
		Conversation: conv,
		Archive:      archive,
		Logger:       logger,
	})

	p := tea.NewProgram(screen, tea.WithAltScreen(), tea.WithMouseCellMotion())
	relay.Attach(p)

	// Live-reload the config file while the client runs.
	if watcher := watchConfig(logger); watcher != nil {
		defer watcher.Close()
	}

	_, err = p.Run()
	if err == nil {
		logger.Print(metrics.Report())
	}
	return err
}

// =============================================================================
// CONFIG AND STORAGE WIRING
// =============================================================================

func loadConfig(path string) (*config.Config, error) {
	if path != "" {
		return config.LoadFromPath(path)
	}
	return config.Load()
}

func openStore(cfg *config.Config) (*persist.Store, error) {
	var (
		store *persist.Store
		err   error
	)
	if dir := cfg.Storage.ConversationsDir; dir != "" {
		store, err = persist.NewStoreWithDir(dir)
	} else {
		store, err = persist.NewStore()
	}
	if err != nil {
		return nil, err
	}
	store.MaxConversations = cfg.Storage.MaxConversations
	return store, nil
}

func openArchive(cfg *config.Config, logger *log.Logger) *history.Archive {
	var (
		archive *history.Archive
		err     error
	)
	if path := cfg.Storage.HistoryDBPath; path != "" {
		archive, err = history.Open(path)
	} else {
		archive, err = history.OpenDefault()
	}
	if err != nil {
		logger.Printf("history archive unavailable: %v", err)
		return nil
	}
	return archive
}

func watchConfig(logger *log.Logger) *config.Watcher {
	path, err := config.ConfigPathTOML()
	if err != nil {
		return nil
	}
	if _, err := os.Stat(path); err != nil {
		return nil
	}
	watcher, err := config.Watch(path,
		func(cfg *config.Config) {
			config.SetGlobal(cfg)
			logger.Printf("config reloaded from %s", path)
		},
		func(err error) {
			logger.Printf("config reload rejected: %v", err)
		})
	if err != nil {
		logger.Printf("config watch: %v", err)
		return nil
	}
	return watcher
}

// openLogger logs to a file under the data dir; stdout belongs to the TUI.
func openLogger() (*log.Logger, func()) {
	dir, err := config.ConfigDir()
	if err != nil {
		return log.New(io.Discard, "", 0), func() {}
	}
	if err := os.MkdirAll(dir, 0700); err != nil {
		return log.New(io.Discard, "", 0), func() {}
	}
	f, err := os.OpenFile(filepath.Join(dir, "rigrun.log"),
		os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0600)
	if err != nil {
		return log.New(io.Discard, "", 0), func() {}
	}
	return log.New(f, "", log.LstdFlags), func() { f.Close() }
}

// =============================================================================
// HTTP TRANSPORT
// =============================================================================

// streamRequestWire is the JSON body posted to the streaming endpoint.
type streamRequestWire struct {
	Prompt    string `json:"prompt"`
	Model     string `json:"model,omitempty"`
	WantImage bool   `json:"want_image,omitempty"`
}

// newHTTPTransport returns a transport that POSTs the request and reads the
// reply as newline-delimited JSON events.
func newHTTPTransport(serverURL string) stream.Transport {
	client := &http.Client{} // no client timeout: replies stream for minutes
	return &stream.ReaderTransport{
		OpenStream: func(ctx context.Context, req stream.Request) (io.ReadCloser, error) {
			body, err := json.Marshal(streamRequestWire{
				Prompt:    req.Prompt,
				Model:     req.Model,
				WantImage: req.WantImage,
			})
			if err != nil {
				return nil, err
			}
			httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost,
				serverURL, bytes.NewReader(body))
			if err != nil {
				return nil, err
			}
			httpReq.Header.Set("Content-Type", "application/json")
			httpReq.Header.Set("Accept", "application/x-ndjson")

			resp, err := client.Do(httpReq)
			if err != nil {
				return nil, err
			}
			if resp.StatusCode != http.StatusOK {
				msg, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
				resp.Body.Close()
				return nil, fmt.Errorf("stream request failed: %s: %s",
					resp.Status, strings.TrimSpace(string(msg)))
			}
			return resp.Body, nil
		},
	}
}

// =============================================================================
// DEMO TRANSPORT
// =============================================================================

// demoTransport synthesizes a scripted reply so the client can be exercised
// without a server. Text requests stream a short markdown answer with a
// reasoning phase; image requests stream a placeholder image result.
type demoTransport struct{}

const demoAnswer = "Here is a **scripted** reply from the demo transport.\n\n" +
	"- streaming arrives in small chunks\n" +
	"- markdown renders once the reply completes\n\n" +
	"Try `ctrl+p` to pause updates mid-stream."

func (d *demoTransport) Open(ctx context.Context, req stream.Request) (<-chan stream.Event, error) {
	events := make(chan stream.Event, 16)
	go func() {
		defer close(events)
		emit := func(ev stream.Event) bool {
			select {
			case events <- ev:
				return true
			case <-ctx.Done():
				return false
			}
		}
		pace := func(d time.Duration) bool {
			select {
			case <-time.After(d):
				return true
			case <-ctx.Done():
				return false
			}
		}

		if req.WantImage {
			if !emit(stream.ContentDelta("Generating image for: "+req.Prompt)) || !pace(400*time.Millisecond) {
				return
			}
			emit(stream.Event{
				Kind:     stream.KindCodeExecutionResult,
				ImageURL: "https://placehold.example/generated.png",
			})
			emit(stream.Event{Kind: stream.KindFinish})
			return
		}

		for _, thought := range []string{"Reading the prompt. ", "Drafting a short answer."} {
			if !emit(stream.ReasoningDelta(thought)) || !pace(250*time.Millisecond) {
				return
			}
		}
		emit(stream.Event{Kind: stream.KindReasoningFinished})

		for _, word := range strings.SplitAfter(demoAnswer, " ") {
			if !emit(stream.ContentDelta(word)) || !pace(30*time.Millisecond) {
				return
			}
		}
		emit(stream.Event{Kind: stream.KindFinish})
	}()
	return events, nil
}
