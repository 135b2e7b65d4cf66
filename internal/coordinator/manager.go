// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

// Package coordinator orchestrates streaming reply sessions.
package coordinator

import (
	"context"
	"errors"
	"log"
	"strings"
	"sync"
	"time"

	tea "github.com/charmbracelet/bubbletea"

	"github.com/jeranaias/rigrun-mobile/internal/bubble"
	"github.com/jeranaias/rigrun-mobile/internal/buffer"
	"github.com/jeranaias/rigrun-mobile/internal/leakguard"
	"github.com/jeranaias/rigrun-mobile/internal/model"
	"github.com/jeranaias/rigrun-mobile/internal/projector"
	"github.com/jeranaias/rigrun-mobile/internal/reassembly"
	"github.com/jeranaias/rigrun-mobile/internal/registry"
	"github.com/jeranaias/rigrun-mobile/internal/stream"
)

// errorPrefix is prepended to the surfaced failure text so the bubble
// visually separates the error from any streamed partial content.
const errorPrefix = "⚠️ "

// ErrNoTransport is returned when a session is started without a transport.
var ErrNoTransport = errors.New("coordinator: no transport configured")

// ErrUnknownMessage is returned when a restart names a message id that is
// not in the conversation.
var ErrUnknownMessage = errors.New("coordinator: unknown message id")

// =============================================================================
// CONFIGURATION
// =============================================================================

// Saver is the persistence trigger. Request(false) is debounced by the
// implementation; Request(true) must save unconditionally.
type Saver interface {
	Request(force bool)
}

// Config holds the coordinator's tuning knobs.
type Config struct {
	// Buffer configures each message's throttled content buffer.
	Buffer buffer.Config
	// MinConnectDisplay is how long the "connecting" affordance stays
	// visible before the first reasoning or content arrival.
	MinConnectDisplay time.Duration
	// RetryMax caps silent retries per message on retryable failures.
	RetryMax int
	// RetryDelay is the fixed wait before a retry resend is requested.
	RetryDelay time.Duration
	// LeakMarkers overrides the leak filter's marker set; nil = defaults.
	LeakMarkers []string
}

// DefaultConfig returns the tuning used by the mobile client.
func DefaultConfig() Config {
	return Config{
		Buffer:            buffer.DefaultConfig(),
		MinConnectDisplay: 450 * time.Millisecond,
		RetryMax:          3,
		RetryDelay:        2 * time.Second,
	}
}

// Options wires the coordinator's collaborators.
type Options struct {
	Config       Config
	Transport    stream.Transport
	Projector    *projector.Projector
	Registry     *registry.Registry
	Conversation *model.Conversation
	Saver        Saver
	Metrics      buffer.Recorder
	// Notify receives the coordinator's Bubble Tea messages; nil disables
	// notifications (useful in tests that poll state directly).
	Notify func(tea.Msg)
	Logger *log.Logger
}

// =============================================================================
// COORDINATOR
// =============================================================================

// Coordinator owns one session slot per channel and the shared UI flags.
type Coordinator struct {
	mu sync.Mutex

	cfg       Config
	transport stream.Transport
	proj      *projector.Projector
	reg       *registry.Registry
	conv      *model.Conversation
	saver     Saver
	metrics   buffer.Recorder
	notify    func(tea.Msg)
	logger    *log.Logger

	channels map[model.Channel]*channelState
	retries  map[string]int

	paused      bool
	resyncDirty bool
}

// New creates a coordinator. The projector must have been created with
// the coordinator's projection observer; use Build for the common wiring.
func New(opts Options) *Coordinator {
	cfg := opts.Config
	if cfg.RetryMax <= 0 {
		cfg.RetryMax = DefaultConfig().RetryMax
	}
	if cfg.RetryDelay <= 0 {
		cfg.RetryDelay = DefaultConfig().RetryDelay
	}
	if cfg.MinConnectDisplay <= 0 {
		cfg.MinConnectDisplay = DefaultConfig().MinConnectDisplay
	}

	c := &Coordinator{
		cfg:       cfg,
		transport: opts.Transport,
		proj:      opts.Projector,
		reg:       opts.Registry,
		conv:      opts.Conversation,
		saver:     opts.Saver,
		metrics:   opts.Metrics,
		notify:    opts.Notify,
		logger:    opts.Logger,
		channels:  make(map[model.Channel]*channelState),
		retries:   make(map[string]int),
	}
	for _, ch := range model.Channels {
		c.channels[ch] = &channelState{}
	}
	return c
}

// Build constructs a projector, registry, and coordinator wired together.
func Build(cfg Config, projCfg projector.Config, transport stream.Transport,
	conv *model.Conversation, saver Saver, metrics buffer.Recorder,
	notify func(tea.Msg), logger *log.Logger) *Coordinator {

	c := New(Options{
		Config:       cfg,
		Transport:    transport,
		Conversation: conv,
		Saver:        saver,
		Metrics:      metrics,
		Notify:       notify,
		Logger:       logger,
	})
	c.proj = projector.New(projCfg, c.onProjection)

	var forget registry.Forgetter
	if f, ok := metrics.(registry.Forgetter); ok {
		forget = f
	}
	c.reg = registry.New(c.proj, forget, 0)
	return c
}

// =============================================================================
// SESSION LIFECYCLE
// =============================================================================

// StartSession begins a new reply on the channel, cancelling any session
// already running there. Returns the new assistant message id.
func (c *Coordinator) StartSession(channel model.Channel, req stream.Request) (string, error) {
	msg := model.NewAssistantMessage(channel)
	if err := c.startSession(channel, req, msg, true); err != nil {
		return "", err
	}
	return msg.ID, nil
}

// RestartSession re-issues a request for an existing message id, reusing
// its message record. Used by the caller in response to RetryRequestMsg.
func (c *Coordinator) RestartSession(channel model.Channel, messageID string, req stream.Request) error {
	msg := c.conv.MessageByID(messageID)
	if msg == nil {
		return ErrUnknownMessage
	}
	msg.PrepareResend()
	return c.startSession(channel, req, msg, false)
}

// startSession installs a new session as the channel's current one.
func (c *Coordinator) startSession(channel model.Channel, req stream.Request, msg *model.Message, addToConv bool) error {
	if c.transport == nil {
		return ErrNoTransport
	}

	c.mu.Lock()
	ch := c.channels[channel]

	// Exactly one active session per channel: supersede the incumbent.
	// Bumping the generation makes it stale immediately; its own teardown
	// sees it is no longer current and leaves the new flags alone.
	if ch.current != nil {
		ch.current.requestCancel(CauseSuperseded)
	}
	ch.generation++

	ctx, cancel := context.WithCancel(context.Background())
	s := &session{
		channel:      channel,
		generation:   ch.generation,
		messageID:    msg.ID,
		msg:          msg,
		request:      req,
		startTime:    time.Now(),
		connectTimer: bubble.NewConnectTimer(c.cfg.MinConnectDisplay),
		ctx:          ctx,
		cancel:       cancel,
	}
	s.bundle = &registry.Bundle{
		MessageID:   msg.ID,
		Channel:     channel,
		Reassembler: reassembly.New(),
		Filter:      leakguard.New(c.cfg.LeakMarkers),
	}
	s.bundle.Buffer = buffer.New(msg.ID, c.cfg.Buffer, func(full string) {
		if inc := s.nextIncrement(full); inc != "" {
			c.proj.AppendText(msg.ID, inc)
		}
	}, c.metrics)

	ch.current = s
	ch.activeMessageID = msg.ID
	ch.isCalling = true
	c.mu.Unlock()

	if addToConv {
		c.conv.AddMessage(msg)
	}

	// Register releases any prior bundle for the same id first, so a
	// retried resend never mixes old deltas into the new buffer.
	c.proj.StartStreaming(msg.ID)
	c.reg.Register(s.bundle)

	c.send(SessionStartedMsg{Channel: channel, MessageID: msg.ID, StartTime: s.startTime})
	go c.run(s)
	return nil
}

// CancelSession cancels the channel's current session, if any.
// supersededByNewSend selects whether partial content is silently
// discarded (true) or surfaced as a finished bubble (false).
func (c *Coordinator) CancelSession(channel model.Channel, supersededByNewSend bool) {
	c.mu.Lock()
	s := c.channels[channel].current
	c.mu.Unlock()

	if s == nil {
		return
	}
	cause := CauseUserCanceled
	if supersededByNewSend {
		cause = CauseSuperseded
	}
	s.requestCancel(cause)
}

// isCurrent is the stale-session guard: a session may only mutate shared
// channel state while its generation still matches the channel's.
func (c *Coordinator) isCurrent(s *session) bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.channels[s.channel].generation == s.generation
}

// =============================================================================
// EVENT LOOP
// =============================================================================

// run is the session task. Teardown is guaranteed: it runs on every exit
// path, including panics inside dispatch, which are logged and demoted to
// the generic error path rather than escaping the goroutine.
func (c *Coordinator) run(s *session) {
	defer func() {
		if r := recover(); r != nil {
			c.logf("session %s panic: %v", s.messageID, r)
		}
		c.teardown(s)
	}()

	events, err := c.transport.Open(s.ctx, s.request)
	if err != nil {
		c.handleStreamError(s, err.Error())
		return
	}

	for {
		select {
		case <-s.ctx.Done():
			return

		case ev, ok := <-events:
			if !ok {
				// Producer closed without a terminal event; treat as a
				// stream end so the message still finalizes.
				c.finishTerminal(s)
				return
			}
			if !c.isCurrent(s) {
				s.requestCancel(CauseSuperseded)
				return
			}
			if done := c.dispatch(s, ev); done {
				return
			}
		}
	}
}

// dispatch applies one event. Returns true when the session is finished.
func (c *Coordinator) dispatch(s *session, ev stream.Event) bool {
	switch {
	case ev.Kind.IsContent():
		filtered := s.bundle.Filter.AppendAndCheck(ev.Text)
		if filtered == "" {
			// Nothing cleared for delivery: the chunk completed a leak
			// marker, or the filter is holding it back as a possible
			// marker prefix until more of the stream arrives.
			return false
		}
		fv := ev
		fv.Text = filtered
		if s.bundle.Reassembler.ProcessEvent(fv) == reassembly.OutcomeContentUpdated {
			s.markContentStarted()
			s.bundle.Buffer.Append(filtered)
			c.requestSave(false)
		}
		return false

	case ev.Kind == stream.KindReasoningDelta:
		s.bundle.Reassembler.ProcessEvent(ev)
		s.msg.AppendReasoning(ev.Text)
		s.connectTimer.Clear()
		c.conv.Touch()
		c.requestSave(false)
		c.send(ReasoningUpdatedMsg{MessageID: s.messageID})
		return false

	case ev.Kind == stream.KindReasoningFinished:
		s.bundle.Reassembler.ProcessEvent(ev)
		s.msg.MarkReasoningComplete()
		c.send(ReasoningUpdatedMsg{MessageID: s.messageID, Complete: true})
		return false

	case ev.Kind == stream.KindToolCall:
		s.bundle.Reassembler.ProcessEvent(ev)
		c.send(ToolActivityMsg{MessageID: s.messageID, Detail: "tool: " + ev.ToolName})
		return false

	case ev.Kind == stream.KindCodeExecutable, ev.Kind == stream.KindCodeExecutionResult:
		if s.bundle.Reassembler.ProcessEvent(ev) == reassembly.OutcomeContentUpdated {
			s.markContentStarted()
		}
		return false

	case ev.Kind == stream.KindWebSearchStatus:
		c.send(ToolActivityMsg{MessageID: s.messageID, Detail: "search: " + ev.Text})
		return false

	case ev.Kind == stream.KindWebSearchResults:
		c.send(ToolActivityMsg{MessageID: s.messageID, Detail: "search results"})
		return false

	case ev.Kind == stream.KindOutputTypeHint:
		s.bundle.Reassembler.ProcessEvent(ev)
		return false

	case ev.Kind == stream.KindFinish, ev.Kind == stream.KindStreamEnd:
		c.finishTerminal(s)
		return true

	case ev.Kind == stream.KindError:
		return c.handleStreamError(s, ev.Text)

	default:
		return false
	}
}

// =============================================================================
// TERMINAL AND ERROR PATHS
// =============================================================================

// drainFilter releases the leak filter's held-back tail into the content
// pipeline. The tail is clean by construction: a complete marker inside
// it would have matched when it entered the filter's window.
func (c *Coordinator) drainFilter(s *session) {
	rest := s.bundle.Filter.Drain()
	if rest == "" {
		return
	}
	s.bundle.Reassembler.ProcessEvent(stream.Event{Kind: stream.KindContentDelta, Text: rest})
	s.markContentStarted()
	s.bundle.Buffer.Append(rest)
}

// finishTerminal handles Finish/StreamEnd. Duplicates for an already
// finalized message id are silently ignored.
func (c *Coordinator) finishTerminal(s *session) {
	if !c.reg.MarkTerminal(s.messageID) {
		c.logf("session %s: duplicate terminal ignored", s.messageID)
		return
	}

	// Force-flush both buffering layers before declaring the message done.
	c.drainFilter(s)
	s.bundle.Buffer.Flush()
	c.proj.FinalizeMessage(s.messageID)

	s.bundle.Reassembler.Finalize(s.msg)
	s.msg.FinishStreaming()

	c.mu.Lock()
	delete(c.retries, s.messageID)
	c.mu.Unlock()

	c.conv.Touch()
	c.requestSave(true)
}

// handleStreamError routes a failure through retry classification. Returns
// true when the session must end.
func (c *Coordinator) handleStreamError(s *session, message string) bool {
	if stream.IsRetryable(message) {
		c.mu.Lock()
		attempt := c.retries[s.messageID] + 1
		withinCap := attempt <= c.cfg.RetryMax
		if withinCap {
			c.retries[s.messageID] = attempt
		} else {
			delete(c.retries, s.messageID)
		}
		c.mu.Unlock()

		if withinCap {
			c.logf("session %s: retryable failure (attempt %d/%d): %s",
				s.messageID, attempt, c.cfg.RetryMax, message)
			c.send(RetryScheduledMsg{
				Channel:   s.channel,
				MessageID: s.messageID,
				Attempt:   attempt,
				Delay:     c.cfg.RetryDelay,
			})

			select {
			case <-s.ctx.Done():
				return true
			case <-time.After(c.cfg.RetryDelay):
			}

			if !c.isCurrent(s) {
				return true
			}
			// Teardown emits the resend request after resources are
			// released, so the new buffer can never see old deltas.
			s.mu.Lock()
			s.cancelCause = CauseRetry
			s.mu.Unlock()
			return true
		}
	}

	c.surfaceError(s, message)
	return true
}

// surfaceError preserves streamed partial text and appends the prefixed
// failure message; partial content is never overwritten.
func (c *Coordinator) surfaceError(s *session, message string) {
	c.drainFilter(s)
	s.bundle.Buffer.Flush()
	partial := c.proj.FinalizeMessage(s.messageID)

	if strings.TrimSpace(partial) != "" {
		s.msg.FailWith(partial + "\n\n" + errorPrefix + message)
	} else {
		s.msg.FailWith(errorPrefix + message)
	}

	s.mu.Lock()
	s.cancelCause = CauseError
	s.mu.Unlock()

	c.conv.Touch()
	c.requestSave(true)
	c.send(SessionErrorMsg{Channel: s.channel, MessageID: s.messageID, Message: message})
}

// =============================================================================
// TEARDOWN
// =============================================================================

// teardown runs exactly once per session, on every exit path, in a fixed
// order: flush, persist partial, release resources, reset channel flags.
func (c *Coordinator) teardown(s *session) {
	cause := s.cause()

	// (1) Force-flush both buffering layers. Failures here are logged and
	// must never block the rest of teardown.
	c.safely("flush", func() {
		c.drainFilter(s)
		s.bundle.Buffer.Flush()
		c.proj.FinalizeMessage(s.messageID)
	})

	// (2) Persist non-blank partial content for a user cancellation.
	// Superseded and retried sessions discard silently; completed and
	// errored sessions already wrote their content.
	if cause == CauseUserCanceled {
		if s.msg.FinishCanceled(s.bundle.Buffer.CurrentContent()) {
			c.conv.Touch()
			c.requestSave(true)
		}
	}
	if cause == CauseSuperseded || cause == CauseRetry {
		s.msg.FinishStreaming()
	}

	// (3) Release the resource bundle. Pointer-checked so a successor's
	// bundle for the same message id survives.
	c.reg.RemoveBundle(s.bundle)

	// (4) Reset the channel's UI flags, but only if this session is still
	// the channel's current one.
	c.mu.Lock()
	ch := c.channels[s.channel]
	if ch.current == s {
		ch.current = nil
		ch.activeMessageID = ""
		ch.isCalling = false
	}
	c.mu.Unlock()

	s.cancel()
	c.send(SessionFinishedMsg{Channel: s.channel, MessageID: s.messageID, Cause: cause})

	if cause == CauseRetry {
		c.send(RetryRequestMsg{Channel: s.channel, MessageID: s.messageID, Request: s.request})
	}
}

// safely runs fn and demotes panics to log lines.
func (c *Coordinator) safely(what string, fn func()) {
	defer func() {
		if r := recover(); r != nil {
			c.logf("%s failed: %v", what, r)
		}
	}()
	fn()
}

// =============================================================================
// OBSERVABLE SURFACE
// =============================================================================

// onProjection is the projector's observer. While paused, updates are
// swallowed and a single resync is issued on resume.
func (c *Coordinator) onProjection(messageID, content string) {
	c.mu.Lock()
	if c.paused {
		c.resyncDirty = true
		c.mu.Unlock()
		return
	}
	c.mu.Unlock()
	c.send(ProjectionUpdatedMsg{MessageID: messageID, Content: content})
}

// TogglePause flips the global pause flag. Ingestion continues while
// paused; resuming performs one full resync of every in-flight projection.
func (c *Coordinator) TogglePause() {
	c.mu.Lock()
	c.paused = !c.paused
	paused := c.paused
	needResync := !paused && c.resyncDirty
	if needResync {
		c.resyncDirty = false
	}
	var activeIDs []string
	if needResync {
		for _, ch := range c.channels {
			if ch.activeMessageID != "" {
				activeIDs = append(activeIDs, ch.activeMessageID)
			}
		}
	}
	c.mu.Unlock()

	c.send(PauseToggledMsg{Paused: paused})
	if needResync {
		contents := make(map[string]string, len(activeIDs))
		for _, id := range activeIDs {
			contents[id] = c.proj.CurrentContent(id)
		}
		c.send(ResyncMsg{Contents: contents})
	}
}

// Paused reports the global pause flag.
func (c *Coordinator) Paused() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.paused
}

// IsCalling reports whether the channel has a session in flight.
func (c *Coordinator) IsCalling(channel model.Channel) bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.channels[channel].isCalling
}

// ActiveStreamingMessageID returns the channel's active message id, or "".
func (c *Coordinator) ActiveStreamingMessageID(channel model.Channel) string {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.channels[channel].activeMessageID
}

// ProjectedContent returns the current observable text for a message.
func (c *Coordinator) ProjectedContent(messageID string) string {
	return c.proj.CurrentContent(messageID)
}

// BubbleState derives the presentation state for a message.
func (c *Coordinator) BubbleState(messageID string) bubble.State {
	c.mu.Lock()
	paused := c.paused
	var s *session
	for _, ch := range c.channels {
		if ch.current != nil && ch.current.messageID == messageID {
			s = ch.current
			break
		}
	}
	c.mu.Unlock()

	msg := c.conv.MessageByID(messageID)
	in := bubble.Inputs{IsPaused: paused}

	// Reads go through a snapshot: the session goroutine keeps writing the
	// record while the UI derives its phase.
	var snap model.MessageSnapshot
	if msg != nil {
		snap = msg.Snapshot()
		in.IsError = snap.IsError
		in.ErrorMessage = snap.Content
		in.Reasoning = snap.Reasoning
		in.HasReasoning = snap.HasReasoning()
		in.ReasoningComplete = snap.ReasoningComplete
	}

	if s != nil {
		in.IsActiveSession = true
		in.WithinMinConnectDisplay = s.connectTimer.Within()
		in.ContentStarted = s.hasContentStarted()
		in.Content = c.proj.CurrentContent(messageID)
		if r := s.bundle.Reassembler.CurrentReasoning(); r != "" {
			in.Reasoning = r
			in.HasReasoning = true
		}
		in.ReasoningComplete = s.bundle.Reassembler.ReasoningComplete()
	} else if msg != nil {
		in.Content = snap.Content
		in.ContentStarted = !snap.IsBlank()
	}

	return bubble.DeriveState(in)
}

// =============================================================================
// RESOURCE MAINTENANCE
// =============================================================================

// CleanupChannel reclaims every bundle on the channel that is neither
// visible in the conversation nor actively streaming.
func (c *Coordinator) CleanupChannel(channel model.Channel) int {
	return c.reg.SweepChannel(channel, c.conv.VisibleIDs(channel), c.ActiveStreamingMessageID(channel))
}

// CheckMemoryPressure runs the aggressive sweep across both channels if
// the bundle count warrants it.
func (c *Coordinator) CheckMemoryPressure() int {
	visible := make(map[model.Channel]map[string]struct{}, len(model.Channels))
	active := make(map[model.Channel]string, len(model.Channels))
	for _, ch := range model.Channels {
		visible[ch] = c.conv.VisibleIDs(ch)
		active[ch] = c.ActiveStreamingMessageID(ch)
	}
	return c.reg.CheckPressure(visible, active)
}

// =============================================================================
// HELPERS
// =============================================================================

// send delivers a message to the UI layer, if wired.
func (c *Coordinator) send(msg tea.Msg) {
	if c.notify != nil {
		c.notify(msg)
	}
}

// requestSave triggers persistence, if wired.
func (c *Coordinator) requestSave(force bool) {
	if c.saver != nil {
		c.saver.Request(force)
	}
}

// logf logs through the configured logger, if any.
func (c *Coordinator) logf(format string, args ...any) {
	if c.logger != nil {
		c.logger.Printf(format, args...)
	}
}
