// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

package chat

import (
	"context"
	"strconv"
	"strings"
	"time"

	"github.com/charmbracelet/bubbles/spinner"
	"github.com/charmbracelet/bubbles/textarea"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/glamour"

	"github.com/jeranaias/rigrun-mobile/internal/coordinator"
	"github.com/jeranaias/rigrun-mobile/internal/model"
	"github.com/jeranaias/rigrun-mobile/internal/stream"
	"github.com/jeranaias/rigrun-mobile/internal/ui/styles"
)

// archiveTimeout bounds the background insert into the history database.
const archiveTimeout = 5 * time.Second

// archivedMsg reports the outcome of a background archive write.
type archivedMsg struct {
	messageID string
	err       error
}

// Init starts the input blink and spinner animations.
func (m Model) Init() tea.Cmd {
	return tea.Batch(textarea.Blink, m.spin.Tick)
}

// Update handles all incoming messages.
func (m Model) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	var cmds []tea.Cmd

	switch msg := msg.(type) {
	case tea.WindowSizeMsg:
		m.resize(msg.Width, msg.Height)
		m.refreshViewport()

	case tea.KeyMsg:
		switch msg.String() {
		case "ctrl+c":
			m.quitting = true
			return m, tea.Quit

		case "esc":
			m.coord.CancelSession(model.ChannelText, false)
			m.coord.CancelSession(model.ChannelImage, false)
			return m, nil

		case "ctrl+p":
			m.coord.TogglePause()
			return m, nil

		case "ctrl+l":
			reclaimed := m.coord.CleanupChannel(model.ChannelText)
			reclaimed += m.coord.CleanupChannel(model.ChannelImage)
			reclaimed += m.coord.CheckMemoryPressure()
			m.status = styles.StatusIndicators.Info + " reclaimed " + strconv.Itoa(reclaimed) + " stream buffers"
			return m, nil

		case "ctrl+g":
			return m, m.send(model.ChannelImage)

		case "enter":
			return m, m.send(model.ChannelText)
		}

	case spinner.TickMsg:
		var cmd tea.Cmd
		m.spin, cmd = m.spin.Update(msg)
		return m, cmd

	// ==========================================================================
	// COORDINATOR MESSAGES
	// ==========================================================================

	case coordinator.SessionStartedMsg:
		m.status = ""
		m.refreshViewport()
		return m, coordinator.TickCmd()

	case coordinator.TickMsg:
		m.refreshViewport()
		if m.streaming() {
			return m, coordinator.TickCmd()
		}
		return m, nil

	case coordinator.ProjectionUpdatedMsg, coordinator.ReasoningUpdatedMsg, coordinator.ResyncMsg:
		m.refreshViewport()
		return m, nil

	case coordinator.ToolActivityMsg:
		m.activity[msg.MessageID] = msg.Detail
		m.refreshViewport()
		return m, nil

	case coordinator.SessionFinishedMsg:
		m.refreshViewport()
		if msg.Cause == coordinator.CauseCompleted || msg.Cause == coordinator.CauseUserCanceled {
			return m, m.archiveCmd(msg.MessageID)
		}
		return m, nil

	case coordinator.SessionErrorMsg:
		m.status = styles.RenderError(msg.Message)
		m.refreshViewport()
		return m, m.archiveCmd(msg.MessageID)

	case coordinator.RetryScheduledMsg:
		m.status = styles.RenderWarning(
			"connection lost, retrying (attempt " + strconv.Itoa(msg.Attempt) + ")")
		m.refreshViewport()
		return m, nil

	case coordinator.RetryRequestMsg:
		if err := m.coord.RestartSession(msg.Channel, msg.MessageID, msg.Request); err != nil {
			m.logf("retry restart failed: %v", err)
			m.status = styles.RenderError("retry failed: " + err.Error())
		}
		return m, coordinator.TickCmd()

	case coordinator.PauseToggledMsg:
		if msg.Paused {
			m.status = m.theme.PausedBadge.Render(styles.StatusIndicators.Paused + " stream updates paused")
		} else {
			m.status = ""
		}
		m.refreshViewport()
		return m, nil

	case archivedMsg:
		if msg.err != nil {
			m.logf("archive %s: %v", msg.messageID, msg.err)
		}
		return m, nil
	}

	// Forward everything else to the input and viewport.
	var cmd tea.Cmd
	m.input, cmd = m.input.Update(msg)
	cmds = append(cmds, cmd)
	m.viewport, cmd = m.viewport.Update(msg)
	cmds = append(cmds, cmd)

	return m, tea.Batch(cmds...)
}

// send issues the typed prompt on the given channel.
func (m *Model) send(channel model.Channel) tea.Cmd {
	prompt := strings.TrimSpace(m.input.Value())
	if prompt == "" {
		return nil
	}

	m.conv.AddMessage(model.NewUserMessage(channel, prompt))

	req := stream.Request{
		Prompt:    prompt,
		Model:     m.cfg.DefaultModel,
		WantImage: channel == model.ChannelImage,
	}
	if channel == model.ChannelImage {
		req.Model = m.cfg.ImageModel
	}

	if _, err := m.coord.StartSession(channel, req); err != nil {
		m.status = styles.RenderError(err.Error())
		m.refreshViewport()
		return nil
	}

	m.input.Reset()
	m.status = ""
	m.refreshViewport()
	return coordinator.TickCmd()
}

// archiveCmd writes a finished message to the history database off the
// update loop.
func (m *Model) archiveCmd(messageID string) tea.Cmd {
	if m.archive == nil {
		return nil
	}
	msg := m.conv.MessageByID(messageID)
	if msg == nil {
		return nil
	}
	convID := m.conv.ID
	archive := m.archive
	return func() tea.Msg {
		ctx, cancel := context.WithTimeout(context.Background(), archiveTimeout)
		defer cancel()
		return archivedMsg{messageID: messageID, err: archive.ArchiveMessage(ctx, convID, msg)}
	}
}

// resize lays out the chrome for the new terminal size.
func (m *Model) resize(width, height int) {
	m.width = width
	m.height = height
	m.theme.SetSize(width, height)

	inputHeight := m.input.Height() + 2 // top border and padding
	chromeHeight := 1 + 1 + inputHeight // header + status bar + input
	viewportHeight := height - chromeHeight
	if viewportHeight < 3 {
		viewportHeight = 3
	}

	if !m.ready {
		m.viewport = newViewport(width, viewportHeight)
		m.ready = true
	} else {
		m.viewport.Width = width
		m.viewport.Height = viewportHeight
	}
	m.input.SetWidth(width - 4)

	wrap := width - 8
	if wrap < 20 {
		wrap = 20
	}
	renderer, err := glamour.NewTermRenderer(
		glamour.WithAutoStyle(),
		glamour.WithWordWrap(wrap),
	)
	if err != nil {
		m.logf("glamour renderer: %v", err)
		renderer = nil
	}
	m.renderer = renderer
}

// refreshViewport re-renders the transcript and keeps the view pinned to
// the latest message.
func (m *Model) refreshViewport() {
	if !m.ready {
		return
	}
	atBottom := m.viewport.AtBottom()
	m.viewport.SetContent(m.renderMessages())
	if atBottom {
		m.viewport.GotoBottom()
	}
}
