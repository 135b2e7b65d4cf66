// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

package chat

import (
	"strings"

	"github.com/charmbracelet/bubbles/viewport"
	"github.com/charmbracelet/glamour"
	"github.com/charmbracelet/lipgloss"

	"github.com/jeranaias/rigrun-mobile/internal/bubble"
	"github.com/jeranaias/rigrun-mobile/internal/model"
	"github.com/jeranaias/rigrun-mobile/internal/ui/styles"
	"github.com/jeranaias/rigrun-mobile/internal/util"
)

// reasoningTailLines is how many trailing reasoning lines stay visible
// while the model is still thinking; the full text is kept on the message.
const reasoningTailLines = 6

func newViewport(width, height int) viewport.Model {
	vp := viewport.New(width, height)
	vp.MouseWheelEnabled = true
	return vp
}

// View renders the whole chat screen.
func (m Model) View() string {
	if m.quitting {
		return ""
	}
	if !m.ready {
		return "loading..."
	}

	var b strings.Builder
	b.WriteString(m.renderHeader())
	b.WriteString("\n")
	b.WriteString(m.viewport.View())
	b.WriteString("\n")
	b.WriteString(m.renderStatusBar())
	b.WriteString("\n")
	b.WriteString(m.theme.InputContainer.Width(m.width - 2).Render(
		m.theme.InputPrompt.Render("> ") + m.input.View()))
	return b.String()
}

func (m Model) renderHeader() string {
	title := m.theme.HeaderTitle.Render("rigrun")
	mdl := m.theme.HeaderModel.Render(util.TruncateWidth(m.cfg.DefaultModel, 24))
	line := title + " " + mdl
	return m.theme.Header.Width(m.width).Render(line)
}

func (m Model) renderStatusBar() string {
	if m.status != "" {
		return m.theme.StatusBar.Width(m.width).Render(util.TruncateWidth(m.status, m.width-2))
	}

	var parts []string
	if m.coord.Paused() {
		parts = append(parts, m.theme.PausedBadge.Render(styles.StatusIndicators.Paused+" paused"))
	}
	if m.streaming() {
		parts = append(parts, m.theme.ShortcutDesc.Render("esc")+m.theme.ShortcutDesc.Render(" stop"))
	}
	parts = append(parts,
		m.theme.ShortcutKey.Render("enter")+m.theme.ShortcutDesc.Render(" send"),
		m.theme.ShortcutKey.Render("^g")+m.theme.ShortcutDesc.Render(" image"),
		m.theme.ShortcutKey.Render("^p")+m.theme.ShortcutDesc.Render(" pause"),
	)
	return m.theme.StatusBar.Width(m.width).Render(strings.Join(parts, "  "))
}

// renderMessages renders the transcript for the viewport.
func (m Model) renderMessages() string {
	msgs := m.conv.Snapshot()
	if len(msgs) == 0 {
		return m.theme.ThinkingText.Render("\n  Start a conversation.\n")
	}

	bubbleWidth := m.width - 6
	if bubbleWidth < 20 {
		bubbleWidth = 20
	}

	var parts []string
	for _, msg := range msgs {
		switch msg.Role {
		case model.RoleUser:
			content := m.theme.UserBubble.MaxWidth(bubbleWidth).Render(msg.Content)
			parts = append(parts, lipgloss.PlaceHorizontal(m.width, lipgloss.Right, content))

		case model.RoleSystem:
			content := m.theme.SystemBubble.MaxWidth(bubbleWidth).Render(msg.Content)
			parts = append(parts, lipgloss.PlaceHorizontal(m.width, lipgloss.Center, content))

		case model.RoleAssistant:
			// The session goroutine may still be writing this record;
			// render from a locked snapshot.
			st := m.coord.BubbleState(msg.ID)
			out := renderAssistant(m.theme, m.renderer, st, msg.Snapshot(),
				m.spin.View(), m.activity[msg.ID], bubbleWidth, m.cfg.UI.ShowReasoning)
			if out != "" {
				parts = append(parts, out)
			}
		}
	}
	return "\n" + strings.Join(parts, "\n\n") + "\n"
}

// renderAssistant renders one assistant message from its derived phase.
// It is a free function so the phase rendering stays testable without a
// live coordinator.
func renderAssistant(theme *styles.Theme, renderer *glamour.TermRenderer,
	st bubble.State, snap model.MessageSnapshot, spinnerView, activity string,
	width int, showReasoning bool) string {

	switch st.Phase {
	case bubble.PhaseConnecting:
		return theme.ThinkingText.Render(spinnerView + " connecting")

	case bubble.PhaseReasoning:
		var b strings.Builder
		if showReasoning && st.Reasoning != "" {
			b.WriteString(theme.ReasoningLabel.Render("thinking"))
			b.WriteString("\n")
			b.WriteString(theme.ReasoningBlock.MaxWidth(width).Render(
				reasoningTail(st.Reasoning, reasoningTailLines)))
			b.WriteString("\n")
		}
		b.WriteString(theme.ThinkingText.Render(spinnerView + " thinking"))
		return b.String()

	case bubble.PhaseStreaming:
		var b strings.Builder
		if showReasoning && st.HasReasoning {
			b.WriteString(theme.ReasoningLabel.Render("thought"))
			b.WriteString("\n")
		}
		b.WriteString(theme.AssistantBubble.MaxWidth(width).Render(st.Content))
		if activity != "" {
			b.WriteString("\n")
			b.WriteString(theme.ToolActivity.Render(activity))
		}
		return b.String()

	case bubble.PhaseComplete:
		var b strings.Builder
		if showReasoning && st.HasReasoning {
			b.WriteString(theme.ReasoningLabel.Render("thought"))
			b.WriteString("\n")
		}
		b.WriteString(theme.AssistantBubble.MaxWidth(width).Render(
			renderMarkdown(renderer, st.Content)))
		if snap.ImageURL != "" {
			b.WriteString("\n")
			b.WriteString(theme.ImageLink.Render(snap.ImageURL))
		}
		if activity != "" {
			b.WriteString("\n")
			b.WriteString(theme.ToolActivity.Render(activity))
		}
		if snap.WasCanceled {
			b.WriteString("\n")
			b.WriteString(theme.ThinkingText.Render("(stopped)"))
		}
		return b.String()

	case bubble.PhaseError:
		return theme.ErrorBubble.MaxWidth(width).Render(st.ErrorMessage)

	default:
		// Idle bubbles render nothing; canceled-before-content messages
		// still show the stopped note.
		if snap.WasCanceled {
			return theme.ThinkingText.Render("(stopped)")
		}
		return ""
	}
}

// renderMarkdown renders completed content through Glamour, falling back to
// the raw text when the renderer is unavailable or fails.
func renderMarkdown(renderer *glamour.TermRenderer, content string) string {
	if renderer == nil || strings.TrimSpace(content) == "" {
		return content
	}
	out, err := renderer.Render(content)
	if err != nil {
		return content
	}
	return strings.TrimRight(out, "\n")
}

// reasoningTail returns the last n non-empty lines of the reasoning text.
func reasoningTail(reasoning string, n int) string {
	lines := strings.Split(strings.TrimSpace(reasoning), "\n")
	kept := lines[:0]
	for _, line := range lines {
		if strings.TrimSpace(line) != "" {
			kept = append(kept, line)
		}
	}
	if len(kept) > n {
		kept = kept[len(kept)-n:]
	}
	return strings.Join(kept, "\n")
}
