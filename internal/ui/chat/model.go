// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

package chat

import (
	"log"

	"github.com/charmbracelet/bubbles/spinner"
	"github.com/charmbracelet/bubbles/textarea"
	"github.com/charmbracelet/bubbles/viewport"
	"github.com/charmbracelet/glamour"

	"github.com/jeranaias/rigrun-mobile/internal/config"
	"github.com/jeranaias/rigrun-mobile/internal/coordinator"
	"github.com/jeranaias/rigrun-mobile/internal/history"
	"github.com/jeranaias/rigrun-mobile/internal/model"
	"github.com/jeranaias/rigrun-mobile/internal/ui/styles"
)

// maxInputRunes caps the prompt length; long pastes are truncated by the
// textarea itself.
const maxInputRunes = 4000

// Options wires the chat screen's collaborators.
type Options struct {
	Config       *config.Config
	Coordinator  *coordinator.Coordinator
	Conversation *model.Conversation
	// Archive receives finished assistant messages; nil disables archiving.
	Archive *history.Archive
	Logger  *log.Logger
}

// Model is the Bubble Tea model for the chat screen.
type Model struct {
	cfg     *config.Config
	coord   *coordinator.Coordinator
	conv    *model.Conversation
	archive *history.Archive
	logger  *log.Logger
	theme   *styles.Theme

	viewport viewport.Model
	input    textarea.Model
	spin     spinner.Model
	renderer *glamour.TermRenderer

	width  int
	height int
	ready  bool

	// status is the one-line notice shown in the status bar; cleared on the
	// next session start.
	status string

	// activity holds the latest tool or web-search detail per message id.
	activity map[string]string

	quitting bool
}

// New creates the chat screen.
func New(opts Options) Model {
	theme := styles.NewTheme()

	input := textarea.New()
	input.Placeholder = "Message..."
	input.CharLimit = maxInputRunes
	input.ShowLineNumbers = false
	input.SetHeight(2)
	input.Focus()
	// Enter sends; the phone form factor has no multi-line composer.
	input.KeyMap.InsertNewline.SetEnabled(false)

	spin := spinner.New()
	spin.Spinner = spinner.Spinner{
		Frames: styles.DotsSpinner.Frames,
		FPS:    styles.DotsSpinner.Duration(),
	}
	spin.Style = theme.Spinner

	return Model{
		cfg:      opts.Config,
		coord:    opts.Coordinator,
		conv:     opts.Conversation,
		archive:  opts.Archive,
		logger:   opts.Logger,
		theme:    theme,
		input:    input,
		spin:     spin,
		activity: make(map[string]string),
	}
}

// streaming reports whether any channel has a session in flight.
func (m *Model) streaming() bool {
	return m.coord.IsCalling(model.ChannelText) || m.coord.IsCalling(model.ChannelImage)
}

func (m *Model) logf(format string, args ...any) {
	if m.logger != nil {
		m.logger.Printf(format, args...)
	}
}
