// Copyright 2026 The Periscope Authors
// SPDX-License-Identifier: Apache-2.0

package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/charmbracelet/bubbles/textinput"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"

	"github.com/periscope-project/periscope/input"
	"github.com/periscope-project/periscope/render"
	"github.com/periscope-project/periscope/session"
	"github.com/periscope-project/periscope/snapshot"
	"github.com/periscope-project/periscope/statesync"
	"github.com/periscope-project/periscope/zone"
)

// chromeRows is the number of terminal rows reserved below the
// mirrored surface: the chat line and the status bar.
const chromeRows = 2

// fpsRefresh is how often the status bar repaints when nothing else
// is happening (the FPS readout decays between frames).
const fpsRefresh = 500 * time.Millisecond

type (
	// hostUpdateMsg carries one statesync event into the TUI loop.
	hostUpdateMsg statesync.Update

	// connectedMsg carries the bootstrap snapshot.
	connectedMsg struct{ snap *snapshot.Snapshot }

	// connectFailedMsg reports a failed bootstrap.
	connectFailedMsg struct{ err error }

	// modeMsg reports a session mode transition.
	modeMsg session.Mode

	// renderErrMsg surfaces a renderer decode failure.
	renderErrMsg struct{ err error }

	// chatSentMsg reports the outcome of a chat submit.
	chatSentMsg struct{ err error }

	// tickMsg repaints the status bar.
	tickMsg struct{}
)

var (
	statusBase = lipgloss.NewStyle().Padding(0, 1)

	modeStyles = map[session.Mode]lipgloss.Style{
		session.Idle:         statusBase.Foreground(lipgloss.Color("244")),
		session.Connecting:   statusBase.Foreground(lipgloss.Color("179")),
		session.Connected:    statusBase.Foreground(lipgloss.Color("71")),
		session.TypingActive: statusBase.Foreground(lipgloss.Color("203")).Bold(true),
		session.Error:        statusBase.Foreground(lipgloss.Color("196")).Bold(true),
	}

	noticeStyle = lipgloss.NewStyle().Foreground(lipgloss.Color("135"))
	faintStyle  = lipgloss.NewStyle().Foreground(lipgloss.Color("244"))
)

type modelConfig struct {
	client     *statesync.Client
	controller *session.Controller
	dispatcher *input.Dispatcher
	renderer   *render.Renderer
	target     *render.TerminalTarget
	mapper     *zone.Mapper
	logger     *slog.Logger
	host       string
	modes      <-chan session.Mode
	renderErrs <-chan error
}

type model struct {
	modelConfig

	handle   *session.Session
	zones    []zone.Zone
	width    int
	height   int
	notice   string
	chatOpen bool
	chatInto *zone.Zone
	chat     textinput.Model
}

func newModel(cfg modelConfig) *model {
	chat := textinput.New()
	chat.Placeholder = "message the assistant (enter to send, esc to cancel)"
	chat.CharLimit = 2000
	return &model{modelConfig: cfg, chat: chat}
}

func (m *model) Init() tea.Cmd {
	handle, err := m.controller.Connect(m.host)
	if err != nil {
		return func() tea.Msg { return connectFailedMsg{err} }
	}
	m.handle = handle

	return tea.Batch(
		m.connectCmd(),
		m.waitForUpdate(),
		m.waitForMode(),
		m.waitForRenderErr(),
		tick(),
	)
}

func tick() tea.Cmd {
	return tea.Tick(fpsRefresh, func(time.Time) tea.Msg { return tickMsg{} })
}

func (m *model) connectCmd() tea.Cmd {
	return func() tea.Msg {
		snap, err := m.client.Connect(context.Background())
		if err != nil {
			return connectFailedMsg{err}
		}
		return connectedMsg{snap}
	}
}

func (m *model) waitForUpdate() tea.Cmd {
	return func() tea.Msg { return hostUpdateMsg(<-m.client.Updates()) }
}

func (m *model) waitForMode() tea.Cmd {
	return func() tea.Msg { return modeMsg(<-m.modes) }
}

func (m *model) waitForRenderErr() tea.Cmd {
	return func() tea.Msg { return renderErrMsg{<-m.renderErrs} }
}

func (m *model) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case connectedMsg:
		m.presentSnapshot(msg.snap)
		m.controller.StateDelivered()
		m.notice = ""
		return m, nil

	case connectFailedMsg:
		m.controller.TransportFailed(msg.err)
		m.notice = msg.err.Error()
		return m, nil

	case hostUpdateMsg:
		m.applyHostUpdate(statesync.Update(msg))
		return m, m.waitForUpdate()

	case modeMsg:
		if session.Mode(msg) == session.TypingActive {
			m.renderer.SetActiveZone(m.controller.ActiveZone())
		} else {
			m.renderer.SetActiveZone(nil)
		}
		return m, m.waitForMode()

	case renderErrMsg:
		m.notice = msg.err.Error()
		return m, m.waitForRenderErr()

	case chatSentMsg:
		if msg.err != nil {
			m.notice = msg.err.Error()
		} else {
			m.notice = "chat message sent"
		}
		return m, nil

	case tickMsg:
		return m, tick()

	case tea.WindowSizeMsg:
		m.width = msg.Width
		m.height = msg.Height
		m.target.Resize(msg.Width, max(msg.Height-chromeRows, 1))
		m.renderer.Resize()
		return m, nil

	case tea.MouseMsg:
		return m, m.handleMouse(msg)

	case tea.KeyMsg:
		return m.handleKey(msg)
	}
	return m, nil
}

// presentSnapshot extracts zones and hands the frame to the renderer.
func (m *model) presentSnapshot(snap *snapshot.Snapshot) {
	m.zones = zone.Extract(&snap.Root, snap.Viewport)
	m.renderer.Present(snap, m.zones)
}

func (m *model) applyHostUpdate(update statesync.Update) {
	switch {
	case update.Snapshot != nil:
		m.presentSnapshot(update.Snapshot)
		m.controller.StateDelivered()

	case update.Confirmed != nil:
		m.logger.Debug("input confirmed", "key", update.Confirmed.Key, "sequence", update.Confirmed.Sequence)

	case update.Err != nil:
		var transportErr *statesync.TransportError
		var remoteErr *statesync.RemoteError
		switch {
		case errors.As(update.Err, &transportErr) && transportErr.Exhausted:
			m.controller.TransportFailed(update.Err)
			m.notice = "connection lost: " + update.Err.Error()
		case errors.As(update.Err, &remoteErr) && !remoteErr.Recoverable:
			m.controller.TransportFailed(update.Err)
			m.notice = remoteErr.Message
		default:
			// Degraded but alive: show it, keep going.
			m.notice = update.Err.Error()
		}
	}
}

// handleMouse maps a click through the zone mapper and routes it to
// the session controller. Chat zones open the direct-submit overlay.
func (m *model) handleMouse(msg tea.MouseMsg) tea.Cmd {
	if msg.Action != tea.MouseActionPress || msg.Button != tea.MouseButtonLeft {
		return nil
	}
	if m.chatOpen || msg.Y >= m.height-chromeRows {
		return nil
	}

	// Terminal cells are two raster pixels tall; aim for the cell
	// center.
	clicked, ok := m.mapper.ZoneAt(float64(msg.X)+0.5, float64(msg.Y*2)+1)
	if !ok {
		return nil
	}

	if err := m.controller.HandleClick(clicked); err != nil {
		m.notice = err.Error()
		return nil
	}
	if clicked.Type == snapshot.ElementChat {
		m.openChat(clicked)
	}
	return nil
}

func (m *model) openChat(z zone.Zone) {
	m.chatOpen = true
	copied := z
	m.chatInto = &copied
	m.chat.Focus()
}

func (m *model) closeChat() {
	m.chatOpen = false
	m.chatInto = nil
	m.chat.Blur()
	m.chat.Reset()
}

func (m *model) handleKey(msg tea.KeyMsg) (tea.Model, tea.Cmd) {
	if msg.Type == tea.KeyCtrlC {
		return m, m.quit()
	}

	if m.chatOpen {
		switch msg.Type {
		case tea.KeyEscape:
			m.closeChat()
			return m, nil
		case tea.KeyEnter:
			text := strings.TrimSpace(m.chat.Value())
			m.closeChat()
			if text == "" {
				return m, nil
			}
			return m, func() tea.Msg {
				_, err := m.client.SubmitText(context.Background(), text)
				return chatSentMsg{err}
			}
		}
		var cmd tea.Cmd
		m.chat, cmd = m.chat.Update(msg)
		return m, cmd
	}

	mode := m.controller.Mode()
	if mode != session.TypingActive {
		switch msg.String() {
		case "q":
			return m, m.quit()
		case "r":
			if mode == session.Error {
				m.controller.Reset()
				return m, m.reconnectCmd()
			}
			return m, nil
		}
		return m, nil
	}

	key, modifiers, ok := keyEvent(msg)
	if !ok {
		return m, nil
	}
	if err := m.controller.HandleKey(key, modifiers); err != nil {
		m.notice = err.Error()
	}
	return m, nil
}

func (m *model) reconnectCmd() tea.Cmd {
	handle, err := m.controller.Connect(m.host)
	if err != nil {
		m.notice = err.Error()
		return nil
	}
	m.handle = handle
	m.notice = ""
	return m.connectCmd()
}

func (m *model) quit() tea.Cmd {
	if m.handle != nil {
		if err := m.handle.Stop(); err != nil && !errors.Is(err, session.ErrStaleSession) {
			m.logger.Warn("session stop failed", "error", err)
		}
	}
	return tea.Quit
}

// keyEvent translates a bubbletea key into the wire key name and
// modifier list.
func keyEvent(msg tea.KeyMsg) (string, []string, bool) {
	switch msg.Type {
	case tea.KeyRunes:
		if len(msg.Runes) != 1 {
			// Bracketed paste arrives as one multi-rune event;
			// forwarding it per-rune would bypass batching limits.
			return "", nil, false
		}
		var modifiers []string
		if msg.Alt {
			modifiers = append(modifiers, "alt")
		}
		return string(msg.Runes), modifiers, true
	case tea.KeySpace:
		return " ", nil, true
	case tea.KeyEnter:
		return input.KeyEnter, nil, true
	case tea.KeyEscape:
		return input.KeyEscape, nil, true
	case tea.KeyBackspace:
		return "Backspace", nil, true
	case tea.KeyDelete:
		return "Delete", nil, true
	case tea.KeyTab:
		return "Tab", nil, true
	case tea.KeyUp:
		return "ArrowUp", nil, true
	case tea.KeyDown:
		return "ArrowDown", nil, true
	case tea.KeyLeft:
		return "ArrowLeft", nil, true
	case tea.KeyRight:
		return "ArrowRight", nil, true
	case tea.KeyHome:
		return "Home", nil, true
	case tea.KeyEnd:
		return "End", nil, true
	case tea.KeyPgUp:
		return "PageUp", nil, true
	case tea.KeyPgDown:
		return "PageDown", nil, true
	}

	// Modifier combos ("ctrl+s", "alt+enter") arrive pre-formatted;
	// split them into key and modifiers.
	name := msg.String()
	var modifiers []string
	for {
		switch {
		case strings.HasPrefix(name, "ctrl+"):
			modifiers = append(modifiers, "ctrl")
			name = strings.TrimPrefix(name, "ctrl+")
		case strings.HasPrefix(name, "alt+"):
			modifiers = append(modifiers, "alt")
			name = strings.TrimPrefix(name, "alt+")
		case strings.HasPrefix(name, "shift+"):
			modifiers = append(modifiers, "shift")
			name = strings.TrimPrefix(name, "shift+")
		default:
			if name == "" {
				return "", nil, false
			}
			return name, modifiers, true
		}
	}
}

func (m *model) View() string {
	if m.width == 0 {
		return "starting…"
	}

	var view strings.Builder
	view.WriteString(m.target.View())
	view.WriteByte('\n')

	if m.chatOpen {
		view.WriteString(m.chat.View())
	} else {
		view.WriteString(faintStyle.Render("click a zone to type; click the chat panel to message"))
	}
	view.WriteByte('\n')
	view.WriteString(m.statusLine())
	return view.String()
}

func (m *model) statusLine() string {
	mode := m.controller.Mode()
	style, ok := modeStyles[mode]
	if !ok {
		style = statusBase
	}

	transport := "poll"
	if m.client.PushConnected() {
		transport = "push"
	}

	parts := []string{
		style.Render(mode.String()),
		faintStyle.Render(m.host),
		faintStyle.Render(transport),
		faintStyle.Render(fmt.Sprintf("%.1f fps", m.renderer.Stats().FPS())),
		faintStyle.Render(fmt.Sprintf("%d zones", len(m.zones))),
	}
	if pending := m.dispatcher.PendingLen(); pending > 0 {
		parts = append(parts, noticeStyle.Render(fmt.Sprintf("%d pending", pending)))
	}
	if active := m.controller.ActiveZone(); active != nil {
		parts = append(parts, noticeStyle.Render("typing → "+active.Selector))
	}
	if m.notice != "" {
		parts = append(parts, noticeStyle.Render(m.notice))
	}
	return strings.Join(parts, faintStyle.Render(" │ "))
}
