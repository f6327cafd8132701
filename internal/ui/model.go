// Package ui is the terminal presentation of the catalog browser. It only
// renders snapshots and forwards intents; all fetch logic lives in browse.
package ui

import (
	"context"
	"fmt"
	"strings"

	"github.com/Sternrassler/catalog-browser/pkg/browse"
	"github.com/Sternrassler/catalog-browser/pkg/logging"
	"github.com/charmbracelet/bubbles/help"
	"github.com/charmbracelet/bubbles/key"
	"github.com/charmbracelet/bubbles/spinner"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"
	"github.com/rs/zerolog"
)

// Title heads the screen.
const Title = "Pokémon List"

// Browser is the part of browse.Orchestrator the UI needs.
type Browser interface {
	Snapshot() browse.Snapshot
	SelectCategory(ctx context.Context, name string) error
	IncreaseLimit(ctx context.Context) error
}

// snapshotMsg carries a new view from the orchestrator.
type snapshotMsg struct {
	snap browse.Snapshot
	ok   bool
}

// intentDoneMsg reports that an intent was applied.
type intentDoneMsg struct {
	err error
}

// intent is a user action waiting to reach the browser.
type intent struct {
	more     bool
	category string
}

// Model is the main TUI model.
type Model struct {
	ctx     context.Context
	browser Browser
	updates <-chan browse.Snapshot
	logger  zerolog.Logger

	snap    browse.Snapshot
	cursor  int
	spinner spinner.Model
	help    help.Model
	keys    keyMap
	width   int
	height  int

	// Intents reach the browser one at a time, in key order.
	busy     bool
	queue    []intent
	choice   string
	choosing bool
}

// NewModel creates a Model driving browser. updates is the browser's
// subscription; the program quits when it closes.
func NewModel(ctx context.Context, browser Browser, updates <-chan browse.Snapshot) Model {
	s := spinner.New()
	s.Spinner = spinner.Dot
	s.Style = lipgloss.NewStyle().Foreground(colorAccent)

	h := help.New()
	h.Styles.ShortKey = HelpKeyStyle
	h.Styles.ShortDesc = HelpDescStyle
	h.Styles.FullKey = HelpKeyStyle
	h.Styles.FullDesc = HelpDescStyle

	return Model{
		ctx:     ctx,
		browser: browser,
		updates: updates,
		logger:  logging.NewLogger("ui"),
		snap:    browser.Snapshot(),
		spinner: s,
		help:    h,
		keys:    keys,
	}
}

func waitForSnapshot(updates <-chan browse.Snapshot) tea.Cmd {
	if updates == nil {
		return nil
	}
	return func() tea.Msg {
		snap, ok := <-updates
		return snapshotMsg{snap: snap, ok: ok}
	}
}

func (m Model) send(in intent) tea.Cmd {
	browser, ctx := m.browser, m.ctx
	if in.more {
		return func() tea.Msg {
			return intentDoneMsg{err: browser.IncreaseLimit(ctx)}
		}
	}
	name := in.category
	return func() tea.Msg {
		return intentDoneMsg{err: browser.SelectCategory(ctx, name)}
	}
}

// enqueue sends in now if nothing is in flight, otherwise queues it. A
// selection replaces a selection queued directly before it.
func (m Model) enqueue(in intent) (Model, tea.Cmd) {
	if !m.busy {
		m.busy = true
		return m, m.send(in)
	}

	queue := append([]intent(nil), m.queue...)
	if n := len(queue); n > 0 && !in.more && !queue[n-1].more {
		queue[n-1] = in
	} else {
		queue = append(queue, in)
	}
	m.queue = queue
	return m, nil
}

// Init starts listening for snapshots.
func (m Model) Init() tea.Cmd {
	return tea.Batch(m.spinner.Tick, waitForSnapshot(m.updates))
}

// Update handles all messages.
func (m Model) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {

	case snapshotMsg:
		if !msg.ok {
			return m, tea.Quit
		}
		wasLoading := m.snap.Loading
		m.snap = msg.snap
		if m.choosing {
			m.snap.SelectedCategory = m.choice
		}
		m.clampCursor()

		cmds := []tea.Cmd{waitForSnapshot(m.updates)}
		if m.snap.Loading && !wasLoading {
			cmds = append(cmds, m.spinner.Tick)
		}
		return m, tea.Batch(cmds...)

	case intentDoneMsg:
		if msg.err != nil {
			m.logger.Warn().Err(msg.err).Msg("Intent not applied")
		}
		if len(m.queue) > 0 {
			next := m.queue[0]
			m.queue = m.queue[1:]
			return m, m.send(next)
		}
		m.busy = false
		m.choosing = false
		return m, nil

	case spinner.TickMsg:
		if m.snap.Loading {
			var cmd tea.Cmd
			m.spinner, cmd = m.spinner.Update(msg)
			return m, cmd
		}
		return m, nil

	case tea.KeyMsg:
		switch {
		case key.Matches(msg, m.keys.Quit):
			return m, tea.Quit

		case key.Matches(msg, m.keys.Help):
			m.help.ShowAll = !m.help.ShowAll
			return m, nil

		case key.Matches(msg, m.keys.Up):
			if m.cursor > 0 {
				m.cursor--
			}
			return m, nil

		case key.Matches(msg, m.keys.Down):
			if m.cursor < len(m.snap.Entries)-1 {
				m.cursor++
			}
			return m, nil

		case key.Matches(msg, m.keys.PrevCategory):
			return m.moveCategory(-1)

		case key.Matches(msg, m.keys.NextCategory):
			return m.moveCategory(1)

		case key.Matches(msg, m.keys.More):
			return m.enqueue(intent{more: true})
		}

	case tea.WindowSizeMsg:
		m.width = msg.Width
		m.height = msg.Height
		m.help.Width = msg.Width
	}

	return m, nil
}

// moveCategory selects the neighbouring option. Every move is a selection.
func (m Model) moveCategory(delta int) (tea.Model, tea.Cmd) {
	options := m.snap.Categories
	if len(options) == 0 {
		return m, nil
	}

	idx := m.categoryIndex() + delta
	if idx < 0 || idx >= len(options) {
		return m, nil
	}

	value := options[idx].Value
	// Shown at once and kept over older snapshots until the queue drains.
	m.snap.SelectedCategory = value
	m.choice = value
	m.choosing = true
	m.cursor = 0
	return m.enqueue(intent{category: value})
}

func (m Model) categoryIndex() int {
	for i, opt := range m.snap.Categories {
		if opt.Value == m.snap.SelectedCategory {
			return i
		}
	}
	return 0
}

func (m *Model) clampCursor() {
	if m.cursor >= len(m.snap.Entries) {
		m.cursor = len(m.snap.Entries) - 1
	}
	if m.cursor < 0 {
		m.cursor = 0
	}
}

// View renders the UI.
func (m Model) View() string {
	var sections []string

	sections = append(sections, TitleStyle.Render(Title))
	sections = append(sections, m.renderPicker())

	if m.snap.Loading {
		sections = append(sections, m.spinner.View()+" Loading...")
	} else {
		sections = append(sections, m.renderEntries())
	}

	sections = append(sections, ButtonStyle.Render(fmt.Sprintf("Load More (Limit: %d)", m.snap.Limit)))
	sections = append(sections, m.help.View(m.keys))

	return strings.Join(sections, "\n")
}

func (m Model) renderPicker() string {
	options := m.snap.Categories
	if len(options) == 0 {
		return PickerStyle.Render(PromptStyle.Render(browse.SelectPrompt))
	}

	idx := m.categoryIndex()
	label := options[idx].Label
	if options[idx].Value == "" {
		label = PromptStyle.Render(label)
	}

	left, right := "  ", "  "
	if idx > 0 {
		left = "‹ "
	}
	if idx < len(options)-1 {
		right = " ›"
	}
	return PickerStyle.Render(left + label + right)
}

func (m Model) renderEntries() string {
	entries := m.snap.Entries
	if len(entries) == 0 {
		return EmptyStyle.Render("No entries")
	}

	visible := m.height - 10 // title, picker, button, help
	if visible < 5 {
		visible = len(entries)
	}

	start := 0
	if m.cursor >= visible {
		start = m.cursor - visible + 1
	}
	end := start + visible
	if end > len(entries) {
		end = len(entries)
	}

	var b strings.Builder
	for i := start; i < end; i++ {
		if i > start {
			b.WriteString("\n")
		}
		if i == m.cursor {
			b.WriteString(SelectedItemStyle.Render(entries[i].Name))
		} else {
			b.WriteString(ItemStyle.Render(entries[i].Name))
		}
	}
	return b.String()
}
