// Copyright 2026 The Curia Authors
// SPDX-License-Identifier: Apache-2.0

package main

import (
	"context"
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/charmbracelet/bubbles/key"
	"github.com/charmbracelet/bubbles/viewport"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"

	"github.com/curia-foundation/curia/lib/curation"
)

// keyMap defines the review queue key bindings.
type keyMap struct {
	Up          key.Binding
	Down        key.Binding
	Top         key.Binding
	Bottom      key.Binding
	FocusToggle key.Binding
	Refresh     key.Binding
	Quit        key.Binding
}

// defaultKeyMap is the built-in binding set: vim-style movement
// alongside arrow keys.
var defaultKeyMap = keyMap{
	Up: key.NewBinding(
		key.WithKeys("k", "up"),
		key.WithHelp("k/↑", "up"),
	),
	Down: key.NewBinding(
		key.WithKeys("j", "down"),
		key.WithHelp("j/↓", "down"),
	),
	Top: key.NewBinding(
		key.WithKeys("g", "home"),
		key.WithHelp("g", "top"),
	),
	Bottom: key.NewBinding(
		key.WithKeys("G", "end"),
		key.WithHelp("G", "bottom"),
	),
	FocusToggle: key.NewBinding(
		key.WithKeys("tab"),
		key.WithHelp("Tab", "switch pane"),
	),
	Refresh: key.NewBinding(
		key.WithKeys("r"),
		key.WithHelp("r", "refresh"),
	),
	Quit: key.NewBinding(
		key.WithKeys("q", "ctrl+c"),
		key.WithHelp("q", "quit"),
	),
}

// styles is the color scheme, ANSI 256-color codes for dark terminals.
type styles struct {
	header         lipgloss.Style
	faint          lipgloss.Style
	selectedRow    lipgloss.Style
	disputedBadge  lipgloss.Style
	staleBadge     lipgloss.Style
	sectionTitle   lipgloss.Style
	checkPassed    lipgloss.Style
	checkFailed    lipgloss.Style
	errorText      lipgloss.Style
	help           lipgloss.Style
	focusedBorder  lipgloss.Style
	inactiveBorder lipgloss.Style
}

func defaultStyles() styles {
	border := lipgloss.NewStyle().Border(lipgloss.RoundedBorder())
	return styles{
		header:         lipgloss.NewStyle().Foreground(lipgloss.Color("255")).Bold(true),
		faint:          lipgloss.NewStyle().Foreground(lipgloss.Color("245")),
		selectedRow:    lipgloss.NewStyle().Background(lipgloss.Color("236")).Foreground(lipgloss.Color("255")),
		disputedBadge:  lipgloss.NewStyle().Foreground(lipgloss.Color("196")), // bright red
		staleBadge:     lipgloss.NewStyle().Foreground(lipgloss.Color("220")), // amber
		sectionTitle:   lipgloss.NewStyle().Foreground(lipgloss.Color("75")).Bold(true),
		checkPassed:    lipgloss.NewStyle().Foreground(lipgloss.Color("114")), // green
		checkFailed:    lipgloss.NewStyle().Foreground(lipgloss.Color("196")),
		errorText:      lipgloss.NewStyle().Foreground(lipgloss.Color("196")),
		help:           lipgloss.NewStyle().Foreground(lipgloss.Color("241")),
		focusedBorder:  border.BorderForeground(lipgloss.Color("75")),
		inactiveBorder: border.BorderForeground(lipgloss.Color("240")),
	}
}

// focusRegion identifies which pane has keyboard focus.
type focusRegion int

const (
	// focusQueue means navigation keys move the queue cursor.
	focusQueue focusRegion = iota
	// focusDetail means navigation keys scroll the detail viewport.
	focusDetail
)

// queueLoadedMsg delivers a refreshed review queue.
type queueLoadedMsg struct {
	tasks []flaggedTask
}

// detailLoadedMsg delivers one task's detail. taskID is the task the
// load was requested for; responses for a task the cursor has already
// left are dropped.
type detailLoadedMsg struct {
	taskID string
	detail *taskDetail
}

// loadFailedMsg surfaces a failed engine call in the status bar.
type loadFailedMsg struct {
	err error
}

// refreshTickMsg drives the periodic queue reload. Each tick
// schedules the next one.
type refreshTickMsg struct{}

// Model is the review queue TUI state.
type Model struct {
	source       reviewSource
	keys         keyMap
	styles       styles
	refreshEvery time.Duration

	width  int
	height int
	ready  bool

	queue    []flaggedTask
	cursor   int
	focus    focusRegion
	loading  bool
	errorMsg string

	// detail is the loaded detail for detailFor. detailFor tracks the
	// task the viewport content belongs to, so cursor movement knows
	// when a new load is needed.
	detail    *taskDetail
	detailFor string
	viewport  viewport.Model
}

func newModel(source reviewSource, refreshEvery time.Duration) Model {
	return Model{
		source:       source,
		keys:         defaultKeyMap,
		styles:       defaultStyles(),
		refreshEvery: refreshEvery,
		loading:      true,
	}
}

func (m Model) Init() tea.Cmd {
	return tea.Batch(m.loadQueue(), m.scheduleRefresh())
}

// loadQueue fetches the flagged task list in the background.
func (m Model) loadQueue() tea.Cmd {
	source := m.source
	return func() tea.Msg {
		tasks, err := source.Flagged(context.Background())
		if err != nil {
			return loadFailedMsg{err: err}
		}
		return queueLoadedMsg{tasks: tasks}
	}
}

// loadDetail fetches one task's submissions and result.
func (m Model) loadDetail(taskID string) tea.Cmd {
	source := m.source
	return func() tea.Msg {
		detail, err := source.Detail(context.Background(), taskID)
		if err != nil {
			return loadFailedMsg{err: err}
		}
		return detailLoadedMsg{taskID: taskID, detail: detail}
	}
}

func (m Model) scheduleRefresh() tea.Cmd {
	if m.refreshEvery <= 0 {
		return nil
	}
	return tea.Tick(m.refreshEvery, func(time.Time) tea.Msg {
		return refreshTickMsg{}
	})
}

// selectedID returns the task ID under the cursor, or "".
func (m Model) selectedID() string {
	if m.cursor < 0 || m.cursor >= len(m.queue) {
		return ""
	}
	return m.queue[m.cursor].Task.ID
}

// syncDetail returns a command loading the selected task's detail
// when the viewport shows something else.
func (m *Model) syncDetail() tea.Cmd {
	selected := m.selectedID()
	if selected == "" || selected == m.detailFor {
		return nil
	}
	m.detailFor = selected
	m.detail = nil
	m.viewport.SetContent(m.styles.faint.Render("loading…"))
	return m.loadDetail(selected)
}

func (m Model) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case tea.WindowSizeMsg:
		m.width = msg.Width
		m.height = msg.Height
		m.ready = true
		m.layout()
		return m, nil

	case queueLoadedMsg:
		previous := m.selectedID()
		m.queue = msg.tasks
		m.loading = false
		m.errorMsg = ""

		// Keep the cursor on the same task across refreshes when it
		// is still flagged; otherwise clamp.
		m.cursor = 0
		for index, entry := range m.queue {
			if entry.Task.ID == previous {
				m.cursor = index
				break
			}
		}
		if m.cursor >= len(m.queue) {
			m.cursor = len(m.queue) - 1
		}
		if m.cursor < 0 {
			m.cursor = 0
		}
		return m, m.syncDetail()

	case detailLoadedMsg:
		if msg.taskID != m.detailFor {
			return m, nil
		}
		m.detail = msg.detail
		m.viewport.SetContent(m.renderDetail())
		m.viewport.GotoTop()
		return m, nil

	case loadFailedMsg:
		m.loading = false
		m.errorMsg = msg.err.Error()
		return m, nil

	case refreshTickMsg:
		return m, tea.Batch(m.loadQueue(), m.scheduleRefresh())

	case tea.KeyMsg:
		switch {
		case key.Matches(msg, m.keys.Quit):
			return m, tea.Quit

		case key.Matches(msg, m.keys.Refresh):
			m.loading = true
			return m, m.loadQueue()

		case key.Matches(msg, m.keys.FocusToggle):
			if m.focus == focusQueue {
				m.focus = focusDetail
			} else {
				m.focus = focusQueue
			}
			return m, nil
		}

		if m.focus == focusQueue {
			switch {
			case key.Matches(msg, m.keys.Up):
				m.cursor--
			case key.Matches(msg, m.keys.Down):
				m.cursor++
			case key.Matches(msg, m.keys.Top):
				m.cursor = 0
			case key.Matches(msg, m.keys.Bottom):
				m.cursor = len(m.queue) - 1
			default:
				return m, nil
			}
			if m.cursor >= len(m.queue) {
				m.cursor = len(m.queue) - 1
			}
			if m.cursor < 0 {
				m.cursor = 0
			}
			return m, m.syncDetail()
		}

		// Detail pane focused: navigation keys scroll the viewport.
		switch {
		case key.Matches(msg, m.keys.Up):
			m.viewport.LineUp(1)
		case key.Matches(msg, m.keys.Down):
			m.viewport.LineDown(1)
		case key.Matches(msg, m.keys.Top):
			m.viewport.GotoTop()
		case key.Matches(msg, m.keys.Bottom):
			m.viewport.GotoBottom()
		}
		return m, nil
	}

	return m, nil
}

// layout recomputes pane dimensions after a terminal resize. The
// queue pane takes two fifths of the width; the detail viewport gets
// the rest.
func (m *Model) layout() {
	contentHeight := m.height - 2 // header and status bar
	innerHeight := contentHeight - 2
	if innerHeight < 1 {
		innerHeight = 1
	}

	listOuter := m.listOuterWidth()
	detailInner := m.width - listOuter - 2
	if detailInner < 1 {
		detailInner = 1
	}

	m.viewport.Width = detailInner
	m.viewport.Height = innerHeight
	if m.detail != nil {
		m.viewport.SetContent(m.renderDetail())
	}
}

func (m Model) listOuterWidth() int {
	listOuter := m.width * 2 / 5
	if listOuter < 34 {
		listOuter = 34
	}
	if listOuter > m.width-20 {
		listOuter = m.width - 20
	}
	if listOuter < 2 {
		listOuter = 2
	}
	return listOuter
}

func (m Model) View() string {
	if !m.ready {
		return "Loading..."
	}

	contentHeight := m.height - 2
	innerHeight := contentHeight - 2
	if innerHeight < 1 {
		innerHeight = 1
	}
	listOuter := m.listOuterWidth()
	listInner := listOuter - 2

	queueBorder := m.styles.inactiveBorder
	detailBorder := m.styles.inactiveBorder
	if m.focus == focusQueue {
		queueBorder = m.styles.focusedBorder
	} else {
		detailBorder = m.styles.focusedBorder
	}

	queuePane := queueBorder.Width(listInner).Height(innerHeight).
		Render(m.renderQueue(listInner, innerHeight))
	detailPane := detailBorder.Width(m.viewport.Width).Height(innerHeight).
		Render(m.renderDetailPane())

	return lipgloss.JoinVertical(lipgloss.Left,
		m.renderHeader(),
		lipgloss.JoinHorizontal(lipgloss.Top, queuePane, detailPane),
		m.renderStatusBar(),
	)
}

func (m Model) renderHeader() string {
	disputed, stale := 0, 0
	for _, entry := range m.queue {
		switch entry.Reason {
		case reasonDisputed:
			disputed++
		case reasonStale:
			stale++
		}
	}
	title := m.styles.header.Render("Curia review queue")
	counts := m.styles.faint.Render(fmt.Sprintf("  %d disputed · %d stale", disputed, stale))
	return title + counts
}

// renderQueue renders the flagged task list with the cursor row
// highlighted. The visible window follows the cursor.
func (m Model) renderQueue(width, height int) string {
	if len(m.queue) == 0 {
		if m.loading {
			return m.styles.faint.Render("loading…")
		}
		return m.styles.faint.Render("No flagged tasks")
	}

	first := 0
	if m.cursor >= height {
		first = m.cursor - height + 1
	}

	var rows []string
	for index := first; index < len(m.queue) && index-first < height; index++ {
		entry := m.queue[index]

		badge := m.styles.staleBadge.Render("stale   ")
		if entry.Reason == reasonDisputed {
			badge = m.styles.disputedBadge.Render("disputed")
		}

		label := truncate(fmt.Sprintf("%-9s %s", entry.Task.Type, entry.Task.ID), width-9)
		if index == m.cursor {
			label = m.styles.selectedRow.Render(label)
		}
		rows = append(rows, badge+" "+label)
	}
	return strings.Join(rows, "\n")
}

func (m Model) renderDetailPane() string {
	if m.selectedID() == "" {
		return m.styles.faint.Render("Select a task")
	}
	return m.viewport.View()
}

// renderDetail formats the selected task for the detail viewport:
// the task header, the comprehension check when present, every
// submission with its check outcome, and the consensus result or the
// dispute summary.
func (m Model) renderDetail() string {
	detail := m.detail
	if detail == nil {
		return ""
	}
	task := detail.Task

	var b strings.Builder

	b.WriteString(m.styles.sectionTitle.Render(task.ID))
	b.WriteString("\n")
	fmt.Fprintf(&b, "type: %s (%s pt, quota %d)\n",
		task.Type, formatPoints(task.Type.Points()), task.SubmissionsNeeded)
	fmt.Fprintf(&b, "status: %s\n", task.Status)
	fmt.Fprintf(&b, "target: %s\n", task.Target)
	fmt.Fprintf(&b, "created: %s by %s\n", formatTime(task.CreatedAt), task.CreatedBy)
	if task.ClosedAt != 0 {
		fmt.Fprintf(&b, "closed: %s\n", formatTime(task.ClosedAt))
	}

	if task.HasCheck() {
		b.WriteString("\n")
		b.WriteString(m.styles.sectionTitle.Render("Check"))
		b.WriteString("\n")
		fmt.Fprintf(&b, "question: %s\n", task.VerificationQuestion)
		fmt.Fprintf(&b, "expected: %s\n", task.VerificationAnswer)
	}

	b.WriteString("\n")
	b.WriteString(m.styles.sectionTitle.Render(
		fmt.Sprintf("Submissions (%d/%d)", len(detail.Submissions), task.SubmissionsNeeded)))
	b.WriteString("\n")
	if len(detail.Submissions) == 0 {
		b.WriteString(m.styles.faint.Render("none yet"))
		b.WriteString("\n")
	}
	payloadStyle := lipgloss.NewStyle().Width(m.viewport.Width).PaddingLeft(2)
	for _, submission := range detail.Submissions {
		check := ""
		if task.HasCheck() {
			if submission.Correct {
				check = "  " + m.styles.checkPassed.Render("check passed")
			} else {
				check = "  " + m.styles.checkFailed.Render("check failed")
			}
		}
		fmt.Fprintf(&b, "%s  %s%s\n", formatTime(submission.SubmittedAt), submission.Agent, check)
		b.WriteString(payloadStyle.Render(submission.Payload))
		b.WriteString("\n")
	}

	b.WriteString("\n")
	switch {
	case detail.Result != nil:
		result := detail.Result
		b.WriteString(m.styles.sectionTitle.Render("Consensus"))
		b.WriteString("\n")
		fmt.Fprintf(&b, "winner: %s\n", result.Winner)
		fmt.Fprintf(&b, "weight: %d/%d (%.2f)\n", result.WinningWeight, result.TotalWeight, result.Ratio)
	case task.Status == curation.TaskDisputed:
		b.WriteString(m.styles.disputedBadge.Render("Disputed"))
		b.WriteString("\n")
		b.WriteString("no value cleared the consensus threshold\n")
	}

	return b.String()
}

func (m Model) renderStatusBar() string {
	left := m.styles.faint.Render(fmt.Sprintf("%d flagged", len(m.queue)))
	if m.loading {
		left = m.styles.faint.Render("refreshing…")
	}
	if m.errorMsg != "" {
		left = m.styles.errorText.Render(truncate(m.errorMsg, m.width/2))
	}

	right := m.styles.help.Render("j/k move · Tab pane · r refresh · q quit")

	gap := m.width - lipgloss.Width(left) - lipgloss.Width(right)
	if gap < 1 {
		gap = 1
	}
	return left + strings.Repeat(" ", gap) + right
}

// truncate cuts s to at most max columns, ending with an ellipsis
// when something was removed. Operates on runes; callers truncate
// unstyled text before styling.
func truncate(s string, max int) string {
	if max <= 0 {
		return ""
	}
	runes := []rune(s)
	if len(runes) <= max {
		return s
	}
	if max == 1 {
		return "…"
	}
	return string(runes[:max-1]) + "…"
}

func formatTime(unix int64) string {
	if unix == 0 {
		return "-"
	}
	return time.Unix(unix, 0).UTC().Format("2006-01-02 15:04")
}

func formatPoints(points float64) string {
	return strconv.FormatFloat(points, 'f', -1, 64)
}
