package tui

import (
	"errors"
	"log"
	"strings"

	"github.com/charmbracelet/bubbles/spinner"
	"github.com/charmbracelet/bubbles/textinput"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"

	"github.com/daniilk/voice-assistant/backend/internal/model/answer"
	"github.com/daniilk/voice-assistant/backend/internal/model/session"
	"github.com/daniilk/voice-assistant/backend/internal/service/assistant"
)

// Assistant is the screen controller driven by the terminal client.
// *assistant.Orchestrator satisfies it.
type Assistant interface {
	Snapshot() session.View
	Subscribe() (<-chan session.View, func())
	SubmitQuery(text string) error
	SetInput(text string) error
	StartVoiceInput(src assistant.VoiceSource) error
	SelectRow(index int) error
	StopSpeaking() error
	Clear() error
	DismissBanner() error
}

type focus int

const (
	focusField focus = iota
	focusList
)

// maxContentLines caps how many lines of a row's content are shown.
const maxContentLines = 4

type viewMsg session.View

type closedMsg struct{}

type Model struct {
	assistant   Assistant
	voice       assistant.VoiceSource
	views       <-chan session.View
	unsubscribe func()

	view         session.View
	inputVersion uint64
	input        textinput.Model
	spinner      spinner.Model
	focus        focus
	cursor       int
	offset       int
	width        int
	height       int
	quitting     bool
}

// NewModel subscribes to a's views. voice may be nil when no recorder is available.
func NewModel(a Assistant, voice assistant.VoiceSource) Model {
	ti := textinput.New()
	ti.Placeholder = "Ask anything..."
	ti.CharLimit = 500
	ti.Focus()

	sp := spinner.New()
	sp.Spinner = spinner.Dot
	sp.Style = statusStyle

	views, unsubscribe := a.Subscribe()

	return Model{
		assistant:   a,
		voice:       voice,
		views:       views,
		unsubscribe: unsubscribe,
		view:        a.Snapshot(),
		input:       ti,
		spinner:     sp,
		width:       100,
		height:      30,
	}
}

func (m Model) Init() tea.Cmd {
	return tea.Batch(m.waitForView(), textinput.Blink, m.spinner.Tick)
}

func (m Model) waitForView() tea.Cmd {
	views := m.views
	return func() tea.Msg {
		v, ok := <-views
		if !ok {
			return closedMsg{}
		}
		return viewMsg(v)
	}
}

func (m Model) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case tea.WindowSizeMsg:
		m.width = msg.Width
		m.height = msg.Height
		m.input.Width = max(10, msg.Width-6)
		m.clampOffset()
		return m, nil

	case viewMsg:
		m.applyView(session.View(msg))
		return m, m.waitForView()

	case closedMsg:
		return m.quit()

	case spinner.TickMsg:
		var cmd tea.Cmd
		m.spinner, cmd = m.spinner.Update(msg)
		return m, cmd

	case tea.KeyMsg:
		return m.updateKey(msg)
	}
	return m, nil
}

func (m Model) updateKey(msg tea.KeyMsg) (tea.Model, tea.Cmd) {
	switch msg.String() {
	case "ctrl+c":
		return m.quit()

	case "ctrl+r":
		return m.do(m.assistant.StartVoiceInput(m.voice))

	case "ctrl+s":
		return m.do(m.assistant.StopSpeaking())

	case "ctrl+l":
		m.input.SetValue("")
		return m.do(m.assistant.Clear())

	case "esc":
		return m.do(m.assistant.DismissBanner())

	case "tab", "shift+tab":
		m.toggleFocus()
		return m, nil
	}

	if m.focus == focusList {
		return m.updateList(msg)
	}
	return m.updateField(msg)
}

func (m Model) updateField(msg tea.KeyMsg) (tea.Model, tea.Cmd) {
	if msg.String() == "enter" {
		return m.do(m.assistant.SubmitQuery(m.input.Value()))
	}

	before := m.input.Value()
	var cmd tea.Cmd
	m.input, cmd = m.input.Update(msg)
	if m.input.Value() == before {
		return m, cmd
	}

	if err := m.assistant.SetInput(m.input.Value()); err != nil {
		return m.fail(err)
	}
	// Views published before this edit must not overwrite the field.
	m.inputVersion = m.assistant.Snapshot().Version
	return m, cmd
}

func (m Model) updateList(msg tea.KeyMsg) (tea.Model, tea.Cmd) {
	switch msg.String() {
	case "up", "k":
		if m.cursor > 0 {
			m.cursor--
			m.clampOffset()
		}

	case "down", "j":
		if m.cursor < len(m.view.Rows)-1 {
			m.cursor++
			m.clampOffset()
		}

	case "home", "g":
		m.cursor = 0
		m.clampOffset()

	case "end", "G":
		m.cursor = max(0, len(m.view.Rows)-1)
		m.clampOffset()

	case "enter", " ":
		if len(m.view.Rows) > 0 {
			return m.do(m.assistant.SelectRow(m.cursor))
		}
	}
	return m, nil
}

func (m *Model) applyView(v session.View) {
	if v.Version > m.inputVersion && v.Input != m.input.Value() {
		m.input.SetValue(v.Input)
		m.input.CursorEnd()
	}
	m.view = v

	if m.cursor >= len(v.Rows) {
		m.cursor = max(0, len(v.Rows)-1)
	}
	if len(v.Rows) == 0 && m.focus == focusList {
		m.toggleFocus()
	}
	m.clampOffset()
}

func (m *Model) toggleFocus() {
	if m.focus == focusField && len(m.view.Rows) > 0 {
		m.focus = focusList
		m.input.Blur()
		return
	}
	m.focus = focusField
	m.input.Focus()
}

func (m Model) do(err error) (tea.Model, tea.Cmd) {
	if err != nil {
		return m.fail(err)
	}
	return m, nil
}

func (m Model) fail(err error) (tea.Model, tea.Cmd) {
	if errors.Is(err, assistant.ErrClosed) {
		return m.quit()
	}
	log.Printf("[tui] action failed: %v", err)
	return m, nil
}

func (m Model) quit() (tea.Model, tea.Cmd) {
	m.quitting = true
	if m.unsubscribe != nil {
		m.unsubscribe()
	}
	return m, tea.Quit
}

func (m Model) View() string {
	if m.quitting {
		return ""
	}

	var b strings.Builder

	b.WriteString(titleStyle.Render("Ask") + m.renderStatus() + "\n")

	if m.view.Banner != "" {
		b.WriteString(bannerStyle.Render("! "+m.view.Banner) + dimStyle.Render("  esc: dismiss") + "\n")
	}

	style := inputStyle
	if m.focus == focusField {
		style = focusedInputStyle
	}
	b.WriteString(style.Width(max(20, m.width-2)).Render(m.input.View()) + "\n")
	if m.view.FieldError != "" {
		b.WriteString(fieldErrorStyle.Render(m.view.FieldError) + "\n")
	}
	b.WriteString("\n")

	budget := m.listHeight()
	used := 0
	for i := m.offset; i < len(m.view.Rows) && used < budget; i++ {
		lines := m.renderRow(m.view.Rows[i], i == m.cursor && m.focus == focusList)
		if used+len(lines) > budget && used > 0 {
			break
		}
		for _, line := range lines {
			b.WriteString(line + "\n")
		}
		used += len(lines)
	}
	for ; used < budget; used++ {
		b.WriteString("\n")
	}

	b.WriteString(m.renderHelp())
	return b.String()
}

func (m Model) renderStatus() string {
	switch {
	case m.view.Listening:
		return " " + m.spinner.View() + statusStyle.Render("Listening...")
	case m.view.Busy:
		return " " + m.spinner.View() + statusStyle.Render("Searching...")
	case m.view.Speaking:
		return " " + statusStyle.Render("Speaking")
	case !m.view.TTSReady:
		return dimStyle.Render("  (speech off)")
	default:
		return ""
	}
}

func (m Model) renderRow(row answer.Row, selected bool) []string {
	title := row.Title
	if title == "" {
		title = "(untitled)"
	}
	var lines []string
	if selected {
		lines = append(lines, lipgloss.PlaceHorizontal(m.width, lipgloss.Left, selectedStyle.Render(title)))
	} else {
		lines = append(lines, rowTitleStyle.Render(title))
	}

	for _, line := range contentLines(row.Content, m.width-4) {
		lines = append(lines, contentStyle.Render(line))
	}
	return lines
}

func (m Model) renderHelp() string {
	if m.focus == focusList {
		return helpStyle.Render("  Enter: speak  ↑/↓: move  Tab: field  Ctrl+S: stop  Ctrl+L: clear  Ctrl+C: quit")
	}
	return helpStyle.Render("  Enter: ask  Ctrl+R: voice  Tab: results  Ctrl+S: stop  Ctrl+L: clear  Ctrl+C: quit")
}

// listHeight is the number of lines left for rows after the title, banner,
// field, field error, spacer and help lines.
func (m Model) listHeight() int {
	rows := m.height - 4
	if m.view.Banner != "" {
		rows--
	}
	if m.view.FieldError != "" {
		rows--
	}
	if rows < 2 {
		rows = 2
	}
	return rows
}

func (m *Model) clampOffset() {
	if m.cursor < m.offset {
		m.offset = m.cursor
	}
	for m.offset < m.cursor && m.linesBetween(m.offset, m.cursor) > m.listHeight() {
		m.offset++
	}
	if m.offset < 0 {
		m.offset = 0
	}
}

func (m Model) linesBetween(from, to int) int {
	total := 0
	for i := from; i <= to && i < len(m.view.Rows); i++ {
		total += 1 + len(contentLines(m.view.Rows[i].Content, m.width-4))
	}
	return total
}

// contentLines splits content into display lines no wider than width,
// keeping at most maxContentLines.
func contentLines(content string, width int) []string {
	if content == "" {
		return nil
	}
	if width < 10 {
		width = 10
	}

	var out []string
	for _, line := range strings.Split(strings.TrimRight(content, "\n"), "\n") {
		runes := []rune(line)
		for len(runes) > width {
			out = append(out, string(runes[:width]))
			runes = runes[width:]
		}
		out = append(out, string(runes))
	}

	if len(out) > maxContentLines {
		out = append(out[:maxContentLines-1], out[maxContentLines-1]+" …")
	}
	return out
}
