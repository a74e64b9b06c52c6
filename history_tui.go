package main

import (
	"fmt"
	"io"
	"os"
	"strings"
	"time"

	"github.com/charmbracelet/bubbles/help"
	"github.com/charmbracelet/bubbles/key"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"
	"github.com/kir-gadjello/rehash/history"
	"github.com/kir-gadjello/rehash/picker"
	"golang.org/x/term"
)

const (
	fallbackWidth  = 80
	fallbackHeight = 24
	timeColumn     = 8
)

type pickerKeyMap struct {
	Cancel    key.Binding
	Confirm   key.Binding
	Up        key.Binding
	Down      key.Binding
	Backspace key.Binding
	Cycle     key.Binding
	Scopes    []key.Binding // indexed by history.Scope
}

func newPickerKeyMap() pickerKeyMap {
	km := pickerKeyMap{
		Cancel:    key.NewBinding(key.WithKeys("esc", "ctrl+c"), key.WithHelp("esc", "cancel")),
		Confirm:   key.NewBinding(key.WithKeys("enter"), key.WithHelp("enter", "select")),
		Up:        key.NewBinding(key.WithKeys("up", "ctrl+p"), key.WithHelp("↑", "older")),
		Down:      key.NewBinding(key.WithKeys("down", "ctrl+n"), key.WithHelp("↓", "newer")),
		Backspace: key.NewBinding(key.WithKeys("backspace")),
		Cycle:     key.NewBinding(key.WithKeys("tab"), key.WithHelp("tab", "cycle")),
	}
	for _, s := range history.Scopes() {
		km.Scopes = append(km.Scopes, key.NewBinding(
			key.WithKeys(s.Hotkey()),
			key.WithHelp(strings.ToUpper(s.Hotkey()), strings.ToLower(s.Label())),
		))
	}
	return km
}

func (k pickerKeyMap) ShortHelp() []key.Binding {
	return append(append([]key.Binding(nil), k.Scopes...), k.Cycle)
}

func (k pickerKeyMap) FullHelp() [][]key.Binding {
	return [][]key.Binding{k.ShortHelp(), {k.Up, k.Down, k.Confirm, k.Cancel}}
}

// scopeColors is indexed by history.Scope.
var scopeColors = [...]lipgloss.Color{
	history.ScopeGlobal:  "6",
	history.ScopeSession: "3",
	history.ScopeLocal:   "2",
}

type pickerStyles struct {
	scopes       []lipgloss.Style
	brand        lipgloss.Style
	time         lipgloss.Style
	command      lipgloss.Style
	selectedTime lipgloss.Style
	selectedCmd  lipgloss.Style
	prompt       lipgloss.Style
	query        lipgloss.Style
	placeholder  lipgloss.Style
}

func newPickerStyles(r *lipgloss.Renderer) pickerStyles {
	st := pickerStyles{
		brand:        r.NewStyle().Foreground(lipgloss.Color("7")),
		time:         r.NewStyle().Foreground(lipgloss.Color("4")),
		command:      r.NewStyle().Foreground(lipgloss.Color("15")),
		selectedTime: r.NewStyle().Foreground(lipgloss.Color("0")).Background(lipgloss.Color("7")),
		selectedCmd:  r.NewStyle().Foreground(lipgloss.Color("0")).Background(lipgloss.Color("7")).Bold(true),
		prompt:       r.NewStyle().Foreground(lipgloss.Color("6")).Bold(true),
		query:        r.NewStyle().Foreground(lipgloss.Color("15")).Bold(true),
		placeholder:  r.NewStyle().Foreground(lipgloss.Color("4")).Italic(true),
	}
	for _, c := range scopeColors {
		st.scopes = append(st.scopes, r.NewStyle().Foreground(c).Bold(true))
	}
	return st
}

type pickerModel struct {
	session *picker.Session
	keys    pickerKeyMap
	help    help.Model
	styles  pickerStyles
	width   int
	height  int
	now     func() time.Time

	choice   string
	chosen   bool
	quitting bool
}

func newPickerModel(s *picker.Session, r *lipgloss.Renderer, width, height int) pickerModel {
	h := help.New()
	h.ShortSeparator = " | "
	dim := r.NewStyle().Foreground(lipgloss.Color("8"))
	h.Styles = help.Styles{
		ShortKey:       dim.Copy().Bold(true),
		ShortDesc:      dim,
		ShortSeparator: dim,
		Ellipsis:       dim,
		FullKey:        dim.Copy().Bold(true),
		FullDesc:       dim,
		FullSeparator:  dim,
	}
	s.Resize(listRows(height))
	return pickerModel{
		session: s,
		keys:    newPickerKeyMap(),
		help:    h,
		styles:  newPickerStyles(r),
		width:   width,
		height:  height,
		now:     time.Now,
	}
}

func listRows(height int) int {
	return max(height-picker.Chrome, 0)
}

func (m pickerModel) Init() tea.Cmd {
	return nil
}

func (m pickerModel) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case tea.WindowSizeMsg:
		m.width, m.height = msg.Width, msg.Height
		m.session.Resize(listRows(msg.Height))
		return m, nil

	case tea.KeyMsg:
		switch {
		case key.Matches(msg, m.keys.Cancel):
			m.quitting = true
			return m, tea.Quit
		case key.Matches(msg, m.keys.Confirm):
			if e, ok := m.session.Selected(); ok {
				m.choice, m.chosen = e.Command, true
			}
			m.quitting = true
			return m, tea.Quit
		case key.Matches(msg, m.keys.Up):
			m.session.Up()
		case key.Matches(msg, m.keys.Down):
			m.session.Down()
		case key.Matches(msg, m.keys.Backspace):
			m.session.Backspace()
		case key.Matches(msg, m.keys.Cycle):
			m.session.CycleScope()
		default:
			for i, b := range m.keys.Scopes {
				if key.Matches(msg, b) {
					m.session.SetScope(history.Scope(i))
					return m, nil
				}
			}
			switch {
			case msg.Type == tea.KeyRunes && !msg.Alt:
				m.session.Insert(string(msg.Runes))
			case msg.Type == tea.KeySpace:
				m.session.Insert(" ")
			}
		}
	}
	return m, nil
}

func (m pickerModel) View() string {
	if m.quitting {
		return ""
	}
	v := m.session.View(m.width, m.height)

	var b strings.Builder
	b.WriteString(m.header(v))

	for _, row := range v.Rows {
		b.WriteString("\n")
		b.WriteString(m.row(row, v.Width))
	}
	for i := len(v.Rows); i < m.session.Rows(); i++ {
		b.WriteString("\n")
	}

	b.WriteString("\n")
	b.WriteString(m.styles.prompt.Render(">") + " ")
	if v.Query == "" {
		b.WriteString(m.styles.placeholder.Render("Type to search..."))
	} else {
		b.WriteString(m.styles.query.Render(v.Query))
	}
	return b.String()
}

func (m pickerModel) header(v picker.View) string {
	left := m.styles.scopes[v.Scope].Render(fmt.Sprintf("[ %s ]", v.ScopeLabel))
	right := m.help.View(m.keys) + m.styles.brand.Render("  "+appName)

	pad := v.Width - lipgloss.Width(left) - lipgloss.Width(right)
	if pad < 1 {
		pad = 1
	}
	return left + strings.Repeat(" ", pad) + right
}

func (m pickerModel) row(r picker.Row, width int) string {
	age := fmt.Sprintf("%*s", timeColumn, picker.RelativeTime(m.now(), r.Entry.Timestamp))
	command := " " + picker.Truncate(singleLine(r.Entry.Command), width-timeColumn-2)
	if r.Selected {
		return m.styles.selectedTime.Render(age) + m.styles.selectedCmd.Render(command)
	}
	return m.styles.time.Render(age) + m.styles.command.Render(command)
}

func singleLine(s string) string {
	return strings.Join(strings.Fields(s), " ")
}

func terminalSize(w io.Writer) (int, int) {
	if f, ok := w.(*os.File); ok && term.IsTerminal(int(f.Fd())) {
		if width, height, err := term.GetSize(int(f.Fd())); err == nil && width > 0 && height > 0 {
			return width, height
		}
	}
	return fallbackWidth, fallbackHeight
}

// runPicker hands the terminal to bubbletea for the session's lifetime. Raw
// mode and the alternate screen are released on every return path, including
// panics and signals.
func runPicker(s *picker.Session, out io.Writer, width, height int) (string, bool, error) {
	opts := []tea.ProgramOption{tea.WithAltScreen(), tea.WithOutput(out)}
	if !is_interactive(os.Stdin.Fd()) {
		opts = append(opts, tea.WithInputTTY())
	}

	m := newPickerModel(s, lipgloss.NewRenderer(out), width, height)
	final, err := tea.NewProgram(m, opts...).Run()
	if err != nil {
		return "", false, fmt.Errorf("interactive search failed: %w", err)
	}
	pm, ok := final.(pickerModel)
	if !ok {
		return "", false, nil
	}
	return pm.choice, pm.chosen, nil
}
