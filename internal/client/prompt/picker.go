package prompt

import (
	"fmt"
	"strings"

	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"
)

var (
	titleStyle    = lipgloss.NewStyle().Bold(true)
	filterStyle   = lipgloss.NewStyle().Foreground(lipgloss.Color("8"))
	selectedStyle = lipgloss.NewStyle().Foreground(lipgloss.Color("12")).Bold(true)
)

// Picker is a bubbletea model that selects one item from a list. Typing
// narrows the list to items containing the filter text, case-insensitively;
// the cursor wraps around at both ends.
type Picker struct {
	title   string
	items   []string
	filter  []rune
	matches []int
	cursor  int

	chosen    string
	done      bool
	cancelled bool
}

// NewPicker returns a Picker over items with nothing filtered out.
func NewPicker(title string, items []string) Picker {
	m := Picker{title: title, items: items}
	m.refilter()
	return m
}

// Choice returns the selected item. ok is false if the picker was
// cancelled or has not finished.
func (m Picker) Choice() (choice string, ok bool) {
	return m.chosen, m.done && !m.cancelled
}

// Init implements tea.Model.
func (m Picker) Init() tea.Cmd { return nil }

// Update implements tea.Model.
func (m Picker) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	key, ok := msg.(tea.KeyMsg)
	if !ok {
		return m, nil
	}
	switch key.Type {
	case tea.KeyCtrlC, tea.KeyEsc:
		m.done, m.cancelled = true, true
		return m, tea.Quit
	case tea.KeyEnter:
		if len(m.matches) == 0 {
			return m, nil
		}
		m.chosen = m.items[m.matches[m.cursor]]
		m.done = true
		return m, tea.Quit
	case tea.KeyUp, tea.KeyCtrlP, tea.KeyShiftTab:
		m.move(-1)
	case tea.KeyDown, tea.KeyCtrlN, tea.KeyTab:
		m.move(1)
	case tea.KeyBackspace:
		if len(m.filter) > 0 {
			m.filter = m.filter[:len(m.filter)-1]
			m.refilter()
		}
	case tea.KeyRunes, tea.KeySpace:
		m.filter = append(m.filter[:len(m.filter):len(m.filter)], key.Runes...)
		m.refilter()
	}
	return m, nil
}

// View implements tea.Model.
func (m Picker) View() string {
	if m.done {
		return ""
	}
	var b strings.Builder
	b.WriteString(titleStyle.Render(m.title))
	if len(m.filter) > 0 {
		b.WriteString(" " + filterStyle.Render("(filter: "+string(m.filter)+")"))
	}
	b.WriteString("\n")
	if len(m.matches) == 0 {
		b.WriteString(filterStyle.Render("  no matches") + "\n")
	}
	for i, idx := range m.matches {
		if i == m.cursor {
			b.WriteString(selectedStyle.Render(fmt.Sprintf("> %s", m.items[idx])) + "\n")
			continue
		}
		b.WriteString("  " + m.items[idx] + "\n")
	}
	return b.String()
}

func (m *Picker) move(delta int) {
	n := len(m.matches)
	if n == 0 {
		return
	}
	m.cursor = ((m.cursor+delta)%n + n) % n
}

func (m *Picker) refilter() {
	needle := strings.ToLower(string(m.filter))
	m.matches = make([]int, 0, len(m.items))
	for i, item := range m.items {
		if strings.Contains(strings.ToLower(item), needle) {
			m.matches = append(m.matches, i)
		}
	}
	if m.cursor >= len(m.matches) {
		m.cursor = 0
	}
}
