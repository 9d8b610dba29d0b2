// Package navigator is the interactive stage navigator: it shows the
// viewport grid and maps keys to hanging protocol commands.
package navigator

import (
	"fmt"
	"strings"
	"sync"

	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"

	"github.com/mrsinham/dicomhang/internal/grid"
	"github.com/mrsinham/dicomhang/internal/hanging"
	"github.com/mrsinham/dicomhang/internal/navigation"
	"github.com/mrsinham/dicomhang/internal/session"
)

// Engine is what the navigator drives.
type Engine interface {
	navigation.Commands
	Info() session.HPInfo
	Statuses() ([]hanging.Status, error)
}

// layouts maps the number keys to grid shapes.
var layouts = map[string][2]int{
	"1": {1, 1},
	"2": {1, 2},
	"3": {2, 2},
	"4": {3, 3},
}

// Inbox collects notifications for display. It is safe for concurrent use.
type Inbox struct {
	mu    sync.Mutex
	notes []navigation.Notification
}

// Show implements navigation.Notifier.
func (in *Inbox) Show(n navigation.Notification) {
	in.mu.Lock()
	defer in.mu.Unlock()
	in.notes = append(in.notes, n)
}

// Drain returns and clears the pending notifications.
func (in *Inbox) Drain() []navigation.Notification {
	in.mu.Lock()
	defer in.mu.Unlock()
	out := in.notes
	in.notes = nil
	return out
}

// Options configures the model.
type Options struct {
	// ToggleProtocol is flipped by the t key.
	ToggleProtocol string
	// Label names a display set; the instance UID is shown when nil.
	Label func(displaySetInstanceUID string) string
}

// Model is the bubbletea model of the navigator.
type Model struct {
	engine Engine
	grid   grid.Service
	inbox  *Inbox
	opts   Options

	note     *navigation.Notification
	quitting bool
	width    int
}

// New returns a navigator over engine. Notifications must be delivered to
// inbox.
func New(engine Engine, g grid.Service, inbox *Inbox, opts Options) Model {
	if opts.Label == nil {
		opts.Label = func(uid string) string { return uid }
	}
	return Model{engine: engine, grid: g, inbox: inbox, opts: opts}
}

// Init implements tea.Model.
func (m Model) Init() tea.Cmd {
	return nil
}

// Update implements tea.Model.
func (m Model) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case tea.WindowSizeMsg:
		m.width = msg.Width
		return m, nil
	case tea.KeyMsg:
		return m.handleKey(msg.String())
	}
	return m, nil
}

func (m Model) handleKey(key string) (tea.Model, tea.Cmd) {
	switch key {
	case "q", "ctrl+c", "esc":
		m.quitting = true
		return m, tea.Quit
	case "n", "right":
		m.engine.NextStage()
	case "p", "left":
		m.engine.PreviousStage()
	case "t":
		if m.opts.ToggleProtocol != "" {
			m.engine.ToggleHangingProtocol(navigation.Params{ProtocolID: m.opts.ToggleProtocol})
		}
	case "r":
		info := m.engine.Info()
		if info.Applied() {
			m.engine.SetHangingProtocol(navigation.Params{
				ProtocolID: info.ProtocolID,
				StageIndex: navigation.Index(info.StageIndex),
			})
		}
	default:
		shape, ok := layouts[key]
		if !ok {
			return m, nil
		}
		m.engine.SetViewportGridLayout(shape[0], shape[1])
	}

	m.note = nil
	if notes := m.inbox.Drain(); len(notes) > 0 {
		last := notes[len(notes)-1]
		m.note = &last
	}
	return m, nil
}

// View implements tea.Model.
func (m Model) View() string {
	if m.quitting {
		return ""
	}
	var b strings.Builder

	info := m.engine.Info()
	b.WriteString(titleStyle.Render(fmt.Sprintf("%s / %s", info.ProtocolID, info.StageID)))
	b.WriteString("\n")
	b.WriteString(subtitleStyle.Render("Study " + info.ActiveStudyUID))
	b.WriteString("\n")
	b.WriteString(m.stagesView(info))
	b.WriteString("\n\n")
	b.WriteString(m.gridView(m.grid.State()))

	if m.note != nil {
		style, ok := noteStyles[string(m.note.Type)]
		if !ok {
			style = mutedStyle
		}
		b.WriteString("\n")
		b.WriteString(style.Render(m.note.Title + ": " + m.note.Message))
	}

	b.WriteString("\n")
	b.WriteString(helpStyle.Render("n/p stage • t toggle • 1-4 layout • r reset • q quit"))
	return b.String()
}

func (m Model) stagesView(info session.HPInfo) string {
	statuses, err := m.engine.Statuses()
	if err != nil {
		return mutedStyle.Render("no stages")
	}
	parts := make([]string, len(statuses))
	for i, s := range statuses {
		text := fmt.Sprintf("%d %s", i, s)
		switch {
		case i == info.StageIndex:
			parts[i] = currentStageStyle.Render(text)
		case !s.Usable():
			parts[i] = disabledStageStyle.Render(text)
		default:
			parts[i] = mutedStyle.Render(text)
		}
	}
	return strings.Join(parts, "  ")
}

func (m Model) gridView(state grid.State) string {
	cells := make([]string, len(state.Viewports))
	width := 24
	if m.width > 0 && state.Layout.NumCols > 0 {
		width = max(16, m.width/state.Layout.NumCols-4)
	}
	for i, vp := range state.Viewports {
		style := cellStyle
		if i == state.ActiveViewportIndex {
			style = activeCellStyle
		}
		cells[i] = style.Width(width).Render(m.cellView(vp))
	}

	cols := state.Layout.NumCols
	if len(state.Layout.Options) > 0 || cols <= 0 {
		return lipgloss.JoinVertical(lipgloss.Left, cells...)
	}
	var rows []string
	for start := 0; start < len(cells); start += cols {
		end := min(start+cols, len(cells))
		rows = append(rows, lipgloss.JoinHorizontal(lipgloss.Top, cells[start:end]...))
	}
	return lipgloss.JoinVertical(lipgloss.Left, rows...)
}

func (m Model) cellView(vp grid.Viewport) string {
	lines := []string{mutedStyle.Render(vp.PositionID)}
	if vp.Empty() {
		lines = append(lines, emptyStyle.Render("empty"))
	}
	for _, uid := range vp.DisplaySetInstanceUIDs {
		lines = append(lines, labelStyle.Render(m.opts.Label(uid)))
	}
	lines = append(lines, mutedStyle.Render(string(vp.ViewportOptions.Kind())))
	return strings.Join(lines, "\n")
}

// Run starts the navigator on the terminal.
func Run(m Model) error {
	p := tea.NewProgram(m, tea.WithAltScreen())
	_, err := p.Run()
	return err
}
