package ui

import (
	"os/exec"

	tea "github.com/charmbracelet/bubbletea"
	"github.com/yourusername/k8s-console/internal/i18n"
	"github.com/yourusername/k8s-console/internal/session"
	"go.uber.org/zap"
)

// InputSink receives operator input translated by the model
type InputSink interface {
	PublishInput(payload any)
	PublishResize(width, height int)
}

// snapshotMsg carries a new session snapshot into the program
type snapshotMsg session.Snapshot

// execMsg asks the program to hand the terminal to an external process
type execMsg struct {
	cmd  *exec.Cmd
	done chan<- error
}

// execDoneMsg is sent when the external process has exited
type execDoneMsg struct{}

// Model is the bubbletea model. It holds no session state of its own: it
// forwards keys to the controller and draws the latest snapshot.
type Model struct {
	sink      InputSink
	logger    *zap.Logger
	localizer *i18n.Localizer
	version   string
	keys      KeyMap
	snapshot  session.Snapshot
	ready     bool
}

// NewModel creates a new UI model
func NewModel(sink InputSink, logger *zap.Logger, locale string, version string) *Model {
	return &Model{
		sink:      sink,
		logger:    logger,
		localizer: i18n.NewLocalizer(locale),
		version:   version,
		keys:      DefaultKeyMap(),
	}
}

// T translates a message by its ID
func (m *Model) T(messageID string) string {
	return m.localizer.T(messageID)
}

// TF translates a message with template data
func (m *Model) TF(messageID string, templateData map[string]interface{}) string {
	return m.localizer.TF(messageID, templateData)
}

// Init initializes the model
func (m *Model) Init() tea.Cmd {
	return nil
}

// Update handles messages
func (m *Model) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case snapshotMsg:
		m.snapshot = session.Snapshot(msg)
		m.ready = true
		if m.snapshot.Quitting {
			return m, tea.Quit
		}
		return m, nil

	case tea.WindowSizeMsg:
		m.sink.PublishResize(msg.Width, msg.Height)
		return m, nil

	// Ignore mouse events to avoid redraw storms from the wheel
	case tea.MouseMsg:
		return m, nil

	case tea.KeyMsg:
		if in, ok := m.keys.Resolve(msg, m.snapshot); ok {
			m.sink.PublishInput(in)
		}
		return m, nil

	case execMsg:
		done := msg.done
		return m, tea.ExecProcess(msg.cmd, func(err error) tea.Msg {
			done <- err
			return execDoneMsg{}
		})
	}

	return m, nil
}

// ProgramRenderer forwards snapshots to a running bubbletea program
type ProgramRenderer struct {
	program *tea.Program
}

// NewProgramRenderer creates a renderer for p
func NewProgramRenderer(p *tea.Program) *ProgramRenderer {
	return &ProgramRenderer{program: p}
}

// Render sends the snapshot to the program. It blocks until the program
// accepts it or exits.
func (r *ProgramRenderer) Render(s session.Snapshot) {
	r.program.Send(snapshotMsg(s))
}
