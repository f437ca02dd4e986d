// Package tui is a terminal front-end for one editing session.
package tui

import (
	"context"
	"errors"
	"fmt"
	"time"

	tea "github.com/charmbracelet/bubbletea"

	"github.com/maauso/freecut/internal/export"
	"github.com/maauso/freecut/internal/session"
)

const (
	refreshInterval = 100 * time.Millisecond
	seekJump        = 5.0
	eventBuffer     = 32
)

type tickMsg time.Time

type eventMsg session.Event

type actionMsg struct {
	status string
	err    error
}

// Model is the bubbletea model driving a Session.
type Model struct {
	ctx    context.Context
	sess   *session.Session
	events chan session.Event
	unsub  func()

	snap   session.Snapshot
	width  int
	status string
	err    error
	help   bool
}

// New creates a model for a session that already has media loaded.
func New(ctx context.Context, sess *session.Session) Model {
	events := make(chan session.Event, eventBuffer)
	unsub := sess.Subscribe(func(ev session.Event) {
		select {
		case events <- ev:
		default:
		}
	})
	return Model{
		ctx:    ctx,
		sess:   sess,
		events: events,
		unsub:  unsub,
		snap:   sess.Snapshot(ctx),
		width:  80,
	}
}

// Run shows the editor until the user quits.
func Run(ctx context.Context, sess *session.Session) error {
	m := New(ctx, sess)
	defer m.unsub()
	p := tea.NewProgram(m, tea.WithAltScreen(), tea.WithContext(ctx))
	_, err := p.Run()
	if errors.Is(err, tea.ErrProgramKilled) && ctx.Err() != nil {
		return nil
	}
	return err
}

func (m Model) Init() tea.Cmd {
	return tea.Batch(tick(), waitEvent(m.events))
}

func tick() tea.Cmd {
	return tea.Tick(refreshInterval, func(t time.Time) tea.Msg {
		return tickMsg(t)
	})
}

func waitEvent(ch <-chan session.Event) tea.Cmd {
	return func() tea.Msg {
		return eventMsg(<-ch)
	}
}

func (m Model) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case tea.WindowSizeMsg:
		m.width = msg.Width
		return m, nil

	case tickMsg:
		m.snap = m.sess.Snapshot(m.ctx)
		return m, tick()

	case eventMsg:
		ev := session.Event(msg)
		if ev.Type == session.EventExport && ev.Export != nil {
			m.status = exportStatus(ev.Export)
		}
		m.snap = m.sess.Snapshot(m.ctx)
		return m, waitEvent(m.events)

	case actionMsg:
		m.status, m.err = msg.status, msg.err
		m.snap = m.sess.Snapshot(m.ctx)
		return m, nil

	case tea.KeyMsg:
		return m.handleKey(msg)
	}
	return m, nil
}

func (m Model) handleKey(msg tea.KeyMsg) (tea.Model, tea.Cmd) {
	if m.help {
		m.help = false
		return m, nil
	}

	m.err = nil
	key := msg.String()
	switch key {
	case "q", "ctrl+c", "esc":
		return m, tea.Quit
	case "?":
		m.help = true
		return m, nil

	case " ", "left", "right", "[", "]":
		// bubbletea reports the arrow keys as left/right, which HandleKey accepts too
		m.err = m.sess.HandleKey(m.ctx, key)

	case "shift+left", "<", ",":
		m.err = m.seekBy(-seekJump)
	case "shift+right", ">", ".":
		m.err = m.seekBy(seekJump)
	case "home":
		_, m.err = m.sess.Seek(m.ctx, 0)
	case "end":
		if m.snap.Media != nil {
			_, m.err = m.sess.Seek(m.ctx, m.snap.Media.Duration)
		}

	case "+", "=":
		m.sess.ZoomIn()
	case "-", "_":
		m.sess.ZoomOut()
	case "c":
		m.sess.ClearMarks()
		m.status = "marks cleared"

	case "e":
		return m, m.export(export.FormatMP4)
	case "g":
		return m, m.export(export.FormatGIF)
	case "x":
		m.sess.CancelExport()
		m.status = "export cancelled"
	}
	m.snap = m.sess.Snapshot(m.ctx)
	return m, nil
}

func (m Model) seekBy(delta float64) error {
	pos, err := m.sess.Position()
	if err != nil {
		return err
	}
	_, err = m.sess.Seek(m.ctx, pos.Time+delta)
	return err
}

func (m Model) export(format export.Format) tea.Cmd {
	return func() tea.Msg {
		job, err := m.sess.Export(m.ctx, format, export.Options{})
		if err != nil {
			return actionMsg{err: err}
		}
		return actionMsg{status: fmt.Sprintf("exporting %s", job.OutputName)}
	}
}

func exportStatus(j *export.Job) string {
	switch j.Status {
	case export.StatusCompleted:
		if j.URL != "" {
			return fmt.Sprintf("export ready: %s", j.URL)
		}
		return fmt.Sprintf("export ready: %s", j.OutputPath)
	case export.StatusFailed:
		return fmt.Sprintf("export failed: %s", j.Error)
	case export.StatusCancelled:
		return "export cancelled"
	default:
		return fmt.Sprintf("exporting %s %d%%", j.OutputName, j.Progress)
	}
}
