package tui

import (
	"fmt"
	"strings"

	"github.com/charmbracelet/lipgloss"

	"github.com/maauso/freecut/internal/export"
	"github.com/maauso/freecut/internal/frame"
	"github.com/maauso/freecut/internal/session"
	"github.com/maauso/freecut/internal/timeline"
)

var (
	titleStyle     = lipgloss.NewStyle().Bold(true).Foreground(lipgloss.Color("15")).Background(lipgloss.Color("62")).Padding(0, 1)
	labelStyle     = lipgloss.NewStyle().Foreground(lipgloss.Color("245"))
	clockStyle     = lipgloss.NewStyle().Bold(true).Foreground(lipgloss.Color("226"))
	trackStyle     = lipgloss.NewStyle().Foreground(lipgloss.Color("240"))
	rangeStyle     = lipgloss.NewStyle().Foreground(lipgloss.Color("46"))
	playheadStyle  = lipgloss.NewStyle().Bold(true).Foreground(lipgloss.Color("196"))
	highlightStyle = lipgloss.NewStyle().Bold(true).Foreground(lipgloss.Color("214"))
	errorStyle     = lipgloss.NewStyle().Foreground(lipgloss.Color("196"))
	statusStyle    = lipgloss.NewStyle().Foreground(lipgloss.Color("39"))
	helpStyle      = lipgloss.NewStyle().Foreground(lipgloss.Color("241"))
)

const (
	minTrackWidth = 20
	helpLine      = "space play/pause · ←/→ frame · </> 5s · [ ] marks · c clear · +/- zoom · e mp4 · g gif · x cancel · ? help · q quit"
)

// Track cells.
const (
	cellTrack    = '─'
	cellRange    = '━'
	cellPlayhead = '┃'
	cellStart    = '['
	cellEnd      = ']'
	cellThumb    = '·'
)

func (m Model) View() string {
	if m.help {
		return helpView()
	}

	var b strings.Builder
	snap := m.snap

	name := "no media"
	if snap.Media != nil {
		name = snap.Media.Name
	}
	b.WriteString(titleStyle.Render("freecut " + name))
	b.WriteString("  ")
	b.WriteString(labelStyle.Render(string(snap.State)))
	b.WriteString("\n\n")

	b.WriteString(positionLine(snap))
	b.WriteString("\n")

	width := max(m.width-2, minTrackWidth)
	b.WriteString(renderTrack(snap, width))
	b.WriteString("\n")
	b.WriteString(renderThumbs(snap, width))
	b.WriteString("\n\n")

	b.WriteString(rangeLine(snap))
	b.WriteString("\n")

	switch {
	case m.err != nil:
		b.WriteString(errorStyle.Render(m.err.Error()))
	case m.status != "":
		b.WriteString(statusStyle.Render(m.status))
	}
	b.WriteString("\n\n")
	b.WriteString(helpStyle.Render(helpLine))
	return b.String()
}

func positionLine(snap session.Snapshot) string {
	if snap.Media == nil {
		return clockStyle.Render(frame.FormatClock(0))
	}
	state := "paused"
	if snap.Position.Playing {
		state = "playing"
	}
	fps := fmt.Sprintf("%.2f fps", snap.Media.FrameRate)
	if snap.Media.FrameRateEstimated {
		fps += " (estimated)"
	}
	return fmt.Sprintf("%s %s %s  %s  %s  %s",
		clockStyle.Render(frame.FormatClock(snap.Position.Time)),
		labelStyle.Render("/"),
		frame.FormatClock(snap.Media.Duration),
		labelStyle.Render(fmt.Sprintf("frame %d/%d", snap.Position.Frame, snap.Media.TotalFrames())),
		labelStyle.Render(fps),
		labelStyle.Render(state),
	)
}

func rangeLine(snap session.Snapshot) string {
	parts := []string{
		labelStyle.Render("in ") + markText(snap.Range.Start),
		labelStyle.Render("out ") + markText(snap.Range.End),
		labelStyle.Render(fmt.Sprintf("zoom %d%%", snap.Zoom)),
	}
	if snap.Request != nil {
		req := snap.Request
		cut := fmt.Sprintf("cut %s → %s (%.2fs)", frame.FormatClock(req.StartTime), frame.FormatClock(req.EndTime), req.DurationSeconds)
		if req.NoOp {
			cut += " empty"
		}
		parts = append(parts, rangeStyle.Render(cut))
	}
	if snap.Export != nil {
		parts = append(parts, exportLine(snap.Export))
	}
	return strings.Join(parts, "  ")
}

func exportLine(j *export.Job) string {
	switch j.Status {
	case export.StatusQueued, export.StatusRunning:
		return statusStyle.Render(fmt.Sprintf("export %s %d%%", j.Format, j.Progress))
	default:
		return labelStyle.Render(fmt.Sprintf("export %s %s", j.Format, strings.ToLower(string(j.Status))))
	}
}

func markText(mk timeline.Mark) string {
	if !mk.Set {
		return "--:--:--"
	}
	return frame.FormatClock(mk.Seconds)
}

// window returns the first visible cell of a track zoomed to total cells,
// keeping the playhead in view.
func window(total, width, playhead int) int {
	if total <= width {
		return 0
	}
	first := playhead - width/2
	return max(0, min(first, total-width))
}

func cellOf(fraction float64, total int) int {
	c := int(fraction * float64(total-1))
	return max(0, min(c, total-1))
}

// renderTrack draws the timeline: the trim range, both marks and the
// playhead. Zoom widens the virtual track and the view follows the playhead.
func renderTrack(snap session.Snapshot, width int) string {
	if snap.Media == nil {
		return trackStyle.Render(strings.Repeat(string(cellTrack), width))
	}

	total := max(width*max(snap.Zoom, 100)/100, width)
	o := snap.Offsets
	start, end, head := cellOf(o.Start, total), cellOf(o.End, total), cellOf(o.Playhead, total)
	first := window(total, width, head)

	var b strings.Builder
	for i := first; i < first+width && i < total; i++ {
		switch {
		case i == head:
			b.WriteString(playheadStyle.Render(string(cellPlayhead)))
		case i == start && snap.Range.Start.Set:
			b.WriteString(rangeStyle.Render(string(cellStart)))
		case i == end && snap.Range.End.Set:
			b.WriteString(rangeStyle.Render(string(cellEnd)))
		case i >= start && i <= end:
			b.WriteString(rangeStyle.Render(string(cellRange)))
		default:
			b.WriteString(trackStyle.Render(string(cellTrack)))
		}
	}
	return b.String()
}

// renderThumbs marks where thumbnails were sampled and highlights the one
// matching the current frame.
func renderThumbs(snap session.Snapshot, width int) string {
	line := []rune(strings.Repeat(" ", width))
	if snap.Media == nil || snap.Thumbs.Total == 0 {
		return string(line)
	}
	total := max(width*max(snap.Zoom, 100)/100, width)
	first := window(total, width, cellOf(snap.Offsets.Playhead, total))

	highlight := -1
	for i := 0; i < snap.Thumbs.Total; i++ {
		c := cellOf(float64(i)/float64(snap.Thumbs.Total), total) - first
		if c < 0 || c >= width {
			continue
		}
		line[c] = cellThumb
		if i == snap.Highlight {
			highlight = c
		}
	}
	if highlight < 0 {
		return labelStyle.Render(string(line))
	}
	return labelStyle.Render(string(line[:highlight])) +
		highlightStyle.Render("▲") +
		labelStyle.Render(string(line[highlight+1:]))
}

func helpView() string {
	rows := [][2]string{
		{"space", "play / pause"},
		{"← →", "step one frame"},
		{"< > or shift+← →", "seek 5 seconds"},
		{"home / end", "jump to start / end"},
		{"[ ]", "mark in / out at the playhead"},
		{"c", "clear marks"},
		{"+ -", "zoom the timeline"},
		{"e / g", "export mp4 / gif"},
		{"x", "cancel the running export"},
		{"q", "quit"},
	}
	var b strings.Builder
	b.WriteString(titleStyle.Render("keys"))
	b.WriteString("\n\n")
	for _, r := range rows {
		b.WriteString(fmt.Sprintf("  %-18s %s\n", r[0], labelStyle.Render(r[1])))
	}
	b.WriteString("\n")
	b.WriteString(helpStyle.Render("press any key to return"))
	return b.String()
}
