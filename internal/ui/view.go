package ui

import (
	"fmt"
	"strings"
	"time"

	"github.com/charmbracelet/bubbles/spinner"
	"github.com/charmbracelet/lipgloss"
	"github.com/yourusername/k8s-console/internal/cache"
	"github.com/yourusername/k8s-console/internal/model"
	"github.com/yourusername/k8s-console/internal/session"
)

// spinnerFrames animates on the session tick
var spinnerFrames = spinner.MiniDot.Frames

// View renders the UI
func (m *Model) View() string {
	s := m.snapshot
	if s.Quitting {
		return ""
	}
	if !m.ready || s.Width == 0 {
		return m.T("common.loading")
	}

	mode := s.Mode
	if mode == session.ModeHelp {
		mode = s.PrevMode
	}

	var header string
	var body []string
	switch {
	case s.Mode == session.ModeHelp:
		header, body = m.renderHelp()
	case mode == session.ModeDetail:
		header, body = m.renderDetail()
	case mode == session.ModeLogs:
		header, body = m.renderLogs()
	default:
		header, body = m.renderTable()
	}

	// Exactly BodyHeight rows so the chrome never moves
	rows := make([]string, 0, s.BodyHeight)
	for i := 0; i < s.BodyHeight; i++ {
		line := ""
		if i < len(body) {
			line = body[i]
		}
		rows = append(rows, line)
	}

	lines := []string{
		m.renderTitle(),
		m.renderSelectors(),
		header,
	}
	lines = append(lines, rows...)
	lines = append(lines,
		m.renderPrompt(),
		m.renderBanner(),
		m.renderFooter(mode),
	)

	view := strings.Join(lines, "\n")
	if s.Confirmation != nil {
		view = m.overlayConfirm(view)
	}
	return view
}

// renderTitle renders the application title and watch status
func (m *Model) renderTitle() string {
	title := StyleTitle.Render(fmt.Sprintf("%s %s", m.T("app.title"), m.version))
	return title + "  " + m.renderWatchStatus()
}

func (m *Model) renderWatchStatus() string {
	s := m.snapshot
	spin := spinnerFrames[s.Spinner%len(spinnerFrames)]

	if s.Editing {
		return StyleTextSecondary.Render(spin + " " + m.T("status.editing"))
	}

	switch {
	case s.Offline:
		return StyleError.Render("● " + m.T("status.offline"))
	case s.Watch.Phase == cache.PhaseFailed:
		return StyleError.Render("● " + m.T("status.failed"))
	case s.Watch.Phase == cache.PhaseReconnecting:
		text := m.TF("status.reconnecting", map[string]interface{}{"Attempt": s.Watch.Attempt})
		if !s.Watch.NextRetry.IsZero() {
			if wait := s.Watch.NextRetry.Sub(s.Now).Round(time.Second); wait > 0 {
				text += " " + wait.String()
			}
		}
		if s.Stale {
			text += " (" + m.T("status.stale") + ")"
		}
		return StyleWarning.Render(spin + " " + text)
	case s.Watch.Phase == cache.PhaseConnecting:
		return StyleSubtitle.Render(spin + " " + m.T("status.connecting"))
	case s.Watch.Phase == cache.PhaseActive:
		return StyleStatusReady.Render("● " + m.T("status.live"))
	default:
		return StyleTextMuted.Render("○ " + m.T("status.stopped"))
	}
}

// renderSelectors renders the context, namespace and type selectors
func (m *Model) renderSelectors() string {
	s := m.snapshot

	context := m.T("common.none")
	if s.ContextIndex < len(s.Contexts) {
		context = s.Contexts[s.ContextIndex]
	}
	namespace := m.T("common.none")
	if s.NamespaceIndex < len(s.Namespaces) {
		namespace = s.Namespaces[s.NamespaceIndex]
	}

	selector := func(label, value string, focus session.Focus) string {
		text := fmt.Sprintf(" %s: %s ", label, value)
		if s.Mode == session.ModeBrowse && s.Focus == focus {
			return StyleFocused.Render(text)
		}
		return StyleTextSecondary.Render(text)
	}

	parts := []string{
		selector(m.T("selector.context"), context, session.FocusContext),
		selector(m.T("selector.namespace"), namespace, session.FocusNamespace),
		selector(m.T("selector.type"), s.Type.String(), session.FocusType),
	}
	return truncate(strings.Join(parts, " "), s.Width)
}

// columnWidths sizes the table to the terminal; the first column takes the slack
func columnWidths(columns []string, rows [][]string, width int) []int {
	widths := make([]int, len(columns))
	for i, c := range columns {
		widths[i] = visualLength(c)
	}
	for _, row := range rows {
		for i, cell := range row {
			if i < len(widths) {
				if w := visualLength(cell); w > widths[i] {
					widths[i] = w
				}
			}
		}
	}

	const maxColumn = 40
	total := 0
	for i := range widths {
		if i > 0 && widths[i] > maxColumn {
			widths[i] = maxColumn
		}
		total += widths[i] + 2
	}
	if total > width && len(widths) > 0 {
		widths[0] -= total - width
		if widths[0] < 8 {
			widths[0] = 8
		}
	}
	return widths
}

// renderTable renders the Browse list
func (m *Model) renderTable() (string, []string) {
	s := m.snapshot

	rows := make([][]string, len(s.Items))
	for i, item := range s.Items {
		rows[i] = item.Columns(s.Now)
		if s.Namespaces != nil && s.NamespaceIndex < len(s.Namespaces) && s.Namespaces[s.NamespaceIndex] == model.AllNamespaces {
			rows[i][0] = item.Namespace + "/" + item.Name
		}
	}
	widths := columnWidths(s.Columns, rows, s.Width)

	renderRow := func(cells []string, style func(i int, cell string) string) string {
		parts := make([]string, 0, len(cells))
		for i, cell := range cells {
			if i >= len(widths) {
				break
			}
			parts = append(parts, style(i, fit(cell, widths[i])))
		}
		return strings.Join(parts, "  ")
	}

	header := StyleHeader.Render(padRight(renderRow(s.Columns, func(_ int, c string) string { return c }), s.Width))

	if len(s.Items) == 0 {
		msg := m.T("list.empty")
		switch {
		case s.Offline:
			msg = m.T("list.offline")
		case s.Watch.Phase == cache.PhaseConnecting:
			msg = m.T("common.loading")
		case s.Filter != "":
			msg = m.TF("list.no_match", map[string]interface{}{"Filter": s.Filter})
		}
		return header, []string{StyleTextMuted.Render(msg)}
	}

	start := 0
	if s.Selected >= s.BodyHeight {
		start = s.Selected - s.BodyHeight + 1
	}
	end := start + s.BodyHeight
	if end > len(rows) {
		end = len(rows)
	}

	body := make([]string, 0, end-start)
	for i := start; i < end; i++ {
		if i == s.Selected {
			line := renderRow(rows[i], func(_ int, c string) string { return c })
			body = append(body, StyleSelected.Render(padRight(line, s.Width)))
			continue
		}
		statusColumn := 1
		line := renderRow(rows[i], func(col int, c string) string {
			if col == statusColumn && s.Type != model.ResourceStatefulSet {
				return RenderStatus(strings.TrimRight(c, " ")) + c[len(strings.TrimRight(c, " ")):]
			}
			return c
		})
		if s.Stale {
			line = StyleTextMuted.Render(stripANSI(line))
		}
		body = append(body, line)
	}
	return header, body
}

// renderDetail renders the describe view of one item
func (m *Model) renderDetail() (string, []string) {
	s := m.snapshot
	d := s.Detail
	title := StyleHeader.Render(padRight(fmt.Sprintf(" %s %s", d.Type.Kind(), d.Key), s.Width))

	if !d.Present {
		return title, []string{StyleWarning.Render(m.TF("detail.gone", map[string]interface{}{"Name": d.Key.String()}))}
	}

	start := min(d.Offset, len(d.Lines))
	end := min(start+s.BodyHeight, len(d.Lines))
	body := make([]string, 0, s.BodyHeight)
	for _, line := range d.Lines[start:end] {
		if line != "" && !strings.HasPrefix(line, " ") && strings.HasSuffix(line, ":") {
			body = append(body, StyleSubHeader.Render(line))
			continue
		}
		body = append(body, truncate(line, s.Width))
	}
	return title, body
}

// renderLogs renders the visible part of the log buffer
func (m *Model) renderLogs() (string, []string) {
	s := m.snapshot
	l := s.Logs

	state := "⏸ " + m.T("logs.paused")
	if l.Follow {
		state = "▶ " + m.T("logs.follow")
	}
	title := StyleHeader.Render(fmt.Sprintf(" %s", m.TF("logs.title", map[string]interface{}{"Pod": l.Key.String()})))
	info := StyleTextSecondary.Render(fmt.Sprintf("  %s • %s", state,
		m.TF("logs.lines_total", map[string]interface{}{"Total": l.Total})))
	header := lipgloss.JoinHorizontal(lipgloss.Top, title, info)

	body := make([]string, 0, len(l.Lines)+1)
	for i, line := range l.Lines {
		lineNum := StyleTextMuted.Render(fmt.Sprintf("%5d│ ", l.Offset+i+1))
		body = append(body, lineNum+truncate(line, s.Width-7))
	}

	switch {
	case !l.Present:
		body = append(body, StyleWarning.Render(m.T("logs.pod_gone")))
	case l.Ended && l.Err != nil:
		body = append(body, StyleError.Render(m.TF("logs.error", map[string]interface{}{"Error": l.Err.Error()})))
	case l.Ended:
		body = append(body, StyleTextMuted.Render(m.T("logs.ended")))
	case l.Total == 0:
		body = append(body, StyleTextMuted.Render(m.T("logs.waiting")))
	}
	if len(body) > s.BodyHeight {
		body = body[len(body)-s.BodyHeight:]
	}
	return header, body
}

// renderHelp renders the key binding reference
func (m *Model) renderHelp() (string, []string) {
	s := m.snapshot
	title := StyleHeader.Render(padRight(" "+m.T("help.title"), s.Width))

	sections := []struct {
		name     string
		bindings [][2]string
	}{
		{m.T("help.global"), [][2]string{
			{"?", m.T("keys.help")}, {"q", m.T("keys.quit")}, {"ctrl+c", m.T("keys.force_quit")}, {"esc", m.T("keys.back")},
		}},
		{m.T("help.browse"), [][2]string{
			{"tab/shift+tab", m.T("keys.focus")}, {"↑↓/jk", m.T("keys.navigate")}, {"←→", m.T("keys.type")},
			{"enter", m.T("keys.detail")}, {"/", m.T("keys.filter")}, {"c", m.T("keys.copy")},
		}},
		{m.T("help.actions"), [][2]string{
			{"d", m.T("keys.delete")}, {"r", m.T("keys.restart")}, {"e", m.T("keys.edit")}, {"l", m.T("keys.logs")},
		}},
		{m.T("help.logs"), [][2]string{
			{"f", m.T("keys.follow")}, {"g/G", m.T("keys.top_bottom")}, {"PgUp/PgDn", m.T("keys.page")}, {"o", m.T("keys.open_editor")},
		}},
	}

	var body []string
	for _, section := range sections {
		body = append(body, StyleSubHeader.Render(section.name))
		for _, b := range section.bindings {
			body = append(body, "  "+StyleKey.Render(fit(b[0], 16))+StyleKeyDesc.Render(b[1]))
		}
		body = append(body, "")
	}
	return title, body
}

// renderPrompt renders the filter line or the item count
func (m *Model) renderPrompt() string {
	s := m.snapshot
	switch {
	case s.Mode == session.ModeBrowse && s.FilterActive:
		return StyleKey.Render("/") + s.Filter + StyleTextMuted.Render("_")
	case s.Mode == session.ModeBrowse && s.Filter != "":
		return StyleTextSecondary.Render(m.TF("list.filtered", map[string]interface{}{
			"Filter": s.Filter, "Count": len(s.Items),
		}))
	case s.Mode == session.ModeBrowse:
		return StyleTextMuted.Render(m.TF("list.count", map[string]interface{}{"Count": len(s.Items)}))
	default:
		return StyleTextMuted.Render(renderSeparator(s.Width))
	}
}

// renderBanner renders the status banner
func (m *Model) renderBanner() string {
	s := m.snapshot
	if s.Banner == nil {
		return ""
	}
	text := truncate(s.Banner.Text, s.Width)
	if s.Banner.Level == session.BannerError {
		return StyleError.Render(text)
	}
	return StyleHighlight.Render(text)
}

// renderFooter renders the footer with key bindings
func (m *Model) renderFooter(mode session.ViewMode) string {
	s := m.snapshot
	var bindings []string

	switch {
	case s.Confirmation != nil:
		bindings = append(bindings,
			RenderKeyBinding("y", m.T("keys.confirm")),
			RenderKeyBinding("any", m.T("keys.cancel")))
	case s.Mode == session.ModeHelp:
		bindings = append(bindings,
			RenderKeyBinding("?/esc", m.T("keys.close")))
	case mode == session.ModeBrowse && s.FilterActive:
		bindings = append(bindings,
			RenderKeyBinding("enter", m.T("keys.apply")),
			RenderKeyBinding("esc", m.T("keys.cancel")),
			RenderKeyBinding("backspace", m.T("keys.delete_char")))
	case mode == session.ModeBrowse:
		bindings = append(bindings,
			RenderKeyBinding("q", m.T("keys.quit")),
			RenderKeyBinding("tab", m.T("keys.focus")),
			RenderKeyBinding("enter", m.T("keys.detail")),
			RenderKeyBinding("l", m.T("keys.logs")),
			RenderKeyBinding("d", m.T("keys.delete")))
		if s.Type.CanRestart() {
			bindings = append(bindings, RenderKeyBinding("r", m.T("keys.restart")))
		}
		if s.Type.CanEdit() {
			bindings = append(bindings, RenderKeyBinding("e", m.T("keys.edit")))
		}
		bindings = append(bindings,
			RenderKeyBinding("/", m.T("keys.filter")),
			RenderKeyBinding("?", m.T("keys.help")))
	case mode == session.ModeDetail:
		bindings = append(bindings,
			RenderKeyBinding("esc", m.T("keys.back")),
			RenderKeyBinding("j/k", m.T("keys.scroll")),
			RenderKeyBinding("g/G", m.T("keys.top_bottom")),
			RenderKeyBinding("e", m.T("keys.edit")),
			RenderKeyBinding("d", m.T("keys.delete")))
		if s.Detail.Type.HasLogs() {
			bindings = append(bindings, RenderKeyBinding("l", m.T("keys.logs")))
		}
	case mode == session.ModeLogs:
		bindings = append(bindings,
			RenderKeyBinding("esc", m.T("keys.back")),
			RenderKeyBinding("f", m.T("keys.follow")),
			RenderKeyBinding("j/k", m.T("keys.scroll")),
			RenderKeyBinding("g/G", m.T("keys.top_bottom")),
			RenderKeyBinding("o", m.T("keys.open_editor")))
	}

	return truncate(strings.Join(bindings, StyleTextMuted.Render(" • ")), s.Width)
}

// overlayConfirm draws the confirmation dialog over the body
func (m *Model) overlayConfirm(view string) string {
	s := m.snapshot
	c := s.Confirmation

	verb := m.T("confirm.delete")
	if c.Kind == session.ConfirmRestart {
		verb = m.T("confirm.restart")
	}
	text := m.TF("confirm.question", map[string]interface{}{
		"Action": verb,
		"Kind":   strings.ToLower(c.Type.Kind()),
		"Name":   c.Target.String(),
	})
	dialog := StyleConfirm.Render(StyleError.Render(text) + "\n\n" + StyleTextSecondary.Render(m.T("confirm.hint")))

	lines := strings.Split(view, "\n")
	box := strings.Split(dialog, "\n")
	top := (len(lines) - len(box)) / 2
	if top < 0 {
		top = 0
	}
	left := (s.Width - lipgloss.Width(dialog)) / 2
	if left < 0 {
		left = 0
	}
	for i, line := range box {
		if top+i < len(lines) {
			lines[top+i] = strings.Repeat(" ", left) + line
		}
	}
	return strings.Join(lines, "\n")
}
