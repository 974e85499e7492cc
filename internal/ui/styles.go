package ui

import (
	"regexp"
	"strings"

	"github.com/charmbracelet/lipgloss"
	"github.com/mattn/go-runewidth"
)

// Palette
var (
	ColorAccent  = lipgloss.Color("#00D9FF")
	ColorFocus   = lipgloss.Color("#7C3AED")
	ColorGood    = lipgloss.Color("#10B981")
	ColorWarn    = lipgloss.Color("#F59E0B")
	ColorBad     = lipgloss.Color("#EF4444")
	ColorText    = lipgloss.Color("#FFFFFF")
	ColorDim     = lipgloss.Color("#9CA3AF")
	ColorFaint   = lipgloss.Color("#6B7280")
	ColorBar     = lipgloss.Color("#374151")
	ColorRowMark = lipgloss.Color("#4B5563")
)

func fg(c lipgloss.Color) lipgloss.Style { return lipgloss.NewStyle().Foreground(c) }

func bold(c lipgloss.Color) lipgloss.Style { return fg(c).Bold(true) }

// Chrome styles
var (
	StyleTitle         = bold(ColorAccent)
	StyleSubtitle      = fg(ColorDim).Italic(true)
	StyleHeader        = bold(ColorText).Background(ColorBar)
	StyleSubHeader     = bold(ColorFocus)
	StyleKey           = bold(ColorAccent)
	StyleKeyDesc       = fg(ColorDim)
	StyleError         = bold(ColorBad)
	StyleWarning       = bold(ColorWarn)
	StyleHighlight     = bold(ColorAccent)
	StyleTextSecondary = fg(ColorDim)
	StyleTextMuted     = fg(ColorFaint)
	StyleStatusReady   = bold(ColorGood)
	StyleSelected      = bold(ColorAccent).Background(ColorRowMark)
	StyleFocused       = bold(ColorText).Background(ColorFocus)
	StyleConfirm       = lipgloss.NewStyle().
				Border(lipgloss.RoundedBorder()).
				BorderForeground(ColorBad).
				Padding(0, 1)
)

// statusStyles colours the STATUS column by the reason reported for the item
var statusStyles = map[string]lipgloss.Style{}

func init() {
	for _, s := range []string{"Running", "Succeeded", "Completed", "Bound", "Active", "Ready"} {
		statusStyles[s] = StyleStatusReady
	}
	for _, s := range []string{"Failed", "Error", "Lost", "CrashLoopBackOff", "ImagePullBackOff", "ErrImagePull", "OOMKilled", "CreateContainerConfigError", "Terminated"} {
		statusStyles[s] = StyleError
	}
	for _, s := range []string{"Pending", "Unknown", "ContainerCreating", "PodInitializing", "Terminating", "Updating", "Waiting"} {
		statusStyles[s] = StyleWarning
	}
}

// RenderKeyBinding renders one footer hint
func RenderKeyBinding(key, desc string) string {
	return StyleKey.Render(key) + " " + StyleKeyDesc.Render(desc)
}

// RenderStatus colours a status cell; unknown reasons are left plain
func RenderStatus(status string) string {
	if style, ok := statusStyles[status]; ok {
		return style.Render(status)
	}
	return status
}

var ansiRegex = regexp.MustCompile(`\x1b\[[0-9;]*m`)

func stripANSI(s string) string {
	return ansiRegex.ReplaceAllString(s, "")
}

// visualLength is the display width of s ignoring colour codes
func visualLength(s string) int {
	return runewidth.StringWidth(stripANSI(s))
}

func padRight(s string, width int) string {
	if gap := width - visualLength(s); gap > 0 {
		return s + strings.Repeat(" ", gap)
	}
	return s
}

// truncate shortens s to width cells with a trailing ellipsis. Colour is
// dropped from truncated strings.
func truncate(s string, width int) string {
	if width <= 0 {
		return ""
	}
	plain := stripANSI(s)
	if runewidth.StringWidth(plain) <= width {
		return s
	}
	if width <= 3 {
		return runewidth.Truncate(plain, width, "")
	}
	return runewidth.Truncate(plain, width, "...")
}

// fit truncates and pads s to exactly width display cells
func fit(s string, width int) string {
	return padRight(truncate(s, width), width)
}

func renderSeparator(width int) string {
	return strings.Repeat("─", max(width-2, 10))
}
