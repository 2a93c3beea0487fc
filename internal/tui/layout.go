package tui

import (
	"strings"

	xansi "github.com/charmbracelet/x/ansi"
)

// fitPane forces s to exactly width columns and height lines (ANSI-aware),
// so panes line up when joined horizontally.
func fitPane(s string, width, height int) string {
	if width < 0 {
		width = 0
	}
	lines := strings.Split(s, "\n")
	if height > 0 {
		if len(lines) > height {
			lines = lines[:height]
		}
		for len(lines) < height {
			lines = append(lines, "")
		}
	}
	for i, ln := range lines {
		lines[i] = fitLine(ln, width)
	}
	return strings.Join(lines, "\n")
}

// fitLine truncates with an ellipsis or pads with spaces to width.
func fitLine(s string, width int) string {
	if width <= 0 {
		return ""
	}
	if xansi.StringWidth(s) > width {
		s = xansi.Truncate(s, width, "…")
	}
	if w := xansi.StringWidth(s); w < width {
		s += strings.Repeat(" ", width-w)
	}
	return s
}
