package tui

import (
	"fmt"
	"os"
	"strings"
	"sync"

	"wafer-defects/internal/model"

	"github.com/charmbracelet/glamour"
	"github.com/charmbracelet/glamour/ansi"
	"github.com/charmbracelet/glamour/styles"
	"github.com/charmbracelet/lipgloss"
)

var (
	mdRendererMu sync.Mutex
	// Renderers are cached by style and wrap width. WithAutoStyle can block
	// on terminal queries, so a fixed style is used instead.
	mdRenderers = map[string]*glamour.TermRenderer{}
)

func renderMarkdown(md string, width int) string {
	md = strings.TrimSpace(md)
	if md == "" {
		return ""
	}
	if width < 10 {
		width = 10
	}

	style := markdownStyle()
	key := fmt.Sprintf("%s:%d", style, width)

	mdRendererMu.Lock()
	r := mdRenderers[key]
	if r == nil {
		cfg := markdownStyleConfig(style)
		zero := uint(0)
		cfg.Document.Margin = &zero
		rr, err := glamour.NewTermRenderer(
			glamour.WithStyles(cfg),
			glamour.WithWordWrap(width),
		)
		if err != nil {
			mdRendererMu.Unlock()
			return md
		}
		mdRenderers[key] = rr
		r = rr
	}
	mdRendererMu.Unlock()

	out, err := r.Render(md)
	if err != nil {
		return md
	}
	return strings.Trim(out, "\n")
}

func markdownStyleConfig(style string) ansi.StyleConfig {
	cfg := styles.DarkStyleConfig
	if style == "light" {
		cfg = styles.LightStyleConfig
	}
	text := mdColor(colorSurfaceFg, style)
	cfg.Text.Color = text
	cfg.Heading.Color = text
	cfg.H1.Color = text
	cfg.H2.Color = text
	cfg.H3.Color = text
	cfg.Strong.Color = nil
	cfg.Emph.Color = nil
	cfg.Code.Color = text
	cfg.BlockQuote.Faint = mdBoolPtr(false)
	return cfg
}

func markdownStyle() string {
	switch strings.ToLower(strings.TrimSpace(os.Getenv("DEFECTS_TUI_THEME"))) {
	case "light":
		return "light"
	case "dark":
		return "dark"
	}
	if dark, ok := colorFGBGDark(); ok {
		if dark {
			return "dark"
		}
		return "light"
	}
	if lipgloss.HasDarkBackground() {
		return "dark"
	}
	return "light"
}

func mdColor(c lipgloss.AdaptiveColor, style string) *string {
	if style == "light" {
		return &c.Light
	}
	return &c.Dark
}

func mdBoolPtr(b bool) *bool { return &b }

// defectMarkdown is the detail pane source for one listed defect. Mode
// descriptions are free text and may carry markdown of their own.
func defectMarkdown(d model.Defect) string {
	var b strings.Builder
	fmt.Fprintf(&b, "# %s\n\n", mdEscape(d.DefectName))
	if d.PDFFilename != "" {
		fmt.Fprintf(&b, "Reference PDF: `%s`\n\n", d.PDFFilename)
	} else {
		b.WriteString("_No reference PDF._\n\n")
	}
	if len(d.Modes) == 0 {
		b.WriteString("_No modes._\n")
		return b.String()
	}
	fmt.Fprintf(&b, "## Modes (%d)\n\n", len(d.Modes))
	for i, m := range d.Modes {
		fmt.Fprintf(&b, "### %d. %s\n\n", i+1, mdEscape(m.ModeName))
		if desc := strings.TrimSpace(m.Description); desc != "" {
			b.WriteString(desc)
			b.WriteString("\n\n")
		}
		if m.ImageFilename != "" {
			fmt.Fprintf(&b, "Image: `%s`\n\n", m.ImageFilename)
		}
	}
	return b.String()
}

func mdEscape(s string) string {
	s = strings.TrimSpace(s)
	if s == "" {
		return "(unnamed)"
	}
	r := strings.NewReplacer("*", `\*`, "_", `\_`, "#", `\#`, "`", "\\`")
	return r.Replace(s)
}
