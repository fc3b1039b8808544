// Package render turns query results into Markdown for terminals and HTML.
package render

import (
	"bytes"
	"fmt"
	"os"
	"strconv"
	"strings"

	"github.com/charmbracelet/glamour"
	"github.com/charmbracelet/glamour/styles"
	"github.com/charmbracelet/lipgloss"
	"github.com/yuin/goldmark"
	"github.com/yuin/goldmark/extension"
	"golang.org/x/term"

	"esgrag/internal/domain"
)

var md = goldmark.New(goldmark.WithExtensions(extension.Table))

// Markdown renders the answer, followed by one table per KPI series and the
// cited pages. Assured values carry a check mark.
func Markdown(res domain.QueryResult) string {
	var b strings.Builder
	b.WriteString(strings.TrimSpace(res.Answer))
	b.WriteString("\n")

	if len(res.KpiTables) > 0 {
		b.WriteString("\n## KPI data\n")
		for _, t := range res.KpiTables {
			fmt.Fprintf(&b, "\n### %s (%s)\n\n", t.Metric, t.Unit)
			if t.Category != "" {
				fmt.Fprintf(&b, "_%s_\n\n", t.Category)
			}
			b.WriteString("| Year | Value | Assured |\n|---|---:|:---:|\n")
			for _, v := range t.Values {
				mark := ""
				if v.Assured {
					mark = "✓"
				}
				fmt.Fprintf(&b, "| %s | %s | %s |\n", v.Year, formatValue(v.Value), mark)
			}
			if t.Source != "" {
				fmt.Fprintf(&b, "\nSource: %s\n", t.Source)
			}
		}
	}

	if len(res.Sources) > 0 {
		b.WriteString("\n## Sources\n\n")
		for _, s := range res.Sources {
			fmt.Fprintf(&b, "- Page %d: %s\n", s.Page, excerpt(s.Text, 160))
		}
	}

	fmt.Fprintf(&b, "\n_%s mode, %.2fs_\n", res.Mode, res.Time)
	return b.String()
}

// HTML converts Markdown text to HTML.
func HTML(markdown string) (string, error) {
	var buf bytes.Buffer
	if err := md.Convert([]byte(markdown), &buf); err != nil {
		return "", fmt.Errorf("rendering markdown: %w", err)
	}
	return buf.String(), nil
}

// DetectStyle picks a glamour style for stdout. It may query the terminal, so
// call it before a Bubble Tea program takes over stdin.
func DetectStyle() string {
	if !term.IsTerminal(int(os.Stdout.Fd())) {
		return styles.NoTTYStyle
	}
	if lipgloss.HasDarkBackground() {
		return styles.DarkStyle
	}
	return styles.LightStyle
}

// Terminal renders a result for a terminal of the given width, detecting the
// style from stdout.
func Terminal(res domain.QueryResult, width int) string {
	return TerminalWithStyle(res, width, DetectStyle())
}

// TerminalWithStyle renders a result with a named glamour style. If the
// renderer cannot be built the plain Markdown is returned.
func TerminalWithStyle(res domain.QueryResult, width int, style string) string {
	text := Markdown(res)
	if width <= 0 {
		width = 80
	}
	r, err := glamour.NewTermRenderer(
		glamour.WithStandardStyle(style),
		glamour.WithWordWrap(width),
	)
	if err != nil {
		return text
	}
	out, err := r.Render(text)
	if err != nil {
		return text
	}
	return out
}

func formatValue(v float64) string {
	return strconv.FormatFloat(v, 'f', -1, 64)
}

func excerpt(s string, n int) string {
	s = strings.Join(strings.Fields(s), " ")
	r := []rune(s)
	if len(r) <= n {
		return s
	}
	return strings.TrimSpace(string(r[:n])) + "…"
}
