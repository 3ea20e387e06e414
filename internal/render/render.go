// Package render turns a digest into the subject line and bodies of the email.
package render

import (
	"bytes"
	"embed"
	"fmt"
	"html"
	"html/template"
	"strings"
	"time"

	"github.com/microcosm-cc/bluemonday"

	"github.com/naka-gawa/github-digest/internal/domain"
)

//go:embed templates/*.html.tmpl
var templateFS embed.FS

const dateLayout = "Jan 2, 2006"

var digestTemplate = template.Must(template.New("digest.html.tmpl").Funcs(template.FuncMap{
	"shorthand": shorthand,
	"date":      func(t time.Time) string { return t.Format(dateLayout) },
	"hours":     formatHours,
}).ParseFS(templateFS, "templates/digest.html.tmpl"))

// view is the template input: the digest plus presentation-only values.
type view struct {
	*domain.Digest
	Window string
}

// Subject returns the email subject for a digest over repos generated at now.
func Subject(repos []domain.Repository, now time.Time) string {
	name := fmt.Sprintf("%d repositories", len(repos))
	if len(repos) == 1 {
		name = repos[0].FullName()
	}
	return fmt.Sprintf("Daily GitHub Digest for %s - %s", name, now.Format(dateLayout))
}

// HTML renders the digest document.
func HTML(d *domain.Digest) (string, error) {
	var buf bytes.Buffer
	v := view{Digest: d, Window: windowText(d.GeneratedAt.Sub(d.Cutoff))}
	if err := digestTemplate.Execute(&buf, v); err != nil {
		return "", fmt.Errorf("failed to render digest: %w", err)
	}
	return buf.String(), nil
}

// PlainText strips markup from the rendered HTML for the text/plain part.
// Blank lines left behind by the template are collapsed.
func PlainText(body string) string {
	stripped := bluemonday.StrictPolicy().Sanitize(body)
	stripped = strings.ReplaceAll(stripped, "\u00a0", " ")
	var lines []string
	for _, line := range strings.Split(stripped, "\n") {
		if line = strings.TrimSpace(line); line != "" {
			lines = append(lines, html.UnescapeString(line))
		}
	}
	return strings.Join(lines, "\n") + "\n"
}

// shorthand renders counts as "+opened ~updated -closed", leaving zero cells blank.
func shorthand(c domain.Counts) template.HTML {
	cell := func(class, sign string, n int) string {
		text := "&nbsp;"
		if n > 0 {
			text = fmt.Sprintf("%s%d", sign, n)
		}
		return fmt.Sprintf(`<span class="activity-item %s">%s</span>`, class, text)
	}
	return template.HTML(`<div class="activity-grid">` +
		cell("activity-opened", "+", c.Opened) +
		cell("activity-updated", "~", c.Updated) +
		cell("activity-closed", "-", c.Closed) +
		`</div>`)
}

func formatHours(h float64) string {
	if h < 48 {
		return fmt.Sprintf("%.1fh", h)
	}
	return fmt.Sprintf("%.1fd", h/24)
}

func windowText(d time.Duration) string {
	if d <= 0 || d%time.Hour != 0 {
		return d.String()
	}
	if hours := int(d / time.Hour); hours != 1 {
		return fmt.Sprintf("%d hours", hours)
	}
	return "hour"
}
