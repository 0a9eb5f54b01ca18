package tui

import (
	"fmt"
	"strings"
	"time"

	"github.com/charmbracelet/lipgloss"
	"github.com/charmbracelet/lipgloss/table"

	"github.com/lukemcguire/linkwalk/outcome"
	"github.com/lukemcguire/linkwalk/result"
)

var (
	titleStyle       = lipgloss.NewStyle().Bold(true)
	successStyle     = lipgloss.NewStyle().Bold(true).Foreground(lipgloss.Color("10"))
	errorStyle       = lipgloss.NewStyle().Bold(true).Foreground(lipgloss.Color("9"))
	queuedStyle      = lipgloss.NewStyle().Bold(true).Foreground(lipgloss.Color("12"))
	inProgressStyle  = lipgloss.NewStyle().Bold(true).Foreground(lipgloss.Color("11"))
	headerStyle      = lipgloss.NewStyle().Bold(true).Foreground(lipgloss.Color("12"))
	categoryStyle    = lipgloss.NewStyle().Bold(true).Foreground(lipgloss.Color("11"))
	dimStyle         = lipgloss.NewStyle().Faint(true)
	urlStyle         = lipgloss.NewStyle()
	statusErrorStyle = lipgloss.NewStyle().Foreground(lipgloss.Color("9"))
)

// categoryOrder defines the display order for failure categories (most to least actionable).
var categoryOrder = []outcome.Category{
	outcome.Category4xx,
	outcome.Category5xx,
	outcome.CategoryTimeout,
	outcome.CategoryDNSFailure,
	outcome.CategoryConnectionRefused,
	outcome.CategoryConnectionReset,
	outcome.CategoryTLS,
	outcome.CategoryRedirectLoop,
	outcome.CategoryInvalidRedirect,
	outcome.CategoryCanceled,
	outcome.CategoryUnknown,
}

type failedLink struct {
	page string
	link result.LinkResult
}

// RenderSummary produces a Lip Gloss styled summary of failing links,
// grouped by failure category.
func RenderSummary(a *result.Analysis, elapsed time.Duration) string {
	if a == nil {
		return errorStyle.Render("No results available.")
	}

	var builder strings.Builder

	if a.OK() {
		builder.WriteString(successStyle.Render("No broken links found!"))
		builder.WriteString("\n")
		builder.WriteString(dimStyle.Render(fmt.Sprintf(
			"Checked %d links in %s",
			a.Stats.Total(),
			elapsed.Round(time.Millisecond),
		)))
		builder.WriteString("\n")
		return builder.String()
	}

	grouped := make(map[outcome.Category][]failedLink)
	for _, page := range a.Pages {
		for _, link := range page.FailedLinks() {
			cat, _ := outcome.Failure(link.Chain.Final())
			if cat == "" {
				cat = outcome.CategoryUnknown
			}
			grouped[cat] = append(grouped[cat], failedLink{page: page.URL.String(), link: link})
		}
	}

	for _, cat := range categoryOrder {
		links, exists := grouped[cat]
		if !exists || len(links) == 0 {
			continue
		}

		builder.WriteString(categoryStyle.Render(fmt.Sprintf("## %s (%d)", cat.Label(), len(links))))
		builder.WriteString("\n")

		rows := make([][]string, 0, len(links))
		for _, failed := range links {
			rows = append(rows, []string{failed.link.Target.String(), failed.link.Describe(), failed.page})
		}

		catTable := table.New().
			Border(lipgloss.RoundedBorder()).
			Headers("URL", "Result", "Found On").
			StyleFunc(func(row, col int) lipgloss.Style {
				if row == table.HeaderRow {
					return headerStyle
				}
				if col == 1 { // Result column
					return statusErrorStyle
				}
				return urlStyle
			}).
			Rows(rows...)

		builder.WriteString(catTable.Render())
		builder.WriteString("\n\n")
	}

	builder.WriteString(titleStyle.Render(fmt.Sprintf(
		"Found %d broken links out of %d links checked (%s)",
		a.Stats.Failed,
		a.Stats.Total(),
		elapsed.Round(time.Millisecond),
	)))
	builder.WriteString("\n")

	return builder.String()
}
