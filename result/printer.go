package result

import (
	"fmt"
	"io"
	"strings"

	"github.com/charmbracelet/lipgloss/tree"
)

// PrintResults writes a tree of the pages that have failing links to w,
// headed by the ok/failed totals. Each failing link is shown with its
// arrow-joined chain, e.g. "/bar: 302 → 404".
func PrintResults(w io.Writer, a *Analysis) {
	report := tree.Root(fmt.Sprintf("📂 Results: %d links (%d ok, %d failed)",
		a.Stats.Total(), a.Stats.OK, a.Stats.Failed))

	for _, page := range a.Pages {
		failed := page.FailedLinks()
		if len(failed) == 0 {
			continue
		}
		branch := tree.Root("📄 " + page.URL.String())
		for _, link := range failed {
			branch.Child(fmt.Sprintf("🔗 %s: %s", link.Href, link.Describe()))
		}
		report.Child(branch)
	}

	// The renderer pads every line to the widest one.
	lines := strings.Split(report.String(), "\n")
	for i, line := range lines {
		lines[i] = strings.TrimRight(line, " ")
	}
	_, _ = fmt.Fprintln(w, strings.Join(lines, "\n"))
}
