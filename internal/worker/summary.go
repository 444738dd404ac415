package worker

import (
	"fmt"
	"sort"
	"strings"

	"github.com/cwygoda/linkbatch/internal/domain"
)

var categoryOrder = []struct {
	cat   domain.Category
	label string
}{
	{domain.CategoryVideo, "🎞 Videos"},
	{domain.CategoryPDF, "📄 PDFs"},
	{domain.CategoryImage, "🖼 Images"},
	{domain.CategoryAudio, "🎵 Audio"},
	{domain.CategoryOther, "📎 Other"},
}

// Summary renders the end-of-batch message. Parsed categories come from the
// raw URL text and resolved strategies from the executed targets; the two
// are reported side by side and may disagree.
func Summary(rep Report) string {
	var b strings.Builder
	switch rep.Status {
	case domain.RunCancelled:
		b.WriteString("🛑 Batch cancelled")
	case domain.RunAborted:
		b.WriteString("⚠️ Batch aborted")
	default:
		b.WriteString("✅ Batch complete")
	}
	if rep.BatchName != "" {
		fmt.Fprintf(&b, ": %s", rep.BatchName)
	}
	b.WriteString("\n\n")
	fmt.Fprintf(&b, "🔗 Total links: %d\n", rep.Total)
	fmt.Fprintf(&b, "▶️ Start index: %d\n", rep.StartIndex)
	fmt.Fprintf(&b, "✅ Success: %d\n", rep.Stats.Succeeded)
	fmt.Fprintf(&b, "❌ Failed: %d\n", rep.Stats.Failed)
	if rep.Status == domain.RunCancelled {
		fmt.Fprintf(&b, "⏭ Not processed: %d\n", rep.Stats.Total-rep.Stats.Processed)
	}

	b.WriteString("\nParsed categories:\n")
	for _, c := range categoryOrder {
		if n := rep.Categories[c.cat]; n > 0 || c.cat != domain.CategoryAudio && c.cat != domain.CategoryOther {
			fmt.Fprintf(&b, "%s: %d\n", c.label, n)
		}
	}

	if len(rep.Stats.ByStrategy) > 0 {
		b.WriteString("\nResolved strategies:\n")
		names := make([]string, 0, len(rep.Stats.ByStrategy))
		for s := range rep.Stats.ByStrategy {
			names = append(names, string(s))
		}
		sort.Strings(names)
		for _, s := range names {
			fmt.Fprintf(&b, "%s: %d\n", s, rep.Stats.ByStrategy[domain.Strategy(s)])
		}
	}
	return strings.TrimRight(b.String(), "\n")
}
