package share

import (
	"sort"
	"strings"

	"github.com/petems/consult-recorder/internal/analysis"
)

var summaryOrder = []string{
	analysis.SummaryPresentation,
	analysis.SummaryLifeEffect,
	analysis.SummaryGoal,
}

var sectionOrder = []string{"cause", "presentation", "life_effect", "intent"}

var labels = map[string]string{
	"life_effect":     "Effect on life",
	"mva":             "Motor vehicle accidents",
	"is_chronic":      "Chronic",
	"sports_injuries": "Sports injuries",
}

// Label turns a result key into a heading, e.g. "main_complaint" -> "Main complaint".
func Label(key string) string {
	if l, ok := labels[key]; ok {
		return l
	}
	s := strings.ReplaceAll(key, "_", " ")
	if s == "" {
		return s
	}
	return strings.ToUpper(s[:1]) + s[1:]
}

// FormatSummary renders just the summary block, suitable for pasting into notes.
func FormatSummary(res *analysis.Result) string {
	if res == nil {
		return ""
	}
	var b strings.Builder
	writeFields(&b, res.Summary, summaryOrder, "")
	return strings.TrimRight(b.String(), "\n")
}

// Format renders a full plain text report: summary, assessment and transcript.
func Format(res *analysis.Result) string {
	if res == nil {
		return ""
	}
	var b strings.Builder

	b.WriteString("SUMMARY\n")
	writeFields(&b, res.Summary, summaryOrder, "")

	if len(res.QAAnalysis) > 0 {
		b.WriteString("\nASSESSMENT\n")
		for _, section := range orderedKeys(res.QAAnalysis, sectionOrder) {
			b.WriteString(Label(section) + "\n")
			writeFields(&b, res.QAAnalysis[section], nil, "  ")
		}
	}

	if len(res.Transcript) > 0 {
		b.WriteString("\nTRANSCRIPT\n")
		for _, u := range res.Transcript {
			b.WriteString(u.Speaker + ": " + u.Text + "\n")
		}
	}

	return strings.TrimRight(b.String(), "\n")
}

func writeFields(b *strings.Builder, fields map[string]string, order []string, indent string) {
	for _, k := range orderedKeys(fields, order) {
		b.WriteString(indent + Label(k) + ": " + fields[k] + "\n")
	}
}

// orderedKeys lists the preferred keys that are present, then the rest
// sorted, with "summary" always last.
func orderedKeys[V any](m map[string]V, preferred []string) []string {
	keys := make([]string, 0, len(m))
	seen := make(map[string]bool, len(preferred))
	for _, k := range preferred {
		if _, ok := m[k]; ok {
			keys = append(keys, k)
			seen[k] = true
		}
	}
	var rest []string
	for k := range m {
		if !seen[k] && k != "summary" {
			rest = append(rest, k)
		}
	}
	sort.Strings(rest)
	keys = append(keys, rest...)
	if _, ok := m["summary"]; ok && !seen["summary"] {
		keys = append(keys, "summary")
	}
	return keys
}
