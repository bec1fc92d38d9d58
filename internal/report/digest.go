package report

import (
	"fmt"
	"html"
	"regexp"
	"strings"
	"time"

	"vargento/internal/domain"
)

type DigestInput struct {
	Brand  string
	Since  time.Time
	Stats  domain.PredictionStats
	Labels []domain.LabelCount
	Trend  []domain.WeeklyTrend
	// Corrections are the latest referee overrides, newest first.
	Corrections []domain.Correction
	// Display maps a raw label to its display text; nil shows raw labels.
	Display func(string) string
}

// Digest renders the activity summary as markdown.
func Digest(in DigestInput) string {
	brand := strings.TrimSpace(in.Brand)
	if brand == "" {
		brand = "VARGENTO"
	}
	display := in.Display
	if display == nil {
		display = func(s string) string { return s }
	}

	var b strings.Builder
	fmt.Fprintf(&b, "### %s digest (since %s)\n\n", brand, in.Since.Format("2006-01-02"))
	if in.Stats.TotalPredictions == 0 {
		b.WriteString("No incidents were analyzed in this period.\n")
		return b.String()
	}

	s := in.Stats
	fmt.Fprintf(&b, "- Incidents analyzed: **%d**\n", s.TotalPredictions)
	fmt.Fprintf(&b, "- Referee corrections: **%d** (%.1f%%)\n", s.TotalCorrections,
		100*float64(s.TotalCorrections)/float64(s.TotalPredictions))
	fmt.Fprintf(&b, "- Average confidence: **%.1f%%**\n", s.AvgConfidence*100)
	fmt.Fprintf(&b, "- Confidence spread: <50%%: %d | 50-70%%: %d | 70-90%%: %d | 90%%+: %d\n",
		s.BucketBelow50, s.Bucket50to70, s.Bucket70to90, s.Bucket90Plus)

	if len(in.Labels) > 0 {
		b.WriteString("\n### Decisions\n\n")
		for _, lc := range in.Labels {
			fmt.Fprintf(&b, "- %s: %d\n", display(lc.Label), lc.Count)
		}
	}

	if len(in.Trend) > 1 {
		b.WriteString("\n### Weekly trend\n\n")
		for _, w := range in.Trend {
			fmt.Fprintf(&b, "- Week of %s: %d analyzed, %d corrected, avg confidence %.0f%%\n",
				w.WeekStart, w.Predictions, w.Corrections, w.AvgConfidence*100)
		}
	}

	if len(in.Corrections) > 0 {
		b.WriteString("\n### Recent referee corrections\n\n")
		for _, c := range in.Corrections {
			line := fmt.Sprintf("- %s → **%s**", display(c.OriginalLabel), display(c.CorrectedLabel))
			if by := strings.TrimSpace(c.CorrectedBy); by != "" {
				line += " by " + by
			}
			if note := strings.TrimSpace(c.Note); note != "" {
				line += ": " + note
			}
			b.WriteString(line + "\n")
		}
	}
	return b.String()
}

var boldTokenRe = regexp.MustCompile(`\*\*([^*]+)\*\*`)

// SlackMrkdwn converts digest markdown to Slack's mrkdwn dialect.
func SlackMrkdwn(md string) string {
	var out []string
	for _, line := range strings.Split(strings.ReplaceAll(md, "\r\n", "\n"), "\n") {
		trimmed := strings.TrimSpace(line)
		if strings.HasPrefix(trimmed, "### ") {
			out = append(out, "*"+strings.TrimSpace(strings.TrimLeft(trimmed, "# "))+"*")
			continue
		}
		if strings.HasPrefix(trimmed, "- ") {
			line = "• " + strings.TrimPrefix(trimmed, "- ")
		}
		out = append(out, boldTokenRe.ReplaceAllString(line, "*$1*"))
	}
	return strings.TrimRight(strings.Join(out, "\n"), "\n")
}

// HTML renders digest markdown (headings, flat bullet lists, bold) as an
// HTML fragment for the web dashboard.
func HTML(md string) string {
	var b strings.Builder
	inList := false
	closeList := func() {
		if inList {
			b.WriteString("</ul>\n")
			inList = false
		}
	}
	for _, raw := range strings.Split(strings.ReplaceAll(md, "\r\n", "\n"), "\n") {
		trimmed := strings.TrimSpace(raw)
		switch {
		case trimmed == "":
			closeList()
		case strings.HasPrefix(trimmed, "### "):
			closeList()
			b.WriteString("<h3>" + renderInlineBold(strings.TrimSpace(strings.TrimLeft(trimmed, "# "))) + "</h3>\n")
		case strings.HasPrefix(trimmed, "- "):
			if !inList {
				b.WriteString("<ul>\n")
				inList = true
			}
			b.WriteString("<li>" + renderInlineBold(strings.TrimPrefix(trimmed, "- ")) + "</li>\n")
		default:
			closeList()
			b.WriteString("<p>" + renderInlineBold(trimmed) + "</p>\n")
		}
	}
	closeList()
	return b.String()
}

func renderInlineBold(s string) string {
	matches := boldTokenRe.FindAllStringSubmatchIndex(s, -1)
	if len(matches) == 0 {
		return html.EscapeString(s)
	}
	var out strings.Builder
	last := 0
	for _, m := range matches {
		out.WriteString(html.EscapeString(s[last:m[0]]))
		out.WriteString("<strong>")
		out.WriteString(html.EscapeString(s[m[2]:m[3]]))
		out.WriteString("</strong>")
		last = m[1]
	}
	out.WriteString(html.EscapeString(s[last:]))
	return out.String()
}
