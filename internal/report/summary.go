// Package report renders analysis results for people: plain-text summaries,
// terminal tables and heatmap images.
package report

import (
	"fmt"
	"strings"

	"github.com/couchcryptid/epicenter-detector/internal/domain"
)

// FormatSummary describes a result in a few lines of plain text, suitable
// for logs or for handing to a language model.
func FormatSummary(result domain.AnalysisResult) string {
	var b strings.Builder
	path := result.VideoPath
	if path == "" {
		path = "Unknown"
	}
	props := result.VideoProperties
	fmt.Fprintf(&b, "Video Analysis: %s\n", path)
	fmt.Fprintf(&b, "Resolution: %dx%d\n", props.Width, props.Height)
	fmt.Fprintf(&b, "Frames analyzed: %d\n", props.ProcessedFrames)
	b.WriteString("\n")

	switch {
	case result.Failed():
		fmt.Fprintf(&b, "Analysis failed: %s", result.Error)
	case len(result.Epicenters) == 0:
		b.WriteString("No significant epicenters detected.")
	default:
		fmt.Fprintf(&b, "Detected %d potential epicenter(s):", len(result.Epicenters))
		for i, ep := range result.Epicenters {
			fmt.Fprintf(&b, "\n  %d. Location: (%d, %d), Confidence: %.2f", i+1, ep.X, ep.Y, ep.Score)
		}
	}
	return b.String()
}

// TopEpicenter returns the highest-ranked candidate, if any.
func TopEpicenter(result domain.AnalysisResult) (domain.EpicenterCandidate, bool) {
	if result.Failed() || len(result.Epicenters) == 0 {
		return domain.EpicenterCandidate{}, false
	}
	return result.Epicenters[0], true
}
