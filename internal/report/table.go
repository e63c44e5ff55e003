package report

import (
	"strconv"
	"time"

	"github.com/jedib0t/go-pretty/v6/table"
	"github.com/jedib0t/go-pretty/v6/text"

	"github.com/couchcryptid/epicenter-detector/internal/domain"
)

// CandidateTable renders the ranked candidates of one result.
func CandidateTable(result domain.AnalysisResult) string {
	rows := make([][]string, 0, len(result.Epicenters))
	for i, ep := range result.Epicenters {
		rows = append(rows, []string{
			strconv.Itoa(i + 1),
			strconv.Itoa(ep.X),
			strconv.Itoa(ep.Y),
			strconv.FormatFloat(ep.Score, 'f', 4, 64),
		})
	}
	return renderTable([]string{"Rank", "X", "Y", "Score"}, rows, []bool{true, true, true, true})
}

// ResultsTable renders one line per result, for batch runs and history.
func ResultsTable(results []domain.AnalysisResult) string {
	rows := make([][]string, 0, len(results))
	for _, r := range results {
		top := "-"
		if ep, ok := TopEpicenter(r); ok {
			top = "(" + strconv.Itoa(ep.X) + ", " + strconv.Itoa(ep.Y) + ") " + strconv.FormatFloat(ep.Score, 'f', 2, 64)
		}
		status := r.Status
		if r.Failed() {
			status += ": " + r.Error
		}
		analyzed := ""
		if !r.AnalyzedAt.IsZero() {
			analyzed = r.AnalyzedAt.UTC().Format(time.RFC3339)
		}
		rows = append(rows, []string{
			r.ID,
			r.VideoPath,
			status,
			strconv.Itoa(r.VideoProperties.ProcessedFrames),
			strconv.Itoa(r.CandidateCount),
			top,
			analyzed,
		})
	}
	headers := []string{"ID", "Video", "Status", "Frames", "Candidates", "Top", "Analyzed"}
	return renderTable(headers, rows, []bool{false, false, false, true, true, false, false})
}

func renderTable(headers []string, rows [][]string, alignRight []bool) string {
	tw := table.NewWriter()
	tw.SetStyle(table.StyleRounded)

	header := make(table.Row, len(headers))
	for i, h := range headers {
		header[i] = h
	}
	tw.AppendHeader(header)

	for _, row := range rows {
		r := make(table.Row, len(headers))
		for i := range headers {
			if i < len(row) {
				r[i] = row[i]
			}
		}
		tw.AppendRow(r)
	}

	configs := make([]table.ColumnConfig, 0, len(headers))
	for i := range headers {
		align := text.AlignLeft
		if i < len(alignRight) && alignRight[i] {
			align = text.AlignRight
		}
		configs = append(configs, table.ColumnConfig{Number: i + 1, Align: align, AlignHeader: text.AlignLeft})
	}
	tw.SetColumnConfigs(configs)
	return tw.Render()
}
