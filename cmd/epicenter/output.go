package main

import (
	"encoding/json"
	"fmt"
	"os"
	"strings"

	"github.com/mattn/go-isatty"
	"github.com/spf13/cobra"

	"github.com/couchcryptid/epicenter-detector/internal/domain"
	"github.com/couchcryptid/epicenter-detector/internal/report"
)

// Output formats accepted by --format.
const (
	formatAuto  = "auto"
	formatJSON  = "json"
	formatTable = "table"
	formatText  = "text"
)

// writeJSON encodes v as indented JSON to the command's stdout.
func writeJSON(cmd *cobra.Command, v any) error {
	enc := json.NewEncoder(cmd.OutOrStdout())
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}

// resolveFormat turns auto into table on a terminal and JSON otherwise.
func resolveFormat(cmd *cobra.Command, format string) (string, error) {
	switch format {
	case formatJSON, formatTable, formatText:
		return format, nil
	case formatAuto, "":
		if f, ok := cmd.OutOrStdout().(*os.File); ok {
			fd := f.Fd()
			if isatty.IsTerminal(fd) || isatty.IsCygwinTerminal(fd) {
				return formatTable, nil
			}
		}
		return formatJSON, nil
	default:
		return "", fmt.Errorf("unknown format %q (want auto, json, table or text)", format)
	}
}

func printResult(cmd *cobra.Command, format string, result domain.AnalysisResult) error {
	out := cmd.OutOrStdout()
	switch format {
	case formatJSON:
		return writeJSON(cmd, result)
	case formatText:
		_, err := fmt.Fprintln(out, report.FormatSummary(result))
		return err
	default:
		props := result.VideoProperties
		fmt.Fprintf(out, "%s  %dx%d  %d frames analyzed  %d candidate(s)\n",
			result.VideoPath, props.Width, props.Height, props.ProcessedFrames, result.CandidateCount)
		if len(result.Epicenters) == 0 {
			_, err := fmt.Fprintln(out, "No significant epicenters detected.")
			return err
		}
		_, err := fmt.Fprintln(out, report.CandidateTable(result))
		return err
	}
}

func printResults(cmd *cobra.Command, format string, results []domain.AnalysisResult) error {
	out := cmd.OutOrStdout()
	switch format {
	case formatJSON:
		if results == nil {
			results = []domain.AnalysisResult{}
		}
		return writeJSON(cmd, results)
	case formatText:
		summaries := make([]string, len(results))
		for i, r := range results {
			summaries[i] = report.FormatSummary(r)
		}
		_, err := fmt.Fprintln(out, strings.Join(summaries, "\n\n"))
		return err
	default:
		if len(results) == 0 {
			_, err := fmt.Fprintln(out, "No results.")
			return err
		}
		_, err := fmt.Fprintln(out, report.ResultsTable(results))
		return err
	}
}
