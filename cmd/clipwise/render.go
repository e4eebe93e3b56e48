package main

import (
	"fmt"
	"io"
	"os"
	"sort"
	"strconv"
	"strings"

	"github.com/mattn/go-isatty"

	"clipwise/internal/api"
)

const (
	ansiReset  = "\x1b[0m"
	ansiRed    = "\x1b[31m"
	ansiGreen  = "\x1b[32m"
	ansiYellow = "\x1b[33m"
	ansiBlue   = "\x1b[34m"
)

const displayTimeLayout = "2006-01-02 15:04:05"

func shouldColorize(writer io.Writer) bool {
	file, ok := writer.(*os.File)
	if !ok {
		return false
	}
	fd := file.Fd()
	return isatty.IsTerminal(fd) || isatty.IsCygwinTerminal(fd)
}

// statusColor maps run, job and index statuses to a terminal colour.
func statusColor(status string) string {
	switch strings.ToLower(status) {
	case "completed", "succeeded", "processed", "ok":
		return ansiGreen
	case "failed", "finalization_failed":
		return ansiRed
	case "timed_out", "stalled":
		return ansiYellow
	case "":
		return ""
	default:
		return ansiBlue
	}
}

func colorStatus(status string, colorize bool) string {
	if !colorize {
		return status
	}
	if color := statusColor(status); color != "" {
		return color + status + ansiReset
	}
	return status
}

func displayTime(value string) string {
	t := api.ParseTime(value)
	if t.IsZero() {
		return "-"
	}
	return t.Local().Format(displayTimeLayout)
}

func dash(value string) string {
	if strings.TrimSpace(value) == "" {
		return "-"
	}
	return value
}

func shortID(id string) string {
	if len(id) <= 8 {
		return id
	}
	return id[:8]
}

func renderRuns(runs []api.Run, colorize bool) string {
	rows := make([][]string, 0, len(runs))
	for _, run := range runs {
		rows = append(rows, []string{
			run.ID,
			run.Campaign,
			strconv.Itoa(run.BatchSize),
			colorStatus(run.Status, colorize),
			strconv.Itoa(run.PollRound),
			displayTime(run.CreatedAt),
			dash(run.ErrorMessage),
		})
	}
	return renderTable(tableSpec{
		Headers: []string{"Execution", "Campaign", "Batch", "Status", "Rounds", "Created", "Error"},
		Rows:    rows,
		Aligns:  []columnAlignment{alignLeft, alignLeft, alignRight, alignLeft, alignRight},
	})
}

func renderRunReport(w io.Writer, report api.RunReport, colorize bool) {
	run := report.Run
	fmt.Fprintf(w, "Execution:  %s\n", run.ID)
	fmt.Fprintf(w, "Campaign:   %s (batch %d from %s)\n", run.Campaign, run.BatchSize, strings.Join(run.Sources, ", "))
	fmt.Fprintf(w, "Status:     %s\n", colorStatus(run.Status, colorize))
	fmt.Fprintf(w, "Poll round: %d\n", run.PollRound)
	fmt.Fprintf(w, "Created:    %s\n", displayTime(run.CreatedAt))
	fmt.Fprintf(w, "Updated:    %s\n", displayTime(run.UpdatedAt))
	if run.ErrorMessage != "" {
		fmt.Fprintf(w, "Error:      %s\n", run.ErrorMessage)
	}
	if run.ResumeStatus != "" {
		fmt.Fprintf(w, "Resumes at: %s (clipwise resume)\n", run.ResumeStatus)
	}
	if report.LogPath != "" {
		fmt.Fprintf(w, "Log:        %s\n", report.LogPath)
	}
	fmt.Fprintln(w)

	counts := report.Counts
	jobs := make([]string, 0, len(counts.Jobs))
	for status, n := range counts.Jobs {
		if n > 0 {
			jobs = append(jobs, fmt.Sprintf("%s=%d", status, n))
		}
	}
	sort.Strings(jobs)
	fmt.Fprintln(w, renderTable(tableSpec{
		Title:   "Progress",
		Headers: []string{"Ingested", "Ingest failures", "Jobs", "Processed", "Skipped", "Indexed"},
		Rows: [][]string{{
			strconv.Itoa(counts.Ingested),
			strconv.Itoa(counts.IngestionFailed),
			dash(strings.Join(jobs, " ")),
			strconv.Itoa(counts.Processed),
			strconv.Itoa(counts.Skipped),
			strconv.Itoa(counts.Indexed),
		}},
		Aligns: []columnAlignment{alignRight, alignRight, alignLeft, alignRight, alignRight, alignRight},
	}))

	if len(report.Assets) > 0 {
		rows := make([][]string, 0, len(report.Assets))
		for _, asset := range report.Assets {
			rows = append(rows, []string{
				asset.AssetID,
				dash(asset.Title),
				colorStatus(dash(asset.JobStatus), colorize),
				strconv.Itoa(asset.JobAttempts),
				strconv.Itoa(asset.LabelCount),
				dash(asset.SkipReason),
				colorStatus(dash(asset.IndexStatus), colorize),
			})
		}
		fmt.Fprintln(w, renderTable(tableSpec{
			Title:   "Assets",
			Headers: []string{"Asset", "Title", "Job", "Attempts", "Labels", "Skip", "Index"},
			Rows:    rows,
			Aligns:  []columnAlignment{alignLeft, alignLeft, alignLeft, alignRight, alignRight},
		}))
	}

	if len(report.Failures) > 0 {
		rows := make([][]string, 0, len(report.Failures))
		for _, failure := range report.Failures {
			rows = append(rows, []string{failure.AssetID, failure.Kind, failure.Reason})
		}
		fmt.Fprintln(w, renderTable(tableSpec{
			Title:   "Ingestion failures",
			Headers: []string{"Asset", "Kind", "Reason"},
			Rows:    rows,
		}))
	}
}

func renderAssets(assets []api.Asset, colorize bool) string {
	rows := make([][]string, 0, len(assets))
	for _, asset := range assets {
		rows = append(rows, []string{
			asset.AssetID,
			asset.Campaign,
			colorStatus(asset.Status, colorize),
			strconv.Itoa(asset.LabelCount),
			dash(strings.Join(asset.TopLabels, ", ")),
			dash(asset.ProcessedPath),
		})
	}
	return renderTable(tableSpec{
		Headers: []string{"Asset", "Campaign", "Status", "Labels", "Top labels", "Processed"},
		Rows:    rows,
		Aligns:  []columnAlignment{alignLeft, alignLeft, alignLeft, alignRight},
		Footer:  []string{fmt.Sprintf("%d assets", len(assets))},
	})
}
