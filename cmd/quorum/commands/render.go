package commands

import (
	"io"
	"time"

	"github.com/dustin/go-humanize"
	"github.com/fatih/color"
	"github.com/jedib0t/go-pretty/v6/table"

	"github.com/0Ankit0-0/quorum/pkg/logdata"
)

var (
	criticalColor = color.New(color.FgRed, color.Bold)
	highColor     = color.New(color.FgRed)
	mediumColor   = color.New(color.FgYellow)
	lowColor      = color.New(color.FgCyan)
	okColor       = color.New(color.FgGreen)
)

// severityLabel colors a severity for terminal output.
func severityLabel(severity string) string {
	switch severity {
	case logdata.SeverityCritical:
		return criticalColor.Sprint(severity)
	case logdata.SeverityHigh, "ERROR":
		return highColor.Sprint(severity)
	case logdata.SeverityMedium, "WARNING":
		return mediumColor.Sprint(severity)
	case logdata.SeverityLow:
		return lowColor.Sprint(severity)
	default:
		return severity
	}
}

// newTable builds a writer-bound table in the house style.
func newTable(w io.Writer, headers ...any) table.Writer {
	t := table.NewWriter()
	t.SetOutputMirror(w)
	t.SetStyle(table.StyleLight)
	t.AppendHeader(headers)

	return t
}

// count renders an integer with thousands separators.
func count(n int64) string {
	return humanize.Comma(n)
}

// ago renders an RFC3339 timestamp as a relative time, falling back to the
// raw string when it does not parse.
func ago(timestamp string) string {
	if timestamp == "" {
		return "-"
	}

	ts, err := time.Parse(time.RFC3339, timestamp)
	if err != nil {
		return timestamp
	}

	return humanize.Time(ts)
}

// truncate shortens a string for table cells.
func truncate(s string, maxLen int) string {
	if len(s) <= maxLen {
		return s
	}

	return s[:maxLen-3] + "..."
}
