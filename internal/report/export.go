package report

import (
	"encoding/json"
	"fmt"
	"io"
	"strconv"
	"strings"

	"github.com/olekukonko/tablewriter"
	"gopkg.in/yaml.v3"
)

// Format selects how the final report is rendered
type Format string

const (
	FormatText Format = "text"
	FormatJSON Format = "json"
	FormatYAML Format = "yaml"
	FormatNone Format = "none"
)

// ParseFormat validates a format name
func ParseFormat(s string) (Format, error) {
	switch f := Format(strings.ToLower(s)); f {
	case FormatText, FormatJSON, FormatYAML, FormatNone:
		return f, nil
	case "":
		return FormatText, nil
	default:
		return "", fmt.Errorf("unknown output format %q (want text, json, yaml or none)", s)
	}
}

// Write renders r to w
func Write(w io.Writer, format Format, r *Report) error {
	switch format {
	case FormatNone:
		return nil
	case FormatJSON:
		enc := json.NewEncoder(w)
		enc.SetIndent("", "  ")
		return enc.Encode(r)
	case FormatYAML:
		enc := yaml.NewEncoder(w)
		enc.SetIndent(2)
		if err := enc.Encode(r); err != nil {
			return err
		}
		return enc.Close()
	case FormatText, "":
		return writeText(w, r)
	default:
		return fmt.Errorf("unknown output format %q", format)
	}
}

func writeText(w io.Writer, r *Report) error {
	fmt.Fprintf(w, "=== devrun report ===\n")
	fmt.Fprintf(w, "Run ID: %s\n", r.RunID)
	fmt.Fprintf(w, "Command: %s\n", r.Command)
	fmt.Fprintf(w, "Status: %s\n", r.Status)
	if r.Reason != "" {
		fmt.Fprintf(w, "Reason: %s\n", r.Reason)
	}
	if r.Error != "" {
		fmt.Fprintf(w, "Error: %s\n", r.Error)
	}
	fmt.Fprintf(w, "Attempts: %d/%d\n", len(r.Attempts), r.Policy.MaxAttempts)
	fmt.Fprintf(w, "Duration: %.2fs\n\n", r.DurationSeconds)

	table := tablewriter.NewWriter(w)
	table.Header("Attempt", "State", "Exit Code", "Signal", "PID", "Duration")

	for _, a := range r.Attempts {
		exitCode := "-"
		if a.ExitCode != nil {
			exitCode = strconv.Itoa(*a.ExitCode)
		}
		pid := "-"
		if a.PID != 0 {
			pid = strconv.Itoa(a.PID)
		}
		signal := a.Signal
		if signal == "" {
			signal = "-"
		}
		if err := table.Append(
			strconv.Itoa(a.Number),
			a.State,
			exitCode,
			signal,
			pid,
			fmt.Sprintf("%.2fs", a.DurationSeconds),
		); err != nil {
			return err
		}
	}

	return table.Render()
}
