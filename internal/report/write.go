package report

import (
	"encoding/json"
	"fmt"
	"io"
	"strings"
	"text/tabwriter"
	"time"

	"gopkg.in/yaml.v3"
)

// Formats accepted by Write.
const (
	FormatText = "text"
	FormatJSON = "json"
	FormatYAML = "yaml"
)

// Write renders r in format.
func Write(w io.Writer, r *Report, format string) error {
	switch strings.ToLower(format) {
	case "", FormatText:
		return writeText(w, r)
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
	}
	return fmt.Errorf("unknown report format %q", format)
}

func writeText(w io.Writer, r *Report) error {
	var b strings.Builder
	fmt.Fprintf(&b, "\n  workflow: %s (%s)\n\n", r.Workflow, r.ExecutionID)
	fmt.Fprintf(&b, "     status.............: %s\n", r.Status)
	if r.Cause != "" {
		fmt.Fprintf(&b, "     cause..............: %s\n", r.Cause)
	}
	fmt.Fprintf(&b, "     duration...........: %s\n", r.Duration().Round(time.Millisecond))
	fmt.Fprintf(&b, "     ranks..............: %d\n", r.Ranks)
	fmt.Fprintf(&b, "     tasks..............: %d\n", len(r.Tasks))
	if r.Latency.Count > 0 {
		fmt.Fprintf(&b, "     task p50...........: %s\n", r.Latency.P50.Round(time.Microsecond))
		fmt.Fprintf(&b, "     task p99...........: %s\n", r.Latency.P99.Round(time.Microsecond))
	}
	fmt.Fprintf(&b, "     objects............: %d published, %d released, %d live\n\n",
		r.Arena.Published, r.Arena.Released, r.Arena.Live)
	if _, err := io.WriteString(w, b.String()); err != nil {
		return err
	}

	tw := tabwriter.NewWriter(w, 0, 4, 2, ' ', 0)
	fmt.Fprintln(tw, "  ID\tLABEL\tKIND\tSTATE\tRANK\tATTEMPTS\tDURATION\tCAUSE")
	for _, t := range r.Tasks {
		fmt.Fprintf(tw, "  %d\t%s\t%s@v%d\t%s\t%d\t%d\t%s\t%s\n",
			t.Instance, t.Label, t.Kind, t.Version, t.State, t.Rank, t.Attempts,
			t.Duration.Round(time.Microsecond), t.Cause)
	}
	return tw.Flush()
}
