package main

import (
	"encoding/json"
	"fmt"
	"io"
	"text/tabwriter"

	"github.com/yairfalse/kartta/internal/api"
	"github.com/yairfalse/kartta/internal/inventory"
)

const (
	outputTable = "table"
	outputJSON  = "json"
)

// writeJSON prints the view in the /resources response shape.
func writeJSON(w io.Writer, v inventory.View) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	return enc.Encode(api.ResourcesResponse{
		Timestamp: v.Timestamp,
		Complete:  v.Complete,
		Count:     len(v.Records),
		Records:   v.Records,
		Failures:  v.Failures,
	})
}

// writeTable prints records, then failed targets when there are any.
func writeTable(w io.Writer, v inventory.View) error {
	tw := tabwriter.NewWriter(w, 0, 0, 2, ' ', 0)
	_, _ = fmt.Fprintln(tw, "REGION\tSERVICE\tID\tNAME\tSTATUS")
	_, _ = fmt.Fprintln(tw, "------\t-------\t--\t----\t------")
	for _, r := range v.Records {
		_, _ = fmt.Fprintf(tw, "%s\t%s\t%s\t%s\t%s\n",
			r.Region, r.Kind, r.ID, orDash(truncate(r.Name, 40)), orDash(r.Status))
	}
	if err := tw.Flush(); err != nil {
		return err
	}

	_, _ = fmt.Fprintf(w, "\n%d records", len(v.Records))
	if v.Complete {
		_, err := fmt.Fprintln(w)
		return err
	}
	_, _ = fmt.Fprintf(w, ", %d failed targets\n\n", len(v.Failures))

	tw = tabwriter.NewWriter(w, 0, 0, 2, ' ', 0)
	_, _ = fmt.Fprintln(tw, "REGION\tSERVICE\tERROR\tMESSAGE")
	_, _ = fmt.Fprintln(tw, "------\t-------\t-----\t-------")
	for _, f := range v.Failures {
		_, _ = fmt.Fprintf(tw, "%s\t%s\t%s\t%s\n", f.Target.Region, f.Target.Kind, f.Kind, f.Message)
	}
	return tw.Flush()
}

func orDash(s string) string {
	if s == "" {
		return "-"
	}
	return s
}

func truncate(s string, n int) string {
	if len(s) <= n {
		return s
	}
	return s[:n-3] + "..."
}
