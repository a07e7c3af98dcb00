package main

import (
	"encoding/json"
	"fmt"
	"io"

	"github.com/docker/go-units"
	"github.com/fatih/color"

	"github.com/franksops/filexfer/engine"
)

func printJSON(w io.Writer, v any) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}

func printResult(w io.Writer, res *engine.BatchResult) {
	fmt.Fprintf(w, "batch %s (%s)\n", res.BatchID, res.Mode)
	for _, o := range res.Outcomes {
		fmt.Fprintln(w, outcomeLine(o))
	}

	s := res.Summary
	line := fmt.Sprintf("%d files: %d succeeded, %d failed, %d checksum mismatches",
		s.Total, s.Succeeded, s.Failed, s.ChecksumMismatches)
	switch {
	case s.Total == 0:
		line = color.YellowString("no files to transfer")
	case s.Failed > 0:
		line = color.RedString(line)
	default:
		line = color.GreenString(line)
	}
	fmt.Fprintln(w, line)
}

func outcomeLine(o engine.TransferOutcome) string {
	status := color.GreenString("OK  ")
	detail := "checksum " + string(o.Checksum)
	if !o.Succeeded() {
		status = color.RedString("FAIL")
	}
	if o.ErrorMessage != "" {
		detail = o.ErrorMessage
	}
	return fmt.Sprintf("%s %-40s %10s  %s", status, o.FileName, units.BytesSize(float64(o.Bytes)), detail)
}
