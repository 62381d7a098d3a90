package main

import (
	"fmt"
	"io"
	"sort"
	"time"

	"github.com/olekukonko/tablewriter"
)

type report struct {
	models  []string
	byModel map[string]map[string]probeResult
	total   int
	failed  int
}

func buildReport(models []string, results []probeResult) report {
	rep := report{
		models:  models,
		byModel: make(map[string]map[string]probeResult, len(models)),
		total:   len(results),
	}
	for _, m := range models {
		rep.byModel[m] = make(map[string]probeResult)
	}
	for _, res := range results {
		if _, ok := rep.byModel[res.Model]; !ok {
			rep.byModel[res.Model] = make(map[string]probeResult)
		}
		rep.byModel[res.Model][res.Variant] = res
		if !res.Success {
			rep.failed++
		}
	}
	return rep
}

func renderReport(w io.Writer, rep report) {
	if len(rep.models) == 0 {
		fmt.Fprintln(w, "no models to report")
		return
	}

	header := []string{"Model"}
	for _, v := range probeVariants {
		header = append(header, v.Header)
	}
	header = append(header, "Thinking")

	table := tablewriter.NewWriter(w)
	table.SetHeader(header)
	table.SetAutoWrapText(false)
	for _, m := range rep.models {
		row := []string{m}
		thinking := "-"
		for _, v := range probeVariants {
			res, ok := rep.byModel[m][v.Key]
			row = append(row, formatCell(res, ok))
			if ok && res.Thinking {
				thinking = "yes"
			}
		}
		table.Append(append(row, thinking))
	}
	table.Render()

	fmt.Fprintf(w, "\nTotals | Probes: %d | Passed: %d | Failed: %d\n", rep.total, rep.total-rep.failed, rep.failed)

	var failures []probeResult
	for _, byVariant := range rep.byModel {
		for _, res := range byVariant {
			if !res.Success {
				failures = append(failures, res)
			}
		}
	}
	if len(failures) == 0 {
		return
	}
	sort.Slice(failures, func(i, j int) bool {
		if failures[i].Model == failures[j].Model {
			return failures[i].Variant < failures[j].Variant
		}
		return failures[i].Model < failures[j].Model
	})
	fmt.Fprintln(w, "\nFailures:")
	for _, res := range failures {
		fmt.Fprintf(w, "- %s / %s: %s\n", res.Model, res.Variant, shorten(res.Reason, 200))
	}
}

func formatCell(res probeResult, ok bool) string {
	if !ok {
		return "-"
	}
	if res.Success {
		return fmt.Sprintf("PASS %.2fs", res.Duration.Truncate(10*time.Millisecond).Seconds())
	}
	return "FAIL " + shorten(res.Reason, 32)
}

func shorten(s string, limit int) string {
	r := []rune(s)
	if len(r) <= limit {
		return s
	}
	return string(r[:limit-1]) + "…"
}
