// Package report writes the plain-text run report.
package report

import (
	"bytes"
	"fmt"
	"io"
	"slices"
	"text/tabwriter"
	"time"

	"molding-report/internal/service/analysis"
	"molding-report/internal/service/progress"
)

type bucket struct {
	due, finished, unfinished int
	good, defects             int
}

// Generate renders the report into memory so a failure never leaves a
// half-written artifact.
func Generate(a *analysis.Analysis) ([]byte, error) {
	const op = "service.report.Generate"

	var buf bytes.Buffer
	if err := Write(&buf, a); err != nil {
		return nil, fmt.Errorf("%s: %w", op, err)
	}
	return buf.Bytes(), nil
}

func Write(w io.Writer, a *analysis.Analysis) error {
	if a == nil {
		return fmt.Errorf("no analysis")
	}

	ew := &errWriter{w: w}

	ew.printf("PRODUCTION REPORT %s (%s)\n", a.Period.ID(), a.Period.Level)
	ew.printf("As of %s\n\n", a.AsOf.Format(time.DateTime))

	ew.printf("VALIDATION\n")
	for _, s := range a.Sources {
		ew.printf("  %-20s %6d rows  ok\n", s.Source, s.Rows)
	}
	ew.printf("\n")

	writeSummary(ew, a)
	writeBreakdown(ew, a)

	if ew.err != nil {
		return ew.err
	}
	return a.Risk.WriteText(w)
}

func writeSummary(ew *errWriter, a *analysis.Analysis) {
	var finished, onTime, late, inProgress, notStarted, backlog, remaining int
	for _, o := range a.Orders {
		switch o.Status {
		case progress.StatusFinished:
			finished++
			if o.ETAStatus == progress.ETAOnTime {
				onTime++
			} else {
				late++
			}
		case progress.StatusInProgress:
			inProgress++
		case progress.StatusNotStarted:
			notStarted++
		}
		if o.IsBacklog {
			backlog++
		}
		remaining += o.Remaining
	}

	unknown := 0
	for _, g := range a.Capacity.Groups {
		if !g.CapacityKnown {
			unknown++
		}
	}

	ew.printf("SUMMARY\n")
	ew.printf("  orders          %d\n", len(a.Orders))
	ew.printf("  finished        %d (on time %d, late %d)\n", finished, onTime, late)
	ew.printf("  in progress     %d\n", inProgress)
	ew.printf("  not started     %d\n", notStarted)
	ew.printf("  backlog         %d\n", backlog)
	ew.printf("  remaining pcs   %d\n", remaining)
	ew.printf("  mold groups     %d (%d without capacity data)\n\n", len(a.Capacity.Groups), unknown)
}

func writeBreakdown(ew *errWriter, a *analysis.Analysis) {
	buckets := make(map[string]*bucket)
	get := func(k string) *bucket {
		b, ok := buckets[k]
		if !ok {
			b = &bucket{}
			buckets[k] = b
		}
		return b
	}

	for _, o := range a.Orders {
		key := "backlog"
		if !o.IsBacklog {
			key = a.Period.Bucket(o.ETA)
		}
		b := get(key)
		b.due++
		if o.Finished() {
			b.finished++
		} else {
			b.unfinished++
		}
	}
	for _, r := range a.PeriodRecords() {
		b := get(a.Period.Bucket(r.RecordDate))
		b.good += r.GoodQuantity
		b.defects += r.DefectQuantity
	}

	keys := make([]string, 0, len(buckets))
	for k := range buckets {
		keys = append(keys, k)
	}
	// "backlog" sorts after every date key.
	slices.Sort(keys)

	ew.printf("BREAKDOWN\n")
	tw := tabwriter.NewWriter(ew, 0, 0, 2, ' ', tabwriter.AlignRight)
	fmt.Fprintln(tw, "period\tdue\tfinished\topen\tgood\tdefects\t")
	for _, k := range keys {
		b := buckets[k]
		fmt.Fprintf(tw, "%s\t%d\t%d\t%d\t%d\t%d\t\n", k, b.due, b.finished, b.unfinished, b.good, b.defects)
	}
	if err := tw.Flush(); err != nil && ew.err == nil {
		ew.err = err
	}
	ew.printf("\n")
}

// errWriter keeps the first write error and drops later writes.
type errWriter struct {
	w   io.Writer
	err error
}

func (e *errWriter) Write(p []byte) (int, error) {
	if e.err != nil {
		return 0, e.err
	}
	n, err := e.w.Write(p)
	e.err = err
	return n, err
}

func (e *errWriter) printf(format string, args ...any) {
	fmt.Fprintf(e, format, args...)
}
