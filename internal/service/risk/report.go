package risk

import (
	"cmp"
	"fmt"
	"io"
	"slices"
)

type Report struct {
	Flagged []Assessment
	Counts  map[Severity]int
	Total   int
}

// BuildReport orders flagged orders by severity then remaining days.
func BuildReport(assessments []Assessment) Report {
	r := Report{Counts: make(map[Severity]int, len(Severities)), Total: len(assessments)}
	for _, a := range assessments {
		r.Counts[a.Severity]++
		if a.Flagged() {
			r.Flagged = append(r.Flagged, a)
		}
	}

	rank := make(map[Severity]int, len(Severities))
	for i, s := range Severities {
		rank[s] = i
	}
	slices.SortStableFunc(r.Flagged, func(a, b Assessment) int {
		if c := cmp.Compare(rank[a.Severity], rank[b.Severity]); c != 0 {
			return c
		}
		if c := cmp.Compare(a.RemainingDays, b.RemainingDays); c != 0 {
			return c
		}
		return cmp.Compare(a.PONo, b.PONo)
	})

	return r
}

func (r Report) WriteText(w io.Writer) error {
	const op = "service.risk.Report.WriteText"

	if _, err := fmt.Fprintf(w, "EARLY WARNING (%d unfinished orders, %d flagged)\n", r.Total, len(r.Flagged)); err != nil {
		return fmt.Errorf("%s: %w", op, err)
	}
	for _, a := range r.Flagged {
		if _, err := fmt.Fprintf(w, "  [%s] %s\n", a.Severity, a.Reason); err != nil {
			return fmt.Errorf("%s: %w", op, err)
		}
	}
	if _, err := fmt.Fprintln(w, "Severity counts:"); err != nil {
		return fmt.Errorf("%s: %w", op, err)
	}
	for _, s := range Severities {
		if _, err := fmt.Fprintf(w, "  %-8s %d\n", s, r.Counts[s]); err != nil {
			return fmt.Errorf("%s: %w", op, err)
		}
	}
	return nil
}
