// Package summary pre-aggregates analysis results into the tables handed
// to the rendering backend.
package summary

import (
	"slices"
	"time"

	"molding-report/internal/service/capacity"
	"molding-report/internal/service/progress"
	"molding-report/internal/service/risk"
	"molding-report/internal/storage"
)

const (
	TablePOStatus      = "po_status"
	TableMoldLoad      = "mold_load"
	TableMachineOutput = "machine_output"
	TableMonthlyOutput = "monthly_output"
	TableMonthlyPO     = "monthly_po"
	TableItemOutput    = "item_output"
	TableDefectRate    = "defect_rate"
	TableBacklog       = "backlog"
	TableSeverity      = "severity"
)

type Row struct {
	Label  string    `json:"label"`
	Values []float64 `json:"values"`
}

type Table struct {
	Name    string   `json:"name"`
	Title   string   `json:"title"`
	Columns []string `json:"columns"`
	Rows    []Row    `json:"rows"`
	// Paged tables are split into pages by row label.
	Paged bool `json:"paged"`
}

// Labels returns row labels in row order.
func (t Table) Labels() []string {
	out := make([]string, len(t.Rows))
	for i, r := range t.Rows {
		out[i] = r.Label
	}
	return out
}

// Subset keeps the rows whose label is in labels, in table order.
func (t Table) Subset(labels []string) Table {
	keep := make(map[string]bool, len(labels))
	for _, l := range labels {
		keep[l] = true
	}
	out := t
	out.Rows = nil
	for _, r := range t.Rows {
		if keep[r.Label] {
			out.Rows = append(out.Rows, r)
		}
	}
	return out
}

type Input struct {
	Period      progress.Period
	AsOf        time.Time
	Orders      []progress.ClassifiedOrder
	Records     []storage.ProductionRecord
	Capacity    capacity.Result
	Assessments []risk.Assessment
}

// ForLevel returns the dashboard tables of the period level: 2 for a day,
// 3 for a month, 9 for a year.
func ForLevel(in Input) []Table {
	records := PeriodRecords(in.Records, in.Period, in.AsOf)

	tables := []Table{POStatus(in.Orders)}
	switch in.Period.Level {
	case progress.LevelDay:
		tables = append(tables, MachineOutput(records))
	case progress.LevelMonth:
		tables = append(tables, MoldLoad(in.Capacity), MachineOutput(records))
	case progress.LevelYear:
		tables = append(tables,
			MoldLoad(in.Capacity),
			MachineOutput(records),
			MonthlyOutput(records),
			MonthlyPO(in.Orders),
			ItemOutput(records),
			DefectRate(records),
			Backlog(in.Orders),
			SeverityCounts(in.Assessments),
		)
	}
	return tables
}

// PeriodRecords keeps the records inside p dated up to asOf.
func PeriodRecords(records []storage.ProductionRecord, p progress.Period, asOf time.Time) []storage.ProductionRecord {
	var out []storage.ProductionRecord
	for _, r := range records {
		if p.Contains(r.RecordDate) && !r.RecordDate.After(asOf) {
			out = append(out, r)
		}
	}
	return out
}

func POStatus(orders []progress.ClassifiedOrder) Table {
	type acc struct{ count, qty float64 }
	var finished, inProgress, notStarted, backlog acc
	for _, o := range orders {
		switch o.Status {
		case progress.StatusFinished:
			finished.count++
			finished.qty += float64(o.Produced)
		case progress.StatusInProgress:
			inProgress.count++
			inProgress.qty += float64(o.Remaining)
		case progress.StatusNotStarted:
			notStarted.count++
			notStarted.qty += float64(o.Remaining)
		}
		if o.IsBacklog {
			backlog.count++
			backlog.qty += float64(o.Remaining)
		}
	}
	return Table{
		Name:    TablePOStatus,
		Title:   "PO status",
		Columns: []string{"orders", "quantity"},
		Rows: []Row{
			{Label: string(progress.StatusFinished), Values: []float64{finished.count, finished.qty}},
			{Label: string(progress.StatusInProgress), Values: []float64{inProgress.count, inProgress.qty}},
			{Label: string(progress.StatusNotStarted), Values: []float64{notStarted.count, notStarted.qty}},
			{Label: "backlog", Values: []float64{backlog.count, backlog.qty}},
		},
	}
}

// MoldLoad shows, per mold group, the queue size and the days needed to
// clear it.
func MoldLoad(res capacity.Result) Table {
	t := Table{
		Name:    TableMoldLoad,
		Title:   "Mold group load",
		Columns: []string{"remaining", "avg_lead_days", "total_lead_days"},
		Paged:   true,
	}
	for _, g := range res.Groups {
		label := g.Key
		if label == "" {
			label = "unassigned"
		}
		row := Row{Label: label, Values: []float64{float64(g.TotalRemaining), 0, 0}}
		if n := len(g.Orders); n > 0 && g.CapacityKnown {
			last := g.Orders[n-1].LeadTime
			row.Values[1] = last.AvgDays
			row.Values[2] = last.TotalDays
		}
		t.Rows = append(t.Rows, row)
	}
	return t
}

func MachineOutput(records []storage.ProductionRecord) Table {
	return outputBy(TableMachineOutput, "Machine output", records, func(r storage.ProductionRecord) string { return r.MachineNo })
}

func ItemOutput(records []storage.ProductionRecord) Table {
	return outputBy(TableItemOutput, "Item output", records, func(r storage.ProductionRecord) string { return r.ItemCode })
}

func MonthlyOutput(records []storage.ProductionRecord) Table {
	t := outputBy(TableMonthlyOutput, "Monthly output", records, func(r storage.ProductionRecord) string { return r.RecordDate.Format("2006-01") })
	t.Paged = false
	return t
}

func outputBy(name, title string, records []storage.ProductionRecord, key func(storage.ProductionRecord) string) Table {
	sums := make(map[string][2]float64)
	for _, r := range records {
		k := key(r)
		if k == "" {
			k = "unknown"
		}
		v := sums[k]
		v[0] += float64(r.GoodQuantity)
		v[1] += float64(r.DefectQuantity)
		sums[k] = v
	}

	t := Table{Name: name, Title: title, Columns: []string{"good", "defect"}, Paged: true}
	for _, k := range sortedKeys(sums) {
		v := sums[k]
		t.Rows = append(t.Rows, Row{Label: k, Values: []float64{v[0], v[1]}})
	}
	return t
}

func DefectRate(records []storage.ProductionRecord) Table {
	out := ItemOutput(records)
	t := Table{Name: TableDefectRate, Title: "Defect rate by item", Columns: []string{"defect_pct"}, Paged: true}
	for _, r := range out.Rows {
		total := r.Values[0] + r.Values[1]
		pct := 0.0
		if total > 0 {
			pct = r.Values[1] / total * 100
		}
		t.Rows = append(t.Rows, Row{Label: r.Label, Values: []float64{pct}})
	}
	return t
}

func MonthlyPO(orders []progress.ClassifiedOrder) Table {
	counts := make(map[string][2]float64)
	for _, o := range orders {
		k := o.ETA.Format("2006-01")
		v := counts[k]
		v[0]++
		if o.Finished() {
			v[1]++
		}
		counts[k] = v
	}

	t := Table{Name: TableMonthlyPO, Title: "Orders by ETA month", Columns: []string{"orders", "finished"}}
	for _, k := range sortedKeys(counts) {
		t.Rows = append(t.Rows, Row{Label: k, Values: []float64{counts[k][0], counts[k][1]}})
	}
	return t
}

func Backlog(orders []progress.ClassifiedOrder) Table {
	counts := make(map[string][2]float64)
	for _, o := range orders {
		if !o.IsBacklog {
			continue
		}
		k := o.ETA.Format("2006-01")
		v := counts[k]
		v[0]++
		v[1] += float64(o.Remaining)
		counts[k] = v
	}

	t := Table{Name: TableBacklog, Title: "Backlog by ETA month", Columns: []string{"orders", "remaining"}}
	for _, k := range sortedKeys(counts) {
		t.Rows = append(t.Rows, Row{Label: k, Values: []float64{counts[k][0], counts[k][1]}})
	}
	return t
}

func SeverityCounts(assessments []risk.Assessment) Table {
	r := risk.BuildReport(assessments)
	t := Table{Name: TableSeverity, Title: "Risk severity", Columns: []string{"orders"}}
	for _, s := range risk.Severities {
		t.Rows = append(t.Rows, Row{Label: string(s), Values: []float64{float64(r.Counts[s])}})
	}
	return t
}

func sortedKeys[V any](m map[string]V) []string {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	slices.Sort(keys)
	return keys
}
