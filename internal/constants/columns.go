package constants

import "fmt"

// ColumnSet is an ordered list of column names.
type ColumnSet []string

// Contains reports whether name is in the set.
func (c ColumnSet) Contains(name string) bool {
	for _, col := range c {
		if col == name {
			return true
		}
	}
	return false
}

// Missing returns the columns of c not present in have, in c's order.
func (c ColumnSet) Missing(have []string) []string {
	seen := make(map[string]bool, len(have))
	for _, h := range have {
		seen[h] = true
	}

	var missing []string
	for _, col := range c {
		if !seen[col] {
			missing = append(missing, col)
		}
	}
	return missing
}

// Source columns.
var (
	PurchaseOrderColumns = ColumnSet{
		"po_no", "item_code", "item_name", "quantity", "received_date", "eta",
	}

	ProductionRecordColumns = ColumnSet{
		"record_date", "shift", "machine_no", "mold_no", "item_code", "po_note",
		"good_quantity", "defect_quantity",
	}

	MoldSpecColumns = ColumnSet{
		"mold_no", "cavity_count", "cycle_time_sec",
	}

	MoldItemColumns = ColumnSet{
		"item_code", "mold_no",
	}
)

// Derived columns written by the classifier, estimator and risk stages.
var (
	ClassifiedColumns = ColumnSet{
		"produced", "remaining", "overproduction", "status", "is_backlog",
		"first_production", "last_production", "molds_used", "eta_status",
	}

	CapacityColumns = ColumnSet{
		"mold_group", "cumulative_remaining", "position_ratio",
		"avg_capacity", "total_capacity", "avg_lead_days", "total_lead_days",
	}

	RiskColumns = ColumnSet{
		"remaining_days", "over_avg_capacity", "over_total_capacity",
		"is_overdue", "severity", "warning",
	}
)

// Export sheet views. Every column must exist in the schema above.
var (
	FinishedSheet = ColumnSet{
		"po_no", "item_code", "item_name", "quantity", "produced", "overproduction",
		"received_date", "eta", "last_production", "eta_status",
	}

	UnfinishedSheet = ColumnSet{
		"po_no", "item_code", "item_name", "quantity", "produced", "remaining",
		"status", "is_backlog", "received_date", "eta", "mold_group",
		"cumulative_remaining", "avg_lead_days", "total_lead_days",
		"remaining_days", "severity", "eta_status",
	}

	ShortSheet = ColumnSet{
		"po_no", "item_code", "quantity", "remaining", "status", "eta", "severity",
	}

	ProgressSheet = ColumnSet{
		"po_no", "item_code", "item_name", "quantity", "produced", "remaining",
		"overproduction", "status", "is_backlog", "received_date", "eta",
		"first_production", "last_production", "molds_used", "mold_group",
		"position_ratio", "avg_capacity", "total_capacity", "avg_lead_days",
		"total_lead_days", "remaining_days", "over_avg_capacity",
		"over_total_capacity", "is_overdue", "severity", "eta_status", "warning",
	}

	RecordSheet = ProductionRecordColumns
)

// Schema is every column known to the report model.
var Schema = union(PurchaseOrderColumns, ProductionRecordColumns, MoldSpecColumns,
	MoldItemColumns, ClassifiedColumns, CapacityColumns, RiskColumns)

func union(sets ...ColumnSet) ColumnSet {
	seen := make(map[string]bool)
	var out ColumnSet
	for _, set := range sets {
		for _, col := range set {
			if !seen[col] {
				seen[col] = true
				out = append(out, col)
			}
		}
	}
	return out
}

func init() {
	views := map[string]ColumnSet{
		"finished":   FinishedSheet,
		"unfinished": UnfinishedSheet,
		"short":      ShortSheet,
		"progress":   ProgressSheet,
		"records":    RecordSheet,
	}
	for name, view := range views {
		if missing := view.Missing(Schema); len(missing) > 0 {
			panic(fmt.Sprintf("constants: sheet %q uses unknown columns %v", name, missing))
		}
	}
}
