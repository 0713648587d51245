// Package validate checks record sets before any analysis runs.
package validate

import (
	"errors"
	"fmt"
	"strings"

	"molding-report/internal/constants"
	"molding-report/internal/storage"
)

// Error collects every problem found in one input source.
type Error struct {
	Source  string
	Missing []string
	Fields  []FieldError
}

type FieldError struct {
	Row    int
	Column string
	Reason string
}

func (e *Error) Error() string {
	var b strings.Builder
	fmt.Fprintf(&b, "validation failed for %s", e.Source)
	if len(e.Missing) > 0 {
		fmt.Fprintf(&b, ": missing columns %s", strings.Join(e.Missing, ", "))
	}
	for i, f := range e.Fields {
		if i == 5 {
			fmt.Fprintf(&b, "; and %d more", len(e.Fields)-i)
			break
		}
		fmt.Fprintf(&b, "; row %d %s: %s", f.Row, f.Column, f.Reason)
	}
	return b.String()
}

func (e *Error) add(row int, column, reason string) {
	e.Fields = append(e.Fields, FieldError{Row: row, Column: column, Reason: reason})
}

func (e *Error) orNil() error {
	if len(e.Missing) == 0 && len(e.Fields) == 0 {
		return nil
	}
	return e
}

// IsValidation reports whether err carries a *Error.
func IsValidation(err error) bool {
	var ve *Error
	return errors.As(err, &ve)
}

// Columns fails when any required column is absent from have.
func Columns(source string, have []string, required constants.ColumnSet) error {
	e := &Error{Source: source, Missing: required.Missing(have)}
	return e.orNil()
}

// Rows are numbered from 1 in the errors below.

func PurchaseOrders(orders []storage.PurchaseOrder) error {
	e := &Error{Source: "purchase_orders"}
	seen := make(map[string]int, len(orders))
	for i, o := range orders {
		row := i + 1
		if strings.TrimSpace(o.PONo) == "" {
			e.add(row, "po_no", "empty")
		} else if first, dup := seen[o.PONo]; dup {
			e.add(row, "po_no", fmt.Sprintf("duplicate of row %d", first))
		} else {
			seen[o.PONo] = row
		}
		if strings.TrimSpace(o.ItemCode) == "" {
			e.add(row, "item_code", "empty")
		}
		if o.Quantity <= 0 {
			e.add(row, "quantity", fmt.Sprintf("must be positive, got %d", o.Quantity))
		}
		if o.ReceivedDate.IsZero() {
			e.add(row, "received_date", "missing")
		}
		if o.ETA.IsZero() {
			e.add(row, "eta", "missing")
		}
	}
	return e.orNil()
}

func ProductionRecords(records []storage.ProductionRecord) error {
	e := &Error{Source: "production_records"}
	for i, r := range records {
		row := i + 1
		if r.RecordDate.IsZero() {
			e.add(row, "record_date", "missing")
		}
		if strings.TrimSpace(r.ItemCode) == "" {
			e.add(row, "item_code", "empty")
		}
		if r.GoodQuantity < 0 {
			e.add(row, "good_quantity", fmt.Sprintf("negative: %d", r.GoodQuantity))
		}
		if r.DefectQuantity < 0 {
			e.add(row, "defect_quantity", fmt.Sprintf("negative: %d", r.DefectQuantity))
		}
	}
	return e.orNil()
}

// MoldSpecs accepts zero cavity or cycle values: such molds have unknown
// capacity downstream, they are not an input error.
func MoldSpecs(specs []storage.MoldSpec) error {
	e := &Error{Source: "mold_specs"}
	for i, s := range specs {
		row := i + 1
		if strings.TrimSpace(s.MoldNo) == "" {
			e.add(row, "mold_no", "empty")
		}
		if s.CavityCount < 0 {
			e.add(row, "cavity_count", fmt.Sprintf("negative: %d", s.CavityCount))
		}
		if s.CycleTimeSec < 0 {
			e.add(row, "cycle_time_sec", fmt.Sprintf("negative: %v", s.CycleTimeSec))
		}
	}
	return e.orNil()
}

func MoldItems(items []storage.MoldItem) error {
	e := &Error{Source: "mold_items"}
	for i, it := range items {
		row := i + 1
		if strings.TrimSpace(it.ItemCode) == "" {
			e.add(row, "item_code", "empty")
		}
		if strings.TrimSpace(it.MoldNo) == "" {
			e.add(row, "mold_no", "empty")
		}
	}
	return e.orNil()
}

// Summary is the per-source outcome shown in the text report.
type Summary struct {
	Source string
	Rows   int
}
