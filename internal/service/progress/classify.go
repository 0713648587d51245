// Package progress merges purchase orders with production records and
// classifies every order of an analysis window.
package progress

import (
	"cmp"
	"fmt"
	"slices"
	"time"

	"molding-report/internal/storage"
	"molding-report/internal/validate"
)

type Status string

const (
	StatusFinished   Status = "finished"
	StatusInProgress Status = "in_progress"
	StatusNotStarted Status = "not_started"
)

type ETAStatus string

const (
	ETAOnTime         ETAStatus = "ontime"
	ETALate           ETAStatus = "late"
	ETAExpectedOnTime ETAStatus = "expected_ontime"
	ETAUnknown        ETAStatus = "unknown"
)

type ClassifiedOrder struct {
	storage.PurchaseOrder

	Produced       int    `json:"produced"`
	Defects        int    `json:"defects"`
	Remaining      int    `json:"remaining"`
	Overproduction int    `json:"overproduction"`
	Status         Status `json:"status"`
	IsBacklog      bool   `json:"is_backlog"`

	FirstProduction *time.Time `json:"first_production"`
	LastProduction  *time.Time `json:"last_production"`

	// MoldsUsed and MachinesUsed are sorted and unique.
	MoldsUsed    []string `json:"molds_used"`
	MachinesUsed []string `json:"machines_used"`

	// ETAStatus is set here for finished orders only; the risk stage resolves the rest.
	ETAStatus ETAStatus `json:"eta_status"`
}

func (o ClassifiedOrder) Finished() bool {
	return o.Status == StatusFinished
}

type aggregate struct {
	good, defects int
	first, last   time.Time
	molds         map[string]bool
	machines      map[string]bool
}

// Classify selects the orders of period (ETA inside the window, plus
// earlier unresolved orders) and classifies them using production recorded
// up to asOf. The result is sorted by PO number.
func Classify(orders []storage.PurchaseOrder, records []storage.ProductionRecord, period Period, asOf time.Time) ([]ClassifiedOrder, error) {
	const op = "service.progress.Classify"

	if err := validate.PurchaseOrders(orders); err != nil {
		return nil, fmt.Errorf("%s: %w", op, err)
	}
	if err := validate.ProductionRecords(records); err != nil {
		return nil, fmt.Errorf("%s: %w", op, err)
	}

	byPO := aggregateRecords(records, asOf)

	result := make([]ClassifiedOrder, 0, len(orders))
	for _, o := range orders {
		if !o.ETA.Before(period.End) {
			continue
		}

		c := classifyOne(o, byPO[o.PONo])

		if o.ETA.Before(period.Start) {
			if c.Finished() {
				continue
			}
			c.IsBacklog = true
		}

		result = append(result, c)
	}

	slices.SortFunc(result, func(a, b ClassifiedOrder) int { return cmp.Compare(a.PONo, b.PONo) })

	return result, nil
}

func aggregateRecords(records []storage.ProductionRecord, asOf time.Time) map[string]*aggregate {
	byPO := make(map[string]*aggregate)
	for _, r := range records {
		if r.PONote == "" || r.RecordDate.After(asOf) {
			continue
		}

		a, ok := byPO[r.PONote]
		if !ok {
			a = &aggregate{
				first:    r.RecordDate,
				last:     r.RecordDate,
				molds:    make(map[string]bool),
				machines: make(map[string]bool),
			}
			byPO[r.PONote] = a
		}

		a.good += r.GoodQuantity
		a.defects += r.DefectQuantity
		if r.RecordDate.Before(a.first) {
			a.first = r.RecordDate
		}
		if r.RecordDate.After(a.last) {
			a.last = r.RecordDate
		}
		if r.MoldNo != "" {
			a.molds[r.MoldNo] = true
		}
		if r.MachineNo != "" {
			a.machines[r.MachineNo] = true
		}
	}
	return byPO
}

func classifyOne(o storage.PurchaseOrder, a *aggregate) ClassifiedOrder {
	c := ClassifiedOrder{PurchaseOrder: o, ETAStatus: ETAUnknown}

	hasProduction := a != nil && (a.good > 0 || a.defects > 0)
	if a != nil {
		c.Produced = a.good
		c.Defects = a.defects
		first, last := a.first, a.last
		c.FirstProduction = &first
		c.LastProduction = &last
		c.MoldsUsed = sortedKeys(a.molds)
		c.MachinesUsed = sortedKeys(a.machines)
	}

	c.Remaining = max(0, o.Quantity-c.Produced)
	if c.Produced > o.Quantity {
		c.Overproduction = c.Produced - o.Quantity
	}

	switch {
	case c.Remaining == 0:
		c.Status = StatusFinished
		if dayOf(*c.LastProduction).After(dayOf(o.ETA)) {
			c.ETAStatus = ETALate
		} else {
			c.ETAStatus = ETAOnTime
		}
	case hasProduction:
		c.Status = StatusInProgress
	default:
		c.Status = StatusNotStarted
	}

	return c
}

func dayOf(t time.Time) time.Time {
	y, m, d := t.Date()
	return time.Date(y, m, d, 0, 0, 0, 0, t.Location())
}

func sortedKeys(set map[string]bool) []string {
	keys := make([]string, 0, len(set))
	for k := range set {
		keys = append(keys, k)
	}
	slices.Sort(keys)
	return keys
}
