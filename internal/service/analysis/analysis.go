// Package analysis runs the single-threaded analytics pipeline:
// validate, classify, estimate capacity, assess risk.
package analysis

import (
	"fmt"
	"time"

	"molding-report/internal/service/capacity"
	"molding-report/internal/service/progress"
	"molding-report/internal/service/risk"
	"molding-report/internal/service/summary"
	"molding-report/internal/storage"
	"molding-report/internal/validate"
)

// Inputs are the four record sets of one run. They are never modified.
type Inputs struct {
	Orders  []storage.PurchaseOrder
	Records []storage.ProductionRecord
	Specs   []storage.MoldSpec
	Items   []storage.MoldItem
}

type Analysis struct {
	summary.Input

	Sources []validate.Summary
	Risk    risk.Report

	assessments map[string]int
}

// Run is deterministic: identical inputs, period and asOf give identical
// results.
func Run(in Inputs, period progress.Period, asOf time.Time, hoursPerDay float64) (*Analysis, error) {
	const op = "service.analysis.Run"

	if err := validate.MoldSpecs(in.Specs); err != nil {
		return nil, fmt.Errorf("%s: %w", op, err)
	}
	if err := validate.MoldItems(in.Items); err != nil {
		return nil, fmt.Errorf("%s: %w", op, err)
	}

	orders, err := progress.Classify(in.Orders, in.Records, period, asOf)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", op, err)
	}

	est := capacity.NewEstimator(in.Specs, in.Items, hoursPerDay).Estimate(orders)
	assessments := risk.AssessAll(orders, est, asOf)

	a := &Analysis{
		Input: summary.Input{
			Period:      period,
			AsOf:        asOf,
			Orders:      orders,
			Records:     in.Records,
			Capacity:    est,
			Assessments: assessments,
		},
		Sources: []validate.Summary{
			{Source: "purchase_orders", Rows: len(in.Orders)},
			{Source: "production_records", Rows: len(in.Records)},
			{Source: "mold_specs", Rows: len(in.Specs)},
			{Source: "mold_items", Rows: len(in.Items)},
		},
		Risk:        risk.BuildReport(assessments),
		assessments: make(map[string]int, len(assessments)),
	}
	for i, as := range assessments {
		a.assessments[as.PONo] = i
	}

	return a, nil
}

// Assessment returns the risk grading of an unfinished order.
func (a *Analysis) Assessment(poNo string) (risk.Assessment, bool) {
	i, ok := a.assessments[poNo]
	if !ok {
		return risk.Assessment{}, false
	}
	return a.Assessments[i], true
}

func (a *Analysis) Finished() []progress.ClassifiedOrder {
	return a.filter(func(o progress.ClassifiedOrder) bool { return o.Finished() })
}

func (a *Analysis) Unfinished() []progress.ClassifiedOrder {
	return a.filter(func(o progress.ClassifiedOrder) bool { return !o.Finished() })
}

func (a *Analysis) filter(keep func(progress.ClassifiedOrder) bool) []progress.ClassifiedOrder {
	var out []progress.ClassifiedOrder
	for _, o := range a.Orders {
		if keep(o) {
			out = append(out, o)
		}
	}
	return out
}

// PeriodRecords are the production records of the analysis window.
func (a *Analysis) PeriodRecords() []storage.ProductionRecord {
	return summary.PeriodRecords(a.Records, a.Period, a.AsOf)
}

// Tables are the dashboard tables for the period level.
func (a *Analysis) Tables() []summary.Table {
	return summary.ForLevel(a.Input)
}
