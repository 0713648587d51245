// Package risk grades unfinished orders against their remaining time
// window and writes the early-warning report.
package risk

import (
	"fmt"
	"time"

	"molding-report/internal/service/capacity"
	"molding-report/internal/service/progress"
)

type Severity string

const (
	SeverityNormal   Severity = "normal"
	SeverityHigh     Severity = "high"
	SeverityCritical Severity = "critical"
	// SeverityUnknown marks orders whose mold group has no usable capacity.
	SeverityUnknown Severity = "unknown"
)

// Severities in report order.
var Severities = []Severity{SeverityCritical, SeverityHigh, SeverityNormal, SeverityUnknown}

type Assessment struct {
	PONo              string             `json:"po_no"`
	ItemCode          string             `json:"item_code"`
	Status            progress.Status    `json:"status"`
	ETA               time.Time          `json:"eta"`
	GroupKey          string             `json:"group_key"`
	LeadTime          capacity.LeadTime  `json:"lead_time"`
	RemainingDays     float64            `json:"remaining_days"`
	OverAvgCapacity   bool               `json:"over_avg_capacity"`
	OverTotalCapacity bool               `json:"over_total_capacity"`
	CapacityWarning   bool               `json:"capacity_warning"`
	Overdue           bool               `json:"is_overdue"`
	Severity          Severity           `json:"severity"`
	ETAStatus         progress.ETAStatus `json:"eta_status"`
	Reason            string             `json:"reason"`
}

// Flagged reports whether the order belongs in the early-warning list.
func (a Assessment) Flagged() bool {
	return a.Overdue || a.CapacityWarning || a.Severity == SeverityUnknown
}

// RemainingDays is max(0, eta - asOf) in days.
func RemainingDays(eta, asOf time.Time) float64 {
	d := eta.Sub(asOf).Hours() / 24
	if d < 0 {
		return 0
	}
	return d
}

// Assess grades one unfinished order. q must be the order's queue entry.
func Assess(o progress.ClassifiedOrder, q capacity.QueuedOrder, asOf time.Time) Assessment {
	a := Assessment{
		PONo:          o.PONo,
		ItemCode:      o.ItemCode,
		Status:        o.Status,
		ETA:           o.ETA,
		GroupKey:      q.GroupKey,
		LeadTime:      q.LeadTime,
		RemainingDays: RemainingDays(o.ETA, asOf),
		Overdue:       o.ETA.Before(asOf) && !o.Finished(),
	}

	if q.LeadTime.Known {
		a.OverAvgCapacity = q.LeadTime.AvgDays > a.RemainingDays
		a.OverTotalCapacity = q.LeadTime.TotalDays > a.RemainingDays
		a.CapacityWarning = a.OverAvgCapacity || a.OverTotalCapacity

		switch {
		case a.OverTotalCapacity:
			a.Severity = SeverityCritical
		case a.OverAvgCapacity:
			a.Severity = SeverityHigh
		default:
			a.Severity = SeverityNormal
		}
	} else {
		a.Severity = SeverityUnknown
	}

	a.ETAStatus = resolveETA(o, a)
	a.Reason = explain(o, q, a)

	return a
}

// AssessAll grades every unfinished order and fills ETA status on the
// classified slice in place. Finished orders keep their classifier status.
func AssessAll(orders []progress.ClassifiedOrder, est capacity.Result, asOf time.Time) []Assessment {
	var out []Assessment
	for i := range orders {
		o := &orders[i]
		if o.Finished() {
			continue
		}

		q, _, ok := est.Lookup(o.PONo)
		if !ok {
			q = capacity.QueuedOrder{PONo: o.PONo, Remaining: o.Remaining}
		}

		a := Assess(*o, q, asOf)
		o.ETAStatus = a.ETAStatus
		out = append(out, a)
	}
	return out
}

func resolveETA(o progress.ClassifiedOrder, a Assessment) progress.ETAStatus {
	if o.Finished() {
		return o.ETAStatus
	}

	switch {
	case a.Overdue || a.CapacityWarning:
		return progress.ETALate
	case !a.LeadTime.Known:
		return progress.ETAUnknown
	case o.Status == progress.StatusInProgress:
		return progress.ETAOnTime
	case o.Status == progress.StatusNotStarted:
		return progress.ETAExpectedOnTime
	default:
		return progress.ETAUnknown
	}
}

func explain(o progress.ClassifiedOrder, q capacity.QueuedOrder, a Assessment) string {
	group := q.GroupKey
	if group == "" {
		group = "none"
	}
	ahead := q.CumulativeRemaining - q.Remaining

	switch {
	case a.Severity == SeverityUnknown && a.Overdue:
		return fmt.Sprintf("PO %s (%s) is overdue since %s with %d pcs left; mold group [%s] has no usable capacity data",
			o.PONo, o.ItemCode, o.ETA.Format(time.DateOnly), o.Remaining, group)
	case a.Severity == SeverityUnknown:
		return fmt.Sprintf("PO %s (%s): lead time unknown, mold group [%s] has no usable capacity data",
			o.PONo, o.ItemCode, group)
	case a.Overdue:
		return fmt.Sprintf("PO %s (%s) is overdue since %s with %d pcs left; mold group [%s] needs %.2f days with all molds (%d pcs queued ahead)",
			o.PONo, o.ItemCode, o.ETA.Format(time.DateOnly), o.Remaining, group, a.LeadTime.TotalDays, ahead)
	case a.CapacityWarning:
		need := a.LeadTime.AvgDays
		if a.OverTotalCapacity {
			need = a.LeadTime.TotalDays
		}
		return fmt.Sprintf("PO %s (%s): mold group [%s] needs %.2f days (avg mold) / %.2f days (all molds) for %d pcs incl. %d queued ahead, %.2f days left before ETA %s, short by %.2f days",
			o.PONo, o.ItemCode, group, a.LeadTime.AvgDays, a.LeadTime.TotalDays, q.CumulativeRemaining, ahead,
			a.RemainingDays, o.ETA.Format(time.DateOnly), need-a.RemainingDays)
	default:
		return fmt.Sprintf("PO %s (%s): mold group [%s] finishes in %.2f days (avg mold), %.2f days left",
			o.PONo, o.ItemCode, group, a.LeadTime.AvgDays, a.RemainingDays)
	}
}
