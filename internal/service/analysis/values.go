package analysis

import (
	"math"
	"strings"
	"time"

	"molding-report/internal/service/progress"
	"molding-report/internal/storage"
)

// OrderValues projects an order onto the column names of the export
// schema. Columns that do not apply to the order are nil.
func (a *Analysis) OrderValues(o progress.ClassifiedOrder) map[string]any {
	v := map[string]any{
		"po_no":            o.PONo,
		"item_code":        o.ItemCode,
		"item_name":        o.ItemName,
		"quantity":         o.Quantity,
		"received_date":    day(o.ReceivedDate),
		"eta":              day(o.ETA),
		"produced":         o.Produced,
		"remaining":        o.Remaining,
		"overproduction":   o.Overproduction,
		"status":           string(o.Status),
		"is_backlog":       o.IsBacklog,
		"first_production": optDay(o.FirstProduction),
		"last_production":  optDay(o.LastProduction),
		"molds_used":       strings.Join(o.MoldsUsed, ","),
		"eta_status":       string(o.ETAStatus),
	}

	if q, g, ok := a.Capacity.Lookup(o.PONo); ok {
		v["mold_group"] = g.Key
		v["cumulative_remaining"] = q.CumulativeRemaining
		v["position_ratio"] = round(q.PositionRatio, 4)
		if g.CapacityKnown {
			v["avg_capacity"] = round(g.AvgCapacity, 2)
			v["total_capacity"] = round(g.TotalCapacity, 2)
		}
		if q.LeadTime.Known {
			v["avg_lead_days"] = round(q.LeadTime.AvgDays, 3)
			v["total_lead_days"] = round(q.LeadTime.TotalDays, 3)
		}
	}

	if as, ok := a.Assessment(o.PONo); ok {
		v["remaining_days"] = round(as.RemainingDays, 2)
		v["over_avg_capacity"] = as.OverAvgCapacity
		v["over_total_capacity"] = as.OverTotalCapacity
		v["is_overdue"] = as.Overdue
		v["severity"] = string(as.Severity)
		v["warning"] = nil
		if as.Flagged() {
			v["warning"] = as.Reason
		}
	}

	return v
}

func RecordValues(r storage.ProductionRecord) map[string]any {
	return map[string]any{
		"record_date":     day(r.RecordDate),
		"shift":           r.Shift,
		"machine_no":      r.MachineNo,
		"mold_no":         r.MoldNo,
		"item_code":       r.ItemCode,
		"po_note":         r.PONote,
		"good_quantity":   r.GoodQuantity,
		"defect_quantity": r.DefectQuantity,
	}
}

func day(t time.Time) any {
	if t.IsZero() {
		return nil
	}
	return t.Format(time.DateOnly)
}

func optDay(t *time.Time) any {
	if t == nil {
		return nil
	}
	return day(*t)
}

func round(f float64, places int) float64 {
	p := math.Pow(10, float64(places))
	return math.Round(f*p) / p
}
