// Package capacity queues unfinished orders per mold group and estimates
// their lead time.
package capacity

import (
	"cmp"
	"slices"
	"strings"

	"molding-report/internal/service/progress"
	"molding-report/internal/storage"
)

const DefaultHoursPerDay = 24.0

// LeadTime is measured in days. Known is false when the mold group has no
// usable capacity.
type LeadTime struct {
	AvgDays   float64 `json:"avg_days"`
	TotalDays float64 `json:"total_days"`
	Known     bool    `json:"known"`
}

type QueuedOrder struct {
	PONo                string   `json:"po_no"`
	GroupKey            string   `json:"group_key"`
	Remaining           int      `json:"remaining"`
	CumulativeRemaining int      `json:"cumulative_remaining"`
	PositionRatio       float64  `json:"position_ratio"`
	LeadTime            LeadTime `json:"lead_time"`
}

type Group struct {
	Key            string        `json:"key"`
	Molds          []string      `json:"molds"`
	UsableMolds    []string      `json:"usable_molds"`
	AvgCapacity    float64       `json:"avg_capacity"`
	TotalCapacity  float64       `json:"total_capacity"`
	CapacityKnown  bool          `json:"capacity_known"`
	TotalRemaining int           `json:"total_remaining"`
	Orders         []QueuedOrder `json:"orders"`
}

type Result struct {
	Groups []Group
	byPO   map[string]int // PO -> index into Groups
}

// Lookup returns the queue entry and group of an unfinished order.
func (r Result) Lookup(poNo string) (QueuedOrder, Group, bool) {
	gi, ok := r.byPO[poNo]
	if !ok {
		return QueuedOrder{}, Group{}, false
	}
	g := r.Groups[gi]
	for _, q := range g.Orders {
		if q.PONo == poNo {
			return q, g, true
		}
	}
	return QueuedOrder{}, Group{}, false
}

type Estimator struct {
	hoursPerDay float64
	specs       map[string]storage.MoldSpec
	itemMolds   map[string][]string
}

func NewEstimator(specs []storage.MoldSpec, items []storage.MoldItem, hoursPerDay float64) *Estimator {
	if hoursPerDay <= 0 {
		hoursPerDay = DefaultHoursPerDay
	}

	e := &Estimator{
		hoursPerDay: hoursPerDay,
		specs:       make(map[string]storage.MoldSpec, len(specs)),
		itemMolds:   make(map[string][]string),
	}
	for _, s := range specs {
		e.specs[s.MoldNo] = s
	}
	for _, it := range items {
		e.itemMolds[it.ItemCode] = append(e.itemMolds[it.ItemCode], it.MoldNo)
	}
	return e
}

// HourlyCapacity is parts per hour for one mold, 0 when the mold spec is unusable.
func HourlyCapacity(spec storage.MoldSpec) float64 {
	if spec.CycleTimeSec <= 0 || spec.CavityCount <= 0 {
		return 0
	}
	return 3600 / spec.CycleTimeSec * float64(spec.CavityCount)
}

// EligibleMolds is the mold set an unfinished order may run on: the molds
// already used for an order in progress, otherwise the item's mold table.
func (e *Estimator) EligibleMolds(o progress.ClassifiedOrder) []string {
	var molds []string
	if o.Status == progress.StatusInProgress && len(o.MoldsUsed) > 0 {
		molds = slices.Clone(o.MoldsUsed)
	} else {
		molds = slices.Clone(e.itemMolds[o.ItemCode])
	}
	slices.Sort(molds)
	return slices.Compact(molds)
}

// Estimate groups in-progress and not-started orders. Groups are ordered
// by key and each group is a FIFO queue by received date, then PO number.
func (e *Estimator) Estimate(orders []progress.ClassifiedOrder) Result {
	type member struct {
		order progress.ClassifiedOrder
		molds []string
	}

	members := make(map[string][]member)
	for _, o := range orders {
		if o.Finished() {
			continue
		}
		molds := e.EligibleMolds(o)
		key := strings.Join(molds, ",")
		members[key] = append(members[key], member{order: o, molds: molds})
	}

	keys := make([]string, 0, len(members))
	for k := range members {
		keys = append(keys, k)
	}
	slices.Sort(keys)

	res := Result{Groups: make([]Group, 0, len(keys)), byPO: make(map[string]int)}
	for _, key := range keys {
		ms := members[key]
		slices.SortFunc(ms, func(a, b member) int {
			if c := a.order.ReceivedDate.Compare(b.order.ReceivedDate); c != 0 {
				return c
			}
			return cmp.Compare(a.order.PONo, b.order.PONo)
		})

		g := e.newGroup(key, ms[0].molds)
		for _, m := range ms {
			g.TotalRemaining += m.order.Remaining
		}

		cumulative := 0
		for _, m := range ms {
			cumulative += m.order.Remaining
			q := QueuedOrder{
				PONo:                m.order.PONo,
				GroupKey:            key,
				Remaining:           m.order.Remaining,
				CumulativeRemaining: cumulative,
			}
			if g.TotalRemaining > 0 {
				q.PositionRatio = float64(cumulative) / float64(g.TotalRemaining)
			}
			q.LeadTime = e.leadTime(g, cumulative)
			g.Orders = append(g.Orders, q)
			res.byPO[q.PONo] = len(res.Groups)
		}

		res.Groups = append(res.Groups, g)
	}

	return res
}

func (e *Estimator) newGroup(key string, molds []string) Group {
	g := Group{Key: key, Molds: molds}

	var total float64
	for _, mold := range molds {
		spec, ok := e.specs[mold]
		if !ok {
			continue
		}
		c := HourlyCapacity(spec)
		if c <= 0 {
			continue
		}
		g.UsableMolds = append(g.UsableMolds, mold)
		total += c
	}

	if len(g.UsableMolds) > 0 {
		g.CapacityKnown = true
		g.TotalCapacity = total
		g.AvgCapacity = total / float64(len(g.UsableMolds))
	}
	return g
}

func (e *Estimator) leadTime(g Group, cumulative int) LeadTime {
	if !g.CapacityKnown {
		return LeadTime{}
	}
	qty := float64(cumulative)
	return LeadTime{
		AvgDays:   qty / g.AvgCapacity / e.hoursPerDay,
		TotalDays: qty / g.TotalCapacity / e.hoursPerDay,
		Known:     true,
	}
}
