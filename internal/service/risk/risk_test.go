package risk

import (
	"bytes"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"molding-report/internal/service/capacity"
	"molding-report/internal/service/progress"
	"molding-report/internal/storage"
)

var asOf = time.Date(2026, 10, 10, 0, 0, 0, 0, time.UTC)

func classified(po string, status progress.Status, eta time.Time, remaining int) progress.ClassifiedOrder {
	return progress.ClassifiedOrder{
		PurchaseOrder: storage.PurchaseOrder{PONo: po, ItemCode: "IT", Quantity: 1000, ETA: eta},
		Remaining:     remaining,
		Status:        status,
		ETAStatus:     progress.ETAUnknown,
	}
}

func queued(avg, total float64) capacity.QueuedOrder {
	return capacity.QueuedOrder{
		GroupKey:            "M1,M2",
		Remaining:           500,
		CumulativeRemaining: 800,
		LeadTime:            capacity.LeadTime{AvgDays: avg, TotalDays: total, Known: true},
	}
}

func TestAssess_Severity(t *testing.T) {
	eta := asOf.AddDate(0, 0, 5) // 5 days left

	tests := []struct {
		name     string
		avg      float64
		total    float64
		severity Severity
		overAvg  bool
		overTot  bool
	}{
		{"normal", 3, 1.5, SeverityNormal, false, false},
		{"high", 8, 4, SeverityHigh, true, false},
		{"critical", 12, 6, SeverityCritical, true, true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			a := Assess(classified("P", progress.StatusInProgress, eta, 500), queued(tt.avg, tt.total), asOf)

			assert.Equal(t, tt.severity, a.Severity)
			assert.Equal(t, tt.overAvg, a.OverAvgCapacity)
			assert.Equal(t, tt.overTot, a.OverTotalCapacity)
			assert.Equal(t, tt.overAvg || tt.overTot, a.CapacityWarning)
			assert.InDelta(t, 5.0, a.RemainingDays, 1e-9)
			assert.False(t, a.Overdue)

			// critical only with over-total, normal only with no flag
			if a.Severity == SeverityCritical {
				assert.True(t, a.OverTotalCapacity)
			}
			if a.Severity == SeverityNormal {
				assert.False(t, a.OverAvgCapacity || a.OverTotalCapacity)
			}
		})
	}
}

func TestAssess_ETAStatus(t *testing.T) {
	future := asOf.AddDate(0, 0, 30)
	past := asOf.AddDate(0, 0, -2)

	inProgressOK := Assess(classified("A", progress.StatusInProgress, future, 10), queued(1, 0.5), asOf)
	assert.Equal(t, progress.ETAOnTime, inProgressOK.ETAStatus)

	notStartedOK := Assess(classified("B", progress.StatusNotStarted, future, 10), queued(1, 0.5), asOf)
	assert.Equal(t, progress.ETAExpectedOnTime, notStartedOK.ETAStatus)

	short := Assess(classified("C", progress.StatusNotStarted, future, 10), queued(40, 20), asOf)
	assert.Equal(t, progress.ETALate, short.ETAStatus)

	overdue := Assess(classified("D", progress.StatusInProgress, past, 10), queued(0.1, 0.1), asOf)
	assert.True(t, overdue.Overdue)
	assert.Equal(t, 0.0, overdue.RemainingDays)
	assert.Equal(t, progress.ETALate, overdue.ETAStatus)
	assert.Contains(t, overdue.Reason, "overdue")
}

func TestAssess_UnknownCapacity(t *testing.T) {
	q := capacity.QueuedOrder{PONo: "U", Remaining: 10, CumulativeRemaining: 10}

	a := Assess(classified("U", progress.StatusNotStarted, asOf.AddDate(0, 0, 3), 10), q, asOf)
	assert.Equal(t, SeverityUnknown, a.Severity)
	assert.False(t, a.CapacityWarning)
	assert.Equal(t, progress.ETAUnknown, a.ETAStatus)
	assert.True(t, a.Flagged())
	assert.Contains(t, a.Reason, "no usable capacity")

	late := Assess(classified("U", progress.StatusNotStarted, asOf.AddDate(0, 0, -3), 10), q, asOf)
	assert.Equal(t, progress.ETALate, late.ETAStatus)
}

func TestAssessAll_UpdatesETAStatusAndSkipsFinished(t *testing.T) {
	est := capacity.NewEstimator(
		[]storage.MoldSpec{{MoldNo: "M1", CavityCount: 8, CycleTimeSec: 36}},
		[]storage.MoldItem{{ItemCode: "IT", MoldNo: "M1"}},
		24,
	)
	orders := []progress.ClassifiedOrder{
		classified("F", progress.StatusFinished, asOf, 0),
		classified("N", progress.StatusNotStarted, asOf.AddDate(0, 0, 10), 4000),
	}
	orders[0].ETAStatus = progress.ETAOnTime

	res := est.Estimate(orders)
	got := AssessAll(orders, res, asOf)

	require.Len(t, got, 1)
	assert.Equal(t, "N", got[0].PONo)
	assert.Equal(t, SeverityNormal, got[0].Severity)
	assert.Equal(t, progress.ETAExpectedOnTime, orders[1].ETAStatus)
	assert.Equal(t, progress.ETAOnTime, orders[0].ETAStatus)
}

func TestBuildReport(t *testing.T) {
	eta := asOf.AddDate(0, 0, 5)
	assessments := []Assessment{
		Assess(classified("N1", progress.StatusInProgress, eta, 1), queued(1, 1), asOf),
		Assess(classified("H1", progress.StatusInProgress, eta, 1), queued(8, 4), asOf),
		Assess(classified("C1", progress.StatusInProgress, eta, 1), queued(20, 10), asOf),
		Assess(classified("C2", progress.StatusInProgress, asOf.AddDate(0, 0, 1), 1), queued(20, 10), asOf),
	}

	r := BuildReport(assessments)
	assert.Equal(t, 4, r.Total)
	assert.Equal(t, 2, r.Counts[SeverityCritical])
	assert.Equal(t, 1, r.Counts[SeverityHigh])
	assert.Equal(t, 1, r.Counts[SeverityNormal])

	require.Len(t, r.Flagged, 3)
	assert.Equal(t, "C2", r.Flagged[0].PONo) // fewer days left first
	assert.Equal(t, "C1", r.Flagged[1].PONo)
	assert.Equal(t, "H1", r.Flagged[2].PONo)

	var buf bytes.Buffer
	require.NoError(t, r.WriteText(&buf))
	assert.Contains(t, buf.String(), "4 unfinished orders, 3 flagged")
	assert.Contains(t, buf.String(), "[critical] PO C2")
	assert.Contains(t, buf.String(), "mold group [M1,M2]")
}

type failingWriter struct{}

func (failingWriter) Write([]byte) (int, error) { return 0, errors.New("disk full") }

func TestReportWriteText_Error(t *testing.T) {
	err := BuildReport(nil).WriteText(failingWriter{})
	assert.ErrorContains(t, err, "disk full")
}
