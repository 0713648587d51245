package report

import (
	"errors"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"molding-report/internal/service/analysis"
	"molding-report/internal/service/progress"
	"molding-report/internal/storage"
)

func testAnalysis(t *testing.T) *analysis.Analysis {
	t.Helper()

	d := func(m time.Month, day int) time.Time { return time.Date(2026, m, day, 0, 0, 0, 0, time.UTC) }
	in := analysis.Inputs{
		Orders: []storage.PurchaseOrder{
			{PONo: "PO-1", ItemCode: "IT-1", Quantity: 1000, ReceivedDate: d(9, 1), ETA: d(10, 5)},
			{PONo: "PO-2", ItemCode: "IT-1", Quantity: 90000, ReceivedDate: d(9, 10), ETA: d(10, 11)},
			{PONo: "PO-3", ItemCode: "IT-1", Quantity: 10, ReceivedDate: d(8, 10), ETA: d(9, 11)},
		},
		Records: []storage.ProductionRecord{
			{RecordDate: d(10, 2), MachineNo: "MC-01", MoldNo: "MD-01", ItemCode: "IT-1", PONote: "PO-1", GoodQuantity: 1000, DefectQuantity: 7},
		},
		Specs: []storage.MoldSpec{{MoldNo: "MD-01", CavityCount: 8, CycleTimeSec: 36}},
		Items: []storage.MoldItem{{ItemCode: "IT-1", MoldNo: "MD-01"}},
	}

	period, err := progress.ParsePeriod("2026-10")
	require.NoError(t, err)
	a, err := analysis.Run(in, period, d(10, 10), 24)
	require.NoError(t, err)
	return a
}

func TestGenerate(t *testing.T) {
	data, err := Generate(testAnalysis(t))
	require.NoError(t, err)
	text := string(data)

	assert.True(t, strings.HasPrefix(text, "PRODUCTION REPORT 2026-10 (month)"))
	assert.Contains(t, text, "purchase_orders")
	assert.Contains(t, text, "finished        1 (on time 1, late 0)")
	assert.Contains(t, text, "backlog         1")
	assert.Contains(t, text, "2026-10-02")
	assert.Contains(t, text, "backlog")
	assert.Contains(t, text, "EARLY WARNING")
	assert.Contains(t, text, "PO PO-2")

	assert.Less(t, strings.Index(text, "BREAKDOWN"), strings.Index(text, "EARLY WARNING"))
}

type failingWriter struct{ after int }

func (f *failingWriter) Write(p []byte) (int, error) {
	if f.after <= 0 {
		return 0, errors.New("disk full")
	}
	f.after--
	return len(p), nil
}

func TestWrite_PropagatesWriterError(t *testing.T) {
	err := Write(&failingWriter{after: 3}, testAnalysis(t))
	assert.EqualError(t, err, "disk full")
}

func TestGenerate_NilAnalysis(t *testing.T) {
	_, err := Generate(nil)
	assert.Error(t, err)
}
