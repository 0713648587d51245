package service

import (
	"context"
	"errors"
	"fmt"
	"image"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"

	"molding-report/internal/notify"
	"molding-report/internal/output"
	"molding-report/internal/service/render"
	"molding-report/internal/service/summary"
	"molding-report/internal/storage"
	"molding-report/internal/validate"
)

type MockReportStorage struct {
	mock.Mock
}

func (m *MockReportStorage) GetPurchaseOrders(ctx context.Context) ([]storage.PurchaseOrder, error) {
	args := m.Called(ctx)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	orders, ok := args.Get(0).([]storage.PurchaseOrder)
	if !ok {
		return nil, fmt.Errorf("expected []storage.PurchaseOrder, got %T", args.Get(0))
	}
	return orders, args.Error(1)
}

func (m *MockReportStorage) GetProductionRecords(ctx context.Context) ([]storage.ProductionRecord, error) {
	args := m.Called(ctx)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	records, ok := args.Get(0).([]storage.ProductionRecord)
	if !ok {
		return nil, fmt.Errorf("expected []storage.ProductionRecord, got %T", args.Get(0))
	}
	return records, args.Error(1)
}

func (m *MockReportStorage) GetMoldSpecs(ctx context.Context) ([]storage.MoldSpec, error) {
	args := m.Called(ctx)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	specs, ok := args.Get(0).([]storage.MoldSpec)
	if !ok {
		return nil, fmt.Errorf("expected []storage.MoldSpec, got %T", args.Get(0))
	}
	return specs, args.Error(1)
}

func (m *MockReportStorage) GetMoldItems(ctx context.Context) ([]storage.MoldItem, error) {
	args := m.Called(ctx)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	items, ok := args.Get(0).([]storage.MoldItem)
	if !ok {
		return nil, fmt.Errorf("expected []storage.MoldItem, got %T", args.Get(0))
	}
	return items, args.Error(1)
}

var (
	asOf  = time.Date(2026, 10, 10, 0, 0, 0, 0, time.UTC)
	runAt = time.Date(2026, 10, 10, 7, 30, 0, 0, time.UTC)
)

func d(m time.Month, day int) time.Time {
	return time.Date(2026, m, day, 0, 0, 0, 0, time.UTC)
}

func fixtureOrders() []storage.PurchaseOrder {
	return []storage.PurchaseOrder{
		{PONo: "PO-1", ItemCode: "IT-1", ItemName: "Cap", Quantity: 1000, ReceivedDate: d(9, 1), ETA: d(10, 5)},
		{PONo: "PO-2", ItemCode: "IT-1", ItemName: "Cap", Quantity: 4000, ReceivedDate: d(9, 10), ETA: d(10, 20)},
		{PONo: "PO-3", ItemCode: "IT-2", ItemName: "Cup", Quantity: 100000, ReceivedDate: d(9, 15), ETA: d(10, 12)},
	}
}

func fixtureRecords() []storage.ProductionRecord {
	return []storage.ProductionRecord{
		{RecordDate: d(10, 2), Shift: "1", MachineNo: "MC-01", MoldNo: "MD-01", ItemCode: "IT-1", PONote: "PO-1", GoodQuantity: 1000},
		{RecordDate: d(10, 3), Shift: "1", MachineNo: "MC-02", MoldNo: "MD-02", ItemCode: "IT-2", PONote: "PO-3", GoodQuantity: 1000},
	}
}

func fixtureSpecs() []storage.MoldSpec {
	return []storage.MoldSpec{
		{MoldNo: "MD-01", CavityCount: 8, CycleTimeSec: 36},
		{MoldNo: "MD-02", CavityCount: 4, CycleTimeSec: 36},
	}
}

func fixtureItems() []storage.MoldItem {
	return []storage.MoldItem{
		{ItemCode: "IT-1", MoldNo: "MD-01"},
		{ItemCode: "IT-2", MoldNo: "MD-02"},
	}
}

func newStorage() *MockReportStorage {
	m := new(MockReportStorage)
	m.On("GetPurchaseOrders", mock.Anything).Return(fixtureOrders(), nil)
	m.On("GetProductionRecords", mock.Anything).Return(fixtureRecords(), nil)
	m.On("GetMoldSpecs", mock.Anything).Return(fixtureSpecs(), nil)
	m.On("GetMoldItems", mock.Anything).Return(fixtureItems(), nil)
	return m
}

func discard() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func newService(st ReportStorage, r render.Renderer, out Publisher, opts ...Option) *ReportService {
	opts = append([]Option{
		WithClock(func() time.Time { return runAt }),
		WithResources(render.Resources{CPUs: 4, MemoryGB: 16}),
	}, opts...)
	return NewReportService(st, r, out, discard(), opts...)
}

// failingRenderer fails every task named in fail.
type failingRenderer struct {
	fail map[string]bool
}

func (f failingRenderer) Render(_ context.Context, t summary.Table, spec render.Spec) ([]image.Image, error) {
	if f.fail[spec.Name] {
		return nil, errors.New("backend crashed")
	}
	return []image.Image{image.NewRGBA(image.Rect(0, 0, 2, 2))}, nil
}

type failingPublisher struct{}

func (failingPublisher) Publish(context.Context, string, time.Time, []output.Artifact, ...string) (output.Manifest, error) {
	return output.Manifest{}, &output.Error{Stage: output.StageArchive, Failures: []output.PathError{{Path: "current/x", Err: os.ErrPermission}}}
}

func TestAnalyze_LoadsAllSources(t *testing.T) {
	st := newStorage()
	s := newService(st, render.NewBarRenderer(), failingPublisher{})

	a, err := s.Analyze(context.Background(), Request{Period: "2026-10", AsOf: asOf})
	require.NoError(t, err)

	assert.Len(t, a.Orders, 3)
	assert.Equal(t, asOf, a.AsOf)
	st.AssertExpectations(t)
}

func TestAnalyze_DefaultsAsOfToNow(t *testing.T) {
	s := newService(newStorage(), render.NewBarRenderer(), failingPublisher{})

	a, err := s.Analyze(context.Background(), Request{Period: "2026-10"})
	require.NoError(t, err)
	assert.Equal(t, runAt, a.AsOf)
}

func TestAnalyze_MoldStorageOverride(t *testing.T) {
	st := new(MockReportStorage)
	st.On("GetPurchaseOrders", mock.Anything).Return(fixtureOrders(), nil)
	st.On("GetProductionRecords", mock.Anything).Return(fixtureRecords(), nil)

	molds := new(MockReportStorage)
	molds.On("GetMoldSpecs", mock.Anything).Return(fixtureSpecs(), nil)
	molds.On("GetMoldItems", mock.Anything).Return(fixtureItems(), nil)

	s := newService(st, render.NewBarRenderer(), failingPublisher{}, WithMoldStorage(molds))
	_, err := s.Analyze(context.Background(), Request{Period: "2026-10", AsOf: asOf})
	require.NoError(t, err)

	st.AssertExpectations(t)
	molds.AssertExpectations(t)
	st.AssertNotCalled(t, "GetMoldSpecs", mock.Anything)
}

func TestAnalyze_StorageError(t *testing.T) {
	st := new(MockReportStorage)
	st.On("GetPurchaseOrders", mock.Anything).Return(nil, errors.New("connection refused"))
	st.On("GetProductionRecords", mock.Anything).Return(fixtureRecords(), nil).Maybe()
	st.On("GetMoldSpecs", mock.Anything).Return(fixtureSpecs(), nil).Maybe()
	st.On("GetMoldItems", mock.Anything).Return(fixtureItems(), nil).Maybe()

	s := newService(st, render.NewBarRenderer(), failingPublisher{})
	_, err := s.Analyze(context.Background(), Request{Period: "2026-10", AsOf: asOf})

	require.Error(t, err)
	assert.Contains(t, err.Error(), "purchase orders: connection refused")
}

func TestAnalyze_InvalidPeriod(t *testing.T) {
	s := newService(new(MockReportStorage), render.NewBarRenderer(), failingPublisher{})
	_, err := s.Analyze(context.Background(), Request{Period: "October"})
	assert.Error(t, err)
}

func TestAnalyze_Idempotent(t *testing.T) {
	s := newService(newStorage(), render.NewBarRenderer(), failingPublisher{})
	req := Request{Period: "2026-10", AsOf: asOf}

	first, err := s.Analyze(context.Background(), req)
	require.NoError(t, err)
	second, err := s.Analyze(context.Background(), req)
	require.NoError(t, err)

	assert.Equal(t, first.Orders, second.Orders)
	assert.Equal(t, first.Capacity, second.Capacity)
	assert.Equal(t, first.Assessments, second.Assessments)
}

func TestRun_PublishesBundle(t *testing.T) {
	root := t.TempDir()
	out := output.New(root, discard())
	s := newService(newStorage(), render.NewBarRenderer(), out)

	res, err := s.Run(context.Background(), Request{Period: "2026-10", AsOf: asOf})
	require.NoError(t, err)

	assert.False(t, res.Partial)
	assert.Equal(t, render.ModeParallel, res.Render.Mode)
	assert.Equal(t, 3, res.Render.Succeeded)

	current, err := out.Current()
	require.NoError(t, err)
	assert.Equal(t, []string{
		"20261010_073000_chart_machine_output_2026-10.png",
		"20261010_073000_chart_mold_load_2026-10.png",
		"20261010_073000_chart_po_status_2026-10.png",
		"20261010_073000_progress_2026-10.xlsx",
		"20261010_073000_report_2026-10.txt",
	}, current)

	assert.Equal(t, res.RunID, res.Log.RunID)
	assert.Empty(t, res.Log.Warnings())
	assert.False(t, res.Log.Finished.IsZero())
}

func TestRun_SecondRunArchivesFirst(t *testing.T) {
	root := t.TempDir()
	out := output.New(root, discard())
	s := newService(newStorage(), render.NewBarRenderer(), out)

	_, err := s.Run(context.Background(), Request{Period: "2026-10", AsOf: asOf})
	require.NoError(t, err)
	res, err := s.Run(context.Background(), Request{Period: "2026-10", AsOf: asOf, Sequential: true})
	require.NoError(t, err)

	assert.Equal(t, render.ModeSequential, res.Render.Mode)
	assert.Len(t, res.Manifest.Archived, 5)

	entries, err := os.ReadDir(filepath.Join(root, output.ArchiveDir))
	require.NoError(t, err)
	assert.Len(t, entries, 5)
}

func TestRun_RenderFailureIsPartial(t *testing.T) {
	root := t.TempDir()
	out := output.New(root, discard())
	s := newService(newStorage(), failingRenderer{fail: map[string]bool{"mold_load": true}}, out)

	res, err := s.Run(context.Background(), Request{Period: "2026-10", AsOf: asOf})
	require.NoError(t, err)

	assert.True(t, res.Partial)
	assert.Equal(t, []string{"mold_load"}, res.RenderFailures)
	assert.Equal(t, render.ModeFallback, res.Render.Mode)
	assert.Len(t, res.Manifest.Current, 4)
	require.Len(t, res.Log.Warnings(), 1)
	assert.Equal(t, "render", res.Log.Warnings()[0].Stage)

	log, err := os.ReadFile(filepath.Join(root, output.ChangeLog))
	require.NoError(t, err)
	assert.Contains(t, string(log), "note: render mold_load failed: ")
}

func TestRun_ValidationErrorPublishesNothing(t *testing.T) {
	orders := fixtureOrders()
	orders[1].Quantity = 0

	st := new(MockReportStorage)
	st.On("GetPurchaseOrders", mock.Anything).Return(orders, nil)
	st.On("GetProductionRecords", mock.Anything).Return(fixtureRecords(), nil)
	st.On("GetMoldSpecs", mock.Anything).Return(fixtureSpecs(), nil)
	st.On("GetMoldItems", mock.Anything).Return(fixtureItems(), nil)

	root := t.TempDir()
	s := newService(st, render.NewBarRenderer(), output.New(root, discard()))

	res, err := s.Run(context.Background(), Request{Period: "2026-10", AsOf: asOf})
	require.Error(t, err)
	assert.True(t, validate.IsValidation(err))
	assert.Nil(t, res.Analysis)

	_, statErr := os.Stat(filepath.Join(root, output.CurrentDir))
	assert.True(t, os.IsNotExist(statErr))
}

func TestRun_PublishFailureIsFatal(t *testing.T) {
	s := newService(newStorage(), render.NewBarRenderer(), failingPublisher{})

	res, err := s.Run(context.Background(), Request{Period: "2026-10", AsOf: asOf})
	require.Error(t, err)

	var oe *output.Error
	require.True(t, errors.As(err, &oe))
	assert.Equal(t, output.StageArchive, oe.Stage)
	assert.NotEmpty(t, res.Log.Entries)
	assert.True(t, strings.Contains(res.Log.Entries[len(res.Log.Entries)-1].Message, "archive"))
}

type MockNotifier struct {
	mock.Mock
}

func (m *MockNotifier) Notify(ctx context.Context, e notify.RunEvent) error {
	args := m.Called(ctx, e)
	return args.Error(0)
}

func TestRun_NotifiesOnSuccess(t *testing.T) {
	n := new(MockNotifier)
	n.On("Notify", mock.Anything, mock.Anything).Return(nil)

	out := output.New(t.TempDir(), discard())
	s := newService(newStorage(), render.NewBarRenderer(), out, WithNotifier(n))

	res, err := s.Run(context.Background(), Request{Period: "2026-10", AsOf: asOf})
	require.NoError(t, err)

	n.AssertNumberOfCalls(t, "Notify", 1)
	ev := n.Calls[0].Arguments.Get(1).(notify.RunEvent)
	assert.Equal(t, res.RunID, ev.RunID)
	assert.Equal(t, "2026-10", ev.Period)
	assert.Equal(t, "ok", ev.Status)
	assert.Equal(t, runAt, ev.At)
	assert.Len(t, ev.Files, 5)
	assert.Empty(t, ev.Error)
	assert.Equal(t, res.Analysis.Risk.Counts["critical"], ev.Severity["critical"])
}

func TestRun_NotifiesFailure(t *testing.T) {
	n := new(MockNotifier)
	n.On("Notify", mock.Anything, mock.Anything).Return(nil)

	s := newService(newStorage(), render.NewBarRenderer(), failingPublisher{}, WithNotifier(n))

	_, err := s.Run(context.Background(), Request{Period: "2026-10", AsOf: asOf})
	require.Error(t, err)

	ev := n.Calls[0].Arguments.Get(1).(notify.RunEvent)
	assert.Equal(t, "failed", ev.Status)
	assert.Contains(t, ev.Error, "archive")
	assert.Empty(t, ev.Files)
}

func TestRun_NotifyErrorIsWarning(t *testing.T) {
	n := new(MockNotifier)
	n.On("Notify", mock.Anything, mock.Anything).Return(errors.New("no brokers"))

	out := output.New(t.TempDir(), discard())
	s := newService(newStorage(), render.NewBarRenderer(), out, WithNotifier(n))

	res, err := s.Run(context.Background(), Request{Period: "2026-10", AsOf: asOf})
	require.NoError(t, err)

	require.Len(t, res.Log.Warnings(), 1)
	assert.Equal(t, "notify", res.Log.Warnings()[0].Stage)
	assert.Len(t, res.Manifest.Current, 5)
}
