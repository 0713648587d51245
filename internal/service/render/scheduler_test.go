package render

import (
	"context"
	"errors"
	"fmt"
	"image"
	"io"
	"log/slog"
	"sync"
	"sync/atomic"
	"testing"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"molding-report/internal/metrics"
	"molding-report/internal/service/summary"
)

func discardLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

// fakeRenderer returns a 1x1 image per call and fails according to failFor.
type fakeRenderer struct {
	mu      sync.Mutex
	calls   map[string]int
	specs   []Spec
	failFor func(name string, call int) error
	panicOn string
}

func newFakeRenderer() *fakeRenderer {
	return &fakeRenderer{calls: map[string]int{}}
}

func (f *fakeRenderer) Render(_ context.Context, table summary.Table, spec Spec) ([]image.Image, error) {
	f.mu.Lock()
	f.calls[spec.Name]++
	call := f.calls[spec.Name]
	f.specs = append(f.specs, spec)
	f.mu.Unlock()

	if spec.Name == f.panicOn {
		panic("backend exploded")
	}
	if f.failFor != nil {
		if err := f.failFor(spec.Name, call); err != nil {
			return nil, err
		}
	}
	return []image.Image{image.NewRGBA(image.Rect(0, 0, 1, 1))}, nil
}

// flakyPrepRenderer fails the first Prepare call.
type flakyPrepRenderer struct {
	*fakeRenderer
	prepared atomic.Int32
}

func (f *flakyPrepRenderer) Prepare(context.Context) error {
	if f.prepared.Add(1) == 1 {
		return errors.New("font cache unavailable")
	}
	return nil
}

func tasks(names ...string) []Task {
	out := make([]Task, len(names))
	for i, n := range names {
		out[i] = Task{Name: n, Table: summary.Table{Name: n, Columns: []string{"v"}, Rows: []summary.Row{{Label: "a", Values: []float64{1}}}}}
	}
	return out
}

func parallelScheduler(r Renderer, opts ...Option) *Scheduler {
	opts = append([]Option{WithResources(Resources{CPUs: 8, MemoryGB: 16})}, opts...)
	return NewScheduler(r, discardLogger(), opts...)
}

func TestWorkerCount(t *testing.T) {
	tests := []struct {
		cpus     int
		mem      float64
		tasks    int
		override int
		want     int
	}{
		{1, 32, 9, 0, 1},
		{2, 8, 9, 0, 2},
		{2, 7.9, 9, 0, 1},
		{4, 3, 9, 0, 2},
		{3, 3, 9, 0, 1},
		{4, 6, 3, 0, 2}, // monthly report on a 4 CPU / 6 GB host
		{16, 6, 9, 0, 3},
		{8, 16, 9, 0, 6},
		{16, 64, 9, 0, 9},
		{16, 64, 3, 0, 3},
		{4, 16, 10, 8, 8},
		{4, 16, 3, 8, 3},
		{4, 16, 0, 0, 3},
	}
	for _, tt := range tests {
		t.Run(fmt.Sprintf("%dcpu_%vgb_%dtasks_%d", tt.cpus, tt.mem, tt.tasks, tt.override), func(t *testing.T) {
			assert.Equal(t, tt.want, WorkerCount(tt.cpus, tt.mem, tt.tasks, tt.override))
		})
	}
}

func TestPaginate(t *testing.T) {
	var labels []string
	for i := 0; i < 25; i++ {
		labels = append(labels, fmt.Sprintf("M%02d", i))
	}
	labels = append(labels, "M00", "M03") // duplicates do not count

	pages := Paginate(labels, 10)
	require.Len(t, pages, 3)
	assert.Len(t, pages[0], 10)
	assert.Len(t, pages[1], 10)
	assert.Len(t, pages[2], 5)
	assert.Equal(t, "M00", pages[0][0])
	assert.Equal(t, "M24", pages[2][4])

	assert.Len(t, Paginate(labels[:10], 10), 1)
	assert.Len(t, Paginate(labels, 0), 1)
	assert.Equal(t, [][]string{{}}, Paginate(nil, 10))
}

func TestSchedulerRun_ParallelSuccess(t *testing.T) {
	r := newFakeRenderer()
	s := parallelScheduler(r, WithMetrics(metrics.NewRender(prometheus.NewRegistry())))

	out, err := s.Run(context.Background(), tasks("a", "b", "c"))
	require.NoError(t, err)

	assert.Equal(t, ModeParallel, out.Mode)
	assert.Equal(t, 3, out.Workers)
	assert.Equal(t, 3, out.Succeeded)
	assert.Equal(t, 0, out.Failed)
	for i, res := range out.Results {
		assert.Equal(t, i, res.Index)
		assert.Len(t, res.Pages, 1)
	}
	assert.Equal(t, "b", out.Results[1].Task)
}

func TestSchedulerRun_SequentialWhenDisabled(t *testing.T) {
	r := newFakeRenderer()
	s := parallelScheduler(r, WithParallel(false))

	out, err := s.Run(context.Background(), tasks("a", "b"))
	require.NoError(t, err)
	assert.Equal(t, ModeSequential, out.Mode)
	assert.Equal(t, 1, out.Workers)
	assert.Equal(t, 2, out.Succeeded)
}

func TestSchedulerRun_PartialFailureRetriedSequentially(t *testing.T) {
	r := newFakeRenderer()
	r.failFor = func(name string, call int) error {
		if name == "b" && call == 1 {
			return errors.New("transient")
		}
		return nil
	}
	s := parallelScheduler(r)

	out, err := s.Run(context.Background(), tasks("a", "b", "c"))
	require.NoError(t, err)
	assert.Equal(t, ModeFallback, out.Mode)
	assert.Equal(t, 3, out.Succeeded)
	assert.Equal(t, 2, r.calls["b"])
	assert.Equal(t, 1, r.calls["a"])
}

func TestSchedulerRun_PersistentFailureIsAggregated(t *testing.T) {
	r := newFakeRenderer()
	r.failFor = func(name string, _ int) error {
		if name == "b" || name == "c" {
			return fmt.Errorf("no data for %s", name)
		}
		return nil
	}
	s := parallelScheduler(r)

	out, err := s.Run(context.Background(), tasks("a", "b", "c"))
	require.Error(t, err)
	assert.True(t, errors.Is(err, ErrRenderFailed))

	var fe *FailureError
	require.True(t, errors.As(err, &fe))
	require.Len(t, fe.Failures, 2)
	assert.Contains(t, err.Error(), "no data for b")
	assert.Contains(t, err.Error(), "no data for c")

	assert.Equal(t, 1, out.Succeeded)
	assert.Equal(t, 2, out.Failed)
	assert.Len(t, out.Results[0].Pages, 1)
}

func TestSchedulerRun_PanicIsCaptured(t *testing.T) {
	r := newFakeRenderer()
	r.panicOn = "boom"
	s := parallelScheduler(r)

	out, err := s.Run(context.Background(), tasks("ok", "boom"))
	require.Error(t, err)

	res := out.Results[1]
	assert.ErrorContains(t, res.Err, "backend exploded")
	assert.Contains(t, res.Trace, "goroutine")
	assert.Equal(t, 1, out.Succeeded)
}

func TestSchedulerRun_PoolFailureFallsBack(t *testing.T) {
	r := &flakyPrepRenderer{fakeRenderer: newFakeRenderer()}
	reg := prometheus.NewRegistry()
	s := parallelScheduler(r, WithMetrics(metrics.NewRender(reg)))

	out, err := s.Run(context.Background(), tasks("a", "b", "c", "d"))
	require.NoError(t, err)
	assert.Equal(t, ModeFallback, out.Mode)
	assert.Equal(t, 4, out.Succeeded)
	for _, res := range out.Results {
		assert.Len(t, res.Pages, 1)
	}
}

func TestSchedulerRun_Pagination(t *testing.T) {
	table := summary.Table{Name: "machine_output", Columns: []string{"good"}, Paged: true}
	for i := 0; i < 25; i++ {
		table.Rows = append(table.Rows, summary.Row{Label: fmt.Sprintf("MC%02d", i), Values: []float64{float64(i)}})
	}

	r := newFakeRenderer()
	s := parallelScheduler(r, WithPageSize(10))

	out, err := s.Run(context.Background(), []Task{{Name: "machine_output", Table: table}})
	require.NoError(t, err)
	assert.Equal(t, 1, out.Workers)
	require.Len(t, out.Results[0].Pages, 3)

	require.Len(t, r.specs, 3)
	for i, spec := range r.specs {
		assert.Equal(t, i+1, spec.Page)
		assert.Equal(t, 3, spec.Pages)
	}
}

func TestSchedulerRun_NoTasks(t *testing.T) {
	out, err := parallelScheduler(newFakeRenderer()).Run(context.Background(), nil)
	require.NoError(t, err)
	assert.Empty(t, out.Results)
}

func TestBarRenderer(t *testing.T) {
	b := NewBarRenderer()
	table := summary.Table{Columns: []string{"good", "defect"}, Rows: []summary.Row{
		{Label: "a", Values: []float64{10, 2}},
		{Label: "b", Values: []float64{5, 0}},
	}}

	imgs, err := b.Render(context.Background(), table, Spec{Name: "x", Page: 1, Pages: 1})
	require.NoError(t, err)
	require.Len(t, imgs, 1)
	assert.Equal(t, image.Rect(0, 0, 960, 540), imgs[0].Bounds())

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	_, err = b.Render(ctx, table, Spec{})
	assert.ErrorIs(t, err, context.Canceled)
}
