// Package render schedules dashboard rendering tasks over an adaptive
// worker pool and falls back to sequential execution on failure.
package render

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"image"
	"image/png"
	"log/slog"
	"runtime/debug"
	"strings"
	"time"

	"golang.org/x/sync/errgroup"

	"molding-report/internal/metrics"
	"molding-report/internal/service/summary"
)

const DefaultPageSize = 10

type Mode string

const (
	ModeSequential Mode = "sequential"
	ModeParallel   Mode = "parallel"
	// ModeFallback means the pool ran and some or all tasks were re-run sequentially.
	ModeFallback Mode = "fallback"
)

// ErrRenderFailed matches every *FailureError.
var ErrRenderFailed = errors.New("render failed")

// Spec identifies what the backend draws. Page is 1-based.
type Spec struct {
	Name  string
	Page  int
	Pages int
}

// Renderer is the rendering backend. Implementations must be safe for
// concurrent use.
type Renderer interface {
	Render(ctx context.Context, table summary.Table, spec Spec) ([]image.Image, error)
}

// Preparer is implemented by backends needing per-worker setup. A Prepare
// failure inside the pool is a pool failure.
type Preparer interface {
	Prepare(ctx context.Context) error
}

type Task struct {
	Name  string
	Table summary.Table
}

type Result struct {
	Task    string
	Index   int
	Pages   [][]byte // PNG encoded, one per page
	Elapsed time.Duration
	Err     error
	Trace   string
}

type Outcome struct {
	Results   []Result // in task order
	Workers   int
	Mode      Mode
	Succeeded int
	Failed    int
}

type FailureError struct {
	Failures []Result
}

func (e *FailureError) Error() string {
	parts := make([]string, len(e.Failures))
	for i, f := range e.Failures {
		parts[i] = fmt.Sprintf("%s: %v", f.Task, f.Err)
	}
	return fmt.Sprintf("render: %d task(s) failed: %s", len(e.Failures), strings.Join(parts, "; "))
}

func (e *FailureError) Is(target error) bool {
	return target == ErrRenderFailed
}

func (e *FailureError) Unwrap() []error {
	errs := make([]error, len(e.Failures))
	for i, f := range e.Failures {
		errs[i] = f.Err
	}
	return errs
}

type Scheduler struct {
	renderer  Renderer
	log       *slog.Logger
	metrics   *metrics.Render
	parallel  bool
	override  int
	pageSize  int
	resources func() Resources
}

type Option func(*Scheduler)

func WithParallel(enabled bool) Option {
	return func(s *Scheduler) { s.parallel = enabled }
}

// WithWorkers overrides the computed worker tier. The task-count cap still applies.
func WithWorkers(n int) Option {
	return func(s *Scheduler) { s.override = n }
}

func WithPageSize(n int) Option {
	return func(s *Scheduler) {
		if n > 0 {
			s.pageSize = n
		}
	}
}

func WithMetrics(m *metrics.Render) Option {
	return func(s *Scheduler) { s.metrics = m }
}

func WithResources(r Resources) Option {
	return func(s *Scheduler) { s.resources = func() Resources { return r } }
}

func NewScheduler(renderer Renderer, log *slog.Logger, opts ...Option) *Scheduler {
	s := &Scheduler{
		renderer:  renderer,
		log:       log,
		parallel:  true,
		pageSize:  DefaultPageSize,
		resources: DetectResources,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Workers is the pool size Run would use for n tasks.
func (s *Scheduler) Workers(n int) int {
	if !s.parallel {
		return 1
	}
	res := s.resources()
	return WorkerCount(res.CPUs, res.MemoryGB, n, s.override)
}

// Run renders every task. Individual task failures do not stop siblings;
// tasks still failing after the sequential retry are returned in a
// *FailureError alongside the full outcome.
func (s *Scheduler) Run(ctx context.Context, tasks []Task) (Outcome, error) {
	const op = "service.render.Scheduler.Run"

	log := s.log.With(slog.String("op", op))

	out := Outcome{Mode: ModeSequential, Workers: 1}
	if len(tasks) == 0 {
		return out, nil
	}

	out.Workers = s.Workers(len(tasks))
	s.metrics.SetWorkers(out.Workers)

	var results []Result
	if out.Workers > 1 {
		out.Mode = ModeParallel
		log.Info("rendering in parallel", slog.Int("tasks", len(tasks)), slog.Int("workers", out.Workers))

		var err error
		results, err = s.runParallel(ctx, tasks, out.Workers)
		switch {
		case err != nil:
			log.Warn("worker pool failed, rendering sequentially", slog.String("error", err.Error()))
			s.metrics.Fallback()
			out.Mode = ModeFallback
			results = s.runSequential(ctx, tasks, indexes(len(tasks)))
		case countFailed(results) > 0:
			failed := failedIndexes(results)
			log.Warn("retrying failed render tasks sequentially", slog.Int("failed", len(failed)))
			s.metrics.Fallback()
			out.Mode = ModeFallback
			for _, r := range s.runSequential(ctx, tasks, failed) {
				results[r.Index] = r
			}
		}
	} else {
		log.Info("rendering sequentially", slog.Int("tasks", len(tasks)))
		results = s.runSequential(ctx, tasks, indexes(len(tasks)))
	}

	out.Results = results
	var failures []Result
	for _, r := range results {
		if r.Err != nil {
			failures = append(failures, r)
			continue
		}
		out.Succeeded++
	}
	out.Failed = len(failures)

	if len(failures) > 0 {
		return out, fmt.Errorf("%s: %w", op, &FailureError{Failures: failures})
	}
	return out, nil
}

// runParallel feeds task indexes to a fixed set of workers and collects
// results as they complete. The returned slice is in task order.
func (s *Scheduler) runParallel(ctx context.Context, tasks []Task, workers int) ([]Result, error) {
	g, gCtx := errgroup.WithContext(ctx)

	jobs := make(chan int)
	done := make(chan Result, len(tasks))

	g.Go(func() error {
		defer close(jobs)
		for i := range tasks {
			select {
			case jobs <- i:
			case <-gCtx.Done():
				return gCtx.Err()
			}
		}
		return nil
	})

	for w := 0; w < workers; w++ {
		g.Go(func() error {
			if err := s.prepare(gCtx); err != nil {
				return fmt.Errorf("worker %d: %w", w, err)
			}
			for i := range jobs {
				done <- s.execute(gCtx, i, tasks[i])
			}
			return nil
		})
	}

	var poolErr error
	go func() {
		poolErr = g.Wait()
		close(done)
	}()

	results := make([]Result, len(tasks))
	got := 0
	for r := range done {
		s.logResult(r)
		results[r.Index] = r
		got++
	}

	if poolErr != nil {
		return nil, poolErr
	}
	if got != len(tasks) {
		return nil, fmt.Errorf("pool returned %d of %d results", got, len(tasks))
	}
	return results, nil
}

// runSequential renders the tasks at idx in-process and returns a slice
// of len(tasks) with only those positions filled.
func (s *Scheduler) runSequential(ctx context.Context, tasks []Task, idx []int) []Result {
	results := make([]Result, len(tasks))
	for i := range results {
		results[i] = Result{Task: tasks[i].Name, Index: i}
	}

	if err := s.prepare(ctx); err != nil {
		for _, i := range idx {
			results[i].Err = fmt.Errorf("prepare backend: %w", err)
			s.metrics.ObserveTask(tasks[i].Name, 0, results[i].Err)
			s.logResult(results[i])
		}
		return results
	}

	for _, i := range idx {
		results[i] = s.execute(ctx, i, tasks[i])
		s.logResult(results[i])
	}
	return results
}

func (s *Scheduler) prepare(ctx context.Context) error {
	if p, ok := s.renderer.(Preparer); ok {
		return p.Prepare(ctx)
	}
	return nil
}

func (s *Scheduler) execute(ctx context.Context, idx int, task Task) (res Result) {
	res = Result{Task: task.Name, Index: idx}
	start := time.Now()

	defer func() {
		if p := recover(); p != nil {
			res.Pages = nil
			res.Err = fmt.Errorf("panic: %v", p)
			res.Trace = string(debug.Stack())
		}
		res.Elapsed = time.Since(start)
		s.metrics.ObserveTask(task.Name, res.Elapsed, res.Err)
	}()

	pages := [][]string{task.Table.Labels()}
	if task.Table.Paged {
		pages = Paginate(task.Table.Labels(), s.pageSize)
	}

	for p, labels := range pages {
		table := task.Table
		if len(pages) > 1 {
			table = task.Table.Subset(labels)
		}

		imgs, err := s.renderer.Render(ctx, table, Spec{Name: task.Name, Page: p + 1, Pages: len(pages)})
		if err != nil {
			res.Pages = nil
			res.Err = fmt.Errorf("page %d/%d: %w", p+1, len(pages), err)
			res.Trace = res.Err.Error()
			return res
		}

		for _, img := range imgs {
			var buf bytes.Buffer
			if err := png.Encode(&buf, img); err != nil {
				res.Pages = nil
				res.Err = fmt.Errorf("encode page %d: %w", p+1, err)
				res.Trace = res.Err.Error()
				return res
			}
			res.Pages = append(res.Pages, buf.Bytes())
		}
	}

	return res
}

func (s *Scheduler) logResult(r Result) {
	if r.Err != nil {
		s.log.Warn("render task failed",
			slog.String("task", r.Task),
			slog.Duration("elapsed", r.Elapsed),
			slog.String("error", r.Err.Error()),
		)
		if r.Trace != "" {
			s.log.Debug("render task trace", slog.String("task", r.Task), slog.String("trace", r.Trace))
		}
		return
	}
	s.log.Info("render task finished",
		slog.String("task", r.Task),
		slog.Duration("elapsed", r.Elapsed),
		slog.Int("pages", len(r.Pages)),
	)
}

func indexes(n int) []int {
	out := make([]int, n)
	for i := range out {
		out[i] = i
	}
	return out
}

func countFailed(results []Result) int {
	return len(failedIndexes(results))
}

func failedIndexes(results []Result) []int {
	var out []int
	for _, r := range results {
		if r.Err != nil {
			out = append(out, r.Index)
		}
	}
	return out
}
