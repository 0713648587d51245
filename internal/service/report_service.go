package service

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"
	"golang.org/x/sync/errgroup"

	"molding-report/internal/config"
	"molding-report/internal/metrics"
	"molding-report/internal/notify"
	"molding-report/internal/output"
	"molding-report/internal/service/analysis"
	generate_excel "molding-report/internal/service/generate-excel"
	"molding-report/internal/service/progress"
	"molding-report/internal/service/render"
	"molding-report/internal/service/report"
	"molding-report/internal/service/risk"
	"molding-report/internal/storage"
)

type ReportStorage interface {
	GetPurchaseOrders(ctx context.Context) ([]storage.PurchaseOrder, error)
	GetProductionRecords(ctx context.Context) ([]storage.ProductionRecord, error)
	MoldStorage
}

// MoldStorage serves the static mold tables.
type MoldStorage interface {
	GetMoldSpecs(ctx context.Context) ([]storage.MoldSpec, error)
	GetMoldItems(ctx context.Context) ([]storage.MoldItem, error)
}

type Publisher interface {
	Publish(ctx context.Context, runID string, runAt time.Time, artifacts []output.Artifact, notes ...string) (output.Manifest, error)
}

// Notifier announces finished runs.
type Notifier interface {
	Notify(ctx context.Context, e notify.RunEvent) error
}

type ReportService struct {
	storage  ReportStorage
	molds    MoldStorage
	renderer render.Renderer
	output   Publisher
	notifier Notifier
	excel    *generate_excel.GenerateExcelService
	log      *slog.Logger

	analysis      config.Analysis
	renderMetrics *metrics.Render
	runMetrics    *metrics.Run
	resources     *render.Resources
	now           func() time.Time
	newID         func() string
}

type Option func(*ReportService)

// WithMoldStorage reads the mold tables from m instead of the record storage.
func WithMoldStorage(m MoldStorage) Option {
	return func(s *ReportService) { s.molds = m }
}

func WithAnalysisConfig(cfg config.Analysis) Option {
	return func(s *ReportService) { s.analysis = cfg }
}

func WithMetrics(r *metrics.Render, run *metrics.Run) Option {
	return func(s *ReportService) {
		s.renderMetrics = r
		s.runMetrics = run
	}
}

// WithResources pins the host resources used to size the render pool.
func WithResources(r render.Resources) Option {
	return func(s *ReportService) { s.resources = &r }
}

func WithNotifier(n Notifier) Option {
	return func(s *ReportService) { s.notifier = n }
}

func WithClock(now func() time.Time) Option {
	return func(s *ReportService) { s.now = now }
}

func NewReportService(storage ReportStorage, renderer render.Renderer, out Publisher, log *slog.Logger, opts ...Option) *ReportService {
	s := &ReportService{
		storage:  storage,
		molds:    storage,
		renderer: renderer,
		output:   out,
		excel:    generate_excel.NewGenerateService(),
		log:      log,
		analysis: config.Analysis{HoursPerDay: 24, PageSize: render.DefaultPageSize},
		now:      time.Now,
		newID:    uuid.NewString,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

type Request struct {
	// Period is "2006-01-02", "2006-01" or "2006".
	Period string `json:"period"`
	// AsOf defaults to the run time.
	AsOf time.Time `json:"as_of"`
	// Sequential disables the render pool for this run.
	Sequential bool `json:"sequential"`
	// Workers overrides the configured worker count when > 0.
	Workers int `json:"workers"`
}

type RunResult struct {
	RunID    string
	Analysis *analysis.Analysis
	Render   render.Outcome
	Manifest output.Manifest
	Log      *RunLog
	// Partial is set when some render tasks still failed after the
	// sequential retry. RenderFailures names them.
	Partial        bool
	RenderFailures []string
}

// Analyze loads the record sets concurrently and runs the analytics.
func (s *ReportService) Analyze(ctx context.Context, req Request) (*analysis.Analysis, error) {
	const op = "service.ReportService.Analyze"

	period, err := progress.ParsePeriod(req.Period)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", op, err)
	}
	asOf := req.AsOf
	if asOf.IsZero() {
		asOf = s.now()
	}

	in, err := s.load(ctx)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", op, err)
	}

	a, err := analysis.Run(in, period, asOf, s.analysis.HoursPerDay)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", op, err)
	}

	return a, nil
}

func (s *ReportService) load(ctx context.Context) (analysis.Inputs, error) {
	var in analysis.Inputs

	g, gCtx := errgroup.WithContext(ctx)
	g.Go(func() error {
		var err error
		in.Orders, err = s.storage.GetPurchaseOrders(gCtx)
		if err != nil {
			return fmt.Errorf("purchase orders: %w", err)
		}
		return nil
	})
	g.Go(func() error {
		var err error
		in.Records, err = s.storage.GetProductionRecords(gCtx)
		if err != nil {
			return fmt.Errorf("production records: %w", err)
		}
		return nil
	})
	g.Go(func() error {
		var err error
		in.Specs, err = s.molds.GetMoldSpecs(gCtx)
		if err != nil {
			return fmt.Errorf("mold specs: %w", err)
		}
		return nil
	})
	g.Go(func() error {
		var err error
		in.Items, err = s.molds.GetMoldItems(gCtx)
		if err != nil {
			return fmt.Errorf("mold items: %w", err)
		}
		return nil
	})

	if err := g.Wait(); err != nil {
		return analysis.Inputs{}, err
	}
	return in, nil
}

// Excel builds the progress workbook without publishing anything.
func (s *ReportService) Excel(ctx context.Context, req Request) ([]byte, *analysis.Analysis, error) {
	const op = "service.ReportService.Excel"

	a, err := s.Analyze(ctx, req)
	if err != nil {
		return nil, nil, fmt.Errorf("%s: %w", op, err)
	}
	data, err := s.excel.GenerateExcel(ctx, a)
	if err != nil {
		return nil, nil, fmt.Errorf("%s: %w", op, err)
	}
	return data, a, nil
}

// Run performs a full report run: analyze, text report, workbook, render,
// publish. Validation and persistence errors are returned; render task
// failures produce a partial result.
func (s *ReportService) Run(ctx context.Context, req Request) (*RunResult, error) {
	const op = "service.ReportService.Run"

	runAt := s.now()
	if req.AsOf.IsZero() {
		req.AsOf = runAt
	}

	res := &RunResult{RunID: s.newID()}
	res.Log = newRunLog(res.RunID, runAt, s.log.With(slog.String("op", op), slog.String("run_id", res.RunID)))
	defer func() { res.Log.Finished = s.now() }()

	level := "invalid"
	if p, err := progress.ParsePeriod(req.Period); err == nil {
		level = string(p.Level)
	}

	fail := func(stage string, err error) (*RunResult, error) {
		res.Log.Error(stage, err.Error())
		s.finish(ctx, res, req.Period, level, err)
		return res, fmt.Errorf("%s: %w", op, err)
	}

	a, err := s.Analyze(ctx, req)
	if err != nil {
		return fail("analyze", err)
	}
	res.Analysis = a
	res.Log.Info("analyze", fmt.Sprintf("%d orders, %d unfinished, %d flagged", len(a.Orders), len(a.Assessments), len(a.Risk.Flagged)))
	for _, sev := range risk.Severities {
		s.runMetrics.SetSeverity(string(sev), a.Risk.Counts[sev])
	}

	period := a.Period.ID()
	var artifacts []output.Artifact

	if text, err := report.Generate(a); err != nil {
		res.Log.Warn("report", "text report skipped: "+err.Error())
	} else {
		artifacts = append(artifacts, output.Artifact{Kind: "report", Period: period, Ext: "txt", Data: text})
	}

	workbook, err := s.excel.GenerateExcel(ctx, a)
	if err != nil {
		return fail("excel", err)
	}
	artifacts = append(artifacts, output.Artifact{Kind: "progress", Period: period, Ext: "xlsx", Data: workbook})

	outcome, renderErr := s.scheduler(req).Run(ctx, tasksFor(a))
	res.Render = outcome

	var notes []string
	for _, r := range outcome.Results {
		if r.Err != nil {
			res.RenderFailures = append(res.RenderFailures, r.Task)
			notes = append(notes, fmt.Sprintf("render %s failed: %v", r.Task, r.Err))
			continue
		}
		for i, page := range r.Pages {
			art := output.Artifact{Kind: "chart_" + r.Task, Period: period, Ext: "png", Data: page}
			if len(r.Pages) > 1 {
				art.Page = i + 1
			}
			artifacts = append(artifacts, art)
		}
	}
	if renderErr != nil {
		res.Partial = true
		if !errors.Is(renderErr, render.ErrRenderFailed) {
			notes = append(notes, "render: "+renderErr.Error())
		}
		res.Log.Warn("render", renderErr.Error())
	}
	res.Log.Info("render", fmt.Sprintf("%s mode, %d workers, %d ok, %d failed", outcome.Mode, outcome.Workers, outcome.Succeeded, outcome.Failed))

	manifest, err := s.output.Publish(ctx, res.RunID, runAt, artifacts, notes...)
	if err != nil {
		return fail("publish", err)
	}
	res.Manifest = manifest
	res.Log.Info("publish", fmt.Sprintf("%d files written, %d archived", len(manifest.Current), len(manifest.Archived)))

	s.finish(ctx, res, period, level, nil)

	return res, nil
}

// finish records the run outcome and announces it. A notification
// failure is logged on the run and never fails the run.
func (s *ReportService) finish(ctx context.Context, res *RunResult, period, level string, runErr error) {
	status := "ok"
	switch {
	case runErr != nil:
		status = "failed"
	case res.Partial:
		status = "partial"
	}
	s.runMetrics.Finished(level, status)

	if s.notifier == nil {
		return
	}

	ev := notify.RunEvent{
		RunID:          res.RunID,
		Period:         period,
		Status:         status,
		At:             res.Log.Started,
		Files:          res.Manifest.Current,
		Archived:       len(res.Manifest.Archived),
		RenderFailures: res.RenderFailures,
	}
	if runErr != nil {
		ev.Error = runErr.Error()
	}
	if res.Analysis != nil {
		ev.Severity = make(map[string]int, len(res.Analysis.Risk.Counts))
		for sev, n := range res.Analysis.Risk.Counts {
			ev.Severity[string(sev)] = n
		}
	}

	if err := s.notifier.Notify(ctx, ev); err != nil {
		res.Log.Warn("notify", "run event not sent: "+err.Error())
	}
}

func (s *ReportService) scheduler(req Request) *render.Scheduler {
	workers := s.analysis.Workers
	if req.Workers > 0 {
		workers = req.Workers
	}

	opts := []render.Option{
		render.WithParallel(!s.analysis.Sequential && !req.Sequential),
		render.WithWorkers(workers),
		render.WithPageSize(s.analysis.PageSize),
		render.WithMetrics(s.renderMetrics),
	}
	if s.resources != nil {
		opts = append(opts, render.WithResources(*s.resources))
	}
	return render.NewScheduler(s.renderer, s.log, opts...)
}

func tasksFor(a *analysis.Analysis) []render.Task {
	tables := a.Tables()
	tasks := make([]render.Task, len(tables))
	for i, t := range tables {
		tasks[i] = render.Task{Name: t.Name, Table: t}
	}
	return tasks
}
