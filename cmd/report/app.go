package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"

	"molding-report/internal/config"
	"molding-report/internal/metrics"
	"molding-report/internal/notify"
	"molding-report/internal/output"
	"molding-report/internal/service"
	"molding-report/internal/service/render"
	"molding-report/internal/storage/moldspec"
	"molding-report/internal/storage/mysql"
	"molding-report/internal/storage/postgres"
	"molding-report/internal/storage/xlsx"
)

type app struct {
	service  *service.ReportService
	registry *prometheus.Registry
	closers  []func() error
}

func newApp(ctx context.Context, cfg *config.Config, log *slog.Logger) (*app, error) {
	const op = "main.newApp"

	a := &app{registry: prometheus.NewRegistry()}
	a.registry.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)

	var storage service.ReportStorage
	switch cfg.Source {
	case config.SourceMySQL:
		db, err := mysql.New(cfg.Database)
		if err != nil {
			return nil, fmt.Errorf("%s: %w", op, err)
		}
		a.closers = append(a.closers, db.Close)
		storage = db
	case config.SourcePostgres:
		db, err := postgres.New(cfg.PostgresURL)
		if err != nil {
			return nil, fmt.Errorf("%s: %w", op, err)
		}
		a.closers = append(a.closers, db.Close)
		storage = db
	case config.SourceXLSX:
		storage = xlsx.New(cfg.XLSXPath)
	default:
		return nil, fmt.Errorf("%s: unknown source %q", op, cfg.Source)
	}

	opts := []service.Option{
		service.WithAnalysisConfig(cfg.Analysis),
		service.WithMetrics(metrics.NewRender(a.registry), metrics.NewRun(a.registry)),
	}
	if cfg.MoldSpecPath != "" {
		molds, err := moldspec.Open(cfg.MoldSpecPath)
		if err != nil {
			a.Close()
			return nil, fmt.Errorf("%s: %w", op, err)
		}
		opts = append(opts, service.WithMoldStorage(molds))
	}

	if len(cfg.Kafka.Brokers) > 0 {
		k, err := notify.NewKafka(cfg.Kafka.Brokers, cfg.Kafka.Topic)
		if err != nil {
			a.Close()
			return nil, fmt.Errorf("%s: %w", op, err)
		}
		a.closers = append(a.closers, k.Close)
		opts = append(opts, service.WithNotifier(k))
	}

	var outOpts []output.Option
	if cfg.S3.Bucket != "" {
		mirror, err := output.NewS3Mirror(ctx, cfg.S3.Bucket, cfg.S3.Prefix)
		if err != nil {
			a.Close()
			return nil, fmt.Errorf("%s: %w", op, err)
		}
		outOpts = append(outOpts, output.WithMirror(mirror))
		log.Info("mirroring outputs to s3", slog.String("bucket", cfg.S3.Bucket), slog.String("prefix", cfg.S3.Prefix))
	}

	out := output.New(cfg.OutputRoot, log, outOpts...)
	a.service = service.NewReportService(storage, render.NewBarRenderer(), out, log, opts...)

	log.Info("report service ready",
		slog.String("source", cfg.Source),
		slog.String("output_root", cfg.OutputRoot),
	)

	return a, nil
}

func (a *app) Close() error {
	var errs []error
	for _, c := range a.closers {
		errs = append(errs, c())
	}
	return errors.Join(errs...)
}
