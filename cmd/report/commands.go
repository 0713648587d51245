package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"molding-report/internal/config"
	"molding-report/internal/service"
)

var (
	configPath string

	runPeriod     string
	runAsOf       string
	runSequential bool
	runWorkers    int

	rootCmd = &cobra.Command{
		Use:          "report",
		Short:        "Production order progress and mold capacity reports",
		SilenceUsage: true,
	}

	runCmd = &cobra.Command{
		Use:   "run",
		Short: "Analyze one period and publish the report bundle",
		RunE:  runReport,
	}

	serveCmd = &cobra.Command{
		Use:   "serve",
		Short: "Serve the report API",
		RunE:  serve,
	}
)

func init() {
	rootCmd.PersistentFlags().StringVar(&configPath, "config", "", "config file (default $CONFIG_PATH or ./config/local.yaml)")

	runCmd.Flags().StringVar(&runPeriod, "period", "", `period to report: "2006-01-02", "2006-01" or "2006"`)
	runCmd.Flags().StringVar(&runAsOf, "as-of", "", "analysis date (YYYY-MM-DD, default now)")
	runCmd.Flags().BoolVar(&runSequential, "sequential", false, "render charts one at a time")
	runCmd.Flags().IntVar(&runWorkers, "workers", 0, "render worker override")
	_ = runCmd.MarkFlagRequired("period")

	rootCmd.AddCommand(runCmd, serveCmd)
}

func runReport(cmd *cobra.Command, _ []string) error {
	req := service.Request{Period: runPeriod, Sequential: runSequential, Workers: runWorkers}
	if runAsOf != "" {
		asOf, err := time.ParseInLocation(time.DateOnly, runAsOf, time.Local)
		if err != nil {
			return fmt.Errorf("invalid --as-of %q: %w", runAsOf, err)
		}
		req.AsOf = asOf
	}

	cfg, err := config.Load(configPath)
	if err != nil {
		return err
	}
	log := setupLogger(cfg.Env, errorLogPath)

	ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	a, err := newApp(ctx, cfg, log)
	if err != nil {
		log.Error("failed to start", slog.Any("err", err))
		return err
	}
	defer a.Close()

	res, err := a.service.Run(ctx, req)
	if err != nil {
		log.Error("report run failed", slog.Any("err", err))
		return err
	}

	w := cmd.OutOrStdout()
	fmt.Fprintf(w, "run %s: %s render, %d workers\n", res.RunID, res.Render.Mode, res.Render.Workers)
	for _, f := range res.Manifest.Current {
		fmt.Fprintf(w, "  wrote %s\n", f)
	}
	if len(res.Manifest.Archived) > 0 {
		fmt.Fprintf(w, "  archived %d files\n", len(res.Manifest.Archived))
	}
	if res.Partial {
		fmt.Fprintf(w, "partial: failed charts %v\n", res.RenderFailures)
	}

	return nil
}

func serve(cmd *cobra.Command, _ []string) error {
	cfg, err := config.Load(configPath)
	if err != nil {
		return err
	}
	log := setupLogger(cfg.Env, errorLogPath)

	ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	a, err := newApp(ctx, cfg, log)
	if err != nil {
		log.Error("failed to start", slog.Any("err", err))
		return err
	}
	defer a.Close()

	srv := &http.Server{
		Addr:        cfg.Address,
		Handler:     routes(*cfg, log, a.service, a.registry),
		ReadTimeout: cfg.HTTPServer.Timeout,
		// report runs hold the connection for up to RunTimeout
		WriteTimeout: cfg.HTTPServer.RunTimeout + cfg.HTTPServer.Timeout,
		IdleTimeout:  cfg.HTTPServer.IdleTimeout,
	}

	errCh := make(chan error, 1)
	go func() {
		log.Info("server started", slog.String("address", cfg.Address))
		errCh <- srv.ListenAndServe()
	}()

	select {
	case err := <-errCh:
		if !errors.Is(err, http.ErrServerClosed) {
			log.Error("failed to start server", slog.Any("err", err))
			return err
		}
	case <-ctx.Done():
		shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.HTTPServer.Timeout)
		defer cancel()
		if err := srv.Shutdown(shutdownCtx); err != nil {
			log.Error("failed to stop server", slog.Any("err", err))
			return err
		}
	}

	log.Info("server stopped")
	return nil
}
