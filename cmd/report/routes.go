package main

import (
	"log/slog"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/rs/cors"

	generate_excel "molding-report/http-server/generate-report/generate-excel"
	early_warning "molding-report/http-server/report/early-warning"
	"molding-report/http-server/report/run"
	"molding-report/internal/config"
	"molding-report/internal/middleware/auth"
)

const runRealm = "Report Runs"

type reportAPI interface {
	generate_excel.GenerateExcelHandler
	early_warning.Analyzer
	run.ReportRunner
}

func routes(cfg config.Config, log *slog.Logger, api reportAPI, reg *prometheus.Registry) *chi.Mux {
	router := chi.NewRouter()

	corsHandler := cors.New(cors.Options{
		AllowedOrigins:   cfg.CORSOrigins,
		AllowedMethods:   []string{"GET", "POST", "OPTIONS"},
		AllowedHeaders:   []string{"Accept", "Authorization", "Content-Type"},
		AllowCredentials: true,
	})

	router.Use(corsHandler.Handler)
	router.Use(middleware.RequestID)
	router.Use(middleware.RealIP)
	router.Use(middleware.Logger)
	router.Use(middleware.Recoverer)

	router.Handle("/metrics", promhttp.HandlerFor(reg, promhttp.HandlerOpts{Registry: reg}))

	router.Route("/api/report", func(r chi.Router) {
		r.Get("/excel", generate_excel.GenerateReportExcel(log, api, cfg.RunTimeout))
		r.Get("/risk", early_warning.GetRisk(log, api, cfg.RunTimeout))

		r.With(auth.BasicAuth(runRealm, cfg.AdminLogin, cfg.AdminPass)).
			Post("/run", run.RunReport(log, api, cfg.RunTimeout))
	})

	return router
}
