package run

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"net/http"
	"time"

	"github.com/go-chi/render"

	"molding-report/http-server/common"
	"molding-report/internal/output"
	"molding-report/internal/service"
	"molding-report/internal/service/risk"
)

type ReportRunner interface {
	Run(ctx context.Context, req service.Request) (*service.RunResult, error)
}

type Response struct {
	RunID          string                `json:"run_id"`
	Status         string                `json:"status"`
	Error          string                `json:"error,omitempty"`
	Partial        bool                  `json:"partial"`
	RenderMode     string                `json:"render_mode,omitempty"`
	Workers        int                   `json:"workers,omitempty"`
	RenderFailures []string              `json:"render_failures,omitempty"`
	Files          []string              `json:"files,omitempty"`
	Archived       []output.Move         `json:"archived,omitempty"`
	Severity       map[risk.Severity]int `json:"severity,omitempty"`
	Log            []service.LogEntry    `json:"log"`
}

// RunReport triggers a full report run. The body is a service.Request;
// the response carries the manifest and run log even when the run failed.
func RunReport(log *slog.Logger, runner ReportRunner, timeout time.Duration) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		const op = "handler.report.RunReport"

		var req service.Request
		if err := render.DecodeJSON(r.Body, &req); err != nil {
			if errors.Is(err, io.EOF) {
				http.Error(w, "empty request body", http.StatusBadRequest)
				return
			}
			http.Error(w, "invalid JSON", http.StatusBadRequest)
			return
		}
		if req.Period == "" {
			http.Error(w, "period is required", http.StatusBadRequest)
			return
		}
		if req.Workers < 0 {
			http.Error(w, "workers must not be negative", http.StatusBadRequest)
			return
		}

		ctx, cancel := context.WithTimeout(r.Context(), timeout)
		defer cancel()

		res, err := runner.Run(ctx, req)

		resp := toResponse(res)
		if err != nil {
			log.Error("report run failed", "op", op, "err", err)
			status, msg := common.Status(err)
			resp.Status = "failed"
			resp.Error = msg
			render.Status(r, status)
			render.JSON(w, r, resp)
			return
		}

		log.Info("report run finished", "op", op, "run_id", resp.RunID, "status", resp.Status)
		render.JSON(w, r, resp)
	}
}

func toResponse(res *service.RunResult) Response {
	resp := Response{Status: "ok", Log: []service.LogEntry{}}
	if res == nil {
		return resp
	}

	resp.RunID = res.RunID
	resp.Partial = res.Partial
	if res.Partial {
		resp.Status = "partial"
	}
	resp.RenderMode = string(res.Render.Mode)
	resp.Workers = res.Render.Workers
	resp.RenderFailures = res.RenderFailures
	resp.Files = res.Manifest.Current
	resp.Archived = res.Manifest.Archived
	if res.Analysis != nil {
		resp.Severity = res.Analysis.Risk.Counts
	}
	if res.Log != nil {
		resp.Log = append(resp.Log, res.Log.Entries...)
	}
	return resp
}
