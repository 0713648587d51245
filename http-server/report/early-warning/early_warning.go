package early_warning

import (
	"context"
	"log/slog"
	"net/http"
	"slices"
	"time"

	"github.com/go-chi/render"

	"molding-report/http-server/common"
	"molding-report/internal/service"
	"molding-report/internal/service/analysis"
	"molding-report/internal/service/risk"
)

type Analyzer interface {
	Analyze(ctx context.Context, req service.Request) (*analysis.Analysis, error)
}

type Response struct {
	Period  string                `json:"period"`
	Level   string                `json:"level"`
	AsOf    time.Time             `json:"as_of"`
	Total   int                   `json:"total"`
	Counts  map[risk.Severity]int `json:"counts"`
	Flagged []risk.Assessment     `json:"flagged"`
}

// GetRisk returns the early warning list for ?period=&as_of=. An optional
// severity parameter keeps only flagged orders of that severity.
func GetRisk(log *slog.Logger, an Analyzer, timeout time.Duration) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		const op = "handler.report.GetRisk"

		req, err := common.QueryRequest(r)
		if err != nil {
			http.Error(w, err.Error(), http.StatusBadRequest)
			return
		}

		severity := risk.Severity(r.URL.Query().Get("severity"))
		if severity != "" && !slices.Contains(risk.Severities, severity) {
			http.Error(w, "unknown severity", http.StatusBadRequest)
			return
		}

		ctx, cancel := context.WithTimeout(r.Context(), timeout)
		defer cancel()

		a, err := an.Analyze(ctx, req)
		if err != nil {
			log.Error("failed to analyze", "op", op, "err", err)
			status, msg := common.Status(err)
			http.Error(w, msg, status)
			return
		}

		flagged := make([]risk.Assessment, 0, len(a.Risk.Flagged))
		for _, f := range a.Risk.Flagged {
			if severity == "" || f.Severity == severity {
				flagged = append(flagged, f)
			}
		}

		render.JSON(w, r, Response{
			Period:  a.Period.ID(),
			Level:   string(a.Period.Level),
			AsOf:    a.AsOf,
			Total:   a.Risk.Total,
			Counts:  a.Risk.Counts,
			Flagged: flagged,
		})
	}
}
