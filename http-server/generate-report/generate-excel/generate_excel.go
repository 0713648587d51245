package generate_excel

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"molding-report/http-server/common"
	"molding-report/internal/service"
	"molding-report/internal/service/analysis"
)

type GenerateExcelHandler interface {
	Excel(ctx context.Context, req service.Request) ([]byte, *analysis.Analysis, error)
}

// GenerateReportExcel serves the progress workbook for ?period=&as_of=
// without publishing it.
func GenerateReportExcel(log *slog.Logger, gen GenerateExcelHandler, timeout time.Duration) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		const op = "handler.report.GenerateReportExcel"

		req, err := common.QueryRequest(r)
		if err != nil {
			http.Error(w, err.Error(), http.StatusBadRequest)
			return
		}

		ctx, cancel := context.WithTimeout(r.Context(), timeout)
		defer cancel()

		excelBytes, a, err := gen.Excel(ctx, req)
		if err != nil {
			log.Error("failed to generate excel", "op", op, "err", err)
			status, msg := common.Status(err)
			http.Error(w, msg, status)
			return
		}

		fileName := fmt.Sprintf("Molding_Report_%s_%s.xlsx", a.Period.ID(), time.Now().Format("2006-01-02_150405"))

		w.Header().Set("Content-Type", "application/vnd.openxmlformats-officedocument.spreadsheetml.sheet")
		w.Header().Set("Content-Disposition", "attachment; filename="+fileName)
		if _, err := w.Write(excelBytes); err != nil {
			log.Warn("failed to write excel response", "op", op, "err", err)
		}
	}
}
