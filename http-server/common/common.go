// Package common holds the request parsing and error mapping shared by
// the report handlers.
package common

import (
	"errors"
	"fmt"
	"net/http"
	"time"

	"molding-report/internal/output"
	"molding-report/internal/service"
	"molding-report/internal/service/progress"
	"molding-report/internal/validate"
)

// QueryRequest reads period and as_of from the query string.
func QueryRequest(r *http.Request) (service.Request, error) {
	q := r.URL.Query()

	req := service.Request{Period: q.Get("period")}
	if req.Period == "" {
		return service.Request{}, errors.New("period is required")
	}

	if s := q.Get("as_of"); s != "" {
		asOf, err := time.Parse(time.DateOnly, s)
		if err != nil {
			return service.Request{}, fmt.Errorf("invalid as_of %q", s)
		}
		req.AsOf = asOf
	}

	return req, nil
}

// Status maps a service error to an HTTP status and a message safe to
// return to the client.
func Status(err error) (int, string) {
	var ve *validate.Error
	var oe *output.Error
	switch {
	case errors.Is(err, progress.ErrInvalidPeriod):
		return http.StatusBadRequest, "invalid period"
	case errors.As(err, &ve):
		return http.StatusUnprocessableEntity, ve.Error()
	case errors.As(err, &oe):
		return http.StatusInternalServerError, "failed to publish report"
	default:
		return http.StatusInternalServerError, "Internal error"
	}
}
