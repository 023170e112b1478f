// Package analysis obtains the printed volume and print time of an uploaded
// model from the print-preparation service.
package analysis

import (
	"context"
	"errors"
	"fmt"

	"github.com/Simplici0/resinquote/internal/pricing"
)

// ErrInvalidResult is returned when the service reports a non-positive
// volume or print time.
var ErrInvalidResult = errors.New("invalid analysis result")

// Analyzer measures one unit of an uploaded model.
type Analyzer interface {
	Analyze(ctx context.Context, filename string, data []byte) (pricing.AnalysisResult, error)
}

// StatusError is a non-2xx answer from the analysis service.
type StatusError struct {
	StatusCode int
	Body       string
}

func (e *StatusError) Error() string {
	return fmt.Sprintf("analysis service returned status %d: %s", e.StatusCode, e.Body)
}

// Static returns the same result for every model. It stands in for the
// analysis service during local development.
type Static struct {
	Result pricing.AnalysisResult
}

func (s Static) Analyze(ctx context.Context, _ string, data []byte) (pricing.AnalysisResult, error) {
	if err := ctx.Err(); err != nil {
		return pricing.AnalysisResult{}, err
	}
	if len(data) == 0 {
		return pricing.AnalysisResult{}, errors.New("empty model file")
	}
	if err := check(s.Result); err != nil {
		return pricing.AnalysisResult{}, err
	}
	return s.Result, nil
}

func check(r pricing.AnalysisResult) error {
	if !(r.VolumeMl > 0) || !(r.PrintTimeHours > 0) {
		return fmt.Errorf("%w: volume_ml=%v print_time_hours=%v", ErrInvalidResult, r.VolumeMl, r.PrintTimeHours)
	}
	return nil
}
