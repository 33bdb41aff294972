package engine

import (
	"context"
	"time"

	"edge-lab/internal/reporting"
)

// Report builds the validation report over the engine's stores.
func (e *Engine) Report(ctx context.Context) (*reporting.Report, error) {
	gen := reporting.NewGenerator(reporting.GeneratorOptions{
		Candidates: e.stores.Candidates,
		Outcomes:   e.stores.Outcomes,
		Results:    e.stores.Results,
		Manifest:   e.stores.Manifest,
		Runs:       e.stores.Runs,
		Stages:     e.lifecycle,
	}).WithClock(func() time.Time { return e.now().UTC() })
	r, err := gen.Generate(ctx)
	if err != nil {
		return nil, e.storageErr("report", err)
	}
	return r, nil
}
