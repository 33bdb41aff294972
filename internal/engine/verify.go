package engine

import (
	"context"
	"errors"

	"edge-lab/internal/simulation"
	"edge-lab/internal/storage"
	"edge-lab/internal/verification"
)

// Verify replays a stored validation run and reports whether the stored
// backtest results and verdict are reproduced. Unknown candidates and runs,
// missing data, replay failures and invalid ranges are returned unwrapped.
func (e *Engine) Verify(ctx context.Context, req verification.Request) (*verification.Report, error) {
	if err := checkRange(req.StartDate, req.EndDate); err != nil {
		return nil, err
	}
	rep, err := e.verifier.Verify(ctx, req)
	switch {
	case err == nil:
		return rep, nil
	case errors.Is(err, storage.ErrNotFound), errors.Is(err, verification.ErrRunNotFound),
		errors.Is(err, simulation.ErrDataUnavailable), errors.Is(err, verification.ErrReplayFailed):
		return nil, err
	default:
		return nil, e.storageErr("verify", err)
	}
}
