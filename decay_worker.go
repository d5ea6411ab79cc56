package kindred

import (
	"context"
	"time"
)

// startDecayWorker runs a background goroutine that periodically sweeps
// every companion's memories.
func (e *Engine) startDecayWorker(interval time.Duration) {
	if interval <= 0 {
		return
	}
	ctx, cancel := context.WithCancel(context.Background())
	e.cancelDecay = cancel
	e.decayDone = make(chan struct{})

	go func() {
		defer close(e.decayDone)
		ticker := time.NewTicker(interval)
		defer ticker.Stop()

		for {
			select {
			case <-ticker.C:
				total, err := e.SweepAll(ctx)
				if err != nil {
					e.logger.Error("decay sweep error", "err", err)
				} else if total.Updated > 0 || total.Deleted > 0 {
					e.logger.Info("decay sweep", "updated", total.Updated, "deleted", total.Deleted)
				}
			case <-ctx.Done():
				return
			}
		}
	}()
}

// SweepAll runs RunDecaySweep for every companion. A failing companion is
// logged and skipped; the first such error is returned with the totals.
func (e *Engine) SweepAll(ctx context.Context) (SweepResult, error) {
	ids, err := e.store.ListCompanionIDs(ctx)
	if err != nil {
		return SweepResult{}, err
	}

	var total SweepResult
	var firstErr error
	for _, id := range ids {
		if ctx.Err() != nil {
			return total, ctx.Err()
		}
		res, err := e.RunDecaySweep(ctx, id)
		if err != nil {
			e.logger.Warn("decay sweep failed", "companion", id, "err", err)
			if firstErr == nil {
				firstErr = err
			}
			continue
		}
		total.Updated += res.Updated
		total.Deleted += res.Deleted
	}
	return total, firstErr
}
