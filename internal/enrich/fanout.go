package enrich

import (
	"context"
	"time"

	"golang.org/x/sync/errgroup"
)

// FanOut queries all providers concurrently, each under its own timeout, and
// returns the records in provider order. It never fails: a provider that
// errors or times out contributes a success=false record.
func FanOut(ctx context.Context, providers []Provider, timeouts map[string]time.Duration, key ProfileKey) []RawRecord {
	records := make([]RawRecord, len(providers))

	g, ctx := errgroup.WithContext(ctx)
	for i, p := range providers {
		g.Go(func() error {
			callCtx := ctx
			if t, ok := timeouts[p.ID()]; ok && t > 0 {
				var cancel context.CancelFunc
				callCtx, cancel = context.WithTimeout(ctx, t)
				defer cancel()
			}
			rec := p.Fetch(callCtx, key)
			if rec.Provider == "" {
				rec.Provider = p.ID()
			}
			if rec.Priority == 0 {
				rec.Priority = p.Priority()
			}
			if rec.FetchedAt.IsZero() {
				rec.FetchedAt = time.Now().UTC()
			}
			records[i] = rec
			return nil
		})
	}
	_ = g.Wait()
	return records
}
