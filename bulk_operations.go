package ugibdd

import (
	"context"
	"sync"

	"golang.org/x/sync/errgroup"
)

// BulkCheck is one permission question of a bulk decision.
type BulkCheck struct {
	Entity Entity
	Action Action
	Target Resource
}

// BulkResult is the answer to one BulkCheck.
type BulkResult struct {
	BulkCheck
	Allowed bool
}

// DecideBulk answers many permission questions for one actor. Results keep
// the order of checks.
func DecideBulk(actor *Employee, checks []BulkCheck) []BulkResult {
	results := make([]BulkResult, len(checks))

	workerCount := 10
	if len(checks) < workerCount {
		workerCount = len(checks)
	}

	jobs := make(chan int, len(checks))
	var wg sync.WaitGroup
	for i := 0; i < workerCount; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for idx := range jobs {
				c := checks[idx]
				results[idx] = BulkResult{
					BulkCheck: c,
					Allowed:   Allowed(actor, c.Entity, c.Action, c.Target),
				}
			}
		}()
	}
	for i := range checks {
		jobs <- i
	}
	close(jobs)
	wg.Wait()
	return results
}

// RefreshAll reloads every record cache concurrently under one session ping,
// then expires overdue TSU orders. The first failure cancels the rest.
func (s *Service) RefreshAll(ctx context.Context) error {
	d := &s.Kusp.deps
	ctx, cancel, _, err := d.employee(ctx)
	if err != nil {
		return err
	}
	defer cancel()

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error { return s.Employees.load(gctx) })
	g.Go(func() error { return s.Kusp.load(gctx) })
	g.Go(func() error { return s.Protocols.load(gctx) })
	g.Go(func() error { return s.Tsu.load(gctx) })
	if err := g.Wait(); err != nil {
		return d.remote(ctx, "refresh caches", err)
	}
	if _, err := s.Tsu.expireOverdue(ctx); err != nil {
		return err
	}
	s.log.Debugw("caches refreshed",
		"employees", len(s.Employees.List()),
		"kusp", len(s.Kusp.List()),
		"protocols", len(s.Protocols.List()),
		"tsu", len(s.Tsu.List()),
	)
	return nil
}
