package experiment

import (
	"context"
	"sync"

	"github.com/quadkit/descent/internal/config"
)

// Compare runs one descent per config concurrently and returns the
// results in input order. Each run owns its controller, manager and
// plant, so the goroutines share nothing.
func Compare(ctx context.Context, cfgs []*config.Config) ([]*Result, error) {
	results := make([]*Result, len(cfgs))
	errs := make([]error, len(cfgs))

	var wg sync.WaitGroup
	for i, cfg := range cfgs {
		wg.Add(1)
		go func(idx int, cfg *config.Config) {
			defer wg.Done()

			run, err := New(cfg)
			if err != nil {
				errs[idx] = err
				return
			}
			results[idx], errs[idx] = run.Run(ctx)
		}(i, cfg)
	}
	wg.Wait()

	for _, err := range errs {
		if err != nil {
			return nil, err
		}
	}
	return results, nil
}
