package ml

import (
	"errors"
	"fmt"
	"runtime/debug"
	"sync"

	"github.com/panjf2000/ants/v2"
)

// parallelFor runs fn(0..n-1) on an ants pool of the given size and joins the
// errors. workers <= 1 runs inline.
func parallelFor(n, workers int, fn func(i int) error) error {
	if n == 0 {
		return nil
	}
	if workers <= 1 || n == 1 {
		for i := 0; i < n; i++ {
			if err := fn(i); err != nil {
				return err
			}
		}
		return nil
	}
	if workers > n {
		workers = n
	}

	pool, err := ants.NewPool(workers)
	if err != nil {
		return fmt.Errorf("create worker pool: %w", err)
	}
	defer pool.Release()

	errs := make([]error, n)
	var wg sync.WaitGroup
	for i := 0; i < n; i++ {
		i := i
		wg.Add(1)
		submitErr := pool.Submit(func() {
			defer wg.Done()
			defer func() {
				if r := recover(); r != nil {
					errs[i] = fmt.Errorf("task %d panicked: %v\n%s", i, r, debug.Stack())
				}
			}()
			errs[i] = fn(i)
		})
		if submitErr != nil {
			wg.Done()
			errs[i] = fmt.Errorf("submit task %d: %w", i, submitErr)
		}
	}
	wg.Wait()
	return errors.Join(errs...)
}
