package filter

import(
	"runtime"

	"golang.org/x/sync/errgroup"
)

// DefaultWorkers is the worker count when none is configured
func DefaultWorkers() int { return runtime.NumCPU() }

// Rows splits [y0,y1) into contiguous ranges, one per worker, runs fn
// on each in its own goroutine and waits for them all. Ranges never
// overlap, so fn may write its own rows without locking.
func Rows(workers, y0, y1 int, fn func(y0, y1 int)) {
	n := y1 - y0
	if n <= 0 {
		return
	}
	if workers <= 0 {
		workers = DefaultWorkers()
	}
	if workers > n {
		workers = n
	}
	perWorker := (n + workers - 1) / workers

	var g errgroup.Group
	for start:=y0; start<y1; start+=perWorker {
		start, end := start, min(start+perWorker, y1)
		g.Go(func() error {
			fn(start, end)
			return nil
		})
	}
	g.Wait()
}
