// Copyright 2015 The Go Authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

package workerpool

import (
	"errors"
	"sync/atomic"
	"testing"
)

func TestRunCompletesEveryJob(t *testing.T) {
	var count int64
	jobs := make([]Job, 50)
	for i := range jobs {
		jobs[i] = func() error {
			atomic.AddInt64(&count, 1)
			return nil
		}
	}

	if err := New(8).Run(jobs); err != nil {
		t.Fatalf("Run: %v", err)
	}
	if count != int64(len(jobs)) {
		t.Fatalf("ran %d jobs, want %d", count, len(jobs))
	}
}

func TestRunReturnsFirstErrorButFinishesAllJobs(t *testing.T) {
	var count int64
	errBoom := errors.New("boom")
	jobs := make([]Job, 20)
	for i := range jobs {
		i := i
		jobs[i] = func() error {
			atomic.AddInt64(&count, 1)
			if i == 5 {
				return errBoom
			}
			return nil
		}
	}

	err := New(4).Run(jobs)
	if !errors.Is(err, errBoom) {
		t.Fatalf("Run error = %v, want %v", err, errBoom)
	}
	if count != int64(len(jobs)) {
		t.Fatalf("ran %d jobs, want all %d to complete", count, len(jobs))
	}
}

func TestRunEmpty(t *testing.T) {
	if err := New(4).Run(nil); err != nil {
		t.Fatalf("Run(nil) = %v, want nil", err)
	}
}

func TestNewClampsNonPositiveWorkers(t *testing.T) {
	p := New(0)
	if p.workers != 1 {
		t.Fatalf("New(0).workers = %d, want 1", p.workers)
	}
	p = New(-3)
	if p.workers != 1 {
		t.Fatalf("New(-3).workers = %d, want 1", p.workers)
	}
}
