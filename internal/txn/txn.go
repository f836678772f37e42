// Copyright (c) 2015, Rod Dong <rod.dong@gmail.com>
// All rights reserved.
//
// Use of this source code is governed by The MIT License.

// Package txn implements the canonical read-modify-write pattern from
// §4.3: take a snapshot, read metadata, compute a batch, apply it, and
// retry a bounded number of times on a retryable conflict.
package txn

import (
	"github.com/lsmdb/rodis/internal/engine"
	"github.com/lsmdb/rodis/internal/metrics"
	"github.com/lsmdb/rodis/internal/rodiserr"
)

// DefaultRetryCount matches the §11 default for txn.retry_count.
const DefaultRetryCount = 3

// Runner executes read-modify-write functions against a Facade with
// bounded retry on conflict.
type Runner struct {
	Engine     engine.Facade
	RetryCount int
}

// New returns a Runner with the given retry bound. A retryCount <= 0
// falls back to DefaultRetryCount.
func New(eng engine.Facade, retryCount int) *Runner {
	if retryCount <= 0 {
		retryCount = DefaultRetryCount
	}
	return &Runner{Engine: eng, RetryCount: retryCount}
}

// Step is the caller-supplied read-modify-write body. It receives a
// consistent snapshot, must not mutate any shared state visible outside
// the call, and returns the batch to commit plus an arbitrary result
// value threaded back to the caller of Run.
type Step func(snap engine.Snapshot) (batch *engine.Batch, result interface{}, err error)

// Run executes step, applying its batch and retrying up to RetryCount
// additional times when Apply fails with a Conflict error. A step that
// returns a nil batch (e.g. a pure read, or a no-op mutation) is not
// applied at all.
func (r *Runner) Run(step Step) (interface{}, error) {
	var lastErr error
	for attempt := 0; attempt <= r.RetryCount; attempt++ {
		result, err := r.attempt(step)
		if err == nil {
			return result, nil
		}
		if !rodiserr.Is(err, rodiserr.Conflict) {
			return nil, err
		}
		lastErr = err
		if attempt < r.RetryCount {
			metrics.TxnRetriesTotal.Inc()
		}
	}
	metrics.TxnConflictsExhaustedTotal.Inc()
	return nil, rodiserr.Wrap(rodiserr.Conflict, rodiserr.ErrTransientConflict, lastErr)
}

func (r *Runner) attempt(step Step) (interface{}, error) {
	snap, err := r.Engine.Snapshot()
	if err != nil {
		return nil, err
	}
	defer snap.Release()

	batch, result, err := step(snap)
	if err != nil {
		return nil, err
	}
	if batch == nil || batch.Len() == 0 {
		return result, nil
	}
	if err := r.Engine.Apply(batch); err != nil {
		return nil, err
	}
	return result, nil
}
