// Copyright (c) 2015, Rod Dong <rod.dong@gmail.com>
// All rights reserved.
//
// Use of this source code is governed by The MIT License.

package expiry

import (
	"time"

	"github.com/rod6/log6"

	"github.com/lsmdb/rodis/internal/codec"
	"github.com/lsmdb/rodis/internal/engine"
	"github.com/lsmdb/rodis/internal/metrics"
)

// DefaultSweepInterval and DefaultSweepBatch match the §11 defaults for
// expiry.sweep_interval_ms and expiry.sweep_batch.
const (
	DefaultSweepInterval = 1000 * time.Millisecond
	DefaultSweepBatch    = 200
)

// Sweeper periodically scans the expiration index and physically removes
// keys whose TTL has passed (§4.4 active sweep). It owns its own scan
// cursor and does not share state with any command handler.
type Sweeper struct {
	Engine   engine.Facade
	Interval time.Duration
	Batch    int
	Now      func() time.Time

	stop chan struct{}
	done chan struct{}
}

// NewSweeper builds a Sweeper with the given tuning; a zero interval or
// batch falls back to the §11 defaults.
func NewSweeper(eng engine.Facade, interval time.Duration, batch int) *Sweeper {
	if interval <= 0 {
		interval = DefaultSweepInterval
	}
	if batch <= 0 {
		batch = DefaultSweepBatch
	}
	return &Sweeper{
		Engine:   eng,
		Interval: interval,
		Batch:    batch,
		Now:      time.Now,
		stop:     make(chan struct{}),
		done:     make(chan struct{}),
	}
}

// Start runs the sweep loop until Stop is called.
func (s *Sweeper) Start() {
	go func() {
		defer close(s.done)
		ticker := time.NewTicker(s.Interval)
		defer ticker.Stop()
		for {
			select {
			case <-s.stop:
				return
			case <-ticker.C:
				if n, err := s.Tick(); err != nil {
					log6.Error("sweeper tick failed: %v", err)
				} else if n > 0 {
					log6.Debug("sweeper removed %d expired key(s)", n)
				}
			}
		}
	}()
}

// Stop signals the sweep loop to exit and waits for it to do so.
func (s *Sweeper) Stop() {
	close(s.stop)
	<-s.done
}

// Tick runs one sweep pass and returns the number of keys removed. It is
// exported directly so tests can drive it without waiting on a ticker.
func (s *Sweeper) Tick() (int, error) {
	nowMs := s.Now().UnixMilli()
	upper := codec.ExpireIndexUpperBound(nowMs)
	entries, err := s.Engine.Scan([]byte{codec.TagExpire}, upper, s.Batch, false)
	if err != nil {
		return 0, err
	}

	removed := 0
	for _, entry := range entries {
		expireMs, key, err := codec.DecodeExpireIndex(entry.Key)
		if err != nil {
			log6.Warn("sweeper skipping undecodable expire index entry: %v", err)
			continue
		}

		snap, err := s.Engine.Snapshot()
		if err != nil {
			return removed, err
		}
		meta, ok, err := ReadMeta(snap, key)
		snap.Release()
		if err != nil {
			log6.Warn("sweeper skipping key with undecodable metadata: %v", err)
			continue
		}
		if !ok || meta.ExpireMs != expireMs {
			// The key was deleted, overwritten, or re-SET with a
			// different expiration since this index entry was written;
			// double-check-before-delete (§4.4) means we only ever
			// remove the stale index entry itself here.
			b := engine.NewBatch()
			b.Delete(entry.Key)
			if err := s.Engine.Apply(b); err != nil {
				return removed, err
			}
			continue
		}

		b := engine.NewBatch()
		AppendDeleteBatch(b, key, meta)
		if err := s.Engine.Apply(b); err != nil {
			return removed, err
		}
		removed++
		metrics.KeysSweptTotal.Inc()
	}
	return removed, nil
}
