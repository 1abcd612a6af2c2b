// Package sweeper reclaims disk held by expired sessions. There is no
// standing scheduler process: sweeps run on demand (the cleanup endpoint) or
// piggyback on inbound traffic at a coarse sampled interval.
package sweeper

import (
	"log"
	"os"
	"path/filepath"
	"sync/atomic"
	"time"
)

// DefaultInterval throttles opportunistic sweeps triggered by traffic.
const DefaultInterval = 30 * time.Minute

// Sweeper deletes immediate children of the watched directories once their
// modification time falls outside the retention window.
type Sweeper struct {
	window   time.Duration
	interval time.Duration
	now      func() time.Time

	// lastRun is advisory shared state, unix seconds of the last
	// opportunistic sweep. CAS keeps concurrent requests from stacking
	// sweeps; a lost race at worst skips or duplicates one run.
	lastRun atomic.Int64
}

func New(window, interval time.Duration) *Sweeper {
	if interval <= 0 {
		interval = DefaultInterval
	}
	return &Sweeper{window: window, interval: interval, now: time.Now}
}

// SetClock overrides the time source. Test hook.
func (s *Sweeper) SetClock(now func() time.Time) {
	if now != nil {
		s.now = now
	}
}

// Sweep removes every direct child of dirs older than the retention window
// and returns how many were removed. A child that cannot be statted or
// removed is logged and left for the next pass; it never stops the sweep of
// its siblings.
func (s *Sweeper) Sweep(dirs ...string) int {
	cutoff := s.now().Add(-s.window)
	removed := 0
	for _, dir := range dirs {
		entries, err := os.ReadDir(dir)
		if err != nil {
			if !os.IsNotExist(err) {
				log.Printf("sweep: read %s failed: %v", dir, err)
			}
			continue
		}
		for _, entry := range entries {
			info, err := entry.Info()
			if err != nil {
				log.Printf("sweep: stat %s failed: %v", entry.Name(), err)
				continue
			}
			if !info.ModTime().Before(cutoff) {
				continue
			}
			target := filepath.Join(dir, entry.Name())
			if err := os.RemoveAll(target); err != nil {
				log.Printf("sweep: remove %s failed: %v", target, err)
				continue
			}
			removed++
		}
	}
	return removed
}

// MaybeSweep runs Sweep in the background if at least one interval has passed
// since the last opportunistic run. Fire and forget; the result is discarded.
func (s *Sweeper) MaybeSweep(dirs ...string) {
	now := s.now().Unix()
	last := s.lastRun.Load()
	if now-last < int64(s.interval/time.Second) {
		return
	}
	if !s.lastRun.CompareAndSwap(last, now) {
		return
	}
	go func() {
		if n := s.Sweep(dirs...); n > 0 {
			log.Printf("sweep: removed %d expired entries", n)
		}
	}()
}
