// Package debounce suppresses bursts of duplicate filesystem events per path.
package debounce

import (
	"sync"
	"time"
)

const (
	// DefaultThreshold is the minimum gap between two admitted events for a path.
	DefaultThreshold = 10 * time.Millisecond
	// DefaultEvictAfter is how long an idle entry is kept.
	DefaultEvictAfter = time.Second
)

type entry struct {
	last time.Time
	// pending is set by every Admit and cleared when Settled reports the path.
	pending bool
}

// Debouncer decides whether an event for a path should be processed. Events
// for the same path closer than the threshold are rejected; a rejected event
// still moves the path's timestamp forward, so a steady stream of writes
// keeps being rejected until it pauses.
//
// Every observed path is remembered until the caller has collected it with
// Settled, so a burst can be delivered once, as its last event, after the
// path has been quiet for a full threshold.
type Debouncer struct {
	mu         sync.Mutex
	threshold  time.Duration
	evictAfter time.Duration
	entries    map[string]*entry
}

// New creates a Debouncer. Non-positive arguments select the defaults.
func New(threshold, evictAfter time.Duration) *Debouncer {
	if threshold <= 0 {
		threshold = DefaultThreshold
	}
	if evictAfter <= 0 {
		evictAfter = DefaultEvictAfter
	}
	return &Debouncer{
		threshold:  threshold,
		evictAfter: evictAfter,
		entries:    make(map[string]*entry),
	}
}

// Threshold returns the configured minimum gap.
func (d *Debouncer) Threshold() time.Duration { return d.threshold }

// Admit reports whether an event for path observed at t should be processed.
// The first event for a path is always admitted.
func (d *Debouncer) Admit(path string, at time.Time) bool {
	d.mu.Lock()
	defer d.mu.Unlock()

	e, ok := d.entries[path]
	if !ok {
		d.entries[path] = &entry{last: at, pending: true}
		return true
	}
	gap := at.Sub(e.last)
	e.last = at
	e.pending = true
	return gap >= d.threshold
}

// Settled returns the paths that saw an event since the last call and have
// been quiet for at least the threshold. Each burst is reported once.
func (d *Debouncer) Settled(now time.Time) []string {
	d.mu.Lock()
	defer d.mu.Unlock()

	var out []string
	for p, e := range d.entries {
		if e.pending && now.Sub(e.last) >= d.threshold {
			e.pending = false
			out = append(out, p)
		}
	}
	return out
}

// Evict drops entries idle for longer than the eviction age and returns how
// many were removed. Entries not yet collected by Settled are kept.
func (d *Debouncer) Evict(now time.Time) int {
	d.mu.Lock()
	defer d.mu.Unlock()

	n := 0
	for p, e := range d.entries {
		if !e.pending && now.Sub(e.last) > d.evictAfter {
			delete(d.entries, p)
			n++
		}
	}
	return n
}

// Forget removes any state for path.
func (d *Debouncer) Forget(path string) {
	d.mu.Lock()
	delete(d.entries, path)
	d.mu.Unlock()
}

// LastSeen returns the stored timestamp for path.
func (d *Debouncer) LastSeen(path string) (time.Time, bool) {
	d.mu.Lock()
	defer d.mu.Unlock()
	e, ok := d.entries[path]
	if !ok {
		return time.Time{}, false
	}
	return e.last, true
}

// Len returns the number of tracked paths.
func (d *Debouncer) Len() int {
	d.mu.Lock()
	defer d.mu.Unlock()
	return len(d.entries)
}
