package buffer

import (
	"fmt"
	"io"
	"sync/atomic"
	"time"
)

// Stats keeps the running counters of a pool. Counters are updated atomically so they can be read without taking
// the pool lock.
type Stats struct {
	pinRequests atomic.Int64
	hits        atomic.Int64
	misses      atomic.Int64
	pageReads   atomic.Int64
	dirtyWrites atomic.Int64 // write-backs of evicted dirty frames
	flushWrites atomic.Int64 // writes issued by FlushPage and FlushAllPages
	lastReset   atomic.Int64
}

type StatsSnapshot struct {
	PinRequests int64
	Hits        int64
	Misses      int64
	PageReads   int64
	DirtyWrites int64
	FlushWrites int64
	Since       time.Time
}

func newStats() *Stats {
	s := &Stats{}
	s.lastReset.Store(time.Now().UnixNano())
	return s
}

func (s *Stats) recordPinRequest(hit bool) {
	s.pinRequests.Add(1)
	if hit {
		s.hits.Add(1)
	} else {
		s.misses.Add(1)
	}
}

func (s *Stats) recordRead() {
	s.pageReads.Add(1)
}

func (s *Stats) recordDirtyWrite() {
	s.dirtyWrites.Add(1)
}

func (s *Stats) recordFlushWrite() {
	s.flushWrites.Add(1)
}

func (s *Stats) reset() {
	s.pinRequests.Store(0)
	s.hits.Store(0)
	s.misses.Store(0)
	s.pageReads.Store(0)
	s.dirtyWrites.Store(0)
	s.flushWrites.Store(0)
	s.lastReset.Store(time.Now().UnixNano())
}

func (s *Stats) snapshot() StatsSnapshot {
	return StatsSnapshot{
		PinRequests: s.pinRequests.Load(),
		Hits:        s.hits.Load(),
		Misses:      s.misses.Load(),
		PageReads:   s.pageReads.Load(),
		DirtyWrites: s.dirtyWrites.Load(),
		FlushWrites: s.flushWrites.Load(),
		Since:       time.Unix(0, s.lastReset.Load()),
	}
}

func (s StatsSnapshot) HitRatio() float64 {
	if s.PinRequests == 0 {
		return 0
	}
	return float64(s.Hits) / float64(s.PinRequests)
}

func (s StatsSnapshot) WriteTo(w io.Writer) (int64, error) {
	n, err := fmt.Fprintf(w,
		"pin requests: %d\nhits: %d\nmisses: %d\nhit ratio: %.4f\npage reads: %d\ndirty pages written: %d\nflush writes: %d\nsince: %s\n",
		s.PinRequests, s.Hits, s.Misses, s.HitRatio(), s.PageReads, s.DirtyWrites, s.FlushWrites,
		s.Since.Format(time.RFC3339))
	return int64(n), err
}
