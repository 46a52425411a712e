package pool

import "sync/atomic"

// Stats holds optional per-bucket atomic counters. A nil *Stats is always
// safe to use: every increment method is a nil-receiver no-op, so wiring
// statistics in never changes hot-path behavior beyond one nil check,
// matching spec.md's "absence of statistics must not change behavior."
type Stats struct {
	perBucket  [MaxBuckets]bucketStats
	globalMiss atomic.Uint64
}

type bucketStats struct {
	cacheHit   atomic.Uint64
	masterHit  atomic.Uint64
	masterMiss atomic.Uint64
	freed      atomic.Uint64
}

// NewStats allocates a zeroed statistics block.
func NewStats() *Stats { return &Stats{} }

func (s *Stats) cacheHitInc(bucket int) {
	if s == nil {
		return
	}
	s.perBucket[bucket].cacheHit.Add(1)
}

func (s *Stats) masterHitInc(bucket int) {
	if s == nil {
		return
	}
	s.perBucket[bucket].masterHit.Add(1)
}

func (s *Stats) masterMissInc(bucket int) {
	if s == nil {
		return
	}
	s.perBucket[bucket].masterMiss.Add(1)
}

func (s *Stats) freedInc(bucket int) {
	if s == nil {
		return
	}
	s.perBucket[bucket].freed.Add(1)
}

func (s *Stats) globalMissInc() {
	if s == nil {
		return
	}
	s.globalMiss.Add(1)
}

// BucketSnapshot is a point-in-time, non-atomic copy of one bucket's
// counters, suitable for logging or JSON serialization.
type BucketSnapshot struct {
	CacheHit   uint64 `json:"cache_hit"`
	MasterHit  uint64 `json:"master_hit"`
	MasterMiss uint64 `json:"master_miss"`
	Freed      uint64 `json:"freed"`
}

// Snapshot is a point-in-time copy of the whole Stats block.
type Snapshot struct {
	Buckets    []BucketSnapshot `json:"buckets"`
	GlobalMiss uint64           `json:"global_miss"`
}

// Snapshot copies every counter out. Safe to call concurrently with any
// allocator traffic; the result may interleave individual counters but
// never tears a single one.
func (s *Stats) Snapshot(bucketsCount int) Snapshot {
	if s == nil {
		return Snapshot{}
	}
	out := Snapshot{Buckets: make([]BucketSnapshot, bucketsCount)}
	for i := 0; i < bucketsCount; i++ {
		b := &s.perBucket[i]
		out.Buckets[i] = BucketSnapshot{
			CacheHit:   b.cacheHit.Load(),
			MasterHit:  b.masterHit.Load(),
			MasterMiss: b.masterMiss.Load(),
			Freed:      b.freed.Load(),
		}
	}
	out.GlobalMiss = s.globalMiss.Load()
	return out
}
