package pool

import "sync/atomic"

// Usage aggregates live allocation counters across every pool in the
// process. Tests assert the snapshot is unchanged across a build cycle to
// catch leaked pool state; the metrics layer exports the same numbers as gauges.
type Usage struct {
	reservedBytes atomic.Int64
	liveBytes     atomic.Int64
	liveObjects   atomic.Int64
}

var globalUsage = &Usage{}

// GlobalUsage returns the process-wide usage counters.
func GlobalUsage() *Usage {
	return globalUsage
}

// UsageSnapshot is a point-in-time copy of the counters.
type UsageSnapshot struct {
	ReservedBytes int64
	LiveBytes     int64
	LiveObjects   int64
}

// Snapshot returns the current counter values.
func (u *Usage) Snapshot() UsageSnapshot {
	return UsageSnapshot{
		ReservedBytes: u.reservedBytes.Load(),
		LiveBytes:     u.liveBytes.Load(),
		LiveObjects:   u.liveObjects.Load(),
	}
}

// Zero reports whether no pool holds chunks or live allocations.
func (s UsageSnapshot) Zero() bool {
	return s.ReservedBytes == 0 && s.LiveBytes == 0 && s.LiveObjects == 0
}

func (u *Usage) reserve(n int64)   { u.reservedBytes.Add(n) }
func (u *Usage) unreserve(n int64) { u.reservedBytes.Add(-n) }

func (u *Usage) addAlloc(bytes, objects int64) {
	u.liveBytes.Add(bytes)
	u.liveObjects.Add(objects)
}

func (u *Usage) subAlloc(bytes, objects int64) {
	u.liveBytes.Add(-bytes)
	u.liveObjects.Add(-objects)
}
