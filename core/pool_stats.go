package core

import "github.com/searchktools/static-server/core/pools"

// PoolStats represents statistics for all pools
type PoolStats struct {
	Bufio pools.PoolStats `json:"bufio"`
	Bytes pools.PoolStats `json:"bytes"`
}

// HitRate returns the share of Gets served from a pooled object
func HitRate(s pools.PoolStats) float64 {
	if s.Gets == 0 {
		return 0
	}
	hits := float64(s.Gets) - float64(s.Allocs)
	if hits < 0 {
		hits = 0
	}
	return hits / float64(s.Gets)
}

// PoolStats returns statistics for the connection buffer and copy buffer pools
func (e *Engine) PoolStats() PoolStats {
	return PoolStats{
		Bufio: e.bufio.Stats(),
		Bytes: pools.GetBytePoolStats(),
	}
}
