package observability

import (
	"fmt"
	"os"
	"strconv"
	"sync"
	"sync/atomic"
	"time"

	"google.golang.org/protobuf/encoding/protojson"
	"google.golang.org/protobuf/types/known/structpb"
)

// ErrorKind classifies why a connection ended early
type ErrorKind string

const (
	ErrorParse   ErrorKind = "parse"
	ErrorHandler ErrorKind = "handler"
	ErrorWrite   ErrorKind = "write"
)

var bucketLabels = [10]string{
	"<1ms", "<5ms", "<10ms", "<50ms", "<100ms",
	"<500ms", "<1s", "<5s", "<10s", ">=10s",
}

// Monitor counts connections, requests and bytes served. Safe for concurrent use.
type Monitor struct {
	started time.Time

	conns struct {
		accepted atomic.Uint64
		closed   atomic.Uint64
	}
	requests struct {
		total         atomic.Uint64
		bytes         atomic.Uint64
		totalDuration atomic.Uint64
		minDuration   atomic.Uint64
		maxDuration   atomic.Uint64
	}
	statuses       sync.Map // int -> *atomic.Uint64
	errors         sync.Map // ErrorKind -> *atomic.Uint64
	latencyBuckets [10]atomic.Uint64
}

// NewMonitor creates a monitor
func NewMonitor() *Monitor {
	return &Monitor{started: time.Now()}
}

// ConnOpened records an accepted connection
func (m *Monitor) ConnOpened() {
	m.conns.accepted.Add(1)
}

// ConnClosed records a connection reaching its closed state
func (m *Monitor) ConnClosed() {
	m.conns.closed.Add(1)
}

// ActiveConns returns accepted minus closed connections
func (m *Monitor) ActiveConns() uint64 {
	closed := m.conns.closed.Load()
	return m.conns.accepted.Load() - closed
}

// RecordRequest records a fully written response
func (m *Monitor) RecordRequest(status int, bytes int64, duration time.Duration) {
	counter(&m.statuses, status).Add(1)

	d := uint64(duration.Nanoseconds())
	m.requests.total.Add(1)
	if bytes > 0 {
		m.requests.bytes.Add(uint64(bytes))
	}
	m.requests.totalDuration.Add(d)
	m.updateMinMax(d)
	m.latencyBuckets[bucket(d)].Add(1)
}

// RecordError records a connection ended by an error of the given kind
func (m *Monitor) RecordError(kind ErrorKind) {
	counter(&m.errors, kind).Add(1)
}

// Requests returns the number of recorded requests
func (m *Monitor) Requests() uint64 {
	return m.requests.total.Load()
}

// BytesSent returns the number of response bytes written
func (m *Monitor) BytesSent() uint64 {
	return m.requests.bytes.Load()
}

// Errors returns the count for one error kind
func (m *Monitor) Errors(kind ErrorKind) uint64 {
	if v, ok := m.errors.Load(kind); ok {
		return v.(*atomic.Uint64).Load()
	}
	return 0
}

func (m *Monitor) updateMinMax(d uint64) {
	for {
		min := m.requests.minDuration.Load()
		if min != 0 && d >= min {
			break
		}
		if m.requests.minDuration.CompareAndSwap(min, d) {
			break
		}
	}
	for {
		max := m.requests.maxDuration.Load()
		if d <= max {
			break
		}
		if m.requests.maxDuration.CompareAndSwap(max, d) {
			break
		}
	}
}

func bucket(durationNs uint64) int {
	ms := durationNs / 1_000_000
	switch {
	case ms < 1:
		return 0
	case ms < 5:
		return 1
	case ms < 10:
		return 2
	case ms < 50:
		return 3
	case ms < 100:
		return 4
	case ms < 500:
		return 5
	case ms < 1000:
		return 6
	case ms < 5000:
		return 7
	case ms < 10000:
		return 8
	default:
		return 9
	}
}

func counter[K comparable](m *sync.Map, key K) *atomic.Uint64 {
	if v, ok := m.Load(key); ok {
		return v.(*atomic.Uint64)
	}
	v, _ := m.LoadOrStore(key, new(atomic.Uint64))
	return v.(*atomic.Uint64)
}

// Snapshot returns the current counters as a protobuf Struct
func (m *Monitor) Snapshot() (*structpb.Struct, error) {
	statuses := map[string]any{}
	m.statuses.Range(func(k, v any) bool {
		statuses[strconv.Itoa(k.(int))] = v.(*atomic.Uint64).Load()
		return true
	})

	errs := map[string]any{}
	m.errors.Range(func(k, v any) bool {
		errs[string(k.(ErrorKind))] = v.(*atomic.Uint64).Load()
		return true
	})

	latency := map[string]any{}
	for i, label := range bucketLabels {
		if n := m.latencyBuckets[i].Load(); n > 0 {
			latency[label] = n
		}
	}

	total := m.requests.total.Load()
	var avg time.Duration
	if total > 0 {
		avg = time.Duration(m.requests.totalDuration.Load() / total)
	}

	return structpb.NewStruct(map[string]any{
		"started": m.started.UTC().Format(time.RFC3339),
		"uptime":  time.Since(m.started).Round(time.Millisecond).String(),
		"connections": map[string]any{
			"accepted": m.conns.accepted.Load(),
			"closed":   m.conns.closed.Load(),
			"active":   m.ActiveConns(),
		},
		"requests": map[string]any{
			"total":       total,
			"bytes_sent":  m.requests.bytes.Load(),
			"avg_latency": avg.String(),
			"min_latency": time.Duration(m.requests.minDuration.Load()).String(),
			"max_latency": time.Duration(m.requests.maxDuration.Load()).String(),
			"by_status":   statuses,
			"latency":     latency,
		},
		"errors": errs,
	})
}

// WriteSnapshot writes the current snapshot as indented JSON to path
func (m *Monitor) WriteSnapshot(path string) error {
	snap, err := m.Snapshot()
	if err != nil {
		return fmt.Errorf("build snapshot: %w", err)
	}
	data, err := protojson.MarshalOptions{Multiline: true, Indent: "  "}.Marshal(snap)
	if err != nil {
		return fmt.Errorf("marshal snapshot: %w", err)
	}
	if err := os.WriteFile(path, data, 0o644); err != nil {
		return fmt.Errorf("write snapshot: %w", err)
	}
	return nil
}
