package resource

import (
	"sync/atomic"
	"time"
)

// Operation names passed to Observer hooks.
const (
	OpFetch   = "fetch"
	OpSave    = "save"
	OpDestroy = "destroy"
	OpList    = "list"
)

// Observer receives hooks for network operations on models and collections.
// Implementations must be safe for concurrent use.
type Observer interface {
	// OnFetch is called after a model fetch was applied.
	OnFetch(resource string, url string, duration time.Duration)

	// OnList is called after a collection fetch replaced its members.
	OnList(resource string, url string, count int, duration time.Duration)

	// OnSave is called after a create or update was applied.
	OnSave(resource string, created bool, duration time.Duration)

	// OnDestroy is called after a delete succeeded.
	OnDestroy(resource string, duration time.Duration)

	// OnError is called when an operation fails.
	OnError(resource string, operation string, err error)

	// OnSuperseded is called when a response is discarded because a newer
	// operation was issued on the same instance.
	OnSuperseded(resource string, operation string)
}

// NoopObserver is an Observer that does nothing.
type NoopObserver struct{}

func (NoopObserver) OnFetch(resource string, url string, duration time.Duration)           {}
func (NoopObserver) OnList(resource string, url string, count int, duration time.Duration) {}
func (NoopObserver) OnSave(resource string, created bool, duration time.Duration)          {}
func (NoopObserver) OnDestroy(resource string, duration time.Duration)                     {}
func (NoopObserver) OnError(resource string, operation string, err error)                  {}
func (NoopObserver) OnSuperseded(resource string, operation string)                        {}

// MetricsObserver counts operations with atomic counters.
type MetricsObserver struct {
	fetchCount      atomic.Int64
	listCount       atomic.Int64
	createCount     atomic.Int64
	updateCount     atomic.Int64
	destroyCount    atomic.Int64
	errorCount      atomic.Int64
	supersededCount atomic.Int64
	listedItems     atomic.Int64
	totalLatencyNs  atomic.Int64
}

// NewMetricsObserver creates a new metrics observer.
func NewMetricsObserver() *MetricsObserver {
	return &MetricsObserver{}
}

func (m *MetricsObserver) OnFetch(resource string, url string, duration time.Duration) {
	m.fetchCount.Add(1)
	m.totalLatencyNs.Add(int64(duration))
}

func (m *MetricsObserver) OnList(resource string, url string, count int, duration time.Duration) {
	m.listCount.Add(1)
	m.listedItems.Add(int64(count))
	m.totalLatencyNs.Add(int64(duration))
}

func (m *MetricsObserver) OnSave(resource string, created bool, duration time.Duration) {
	if created {
		m.createCount.Add(1)
	} else {
		m.updateCount.Add(1)
	}
	m.totalLatencyNs.Add(int64(duration))
}

func (m *MetricsObserver) OnDestroy(resource string, duration time.Duration) {
	m.destroyCount.Add(1)
	m.totalLatencyNs.Add(int64(duration))
}

func (m *MetricsObserver) OnError(resource string, operation string, err error) {
	m.errorCount.Add(1)
}

func (m *MetricsObserver) OnSuperseded(resource string, operation string) {
	m.supersededCount.Add(1)
}

// Snapshot returns a copy of the current counters.
func (m *MetricsObserver) Snapshot() MetricsSnapshot {
	return MetricsSnapshot{
		FetchCount:      m.fetchCount.Load(),
		ListCount:       m.listCount.Load(),
		CreateCount:     m.createCount.Load(),
		UpdateCount:     m.updateCount.Load(),
		DestroyCount:    m.destroyCount.Load(),
		ErrorCount:      m.errorCount.Load(),
		SupersededCount: m.supersededCount.Load(),
		ListedItems:     m.listedItems.Load(),
		TotalLatency:    time.Duration(m.totalLatencyNs.Load()),
	}
}

// MetricsSnapshot is a point-in-time copy of MetricsObserver counters.
type MetricsSnapshot struct {
	FetchCount      int64         `json:"fetchCount"`
	ListCount       int64         `json:"listCount"`
	CreateCount     int64         `json:"createCount"`
	UpdateCount     int64         `json:"updateCount"`
	DestroyCount    int64         `json:"destroyCount"`
	ErrorCount      int64         `json:"errorCount"`
	SupersededCount int64         `json:"supersededCount"`
	ListedItems     int64         `json:"listedItems"`
	TotalLatency    time.Duration `json:"totalLatencyNs"`
}

// TotalOperations returns the number of successful operations.
func (s MetricsSnapshot) TotalOperations() int64 {
	return s.FetchCount + s.ListCount + s.CreateCount + s.UpdateCount + s.DestroyCount
}
