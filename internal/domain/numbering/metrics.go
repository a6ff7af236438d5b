package numbering

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Allocation sources.
const (
	SourceRecycled = "recycled"
	SourceMinted   = "minted"
)

// Metrics provides observability for document number allocation.
// A nil *Metrics is valid and records nothing.
type Metrics struct {
	Allocations       *prometheus.CounterVec
	Collisions        *prometheus.CounterVec
	Exhausted         *prometheus.CounterVec
	Failures          *prometheus.CounterVec
	RecycledDiscarded *prometheus.CounterVec
	Duplicates        *prometheus.CounterVec
	AllocateDuration  *prometheus.HistogramVec
	PoolSize          *prometheus.GaugeVec
}

// NewMetrics registers the allocator metrics on reg.
// Pass prometheus.DefaultRegisterer in binaries and a fresh registry in tests.
func NewMetrics(reg prometheus.Registerer) *Metrics {
	factory := promauto.With(reg)
	return &Metrics{
		Allocations: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "docnum_allocations_total",
			Help: "Document numbers handed out, by office and source (recycled or minted)",
		}, []string{"office", "source"}),
		Collisions: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "docnum_collisions_total",
			Help: "Minted candidates rejected because the number was already assigned",
		}, []string{"office"}),
		Exhausted: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "docnum_sequence_exhausted_total",
			Help: "Allocations that ran out of collision retries (operational alarm)",
		}, []string{"office"}),
		Failures: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "docnum_allocation_failures_total",
			Help: "Failed allocations by office and error code",
		}, []string{"office", "code"}),
		RecycledDiscarded: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "docnum_recycled_discarded_total",
			Help: "Recycled numbers dropped because they no longer match the office pattern",
		}, []string{"office"}),
		Duplicates: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "docnum_duplicate_records_total",
			Help: "Allocated numbers rejected by persistence as duplicates",
		}, []string{"office"}),
		AllocateDuration: factory.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "docnum_allocate_duration_seconds",
			Help:    "Duration of Allocate calls",
			Buckets: []float64{0.001, 0.005, 0.01, 0.025, 0.05, 0.1, 0.25, 0.5, 1},
		}, []string{"source"}),
		PoolSize: factory.NewGaugeVec(prometheus.GaugeOpts{
			Name: "docnum_recycled_pool_size",
			Help: "Recycled numbers available for reissue, per office",
		}, []string{"office"}),
	}
}

func (m *Metrics) observeAllocation(office, source string, start time.Time) {
	if m == nil {
		return
	}
	m.Allocations.WithLabelValues(office, source).Inc()
	m.AllocateDuration.WithLabelValues(source).Observe(time.Since(start).Seconds())
}

func (m *Metrics) incCollision(office string) {
	if m == nil {
		return
	}
	m.Collisions.WithLabelValues(office).Inc()
}

func (m *Metrics) incExhausted(office string) {
	if m == nil {
		return
	}
	m.Exhausted.WithLabelValues(office).Inc()
}

func (m *Metrics) incFailure(office, code string) {
	if m == nil {
		return
	}
	m.Failures.WithLabelValues(office, code).Inc()
}

func (m *Metrics) incDiscarded(office string) {
	if m == nil {
		return
	}
	m.RecycledDiscarded.WithLabelValues(office).Inc()
}

func (m *Metrics) incDuplicate(office string) {
	if m == nil {
		return
	}
	m.Duplicates.WithLabelValues(office).Inc()
}

// SetPoolSize records the current depth of an office's recycling pool.
func (m *Metrics) SetPoolSize(office string, size int64) {
	if m == nil {
		return
	}
	m.PoolSize.WithLabelValues(office).Set(float64(size))
}
