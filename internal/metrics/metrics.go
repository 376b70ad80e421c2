// Package metrics exposes the daemon's Prometheus instrumentation as a
// process-wide singleton, mirroring how the rest of the CRI stack wires
// client_golang: handlers call metrics.Instance().SomethingInc(...) rather
// than threading collectors through every call site.
package metrics

import (
	"sync"

	"github.com/prometheus/client_golang/prometheus"
)

const subsystem = "vimanad"

// Metrics holds every collector the daemon registers with Prometheus.
type Metrics struct {
	ImagePullsSuccesses   *prometheus.CounterVec
	ImagePullsFailures    *prometheus.CounterVec
	ImagePullsBytes       *prometheus.CounterVec
	ImagePullsLayerSize   prometheus.Histogram
	DispatchRequestsTotal *prometheus.CounterVec
	RegistrySize          *prometheus.GaugeVec
}

var (
	instance     *Metrics
	instanceOnce sync.Once
)

// Instance returns the process-wide Metrics singleton, registering its
// collectors with the default registry on first use.
func Instance() *Metrics {
	instanceOnce.Do(func() {
		instance = newMetrics()
		instance.mustRegister()
	})
	return instance
}

func newMetrics() *Metrics {
	return &Metrics{
		ImagePullsSuccesses: prometheus.NewCounterVec(prometheus.CounterOpts{
			Subsystem: subsystem,
			Name:      "image_pulls_successes_total",
			Help:      "Number of successful image pulls, by image.",
		}, []string{"image"}),
		ImagePullsFailures: prometheus.NewCounterVec(prometheus.CounterOpts{
			Subsystem: subsystem,
			Name:      "image_pulls_failures_total",
			Help:      "Number of failed image pulls, by image and failure reason.",
		}, []string{"image", "reason"}),
		ImagePullsBytes: prometheus.NewCounterVec(prometheus.CounterOpts{
			Subsystem: subsystem,
			Name:      "image_pulls_bytes_total",
			Help:      "Bytes pulled from registries, by image.",
		}, []string{"image"}),
		ImagePullsLayerSize: prometheus.NewHistogram(prometheus.HistogramOpts{
			Subsystem: subsystem,
			Name:      "image_pulls_layer_size_bytes",
			Help:      "Observed layer sizes during image pulls.",
			Buckets:   prometheus.ExponentialBuckets(1024, 4, 10),
		}),
		DispatchRequestsTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Subsystem: subsystem,
			Name:      "dispatch_requests_total",
			Help:      "CRI requests routed by the dispatcher, by method and target.",
		}, []string{"method", "target"}),
		RegistrySize: prometheus.NewGaugeVec(prometheus.GaugeOpts{
			Subsystem: subsystem,
			Name:      "registry_entries",
			Help:      "Number of entries currently tracked in the pod/container registry.",
		}, []string{"kind"}),
	}
}

func (m *Metrics) mustRegister() {
	prometheus.MustRegister(
		m.ImagePullsSuccesses,
		m.ImagePullsFailures,
		m.ImagePullsBytes,
		m.ImagePullsLayerSize,
		m.DispatchRequestsTotal,
		m.RegistrySize,
	)
}

// MetricImagePullsSuccessesInc records a successful pull of image.
func (m *Metrics) MetricImagePullsSuccessesInc(image string) {
	m.ImagePullsSuccesses.WithLabelValues(image).Inc()
}

// MetricImagePullsFailuresInc records a failed pull of image for reason.
func (m *Metrics) MetricImagePullsFailuresInc(image, reason string) {
	m.ImagePullsFailures.WithLabelValues(image, reason).Inc()
}

// MetricImagePullsBytesAdd adds n bytes pulled for image.
func (m *Metrics) MetricImagePullsBytesAdd(image string, n float64) {
	m.ImagePullsBytes.WithLabelValues(image).Add(n)
}

// MetricImagePullsLayerSizeObserve records the size of a pulled layer.
func (m *Metrics) MetricImagePullsLayerSizeObserve(size float64) {
	m.ImagePullsLayerSize.Observe(size)
}

// MetricDispatchRequestInc records a dispatched request for method, routed
// to either "managed" or "downstream".
func (m *Metrics) MetricDispatchRequestInc(method, target string) {
	m.DispatchRequestsTotal.WithLabelValues(method, target).Inc()
}

// MetricRegistrySizeSet records the current count of tracked entries of kind
// ("pods" or "containers").
func (m *Metrics) MetricRegistrySizeSet(kind string, n float64) {
	m.RegistrySize.WithLabelValues(kind).Set(n)
}
