package metrics

import (
	"sync"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"go.uber.org/zap"

	telemetry "sensor-gateway/internal/telemetry/domain"
)

const (
	metricPrefix = "sensor_"

	statusSuccess = "success"
	statusError   = "error"

	// OverflowDeviceID replaces device ids first seen after the device cap is reached.
	OverflowDeviceID = "_overflow"
)

// Registry owns the sensor instruments and the prometheus registry they are
// exposed from. Each Registry is independent; nothing is registered globally.
type Registry struct {
	registry *prometheus.Registry
	logger   *zap.Logger

	requests *prometheus.CounterVec
	analog   *prometheus.GaugeVec
	digital  *prometheus.GaugeVec
	duration prometheus.Histogram

	maxDevices       int
	runtimeCollector bool

	mu           sync.Mutex
	devices      map[string]struct{}
	overflowSeen bool
}

// Option configures a Registry.
type Option func(*Registry)

// WithMaxDevices caps the number of distinct device_id label values.
// Zero or negative means unlimited.
func WithMaxDevices(limit int) Option {
	return func(r *Registry) {
		r.maxDevices = limit
	}
}

// WithRuntimeCollectors adds the Go runtime and process collectors.
func WithRuntimeCollectors() Option {
	return func(r *Registry) {
		r.runtimeCollector = true
	}
}

// WithLogger sets the logger used for cardinality warnings.
func WithLogger(logger *zap.Logger) Option {
	return func(r *Registry) {
		if logger != nil {
			r.logger = logger
		}
	}
}

// NewRegistry constructs and registers the sensor instruments.
func NewRegistry(opts ...Option) *Registry {
	r := &Registry{
		registry: prometheus.NewRegistry(),
		logger:   zap.NewNop(),
		devices:  make(map[string]struct{}),
		requests: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: metricPrefix + "requests_total",
				Help: "Total sensor requests",
			},
			[]string{"device_id", "status"},
		),
		analog: prometheus.NewGaugeVec(
			prometheus.GaugeOpts{
				Name: metricPrefix + "umidade_analogica",
				Help: "Umidade analógica",
			},
			[]string{"device_id"},
		),
		digital: prometheus.NewGaugeVec(
			prometheus.GaugeOpts{
				Name: metricPrefix + "umidade_digital",
				Help: "Umidade digital",
			},
			[]string{"device_id"},
		),
		duration: prometheus.NewHistogram(prometheus.HistogramOpts{
			Name:    metricPrefix + "request_duration_seconds",
			Help:    "Request duration",
			Buckets: prometheus.DefBuckets,
		}),
	}
	for _, opt := range opts {
		opt(r)
	}

	r.registry.MustRegister(r.requests, r.analog, r.digital, r.duration)
	if r.runtimeCollector {
		r.registry.MustRegister(
			collectors.NewGoCollector(),
			collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
		)
	}
	return r
}

// ObserveReading overwrites the device gauges and counts a successful request.
func (r *Registry) ObserveReading(deviceID string, analog, digital int) {
	label := r.deviceLabel(deviceID)
	r.analog.WithLabelValues(label).Set(float64(analog))
	r.digital.WithLabelValues(label).Set(float64(digital))
	r.requests.WithLabelValues(label, statusSuccess).Inc()
}

// ObserveError counts a failed request. Gauges are left untouched.
func (r *Registry) ObserveError(deviceID string) {
	r.requests.WithLabelValues(r.deviceLabel(deviceID), statusError).Inc()
}

// Time starts a request timer. Call ObserveDuration on the result, usually
// deferred, to record the elapsed time in the duration histogram.
func (r *Registry) Time() *prometheus.Timer {
	return prometheus.NewTimer(r.duration)
}

// Gatherer exposes the underlying registry for scraping.
func (r *Registry) Gatherer() prometheus.Gatherer {
	return r.registry
}

// deviceLabel applies the device cap. The unknown id labels every rejection,
// so it is always passed through and never takes a slot.
func (r *Registry) deviceLabel(deviceID string) string {
	if r.maxDevices <= 0 || deviceID == telemetry.UnknownDeviceID {
		return deviceID
	}

	r.mu.Lock()
	defer r.mu.Unlock()
	if _, ok := r.devices[deviceID]; ok {
		return deviceID
	}
	if len(r.devices) < r.maxDevices {
		r.devices[deviceID] = struct{}{}
		return deviceID
	}
	if !r.overflowSeen {
		r.overflowSeen = true
		r.logger.Warn("device label cap reached, folding new devices",
			zap.Int("max_devices", r.maxDevices),
			zap.String("device_id", deviceID),
			zap.String("label", OverflowDeviceID))
	}
	return OverflowDeviceID
}
