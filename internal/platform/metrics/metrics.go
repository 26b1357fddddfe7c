package metrics

import (
	"strconv"
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

// RegistryMetrics exposes counters and gauges for the patient pipeline. A nil
// *RegistryMetrics is valid and records nothing.
type RegistryMetrics struct {
	patients      *prometheus.CounterVec
	appointments  *prometheus.CounterVec
	queueDepth    prometheus.Gauge
	drainSize     prometheus.Histogram
	prescriptions *prometheus.CounterVec
}

func NewRegistryMetrics(reg prometheus.Registerer) *RegistryMetrics {
	m := &RegistryMetrics{
		patients: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "clinic",
			Subsystem: "registry",
			Name:      "patients_total",
			Help:      "Patient registrations and removals",
		}, []string{"op"}),
		appointments: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "clinic",
			Subsystem: "scheduling",
			Name:      "appointments_total",
			Help:      "Appointments booked, by doctor selection mode",
		}, []string{"selector"}),
		queueDepth: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: "clinic",
			Subsystem: "consultation",
			Name:      "queue_depth",
			Help:      "Patients currently waiting in the consultation queue",
		}),
		drainSize: prometheus.NewHistogram(prometheus.HistogramOpts{
			Namespace: "clinic",
			Subsystem: "consultation",
			Name:      "drain_size",
			Help:      "Patients processed per queue drain",
			Buckets:   []float64{1, 2, 5, 10, 25, 50, 100, 250},
		}),
		prescriptions: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "clinic",
			Subsystem: "prescriptions",
			Name:      "total",
			Help:      "Prescriptions issued and popped",
		}, []string{"op"}),
	}
	if reg == nil {
		reg = prometheus.DefaultRegisterer
	}
	reg.MustRegister(m.patients, m.appointments, m.queueDepth, m.drainSize, m.prescriptions)
	return m
}

func (m *RegistryMetrics) PatientsRegistered(n int) {
	if m == nil {
		return
	}
	m.patients.WithLabelValues("registered").Add(float64(n))
}

func (m *RegistryMetrics) PatientRemoved() {
	if m == nil {
		return
	}
	m.patients.WithLabelValues("removed").Inc()
}

func (m *RegistryMetrics) AppointmentBooked(selector string) {
	if m == nil {
		return
	}
	m.appointments.WithLabelValues(selector).Inc()
}

func (m *RegistryMetrics) SetQueueDepth(n int) {
	if m == nil {
		return
	}
	m.queueDepth.Set(float64(n))
}

func (m *RegistryMetrics) QueueDrained(n int) {
	if m == nil {
		return
	}
	m.drainSize.Observe(float64(n))
}

func (m *RegistryMetrics) PrescriptionsIssued(n int) {
	if m == nil {
		return
	}
	m.prescriptions.WithLabelValues("issued").Add(float64(n))
}

func (m *RegistryMetrics) PrescriptionPopped() {
	if m == nil {
		return
	}
	m.prescriptions.WithLabelValues("popped").Inc()
}

// HTTPMetrics records request counts and latency per route. A nil
// *HTTPMetrics is valid and records nothing.
type HTTPMetrics struct {
	requests *prometheus.CounterVec
	latency  *prometheus.HistogramVec
}

func NewHTTPMetrics(reg prometheus.Registerer) *HTTPMetrics {
	m := &HTTPMetrics{
		requests: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "clinic",
			Subsystem: "http",
			Name:      "requests_total",
			Help:      "HTTP requests by method, route and status code",
		}, []string{"method", "route", "status"}),
		latency: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: "clinic",
			Subsystem: "http",
			Name:      "request_duration_seconds",
			Help:      "HTTP request latency",
			Buckets:   prometheus.DefBuckets,
		}, []string{"method", "route"}),
	}
	if reg == nil {
		reg = prometheus.DefaultRegisterer
	}
	reg.MustRegister(m.requests, m.latency)
	return m
}

func (m *HTTPMetrics) Observe(method, route string, status int, d time.Duration) {
	if m == nil {
		return
	}
	m.requests.WithLabelValues(method, route, strconv.Itoa(status)).Inc()
	m.latency.WithLabelValues(method, route).Observe(d.Seconds())
}
