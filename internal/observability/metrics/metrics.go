package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

// UpstreamMetrics exposes counters/histograms for calls to the medical-center API.
type UpstreamMetrics struct {
	requestsTotal  *prometheus.CounterVec
	requestLatency *prometheus.HistogramVec
}

func NewUpstreamMetrics(reg prometheus.Registerer) *UpstreamMetrics {
	m := &UpstreamMetrics{
		requestsTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "shifa",
			Subsystem: "upstream",
			Name:      "requests_total",
			Help:      "Total requests to the medical-center API",
		}, []string{"op", "status"}),
		requestLatency: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: "shifa",
			Subsystem: "upstream",
			Name:      "request_latency_seconds",
			Help:      "Latency of medical-center API requests",
			Buckets:   prometheus.DefBuckets,
		}, []string{"op"}),
	}
	if reg == nil {
		reg = prometheus.DefaultRegisterer
	}
	reg.MustRegister(m.requestsTotal, m.requestLatency)
	return m
}

func (m *UpstreamMetrics) ObserveRequest(op string, ok bool, d time.Duration) {
	if m == nil {
		return
	}
	status := "ok"
	if !ok {
		status = "error"
	}
	m.requestsTotal.WithLabelValues(op, status).Inc()
	m.requestLatency.WithLabelValues(op).Observe(d.Seconds())
}

// FlowMetrics exposes counters for booking and cart outcomes.
type FlowMetrics struct {
	bookingsConfirmed prometheus.Counter
	otpSendsTotal     *prometheus.CounterVec
	cartSyncsTotal    *prometheus.CounterVec
}

func NewFlowMetrics(reg prometheus.Registerer) *FlowMetrics {
	m := &FlowMetrics{
		bookingsConfirmed: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "shifa",
			Subsystem: "booking",
			Name:      "confirmed_total",
			Help:      "Total bookings confirmed through the gateway",
		}),
		otpSendsTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "shifa",
			Subsystem: "booking",
			Name:      "otp_sends_total",
			Help:      "Total booking OTP send attempts",
		}, []string{"status"}),
		cartSyncsTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "shifa",
			Subsystem: "cart",
			Name:      "syncs_total",
			Help:      "Local-to-remote cart sync attempts by outcome",
		}, []string{"outcome"}),
	}
	if reg == nil {
		reg = prometheus.DefaultRegisterer
	}
	reg.MustRegister(m.bookingsConfirmed, m.otpSendsTotal, m.cartSyncsTotal)
	return m
}

func (m *FlowMetrics) ObserveBookingConfirmed() {
	if m == nil {
		return
	}
	m.bookingsConfirmed.Inc()
}

func (m *FlowMetrics) ObserveOTPSend(ok bool) {
	if m == nil {
		return
	}
	status := "ok"
	if !ok {
		status = "error"
	}
	m.otpSendsTotal.WithLabelValues(status).Inc()
}

func (m *FlowMetrics) ObserveCartSync(outcome string) {
	if m == nil {
		return
	}
	m.cartSyncsTotal.WithLabelValues(outcome).Inc()
}
