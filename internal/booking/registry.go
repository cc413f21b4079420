package booking

import (
	"sync"

	"github.com/shifa-clinics/booking-gateway/internal/observability/metrics"
	"github.com/shifa-clinics/booking-gateway/pkg/logging"
)

// Registry hands out one Flow per visitor. A flow lives until the visitor
// closes it; Drop releases it (closing first so no draft leaks).
type Registry struct {
	mu      sync.Mutex
	flows   map[string]*Flow
	api     bookingAPI
	metrics *metrics.FlowMetrics
	logger  *logging.Logger
	opts    []Option
}

// NewRegistry creates an empty registry.
func NewRegistry(api bookingAPI, m *metrics.FlowMetrics, logger *logging.Logger, opts ...Option) *Registry {
	if api == nil {
		panic("booking: api required")
	}
	return &Registry{
		flows:   make(map[string]*Flow),
		api:     api,
		metrics: m,
		logger:  logger,
		opts:    opts,
	}
}

// Get returns the visitor's flow, creating it on first use.
func (r *Registry) Get(visitorID string) *Flow {
	r.mu.Lock()
	defer r.mu.Unlock()
	f, ok := r.flows[visitorID]
	if !ok {
		f = NewFlow(r.api, r.metrics, r.logger, r.opts...)
		r.flows[visitorID] = f
	}
	return f
}

// Drop closes and forgets the visitor's flow.
func (r *Registry) Drop(visitorID string) {
	r.mu.Lock()
	f, ok := r.flows[visitorID]
	if ok {
		delete(r.flows, visitorID)
	}
	r.mu.Unlock()
	if ok {
		f.Close()
	}
}
