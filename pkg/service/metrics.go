package service

import (
	"errors"

	"github.com/prometheus/client_golang/prometheus"
)

type metrics struct {
	requests *prometheus.CounterVec
	retries  *prometheus.CounterVec
	duration *prometheus.HistogramVec
}

func newMetrics() *metrics {
	return &metrics{
		requests: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "geokit_service_requests_total",
			Help: "Service request attempts by outcome",
		}, []string{"endpoint", "outcome"}),
		retries: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "geokit_service_retries_total",
			Help: "Service request retries",
		}, []string{"endpoint"}),
		duration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "geokit_service_request_duration_seconds",
			Help:    "Service request attempt duration in seconds",
			Buckets: prometheus.DefBuckets,
		}, []string{"endpoint"}),
	}
}

// register adds the collectors to reg, reusing collectors that another
// client registered first.
func (m *metrics) register(reg prometheus.Registerer) error {
	var are prometheus.AlreadyRegisteredError
	if err := reg.Register(m.requests); err != nil {
		if !errors.As(err, &are) {
			return err
		}
		m.requests = are.ExistingCollector.(*prometheus.CounterVec)
	}
	if err := reg.Register(m.retries); err != nil {
		if !errors.As(err, &are) {
			return err
		}
		m.retries = are.ExistingCollector.(*prometheus.CounterVec)
	}
	if err := reg.Register(m.duration); err != nil {
		if !errors.As(err, &are) {
			return err
		}
		m.duration = are.ExistingCollector.(*prometheus.HistogramVec)
	}
	return nil
}
