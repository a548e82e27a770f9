package prometrics

import (
	"sync"

	"github.com/prometheus/client_golang/prometheus"

	"github.com/kitewave/orderflow/internal/observability"
)

// Provider registers the application's metric instruments against a
// prometheus registerer and exposes them behind the vendor-neutral Metrics
// port. Instruments are registered once per name.
type Provider struct {
	counters   sync.Map // MetricKey -> *prometheus.CounterVec
	histograms sync.Map // MetricKey -> *prometheus.HistogramVec
	namespace  string
	reg        prometheus.Registerer
}

func New(namespace string, reg prometheus.Registerer) *Provider {
	if reg == nil {
		reg = prometheus.DefaultRegisterer
	}
	p := &Provider{namespace: namespace, reg: reg}

	p.counter(observability.MUsecaseRequests, "Total number of use case invocations.", "use_case", "outcome")
	p.histogram(observability.MUsecaseDuration, "Duration of use case execution in seconds.", prometheus.DefBuckets, "use_case")
	p.counter(observability.MExternalRequests, "Total calls to external peers.", "peer", "endpoint", "outcome")
	p.histogram(observability.MExternalRequestDuration, "Duration of external calls in seconds.", prometheus.DefBuckets, "peer", "endpoint")
	p.counter(observability.MHTTPRequests, "Total HTTP requests.", "method", "route", "status")
	p.histogram(observability.MHTTPRequestDuration, "Duration of HTTP requests in seconds.", prometheus.DefBuckets, "method", "route")
	p.counter(observability.MEventsHandled, "Total events consumed by workers.", "event", "outcome")

	return p
}

func (p *Provider) Counter(name observability.MetricKey) observability.Counter {
	if v, ok := p.counters.Load(name); ok {
		return &counter{v: v.(*prometheus.CounterVec)}
	}
	return nil
}

func (p *Provider) Histogram(name observability.MetricKey) observability.Histogram {
	if v, ok := p.histograms.Load(name); ok {
		return &histogram{v: v.(*prometheus.HistogramVec)}
	}
	return nil
}

func (p *Provider) counter(name observability.MetricKey, help string, labelKeys ...string) {
	cv := prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: p.namespace, Name: string(name), Help: help,
	}, labelKeys)
	p.reg.MustRegister(cv)
	p.counters.Store(name, cv)
}

func (p *Provider) histogram(name observability.MetricKey, help string, buckets []float64, labelKeys ...string) {
	hv := prometheus.NewHistogramVec(prometheus.HistogramOpts{
		Namespace: p.namespace, Name: string(name), Help: help, Buckets: buckets,
	}, labelKeys)
	p.reg.MustRegister(hv)
	p.histograms.Store(name, hv)
}

type counter struct{ v *prometheus.CounterVec }

func (c *counter) Add(d float64, labels ...observability.Label) {
	c.v.With(labelMap(labels)).Add(d)
}

type histogram struct{ v *prometheus.HistogramVec }

func (h *histogram) Observe(v float64, labels ...observability.Label) {
	h.v.With(labelMap(labels)).Observe(v)
}

func labelMap(ls []observability.Label) prometheus.Labels {
	m := make(prometheus.Labels, len(ls))
	for _, l := range ls {
		m[l.Key] = l.Value
	}
	return m
}
