package metrics

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

const namespace = "transact_workload"

// Exporter exposes request counters in the Prometheus text format. Values are
// read from the counters at scrape time, so nothing has to be pushed.
type Exporter struct {
	registry *prometheus.Registry
}

// NewExporter registers one set of counter series per RequestCounter.
func NewExporter(counters []*RequestCounter) (*Exporter, error) {
	reg := prometheus.NewRegistry()
	if err := reg.Register(collectors.NewGoCollector()); err != nil {
		return nil, err
	}

	for _, c := range counters {
		c := c
		labels := prometheus.Labels{"workload": c.ID()}
		series := []prometheus.Collector{
			prometheus.NewCounterFunc(prometheus.CounterOpts{
				Namespace:   namespace,
				Name:        "batches_attempted_total",
				Help:        "Batches submitted to the target, including in-flight ones.",
				ConstLabels: labels,
			}, func() float64 { return float64(c.Attempted()) }),
			prometheus.NewCounterFunc(prometheus.CounterOpts{
				Namespace:   namespace,
				Name:        "batches_succeeded_total",
				Help:        "Batches accepted by the target.",
				ConstLabels: labels,
			}, func() float64 { return float64(c.Succeeded()) }),
			prometheus.NewCounterFunc(prometheus.CounterOpts{
				Namespace:   namespace,
				Name:        "batches_failed_total",
				Help:        "Batches that failed to submit.",
				ConstLabels: labels,
			}, func() float64 { return float64(c.Failed()) }),
		}
		for _, s := range series {
			if err := reg.Register(s); err != nil {
				return nil, err
			}
		}
	}

	return &Exporter{registry: reg}, nil
}

// Handler serves the registered metrics.
func (e *Exporter) Handler() http.Handler {
	return promhttp.HandlerFor(e.registry, promhttp.HandlerOpts{})
}

// Gather returns counter values keyed by metric name and workload label.
func (e *Exporter) Gather() (map[string]float64, error) {
	families, err := e.registry.Gather()
	if err != nil {
		return nil, err
	}
	values := map[string]float64{}
	for _, fam := range families {
		for _, m := range fam.GetMetric() {
			if m.GetCounter() == nil {
				continue
			}
			key := fam.GetName()
			for _, lp := range m.GetLabel() {
				if lp.GetName() == "workload" {
					key += "{" + lp.GetValue() + "}"
				}
			}
			values[key] = m.GetCounter().GetValue()
		}
	}
	return values, nil
}
