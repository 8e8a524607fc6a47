package service

import (
	"github.com/prometheus/client_golang/prometheus"
)

// Metrics counts content operations per category. A nil *Metrics records nothing.
type Metrics struct {
	ingests *prometheus.CounterVec
	bytes   *prometheus.CounterVec
	deletes *prometheus.CounterVec
}

// NewMetrics creates the content collectors and registers them with reg.
func NewMetrics(reg prometheus.Registerer) (*Metrics, error) {
	m := &Metrics{
		ingests: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "content_ingest_total",
				Help: "Upload attempts by category and result.",
			},
			[]string{"category", "result"},
		),
		bytes: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "content_ingest_bytes_total",
				Help: "Payload bytes stored by category.",
			},
			[]string{"category"},
		),
		deletes: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "content_delete_total",
				Help: "Delete attempts by category and result.",
			},
			[]string{"category", "result"},
		),
	}

	for _, c := range []prometheus.Collector{m.ingests, m.bytes, m.deletes} {
		if err := reg.Register(c); err != nil {
			return nil, err
		}
	}
	return m, nil
}

func (m *Metrics) observeIngest(category string, err error, size int64) {
	if m == nil {
		return
	}
	m.ingests.WithLabelValues(category, outcome(err)).Inc()
	if err == nil {
		m.bytes.WithLabelValues(category).Add(float64(size))
	}
}

func (m *Metrics) observeDelete(category string, err error) {
	if m == nil {
		return
	}
	m.deletes.WithLabelValues(category, outcome(err)).Inc()
}
