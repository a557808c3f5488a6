// Package metrics exposes watch loop activity as Prometheus metrics.
package metrics

import (
	"net/http"

	prom "github.com/prometheus/client_golang/prometheus"
	promcollect "github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/starford/nbhugo/internal/watch"
)

const namespace = "nbhugo"

// Recorder counts coordinator actions. It implements watch.Observer.
type Recorder struct {
	reg      *prom.Registry
	actions  *prom.CounterVec
	duration *prom.HistogramVec
}

var _ watch.Observer = (*Recorder)(nil)

// NewRecorder registers the nbhugo metrics plus the Go and process
// collectors on reg, or on a fresh registry when reg is nil.
func NewRecorder(reg *prom.Registry) *Recorder {
	if reg == nil {
		reg = prom.NewRegistry()
	}
	r := &Recorder{
		reg: reg,
		actions: prom.NewCounterVec(prom.CounterOpts{
			Namespace: namespace,
			Name:      "watch_actions_total",
			Help:      "Coordinator actions by action and result",
		}, []string{"action", "result"}),
		duration: prom.NewHistogramVec(prom.HistogramOpts{
			Namespace: namespace,
			Name:      "watch_action_duration_seconds",
			Help:      "Duration of coordinator actions",
			Buckets:   prom.DefBuckets,
		}, []string{"action"}),
	}
	reg.MustRegister(
		r.actions,
		r.duration,
		promcollect.NewGoCollector(),
		promcollect.NewProcessCollector(promcollect.ProcessCollectorOpts{}),
	)
	return r
}

func (r *Recorder) Observe(rep watch.Report) {
	result := "success"
	if rep.Err != nil {
		result = "failed"
	}
	r.actions.WithLabelValues(string(rep.Action), result).Inc()
	r.duration.WithLabelValues(string(rep.Action)).Observe(rep.Duration.Seconds())
}

// TrackStates exports the number of notebooks in each coordinator state,
// read at scrape time.
func (r *Recorder) TrackStates(c *watch.Coordinator) {
	for _, s := range []watch.State{watch.StateMetadataPending, watch.StateRendered} {
		state := s
		r.reg.MustRegister(prom.NewGaugeFunc(prom.GaugeOpts{
			Namespace:   namespace,
			Name:        "notebooks",
			Help:        "Tracked notebooks by watch state",
			ConstLabels: prom.Labels{"state": string(state)},
		}, func() float64 {
			n := 0
			for _, v := range c.States() {
				if v == state {
					n++
				}
			}
			return float64(n)
		}))
	}
}

// Handler serves the registry in the Prometheus exposition format.
func (r *Recorder) Handler() http.Handler {
	return promhttp.HandlerFor(r.reg, promhttp.HandlerOpts{})
}
