package metrics

import (
	"sync"
	"time"

	prom "github.com/prometheus/client_golang/prometheus"
)

// PrometheusRecorder implements Recorder using Prometheus metrics.
type PrometheusRecorder struct {
	once           sync.Once
	cacheLookups   *prom.CounterVec
	uploadResults  *prom.CounterVec
	uploadDuration *prom.HistogramVec
	queueDepth     prom.Gauge
}

// NewPrometheusRecorder constructs and registers Prometheus metrics (idempotent).
func NewPrometheusRecorder(reg *prom.Registry) *PrometheusRecorder {
	if reg == nil {
		reg = prom.NewRegistry()
	}
	pr := &PrometheusRecorder{}
	pr.once.Do(func() {
		pr.cacheLookups = prom.NewCounterVec(prom.CounterOpts{
			Namespace: "imgcdn",
			Name:      "cache_lookups_total",
			Help:      "URL cache lookups by entry point and outcome",
		}, []string{"entry", "outcome"})
		pr.uploadResults = prom.NewCounterVec(prom.CounterOpts{
			Namespace: "imgcdn",
			Name:      "upload_results_total",
			Help:      "Upload results by success/failure",
		}, []string{"result"})
		pr.uploadDuration = prom.NewHistogramVec(prom.HistogramOpts{
			Namespace: "imgcdn",
			Name:      "upload_duration_seconds",
			Help:      "Duration of individual upload operations",
			Buckets:   prom.DefBuckets,
		}, []string{"result"})
		pr.queueDepth = prom.NewGauge(prom.GaugeOpts{
			Namespace: "imgcdn",
			Name:      "upload_queue_depth",
			Help:      "Pending background uploads",
		})
		reg.MustRegister(pr.cacheLookups, pr.uploadResults, pr.uploadDuration, pr.queueDepth)
	})
	return pr
}

func (p *PrometheusRecorder) IncCacheHit(entry EntryPoint) {
	if p == nil || p.cacheLookups == nil {
		return
	}
	p.cacheLookups.WithLabelValues(string(entry), "hit").Inc()
}

func (p *PrometheusRecorder) IncCacheMiss(entry EntryPoint) {
	if p == nil || p.cacheLookups == nil {
		return
	}
	p.cacheLookups.WithLabelValues(string(entry), "miss").Inc()
}

func (p *PrometheusRecorder) IncUploadResult(success bool) {
	if p == nil || p.uploadResults == nil {
		return
	}
	p.uploadResults.WithLabelValues(resultLabel(success)).Inc()
}

func (p *PrometheusRecorder) ObserveUploadDuration(d time.Duration, success bool) {
	if p == nil || p.uploadDuration == nil {
		return
	}
	p.uploadDuration.WithLabelValues(resultLabel(success)).Observe(d.Seconds())
}

func (p *PrometheusRecorder) SetQueueDepth(n int) {
	if p == nil || p.queueDepth == nil {
		return
	}
	p.queueDepth.Set(float64(n))
}

func resultLabel(success bool) string {
	if success {
		return "success"
	}
	return "failed"
}
