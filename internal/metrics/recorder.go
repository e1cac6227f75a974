// Package metrics provides observability hooks for the image pipeline.
//
// Components receive a Recorder through dependency injection and default to
// NoopRecorder, so metrics can be enabled by swapping in the Prometheus
// implementation without code changes elsewhere.
package metrics

import "time"

// EntryPoint labels which path touched the cache.
type EntryPoint string

const (
	EntryMarkdown EntryPoint = "markdown"
	EntryTemplate EntryPoint = "template"
)

// Recorder defines observability hooks for cache and upload activity.
// Implementations must tolerate zero-value injection (see NoopRecorder).
type Recorder interface {
	IncCacheHit(entry EntryPoint)
	IncCacheMiss(entry EntryPoint)
	IncUploadResult(success bool)
	ObserveUploadDuration(d time.Duration, success bool)
	SetQueueDepth(n int)
}

// NoopRecorder is a Recorder that does nothing (default when metrics not configured).
type NoopRecorder struct{}

func (NoopRecorder) IncCacheHit(EntryPoint)                    {}
func (NoopRecorder) IncCacheMiss(EntryPoint)                   {}
func (NoopRecorder) IncUploadResult(bool)                      {}
func (NoopRecorder) ObserveUploadDuration(time.Duration, bool) {}
func (NoopRecorder) SetQueueDepth(int)                         {}
