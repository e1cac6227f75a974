package metrics

import (
	"testing"
	"time"

	prom "github.com/prometheus/client_golang/prometheus"
	"github.com/stretchr/testify/require"
)

func TestNoopRecorder_IsSafeZeroValue(t *testing.T) {
	var r Recorder = NoopRecorder{}
	r.IncCacheHit(EntryMarkdown)
	r.IncCacheMiss(EntryTemplate)
	r.IncUploadResult(true)
	r.ObserveUploadDuration(time.Second, false)
	r.SetQueueDepth(3)
}

func TestPrometheusRecorder_RegistersAndCounts(t *testing.T) {
	reg := prom.NewRegistry()
	r := NewPrometheusRecorder(reg)

	r.IncCacheHit(EntryMarkdown)
	r.IncCacheMiss(EntryMarkdown)
	r.IncCacheMiss(EntryTemplate)
	r.IncUploadResult(true)
	r.IncUploadResult(false)
	r.ObserveUploadDuration(250*time.Millisecond, true)
	r.SetQueueDepth(2)

	families, err := reg.Gather()
	require.NoError(t, err)

	names := make(map[string]bool)
	for _, f := range families {
		names[f.GetName()] = true
	}
	require.True(t, names["imgcdn_cache_lookups_total"])
	require.True(t, names["imgcdn_upload_results_total"])
	require.True(t, names["imgcdn_upload_duration_seconds"])
	require.True(t, names["imgcdn_upload_queue_depth"])
}

func TestPrometheusRecorder_NilReceiverIsSafe(t *testing.T) {
	var r *PrometheusRecorder
	r.IncCacheHit(EntryMarkdown)
	r.IncUploadResult(false)
	r.SetQueueDepth(0)
}
