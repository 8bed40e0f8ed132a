package metrics

import (
	"os"
	"testing"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	dto "github.com/prometheus/client_model/go"
)

func TestNewStoreRegistersCounters(t *testing.T) {
	reg := prometheus.NewRegistry()
	s := NewStore(reg, "rcache")

	s.Hits.Inc()
	s.Hits.Inc()
	s.Misses.Inc()

	mfs, err := reg.Gather()
	require.NoError(t, err)
	require.NotEmpty(t, mfs)

	var hits float64
	for _, mf := range mfs {
		if mf.GetName() == "nanvix_rcache_hits_total" {
			hits = metricValue(mf)
		}
	}
	assert.Equal(t, float64(2), hits)
}

func metricValue(mf *dto.MetricFamily) float64 {
	if len(mf.Metric) == 0 {
		return 0
	}
	return mf.Metric[0].GetCounter().GetValue()
}

func TestDumpProfileWritesFile(t *testing.T) {
	dir := t.TempDir()
	err := DumpProfile(dir, map[string]int64{"hits": 5, "misses": 1})
	require.NoError(t, err)

	entries, err := os.ReadDir(dir)
	require.NoError(t, err)
	assert.Len(t, entries, 1)
}
