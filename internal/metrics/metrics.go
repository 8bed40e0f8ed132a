// Package metrics exports per-store counters through
// github.com/prometheus/client_golang and writes
// github.com/google/pprof/profile-formatted snapshots on demand (one file
// per DumpProfile call), keeping biscuit's
// own pprof dependency alive (SPEC_FULL.md DOMAIN STACK "Observability")
// instead of dropping it.
package metrics

import (
	"os"
	"time"

	"github.com/google/pprof/profile"
	"github.com/prometheus/client_golang/prometheus"
	dto "github.com/prometheus/client_model/go"
)

// Store groups the counters one server's caches and tables export.
type Store struct {
	Hits      prometheus.Counter
	Misses    prometheus.Counter
	Evictions prometheus.Counter
	WriteBack prometheus.Counter
}

// NewStore registers a fresh counter set under the given subsystem name.
func NewStore(registry *prometheus.Registry, subsystem string) *Store {
	s := &Store{
		Hits:      prometheus.NewCounter(prometheus.CounterOpts{Namespace: "nanvix", Subsystem: subsystem, Name: "hits_total"}),
		Misses:    prometheus.NewCounter(prometheus.CounterOpts{Namespace: "nanvix", Subsystem: subsystem, Name: "misses_total"}),
		Evictions: prometheus.NewCounter(prometheus.CounterOpts{Namespace: "nanvix", Subsystem: subsystem, Name: "evictions_total"}),
		WriteBack: prometheus.NewCounter(prometheus.CounterOpts{Namespace: "nanvix", Subsystem: subsystem, Name: "writeback_total"}),
	}
	registry.MustRegister(s.Hits, s.Misses, s.Evictions, s.WriteBack)
	return s
}

// HitInc, MissInc, EvictionInc and WriteBackInc are nil-safe: a store wired
// into a cache or table that was constructed without metrics (most tests)
// leaves them as no-ops rather than forcing every call site to nil-check.
func (s *Store) HitInc() {
	if s != nil {
		s.Hits.Inc()
	}
}

func (s *Store) MissInc() {
	if s != nil {
		s.Misses.Inc()
	}
}

func (s *Store) EvictionInc() {
	if s != nil {
		s.Evictions.Inc()
	}
}

func (s *Store) WriteBackInc() {
	if s != nil {
		s.WriteBack.Inc()
	}
}

// Snapshot reads the current value of every counter, for handing to
// DumpProfile without round-tripping through a registry's Gather.
func (s *Store) Snapshot() map[string]int64 {
	if s == nil {
		return nil
	}
	return map[string]int64{
		"hits":      snapshotCounter(s.Hits),
		"misses":    snapshotCounter(s.Misses),
		"evictions": snapshotCounter(s.Evictions),
		"writeback": snapshotCounter(s.WriteBack),
	}
}

func snapshotCounter(c prometheus.Counter) int64 {
	var m dto.Metric
	if err := c.Write(&m); err != nil {
		return 0
	}
	return int64(m.GetCounter().GetValue())
}

// DumpProfile writes a minimal heap-of-hits/misses profile.Profile snapshot
// to dir, one file per call, for offline analysis of cache behavior over a
// run.
func DumpProfile(dir string, samples map[string]int64) error {
	prof := &profile.Profile{
		SampleType: []*profile.ValueType{{Type: "count", Unit: "count"}},
		TimeNanos:  time.Now().UnixNano(),
	}
	fn := &profile.Function{ID: 1, Name: "cache_activity"}
	loc := &profile.Location{ID: 1, Line: []profile.Line{{Function: fn}}}
	prof.Function = []*profile.Function{fn}
	prof.Location = []*profile.Location{loc}
	for label, v := range samples {
		prof.Sample = append(prof.Sample, &profile.Sample{
			Location: []*profile.Location{loc},
			Value:    []int64{v},
			Label:    map[string][]string{"counter": {label}},
		})
	}
	f, err := os.CreateTemp(dir, "rcache-*.pb.gz")
	if err != nil {
		return err
	}
	defer f.Close()
	return prof.Write(f)
}
