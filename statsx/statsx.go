// Package statsx tracks the search engine's running counters: candidates
// generated, time spent sieving versus testing, accepted tuples per
// length, and one-time setup timings. It wires these onto
// github.com/prometheus/client_golang/prometheus the way
// other_examples/7b7dfd8c_etalazz-vsa__cmd-tfd-sim-main.go.go wires its
// own op/batch counters and flush-interval histogram: real
// prometheus.Counter/Histogram/Gauge objects, registered against a
// private *prometheus.Registry so multiple engines in one process (or
// in tests) never collide on the default registerer.
package statsx

import (
	"strconv"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	dto "github.com/prometheus/client_model/go"
)

// Snapshot is a plain-value copy of Counters safe to read after it is
// returned; unlike Counters it is not safe to update concurrently.
type Snapshot struct {
	CandidatesGenerated uint64
	SievingDuration     time.Duration
	TestingDuration     time.Duration
	TupleCounts         []uint64

	PrimeTableSize    int
	PrimeTableGenTime time.Duration
	ModInverseGenTime time.Duration
	SearchStart       time.Time
}

// Counters holds the engine's live, concurrently-updated statistics.
// Snapshot.TupleCounts[i] counts accepted tuples whose consecutive-prime
// run length is i+1, one slot per run length from 1 up to the
// tupleSlots given to New; other lengths are not counted. Every
// field here is a prometheus instrument, which are already safe for
// concurrent use from multiple goroutines without an external lock.
type Counters struct {
	reg *prometheus.Registry

	candidatesGenerated prometheus.Counter
	sievingDuration     prometheus.Histogram
	testingDuration     prometheus.Histogram
	tupleCounts         *prometheus.CounterVec
	tupleSlots          int

	primeTableSize    prometheus.Gauge
	primeTableGenTime prometheus.Gauge
	modInverseGenTime prometheus.Gauge
	searchStart       prometheus.Gauge
}

// New allocates a Counters with tupleSlots independent tuple-length
// buckets, registered against a fresh registry private to this engine
// instance.
func New(tupleSlots int) *Counters {
	c := &Counters{
		reg:        prometheus.NewRegistry(),
		tupleSlots: tupleSlots,
		candidatesGenerated: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "riecoind_candidates_generated_total",
			Help: "Candidates that survived sieving and were handed to the verifier.",
		}),
		sievingDuration: prometheus.NewHistogram(prometheus.HistogramOpts{
			Name:    "riecoind_sieving_duration_seconds",
			Help:    "Time spent crossing off composite candidates, per segment.",
			Buckets: prometheus.DefBuckets,
		}),
		testingDuration: prometheus.NewHistogram(prometheus.HistogramOpts{
			Name:    "riecoind_testing_duration_seconds",
			Help:    "Time spent running the Fermat/strengthening primality test, per candidate.",
			Buckets: prometheus.DefBuckets,
		}),
		tupleCounts: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "riecoind_accepted_tuples_total",
			Help: "Accepted candidates by consecutive-prime run length.",
		}, []string{"length"}),
		primeTableSize: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "riecoind_prime_table_size",
			Help: "Number of primes in the sieving prime table built at init.",
		}),
		primeTableGenTime: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "riecoind_prime_table_build_seconds",
			Help: "Time spent building the sieving prime table.",
		}),
		modInverseGenTime: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "riecoind_modinverse_table_build_seconds",
			Help: "Time spent building the modular-inverse table.",
		}),
		searchStart: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "riecoind_search_start_time_seconds",
			Help: "Unix time the first job was accepted.",
		}),
	}
	c.reg.MustRegister(
		c.candidatesGenerated,
		c.sievingDuration,
		c.testingDuration,
		c.tupleCounts,
		c.primeTableSize,
		c.primeTableGenTime,
		c.modInverseGenTime,
		c.searchStart,
	)
	return c
}

// Registry returns the private registry these counters are registered
// against, for mounting behind promhttp.HandlerFor.
func (c *Counters) Registry() *prometheus.Registry {
	return c.reg
}

// SetPrimeTableStats records the size and build time of the prime
// table. Call once during Init, before StartWorkers.
func (c *Counters) SetPrimeTableStats(size int, genTime time.Duration) {
	c.primeTableSize.Set(float64(size))
	c.primeTableGenTime.Set(genTime.Seconds())
}

// SetModInverseGenTime records how long building the modular-inverse
// table took. Call once during Init, before StartWorkers.
func (c *Counters) SetModInverseGenTime(d time.Duration) {
	c.modInverseGenTime.Set(d.Seconds())
}

// MarkSearchStart records when the search began. Call once, when the
// first job is accepted.
func (c *Counters) MarkSearchStart(t time.Time) {
	c.searchStart.Set(float64(t.Unix()))
}

// AddSieveDuration records d as one sieving-time observation.
func (c *Counters) AddSieveDuration(d time.Duration) {
	c.sievingDuration.Observe(d.Seconds())
}

// AddTestDuration records d as one primality-testing-time observation.
func (c *Counters) AddTestDuration(d time.Duration) {
	c.testingDuration.Observe(d.Seconds())
}

// IncCandidates adds n to the count of candidates that survived sieving
// and were handed to the verifier.
func (c *Counters) IncCandidates(n uint64) {
	c.candidatesGenerated.Add(float64(n))
}

// BumpTupleCount increments the bucket for an accepted run of the given
// length (1-indexed: length 1 occupies bucket 0).
func (c *Counters) BumpTupleCount(length int) {
	if length < 1 || length > c.tupleSlots {
		return
	}
	c.tupleCounts.WithLabelValues(strconv.Itoa(length)).Inc()
}

// Snapshot copies every counter into a plain struct for safe external
// consumption (printing progress, and the like). The prometheus
// registry built from New remains the source of truth for anything
// scraped over /metrics; this is a convenience read path for code that
// wants a value, not a scrape.
func (c *Counters) Snapshot() Snapshot {
	tupleCounts := make([]uint64, c.tupleSlots)
	for i := range tupleCounts {
		tupleCounts[i] = uint64(readCounter(c.tupleCounts.WithLabelValues(strconv.Itoa(i + 1))))
	}
	return Snapshot{
		CandidatesGenerated: uint64(readCounter(c.candidatesGenerated)),
		SievingDuration:     secondsToDuration(readHistogramSum(c.sievingDuration)),
		TestingDuration:     secondsToDuration(readHistogramSum(c.testingDuration)),
		TupleCounts:         tupleCounts,
		PrimeTableSize:      int(readGauge(c.primeTableSize)),
		PrimeTableGenTime:   secondsToDuration(readGauge(c.primeTableGenTime)),
		ModInverseGenTime:   secondsToDuration(readGauge(c.modInverseGenTime)),
		SearchStart:         time.Unix(int64(readGauge(c.searchStart)), 0),
	}
}

func secondsToDuration(s float64) time.Duration {
	return time.Duration(s * float64(time.Second))
}

// readCounter, readGauge and readHistogramSum introspect a live
// prometheus instrument by writing it into its wire representation,
// the same mechanism promhttp uses to serve /metrics.
func readCounter(c prometheus.Counter) float64 {
	var m dto.Metric
	if err := c.Write(&m); err != nil {
		return 0
	}
	return m.GetCounter().GetValue()
}

func readGauge(g prometheus.Gauge) float64 {
	var m dto.Metric
	if err := g.Write(&m); err != nil {
		return 0
	}
	return m.GetGauge().GetValue()
}

func readHistogramSum(h prometheus.Histogram) float64 {
	var m dto.Metric
	if err := h.Write(&m); err != nil {
		return 0
	}
	return m.GetHistogram().GetSampleSum()
}
