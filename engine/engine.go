// Package engine wires the prime table, primorial, modular-inverse
// table, wheel sieve and verifier into a running search: a pool of
// worker goroutines repeatedly claim sieve segments from the active
// job, cross off composites, verify survivors, and push accepted
// tuples to a bounded output queue. The orchestration follows the
// teacher's Job/Result/worker channel pipeline, generalized with an
// epoch counter so a replaced job's in-flight segments never produce
// output after the replacement takes effect. Worker lifetime is
// managed with an errgroup.Group rather than a bare sync.WaitGroup.
package engine

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"runtime"
	"sync"
	"sync/atomic"
	"time"

	"github.com/prometheus/client_golang/prometheus/promhttp"
	"golang.org/x/sync/errgroup"

	"github.com/agbru/primeconstellation/bigint"
	"github.com/agbru/primeconstellation/modinverse"
	"github.com/agbru/primeconstellation/primes"
	"github.com/agbru/primeconstellation/primorial"
	"github.com/agbru/primeconstellation/sievecore"
	"github.com/agbru/primeconstellation/statsx"
	"github.com/agbru/primeconstellation/verify"
)

// Sentinel errors. Each is wrapped with fmt.Errorf("%w: ...") so
// callers can use errors.Is to distinguish the error kind without
// parsing messages.
var (
	ErrInvalidParams      = errors.New("engine: invalid params")
	ErrInvalidJob         = errors.New("engine: invalid job")
	ErrNotInitialized     = errors.New("engine: not initialized")
	ErrAlreadyInitialized = errors.New("engine: already initialized")
)

const maxUint64 = ^uint64(0)

// Params configures the engine. A zero value in any field (except
// StrengthenFullTuples, whose zero value false is itself the default)
// means "use the default"; see DefaultParams.
type Params struct {
	Workers              int
	ConstellationPattern []uint64
	PrimeTableLimit      uint32
	PrimorialNumber      int
	PrimorialOffset      *bigint.Int
	SieveSizeBits        uint64
	OutputQueueSize      int
	StrengthenFullTuples bool
	StrengthenRounds     int
}

// DefaultParams returns the parameter set the engine uses for any
// field left zero in a caller-supplied Params.
func DefaultParams() Params {
	return Params{
		Workers:              0,
		ConstellationPattern: []uint64{0, 2, 6, 8, 12, 18, 20},
		PrimeTableLimit:      16777216,
		PrimorialNumber:      120,
		PrimorialOffset:      nil,
		SieveSizeBits:        1 << 25,
		OutputQueueSize:      1024,
		StrengthenFullTuples: false,
		StrengthenRounds:     20,
	}
}

// Job describes one unit of search work: a target window, the pattern
// to verify against (an ordered subsequence of the sieving pattern, in
// the same relative order), and the acceptance predicate.
type Job struct {
	ID                string
	ClearPreviousJobs bool
	Pattern           []uint64
	TargetMin         *bigint.Int
	TargetMax         *bigint.Int
	KMin              int
	PatternMin        []bool
}

// Output is an accepted candidate: n, the offsets within job.Pattern
// where primality held, and the job/worker that produced it.
type Output struct {
	N        *bigint.Int
	Pattern  []uint64
	JobID    string
	WorkerID int
}

// Stats is a point-in-time snapshot of the engine's counters.
type Stats = statsx.Snapshot

// jobState is the engine's internal bookkeeping for the active job: the
// job itself, plus the precomputed segment-alignment data workers need
// to claim and sieve segments without touching the job's big integers
// more than once.
type jobState struct {
	job Job

	base0         *bigint.Int
	base0ModDelta []uint64 // (base0 + Δ) mod wheel.Primes()[i], one per sieving prime
	numSegments   uint64
	epoch         uint64

	cursor uint64 // next unclaimed segment index; guarded by Engine.jobMu
}

// Engine runs the search. The zero value is not usable; construct one
// with New.
type Engine struct {
	mu          sync.RWMutex
	params      Params
	initialized bool

	primeTable   *primes.Table
	primorialVal *bigint.Int
	delta        *bigint.Int
	modTable     *modinverse.Table
	wheel        *sievecore.Wheel
	stats        *statsx.Counters

	jobMu     sync.Mutex
	jobCond   *sync.Cond
	activeJob *jobState
	stopped   bool
	epoch     atomic.Uint64

	outputs chan Output
	cancel  context.CancelFunc
	g       *errgroup.Group

	searchStartOnce sync.Once
}

// New returns an uninitialized Engine with default parameters.
func New() *Engine {
	e := &Engine{params: DefaultParams()}
	e.jobCond = sync.NewCond(&e.jobMu)
	return e
}

// SetParams merges p over the defaults (a zero field keeps the
// default) and validates the result. It must be called before Init.
func (e *Engine) SetParams(p Params) error {
	e.mu.Lock()
	defer e.mu.Unlock()
	if e.initialized {
		return fmt.Errorf("%w: params cannot change after Init", ErrAlreadyInitialized)
	}
	merged := mergeParams(DefaultParams(), p)
	if err := validateParams(merged); err != nil {
		return err
	}
	e.params = merged
	return nil
}

func mergeParams(base, override Params) Params {
	if override.Workers != 0 {
		base.Workers = override.Workers
	}
	if len(override.ConstellationPattern) > 0 {
		base.ConstellationPattern = override.ConstellationPattern
	}
	if override.PrimeTableLimit != 0 {
		base.PrimeTableLimit = override.PrimeTableLimit
	}
	if override.PrimorialNumber != 0 {
		base.PrimorialNumber = override.PrimorialNumber
	}
	if override.PrimorialOffset != nil {
		base.PrimorialOffset = override.PrimorialOffset
	}
	if override.SieveSizeBits != 0 {
		base.SieveSizeBits = override.SieveSizeBits
	}
	if override.OutputQueueSize != 0 {
		base.OutputQueueSize = override.OutputQueueSize
	}
	base.StrengthenFullTuples = override.StrengthenFullTuples || base.StrengthenFullTuples
	if override.StrengthenRounds != 0 {
		base.StrengthenRounds = override.StrengthenRounds
	}
	return base
}

func validateParams(p Params) error {
	if p.PrimorialNumber <= 0 {
		return fmt.Errorf("%w: primorial_number must be positive, got %d", ErrInvalidParams, p.PrimorialNumber)
	}
	if len(p.ConstellationPattern) == 0 {
		return fmt.Errorf("%w: constellation_pattern must not be empty", ErrInvalidParams)
	}
	if p.ConstellationPattern[0] != 0 {
		return fmt.Errorf("%w: constellation_pattern must start at offset 0", ErrInvalidParams)
	}
	if p.PrimeTableLimit == 0 {
		return fmt.Errorf("%w: prime_table_limit must be positive", ErrInvalidParams)
	}
	if p.OutputQueueSize <= 0 {
		return fmt.Errorf("%w: output_queue_size must be positive", ErrInvalidParams)
	}
	return nil
}

// Init builds the job-independent tables: the prime table, the
// primorial, the primorial offset, the modular-inverse table and the
// sieving wheel. It must be called exactly once, after SetParams (or
// with the defaults if SetParams was never called) and before
// StartWorkers.
func (e *Engine) Init() error {
	e.mu.Lock()
	defer e.mu.Unlock()
	if e.initialized {
		return fmt.Errorf("%w", ErrAlreadyInitialized)
	}
	p := e.params

	probe, err := sievecore.New(p.SieveSizeBits)
	if err != nil {
		return fmt.Errorf("%w: %v", ErrInvalidParams, err)
	}
	// Segments advance by the rounded-down bit array width, so no
	// candidate slot falls between two consecutive segments.
	p.SieveSizeBits = probe.Len()

	tableStart := time.Now()
	fullTable := primes.Build(p.PrimeTableLimit)
	tableGenTime := time.Since(tableStart)

	if fullTable.Len() < p.PrimorialNumber {
		return fmt.Errorf("%w: prime_table_limit=%d yields only %d primes, need at least primorial_number=%d",
			ErrInvalidParams, p.PrimeTableLimit, fullTable.Len(), p.PrimorialNumber)
	}

	primorialPrimes := fullTable.Values()[:p.PrimorialNumber]
	primorialVal, err := primorial.Compute(primorialPrimes)
	if err != nil {
		return fmt.Errorf("%w: %v", ErrInvalidParams, err)
	}

	delta, err := primorial.ResolveOffset(p.ConstellationPattern, p.PrimorialNumber, p.PrimorialOffset, primorialVal)
	if err != nil {
		return err
	}

	// Primes already absorbed into the primorial are excluded from the
	// sieving table: p_# already guarantees every candidate is coprime
	// to them, and they would fail the modular-inverse coprimality
	// invariant below.
	tablePrimes := fullTable.Values()[p.PrimorialNumber:]

	modStart := time.Now()
	modTable, err := modinverse.Build(tablePrimes, primorialVal, p.ConstellationPattern)
	modGenTime := time.Since(modStart)
	if err != nil {
		return fmt.Errorf("engine: fatal init error: %w", err)
	}

	wheel := sievecore.NewWheel(primorialVal, p.ConstellationPattern, modTable, p.SieveSizeBits)

	stats := statsx.New(len(p.ConstellationPattern))
	stats.SetPrimeTableStats(fullTable.Len(), tableGenTime)
	stats.SetModInverseGenTime(modGenTime)

	e.params.SieveSizeBits = p.SieveSizeBits
	e.primeTable = fullTable
	e.primorialVal = primorialVal
	e.delta = delta
	e.modTable = modTable
	e.wheel = wheel
	e.stats = stats
	e.outputs = make(chan Output, p.OutputQueueSize)
	e.initialized = true
	return nil
}

// StartWorkers spawns the worker pool. Workers run until ctx is
// cancelled or Stop is called. It must be called after Init.
func (e *Engine) StartWorkers(ctx context.Context) error {
	e.mu.RLock()
	initialized := e.initialized
	workers := e.params.Workers
	e.mu.RUnlock()
	if !initialized {
		return fmt.Errorf("%w", ErrNotInitialized)
	}
	if workers <= 0 {
		workers = runtime.NumCPU()
	}

	ctx, cancel := context.WithCancel(ctx)
	e.cancel = cancel

	g, gctx := errgroup.WithContext(ctx)
	e.g = g

	for i := 0; i < workers; i++ {
		workerID := i
		g.Go(func() error {
			e.workerLoop(gctx, workerID)
			return nil
		})
	}

	g.Go(func() error {
		<-gctx.Done()
		e.jobMu.Lock()
		e.stopped = true
		e.jobCond.Broadcast()
		e.jobMu.Unlock()
		return nil
	})

	return nil
}

// Stop cancels the worker pool's context and waits for every worker to
// exit. Calling Stop before StartWorkers is a no-op.
func (e *Engine) Stop() {
	if e.cancel != nil {
		e.cancel()
	}
	if e.g != nil {
		e.g.Wait()
	}
}

// AddJob validates and installs j as the active job. It always replaces
// any previously active job: this engine tracks exactly one active job
// at a time, so a replacement always invalidates the old job's
// in-flight segments via an epoch bump, regardless of
// ClearPreviousJobs (which is not consulted — see DESIGN.md).
func (e *Engine) AddJob(j Job) ([]string, error) {
	e.mu.RLock()
	if !e.initialized {
		e.mu.RUnlock()
		return nil, fmt.Errorf("%w", ErrNotInitialized)
	}
	sievePattern := e.params.ConstellationPattern
	sieveBits := e.params.SieveSizeBits
	primorialVal := e.primorialVal
	delta := e.delta
	wheel := e.wheel
	e.mu.RUnlock()

	if err := validateJob(j, sievePattern); err != nil {
		return nil, err
	}

	base0 := computeBase0(j.TargetMin, primorialVal)
	base0ModDelta := computeBase0ModDelta(base0, delta, wheel)
	numSegments := numSegmentsFor(base0, j.TargetMax, primorialVal, sieveBits)
	warnings := jobWarnings(j, numSegments)

	e.jobMu.Lock()
	newEpoch := e.epoch.Load() + 1
	e.epoch.Store(newEpoch)
	e.activeJob = &jobState{
		job:           j,
		base0:         base0,
		base0ModDelta: base0ModDelta,
		numSegments:   numSegments,
		epoch:         newEpoch,
	}
	e.jobCond.Broadcast()
	e.jobMu.Unlock()

	e.searchStartOnce.Do(func() { e.stats.MarkSearchStart(time.Now()) })

	return warnings, nil
}

func validateJob(j Job, sievePattern []uint64) error {
	if len(j.Pattern) == 0 {
		return fmt.Errorf("%w: pattern must not be empty", ErrInvalidJob)
	}
	if len(j.Pattern) > len(sievePattern) {
		return fmt.Errorf("%w: pattern longer than the sieving pattern", ErrInvalidJob)
	}
	if !isOrderedSubsequence(j.Pattern, sievePattern) {
		return fmt.Errorf("%w: pattern is not a subset of the sieving pattern, in order", ErrInvalidJob)
	}
	if len(j.PatternMin) != len(j.Pattern) {
		return fmt.Errorf("%w: pattern_min length %d does not match pattern length %d", ErrInvalidJob, len(j.PatternMin), len(j.Pattern))
	}
	if j.TargetMin == nil || j.TargetMax == nil {
		return fmt.Errorf("%w: target_min and target_max are required", ErrInvalidJob)
	}
	if j.TargetMin.Cmp(j.TargetMax) > 0 {
		return fmt.Errorf("%w: target_min > target_max", ErrInvalidJob)
	}
	if j.KMin < 0 || j.KMin > len(j.Pattern) {
		return fmt.Errorf("%w: k_min=%d out of range for pattern length %d", ErrInvalidJob, j.KMin, len(j.Pattern))
	}
	return nil
}

func isOrderedSubsequence(sub, full []uint64) bool {
	i := 0
	for _, v := range full {
		if i < len(sub) && sub[i] == v {
			i++
		}
	}
	return i == len(sub)
}

func jobWarnings(j Job, numSegments uint64) []string {
	var warnings []string
	if numSegments <= 1 {
		warnings = append(warnings, "target interval spans one segment or less")
	}
	if j.KMin <= 1 {
		warnings = append(warnings, "k_min is very small; most candidates will be accepted")
	}
	return warnings
}

// computeBase0 returns the largest multiple of primorialVal that is <=
// targetMin: the aligned segment base every job's candidates are
// measured from.
func computeBase0(targetMin, primorialVal *bigint.Int) *bigint.Int {
	q := bigint.New().Quo(targetMin, primorialVal)
	return bigint.New().Mul(q, primorialVal)
}

// computeBase0ModDelta returns, for each sieving prime in wheel, (base0
// + Δ) mod prime — the residue CrossOffPrime needs once combined with
// the per-pattern-offset residues baked into the wheel.
func computeBase0ModDelta(base0, delta *bigint.Int, wheel *sievecore.Wheel) []uint64 {
	sum := bigint.New().Add(base0, delta)
	primes := wheel.Primes()
	out := make([]uint64, len(primes))
	for i, p := range primes {
		m := bigint.New().Mod(sum, bigint.FromUint64(uint64(p)))
		out[i] = m.Uint64()
	}
	return out
}

// numSegmentsFor returns how many segments of sieveBits candidates each
// are needed to cover [base0, targetMax].
func numSegmentsFor(base0, targetMax, primorialVal *bigint.Int, sieveBits uint64) uint64 {
	if targetMax.Cmp(base0) < 0 {
		return 0
	}
	span := bigint.New().Sub(targetMax, base0)
	span = bigint.New().AddUint64(span, 1)
	segmentSpan := bigint.New().Mul(primorialVal, bigint.FromUint64(sieveBits))

	q := bigint.New().Quo(span, segmentSpan)
	r := bigint.New().Mod(span, segmentSpan)
	if r.Sign() != 0 {
		q = bigint.New().AddUint64(q, 1)
	}
	return clampUint64(q)
}

func clampUint64(x *bigint.Int) uint64 {
	if x.Sign() <= 0 {
		return 0
	}
	if x.BitLen() > 63 {
		return maxUint64
	}
	return x.Uint64()
}

// candidateAt returns n = base0 + (segIdx*sieveBits + k)*p_# + Δ, the
// big integer a sieve bit at (segment segIdx, index k) represents.
func (e *Engine) candidateAt(job *jobState, segIdx, k uint64) *bigint.Int {
	idx := segIdx*e.params.SieveSizeBits + k
	term := bigint.New().Mul(bigint.FromUint64(idx), e.primorialVal)
	n := bigint.New().Add(job.base0, term)
	return bigint.New().Add(n, e.delta)
}

func (e *Engine) workerLoop(ctx context.Context, workerID int) {
	sieve, err := sievecore.New(e.params.SieveSizeBits)
	if err != nil {
		// Init already validated this; unreachable in practice.
		return
	}

	for {
		e.jobMu.Lock()
		for (e.activeJob == nil || e.activeJob.cursor >= e.activeJob.numSegments) && !e.stopped {
			e.jobCond.Wait()
		}
		if e.stopped {
			e.jobMu.Unlock()
			return
		}
		job := e.activeJob
		segIdx := job.cursor
		job.cursor++
		e.jobMu.Unlock()

		e.runSegment(ctx, job, segIdx, sieve, workerID)
	}
}

func (e *Engine) runSegment(ctx context.Context, job *jobState, segIdx uint64, sieve *sievecore.Sieve, workerID int) {
	if e.epoch.Load() != job.epoch {
		return
	}

	sieve.Reset()
	sieveStart := time.Now()
	// In a segment starting at or below the largest sieving prime, a
	// position n+o_j can equal a sieving prime itself; that value is the
	// prime, not a composite multiple of it, so it is not crossed off.
	sievePrimes := e.wheel.Primes()
	lowSegment := len(sievePrimes) > 0 &&
		e.candidateAt(job, segIdx, 0).Cmp(bigint.FromUint64(uint64(sievePrimes[len(sievePrimes)-1]))) <= 0
	for i, p := range sievePrimes {
		p64 := uint64(p)
		advance := mulmod(segIdx%p64, e.wheel.SegmentAdvance(i), p64)
		baseModP := (job.base0ModDelta[i] + advance) % p64
		for j := range e.wheel.Pattern {
			if lowSegment {
				start := e.wheel.FirstCompositeIndex(i, j, baseModP)
				if bigint.New().AddUint64(e.candidateAt(job, segIdx, start), e.wheel.Pattern[j]).IsUint64(p64) {
					sieve.CrossOff(start+p64, p64)
					continue
				}
			}
			sievecore.CrossOffPrime(sieve, e.wheel, i, j, baseModP)
		}
	}
	e.stats.AddSieveDuration(time.Since(sieveStart))

	if e.epoch.Load() != job.epoch {
		return
	}

	sieve.Emit(func(k uint64) {
		if e.epoch.Load() != job.epoch {
			return
		}
		n := e.candidateAt(job, segIdx, k)
		if n.Cmp(job.job.TargetMin) < 0 || n.Cmp(job.job.TargetMax) > 0 {
			return
		}

		testStart := time.Now()
		res := verify.Evaluate(n, job.job.Pattern, job.job.PatternMin, job.job.KMin, e.params.StrengthenFullTuples, e.params.StrengthenRounds)
		e.stats.AddTestDuration(time.Since(testStart))
		e.stats.IncCandidates(1)

		if !res.Accepted {
			return
		}
		e.stats.BumpTupleCount(res.KConsec)

		if e.epoch.Load() != job.epoch {
			return
		}

		out := Output{
			N:        n,
			Pattern:  acceptedOffsets(job.job.Pattern, res.IsPrimeJ),
			JobID:    job.job.ID,
			WorkerID: workerID,
		}
		select {
		case e.outputs <- out:
		case <-ctx.Done():
		}
	})
}

func acceptedOffsets(pattern []uint64, isPrimeJ []bool) []uint64 {
	out := make([]uint64, 0, len(pattern))
	for j, o := range pattern {
		if isPrimeJ[j] {
			out = append(out, o)
		}
	}
	return out
}

func mulmod(a, b, m uint64) uint64 {
	return (a * b) % m
}

// PopOutput removes and returns the next available output without
// blocking. The second return value is false if the queue is empty.
func (e *Engine) PopOutput() (Output, bool) {
	select {
	case o := <-e.outputs:
		return o, true
	default:
		return Output{}, false
	}
}

// Stats returns a snapshot of the engine's running counters.
func (e *Engine) Stats() Stats {
	return e.stats.Snapshot()
}

// MetricsHandler returns an http.Handler serving this engine's counters
// in the Prometheus exposition format, suitable for mounting at
// "/metrics" alongside promhttp.HandlerFor(registry, ...) the way
// other_examples/7b7dfd8c_etalazz-vsa__cmd-tfd-sim-main.go.go mounts
// promhttp.Handler() for its own counters.
func (e *Engine) MetricsHandler() http.Handler {
	return promhttp.HandlerFor(e.stats.Registry(), promhttp.HandlerOpts{})
}
