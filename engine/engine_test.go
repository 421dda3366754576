package engine

import (
	"context"
	"errors"
	"sort"
	"testing"
	"time"

	"github.com/agbru/primeconstellation/bigint"
)

// newTestEngine builds and starts an Engine with p, returning the engine
// and a cancel function that stops its workers.
func newTestEngine(t *testing.T, p Params) (*Engine, func()) {
	t.Helper()
	e := New()
	if err := e.SetParams(p); err != nil {
		t.Fatalf("SetParams: %v", err)
	}
	if err := e.Init(); err != nil {
		t.Fatalf("Init: %v", err)
	}
	ctx, cancel := context.WithCancel(context.Background())
	if err := e.StartWorkers(ctx); err != nil {
		t.Fatalf("StartWorkers: %v", err)
	}
	return e, func() {
		cancel()
		e.Stop()
	}
}

// collectOutputs polls PopOutput for up to wait, returning everything
// seen. Intended for small, fast jobs that finish well within wait.
func collectOutputs(e *Engine, wait time.Duration) []Output {
	deadline := time.Now().Add(wait)
	var outs []Output
	for time.Now().Before(deadline) {
		if o, ok := e.PopOutput(); ok {
			outs = append(outs, o)
			continue
		}
		time.Sleep(time.Millisecond)
	}
	return outs
}

func outputNStrings(outs []Output) []string {
	s := make([]string, len(outs))
	for i, o := range outs {
		s[i] = o.N.String()
	}
	sort.Strings(s)
	return s
}

func sameStringSet(a, b []string) bool {
	if len(a) != len(b) {
		return false
	}
	for i := range a {
		if a[i] != b[i] {
			return false
		}
	}
	return true
}

func twinCousinParams(pattern []uint64) Params {
	p := DefaultParams()
	p.ConstellationPattern = pattern
	p.PrimeTableLimit = 200
	p.PrimorialNumber = 1
	p.SieveSizeBits = 64
	p.Workers = 1
	p.OutputQueueSize = 256
	return p
}

// TestEngineTwinPrimes is scenario S2: pattern [0,2], k_min=2, window
// [2,100] must yield exactly the known twin-prime lower members.
func TestEngineTwinPrimes(t *testing.T) {
	e, stop := newTestEngine(t, twinCousinParams([]uint64{0, 2}))
	defer stop()

	_, err := e.AddJob(Job{
		ID:                "s2",
		ClearPreviousJobs: true,
		Pattern:           []uint64{0, 2},
		TargetMin:         bigint.FromUint64(2),
		TargetMax:         bigint.FromUint64(100),
		KMin:              2,
		PatternMin:        []bool{true, true},
	})
	if err != nil {
		t.Fatalf("AddJob: %v", err)
	}

	outs := collectOutputs(e, 500*time.Millisecond)
	got := outputNStrings(outs)
	want := []string{"11", "17", "29", "3", "41", "5", "59", "71"} // lexicographic, matches sort.Strings
	sort.Strings(want)
	if !sameStringSet(got, want) {
		t.Errorf("twin prime lowers = %v, want %v", got, want)
	}
}

// TestEngineCousinPrimes is scenario S3: pattern [0,4].
func TestEngineCousinPrimes(t *testing.T) {
	e, stop := newTestEngine(t, twinCousinParams([]uint64{0, 4}))
	defer stop()

	_, err := e.AddJob(Job{
		ID:                "s3",
		ClearPreviousJobs: true,
		Pattern:           []uint64{0, 4},
		TargetMin:         bigint.FromUint64(2),
		TargetMax:         bigint.FromUint64(100),
		KMin:              2,
		PatternMin:        []bool{true, true},
	})
	if err != nil {
		t.Fatalf("AddJob: %v", err)
	}

	outs := collectOutputs(e, 500*time.Millisecond)
	got := outputNStrings(outs)
	want := []string{"13", "19", "3", "37", "43", "67", "7", "79", "97"}
	sort.Strings(want)
	if !sameStringSet(got, want) {
		t.Errorf("cousin prime lowers = %v, want %v", got, want)
	}
}

// TestEngineSevenTupleIncludesKnownHit is a small-N analogue of
// scenario S1: n=11 is a 7-tuple hit ((11,13,17,19,23,29,31) all
// prime), which must appear among the outputs.
func TestEngineSevenTupleIncludesKnownHit(t *testing.T) {
	p := DefaultParams()
	p.ConstellationPattern = []uint64{0, 2, 6, 8, 12, 18, 20}
	p.PrimeTableLimit = 200
	p.PrimorialNumber = 3
	p.SieveSizeBits = 64
	p.Workers = 1
	p.OutputQueueSize = 256

	e, stop := newTestEngine(t, p)
	defer stop()

	_, err := e.AddJob(Job{
		ID:                "s1-small",
		ClearPreviousJobs: true,
		Pattern:           []uint64{0, 2, 6, 8, 12, 18, 20},
		TargetMin:         bigint.FromUint64(0),
		TargetMax:         bigint.FromUint64(50),
		KMin:              7,
		PatternMin:        []bool{true, true, true, true, true, true, true},
	})
	if err != nil {
		t.Fatalf("AddJob: %v", err)
	}

	outs := collectOutputs(e, 500*time.Millisecond)
	found := false
	for _, o := range outs {
		if o.N.IsUint64(11) {
			found = true
		}
		// n=7 must be excluded: 7+18=25 is composite.
		if o.N.IsUint64(7) {
			t.Errorf("n=7 should not be accepted (7+18=25 is composite)")
		}
	}
	if !found {
		t.Errorf("expected n=11 among outputs, got %v", outputNStrings(outs))
	}
}

// TestEngineJobReplacementDiscardsStaleOutputs covers P4/S5: replacing
// a job must never let an output from the replaced job's window
// through once the new job is installed.
func TestEngineJobReplacementDiscardsStaleOutputs(t *testing.T) {
	p := twinCousinParams([]uint64{0, 2})
	e, stop := newTestEngine(t, p)
	defer stop()

	j1 := Job{
		ID:                "j1",
		ClearPreviousJobs: true,
		Pattern:           []uint64{0, 2},
		TargetMin:         bigint.FromUint64(10000),
		TargetMax:         bigint.FromUint64(11000),
		KMin:              2,
		PatternMin:        []bool{true, true},
	}
	j2 := Job{
		ID:                "j2",
		ClearPreviousJobs: true,
		Pattern:           []uint64{0, 2},
		TargetMin:         bigint.FromUint64(50000),
		TargetMax:         bigint.FromUint64(51000),
		KMin:              2,
		PatternMin:        []bool{true, true},
	}

	if _, err := e.AddJob(j1); err != nil {
		t.Fatalf("AddJob(j1): %v", err)
	}
	if _, err := e.AddJob(j2); err != nil {
		t.Fatalf("AddJob(j2): %v", err)
	}

	outs := collectOutputs(e, 500*time.Millisecond)
	lo, hi := bigint.FromUint64(50000), bigint.FromUint64(51000)
	for _, o := range outs {
		if o.JobID != "j2" {
			t.Errorf("output with stale job id %q after replacement", o.JobID)
		}
		if o.N.Cmp(lo) < 0 || o.N.Cmp(hi) > 0 {
			t.Errorf("output n=%s falls outside j2's window [%s,%s]", o.N.String(), lo.String(), hi.String())
		}
	}
}

// TestEngineWorkerCountInvarianceOfOutputSet covers P5/P6: the set of
// outputs must not depend on the worker count.
func TestEngineWorkerCountInvarianceOfOutputSet(t *testing.T) {
	job := func() Job {
		return Job{
			ID:                "determinism",
			ClearPreviousJobs: true,
			Pattern:           []uint64{0, 2},
			TargetMin:         bigint.FromUint64(2),
			TargetMax:         bigint.FromUint64(500),
			KMin:              2,
			PatternMin:        []bool{true, true},
		}
	}

	run := func(workers int) []string {
		p := twinCousinParams([]uint64{0, 2})
		p.Workers = workers
		e, stop := newTestEngine(t, p)
		defer stop()
		if _, err := e.AddJob(job()); err != nil {
			t.Fatalf("AddJob: %v", err)
		}
		return outputNStrings(collectOutputs(e, 1*time.Second))
	}

	single := run(1)
	multi := run(4)
	if !sameStringSet(single, multi) {
		t.Errorf("output set differs by worker count: 1 worker = %v, 4 workers = %v", single, multi)
	}
}

// TestSetParamsRejectsAfterInit exercises ErrAlreadyInitialized.
func TestSetParamsRejectsAfterInit(t *testing.T) {
	e := New()
	p := twinCousinParams([]uint64{0, 2})
	if err := e.SetParams(p); err != nil {
		t.Fatalf("SetParams: %v", err)
	}
	if err := e.Init(); err != nil {
		t.Fatalf("Init: %v", err)
	}
	if err := e.SetParams(p); !errors.Is(err, ErrAlreadyInitialized) {
		t.Errorf("SetParams after Init err = %v, want ErrAlreadyInitialized", err)
	}
}

// TestAddJobRejectsPatternNotSubsequence exercises InvalidJob.
func TestAddJobRejectsPatternNotSubsequence(t *testing.T) {
	p := twinCousinParams([]uint64{0, 2, 6})
	// [0,2,6] has no hardcoded offset at N=1; Δ=1 keeps 1, 3 and 7 odd.
	p.PrimorialOffset = bigint.FromUint64(1)
	e, stop := newTestEngine(t, p)
	defer stop()

	_, err := e.AddJob(Job{
		ID:         "bad",
		Pattern:    []uint64{0, 8}, // 8 is not in the sieving pattern
		TargetMin:  bigint.FromUint64(2),
		TargetMax:  bigint.FromUint64(100),
		KMin:       1,
		PatternMin: []bool{true, true},
	})
	if !errors.Is(err, ErrInvalidJob) {
		t.Fatalf("AddJob err = %v, want ErrInvalidJob", err)
	}
}
