package statsx

import (
	"sync"
	"testing"
	"time"
)

func TestCountersAccumulate(t *testing.T) {
	c := New(3)
	c.IncCandidates(5)
	c.IncCandidates(7)
	c.AddSieveDuration(10 * time.Millisecond)
	c.AddTestDuration(2 * time.Millisecond)
	c.BumpTupleCount(1)
	c.BumpTupleCount(1)
	c.BumpTupleCount(3)

	snap := c.Snapshot()
	if snap.CandidatesGenerated != 12 {
		t.Errorf("CandidatesGenerated = %d, want 12", snap.CandidatesGenerated)
	}
	if snap.SievingDuration != 10*time.Millisecond {
		t.Errorf("SievingDuration = %v, want 10ms", snap.SievingDuration)
	}
	if snap.TestingDuration != 2*time.Millisecond {
		t.Errorf("TestingDuration = %v, want 2ms", snap.TestingDuration)
	}
	if len(snap.TupleCounts) != 3 {
		t.Fatalf("len(TupleCounts) = %d, want 3", len(snap.TupleCounts))
	}
	if snap.TupleCounts[0] != 2 || snap.TupleCounts[1] != 0 || snap.TupleCounts[2] != 1 {
		t.Errorf("TupleCounts = %v, want [2 0 1]", snap.TupleCounts)
	}
}

func TestBumpTupleCountIgnoresOutOfRange(t *testing.T) {
	c := New(2)
	c.BumpTupleCount(0)
	c.BumpTupleCount(3)
	snap := c.Snapshot()
	if snap.TupleCounts[0] != 0 || snap.TupleCounts[1] != 0 {
		t.Errorf("TupleCounts = %v, want [0 0]", snap.TupleCounts)
	}
}

func TestCountersConcurrentUpdates(t *testing.T) {
	c := New(1)
	const goroutines = 50
	const perGoroutine = 100

	var wg sync.WaitGroup
	wg.Add(goroutines)
	for i := 0; i < goroutines; i++ {
		go func() {
			defer wg.Done()
			for j := 0; j < perGoroutine; j++ {
				c.IncCandidates(1)
				c.BumpTupleCount(1)
			}
		}()
	}
	wg.Wait()

	snap := c.Snapshot()
	want := uint64(goroutines * perGoroutine)
	if snap.CandidatesGenerated != want {
		t.Errorf("CandidatesGenerated = %d, want %d", snap.CandidatesGenerated, want)
	}
	if snap.TupleCounts[0] != want {
		t.Errorf("TupleCounts[0] = %d, want %d", snap.TupleCounts[0], want)
	}
}
