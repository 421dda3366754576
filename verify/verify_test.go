package verify

import (
	"testing"

	"github.com/agbru/primeconstellation/bigint"
)

func TestEvaluateTwinPrimes(t *testing.T) {
	// n=3: 3 and 5 are both prime -> accepted twin (kMin=2).
	n := bigint.FromUint64(3)
	pattern := []uint64{0, 2}
	res := Evaluate(n, pattern, []bool{true, true}, 2, false, 0)
	if !res.Accepted {
		t.Fatalf("Evaluate(3, [0,2]) not accepted: %+v", res)
	}
	if res.KConsec != 2 {
		t.Errorf("KConsec = %d, want 2", res.KConsec)
	}
}

func TestEvaluateRejectsNonPrimeRequiredPosition(t *testing.T) {
	// n=8: 8 is not prime, and position 0 is required.
	n := bigint.FromUint64(8)
	pattern := []uint64{0, 2}
	res := Evaluate(n, pattern, []bool{true, true}, 2, false, 0)
	if res.Accepted {
		t.Fatalf("Evaluate(8, [0,2]) should not be accepted")
	}
	if res.IsPrimeJ[0] {
		t.Errorf("expected position 0 (8) to fail the Fermat test")
	}
}

func TestEvaluatePartialTupleBelowKMin(t *testing.T) {
	// n=5: 5 is prime, 5+2=7 is prime, 5+6=11 is prime, 5+8=13 is prime,
	// 5+12=17 is prime, but 5+18=23 is prime and 5+20=25 is NOT prime.
	// With kMin=7 this tuple cannot be accepted (25 fails, breaking the
	// run of 6 at position 6 before reaching 7).
	n := bigint.FromUint64(5)
	pattern := []uint64{0, 2, 6, 8, 12, 18, 20}
	res := Evaluate(n, pattern, nil, 7, false, 0)
	if res.Accepted {
		t.Fatalf("Evaluate should not accept a run of 6 against kMin=7")
	}
	if res.KConsec != 6 {
		t.Errorf("KConsec = %d, want 6", res.KConsec)
	}
}

func TestEvaluateAcceptsWithoutPatternMin(t *testing.T) {
	// Same tuple as above but kMin=6 (matches the actual run length).
	n := bigint.FromUint64(5)
	pattern := []uint64{0, 2, 6, 8, 12, 18, 20}
	res := Evaluate(n, pattern, nil, 6, false, 0)
	if !res.Accepted {
		t.Fatalf("Evaluate should accept a run of 6 against kMin=6: %+v", res)
	}
}

func TestEvaluateShortCircuitsOnImpossibleKMin(t *testing.T) {
	// n=9: 9 is not prime, no patternMin requirement, but kMin=2 with
	// only two positions means failing position 0 makes kMin
	// unreachable; Evaluate must stop instead of testing position 1.
	n := bigint.FromUint64(9)
	pattern := []uint64{0, 2}
	res := Evaluate(n, pattern, nil, 2, false, 0)
	if res.Accepted {
		t.Fatal("Evaluate should not accept")
	}
	if res.IsPrimeJ[1] {
		t.Error("position 1 should not have been marked true after short-circuit")
	}
}

func TestEvaluateStrengthenRejectsFermatFalsePositive(t *testing.T) {
	// 341 = 11*31 is the smallest Fermat base-2 pseudoprime: it passes
	// fermatBase2 but is not actually prime, so ProbablyPrime must
	// reject it when strengthening is enabled.
	n := bigint.FromUint64(341)
	pattern := []uint64{0}
	if !fermatBase2(n) {
		t.Fatal("341 is expected to pass the base-2 Fermat test (known pseudoprime)")
	}
	res := Evaluate(n, pattern, nil, 1, true, 20)
	if res.Accepted {
		t.Error("strengthened Evaluate should reject 341 as composite")
	}
}

func TestFermatBase2SmallCases(t *testing.T) {
	testCases := []struct {
		n    uint64
		want bool
	}{
		{0, false},
		{1, false},
		{2, true},
		{3, true},
		{4, false},
		{9, false},
		{11, true},
		{97, true},
	}
	for _, tc := range testCases {
		got := fermatBase2(bigint.FromUint64(tc.n))
		if got != tc.want {
			t.Errorf("fermatBase2(%d) = %v, want %v", tc.n, got, tc.want)
		}
	}
}
