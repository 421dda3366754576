// Package verify runs the primality checks the engine applies to a
// sieve candidate once it survives sieving: a fast Fermat base-2 test
// at every pattern position, with an optional Miller-Rabin strengthening
// pass (via math/big's own battery) for candidates that pass every
// position in the pattern, matching the teacher's two-tier "cheap
// screen, then a slower confirm" test selection.
package verify

import "github.com/agbru/primeconstellation/bigint"

// Result records the outcome of evaluating one candidate.
type Result struct {
	// IsPrimeJ[j] reports whether n+pattern[j] passed its primality
	// check. Evaluation may short-circuit, leaving trailing entries
	// false even though they were never tested.
	IsPrimeJ []bool

	// KConsec is the length of the longest run of consecutive true
	// entries in IsPrimeJ starting at index 0.
	KConsec int

	// Accepted reports whether KConsec >= the caller's kMin and every
	// position required by patternMin passed.
	Accepted bool
}

// Evaluate tests n+pattern[j] for each j in order, stopping as soon as
// the answer is already decided: either a required position
// (patternMin[j] == true) fails, or the remaining untested positions
// can no longer let the run reach kMin.
//
// When strengthen is true and every position in the pattern passes the
// Fermat screen, each position is re-tested with
// bigint.Int.ProbablyPrime(strengthenRounds) before Accepted is set,
// matching the teacher's preference for a second, more expensive check
// on the rare fully-passing candidate instead of paying that cost for
// every candidate.
func Evaluate(n *bigint.Int, pattern []uint64, patternMin []bool, kMin int, strengthen bool, strengthenRounds int) Result {
	res := Result{IsPrimeJ: make([]bool, len(pattern))}

	for j, offset := range pattern {
		candidate := bigint.New().AddUint64(n, offset)
		ok := fermatBase2(candidate)
		res.IsPrimeJ[j] = ok

		if !ok {
			if j < len(patternMin) && patternMin[j] {
				return res
			}
		}

		res.KConsec = consecutivePrefixLen(res.IsPrimeJ)
		if !canReachKMin(res.IsPrimeJ, j, kMin) {
			return res
		}
	}

	res.KConsec = consecutivePrefixLen(res.IsPrimeJ)
	if res.KConsec < kMin {
		return res
	}
	for j, required := range patternMin {
		if required && !res.IsPrimeJ[j] {
			return res
		}
	}

	if strengthen && res.KConsec == len(pattern) {
		for j, offset := range pattern {
			candidate := bigint.New().AddUint64(n, offset)
			if !candidate.ProbablyPrime(strengthenRounds) {
				res.IsPrimeJ[j] = false
				res.Accepted = false
				return res
			}
		}
	}

	res.Accepted = true
	return res
}

// consecutivePrefixLen returns the number of leading true entries.
func consecutivePrefixLen(passed []bool) int {
	n := 0
	for _, ok := range passed {
		if !ok {
			break
		}
		n++
	}
	return n
}

// canReachKMin reports whether, given the positions tested so far
// (indices 0..upTo inclusive), the prefix of true values could still
// reach length kMin once the remaining positions are tested. Since
// Evaluate only tests in order and a prefix run ends at the first
// failure, the prefix can only grow if every position tested so far
// has passed; once one fails, the final prefix length is fixed.
func canReachKMin(passed []bool, upTo, kMin int) bool {
	prefix := consecutivePrefixLen(passed)
	if prefix == upTo+1 {
		// No failure yet: the run could still extend through the rest
		// of the pattern.
		return prefix+(len(passed)-upTo-1) >= kMin
	}
	// A failure has already broken the prefix; it cannot grow further.
	return prefix >= kMin
}

// fermatBase2 reports whether m passes a base-2 Fermat test: 2^(m-1) ==
// 1 (mod m). This is the cheap screen every sieve survivor is run
// through before the engine reports it as a hit.
func fermatBase2(m *bigint.Int) bool {
	if m.Sign() <= 0 || m.IsUint64(1) {
		return false
	}
	if m.IsUint64(2) {
		return true
	}
	if m.Bit(0) == 0 {
		return false
	}
	exponent := bigint.New().SubUint64(m, 1)
	result := bigint.New().Exp(bigint.FromUint64(2), exponent, m)
	return result.IsUint64(1)
}
