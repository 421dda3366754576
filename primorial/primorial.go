// Package primorial computes the primorial of the first N small primes
// and resolves the primorial offset Δ a sieving pattern needs: the
// residue that keeps every constellation position coprime to the
// primorial.
package primorial

import (
	"errors"
	"fmt"
	"strconv"
	"strings"

	"github.com/agbru/primeconstellation/bigint"
)

// ErrNotEnoughPrimes is returned when Compute is given no primes.
var ErrNotEnoughPrimes = errors.New("primorial: at least one prime is required")

// ErrNoHardcodedOffset is returned by ResolveOffset when no offset was
// supplied and the pattern has no entry in the hardcoded table.
var ErrNoHardcodedOffset = errors.New("primorial: no hardcoded offset for this pattern")

// ErrOffsetNotCoprime is returned when a supplied or hardcoded offset
// fails the coprimality invariant.
var ErrOffsetNotCoprime = errors.New("primorial: offset is not coprime to the primorial")

// Compute multiplies primorialPrimes together: p_#(N) = primorialPrimes[0]
// * primorialPrimes[1] * ... * primorialPrimes[N-1].
func Compute(primorialPrimes []uint32) (*bigint.Int, error) {
	if len(primorialPrimes) == 0 {
		return nil, ErrNotEnoughPrimes
	}
	p := bigint.FromUint64(1)
	for _, prime := range primorialPrimes {
		p.Mul(p, bigint.FromUint64(uint64(prime)))
	}
	return p, nil
}

// hardcodedOffsets maps a pattern+primorial-number key (see patternKey)
// to a known-good Δ. Δ only satisfies the coprimality invariant for one
// specific primorial, so the table is keyed on both the pattern and N
// rather than the pattern alone. Each entry below was found by hand via
// CRT over the primes making up a small primorial (N=1 or N=3) and
// double-checked offset by offset, which keeps this table honest at the
// cost of only covering small, demonstration-scale primorials: the twin
// and cousin patterns at N=1 (p_# = 2), and the 6-, 7- and 8-tuples at
// N=3 (p_# = 30). Callers using a larger primorial_number (the default
// is 120) must supply primorial_offset explicitly; see ResolveOffset.
var hardcodedOffsets = map[string]string{
	offsetKey([]uint64{0, 2}, 1):                        "1",
	offsetKey([]uint64{0, 4}, 1):                        "1",
	offsetKey([]uint64{0, 4, 6, 10, 12, 16}, 3):          "7",
	offsetKey([]uint64{0, 2, 6, 8, 12, 18, 20}, 3):       "11",
	offsetKey([]uint64{0, 2, 6, 8, 12, 18, 20, 26}, 3):   "11",
	offsetKey([]uint64{0, 2, 6, 12, 14, 20, 24, 26}, 3):  "17",
}

func patternKey(pattern []uint64) string {
	parts := make([]string, len(pattern))
	for i, o := range pattern {
		parts[i] = strconv.FormatUint(o, 10)
	}
	return strings.Join(parts, ",")
}

func offsetKey(pattern []uint64, primorialNumber int) string {
	return patternKey(pattern) + "|" + strconv.Itoa(primorialNumber)
}

// ResolveOffset returns the primorial offset Δ to use for pattern against
// a primorial built from primorialNumber primes. If requested is non-nil
// and non-zero, it is validated and returned as-is; otherwise the
// hardcoded table is consulted for the (pattern, primorialNumber) pair.
func ResolveOffset(pattern []uint64, primorialNumber int, requested *bigint.Int, primorialVal *bigint.Int) (*bigint.Int, error) {
	if requested != nil && requested.Sign() != 0 {
		if err := validateOffset(pattern, requested, primorialVal); err != nil {
			return nil, err
		}
		return requested.Clone(), nil
	}

	key := offsetKey(pattern, primorialNumber)
	raw, ok := hardcodedOffsets[key]
	if !ok {
		return nil, fmt.Errorf("%w: pattern %s, primorial_number %d", ErrNoHardcodedOffset, patternKey(pattern), primorialNumber)
	}
	delta, ok := bigint.FromString(raw, 10)
	if !ok {
		return nil, fmt.Errorf("primorial: malformed hardcoded offset for pattern %s", key)
	}
	if err := validateOffset(pattern, delta, primorialVal); err != nil {
		return nil, err
	}
	return delta, nil
}

// validateOffset checks gcd(Δ+o_i, p_#) = 1 for every pattern offset.
func validateOffset(pattern []uint64, delta, primorialVal *bigint.Int) error {
	for _, o := range pattern {
		cand := bigint.New().Add(delta, bigint.FromUint64(o))
		g := bigint.New().GCD(abs(cand), primorialVal)
		if !g.IsUint64(1) {
			return fmt.Errorf("%w: offset %d, gcd=%s", ErrOffsetNotCoprime, o, g.String())
		}
	}
	return nil
}

// abs returns |x|; GCD requires non-negative operands and Δ+o_i is
// always non-negative for the offsets this package is given, but this
// guards against a negative Δ supplied by a caller.
func abs(x *bigint.Int) *bigint.Int {
	if x.Sign() < 0 {
		return bigint.New().Sub(bigint.FromUint64(0), x)
	}
	return x
}
