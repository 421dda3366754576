// Package sievecore implements the bit-array sieve segment and the
// modular "wheel" data a job reuses across every segment it sieves:
// per-prime step sizes derived once from the primorial and the segment
// width, so crossing off composite candidates in a segment never needs
// big-integer arithmetic.
package sievecore

import (
	"errors"
	"math/bits"

	"github.com/agbru/primeconstellation/bigint"
	"github.com/agbru/primeconstellation/modinverse"
)

// ErrInvalidSieveSize is returned by New when bits rounds down to zero
// words, which would make the sieve unusable.
var ErrInvalidSieveSize = errors.New("sievecore: sieve size must be at least one word wide")

const wordBits = 64

// Sieve is a fixed-width bit array, one bit per candidate index in a
// segment. A cleared bit means "still a candidate"; a set bit means
// "known composite". This mirrors a standard sieve of Eratosthenes bit
// array, generalized from primes/Table's odd-only packing to an
// arbitrary per-segment index space since a segment's candidates are
// not consecutive integers but a fixed stride.
type Sieve struct {
	words []uint64
	bits  uint64
}

// New allocates a Sieve of n bits rounded down to a whole word (64 bits):
// a requested size that doesn't even reach one full word fails with
// ErrInvalidSieveSize rather than silently sieving zero candidates.
func New(n uint64) (*Sieve, error) {
	nWords := n / wordBits
	if nWords == 0 {
		return nil, ErrInvalidSieveSize
	}
	return &Sieve{
		words: make([]uint64, nWords),
		bits:  nWords * wordBits,
	}, nil
}

// Len returns the number of candidate bits the sieve holds.
func (s *Sieve) Len() uint64 {
	return s.bits
}

// Reset clears every bit back to "candidate".
func (s *Sieve) Reset() {
	for i := range s.words {
		s.words[i] = 0
	}
}

// Clear marks index k as composite.
func (s *Sieve) Clear(k uint64) {
	s.words[k/wordBits] |= 1 << (k % wordBits)
}

// Test reports whether index k is still a candidate (bit not set).
func (s *Sieve) Test(k uint64) bool {
	return s.words[k/wordBits]&(1<<(k%wordBits)) == 0
}

// CrossOff marks every index of the form start, start+p, start+2p, ...
// that falls within the sieve as composite.
func (s *Sieve) CrossOff(start, p uint64) {
	for k := start; k < s.bits; k += p {
		s.Clear(k)
	}
}

// Emit calls f once for every index still marked as a candidate, in
// ascending order, using bits.TrailingZeros64 to skip directly to the
// next set bit within a word instead of testing bit by bit.
func (s *Sieve) Emit(f func(k uint64)) {
	for wi, w := range s.words {
		// Remaining candidates are the zero bits of w; flip to scan them
		// as set bits with TrailingZeros64.
		remaining := ^w
		base := uint64(wi) * wordBits
		for remaining != 0 {
			tz := bits.TrailingZeros64(remaining)
			k := base + uint64(tz)
			if k >= s.bits {
				break
			}
			f(k)
			remaining &= remaining - 1
		}
	}
}

// Wheel holds the job-independent modular data needed to cross off a
// sieving prime's multiples in any segment without touching big
// integers: for each sieving prime p and each pattern offset o_j, the
// step (in sieve-index units) between consecutive composite indices,
// plus a method to fold in a job's starting position.
type Wheel struct {
	Pattern []uint64

	primes []uint32
	// stepMod[i] is ((p_# mod prime[i]) * (sieveBits mod prime[i])) mod
	// prime[i]: how much the residue a candidate lands on shifts when
	// moving from one segment to the next segment of the same job.
	stepMod []uint64
	// invMod[i] is (p_#)^-1 mod prime[i] and offsetMod[i][j] is o_j mod
	// prime[i], copied from the modinverse table, so that, given a job's
	// base residue mod prime[i], FirstCompositeIndex can compute the
	// first composite sieve index directly. See FirstCompositeIndex for
	// the exact derivation.
	invMod    []uint64
	offsetMod [][]uint64
}

// NewWheel derives the per-prime stepping data used by every job that
// shares this primorial, offset and pattern. sieveBits is the number of
// candidate slots per segment (Params.SieveSizeBits).
func NewWheel(primorialVal *bigint.Int, pattern []uint64, table *modinverse.Table, sieveBits uint64) *Wheel {
	n := len(table.Entries)
	w := &Wheel{
		Pattern:   pattern,
		primes:    make([]uint32, n),
		stepMod:   make([]uint64, n),
		invMod:    make([]uint64, n),
		offsetMod: make([][]uint64, n),
	}
	for i, e := range table.Entries {
		p64 := uint64(e.Prime)
		primorialMod := bigint.New().Mod(primorialVal, bigint.FromUint64(p64)).Uint64()
		w.primes[i] = e.Prime
		w.invMod[i] = e.Inv
		w.offsetMod[i] = e.OffsetMod
		w.stepMod[i] = mulmod(primorialMod, sieveBits%p64, p64)
	}
	return w
}

// Primes returns the sieving primes this wheel was built for, in the
// same order as the modular data below.
func (w *Wheel) Primes() []uint32 {
	return w.primes
}

// FirstCompositeIndex returns the first sieve index k in a segment
// (0 <= k < prime[i], which may exceed the segment width) such that
// base0 + k*p_# + o_j is a multiple of prime[i], i.e. the index
// CrossOff should start stepping from
// for (prime i, pattern position j) in a segment whose first candidate
// corresponds to residue base0Mod (the job's starting value mod
// prime[i], already advanced to the current segment by the caller).
//
// Given candidate value V(k) = base0 + k*primorialVal, the position
// V(k)+o_j is divisible by prime[i] when
//
//	(base0Mod + k*(p_# mod prime[i]) + o_j) mod prime[i] == 0
//
// Solving for k using the precomputed inverse of p_# mod prime[i]:
//
//	k = ((-(base0Mod+o_j)) * Inv[i]) mod prime[i]
func (w *Wheel) FirstCompositeIndex(i, j int, base0Mod uint64) uint64 {
	p := uint64(w.primes[i])
	sum := (base0Mod + w.offsetMod[i][j]) % p
	neg := (p - sum) % p
	return mulmod(neg, w.invMod[i], p)
}

// Step returns the sieve-index stride between consecutive composite
// indices for sieving prime i: since V(k+prime[i]) - V(k) =
// prime[i]*p_#, which is divisible by prime[i], the stride is exactly
// prime[i] itself.
func (w *Wheel) Step(i int) uint64 {
	return uint64(w.primes[i])
}

// SegmentAdvance returns how much a residue mod prime[i] shifts when
// moving from one segment to the next of the same width (stepMod[i]).
func (w *Wheel) SegmentAdvance(i int) uint64 {
	return w.stepMod[i]
}

func mulmod(a, b, m uint64) uint64 {
	return uint64((uint64(a) * uint64(b)) % m)
}

// CrossOffPrime marks, in sieve, every index where candidate+o_j is
// divisible by sieving prime i, for the given per-segment base residue.
func CrossOffPrime(sieve *Sieve, w *Wheel, i, j int, base0Mod uint64) {
	p := w.Step(i)
	if p == 0 {
		return
	}
	start := w.FirstCompositeIndex(i, j, base0Mod)
	sieve.CrossOff(start, p)
}
