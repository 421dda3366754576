// Package modinverse precomputes, for every prime in the sieving table,
// the modular inverse of the primorial and the residues a pattern's
// offsets land on modulo that prime. The sieve uses these once at
// startup to turn "cross off every multiple of p that lands on a
// constellation position" into cheap per-segment modular arithmetic.
package modinverse

import (
	"errors"
	"fmt"

	"github.com/agbru/primeconstellation/bigint"
)

// ErrNotCoprime is returned by Build when one of the sieving primes
// divides the primorial, so no modular inverse exists. This is a fatal
// configuration error: it means the prime table and the primorial were
// built inconsistently (the sieving primes must all be larger than the
// primes that went into the primorial).
var ErrNotCoprime = errors.New("modinverse: prime is not coprime to the primorial")

// Entry holds the precomputed data for one sieving prime.
type Entry struct {
	// Prime is the sieving prime this entry applies to.
	Prime uint32

	// Inv is (p_#)^-1 mod Prime, i.e. the value such that
	// (p_# * Inv) mod Prime == 1.
	Inv uint64

	// OffsetMod holds, for each pattern offset o_j, (o_j mod Prime).
	// Indexed the same as the pattern slice Build was called with.
	OffsetMod []uint64
}

// Table is an ordered list of Entry, one per sieving prime, in the same
// order as the prime table it was built from.
type Table struct {
	Entries []Entry
}

// Build computes one Entry per prime in tablePrimes. primorialVal is
// p_#(N); pattern is the constellation pattern in use. Build fails with
// ErrNotCoprime if any sieving prime divides the primorial — which
// would mean the sieving range overlaps the primes baked into the
// primorial, an invariant the caller is responsible for avoiding by
// choosing PrimeTableLimit and PrimorialNumber consistently.
func Build(tablePrimes []uint32, primorialVal *bigint.Int, pattern []uint64) (*Table, error) {
	entries := make([]Entry, 0, len(tablePrimes))
	for _, p := range tablePrimes {
		pMod := bigint.FromUint64(uint64(p))
		inv := bigint.New()
		if !inv.ModInverse(primorialVal, pMod) {
			return nil, fmt.Errorf("%w: prime %d", ErrNotCoprime, p)
		}

		offsetMod := make([]uint64, len(pattern))
		for i, o := range pattern {
			offsetMod[i] = o % uint64(p)
		}

		entries = append(entries, Entry{
			Prime:     p,
			Inv:       inv.Uint64(),
			OffsetMod: offsetMod,
		})
	}
	return &Table{Entries: entries}, nil
}
