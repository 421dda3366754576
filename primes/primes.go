// Package primes builds the small-prime table the search engine sieves
// against: an ordered, deduplicated list of every prime up to a limit,
// generated once at startup and shared read-only afterwards.
package primes

import "math"

const wordBits = 64

// Table is an ascending, deduplicated list of primes.
type Table struct {
	values []uint32
}

// Values returns the table's primes in ascending order. The returned
// slice must not be modified.
func (t *Table) Values() []uint32 {
	return t.values
}

// Len returns the number of primes in the table.
func (t *Table) Len() int {
	return len(t.values)
}

// Build sieves every prime <= limit using a bit-packed sieve of
// Eratosthenes, one bit per odd candidate (2 is special-cased). limit
// must fit in 32 bits, matching the constraint that sieved primes are
// stored as uint32.
func Build(limit uint32) *Table {
	if limit < 2 {
		return &Table{}
	}

	// bit i represents the odd value 2i+1, for i in [0, nOdds).
	nOdds := (int(limit)-1)/2 + 1
	words := make([]uint64, (nOdds+wordBits-1)/wordBits)

	isComposite := func(i int) bool {
		return words[i/wordBits]&(1<<uint(i%wordBits)) != 0
	}
	setComposite := func(i int) {
		words[i/wordBits] |= 1 << uint(i%wordBits)
	}

	for i := 1; 2*i+1 <= int(limit); i++ {
		p := 2*i + 1
		if p*p > int(limit) {
			break
		}
		if isComposite(i) {
			continue
		}
		for j := (p*p - 1) / 2; j < nOdds; j += p {
			setComposite(j)
		}
	}

	values := make([]uint32, 0, estimateCount(limit))
	values = append(values, 2)
	for i := 1; i < nOdds; i++ {
		if !isComposite(i) {
			values = append(values, uint32(2*i+1))
		}
	}
	return &Table{values: values}
}

// estimateCount gives a generous upper-bound guess for the prime count
// below limit via the prime number theorem, used only to pre-size the
// result slice and avoid reallocations during Build.
func estimateCount(limit uint32) int {
	if limit < 2 {
		return 0
	}
	f := float64(limit)
	return int(f/math.Log(f)*1.2) + 10
}
