// Package bigint is a thin facade over math/big.Int, restricted to the
// handful of operations the search engine needs: add, sub, mul, mod,
// modular inverse, modular exponentiation, gcd, bit inspection and
// conversion to/from machine words. Every other package in this module
// talks to big integers only through this facade, so the concrete
// arbitrary-precision library stays swappable behind one seam.
package bigint

import "math/big"

// Int is an arbitrary-precision integer.
type Int struct {
	v big.Int
}

// New returns a new Int set to zero.
func New() *Int {
	return &Int{}
}

// FromUint64 returns a new Int set to x.
func FromUint64(x uint64) *Int {
	z := New()
	z.v.SetUint64(x)
	return z
}

// FromBytes returns a new Int set to the big-endian unsigned value in b.
func FromBytes(b []byte) *Int {
	z := New()
	z.v.SetBytes(b)
	return z
}

// FromString parses s in the given base (0 means auto-detect a prefix,
// same as math/big.Int.SetString) and reports whether parsing succeeded.
func FromString(s string, base int) (*Int, bool) {
	z := New()
	_, ok := z.v.SetString(s, base)
	return z, ok
}

// Clone returns an independent copy of z.
func (z *Int) Clone() *Int {
	c := New()
	c.v.Set(&z.v)
	return c
}

// SetUint64 sets z to x and returns z.
func (z *Int) SetUint64(x uint64) *Int {
	z.v.SetUint64(x)
	return z
}

// Add sets z = x + y and returns z.
func (z *Int) Add(x, y *Int) *Int {
	z.v.Add(&x.v, &y.v)
	return z
}

// AddUint64 sets z = x + y and returns z.
func (z *Int) AddUint64(x *Int, y uint64) *Int {
	z.v.Add(&x.v, new(big.Int).SetUint64(y))
	return z
}

// Sub sets z = x - y and returns z.
func (z *Int) Sub(x, y *Int) *Int {
	z.v.Sub(&x.v, &y.v)
	return z
}

// SubUint64 sets z = x - y and returns z.
func (z *Int) SubUint64(x *Int, y uint64) *Int {
	z.v.Sub(&x.v, new(big.Int).SetUint64(y))
	return z
}

// Mul sets z = x * y and returns z.
func (z *Int) Mul(x, y *Int) *Int {
	z.v.Mul(&x.v, &y.v)
	return z
}

// Mod sets z = x mod m (Euclidean modulus, 0 <= z < |m|) and returns z.
func (z *Int) Mod(x, m *Int) *Int {
	z.v.Mod(&x.v, &m.v)
	return z
}

// Quo sets z = x / m (truncated toward zero) and returns z.
func (z *Int) Quo(x, m *Int) *Int {
	z.v.Quo(&x.v, &m.v)
	return z
}

// ModInverse sets z = g^-1 mod n and reports whether an inverse exists
// (it does iff gcd(g, n) == 1).
func (z *Int) ModInverse(g, n *Int) bool {
	r := z.v.ModInverse(&g.v, &n.v)
	return r != nil
}

// Exp sets z = x^y mod m (or x^y if m is nil) and returns z.
func (z *Int) Exp(x, y, m *Int) *Int {
	if m == nil {
		z.v.Exp(&x.v, &y.v, nil)
	} else {
		z.v.Exp(&x.v, &y.v, &m.v)
	}
	return z
}

// GCD sets z = gcd(x, y) (x, y > 0) and returns z.
func (z *Int) GCD(x, y *Int) *Int {
	z.v.GCD(nil, nil, &x.v, &y.v)
	return z
}

// BitLen returns the length of the absolute value of z in bits.
func (z *Int) BitLen() int {
	return z.v.BitLen()
}

// Bit returns the value of the i'th bit of z.
func (z *Int) Bit(i int) uint {
	return z.v.Bit(i)
}

// Sign returns -1, 0 or +1 depending on whether z is negative, zero or
// positive.
func (z *Int) Sign() int {
	return z.v.Sign()
}

// Cmp compares z and x and returns -1, 0 or +1.
func (z *Int) Cmp(x *Int) int {
	return z.v.Cmp(&x.v)
}

// IsUint64 reports whether z equals x.
func (z *Int) IsUint64(x uint64) bool {
	return z.v.IsUint64() && z.v.Uint64() == x
}

// Uint64 returns the uint64 representation of z. The result is
// undefined if z cannot be represented in a uint64.
func (z *Int) Uint64() uint64 {
	return z.v.Uint64()
}

// Bytes returns the big-endian unsigned byte representation of z.
func (z *Int) Bytes() []byte {
	return z.v.Bytes()
}

// String returns the base-10 representation of z.
func (z *Int) String() string {
	return z.v.String()
}

// ProbablyPrime reports whether z is probably prime, applying n
// Miller-Rabin rounds in addition to a Baillie-PSW test, exactly as
// math/big.Int.ProbablyPrime does.
func (z *Int) ProbablyPrime(n int) bool {
	return z.v.ProbablyPrime(n)
}
