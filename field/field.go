// Package field abstracts the prime field an AIR is defined over.
//
// The constraint-system core never performs field arithmetic itself: it is
// generic over any type implementing [Element]. Concrete instantiations wrap
// the 31-bit STARK-friendly fields of gnark-crypto (see the babybear and
// koalabear sub-packages, generated by internal/generator).
package field

import "fmt"

// Element is a value of a prime field. Implementations use value receivers
// and return new values; no operation mutates its operands.
//
// The type parameter is the implementing type itself ("F Element[F]"), so
// that arithmetic stays fully typed without boxing.
type Element[F any] interface {
	fmt.Stringer
	// Add returns x + y.
	Add(y F) F
	// Sub returns x - y.
	Sub(y F) F
	// Mul returns x * y.
	Mul(y F) F
	// Neg returns -x.
	Neg() F
	// Inverse returns x⁻¹, or 0 if x = 0. The zero convention is what the
	// equality gadgets rely on; see cs.EqualsTo.
	Inverse() F
	// IsZero reports whether x = 0.
	IsZero() bool
	// IsOne reports whether x = 1.
	IsOne() bool
	// Equal reports whether x = y.
	Equal(y F) bool
	// Cmp compares canonical (reduced) representations: 1 if x > y, 0 if
	// x = y, -1 if x < y.
	Cmp(y F) int
	// Uint64 returns the canonical representation. All supported fields are
	// 31-bit, so the value always fits.
	Uint64() uint64
	// SetUint64 returns the field element for v (reduced).
	SetUint64(v uint64) F
	// Bytes returns the fixed-width big-endian canonical encoding.
	Bytes() []byte
	// SetBytes returns the element decoded from a big-endian encoding.
	SetBytes(b []byte) F
	// Modulus returns the field characteristic.
	Modulus() uint64
}

// Zero returns the additive identity of F.
func Zero[F Element[F]]() F {
	var z F
	return z.SetUint64(0)
}

// One returns the multiplicative identity of F.
func One[F Element[F]]() F {
	var z F
	return z.SetUint64(1)
}

// MinusOne returns -1, i.e. the largest canonical element.
func MinusOne[F Element[F]]() F {
	return One[F]().Neg()
}

// Uint64 returns the field element for v.
func Uint64[F Element[F]](v uint64) F {
	var z F
	return z.SetUint64(v)
}

// TwoPowN returns 2^n. Panics if 2^n is not canonical in F, which would
// silently alias a smaller value and corrupt limb arithmetic.
func TwoPowN[F Element[F]](n uint) F {
	var z F
	if n >= 63 || uint64(1)<<n >= z.Modulus() {
		panic(fmt.Sprintf("2^%d exceeds field modulus", n))
	}
	return z.SetUint64(uint64(1) << n)
}
