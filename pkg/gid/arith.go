package gid

import (
	"encoding/binary"

	"github.com/zeebo/xxh3"
)

// Arithmetic treats the 128-bit value as a big-endian unsigned integer
// over the addressable portion only: the lsb word plus the non-special
// bits of the msb. Locality, credit, lock and component type bits never
// propagate through a carry; the result takes them from the left operand.
// GIDs are used as keys in interval containers, so addition has to behave
// like ordinary integer addition on the addressable bits and wrap on
// overflow.

// Add returns a + b.
func Add(a, b GID) GID {
	amsb, bmsb := a.MSB(), b.MSB()

	lsb := a.lsb + b.lsb
	var carry uint64
	if lsb < a.lsb {
		carry = 1
	}

	msb := (amsb &^ specialBitsMask) + (bmsb &^ specialBitsMask) + carry
	msb = (msb &^ specialBitsMask) | (amsb & specialBitsMask)

	return GID{msb: msb, lsb: lsb}
}

// AddUint64 returns g + n.
func AddUint64(g GID, n uint64) GID {
	return Add(g, FromLSB(n))
}

// Sub returns a - b.
func Sub(a, b GID) GID {
	amsb, bmsb := a.MSB(), b.MSB()

	lsb := a.lsb - b.lsb
	var borrow uint64
	if a.lsb < b.lsb {
		borrow = 1
	}

	msb := (amsb &^ specialBitsMask) - (bmsb &^ specialBitsMask) - borrow
	msb = (msb &^ specialBitsMask) | (amsb & specialBitsMask)

	return GID{msb: msb, lsb: lsb}
}

// SubUint64 returns g - n.
func SubUint64(g GID, n uint64) GID {
	return Sub(g, FromLSB(n))
}

// AddAssign is g += rhs.
func (g *GID) AddAssign(rhs GID) {
	*g = Add(*g, rhs)
}

// SubAssign is g -= rhs.
func (g *GID) SubAssign(rhs GID) {
	*g = Sub(*g, rhs)
}

// Inc is g += 1.
func (g *GID) Inc() {
	*g = AddUint64(*g, 1)
}

// Dec is g -= 1.
func (g *GID) Dec() {
	*g = SubUint64(*g, 1)
}

// And masks the lsb word only.
func And(g GID, mask uint64) GID {
	return GID{msb: g.MSB(), lsb: g.lsb & mask}
}

// Equal compares the stripped forms: GIDs differing only in internal bits
// name the same object.
func Equal(a, b GID) bool {
	return StripInternalBitsFromMSB(a.MSB()) == StripInternalBitsFromMSB(b.MSB()) &&
		a.lsb == b.lsb
}

// Less orders by (stripped msb, lsb) lexicographically.
func Less(a, b GID) bool {
	amsb := StripInternalBitsFromMSB(a.MSB())
	bmsb := StripInternalBitsFromMSB(b.MSB())
	if amsb != bmsb {
		return amsb < bmsb
	}
	return a.lsb < b.lsb
}

func LessEqual(a, b GID) bool {
	amsb := StripInternalBitsFromMSB(a.MSB())
	bmsb := StripInternalBitsFromMSB(b.MSB())
	if amsb != bmsb {
		return amsb < bmsb
	}
	return a.lsb <= b.lsb
}

// Compare returns -1, 0 or +1 ordering a against b.
func Compare(a, b GID) int {
	switch {
	case Less(a, b):
		return -1
	case Less(b, a):
		return 1
	default:
		return 0
	}
}

func hashUint64(v uint64) uint64 {
	var buf [8]byte
	binary.LittleEndian.PutUint64(buf[:], v)
	return xxh3.Hash(buf[:])
}

// Hash returns a 64-bit hash of the stripped form, so hash containers see
// all copies of a name as the same key regardless of their credit state.
func Hash(g GID) uint64 {
	h1 := hashUint64(g.lsb)
	h2 := hashUint64(StripInternalBitsFromMSB(g.MSB()))
	return h1 ^ (h2 << 1)
}
