package gid

import (
	"context"
	"errors"
	"fmt"
	"math/bits"
)

// Credit is the unit of distributed reference share. Only powers of two
// are representable: the msb stores log2(credit) in five bits, so a split
// is a subtract-one on the exponent and a combine is an add-one. For any
// live object the credits held by all copies of its name anywhere in the
// system sum to the total its owning locality has issued.

const (
	// InitialLog2Credit is the exponent handed out when a name is first
	// credited and on every replenish.
	InitialLog2Credit int16 = 29
	// InitialCredit is the matching linear amount.
	InitialCredit int64 = 1 << 29

	// MaxLog2Credit is the largest exponent the five credit bits can hold.
	MaxLog2Credit int16 = 31
)

// ErrReplenishFailed is returned when the owning locality could not be
// asked for more credit (unreachable, exhausted, or the request context
// was cancelled).
var ErrReplenishFailed = errors.New("credit replenish failed")

// Replenisher asks the owning locality of a name for additional credit.
// The request identifies the name by its stripped form; the reply is the
// granted linear amount (a power of two).
type Replenisher interface {
	Replenish(ctx context.Context, stripped GID) (int64, error)
}

// Issuer is the owner-side ledger accounting credit handed out for owned
// names. Every credit an owner mints must land here, or the name can
// never be destroyed.
type Issuer interface {
	RecordIssued(stripped GID, amount int64)
}

func log2(v int64) int16 {
	if v <= 0 {
		panic("gid.log2: non-positive credit")
	}
	return int16(bits.Len64(uint64(v)) - 1)
}

func power2(log2credits int16) int64 {
	if log2credits < 0 {
		panic("gid.power2: negative exponent")
	}
	return int64(1) << log2credits
}

// HasCredits reports whether the credit field of g is meaningful.
func HasCredits(g GID) bool {
	return g.MSB()&hasCreditsMask != 0
}

// WasSplit reports whether credit on this copy has ever been split.
func WasSplit(g GID) bool {
	return g.MSB()&wasSplitMask != 0
}

// SetWasSplit marks the copy as having taken part in a credit split.
func SetWasSplit(g *GID) {
	g.SetMSB(g.MSB() | wasSplitMask)
}

// Log2Credit returns the stored exponent. Panics on an uncredited GID.
func Log2Credit(g GID) int16 {
	if !HasCredits(g) {
		panic("gid.Log2Credit: gid carries no credits")
	}
	return int16((g.MSB() >> creditShift) & creditBaseMask)
}

// Credit returns the linear credit held by this copy, zero when the
// credit field is not meaningful.
func Credit(g GID) int64 {
	if !HasCredits(g) {
		return 0
	}
	return power2(Log2Credit(g))
}

// SetLog2Credit stores an exponent and flags the credit field as
// meaningful. The caller guarantees the exponent fits the field.
func SetLog2Credit(g *GID, log2credits int16) {
	if log2credits < 0 || uint64(log2credits)&^creditBaseMask != 0 {
		panic("gid.SetLog2Credit: exponent out of range")
	}
	g.SetMSB((g.MSB() &^ creditMask) |
		((uint64(log2credits) << creditShift) & creditMask) |
		hasCreditsMask)
}

// SetCredit stores a linear credit amount. Zero clears the credit field
// entirely; any other amount must be a power of two.
func SetCredit(g *GID, credits int64) {
	if credits == 0 {
		StripCredits(g)
		return
	}
	log2credits := log2(credits)
	if power2(log2credits) != credits {
		panic("gid.SetCredit: credit is not a power of two")
	}
	SetLog2Credit(g, log2credits)
}

// AddCredit mints n fresh credit onto g, records the issued amount with
// the owner's ledger and returns the new total. Owner-side only: the
// caller guarantees the result stays a power of two within range. A nil
// ledger skips the accounting.
func AddCredit(g *GID, n int64, ledger Issuer) int64 {
	if n <= 0 {
		panic("gid.AddCredit: non-positive amount")
	}
	c := Credit(*g) + n
	if log2(c) > MaxLog2Credit {
		panic("gid.AddCredit: credit overflow")
	}
	SetCredit(g, c)
	if ledger != nil {
		ledger.RecordIssued(StripInternalBits(*g), n)
	}
	return c
}

// RemoveCredit debits n from the credit held by g and returns the
// remaining amount. The caller guarantees the result stays a power of two
// (or zero).
func RemoveCredit(g *GID, n int64) int64 {
	c := Credit(*g) - n
	if c < 0 {
		panic("gid.RemoveCredit: debit exceeds held credit")
	}
	SetCredit(g, c)
	return c
}

// FillCredit tops g up to the given linear amount through AddCredit and
// returns how much was added. Used by the owner when first publishing a
// name.
func FillCredit(g *GID, credits int64, ledger Issuer) int64 {
	added := credits - Credit(*g)
	if added < 0 {
		panic("gid.FillCredit: gid already holds more credit")
	}
	if added > 0 {
		AddCredit(g, added, ledger)
	}
	return added
}

// Split halves the credit held by g and returns a copy carrying the other
// half. When g is down to a single credit it first replenishes from the
// owning locality through rep, which may fail; the gid is left unchanged
// in that case.
func Split(ctx context.Context, g *GID, rep Replenisher) (GID, error) {
	g.Lock()
	defer g.Unlock()
	return SplitLocked(ctx, g, rep)
}

// SplitLocked is Split for callers already holding the in-band lock.
func SplitLocked(ctx context.Context, g *GID, rep Replenisher) (GID, error) {
	if !HasCredits(*g) {
		panic("gid.SplitLocked: gid carries no credits")
	}

	if Log2Credit(*g) == 0 {
		if _, err := ReplenishLocked(ctx, g, rep); err != nil {
			return Invalid, err
		}
	}

	SetLog2Credit(g, Log2Credit(*g)-1)
	SetWasSplit(g)

	return StripLock(*g), nil
}

// Replenish synchronously asks the owning locality for more credit and
// rewrites the credit field of g with the granted amount.
func Replenish(ctx context.Context, g *GID, rep Replenisher) (int64, error) {
	g.Lock()
	defer g.Unlock()
	return ReplenishLocked(ctx, g, rep)
}

// ReplenishLocked is Replenish for callers already holding the in-band
// lock. The lock stays held across the resolver round trip so concurrent
// splitters observe either the exhausted or the refilled state, never a
// partial one.
func ReplenishLocked(ctx context.Context, g *GID, rep Replenisher) (int64, error) {
	granted, err := rep.Replenish(ctx, StripInternalBits(*g))
	if err != nil {
		return 0, fmt.Errorf("%w: %s: %w", ErrReplenishFailed, g.String(), err)
	}
	SetCredit(g, granted)
	return granted, nil
}

// MoveGID takes the full value out of g, leaving the stored GID without
// credits. In-flight serializations settle deterministically: whoever
// moved first owns the credit.
func MoveGID(g *GID) GID {
	g.Lock()
	defer g.Unlock()
	return MoveGIDLocked(g)
}

// MoveGIDLocked is MoveGID for callers already holding the in-band lock.
func MoveGIDLocked(g *GID) GID {
	out := StripLock(*g)
	StripCredits(g)
	return out
}
