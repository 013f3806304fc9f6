package gid

import (
	"fmt"
	"sync/atomic"
)

// GID msb bit layout in one uint64:
// [32-bit locality_id+1][1-bit was_split][1-bit has_credits][1-bit is_locked]
// [5-bit log2_credit][1-bit dont_cache][1-bit is_migratable][1-bit reserved]
// [20-bit component_type][1-bit dynamically_assigned].
// Locality in the high 32 bits, credit machinery in bits 24..31,
// component type in bits 1..20. The lsb word is unstructured: a local
// virtual address when dynamically_assigned is clear, an allocator ordinal
// otherwise.
const (
	creditBaseMask uint64 = 0x1f
	creditShift           = 24
	creditMask            = creditBaseMask << creditShift

	wasSplitMask   uint64 = 0x80000000
	hasCreditsMask uint64 = 0x40000000
	isLockedMask   uint64 = 0x20000000

	localityIDMask  uint64 = 0xffffffff00000000
	localityIDShift        = 32

	virtualMemoryMask uint64 = 0x3fffff

	dontCacheMask    uint64 = 0x800000
	isMigratableMask uint64 = 0x400000

	// Bit 0 is set for all dynamically assigned names. When it is clear
	// the lsb corresponds to the local virtual address of the referenced
	// object and bits 1..20 carry the component type.
	dynamicallyAssignedMask uint64 = 0x1

	componentTypeBaseMask uint64 = 0xfffff
	componentTypeShift           = 1
	componentTypeMask            = componentTypeBaseMask << componentTypeShift

	creditBitsMask   = creditMask | wasSplitMask | hasCreditsMask
	internalBitsMask = creditBitsMask | isLockedMask | dontCacheMask | isMigratableMask
	specialBitsMask  = localityIDMask | internalBitsMask | componentTypeMask
)

// GID is a 128-bit global identifier for objects addressable across
// locality boundaries. Equality, ordering and hashing ignore the internal
// bits (credit, split/lock flags, caching and migration hints): two GIDs
// that differ only in those bits name the same object.
//
// The msb word is mutated under the in-band lock (see Lock); mutations go
// through atomic stores so lock spinners and snapshot readers (IsLocked,
// Clone) never observe torn state. Plain value reads are safe because only
// the lock holder writes.
type GID struct {
	msb uint64
	lsb uint64
}

// Invalid is the canonical null name.
var Invalid = GID{}

// New builds a GID from both words. The incoming lock bit is stripped:
// locks never survive copying.
func New(msb, lsb uint64) GID {
	return GID{msb: msb &^ isLockedMask, lsb: lsb}
}

// FromLSB builds a GID naming a local virtual address (msb is zero).
func FromLSB(lsb uint64) GID {
	return GID{lsb: lsb}
}

func (g GID) MSB() uint64 {
	return atomic.LoadUint64(&g.msb)
}

func (g *GID) SetMSB(msb uint64) {
	atomic.StoreUint64(&g.msb, msb)
}

func (g GID) LSB() uint64 {
	return g.lsb
}

func (g *GID) SetLSB(lsb uint64) {
	g.lsb = lsb
}

// IsValid reports whether the GID names anything at all.
func (g GID) IsValid() bool {
	return g.MSB() != 0 || g.lsb != 0
}

// Clone returns a copy with the lock bit stripped. Copying a locked GID
// would teleport the lock together with the value, so it panics.
func (g *GID) Clone() GID {
	msb := atomic.LoadUint64(&g.msb)
	if msb&isLockedMask != 0 {
		panic("gid.Clone: source is locked")
	}
	return GID{msb: msb, lsb: g.lsb}
}

// Assign overwrites g with rhs. Panics if either side is locked.
func (g *GID) Assign(rhs GID) {
	if g.IsLocked() {
		panic("gid.Assign: destination is locked")
	}
	if rhs.MSB()&isLockedMask != 0 {
		panic("gid.Assign: source is locked")
	}
	atomic.StoreUint64(&g.msb, rhs.MSB()&^isLockedMask)
	g.lsb = rhs.lsb
}

// Reset clears the GID to the invalid name. Panics when locked: the slot
// may not be reused while another goroutine logically owns it.
func (g *GID) Reset() {
	if g.IsLocked() {
		panic("gid.Reset: gid is locked")
	}
	atomic.StoreUint64(&g.msb, 0)
	g.lsb = 0
}

func (g GID) String() string {
	return fmt.Sprintf("{%016x, %016x}", g.MSB(), g.lsb)
}

// DynamicallyAssigned reports whether the name was issued by the
// allocator (as opposed to wrapping a raw local virtual address).
func (g GID) DynamicallyAssigned() bool {
	return g.MSB()&dynamicallyAssignedMask != 0
}

// RefersToLocalLVA reports whether the lsb is the local virtual address of
// the referenced object.
func (g GID) RefersToLocalLVA() bool {
	return g.MSB()&dynamicallyAssignedMask == 0
}

// RefersToVirtualMemory reports whether the name denotes the locality's
// virtual memory region as a whole (all low address bits clear).
func RefersToVirtualMemory(g GID) bool {
	return g.MSB()&virtualMemoryMask == 0
}

// ComponentTypeFromMSB extracts the 20-bit component type tag. Only
// meaningful for non dynamically assigned names.
func ComponentTypeFromMSB(msb uint64) uint32 {
	if msb&dynamicallyAssignedMask != 0 {
		panic("gid.ComponentTypeFromMSB: name is dynamically assigned")
	}
	return uint32((msb >> componentTypeShift) & componentTypeBaseMask)
}

// ComponentType extracts the component type tag of g.
func ComponentType(g GID) uint32 {
	return ComponentTypeFromMSB(g.MSB())
}

// AddComponentTypeToMSB merges a component type tag into msb.
func AddComponentTypeToMSB(msb uint64, ct uint32) uint64 {
	if msb&dynamicallyAssignedMask != 0 {
		panic("gid.AddComponentTypeToMSB: name is dynamically assigned")
	}
	return (msb &^ componentTypeMask) |
		((uint64(ct) << componentTypeShift) & componentTypeMask)
}

// ReplaceComponentType returns g with its component type tag replaced.
func ReplaceComponentType(g GID, ct uint32) GID {
	return GID{msb: AddComponentTypeToMSB(g.MSB()&^componentTypeMask, ct), lsb: g.lsb}
}

// StoreInCache reports whether resolution results for this name may be
// cached by the address resolution layer.
func StoreInCache(g GID) bool {
	return g.MSB()&dontCacheMask == 0
}

// SetDontStoreInCache marks the name as non-cacheable.
func SetDontStoreInCache(g *GID) {
	g.SetMSB(g.MSB() | dontCacheMask)
}

// IsMigratable reports whether the named object may change locality.
func IsMigratable(g GID) bool {
	return g.MSB()&isMigratableMask != 0
}

// SetMigratable marks the named object as migratable.
func SetMigratable(g *GID) {
	g.SetMSB(g.MSB() | isMigratableMask)
}
