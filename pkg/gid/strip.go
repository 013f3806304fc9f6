package gid

// The stripped form of a GID is its canonical identity: all internal bits
// (credit machinery, lock, caching and migration hints) cleared. The
// resolver and the issue table key on this form.

func StripInternalBitsFromMSB(msb uint64) uint64 {
	return msb &^ internalBitsMask
}

func StripInternalBits(g GID) GID {
	return GID{msb: StripInternalBitsFromMSB(g.MSB()), lsb: g.lsb}
}

func StripLockFromMSB(msb uint64) uint64 {
	return msb &^ isLockedMask
}

func StripLock(g GID) GID {
	return GID{msb: StripLockFromMSB(g.MSB()), lsb: g.lsb}
}

func StripCreditsFromMSB(msb uint64) uint64 {
	return msb &^ creditBitsMask
}

// StripCredits clears the credit machinery bits of g in place.
func StripCredits(g *GID) {
	g.SetMSB(StripCreditsFromMSB(g.MSB()))
}

// StripInternalBitsExceptDontCacheFromMSB keeps the dont_cache hint: the
// resolution layer needs it even on otherwise canonical names. Only the
// credit and lock bits are cleared, so the is_migratable hint survives
// as well.
func StripInternalBitsExceptDontCacheFromMSB(msb uint64) uint64 {
	return msb &^ (creditBitsMask | isLockedMask)
}

func StripInternalBitsExceptDontCache(g GID) GID {
	return GID{msb: StripInternalBitsExceptDontCacheFromMSB(g.MSB()), lsb: g.lsb}
}

func StripInternalBitsAndComponentTypeFromMSB(msb uint64) uint64 {
	return msb &^ (internalBitsMask | componentTypeMask)
}

func StripInternalBitsAndLocalityFromMSB(msb uint64) uint64 {
	return msb & (^specialBitsMask | componentTypeMask)
}

// InternalBits returns only the internal and component type bits of msb.
func InternalBits(msb uint64) uint64 {
	return msb & (internalBitsMask | componentTypeMask)
}
