package gid

// A locality is one participant process of the runtime. Locality N is
// encoded as N+1 in the high 32 bits of the msb so that a zero field can
// mean "no locality". These are pure value conversions: no credit, no
// lock.

// InvalidLocalityID denotes "no locality".
const InvalidLocalityID uint32 = 0xffffffff

// FromLocalityID returns the GID naming locality localityID.
func FromLocalityID(localityID uint32) GID {
	return GID{msb: (uint64(localityID) + 1) << localityIDShift}
}

// LocalityIDFromMSB extracts the locality id encoded in msb.
func LocalityIDFromMSB(msb uint64) uint32 {
	return uint32(msb>>localityIDShift) - 1
}

// LocalityID extracts the id of the locality hosting the named object.
func LocalityID(g GID) uint32 {
	return LocalityIDFromMSB(g.MSB())
}

// LocalityGID returns the GID of the locality hosting the named object.
func LocalityGID(g GID) GID {
	return FromLocalityID(LocalityID(g))
}

// IsLocality reports whether g names a locality itself rather than an
// object hosted on one.
func IsLocality(g GID) bool {
	return Equal(LocalityGID(g), g)
}

// ReplaceLocalityIDInMSB swaps the locality field of msb.
func ReplaceLocalityIDInMSB(msb uint64, localityID uint32) uint64 {
	return (msb &^ localityIDMask) | FromLocalityID(localityID).msb
}

// ReplaceLocalityID returns g rehomed onto another locality.
func ReplaceLocalityID(g GID, localityID uint32) GID {
	return GID{msb: ReplaceLocalityIDInMSB(g.MSB(), localityID), lsb: g.lsb}
}
