package handle

import (
	"encoding/binary"
	"errors"
	"fmt"

	"github.com/Borislavv/distributed-naming/pkg/gid"
)

// Wire layout of a serialized handle, after the version tag:
//
//	bytes 0..7   msb, little-endian
//	bytes 8..15  lsb, little-endian
//	byte  16     management mode
//
// The lock bit is always zero on the wire. A bare GID uses the same two
// words without the mode byte under its own version tag.
const (
	GIDVersion byte = 0x10
	IDVersion  byte = 0x20

	gidWireSize = 1 + 16
	idWireSize  = 1 + 17

	versionMajorMask byte = 0xf0
)

var (
	ErrShortBuffer = errors.New("handle: wire image truncated")
	ErrBadVersion  = errors.New("handle: wire version mismatch")
	ErrBadMode     = errors.New("handle: unknown management mode on wire")
)

// AppendGID appends the wire image of a bare GID to dst.
func AppendGID(dst []byte, g gid.GID) []byte {
	dst = append(dst, GIDVersion)
	return appendWords(dst, gid.StripLock(g))
}

// DecodeGID reads a bare GID image from src, returning the GID and the
// number of bytes consumed.
func DecodeGID(src []byte) (gid.GID, int, error) {
	if len(src) < gidWireSize {
		return gid.Invalid, 0, fmt.Errorf("%w: gid needs %d bytes, have %d", ErrShortBuffer, gidWireSize, len(src))
	}
	if src[0]&versionMajorMask != GIDVersion&versionMajorMask {
		return gid.Invalid, 0, fmt.Errorf("%w: gid tag %#02x", ErrBadVersion, src[0])
	}
	return decodeWords(src[1:]), gidWireSize, nil
}

func appendImage(dst []byte, g gid.GID, mode Mode) []byte {
	dst = append(dst, IDVersion)
	dst = appendWords(dst, gid.StripLock(g))
	return append(dst, byte(mode))
}

func decodeImage(src []byte) (gid.GID, Mode, int, error) {
	if len(src) < idWireSize {
		return gid.Invalid, 0, 0, fmt.Errorf("%w: handle needs %d bytes, have %d", ErrShortBuffer, idWireSize, len(src))
	}
	if src[0]&versionMajorMask != IDVersion&versionMajorMask {
		return gid.Invalid, 0, 0, fmt.Errorf("%w: handle tag %#02x", ErrBadVersion, src[0])
	}
	mode := Mode(src[17])
	if !mode.Valid() {
		return gid.Invalid, 0, 0, fmt.Errorf("%w: tag %d", ErrBadMode, src[17])
	}
	return decodeWords(src[1:]), mode, idWireSize, nil
}

func appendWords(dst []byte, g gid.GID) []byte {
	dst = binary.LittleEndian.AppendUint64(dst, g.MSB())
	return binary.LittleEndian.AppendUint64(dst, g.LSB())
}

func decodeWords(src []byte) gid.GID {
	return gid.New(
		binary.LittleEndian.Uint64(src[0:8]),
		binary.LittleEndian.Uint64(src[8:16]),
	)
}
