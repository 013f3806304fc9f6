package transport

import (
	"github.com/Borislavv/distributed-naming/pkg/gid"
)

// The naming layer never talks to the network itself. When the last local
// reference to a managed name dies it schedules a credit decrement towards
// the owning locality through a Sender; localities plug their real
// active-message transport in here. Decrements are ordered per destination
// by the transport; the naming layer adds no ordering of its own.

// Decrement is a credit return travelling to the owning locality of a
// name. The GID is in stripped form.
type Decrement struct {
	Owner  uint32
	GID    gid.GID
	Amount int64
}

// Sender schedules a credit decrement for delivery to the owner.
type Sender interface {
	SendDecrement(owner uint32, stripped gid.GID, amount int64) error
}

// DecrementHandler consumes delivered decrements on the owning side.
// Implemented by the resolver's issue table.
type DecrementHandler interface {
	OnDecrement(stripped gid.GID, amount int64) (remaining int64, err error)
}
