package handle

import (
	"context"
	"fmt"
	"sync/atomic"

	"github.com/Borislavv/distributed-naming/pkg/gid"
	"github.com/Borislavv/distributed-naming/pkg/prometheus/metrics"
	"github.com/Borislavv/distributed-naming/pkg/synced"
	"github.com/Borislavv/distributed-naming/pkg/transport"
	"github.com/rs/zerolog/log"
)

// state is the shared inner object of a handle: the GID itself, the
// management mode and the count of local copies. Pooled, so a locality
// churning through handles stays off the general heap.
type state struct {
	gid  gid.GID
	mode Mode
	refs atomic.Int64
}

// Handle is a reference-counted owner of a GID. Copies made within a
// locality share one state; when the last local copy of a managed handle
// dies the credit it holds travels back to the owning locality as a
// decrement message.
type Handle struct {
	st  *state
	mgr *Manager
}

// Manager wires handles to their collaborators: the sender that ships
// credit decrements towards owners, the replenisher that refills
// exhausted credit, and the meter.
type Manager struct {
	sender transport.Sender
	rep    gid.Replenisher
	meter  metrics.Meter
	states *synced.BatchPool[*state]
}

func NewManager(sender transport.Sender, rep gid.Replenisher, meter metrics.Meter) *Manager {
	return &Manager{
		sender: sender,
		rep:    rep,
		meter:  meter,
		states: synced.NewBatchPool[*state](func() *state { return &state{} }),
	}
}

// New builds a handle around g with an explicit management mode.
func (m *Manager) New(g gid.GID, mode Mode) *Handle {
	if !mode.Valid() {
		panic(fmt.Sprintf("handle.New: invalid mode %d", mode))
	}
	st := m.states.Get()
	st.gid.Assign(g)
	st.mode = mode
	st.refs.Store(1)
	m.meter.HandleCreated()
	return &Handle{st: st, mgr: m}
}

// NewAuto builds a handle around g picking the mode from the credit
// field: a credited GID is managed, an uncredited one is unmanaged.
func (m *Manager) NewAuto(g gid.GID) *Handle {
	if gid.HasCredits(g) {
		return m.New(g, Managed)
	}
	return m.New(g, Unmanaged)
}

// FromRaw converts a batch of GIDs received from the network into
// handles, one per element in order. Duplicates stay duplicates: each
// entry carries its own credit share.
func (m *Manager) FromRaw(gids []gid.GID) []*Handle {
	out := make([]*Handle, 0, len(gids))
	for _, g := range gids {
		out = append(out, m.NewAuto(g))
	}
	return out
}

// GID returns a snapshot of the wrapped GID.
func (h *Handle) GID() gid.GID {
	return h.st.gid.Clone()
}

// Mode returns the management mode the handle was built with.
func (h *Handle) Mode() Mode {
	return h.st.mode
}

// Credit returns the credit currently held by this handle's state.
func (h *Handle) Credit() int64 {
	return gid.Credit(h.st.gid.Clone())
}

// Clone registers another local copy. No GID mutation, no network
// traffic.
func (h *Handle) Clone() *Handle {
	h.st.refs.Add(1)
	return &Handle{st: h.st, mgr: h.mgr}
}

// Release drops one local reference. On the last one the handle dies: a
// managed state holding credit schedules a decrement towards the owning
// locality before the state returns to the pool. Using the handle after
// Release is a programmer error.
func (h *Handle) Release() error {
	st := h.st
	if n := st.refs.Add(-1); n > 0 {
		return nil
	} else if n < 0 {
		panic("handle.Release: released more copies than exist")
	}

	var err error
	if st.mode != Unmanaged {
		if credit := gid.Credit(st.gid.Clone()); credit > 0 {
			stripped := gid.StripInternalBits(st.gid)
			owner := gid.LocalityID(stripped)
			err = h.mgr.sender.SendDecrement(owner, stripped, credit)
			if err != nil {
				log.Error().
					Err(err).
					Str("gid", stripped.String()).
					Int64("amount", credit).
					Msg("[handle] decrement lost, owner will leak the credit")
			} else {
				h.mgr.meter.IncDecrement(owner, credit)
			}
		}
	}

	st.gid.Reset()
	h.mgr.meter.HandleReleased()
	h.mgr.states.Put(st)
	h.st = nil
	return err
}

// Serialize appends the wire image of the handle to dst and returns the
// extended slice. Writing a managed handle out is a lifecycle event:
// the credit this state holds is either split with the image or moved
// into it wholesale, under the GID's in-band lock, while other local
// copies keep operating.
func (h *Handle) Serialize(ctx context.Context, dst []byte) ([]byte, error) {
	st := h.st
	if st.mode == Unmanaged {
		return appendImage(dst, st.gid.Clone(), st.mode), nil
	}

	st.gid.Lock()

	var img gid.GID
	switch {
	case !gid.HasCredits(gid.StripLock(st.gid)):
		img = gid.StripLock(st.gid)
	case st.mode == ManagedMoveCredit || st.refs.Load() == 1:
		// Sole local reference (or explicit ownership transfer): the
		// image carries everything, the state keeps nothing, and no
		// later decrement is owed for this copy.
		img = gid.MoveGIDLocked(&st.gid)
		gid.SetWasSplit(&img)
		h.mgr.meter.CreditMoved()
	default:
		var err error
		img, err = gid.SplitLocked(ctx, &st.gid, h.mgr.rep)
		if err != nil {
			st.gid.Unlock()
			return dst, fmt.Errorf("serialize %s: %w", gid.StripLock(st.gid).String(), err)
		}
		h.mgr.meter.IncSplit()
	}

	st.gid.Unlock()
	return appendImage(dst, img, st.mode), nil
}

// Deserialize reconstructs a handle from a wire image produced by
// Serialize, returning the handle and the number of bytes consumed. The
// lock bit is cleared defensively. An image tagged unmanaged stays
// unmanaged whatever its credit field holds; any other image becomes a
// managed handle when credited and an unmanaged one when not. No network
// interaction.
func (m *Manager) Deserialize(src []byte) (*Handle, int, error) {
	g, mode, n, err := decodeImage(src)
	if err != nil {
		return nil, 0, err
	}
	if mode == Unmanaged {
		return m.New(g, Unmanaged), n, nil
	}
	return m.NewAuto(g), n, nil
}
