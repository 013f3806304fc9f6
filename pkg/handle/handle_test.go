package handle

import (
	"context"
	"sync"
	"testing"

	"github.com/Borislavv/distributed-naming/pkg/gid"
	"github.com/Borislavv/distributed-naming/pkg/prometheus/metrics"
	"github.com/Borislavv/distributed-naming/pkg/resolver"
	"github.com/Borislavv/distributed-naming/pkg/transport"
)

func credited(lsb uint64, credit int64) gid.GID {
	loc := gid.FromLocalityID(0)
	g := gid.New(loc.MSB()|1, lsb)
	gid.SetCredit(&g, credit)
	return g
}

// grantAll answers every replenish with a fixed grant and records the
// issued amount so tests can balance the books.
type grantAll struct {
	mu     sync.Mutex
	grant  int64
	issued int64
}

func (r *grantAll) Replenish(_ context.Context, _ gid.GID) (int64, error) {
	r.mu.Lock()
	r.issued += r.grant - 1 // the requester retires its last credit
	r.mu.Unlock()
	return r.grant, nil
}

func TestDropSendsSingleDecrement(t *testing.T) {
	rec := &transport.Recorder{}
	mgr := NewManager(rec, nil, metrics.Noop{})

	g := credited(42, 8)
	h := mgr.New(g, Managed)

	if err := h.Release(); err != nil {
		t.Fatalf("release: %v", err)
	}

	sent := rec.Sent()
	if len(sent) != 1 {
		t.Fatalf("sent %d decrements, want exactly 1", len(sent))
	}
	d := sent[0]
	if d.Owner != 0 || d.Amount != 8 {
		t.Errorf("decrement = (owner %d, amount %d), want (0, 8)", d.Owner, d.Amount)
	}
	if !gid.Equal(d.GID, gid.StripInternalBits(g)) {
		t.Errorf("decrement names %s, want stripped %s", d.GID.String(), g.String())
	}
}

func TestCopiesShareOneDecrement(t *testing.T) {
	rec := &transport.Recorder{}
	mgr := NewManager(rec, nil, metrics.Noop{})

	h := mgr.New(credited(1, 4), Managed)
	cp := h.Clone()

	if err := h.Release(); err != nil {
		t.Fatalf("release: %v", err)
	}
	if len(rec.Sent()) != 0 {
		t.Fatal("non-final release must not decrement")
	}
	if err := cp.Release(); err != nil {
		t.Fatalf("release: %v", err)
	}
	if len(rec.Sent()) != 1 {
		t.Fatalf("sent %d decrements, want 1", len(rec.Sent()))
	}
}

func TestUnmanagedNeverDecrements(t *testing.T) {
	rec := &transport.Recorder{}
	mgr := NewManager(rec, nil, metrics.Noop{})

	h := mgr.New(credited(2, 16), Unmanaged)
	if err := h.Release(); err != nil {
		t.Fatalf("release: %v", err)
	}
	if len(rec.Sent()) != 0 {
		t.Error("unmanaged handles must stay silent on drop")
	}
}

func TestAutoModeFollowsCredit(t *testing.T) {
	mgr := NewManager(&transport.Recorder{}, nil, metrics.Noop{})

	loc := gid.FromLocalityID(3)
	if h := mgr.NewAuto(credited(1, 2)); h.Mode() != Managed {
		t.Errorf("credited gid mode = %s, want managed", h.Mode())
	}
	if h := mgr.NewAuto(gid.New(loc.MSB()|1, 2)); h.Mode() != Unmanaged {
		t.Errorf("uncredited gid mode = %s, want unmanaged", h.Mode())
	}
}

func TestSerializeSplitsWithLiveCopies(t *testing.T) {
	mgr := NewManager(&transport.Recorder{}, &grantAll{grant: gid.InitialCredit}, metrics.Noop{})

	h := mgr.New(credited(7, 16), Managed)
	guard := h.Clone() // a second local reference forbids transfer-all
	defer guard.Release()
	defer h.Release()

	buf, err := h.Serialize(context.Background(), nil)
	if err != nil {
		t.Fatalf("serialize: %v", err)
	}

	img, mode, n, err := decodeImage(buf)
	if err != nil {
		t.Fatalf("decode: %v", err)
	}
	if n != len(buf) {
		t.Errorf("consumed %d of %d bytes", n, len(buf))
	}
	if mode != Managed {
		t.Errorf("wire mode = %s, want managed", mode)
	}
	if got := gid.Credit(img); got != 8 {
		t.Errorf("image credit = %d, want 8", got)
	}
	if got := h.Credit(); got != 8 {
		t.Errorf("remaining credit = %d, want 8", got)
	}
	local := h.GID()
	if !gid.WasSplit(img) || !gid.WasSplit(local) {
		t.Error("both halves must carry was_split")
	}
}

func TestSerializeSoleReferenceMovesAllCredit(t *testing.T) {
	rec := &transport.Recorder{}
	mgr := NewManager(rec, nil, metrics.Noop{})

	h := mgr.New(credited(8, 32), Managed)

	buf, err := h.Serialize(context.Background(), nil)
	if err != nil {
		t.Fatalf("serialize: %v", err)
	}
	img, _, _, err := decodeImage(buf)
	if err != nil {
		t.Fatalf("decode: %v", err)
	}

	if got := gid.Credit(img); got != 32 {
		t.Errorf("image credit = %d, want all 32", got)
	}
	if got := h.Credit(); got != 0 {
		t.Errorf("local credit = %d, want 0 after transfer", got)
	}
	if err := h.Release(); err != nil {
		t.Fatalf("release: %v", err)
	}
	if len(rec.Sent()) != 0 {
		t.Error("a drained handle owes no decrement")
	}
}

func TestSerializeMoveCreditModeTransfersDespiteCopies(t *testing.T) {
	mgr := NewManager(&transport.Recorder{}, nil, metrics.Noop{})

	h := mgr.New(credited(9, 32), ManagedMoveCredit)
	guard := h.Clone()
	defer guard.Release()
	defer h.Release()

	buf, err := h.Serialize(context.Background(), nil)
	if err != nil {
		t.Fatalf("serialize: %v", err)
	}
	img, _, _, err := decodeImage(buf)
	if err != nil {
		t.Fatalf("decode: %v", err)
	}
	if gid.Credit(img) != 32 || h.Credit() != 0 {
		t.Errorf("image/local credit = %d/%d, want 32/0", gid.Credit(img), h.Credit())
	}
}

func TestSerializeRoundTripKeepsIdentity(t *testing.T) {
	mgr := NewManager(&transport.Recorder{}, &grantAll{grant: gid.InitialCredit}, metrics.Noop{})

	src := mgr.New(credited(1234, 64), Managed)
	guard := src.Clone()
	defer guard.Release()
	defer src.Release()

	buf, err := src.Serialize(context.Background(), nil)
	if err != nil {
		t.Fatalf("serialize: %v", err)
	}
	dst, _, err := mgr.Deserialize(buf)
	if err != nil {
		t.Fatalf("deserialize: %v", err)
	}
	defer dst.Release()

	in, out := src.GID(), dst.GID()
	if !gid.Equal(in, out) {
		t.Errorf("round trip changed identity: %s vs %s", in.String(), out.String())
	}
	if out.IsLocked() {
		t.Error("lock bit must be clear after deserialize")
	}
	if dst.Mode() != Managed {
		t.Errorf("credited image mode = %s, want managed", dst.Mode())
	}
}

func TestDeserializeUncreditedManagedImage(t *testing.T) {
	mgr := NewManager(&transport.Recorder{}, nil, metrics.Noop{})

	loc := gid.FromLocalityID(1)
	buf := appendImage(nil, gid.New(loc.MSB()|1, 5), Managed)
	h, _, err := mgr.Deserialize(buf)
	if err != nil {
		t.Fatalf("deserialize: %v", err)
	}
	defer h.Release()
	if h.Mode() != Unmanaged {
		t.Errorf("uncredited image mode = %s, want unmanaged", h.Mode())
	}
}

func TestSerializeAtOneCreditReplenishes(t *testing.T) {
	rep := &grantAll{grant: gid.InitialCredit}
	mgr := NewManager(&transport.Recorder{}, rep, metrics.Noop{})

	h := mgr.New(credited(77, 1), Managed)
	guard := h.Clone()
	defer guard.Release()
	defer h.Release()

	buf, err := h.Serialize(context.Background(), nil)
	if err != nil {
		t.Fatalf("serialize: %v", err)
	}
	img, _, _, err := decodeImage(buf)
	if err != nil {
		t.Fatalf("decode: %v", err)
	}

	want := gid.InitialCredit / 2
	if gid.Credit(img) != want || h.Credit() != want {
		t.Errorf("image/local credit = %d/%d, want %d each",
			gid.Credit(img), h.Credit(), want)
	}
}

func TestFromRawPreservesOrderAndDuplicates(t *testing.T) {
	mgr := NewManager(&transport.Recorder{}, nil, metrics.Noop{})

	loc := gid.FromLocalityID(2)
	plain := gid.New(loc.MSB()|1, 9)
	batch := []gid.GID{credited(1, 4), plain, credited(1, 4)}

	handles := mgr.FromRaw(batch)
	if len(handles) != len(batch) {
		t.Fatalf("converted %d of %d", len(handles), len(batch))
	}
	for i, h := range handles {
		if !gid.Equal(h.GID(), batch[i]) {
			t.Errorf("element %d reordered", i)
		}
	}
	if handles[0].Mode() != Managed || handles[1].Mode() != Unmanaged || handles[2].Mode() != Managed {
		t.Error("per-element credited => managed rule violated")
	}
	for _, h := range handles {
		h.Release()
	}
}

// Concurrent split-then-drop sequences against one handle must return
// every credit to the owner's ledger, no matter the interleaving.
func TestConcurrentSplitDropConservesCredit(t *testing.T) {
	const (
		goroutines = 8
		perG       = 32
		initial    = int64(1) << 10
	)

	table := resolver.NewIssueTable(16)
	res := resolver.NewLocalResolver(table, nil, gid.InitialCredit, metrics.Noop{})
	mgr := NewManager(&tableSender{table: table}, res, metrics.Noop{})

	g := credited(500, initial)
	stripped := gid.StripInternalBits(g)
	table.RecordIssued(stripped, initial)

	var lastRef int
	table.OnLastReference(func(gid.GID) { lastRef++ })

	h := mgr.New(g, Managed)
	guard := h.Clone() // keeps every serialize on the split path

	var wg sync.WaitGroup
	wg.Add(goroutines)
	for i := 0; i < goroutines; i++ {
		go func() {
			defer wg.Done()
			for j := 0; j < perG; j++ {
				buf, err := h.Serialize(context.Background(), nil)
				if err != nil {
					t.Error(err)
					return
				}
				cp, _, err := mgr.Deserialize(buf)
				if err != nil {
					t.Error(err)
					return
				}
				if err := cp.Release(); err != nil {
					t.Error(err)
					return
				}
			}
		}()
	}
	wg.Wait()

	if err := guard.Release(); err != nil {
		t.Fatalf("release guard: %v", err)
	}
	if err := h.Release(); err != nil {
		t.Fatalf("release: %v", err)
	}

	if got := table.Outstanding(stripped); got != 0 {
		t.Errorf("outstanding credit = %d, want 0 after all drops", got)
	}
	if lastRef != 1 {
		t.Errorf("last-reference hook fired %d times, want once", lastRef)
	}
}

// tableSender delivers decrements straight into the owner's ledger.
type tableSender struct {
	table *resolver.IssueTable
}

func (s *tableSender) SendDecrement(_ uint32, stripped gid.GID, amount int64) error {
	_, err := s.table.OnDecrement(stripped, amount)
	return err
}
