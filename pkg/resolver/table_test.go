package resolver

import (
	"sync"
	"testing"

	"github.com/Borislavv/distributed-naming/pkg/gid"
)

func testGID(lsb uint64) gid.GID {
	return gid.New(gid.FromLocalityID(0).MSB()|1, lsb)
}

func TestRecordAndDecrement(t *testing.T) {
	table := NewIssueTable(8)
	g := testGID(1)

	table.RecordIssued(g, 16)
	if got := table.Outstanding(g); got != 16 {
		t.Fatalf("outstanding = %d, want 16", got)
	}

	remaining, err := table.OnDecrement(g, 8)
	if err != nil {
		t.Fatalf("decrement: %v", err)
	}
	if remaining != 8 {
		t.Errorf("remaining = %d, want 8", remaining)
	}
}

func TestLastReferenceHookFires(t *testing.T) {
	table := NewIssueTable(8)
	g := testGID(2)

	var fired []gid.GID
	table.OnLastReference(func(stripped gid.GID) {
		fired = append(fired, stripped)
	})

	table.RecordIssued(g, 8)
	if _, err := table.OnDecrement(g, 8); err != nil {
		t.Fatalf("decrement: %v", err)
	}

	if len(fired) != 1 || !gid.Equal(fired[0], g) {
		t.Fatalf("hook fired %d times, want once for %s", len(fired), g.String())
	}
	if table.Outstanding(g) != 0 {
		t.Error("name must leave the ledger at zero")
	}
	if table.Len() != 0 {
		t.Errorf("ledger len = %d, want 0", table.Len())
	}
}

func TestDecrementUnknownName(t *testing.T) {
	table := NewIssueTable(8)
	if _, err := table.OnDecrement(testGID(3), 4); err == nil {
		t.Error("decrement for an unknown name must fail")
	}
}

func TestDecrementUnderflowClamps(t *testing.T) {
	table := NewIssueTable(8)
	g := testGID(4)
	table.RecordIssued(g, 4)

	remaining, err := table.OnDecrement(g, 8)
	if err != nil {
		t.Fatalf("decrement: %v", err)
	}
	if remaining != 0 {
		t.Errorf("remaining = %d, want clamped 0", remaining)
	}
}

func TestKeyDistinguishesNames(t *testing.T) {
	table := NewIssueTable(8)
	a, b := testGID(10), testGID(11)

	table.RecordIssued(a, 4)
	table.RecordIssued(b, 8)

	if table.Outstanding(a) != 4 || table.Outstanding(b) != 8 {
		t.Error("names must be accounted independently")
	}

	// a credited copy keys onto the same ledger entry
	credited := a.Clone()
	gid.SetLog2Credit(&credited, 5)
	if table.Outstanding(gid.StripInternalBits(credited)) != 4 {
		t.Error("stripped form of a credited copy must hit the same entry")
	}
}

func TestConcurrentAccounting(t *testing.T) {
	const (
		goroutines = 8
		perG       = 100
	)
	table := NewIssueTable(16)
	g := testGID(20)

	var wg sync.WaitGroup
	wg.Add(goroutines)
	for i := 0; i < goroutines; i++ {
		go func() {
			defer wg.Done()
			for j := 0; j < perG; j++ {
				table.RecordIssued(g, 2)
				if _, err := table.OnDecrement(g, 1); err != nil {
					t.Error(err)
					return
				}
			}
		}()
	}
	wg.Wait()

	if got := table.Outstanding(g); got != goroutines*perG {
		t.Errorf("outstanding = %d, want %d", got, goroutines*perG)
	}
}
