package resolver

import (
	"encoding/binary"
	"fmt"
	"sync"
	"sync/atomic"

	"github.com/Borislavv/distributed-naming/pkg/gid"
	"github.com/rs/zerolog/log"
	"github.com/savsgio/gotils/strconv"
	"github.com/zeebo/xxh3"
)

// IssueTable is the owning locality's ledger of credit handed out per
// owned name. Keys are the 16-byte image of the stripped GID; a name
// leaves the table when its outstanding credit returns to zero, at which
// point the registered last-reference hook fires and the object may be
// destroyed.
type IssueTable struct {
	shards []*issueShard
	hook   atomic.Pointer[func(gid.GID)]
}

type issueShard struct {
	sync.RWMutex
	items map[string]int64
}

func NewIssueTable(shardCount int) *IssueTable {
	if shardCount <= 0 {
		panic("resolver.NewIssueTable: non-positive shard count")
	}
	t := &IssueTable{shards: make([]*issueShard, shardCount)}
	for i := range t.shards {
		t.shards[i] = &issueShard{items: make(map[string]int64)}
	}
	return t
}

// OnLastReference registers the hook fired when a name's outstanding
// credit drops to zero.
func (t *IssueTable) OnLastReference(hook func(gid.GID)) {
	t.hook.Store(&hook)
}

func strippedKey(stripped gid.GID, buf *[16]byte) []byte {
	binary.LittleEndian.PutUint64(buf[0:8], stripped.MSB())
	binary.LittleEndian.PutUint64(buf[8:16], stripped.LSB())
	return buf[:]
}

func (t *IssueTable) shard(key []byte) *issueShard {
	return t.shards[xxh3.Hash(key)%uint64(len(t.shards))]
}

// RecordIssued accounts amount of freshly issued credit for a name.
func (t *IssueTable) RecordIssued(stripped gid.GID, amount int64) {
	if amount <= 0 {
		panic("resolver.RecordIssued: non-positive amount")
	}
	var buf [16]byte
	key := strippedKey(stripped, &buf)

	shard := t.shard(key)
	shard.Lock()
	shard.items[string(key)] += amount
	shard.Unlock()
}

// OnDecrement returns amount of credit to the ledger and reports how much
// stays outstanding. Dropping below zero means a protocol violation
// somewhere in the system; the ledger clamps and logs instead of going
// negative.
func (t *IssueTable) OnDecrement(stripped gid.GID, amount int64) (int64, error) {
	if amount <= 0 {
		return 0, fmt.Errorf("resolver: non-positive decrement %d for %s", amount, stripped.String())
	}
	var buf [16]byte
	key := strippedKey(stripped, &buf)

	shard := t.shard(key)
	shard.Lock()
	outstanding, ok := shard.items[strconv.B2S(key)]
	if !ok {
		shard.Unlock()
		return 0, fmt.Errorf("resolver: decrement for unknown name %s", stripped.String())
	}
	remaining := outstanding - amount
	if remaining < 0 {
		log.Error().
			Str("gid", stripped.String()).
			Int64("outstanding", outstanding).
			Int64("amount", amount).
			Msg("[resolver] credit underflow, clamping to zero")
		remaining = 0
	}
	if remaining == 0 {
		delete(shard.items, strconv.B2S(key))
	} else {
		shard.items[string(key)] = remaining
	}
	shard.Unlock()

	if remaining == 0 {
		if hook := t.hook.Load(); hook != nil {
			(*hook)(stripped)
		}
	}
	return remaining, nil
}

// Outstanding reports the credit currently on loan for a name.
func (t *IssueTable) Outstanding(stripped gid.GID) int64 {
	var buf [16]byte
	key := strippedKey(stripped, &buf)

	shard := t.shard(key)
	shard.RLock()
	outstanding := shard.items[strconv.B2S(key)]
	shard.RUnlock()
	return outstanding
}

// Len reports how many names currently have credit on loan.
func (t *IssueTable) Len() int {
	var total int
	for _, shard := range t.shards {
		shard.RLock()
		total += len(shard.items)
		shard.RUnlock()
	}
	return total
}
