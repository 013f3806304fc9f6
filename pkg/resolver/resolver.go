package resolver

import (
	"context"
	"fmt"

	"github.com/Borislavv/distributed-naming/pkg/gid"
	"github.com/Borislavv/distributed-naming/pkg/prometheus/metrics"
	"github.com/Borislavv/distributed-naming/pkg/rate"
	"github.com/rs/zerolog/log"
)

// Resolver is the naming layer's view of the address resolution service:
// the single operation it needs is asking an owning locality to replenish
// credit for a name.
type Resolver interface {
	Replenish(ctx context.Context, stripped gid.GID) (int64, error)
}

// LocalResolver serves replenish requests in-process: the owning locality
// and the requester share an address space (single-locality runtimes and
// tests). Grants are drawn from the issue pool, recorded in the ledger,
// and paced by the limiter so exhausted-handle bursts do not turn into
// accounting storms.
type LocalResolver struct {
	table   *IssueTable
	limiter *rate.Limiter
	grant   int64
	meter   metrics.Meter
}

func NewLocalResolver(table *IssueTable, limiter *rate.Limiter, grant int64, meter metrics.Meter) *LocalResolver {
	if grant <= 0 || grant&(grant-1) != 0 {
		panic("resolver.NewLocalResolver: grant must be a positive power of two")
	}
	return &LocalResolver{
		table:   table,
		limiter: limiter,
		grant:   grant,
		meter:   meter,
	}
}

// Replenish grants the configured credit amount for a name and records it
// as issued. A replenish only ever happens when the requester is down to a
// single unsplittable credit, which it retires in exchange for the fresh
// grant, so the ledger's net change is grant-1. Cancellation of ctx aborts
// the wait for a limiter slot; the caller wraps the error and releases its
// in-band lock.
func (r *LocalResolver) Replenish(ctx context.Context, stripped gid.GID) (int64, error) {
	if r.limiter != nil {
		if err := r.limiter.Wait(ctx); err != nil {
			r.meter.IncReplenishError()
			return 0, fmt.Errorf("replenish %s: %w", stripped.String(), err)
		}
	}

	r.table.RecordIssued(stripped, r.grant)
	if _, err := r.table.OnDecrement(stripped, 1); err != nil {
		return 0, fmt.Errorf("replenish %s: retiring the exhausted credit: %w", stripped.String(), err)
	}
	r.meter.IncReplenish()
	r.meter.AddIssued(r.grant - 1)

	log.Debug().
		Str("gid", stripped.String()).
		Int64("granted", r.grant).
		Msg("[resolver] credit replenished")

	return r.grant, nil
}
