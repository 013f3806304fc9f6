package naming

import (
	"context"

	"github.com/Borislavv/distributed-naming/pkg/config"
	"github.com/Borislavv/distributed-naming/pkg/gid"
	"github.com/Borislavv/distributed-naming/pkg/handle"
	"github.com/Borislavv/distributed-naming/pkg/prometheus/metrics"
	"github.com/Borislavv/distributed-naming/pkg/rate"
	"github.com/Borislavv/distributed-naming/pkg/resolver"
	"github.com/Borislavv/distributed-naming/pkg/transport"
	"github.com/rs/zerolog/log"
)

// Runtime wires the naming layer together for a single locality: the
// issue ledger, the replenish resolver, the decrement transport and the
// handle manager, all built from one config. Multi-locality deployments
// swap the loopback transport and the local resolver for their real
// AGAS client; everything else stays.
type Runtime struct {
	cfg      *config.Naming
	ctx      context.Context
	cancel   context.CancelFunc
	limiter  *rate.Limiter
	table    *resolver.IssueTable
	resolver *resolver.LocalResolver
	loopback *transport.Loopback
	manager  *handle.Manager
}

func New(ctx context.Context, cfg *config.Naming, meter metrics.Meter) *Runtime {
	ctx, cancel := context.WithCancel(ctx)
	box := cfg.Naming

	limiter := rate.NewLimiter(ctx, box.Replenish.RatePerSecond)
	table := resolver.NewIssueTable(box.IssueShards)
	res := resolver.NewLocalResolver(table, limiter, int64(1)<<box.InitialLog2Credit, meter)
	loopback := transport.NewLoopback(ctx, table, box.Transport.QueueSize)
	manager := handle.NewManager(loopback, res, meter)

	log.Info().
		Uint32("locality", box.LocalityID).
		Int16("log2_credit", box.InitialLog2Credit).
		Msg("[naming] runtime assembled")

	return &Runtime{
		cfg:      cfg,
		ctx:      ctx,
		cancel:   cancel,
		limiter:  limiter,
		table:    table,
		resolver: res,
		loopback: loopback,
		manager:  manager,
	}
}

func (r *Runtime) Manager() *handle.Manager {
	return r.manager
}

func (r *Runtime) Table() *resolver.IssueTable {
	return r.table
}

func (r *Runtime) Resolver() resolver.Resolver {
	return r.resolver
}

// LocalityID reports which locality this runtime speaks for.
func (r *Runtime) LocalityID() uint32 {
	return r.cfg.Naming.LocalityID
}

// OnDestroy registers the hook fired when the last credit of an owned
// name returns home and the object may be reclaimed.
func (r *Runtime) OnDestroy(hook func(stripped gid.GID)) {
	r.table.OnLastReference(hook)
}

// Publish stamps g with this locality, fills it with the initial credit
// and accounts the issue, returning the managed handle the owner keeps.
// This is the birth of a name: from here copies of the handle may travel
// anywhere and the ledger tracks them until the last one dies.
func (r *Runtime) Publish(g gid.GID) *handle.Handle {
	box := r.cfg.Naming

	owned := gid.ReplaceLocalityID(g, box.LocalityID)
	issued := gid.FillCredit(&owned, int64(1)<<box.InitialLog2Credit, r.table)

	log.Debug().
		Str("gid", owned.String()).
		Int64("credit", issued).
		Msg("[naming] name published")

	return r.manager.New(owned, handle.Managed)
}

// Close stops the replenish limiter and drains the decrement queue.
func (r *Runtime) Close() {
	r.loopback.Close()
	r.limiter.Stop()
	r.cancel()
	log.Info().Msg("[naming] runtime stopped")
}
