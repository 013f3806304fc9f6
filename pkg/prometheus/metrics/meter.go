package metrics

import (
	"strconv"
	"sync"

	"github.com/Borislavv/distributed-naming/pkg/prometheus/metrics/keyword"
	"github.com/VictoriaMetrics/metrics"
)

// Meter counts naming layer traffic: credit splits, replenish round
// trips, outgoing decrements and handle churn.
type Meter interface {
	IncSplit()
	IncReplenish()
	IncReplenishError()
	IncDecrement(ownerLocality uint32, amount int64)
	AddIssued(amount int64)
	HandleCreated()
	HandleReleased()
	CreditMoved()
}

type Metrics struct{}

func New() *Metrics {
	return &Metrics{}
}

var bufPool = sync.Pool{
	New: func() any {
		b := make([]byte, 0, 128)
		return &b
	},
}

func getBuf() *[]byte {
	return bufPool.Get().(*[]byte)
}

func putBuf(b *[]byte) {
	*b = (*b)[:0]
	bufPool.Put(b)
}

func (m *Metrics) IncSplit() {
	metrics.GetOrCreateCounter(keyword.CreditSplits).Inc()
}

func (m *Metrics) IncReplenish() {
	metrics.GetOrCreateCounter(keyword.CreditReplenishes).Inc()
}

func (m *Metrics) IncReplenishError() {
	metrics.GetOrCreateCounter(keyword.ReplenishErrors).Inc()
}

func (m *Metrics) IncDecrement(ownerLocality uint32, amount int64) {
	buf := getBuf()
	defer putBuf(buf)

	*buf = append(*buf, keyword.CreditDecrements...)
	*buf = append(*buf, `{locality="`...)
	*buf = strconv.AppendUint(*buf, uint64(ownerLocality), 10)
	*buf = append(*buf, `"}`...)

	metrics.GetOrCreateCounter(string(*buf)).Add(int(amount))
}

func (m *Metrics) AddIssued(amount int64) {
	metrics.GetOrCreateCounter(keyword.CreditIssued).Add(int(amount))
}

func (m *Metrics) HandleCreated() {
	metrics.GetOrCreateCounter(keyword.HandlesCreated).Inc()
}

func (m *Metrics) HandleReleased() {
	metrics.GetOrCreateCounter(keyword.HandlesReleased).Inc()
}

func (m *Metrics) CreditMoved() {
	metrics.GetOrCreateCounter(keyword.HandlesMoved).Inc()
}

// Noop is used where metering is switched off (tests mostly).
type Noop struct{}

func (Noop) IncSplit()                  {}
func (Noop) IncReplenish()              {}
func (Noop) IncReplenishError()         {}
func (Noop) IncDecrement(uint32, int64) {}
func (Noop) AddIssued(int64)            {}
func (Noop) HandleCreated()             {}
func (Noop) HandleReleased()            {}
func (Noop) CreditMoved()               {}
