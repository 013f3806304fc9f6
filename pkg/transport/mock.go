package transport

import (
	"sync"

	"github.com/Borislavv/distributed-naming/pkg/gid"
)

// Recorder is a Sender that captures decrements for assertions in tests.
type Recorder struct {
	mu   sync.Mutex
	sent []Decrement
}

func NewRecorder() *Recorder {
	return &Recorder{}
}

func (r *Recorder) SendDecrement(owner uint32, stripped gid.GID, amount int64) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.sent = append(r.sent, Decrement{Owner: owner, GID: stripped, Amount: amount})
	return nil
}

// Sent returns a snapshot of everything recorded so far.
func (r *Recorder) Sent() []Decrement {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make([]Decrement, len(r.sent))
	copy(out, r.sent)
	return out
}

// Total sums the recorded amounts sent for one name.
func (r *Recorder) Total(stripped gid.GID) int64 {
	r.mu.Lock()
	defer r.mu.Unlock()
	var total int64
	for _, dec := range r.sent {
		if gid.Equal(dec.GID, stripped) {
			total += dec.Amount
		}
	}
	return total
}
