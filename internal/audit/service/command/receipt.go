package command

import (
	"context"
	"sync"

	"github.com/google/uuid"
)

// Receipt resolves once an async append has finished, successfully or not.
type Receipt struct {
	done chan struct{}
	once sync.Once
	id   uuid.UUID
	err  error
}

func newReceipt() *Receipt {
	return &Receipt{done: make(chan struct{})}
}

func (r *Receipt) resolve(id uuid.UUID, err error) {
	r.once.Do(func() {
		r.id = id
		r.err = err
		close(r.done)
	})
}

// Done is closed when the append has finished.
func (r *Receipt) Done() <-chan struct{} { return r.done }

// Wait blocks until the append finishes or ctx is done. Giving up on the wait does
// not cancel the append.
func (r *Receipt) Wait(ctx context.Context) (uuid.UUID, error) {
	select {
	case <-r.done:
		return r.id, r.err
	case <-ctx.Done():
		return uuid.Nil, ctx.Err()
	}
}
