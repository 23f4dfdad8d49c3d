package comm

import (
	"context"

	"github.com/pkg/errors"
)

var (
	ErrClosed  = errors.New("transport closed")
	ErrBadRank = errors.New("rank out of range")
)

// Point-to-point message passing between the workers of one sort. Messages
// between a given (source, destination) pair are delivered in the order they
// were sent. Send and Recv block until the message is handed off (or ctx is
// done).
type Transport interface {
	// Rank of the local worker, 0 <= Rank() < Size()
	Rank() int

	// Total number of workers
	Size() int

	// Send payload to dst. The transport does not retain payload after Send
	// returns.
	Send(ctx context.Context, dst int, payload []int32) error

	// Receive the next payload sent by src
	Recv(ctx context.Context, src int) ([]int32, error)

	// Blocks until every worker has called Barrier
	Barrier(ctx context.Context) error

	Close() error
}

func checkRank(rank int, size int) error {
	if rank < 0 || rank >= size {
		return errors.Wrapf(ErrBadRank, "rank %v (size %v)", rank, size)
	}
	return nil
}
