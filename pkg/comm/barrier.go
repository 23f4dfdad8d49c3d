package comm

import (
	"context"

	"github.com/pkg/errors"
)

// Butterfly barrier over t. Size must be a power of two. In round k every
// worker exchanges an empty message with rank^(1<<k); after log2(size) rounds
// every worker has (transitively) heard from every other one.
//
// Because delivery is FIFO per pair, this is safe to call right after the last
// data exchange: any data still in flight to a worker is received before the
// barrier token that follows it.
func Butterfly(ctx context.Context, t Transport) error {
	size := t.Size()
	if size&(size-1) != 0 {
		return errors.Errorf("butterfly barrier needs a power of two size, got %v", size)
	}

	rank := t.Rank()
	for bit := 1; bit < size; bit <<= 1 {
		peer := rank ^ bit

		// Lower rank sends first so unbuffered transports can't deadlock
		if rank < peer {
			if err := t.Send(ctx, peer, nil); err != nil {
				return errors.Wrapf(err, "barrier send to %v", peer)
			}
			if err := recvToken(ctx, t, peer); err != nil {
				return err
			}
		} else {
			if err := recvToken(ctx, t, peer); err != nil {
				return err
			}
			if err := t.Send(ctx, peer, nil); err != nil {
				return errors.Wrapf(err, "barrier send to %v", peer)
			}
		}
	}
	return nil
}

func recvToken(ctx context.Context, t Transport, peer int) error {
	tok, err := t.Recv(ctx, peer)
	if err != nil {
		return errors.Wrapf(err, "barrier receive from %v", peer)
	}
	if len(tok) != 0 {
		return errors.Errorf("barrier token from %v carried %v values", peer, len(tok))
	}
	return nil
}
