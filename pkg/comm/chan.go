package comm

import (
	"context"
	"sync"

	"github.com/pkg/errors"
)

// Depth of each directed link. The exchange protocol never has more than two
// messages in flight on one link.
const chanDepth = 2

// In-process network. Every worker gets its own endpoint; there is one
// buffered channel per directed (src, dst) pair. Workers must only share
// data through the endpoints.
type ChanNetwork struct {
	size  int
	links [][]chan []int32 // links[src][dst]

	closeOnce sync.Once
	done      chan struct{}
}

func NewChanNetwork(size int) (*ChanNetwork, error) {
	if size < 1 {
		return nil, errors.Errorf("network needs at least one worker, got %v", size)
	}

	links := make([][]chan []int32, size)
	for src := 0; src < size; src++ {
		links[src] = make([]chan []int32, size)
		for dst := 0; dst < size; dst++ {
			if src != dst {
				links[src][dst] = make(chan []int32, chanDepth)
			}
		}
	}

	return &ChanNetwork{size: size, links: links, done: make(chan struct{})}, nil
}

func (self *ChanNetwork) Size() int {
	return self.size
}

// Return the Transport used by worker 'rank'
func (self *ChanNetwork) Endpoint(rank int) (Transport, error) {
	if err := checkRank(rank, self.size); err != nil {
		return nil, err
	}
	return &chanEndpoint{net: self, rank: rank}, nil
}

// Shut down the network. Blocked senders and receivers return ErrClosed.
func (self *ChanNetwork) Close() error {
	self.closeOnce.Do(func() { close(self.done) })
	return nil
}

type chanEndpoint struct {
	net  *ChanNetwork
	rank int
}

func (self *chanEndpoint) Rank() int {
	return self.rank
}

func (self *chanEndpoint) Size() int {
	return self.net.size
}

func (self *chanEndpoint) Send(ctx context.Context, dst int, payload []int32) error {
	if err := checkRank(dst, self.net.size); err != nil {
		return err
	}
	if dst == self.rank {
		return errors.Errorf("worker %v cannot send to itself", self.rank)
	}

	// The receiver owns whatever it gets
	msg := make([]int32, len(payload))
	copy(msg, payload)

	select {
	case self.net.links[self.rank][dst] <- msg:
		return nil
	case <-self.net.done:
		return ErrClosed
	case <-ctx.Done():
		return errors.Wrapf(ctx.Err(), "send %v->%v", self.rank, dst)
	}
}

func (self *chanEndpoint) Recv(ctx context.Context, src int) ([]int32, error) {
	if err := checkRank(src, self.net.size); err != nil {
		return nil, err
	}
	if src == self.rank {
		return nil, errors.Errorf("worker %v cannot receive from itself", self.rank)
	}

	select {
	case msg := <-self.net.links[src][self.rank]:
		return msg, nil
	case <-self.net.done:
		return nil, ErrClosed
	case <-ctx.Done():
		return nil, errors.Wrapf(ctx.Err(), "receive %v<-%v", self.rank, src)
	}
}

func (self *chanEndpoint) Barrier(ctx context.Context) error {
	return Butterfly(ctx, self)
}

// Endpoints share the network, closing one is a nop. Use ChanNetwork.Close.
func (self *chanEndpoint) Close() error {
	return nil
}
