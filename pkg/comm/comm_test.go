package comm

import (
	"bytes"
	"context"
	"encoding/binary"
	"sync"
	"testing"
	"time"

	"github.com/pkg/errors"
	"github.com/sirupsen/logrus"
	"github.com/stretchr/testify/require"
)

// Runs fn once per endpoint concurrently and fails the test if they don't all
// finish in time
func runAll(t *testing.T, eps []Transport, fn func(Transport) error) {
	var wg sync.WaitGroup
	errs := make([]error, len(eps))

	wg.Add(len(eps))
	for i := range eps {
		i := i
		go func() {
			defer wg.Done()
			errs[i] = fn(eps[i])
		}()
	}

	wgChan := make(chan struct{})
	go func() {
		defer close(wgChan)
		wg.Wait()
	}()

	select {
	case <-wgChan:
	case <-time.After(5 * time.Second):
		t.Fatalf("Timeout")
	}

	for i, err := range errs {
		require.Nilf(t, err, "Worker %v failed", i)
	}
}

func chanEndpoints(t *testing.T, size int) (*ChanNetwork, []Transport) {
	net, err := NewChanNetwork(size)
	require.Nil(t, err, "Failed to create network")

	eps := make([]Transport, size)
	for i := 0; i < size; i++ {
		eps[i], err = net.Endpoint(i)
		require.Nilf(t, err, "Failed to get endpoint %v", i)
	}
	return net, eps
}

// Each worker sends three messages to its hypercube neighbor across bit 0 and
// checks that they come back in order
func pingPong(tr Transport) error {
	ctx := context.Background()
	peer := tr.Rank() ^ 1
	for i := 0; i < 3; i++ {
		if err := tr.Send(ctx, peer, []int32{(int32)(tr.Rank()), (int32)(i)}); err != nil {
			return err
		}
	}
	for i := 0; i < 3; i++ {
		msg, err := tr.Recv(ctx, peer)
		if err != nil {
			return err
		}
		if len(msg) != 2 || msg[0] != (int32)(peer) || msg[1] != (int32)(i) {
			return errors.Errorf("unexpected message %v from %v", msg, peer)
		}
	}
	return tr.Barrier(ctx)
}

func TestChanNetwork(t *testing.T) {
	net, eps := chanEndpoints(t, 4)
	defer net.Close()

	// Needs depth >= 3 for the pingPong pattern, so interleave with a
	// receiver goroutine
	runAll(t, eps, func(tr Transport) error {
		ctx := context.Background()
		peer := tr.Rank() ^ 1
		errc := make(chan error, 1)
		go func() {
			for i := 0; i < 3; i++ {
				msg, err := tr.Recv(ctx, peer)
				if err != nil {
					errc <- err
					return
				}
				if msg[1] != (int32)(i) {
					errc <- errors.Errorf("out of order: %v", msg)
					return
				}
			}
			errc <- nil
		}()
		for i := 0; i < 3; i++ {
			if err := tr.Send(ctx, peer, []int32{(int32)(tr.Rank()), (int32)(i)}); err != nil {
				return err
			}
		}
		if err := <-errc; err != nil {
			return err
		}
		return tr.Barrier(ctx)
	})
}

func TestChanNetworkCopiesPayload(t *testing.T) {
	net, eps := chanEndpoints(t, 2)
	defer net.Close()

	ctx := context.Background()
	payload := []int32{1, 2, 3}
	require.Nil(t, eps[0].Send(ctx, 1, payload))
	payload[0] = 42

	got, err := eps[1].Recv(ctx, 0)
	require.Nil(t, err)
	require.Equal(t, []int32{1, 2, 3}, got, "Receiver saw sender's later write")
}

func TestChanNetworkErrors(t *testing.T) {
	net, eps := chanEndpoints(t, 2)

	t.Run("BadRank", func(t *testing.T) {
		err := eps[0].Send(context.Background(), 2, nil)
		require.Equal(t, ErrBadRank, errors.Cause(err))

		_, err = net.Endpoint(-1)
		require.Equal(t, ErrBadRank, errors.Cause(err))
	})

	t.Run("Self", func(t *testing.T) {
		require.NotNil(t, eps[0].Send(context.Background(), 0, nil))
	})

	t.Run("Timeout", func(t *testing.T) {
		ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
		defer cancel()

		_, err := eps[0].Recv(ctx, 1)
		require.Equal(t, context.DeadlineExceeded, errors.Cause(err))
	})

	t.Run("Closed", func(t *testing.T) {
		net.Close()
		_, err := eps[1].Recv(context.Background(), 0)
		require.Equal(t, ErrClosed, err)
	})
}

func TestButterflyRejectsOddSize(t *testing.T) {
	net, eps := chanEndpoints(t, 3)
	defer net.Close()

	require.NotNil(t, Butterfly(context.Background(), eps[0]))
}

func TestFrame(t *testing.T) {
	var buf bytes.Buffer

	require.Nil(t, writeFrame(&buf, []int32{-5, 0, 7}))
	require.Nil(t, writeFrame(&buf, nil))

	got, err := readFrame(&buf)
	require.Nil(t, err)
	require.Equal(t, []int32{-5, 0, 7}, got)

	got, err = readFrame(&buf)
	require.Nil(t, err)
	require.Zero(t, len(got))

	t.Run("Truncated", func(t *testing.T) {
		var buf bytes.Buffer
		require.Nil(t, writeFrame(&buf, []int32{1, 2, 3}))
		short := bytes.NewReader(buf.Bytes()[:buf.Len()-2])

		_, err := readFrame(short)
		require.NotNil(t, err, "Truncated frame accepted")
	})

	t.Run("Oversized", func(t *testing.T) {
		var buf bytes.Buffer
		binary.Write(&buf, binary.LittleEndian, (uint32)(maxFrameLen+1))

		_, err := readFrame(&buf)
		require.Equal(t, ErrMalformedFrame, errors.Cause(err))
	})
}

// Join size TCP workers on loopback. Peers are started concurrently since
// NewTCPNetwork waits for everyone.
func tcpEndpoints(ctx context.Context, t *testing.T, size int) []Transport {
	addrs, err := FreeLoopbackAddrs(size)
	require.Nil(t, err, "Couldn't reserve addresses")

	log := logrus.New()
	log.SetLevel(logrus.WarnLevel)

	eps := make([]Transport, size)
	var wg sync.WaitGroup
	errs := make([]error, size)
	wg.Add(size)
	for i := 0; i < size; i++ {
		i := i
		go func() {
			defer wg.Done()
			var tn *TCPNetwork
			tn, errs[i] = NewTCPNetwork(ctx, i, addrs, log)
			if errs[i] == nil {
				eps[i] = tn
			}
		}()
	}
	wg.Wait()
	for i, err := range errs {
		require.Nilf(t, err, "Worker %v failed to join", i)
	}
	return eps
}

func closeAll(eps []Transport) {
	for _, ep := range eps {
		ep.Close()
	}
}

func TestTCPNetwork(t *testing.T) {
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	eps := tcpEndpoints(ctx, t, 4)
	defer closeAll(eps)

	runAll(t, eps, pingPong)

	t.Run("LargePayload", func(t *testing.T) {
		big := make([]int32, 100000)
		for i := range big {
			big[i] = (int32)(i - 50000)
		}
		runAll(t, eps, func(tr Transport) error {
			peer := tr.Rank() ^ 2
			if tr.Rank() < peer {
				if err := tr.Send(ctx, peer, big); err != nil {
					return err
				}
				return nil
			}
			got, err := tr.Recv(ctx, peer)
			if err != nil {
				return err
			}
			if len(got) != len(big) || got[0] != big[0] || got[len(got)-1] != big[len(big)-1] {
				return errors.New("payload corrupted")
			}
			return nil
		})
	})
}

// Worker 1 never receives, so worker 0 eventually blocks inside a write.
// Cancelling a context with no deadline must still get it out.
func TestTCPSendCancel(t *testing.T) {
	setupCtx, setupCancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer setupCancel()

	eps := tcpEndpoints(setupCtx, t, 2)
	defer closeAll(eps)

	ctx, cancel := context.WithCancel(context.Background())
	big := make([]int32, 1<<20)

	errc := make(chan error, 1)
	go func() {
		for {
			if err := eps[0].Send(ctx, 1, big); err != nil {
				errc <- err
				return
			}
		}
	}()

	time.Sleep(300 * time.Millisecond)
	cancel()

	select {
	case err := <-errc:
		require.Equal(t, context.Canceled, errors.Cause(err))
	case <-time.After(3 * time.Second):
		t.Fatalf("Send still blocked after cancel")
	}

	// Later sends fail fast instead of hanging on the broken link
	err := eps[0].Send(ctx, 1, []int32{1})
	require.Equal(t, context.Canceled, errors.Cause(err))
}
