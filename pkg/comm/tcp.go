package comm

import (
	"bufio"
	"context"
	"encoding/binary"
	"io"
	"net"
	"sync"
	"time"

	"github.com/pkg/errors"
	"github.com/sirupsen/logrus"
)

// Upper bound on the number of values in one frame, anything larger is
// treated as a corrupt stream
const maxFrameLen = 1 << 28

// Frames buffered per source before the reader goroutine stalls
const inboxDepth = 16

// How long to wait between attempts to reach a peer that isn't listening yet
const dialBackoff = 50 * time.Millisecond

var ErrMalformedFrame = errors.New("malformed frame")

type inMsg struct {
	payload []int32
	err     error
}

type tcpPeer struct {
	mu   sync.Mutex
	conn net.Conn
	w    *bufio.Writer
}

// Network of worker processes connected over TCP. Every rank listens on
// addrs[rank] and holds one outgoing connection to each other rank (so there
// is exactly one connection per directed pair, giving FIFO delivery).
//
// Frames are a little-endian uint32 count followed by count little-endian
// int32 values.
type TCPNetwork struct {
	rank  int
	addrs []string
	log   logrus.FieldLogger

	listener net.Listener
	out      []*tcpPeer
	inbox    []chan inMsg

	connMu  sync.Mutex
	inConns []net.Conn

	wg        sync.WaitGroup
	closeOnce sync.Once
	done      chan struct{}
}

// Join the network as 'rank'. Blocks until connections to every peer are
// established or ctx expires. Peers may start in any order.
func NewTCPNetwork(ctx context.Context, rank int, addrs []string, log logrus.FieldLogger) (*TCPNetwork, error) {
	if err := checkRank(rank, len(addrs)); err != nil {
		return nil, err
	}
	if log == nil {
		log = logrus.StandardLogger()
	}

	listener, err := net.Listen("tcp", addrs[rank])
	if err != nil {
		return nil, errors.Wrapf(err, "worker %v couldn't listen on %v", rank, addrs[rank])
	}

	self := &TCPNetwork{
		rank:     rank,
		addrs:    addrs,
		log:      log.WithField("rank", rank),
		listener: listener,
		out:      make([]*tcpPeer, len(addrs)),
		inbox:    make([]chan inMsg, len(addrs)),
		done:     make(chan struct{}),
	}
	for i := range self.inbox {
		self.inbox[i] = make(chan inMsg, inboxDepth)
	}

	self.wg.Add(1)
	go self.acceptLoop()

	for dst := range addrs {
		if dst == rank {
			continue
		}
		conn, err := self.dial(ctx, dst)
		if err != nil {
			self.Close()
			return nil, err
		}
		self.out[dst] = &tcpPeer{conn: conn, w: bufio.NewWriter(conn)}
	}

	return self, nil
}

func (self *TCPNetwork) dial(ctx context.Context, dst int) (net.Conn, error) {
	var d net.Dialer
	for {
		conn, err := d.DialContext(ctx, "tcp", self.addrs[dst])
		if err == nil {
			// Handshake: tell the peer who we are
			w := bufio.NewWriter(conn)
			if err = writeFrame(w, []int32{(int32)(self.rank)}); err == nil {
				err = w.Flush()
			}
			if err != nil {
				conn.Close()
				return nil, errors.Wrapf(err, "handshake with worker %v failed", dst)
			}
			self.log.WithField("peer", dst).Debug("connected")
			return conn, nil
		}

		select {
		case <-ctx.Done():
			return nil, errors.Wrapf(err, "couldn't reach worker %v at %v", dst, self.addrs[dst])
		case <-time.After(dialBackoff):
		}
	}
}

func (self *TCPNetwork) acceptLoop() {
	defer self.wg.Done()
	for {
		conn, err := self.listener.Accept()
		if err != nil {
			select {
			case <-self.done:
			default:
				self.log.WithError(err).Warn("accept failed")
			}
			return
		}

		self.connMu.Lock()
		self.inConns = append(self.inConns, conn)
		self.connMu.Unlock()

		self.wg.Add(1)
		go self.readLoop(conn)
	}
}

func (self *TCPNetwork) readLoop(conn net.Conn) {
	defer self.wg.Done()
	r := bufio.NewReader(conn)

	hello, err := readFrame(r)
	if err != nil || len(hello) != 1 || checkRank((int)(hello[0]), len(self.addrs)) != nil {
		self.log.WithError(err).Warn("rejected connection with bad handshake")
		conn.Close()
		return
	}
	src := (int)(hello[0])

	for {
		payload, err := readFrame(r)
		if err != nil {
			select {
			case <-self.done:
				return
			default:
			}
			if errors.Cause(err) == io.EOF {
				err = ErrClosed
			}
			self.push(src, inMsg{err: errors.Wrapf(err, "link from worker %v", src)})
			return
		}
		if !self.push(src, inMsg{payload: payload}) {
			return
		}
	}
}

func (self *TCPNetwork) push(src int, msg inMsg) bool {
	select {
	case self.inbox[src] <- msg:
		return true
	case <-self.done:
		return false
	}
}

func (self *TCPNetwork) Rank() int {
	return self.rank
}

func (self *TCPNetwork) Size() int {
	return len(self.addrs)
}

func (self *TCPNetwork) Send(ctx context.Context, dst int, payload []int32) error {
	if err := checkRank(dst, len(self.addrs)); err != nil {
		return err
	}
	peer := self.out[dst]
	if peer == nil {
		return errors.Errorf("worker %v cannot send to itself", self.rank)
	}

	select {
	case <-self.done:
		return ErrClosed
	default:
	}

	peer.mu.Lock()
	defer peer.mu.Unlock()

	if err := ctx.Err(); err != nil {
		return errors.Wrapf(err, "send %v->%v", self.rank, dst)
	}
	deadline, _ := ctx.Deadline()
	if err := peer.conn.SetWriteDeadline(deadline); err != nil {
		return errors.Wrapf(err, "send %v->%v", self.rank, dst)
	}

	// A peer that stops reading blocks the write, and a cancel without a
	// deadline has to break it. The watcher is gone before we return so it
	// can't touch the deadline of the next Send.
	if ctx.Done() != nil {
		written := make(chan struct{})
		watcherDone := make(chan struct{})
		go func() {
			defer close(watcherDone)
			select {
			case <-ctx.Done():
				peer.conn.SetWriteDeadline(time.Now())
			case <-written:
			}
		}()
		defer func() {
			close(written)
			<-watcherDone
		}()
	}

	err := writeFrame(peer.w, payload)
	if err == nil {
		err = peer.w.Flush()
	}
	if err != nil {
		// An interrupted frame leaves the link unusable, which is fine since
		// a failed exchange aborts the whole sort
		if ctxErr := ctx.Err(); ctxErr != nil {
			err = ctxErr
		}
		return errors.Wrapf(err, "send %v->%v", self.rank, dst)
	}
	return nil
}

func (self *TCPNetwork) Recv(ctx context.Context, src int) ([]int32, error) {
	if err := checkRank(src, len(self.addrs)); err != nil {
		return nil, err
	}
	if src == self.rank {
		return nil, errors.Errorf("worker %v cannot receive from itself", self.rank)
	}

	select {
	case msg := <-self.inbox[src]:
		return msg.payload, msg.err
	case <-self.done:
		return nil, ErrClosed
	case <-ctx.Done():
		return nil, errors.Wrapf(ctx.Err(), "receive %v<-%v", self.rank, src)
	}
}

func (self *TCPNetwork) Barrier(ctx context.Context) error {
	return Butterfly(ctx, self)
}

func (self *TCPNetwork) Close() error {
	var err error
	self.closeOnce.Do(func() {
		close(self.done)
		err = self.listener.Close()

		for _, peer := range self.out {
			if peer != nil {
				peer.conn.Close()
			}
		}

		self.connMu.Lock()
		for _, conn := range self.inConns {
			conn.Close()
		}
		self.connMu.Unlock()

		self.wg.Wait()
	})
	return err
}

func writeFrame(w io.Writer, payload []int32) error {
	if err := binary.Write(w, binary.LittleEndian, (uint32)(len(payload))); err != nil {
		return err
	}
	if len(payload) == 0 {
		return nil
	}
	return binary.Write(w, binary.LittleEndian, payload)
}

func readFrame(r io.Reader) ([]int32, error) {
	var count uint32
	if err := binary.Read(r, binary.LittleEndian, &count); err != nil {
		return nil, err
	}
	if count > maxFrameLen {
		return nil, errors.Wrapf(ErrMalformedFrame, "frame claims %v values", count)
	}

	payload := make([]int32, count)
	if count == 0 {
		return payload, nil
	}
	if err := binary.Read(r, binary.LittleEndian, payload); err != nil {
		if err == io.EOF {
			err = io.ErrUnexpectedEOF
		}
		return nil, err
	}
	return payload, nil
}

// Reserve n distinct loopback addresses by binding to port 0. The ports are
// released before returning so there is a small window where another process
// could grab one.
func FreeLoopbackAddrs(n int) ([]string, error) {
	addrs := make([]string, n)
	listeners := make([]net.Listener, 0, n)
	defer func() {
		for _, l := range listeners {
			l.Close()
		}
	}()

	for i := 0; i < n; i++ {
		l, err := net.Listen("tcp", "127.0.0.1:0")
		if err != nil {
			return nil, errors.Wrap(err, "couldn't reserve loopback port")
		}
		listeners = append(listeners, l)
		addrs[i] = l.Addr().String()
	}
	return addrs, nil
}
