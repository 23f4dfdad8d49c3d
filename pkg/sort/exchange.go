package sort

import (
	"context"

	"github.com/nathantp/hypercube-sort/pkg/comm"
	"github.com/pkg/errors"
)

// One compare-exchange with partner followed by a local sort. Afterwards this
// worker holds the lowest (KeepLow) or highest (KeepHigh) len(Part) values of
// the union of both partitions, and the partner holds the rest.
func (w *Worker) exchange(ctx context.Context, t comm.Transport, partner int, role Role) error {
	if w.timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, w.timeout)
		defer cancel()
	}

	var err error
	if role == KeepLow {
		err = w.compareLow(ctx, t, partner)
	} else {
		err = w.compareHigh(ctx, t, partner)
	}
	if err != nil {
		return err
	}

	return w.localSort(ctx)
}

// Low side: send our max, learn the partner's min, ship every value above
// that min, and keep the lowest values of what we have plus what comes back.
// The low side sends first at every phase but the last.
func (w *Worker) compareLow(ctx context.Context, t comm.Transport, partner int) error {
	n := len(w.Part)

	if err := t.Send(ctx, partner, []int32{w.Part[n-1]}); err != nil {
		return errors.Wrap(err, "sending max")
	}

	partnerMin, err := recvBoundary(ctx, t, partner)
	if err != nil {
		return errors.Wrap(err, "receiving partner min")
	}

	// Part is sorted, so the values above partnerMin are a suffix
	start := n
	for start > 0 && w.Part[start-1] > partnerMin {
		start--
	}

	sendBuf := make([]int32, 0, n+1)
	sendBuf = append(sendBuf, (int32)(n-start))
	sendBuf = append(sendBuf, w.Part[start:]...)
	if err := t.Send(ctx, partner, sendBuf); err != nil {
		return errors.Wrap(err, "sending values above partner min")
	}

	recv, err := recvList(ctx, t, partner, n)
	if err != nil {
		return errors.Wrap(err, "receiving partner values")
	}

	w.keepLow(recv)
	return nil
}

// Mirror image of compareLow. The high side receives first at every phase
// but the last.
func (w *Worker) compareHigh(ctx context.Context, t comm.Transport, partner int) error {
	n := len(w.Part)

	partnerMax, err := recvBoundary(ctx, t, partner)
	if err != nil {
		return errors.Wrap(err, "receiving partner max")
	}

	if err := t.Send(ctx, partner, []int32{w.Part[0]}); err != nil {
		return errors.Wrap(err, "sending min")
	}

	// Values below partnerMax are a prefix
	end := 0
	for end < n && w.Part[end] < partnerMax {
		end++
	}

	sendBuf := make([]int32, 0, n+1)
	sendBuf = append(sendBuf, (int32)(end))
	sendBuf = append(sendBuf, w.Part[:end]...)

	recv, err := recvList(ctx, t, partner, n)
	if err != nil {
		return errors.Wrap(err, "receiving partner values")
	}

	if err := t.Send(ctx, partner, sendBuf); err != nil {
		return errors.Wrap(err, "sending values below partner max")
	}

	w.keepHigh(recv)
	return nil
}

// Values the partner didn't send are all >= our max, so the lowest n of
// Part+recv are the lowest n of the whole pair.
func (w *Worker) keepLow(recv []int32) {
	if len(recv) == 0 {
		return
	}
	merged := make([]int32, len(w.Part)+len(recv))
	merge(merged, w.Part, recv)
	copy(w.Part, merged[:len(w.Part)])
}

func (w *Worker) keepHigh(recv []int32) {
	if len(recv) == 0 {
		return
	}
	merged := make([]int32, len(w.Part)+len(recv))
	merge(merged, w.Part, recv)
	copy(w.Part, merged[len(recv):])
}

func recvBoundary(ctx context.Context, t comm.Transport, partner int) (int32, error) {
	msg, err := t.Recv(ctx, partner)
	if err != nil {
		return 0, err
	}
	if len(msg) != 1 {
		return 0, errors.Wrapf(ErrMalformedPayload, "boundary message has %v values", len(msg))
	}
	return msg[0], nil
}

// Receive a count-prefixed list of at most n ascending values
func recvList(ctx context.Context, t comm.Transport, partner int, n int) ([]int32, error) {
	msg, err := t.Recv(ctx, partner)
	if err != nil {
		return nil, err
	}
	if len(msg) == 0 {
		return nil, errors.Wrap(ErrMalformedPayload, "missing count prefix")
	}

	count := (int)(msg[0])
	if count < 0 || count > n || count != len(msg)-1 {
		return nil, errors.Wrapf(ErrMalformedPayload, "count %v with %v values (partition length %v)", count, len(msg)-1, n)
	}

	vals := msg[1:]
	if !isSorted(vals) {
		return nil, errors.Wrap(ErrMalformedPayload, "values not in ascending order")
	}
	return vals, nil
}
