package sort

import (
	"time"

	"github.com/sirupsen/logrus"
	"golang.org/x/sync/semaphore"
)

// State of one worker in the network. The worker exclusively owns Part; it is
// mutated in place by every exchange and local sort and always keeps the same
// length.
type Worker struct {
	Rank    int
	NWorker int
	Dim     int
	Part    []int32

	timeout time.Duration
	limiter *semaphore.Weighted
	log     logrus.FieldLogger
}

func NewWorker(rank int, part []int32, cfg *Config) (*Worker, error) {
	d, err := Dimension(cfg.NWorker)
	if err != nil {
		return nil, err
	}
	if rank < 0 || rank >= cfg.NWorker {
		return nil, configErrorf("rank %v out of range for %v workers", rank, cfg.NWorker)
	}
	if len(part) == 0 {
		return nil, configErrorf("worker %v has an empty partition", rank)
	}

	return &Worker{
		Rank:    rank,
		NWorker: cfg.NWorker,
		Dim:     d,
		Part:    part,
		timeout: cfg.ExchangeTimeout,
		log:     cfg.logger().WithField("rank", rank),
	}, nil
}

// Share a local sort limiter between workers of the same process
func (w *Worker) SetLimiter(limiter *semaphore.Weighted) {
	w.limiter = limiter
}

// Returns a limiter for cfg, or nil if local sorts aren't limited
func NewLimiter(cfg *Config) *semaphore.Weighted {
	if cfg.SortParallelism <= 0 {
		return nil
	}
	return semaphore.NewWeighted((int64)(cfg.SortParallelism))
}
