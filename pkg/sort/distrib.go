package sort

import (
	"context"

	"github.com/nathantp/hypercube-sort/pkg/comm"
	"github.com/nathantp/hypercube-sort/pkg/data"
	"github.com/pkg/errors"
	"golang.org/x/sync/errgroup"
)

// Sort parts in place across len(parts) in-process workers, one goroutine per
// worker talking over a ChanNetwork. On success the concatenation of parts is
// sorted. If any worker fails the whole sort is aborted and the contents of
// parts are unspecified.
func SortDistrib(ctx context.Context, parts [][]int32, cfg *Config) error {
	if cfg.NWorker != len(parts) {
		return configErrorf("config expects %v workers, got %v partitions", cfg.NWorker, len(parts))
	}
	if err := cfg.Validate(); err != nil {
		return err
	}
	for i, part := range parts {
		if len(part) != cfg.PartLen() {
			return configErrorf("partition %v has %v values, expected %v", i, len(part), cfg.PartLen())
		}
	}

	workers := make([]*Worker, cfg.NWorker)
	limiter := NewLimiter(cfg)
	for rank := range workers {
		w, err := NewWorker(rank, parts[rank], cfg)
		if err != nil {
			return err
		}
		w.SetLimiter(limiter)
		workers[rank] = w
	}

	net, err := comm.NewChanNetwork(cfg.NWorker)
	if err != nil {
		return err
	}
	defer net.Close()

	// The first failure cancels gctx, which unblocks every worker waiting on
	// a partner
	g, gctx := errgroup.WithContext(ctx)
	for rank := range workers {
		w := workers[rank]
		endpoint, err := net.Endpoint(rank)
		if err != nil {
			return err
		}

		g.Go(func() error {
			return RunNetwork(gctx, w, endpoint)
		})
	}

	if err := g.Wait(); err != nil {
		return errors.Wrap(err, "distributed sort aborted")
	}
	return nil
}

// Sort a flat slice with cfg.NWorker in-process workers. in is not modified.
func SortFromRaw(ctx context.Context, in []int32, cfg *Config) ([]int32, error) {
	if (int64)(len(in)) != cfg.Size {
		return nil, configErrorf("config expects %v values, got %v", cfg.Size, len(in))
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	parts := Split(in, cfg.NWorker)
	if err := SortDistrib(ctx, parts, cfg); err != nil {
		return nil, err
	}
	return Concat(parts), nil
}

// Sort the values in in (one partition per worker) and write worker i's
// final partition to partition i of out. Both arrays must have cfg.NWorker
// partitions.
func SortDistribArray(ctx context.Context, in data.DistribArray, out data.DistribArray, cfg *Config) error {
	if in.NPart() != cfg.NWorker || out.NPart() != cfg.NWorker {
		return configErrorf("arrays have %v and %v partitions, expected %v",
			in.NPart(), out.NPart(), cfg.NWorker)
	}

	parts := make([][]int32, cfg.NWorker)
	for i := range parts {
		part, err := data.ReadPart(in, i)
		if err != nil {
			return errors.Wrapf(err, "Couldn't load input for worker %v", i)
		}
		parts[i] = part
	}

	if err := SortDistrib(ctx, parts, cfg); err != nil {
		return err
	}

	for i, part := range parts {
		if err := data.WritePart(out, i, part); err != nil {
			return errors.Wrapf(err, "Couldn't store output of worker %v", i)
		}
	}
	return nil
}
