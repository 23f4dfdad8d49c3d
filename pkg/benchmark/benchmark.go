package benchmark

import (
	"context"
	"fmt"
	"io/ioutil"
	"os"
	"runtime"

	"github.com/nathantp/hypercube-sort/pkg/data"
	"github.com/nathantp/hypercube-sort/pkg/launch"
	"github.com/nathantp/hypercube-sort/pkg/sort"
	"github.com/pkg/errors"
)

// Sort in (left untouched) with in-process workers and time it under
// "TTotal". The result is verified but verification isn't timed.
func BenchMem(ctx context.Context, in []int32, cfg *sort.Config, stats SortStats) error {
	parts := sort.Split(in, cfg.NWorker)

	timer := stats.Timer("TTotal")
	timer.Start()
	err := sort.SortDistrib(ctx, parts, cfg)
	timer.Record()
	if err != nil {
		return err
	}

	return sort.CheckPartitions(in, parts)
}

// Like BenchMem but partitions are staged through on-disk arrays. Load and
// store time is included.
func BenchFile(ctx context.Context, in []int32, cfg *sort.Config, stats SortStats) error {
	tmpDir, err := ioutil.TempDir("", "benchFileDistrib")
	if err != nil {
		return errors.Wrap(err, "Failed to create temporary directory")
	}
	defer os.RemoveAll(tmpDir)

	factory := data.NewFileArrayFactory(tmpDir)
	inArr, err := factory.Create("input", cfg.NWorker)
	if err != nil {
		return errors.Wrap(err, "Failed to create input array")
	}
	if err := data.Scatter(inArr, in); err != nil {
		return err
	}
	outArr, err := factory.Create("output", cfg.NWorker)
	if err != nil {
		return errors.Wrap(err, "Failed to create output array")
	}

	timer := stats.Timer("TTotal")
	timer.Start()
	err = sort.SortDistribArray(ctx, inArr, outArr, cfg)
	timer.Record()
	if err != nil {
		return err
	}

	out, err := data.Gather(outArr)
	if err != nil {
		return err
	}
	return sort.CheckSort(in, out)
}

// One worker process per rank. "TTotal" includes process startup, "TNetwork"
// is the time rank 0 spent in the network itself.
func BenchProcs(ctx context.Context, bin string, in []int32, cfg *sort.Config, stats SortStats) error {
	tmpDir, err := ioutil.TempDir("", "benchProcsDistrib")
	if err != nil {
		return errors.Wrap(err, "Failed to create temporary directory")
	}
	defer os.RemoveAll(tmpDir)

	timer := stats.Timer("TTotal")
	timer.Start()
	out, resp0, err := launch.SortProcs(ctx, bin, tmpDir, in, cfg)
	timer.Record()
	if err != nil {
		return err
	}
	stats.Timer("TNetwork").Add(resp0.Elapsed())

	return sort.CheckSort(in, out)
}

type benchFunc func(ctx context.Context, in []int32, cfg *sort.Config, stats SortStats) error

// This runs manual benchmarks (not managed by Go's benchmarking tool) for each
// worker count: in-memory, file-backed and, if bin is set, one process per
// worker. Even if an error is returned, the returned stats may be non-nil and
// contain valid results up until the error.
func RunBenchmarks(ctx context.Context, bin string, base *sort.Config, nworkers []int, nrepeat int, seed int64) (map[string]SortStats, error) {
	stats := make(map[string]SortStats)

	in := sort.RandomInputs((int)(base.Size), seed)
	for _, nworker := range nworkers {
		cfg := *base
		cfg.NWorker = nworker
		if err := cfg.Validate(); err != nil {
			return stats, err
		}

		benches := map[string]benchFunc{
			"Mem":  BenchMem,
			"File": BenchFile,
		}
		if bin != "" {
			benches["Proc"] = func(ctx context.Context, in []int32, cfg *sort.Config, stats SortStats) error {
				return BenchProcs(ctx, bin, in, cfg, stats)
			}
		}

		for kind, bench := range benches {
			name := fmt.Sprintf("%v%v", kind, nworker)
			stats[name] = make(SortStats)
			for i := 0; i < nrepeat; i++ {
				if err := bench(ctx, in, &cfg, stats[name]); err != nil {
					return stats, errors.Wrapf(err, "Failed to benchmark %v with %v workers", kind, nworker)
				}
				runtime.GC()
			}
		}
	}
	return stats, nil
}
