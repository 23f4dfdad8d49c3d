package main

import (
	"context"
	"fmt"
	"io/ioutil"
	"os"
	"os/signal"
	"runtime"
	"strings"
	"time"

	"github.com/nathantp/hypercube-sort/pkg/benchmark"
	"github.com/nathantp/hypercube-sort/pkg/data"
	"github.com/nathantp/hypercube-sort/pkg/launch"
	"github.com/nathantp/hypercube-sort/pkg/sort"
	"github.com/pkg/errors"
	"github.com/pkg/profile"
	"github.com/sirupsen/logrus"
	flag "github.com/spf13/pflag"
)

// Number of values of rank 0's partition to print
const outputNum = 10

type options struct {
	size         int64
	workers      int
	mode         string
	seed         int64
	timeout      time.Duration
	parallelism  int
	repeat       int
	benchWorkers []int
	cpuprofile   string
	verbose      bool
	worker       bool
}

func newFlagSet(opts *options) *flag.FlagSet {
	fs := flag.NewFlagSet("hypersort", flag.ContinueOnError)
	fs.Int64VarP(&opts.size, "size", "n", 1<<20, "total number of values to sort")
	fs.IntVarP(&opts.workers, "workers", "p", 8, "number of workers (power of two)")
	fs.StringVar(&opts.mode, "mode", "mem", "mem, file, proc or bench")
	fs.Int64Var(&opts.seed, "seed", 0, "seed for the random input")
	fs.DurationVar(&opts.timeout, "timeout", 30*time.Second, "limit on each compare-exchange (0 for none)")
	fs.IntVar(&opts.parallelism, "sort-parallelism", runtime.NumCPU(), "max concurrent local sorts per process (0 for no limit)")
	fs.IntVar(&opts.repeat, "repeat", 5, "bench mode: runs per worker count")
	fs.IntSliceVar(&opts.benchWorkers, "bench-workers", []int{1, 2, 4, 8, 16}, "bench mode: worker counts to try")
	fs.StringVar(&opts.cpuprofile, "cpuprofile", "", "write a cpu profile to this directory")
	fs.BoolVarP(&opts.verbose, "verbose", "v", false, "log every compare-exchange")
	fs.BoolVar(&opts.worker, "worker", false, "run as a worker process (internal)")
	// Only fails if the flag above doesn't exist
	if err := fs.MarkHidden("worker"); err != nil {
		panic(err)
	}
	return fs
}

func parseFlags(args []string) (*options, error) {
	opts := &options{}
	fs := newFlagSet(opts)
	if err := fs.Parse(args); err != nil {
		return nil, err
	}

	switch opts.mode {
	case "mem", "file", "proc", "bench":
	default:
		return nil, errors.Errorf("unknown mode %q", opts.mode)
	}
	return opts, nil
}

// Cancel the returned context on SIGINT
func signalContext() (context.Context, context.CancelFunc) {
	ctx, cancel := context.WithCancel(context.Background())
	sigs := make(chan os.Signal, 1)
	signal.Notify(sigs, os.Interrupt)
	go func() {
		select {
		case <-sigs:
			cancel()
		case <-ctx.Done():
		}
		signal.Stop(sigs)
	}()
	return ctx, cancel
}

func main() {
	retcode := 0
	defer func() { os.Exit(retcode) }()

	log := logrus.New()
	log.SetLevel(logrus.InfoLevel)

	opts, err := parseFlags(os.Args[1:])
	if err != nil {
		fmt.Fprintf(os.Stderr, "%v\n", err)
		retcode = 2
		return
	}
	if opts.verbose {
		log.SetLevel(logrus.DebugLevel)
	}

	ctx, cancel := signalContext()
	defer cancel()

	if opts.worker || os.Getenv(launch.WorkerEnv) != "" {
		if err := launch.ServeWorker(ctx, os.Stdin, os.Stdout, log); err != nil {
			fmt.Fprintf(os.Stderr, "%v\n", err)
			retcode = 1
		}
		return
	}

	if opts.cpuprofile != "" {
		defer profile.Start(profile.CPUProfile, profile.ProfilePath(opts.cpuprofile), profile.Quiet).Stop()
	}

	cfg := &sort.Config{
		NWorker:         opts.workers,
		Size:            opts.size,
		ExchangeTimeout: opts.timeout,
		SortParallelism: opts.parallelism,
		Logger:          log,
	}

	if opts.mode == "bench" {
		err = runBench(ctx, cfg, opts)
	} else {
		err = runSort(ctx, cfg, opts)
	}
	if err != nil {
		log.WithError(err).Error("sort failed")
		retcode = 1
	}
}

func runSort(ctx context.Context, cfg *sort.Config, opts *options) error {
	// Reject bad configurations before generating any data
	if err := cfg.Validate(); err != nil {
		return err
	}

	fmt.Printf("Number of workers: %v\n", cfg.NWorker)
	in := sort.RandomInputs((int)(cfg.Size), opts.seed)

	var rank0 []int32
	var elapsed time.Duration
	switch opts.mode {
	case "mem":
		parts := sort.Split(in, cfg.NWorker)
		start := time.Now()
		if err := sort.SortDistrib(ctx, parts, cfg); err != nil {
			return err
		}
		elapsed = time.Since(start)

		if err := sort.CheckPartitions(in, parts); err != nil {
			return errors.Wrap(err, "Sorted Wrong")
		}
		rank0 = sort.Sample(parts[0], outputNum)

	case "file":
		tmpDir, err := ioutil.TempDir("", "hypersort")
		if err != nil {
			return errors.Wrap(err, "Failed to create temporary directory")
		}
		defer os.RemoveAll(tmpDir)

		factory := data.NewFileArrayFactory(tmpDir)
		inArr, err := factory.Create("input", cfg.NWorker)
		if err != nil {
			return err
		}
		if err := data.Scatter(inArr, in); err != nil {
			return err
		}
		outArr, err := factory.Create("output", cfg.NWorker)
		if err != nil {
			return err
		}

		start := time.Now()
		if err := sort.SortDistribArray(ctx, inArr, outArr, cfg); err != nil {
			return err
		}
		elapsed = time.Since(start)

		out, err := data.Gather(outArr)
		if err != nil {
			return err
		}
		if err := sort.CheckSort(in, out); err != nil {
			return errors.Wrap(err, "Sorted Wrong")
		}
		rank0 = sort.Sample(out[:cfg.PartLen()], outputNum)

	case "proc":
		bin, err := os.Executable()
		if err != nil {
			return errors.Wrap(err, "Couldn't locate own binary")
		}
		tmpDir, err := ioutil.TempDir("", "hypersort")
		if err != nil {
			return errors.Wrap(err, "Failed to create temporary directory")
		}
		defer os.RemoveAll(tmpDir)

		out, resp0, err := launch.SortProcs(ctx, bin, tmpDir, in, cfg)
		if err != nil {
			return err
		}
		if err := sort.CheckSort(in, out); err != nil {
			return errors.Wrap(err, "Sorted Wrong")
		}
		rank0 = resp0.Sample
		elapsed = resp0.Elapsed()
	}

	fmt.Printf("Displaying sorted array (only %v elements for quick verification)\n", len(rank0))
	strs := make([]string, len(rank0))
	for i, v := range rank0 {
		strs[i] = fmt.Sprint(v)
	}
	fmt.Printf("%v\n\n", strings.Join(strs, " "))
	fmt.Printf("Time Elapsed (Sec): %f\n", elapsed.Seconds())
	return nil
}

func runBench(ctx context.Context, cfg *sort.Config, opts *options) error {
	bin, err := os.Executable()
	if err != nil {
		return errors.Wrap(err, "Couldn't locate own binary")
	}

	stats, err := benchmark.RunBenchmarks(ctx, bin, cfg, opts.benchWorkers, opts.repeat, opts.seed)
	for name, s := range stats {
		fmt.Printf("%v:\n", name)
		benchmark.ReportStats(s, os.Stdout)
	}
	return err
}
