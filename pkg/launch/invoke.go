package launch

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"os"
	"os/exec"
	"path/filepath"
	"time"

	"github.com/nathantp/hypercube-sort/pkg/comm"
	"github.com/nathantp/hypercube-sort/pkg/data"
	"github.com/nathantp/hypercube-sort/pkg/sort"
	"github.com/pkg/errors"
	"github.com/sirupsen/logrus"
	"golang.org/x/sync/errgroup"
)

// Number of values of the final partition reported back by each worker
const nSample = 10

// Worker process side: join the TCP network, sort this rank's partition of
// arg.Input and store it in arg.Output.
func RunWorker(ctx context.Context, arg *WorkerArg, log logrus.FieldLogger) (*WorkerResp, error) {
	log = log.WithField("rank", arg.Rank)
	cfg := arg.config(log)
	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	inArr, err := data.OpenFileDistribArray(arg.Input)
	if err != nil {
		return nil, errors.Wrap(err, "Couldn't open input array")
	}
	outArr, err := data.OpenFileDistribArray(arg.Output)
	if err != nil {
		return nil, errors.Wrap(err, "Couldn't open output array")
	}

	part, err := data.ReadPart(inArr, arg.Rank)
	if err != nil {
		return nil, err
	}
	if len(part) != cfg.PartLen() {
		return nil, errors.Errorf("worker %v got %v values, expected %v", arg.Rank, len(part), cfg.PartLen())
	}

	w, err := sort.NewWorker(arg.Rank, part, cfg)
	if err != nil {
		return nil, err
	}

	net, err := comm.NewTCPNetwork(ctx, arg.Rank, arg.Addrs, log)
	if err != nil {
		return nil, err
	}
	defer net.Close()

	start := time.Now()
	if err := sort.RunNetwork(ctx, w, net); err != nil {
		return nil, err
	}
	elapsed := time.Since(start)
	log.WithField("elapsed", elapsed).Debug("network done")

	if err := data.WritePart(outArr, arg.Rank, w.Part); err != nil {
		return nil, err
	}

	return &WorkerResp{
		Success:   true,
		Sample:    sort.Sample(w.Part, nSample),
		ElapsedNs: (int64)(elapsed),
	}, nil
}

// Read a WorkerArg from in, run it and write the WorkerResp to out. Failures
// are reported in the response; the returned error is only for I/O problems.
func ServeWorker(ctx context.Context, in io.Reader, out io.Writer, log *logrus.Logger) error {
	var arg WorkerArg
	if err := json.NewDecoder(in).Decode(&arg); err != nil {
		return errors.Wrap(err, "Couldn't parse worker argument")
	}
	if arg.Verbose {
		log.SetLevel(logrus.DebugLevel)
	}

	resp, err := RunWorker(ctx, &arg, log)
	if err != nil {
		log.WithError(err).WithField("rank", arg.Rank).Error("worker failed")
		resp = &WorkerResp{Success: false, Err: err.Error()}
	}

	return errors.Wrap(json.NewEncoder(out).Encode(resp), "Couldn't write worker response")
}

// Run one worker as a child process of bin (which must call ServeWorker when
// WorkerEnv is set). Arguments go over stdin so they aren't limited by the
// command line length.
func InvokeWorkerDirect(ctx context.Context, bin string, arg *WorkerArg) (*WorkerResp, error) {
	jsonArg, err := json.Marshal(arg)
	if err != nil {
		return nil, errors.Wrap(err, "Failed to marshal worker argument")
	}

	cmd := exec.CommandContext(ctx, bin, "--worker")
	cmd.Env = append(os.Environ(), WorkerEnv+"=1")

	cmdIn, err := cmd.StdinPipe()
	if err != nil {
		return nil, errors.Wrap(err, "Couldn't get stdin pipe for worker process")
	}

	go func() {
		defer cmdIn.Close()
		cmdIn.Write(jsonArg)
	}()

	out, err := cmd.Output()
	if err != nil {
		if exitErr, ok := err.(*exec.ExitError); ok {
			return nil, fmt.Errorf("Worker %v returned error: %s", arg.Rank, exitErr.Stderr)
		}
		return nil, errors.Wrapf(err, "Failed to invoke worker %v", arg.Rank)
	}

	var resp WorkerResp
	if err = json.Unmarshal(out, &resp); err != nil {
		return nil, errors.Wrapf(err, "Couldn't parse worker response: %q", out)
	}

	if !resp.Success {
		return &resp, fmt.Errorf("Worker %v error: %v", arg.Rank, resp.Err)
	}
	return &resp, nil
}

// Sort in with one child process per worker, connected over loopback TCP.
// Input and output arrays are staged under dir. Returns the sorted values
// and rank 0's response.
func SortProcs(ctx context.Context, bin string, dir string, in []int32, cfg *sort.Config) ([]int32, *WorkerResp, error) {
	if (int64)(len(in)) != cfg.Size {
		return nil, nil, errors.Errorf("config expects %v values, got %v", cfg.Size, len(in))
	}
	if err := cfg.Validate(); err != nil {
		return nil, nil, err
	}

	inArr, err := data.CreateFileDistribArray(filepath.Join(dir, "input"), cfg.NWorker)
	if err != nil {
		return nil, nil, errors.Wrap(err, "Failed to create input array")
	}
	defer inArr.Destroy()

	if err := data.Scatter(inArr, in); err != nil {
		return nil, nil, err
	}

	outArr, err := data.CreateFileDistribArray(filepath.Join(dir, "output"), cfg.NWorker)
	if err != nil {
		return nil, nil, errors.Wrap(err, "Failed to create output array")
	}
	defer outArr.Destroy()

	addrs, err := comm.FreeLoopbackAddrs(cfg.NWorker)
	if err != nil {
		return nil, nil, err
	}

	verbose := false
	if l, ok := cfg.Logger.(*logrus.Logger); ok {
		verbose = l.IsLevelEnabled(logrus.DebugLevel)
	}

	resps := make([]*WorkerResp, cfg.NWorker)
	g, gctx := errgroup.WithContext(ctx)
	for rank := 0; rank < cfg.NWorker; rank++ {
		arg := &WorkerArg{
			Rank:      rank,
			Addrs:     addrs,
			Input:     inArr.RootPath,
			Output:    outArr.RootPath,
			Size:      cfg.Size,
			TimeoutMs: (int64)(cfg.ExchangeTimeout / time.Millisecond),
			Verbose:   verbose,
		}
		rank := rank
		g.Go(func() error {
			resp, err := InvokeWorkerDirect(gctx, bin, arg)
			resps[rank] = resp
			return err
		})
	}

	if err := g.Wait(); err != nil {
		return nil, nil, errors.Wrap(err, "distributed sort aborted")
	}

	out, err := data.Gather(outArr)
	if err != nil {
		return nil, nil, errors.Wrap(err, "Couldn't read results")
	}
	return out, resps[0], nil
}
