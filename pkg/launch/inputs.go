package launch

import (
	"time"

	"github.com/nathantp/hypercube-sort/pkg/sort"
	"github.com/sirupsen/logrus"
)

// Environment variable that puts the binary in worker mode (equivalent to
// passing --worker). Set for every child started by InvokeWorkerDirect.
const WorkerEnv = "HYPERSORT_WORKER"

// Argument passed to a worker process on stdin
type WorkerArg struct {
	Rank      int      `json:"rank"`
	Addrs     []string `json:"addrs"`     // listen address of every rank
	Input     string   `json:"input"`     // root of the input FileDistribArray
	Output    string   `json:"output"`    // root of the output FileDistribArray
	Size      int64    `json:"size"`      // total number of values
	TimeoutMs int64    `json:"timeoutMs"` // per-exchange timeout, 0 for none
	Verbose   bool     `json:"verbose"`
}

// Written by the worker to stdout when it's done
type WorkerResp struct {
	Success   bool    `json:"success"`
	Err       string  `json:"err"`
	Sample    []int32 `json:"sample"`    // evenly spaced values of the final partition
	ElapsedNs int64   `json:"elapsedNs"` // time spent in the network, excluding setup
}

func (arg *WorkerArg) config(log logrus.FieldLogger) *sort.Config {
	return &sort.Config{
		NWorker:         len(arg.Addrs),
		Size:            arg.Size,
		ExchangeTimeout: time.Duration(arg.TimeoutMs) * time.Millisecond,
		Logger:          log,
	}
}

func (resp *WorkerResp) Elapsed() time.Duration {
	return time.Duration(resp.ElapsedNs)
}
