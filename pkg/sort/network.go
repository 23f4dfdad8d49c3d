package sort

import (
	"context"

	"github.com/nathantp/hypercube-sort/pkg/comm"
	"github.com/pkg/errors"
	"github.com/sirupsen/logrus"
)

// Which half of the union with its partner a worker keeps during one step
type Role int

const (
	KeepLow Role = iota
	KeepHigh
)

func (r Role) String() string {
	if r == KeepLow {
		return "low"
	}
	return "high"
}

// A (stage, substep) coordinate of the bitonic network
type Step struct {
	Stage   int
	Substep int
}

// Hypercube dimension for nworker workers (log2 of the count)
func Dimension(nworker int) (int, error) {
	if nworker < 1 || nworker&(nworker-1) != 0 {
		return 0, configErrorf("worker count %v is not a power of two", nworker)
	}

	d := 0
	for (1 << d) < nworker {
		d++
	}
	return d, nil
}

// The worker rank is paired with at substep j: the neighbor across bit j
func Partner(rank, j int) int {
	return rank ^ (1 << j)
}

// Role of rank at stage i, substep j. Bit i+1 of the rank selects an
// ascending or descending merge window; within an ascending window the member
// of the pair with bit j clear keeps the low half, and the other way around
// in a descending window.
func Direction(rank, i, j int) Role {
	ascending := (rank>>(i+1))%2 == 0
	bitClear := (rank>>j)%2 == 0
	if ascending == bitClear {
		return KeepLow
	}
	return KeepHigh
}

// All steps of a d-dimensional network, in the order every worker must run
// them
func Steps(d int) []Step {
	steps := make([]Step, 0, d*(d+1)/2)
	for i := 0; i < d; i++ {
		for j := i; j >= 0; j-- {
			steps = append(steps, Step{Stage: i, Substep: j})
		}
	}
	return steps
}

// Run the whole bitonic network for one worker, then wait on the terminal
// barrier. On return without error, the concatenation of every worker's
// partition in rank order is sorted.
func RunNetwork(ctx context.Context, w *Worker, t comm.Transport) error {
	if t.Rank() != w.Rank || t.Size() != w.NWorker {
		return configErrorf("transport is rank %v of %v but worker is rank %v of %v",
			t.Rank(), t.Size(), w.Rank, w.NWorker)
	}

	if err := w.localSort(ctx); err != nil {
		return errors.Wrapf(err, "worker %v initial sort", w.Rank)
	}

	for _, step := range Steps(w.Dim) {
		partner := Partner(w.Rank, step.Substep)
		role := Direction(w.Rank, step.Stage, step.Substep)

		w.log.WithFields(logrus.Fields{
			"stage":   step.Stage,
			"substep": step.Substep,
			"partner": partner,
			"role":    role,
		}).Debug("compare-exchange")

		if err := w.exchange(ctx, t, partner, role); err != nil {
			return &StepError{Rank: w.Rank, Stage: step.Stage, Substep: step.Substep, Err: err}
		}
	}

	if err := t.Barrier(ctx); err != nil {
		return errors.Wrapf(err, "worker %v final barrier", w.Rank)
	}
	return nil
}
