package sort

import (
	"context"
	"fmt"
	"io/ioutil"
	"sync"
	"testing"

	"github.com/pkg/errors"
	"github.com/sirupsen/logrus"
	"github.com/stretchr/testify/require"
)

func TestDimension(t *testing.T) {
	for nworker, want := range map[int]int{1: 0, 2: 1, 4: 2, 8: 3, 1024: 10} {
		d, err := Dimension(nworker)
		require.Nilf(t, err, "Rejected %v workers", nworker)
		require.Equalf(t, want, d, "Wrong dimension for %v workers", nworker)
	}

	for _, nworker := range []int{-4, 0, 3, 6, 12, 1000} {
		_, err := Dimension(nworker)
		require.Equalf(t, ErrConfig, errors.Cause(err), "Accepted %v workers", nworker)
	}
}

func TestSteps(t *testing.T) {
	require.Zero(t, len(Steps(0)), "Degenerate network has steps")

	want := []Step{
		{0, 0},
		{1, 1}, {1, 0},
		{2, 2}, {2, 1}, {2, 0},
	}
	require.Equal(t, want, Steps(3))
}

func TestPartner(t *testing.T) {
	for d := 0; d <= 6; d++ {
		nworker := 1 << d
		for rank := 0; rank < nworker; rank++ {
			for j := 0; j < d; j++ {
				p := Partner(rank, j)
				require.True(t, p >= 0 && p < nworker, "Partner out of range")
				require.NotEqual(t, rank, p, "Worker paired with itself")
				require.Equal(t, rank, Partner(p, j), "Partner relation not symmetric")
			}
		}
	}
}

// Exactly one worker of every connected pair keeps the low half
func TestRoleSymmetry(t *testing.T) {
	for d := 0; d <= 6; d++ {
		nworker := 1 << d
		for _, step := range Steps(d) {
			for rank := 0; rank < nworker; rank++ {
				p := Partner(rank, step.Substep)
				mine := Direction(rank, step.Stage, step.Substep)
				theirs := Direction(p, step.Stage, step.Substep)
				require.NotEqualf(t, mine, theirs,
					"Ranks %v and %v both %v at stage %v substep %v", rank, p, mine, step.Stage, step.Substep)

				// The lower rank of the pair keeps low exactly in ascending
				// windows
				ascending := (rank>>(step.Stage+1))%2 == 0
				lowRank := rank < p
				require.Equal(t, ascending == lowRank, mine == KeepLow)
			}
		}
	}
}

// Roles for 4 workers, rows are steps (0,0) (1,1) (1,0), columns are ranks
func TestDirectionTable(t *testing.T) {
	L, H := KeepLow, KeepHigh
	want := [][]Role{
		{L, H, H, L},
		{L, L, H, H},
		{L, H, L, H},
	}

	for x, step := range Steps(2) {
		for rank := 0; rank < 4; rank++ {
			require.Equalf(t, want[x][rank], Direction(rank, step.Stage, step.Substep),
				"Wrong role for rank %v at stage %v substep %v", rank, step.Stage, step.Substep)
		}
	}
}

func TestRoleString(t *testing.T) {
	require.Equal(t, "low", KeepLow.String())
	require.Equal(t, "high", KeepHigh.String())
}

// Checks the partition of the logging worker every time a compare-exchange
// starts. Fires on the worker's own goroutine, so reading its partition is
// safe.
type sortedPartHook struct {
	parts [][]int32

	mu       sync.Mutex
	nstep    int
	failures []string
}

func (h *sortedPartHook) Levels() []logrus.Level {
	return []logrus.Level{logrus.DebugLevel}
}

func (h *sortedPartHook) Fire(entry *logrus.Entry) error {
	rank, ok := entry.Data["rank"].(int)
	if !ok {
		return nil
	}
	sorted := isSorted(h.parts[rank])

	h.mu.Lock()
	defer h.mu.Unlock()
	h.nstep++
	if !sorted {
		h.failures = append(h.failures, fmt.Sprintf("rank %v unsorted before stage %v substep %v: %v",
			rank, entry.Data["stage"], entry.Data["substep"], h.parts[rank]))
	}
	return nil
}

// Every partition stays non-decreasing between steps, not just at the end
func TestPartitionsSortedBetweenSteps(t *testing.T) {
	for _, nworker := range []int{2, 4, 8, 16} {
		nworker := nworker
		t.Run(fmt.Sprintf("P%v", nworker), func(t *testing.T) {
			partLen := 9
			in := RandomInputs(nworker*partLen, (int64)(nworker))
			for i := range in[:len(in)/2] {
				in[i] = in[i] % 5
			}
			parts := Split(in, nworker)

			hook := &sortedPartHook{parts: parts}
			log := logrus.New()
			log.SetOutput(ioutil.Discard)
			log.SetLevel(logrus.DebugLevel)
			log.AddHook(hook)

			cfg := testConfig(nworker, (int64)(len(in)))
			cfg.Logger = log
			require.Nil(t, SortDistrib(context.Background(), parts, cfg), "Sort Error")
			require.Nil(t, CheckPartitions(in, parts))

			d, err := Dimension(nworker)
			require.Nil(t, err)
			require.Equal(t, nworker*len(Steps(d)), hook.nstep, "Missed some steps")
			require.Empty(t, hook.failures)
		})
	}
}
