package sort

import (
	"context"
	"sort"

	"github.com/pkg/errors"
)

// Sort part ascending in place using only process-local resources
func LocalSort(part []int32) {
	sort.Slice(part, func(i, j int) bool { return part[i] < part[j] })
}

// LocalSort on the worker's partition, holding a limiter slot (if any) for
// the duration. Never called while waiting on a partner, so the limiter can't
// deadlock the network.
func (w *Worker) localSort(ctx context.Context) error {
	if w.limiter != nil {
		if err := w.limiter.Acquire(ctx, 1); err != nil {
			return errors.Wrap(err, "waiting for local sort slot")
		}
		defer w.limiter.Release(1)
	}

	LocalSort(w.Part)
	return nil
}

// Merge two ascending slices into dst (len(dst) == len(a)+len(b))
func merge(dst, a, b []int32) {
	i, j, k := 0, 0, 0
	for i < len(a) && j < len(b) {
		if a[i] <= b[j] {
			dst[k] = a[i]
			i++
		} else {
			dst[k] = b[j]
			j++
		}
		k++
	}
	k += copy(dst[k:], a[i:])
	copy(dst[k:], b[j:])
}

func isSorted(part []int32) bool {
	return sort.SliceIsSorted(part, func(i, j int) bool { return part[i] < part[j] })
}
