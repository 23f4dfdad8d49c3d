package sort

import (
	"fmt"
	"math/rand"
	"sort"
)

// Deterministic pseudo-random input of len values, covering the full int32
// range (negative values included)
func RandomInputs(len int, seed int64) []int32 {
	rng := rand.New(rand.NewSource(seed))
	out := make([]int32, len)
	for i := 0; i < len; i++ {
		out[i] = (int32)(rng.Uint32())
	}
	return out
}

// Copy in into nworker equal partitions. len(in) must be divisible by
// nworker.
func Split(in []int32, nworker int) [][]int32 {
	partLen := len(in) / nworker
	parts := make([][]int32, nworker)
	for i := range parts {
		parts[i] = make([]int32, partLen)
		copy(parts[i], in[i*partLen:(i+1)*partLen])
	}
	return parts
}

// Concatenate partitions in rank order
func Concat(parts [][]int32) []int32 {
	total := 0
	for _, p := range parts {
		total += len(p)
	}

	out := make([]int32, 0, total)
	for _, p := range parts {
		out = append(out, p...)
	}
	return out
}

// Check that new is orig in ascending order (same multiset, sorted)
func CheckSort(orig []int32, new []int32) error {
	if len(orig) != len(new) {
		return fmt.Errorf("Lengths do not match: Expected %v, Got %v", len(orig), len(new))
	}

	origCpy := make([]int32, len(orig))
	copy(origCpy, orig)
	LocalSort(origCpy)
	for i := 0; i < len(orig); i++ {
		if origCpy[i] != new[i] {
			return fmt.Errorf("Response doesn't match reference at %v: Expected %v, Got %v", i, origCpy[i], new[i])
		}
	}
	return nil
}

// Check the final state of a sort: every partition is non-decreasing, has
// the original length, and together they hold orig in sorted order
func CheckPartitions(orig []int32, parts [][]int32) error {
	partLen := len(orig) / len(parts)
	for i, p := range parts {
		if len(p) != partLen {
			return fmt.Errorf("Partition %v has length %v, expected %v", i, len(p), partLen)
		}
		if !sort.SliceIsSorted(p, func(a, b int) bool { return p[a] < p[b] }) {
			return fmt.Errorf("Partition %v is not internally sorted", i)
		}
	}
	return CheckSort(orig, Concat(parts))
}

// Pick nsample evenly spaced values from part (every len/nsample-th one).
// Returns all of part if it has fewer than nsample values.
func Sample(part []int32, nsample int) []int32 {
	if nsample <= 0 || len(part) <= nsample {
		out := make([]int32, len(part))
		copy(out, part)
		return out
	}

	stride := len(part) / nsample
	out := make([]int32, 0, nsample)
	for i := 0; i < len(part) && len(out) < nsample; i += stride {
		out = append(out, part[i])
	}
	return out
}
