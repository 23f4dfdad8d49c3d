package main

import (
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

func TestParseFlags(t *testing.T) {
	opts, err := parseFlags([]string{"-n", "64", "-p", "4", "--mode", "file", "--timeout", "2s", "--bench-workers", "2,8"})
	require.Nil(t, err)
	require.Equal(t, int64(64), opts.size)
	require.Equal(t, 4, opts.workers)
	require.Equal(t, "file", opts.mode)
	require.Equal(t, 2*time.Second, opts.timeout)
	require.Equal(t, []int{2, 8}, opts.benchWorkers)
	require.False(t, opts.worker)

	opts, err = parseFlags([]string{"--worker"})
	require.Nil(t, err)
	require.True(t, opts.worker)

	_, err = parseFlags([]string{"--mode", "gpu"})
	require.NotNil(t, err, "Unknown mode accepted")
}

func TestWorkerFlagHidden(t *testing.T) {
	fs := newFlagSet(&options{})
	f := fs.Lookup("worker")
	require.NotNil(t, f, "worker flag missing")
	require.True(t, f.Hidden, "worker flag shows up in usage")
	require.NotContains(t, fs.FlagUsages(), "--worker")
}
