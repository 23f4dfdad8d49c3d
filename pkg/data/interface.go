package data

import (
	"io"
)

// Represents an array of int32s split into a fixed number of partitions, one
// per sort worker. Partition i holds worker i's slice of the data.
type DistribArray interface {
	// Number of partitions
	NPart() int

	// Returns a reader over the raw (little-endian) bytes of partition i
	GetPartReader(i int) (io.ReadCloser, error)

	// Returns a writer that replaces the contents of partition i
	GetPartWriter(i int) (io.WriteCloser, error)

	// Release any resources held by the array, including persistent storage.
	// The array may not be used afterwards.
	Destroy() error
}

// A generic way to create and re-open DistribArrays by name
type ArrayFactory struct {
	Create func(name string, npart int) (DistribArray, error)
	Open   func(name string) (DistribArray, error)
}
