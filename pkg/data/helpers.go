package data

import (
	"encoding/binary"
	"io"
	"io/ioutil"
	"path/filepath"

	"github.com/pkg/errors"
)

var MemArrayFactory = &ArrayFactory{
	Create: func(name string, npart int) (DistribArray, error) {
		return CreateMemDistribArray(name, npart)
	},
	Open: func(name string) (DistribArray, error) {
		return OpenMemDistribArray(name)
	},
}

// Returns a factory that creates file arrays under dir
func NewFileArrayFactory(dir string) *ArrayFactory {
	return &ArrayFactory{
		Create: func(name string, npart int) (DistribArray, error) {
			return CreateFileDistribArray(filepath.Join(dir, name), npart)
		},
		Open: func(name string) (DistribArray, error) {
			return OpenFileDistribArray(filepath.Join(dir, name))
		},
	}
}

// Read everything from r and interpret it as little-endian int32s
func ReadInts(r io.Reader) ([]int32, error) {
	raw, err := ioutil.ReadAll(r)
	if err != nil {
		return nil, err
	}
	if len(raw)%4 != 0 {
		return nil, errors.Errorf("data length %v is not a multiple of 4", len(raw))
	}

	out := make([]int32, len(raw)/4)
	for i := range out {
		out[i] = (int32)(binary.LittleEndian.Uint32(raw[i*4:]))
	}
	return out, nil
}

func WriteInts(w io.Writer, in []int32) error {
	return binary.Write(w, binary.LittleEndian, in)
}

// Fetch the contents of partition i of arr
func ReadPart(arr DistribArray, i int) ([]int32, error) {
	reader, err := arr.GetPartReader(i)
	if err != nil {
		return nil, errors.Wrapf(err, "Couldn't read partition %v", i)
	}
	defer reader.Close()

	out, err := ReadInts(reader)
	if err != nil {
		return nil, errors.Wrapf(err, "Couldn't decode partition %v", i)
	}
	return out, nil
}

// Replace the contents of partition i of arr with in
func WritePart(arr DistribArray, i int, in []int32) error {
	writer, err := arr.GetPartWriter(i)
	if err != nil {
		return errors.Wrapf(err, "Failed to get writer for partition %v", i)
	}

	if err = WriteInts(writer, in); err != nil {
		writer.Close()
		return errors.Wrapf(err, "Failed to write partition %v", i)
	}
	return errors.Wrapf(writer.Close(), "Failed to close partition %v", i)
}

// Split in into arr.NPart() equal partitions. len(in) must be divisible by
// the number of partitions.
func Scatter(arr DistribArray, in []int32) error {
	npart := arr.NPart()
	if len(in)%npart != 0 {
		return errors.Errorf("%v values can't be split evenly into %v partitions", len(in), npart)
	}

	partLen := len(in) / npart
	for i := 0; i < npart; i++ {
		if err := WritePart(arr, i, in[i*partLen:(i+1)*partLen]); err != nil {
			return err
		}
	}
	return nil
}

// Coalesce all partitions of arr into a single slice, in partition order
func Gather(arr DistribArray) ([]int32, error) {
	var out []int32
	for i := 0; i < arr.NPart(); i++ {
		part, err := ReadPart(arr, i)
		if err != nil {
			return nil, err
		}
		out = append(out, part...)
	}
	return out, nil
}
