package data

import (
	"bytes"
	"io"
	"io/ioutil"
	"sync"

	"github.com/pkg/errors"
)

// Registry of named in-memory arrays so they can be re-opened like files
var memArrays = struct {
	sync.Mutex
	m map[string]*MemDistribArray
}{m: make(map[string]*MemDistribArray)}

// A write-closer for MemDistribArray, the partition is replaced on Close
type memPartWriter struct {
	arr *MemDistribArray
	idx int
	buf bytes.Buffer
}

func (self *memPartWriter) Write(in []byte) (n int, err error) {
	return self.buf.Write(in)
}

func (self *memPartWriter) Close() error {
	self.arr.mu.Lock()
	defer self.arr.mu.Unlock()
	self.arr.parts[self.idx] = self.buf.Bytes()
	return nil
}

// In-memory 'distributed' array. Does not provide any persistence and cannot
// share between processes (only threads in the same address space).
type MemDistribArray struct {
	name  string
	mu    sync.Mutex
	parts [][]byte
}

func NewMemDistribArray(npart int) (*MemDistribArray, error) {
	if npart < 1 {
		return nil, errors.Errorf("array needs at least one partition, got %v", npart)
	}
	return &MemDistribArray{parts: make([][]byte, npart)}, nil
}

// Create a named array that can later be found with OpenMemDistribArray
func CreateMemDistribArray(name string, npart int) (*MemDistribArray, error) {
	memArrays.Lock()
	defer memArrays.Unlock()

	if _, ok := memArrays.m[name]; ok {
		return nil, errors.Errorf("array %v already exists", name)
	}

	arr, err := NewMemDistribArray(npart)
	if err != nil {
		return nil, err
	}
	arr.name = name
	memArrays.m[name] = arr
	return arr, nil
}

func OpenMemDistribArray(name string) (*MemDistribArray, error) {
	memArrays.Lock()
	defer memArrays.Unlock()

	arr, ok := memArrays.m[name]
	if !ok {
		return nil, errors.Errorf("no array named %v", name)
	}
	return arr, nil
}

func (self *MemDistribArray) NPart() int {
	return len(self.parts)
}

func (self *MemDistribArray) GetPartReader(i int) (io.ReadCloser, error) {
	if i < 0 || i >= len(self.parts) {
		return nil, errors.Errorf("partition %v out of range (%v partitions)", i, len(self.parts))
	}

	self.mu.Lock()
	defer self.mu.Unlock()
	return ioutil.NopCloser(bytes.NewReader(self.parts[i])), nil
}

func (self *MemDistribArray) GetPartWriter(i int) (io.WriteCloser, error) {
	if i < 0 || i >= len(self.parts) {
		return nil, errors.Errorf("partition %v out of range (%v partitions)", i, len(self.parts))
	}
	return &memPartWriter{arr: self, idx: i}, nil
}

func (self *MemDistribArray) Destroy() error {
	if self.name != "" {
		memArrays.Lock()
		if memArrays.m[self.name] == self {
			delete(memArrays.m, self.name)
		}
		memArrays.Unlock()
	}

	self.mu.Lock()
	defer self.mu.Unlock()
	for i := range self.parts {
		self.parts[i] = nil
	}
	return nil
}
