package data

import (
	"fmt"
	"io"
	"io/ioutil"
	"os"
	"path/filepath"

	"github.com/pkg/errors"
)

// A DistribArray backed by a directory with one file per partition
// (RootPath/p0.dat, RootPath/p1.dat, ...). Any process that can see RootPath
// can open the array, which is how worker processes share their input and
// output.
type FileDistribArray struct {
	RootPath string
	npart    int
}

func partPath(root string, i int) string {
	return filepath.Join(root, fmt.Sprintf("p%v.dat", i))
}

// Create a new on-disk array with npart empty partitions. Fails if rootPath
// already exists.
func CreateFileDistribArray(rootPath string, npart int) (*FileDistribArray, error) {
	var err error

	if npart < 1 {
		return nil, errors.Errorf("array needs at least one partition, got %v", npart)
	}

	rootPath, err = filepath.Abs(rootPath)
	if err != nil {
		return nil, err
	}

	err = os.Mkdir(rootPath, 0700)
	if err != nil {
		return nil, err
	}

	for i := 0; i < npart; i++ {
		// Go's create() doesn't allow you to set permissions so we have to
		// open and then immediately close
		pFile, err := os.OpenFile(partPath(rootPath, i), os.O_CREATE, 0600)
		if err != nil {
			return nil, errors.Wrapf(err, "Failed to create file for partition %v", i)
		}

		if err := pFile.Close(); err != nil {
			return nil, errors.Wrapf(err, "Failed to create file for partition %v", i)
		}
	}

	return &FileDistribArray{RootPath: rootPath, npart: npart}, nil
}

// Open an existing on-disk array
func OpenFileDistribArray(rootPath string) (*FileDistribArray, error) {
	rootPath, err := filepath.Abs(rootPath)
	if err != nil {
		return nil, err
	}

	infos, err := ioutil.ReadDir(rootPath)
	if err != nil {
		return nil, errors.Wrapf(err, "Failed to read array root %v", rootPath)
	}

	npart := 0
	for npart < len(infos) {
		if _, err := os.Stat(partPath(rootPath, npart)); err != nil {
			break
		}
		npart++
	}
	if npart == 0 {
		return nil, errors.Errorf("%v does not contain any partitions", rootPath)
	}

	return &FileDistribArray{RootPath: rootPath, npart: npart}, nil
}

func (self *FileDistribArray) NPart() int {
	return self.npart
}

func (self *FileDistribArray) GetPartReader(i int) (io.ReadCloser, error) {
	if i < 0 || i >= self.npart {
		return nil, errors.Errorf("partition %v out of range (%v partitions)", i, self.npart)
	}
	return os.Open(partPath(self.RootPath, i))
}

func (self *FileDistribArray) GetPartWriter(i int) (io.WriteCloser, error) {
	if i < 0 || i >= self.npart {
		return nil, errors.Errorf("partition %v out of range (%v partitions)", i, self.npart)
	}
	return os.OpenFile(partPath(self.RootPath, i), os.O_TRUNC|os.O_WRONLY, 0)
}

func (self *FileDistribArray) Destroy() error {
	return os.RemoveAll(self.RootPath)
}
