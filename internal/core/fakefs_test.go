package core

import (
	"io/fs"
	"os"
	"sync"
)

// fakeFS is an in-memory FileSystem so tests can assert on (or forbid)
// fixture I/O without touching disk.
type fakeFS struct {
	mu     sync.Mutex
	files  map[string][]byte
	reads  int
	writes int
}

func newFakeFS() *fakeFS {
	return &fakeFS{files: map[string][]byte{}}
}

func (f *fakeFS) ReadFile(name string) ([]byte, error) {
	f.mu.Lock()
	defer f.mu.Unlock()

	f.reads++

	data, ok := f.files[name]
	if !ok {
		return nil, &fs.PathError{Op: "open", Path: name, Err: fs.ErrNotExist}
	}

	return append([]byte{}, data...), nil
}

func (f *fakeFS) WriteFile(name string, data []byte, _ os.FileMode) error {
	f.mu.Lock()
	defer f.mu.Unlock()

	f.writes++
	f.files[name] = append([]byte{}, data...)

	return nil
}

func (f *fakeFS) ops() int {
	f.mu.Lock()
	defer f.mu.Unlock()

	return f.reads + f.writes
}

func (f *fakeFS) writeCount() int {
	f.mu.Lock()
	defer f.mu.Unlock()

	return f.writes
}
