package core

import (
	"os"
	"runtime"

	jsoniter "github.com/json-iterator/go"
)

// jsonCodec is the fixture codec. Standard-library-compatible so fixture
// files stay readable by any JSON tooling.
var jsonCodec = jsoniter.ConfigCompatibleWithStandardLibrary

// Record is the persisted form of one captured call: its serialized
// arguments plus whichever outcome group the call exhibited. Each payload
// field holds a string that is itself serialized JSON, parsed again at
// consumption time.
type Record struct {
	CallArgs         string `json:"callArgs"`
	CallbackArgs     string `json:"callbackArgs,omitempty"`
	ReturnedDeferred bool   `json:"returnedDeferred,omitempty"`
	ResolutionArgs   string `json:"resolutionArgs,omitempty"`
	RejectionArgs    string `json:"rejectionArgs,omitempty"`
	ReturnValue      string `json:"returnValue,omitempty"`
}

// FileSystem is the store's view of the filesystem. Injected so tests can
// assert on (or forbid) fixture I/O without touching disk.
type FileSystem interface {
	ReadFile(name string) ([]byte, error)
	WriteFile(name string, data []byte, perm os.FileMode) error
}

// OSFileSystem is the FileSystem used outside of tests.
type OSFileSystem struct{}

// ReadFile reads the named file via the os package.
func (OSFileSystem) ReadFile(name string) ([]byte, error) {
	return os.ReadFile(name)
}

// WriteFile writes the named file via the os package.
func (OSFileSystem) WriteFile(name string, data []byte, perm os.FileMode) error {
	return os.WriteFile(name, data, perm)
}

// lineEnding terminates fixture files, matching the platform convention.
var lineEnding = func() string {
	if runtime.GOOS == "windows" {
		return "\r\n"
	}

	return "\n"
}()

// Store reads and writes fixture records. It assumes the fixture directory
// already exists; a missing directory surfaces as the underlying I/O error.
type Store struct {
	fs FileSystem
}

// NewStore creates a Store over the given filesystem.
func NewStore(fs FileSystem) *Store {
	return &Store{fs: fs}
}

// Write overwrites the fixture at path with a pretty-printed rendering of
// record, synchronously and completely. I/O errors propagate unchanged.
func (s *Store) Write(path string, record *Record) error {
	data, err := jsonCodec.MarshalIndent(record, "", "  ")
	if err != nil {
		return err
	}

	data = append(data, lineEnding...)

	return s.fs.WriteFile(path, data, 0o644)
}

// Read loads and parses the fixture at path. A missing file surfaces as the
// filesystem's not-found error (callers distinguish it with errors.Is);
// malformed content surfaces as the codec's parse error, unchanged.
func (s *Store) Read(path string) (*Record, error) {
	data, err := s.fs.ReadFile(path)
	if err != nil {
		return nil, err
	}

	record := new(Record)
	if err := jsonCodec.Unmarshal(data, record); err != nil {
		return nil, err
	}

	return record, nil
}
