// fixtape/fixtool inspects recorded fixture files.
// To use it, install it with `go install github.com/toejough/fixtape/fixtool@latest`.
// `fixtool list [dir]` summarizes every fixture in a directory, `fixtool show <path>`
// renders one fixture with its payloads decoded, and `fixtool diff <a> <b>` shows a
// unified diff of two fixtures' decoded renderings.
package main

import (
	"fmt"
	"os"
	"path/filepath"

	"github.com/toejough/fixtape/fixtool/run"
)

// main is the entry point of the fixtool tool.
func main() {
	if os.Args == nil {
		return
	}

	err := run.Run(os.Args, &realFileSystem{}, os.Stdout)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}

// realFileSystem implements FileSystem using os package.
type realFileSystem struct{}

// Glob returns the names of all files matching pattern.
func (fs *realFileSystem) Glob(pattern string) ([]string, error) {
	matches, err := filepath.Glob(pattern)
	if err != nil {
		return nil, fmt.Errorf("glob failed for pattern %s: %w", pattern, err)
	}

	return matches, nil
}

// ReadFile reads the file named by name and returns the contents.
func (fs *realFileSystem) ReadFile(name string) ([]byte, error) {
	data, err := os.ReadFile(name)
	if err != nil {
		return nil, fmt.Errorf("failed to read file %s: %w", name, err)
	}

	return data, nil
}
