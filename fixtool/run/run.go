// Package run implements the main logic for the fixtool tool in a testable way.
package run

import (
	"fmt"
	"io"
	"path/filepath"
	"sort"
	"strings"

	"github.com/akedrou/textdiff"
	"github.com/alexflint/go-arg"
	jsoniter "github.com/json-iterator/go"

	"github.com/toejough/fixtape/internal/core"
)

// jsonCodec matches the codec the fixture store writes with.
var jsonCodec = jsoniter.ConfigCompatibleWithStandardLibrary

// FileSystem interface for mocking.
type FileSystem interface {
	Glob(pattern string) ([]string, error)
	ReadFile(name string) ([]byte, error)
}

// cliArgs defines the command-line arguments for fixtool.
type cliArgs struct {
	List *listCmd `arg:"subcommand:list" help:"summarize every fixture in a directory"`
	Show *showCmd `arg:"subcommand:show" help:"render one fixture"`
	Diff *diffCmd `arg:"subcommand:diff" help:"show a unified diff of two fixtures"`
}

type listCmd struct {
	Dir    string `arg:"positional" help:"fixture directory (defaults to the current directory)"`
	Prefix string `arg:"positional" help:"only list fixtures recorded under this prefix"`
}

type showCmd struct {
	Path string `arg:"positional,required" help:"fixture file to render"`
}

type diffCmd struct {
	PathA string `arg:"positional,required" help:"first fixture file"`
	PathB string `arg:"positional,required" help:"second fixture file"`
}

// Run executes the fixtool logic. It takes command-line arguments, a
// FileSystem interface for file operations, and the writer output goes to. It
// returns an error if any step fails.
func Run(args []string, fileSys FileSystem, out io.Writer) error {
	parsed, err := parseArgs(args)
	if err != nil {
		return err
	}

	switch {
	case parsed.List != nil:
		return list(parsed.List.Dir, parsed.List.Prefix, fileSys, out)
	case parsed.Show != nil:
		return show(parsed.Show.Path, fileSys, out)
	case parsed.Diff != nil:
		return diff(parsed.Diff.PathA, parsed.Diff.PathB, fileSys, out)
	default:
		return fmt.Errorf("expected a subcommand: list, show, or diff")
	}
}

// parseArgs parses command-line arguments into cliArgs.
func parseArgs(args []string) (cliArgs, error) {
	var parsed cliArgs

	parser, err := arg.NewParser(arg.Config{}, &parsed)
	if err != nil {
		return cliArgs{}, fmt.Errorf("failed to create argument parser: %w", err)
	}

	var cmdArgs []string
	if len(args) > 1 {
		cmdArgs = args[1:]
	}

	err = parser.Parse(cmdArgs)
	if err != nil {
		return cliArgs{}, fmt.Errorf("failed to parse arguments: %w", err)
	}

	return parsed, nil
}

// list summarizes every fixture file under dir, one line each, sorted by
// filename so output is stable. A non-empty prefix keeps only fixtures
// recorded under that prefix.
func list(dir, prefix string, fileSys FileSystem, out io.Writer) error {
	if dir == "" {
		dir = "."
	}

	pattern := "*.json"
	if prefix != "" {
		pattern = prefix + "-*.json"
	}

	paths, err := fileSys.Glob(filepath.Join(dir, pattern))
	if err != nil {
		return err
	}

	sort.Strings(paths)

	for _, path := range paths {
		record, err := readRecord(path, fileSys)
		if err != nil {
			return err
		}

		fmt.Fprintf(out, "%s  %s\n", filepath.Base(path), outcomeSummary(record))
	}

	return nil
}

// show renders one fixture.
func show(path string, fileSys FileSystem, out io.Writer) error {
	record, err := readRecord(path, fileSys)
	if err != nil {
		return err
	}

	fmt.Fprintf(out, "fixture: %s\n%s", filepath.Base(path), renderRecord(record))

	return nil
}

// diff renders two fixtures and prints the unified diff between the
// renderings. Identical fixtures print a fixed message instead of an empty
// diff.
func diff(pathA, pathB string, fileSys FileSystem, out io.Writer) error {
	recordA, err := readRecord(pathA, fileSys)
	if err != nil {
		return err
	}

	recordB, err := readRecord(pathB, fileSys)
	if err != nil {
		return err
	}

	unified := textdiff.Unified(
		filepath.Base(pathA), filepath.Base(pathB),
		renderRecord(recordA), renderRecord(recordB),
	)
	if unified == "" {
		fmt.Fprintln(out, "fixtures are identical")
		return nil
	}

	fmt.Fprint(out, unified)

	return nil
}

// readRecord loads and parses the fixture at path.
func readRecord(path string, fileSys FileSystem) (*core.Record, error) {
	data, err := fileSys.ReadFile(path)
	if err != nil {
		return nil, err
	}

	record := new(core.Record)
	if err := jsonCodec.Unmarshal(data, record); err != nil {
		return nil, fmt.Errorf("failed to parse fixture %s: %w", path, err)
	}

	return record, nil
}

// outcomeSummary names the outcome groups a record holds. A call may settle
// more than once (callback plus deferred), so the groups concatenate.
func outcomeSummary(record *core.Record) string {
	var parts []string

	if record.CallbackArgs != "" {
		parts = append(parts, "callback")
	}

	if record.ReturnedDeferred {
		switch {
		case record.ResolutionArgs != "":
			parts = append(parts, "deferred(resolved)")
		case record.RejectionArgs != "":
			parts = append(parts, "deferred(rejected)")
		default:
			parts = append(parts, "deferred(unsettled)")
		}
	}

	if record.ReturnValue != "" {
		parts = append(parts, "return")
	}

	if len(parts) == 0 {
		return "no outcome"
	}

	return strings.Join(parts, "+")
}

// renderRecord renders a record's populated fields, one per line. The diff
// subcommand compares these renderings, so the layout must stay deterministic.
func renderRecord(record *core.Record) string {
	var b strings.Builder

	fmt.Fprintf(&b, "callArgs: %s\n", record.CallArgs)

	if record.CallbackArgs != "" {
		fmt.Fprintf(&b, "callbackArgs: %s\n", record.CallbackArgs)
	}

	if record.ReturnedDeferred {
		fmt.Fprintf(&b, "returnedDeferred: true\n")
	}

	if record.ResolutionArgs != "" {
		fmt.Fprintf(&b, "resolutionArgs: %s\n", record.ResolutionArgs)
	}

	if record.RejectionArgs != "" {
		fmt.Fprintf(&b, "rejectionArgs: %s\n", record.RejectionArgs)
	}

	if record.ReturnValue != "" {
		fmt.Fprintf(&b, "returnValue: %s\n", record.ReturnValue)
	}

	return b.String()
}
