// Package fixtape replaces real asynchronous dependencies with deterministic
// recorded fixtures. A wrapped method runs in one of three modes: pass
// through to the real implementation, execute it once and persist the
// observed outcome (capture), or skip it entirely and synthesize the outcome
// from a previously persisted fixture (replay). Test code stays identical
// across modes.
//
// This is the public API entry point. Implementation lives in internal/core.
package fixtape

import (
	"github.com/toejough/fixtape/internal/core"
)

// Config is the per-wrapper configuration, resolved once at wrap time.
type Config = core.Config

// ErrUnsettledDeferred rejects a replayed deferred result whose fixture
// retained neither resolution nor rejection data.
var ErrUnsettledDeferred = core.ErrUnsettledDeferred

// FileSystem is the engine's view of the filesystem, injectable for tests.
type FileSystem = core.FileSystem

// Future is a deferred result that settles exactly once.
type Future = core.Future

// NewFuture creates a pending Future scheduled on the given loop. A nil loop
// selects the process-wide default.
func NewFuture(loop *Loop) *Future {
	return core.NewFuture(loop)
}

// InstallFunc delegates wrapper installation to an external stub manager.
type InstallFunc = core.InstallFunc

// Loop is the cooperative single-goroutine scheduler deferred outcomes are
// delivered on.
type Loop = core.Loop

// NewLoop creates a Loop and starts its scheduling goroutine.
func NewLoop() *Loop {
	return core.NewLoop()
}

// DefaultLoop returns the process-wide scheduling loop, creating it on first
// use.
func DefaultLoop() *Loop {
	return core.DefaultLoop()
}

// MissingFixtureError reports a replay request with no recorded fixture.
type MissingFixtureError = core.MissingFixtureError

// Mode selects what a wrapped method does with the real implementation.
type Mode = core.Mode

// Modes, and the environment variable that selects the default one.
const (
	ModePassthrough = core.ModePassthrough
	ModeCapture     = core.ModeCapture
	ModeReplay      = core.ModeReplay

	ModeEnvVar = core.ModeEnvVar
)

// Option adjusts a wrapper's configuration.
type Option = core.Option

// Record is the persisted form of one captured call.
type Record = core.Record

// RecordingTail is the default trailing-callback substitution strategy.
type RecordingTail = core.RecordingTail

// SafeSerializer is the default cycle-safe deterministic serializer.
type SafeSerializer = core.SafeSerializer

// Serializer converts call arguments and outcomes to their persisted form.
type Serializer = core.Serializer

// TailSubstituter builds the recording stand-in for a trailing callback.
type TailSubstituter = core.TailSubstituter

// Thenable marks a returned value as a deferred result.
type Thenable = core.Thenable

// Wrapped is an installed wrapper, retaining the original implementation for
// Restore.
type Wrapped = core.Wrapped

// Fingerprint reduces a serialized argument string to its fixture identity.
func Fingerprint(serialized string) string {
	return core.Fingerprint(serialized)
}

// FixturePath resolves the file a fixture lives at.
func FixturePath(dir, prefix, fingerprint string) string {
	return core.FixturePath(dir, prefix, fingerprint)
}

// Wrap replaces the function-valued field methodName on target (a pointer to
// a struct) with a wrapper of identical calling convention, recording to or
// replaying from fixtures under dir.
func Wrap(target any, methodName string, dir string, opts ...Option) *Wrapped {
	return core.Wrap(target, methodName, dir, opts...)
}

// WrapFunc wraps a bare function value instead of a struct field. The caller
// installs the returned function itself.
func WrapFunc[T any](function T, dir string, opts ...Option) (T, *Wrapped) {
	return core.WrapFunc(function, dir, opts...)
}

// Options re-exported from internal/core.
var (
	WithPrefix             = core.WithPrefix
	WithMode               = core.WithMode
	WithArgSerializer      = core.WithArgSerializer
	WithResponseSerializer = core.WithResponseSerializer
	WithReturnSerializer   = core.WithReturnSerializer
	WithTailSubstituter    = core.WithTailSubstituter
	WithInstaller          = core.WithInstaller
	WithLoop               = core.WithLoop
	WithGetenv             = core.WithGetenv
	WithFileSystem         = core.WithFileSystem
	WithLogger             = core.WithLogger
)
