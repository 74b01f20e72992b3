package core

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"reflect"
	"runtime"
	"strings"

	"go.uber.org/zap"
)

// Error philosophy (matching the rest of this module):
//
// Misuse of the wrapping API (non-function targets, missing fields) and
// unrecoverable replay conditions (missing fixtures, unreadable fixture
// files) imply programmer intervention, so they panic with an explanatory
// value. The wrapper cannot widen the wrapped signature with an error return,
// and silently synthesizing a wrong outcome would defeat the point of
// deterministic fixtures.

// Config is the per-wrapper configuration, resolved once at wrap time and
// fixed for the wrapper's lifetime.
type Config struct {
	Dir                string
	Prefix             string
	Mode               Mode
	ArgSerializer      Serializer
	ResponseSerializer Serializer
	ReturnSerializer   Serializer
	Substituter        TailSubstituter
	Install            InstallFunc
	Loop               *Loop
	Getenv             func(string) string
	FS                 FileSystem
	Logger             *zap.Logger
}

// Option adjusts a wrapper's configuration.
type Option func(*Config)

// WithPrefix overrides the fixture filename prefix. The default is the
// wrapped method's name.
func WithPrefix(prefix string) Option {
	return func(c *Config) { c.Prefix = prefix }
}

// WithMode sets the mode explicitly instead of resolving it from the process
// environment.
func WithMode(mode Mode) Option {
	return func(c *Config) { c.Mode = mode }
}

// WithArgSerializer overrides the serializer used for call arguments (and so
// for fingerprinting).
func WithArgSerializer(s Serializer) Option {
	return func(c *Config) { c.ArgSerializer = s }
}

// WithResponseSerializer overrides the serializer used for callback arguments
// and future settlements.
func WithResponseSerializer(s Serializer) Option {
	return func(c *Config) { c.ResponseSerializer = s }
}

// WithReturnSerializer overrides the serializer used for synchronous return
// values.
func WithReturnSerializer(s Serializer) Option {
	return func(c *Config) { c.ReturnSerializer = s }
}

// WithTailSubstituter overrides how a trailing callback is replaced with a
// recording stand-in during capture.
func WithTailSubstituter(ts TailSubstituter) Option {
	return func(c *Config) { c.Substituter = ts }
}

// WithInstaller delegates wrapper installation to an external stub manager,
// which then owns restoration: Restore on the returned Wrapped becomes a
// no-op.
func WithInstaller(install InstallFunc) Option {
	return func(c *Config) { c.Install = install }
}

// WithLoop schedules this wrapper's deferred work on the given loop instead
// of the process-wide default.
func WithLoop(loop *Loop) Option {
	return func(c *Config) { c.Loop = loop }
}

// WithGetenv overrides process environment access, for tests.
func WithGetenv(getenv func(string) string) Option {
	return func(c *Config) { c.Getenv = getenv }
}

// WithFileSystem overrides fixture file access, for tests.
func WithFileSystem(fileSystem FileSystem) Option {
	return func(c *Config) { c.FS = fileSystem }
}

// WithLogger attaches a structured logger. The default discards everything.
func WithLogger(logger *zap.Logger) Option {
	return func(c *Config) { c.Logger = logger }
}

// InstallFunc installs a replacement implementation on a target, in place of
// direct field assignment. External stub-management libraries plug in here
// and keep the installation/restoration bookkeeping.
type InstallFunc func(target any, methodName string, replacement any)

// TailSubstituter builds the stand-in for a trailing callback so capture can
// observe the eventual callback arguments. The stand-in must preserve the
// callable's observable timing: observe, then forward.
type TailSubstituter interface {
	Substitute(tail reflect.Value, observe func(args []reflect.Value)) reflect.Value
}

// RecordingTail is the default TailSubstituter: a proxy of the identical
// function type that records the arguments, then forwards to the original
// callable and returns its results.
type RecordingTail struct{}

// Substitute builds the recording proxy for tail.
func (RecordingTail) Substitute(tail reflect.Value, observe func(args []reflect.Value)) reflect.Value {
	return reflect.MakeFunc(tail.Type(), func(args []reflect.Value) []reflect.Value {
		observe(args)

		return callValue(tail, args)
	})
}

// Wrapped is an installed wrapper. It retains the original implementation so
// the target can be restored.
type Wrapped struct {
	config    Config
	original  reflect.Value
	field     reflect.Value
	delegated bool
}

// Mode reports the mode the wrapper resolved at wrap time.
func (w *Wrapped) Mode() Mode {
	return w.config.Mode
}

// Original returns the implementation that was wrapped.
func (w *Wrapped) Original() any {
	return w.original.Interface()
}

// Restore reinstalls the original implementation on the target. When
// installation was delegated to an external stub manager, that collaborator
// owns restoration and Restore does nothing.
func (w *Wrapped) Restore() {
	if w.delegated || !w.field.IsValid() {
		return
	}

	w.field.Set(w.original)
}

// Wrap replaces the function-valued field methodName on target (a pointer to
// a struct) with a wrapper of identical calling convention, recording to or
// replaying from fixtures under dir. It panics on misuse: target must be a
// pointer to a struct with a settable func field of that name.
func Wrap(target any, methodName string, dir string, opts ...Option) *Wrapped {
	targetValue := reflect.ValueOf(target)
	if !targetValue.IsValid() || targetValue.Kind() != reflect.Pointer || targetValue.Elem().Kind() != reflect.Struct {
		panic(fmt.Sprintf("must pass a pointer to a struct as the wrap target. received a %T instead.", target))
	}

	field := targetValue.Elem().FieldByName(methodName)

	switch {
	case !field.IsValid():
		panic(fmt.Sprintf("no field named %s on wrap target %T.", methodName, target))
	case field.Kind() != reflect.Func:
		panic(fmt.Sprintf("field %s on wrap target %T is a %s, not a func.", methodName, target, field.Kind()))
	case !field.CanSet():
		panic(fmt.Sprintf("field %s on wrap target %T is not settable.", methodName, target))
	case field.IsNil():
		panic(fmt.Sprintf("field %s on wrap target %T is nil. there is nothing to wrap.", methodName, target))
	}

	config := newConfig(dir, methodName, opts)
	original := reflect.ValueOf(field.Interface())
	wrapper := makeWrapper(original, config)

	config.Logger.Debug("wrapped method",
		zap.String("method", methodName),
		zap.String("mode", string(config.Mode)),
		zap.String("dir", config.Dir),
	)

	if config.Install != nil {
		config.Install(target, methodName, wrapper.Interface())

		return &Wrapped{config: config, original: original, delegated: true}
	}

	field.Set(wrapper)

	return &Wrapped{config: config, original: original, field: field}
}

// WrapFunc wraps a bare function value instead of a struct field. The caller
// installs the returned function itself; Restore on the returned Wrapped is a
// no-op. The fixture prefix defaults to the function's short name.
func WrapFunc[T any](function T, dir string, opts ...Option) (T, *Wrapped) {
	original := reflect.ValueOf(function)
	if original.Kind() != reflect.Func {
		panic(fmt.Sprintf("must pass a function. received a %s instead.", original.Kind()))
	}

	config := newConfig(dir, shortFuncName(function), opts)
	wrapper := makeWrapper(original, config)

	// Ignore the type assertion lint check - we are depending on MakeFunc to
	// return the correct type, as documented.
	return wrapper.Interface().(T), &Wrapped{config: config, original: original} //nolint:forcetypeassert
}

func newConfig(dir, prefix string, opts []Option) Config {
	config := Config{
		Dir:                dir,
		Prefix:             prefix,
		ArgSerializer:      SafeSerializer{},
		ResponseSerializer: SafeSerializer{},
		ReturnSerializer:   SafeSerializer{},
		Substituter:        RecordingTail{},
		Getenv:             os.Getenv,
		FS:                 OSFileSystem{},
		Logger:             zap.NewNop(),
	}

	for _, opt := range opts {
		opt(&config)
	}

	if config.Loop == nil {
		config.Loop = DefaultLoop()
	}

	config.Mode = ResolveMode(config.Mode, config.Getenv)

	return config
}

// makeWrapper builds the replacement implementation. Pass-through returns the
// original itself: no interception, no fixture I/O.
func makeWrapper(original reflect.Value, config Config) reflect.Value {
	if config.Mode == ModePassthrough {
		return original
	}

	fnType := original.Type()

	return reflect.MakeFunc(fnType, func(in []reflect.Value) []reflect.Value {
		if config.Mode == ModeCapture {
			return capture(original, config, in)
		}

		return replay(fnType, config, in)
	})
}

// capture invokes the real implementation (with the trailing callback
// substituted if the call is callback-shaped) and flushes the fixture record
// on every settle event.
func capture(original reflect.Value, config Config, in []reflect.Value) []reflect.Value {
	fnType := original.Type()
	callbackShaped := tailCallable(fnType, in)

	serializedArgs, path := locateFixture(config, in, callbackShaped)
	store := NewStore(config.FS)
	record := &Record{CallArgs: serializedArgs}

	flush := func() {
		if err := store.Write(path, record); err != nil {
			panic(err)
		}

		config.Logger.Debug("fixture captured", zap.String("path", path))
	}

	callIn := in

	if callbackShaped {
		tail := in[len(in)-1]
		proxy := config.Substituter.Substitute(tail, func(cbArgs []reflect.Value) {
			record.CallbackArgs = config.ResponseSerializer.Serialize(unreflectValues(cbArgs))
			flush()
		})

		callIn = append(append(make([]reflect.Value, 0, len(in)), in[:len(in)-1]...), proxy)
	}

	out := callValue(original, callIn)

	if result := thenableResult(out); result != nil {
		record.ReturnedDeferred = true
		derived := NewFuture(config.Loop)

		result.Then(
			func(vals []any) {
				record.ResolutionArgs = config.ResponseSerializer.Serialize(vals)
				flush()
				derived.Resolve(vals...)
			},
			func(reason error) {
				record.RejectionArgs = config.ResponseSerializer.Serialize([]any{reason})
				flush()
				derived.Reject(reason)
			},
		)

		return replaceThenable(out, derived, fnType)
	}

	if !callbackShaped {
		record.ReturnValue = config.ReturnSerializer.Serialize(unreflectValues(out))
		flush()
	}

	return out
}

// replay never invokes the real implementation. The fixture read is eager, so
// a missing or unreadable fixture surfaces synchronously, before any
// scheduling deferral.
func replay(fnType reflect.Type, config Config, in []reflect.Value) []reflect.Value {
	callbackShaped := tailCallable(fnType, in)

	serializedArgs, path := locateFixture(config, in, callbackShaped)

	record, err := NewStore(config.FS).Read(path)
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			panic(&MissingFixtureError{Path: path, SerializedArgs: serializedArgs})
		}

		panic(err)
	}

	config.Logger.Debug("fixture replayed", zap.String("path", path))

	out := zeroReturns(fnType)

	// Callback and deferred data are handled independently: the data model
	// permits both in one fixture (multiple settle events for one call).
	if callbackShaped && record.CallbackArgs != "" {
		scheduleCallback(config, record.CallbackArgs, in[len(in)-1])
	}

	switch {
	case record.ReturnedDeferred:
		out = placeFuture(out, fnType, synthesizeFuture(config, record), path)
	case record.ReturnValue != "":
		revived, err := reviveReturns(parsePayload(record.ReturnValue), fnType)
		if err != nil {
			panic(err)
		}

		out = revived
	}

	return out
}

// locateFixture serializes the recordable arguments (the trailing callable,
// when present, is excluded so a callback's identity never perturbs the
// fingerprint) and resolves the fixture path.
func locateFixture(config Config, in []reflect.Value, callbackShaped bool) (serializedArgs, path string) {
	recorded := in
	if callbackShaped {
		recorded = in[:len(in)-1]
	}

	serializedArgs = config.ArgSerializer.Serialize(unreflectValues(recorded))
	path = FixturePath(config.Dir, config.Prefix, Fingerprint(serializedArgs))

	return serializedArgs, path
}

// scheduleCallback revives the recorded callback arguments and delivers them
// to the caller's callback on a later scheduling turn, never synchronously.
func scheduleCallback(config Config, payload string, tail reflect.Value) {
	revived, err := reviveArgs(parsePayload(payload), tail.Type())
	if err != nil {
		panic(err)
	}

	config.Loop.Defer(func() { callValue(tail, revived) })
}

// synthesizeFuture builds the replayed deferred result. Settlement is
// deferred to the next scheduling turn: resolution data wins, then rejection
// data, then the fixed unsettled-deferred rejection.
func synthesizeFuture(config Config, record *Record) *Future {
	future := NewFuture(config.Loop)

	switch {
	case record.ResolutionArgs != "":
		vals := parsePayload(record.ResolutionArgs)
		config.Loop.Defer(func() { future.Resolve(vals...) })
	case record.RejectionArgs != "":
		reason := rejectionReason(parsePayload(record.RejectionArgs))
		config.Loop.Defer(func() { future.Reject(reason) })
	default:
		config.Loop.Defer(func() { future.Reject(ErrUnsettledDeferred) })
	}

	return future
}

// placeFuture slots the synthesized future into the return values.
func placeFuture(out []reflect.Value, fnType reflect.Type, future *Future, path string) []reflect.Value {
	futureValue := reflect.ValueOf(future)

	if fnType.NumOut() != 1 || !futureValue.Type().AssignableTo(fnType.Out(0)) {
		panic(fmt.Sprintf(
			"fixture %s recorded a deferred result, but the wrapped function's return type cannot hold a *Future.",
			path,
		))
	}

	slot := reflect.New(fnType.Out(0)).Elem()
	slot.Set(futureValue)
	out[0] = slot

	return out
}

// replaceThenable swaps the real deferred result for the derived recording
// future when the declared return type permits it. Otherwise the caller keeps
// the original value, with the recording handlers already attached.
func replaceThenable(out []reflect.Value, derived *Future, fnType reflect.Type) []reflect.Value {
	derivedValue := reflect.ValueOf(derived)

	if len(out) != 1 || !derivedValue.Type().AssignableTo(fnType.Out(0)) {
		return out
	}

	slot := reflect.New(fnType.Out(0)).Elem()
	slot.Set(derivedValue)

	return []reflect.Value{slot}
}

// tailCallable reports whether the call is callback-shaped: the final
// declared parameter is a func and the caller passed a live callable.
func tailCallable(fnType reflect.Type, in []reflect.Value) bool {
	numIn := fnType.NumIn()
	if numIn == 0 || fnType.In(numIn-1).Kind() != reflect.Func {
		return false
	}

	tail := in[numIn-1]

	return tail.IsValid() && !tail.IsNil()
}

// thenableResult reports whether the call is deferred-shaped: a single
// return value whose dynamic value can have settle handlers attached.
func thenableResult(out []reflect.Value) Thenable {
	if len(out) != 1 {
		return nil
	}

	value := out[0]
	if !value.IsValid() || !value.CanInterface() {
		return nil
	}

	if isNillableKind(value.Kind()) && value.IsNil() {
		return nil
	}

	result, ok := value.Interface().(Thenable)
	if !ok {
		return nil
	}

	return result
}

// callValue calls fn with in, handling variadic signatures. Inside a MakeFunc
// implementation the final in element for a variadic function is already the
// variadic slice, which is exactly what CallSlice expects.
func callValue(fn reflect.Value, in []reflect.Value) []reflect.Value {
	if fn.Type().IsVariadic() {
		return fn.CallSlice(in)
	}

	return fn.Call(in)
}

// zeroReturns builds zero values for every declared return.
func zeroReturns(fnType reflect.Type) []reflect.Value {
	out := make([]reflect.Value, fnType.NumOut())
	for i := range out {
		out[i] = reflect.Zero(fnType.Out(i))
	}

	return out
}

// unreflectValues returns the actual values of the reflected values. The
// result is never nil: a zero-argument call serializes as the empty list.
func unreflectValues(rValues []reflect.Value) []any {
	values := make([]any, len(rValues))
	for i := range rValues {
		values[i] = rValues[i].Interface()
	}

	return values
}

// shortFuncName gets the function's name without its package path.
func shortFuncName(function any) string {
	// docs say to use UnsafePointer explicitly instead of Pointer()
	name := runtime.FuncForPC(uintptr(reflect.ValueOf(function).UnsafePointer())).Name()
	// this suffix gets appended sometimes. It's unimportant, as far as I can tell.
	name = strings.TrimSuffix(name, "-fm")

	if i := strings.LastIndexByte(name, '/'); i >= 0 {
		name = name[i+1:]
	}

	if i := strings.LastIndexByte(name, '.'); i >= 0 {
		name = name[i+1:]
	}

	return name
}
