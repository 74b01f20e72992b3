package core

import (
	"errors"
	"fmt"
	"strings"
	"testing"
	"time"
)

// fetchClient is the shape most of these tests wrap: a struct holding a
// function-valued dependency with a trailing callback.
type fetchClient struct {
	Fetch func(id int, callback func(err error, status string))
}

type calcClient struct {
	Add func(a, b int) int
}

type queryClient struct {
	Query func(q string) *Future
}

func expectPanicWith(t *testing.T, substring string) {
	t.Helper()

	recovered := recover()
	if recovered == nil {
		t.Fatalf("expected a panic containing %q, but there was no panic", substring)
	}

	message := fmt.Sprint(recovered)
	if !strings.Contains(message, substring) {
		t.Fatalf("expected a panic containing %q, got %q", substring, message)
	}
}

func TestCaptureRecordsCallbackOutcome(t *testing.T) {
	t.Parallel()

	dir := t.TempDir()
	loop := NewLoop()
	defer loop.Stop()

	// Given a real implementation that calls back with (nil, "ok")
	client := &fetchClient{Fetch: func(_ int, callback func(error, string)) {
		callback(nil, "ok")
	}}

	wrapped := Wrap(client, "Fetch", dir, WithMode(ModeCapture), WithPrefix("fetch"), WithLoop(loop))
	defer wrapped.Restore()

	// When the wrapped method is called
	var (
		gotErr    error
		gotStatus string
	)

	client.Fetch(42, func(err error, status string) { gotErr, gotStatus = err, status })

	// Then the real callback still received its arguments
	if gotErr != nil || gotStatus != "ok" {
		t.Fatalf("expected the callback to receive (nil, ok), got (%v, %q)", gotErr, gotStatus)
	}

	// And the fixture was written at the fingerprinted path
	record, err := NewStore(OSFileSystem{}).Read(FixturePath(dir, "fetch", Fingerprint("[42]")))
	if err != nil {
		t.Fatalf("reading the captured fixture: %v", err)
	}

	if record.CallArgs != "[42]" {
		t.Errorf(`expected callArgs "[42]", got %q`, record.CallArgs)
	}

	if record.CallbackArgs != `[null,"ok"]` {
		t.Errorf(`expected callbackArgs [null,"ok"], got %q`, record.CallbackArgs)
	}

	if record.ReturnValue != "" || record.ReturnedDeferred {
		t.Errorf("expected only the callback outcome group to be recorded, got %#v", record)
	}
}

func TestReplaySynthesizesCallbackOnALaterTurn(t *testing.T) {
	t.Parallel()

	dir := t.TempDir()
	loop := NewLoop()
	defer loop.Stop()

	// Given a fixture captured from a callback-shaped call
	seed := &fetchClient{Fetch: func(_ int, callback func(error, string)) { callback(nil, "ok") }}
	Wrap(seed, "Fetch", dir, WithMode(ModeCapture), WithPrefix("fetch"), WithLoop(loop))
	seed.Fetch(42, func(error, string) {})

	// And a replay wrapper over an implementation that must not run
	realCalled := false
	client := &fetchClient{Fetch: func(int, func(error, string)) { realCalled = true }}
	Wrap(client, "Fetch", dir, WithMode(ModeReplay), WithPrefix("fetch"), WithLoop(loop))

	// And a held loop, so delivery cannot precede our checks
	gate := make(chan struct{})
	loop.Defer(func() { <-gate })

	// When the wrapped method is called
	delivered := make(chan [2]any, 1)
	client.Fetch(42, func(err error, status string) { delivered <- [2]any{err, status} })

	// Then the real implementation was not invoked and the callback did not
	// run synchronously
	if realCalled {
		t.Fatal("the real implementation was invoked in replay mode")
	}

	select {
	case <-delivered:
		t.Fatal("the callback ran synchronously within the call")
	default:
	}

	// When the loop turns over, the callback arrives with the recorded args
	close(gate)

	select {
	case got := <-delivered:
		if got[0] != nil {
			t.Errorf("expected a nil error, got %v", got[0])
		}

		if got[1] != "ok" {
			t.Errorf(`expected status "ok", got %v`, got[1])
		}
	case <-time.After(time.Second):
		t.Fatal("the callback was never delivered")
	}
}

func TestCaptureRecordsDeferredRejection(t *testing.T) {
	t.Parallel()

	dir := t.TempDir()
	loop := NewLoop()
	defer loop.Stop()

	// Given a real implementation whose future rejects with "boom"
	client := &queryClient{Query: func(string) *Future {
		future := NewFuture(loop)
		future.Reject(errors.New("boom"))

		return future
	}}

	Wrap(client, "Query", dir, WithMode(ModeCapture), WithPrefix("query"), WithLoop(loop))

	// When the wrapped method is called and its future settles
	_, err := client.Query("x").Await()

	// Then the caller observes an equivalent rejection
	if err == nil || err.Error() != "boom" {
		t.Fatalf(`expected a "boom" rejection, got %v`, err)
	}

	// And the fixture recorded the deferred rejection
	record, readErr := NewStore(OSFileSystem{}).Read(FixturePath(dir, "query", Fingerprint(`["x"]`)))
	if readErr != nil {
		t.Fatalf("reading the captured fixture: %v", readErr)
	}

	if !record.ReturnedDeferred {
		t.Error("expected returnedDeferred to be recorded")
	}

	if record.RejectionArgs != `["boom"]` {
		t.Errorf(`expected rejectionArgs ["boom"], got %q`, record.RejectionArgs)
	}

	if record.ResolutionArgs != "" {
		t.Errorf("expected no resolution data, got %q", record.ResolutionArgs)
	}
}

func TestReplaySynthesizesDeferredRejection(t *testing.T) {
	t.Parallel()

	dir := t.TempDir()
	loop := NewLoop()
	defer loop.Stop()

	// Given a fixture captured from a rejecting deferred call
	seed := &queryClient{Query: func(string) *Future {
		future := NewFuture(loop)
		future.Reject(errors.New("boom"))

		return future
	}}
	Wrap(seed, "Query", dir, WithMode(ModeCapture), WithPrefix("query"), WithLoop(loop))

	if _, err := seed.Query("x").Await(); err == nil {
		t.Fatal("seeding capture failed to reject")
	}

	// When the same call is replayed over an implementation that must not run
	client := &queryClient{Query: func(string) *Future {
		t.Error("the real implementation was invoked in replay mode")
		return nil
	}}
	Wrap(client, "Query", dir, WithMode(ModeReplay), WithPrefix("query"), WithLoop(loop))

	_, err := client.Query("x").Await()

	// Then the synthesized future rejects with an equivalent reason
	if err == nil || err.Error() != "boom" {
		t.Fatalf(`expected a "boom" rejection, got %v`, err)
	}
}

func TestCaptureRecordsDeferredResolution(t *testing.T) {
	t.Parallel()

	dir := t.TempDir()
	loop := NewLoop()
	defer loop.Stop()

	client := &queryClient{Query: func(string) *Future {
		future := NewFuture(loop)
		future.Resolve("row-1", "row-2")

		return future
	}}

	Wrap(client, "Query", dir, WithMode(ModeCapture), WithPrefix("query"), WithLoop(loop))

	vals, err := client.Query("all").Await()
	if err != nil {
		t.Fatalf("unexpected rejection: %v", err)
	}

	if len(vals) != 2 || vals[0] != "row-1" || vals[1] != "row-2" {
		t.Fatalf("expected the original resolution values, got %#v", vals)
	}

	record, readErr := NewStore(OSFileSystem{}).Read(FixturePath(dir, "query", Fingerprint(`["all"]`)))
	if readErr != nil {
		t.Fatalf("reading the captured fixture: %v", readErr)
	}

	if record.ResolutionArgs != `["row-1","row-2"]` {
		t.Errorf(`expected resolutionArgs ["row-1","row-2"], got %q`, record.ResolutionArgs)
	}
}

func TestReplayOfUnsettledDeferredRejectsWithFixedError(t *testing.T) {
	t.Parallel()

	dir := t.TempDir()
	loop := NewLoop()
	defer loop.Stop()

	// Given a fixture marked deferred but holding neither outcome
	serialized := SafeSerializer{}.Serialize([]any{"x"})
	path := FixturePath(dir, "query", Fingerprint(serialized))

	err := NewStore(OSFileSystem{}).Write(path, &Record{CallArgs: serialized, ReturnedDeferred: true})
	if err != nil {
		t.Fatalf("seeding the fixture: %v", err)
	}

	client := &queryClient{Query: func(string) *Future { panic("must not run") }}
	Wrap(client, "Query", dir, WithMode(ModeReplay), WithPrefix("query"), WithLoop(loop))

	_, awaitErr := client.Query("x").Await()

	if !errors.Is(awaitErr, ErrUnsettledDeferred) {
		t.Fatalf("expected the unsettled-deferred rejection, got %v", awaitErr)
	}
}

func TestCaptureThenReplayRoundTripsSynchronousReturns(t *testing.T) {
	t.Parallel()

	dir := t.TempDir()
	loop := NewLoop()
	defer loop.Stop()

	seed := &calcClient{Add: func(a, b int) int { return a + b }}
	Wrap(seed, "Add", dir, WithMode(ModeCapture), WithPrefix("add"), WithLoop(loop))

	if got := seed.Add(2, 5); got != 7 {
		t.Fatalf("capture changed the synchronous return: expected 7, got %d", got)
	}

	record, err := NewStore(OSFileSystem{}).Read(FixturePath(dir, "add", Fingerprint("[2,5]")))
	if err != nil {
		t.Fatalf("reading the captured fixture: %v", err)
	}

	if record.ReturnValue != "[7]" {
		t.Fatalf(`expected returnValue "[7]", got %q`, record.ReturnValue)
	}

	client := &calcClient{Add: func(int, int) int { panic("must not run") }}
	Wrap(client, "Add", dir, WithMode(ModeReplay), WithPrefix("add"), WithLoop(loop))

	if got := client.Add(2, 5); got != 7 {
		t.Fatalf("replay: expected 7, got %d", got)
	}
}

func TestReplayWithoutAFixturePanicsDescriptively(t *testing.T) {
	t.Parallel()

	dir := t.TempDir()
	loop := NewLoop()
	defer loop.Stop()

	client := &calcClient{Add: func(int, int) int { panic("must not run") }}
	Wrap(client, "Add", dir, WithMode(ModeReplay), WithPrefix("add"), WithLoop(loop))

	defer func() {
		recovered := recover()

		missing, ok := recovered.(*MissingFixtureError)
		if !ok {
			t.Fatalf("expected a *MissingFixtureError panic, got %#v", recovered)
		}

		if missing.Path != FixturePath(dir, "add", Fingerprint("[2,5]")) {
			t.Errorf("unexpected fixture path %q", missing.Path)
		}

		if missing.SerializedArgs != "[2,5]" {
			t.Errorf(`expected serialized args "[2,5]", got %q`, missing.SerializedArgs)
		}

		message := missing.Error()
		if !strings.Contains(message, missing.Path) || !strings.Contains(message, "[2,5]") {
			t.Errorf("expected the message to carry the path and args, got:\n%s", message)
		}

		if !strings.Contains(message, "capture") {
			t.Errorf("expected remediation guidance naming capture mode, got:\n%s", message)
		}
	}()

	client.Add(2, 5)
}

func TestPassthroughTouchesNoFixtures(t *testing.T) {
	t.Parallel()

	fakeFiles := newFakeFS()
	loop := NewLoop()
	defer loop.Stop()

	client := &calcClient{Add: func(a, b int) int { return a + b }}
	wrapped := Wrap(client, "Add", t.TempDir(),
		WithMode(ModePassthrough), WithFileSystem(fakeFiles), WithLoop(loop))
	defer wrapped.Restore()

	if got := client.Add(19, 23); got != 42 {
		t.Fatalf("passthrough changed behavior: expected 42, got %d", got)
	}

	if fakeFiles.ops() != 0 {
		t.Fatalf("expected zero filesystem access, got %d operations", fakeFiles.ops())
	}
}

func TestRestoreReinstallsTheOriginal(t *testing.T) {
	t.Parallel()

	fakeFiles := newFakeFS()
	loop := NewLoop()
	defer loop.Stop()

	client := &calcClient{Add: func(a, b int) int { return a + b }}
	wrapped := Wrap(client, "Add", "fixtures",
		WithMode(ModeCapture), WithFileSystem(fakeFiles), WithLoop(loop))

	client.Add(1, 2)

	if fakeFiles.writeCount() != 1 {
		t.Fatalf("expected one fixture write before restore, got %d", fakeFiles.writeCount())
	}

	wrapped.Restore()

	if got := client.Add(1, 2); got != 3 {
		t.Fatalf("restore broke the original: expected 3, got %d", got)
	}

	if fakeFiles.writeCount() != 1 {
		t.Fatalf("expected no fixture writes after restore, got %d", fakeFiles.writeCount())
	}
}

func TestInstallerDelegationOwnsInstallationAndRestoration(t *testing.T) {
	t.Parallel()

	fakeFiles := newFakeFS()
	loop := NewLoop()
	defer loop.Stop()

	var (
		installedName string
		replacement   any
	)

	client := &calcClient{Add: func(a, b int) int { return a + b }}
	wrapped := Wrap(client, "Add", "fixtures",
		WithMode(ModeCapture), WithFileSystem(fakeFiles), WithLoop(loop),
		WithInstaller(func(_ any, methodName string, r any) {
			installedName = methodName
			replacement = r
		}))

	if installedName != "Add" {
		t.Fatalf("expected the installer to receive the method name, got %q", installedName)
	}

	// The field itself was left for the installer to manage
	client.Add(1, 1)

	if fakeFiles.writeCount() != 0 {
		t.Fatal("expected the unreplaced field to stay uninstrumented")
	}

	// The replacement passed to the installer is the recording wrapper
	add, ok := replacement.(func(int, int) int)
	if !ok {
		t.Fatalf("expected the replacement to keep the calling convention, got %T", replacement)
	}

	if got := add(2, 3); got != 5 {
		t.Fatalf("expected the wrapper to forward to the real method, got %d", got)
	}

	if fakeFiles.writeCount() != 1 {
		t.Fatalf("expected the wrapper to capture a fixture, got %d writes", fakeFiles.writeCount())
	}

	// Restoration belongs to the collaborator; Restore is a no-op
	wrapped.Restore()
}

func TestWrapFuncRoundTripsBareFunctions(t *testing.T) {
	t.Parallel()

	fakeFiles := newFakeFS()
	loop := NewLoop()
	defer loop.Stop()

	double := func(x int) int { return x * 2 }

	captured, _ := WrapFunc(double, "fixtures",
		WithMode(ModeCapture), WithPrefix("double"), WithFileSystem(fakeFiles), WithLoop(loop))

	if got := captured(21); got != 42 {
		t.Fatalf("capture changed behavior: expected 42, got %d", got)
	}

	replayed, _ := WrapFunc(func(int) int { panic("must not run") }, "fixtures",
		WithMode(ModeReplay), WithPrefix("double"), WithFileSystem(fakeFiles), WithLoop(loop))

	if got := replayed(21); got != 42 {
		t.Fatalf("replay: expected 42, got %d", got)
	}
}

func TestVariadicSignaturesRoundTrip(t *testing.T) {
	t.Parallel()

	fakeFiles := newFakeFS()
	loop := NewLoop()
	defer loop.Stop()

	type joiner struct {
		Join func(sep string, parts ...string) string
	}

	seed := &joiner{Join: func(sep string, parts ...string) string {
		return strings.Join(parts, sep)
	}}
	Wrap(seed, "Join", "fixtures",
		WithMode(ModeCapture), WithFileSystem(fakeFiles), WithLoop(loop))

	if got := seed.Join("-", "a", "b"); got != "a-b" {
		t.Fatalf(`capture changed behavior: expected "a-b", got %q`, got)
	}

	client := &joiner{Join: func(string, ...string) string { panic("must not run") }}
	Wrap(client, "Join", "fixtures",
		WithMode(ModeReplay), WithFileSystem(fakeFiles), WithLoop(loop))

	if got := client.Join("-", "a", "b"); got != "a-b" {
		t.Fatalf(`replay: expected "a-b", got %q`, got)
	}
}

func TestCaptureRecordsIndependentCallbackAndDeferredOutcomes(t *testing.T) {
	t.Parallel()

	fakeFiles := newFakeFS()
	loop := NewLoop()
	defer loop.Stop()

	// Given a call that both fires a callback and returns a deferred result
	type dual struct {
		Do func(n int, callback func(int)) *Future
	}

	client := &dual{Do: func(n int, callback func(int)) *Future {
		callback(n + 1)

		future := NewFuture(loop)
		future.Resolve("done")

		return future
	}}

	Wrap(client, "Do", "fixtures",
		WithMode(ModeCapture), WithPrefix("do"), WithFileSystem(fakeFiles), WithLoop(loop))

	var observed int

	if _, err := client.Do(42, func(n int) { observed = n }).Await(); err != nil {
		t.Fatalf("unexpected rejection: %v", err)
	}

	if observed != 43 {
		t.Fatalf("expected the real callback to fire with 43, got %d", observed)
	}

	// Then both outcome groups are present in the fixture (the data model
	// permits multiple settle events for one call)
	record, err := NewStore(fakeFiles).Read(FixturePath("fixtures", "do", Fingerprint("[42]")))
	if err != nil {
		t.Fatalf("reading the captured fixture: %v", err)
	}

	if record.CallbackArgs != "[43]" {
		t.Errorf(`expected callbackArgs "[43]", got %q`, record.CallbackArgs)
	}

	if !record.ReturnedDeferred || record.ResolutionArgs != `["done"]` {
		t.Errorf("expected the deferred outcome alongside the callback, got %#v", record)
	}
}

func TestWrapModeFallsBackToTheEnvironmentAtWrapTime(t *testing.T) {
	t.Parallel()

	loop := NewLoop()
	defer loop.Stop()

	env := map[string]string{ModeEnvVar: "passthrough"}

	client := &calcClient{Add: func(a, b int) int { return a + b }}
	wrapped := Wrap(client, "Add", "fixtures",
		WithGetenv(func(key string) string { return env[key] }), WithLoop(loop))

	if wrapped.Mode() != ModePassthrough {
		t.Fatalf("expected the environment fallback, got %s", wrapped.Mode())
	}

	// Mutating the environment later cannot drift an existing wrapper.
	env[ModeEnvVar] = "capture"

	if wrapped.Mode() != ModePassthrough {
		t.Fatal("mode drifted after wrap time")
	}
}

func TestWrapPanicsOnMisuse(t *testing.T) {
	t.Parallel()

	t.Run("non-pointer target", func(t *testing.T) {
		t.Parallel()

		defer expectPanicWith(t, "must pass a pointer to a struct")
		Wrap(calcClient{}, "Add", "fixtures")
	})

	t.Run("missing field", func(t *testing.T) {
		t.Parallel()

		defer expectPanicWith(t, "no field named")
		Wrap(&calcClient{}, "Subtract", "fixtures")
	})

	t.Run("non-func field", func(t *testing.T) {
		t.Parallel()

		type plain struct{ Name string }

		defer expectPanicWith(t, "not a func")
		Wrap(&plain{}, "Name", "fixtures")
	})

	t.Run("nil field", func(t *testing.T) {
		t.Parallel()

		defer expectPanicWith(t, "nothing to wrap")
		Wrap(&calcClient{}, "Add", "fixtures")
	})

	t.Run("non-func passed to WrapFunc", func(t *testing.T) {
		t.Parallel()

		defer expectPanicWith(t, "must pass a function")
		WrapFunc(5, "fixtures")
	})
}
