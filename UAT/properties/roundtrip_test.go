// Package properties_test checks lifecycle properties that must hold for
// arbitrary argument values, not just the handful the example-based UATs pin.
package properties_test

import (
	"strings"
	"testing"

	"github.com/toejough/fixtape"
	"pgregory.net/rapid"
)

// TestReplayAlwaysReproducesCapturedReturns: for any argument values, a
// replayed call returns exactly what the captured call returned, without
// running the implementation again.
func TestReplayAlwaysReproducesCapturedReturns(t *testing.T) {
	t.Parallel()

	loop := fixtape.NewLoop()
	defer loop.Stop()

	dir := t.TempDir()

	rapid.Check(t, func(t *rapid.T) {
		repeat := rapid.IntRange(0, 5).Draw(t, "repeat")
		text := rapid.StringMatching(`[a-z]{0,8}`).Draw(t, "text")

		calls := 0
		implementation := func(s string, n int) string {
			calls++
			return strings.Repeat(s, n)
		}

		captured, _ := fixtape.WrapFunc(implementation, dir,
			fixtape.WithMode(fixtape.ModeCapture), fixtape.WithPrefix("repeat"), fixtape.WithLoop(loop))

		want := captured(text, repeat)

		replayed, _ := fixtape.WrapFunc(implementation, dir,
			fixtape.WithMode(fixtape.ModeReplay), fixtape.WithPrefix("repeat"), fixtape.WithLoop(loop))

		got := replayed(text, repeat)

		if got != want {
			t.Fatalf("replay of (%q, %d) returned %q, capture returned %q", text, repeat, got, want)
		}

		if calls != 1 {
			t.Fatalf("expected exactly one live call, got %d", calls)
		}
	})
}

// TestDistinctArgumentsNeverShareAFixture: distinct argument lists must land
// in distinct fixture files, or replay would cross-contaminate calls.
func TestDistinctArgumentsNeverShareAFixture(t *testing.T) {
	t.Parallel()

	rapid.Check(t, func(t *rapid.T) {
		a := rapid.SliceOfN(rapid.Int(), 0, 4).Draw(t, "a")
		b := rapid.SliceOfN(rapid.Int(), 0, 4).Draw(t, "b")

		serializer := fixtape.SafeSerializer{}
		serializedA := serializer.Serialize(a)
		serializedB := serializer.Serialize(b)

		pathA := fixtape.FixturePath("d", "p", fixtape.Fingerprint(serializedA))
		pathB := fixtape.FixturePath("d", "p", fixtape.Fingerprint(serializedB))

		if serializedA != serializedB && pathA == pathB {
			t.Fatalf("distinct serializations %q and %q share fixture path %s", serializedA, serializedB, pathA)
		}

		if serializedA == serializedB && pathA != pathB {
			t.Fatalf("equal serializations resolved to different paths %s and %s", pathA, pathB)
		}
	})
}
