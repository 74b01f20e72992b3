package core

import "strings"

// Mode selects what a wrapped method does with the real implementation.
type Mode string

const (
	// ModeUnset defers mode selection to the process environment.
	ModeUnset Mode = ""
	// ModePassthrough forwards calls and results unmodified. No
	// fingerprinting, no fixture I/O, no outcome-shape detection.
	ModePassthrough Mode = "passthrough"
	// ModeCapture executes the real implementation and records its outcome
	// to the fixture store as it settles.
	ModeCapture Mode = "capture"
	// ModeReplay never executes the real implementation; the outcome is
	// synthesized from a previously captured fixture.
	ModeReplay Mode = "replay"
)

// ModeEnvVar selects the default mode for wrappers that don't set one
// explicitly.
const ModeEnvVar = "FIXTAPE_MODE"

// ResolveMode resolves the effective mode once, at wrap time: the explicit
// mode wins, then the process environment, then replay. It is never re-read
// during calls, so the environment cannot drift a wrapper mid-suite.
func ResolveMode(explicit Mode, getenv func(string) string) Mode {
	if explicit != ModeUnset {
		return explicit
	}

	switch Mode(strings.ToLower(getenv(ModeEnvVar))) {
	case ModePassthrough:
		return ModePassthrough
	case ModeCapture:
		return ModeCapture
	case ModeReplay, ModeUnset:
		return ModeReplay
	default:
		return ModeReplay
	}
}
