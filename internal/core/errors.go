package core

import "errors"

// MissingFixtureError reports a replay request for which no fixture was ever
// captured. It carries the resolved fixture path and the serialized call
// arguments so the missing recording can be identified and reproduced.
type MissingFixtureError struct {
	Path           string
	SerializedArgs string
}

// Error renders the fixed explanation, the fixture path, the serialized
// arguments, and the remediation.
func (e *MissingFixtureError) Error() string {
	return "no fixture recorded for this call\n" +
		"  fixture path: " + e.Path + "\n" +
		"  serialized call args: " + e.SerializedArgs + "\n" +
		"run the suite once with " + ModeEnvVar + "=capture to record it"
}

// ErrUnsettledDeferred rejects a replayed deferred result whose fixture
// retained neither resolution nor rejection data.
var ErrUnsettledDeferred = errors.New("fixture retained no resolution or rejection for the deferred result")
