package testutil

import "testing"

// Given, When, and Then run fn as a labeled subtest so lifecycle tests
// (checkpoint verification, incident resolution) read as scenarios in
// go test output.
func Given(t *testing.T, desc string, fn func(t *testing.T)) {
	t.Helper()
	step(t, "Given", desc, fn)
}

func When(t *testing.T, desc string, fn func(t *testing.T)) {
	t.Helper()
	step(t, "When", desc, fn)
}

func Then(t *testing.T, desc string, fn func(t *testing.T)) {
	t.Helper()
	step(t, "Then", desc, fn)
}

func step(t *testing.T, label, desc string, fn func(t *testing.T)) {
	t.Helper()
	t.Run(label+" "+desc, fn)
}
