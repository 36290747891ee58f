// Package testutil provides small test fixtures shared across the
// internal/otail/... test suites: temp files that grow/truncate like a
// real tailed log, and a generic polling assertion for the async
// channel-driven components.
package testutil

import (
	"os"
	"path/filepath"
	"testing"
	"time"
)

// TempFile creates a temp file with the given initial content and returns
// its path. Removed automatically at test end.
func TempFile(t *testing.T, content string) string {
	t.Helper()
	dir := t.TempDir()
	path := filepath.Join(dir, "otail-test.log")
	if err := os.WriteFile(path, []byte(content), 0644); err != nil {
		t.Fatalf("failed to create temp file: %v", err)
	}
	return path
}

// AppendTo appends text to the file at path, as a live log writer would.
func AppendTo(t *testing.T, path, text string) {
	t.Helper()
	f, err := os.OpenFile(path, os.O_APPEND|os.O_WRONLY, 0644)
	if err != nil {
		t.Fatalf("failed to open %s for append: %v", path, err)
	}
	defer f.Close()
	if _, err := f.WriteString(text); err != nil {
		t.Fatalf("failed to append to %s: %v", path, err)
	}
}

// Truncate shrinks the file at path to the given content, simulating log
// rotation via truncate-in-place.
func Truncate(t *testing.T, path, content string) {
	t.Helper()
	if err := os.Truncate(path, 0); err != nil {
		t.Fatalf("failed to truncate %s: %v", path, err)
	}
	if content != "" {
		AppendTo(t, path, content)
	}
}

// WaitFor polls cond every 5ms until it returns true or timeout elapses,
// failing the test on timeout. Used throughout the async pipeline tests in
// place of a fixed sleep, since Reader/Indexer/Projector delivery is
// asynchronous and event-driven rather than synchronous.
func WaitFor(t *testing.T, timeout time.Duration, msg string, cond func() bool) {
	t.Helper()
	deadline := time.Now().Add(timeout)
	for time.Now().Before(deadline) {
		if cond() {
			return
		}
		time.Sleep(5 * time.Millisecond)
	}
	if !cond() {
		t.Fatalf("timed out waiting for: %s", msg)
	}
}

// DrainEvent reads one value from ch, failing the test if it does not
// arrive within timeout.
func DrainEvent[T any](t *testing.T, ch <-chan T, timeout time.Duration) T {
	t.Helper()
	select {
	case v := <-ch:
		return v
	case <-time.After(timeout):
		t.Fatalf("timed out waiting for value on channel")
		var zero T
		return zero
	}
}
