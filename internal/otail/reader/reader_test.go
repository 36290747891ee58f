package reader

import (
	"context"
	"testing"
	"time"

	"github.com/snonux/otail/internal/otail/ferrors"
	"github.com/snonux/otail/internal/otail/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func collectLines(t *testing.T, events <-chan Event, n int, timeout time.Duration) []Line {
	t.Helper()
	var lines []Line
	deadline := time.After(timeout)
	for len(lines) < n {
		select {
		case ev := <-events:
			if l, ok := ev.(Line); ok {
				lines = append(lines, l)
			}
		case <-deadline:
			t.Fatalf("timed out waiting for %d lines, got %d", n, len(lines))
		}
	}
	return lines
}

func TestReaderEmitsExistingLines(t *testing.T) {
	path := testutil.TempFile(t, "one\ntwo\nthree\n")
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	r, err := New(ctx, path)
	require.NoError(t, err)

	lines := collectLines(t, r.Events(), 3, time.Second)
	assert.Equal(t, "one", lines[0].Text)
	assert.Equal(t, "two", lines[1].Text)
	assert.Equal(t, "three", lines[2].Text)
}

func TestReaderPartialFinalLineNotEmittedUntilNewline(t *testing.T) {
	path := testutil.TempFile(t, "complete\n")
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	r, err := New(ctx, path)
	require.NoError(t, err)
	lines := collectLines(t, r.Events(), 1, time.Second)
	assert.Equal(t, "complete", lines[0].Text)

	testutil.AppendTo(t, path, "partial-no-newline-yet")
	select {
	case ev := <-r.Events():
		if l, ok := ev.(Line); ok {
			t.Fatalf("unexpected line emitted for incomplete record: %q", l.Text)
		}
	case <-time.After(150 * time.Millisecond):
	}

	testutil.AppendTo(t, path, " rest\n")
	lines = collectLines(t, r.Events(), 1, time.Second)
	assert.Equal(t, "partial-no-newline-yet rest", lines[0].Text)
}

func TestReaderDetectsTruncation(t *testing.T) {
	path := testutil.TempFile(t, "a\nb\nc\n")
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	r, err := New(ctx, path)
	require.NoError(t, err)
	collectLines(t, r.Events(), 3, time.Second)

	testutil.Truncate(t, path, "x\n")

	testutil.WaitFor(t, 2*time.Second, "truncated event", func() bool {
		for {
			select {
			case ev := <-r.Events():
				if _, ok := ev.(Truncated); ok {
					return true
				}
			default:
				return false
			}
		}
	})
}

func TestReaderKeepsCarriageReturnInTextAndLength(t *testing.T) {
	path := testutil.TempFile(t, "one\r\ntwo\r\n")
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	r, err := New(ctx, path)
	require.NoError(t, err)

	lines := collectLines(t, r.Events(), 2, time.Second)
	assert.Equal(t, "one\r", lines[0].Text)
	assert.Equal(t, len("one\r"), lines[0].Length)
	assert.Equal(t, "two\r", lines[1].Text)
	assert.Equal(t, len("two\r"), lines[1].Length)
}

func TestReaderRejectsMissingFile(t *testing.T) {
	ctx := context.Background()
	_, err := New(ctx, "/nonexistent/path/does-not-exist.log")
	require.Error(t, err)
	assert.ErrorIs(t, err, ferrors.ErrFileNotFound)
}
