package session

import (
	"context"
	"testing"
	"time"

	"github.com/snonux/otail/internal/otail/filterspec"
	"github.com/snonux/otail/internal/otail/testutil"
	"github.com/snonux/otail/internal/otail/view"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func testWindow(height int) view.Window {
	return view.Window{FirstVisible: 1, Height: height}
}

func TestSessionOpenWiresRawAndFilteredViews(t *testing.T) {
	path := testutil.TempFile(t, "keep one\nskip two\nkeep three\n")
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	sess, err := Open(ctx, path, 10*time.Millisecond)
	require.NoError(t, err)
	defer sess.Close()

	sess.Raw.SetWindow(testWindow(5))
	sess.SetFilter(filterspec.Spec{Kind: filterspec.PlainCI, Pattern: "keep", Enabled: true})
	sess.Filtered.SetWindow(testWindow(5))

	testutil.WaitFor(t, time.Second, "raw view sees all 3 lines", func() bool {
		return sess.Raw.LineCount() == 3
	})
	testutil.WaitFor(t, time.Second, "filtered view sees 2 matches", func() bool {
		return sess.Filtered.LineCount() == 2
	})
}

func TestSessionSyncToFilteredCentersRawView(t *testing.T) {
	path := testutil.TempFile(t, "x\nMATCH\ny\nMATCH\nz\n")
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	sess, err := Open(ctx, path, 10*time.Millisecond)
	require.NoError(t, err)
	defer sess.Close()

	sess.Raw.SetWindow(testWindow(3))
	sess.Filtered.SetWindow(testWindow(3))
	sess.SetFilter(filterspec.Spec{Kind: filterspec.PlainCS, Pattern: "MATCH", Enabled: true})

	testutil.WaitFor(t, time.Second, "2 matches", func() bool {
		return sess.Filtered.LineCount() == 2
	})

	ok := sess.SyncToFiltered(2)
	assert.True(t, ok)
	assert.False(t, sess.Raw.Tailing())
}

func TestSessionAutoSyncToggle(t *testing.T) {
	path := testutil.TempFile(t, "a\n")
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	sess, err := Open(ctx, path, 10*time.Millisecond)
	require.NoError(t, err)
	defer sess.Close()

	assert.False(t, sess.AutoSync())
	sess.SetAutoSync(true)
	assert.True(t, sess.AutoSync())
}
