package indexer

import (
	"testing"

	"github.com/snonux/otail/internal/otail/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestHandlePoolReusesReturnedHandle(t *testing.T) {
	path := testutil.TempFile(t, "data")
	pool := newHandlePool(path)

	f1, err := pool.get()
	require.NoError(t, err)
	pool.put(f1)

	f2, err := pool.get()
	require.NoError(t, err)
	assert.Same(t, f1, f2)

	pool.closeAll()
}

func TestHandlePoolClosesOverflow(t *testing.T) {
	path := testutil.TempFile(t, "data")
	pool := newHandlePool(path)
	pool.size = 1

	f1, err := pool.get()
	require.NoError(t, err)
	f2, err := pool.get()
	require.NoError(t, err)

	pool.put(f1)
	pool.put(f2) // exceeds size 1, should be closed rather than pooled

	assert.Len(t, pool.free, 1)
	pool.closeAll()
}
