package ferrors

import (
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestWrapNil(t *testing.T) {
	assert.Nil(t, Wrap(nil, "context"))
}

func TestWrapPreservesSentinel(t *testing.T) {
	wrapped := Wrap(ErrFileGone, "reading foo.log")
	assert.True(t, errors.Is(wrapped, ErrFileGone))
	assert.Contains(t, wrapped.Error(), "reading foo.log")
}
