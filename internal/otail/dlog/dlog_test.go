package dlog

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestParseLevel(t *testing.T) {
	cases := map[string]Level{
		"error":   LevelError,
		"WARN":    LevelWarn,
		"warning": LevelWarn,
		"Info":    LevelInfo,
		"debug":   LevelDebug,
		"trace":   LevelTrace,
		"":        LevelOff,
		"bogus":   LevelOff,
	}
	for in, want := range cases {
		assert.Equal(t, want, ParseLevel(in), "input %q", in)
	}
}

func TestLevelOrdering(t *testing.T) {
	assert.True(t, LevelError < LevelWarn)
	assert.True(t, LevelWarn < LevelInfo)
	assert.True(t, LevelInfo < LevelDebug)
	assert.True(t, LevelDebug < LevelTrace)
}
