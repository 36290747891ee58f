package config

import (
	"errors"
	"os"
	"path/filepath"
	"testing"

	"github.com/snonux/otail/internal/otail/ferrors"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoadMissingExplicitPath(t *testing.T) {
	_, err := Load(filepath.Join(t.TempDir(), "missing.yaml"))
	require.Error(t, err)
	assert.True(t, errors.Is(err, ferrors.ErrConfigNotFound))
}

func TestLoadNoDefaultFileReturnsEmptyConfig(t *testing.T) {
	dir := t.TempDir()
	wd, err := os.Getwd()
	require.NoError(t, err)
	require.NoError(t, os.Chdir(dir))
	defer os.Chdir(wd)

	cfg, err := Load("")
	require.NoError(t, err)
	assert.Empty(t, cfg.Rules)
	assert.Equal(t, "", cfg.Path())
}

func TestLoadMalformedYAML(t *testing.T) {
	path := filepath.Join(t.TempDir(), "otail.yaml")
	require.NoError(t, os.WriteFile(path, []byte("rules: [this is not: valid"), 0644))

	_, err := Load(path)
	require.Error(t, err)
	assert.True(t, errors.Is(err, ferrors.ErrConfigMalformed))
}

func TestSaveAndReload(t *testing.T) {
	path := filepath.Join(t.TempDir(), "otail.yaml")
	cfg := &Config{}
	cfg.path = path

	require.NoError(t, cfg.AddRule(ColouringRule{
		Pattern: "ERROR", FilterType: "plain_ci", Enabled: true, FG: Red,
	}))

	reloaded, err := Load(path)
	require.NoError(t, err)
	require.Len(t, reloaded.Rules, 1)
	assert.Equal(t, "ERROR", reloaded.Rules[0].Pattern)
	assert.Equal(t, Red, reloaded.Rules[0].FG)
}

func TestSaveNoopWhenReadOnly(t *testing.T) {
	path := filepath.Join(t.TempDir(), "otail.yaml")
	cfg := &Config{ReadOnly: true}
	cfg.path = path

	require.NoError(t, cfg.AddRule(ColouringRule{Pattern: "x"}))
	_, err := os.Stat(path)
	assert.True(t, os.IsNotExist(err))
}

func TestRemoveRuleOutOfRange(t *testing.T) {
	cfg := &Config{ReadOnly: true}
	err := cfg.RemoveRule(0)
	assert.Error(t, err)
}
