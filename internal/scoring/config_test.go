package scoring

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDefaultConfig_Valid(t *testing.T) {
	assert.NoError(t, DefaultConfig().Validate())
}

func TestConfig_Validate(t *testing.T) {
	err := Config{RejectedWindowDays: 0, HighWindowDays: 40, NormalWindowDays: 30}.Validate()
	require.Error(t, err)
	assert.Contains(t, err.Error(), "rejected_window_days must be positive")
	assert.Contains(t, err.Error(), "normal_window_days (30) must be >= high_window_days (40)")
}

func TestLoadConfig(t *testing.T) {
	path := filepath.Join(t.TempDir(), "scoring.yaml")
	require.NoError(t, os.WriteFile(path, []byte("high_window_days: 15\nnormal_window_days: 60\n"), 0o600))

	cfg, err := LoadConfig(path, DefaultConfig())
	require.NoError(t, err)
	assert.Equal(t, Config{RejectedWindowDays: 30, HighWindowDays: 15, NormalWindowDays: 60}, cfg)
}

func TestLoadConfig_Errors(t *testing.T) {
	dir := t.TempDir()

	_, err := LoadConfig(filepath.Join(dir, "missing.yaml"), DefaultConfig())
	assert.ErrorContains(t, err, "scoring: read")

	bad := filepath.Join(dir, "bad.yaml")
	require.NoError(t, os.WriteFile(bad, []byte("high_window_days: [1"), 0o600))
	_, err = LoadConfig(bad, DefaultConfig())
	assert.ErrorContains(t, err, "scoring: parse")

	invalid := filepath.Join(dir, "invalid.yaml")
	require.NoError(t, os.WriteFile(invalid, []byte("high_window_days: -1\n"), 0o600))
	_, err = LoadConfig(invalid, DefaultConfig())
	assert.ErrorContains(t, err, "invalid config")
}
