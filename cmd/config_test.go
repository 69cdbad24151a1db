package cmd

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/spf13/viper"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/yug-minds/livecore/internal/output"
)

// testEnv sets up isolated config dir, viper, and output for testing.
func testEnv(t *testing.T) string {
	t.Helper()
	dir := t.TempDir()

	// Override configDirFunc for tests
	origFunc := configDirFunc
	configDirFunc = func() (string, error) { return dir, nil }
	t.Cleanup(func() { configDirFunc = origFunc })

	// Reset viper
	viper.Reset()
	viper.SetDefault("state_dir", dir)
	viper.SetDefault("db_path", filepath.Join(dir, "livecore.db"))
	viper.SetDefault("persist", true)
	viper.SetDefault("listen", "127.0.0.1:7600")
	viper.SetDefault("backend.base_url", "http://localhost:3000/api")
	viper.SetDefault("marker.backend", "file")
	viper.SetDefault("liveness.grace_period", "5m")
	viper.SetDefault("liveness.check_interval", "2m")
	viper.SetDefault("liveness.inactivity_timeout", "30m")

	// Initialize output
	ui = output.New()

	return dir
}

func TestConfigInit_CreatesFile(t *testing.T) {
	dir := testEnv(t)

	err := configInitRun()
	require.NoError(t, err)

	cfgPath := filepath.Join(dir, "config.yaml")
	_, err = os.Stat(cfgPath)
	assert.NoError(t, err, "config file should exist")

	data, err := os.ReadFile(cfgPath)
	require.NoError(t, err)
	assert.Contains(t, string(data), "livecore configuration")
	assert.Contains(t, string(data), "liveness")
}

func TestConfigInit_RefusesOverwrite(t *testing.T) {
	dir := testEnv(t)

	// Create existing file
	cfgPath := filepath.Join(dir, "config.yaml")
	require.NoError(t, os.WriteFile(cfgPath, []byte("existing"), 0644))

	err := configInitRun()
	require.Error(t, err)
	assert.Contains(t, err.Error(), "already exists")

	// File untouched
	data, err := os.ReadFile(cfgPath)
	require.NoError(t, err)
	assert.Equal(t, "existing", string(data))
}

func TestConfigInit_ForceOverwrites(t *testing.T) {
	dir := testEnv(t)

	cfgPath := filepath.Join(dir, "config.yaml")
	require.NoError(t, os.WriteFile(cfgPath, []byte("existing"), 0644))

	configForce = true
	t.Cleanup(func() { configForce = false })

	require.NoError(t, configInitRun())

	data, err := os.ReadFile(cfgPath)
	require.NoError(t, err)
	assert.Contains(t, string(data), "livecore configuration")
}

func TestConfigShow_NoFile(t *testing.T) {
	testEnv(t)

	err := configShowRun()
	assert.NoError(t, err)
}

func TestReadConfigFileValues_FlattensNested(t *testing.T) {
	dir := testEnv(t)

	cfgPath := filepath.Join(dir, "config.yaml")
	content := "listen: \"127.0.0.1:7700\"\nliveness:\n  grace_period: \"10m\"\n"
	require.NoError(t, os.WriteFile(cfgPath, []byte(content), 0644))

	values := readConfigFileValues(cfgPath)
	assert.True(t, values["listen"])
	assert.True(t, values["liveness.grace_period"])
	assert.False(t, values["db_path"])
}

func TestDetectSource(t *testing.T) {
	t.Setenv("LIVECORE_TEST_KEY", "1")

	assert.Equal(t, "(env: LIVECORE_TEST_KEY)", detectSource("x", "LIVECORE_TEST_KEY", nil))
	assert.Equal(t, "(file)", detectSource("listen", "LIVECORE_NOPE", map[string]bool{"listen": true}))
	assert.Equal(t, "(default)", detectSource("listen", "LIVECORE_NOPE", nil))
}
