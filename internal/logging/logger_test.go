package logging

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestLogger_WritesJSONLPerCategory(t *testing.T) {
	dir := t.TempDir()
	require.NoError(t, Initialize(dir, true, LevelDebug, nil))
	defer CloseAll()

	Get(CategoryCache).Info("set key=%s tier=%s", "users", "pinned")

	path := filepath.Join(dir, ".zolo", "logs", "cache.log")
	data, err := os.ReadFile(path)
	require.NoError(t, err)
	require.Contains(t, string(data), `"cat":"cache"`)
	require.Contains(t, string(data), "set key=users tier=pinned")
}

func TestLogger_NoopWhenDebugDisabled(t *testing.T) {
	dir := t.TempDir()
	require.NoError(t, Initialize(dir, false, LevelDebug, nil))
	defer CloseAll()

	Get(CategoryWizard).Error("should not be written")

	_, err := os.Stat(filepath.Join(dir, ".zolo", "logs", "wizard.log"))
	require.True(t, os.IsNotExist(err))
}

func TestLogger_RespectsCategoryFilter(t *testing.T) {
	dir := t.TempDir()
	require.NoError(t, Initialize(dir, true, LevelDebug, map[Category]bool{CategoryBridge: true}))
	defer CloseAll()

	Get(CategoryBridge).Info("kept")
	Get(CategoryStore).Info("dropped")

	_, err := os.Stat(filepath.Join(dir, ".zolo", "logs", "bridge.log"))
	require.NoError(t, err)
	_, err = os.Stat(filepath.Join(dir, ".zolo", "logs", "store.log"))
	require.True(t, os.IsNotExist(err))
}
