package config

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestFindConfigFile(t *testing.T) {
	t.Run("env override", func(t *testing.T) {
		t.Setenv(EnvConfig, "/etc/suitepilot.yaml")
		assert.Equal(t, "/etc/suitepilot.yaml", FindConfigFile(t.TempDir()))
	})

	t.Run("walks up to nearest config", func(t *testing.T) {
		t.Setenv(EnvConfig, "")
		root := t.TempDir()
		cfgPath := filepath.Join(root, DirName, FileName)
		require.NoError(t, os.MkdirAll(filepath.Dir(cfgPath), 0755))
		require.NoError(t, os.WriteFile(cfgPath, []byte("root: tests\n"), 0644))

		nested := filepath.Join(root, "a", "b")
		require.NoError(t, os.MkdirAll(nested, 0755))

		got := FindConfigFile(nested)
		want, err := filepath.EvalSymlinks(cfgPath)
		require.NoError(t, err)
		gotResolved, err := filepath.EvalSymlinks(got)
		require.NoError(t, err)
		assert.Equal(t, want, gotResolved)
	})

	t.Run("falls back under start", func(t *testing.T) {
		t.Setenv(EnvConfig, "")
		start := t.TempDir()
		assert.Equal(t, filepath.Join(start, DirName, FileName), FindConfigFile(start))
	})
}
