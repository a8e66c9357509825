package subprocess

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLookupExecutable_RelativeToDir(t *testing.T) {
	dir := t.TempDir()
	require.NoError(t, os.MkdirAll(filepath.Join(dir, "utils"), 0755))
	writeScript(t, filepath.Join(dir, "utils"), "check.sh", "true")

	path, err := LookupExecutable("utils/check.sh", dir, nil)
	require.NoError(t, err)
	assert.True(t, filepath.IsAbs(path))
	assert.Equal(t, "check.sh", filepath.Base(path))
}

func TestLookupExecutable_EnvPath(t *testing.T) {
	bin := t.TempDir()
	writeScript(t, bin, "songbook-fake-make", "true")

	path, err := LookupExecutable("songbook-fake-make", "", map[string]string{"PATH": bin})
	require.NoError(t, err)
	assert.Equal(t, filepath.Join(bin, "songbook-fake-make"), path)

	_, err = LookupExecutable("songbook-fake-make", "", map[string]string{"PATH": t.TempDir()})
	assert.ErrorIs(t, err, ErrToolNotFound)
}

func TestLookupExecutable_Empty(t *testing.T) {
	_, err := LookupExecutable("", "", nil)
	assert.ErrorIs(t, err, ErrToolNotFound)
}
