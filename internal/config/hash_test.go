package config

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestComputeBlake3Hash(t *testing.T) {
	path := filepath.Join(t.TempDir(), "f")
	require.NoError(t, os.WriteFile(path, []byte("hello"), 0o644))

	h1, err := ComputeBlake3Hash(path)
	require.NoError(t, err)
	assert.Len(t, h1, 64)

	h2, err := ComputeBlake3Hash(path)
	require.NoError(t, err)
	assert.Equal(t, h1, h2)

	require.NoError(t, os.WriteFile(path, []byte("hello!"), 0o644))
	h3, err := ComputeBlake3Hash(path)
	require.NoError(t, err)
	assert.NotEqual(t, h1, h3)
}

func TestVerifyIfLocked_NoManifest(t *testing.T) {
	path := writeConfig(t, t.TempDir(), "service: {}\n")
	assert.NoError(t, VerifyIfLocked(path))
}

func TestLockThenVerify(t *testing.T) {
	dir := t.TempDir()
	path := writeConfig(t, dir, "service: {}\n")

	manifestPath, err := Lock(path)
	require.NoError(t, err)
	assert.Equal(t, filepath.Join(dir, ChecksumFile), manifestPath)

	info, err := os.Stat(manifestPath)
	require.NoError(t, err)
	assert.Equal(t, os.FileMode(0o600), info.Mode().Perm())

	assert.NoError(t, VerifyIfLocked(path))

	// Tamper with the locked file.
	require.NoError(t, os.WriteFile(path, []byte("service: {name: evil}\n"), 0o644))
	err = VerifyIfLocked(path)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "hash mismatch")

	_, err = Load(path)
	assert.Error(t, err)
}

func TestVerifyIfLocked_FileNotInManifest(t *testing.T) {
	dir := t.TempDir()
	other := filepath.Join(dir, "other.yaml")
	require.NoError(t, os.WriteFile(other, []byte("x: 1\n"), 0o644))
	_, err := Lock(other)
	require.NoError(t, err)

	path := writeConfig(t, dir, "service: {}\n")
	err = VerifyIfLocked(path)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "no hash")
}
