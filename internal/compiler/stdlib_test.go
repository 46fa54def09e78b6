package compiler

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestStdlibResolverPrefersCurrentDirectory(t *testing.T) {
	dir := t.TempDir()
	fallback := filepath.Join(dir, "stdlib")
	require.NoError(t, os.MkdirAll(fallback, 0755))
	require.NoError(t, os.WriteFile(filepath.Join(fallback, "Library.Math.ailang"), []byte("fallback"), 0644))

	cwd, err := os.Getwd()
	require.NoError(t, err)
	require.NoError(t, os.Chdir(t.TempDir()))
	t.Cleanup(func() { _ = os.Chdir(cwd) })
	require.NoError(t, os.WriteFile("Library.Math.ailang", []byte("local"), 0644))

	r := NewStdlibResolver(fallback)
	src, err := r.Resolve("Math")
	require.NoError(t, err)
	require.Equal(t, "local", src)
}

func TestStdlibResolverFallsBackToStdlibDir(t *testing.T) {
	dir := t.TempDir()
	require.NoError(t, os.WriteFile(filepath.Join(dir, "Library.RESP.ailang"), []byte("resp source"), 0644))

	cwd, err := os.Getwd()
	require.NoError(t, err)
	require.NoError(t, os.Chdir(t.TempDir()))
	t.Cleanup(func() { _ = os.Chdir(cwd) })

	r := NewStdlibResolver(dir)
	src, err := r.Resolve("RESP")
	require.NoError(t, err)
	require.Equal(t, "resp source", src)
}

func TestStdlibResolverMemoizes(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "Library.Once.ailang")
	require.NoError(t, os.WriteFile(path, []byte("v1"), 0644))

	r := NewStdlibResolver(dir)
	first, err := r.Resolve("Once")
	require.NoError(t, err)
	require.Equal(t, "v1", first)

	require.NoError(t, os.WriteFile(path, []byte("v2"), 0644))
	second, err := r.Resolve("Once")
	require.NoError(t, err)
	require.Equal(t, "v1", second, "a second Resolve must return the cached source, not re-read the file")
}

func TestStdlibResolverMissingLibraryReturnsError(t *testing.T) {
	cwd, err := os.Getwd()
	require.NoError(t, err)
	require.NoError(t, os.Chdir(t.TempDir()))
	t.Cleanup(func() { _ = os.Chdir(cwd) })

	r := NewStdlibResolver(t.TempDir())
	_, err = r.Resolve("Nonexistent")
	require.Error(t, err)
}
