package lock

import (
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	findxerrors "github.com/gaspardpetit/findx/internal/errors"
)

func TestAcquire_CreatesLockFile(t *testing.T) {
	dir := t.TempDir()
	l := New(dir)

	require.NoError(t, l.Acquire())
	defer l.Release()

	assert.FileExists(t, filepath.Join(dir, "index.lock"))
	assert.True(t, l.Held())
}

func TestAcquire_SecondProcessFailsWithLockExists(t *testing.T) {
	dir := t.TempDir()

	first := New(dir)
	require.NoError(t, first.Acquire())
	defer first.Release()

	second := New(dir)
	err := second.Acquire()
	require.Error(t, err)

	kind, ok := findxerrors.KindOf(err)
	require.True(t, ok)
	assert.Equal(t, findxerrors.LockExists, kind)
	assert.False(t, second.Held())
}

func TestRelease_AllowsReacquisition(t *testing.T) {
	dir := t.TempDir()

	first := New(dir)
	require.NoError(t, first.Acquire())
	require.NoError(t, first.Release())

	second := New(dir)
	require.NoError(t, second.Acquire())
	defer second.Release()
	assert.True(t, second.Held())
}

func TestRelease_IsIdempotent(t *testing.T) {
	dir := t.TempDir()
	l := New(dir)
	require.NoError(t, l.Acquire())
	require.NoError(t, l.Release())
	require.NoError(t, l.Release())
}

func TestPath_ReturnsLockFilePath(t *testing.T) {
	dir := t.TempDir()
	l := New(dir)
	assert.Equal(t, filepath.Join(dir, "index.lock"), l.Path())
}
