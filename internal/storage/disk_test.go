package storage

import (
	"bytes"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func filledPage(size int, b byte) []byte {
	return bytes.Repeat([]byte{b}, size)
}

func TestDiskFileServesRepeatReadsFromImageCache(t *testing.T) {
	path := filepath.Join(t.TempDir(), "t.dat")
	d, err := OpenDiskFile(path, 1, 64)
	require.NoError(t, err)
	t.Cleanup(func() { _ = d.Close() })

	ok, err := d.AppendPage(0, filledPage(64, 1))
	require.NoError(t, err)
	require.True(t, ok)
	d.images.Wait()

	// Bypass the DiskFile so only a cache hit can still return the old image.
	require.NoError(t, os.WriteFile(path, filledPage(64, 2), 0o644))
	got, err := d.ReadPage(0)
	require.NoError(t, err)
	assert.Equal(t, filledPage(64, 1), got)

	got[0] = 9
	again, err := d.ReadPage(0)
	require.NoError(t, err)
	assert.Equal(t, byte(1), again[0], "returned slice aliases the cached image")
}

func TestDiskFileWriteReplacesCachedImage(t *testing.T) {
	path := filepath.Join(t.TempDir(), "t.dat")
	d, err := OpenDiskFile(path, 1, 64)
	require.NoError(t, err)
	t.Cleanup(func() { _ = d.Close() })

	_, err = d.AppendPage(0, filledPage(64, 1))
	require.NoError(t, err)
	_, err = d.ReadPage(0)
	require.NoError(t, err)
	d.images.Wait()

	require.NoError(t, d.WritePage(0, filledPage(64, 3)))
	got, err := d.ReadPage(0)
	require.NoError(t, err)
	assert.Equal(t, filledPage(64, 3), got)

	onDisk, err := os.ReadFile(path)
	require.NoError(t, err)
	assert.Equal(t, filledPage(64, 3), onDisk)
}

func TestDiskFileAppendRace(t *testing.T) {
	d, err := OpenDiskFile(filepath.Join(t.TempDir(), "t.dat"), 1, 64)
	require.NoError(t, err)
	t.Cleanup(func() { _ = d.Close() })

	ok, err := d.AppendPage(0, EmptyPageData(64))
	require.NoError(t, err)
	assert.True(t, ok)
	ok, err = d.AppendPage(0, EmptyPageData(64))
	require.NoError(t, err)
	assert.False(t, ok)
	n, err := d.NumPages()
	require.NoError(t, err)
	assert.Equal(t, 1, n)
}
