package lib

import (
	"archive/zip"
	"bytes"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"golang.org/x/text/encoding/japanese"
)

func writeZip(t *testing.T, path string, build func(zw *zip.Writer)) {
	t.Helper()
	var buf bytes.Buffer
	zw := zip.NewWriter(&buf)
	build(zw)
	require.NoError(t, zw.Close())
	require.NoError(t, os.WriteFile(path, buf.Bytes(), 0o644))
}

func TestExtractArchive(t *testing.T) {
	dir := t.TempDir()
	archive := filepath.Join(dir, "pack.zip")
	writeZip(t, archive, func(zw *zip.Writer) {
		w, err := zw.Create("readme.txt")
		require.NoError(t, err)
		w.Write([]byte("hello"))
		w, err = zw.Create("sub/dir/deep.txt")
		require.NoError(t, err)
		w.Write([]byte("nested"))
	})

	require.NoError(t, ExtractArchive(archive))

	assert.NoFileExists(t, archive)
	data, err := os.ReadFile(filepath.Join(dir, "pack", "readme.txt"))
	require.NoError(t, err)
	assert.Equal(t, "hello", string(data))
	data, err = os.ReadFile(filepath.Join(dir, "pack", "sub", "dir", "deep.txt"))
	require.NoError(t, err)
	assert.Equal(t, "nested", string(data))
}

func TestExtractArchiveDecodesLegacyNames(t *testing.T) {
	sjisName, err := japanese.ShiftJIS.NewEncoder().String("日本語メモ.txt")
	require.NoError(t, err)

	dir := t.TempDir()
	archive := filepath.Join(dir, "jp.zip")
	writeZip(t, archive, func(zw *zip.Writer) {
		w, err := zw.CreateHeader(&zip.FileHeader{Name: sjisName, NonUTF8: true, Method: zip.Deflate})
		require.NoError(t, err)
		w.Write([]byte("memo"))
	})

	require.NoError(t, ExtractArchive(archive))

	data, err := os.ReadFile(filepath.Join(dir, "jp", "日本語メモ.txt"))
	require.NoError(t, err)
	assert.Equal(t, "memo", string(data))
}

func TestExtractArchiveEncrypted(t *testing.T) {
	dir := t.TempDir()
	archive := filepath.Join(dir, "locked.zip")
	writeZip(t, archive, func(zw *zip.Writer) {
		w, err := zw.CreateHeader(&zip.FileHeader{
			Name:   "secret.txt",
			Flags:  zipFlagEncrypted,
			Method: zip.Deflate,
		})
		require.NoError(t, err)
		w.Write([]byte("not really encrypted, but flagged"))
	})

	err := ExtractArchive(archive)
	require.ErrorIs(t, err, ErrEncryptedArchive)

	// The archive stays for manual handling and nothing was extracted.
	assert.FileExists(t, archive)
	assert.NoDirExists(t, filepath.Join(dir, "locked"))
}

func TestExtractArchiveRejectsEscapingEntries(t *testing.T) {
	dir := t.TempDir()
	archive := filepath.Join(dir, "evil.zip")
	writeZip(t, archive, func(zw *zip.Writer) {
		w, err := zw.Create("../escape.txt")
		require.NoError(t, err)
		w.Write([]byte("nope"))
	})

	err := ExtractArchive(archive)
	require.Error(t, err)
	assert.NoFileExists(t, filepath.Join(dir, "escape.txt"))
}

func TestExtractArchiveCorrupt(t *testing.T) {
	dir := t.TempDir()
	archive := filepath.Join(dir, "broken.zip")
	require.NoError(t, os.WriteFile(archive, []byte("not a zip file"), 0o644))

	err := ExtractArchive(archive)
	require.Error(t, err)
	assert.FileExists(t, archive)
}
