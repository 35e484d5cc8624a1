package archiveutil

import (
	"archive/zip"
	"bytes"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func buildZip(t *testing.T, files map[string]string) []byte {
	t.Helper()
	var buf bytes.Buffer
	zw := zip.NewWriter(&buf)
	for name, content := range files {
		w, err := zw.Create(name)
		require.NoError(t, err)
		_, err = w.Write([]byte(content))
		require.NoError(t, err)
	}
	require.NoError(t, zw.Close())
	return buf.Bytes()
}

func TestExtract_StripsPlatformioIniAndLayout(t *testing.T) {
	data := buildZip(t, map[string]string{
		"sketch/src/main.cpp":   "void setup(){}",
		"sketch/platformio.ini": "[env]",
	})
	zr, size, err := ReadZip(bytes.NewReader(data))
	require.NoError(t, err)

	dest := t.TempDir()
	require.NoError(t, Extract(zr, size, dest))

	_, err = os.Stat(filepath.Join(dest, "sketch", "platformio.ini"))
	assert.True(t, os.IsNotExist(err), "platformio.ini must be stripped")

	_, err = os.Stat(filepath.Join(dest, "sketch", "src", "main.cpp"))
	assert.NoError(t, err)
}

func TestExtract_RejectsPathTraversal(t *testing.T) {
	data := buildZip(t, map[string]string{
		"../evil.txt": "pwned",
	})
	zr, size, err := ReadZip(bytes.NewReader(data))
	require.NoError(t, err)

	dest := t.TempDir()
	err = Extract(zr, size, dest)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "escapes extraction root")
}

func TestTopLevelDir(t *testing.T) {
	dest := t.TempDir()
	require.NoError(t, os.MkdirAll(filepath.Join(dest, "onlydir"), 0o755))
	name, err := TopLevelDir(dest)
	require.NoError(t, err)
	assert.Equal(t, "onlydir", name)
}

func TestTopLevelDir_RejectsMultiple(t *testing.T) {
	dest := t.TempDir()
	require.NoError(t, os.MkdirAll(filepath.Join(dest, "a"), 0o755))
	require.NoError(t, os.MkdirAll(filepath.Join(dest, "b"), 0o755))
	_, err := TopLevelDir(dest)
	assert.Error(t, err)
}

func TestTopLevelDir_RejectsEmpty(t *testing.T) {
	dest := t.TempDir()
	_, err := TopLevelDir(dest)
	assert.Error(t, err)
}

func TestCreateZip_RoundTrip(t *testing.T) {
	src := t.TempDir()
	require.NoError(t, os.WriteFile(filepath.Join(src, "out.txt"), []byte("hello"), 0o644))

	destZip := filepath.Join(t.TempDir(), "artifact.zip")
	require.NoError(t, CreateZip(src, destZip, 1))

	data, err := os.ReadFile(destZip)
	require.NoError(t, err)

	zr, err := zip.NewReader(bytes.NewReader(data), int64(len(data)))
	require.NoError(t, err)
	require.Len(t, zr.File, 1)
	assert.Equal(t, "out.txt", zr.File[0].Name)
}
