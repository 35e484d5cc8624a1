package fingerprint

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func writeTree(t *testing.T, root string, files map[string]string) {
	t.Helper()
	for rel, content := range files {
		full := filepath.Join(root, rel)
		require.NoError(t, os.MkdirAll(filepath.Dir(full), 0o755))
		require.NoError(t, os.WriteFile(full, []byte(content), 0o644))
	}
}

func TestCompute_RoundTripUnderReorderingAndTimestamps(t *testing.T) {
	files := map[string]string{
		"src/main.cpp": "void setup(){}\nvoid loop(){}\n",
		"platformio.ini": "[env]\n",
		"data/readme.txt": "hello",
	}

	rootA := t.TempDir()
	writeTree(t, rootA, files)

	rootB := t.TempDir()
	// Write in a different order and with different timestamps.
	writeTree(t, rootB, map[string]string{
		"data/readme.txt": "hello",
		"platformio.ini": "[env]\n",
		"src/main.cpp": "void setup(){}\nvoid loop(){}\n",
	})
	future := time.Now().Add(48 * time.Hour)
	_ = os.Chtimes(filepath.Join(rootB, "src/main.cpp"), future, future)

	fpA := Compute(rootA)
	fpB := Compute(rootB)

	require.NotEqual(t, Sentinel, fpA)
	assert.Equal(t, fpA, fpB)
}

func TestCompute_DifferentContentDiffers(t *testing.T) {
	rootA := t.TempDir()
	writeTree(t, rootA, map[string]string{"src/main.cpp": "a"})
	rootB := t.TempDir()
	writeTree(t, rootB, map[string]string{"src/main.cpp": "b"})

	assert.NotEqual(t, Compute(rootA), Compute(rootB))
}

func TestCompute_EmptyTreeIsSentinel(t *testing.T) {
	root := t.TempDir()
	assert.Equal(t, Sentinel, Compute(root))
}

func TestCompute_ExcludesFastledJsDirectory(t *testing.T) {
	rootA := t.TempDir()
	writeTree(t, rootA, map[string]string{"src/main.cpp": "a"})

	rootB := t.TempDir()
	writeTree(t, rootB, map[string]string{
		"src/main.cpp":        "a",
		"fastled_js/index.js": "stale build output",
	})

	assert.Equal(t, Compute(rootA), Compute(rootB))
}
