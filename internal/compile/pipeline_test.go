package compile

import (
	"archive/zip"
	"bytes"
	"context"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ocx/fastled-compile-svc/internal/buildlock"
	"github.com/ocx/fastled-compile-svc/internal/metrics"
	"github.com/ocx/fastled-compile-svc/internal/session"
	"github.com/ocx/fastled-compile-svc/internal/sketchcache"
	"github.com/ocx/fastled-compile-svc/internal/toolchain"
)

// fakeToolchain writes a small shell script that ignores its arguments
// and, from whatever directory it is invoked in, creates a fastled_js
// output directory with one file — standing in for the real
// C++-to-wasm toolchain binary under test.
func fakeToolchain(t *testing.T, exitCode int) string {
	t.Helper()
	dir := t.TempDir()
	path := filepath.Join(dir, "fake-toolchain.sh")
	script := "#!/bin/sh\n" +
		"mkdir -p \"$(pwd)/fastled_js\"\n" +
		"echo built > \"$(pwd)/fastled_js/output.wasm\"\n" +
		"echo compiling sketch\n"
	if exitCode != 0 {
		script += "exit " + itoa(exitCode) + "\n"
	}
	require.NoError(t, os.WriteFile(path, []byte(script), 0o755))
	return path
}

func itoa(n int) string {
	if n == 0 {
		return "0"
	}
	digits := []byte{}
	for n > 0 {
		digits = append([]byte{byte('0' + n%10)}, digits...)
		n /= 10
	}
	return string(digits)
}

func buildSketchZip(t *testing.T, topDir string, files map[string]string) []byte {
	t.Helper()
	var buf bytes.Buffer
	zw := zip.NewWriter(&buf)
	for name, content := range files {
		w, err := zw.Create(topDir + "/" + name)
		require.NoError(t, err)
		_, err = w.Write([]byte(content))
		require.NoError(t, err)
	}
	require.NoError(t, zw.Close())
	return buf.Bytes()
}

func newTestPipeline(t *testing.T, toolchainBin string) *Pipeline {
	t.Helper()
	cache, err := sketchcache.New(sketchcache.Options{Dir: t.TempDir(), MaxEntries: 10})
	require.NoError(t, err)

	sessions, err := session.New(session.Config{
		WorkerLease:   20 * time.Minute,
		GcGrace:       40 * time.Minute,
		WorkspaceRoot: t.TempDir(),
	})
	require.NoError(t, err)

	return &Pipeline{
		Cache:           cache,
		Sessions:        sessions,
		Lock:            buildlock.New(),
		Driver:          toolchain.New(),
		Metrics:         metrics.NewMetricsFor(prometheus.NewRegistry()),
		ToolchainBinary: toolchainBin,
		StagingRoot:     t.TempDir(),
	}
}

func TestCompile_SuccessProducesArtifact(t *testing.T) {
	p := newTestPipeline(t, fakeToolchain(t, 0))
	zipBytes := buildSketchZip(t, "sketch", map[string]string{"main.ino": "void setup(){}"})

	art, err := p.Compile(context.Background(), bytes.NewReader(zipBytes), Options{
		Build:    "quick",
		UseCache: true,
	})
	require.NoError(t, err)
	defer art.Cleanup()

	assert.FileExists(t, art.Path)
	assert.NotZero(t, art.SessionID)
	assert.Equal(t, "created", art.SessionInfo)
	assert.False(t, p.Lock.IsHeld())

	r, err := zip.OpenReader(art.Path)
	require.NoError(t, err)
	defer r.Close()
	names := map[string]bool{}
	for _, f := range r.File {
		names[f.Name] = true
	}
	assert.True(t, names["output.wasm"])
	assert.True(t, names["out.txt"])
	assert.True(t, names["perf.txt"])
	assert.True(t, names["hash.txt"])
}

func TestCompile_CacheHitSkipsToolchainAndLock(t *testing.T) {
	p := newTestPipeline(t, fakeToolchain(t, 0))
	zipBytes := buildSketchZip(t, "sketch", map[string]string{"main.ino": "same content"})

	first, err := p.Compile(context.Background(), bytes.NewReader(zipBytes), Options{Build: "quick", UseCache: true})
	require.NoError(t, err)
	first.Cleanup()

	// Point at a toolchain binary that would fail loudly if invoked again.
	p.ToolchainBinary = fakeToolchain(t, 17)
	second, err := p.Compile(context.Background(), bytes.NewReader(zipBytes), Options{Build: "quick", UseCache: true})
	require.NoError(t, err)
	defer second.Cleanup()
	assert.FileExists(t, second.Path)
}

func TestCompile_ToolchainFailureReturnsBuildFailedError(t *testing.T) {
	p := newTestPipeline(t, fakeToolchain(t, 9))
	zipBytes := buildSketchZip(t, "sketch", map[string]string{"main.ino": "broken"})

	_, err := p.Compile(context.Background(), bytes.NewReader(zipBytes), Options{Build: "quick"})
	require.Error(t, err)

	var buildErr *BuildFailedError
	require.ErrorAs(t, err, &buildErr)
	assert.Equal(t, 9, buildErr.ExitCode)
	assert.Contains(t, buildErr.Log, "compiling sketch")
	assert.False(t, p.Lock.IsHeld())
}

func TestCompile_RejectsUnrecognizedBuildMode(t *testing.T) {
	p := newTestPipeline(t, fakeToolchain(t, 0))
	zipBytes := buildSketchZip(t, "sketch", map[string]string{"main.ino": "x"})

	_, err := p.Compile(context.Background(), bytes.NewReader(zipBytes), Options{Build: "ludicrous-speed"})
	assert.Error(t, err)
}

func TestCompile_OnlyQuickBuildsRejectsOthers(t *testing.T) {
	p := newTestPipeline(t, fakeToolchain(t, 0))
	p.OnlyQuickBuilds = true
	zipBytes := buildSketchZip(t, "sketch", map[string]string{"main.ino": "x"})

	_, err := p.Compile(context.Background(), bytes.NewReader(zipBytes), Options{Build: "release"})
	assert.Error(t, err)
}

func TestCompile_MultipleTopLevelDirsRejected(t *testing.T) {
	p := newTestPipeline(t, fakeToolchain(t, 0))
	var buf bytes.Buffer
	zw := zip.NewWriter(&buf)
	for _, name := range []string{"a/main.ino", "b/other.ino"} {
		w, err := zw.Create(name)
		require.NoError(t, err)
		_, _ = w.Write([]byte("x"))
	}
	require.NoError(t, zw.Close())

	_, err := p.Compile(context.Background(), bytes.NewReader(buf.Bytes()), Options{Build: "quick"})
	assert.Error(t, err)
}
