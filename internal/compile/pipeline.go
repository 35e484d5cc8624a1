// Package compile implements the end-to-end handling of one sketch
// compilation request: extraction, fingerprinting, cache lookup,
// toolchain invocation, and artifact packaging.
package compile

import (
	"context"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/ocx/fastled-compile-svc/internal/apierr"
	"github.com/ocx/fastled-compile-svc/internal/archiveutil"
	"github.com/ocx/fastled-compile-svc/internal/buildlock"
	"github.com/ocx/fastled-compile-svc/internal/buildstate"
	"github.com/ocx/fastled-compile-svc/internal/fingerprint"
	"github.com/ocx/fastled-compile-svc/internal/metrics"
	"github.com/ocx/fastled-compile-svc/internal/reqlog"
	"github.com/ocx/fastled-compile-svc/internal/session"
	"github.com/ocx/fastled-compile-svc/internal/sketchcache"
	"github.com/ocx/fastled-compile-svc/internal/sourceupdater"
	"github.com/ocx/fastled-compile-svc/internal/toolchain"
)

// outputDirName is the well-known subdirectory the toolchain writes its
// build products into, relative to the sketch's top-level directory.
const outputDirName = "fastled_js"

// Options carries every per-request knob the compile endpoint accepts.
type Options struct {
	Filename               string
	Build                  string
	Profile                bool
	Strict                 bool
	Native                 bool
	NoManagedBuildSystem   bool
	AllowLibraryRecompile  bool
	SessionHint            *uint64
	UseCache               bool
}

// Artifact is the packaged result of one successful compile.
type Artifact struct {
	Path        string
	SessionID   uint64
	SessionInfo string
	Cleanup     func()
}

// BuildFailedError reports a non-zero toolchain exit. Its Log is the
// full captured toolchain output, suitable for writing back verbatim
// as the response body.
type BuildFailedError struct {
	ExitCode int
	Log      string
}

func (e *BuildFailedError) Error() string {
	return fmt.Sprintf("toolchain exited %d", e.ExitCode)
}

// Pipeline wires together every collaborator a compile request needs.
type Pipeline struct {
	Cache           *sketchcache.Cache
	Sessions        *session.Manager
	Lock            *buildlock.Lock
	Driver          *toolchain.Driver
	Metrics         *metrics.Metrics
	State           *buildstate.State
	Accelerator     *sketchcache.RedisAccelerator
	Updater         sourceupdater.Updater
	ToolchainBinary string
	StagingRoot     string
	OnlyQuickBuilds bool
}

// Compile runs the full pipeline against one uploaded sketch archive
// and returns a packaged artifact, or an error (*BuildFailedError for a
// toolchain failure, *apierr.Error for everything else).
func (p *Pipeline) Compile(ctx context.Context, upload io.Reader, opts Options) (*Artifact, error) {
	build, err := p.resolveBuild(opts)
	if err != nil {
		return nil, err
	}
	logger := reqlog.Logger(ctx).With("build_mode", build)
	if opts.Filename != "" && !strings.HasSuffix(strings.ToLower(opts.Filename), ".zip") {
		return nil, apierr.Input("uploaded archive must have a .zip extension")
	}

	sourceStaging, cleanupSource, err := p.mkScopedTemp("source-staging")
	if err != nil {
		return nil, apierr.InternalWrap("create source staging dir", err)
	}
	defer cleanupSource()

	zr, declaredSize, err := archiveutil.ReadZip(upload)
	if err != nil {
		return nil, apierr.InputWrap("read uploaded archive", err)
	}
	if len(zr.File) == 0 {
		return nil, apierr.Internal("no files found in uploaded archive")
	}

	if err := archiveutil.Extract(zr, declaredSize, sourceStaging); err != nil {
		return nil, apierr.InternalWrap("extract uploaded archive", err)
	}

	topLevel, err := archiveutil.TopLevelDir(sourceStaging)
	if err != nil {
		return nil, apierr.Internal(err.Error())
	}
	sketchRoot := filepath.Join(sourceStaging, topLevel)

	fp := fingerprint.Compute(sketchRoot)
	cacheable := opts.UseCache && fp != fingerprint.Sentinel

	if cacheable && p.Accelerator.MightHave(ctx, fp) {
		if blob, hit := p.Cache.Get(fp); hit {
			p.Metrics.CacheResult.WithLabelValues("hit").Inc()
			artifactPath, cleanup, err := p.writeTempArtifact(blob)
			if err != nil {
				return nil, apierr.InternalWrap("materialize cached artifact", err)
			}
			sessionID, sessionInfo := p.touchSession(opts.SessionHint)
			logger.Info("compile served from cache", "session_id", sessionID, "session_info", sessionInfo)
			return &Artifact{Path: artifactPath, SessionID: sessionID, SessionInfo: sessionInfo, Cleanup: cleanup}, nil
		}
		p.Metrics.CacheResult.WithLabelValues("miss").Inc()
	} else if opts.UseCache {
		p.Metrics.CacheResult.WithLabelValues("bypassed").Inc()
	}

	if opts.AllowLibraryRecompile && p.Updater != nil {
		result, err := p.Updater.Sync(ctx, build, func(line string) {
			logger.Info("source sync", "line", line)
		})
		if err == nil && result.Changed {
			if err := p.Cache.Clear(); err != nil {
				logger.Warn("sketch cache clear after library recompile failed", "error", err)
			}
		} else if err != nil {
			logger.Warn("library source sync failed, proceeding with existing sources", "error", err)
		}
	}

	p.Metrics.CompileTotal.WithLabelValues("attempted").Inc()
	if p.State != nil {
		p.State.IncAttempted()
	}

	lockWaitStart := time.Now()
	p.Lock.Acquire()
	lockWait := time.Since(lockWaitStart)
	p.Metrics.LockWait.Observe(lockWait.Seconds())
	p.Metrics.BuildLockHeld.Set(1)
	releaseLock := func() {
		p.Metrics.BuildLockHeld.Set(0)
		p.Lock.Release()
	}

	toolchainOpts := toolchain.Options{
		BinaryPath:           p.ToolchainBinary,
		SourceDir:            sketchRoot,
		Build:                toolchain.BuildMode(build),
		Profile:              opts.Profile,
		Strict:               opts.Strict,
		NoManagedBuildSystem: opts.NoManagedBuildSystem || opts.Native,
		KeepIntermediates:    build == string(toolchain.BuildDebug),
	}

	invocationID := uuid.NewString()
	invocationLogger := logger.With("invocation_id", invocationID)
	result, err := p.Driver.Run(ctx, toolchainOpts, func(line string) {
		invocationLogger.Info("toolchain", "line", stripHostPaths(line, p.StagingRoot))
	})
	buildDuration := result.Duration
	if err != nil {
		releaseLock()
		p.Metrics.CompileTotal.WithLabelValues("failed").Inc()
		if p.State != nil {
			p.State.IncFailed()
		}
		invocationLogger.Warn("toolchain invocation failed", "error", err)
		return nil, apierr.InternalWrap("invoke toolchain", err)
	}

	if result.ExitCode != 0 {
		releaseLock()
		p.Metrics.CompileTotal.WithLabelValues("failed").Inc()
		if p.State != nil {
			p.State.IncFailed()
		}
		invocationLogger.Warn("toolchain exited non-zero", "exit_code", result.ExitCode)
		return nil, &BuildFailedError{ExitCode: result.ExitCode, Log: result.Output}
	}
	p.Metrics.CompileTotal.WithLabelValues("succeeded").Inc()
	p.Metrics.CompileDuration.Observe(buildDuration.Seconds())
	if p.State != nil {
		p.State.IncSucceeded()
	}

	outDir := filepath.Join(sketchRoot, outputDirName)
	if info, statErr := os.Stat(outDir); statErr != nil || !info.IsDir() {
		releaseLock()
		return nil, apierr.Internal("toolchain completed but produced no fastled_js output directory")
	}

	if err := os.WriteFile(filepath.Join(outDir, "out.txt"), []byte(result.Output), 0o644); err != nil {
		releaseLock()
		return nil, apierr.InternalWrap("write out.txt", err)
	}
	perf := fmt.Sprintf("lock_wait_seconds: %.6f\nbuild_duration_seconds: %.6f\n",
		lockWait.Seconds(), buildDuration.Seconds())
	if err := os.WriteFile(filepath.Join(outDir, "perf.txt"), []byte(perf), 0o644); err != nil {
		releaseLock()
		return nil, apierr.InternalWrap("write perf.txt", err)
	}
	if err := os.WriteFile(filepath.Join(outDir, "hash.txt"), []byte(fp), 0o644); err != nil {
		releaseLock()
		return nil, apierr.InternalWrap("write hash.txt", err)
	}

	outputStaging, cleanupOutput, err := p.mkScopedTemp("output-staging")
	if err != nil {
		releaseLock()
		return nil, apierr.InternalWrap("create output staging dir", err)
	}
	artifactPath := filepath.Join(outputStaging, "fastled_js.zip")
	if err := archiveutil.CreateZip(outDir, artifactPath, 1); err != nil {
		releaseLock()
		cleanupOutput()
		return nil, apierr.InternalWrap("package artifact", err)
	}
	releaseLock()

	if cacheable {
		if blob, readErr := os.ReadFile(artifactPath); readErr == nil {
			if err := p.Cache.Put(fp, blob); err != nil {
				logger.Warn("sketch cache insert failed", "fingerprint", fp, "error", err)
			} else {
				p.Accelerator.Record(ctx, fp)
			}
		}
	}

	sessionID, sessionInfo := p.touchSession(opts.SessionHint)
	logger.Info("compile succeeded", "session_id", sessionID, "session_info", sessionInfo, "invocation_id", invocationID)
	return &Artifact{
		Path:        artifactPath,
		SessionID:   sessionID,
		SessionInfo: sessionInfo,
		Cleanup:     cleanupOutput,
	}, nil
}

func (p *Pipeline) resolveBuild(opts Options) (string, error) {
	build := opts.Build
	if build == "" {
		build = string(toolchain.BuildQuick)
	}
	mode, ok := toolchain.ValidBuildMode(build)
	if !ok {
		return "", apierr.Input(fmt.Sprintf("unrecognized build mode %q", opts.Build))
	}
	if p.OnlyQuickBuilds && mode != toolchain.BuildQuick {
		return "", apierr.Precondition("only quick builds allowed")
	}
	return string(mode), nil
}

func (p *Pipeline) touchSession(hint *uint64) (uint64, string) {
	id, reused := p.Sessions.GetOrCreate(hint)
	if p.Metrics != nil {
		p.Metrics.ActiveSessions.Set(float64(p.Sessions.Stats()["active_sessions"]))
	}
	if reused {
		return id, "reused"
	}
	return id, "created"
}

func (p *Pipeline) mkScopedTemp(label string) (string, func(), error) {
	dir, err := os.MkdirTemp(p.StagingRoot, label+"-"+uuid.NewString()+"-")
	if err != nil {
		return "", nil, err
	}
	return dir, func() { _ = os.RemoveAll(dir) }, nil
}

func (p *Pipeline) writeTempArtifact(blob []byte) (string, func(), error) {
	dir, cleanup, err := p.mkScopedTemp("cached-artifact")
	if err != nil {
		return "", nil, err
	}
	path := filepath.Join(dir, "fastled_js.zip")
	if err := os.WriteFile(path, blob, 0o644); err != nil {
		cleanup()
		return "", nil, err
	}
	return path, cleanup, nil
}

// stripHostPaths removes references to the staging root from a
// toolchain log line so the response/log never leaks the host
// filesystem layout.
func stripHostPaths(line, stagingRoot string) string {
	if stagingRoot == "" {
		return line
	}
	return strings.ReplaceAll(line, stagingRoot, "<staging>")
}
