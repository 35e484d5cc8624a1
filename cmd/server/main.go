package main

import (
	"context"
	"log/slog"
	"os"
	"time"

	"github.com/ocx/fastled-compile-svc/internal/api"
	"github.com/ocx/fastled-compile-svc/internal/buildlock"
	"github.com/ocx/fastled-compile-svc/internal/buildstate"
	"github.com/ocx/fastled-compile-svc/internal/compile"
	"github.com/ocx/fastled-compile-svc/internal/config"
	"github.com/ocx/fastled-compile-svc/internal/dwarfsource"
	"github.com/ocx/fastled-compile-svc/internal/examples"
	"github.com/ocx/fastled-compile-svc/internal/librebuild"
	"github.com/ocx/fastled-compile-svc/internal/metrics"
	"github.com/ocx/fastled-compile-svc/internal/session"
	"github.com/ocx/fastled-compile-svc/internal/sketchcache"
	"github.com/ocx/fastled-compile-svc/internal/sourceupdater"
	"github.com/ocx/fastled-compile-svc/internal/toolchain"
	"github.com/ocx/fastled-compile-svc/internal/uploadguard"
	"github.com/ocx/fastled-compile-svc/internal/watchdog"
)

func main() {
	slog.Info("fastled-compile-svc: starting")

	cfg := config.Get()

	cache, err := sketchcache.New(sketchcache.Options{
		Dir:        cfg.Paths.OutputDir + "/sketch-cache",
		MaxEntries: cfg.Cache.MaxEntries,
		Disabled:   cfg.Cache.Disabled,
	})
	if err != nil {
		slog.Error("sketch cache init failed", "error", err)
		os.Exit(1)
	}
	defer cache.Close()

	var accelerator *sketchcache.RedisAccelerator
	if cfg.Cache.RedisAddr != "" {
		accelerator, err = sketchcache.NewRedisAccelerator(cfg.Cache.RedisAddr)
		if err != nil {
			slog.Warn("redis accelerator unavailable, continuing without it", "error", err)
		} else {
			defer accelerator.Close()
		}
	}

	sessions, err := session.New(session.Config{
		WorkerLease:   time.Duration(cfg.Session.WorkerLeaseMinutes) * time.Minute,
		GcGrace:       time.Duration(cfg.Session.GcGraceMinutes) * time.Minute,
		SweepInterval: time.Duration(cfg.Session.SweepIntervalSec) * time.Second,
		WorkspaceRoot: cfg.Paths.OutputDir + "/sessions",
	})
	if err != nil {
		slog.Error("session manager init failed", "error", err)
		os.Exit(1)
	}
	sessions.StartGC()
	defer sessions.Stop()

	lock := buildlock.New()
	m := metrics.NewMetrics()
	state := buildstate.New(time.Now())

	var updater sourceupdater.Updater = sourceupdater.NoopUpdater{}
	if cfg.Paths.VolumeMappedSrc != "" {
		updater = sourceupdater.NewRsyncUpdater(cfg.Paths.VolumeMappedSrc, cfg.Paths.CompilerRoot)
	}

	pipeline := &compile.Pipeline{
		Cache:           cache,
		Sessions:        sessions,
		Lock:            lock,
		Driver:          toolchain.New(),
		Metrics:         m,
		State:           state,
		Accelerator:     accelerator,
		Updater:         updater,
		ToolchainBinary: cfg.Paths.CompilerRoot + "/fastled-wasm-toolchain",
		StagingRoot:     cfg.Paths.UploadDir,
		OnlyQuickBuilds: cfg.Build.OnlyQuickBuilds,
	}

	streamer := &librebuild.Streamer{Updater: updater}
	bundler := examples.New(cfg.Paths.ExamplesDir)
	resolver := dwarfsource.New(cfg.Paths.VolumeMappedSrc, cfg.Paths.CompilerRoot)

	if cfg.Memory.LimitMB > 0 {
		wd := watchdog.New(int64(cfg.Memory.LimitMB) * 1024 * 1024)
		wd.Start(context.Background())
	}

	server := &api.Server{
		Config:   cfg,
		Pipeline: pipeline,
		Streamer: streamer,
		Sessions: sessions,
		Lock:     lock,
		State:    state,
		Bundler:  bundler,
		Resolver: resolver,
		Upload:   uploadguard.New(cfg.UploadLimitBytes()),
		Shutdown: func() { os.Exit(0) },
	}

	if err := server.ListenAndServe(); err != nil {
		slog.Error("server exited", "error", err)
		os.Exit(1)
	}
}
