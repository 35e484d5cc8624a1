package api

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/ocx/fastled-compile-svc/internal/apierr"
	"github.com/ocx/fastled-compile-svc/internal/compile"
	"github.com/ocx/fastled-compile-svc/internal/httpflag"
	"github.com/ocx/fastled-compile-svc/internal/librebuild"
	"github.com/ocx/fastled-compile-svc/internal/toolchain"
)

const artifactContentType = "application/zip"
const artifactFilename = "fastled_js.zip"

func (s *Server) handleHealthz(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

func (s *Server) handleSettings(w http.ResponseWriter, r *http.Request) {
	cfg := s.Config
	_, statErr := os.Stat(cfg.Paths.VolumeMappedSrc)
	volumeExists := cfg.Paths.VolumeMappedSrc != "" && statErr == nil
	writeJSON(w, http.StatusOK, map[string]any{
		"ALLOW_SHUTDOWN":            cfg.Server.AllowShutdown,
		"NO_AUTO_UPDATE":            cfg.LiveGit.NoAutoUpdate,
		"NO_SKETCH_CACHE":           cfg.Cache.Disabled,
		"LIVE_GIT_UPDATES_ENABLED":  cfg.LiveGit.Enabled,
		"LIVE_GIT_UPDATES_INTERVAL": cfg.LiveGit.IntervalSec,
		"UPLOAD_LIMIT":              cfg.UploadLimitBytes(),
		"VOLUME_MAPPED_SRC":         cfg.Paths.VolumeMappedSrc,
		"VOLUME_MAPPED_SRC_EXISTS":  volumeExists,
		"ONLY_QUICK_BUILDS":         cfg.Build.OnlyQuickBuilds,
	})
}

func (s *Server) handleInfo(w http.ResponseWriter, r *http.Request) {
	var exampleNames []string
	if s.Bundler != nil {
		if names, err := s.Bundler.List(); err == nil {
			exampleNames = names
		}
	}

	builds := []string{"quick"}
	if !s.Config.Build.OnlyQuickBuilds {
		builds = append(builds, "release", "debug")
	}

	snap := s.State.Snapshot()
	writeJSON(w, http.StatusOK, map[string]any{
		"examples":          exampleNames,
		"compile_count":     snap.Attempted,
		"compile_failures":  snap.Failed,
		"compile_successes": snap.Succeeded,
		"uptime":            formatUptime(snap.Uptime),
		"build_timestamp":   s.Config.Build.BuildTimestamp,
		"fastled_version":   s.Config.Build.FastLEDVersion,
		"available_builds":  builds,
	})
}

func formatUptime(d time.Duration) string {
	total := int64(d.Seconds())
	hours := total / 3600
	minutes := (total % 3600) / 60
	seconds := total % 60
	return fmt.Sprintf("%02d:%02d:%02d", hours, minutes, seconds)
}

func (s *Server) handleInUse(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]bool{"in_use": s.Lock.IsHeld()})
}

func (s *Server) handleProjectInitGet(w http.ResponseWriter, r *http.Request) {
	s.bundleExample(w, "")
}

func (s *Server) handleProjectInitPost(w http.ResponseWriter, r *http.Request) {
	var body struct {
		Name string `json:"name"`
	}
	if r.Body != nil {
		_ = json.NewDecoder(r.Body).Decode(&body)
	}
	if name := r.URL.Query().Get("name"); name != "" {
		body.Name = name
	}
	s.bundleExample(w, body.Name)
}

func (s *Server) bundleExample(w http.ResponseWriter, name string) {
	if s.Bundler == nil {
		apierr.WriteJSON(w, apierr.Internal("example bundler not configured"))
		return
	}
	tmp, err := os.CreateTemp("", "example-*.zip")
	if err != nil {
		apierr.WriteJSON(w, apierr.InternalWrap("create temp file", err))
		return
	}
	tmpPath := tmp.Name()
	tmp.Close()
	defer os.Remove(tmpPath)

	if err := s.Bundler.Bundle(name, tmpPath); err != nil {
		status := http.StatusNotFound
		if isInvalidExampleName(err) {
			status = http.StatusBadRequest
		}
		apierr.WriteRaw(w, status, err.Error())
		return
	}
	serveFile(w, tmpPath, artifactContentType, "example.zip")
}

func isInvalidExampleName(err error) bool {
	return err != nil && strings.Contains(err.Error(), "invalid example name")
}

func (s *Server) handleDwarfSource(w http.ResponseWriter, r *http.Request) {
	var body struct {
		Path string `json:"path"`
	}
	if err := json.NewDecoder(r.Body).Decode(&body); err != nil || body.Path == "" {
		apierr.WriteJSON(w, apierr.Input("missing required field: path"))
		return
	}
	if s.Resolver == nil {
		apierr.WriteJSON(w, apierr.NotFound("dwarf source resolver not configured"))
		return
	}
	path, err := s.Resolver.Resolve(body.Path)
	if err != nil {
		apierr.WriteJSON(w, apierr.NotFound(err.Error()))
		return
	}
	http.ServeFile(w, r, path)
}

func (s *Server) handleCompileWasm(w http.ResponseWriter, r *http.Request) {
	if s.Upload != nil {
		if err := s.Upload.Check(r.ContentLength); err != nil {
			apierr.WriteJSON(w, apierr.Resource(err.Error()))
			return
		}
	}

	opts := compile.Options{
		Build:                 r.Header.Get("build"),
		Profile:               httpflag.Bool(r, "profile", "", false),
		Strict:                httpflag.Bool(r, "strict", "", false),
		Native:                httpflag.Bool(r, "native", "NATIVE", s.Config.Build.Native),
		NoManagedBuildSystem:  httpflag.Bool(r, "no_platformio", "NO_PLATFORMIO", s.Config.Build.NoPlatformio),
		AllowLibraryRecompile: httpflag.Bool(r, "allow_libcompile", "", false),
		UseCache:              !s.Config.Cache.Disabled,
	}
	if v := r.Header.Get("session_id"); v != "" {
		if id, err := strconv.ParseUint(v, 10, 64); err == nil {
			opts.SessionHint = &id
		}
	}

	artifact, err := s.Pipeline.Compile(r.Context(), r.Body, opts)
	if err != nil {
		var buildErr *compile.BuildFailedError
		if errors.As(err, &buildErr) {
			apierr.WriteRaw(w, http.StatusBadRequest, buildErr.Log)
			return
		}
		apierr.WriteJSON(w, err)
		return
	}
	defer artifact.Cleanup()

	w.Header().Set("X-Session-Id", strconv.FormatUint(artifact.SessionID, 10))
	w.Header().Set("X-Session-Info", artifact.SessionInfo)
	serveFile(w, artifact.Path, artifactContentType, artifactFilename)
}

func (s *Server) handleCompileLibfastled(w http.ResponseWriter, r *http.Request) {
	opts := librebuild.Options{
		Build:  r.Header.Get("build"),
		DryRun: httpflag.Bool(r, "dry_run", "", false),
	}
	if opts.Build == "" {
		opts.Build = string(toolchain.BuildQuick)
	}

	if err := s.Streamer.Validate(opts); err != nil {
		apierr.WriteJSON(w, apierr.Input(err.Error()))
		return
	}

	w.Header().Set("Content-Type", "text/event-stream")
	w.WriteHeader(http.StatusOK)
	flusher, _ := w.(http.Flusher)
	s.Streamer.StreamRebuild(r.Context(), flushWriter{w, flusher}, opts)
}

type flushWriter struct {
	w       http.ResponseWriter
	flusher http.Flusher
}

func (f flushWriter) Write(p []byte) (int, error) {
	n, err := f.w.Write(p)
	if f.flusher != nil {
		f.flusher.Flush()
	}
	return n, err
}

func (s *Server) handleShutdown(w http.ResponseWriter, r *http.Request) {
	if !s.Config.Server.AllowShutdown {
		apierr.WriteJSON(w, apierr.Forbidden("shutdown disabled"))
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
	if flusher, ok := w.(http.Flusher); ok {
		flusher.Flush()
	}
	if s.Shutdown != nil {
		go s.Shutdown()
	}
}

func writeJSON(w http.ResponseWriter, status int, body any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(body)
}

func serveFile(w http.ResponseWriter, path, contentType, filename string) {
	f, err := os.Open(path)
	if err != nil {
		apierr.WriteJSON(w, apierr.InternalWrap("open artifact", err))
		return
	}
	defer f.Close()
	info, err := f.Stat()
	if err == nil {
		w.Header().Set("Content-Length", strconv.FormatInt(info.Size(), 10))
	}
	w.Header().Set("Content-Type", contentType)
	w.Header().Set("Content-Disposition", fmt.Sprintf(`attachment; filename="%s"`, filename))
	w.WriteHeader(http.StatusOK)
	_, _ = io.Copy(w, f)
}
