// Package librebuild streams progress events for a library source
// rebuild over a line-oriented `data: <payload>` wire protocol, ending
// in a fixed four-event trailer.
package librebuild

import (
	"context"
	"fmt"
	"io"
	"strings"

	"github.com/ocx/fastled-compile-svc/internal/sourceupdater"
	"github.com/ocx/fastled-compile-svc/internal/toolchain"
)

// Options configures one rebuild stream.
type Options struct {
	Build  string
	DryRun bool
}

// Streamer drives the rebuild state machine and writes each event to
// an io.Writer as it happens, so an HTTP handler can flush it to the
// client incrementally.
type Streamer struct {
	Updater sourceupdater.Updater
}

// Validate checks the preconditions that must hold before the response
// stream begins, per the library rebuild endpoint's contract: an
// unrecognized build mode, or a real (non-dry-run) rebuild with no
// shared-source mirror configured, is rejected with 400 before any
// bytes are written.
func (s *Streamer) Validate(opts Options) error {
	if _, ok := toolchain.ValidBuildMode(opts.Build); !ok {
		return fmt.Errorf("unrecognized build mode %q", opts.Build)
	}
	if !opts.DryRun && s.Updater == nil {
		return fmt.Errorf("shared-source mirror not configured")
	}
	return nil
}

// StreamRebuild runs the rebuild and writes every event, ending with
// the COMPLETE/EXIT_CODE/STATUS/HTTP_STATUS trailer, to w. It returns
// the HTTP status that should have been set on the response before the
// body started (kept for metrics/logging; the wire protocol already
// carries it as the final trailer line). Cancellation of ctx abandons
// the operation at the next yield point.
func (s *Streamer) StreamRebuild(ctx context.Context, w io.Writer, opts Options) (status int) {
	defer func() {
		if r := recover(); r != nil {
			emit(w, fmt.Sprintf("internal error: %v", r))
			status = trailer(w, false, -1)
		}
	}()

	mode, _ := toolchain.ValidBuildMode(opts.Build)
	buildModeStr := strings.ToUpper(string(mode))
	emit(w, fmt.Sprintf("Using BUILD_MODE: %s", buildModeStr))

	if ctx.Err() != nil {
		return 0
	}

	if opts.DryRun {
		emit(w, "DRY RUN MODE: Will skip actual compilation")
		emit(w, fmt.Sprintf("Would compile libfastled with BUILD_MODE=%s", buildModeStr))
		return trailer(w, true, 0)
	}

	emit(w, "Checking for source file changes...")

	result, err := s.Updater.Sync(ctx, string(mode), func(line string) {
		if ctx.Err() != nil {
			return
		}
		emit(w, line)
	})
	if ctx.Err() != nil {
		return 0
	}

	if err != nil {
		emit(w, fmt.Sprintf("Source update failed: %s", err.Error()))
		return trailer(w, false, 1)
	}

	emit(w, fmt.Sprintf("Source update completed in %.3f seconds", result.Duration.Seconds()))
	return trailer(w, true, 0)
}

func emit(w io.Writer, payload string) {
	fmt.Fprintf(w, "data: %s\n", payload)
}

// trailer writes the fixed four-event trailer and returns the HTTP
// status the caller should have used for the response.
func trailer(w io.Writer, success bool, exitCode int) int {
	emit(w, "COMPILATION_COMPLETE")
	emit(w, fmt.Sprintf("EXIT_CODE: %d", exitCode))
	status := 200
	if success {
		emit(w, "STATUS: SUCCESS")
	} else {
		emit(w, "STATUS: FAIL")
		status = 400
		if exitCode < 0 {
			status = 500
		}
	}
	emit(w, fmt.Sprintf("HTTP_STATUS: %d", status))
	return status
}
