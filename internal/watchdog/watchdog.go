// Package watchdog is a last-resort guard that kills the process if
// its resident set grows past a configured limit, protecting against
// pathological toolchain memory behavior.
package watchdog

import (
	"bufio"
	"context"
	"log/slog"
	"os"
	"strconv"
	"strings"
	"time"
)

// SampleInterval is how often RSS is sampled.
const SampleInterval = 100 * time.Millisecond

// OOMExitCode is the conventional out-of-memory exit status.
const OOMExitCode = 137

// exitFunc and readRSS are swapped out in tests so the watchdog's
// termination path can be exercised without actually killing the test
// binary.
var (
	exitFunc = os.Exit
	readRSS  = readRSSFromStatus
)

// Watchdog samples process RSS on an interval and terminates the
// process if it exceeds LimitBytes.
type Watchdog struct {
	LimitBytes int64
}

// New returns a Watchdog. A zero or negative LimitBytes disables it;
// Start becomes a no-op in that case.
func New(limitBytes int64) *Watchdog {
	return &Watchdog{LimitBytes: limitBytes}
}

// Start spawns the background sampling loop. It returns immediately;
// the loop runs until ctx is cancelled or the process is terminated.
func (w *Watchdog) Start(ctx context.Context) {
	if w.LimitBytes <= 0 {
		return
	}
	go w.run(ctx)
}

func (w *Watchdog) run(ctx context.Context) {
	ticker := time.NewTicker(SampleInterval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			rss, err := readRSS()
			if err != nil {
				slog.Warn("watchdog: failed to sample RSS", "error", err)
				continue
			}
			if rss > w.LimitBytes {
				slog.Error("watchdog: memory limit exceeded, terminating",
					"rss_bytes", rss, "limit_bytes", w.LimitBytes)
				exitFunc(OOMExitCode)
				return
			}
		}
	}
}

// readRSSFromStatus reads VmRSS out of /proc/self/status, the
// conventional Linux source for a process's own resident set size.
func readRSSFromStatus() (int64, error) {
	f, err := os.Open("/proc/self/status")
	if err != nil {
		return 0, err
	}
	defer f.Close()

	scanner := bufio.NewScanner(f)
	for scanner.Scan() {
		line := scanner.Text()
		if !strings.HasPrefix(line, "VmRSS:") {
			continue
		}
		fields := strings.Fields(line)
		if len(fields) < 2 {
			continue
		}
		kb, err := strconv.ParseInt(fields[1], 10, 64)
		if err != nil {
			return 0, err
		}
		return kb * 1024, nil
	}
	return 0, scanner.Err()
}
