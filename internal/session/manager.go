// Package session implements the opaque 64-bit session id registry:
// worker-lease reuse and GC-grace-period deletion, kept far enough
// apart that a worker can never bind to a workspace GC just removed,
// and GC can never remove a workspace a worker just chose to reuse.
package session

import (
	"crypto/rand"
	"encoding/binary"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"sync"
	"time"
)

const (
	DefaultWorkerLease    = 20 * time.Minute
	DefaultGcGrace        = 40 * time.Minute
	DefaultSweepInterval  = 60 * time.Second
)

// Session is one registered client workspace lease.
type Session struct {
	ID       uint64
	Created  time.Time
	LastUsed time.Time
}

// Manager owns the live session registry and its GC sweep.
type Manager struct {
	mu       sync.Mutex
	sessions map[uint64]*Session

	workerLease   time.Duration
	gcGrace       time.Duration
	sweepInterval time.Duration

	workspaceRoot string

	now func() time.Time

	stopOnce sync.Once
	stopCh   chan struct{}
	doneCh   chan struct{}
}

// Config configures a Manager. GcGrace must be strictly greater than
// WorkerLease — the safety gap is what makes the worker/GC race
// impossible, so New refuses to construct a Manager that violates it.
type Config struct {
	WorkerLease   time.Duration
	GcGrace       time.Duration
	SweepInterval time.Duration
	WorkspaceRoot string
}

// New constructs a Manager. Zero-valued fields in cfg take the package
// defaults.
func New(cfg Config) (*Manager, error) {
	if cfg.WorkerLease == 0 {
		cfg.WorkerLease = DefaultWorkerLease
	}
	if cfg.GcGrace == 0 {
		cfg.GcGrace = DefaultGcGrace
	}
	if cfg.SweepInterval == 0 {
		cfg.SweepInterval = DefaultSweepInterval
	}
	if cfg.GcGrace <= cfg.WorkerLease {
		return nil, fmt.Errorf("session: GcGrace (%s) must be strictly greater than WorkerLease (%s)", cfg.GcGrace, cfg.WorkerLease)
	}

	return &Manager{
		sessions:      make(map[uint64]*Session),
		workerLease:   cfg.WorkerLease,
		gcGrace:       cfg.GcGrace,
		sweepInterval: cfg.SweepInterval,
		workspaceRoot: cfg.WorkspaceRoot,
		now:           time.Now,
		stopCh:        make(chan struct{}),
		doneCh:        make(chan struct{}),
	}, nil
}

// Generate mints a fresh id not currently present in the registry and
// registers it.
func (m *Manager) Generate() uint64 {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.generateLocked()
}

func (m *Manager) generateLocked() uint64 {
	for {
		id := randomID()
		if _, exists := m.sessions[id]; exists {
			continue
		}
		now := m.now()
		m.sessions[id] = &Session{ID: id, Created: now, LastUsed: now}
		return id
	}
}

// GetOrCreate resolves a client's session hint. If hint is nil, unknown,
// or aged past WorkerLease, a fresh id is minted and reused=false. Else
// the existing record is touched and reused=true.
func (m *Manager) GetOrCreate(hint *uint64) (id uint64, reused bool) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if hint != nil {
		if s, ok := m.sessions[*hint]; ok {
			if m.now().Sub(s.LastUsed) < m.workerLease {
				s.LastUsed = m.now()
				return s.ID, true
			}
		}
	}
	return m.generateLocked(), false
}

// Info returns the registered session for id, if any.
func (m *Manager) Info(id uint64) (Session, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	s, ok := m.sessions[id]
	if !ok {
		return Session{}, false
	}
	return *s, true
}

// Stats reports registry-wide counts for introspection endpoints.
func (m *Manager) Stats() map[string]int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return map[string]int{"active_sessions": len(m.sessions)}
}

// WorkspaceDir returns the on-disk workspace path for a session id.
func (m *Manager) WorkspaceDir(id uint64) string {
	return filepath.Join(m.workspaceRoot, fmt.Sprintf("session-%d", id))
}

// StartGC launches the background sweep goroutine. Call Stop to halt it.
func (m *Manager) StartGC() {
	go m.gcLoop()
}

// Stop halts the GC sweep goroutine and waits for it to exit.
func (m *Manager) Stop() {
	m.stopOnce.Do(func() { close(m.stopCh) })
	<-m.doneCh
}

func (m *Manager) gcLoop() {
	defer close(m.doneCh)
	ticker := time.NewTicker(m.sweepInterval)
	defer ticker.Stop()
	for {
		select {
		case <-m.stopCh:
			return
		case <-ticker.C:
			m.sweepOnce()
		}
	}
}

// sweepOnce performs one GC pass: collect-under-lock, then delete
// workspace directories outside the lock so slow filesystem I/O never
// blocks session lookups.
func (m *Manager) sweepOnce() []uint64 {
	var expired []uint64

	m.mu.Lock()
	now := m.now()
	for id, s := range m.sessions {
		if now.Sub(s.LastUsed) > m.gcGrace {
			expired = append(expired, id)
		}
	}
	for _, id := range expired {
		delete(m.sessions, id)
	}
	m.mu.Unlock()

	for _, id := range expired {
		dir := m.WorkspaceDir(id)
		if err := os.RemoveAll(dir); err != nil {
			slog.Warn("session: failed to remove workspace during GC sweep", "session_id", id, "dir", dir, "error", err)
		}
	}
	return expired
}

func randomID() uint64 {
	var buf [8]byte
	if _, err := rand.Read(buf[:]); err != nil {
		// crypto/rand failing is effectively unrecoverable for the
		// process; fall back to a time-derived id rather than panic.
		return uint64(time.Now().UnixNano())
	}
	return binary.BigEndian.Uint64(buf[:])
}
