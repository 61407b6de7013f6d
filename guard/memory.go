package guard

import (
	"context"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/warp/reconciliation-engine/generic"
	"go.uber.org/zap"
)

// =============================================================================
// IN-MEMORY GUARD
// =============================================================================

type inFlight struct {
	token      string
	acquiredAt time.Time
}

// Memory is a process-local guard. Check-and-set happens under one mutex, so
// two callers can never both observe a key as free.
//
// Entries older than TTL are stale: a crashed or hung holder cannot wedge a
// key forever. Acquire takes a stale entry over and the janitor sweeps the
// rest. Release only removes the caller's own token, so a holder whose entry
// was taken over cannot clear the new holder's marker.
type Memory struct {
	TTL           time.Duration
	SweepInterval time.Duration
	Now           func() time.Time

	logger   *zap.Logger
	inFlight map[string]inFlight
	mu       sync.Mutex

	ticker  *time.Ticker
	stop    chan struct{}
	wg      sync.WaitGroup
	lifeMu  sync.Mutex
	started bool
}

// NewMemory creates a guard with the given TTL. A nil logger logs nothing.
func NewMemory(ttl time.Duration, logger *zap.Logger) *Memory {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Memory{
		TTL:           ttl,
		SweepInterval: time.Minute,
		Now:           time.Now,
		logger:        logger,
		inFlight:      make(map[string]inFlight),
	}
}

func (m *Memory) Acquire(_ context.Context, key string) (Lease, error) {
	now := m.Now()

	m.mu.Lock()
	defer m.mu.Unlock()

	if held, ok := m.inFlight[key]; ok {
		if !m.stale(held, now) {
			return nil, &generic.DuplicateInFlightError{Key: key}
		}
		m.logger.Warn("taking over stale submission marker",
			zap.String("fingerprint", key),
			zap.Time("acquired_at", held.acquiredAt))
	}

	token := uuid.NewString()
	m.inFlight[key] = inFlight{token: token, acquiredAt: now}
	return &memoryLease{guard: m, key: key, token: token}, nil
}

// InFlight reports whether key is held by a non-stale lease.
func (m *Memory) InFlight(key string) bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	held, ok := m.inFlight[key]
	return ok && !m.stale(held, m.Now())
}

// Len returns the number of markers, stale ones included.
func (m *Memory) Len() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.inFlight)
}

// Sweep removes stale markers and returns how many it removed.
func (m *Memory) Sweep() int {
	now := m.Now()

	m.mu.Lock()
	defer m.mu.Unlock()

	removed := 0
	for key, held := range m.inFlight {
		if m.stale(held, now) {
			delete(m.inFlight, key)
			removed++
		}
	}
	return removed
}

func (m *Memory) stale(held inFlight, now time.Time) bool {
	return m.TTL > 0 && now.Sub(held.acquiredAt) >= m.TTL
}

func (m *Memory) release(key, token string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if held, ok := m.inFlight[key]; ok && held.token == token {
		delete(m.inFlight, key)
	}
}

type memoryLease struct {
	guard *Memory
	key   string
	token string
	once  sync.Once
}

func (l *memoryLease) Release(context.Context) error {
	l.once.Do(func() { l.guard.release(l.key, l.token) })
	return nil
}

// =============================================================================
// JANITOR
// =============================================================================

// Start runs the janitor every SweepInterval until Stop.
func (m *Memory) Start() {
	m.lifeMu.Lock()
	defer m.lifeMu.Unlock()

	if m.started || m.SweepInterval <= 0 {
		return
	}
	m.started = true
	m.stop = make(chan struct{})
	m.ticker = time.NewTicker(m.SweepInterval)
	m.wg.Add(1)
	go m.run()

	m.logger.Info("guard janitor started", zap.Duration("interval", m.SweepInterval))
}

// Stop halts the janitor and waits for it to exit.
func (m *Memory) Stop() {
	m.lifeMu.Lock()
	defer m.lifeMu.Unlock()

	if !m.started {
		return
	}
	m.ticker.Stop()
	close(m.stop)
	m.wg.Wait()
	m.started = false

	m.logger.Info("guard janitor stopped")
}

func (m *Memory) run() {
	defer m.wg.Done()

	for {
		select {
		case <-m.ticker.C:
			if n := m.Sweep(); n > 0 {
				m.logger.Debug("swept stale submission markers", zap.Int("removed", n))
			}
		case <-m.stop:
			return
		}
	}
}
