// Package connmgr implements the per-PLC Operation Executor and the
// Connection Manager that owns one of them per configured PLC. A
// Manager value is constructed, Initialized once, and then passed by
// reference to callers (the Tag Service, the Procedure Executor) —
// there is deliberately no package-level singleton here, unlike the
// original Python's module-global connection_manager, per this
// gateway's translation of that global into an owned lifecycle
// object.
package connmgr

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus"

	"github.com/atharvakhole/modgate/breaker"
	"github.com/atharvakhole/modgate/catalog"
	"github.com/atharvakhole/modgate/gwerr"
	"github.com/atharvakhole/modgate/logging"
	"github.com/atharvakhole/modgate/pool"
	"github.com/atharvakhole/modgate/wire"
)

// plcEntry bundles one PLC's pool, breaker and executor.
type plcEntry struct {
	host     string
	port     int
	pool     *pool.Pool
	breaker  *breaker.Breaker
	executor *Executor
}

// State is the coarse connectivity state reported alongside the
// breaker state in Status, grounded on the donor's
// `plcman.ConnectionStatus` enum (Disconnected/Connecting/Connected/
// Error) — this gateway collapses it to the three states an
// Executor can actually distinguish without a dedicated liveness
// probe of its own (that probe lives in the pool's health check).
type State string

const (
	StateDisconnected State = "disconnected"
	StateConnected    State = "connected"
	StateError        State = "error"
)

// Status reports one PLC's current connection health: its breaker
// state, host/port, running counters, computed success rate and
// uptime, and its last error, per spec.md §4.5's connection_status
// contract.
type Status struct {
	PLCID        string
	Host         string
	Port         int
	State        State
	BreakerOpen  bool
	FailureCount int

	TotalRequests      uint64
	SuccessfulRequests uint64
	FailedRequests     uint64
	SuccessRate        float64
	AverageResponse    time.Duration

	LastError     string
	LastErrorAt   time.Time
	LastSuccessAt time.Time
	Uptime        time.Duration
}

// Manager owns every PLC's connection pool and operation executor.
type Manager struct {
	dbg *logging.DebugLogger
	reg prometheus.Registerer

	mu      sync.RWMutex
	entries map[string]*plcEntry

	initErrors map[string]error
}

// New constructs an uninitialized Manager. dbg and reg may be nil.
func New(dbg *logging.DebugLogger, reg prometheus.Registerer) *Manager {
	return &Manager{
		dbg:     dbg,
		reg:     reg,
		entries: make(map[string]*plcEntry),
	}
}

// Initialize builds a pool, breaker, executor and health-check loop
// for every PLC in cat. One PLC's failure to start never aborts the
// others — failures are collected and returned via InitErrors, and
// Initialize itself only returns an error if the catalog is empty.
func (m *Manager) Initialize(cat *catalog.Catalog) error {
	ids := cat.PLCIDs()
	if len(ids) == 0 {
		return gwerr.New(gwerr.Configuration, "catalog has no PLCs")
	}

	m.mu.Lock()
	defer m.mu.Unlock()

	m.initErrors = make(map[string]error)

	var wg sync.WaitGroup
	var errMu sync.Mutex

	for _, id := range ids {
		plc, _ := cat.PLC(id)
		wg.Add(1)
		go func(plc *catalog.PLCDescriptor) {
			defer wg.Done()
			entry, err := m.buildEntry(plc)
			if err != nil {
				errMu.Lock()
				m.initErrors[plc.ID] = err
				errMu.Unlock()
				m.dbg.Log("connmgr", "init failed for %s: %v", plc.ID, err)
				return
			}
			errMu.Lock()
			m.entries[plc.ID] = entry
			errMu.Unlock()
		}(plc)
	}
	wg.Wait()

	m.dbg.Log("connmgr", "initialized %d/%d PLCs", len(m.entries), len(ids))
	return nil
}

func (m *Manager) buildEntry(plc *catalog.PLCDescriptor) (*plcEntry, error) {
	tun := plc.Effective()
	br := breaker.New(tun.BreakerThreshold, tun.BreakerReset)
	p := pool.New(plc, br, m.dbg)
	p.StartHealthCheck()

	var metrics *plcMetrics
	if m.reg != nil {
		metrics = newPLCMetrics(m.reg, plc.ID)
	}

	return &plcEntry{
		host:     plc.Host,
		port:     plc.Port,
		pool:     p,
		breaker:  br,
		executor: NewExecutor(plc, p, br, m.dbg, metrics),
	}, nil
}

// statusFor builds a Status snapshot for one PLC entry, merging its
// breaker state with its executor's running counters.
func statusFor(plcID string, entry *plcEntry) Status {
	breakerOpen := entry.breaker.CurrentState() == breaker.Open
	snap := entry.executor.Stats()

	state := StateDisconnected
	switch {
	case breakerOpen:
		state = StateError
	case snap.TotalRequests > 0:
		state = StateConnected
	}

	return Status{
		PLCID:        plcID,
		Host:         entry.host,
		Port:         entry.port,
		State:        state,
		BreakerOpen:  breakerOpen,
		FailureCount: entry.breaker.FailureCount(),

		TotalRequests:      snap.TotalRequests,
		SuccessfulRequests: snap.SuccessfulRequests,
		FailedRequests:     snap.FailedRequests,
		SuccessRate:        snap.SuccessRate,
		AverageResponse:    snap.AverageResponse,

		LastError:     snap.LastError,
		LastErrorAt:   snap.LastErrorAt,
		LastSuccessAt: snap.LastSuccessAt,
		Uptime:        snap.Uptime,
	}
}

// InitErrors returns the per-PLC errors collected during Initialize,
// keyed by PLC id.
func (m *Manager) InitErrors() map[string]error {
	m.mu.RLock()
	defer m.mu.RUnlock()
	out := make(map[string]error, len(m.initErrors))
	for k, v := range m.initErrors {
		out[k] = v
	}
	return out
}

// ExecuteOperation runs op against plcID's executor.
func (m *Manager) ExecuteOperation(ctx context.Context, plcID string, op wire.Operation) (wire.Result, error) {
	m.mu.RLock()
	entry, ok := m.entries[plcID]
	ids := m.idsLocked()
	m.mu.RUnlock()

	if !ok {
		return wire.Result{}, gwerr.New(gwerr.Configuration,
			fmt.Sprintf("PLC %q not found, available PLCs: %v", plcID, ids)).WithPLC(plcID)
	}

	result, err := entry.executor.Execute(ctx, op)
	if err != nil {
		return wire.Result{}, gwerr.Wrap(gwerr.Of(err), err,
			fmt.Sprintf("failed to execute %s on PLC %s", op.Kind, plcID)).WithPLC(plcID)
	}
	return result, nil
}

func (m *Manager) idsLocked() []string {
	ids := make([]string, 0, len(m.entries))
	for id := range m.entries {
		ids = append(ids, id)
	}
	return ids
}

// ConnectionStatus reports plcID's current connection health: breaker
// state, host/port, running counters, success rate, uptime and last
// error.
func (m *Manager) ConnectionStatus(plcID string) (Status, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	entry, ok := m.entries[plcID]
	if !ok {
		return Status{}, gwerr.New(gwerr.Configuration, fmt.Sprintf("PLC %q not found", plcID)).WithPLC(plcID)
	}
	return statusFor(plcID, entry), nil
}

// AllStatuses reports every configured PLC's connection status.
func (m *Manager) AllStatuses() map[string]Status {
	m.mu.RLock()
	defer m.mu.RUnlock()
	out := make(map[string]Status, len(m.entries))
	for id, entry := range m.entries {
		out[id] = statusFor(id, entry)
	}
	return out
}

// HealthStatus rolls every PLC's connectivity up into a single
// gateway-wide verdict: "healthy" when every configured PLC's breaker
// is closed, "unhealthy" when none are, "degraded" otherwise.
func (m *Manager) HealthStatus() string {
	statuses := m.AllStatuses()
	if len(statuses) == 0 {
		return "unhealthy"
	}

	connected := 0
	for _, s := range statuses {
		if !s.BreakerOpen {
			connected++
		}
	}

	switch {
	case connected == len(statuses):
		return "healthy"
	case connected == 0:
		return "unhealthy"
	default:
		return "degraded"
	}
}

// Shutdown stops every PLC's health-check loop and closes its
// sessions. Individual pool shutdown errors are logged, never
// returned, so one stuck PLC cannot block the others from shutting
// down cleanly.
func (m *Manager) Shutdown() {
	m.mu.Lock()
	defer m.mu.Unlock()

	var wg sync.WaitGroup
	for id, entry := range m.entries {
		wg.Add(1)
		go func(id string, entry *plcEntry) {
			defer wg.Done()
			entry.pool.Stop()
			m.dbg.Log("connmgr", "%s shut down", id)
		}(id, entry)
	}
	wg.Wait()
}
