// Package pool implements the per-PLC connection pool: a fixed
// number of lazily-connected Modbus sessions, leased to callers with
// a bounded acquisition wait and returned when the caller is done.
// Reconnection uses an exponential backoff schedule; a background
// probe periodically exercises an idle session to catch a dropped
// peer before the next real operation does.
package pool

import (
	"context"
	"fmt"
	"sync"
	"time"

	"golang.org/x/sync/semaphore"

	"github.com/atharvakhole/modgate/breaker"
	"github.com/atharvakhole/modgate/catalog"
	"github.com/atharvakhole/modgate/gwerr"
	"github.com/atharvakhole/modgate/logging"
	"github.com/atharvakhole/modgate/wire"
)

// healthCheckAddress and healthCheckCount name the register read
// used by the background liveness probe: one holding register at
// address zero, matching the original implementation's minimal
// health-check read.
const (
	healthCheckAddress = 0
	healthCheckCount   = 1
)

// Pool owns every Modbus session opened for one PLC.
type Pool struct {
	plcID    string
	address  string
	unitID   byte
	tunables catalog.Tunables
	breaker  *breaker.Breaker
	dbg      *logging.DebugLogger

	sem *semaphore.Weighted

	mu       sync.Mutex
	sessions []wire.SessionHandle

	stop   chan struct{}
	stopWG sync.WaitGroup
}

// New builds a pool for plc, sized to its configured pool size. No
// network connections are opened until the first Acquire.
func New(plc *catalog.PLCDescriptor, br *breaker.Breaker, dbg *logging.DebugLogger) *Pool {
	tun := plc.Effective()
	address := fmt.Sprintf("%s:%d", plc.Host, plc.Port)

	p := &Pool{
		plcID:    plc.ID,
		address:  address,
		unitID:   plc.UnitID,
		tunables: tun,
		breaker:  br,
		dbg:      dbg,
		sem:      semaphore.NewWeighted(int64(tun.PoolSize)),
		stop:     make(chan struct{}),
	}

	p.sessions = make([]wire.SessionHandle, tun.PoolSize)
	for i := range p.sessions {
		p.sessions[i] = wire.NewSession(address, tun.ConnectTimeout)
	}

	return p
}

// newForTest builds a pool around caller-supplied sessions, bypassing
// real TCP dialing.
func newForTest(tun catalog.Tunables, br *breaker.Breaker, sessions []wire.SessionHandle) *Pool {
	return &Pool{
		plcID:    "test",
		tunables: tun,
		breaker:  br,
		dbg:      nil,
		sem:      semaphore.NewWeighted(int64(len(sessions))),
		sessions: sessions,
		stop:     make(chan struct{}),
	}
}

// StartHealthCheck launches the background liveness probe. Errors
// from the probe are swallowed — they only feed the circuit breaker,
// never propagate to a caller, matching spec's health-check contract.
func (p *Pool) StartHealthCheck() {
	p.stopWG.Add(1)
	go func() {
		defer p.stopWG.Done()
		ticker := time.NewTicker(p.tunables.HealthCheckInterval)
		defer ticker.Stop()
		for {
			select {
			case <-p.stop:
				return
			case <-ticker.C:
				p.probeOnce()
			}
		}
	}()
}

func (p *Pool) probeOnce() {
	ctx, cancel := context.WithTimeout(context.Background(), p.tunables.AcquireTimeout)
	defer cancel()

	session, err := p.Acquire(ctx)
	if err != nil {
		p.dbg.Log("pool", "%s health check could not acquire session: %v", p.plcID, err)
		return
	}
	defer p.Release(session)

	start := time.Now()
	_, err = session.Dispatch(wire.Operation{
		Kind:    wire.ReadHolding,
		Address: healthCheckAddress,
		Count:   healthCheckCount,
		UnitID:  p.unitID,
	})
	if err != nil {
		session.MarkDisconnected()
		p.breaker.RecordFailure()
		p.dbg.Log("pool", "%s health check failed: %v", p.plcID, err)
		return
	}
	p.breaker.RecordSuccess()
	p.dbg.Log("pool", "%s health check ok in %s", p.plcID, time.Since(start))
}

// Stop ends the health-check loop and closes every session.
func (p *Pool) Stop() {
	close(p.stop)
	p.stopWG.Wait()

	p.mu.Lock()
	defer p.mu.Unlock()
	for _, s := range p.sessions {
		if s.IsConnected() {
			_ = s.Close()
		}
	}
}

// Acquire waits for a free session, connecting it if necessary, and
// returns it for exclusive use by the caller until Release. It
// returns a Connection-kind error if the circuit breaker is open or
// every connect retry is exhausted, a Timeout-kind error if the
// acquire timeout elapses, and a Cancelled-kind error if ctx ends
// while connecting.
func (p *Pool) Acquire(ctx context.Context) (wire.SessionHandle, error) {
	if !p.breaker.CanAttempt() {
		return nil, gwerr.New(gwerr.Connection, fmt.Sprintf("circuit breaker open for %s", p.plcID)).WithPLC(p.plcID)
	}

	acquireCtx, cancel := context.WithTimeout(ctx, p.tunables.AcquireTimeout)
	defer cancel()

	if err := p.sem.Acquire(acquireCtx, 1); err != nil {
		return nil, gwerr.Wrap(gwerr.Timeout, err, fmt.Sprintf("no available connections for %s", p.plcID)).WithPLC(p.plcID)
	}

	sess := p.pop()

	if err := p.ensureConnected(ctx, sess); err != nil {
		p.push(sess)
		p.sem.Release(1)
		return nil, err
	}

	return sess, nil
}

// Release returns a session leased by Acquire back to the pool.
func (p *Pool) Release(sess wire.SessionHandle) {
	p.push(sess)
	p.sem.Release(1)
}

func (p *Pool) pop() wire.SessionHandle {
	p.mu.Lock()
	defer p.mu.Unlock()
	s := p.sessions[len(p.sessions)-1]
	p.sessions = p.sessions[:len(p.sessions)-1]
	return s
}

func (p *Pool) push(s wire.SessionHandle) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.sessions = append(p.sessions, s)
}

// ensureConnected connects sess if needed, retrying with 2^attempt
// second backoff between attempts up to the PLC's configured
// connect-retry budget.
func (p *Pool) ensureConnected(ctx context.Context, sess wire.SessionHandle) error {
	if sess.IsConnected() {
		return nil
	}

	var lastErr error
	for attempt := 0; attempt <= p.tunables.MaxConnectRetries; attempt++ {
		if err := ctx.Err(); err != nil {
			return gwerr.Wrap(gwerr.Cancelled, err, fmt.Sprintf("connect to %s cancelled", p.plcID)).WithPLC(p.plcID)
		}

		if err := sess.Connect(); err != nil {
			lastErr = err
			p.dbg.Log("pool", "%s connect attempt %d failed: %v", p.plcID, attempt, err)
			if attempt == p.tunables.MaxConnectRetries {
				break
			}
			delay := time.Duration(1<<uint(attempt)) * time.Second
			select {
			case <-time.After(delay):
			case <-ctx.Done():
				return gwerr.Wrap(gwerr.Cancelled, ctx.Err(), fmt.Sprintf("connect to %s cancelled", p.plcID)).WithPLC(p.plcID)
			}
			continue
		}
		return nil
	}

	p.breaker.RecordFailure()
	return gwerr.Wrap(gwerr.Connection, lastErr, fmt.Sprintf("failed to connect to %s after %d attempts", p.plcID, p.tunables.MaxConnectRetries+1)).WithPLC(p.plcID)
}
