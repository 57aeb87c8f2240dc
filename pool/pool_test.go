package pool

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/atharvakhole/modgate/breaker"
	"github.com/atharvakhole/modgate/catalog"
	"github.com/atharvakhole/modgate/gwerr"
	"github.com/atharvakhole/modgate/wire"
)

type fakeSession struct {
	connected   bool
	connectErr  error
	connectCalls int
	dispatchErr error
}

func (f *fakeSession) Connect() error {
	f.connectCalls++
	if f.connectErr != nil {
		return f.connectErr
	}
	f.connected = true
	return nil
}
func (f *fakeSession) Close() error               { f.connected = false; return nil }
func (f *fakeSession) IsConnected() bool           { return f.connected }
func (f *fakeSession) MarkDisconnected()           { f.connected = false }
func (f *fakeSession) Dispatch(op wire.Operation) (wire.Result, error) {
	if f.dispatchErr != nil {
		return wire.Result{}, f.dispatchErr
	}
	return wire.Result{Words: []uint16{1}}, nil
}

func testTunables() catalog.Tunables {
	return catalog.Tunables{
		PoolSize:            2,
		ConnectTimeout:      time.Second,
		AcquireTimeout:      100 * time.Millisecond,
		MaxConnectRetries:   0,
		MaxOperationRetries: 1,
		BreakerThreshold:    3,
		BreakerReset:        time.Minute,
		HealthCheckInterval: time.Hour,
	}
}

func TestAcquireRelease(t *testing.T) {
	tun := testTunables()
	br := breaker.New(tun.BreakerThreshold, tun.BreakerReset)
	p := newForTest(tun, br, []wire.SessionHandle{&fakeSession{}, &fakeSession{}})

	sess, err := p.Acquire(context.Background())
	if err != nil {
		t.Fatalf("Acquire: %v", err)
	}
	if !sess.IsConnected() {
		t.Error("expected session connected after Acquire")
	}
	p.Release(sess)

	if len(p.sessions) != 2 {
		t.Errorf("expected session returned to pool, len=%d", len(p.sessions))
	}
}

func TestAcquireTimesOutWhenPoolExhausted(t *testing.T) {
	tun := testTunables()
	tun.PoolSize = 1
	br := breaker.New(tun.BreakerThreshold, tun.BreakerReset)
	p := newForTest(tun, br, []wire.SessionHandle{&fakeSession{}})

	sess, err := p.Acquire(context.Background())
	if err != nil {
		t.Fatalf("Acquire: %v", err)
	}

	_, err = p.Acquire(context.Background())
	if err == nil {
		t.Fatal("expected timeout error when pool exhausted")
	}
	if gwerr.Of(err) != gwerr.Timeout {
		t.Errorf("kind = %v, want Timeout", gwerr.Of(err))
	}

	p.Release(sess)
}

func TestAcquireFailsWhenBreakerOpen(t *testing.T) {
	tun := testTunables()
	br := breaker.New(1, time.Minute)
	br.RecordFailure()

	p := newForTest(tun, br, []wire.SessionHandle{&fakeSession{}})

	_, err := p.Acquire(context.Background())
	if err == nil {
		t.Fatal("expected error when breaker open")
	}
	if gwerr.Of(err) != gwerr.Connection {
		t.Errorf("kind = %v, want Connection", gwerr.Of(err))
	}
}

func TestEnsureConnectedRetriesAndGivesUp(t *testing.T) {
	tun := testTunables()
	tun.MaxConnectRetries = 2
	br := breaker.New(5, time.Minute)

	fake := &fakeSession{connectErr: errors.New("dial refused")}
	p := newForTest(tun, br, []wire.SessionHandle{fake})

	start := time.Now()
	_, err := p.Acquire(context.Background())
	elapsed := time.Since(start)

	if err == nil {
		t.Fatal("expected connect failure")
	}
	if gwerr.Of(err) != gwerr.Connection {
		t.Errorf("kind = %v, want Connection", gwerr.Of(err))
	}
	if fake.connectCalls != 3 {
		t.Errorf("connectCalls = %d, want 3 (initial + 2 retries)", fake.connectCalls)
	}
	// backoff schedule is 2^0 + 2^1 = 3s between the three attempts.
	if elapsed < 2*time.Second {
		t.Errorf("elapsed = %s, expected backoff delay to have been applied", elapsed)
	}
	if br.FailureCount() != 1 {
		t.Errorf("expected breaker failure recorded once, got %d", br.FailureCount())
	}
}

func TestEnsureConnectedSkipsAlreadyConnected(t *testing.T) {
	tun := testTunables()
	br := breaker.New(5, time.Minute)
	fake := &fakeSession{connected: true}
	p := newForTest(tun, br, []wire.SessionHandle{fake})

	_, err := p.Acquire(context.Background())
	if err != nil {
		t.Fatalf("Acquire: %v", err)
	}
	if fake.connectCalls != 0 {
		t.Errorf("expected no Connect call for already-connected session, got %d", fake.connectCalls)
	}
}
