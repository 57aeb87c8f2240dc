package connmgr

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/atharvakhole/modgate/breaker"
	"github.com/atharvakhole/modgate/catalog"
	"github.com/atharvakhole/modgate/gwerr"
	"github.com/atharvakhole/modgate/wire"
)

type fakeSession struct {
	dispatchErr error
	result      wire.Result
}

func (f *fakeSession) Connect() error     { return nil }
func (f *fakeSession) Close() error       { return nil }
func (f *fakeSession) IsConnected() bool  { return true }
func (f *fakeSession) MarkDisconnected()  {}
func (f *fakeSession) Dispatch(op wire.Operation) (wire.Result, error) {
	if f.dispatchErr != nil {
		return wire.Result{}, f.dispatchErr
	}
	return f.result, nil
}

// fakePool hands out a fixed sequence of sessions/errors, one per
// Acquire call, so retry behavior can be driven deterministically.
type fakePool struct {
	mu    sync.Mutex
	plan  []planStep
	calls int
}

type planStep struct {
	sess wire.SessionHandle
	err  error
}

func (p *fakePool) Acquire(ctx context.Context) (wire.SessionHandle, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	step := p.plan[p.calls]
	p.calls++
	return step.sess, step.err
}

func (p *fakePool) Release(sess wire.SessionHandle) {}

func testPLC() *catalog.PLCDescriptor {
	return &catalog.PLCDescriptor{
		ID:                  "line1",
		Host:                "10.0.0.1",
		Port:                502,
		UnitID:              1,
		AddressingScheme:    catalog.Absolute,
		MaxOperationRetries: 2,
	}
}

func TestExecutor_SucceedsFirstTry(t *testing.T) {
	plc := testPLC()
	br := breaker.New(5, time.Minute)
	fp := &fakePool{plan: []planStep{
		{sess: &fakeSession{result: wire.Result{Words: []uint16{7}}}},
	}}
	e := NewExecutor(plc, fp, br, nil, nil)

	res, err := e.Execute(context.Background(), wire.Operation{Kind: wire.ReadHolding, Count: 1})
	if err != nil {
		t.Fatalf("Execute: %v", err)
	}
	if len(res.Words) != 1 || res.Words[0] != 7 {
		t.Errorf("Words = %v", res.Words)
	}
	if br.FailureCount() != 0 {
		t.Errorf("expected no failures recorded")
	}
}

func TestExecutor_RetriesThenSucceeds(t *testing.T) {
	plc := testPLC()
	br := breaker.New(5, time.Minute)
	fp := &fakePool{plan: []planStep{
		{sess: &fakeSession{dispatchErr: gwerr.New(gwerr.Connection, "dropped")}},
		{sess: &fakeSession{result: wire.Result{Ack: true}}},
	}}
	e := NewExecutor(plc, fp, br, nil, nil)

	res, err := e.Execute(context.Background(), wire.Operation{Kind: wire.WriteRegisters})
	if err != nil {
		t.Fatalf("Execute: %v", err)
	}
	if !res.Ack {
		t.Error("expected ack true after retry")
	}
	if fp.calls != 2 {
		t.Errorf("calls = %d, want 2", fp.calls)
	}
}

func TestExecutor_ExhaustsRetriesAndReturnsLastError(t *testing.T) {
	plc := testPLC()
	plc.MaxOperationRetries = 1
	br := breaker.New(5, time.Minute)
	fp := &fakePool{plan: []planStep{
		{sess: &fakeSession{dispatchErr: errors.New("boom 1")}},
		{sess: &fakeSession{dispatchErr: errors.New("boom 2")}},
	}}
	e := NewExecutor(plc, fp, br, nil, nil)

	_, err := e.Execute(context.Background(), wire.Operation{Kind: wire.ReadHolding})
	if err == nil {
		t.Fatal("expected error after exhausting retries")
	}
	if fp.calls != 2 {
		t.Errorf("calls = %d, want 2 (initial + 1 retry)", fp.calls)
	}
	if br.FailureCount() != 2 {
		t.Errorf("failure count = %d, want 2", br.FailureCount())
	}
}

func TestExecutor_SerializesConcurrentCalls(t *testing.T) {
	plc := testPLC()
	br := breaker.New(5, time.Minute)
	fp := &fakePool{plan: make([]planStep, 10)}
	for i := range fp.plan {
		fp.plan[i] = planStep{sess: &fakeSession{result: wire.Result{Ack: true}}}
	}
	e := NewExecutor(plc, fp, br, nil, nil)

	var wg sync.WaitGroup
	for i := 0; i < 10; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, err := e.Execute(context.Background(), wire.Operation{Kind: wire.WriteSingleCoil})
			if err != nil {
				t.Errorf("Execute: %v", err)
			}
		}()
	}
	wg.Wait()

	if fp.calls != 10 {
		t.Errorf("calls = %d, want 10", fp.calls)
	}
}

func TestExecutor_StatsTrackCountersAndLastError(t *testing.T) {
	plc := testPLC()
	plc.MaxOperationRetries = 1
	br := breaker.New(5, time.Minute)
	fp := &fakePool{plan: []planStep{
		{sess: &fakeSession{result: wire.Result{Ack: true}}},
		{sess: &fakeSession{dispatchErr: errors.New("timeout talking to plc")}},
		{sess: &fakeSession{dispatchErr: errors.New("timeout talking to plc")}},
	}}
	e := NewExecutor(plc, fp, br, nil, nil)

	if _, err := e.Execute(context.Background(), wire.Operation{Kind: wire.WriteSingleCoil}); err != nil {
		t.Fatalf("first Execute: %v", err)
	}
	if _, err := e.Execute(context.Background(), wire.Operation{Kind: wire.ReadHolding}); err == nil {
		t.Fatal("expected second Execute to fail")
	}

	snap := e.Stats()
	if snap.TotalRequests != 2 {
		t.Errorf("TotalRequests = %d, want 2", snap.TotalRequests)
	}
	if snap.SuccessfulRequests != 1 {
		t.Errorf("SuccessfulRequests = %d, want 1", snap.SuccessfulRequests)
	}
	if snap.FailedRequests != 1 {
		t.Errorf("FailedRequests = %d, want 1", snap.FailedRequests)
	}
	if snap.SuccessRate != 0.5 {
		t.Errorf("SuccessRate = %v, want 0.5", snap.SuccessRate)
	}
	if snap.LastError == "" {
		t.Error("expected LastError to be recorded")
	}
	if snap.LastSuccessAt.IsZero() {
		t.Error("expected LastSuccessAt to be set")
	}
}

func TestExecutor_CancelledContextWhileWaitingForLock(t *testing.T) {
	plc := testPLC()
	br := breaker.New(5, time.Minute)
	fp := &fakePool{plan: []planStep{{sess: &fakeSession{}}, {sess: &fakeSession{}}}}
	e := NewExecutor(plc, fp, br, nil, nil)

	<-e.mu // hold the lock to force the next Execute to wait

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	_, err := e.Execute(ctx, wire.Operation{Kind: wire.ReadHolding})
	if err == nil {
		t.Fatal("expected cancellation error")
	}
	if gwerr.Of(err) != gwerr.Cancelled {
		t.Errorf("kind = %v, want Cancelled", gwerr.Of(err))
	}
}
