// Package tagsvc implements the Tag Service: logical-name resolution,
// address translation, register-count derivation, encode/decode of
// multi-register numeric types, per-write validation and concurrent
// bulk fan-out, all sitting on top of a Connection Manager.
package tagsvc

import (
	"context"
	"fmt"
	"time"

	"github.com/sourcegraph/conc/pool"

	"github.com/atharvakhole/modgate/catalog"
	"github.com/atharvakhole/modgate/gwerr"
	"github.com/atharvakhole/modgate/logging"
	"github.com/atharvakhole/modgate/wire"
)

// maxBulkFanOut bounds how many goroutines a single read_many/
// write_many call spins up, so a caller asking for a thousand tags
// doesn't open a thousand goroutines at once.
const maxBulkFanOut = 16

// executor is the subset of *connmgr.Manager the Tag Service needs,
// factored out so it can be faked in tests without a real fleet.
type executor interface {
	ExecuteOperation(ctx context.Context, plcID string, op wire.Operation) (wire.Result, error)
}

// Service is the Tag Service.
type Service struct {
	cat *catalog.Catalog
	mgr executor
	dbg *logging.DebugLogger
}

// New builds a Tag Service resolving tags against cat and dispatching
// operations through mgr.
func New(cat *catalog.Catalog, mgr executor, dbg *logging.DebugLogger) *Service {
	return &Service{cat: cat, mgr: mgr, dbg: dbg}
}

func (s *Service) resolve(plcID, tagName string) (*catalog.RegisterDescriptor, *catalog.PLCDescriptor, error) {
	plc, ok := s.cat.PLC(plcID)
	if !ok {
		return nil, nil, gwerr.New(gwerr.Configuration, fmt.Sprintf("unknown plc %q", plcID)).WithPLC(plcID)
	}
	reg, err := s.cat.Register(plcID, tagName)
	if err != nil {
		return nil, nil, err
	}
	return reg, plc, nil
}

func readKind(rt catalog.RegisterType) wire.Kind {
	switch rt {
	case catalog.Input:
		return wire.ReadInput
	case catalog.Discrete:
		return wire.ReadDiscrete
	case catalog.Coil:
		return wire.ReadCoil
	default:
		return wire.ReadHolding
	}
}

// buildReadOp constructs the wire operation for reading reg, per
// spec.md §4.6 point 4: direction + register_type selects the Modbus
// kind, data type selects the register count for word-addressed
// registers (bit-addressed ones are always a single coil/discrete).
func buildReadOp(reg *catalog.RegisterDescriptor, plc *catalog.PLCDescriptor, pduAddr int) wire.Operation {
	count := uint16(1)
	if reg.RegisterType == catalog.Holding || reg.RegisterType == catalog.Input {
		count = uint16(reg.DataType.WordCount())
	}
	return wire.Operation{
		Kind:            readKind(reg.RegisterType),
		Address:         uint16(pduAddr),
		OriginalAddress: reg.Address,
		Count:           count,
		UnitID:          reg.EffectiveUnitID(plc.UnitID),
	}
}

// buildWriteOp constructs the wire operation for writing numeric to
// reg. Coils always go via write_coil; every other register type
// always goes via write_registers, single-word values included — the
// normative write path per spec.md §9's open question.
func buildWriteOp(reg *catalog.RegisterDescriptor, plc *catalog.PLCDescriptor, pduAddr int, numeric float64) (wire.Operation, error) {
	unit := reg.EffectiveUnitID(plc.UnitID)
	if reg.RegisterType == catalog.Coil {
		return wire.Operation{
			Kind:            wire.WriteSingleCoil,
			Address:         uint16(pduAddr),
			OriginalAddress: reg.Address,
			UnitID:          unit,
			Bit:             numeric != 0,
		}, nil
	}

	words, err := encode(reg.DataType, numeric)
	if err != nil {
		return wire.Operation{}, err
	}
	return wire.Operation{
		Kind:            wire.WriteRegisters,
		Address:         uint16(pduAddr),
		OriginalAddress: reg.Address,
		Count:           uint16(len(words)),
		Words:           words,
		UnitID:          unit,
	}, nil
}

func (s *Service) decodeResult(reg *catalog.RegisterDescriptor, result wire.Result) (any, []uint16, []bool, error) {
	if reg.RegisterType == catalog.Coil || reg.RegisterType == catalog.Discrete {
		if len(result.Bits) == 0 {
			return nil, nil, nil, gwerr.New(gwerr.Encoding, "no bits returned for digital register").WithTag(reg.Name)
		}
		return result.Bits[0], nil, result.Bits, nil
	}
	value, err := decode(reg.DataType, result.Words)
	if err != nil {
		return nil, nil, nil, err
	}
	return value, result.Words, nil, nil
}

// ReadTag resolves tagName, dispatches the read and decodes the
// result. Failures never surface as a Go error to the caller — they
// are reported as a TagReadResult with Status == StatusError, per
// spec.md §7's "single ops always return a result object" rule.
func (s *Service) ReadTag(ctx context.Context, plcID, tagName string) TagReadResult {
	ts := time.Now()

	reg, plc, err := s.resolve(plcID, tagName)
	if err != nil {
		return errorReadResult(tagName, err, ts)
	}

	pduAddr, outOfRange := translate(plc.AddressingScheme, reg.Address)
	if outOfRange {
		s.dbg.Log("tagsvc", "address %d for tag %s on plc %s outside standard zones, using as-is", reg.Address, tagName, plcID)
	}

	op := buildReadOp(reg, plc, pduAddr)
	result, err := s.mgr.ExecuteOperation(ctx, plcID, op)
	if err != nil {
		return errorReadResult(tagName, err, ts)
	}

	value, words, bits, err := s.decodeResult(reg, result)
	if err != nil {
		return errorReadResult(tagName, err, ts)
	}

	return TagReadResult{
		TagName:   tagName,
		Status:    StatusSuccess,
		Value:     value,
		Registers: words,
		Bits:      bits,
		Timestamp: ts,
	}
}

// WriteTag validates, translates and writes value to tagName.
func (s *Service) WriteTag(ctx context.Context, plcID, tagName string, value any) TagWriteResult {
	ts := time.Now()

	reg, plc, err := s.resolve(plcID, tagName)
	if err != nil {
		return errorWriteResult(tagName, value, err, ts)
	}

	numeric, err := validateWrite(plcID, reg, value)
	if err != nil {
		return errorWriteResult(tagName, value, err, ts)
	}

	pduAddr, outOfRange := translate(plc.AddressingScheme, reg.Address)
	if outOfRange {
		s.dbg.Log("tagsvc", "address %d for tag %s on plc %s outside standard zones, using as-is", reg.Address, tagName, plcID)
	}

	op, err := buildWriteOp(reg, plc, pduAddr, numeric)
	if err != nil {
		return errorWriteResult(tagName, value, err, ts)
	}

	if _, err := s.mgr.ExecuteOperation(ctx, plcID, op); err != nil {
		return errorWriteResult(tagName, value, err, ts)
	}

	return TagWriteResult{
		TagName:   tagName,
		Status:    StatusSuccess,
		Value:     value,
		Timestamp: ts,
	}
}

// ReadMany fans out one ReadTag per tag name concurrently against
// plcID. The Operation Executor still serializes the underlying wire
// traffic — the concurrency here buys pipelined resolve/decode and
// per-tag error isolation, not wire parallelism.
func (s *Service) ReadMany(ctx context.Context, plcID string, tagNames []string) BulkReadResponse {
	ts := time.Now()

	p := pool.NewWithResults[TagReadResult]().WithMaxGoroutines(maxBulkFanOut)
	for _, name := range tagNames {
		name := name
		p.Go(func() TagReadResult { return s.ReadTag(ctx, plcID, name) })
	}
	results := p.Wait()

	successful := 0
	for _, r := range results {
		if r.Status == StatusSuccess {
			successful++
		}
	}

	return BulkReadResponse{
		PLCID:           plcID,
		TotalRequested:  len(tagNames),
		SuccessfulCount: successful,
		FailedCount:     len(results) - successful,
		Results:         results,
		OverallStatus:   overallStatus(successful, len(results)),
		Timestamp:       ts,
	}
}

// WriteMany fans out one WriteTag per entry in tagValues concurrently.
func (s *Service) WriteMany(ctx context.Context, plcID string, tagValues map[string]any) BulkWriteResponse {
	ts := time.Now()

	type entry struct {
		name  string
		value any
	}
	entries := make([]entry, 0, len(tagValues))
	for name, value := range tagValues {
		entries = append(entries, entry{name, value})
	}

	p := pool.NewWithResults[TagWriteResult]().WithMaxGoroutines(maxBulkFanOut)
	for _, e := range entries {
		e := e
		p.Go(func() TagWriteResult { return s.WriteTag(ctx, plcID, e.name, e.value) })
	}
	results := p.Wait()

	successful := 0
	for _, r := range results {
		if r.Status == StatusSuccess {
			successful++
		}
	}

	return BulkWriteResponse{
		PLCID:           plcID,
		TotalRequested:  len(tagValues),
		SuccessfulCount: successful,
		FailedCount:     len(results) - successful,
		Results:         results,
		OverallStatus:   overallStatus(successful, len(results)),
		Timestamp:       ts,
	}
}

func errorReadResult(tagName string, err error, ts time.Time) TagReadResult {
	kind, msg := errResult(err)
	return TagReadResult{TagName: tagName, Status: StatusError, ErrorKind: kind, ErrorMessage: msg, Timestamp: ts}
}

func errorWriteResult(tagName string, value any, err error, ts time.Time) TagWriteResult {
	kind, msg := errResult(err)
	return TagWriteResult{TagName: tagName, Status: StatusError, Value: value, ErrorKind: kind, ErrorMessage: msg, Timestamp: ts}
}
