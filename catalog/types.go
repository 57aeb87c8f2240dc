package catalog

import (
	"fmt"
	"time"

	"gopkg.in/yaml.v3"
)

// Duration wraps time.Duration so catalog YAML can write human-readable
// values like "30s" or "1h" instead of raw nanosecond integers, which
// is what a bare time.Duration field decodes as under yaml.v3.
type Duration time.Duration

// UnmarshalYAML accepts either a duration string ("1h30m") or a plain
// integer count of nanoseconds, so existing nanosecond-integer
// documents keep working.
func (d *Duration) UnmarshalYAML(node *yaml.Node) error {
	var ns int64
	if err := node.Decode(&ns); err == nil {
		*d = Duration(ns)
		return nil
	}

	var s string
	if err := node.Decode(&s); err != nil {
		return fmt.Errorf("duration must be a string like \"30s\" or an integer number of nanoseconds")
	}
	parsed, err := time.ParseDuration(s)
	if err != nil {
		return fmt.Errorf("invalid duration %q: %w", s, err)
	}
	*d = Duration(parsed)
	return nil
}

// MarshalYAML renders the duration in its human-readable form.
func (d Duration) MarshalYAML() (interface{}, error) {
	return time.Duration(d).String(), nil
}

// RegisterType identifies which Modbus object class a register
// belongs to.
type RegisterType string

const (
	Holding  RegisterType = "holding"
	Input    RegisterType = "input"
	Discrete RegisterType = "discrete"
	Coil     RegisterType = "coil"
)

// Valid reports whether t is one of the four recognized register
// classes.
func (t RegisterType) Valid() bool {
	switch t {
	case Holding, Input, Discrete, Coil:
		return true
	default:
		return false
	}
}

// DataType identifies how a register's raw words are interpreted.
type DataType string

const (
	Uint16  DataType = "uint16"
	Int16   DataType = "int16"
	Uint32  DataType = "uint32"
	Int32   DataType = "int32"
	Uint64  DataType = "uint64"
	Int64   DataType = "int64"
	Float32 DataType = "float32"
	Float64 DataType = "float64"
)

// Valid reports whether t is one of the recognized scalar types.
func (t DataType) Valid() bool {
	switch t {
	case Uint16, Int16, Uint32, Int32, Uint64, Int64, Float32, Float64:
		return true
	default:
		return false
	}
}

// WordCount returns how many 16-bit registers a value of type t
// occupies on the wire.
func (t DataType) WordCount() int {
	switch t {
	case Uint32, Int32, Float32:
		return 2
	case Uint64, Int64, Float64:
		return 4
	default:
		return 1
	}
}

// Integer reports whether t holds whole numbers only.
func (t DataType) Integer() bool {
	switch t {
	case Uint16, Int16, Uint32, Int32, Uint64, Int64:
		return true
	default:
		return false
	}
}

// AddressingScheme controls how a register's configured address is
// translated into a 0-based PDU address.
type AddressingScheme string

const (
	Absolute AddressingScheme = "absolute"
	Relative AddressingScheme = "relative"
)

// TagType distinguishes an on/off digital point from a general
// analog/numeric one. Digital tags are restricted to the 0/1 domain
// regardless of their underlying DataType.
type TagType string

const (
	Analog  TagType = "analog"
	Digital TagType = "digital"
)

// RegisterDescriptor is the catalog's entry for one logical tag.
type RegisterDescriptor struct {
	Name         string       `yaml:"name"`
	Address      int          `yaml:"address"`
	RegisterType RegisterType `yaml:"register_type"`
	DataType     DataType     `yaml:"data_type"`
	TagType      TagType      `yaml:"tag_type"`
	ReadOnly     bool         `yaml:"readonly"`
	MinValue     *float64     `yaml:"min_value,omitempty"`
	MaxValue     *float64     `yaml:"max_value,omitempty"`
	UnitID       *byte        `yaml:"unit_id,omitempty"`
}

// EffectiveUnitID returns the register's unit id override, falling
// back to the owning PLC's default.
func (r *RegisterDescriptor) EffectiveUnitID(plcDefault byte) byte {
	if r.UnitID != nil {
		return *r.UnitID
	}
	return plcDefault
}

// PLCDescriptor describes one PLC endpoint and its register map.
type PLCDescriptor struct {
	ID                  string                         `yaml:"id"`
	Host                string                         `yaml:"host"`
	Port                int                            `yaml:"port"`
	UnitID              byte                           `yaml:"unit_id"`
	AddressingScheme    AddressingScheme               `yaml:"addressing_scheme"`
	PoolSize            int                            `yaml:"pool_size"`
	ConnectTimeout      Duration                       `yaml:"connect_timeout"`
	AcquireTimeout      Duration                       `yaml:"acquire_timeout"`
	MaxConnectRetries   int                            `yaml:"max_connect_retries"`
	MaxOperationRetries int                            `yaml:"max_operation_retries"`
	BreakerThreshold    int                            `yaml:"breaker_failure_threshold"`
	BreakerReset        Duration                       `yaml:"breaker_reset_timeout"`
	HealthCheckInterval Duration                       `yaml:"health_check_interval"`
	Registers           map[string]*RegisterDescriptor `yaml:"registers"`
}

// Default tuning values applied when a PLCDescriptor field is left
// zero-valued in its source YAML, mirroring the defaulting accessors
// the donor's config.PLCConfig exposes rather than requiring every
// document to repeat them.
const (
	DefaultPoolSize            = 4
	DefaultConnectTimeout      = 10 * time.Second
	DefaultAcquireTimeout      = 10 * time.Second
	DefaultMaxConnectRetries   = 5
	DefaultMaxOperationRetries = 3
	DefaultBreakerThreshold    = 5
	DefaultBreakerReset        = 60 * time.Second
	DefaultHealthCheckInterval = 30 * time.Second
)

func (p *PLCDescriptor) poolSize() int {
	if p.PoolSize > 0 {
		return p.PoolSize
	}
	return DefaultPoolSize
}

func (p *PLCDescriptor) connectTimeout() time.Duration {
	if p.ConnectTimeout > 0 {
		return time.Duration(p.ConnectTimeout)
	}
	return DefaultConnectTimeout
}

func (p *PLCDescriptor) acquireTimeout() time.Duration {
	if p.AcquireTimeout > 0 {
		return time.Duration(p.AcquireTimeout)
	}
	return DefaultAcquireTimeout
}

func (p *PLCDescriptor) maxConnectRetries() int {
	if p.MaxConnectRetries > 0 {
		return p.MaxConnectRetries
	}
	return DefaultMaxConnectRetries
}

func (p *PLCDescriptor) maxOperationRetries() int {
	if p.MaxOperationRetries > 0 {
		return p.MaxOperationRetries
	}
	return DefaultMaxOperationRetries
}

func (p *PLCDescriptor) breakerThreshold() int {
	if p.BreakerThreshold > 0 {
		return p.BreakerThreshold
	}
	return DefaultBreakerThreshold
}

func (p *PLCDescriptor) breakerReset() time.Duration {
	if p.BreakerReset > 0 {
		return time.Duration(p.BreakerReset)
	}
	return DefaultBreakerReset
}

func (p *PLCDescriptor) healthCheckInterval() time.Duration {
	if p.HealthCheckInterval > 0 {
		return time.Duration(p.HealthCheckInterval)
	}
	return DefaultHealthCheckInterval
}

// Tunables bundles a PLC's effective (defaulted) runtime parameters.
type Tunables struct {
	PoolSize            int
	ConnectTimeout      time.Duration
	AcquireTimeout      time.Duration
	MaxConnectRetries   int
	MaxOperationRetries int
	BreakerThreshold    int
	BreakerReset        time.Duration
	HealthCheckInterval time.Duration
}

// Effective returns p's tunables with defaults applied.
func (p *PLCDescriptor) Effective() Tunables {
	return Tunables{
		PoolSize:            p.poolSize(),
		ConnectTimeout:      p.connectTimeout(),
		AcquireTimeout:      p.acquireTimeout(),
		MaxConnectRetries:   p.maxConnectRetries(),
		MaxOperationRetries: p.maxOperationRetries(),
		BreakerThreshold:    p.breakerThreshold(),
		BreakerReset:        p.breakerReset(),
		HealthCheckInterval: p.healthCheckInterval(),
	}
}
