package catalog

import (
	"fmt"
	"os"
	"sort"

	"gopkg.in/yaml.v3"

	"github.com/atharvakhole/modgate/gwerr"
)

// document is the on-disk shape of a catalog file.
type document struct {
	PLCs []*PLCDescriptor `yaml:"plcs"`
}

// Catalog is the read-only lookup surface for PLC and register
// descriptors, loaded once at startup. It never mutates after Load
// returns, matching spec.md's "Device Catalog" contract: lookups are
// plain map reads requiring no further locking.
type Catalog struct {
	plcs map[string]*PLCDescriptor
}

// Load reads and validates a catalog document from path.
func Load(path string) (*Catalog, error) {
	raw, err := os.ReadFile(path)
	if err != nil {
		return nil, gwerr.Wrap(gwerr.Configuration, err, fmt.Sprintf("read catalog %s", path))
	}
	return Parse(raw)
}

// Parse validates a catalog document already held in memory.
func Parse(raw []byte) (*Catalog, error) {
	var doc document
	if err := yaml.Unmarshal(raw, &doc); err != nil {
		return nil, gwerr.Wrap(gwerr.Configuration, err, "parse catalog yaml")
	}

	return build(doc.PLCs)
}

func build(plcs []*PLCDescriptor) (*Catalog, error) {
	c := &Catalog{plcs: make(map[string]*PLCDescriptor, len(plcs))}

	for _, plc := range plcs {
		if plc.ID == "" {
			return nil, gwerr.New(gwerr.Configuration, "plc descriptor missing id")
		}
		if _, dup := c.plcs[plc.ID]; dup {
			return nil, gwerr.New(gwerr.Configuration, fmt.Sprintf("duplicate plc id %q", plc.ID))
		}
		if plc.Host == "" || plc.Port == 0 {
			return nil, gwerr.New(gwerr.Configuration, fmt.Sprintf("plc %q missing host/port", plc.ID)).WithPLC(plc.ID)
		}
		switch plc.AddressingScheme {
		case Absolute, Relative:
			// ok
		default:
			return nil, gwerr.New(gwerr.Configuration,
				fmt.Sprintf("plc %q has invalid addressing_scheme %q, must be %q or %q",
					plc.ID, plc.AddressingScheme, Absolute, Relative)).WithPLC(plc.ID)
		}
		for name, reg := range plc.Registers {
			if reg.Name == "" {
				reg.Name = name
			}
			if reg.Name != name {
				return nil, gwerr.New(gwerr.Configuration,
					fmt.Sprintf("plc %q register key %q does not match its name field %q", plc.ID, name, reg.Name)).WithPLC(plc.ID)
			}
			if !reg.RegisterType.Valid() {
				return nil, gwerr.New(gwerr.Configuration,
					fmt.Sprintf("register %q has invalid register_type %q", name, reg.RegisterType)).WithPLC(plc.ID).WithTag(name)
			}
			if reg.DataType == "" {
				reg.DataType = Uint16
			}
			if !reg.DataType.Valid() {
				return nil, gwerr.New(gwerr.Configuration,
					fmt.Sprintf("register %q has invalid data_type %q", name, reg.DataType)).WithPLC(plc.ID).WithTag(name)
			}
			if reg.TagType == "" {
				reg.TagType = Analog
			}
			if reg.RegisterType == Coil || reg.RegisterType == Discrete {
				reg.TagType = Digital
			}
		}
		if err := checkNonColliding(plc); err != nil {
			return nil, err
		}

		c.plcs[plc.ID] = plc
	}

	return c, nil
}

// checkNonColliding verifies that no two registers of the same
// RegisterType on plc claim overlapping words, per spec.md §3: a
// multi-word register (e.g. a float32 at address 40101) reserves
// 40101 and 40102, and nothing else on that PLC may also claim
// 40102. Each RegisterType gets its own address space, matching
// Modbus's four disjoint object classes.
func checkNonColliding(plc *PLCDescriptor) error {
	type span struct {
		name       string
		start, end int // [start, end)
	}
	byType := make(map[RegisterType][]span)

	names := make([]string, 0, len(plc.Registers))
	for name := range plc.Registers {
		names = append(names, name)
	}
	sort.Strings(names)

	for _, name := range names {
		reg := plc.Registers[name]
		s := span{name: name, start: reg.Address, end: reg.Address + reg.DataType.WordCount()}
		for _, other := range byType[reg.RegisterType] {
			if s.start < other.end && other.start < s.end {
				return gwerr.New(gwerr.Configuration,
					fmt.Sprintf("plc %q registers %q and %q overlap in the %s address space (addresses %d-%d and %d-%d)",
						plc.ID, other.name, s.name, reg.RegisterType, other.start, other.end-1, s.start, s.end-1)).
					WithPLC(plc.ID).WithTag(name)
			}
		}
		byType[reg.RegisterType] = append(byType[reg.RegisterType], s)
	}
	return nil
}

// PLC returns the descriptor for plcID.
func (c *Catalog) PLC(plcID string) (*PLCDescriptor, bool) {
	p, ok := c.plcs[plcID]
	return p, ok
}

// PLCIDs returns every configured PLC id, sorted.
func (c *Catalog) PLCIDs() []string {
	ids := make([]string, 0, len(c.plcs))
	for id := range c.plcs {
		ids = append(ids, id)
	}
	sort.Strings(ids)
	return ids
}

// Register resolves tagName against plcID's register map.
func (c *Catalog) Register(plcID, tagName string) (*RegisterDescriptor, error) {
	plc, ok := c.plcs[plcID]
	if !ok {
		return nil, gwerr.New(gwerr.Configuration, fmt.Sprintf("unknown plc %q", plcID)).WithPLC(plcID)
	}
	reg, ok := plc.Registers[tagName]
	if !ok {
		return nil, gwerr.New(gwerr.AddressResolution, availableTagsMessage(tagName, plc)).WithPLC(plcID).WithTag(tagName)
	}
	return reg, nil
}

// availableTagsMessage builds the "tag not found, available tags are
// ..." message, truncated to the first ten names sorted
// alphabetically with a "(and N more)" suffix — the exact format the
// original Python implementation reports on an address-resolution
// miss.
func availableTagsMessage(tagName string, plc *PLCDescriptor) string {
	names := make([]string, 0, len(plc.Registers))
	for name := range plc.Registers {
		names = append(names, name)
	}
	sort.Strings(names)

	shown := names
	suffix := ""
	if len(names) > 10 {
		shown = names[:10]
		suffix = fmt.Sprintf(" (and %d more)", len(names)-10)
	}

	list := ""
	for i, n := range shown {
		if i > 0 {
			list += ", "
		}
		list += n
	}

	return fmt.Sprintf("tag %q not found. Available tags: %s%s", tagName, list, suffix)
}
