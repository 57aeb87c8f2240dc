package procedure

import (
	"fmt"
	"os"

	"gopkg.in/yaml.v3"

	"github.com/atharvakhole/modgate/catalog"
	"github.com/atharvakhole/modgate/gwerr"
)

// document is the on-disk shape of a procedure file.
type document struct {
	Procedures []*Definition `yaml:"procedures"`
}

// LoadFile reads and validates every procedure definition in path
// against cat, per spec.md §6's load-time contract: jump targets,
// required per-kind fields, tag references and writable-register
// checks are all resolved before any step runs, closing the gap
// original_source/app/core/procedure_execution_engine.py leaves open
// (it only discovers a bad jump target at execution time).
func LoadFile(path string, cat *catalog.Catalog) (map[string]*Definition, error) {
	raw, err := os.ReadFile(path)
	if err != nil {
		return nil, gwerr.Wrap(gwerr.Configuration, err, fmt.Sprintf("read procedures %s", path))
	}
	return Load(raw, cat)
}

// Load parses and validates a procedure document already held in
// memory.
func Load(raw []byte, cat *catalog.Catalog) (map[string]*Definition, error) {
	var doc document
	if err := yaml.Unmarshal(raw, &doc); err != nil {
		return nil, gwerr.Wrap(gwerr.Configuration, err, "parse procedures yaml")
	}

	out := make(map[string]*Definition, len(doc.Procedures))
	for _, def := range doc.Procedures {
		if def.Name == "" {
			return nil, gwerr.New(gwerr.Configuration, "procedure missing name")
		}
		if _, dup := out[def.Name]; dup {
			return nil, gwerr.New(gwerr.Configuration, fmt.Sprintf("duplicate procedure name %q", def.Name))
		}
		if err := validateDefinition(def, cat); err != nil {
			return nil, err
		}
		out[def.Name] = def
	}
	return out, nil
}

// validateDefinition checks one procedure's steps for well-formedness,
// so the executor can assume every field it reads is present and every
// jump target resolves.
func validateDefinition(def *Definition, cat *catalog.Catalog) error {
	if len(def.Steps) == 0 {
		return gwerr.New(gwerr.Configuration, fmt.Sprintf("procedure %q has no steps", def.Name))
	}

	names := make(map[string]bool, len(def.Steps))
	for _, step := range def.Steps {
		if step.Name == "" {
			return gwerr.New(gwerr.Configuration, fmt.Sprintf("procedure %q has a step with no name", def.Name))
		}
		if names[step.Name] {
			return gwerr.New(gwerr.Configuration, fmt.Sprintf("procedure %q has duplicate step name %q", def.Name, step.Name))
		}
		names[step.Name] = true
	}

	for _, step := range def.Steps {
		if err := validateStep(def.Name, step, cat, names); err != nil {
			return err
		}
	}
	return nil
}

func validateStep(procName string, step Step, cat *catalog.Catalog, names map[string]bool) error {
	fail := func(format string, a ...any) error {
		return gwerr.New(gwerr.Configuration, fmt.Sprintf("procedure %q step %q: %s", procName, step.Name, fmt.Sprintf(format, a...)))
	}

	switch step.Kind {
	case StepRead:
		if step.PLCID == "" || step.Register == "" {
			return fail("read step requires plc_id and register")
		}
		if _, err := lookupRegister(cat, step.PLCID, step.Register); err != nil {
			return fail("%v", err)
		}

	case StepWrite:
		if step.PLCID == "" || step.Register == "" {
			return fail("write step requires plc_id and register")
		}
		if step.Value == nil {
			return fail("write step requires a value")
		}
		reg, err := lookupRegister(cat, step.PLCID, step.Register)
		if err != nil {
			return fail("%v", err)
		}
		if reg.ReadOnly {
			return fail("write step targets readonly register %q", step.Register)
		}

	case StepCondition:
		if step.PLCID == "" || step.Condition == "" {
			return fail("condition step requires plc_id and condition")
		}
		if step.IfTrue == "" || step.IfFalse == "" {
			return fail("condition step requires if_true and if_false")
		}
		if !names[step.IfTrue] {
			return fail("if_true references unknown step %q", step.IfTrue)
		}
		if !names[step.IfFalse] {
			return fail("if_false references unknown step %q", step.IfFalse)
		}
		pc, err := parseCondition(step.Condition)
		if err != nil {
			return fail("%v", err)
		}
		if _, err := lookupRegister(cat, step.PLCID, pc.Register); err != nil {
			return fail("%v", err)
		}

	case StepWait:
		if step.Seconds <= 0 {
			return fail("wait.seconds must be positive, got %v", step.Seconds)
		}

	case StepLoop:
		if step.PLCID == "" || step.Condition == "" {
			return fail("loop step requires plc_id and condition")
		}
		if step.MaxIterations < 1 {
			return fail("loop.max_iterations must be >= 1, got %d", step.MaxIterations)
		}
		pc, err := parseCondition(step.Condition)
		if err != nil {
			return fail("%v", err)
		}
		if _, err := lookupRegister(cat, step.PLCID, pc.Register); err != nil {
			return fail("%v", err)
		}

	default:
		return fail("unknown step type %q", step.Kind)
	}

	return nil
}

func lookupRegister(cat *catalog.Catalog, plcID, tagName string) (*catalog.RegisterDescriptor, error) {
	if cat == nil {
		return &catalog.RegisterDescriptor{}, nil
	}
	return cat.Register(plcID, tagName)
}
