package procedure

import (
	"testing"

	"github.com/atharvakhole/modgate/catalog"
	"github.com/atharvakhole/modgate/gwerr"
)

func testCatalog(t *testing.T) *catalog.Catalog {
	t.Helper()
	cat, err := catalog.Parse([]byte(`
plcs:
  - id: P1
    host: 10.0.0.5
    port: 502
    addressing_scheme: absolute
    registers:
      TEMP:
        address: 40101
        register_type: holding
        data_type: float32
      TEMP_ACT:
        address: 40103
        register_type: holding
        data_type: uint16
        readonly: true
      COOLER:
        address: 1
        register_type: coil
`))
	if err != nil {
		t.Fatalf("test catalog: %v", err)
	}
	return cat
}

func TestLoadValid(t *testing.T) {
	cat := testCatalog(t)
	raw := []byte(`
procedures:
  - name: cooler_control
    description: read temp and react
    steps:
      - name: r1
        type: read
        plc_id: P1
        register: TEMP
        store_as: t
      - name: c1
        type: condition
        plc_id: P1
        condition: "TEMP > 50"
        if_true: w_hi
        if_false: w_lo
      - name: w_hi
        type: write
        plc_id: P1
        register: COOLER
        value: 1
      - name: w_lo
        type: write
        plc_id: P1
        register: COOLER
        value: 0
`)

	defs, err := Load(raw, cat)
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	def, ok := defs["cooler_control"]
	if !ok {
		t.Fatal("expected procedure cooler_control")
	}
	if len(def.Steps) != 4 {
		t.Errorf("steps = %d, want 4", len(def.Steps))
	}
}

func TestLoadRejectsUnknownJumpTarget(t *testing.T) {
	cat := testCatalog(t)
	raw := []byte(`
procedures:
  - name: bad
    steps:
      - name: c1
        type: condition
        plc_id: P1
        condition: "TEMP > 50"
        if_true: nope
        if_false: c1
`)

	_, err := Load(raw, cat)
	if err == nil {
		t.Fatal("expected error for dangling if_true target")
	}
	if gwerr.Of(err) != gwerr.Configuration {
		t.Errorf("kind = %v, want Configuration", gwerr.Of(err))
	}
}

func TestLoadRejectsWriteToReadonly(t *testing.T) {
	cat := testCatalog(t)
	raw := []byte(`
procedures:
  - name: bad
    steps:
      - name: w1
        type: write
        plc_id: P1
        register: TEMP_ACT
        value: 1
`)

	_, err := Load(raw, cat)
	if err == nil {
		t.Fatal("expected error for write to readonly register")
	}
}

func TestLoadRejectsDuplicateStepNames(t *testing.T) {
	cat := testCatalog(t)
	raw := []byte(`
procedures:
  - name: bad
    steps:
      - name: r1
        type: read
        plc_id: P1
        register: TEMP
      - name: r1
        type: read
        plc_id: P1
        register: TEMP
`)

	_, err := Load(raw, cat)
	if err == nil {
		t.Fatal("expected error for duplicate step name")
	}
}

func TestLoadRejectsNonPositiveWait(t *testing.T) {
	cat := testCatalog(t)
	raw := []byte(`
procedures:
  - name: bad
    steps:
      - name: w1
        type: wait
        seconds: 0
`)

	_, err := Load(raw, cat)
	if err == nil {
		t.Fatal("expected error for wait.seconds <= 0")
	}
}

func TestLoadSelfJumpIsLegal(t *testing.T) {
	cat := testCatalog(t)
	raw := []byte(`
procedures:
  - name: selfjump
    steps:
      - name: c1
        type: condition
        plc_id: P1
        condition: "TEMP > 50"
        if_true: c1
        if_false: c1
`)

	if _, err := Load(raw, cat); err != nil {
		t.Fatalf("expected self-jump to be legal, got: %v", err)
	}
}

func TestLoadRejectsBadMaxIterations(t *testing.T) {
	cat := testCatalog(t)
	raw := []byte(`
procedures:
  - name: bad
    steps:
      - name: l1
        type: loop
        plc_id: P1
        condition: "TEMP > 50"
        max_iterations: 0
`)

	_, err := Load(raw, cat)
	if err == nil {
		t.Fatal("expected error for max_iterations < 1")
	}
}
