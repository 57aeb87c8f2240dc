package tagsvc

import (
	"fmt"

	"github.com/atharvakhole/modgate/catalog"
	"github.com/atharvakhole/modgate/gwerr"
)

// validateWrite checks value against reg's declared policy before any
// encoding is attempted, returning the coerced numeric value on
// success. readonly, range, digital-domain and whole-number checks
// all fail with a Validation error and no wire call ever happens.
func validateWrite(plcID string, reg *catalog.RegisterDescriptor, value any) (float64, error) {
	if value == nil {
		return 0, gwerr.New(gwerr.Validation, "value is nil").WithPLC(plcID).WithTag(reg.Name)
	}

	if reg.ReadOnly {
		return 0, gwerr.New(gwerr.Validation,
			fmt.Sprintf("register %q is readonly", reg.Name)).WithPLC(plcID).WithTag(reg.Name)
	}

	numeric, ok := toFloat64(value)
	if !ok {
		return 0, gwerr.New(gwerr.Validation,
			fmt.Sprintf("value %v is not coercible to a number", value)).WithPLC(plcID).WithTag(reg.Name)
	}

	if reg.MinValue != nil && numeric < *reg.MinValue {
		return 0, gwerr.New(gwerr.Validation,
			fmt.Sprintf("value %v below minimum %v", numeric, *reg.MinValue)).WithPLC(plcID).WithTag(reg.Name)
	}
	if reg.MaxValue != nil && numeric > *reg.MaxValue {
		return 0, gwerr.New(gwerr.Validation,
			fmt.Sprintf("value %v above maximum %v", numeric, *reg.MaxValue)).WithPLC(plcID).WithTag(reg.Name)
	}

	if reg.TagType == catalog.Digital && numeric != 0 && numeric != 1 {
		return 0, gwerr.New(gwerr.Validation,
			fmt.Sprintf("digital register accepts only 0 or 1, got %v", numeric)).WithPLC(plcID).WithTag(reg.Name)
	}

	// Whole-number enforcement covers every integer-backed data type,
	// 64-bit included, not just the 16/32-bit kinds the original
	// source checked.
	if reg.TagType == catalog.Digital || reg.DataType.Integer() {
		if numeric != float64(int64(numeric)) {
			return 0, gwerr.New(gwerr.Validation,
				fmt.Sprintf("non-integer value %v for integer type %s", numeric, reg.DataType)).WithPLC(plcID).WithTag(reg.Name)
		}
	}

	return numeric, nil
}
