package procedure

import (
	"fmt"
	"regexp"
	"strconv"
	"strings"

	"github.com/atharvakhole/modgate/gwerr"
)

// Operator is a comparison operator accepted by a condition's grammar.
type Operator string

const (
	OpEqual        Operator = "=="
	OpNotEqual     Operator = "!="
	OpGreater      Operator = ">"
	OpLess         Operator = "<"
	OpGreaterEqual Operator = ">="
	OpLessEqual    Operator = "<="
)

// conditionGrammar matches the "NAME OP VALUE" string every condition
// and loop step carries.
var conditionGrammar = regexp.MustCompile(`^(\w+)\s*(==|!=|<=|>=|<|>)\s*(.+)$`)

// parsedCondition is a condition string split into its register name,
// operator and comparison literal.
type parsedCondition struct {
	Register string
	Operator Operator
	Literal  string
}

// parseCondition validates condition's grammar without evaluating it,
// used both by Load (to reject malformed conditions up front) and by
// the executor.
func parseCondition(condition string) (parsedCondition, error) {
	m := conditionGrammar.FindStringSubmatch(condition)
	if m == nil {
		return parsedCondition{}, gwerr.New(gwerr.Validation, fmt.Sprintf("invalid condition format: %q", condition))
	}
	return parsedCondition{
		Register: m[1],
		Operator: Operator(m[2]),
		Literal:  strings.TrimSpace(m[3]),
	}, nil
}

// evaluate compares value (the register's decoded/read value) against
// pc's literal. Numeric coercion is attempted on both sides; if both
// succeed, comparison is numeric. Otherwise it falls back to string
// equality/inequality — ordering operators on non-numeric values fail.
func (pc parsedCondition) evaluate(value any) (bool, error) {
	lhs, lhsNumeric := toFloat64(value)
	rhs, rhsErr := strconv.ParseFloat(pc.Literal, 64)

	if lhsNumeric && rhsErr == nil {
		return compareFloat(lhs, rhs, pc.Operator)
	}

	switch pc.Operator {
	case OpEqual:
		return fmt.Sprint(value) == pc.Literal, nil
	case OpNotEqual:
		return fmt.Sprint(value) != pc.Literal, nil
	default:
		return false, gwerr.New(gwerr.Validation,
			fmt.Sprintf("operator %s not supported for non-numeric values", pc.Operator))
	}
}

func compareFloat(lhs, rhs float64, op Operator) (bool, error) {
	switch op {
	case OpEqual:
		return lhs == rhs, nil
	case OpNotEqual:
		return lhs != rhs, nil
	case OpGreater:
		return lhs > rhs, nil
	case OpLess:
		return lhs < rhs, nil
	case OpGreaterEqual:
		return lhs >= rhs, nil
	case OpLessEqual:
		return lhs <= rhs, nil
	default:
		return false, gwerr.New(gwerr.Validation, fmt.Sprintf("unknown operator: %s", op))
	}
}

func toFloat64(v any) (float64, bool) {
	switch val := v.(type) {
	case float64:
		return val, true
	case float32:
		return float64(val), true
	case int:
		return float64(val), true
	case int16:
		return float64(val), true
	case int32:
		return float64(val), true
	case int64:
		return float64(val), true
	case uint16:
		return float64(val), true
	case uint32:
		return float64(val), true
	case uint64:
		return float64(val), true
	case bool:
		if val {
			return 1, true
		}
		return 0, true
	case string:
		f, err := strconv.ParseFloat(val, 64)
		return f, err == nil
	default:
		return 0, false
	}
}
