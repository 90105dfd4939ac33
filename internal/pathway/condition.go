package pathway

import (
	"fmt"
	"reflect"
	"strconv"
	"strings"

	"inquest/internal/types"
)

// EvaluateCondition applies a branch condition to a level's signals.
// Pure and deterministic. A nil signals map, an unknown operator, or a
// malformed value always evaluates to false rather than erroring: a branch
// that cannot be evaluated is a branch not taken.
func EvaluateCondition(cond types.Condition, signals map[string]interface{}) bool {
	if cond.Field == "" || signals == nil {
		return false
	}

	val, present := signals[cond.Field]
	defined := present && val != nil

	switch cond.Operator {
	case types.OpEquals:
		return defined && strictEqual(val, cond.Value)
	case types.OpNotEquals:
		return !defined || !strictEqual(val, cond.Value)
	case types.OpContains:
		return strings.Contains(coerceString(val), coerceString(cond.Value))
	case types.OpGreaterThan:
		a, aok := coerceNumber(val)
		b, bok := coerceNumber(cond.Value)
		return aok && bok && a > b
	case types.OpLessThan:
		a, aok := coerceNumber(val)
		b, bok := coerceNumber(cond.Value)
		return aok && bok && a < b
	case types.OpIn:
		list, ok := cond.Value.([]interface{})
		if !ok {
			return false
		}
		for _, item := range list {
			if strictEqual(val, item) {
				return true
			}
		}
		return false
	case types.OpExists:
		return defined
	case types.OpNotExists:
		return !defined
	default:
		return false
	}
}

// strictEqual compares two JSON-decoded values without coercion. Numeric
// values from JSON all decode as float64, so cross-width comparisons are
// already unified; strings never equal numbers.
func strictEqual(a, b interface{}) bool {
	return reflect.DeepEqual(normalizeNumber(a), normalizeNumber(b))
}

// normalizeNumber folds Go integer kinds into float64 so hand-built
// signal maps compare the same way JSON-decoded ones do.
func normalizeNumber(v interface{}) interface{} {
	switch x := v.(type) {
	case int:
		return float64(x)
	case int64:
		return float64(x)
	case float32:
		return float64(x)
	default:
		return v
	}
}

// coerceString renders a signal value as a string; nil becomes "".
func coerceString(v interface{}) string {
	switch x := v.(type) {
	case nil:
		return ""
	case string:
		return x
	case bool:
		return strconv.FormatBool(x)
	case float64:
		return strconv.FormatFloat(x, 'f', -1, 64)
	case int:
		return strconv.Itoa(x)
	default:
		return fmt.Sprintf("%v", x)
	}
}

// coerceNumber attempts numeric coercion for ordering comparisons.
func coerceNumber(v interface{}) (float64, bool) {
	switch x := v.(type) {
	case float64:
		return x, true
	case float32:
		return float64(x), true
	case int:
		return float64(x), true
	case int64:
		return float64(x), true
	case string:
		f, err := strconv.ParseFloat(strings.TrimSpace(x), 64)
		return f, err == nil
	case bool:
		if x {
			return 1, true
		}
		return 0, true
	default:
		return 0, false
	}
}
