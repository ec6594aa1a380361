package expr

import (
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/surveyrt/runtime/internal/models"
)

// primaryScalar implements spec.md §4.1's answer() resolution order: first
// choice if single/multi-valued, else the first non-null scalar field in a
// fixed order.
func primaryScalar(v models.AnswerValue) any {
	switch {
	case len(v.Choices) > 0:
		return v.Choices[0]
	case v.TextValue != "":
		return v.TextValue
	case v.NumericValue != nil:
		return *v.NumericValue
	case v.DecimalValue != nil:
		return *v.DecimalValue
	case v.BooleanValue != nil:
		return *v.BooleanValue
	case v.EmailValue != "":
		return v.EmailValue
	case v.PhoneValue != "":
		return v.PhoneValue
	case v.URLValue != "":
		return v.URLValue
	case v.DateValue != nil:
		return v.DateValue.Format(time.RFC3339)
	case v.TimeValue != "":
		return v.TimeValue
	default:
		return nil
	}
}

// unwrap reduces a questionRef to its primary scalar; every other value
// passes through unchanged. Used by operators that only care about a
// single comparable value (greaterThan, contains, isNumber, ...).
func unwrap(v any) any {
	if qr, ok := v.(questionRef); ok {
		return primaryScalar(qr.value)
	}
	return v
}

// isLiteralArray reports whether v is an already-evaluated array literal
// (as opposed to a questionRef that merely happens to carry choices).
func isLiteralArray(v any) bool {
	_, ok := v.([]any)
	return ok
}

// resolveForCompare reduces a questionRef for equals/notEquals: when the
// comparison is list-shaped (the other operand is an array literal), a
// multi-valued question unwraps to its full Choices slice so the
// comparison is "deep equality on arrays"; otherwise it unwraps to its
// primary scalar, matching "strict equality otherwise" (spec.md §4.1).
// Without this distinction equals(Q1, 'yes') on a single-choice question
// would wrongly compare a 1-element Choices array to a bare string.
func resolveForCompare(v any, wantArray bool) any {
	qr, ok := v.(questionRef)
	if !ok {
		return v
	}
	if wantArray && len(qr.value.Choices) > 0 {
		out := make([]any, len(qr.value.Choices))
		for i, c := range qr.value.Choices {
			out[i] = c
		}
		return out
	}
	return primaryScalar(qr.value)
}

func toNumber(v any) (float64, bool) {
	switch x := unwrap(v).(type) {
	case float64:
		return x, true
	case int:
		return float64(x), true
	case bool:
		if x {
			return 1, true
		}
		return 0, true
	case string:
		n, err := strconv.ParseFloat(strings.TrimSpace(x), 64)
		if err != nil {
			return 0, false
		}
		return n, true
	case nil:
		return 0, true
	default:
		return 0, false
	}
}

func toString(v any) string {
	switch x := unwrap(v).(type) {
	case string:
		return x
	case float64:
		return formatNumber(x)
	case bool:
		if x {
			return "true"
		}
		return "false"
	case nil:
		return ""
	case []any:
		parts := make([]string, len(x))
		for i, e := range x {
			parts[i] = toString(e)
		}
		return strings.Join(parts, ",")
	default:
		return fmt.Sprintf("%v", x)
	}
}

func formatNumber(n float64) string {
	return strconv.FormatFloat(n, 'f', -1, 64)
}

// toBool applies JS-style truthiness: empty string/0/nil/empty array/false
// are falsy, everything else truthy.
func toBool(v any) bool {
	switch x := unwrap(v).(type) {
	case bool:
		return x
	case string:
		return x != ""
	case float64:
		return x != 0
	case nil:
		return false
	case []any:
		return len(x) > 0
	default:
		return true
	}
}

func toArray(v any) []any {
	switch x := v.(type) {
	case []any:
		return x
	case questionRef:
		out := make([]any, len(x.value.Choices))
		for i, c := range x.value.Choices {
			out[i] = c
		}
		return out
	case nil:
		return nil
	default:
		return []any{x}
	}
}

func deepEqual(a, b any) bool {
	aa, aIsArr := a.([]any)
	bb, bIsArr := b.([]any)
	if aIsArr || bIsArr {
		if !aIsArr || !bIsArr || len(aa) != len(bb) {
			return false
		}
		for i := range aa {
			if !deepEqual(aa[i], bb[i]) {
				return false
			}
		}
		return true
	}
	// Scalars compare after normalizing numeric-looking strings vs numbers,
	// since '5' and 5 both reach here from mixed literal/reference sources.
	if an, aok := a.(float64); aok {
		if bn, bok := toNumberStrict(b); bok {
			return an == bn
		}
	}
	if bn, bok := b.(float64); bok {
		if an, aok := toNumberStrict(a); aok {
			return an == bn
		}
	}
	return a == b
}

func toNumberStrict(v any) (float64, bool) {
	switch x := v.(type) {
	case float64:
		return x, true
	case string:
		n, err := strconv.ParseFloat(x, 64)
		if err != nil {
			return 0, false
		}
		return n, true
	default:
		return 0, false
	}
}
