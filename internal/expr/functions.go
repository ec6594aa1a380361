package expr

import (
	"fmt"
	"regexp"
)

// evalCall dispatches a call node to its function implementation. Every
// branch returns an error (not a panic) on arity/type mismatch; Evaluate
// reduces that error to false, EvaluateValue surfaces it.
func evalCall(c callNode, ctx Context) (any, error) {
	args := func(n int) ([]any, error) {
		if len(c.args) != n {
			return nil, fmt.Errorf("expr: %s expects %d argument(s), got %d", c.fn, n, len(c.args))
		}
		out := make([]any, n)
		for i, a := range c.args {
			v, err := evalNode(a, ctx)
			if err != nil {
				return nil, err
			}
			out[i] = v
		}
		return out, nil
	}

	switch c.fn {
	case "answer":
		a, err := args(1)
		if err != nil {
			return nil, err
		}
		return unwrap(a[0]), nil

	case "anySelected", "allSelected", "noneSelected":
		if len(c.args) != 2 {
			return nil, fmt.Errorf("expr: %s expects 2 arguments", c.fn)
		}
		qv, err := evalNode(c.args[0], ctx)
		if err != nil {
			return nil, err
		}
		qr, ok := qv.(questionRef)
		if !ok {
			return nil, fmt.Errorf("expr: %s's first argument must be a question reference", c.fn)
		}
		listV, err := evalNode(c.args[1], ctx)
		if err != nil {
			return nil, err
		}
		list := toArray(listV)
		wanted := map[string]bool{}
		for _, w := range list {
			wanted[toString(w)] = true
		}
		chosen := map[string]bool{}
		for _, ch := range qr.value.Choices {
			chosen[ch] = true
		}
		switch c.fn {
		case "anySelected":
			for w := range wanted {
				if chosen[w] {
					return true, nil
				}
			}
			return false, nil
		case "allSelected":
			for w := range wanted {
				if !chosen[w] {
					return false, nil
				}
			}
			return true, nil
		default: // noneSelected
			for w := range wanted {
				if chosen[w] {
					return false, nil
				}
			}
			return true, nil
		}

	case "equals", "notEquals":
		a, err := args(2)
		if err != nil {
			return nil, err
		}
		wantArray := isLiteralArray(a[0]) || isLiteralArray(a[1])
		eq := deepEqual(resolveForCompare(a[0], wantArray), resolveForCompare(a[1], wantArray))
		if c.fn == "notEquals" {
			return !eq, nil
		}
		return eq, nil

	case "not":
		a, err := args(1)
		if err != nil {
			return nil, err
		}
		return !toBool(a[0]), nil

	case "and":
		if len(c.args) == 0 {
			return nil, fmt.Errorf("expr: and expects at least 1 argument")
		}
		for _, argNode := range c.args {
			v, err := evalNode(argNode, ctx)
			if err != nil {
				return nil, err
			}
			if !toBool(v) {
				return false, nil
			}
		}
		return true, nil

	case "or":
		if len(c.args) == 0 {
			return nil, fmt.Errorf("expr: or expects at least 1 argument")
		}
		for _, argNode := range c.args {
			v, err := evalNode(argNode, ctx)
			if err != nil {
				return nil, err
			}
			if toBool(v) {
				return true, nil
			}
		}
		return false, nil

	case "greaterThan", "lessThan", "greaterThanOrEqual", "lessThanOrEqual":
		a, err := args(2)
		if err != nil {
			return nil, err
		}
		x, ok1 := toNumber(a[0])
		y, ok2 := toNumber(a[1])
		if !ok1 || !ok2 {
			return nil, fmt.Errorf("expr: %s requires numeric operands", c.fn)
		}
		switch c.fn {
		case "greaterThan":
			return x > y, nil
		case "lessThan":
			return x < y, nil
		case "greaterThanOrEqual":
			return x >= y, nil
		default:
			return x <= y, nil
		}

	case "contains", "startsWith", "endsWith":
		a, err := args(2)
		if err != nil {
			return nil, err
		}
		s, sub := toString(a[0]), toString(a[1])
		switch c.fn {
		case "contains":
			return containsStr(s, sub), nil
		case "startsWith":
			return len(s) >= len(sub) && s[:len(sub)] == sub, nil
		default:
			return len(s) >= len(sub) && s[len(s)-len(sub):] == sub, nil
		}

	case "isEmpty", "isNotEmpty":
		a, err := args(1)
		if err != nil {
			return nil, err
		}
		empty := isEmptyValue(a[0])
		if c.fn == "isNotEmpty" {
			return !empty, nil
		}
		return empty, nil

	case "length", "count":
		a, err := args(1)
		if err != nil {
			return nil, err
		}
		return float64(lengthOf(a[0])), nil

	case "in", "notIn":
		a, err := args(2)
		if err != nil {
			return nil, err
		}
		needle := resolveForCompare(a[0], false)
		hay := toArray(a[1])
		found := false
		for _, e := range hay {
			if deepEqual(needle, e) {
				found = true
				break
			}
		}
		if c.fn == "notIn" {
			return !found, nil
		}
		return found, nil

	case "regex":
		a, err := args(2)
		if err != nil {
			return nil, err
		}
		re, err := regexp.Compile(toString(a[1]))
		if err != nil {
			return false, nil
		}
		return re.MatchString(toString(a[0])), nil

	case "between":
		a, err := args(3)
		if err != nil {
			return nil, err
		}
		v, ok1 := toNumber(a[0])
		lo, ok2 := toNumber(a[1])
		hi, ok3 := toNumber(a[2])
		if !ok1 || !ok2 || !ok3 {
			return nil, fmt.Errorf("expr: between requires numeric operands")
		}
		return v >= lo && v <= hi, nil

	case "isNumber":
		a, err := args(1)
		if err != nil {
			return nil, err
		}
		_, isFloat := unwrap(a[0]).(float64)
		return isFloat, nil

	case "isString":
		a, err := args(1)
		if err != nil {
			return nil, err
		}
		_, isStr := unwrap(a[0]).(string)
		return isStr, nil

	case "isArray":
		a, err := args(1)
		if err != nil {
			return nil, err
		}
		_, isArr := a[0].([]any)
		if !isArr {
			if qr, ok := a[0].(questionRef); ok {
				isArr = len(qr.value.Choices) > 0
			}
		}
		return isArr, nil

	case "sum", "average", "min", "max":
		a, err := args(1)
		if err != nil {
			return nil, err
		}
		list := toArray(a[0])
		nums := make([]float64, 0, len(list))
		for _, e := range list {
			n, ok := toNumber(e)
			if !ok {
				return nil, fmt.Errorf("expr: %s requires a numeric array", c.fn)
			}
			nums = append(nums, n)
		}
		if len(nums) == 0 {
			return 0.0, nil
		}
		switch c.fn {
		case "sum":
			var s float64
			for _, n := range nums {
				s += n
			}
			return s, nil
		case "average":
			var s float64
			for _, n := range nums {
				s += n
			}
			return s / float64(len(nums)), nil
		case "min":
			m := nums[0]
			for _, n := range nums[1:] {
				if n < m {
					m = n
				}
			}
			return m, nil
		default: // max
			m := nums[0]
			for _, n := range nums[1:] {
				if n > m {
					m = n
				}
			}
			return m, nil
		}

	default:
		return nil, fmt.Errorf("expr: unknown function %q", c.fn)
	}
}

func containsStr(s, sub string) bool {
	return len(sub) == 0 || indexOf(s, sub) >= 0
}

func indexOf(s, sub string) int {
	n, m := len(s), len(sub)
	if m > n {
		return -1
	}
	for i := 0; i+m <= n; i++ {
		if s[i:i+m] == sub {
			return i
		}
	}
	return -1
}

// isEmptyValue handles strings, arrays, question references, and null —
// per spec.md §4.1's isEmpty/isNotEmpty.
func isEmptyValue(v any) bool {
	if qr, ok := v.(questionRef); ok {
		return qr.value.Empty()
	}
	switch x := v.(type) {
	case nil:
		return true
	case string:
		return x == ""
	case []any:
		return len(x) == 0
	default:
		return false
	}
}

func lengthOf(v any) int {
	if qr, ok := v.(questionRef); ok {
		if len(qr.value.Choices) > 0 {
			return len(qr.value.Choices)
		}
		v = primaryScalar(qr.value)
	}
	switch x := v.(type) {
	case string:
		return len([]rune(x))
	case []any:
		return len(x)
	case nil:
		return 0
	default:
		return 0
	}
}
