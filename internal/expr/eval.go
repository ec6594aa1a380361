package expr

import (
	"fmt"
	"strings"
)

// resolveIdent implements spec.md §4.1's bare-identifier resolution order:
// a questionIdMap hit, then a loop. prefix, then the literal string form.
func resolveIdent(name string, ctx Context) any {
	if qid, ok := ctx.QuestionIDMap[name]; ok {
		av := ctx.Answers[qid] // zero value if unanswered
		return questionRef{questionID: qid, value: av}
	}
	if rest, ok := strings.CutPrefix(name, "loop."); ok {
		if v, ok := ctx.LoopContext[rest]; ok {
			return v
		}
		return nil
	}
	if v, ok := ctx.AdditionalContext[name]; ok {
		return v
	}
	return name
}

func evalNode(n node, ctx Context) (any, error) {
	switch t := n.(type) {
	case litNode:
		return t.value, nil
	case refNode:
		return resolveIdent(t.name, ctx), nil
	case arrayNode:
		out := make([]any, len(t.elems))
		for i, e := range t.elems {
			v, err := evalNode(e, ctx)
			if err != nil {
				return nil, err
			}
			out[i] = v
		}
		return out, nil
	case callNode:
		return evalCall(t, ctx)
	default:
		return nil, fmt.Errorf("expr: unknown node type %T", n)
	}
}

// Evaluate parses and evaluates source as a boolean condition (used for
// visibleIf, terminateIf, and jump conditions). Per spec.md §4.1 the
// evaluator never throws to its callers: any parse error, unknown
// function, or evaluation error reduces to false.
func Evaluate(source string, ctx Context) bool {
	v, err := EvaluateValue(source, ctx)
	if err != nil {
		return false
	}
	return toBool(v)
}

// EvaluateValue parses and evaluates source, returning the raw resulting
// value. Unlike Evaluate it surfaces errors, for callers (e.g. the
// validator's cross-field rules) that need to tell "false" from "invalid
// expression".
func EvaluateValue(source string, ctx Context) (any, error) {
	n, err := parse(source)
	if err != nil {
		return nil, err
	}
	return evalNode(n, ctx)
}
