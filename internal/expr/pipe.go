package expr

import (
	"regexp"
	"strings"
)

// pipeToken matches "${pipe:question:<variableName>:<field>}" tokens in
// template text (spec.md §4.1's piping syntax).
var pipeToken = regexp.MustCompile(`\$\{pipe:question:([A-Za-z_][A-Za-z0-9_]*):(response|text|choices|numeric|boolean)\}`)

// Interpolate substitutes every pipe token in template with the referenced
// question's current answer, rendered per the requested field. A token
// whose variable is unknown or whose question is unanswered is left
// verbatim — piping never errors, it degrades to showing the raw token,
// matching the evaluator's "never throws" posture.
func Interpolate(template string, ctx Context) string {
	return pipeToken.ReplaceAllStringFunc(template, func(match string) string {
		sub := pipeToken.FindStringSubmatch(match)
		variable, field := sub[1], sub[2]

		qid, ok := ctx.QuestionIDMap[variable]
		if !ok {
			return match
		}
		av, ok := ctx.Answers[qid]
		if !ok {
			return match
		}

		switch field {
		case "response":
			if s := toString(primaryScalar(av)); s != "" {
				return s
			}
			return match
		case "text":
			if av.TextValue != "" {
				return av.TextValue
			}
			if len(av.Choices) > 0 {
				return strings.Join(av.Choices, ", ")
			}
			return match
		case "choices":
			if len(av.Choices) == 0 {
				return match
			}
			return strings.Join(av.Choices, ", ")
		case "numeric":
			if av.NumericValue != nil {
				return formatNumber(*av.NumericValue)
			}
			if av.DecimalValue != nil {
				return formatNumber(*av.DecimalValue)
			}
			return match
		case "boolean":
			if av.BooleanValue == nil {
				return match
			}
			if *av.BooleanValue {
				return "true"
			}
			return "false"
		default:
			return match
		}
	})
}
