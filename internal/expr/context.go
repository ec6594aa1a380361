// Package expr implements the small, total functional DSL used to
// evaluate visibility, termination, and jump conditions, plus the piping
// substitution syntax used in template fields (spec.md §4.1).
package expr

import "github.com/surveyrt/runtime/internal/models"

// Context is the read-only evaluation context an expression runs against.
type Context struct {
	// Answers maps questionId -> the respondent's answer for that question.
	Answers map[string]models.AnswerValue
	// LoopContext maps a loop variable name (without the "loop." prefix) to
	// its current value, e.g. the current loop item's fields.
	LoopContext map[string]any
	// QuestionIDMap maps a question's variableName to its questionId, so
	// bare identifiers in expressions can resolve to answers.
	QuestionIDMap map[string]string
	// AdditionalContext carries any extra named values a caller wants
	// addressable by bare identifier (rarely used; checked after
	// QuestionIDMap and the loop. prefix).
	AdditionalContext map[string]any
}

// questionRef is the internal representation of a reference that resolved
// to a question's answer. Keeping the full AnswerValue (not just its
// primary scalar) lets choice-aware functions (answer, anySelected,
// allSelected, noneSelected) see the full Choices list, while generic
// operators (equals, contains, ...) unwrap it to a single comparable value.
type questionRef struct {
	questionID string
	value      models.AnswerValue
}
