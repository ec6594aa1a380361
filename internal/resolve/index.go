// Package resolve builds the ResolvedPage tree a respondent sees: it
// evaluates visibility, interpolates piped text, resolves carry-forward
// options, and applies ordering modes (spec.md §4.4).
package resolve

import "github.com/surveyrt/runtime/internal/models"

// Index is the flattened, whole-survey lookup table the resolver needs:
// variable names, questions (for carry-forward source lookups), and
// expression sources. Built by BuildIndex from one survey version;
// internal/runtime rebuilds it on each request that needs it.
type Index struct {
	VariableMap map[string]string          // variableName -> questionId
	Questions   map[string]models.Question // questionId -> Question
	Expressions map[string]string          // expressionId -> DSL source
}

// BuildIndex scans every page/group/question in a survey once.
func BuildIndex(survey models.Survey) Index {
	idx := Index{
		VariableMap: map[string]string{},
		Questions:   map[string]models.Question{},
		Expressions: map[string]string{},
	}
	for _, e := range survey.Expressions {
		idx.Expressions[e.ExpressionID] = e.Source
	}
	addQuestion := func(q models.Question) {
		if q.VariableName != "" {
			idx.VariableMap[q.VariableName] = q.QuestionID
		}
		idx.Questions[q.QuestionID] = q
	}
	for _, p := range survey.Pages {
		for _, g := range p.Groups {
			for _, q := range g.Questions {
				addQuestion(q)
			}
		}
		for _, q := range p.Questions {
			addQuestion(q)
		}
	}
	return idx
}

// exprSource resolves an expression id to its DSL source, treating an
// absent id (or a dangling reference) as "no condition" — visibleIf et al.
// are optional fields, and a missing expression must not hide content.
func (idx Index) exprSource(id string) (string, bool) {
	if id == "" {
		return "", false
	}
	src, ok := idx.Expressions[id]
	return src, ok
}
