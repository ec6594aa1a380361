package router

import (
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/surveyrt/runtime/internal/models"
	"github.com/surveyrt/runtime/internal/resolve"
)

func buildSurvey() models.Survey {
	return models.Survey{
		SurveyID: "s1",
		Expressions: []models.Expression{
			{ExpressionID: "term-q1", Source: `equals(Q1, 'quit')`},
			{ExpressionID: "jump-cond", Source: `equals(Q2, 'skip')`},
			{ExpressionID: "always-false", Source: `false`},
		},
		Pages: []models.Page{
			{PageID: "p0", Index: 0, Questions: []models.Question{
				{QuestionID: "q1", VariableName: "Q1", TerminateIfExpressionID: "term-q1"},
				{QuestionID: "q2", VariableName: "Q2"},
			}},
			{PageID: "p1", Index: 1},
			{PageID: "p2", Index: 2, VisibleIfExpressionID: "always-false"},
			{PageID: "p3", Index: 3},
		},
		Jumps: []models.Jump{
			{JumpID: "j1", FromQuestionID: "q2", ToPageID: "p3", Priority: 1, ConditionExprID: "jump-cond"},
		},
	}
}

func TestSequentialNextSkipsHiddenPages(t *testing.T) {
	survey := buildSurvey()
	idx := resolve.BuildIndex(survey)
	r := New(idx, survey)

	out := r.Route(survey.Pages[1], nil, nil, nil, nil)

	assert.False(t, out.Terminated)
	assert.Equal(t, "p3", out.NextPageID) // p2 is hidden, skipped
}

func TestTerminationWins(t *testing.T) {
	survey := buildSurvey()
	idx := resolve.BuildIndex(survey)
	r := New(idx, survey)

	out := r.Route(survey.Pages[0], []string{"q1", "q2"}, map[string]models.AnswerValue{
		"q1": {TextValue: "quit"},
		"q2": {TextValue: "ok"},
	}, nil, nil)

	assert.True(t, out.Terminated)
}

func TestQuestionJumpWinsOverSequential(t *testing.T) {
	survey := buildSurvey()
	idx := resolve.BuildIndex(survey)
	r := New(idx, survey)

	out := r.Route(survey.Pages[0], []string{"q1", "q2"}, map[string]models.AnswerValue{
		"q1": {TextValue: "ok"},
		"q2": {TextValue: "skip"},
	}, nil, nil)

	assert.False(t, out.Terminated)
	assert.Equal(t, "p3", out.NextPageID)
}

func TestLoopContinuationAdvancesIteration(t *testing.T) {
	survey := buildSurvey()
	idx := resolve.BuildIndex(survey)
	r := New(idx, survey)

	loopState := &models.LoopState{BatteryID: "b1", StartPageID: "p1", EndPageID: "p1", CurrentIteration: 0, TotalItems: 3}
	out := r.Route(survey.Pages[1], nil, nil, loopState, nil)

	assert.Equal(t, "p1", out.NextPageID)
	assert.NotNil(t, out.LoopState)
	assert.Equal(t, 1, out.LoopState.CurrentIteration)
}

func TestLoopExhaustionFallsThroughAndClearsState(t *testing.T) {
	survey := buildSurvey()
	idx := resolve.BuildIndex(survey)
	r := New(idx, survey)

	loopState := &models.LoopState{BatteryID: "b1", StartPageID: "p1", EndPageID: "p1", CurrentIteration: 2, TotalItems: 3}
	out := r.Route(survey.Pages[1], nil, nil, loopState, nil)

	assert.True(t, out.LoopCleared)
	assert.Equal(t, "p3", out.NextPageID) // p2 hidden, falls through to sequential
}

func TestCompleteWhenNoMorePages(t *testing.T) {
	survey := buildSurvey()
	idx := resolve.BuildIndex(survey)
	r := New(idx, survey)

	out := r.Route(survey.Pages[3], nil, nil, nil, nil)
	assert.True(t, out.Complete)
}
