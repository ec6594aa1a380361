// Package router implements the priority chain spec.md §4.6 uses to pick
// the next step after a successful submit: loop continuation, then
// question-level termination, then question- and page-level jumps, then
// sequential next.
package router

import (
	"sort"

	"github.com/surveyrt/runtime/internal/expr"
	"github.com/surveyrt/runtime/internal/models"
	"github.com/surveyrt/runtime/internal/resolve"
)

// Outcome is the result of routing after a page submit.
type Outcome struct {
	Terminated bool
	Reason     string
	Complete   bool
	NextPageID string
	NextQuestionID string
	// LoopState is non-nil when the loop battery advanced an iteration;
	// callers persist it back onto the session's RenderState. On
	// exhaustion LoopState stays nil and LoopCleared is set instead.
	LoopState    *models.LoopState
	LoopCleared  bool
}

// Router holds the whole-survey indexes needed to evaluate conditions.
type Router struct {
	idx     resolve.Index
	survey  models.Survey
}

func New(idx resolve.Index, survey models.Survey) *Router {
	return &Router{idx: idx, survey: survey}
}

// Route decides the next step after answers for currentPage have been
// persisted. answeredQuestionIDs is the set of questions answered on this
// submit (termination/jump rules only look at those). loopState is the
// session's current active loop, or nil.
func (r *Router) Route(
	currentPage models.Page,
	answeredQuestionIDs []string,
	answers map[string]models.AnswerValue,
	loopState *models.LoopState,
	loopCtx map[string]any,
) Outcome {
	ctx := expr.Context{Answers: answers, QuestionIDMap: r.idx.VariableMap, LoopContext: loopCtx}

	if out, handled := r.routeLoop(currentPage, loopState); handled {
		return out
	} else if out.LoopCleared {
		return r.routeRest(currentPage, answeredQuestionIDs, ctx, true)
	}

	return r.routeRest(currentPage, answeredQuestionIDs, ctx, false)
}

// routeRest runs steps 2-5 of the priority chain and stamps LoopCleared
// onto whichever outcome wins, so a just-exhausted loop's state clears
// even when the final outcome comes from termination, a jump, or the
// sequential fallback.
func (r *Router) routeRest(currentPage models.Page, answeredQuestionIDs []string, ctx expr.Context, loopCleared bool) Outcome {
	out := r.routeRestUncleared(currentPage, answeredQuestionIDs, ctx)
	out.LoopCleared = loopCleared
	return out
}

func (r *Router) routeRestUncleared(currentPage models.Page, answeredQuestionIDs []string, ctx expr.Context) Outcome {
	if out, terminated := r.routeTermination(answeredQuestionIDs, ctx); terminated {
		return out
	}

	if out, jumped := r.routeQuestionJumps(answeredQuestionIDs, ctx); jumped {
		return out
	}

	if out, jumped := r.routePageJumps(currentPage.PageID, ctx); jumped {
		return out
	}

	return r.routeSequential(currentPage.Index, ctx)
}

// routeLoop implements step 1: if currentPage is the loop's endPageId and
// more iterations remain, advance and loop back to startPageId; if
// exhausted, clear loop state and fall through to the remaining steps.
func (r *Router) routeLoop(currentPage models.Page, loopState *models.LoopState) (Outcome, bool) {
	if loopState == nil || currentPage.PageID != loopState.EndPageID {
		return Outcome{}, false
	}
	if loopState.CurrentIteration+1 < loopState.TotalItems {
		next := *loopState
		next.CurrentIteration++
		return Outcome{NextPageID: loopState.StartPageID, LoopState: &next}, true
	}
	return Outcome{LoopCleared: true}, false
}

func (r *Router) routeTermination(questionIDs []string, ctx expr.Context) (Outcome, bool) {
	for _, qid := range questionIDs {
		q, ok := r.idx.Questions[qid]
		if !ok || q.TerminateIfExpressionID == "" {
			continue
		}
		src, ok := r.idx.Expressions[q.TerminateIfExpressionID]
		if !ok {
			continue
		}
		if expr.Evaluate(src, ctx) {
			return Outcome{Terminated: true, Reason: "terminate_if:" + qid}, true
		}
	}
	return Outcome{}, false
}

func (r *Router) routeQuestionJumps(questionIDs []string, ctx expr.Context) (Outcome, bool) {
	for _, qid := range questionIDs {
		jumps := jumpsFor(r.survey.Jumps, func(j models.Jump) bool { return j.FromQuestionID == qid })
		if out, ok := evaluateJumps(jumps, r.idx.Expressions, ctx); ok {
			return out, true
		}
	}
	return Outcome{}, false
}

func (r *Router) routePageJumps(pageID string, ctx expr.Context) (Outcome, bool) {
	jumps := jumpsFor(r.survey.Jumps, func(j models.Jump) bool { return j.FromPageID == pageID })
	return evaluateJumps(jumps, r.idx.Expressions, ctx)
}

func jumpsFor(all []models.Jump, match func(models.Jump) bool) []models.Jump {
	var out []models.Jump
	for _, j := range all {
		if match(j) {
			out = append(out, j)
		}
	}
	sort.SliceStable(out, func(i, k int) bool { return out[i].Priority < out[k].Priority })
	return out
}

// evaluateJumps returns the first jump (in ascending priority) whose
// condition is true or absent. A jump with no target means "fall
// through" rather than winning.
func evaluateJumps(jumps []models.Jump, expressions map[string]string, ctx expr.Context) (Outcome, bool) {
	for _, j := range jumps {
		if j.ConditionExprID != "" {
			src, ok := expressions[j.ConditionExprID]
			if ok && !expr.Evaluate(src, ctx) {
				continue
			}
		}
		if j.ToPageID == "" && j.ToQuestionID == "" {
			continue
		}
		return Outcome{NextPageID: j.ToPageID, NextQuestionID: j.ToQuestionID}, true
	}
	return Outcome{}, false
}

// FirstPage resolves the first visible page of the survey, for starting a
// brand-new session.
func (r *Router) FirstPage(ctx expr.Context) Outcome {
	return r.routeSequential(-1, ctx)
}

// routeSequential implements step 5: the first page with index > current
// whose visibleIf evaluates true; complete if none remain.
func (r *Router) routeSequential(currentIndex int, ctx expr.Context) Outcome {
	var candidates []models.Page
	for _, p := range r.survey.Pages {
		if p.Index > currentIndex {
			candidates = append(candidates, p)
		}
	}
	sort.SliceStable(candidates, func(i, k int) bool { return candidates[i].Index < candidates[k].Index })

	for _, p := range candidates {
		if p.VisibleIfExpressionID != "" {
			src, ok := r.idx.Expressions[p.VisibleIfExpressionID]
			if ok && !expr.Evaluate(src, ctx) {
				continue
			}
		}
		return Outcome{NextPageID: p.PageID}
	}
	return Outcome{Complete: true}
}
