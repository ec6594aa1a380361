package resolve

import (
	"github.com/surveyrt/runtime/internal/expr"
	"github.com/surveyrt/runtime/internal/models"
)

// Page implements spec.md §4.4's algorithm: visibility, piping,
// carry-forward merge, and ordering, for one page.
func Page(idx Index, page models.Page, sessionID string, answers map[string]models.AnswerValue, loopCtx map[string]any) models.ResolvedPage {
	ctx := expr.Context{
		Answers:       answers,
		LoopContext:   loopCtx,
		QuestionIDMap: idx.VariableMap,
	}

	if src, ok := idx.exprSource(page.VisibleIfExpressionID); ok && !expr.Evaluate(src, ctx) {
		return models.ResolvedPage{PageID: page.PageID, IsVisible: false}
	}

	resolved := models.ResolvedPage{
		PageID:      page.PageID,
		IsVisible:   true,
		Title:       expr.Interpolate(page.TitleTemplate, ctx),
		Description: expr.Interpolate(page.DescriptionTemplate, ctx),
	}

	units := append([]models.Group{}, page.Groups...)
	if len(page.Questions) > 0 {
		units = append(units, models.Group{
			GroupID:        "__standalone__" + page.PageID,
			PageID:         page.PageID,
			Index:          len(units),
			Questions:      page.Questions,
			InnerOrderMode: page.QuestionOrderMode,
		})
	}

	groupOrder := order(page.GroupOrderMode, len(units), []string{sessionID, page.PageID, "", "", "groups"},
		func(i int) float64 { return 0 },
		func(i int) string { return "" },
		func(i int) int { return units[i].Index },
	)

	for _, gi := range groupOrder {
		rg := resolveGroup(idx, units[gi], sessionID, page.PageID, ctx)
		resolved.Groups = append(resolved.Groups, rg)
	}

	return resolved
}

func resolveGroup(idx Index, g models.Group, sessionID, pageID string, ctx expr.Context) models.ResolvedGroup {
	rg := models.ResolvedGroup{GroupID: g.GroupID, IsVisible: true}

	if src, ok := idx.exprSource(g.VisibleIfExpressionID); ok && !expr.Evaluate(src, ctx) {
		rg.IsVisible = false
		return rg
	}

	rg.Title = expr.Interpolate(g.TitleTemplate, ctx)
	rg.Description = expr.Interpolate(g.DescriptionTemplate, ctx)

	qOrder := order(g.InnerOrderMode, len(g.Questions), []string{sessionID, pageID, g.GroupID, "", "questions"},
		func(i int) float64 { return 0 },
		func(i int) string { return "" },
		func(i int) int { return i },
	)
	for _, qi := range qOrder {
		q := g.Questions[qi]
		rq, visible := resolveQuestion(idx, q, sessionID, pageID, ctx)
		if !visible {
			rq.IsVisible = false
		}
		rg.Questions = append(rg.Questions, rq)
	}
	return rg
}

func resolveQuestion(idx Index, q models.Question, sessionID, pageID string, ctx expr.Context) (models.ResolvedQuestion, bool) {
	rq := models.ResolvedQuestion{
		QuestionID: q.QuestionID,
		Type:       q.Type,
		Required:   q.Required,
		Config:     q.Config,
	}

	if src, ok := idx.exprSource(q.VisibleIfExpressionID); ok && !expr.Evaluate(src, ctx) {
		return rq, false
	}
	rq.IsVisible = true

	options := resolveOptions(idx, q, sessionID, pageID, ctx)
	rq.Options = options

	rq.Items = resolveItems(idx, q, sessionID, pageID, ctx)
	rq.Scales = resolveScales(idx, q, ctx)

	return rq, true
}

func resolveOptions(idx Index, q models.Question, sessionID, pageID string, ctx expr.Context) []models.ResolvedOption {
	combined := q.Options
	if q.OptionsSource == models.OptionsSourceCarryForward && q.CarryForwardQuestionID != "" {
		combined = mergeCarryForward(idx, q, ctx)
	}

	var visible []models.Option
	for _, o := range combined {
		if src, ok := idx.exprSource(o.VisibleIfExpressionID); ok && !expr.Evaluate(src, ctx) {
			continue
		}
		visible = append(visible, o)
	}

	orderIdx := order(q.OptionOrderMode, len(visible), []string{sessionID, pageID, q.GroupID, q.QuestionID, "options"},
		func(i int) float64 { return visible[i].Weight },
		func(i int) string { return visible[i].GroupKey },
		func(i int) int { return visible[i].Index },
	)

	out := make([]models.ResolvedOption, 0, len(visible))
	for _, i := range orderIdx {
		o := visible[i]
		out = append(out, models.ResolvedOption{
			Value:     o.Value,
			Label:     expr.Interpolate(o.Label, ctx),
			Exclusive: o.Exclusive,
			ImageURL:  o.ImageURL,
		})
	}
	return out
}

// mergeCarryForward loads the carry-forward source question's options,
// keeps only those the respondent chose there, applies the optional
// filter expression, and merges with the question's own options —
// own options first, deduplicated by value (spec.md §4.4 step 5).
func mergeCarryForward(idx Index, q models.Question, ctx expr.Context) []models.Option {
	srcQ, ok := idx.Questions[q.CarryForwardQuestionID]
	if !ok {
		return q.Options
	}
	srcAnswer := ctx.Answers[q.CarryForwardQuestionID]
	chosen := map[string]bool{}
	for _, c := range srcAnswer.Choices {
		chosen[c] = true
	}

	filterSrc, hasFilter := idx.exprSource(q.CarryForwardFilterExprID)

	var carried []models.Option
	for _, o := range srcQ.Options {
		if !chosen[o.Value] {
			continue
		}
		if hasFilter {
			optCtx := ctx
			optCtx.AdditionalContext = mergeAdditional(ctx.AdditionalContext, map[string]any{
				"option.value": o.Value,
				"option.label": o.Label,
			})
			if !expr.Evaluate(filterSrc, optCtx) {
				continue
			}
		}
		carried = append(carried, o)
	}

	seen := map[string]bool{}
	out := make([]models.Option, 0, len(q.Options)+len(carried))
	for _, o := range q.Options {
		if !seen[o.Value] {
			seen[o.Value] = true
			out = append(out, o)
		}
	}
	for _, o := range carried {
		if !seen[o.Value] {
			seen[o.Value] = true
			out = append(out, o)
		}
	}
	return out
}

func mergeAdditional(base map[string]any, extra map[string]any) map[string]any {
	out := make(map[string]any, len(base)+len(extra))
	for k, v := range base {
		out[k] = v
	}
	for k, v := range extra {
		out[k] = v
	}
	return out
}

func resolveItems(idx Index, q models.Question, sessionID, pageID string, ctx expr.Context) []models.ResolvedOption {
	var visible []models.Item
	for _, it := range q.Items {
		if src, ok := idx.exprSource(it.VisibleIfExpressionID); ok && !expr.Evaluate(src, ctx) {
			continue
		}
		visible = append(visible, it)
	}
	out := make([]models.ResolvedOption, len(visible))
	for i, it := range visible {
		out[i] = models.ResolvedOption{Value: it.ItemID, Label: expr.Interpolate(it.Label, ctx)}
	}
	return out
}

func resolveScales(idx Index, q models.Question, ctx expr.Context) []models.ResolvedOption {
	var visible []models.Scale
	for _, s := range q.Scales {
		if src, ok := idx.exprSource(s.VisibleIfExpressionID); ok && !expr.Evaluate(src, ctx) {
			continue
		}
		visible = append(visible, s)
	}
	out := make([]models.ResolvedOption, len(visible))
	for i, s := range visible {
		out[i] = models.ResolvedOption{Value: s.Value, Label: s.Label}
	}
	return out
}
