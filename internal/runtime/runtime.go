// Package runtime implements the session controller of spec.md §4.8: the
// public surface a respondent's HTTP requests ultimately drive. It wires
// together internal/resolve, internal/validate, internal/router,
// internal/quota, and internal/settings behind the transactional
// guarantees internal/store's SessionStore provides.
package runtime

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/surveyrt/runtime/internal/admission"
	"github.com/surveyrt/runtime/internal/cache"
	"github.com/surveyrt/runtime/internal/expr"
	"github.com/surveyrt/runtime/internal/models"
	"github.com/surveyrt/runtime/internal/notify"
	"github.com/surveyrt/runtime/internal/quota"
	"github.com/surveyrt/runtime/internal/resolve"
	"github.com/surveyrt/runtime/internal/router"
	"github.com/surveyrt/runtime/internal/settings"
	"github.com/surveyrt/runtime/internal/store"
	"github.com/surveyrt/runtime/internal/validate"
)

// SurveyStore is the narrow slice of internal/store.SurveyStore this
// package needs.
type SurveyStore interface {
	GetPublished(ctx context.Context, surveyID string) (models.Survey, error)
}

// CollectorStore is the narrow slice of internal/store.CollectorStore this
// package needs.
type CollectorStore interface {
	Get(ctx context.Context, collectorID string) (models.Collector, error)
}

// SessionStore is the narrow slice of internal/store.SessionStore this
// package needs. The two composite methods keep *sql.Tx out of this
// package entirely, so runtime stays testable without a live database.
type SessionStore interface {
	Get(ctx context.Context, sessionID string) (models.Session, error)
	FindActiveByRespondentHash(ctx context.Context, surveyID, respondentHash string) (models.Session, error)
	SubmitPage(ctx context.Context, sessionID, pageID string, answers []models.Answer, events []models.OutboxEvent, mutate func(*models.Session)) error
	MutateWithEvents(ctx context.Context, sessionID string, events []models.OutboxEvent, mutate func(*models.Session)) error
}

// AnswerStore is the narrow slice of internal/store.AnswerStore this
// package needs.
type AnswerStore interface {
	LoadAll(ctx context.Context, sessionID string) (map[string]models.AnswerValue, error)
}

// Admitter is the narrow slice of admission.Service the start operation
// drives.
type Admitter interface {
	Admit(ctx context.Context, req admission.Request, newSessionID func() string) (admission.Result, error)
}

// StartResult is start's return contract.
type StartResult struct {
	SessionID   string
	FirstPageID string
	IsResume    bool
	ClosingSoon bool
}

// SubmitResult is submitAnswers's return contract; exactly one of
// Terminated, Complete, or NextPageID applies. NextPageID is empty when a
// jump targets only a question, in which case NextQuestionID is set.
type SubmitResult struct {
	Terminated bool
	Reason     string
	Complete   bool
	NextPageID string
	NextQuestionID string
}

// StatusResult is status's return contract.
type StatusResult struct {
	Status      models.SessionStatus
	StartedAt   time.Time
	FinalizedAt *time.Time
	FirstPageID string
	Collector   models.Collector
}

// ResumeResult is resume's return contract.
type ResumeResult struct {
	SessionID     string
	CurrentPageID string
	PageData      PageLayout
	ProgressData  models.ProgressData
}

// PageLayout is getPageLayout's return contract: the resolved page content
// plus the NAVIGATION-phase UI policy spec.md §4.8 places alongside it.
type PageLayout struct {
	Page       models.ResolvedPage
	Navigation settings.NavigationPolicy
}

// Controller is the session controller of spec.md §4.8.
type Controller struct {
	surveys    SurveyStore
	collectors CollectorStore
	sessions   SessionStore
	answers    AnswerStore
	quotaStore quota.Store
	admitter   Admitter
	mailer     notify.Mailer
	idGen      func() string
	now        func() time.Time

	landingCounter *cache.Cache
}

// SetLandingCounter attaches a best-effort landing-hit counter (spec.md
// §9 Open Question (a)'s analytics-counter semantics). Optional: a nil
// counter disables the increment entirely.
func (c *Controller) SetLandingCounter(counter *cache.Cache) {
	c.landingCounter = counter
}

func NewController(surveys SurveyStore, collectors CollectorStore, sessions SessionStore, answers AnswerStore, quotaStore quota.Store, admitter Admitter, mailer notify.Mailer) *Controller {
	if mailer == nil {
		mailer = notify.NoopMailer{}
	}
	return &Controller{
		surveys:    surveys,
		collectors: collectors,
		sessions:   sessions,
		answers:    answers,
		quotaStore: quotaStore,
		admitter:   admitter,
		mailer:     mailer,
		idGen:      uuid.NewString,
		now:        time.Now,
	}
}

// Start runs admission and either resumes an in-progress session or
// creates a new one, resolving the first visible page in either case.
func (c *Controller) Start(ctx context.Context, req admission.Request) (StartResult, error) {
	result, err := c.admitter.Admit(ctx, req, c.idGen)
	if err != nil {
		return StartResult{}, err
	}

	survey, err := c.surveys.GetPublished(ctx, result.Session.SurveyID)
	if err != nil {
		return StartResult{}, fmt.Errorf("load published survey: %w", err)
	}

	firstPageID, err := c.firstVisiblePage(ctx, survey, result.Session.SessionID)
	if err != nil {
		return StartResult{}, err
	}

	if c.landingCounter != nil {
		c.landingCounter.Increment("landing:" + result.Session.CollectorID)
	}

	if !result.Resumed {
		ev := sessionEvent(models.EventSessionStarted, result.Session, map[string]any{"firstPageId": firstPageID})
		if err := c.sessions.MutateWithEvents(ctx, result.Session.SessionID, []models.OutboxEvent{ev}, func(sess *models.Session) {
			sess.CurrentPageID = firstPageID
		}); err != nil {
			return StartResult{}, fmt.Errorf("record session start: %w", err)
		}
	}

	closingSoon, err := c.closingSoon(ctx, survey)
	if err != nil {
		return StartResult{}, err
	}

	return StartResult{
		SessionID:   result.Session.SessionID,
		FirstPageID: firstPageID,
		IsResume:    result.Resumed,
		ClosingSoon: closingSoon,
	}, nil
}

// GetPageLayout resolves one page for a session currently IN_PROGRESS,
// along with the NAVIGATION-phase UI policy (spec.md §4.7/§4.8).
func (c *Controller) GetPageLayout(ctx context.Context, sessionID, pageID string) (PageLayout, error) {
	sess, err := c.sessions.Get(ctx, sessionID)
	if err != nil {
		return PageLayout{}, mapStoreErr(err)
	}
	if sess.Status != models.SessionInProgress {
		return PageLayout{}, ErrWrongStatus
	}

	survey, err := c.surveys.GetPublished(ctx, sess.SurveyID)
	if err != nil {
		return PageLayout{}, fmt.Errorf("load published survey: %w", err)
	}
	page, ok := findPage(survey, pageID)
	if !ok {
		return PageLayout{}, ErrNotFound
	}

	answers, err := c.answers.LoadAll(ctx, sessionID)
	if err != nil {
		return PageLayout{}, fmt.Errorf("load answers: %w", err)
	}

	idx := resolve.BuildIndex(survey)
	resolved := resolve.Page(idx, page, sessionID, answers, loopContextOf(sess))
	return PageLayout{Page: resolved, Navigation: settings.Navigation(survey.Settings)}, nil
}

// SubmitAnswers runs the full submit pipeline described in spec.md §4.8:
// validate, persist, check/reserve quota, route, and persist the next
// state, each terminal outcome finalizing or releasing quota and writing
// its outbox event in the same transaction as the state change.
func (c *Controller) SubmitAnswers(ctx context.Context, sessionID, pageID string, submitted []models.Answer) (SubmitResult, error) {
	sess, err := c.sessions.Get(ctx, sessionID)
	if err != nil {
		return SubmitResult{}, mapStoreErr(err)
	}
	if sess.Status != models.SessionInProgress {
		return SubmitResult{}, ErrWrongStatus
	}

	survey, err := c.surveys.GetPublished(ctx, sess.SurveyID)
	if err != nil {
		return SubmitResult{}, fmt.Errorf("load published survey: %w", err)
	}
	page, ok := findPage(survey, pageID)
	if !ok {
		return SubmitResult{}, ErrNotFound
	}
	idx := resolve.BuildIndex(survey)

	prior, err := c.answers.LoadAll(ctx, sessionID)
	if err != nil {
		return SubmitResult{}, fmt.Errorf("load prior answers: %w", err)
	}
	merged := mergeAnswers(prior, submitted)

	if violations := validate.Page(allQuestions(page), merged); len(violations) > 0 {
		return SubmitResult{}, toValidationError(violations, settings.Validation(survey.Settings))
	}

	now := c.now()
	submittedIDs := make([]string, 0, len(submitted))
	events := make([]models.OutboxEvent, 0, len(submitted)+1)
	for _, a := range submitted {
		submittedIDs = append(submittedIDs, a.QuestionID)
		events = append(events, answerEvent(sess, a))
	}

	if err := c.sessions.SubmitPage(ctx, sessionID, pageID, submitted, events, func(s *models.Session) {
		s.LastActivityAt = now
		s.ProgressData.PageHistory = appendUnique(s.ProgressData.PageHistory, pageID)
		if s.ProgressData.LastSubmitted == nil {
			s.ProgressData.LastSubmitted = map[string][]models.Answer{}
		}
		s.ProgressData.LastSubmitted[pageID] = submitted
	}); err != nil {
		return SubmitResult{}, fmt.Errorf("persist page answers: %w", err)
	}
	sess.LastActivityAt = now

	qm := quota.New(c.quotaStore, idx)

	ok, err = qm.CheckQuota(ctx, sess.SurveyID, merged)
	if err != nil {
		return SubmitResult{}, fmt.Errorf("check quota: %w", err)
	}
	if !ok {
		if err := c.terminateForOverquota(ctx, &sess); err != nil {
			return SubmitResult{}, err
		}
		return SubmitResult{}, ErrOverquota
	}

	reserve, err := qm.ReserveQuota(ctx, sess, merged)
	if err != nil {
		return SubmitResult{}, fmt.Errorf("reserve quota: %w", err)
	}
	if !reserve.Reserved {
		if err := c.terminateForOverquota(ctx, &sess); err != nil {
			return SubmitResult{}, err
		}
		return SubmitResult{}, ErrOverquota
	}

	r := router.New(idx, survey)
	outcome := r.Route(page, submittedIDs, merged, sess.RenderState.LoopState, loopContextOf(sess))

	return c.applyOutcome(ctx, &sess, qm, outcome)
}

// Complete finalizes quota and transitions a session to COMPLETED,
// triggering the completion-notification side effect, and returns the
// COMPLETION-phase policy the caller renders as postSurveySettings.
func (c *Controller) Complete(ctx context.Context, sessionID string) (settings.CompletionPolicy, error) {
	sess, err := c.sessions.Get(ctx, sessionID)
	if err != nil {
		return settings.CompletionPolicy{}, mapStoreErr(err)
	}
	if sess.Status != models.SessionInProgress {
		return settings.CompletionPolicy{}, ErrWrongStatus
	}

	survey, err := c.surveys.GetPublished(ctx, sess.SurveyID)
	if err != nil {
		return settings.CompletionPolicy{}, fmt.Errorf("load published survey: %w", err)
	}

	if err := c.completeSession(ctx, &sess, survey); err != nil {
		return settings.CompletionPolicy{}, err
	}

	prior, priorErr := c.sessions.FindActiveByRespondentHash(ctx, sess.SurveyID, sess.RespondentHash)
	priorExists := priorErr == nil && prior.SessionID != sess.SessionID && prior.Status == models.SessionCompleted
	return settings.Completion(survey.Settings, settings.CompletionInput{PriorSubmissionExists: priorExists}), nil
}

// Terminate releases quota and transitions a session to TERMINATED.
func (c *Controller) Terminate(ctx context.Context, sessionID, reason string) error {
	sess, err := c.sessions.Get(ctx, sessionID)
	if err != nil {
		return mapStoreErr(err)
	}
	if sess.Status != models.SessionInProgress {
		return ErrWrongStatus
	}

	idx := resolve.Index{}
	qm := quota.New(c.quotaStore, idx)
	if err := qm.ReleaseQuota(ctx, sess); err != nil {
		return fmt.Errorf("release quota: %w", err)
	}

	now := c.now()
	ev := sessionEvent(models.EventSessionTerminated, sess, map[string]any{"reason": reason})
	return c.sessions.MutateWithEvents(ctx, sessionID, []models.OutboxEvent{ev}, func(s *models.Session) {
		s.Status = models.SessionTerminated
		s.FinalizedAt = &now
		s.TerminationReason = reason
	})
}

// Resume reloads the current page layout and recent progress for an
// IN_PROGRESS session.
func (c *Controller) Resume(ctx context.Context, sessionID string) (ResumeResult, error) {
	sess, err := c.sessions.Get(ctx, sessionID)
	if err != nil {
		return ResumeResult{}, mapStoreErr(err)
	}
	if sess.Status != models.SessionInProgress {
		return ResumeResult{}, ErrWrongStatus
	}

	layout, err := c.GetPageLayout(ctx, sessionID, sess.CurrentPageID)
	if err != nil {
		return ResumeResult{}, err
	}

	return ResumeResult{
		SessionID:     sessionID,
		CurrentPageID: sess.CurrentPageID,
		PageData:      layout,
		ProgressData:  sess.ProgressData,
	}, nil
}

// Status reports a session's summary, including its collector.
func (c *Controller) Status(ctx context.Context, sessionID string) (StatusResult, error) {
	sess, err := c.sessions.Get(ctx, sessionID)
	if err != nil {
		return StatusResult{}, mapStoreErr(err)
	}

	survey, err := c.surveys.GetPublished(ctx, sess.SurveyID)
	if err != nil {
		return StatusResult{}, fmt.Errorf("load published survey: %w", err)
	}
	firstPageID, err := c.firstVisiblePage(ctx, survey, sessionID)
	if err != nil {
		return StatusResult{}, err
	}
	collector, err := c.collectors.Get(ctx, sess.CollectorID)
	if err != nil {
		return StatusResult{}, fmt.Errorf("load collector: %w", err)
	}

	return StatusResult{
		Status:      sess.Status,
		StartedAt:   sess.StartedAt,
		FinalizedAt: sess.FinalizedAt,
		FirstPageID: firstPageID,
		Collector:   collector,
	}, nil
}

// applyOutcome persists whatever the router decided, finalizing or
// releasing quota as each branch requires.
func (c *Controller) applyOutcome(ctx context.Context, sess *models.Session, qm *quota.Manager, outcome router.Outcome) (SubmitResult, error) {
	switch {
	case outcome.Terminated:
		if err := qm.ReleaseQuota(ctx, *sess); err != nil {
			return SubmitResult{}, fmt.Errorf("release quota on termination: %w", err)
		}
		now := c.now()
		ev := sessionEvent(models.EventSessionTerminated, *sess, map[string]any{"reason": outcome.Reason})
		if err := c.sessions.MutateWithEvents(ctx, sess.SessionID, []models.OutboxEvent{ev}, func(s *models.Session) {
			s.Status = models.SessionTerminated
			s.FinalizedAt = &now
			s.TerminationReason = outcome.Reason
		}); err != nil {
			return SubmitResult{}, fmt.Errorf("persist termination: %w", err)
		}
		return SubmitResult{Terminated: true, Reason: outcome.Reason}, nil

	case outcome.Complete:
		survey, err := c.surveys.GetPublished(ctx, sess.SurveyID)
		if err != nil {
			return SubmitResult{}, fmt.Errorf("load published survey: %w", err)
		}
		if err := c.completeSession(ctx, sess, survey); err != nil {
			return SubmitResult{}, err
		}
		return SubmitResult{Complete: true}, nil

	default:
		if err := qm.FinalizeQuota(ctx, *sess); err != nil {
			return SubmitResult{}, fmt.Errorf("finalize quota: %w", err)
		}
		if err := c.sessions.MutateWithEvents(ctx, sess.SessionID, nil, func(s *models.Session) {
			s.CurrentPageID = outcome.NextPageID
			if outcome.LoopState != nil {
				s.RenderState.LoopState = outcome.LoopState
			} else if outcome.LoopCleared {
				s.RenderState.LoopState = nil
			}
		}); err != nil {
			return SubmitResult{}, fmt.Errorf("persist next page: %w", err)
		}
		return SubmitResult{NextPageID: outcome.NextPageID, NextQuestionID: outcome.NextQuestionID}, nil
	}
}

func (c *Controller) terminateForOverquota(ctx context.Context, sess *models.Session) error {
	idx := resolve.Index{}
	qm := quota.New(c.quotaStore, idx)
	if err := qm.ReleaseQuota(ctx, *sess); err != nil {
		return fmt.Errorf("release quota on overquota: %w", err)
	}
	now := c.now()
	ev := sessionEvent(models.EventSessionTerminated, *sess, map[string]any{"reason": "OVERQUOTA"})
	return c.sessions.MutateWithEvents(ctx, sess.SessionID, []models.OutboxEvent{ev}, func(s *models.Session) {
		s.Status = models.SessionTerminated
		s.FinalizedAt = &now
		s.TerminationReason = "OVERQUOTA"
	})
}

func (c *Controller) completeSession(ctx context.Context, sess *models.Session, survey models.Survey) error {
	idx := resolve.Index{}
	qm := quota.New(c.quotaStore, idx)
	if err := qm.FinalizeQuota(ctx, *sess); err != nil {
		return fmt.Errorf("finalize quota on completion: %w", err)
	}

	now := c.now()
	ev := sessionEvent(models.EventSessionCompleted, *sess, nil)
	if err := c.sessions.MutateWithEvents(ctx, sess.SessionID, []models.OutboxEvent{ev}, func(s *models.Session) {
		s.Status = models.SessionCompleted
		s.FinalizedAt = &now
	}); err != nil {
		return fmt.Errorf("persist completion: %w", err)
	}

	policy := settings.Completion(survey.Settings, settings.CompletionInput{})
	if policy.SendThankYouEmail && sess.Meta.UTM["email"] != "" {
		subject := "Thank you"
		body := policy.ThankYouEmailMessage
		if err := c.mailer.SendThankYou(ctx, sess.Meta.UTM["email"], subject, body); err != nil {
			// Best-effort per spec.md §7: a failed notification never
			// fails the committed completion.
			_ = err
		}
	}
	return nil
}

func (c *Controller) firstVisiblePage(ctx context.Context, survey models.Survey, sessionID string) (string, error) {
	idx := resolve.BuildIndex(survey)
	r := router.New(idx, survey)
	outcome := r.FirstPage(expr.Context{QuestionIDMap: idx.VariableMap})
	if outcome.Complete {
		return "", ErrNotFound
	}
	return outcome.NextPageID, nil
}

func (c *Controller) closingSoon(ctx context.Context, survey models.Survey) (bool, error) {
	idx := resolve.Index{}
	qm := quota.New(c.quotaStore, idx)
	return qm.ShouldCloseSurvey(ctx, survey)
}

func mapStoreErr(err error) error {
	if errors.Is(err, store.ErrNotFound) {
		return ErrNotFound
	}
	return err
}

func findPage(survey models.Survey, pageID string) (models.Page, bool) {
	for _, p := range survey.Pages {
		if p.PageID == pageID {
			return p, true
		}
	}
	return models.Page{}, false
}

func allQuestions(page models.Page) []models.Question {
	qs := append([]models.Question{}, page.Questions...)
	for _, g := range page.Groups {
		qs = append(qs, g.Questions...)
	}
	return qs
}

func mergeAnswers(prior map[string]models.AnswerValue, submitted []models.Answer) map[string]models.AnswerValue {
	merged := make(map[string]models.AnswerValue, len(prior)+len(submitted))
	for k, v := range prior {
		merged[k] = v
	}
	for _, a := range submitted {
		merged[a.QuestionID] = a.Value
	}
	return merged
}

func appendUnique(history []string, pageID string) []string {
	for _, p := range history {
		if p == pageID {
			return history
		}
	}
	return append(history, pageID)
}

func loopContextOf(sess models.Session) map[string]any {
	if sess.RenderState.LoopState == nil {
		return nil
	}
	return sess.RenderState.LoopState.CurrentItem
}

func sessionEvent(t models.EventType, sess models.Session, payload map[string]any) models.OutboxEvent {
	return models.OutboxEvent{
		EventID:   uuid.NewString(),
		Type:      t,
		TenantID:  sess.TenantID,
		SurveyID:  sess.SurveyID,
		SessionID: sess.SessionID,
		Payload:   payload,
		CreatedAt: time.Now(),
	}
}

// answerEvent builds the per-answer outbox row submitAnswers emits
// alongside the page persist.
func answerEvent(sess models.Session, a models.Answer) models.OutboxEvent {
	return models.OutboxEvent{
		EventID:   uuid.NewString(),
		Type:      models.EventAnswerUpserted,
		TenantID:  sess.TenantID,
		SurveyID:  sess.SurveyID,
		SessionID: sess.SessionID,
		Payload:   map[string]any{"questionId": a.QuestionID, "pageId": a.PageID},
		CreatedAt: time.Now(),
	}
}

// toValidationError converts validator violations to the API-facing shape,
// applying the VALIDATION phase's custom-message override (spec.md §4.7)
// over each violation's default message when the survey configures one.
func toValidationError(violations []validate.Violation, policy settings.ValidationPolicy) *ValidationError {
	out := make([]Violation, len(violations))
	for i, v := range violations {
		msg := v.Message
		if policy.CustomMessage != "" {
			msg = policy.CustomMessage
		}
		out[i] = Violation{QuestionID: v.QuestionID, Code: v.Code, Message: msg, Field: v.Field}
	}
	return &ValidationError{Violations: out}
}
