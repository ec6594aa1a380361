package api

import (
	"net/http"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/surveyrt/runtime/internal/admission"
	"github.com/surveyrt/runtime/internal/models"
)

func toAnswers(payloads []answerPayload, sessionID, pageID string, now time.Time) []models.Answer {
	out := make([]models.Answer, len(payloads))
	for i, p := range payloads {
		out[i] = p.toAnswer(sessionID, pageID, now)
	}
	return out
}

// startHandler handles POST /runtime/start?slug=<slug>[&t=<token>].
func (s *Server) startHandler(c *gin.Context) {
	req := admission.Request{
		Slug:        c.Query("slug"),
		InviteToken: c.Query("t"),
		RefererURL:  c.Request.Referer(),
		IP:          c.ClientIP(),
		UserAgent:   c.Request.UserAgent(),
		Now:         time.Now(),
	}

	result, err := s.controller.Start(c.Request.Context(), req)
	if err != nil {
		writeError(c, err)
		return
	}

	c.JSON(http.StatusOK, startResponse{
		SessionID:   result.SessionID,
		FirstPageID: result.FirstPageID,
		IsResume:    result.IsResume,
		ClosingSoon: result.ClosingSoon,
	})
}

// layoutHandler handles GET /runtime/:sessionId/pages/:pageId/layout.
func (s *Server) layoutHandler(c *gin.Context) {
	layout, err := s.controller.GetPageLayout(c.Request.Context(), c.Param("sessionId"), c.Param("pageId"))
	if err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, pageLayoutDTO(layout))
}

// submitAnswersHandler handles POST /runtime/:sessionId/answers.
func (s *Server) submitAnswersHandler(c *gin.Context) {
	var body submitAnswersRequest
	if err := c.ShouldBindJSON(&body); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	sessionID := c.Param("sessionId")
	now := time.Now()

	result, err := s.controller.SubmitAnswers(c.Request.Context(), sessionID, body.PageID, toAnswers(body.Answers, sessionID, body.PageID, now))
	if err != nil {
		writeError(c, err)
		return
	}

	resp := submitAnswersResponse{Terminated: result.Terminated, Reason: result.Reason, Complete: result.Complete}
	if !result.Terminated && !result.Complete {
		resp.Next = &struct {
			PageID     string `json:"pageId"`
			QuestionID string `json:"questionId,omitempty"`
		}{PageID: result.NextPageID, QuestionID: result.NextQuestionID}
	}
	c.JSON(http.StatusOK, resp)
}

// completeHandler handles POST /runtime/:sessionId/complete.
func (s *Server) completeHandler(c *gin.Context) {
	policy, err := s.controller.Complete(c.Request.Context(), c.Param("sessionId"))
	if err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, completeResponse{
		Success: true,
		PostSurveySettings: postSurvey{
			RedirectURL:       policy.RedirectURL,
			CompletionMessage: policy.CompletionMessage,
			ShowResults:       policy.ShowResults,
		},
	})
}

// terminateHandler handles POST /runtime/:sessionId/terminate.
func (s *Server) terminateHandler(c *gin.Context) {
	var body terminateRequest
	_ = c.ShouldBindJSON(&body)

	if err := s.controller.Terminate(c.Request.Context(), c.Param("sessionId"), body.Reason); err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"success": true})
}

// resumeHandler handles GET /runtime/:sessionId/resume.
func (s *Server) resumeHandler(c *gin.Context) {
	result, err := s.controller.Resume(c.Request.Context(), c.Param("sessionId"))
	if err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, resumeResponse{
		SessionID:     result.SessionID,
		CurrentPageID: result.CurrentPageID,
		PageData:      pageLayoutDTO(result.PageData),
		ProgressData:  progressDataDTO{PageHistory: result.ProgressData.PageHistory},
	})
}

// statusHandler handles GET /runtime/:sessionId/status.
func (s *Server) statusHandler(c *gin.Context) {
	result, err := s.controller.Status(c.Request.Context(), c.Param("sessionId"))
	if err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, statusResponse{
		Status:      result.Status,
		StartedAt:   result.StartedAt,
		FinalizedAt: result.FinalizedAt,
		FirstPageID: result.FirstPageID,
		Collector: collectorDTO{
			CollectorID: result.Collector.CollectorID,
			Slug:        result.Collector.Slug,
			Type:        result.Collector.Type,
		},
	})
}

// healthHandler handles GET /health.
func (s *Server) healthHandler(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{"status": "ok"})
}
