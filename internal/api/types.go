package api

import (
	"time"

	"github.com/surveyrt/runtime/internal/models"
	"github.com/surveyrt/runtime/internal/runtime"
)

// answerPayload is the wire shape of a single submitted answer, mirroring
// the question-kind value union of models.AnswerValue.
type answerPayload struct {
	QuestionID        string             `json:"questionId"`
	Choices           []string           `json:"choices,omitempty"`
	TextValue         string             `json:"textValue,omitempty"`
	NumericValue      *float64           `json:"numericValue,omitempty"`
	DecimalValue      *float64           `json:"decimalValue,omitempty"`
	BooleanValue      *bool              `json:"booleanValue,omitempty"`
	EmailValue        string             `json:"emailValue,omitempty"`
	PhoneValue        string             `json:"phoneValue,omitempty"`
	URLValue          string             `json:"urlValue,omitempty"`
	DateValue         *time.Time         `json:"dateValue,omitempty"`
	TimeValue         string             `json:"timeValue,omitempty"`
	FileURLs          []string           `json:"fileUrls,omitempty"`
	SignatureURL      string             `json:"signatureUrl,omitempty"`
	PaymentID         string             `json:"paymentId,omitempty"`
	PaymentStatus     string             `json:"paymentStatus,omitempty"`
	JSONValue         map[string]any     `json:"jsonValue,omitempty"`
	ConstantSumValues map[string]float64 `json:"constantSumValues,omitempty"`
	RankValues        map[string]int     `json:"rankValues,omitempty"`
}

func (p answerPayload) toAnswer(sessionID, pageID string, now time.Time) models.Answer {
	return models.Answer{
		SessionID:  sessionID,
		QuestionID: p.QuestionID,
		PageID:     pageID,
		AnsweredAt: now,
		Value: models.AnswerValue{
			Choices:           p.Choices,
			TextValue:         p.TextValue,
			NumericValue:      p.NumericValue,
			DecimalValue:      p.DecimalValue,
			BooleanValue:      p.BooleanValue,
			EmailValue:        p.EmailValue,
			PhoneValue:        p.PhoneValue,
			URLValue:          p.URLValue,
			DateValue:         p.DateValue,
			TimeValue:         p.TimeValue,
			FileURLs:          p.FileURLs,
			SignatureURL:      p.SignatureURL,
			PaymentID:         p.PaymentID,
			PaymentStatus:     p.PaymentStatus,
			JSONValue:         p.JSONValue,
			ConstantSumValues: p.ConstantSumValues,
			RankValues:        p.RankValues,
		},
	}
}

type submitAnswersRequest struct {
	PageID  string          `json:"pageId" binding:"required"`
	Answers []answerPayload `json:"answers"`
}

type terminateRequest struct {
	Reason string `json:"reason"`
}

type startResponse struct {
	SessionID   string `json:"sessionId"`
	FirstPageID string `json:"firstPageId"`
	IsResume    bool   `json:"isResume,omitempty"`
	ClosingSoon bool   `json:"closingSoon,omitempty"`
}

type submitAnswersResponse struct {
	Terminated bool   `json:"terminated,omitempty"`
	Reason     string `json:"reason,omitempty"`
	Complete   bool   `json:"complete,omitempty"`
	Next       *struct {
		PageID     string `json:"pageId"`
		QuestionID string `json:"questionId,omitempty"`
	} `json:"next,omitempty"`
}

type completeResponse struct {
	Success            bool       `json:"success"`
	PostSurveySettings postSurvey `json:"postSurveySettings"`
}

type postSurvey struct {
	RedirectURL       string `json:"redirectUrl,omitempty"`
	CompletionMessage string `json:"completionMessage,omitempty"`
	ShowResults       bool   `json:"showResults,omitempty"`
}

type resumeResponse struct {
	SessionID     string             `json:"sessionId"`
	CurrentPageID string             `json:"currentPageId"`
	PageData      pageLayoutResponse `json:"pageData"`
	ProgressData  progressDataDTO    `json:"progressData"`
}

// pageLayoutResponse is the wire shape of getPageLayout's result: the resolved
// page content plus the NAVIGATION-phase UI policy.
type pageLayoutResponse struct {
	Page       models.ResolvedPage `json:"page"`
	Navigation navigationDTO       `json:"navigation"`
}

type navigationDTO struct {
	ShowBackButton     bool `json:"showBackButton"`
	ShowProgressBar    bool `json:"showProgressBar"`
	ShowQuestionNumber bool `json:"showQuestionNumber"`
	ShowPageNumber     bool `json:"showPageNumber"`
	AllowFinishLater   bool `json:"allowFinishLater"`
}

func pageLayoutDTO(l runtime.PageLayout) pageLayoutResponse {
	return pageLayoutResponse{
		Page: l.Page,
		Navigation: navigationDTO{
			ShowBackButton:     l.Navigation.ShowBackButton,
			ShowProgressBar:    l.Navigation.ShowProgressBar,
			ShowQuestionNumber: l.Navigation.ShowQuestionNumber,
			ShowPageNumber:     l.Navigation.ShowPageNumber,
			AllowFinishLater:   l.Navigation.AllowFinishLater,
		},
	}
}

type progressDataDTO struct {
	PageHistory []string `json:"pageHistory"`
}

type statusResponse struct {
	Status      models.SessionStatus `json:"status"`
	StartedAt   time.Time            `json:"startedAt"`
	FinalizedAt *time.Time           `json:"finalizedAt,omitempty"`
	FirstPageID string               `json:"firstPageId"`
	Collector   collectorDTO         `json:"collector"`
}

type collectorDTO struct {
	CollectorID string              `json:"collectorId"`
	Slug        string              `json:"slug"`
	Type        models.CollectorType `json:"type"`
}

type violationDTO struct {
	QuestionID string `json:"questionId"`
	Code       string `json:"code"`
	Message    string `json:"message"`
}
