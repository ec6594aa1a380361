// Package settings implements the phase-gated policy engine of spec.md
// §4.7: four checkpoints (ADMISSION, NAVIGATION, VALIDATION, COMPLETION),
// each reading fields off models.SurveySettings. Admission is defensive:
// an unexpected internal error (a recovered panic) degrades to "allow"
// rather than blocking the respondent. A missing referer under a
// configured ReferralDomain is not such an error and blocks.
package settings

import (
	"net/url"
	"strings"
	"time"

	"github.com/surveyrt/runtime/internal/models"
)

// AdmissionInput carries everything the ADMISSION phase needs besides the
// survey's own settings — the pieces a caller (internal/admission) must
// gather from the request and from storage.
type AdmissionInput struct {
	Now                   time.Time
	PasswordAttempt        string
	RefererURL             string
	IsVPN                  bool
	PriorSubmissionExists  bool // a prior session already exists for this device/IP
}

// AdmissionResult is the ADMISSION phase's verdict.
type AdmissionResult struct {
	CanProceed bool
	Reason     string
}

// Admission runs every ADMISSION check and returns the first failure, or
// CanProceed=true if none fail. Per spec.md §4.7, any unexpected internal
// error degrades to CanProceed=true rather than blocking the session.
func Admission(s models.SurveySettings, in AdmissionInput) (result AdmissionResult) {
	defer func() {
		if recover() != nil {
			result = AdmissionResult{CanProceed: true}
		}
	}()
	return admission(s, in)
}

func admission(s models.SurveySettings, in AdmissionInput) AdmissionResult {
	if s.PasswordRequired && s.Password != "" && in.PasswordAttempt != s.Password {
		return AdmissionResult{Reason: "invalid_password"}
	}

	if s.ReferralDomain != "" {
		if !refererMatchesDomain(in.RefererURL, s.ReferralDomain) {
			return AdmissionResult{Reason: "referral_domain_mismatch"}
		}
	}

	if s.SurveyStartDate != nil && in.Now.Before(*s.SurveyStartDate) {
		return AdmissionResult{Reason: "not_yet_open"}
	}
	if s.SurveyEndDate != nil && in.Now.After(*s.SurveyEndDate) {
		return AdmissionResult{Reason: "closed"}
	}

	if preventsMultipleSubmissions(s) && in.PriorSubmissionExists {
		return AdmissionResult{Reason: "already_submitted"}
	}

	if s.BlockVPN && in.IsVPN {
		return AdmissionResult{Reason: "vpn_blocked"}
	}

	return AdmissionResult{CanProceed: true}
}

// refererMatchesDomain reports whether refererURL's lowercased host
// matches domain. An unparseable or empty referer degrades to "no
// match" (a hard block), since a configured referral requirement with no
// referer to check is itself the failure case.
func refererMatchesDomain(refererURL, domain string) bool {
	if refererURL == "" {
		return false
	}
	u, err := url.Parse(refererURL)
	if err != nil {
		return false
	}
	return strings.EqualFold(u.Hostname(), domain)
}

// preventsMultipleSubmissions takes the union of the "security" and
// "responses" phase fields — either one enables the policy (spec.md §9
// Open Question (c)).
func preventsMultipleSubmissions(s models.SurveySettings) bool {
	return s.PreventMultipleSubmits || s.PreventRepeatResponses || s.DeviceLockSubmission
}

// NavigationPolicy is the UI policy the NAVIGATION phase computes.
type NavigationPolicy struct {
	ShowBackButton     bool
	ShowProgressBar    bool
	ShowQuestionNumber bool
	ShowPageNumber     bool
	AllowFinishLater   bool
}

func Navigation(s models.SurveySettings) NavigationPolicy {
	return NavigationPolicy{
		ShowBackButton:     s.ShowBackButton,
		ShowProgressBar:    s.ShowProgressBar,
		ShowQuestionNumber: s.ShowQuestionNumber,
		ShowPageNumber:     s.ShowPageNumber,
		AllowFinishLater:   s.AllowFinishLater,
	}
}

// ValidationPolicy supplies the VALIDATION phase's overrides.
type ValidationPolicy struct {
	CustomMessage              string
	PreventMultipleSubmissions bool
}

func Validation(s models.SurveySettings) ValidationPolicy {
	return ValidationPolicy{
		CustomMessage:              s.CustomValidationMessage,
		PreventMultipleSubmissions: preventsMultipleSubmissions(s),
	}
}

// CompletionInput carries the post-submit multiple-submission recheck
// input, mirroring AdmissionInput's device/IP signal.
type CompletionInput struct {
	PriorSubmissionExists bool
}

// CompletionPolicy is the COMPLETION phase's verdict.
type CompletionPolicy struct {
	RedirectURL           string
	SendThankYouEmail    bool
	ThankYouEmailMessage string
	CompletionMessage    string
	ShowResults          bool
	BlockedRepeat        bool
}

func Completion(s models.SurveySettings, in CompletionInput) CompletionPolicy {
	return CompletionPolicy{
		RedirectURL:          s.RedirectURL,
		SendThankYouEmail:    s.SendThankYouEmail,
		ThankYouEmailMessage: s.ThankYouEmailMessage,
		CompletionMessage:    s.CompletionMessage,
		ShowResults:          s.ShowResults,
		BlockedRepeat:        preventsMultipleSubmissions(s) && in.PriorSubmissionExists,
	}
}
