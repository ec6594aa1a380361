// Package admission is the entry point a respondent's first request goes
// through: resolve the collector/invite behind a slug or token, run the
// ADMISSION policy checks of internal/settings, and decide whether to
// reuse an in-progress session or start a new one (spec.md §4.2, §4.7).
package admission

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"fmt"
	"time"

	"github.com/surveyrt/runtime/internal/geoip"
	"github.com/surveyrt/runtime/internal/models"
	"github.com/surveyrt/runtime/internal/settings"
	"github.com/surveyrt/runtime/internal/store"
)

var (
	ErrCollectorNotFound = errors.New("admission: collector not found")
	ErrCollectorClosed   = errors.New("admission: collector is closed")
	ErrCollectorFull     = errors.New("admission: collector has reached max responses")
	ErrInviteInvalid     = errors.New("admission: invite token is invalid, expired, or already used")
)

// BlockedError is returned when every collector check passes but the
// ADMISSION settings phase rejects the respondent (password, referral,
// schedule, duplicate submission, VPN) — the typed reason spec.md §7
// requires callers to surface as a 403.
type BlockedError struct {
	Reason string
}

func (e *BlockedError) Error() string { return "admission blocked: " + e.Reason }

// Request carries everything a respondent's landing request supplies.
type Request struct {
	Slug            string
	InviteToken     string // required when the collector is SINGLE_USE
	PasswordAttempt string
	RefererURL      string
	IP              string
	Device          string
	UserAgent       string
	UTM             map[string]string
	Now             time.Time
}

// Result is the outcome of a successful admission: either a brand-new
// session or an existing one the respondent may resume.
type Result struct {
	Session models.Session
	Resumed bool
}

// CollectorStore is the narrow slice of internal/store.CollectorStore this
// package needs.
type CollectorStore interface {
	GetBySlug(ctx context.Context, slug string) (models.Collector, error)
	CountSessions(ctx context.Context, collectorID string) (int, error)
}

// InviteStore is the narrow slice of internal/store.InviteStore this
// package needs.
type InviteStore interface {
	GetByToken(ctx context.Context, token string) (models.Invite, error)
	Consume(ctx context.Context, inviteID string) (bool, error)
}

// SurveyStore is the narrow slice of internal/store.SurveyStore this
// package needs.
type SurveyStore interface {
	GetPublished(ctx context.Context, surveyID string) (models.Survey, error)
}

// SessionStore is the narrow slice of internal/store.SessionStore this
// package needs.
type SessionStore interface {
	FindActiveByRespondentHash(ctx context.Context, surveyID, respondentHash string) (models.Session, error)
	Create(ctx context.Context, sess models.Session) error
}

type Service struct {
	collectors CollectorStore
	invites    InviteStore
	surveys    SurveyStore
	sessions   SessionStore
	geo        geoip.Provider
}

func NewService(collectors CollectorStore, invites InviteStore, surveys SurveyStore, sessions SessionStore, geo geoip.Provider) *Service {
	if geo == nil {
		geo = geoip.NoopProvider{}
	}
	return &Service{collectors: collectors, invites: invites, surveys: surveys, sessions: sessions, geo: geo}
}

// Admit resolves the collector, runs every ADMISSION check, and returns
// either a resumed or a freshly created session.
func (s *Service) Admit(ctx context.Context, req Request, newSessionID func() string) (Result, error) {
	collector, err := s.collectors.GetBySlug(ctx, req.Slug)
	if errors.Is(err, store.ErrNotFound) {
		return Result{}, ErrCollectorNotFound
	}
	if err != nil {
		return Result{}, fmt.Errorf("load collector: %w", err)
	}

	var invite *models.Invite
	if collector.Type == models.CollectorSingleUse {
		inv, err := s.resolveInvite(ctx, collector.CollectorID, req.InviteToken, req.Now)
		if err != nil {
			return Result{}, err
		}
		invite = &inv
	}

	if collector.OpenAt != nil && req.Now.Before(*collector.OpenAt) {
		return Result{}, ErrCollectorClosed
	}
	if collector.CloseAt != nil && req.Now.After(*collector.CloseAt) {
		return Result{}, ErrCollectorClosed
	}
	if collector.MaxResponses > 0 {
		n, err := s.collectors.CountSessions(ctx, collector.CollectorID)
		if err != nil {
			return Result{}, fmt.Errorf("count collector sessions: %w", err)
		}
		if n >= collector.MaxResponses {
			return Result{}, ErrCollectorFull
		}
	}

	survey, err := s.surveys.GetPublished(ctx, collector.SurveyID)
	if err != nil {
		return Result{}, fmt.Errorf("load published survey: %w", err)
	}

	hash := respondentHash(collector.SurveyID, req.Device, req.IP)

	prior, priorErr := s.sessions.FindActiveByRespondentHash(ctx, collector.SurveyID, hash)
	priorExists := priorErr == nil

	geoLookup, err := s.geo.Lookup(ctx, req.IP)
	if err != nil {
		geoLookup = geoip.Lookup{}
	}

	verdict := settings.Admission(survey.Settings, settings.AdmissionInput{
		Now:                   req.Now,
		PasswordAttempt:       req.PasswordAttempt,
		RefererURL:            req.RefererURL,
		IsVPN:                 geoLookup.IsVPN,
		PriorSubmissionExists: priorExists && prior.Status == models.SessionCompleted,
	})
	if !verdict.CanProceed {
		return Result{}, &BlockedError{Reason: verdict.Reason}
	}

	if priorExists && prior.Status == models.SessionInProgress {
		return Result{Session: prior, Resumed: true}, nil
	}

	sess := models.Session{
		TenantID:       survey.TenantID,
		SurveyID:       survey.SurveyID,
		CollectorID:    collector.CollectorID,
		SessionID:      newSessionID(),
		Status:         models.SessionInProgress,
		StartedAt:      req.Now,
		LastActivityAt: req.Now,
		RespondentHash: hash,
		Meta: models.SessionMeta{
			Device: req.Device, IP: req.IP, UA: req.UserAgent, Geo: geoLookup.Country, UTM: req.UTM,
		},
	}
	if err := s.sessions.Create(ctx, sess); err != nil {
		return Result{}, fmt.Errorf("create session: %w", err)
	}

	if invite != nil {
		if _, err := s.invites.Consume(ctx, invite.InviteID); err != nil {
			return Result{}, fmt.Errorf("consume invite: %w", err)
		}
	}

	return Result{Session: sess, Resumed: false}, nil
}

func (s *Service) resolveInvite(ctx context.Context, collectorID, token string, now time.Time) (models.Invite, error) {
	if token == "" {
		return models.Invite{}, ErrInviteInvalid
	}
	invite, err := s.invites.GetByToken(ctx, token)
	if errors.Is(err, store.ErrNotFound) {
		return models.Invite{}, ErrInviteInvalid
	}
	if err != nil {
		return models.Invite{}, fmt.Errorf("load invite: %w", err)
	}
	if invite.CollectorID != collectorID || invite.Consumed() || invite.Expired(now) {
		return models.Invite{}, ErrInviteInvalid
	}
	return invite, nil
}

// respondentHash fingerprints a respondent for multiple-submission and
// session-reuse checks without storing raw device/IP as the lookup key.
func respondentHash(surveyID, device, ip string) string {
	sum := sha256.Sum256([]byte(surveyID + "|" + device + "|" + ip))
	return hex.EncodeToString(sum[:])
}
