package models

import "time"

// CollectorType is the distribution channel kind.
type CollectorType string

const (
	CollectorPublic     CollectorType = "PUBLIC"
	CollectorSingleUse  CollectorType = "SINGLE_USE"
	CollectorInternal   CollectorType = "INTERNAL"
	CollectorPanel      CollectorType = "PANEL"
)

// Collector is the distribution endpoint respondents enter through.
type Collector struct {
	CollectorID      string
	SurveyID         string
	Slug             string
	Type             CollectorType
	OpenAt           *time.Time
	CloseAt          *time.Time
	MaxResponses     int
	AllowTestMode    bool
	TestResponseMode bool
	BlockDevices     []string // device fingerprints/IPs pre-blocked
}

// Invite is a single-use token owned exclusively by a SINGLE_USE collector.
type Invite struct {
	InviteID    string
	CollectorID string
	Token       string
	Email       string
	ExternalID  string
	ExpiresAt   *time.Time
	ConsumedAt  *time.Time
}

// Consumed reports whether the invite has already been used.
func (i Invite) Consumed() bool {
	return i.ConsumedAt != nil
}

// Expired reports whether the invite is past its expiry.
func (i Invite) Expired(now time.Time) bool {
	return i.ExpiresAt != nil && now.After(*i.ExpiresAt)
}
