package models

import "time"

// SessionStatus is the respondent's progress through the state machine
// described in spec.md §2: CREATED → IN_PROGRESS → (COMPLETED | TERMINATED | ABANDONED).
type SessionStatus string

const (
	SessionCreated     SessionStatus = "CREATED"
	SessionInProgress  SessionStatus = "IN_PROGRESS"
	SessionCompleted   SessionStatus = "COMPLETED"
	SessionTerminated  SessionStatus = "TERMINATED"
	SessionAbandoned   SessionStatus = "ABANDONED"
)

// SessionMeta captures device/network context gathered at admission time.
type SessionMeta struct {
	Device string
	IP     string
	UA     string
	Geo    string
	UTM    map[string]string
}

// LoopState is the router's working state for an active loop battery,
// stored in RenderState.LoopState (spec.md §9 "Loop state").
type LoopState struct {
	BatteryID        string
	StartPageID      string
	EndPageID        string
	CurrentIteration int
	TotalItems       int
	CurrentItem      map[string]any
}

// RenderState is the per-session cache of resolved page layouts and loop state.
type RenderState struct {
	Pages     map[string]ResolvedPage // keyed by pageId
	LoopState *LoopState
}

// ProgressData tracks page history and the last-submitted snapshot for resume.
type ProgressData struct {
	PageHistory    []string
	LastSubmitted  map[string][]Answer // pageId -> answers
}

// Session is one respondent's pass through a survey.
type Session struct {
	TenantID        string
	SurveyID        string
	CollectorID     string
	SessionID       string
	Status          SessionStatus
	StartedAt       time.Time
	FinalizedAt     *time.Time
	CurrentPageID   string
	LastActivityAt  time.Time
	Meta            SessionMeta
	RespondentHash  string
	RenderState     RenderState
	ProgressData    ProgressData
	TerminationReason string
}

// AnswerValue is a tagged union over every question-kind value shape.
// Exactly one "family" of fields is expected to be populated per question
// type; the validator and expression evaluator dispatch on Question.Type,
// not on which fields happen to be set.
type AnswerValue struct {
	Choices       []string
	TextValue     string
	NumericValue  *float64
	DecimalValue  *float64
	BooleanValue  *bool
	EmailValue    string
	PhoneValue    string
	URLValue      string
	DateValue     *time.Time
	TimeValue     string // "HH:MM" or "HH:MM:SS"
	FileURLs      []string
	SignatureURL  string
	PaymentID     string
	PaymentStatus string
	JSONValue     map[string]any
	// ConstantSumValues holds the per-option numeric allocation for
	// CONSTANT_SUM questions, keyed by option value.
	ConstantSumValues map[string]float64
	// RankValues holds the jsonValue-array-of-ranks for RANK/GROUP_RANK
	// questions, option value -> rank position (1-based).
	RankValues map[string]int
}

// Empty reports whether the value carries no respondent input at all,
// per spec.md §4.3's uniform "empty" definition across the value-union.
func (v AnswerValue) Empty() bool {
	switch {
	case len(v.Choices) > 0:
		return false
	case v.TextValue != "":
		return false
	case v.NumericValue != nil:
		return false
	case v.DecimalValue != nil:
		return false
	case v.BooleanValue != nil:
		return false
	case v.EmailValue != "", v.PhoneValue != "", v.URLValue != "":
		return false
	case v.DateValue != nil:
		return false
	case v.TimeValue != "":
		return false
	case len(v.FileURLs) > 0:
		return false
	case v.SignatureURL != "":
		return false
	case v.PaymentID != "":
		return false
	case len(v.JSONValue) > 0:
		return false
	case len(v.ConstantSumValues) > 0:
		return false
	case len(v.RankValues) > 0:
		return false
	default:
		return true
	}
}

// Answer is uniquely (sessionId, questionId).
type Answer struct {
	SessionID  string
	QuestionID string
	PageID     string
	Value      AnswerValue
	AnsweredAt time.Time
}

// ResolvedOption is a rendered, order-applied option/item/scale.
type ResolvedOption struct {
	Value    string
	Label    string
	Exclusive bool
	ImageURL string
}

// ResolvedQuestion is a fully rendered question ready for presentation.
type ResolvedQuestion struct {
	QuestionID string
	Type       QuestionType
	Required   bool
	IsVisible  bool
	Options    []ResolvedOption
	Items      []ResolvedOption
	Scales     []ResolvedOption
	Config     QuestionConfig
}

// ResolvedGroup is a fully rendered group (or the standalone pseudo-group).
type ResolvedGroup struct {
	GroupID     string
	Title       string
	Description string
	IsVisible   bool
	Questions   []ResolvedQuestion
}

// ResolvedPage is the output of the resolver (spec.md §4.4).
type ResolvedPage struct {
	PageID      string
	IsVisible   bool
	Title       string
	Description string
	Groups      []ResolvedGroup
}
