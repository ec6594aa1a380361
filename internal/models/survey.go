// Package models holds the runtime's shared domain types.
package models

import "time"

// OrderMode controls how a page, group, or question's children are sequenced.
type OrderMode string

const (
	OrderSequential  OrderMode = "SEQUENTIAL"
	OrderRandom      OrderMode = "RANDOM"
	OrderGroupRandom OrderMode = "GROUP_RANDOM"
	OrderWeighted    OrderMode = "WEIGHTED"
)

// QuestionType is the closed enum of supported question kinds.
type QuestionType string

const (
	QuestionSingleChoice   QuestionType = "SINGLE_CHOICE"
	QuestionMultipleChoice QuestionType = "MULTIPLE_CHOICE"
	QuestionDropdown       QuestionType = "DROPDOWN"
	QuestionText           QuestionType = "TEXT"
	QuestionTextarea       QuestionType = "TEXTAREA"
	QuestionNumber         QuestionType = "NUMBER"
	QuestionDecimal        QuestionType = "DECIMAL"
	QuestionSlider         QuestionType = "SLIDER"
	QuestionOpinionScale   QuestionType = "OPINION_SCALE"
	QuestionDate           QuestionType = "DATE"
	QuestionTime           QuestionType = "TIME"
	QuestionDateTime       QuestionType = "DATETIME"
	QuestionEmail          QuestionType = "EMAIL"
	QuestionPhone          QuestionType = "PHONE"
	QuestionURL            QuestionType = "URL"
	QuestionFileUpload     QuestionType = "FILE_UPLOAD"
	QuestionSignature      QuestionType = "SIGNATURE"
	QuestionConsent        QuestionType = "CONSENT"
	QuestionContactForm    QuestionType = "CONTACT_FORM"
	QuestionMatrixSingle   QuestionType = "MATRIX_SINGLE"
	QuestionMatrixMultiple QuestionType = "MATRIX_MULTIPLE"
	QuestionBipolarMatrix  QuestionType = "BIPOLAR_MATRIX"
	QuestionRank           QuestionType = "RANK"
	QuestionGroupRank      QuestionType = "GROUP_RANK"
	QuestionPictureChoice  QuestionType = "PICTURE_CHOICE"
	QuestionConstantSum    QuestionType = "CONSTANT_SUM"
	QuestionPayment        QuestionType = "PAYMENT"
	QuestionDescriptive    QuestionType = "DESCRIPTIVE"
)

// OptionsSource tells the resolver where a question's options come from.
type OptionsSource string

const (
	OptionsSourceOwn          OptionsSource = "OWN"
	OptionsSourceCarryForward OptionsSource = "CARRY_FORWARD"
)

// SurveyCloseBehavior drives shouldCloseSurvey (spec.md §4.5).
type SurveyCloseBehavior string

const (
	CloseManual     SurveyCloseBehavior = "MANUAL"
	CloseOnTarget   SurveyCloseBehavior = "ON_TARGET"
	CloseOnSchedule SurveyCloseBehavior = "ON_SCHEDULE"
)

// Survey is the top-level, versioned container of a questionnaire.
type Survey struct {
	TenantID        string
	SurveyID        string
	Version         int
	DefaultLanguage string
	Published       bool
	CloseBehavior   SurveyCloseBehavior
	HardCloseTarget int // completed-session target; 0 = unset
	Settings        SurveySettings
	Pages           []Page
	Expressions     []Expression
	Jumps           []Jump
	LoopBatteries   []LoopBattery
}

// SurveySettings is the policy bag read by the settings engine (spec.md §4.7).
type SurveySettings struct {
	// Admission
	PasswordRequired      bool
	Password              string
	ReferralDomain         string
	SurveyStartDate        *time.Time
	SurveyEndDate          *time.Time
	BlockVPN               bool
	PreventMultipleSubmits bool // "security" phase field
	PreventRepeatResponses bool // "responses" phase field — union with above, see settings engine
	DeviceLockSubmission   bool

	// Navigation
	ShowBackButton     bool
	ShowProgressBar    bool
	ShowQuestionNumber bool
	ShowPageNumber     bool
	AllowFinishLater   bool

	// Validation
	CustomValidationMessage string

	// Completion
	RedirectURL          string
	SendThankYouEmail    bool
	ThankYouEmailMessage string
	CompletionMessage    string
	ShowResults          bool

	// Incomplete-session TTL; closed by background job when exceeded.
	IncompleteSessionTTL time.Duration
}

// Page is a zero-based ordered unit of a survey.
type Page struct {
	PageID               string
	SurveyID             string
	Index                int
	TitleTemplate        string
	DescriptionTemplate  string
	VisibleIfExpressionID string
	GroupOrderMode       OrderMode
	QuestionOrderMode    OrderMode
	Groups               []Group
	// Questions directly on the page with no group (the "standalone" pseudo-group).
	Questions []Question
}

// Group belongs to a page and groups a set of questions together.
type Group struct {
	GroupID               string
	PageID                string
	Index                 int
	Key                   string
	TitleTemplate         string
	DescriptionTemplate   string
	VisibleIfExpressionID string
	InnerOrderMode        OrderMode
	Questions             []Question
}

// Question belongs to a page, and optionally to a group.
type Question struct {
	QuestionID             string
	PageID                 string
	GroupID                string // empty if standalone
	VariableName           string
	Type                    QuestionType
	Required                bool
	VisibleIfExpressionID   string
	TerminateIfExpressionID string
	CarryForwardQuestionID  string
	CarryForwardFilterExprID string
	OptionsSource           OptionsSource
	OptionOrderMode          OrderMode

	Options []Option
	Items   []Item  // matrix rows
	Scales  []Scale // matrix columns

	Config QuestionConfig
}

// QuestionConfig holds per-kind configuration fields. Only the fields
// relevant to a question's Type are populated; the rest are zero values.
type QuestionConfig struct {
	MinLength  *int
	MaxLength  *int
	Pattern    string
	MinValue   *float64
	MaxValue   *float64
	MaxFiles   *int
	MaxItems   *int
	TotalPoints float64
	AllowZero   bool
	MinSelections *int
	MaxSelections *int
	URLProtocol   string
	MinDate       *time.Time
	MaxDate       *time.Time
	ContactFields []ContactField
}

// ContactField enables one input of a CONTACT_FORM question.
type ContactField struct {
	Name     string // "name", "email", "phone", "company", "address"
	Enabled  bool
	Required bool
}

// Option is an ordered, possibly-carried-forward child of a choice-type question.
type Option struct {
	OptionID              string
	QuestionID            string
	Index                 int
	Value                 string
	Label                 string
	VisibleIfExpressionID string
	Exclusive             bool
	GroupKey              string
	Weight                float64
	ImageURL              string
}

// Item is a matrix row.
type Item struct {
	ItemID                string
	QuestionID            string
	Index                 int
	Label                 string
	VisibleIfExpressionID string
}

// Scale is a matrix column.
type Scale struct {
	ScaleID               string
	QuestionID            string
	Index                 int
	Label                 string
	Value                 string
	VisibleIfExpressionID string
}

// Expression is a DSL string referenced by id from many owners.
type Expression struct {
	ExpressionID string
	SurveyID     string
	Source       string
	Description  string
}

// Jump is a page- or question-level conditional navigation rule.
type Jump struct {
	JumpID          string
	SurveyID        string
	FromPageID      string // set for page-level jumps
	FromQuestionID  string // set for question-level jumps
	ToPageID        string
	ToQuestionID    string
	Priority        int
	ConditionExprID string
}

// LoopSource tells the router where loop iteration items come from.
type LoopSource string

const (
	LoopSourceAnswer  LoopSource = "ANSWER"
	LoopSourceDataset LoopSource = "DATASET"
)

// LoopBattery bounds a repeated block of pages.
type LoopBattery struct {
	BatteryID         string
	SurveyID          string
	StartPageID       string
	EndPageID         string
	Source            LoopSource
	SourceQuestionID  string // when Source == LoopSourceAnswer
	Dataset           []map[string]any // when Source == LoopSourceDataset
	MaxItems          int
	Randomize         bool
	SampleWithoutRepl bool
}
