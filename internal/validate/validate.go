// Package validate implements the per-question-kind constraint checking
// described in spec.md §4.3: one function per question kind, each
// appending to a shared violation list rather than failing fast.
package validate

import (
	"fmt"
	"math"
	"regexp"

	"github.com/surveyrt/runtime/internal/models"
)

// Violation is one failed constraint on one question.
type Violation struct {
	QuestionID string
	Code       string
	Message    string
	Field      string // set only for CONTACT_FORM sub-field violations
}

var (
	emailPattern = regexp.MustCompile(`^[^\s@]+@[^\s@]+\.[^\s@]+$`)
	phonePattern = regexp.MustCompile(`^\+?[0-9 ()\-.]{6,20}$`)
	urlPattern   = regexp.MustCompile(`^[a-zA-Z][a-zA-Z0-9+.\-]*://[^\s]+$`)
)

// Page validates every answer against its question's configuration.
// Unanswered, non-required questions are skipped entirely; an empty
// list return means the page is valid.
func Page(questions []models.Question, answers map[string]models.AnswerValue) []Violation {
	var out []Violation
	for _, q := range questions {
		av := answers[q.QuestionID]
		if av.Empty() {
			if q.Required {
				out = append(out, Violation{QuestionID: q.QuestionID, Code: "REQUIRED", Message: "this question requires an answer"})
			}
			continue
		}
		out = append(out, question(q, av)...)
	}
	return out
}

func question(q models.Question, av models.AnswerValue) []Violation {
	switch q.Type {
	case models.QuestionSingleChoice, models.QuestionDropdown, models.QuestionPictureChoice:
		return singleChoice(q, av)
	case models.QuestionMultipleChoice:
		return multipleChoice(q, av)
	case models.QuestionText, models.QuestionTextarea:
		return text(q, av)
	case models.QuestionEmail:
		return email(q, av)
	case models.QuestionPhone:
		return phone(q, av)
	case models.QuestionURL:
		return urlAnswer(q, av)
	case models.QuestionNumber, models.QuestionDecimal, models.QuestionSlider, models.QuestionOpinionScale:
		return numeric(q, av)
	case models.QuestionConstantSum:
		return constantSum(q, av)
	case models.QuestionDate, models.QuestionTime, models.QuestionDateTime:
		return dateTime(q, av)
	case models.QuestionFileUpload:
		return files(q, av)
	case models.QuestionMatrixSingle, models.QuestionMatrixMultiple, models.QuestionBipolarMatrix:
		return matrix(q, av)
	case models.QuestionRank, models.QuestionGroupRank:
		return rank(q, av)
	case models.QuestionPayment:
		return payment(q, av)
	case models.QuestionSignature, models.QuestionConsent:
		return signatureOrConsent(q, av)
	case models.QuestionContactForm:
		return contactForm(q, av)
	case models.QuestionDescriptive:
		return nil // no respondent input to validate
	default:
		return nil
	}
}

func v(qid, code, msg string) Violation {
	return Violation{QuestionID: qid, Code: code, Message: msg}
}

func singleChoice(q models.Question, av models.AnswerValue) []Violation {
	if len(av.Choices) != 1 {
		return []Violation{v(q.QuestionID, "INVALID_CHOICE", "exactly one choice is required")}
	}
	return nil
}

func multipleChoice(q models.Question, av models.AnswerValue) []Violation {
	var out []Violation
	if len(av.Choices) < 1 {
		out = append(out, v(q.QuestionID, "TOO_FEW_CHOICES", "at least one choice is required"))
	}
	if q.Config.MaxSelections != nil && len(av.Choices) > *q.Config.MaxSelections {
		out = append(out, v(q.QuestionID, "TOO_MANY_CHOICES", fmt.Sprintf("at most %d choices allowed", *q.Config.MaxSelections)))
	}
	return out
}

func text(q models.Question, av models.AnswerValue) []Violation {
	var out []Violation
	n := len([]rune(av.TextValue))
	if q.Config.MinLength != nil && n < *q.Config.MinLength {
		out = append(out, v(q.QuestionID, "TOO_SHORT", fmt.Sprintf("must be at least %d characters", *q.Config.MinLength)))
	}
	if q.Config.MaxLength != nil && n > *q.Config.MaxLength {
		out = append(out, v(q.QuestionID, "TOO_LONG", fmt.Sprintf("must be at most %d characters", *q.Config.MaxLength)))
	}
	// An invalid pattern is treated as "unmatched", not surfaced as its own
	// violation code (spec.md §4.3) — so a bad pattern silently fails closed
	// rather than rejecting every submission with a config error.
	if q.Config.Pattern != "" {
		if re, err := regexp.Compile(q.Config.Pattern); err != nil || !re.MatchString(av.TextValue) {
			out = append(out, v(q.QuestionID, "PATTERN_MISMATCH", "does not match the required pattern"))
		}
	}
	return out
}

func email(q models.Question, av models.AnswerValue) []Violation {
	if !emailPattern.MatchString(av.EmailValue) {
		return []Violation{v(q.QuestionID, "INVALID_EMAIL", "not a valid email address")}
	}
	return nil
}

func phone(q models.Question, av models.AnswerValue) []Violation {
	if !phonePattern.MatchString(av.PhoneValue) {
		return []Violation{v(q.QuestionID, "INVALID_PHONE", "not a valid phone number")}
	}
	return nil
}

func urlAnswer(q models.Question, av models.AnswerValue) []Violation {
	var out []Violation
	if !urlPattern.MatchString(av.URLValue) {
		out = append(out, v(q.QuestionID, "INVALID_URL", "not a valid URL"))
		return out
	}
	if q.Config.URLProtocol != "" {
		want := q.Config.URLProtocol + "://"
		if len(av.URLValue) < len(want) || av.URLValue[:len(want)] != want {
			out = append(out, v(q.QuestionID, "INVALID_URL_PROTOCOL", fmt.Sprintf("must use the %s protocol", q.Config.URLProtocol)))
		}
	}
	return out
}

func numeric(q models.Question, av models.AnswerValue) []Violation {
	var out []Violation
	val := av.NumericValue
	if val == nil {
		val = av.DecimalValue
	}
	if val == nil {
		return out
	}
	if q.Config.MinValue != nil && *val < *q.Config.MinValue {
		out = append(out, v(q.QuestionID, "TOO_SMALL", fmt.Sprintf("must be at least %v", *q.Config.MinValue)))
	}
	if q.Config.MaxValue != nil && *val > *q.Config.MaxValue {
		out = append(out, v(q.QuestionID, "TOO_LARGE", fmt.Sprintf("must be at most %v", *q.Config.MaxValue)))
	}
	return out
}

func constantSum(q models.Question, av models.AnswerValue) []Violation {
	var out []Violation
	var sum float64
	for _, n := range av.ConstantSumValues {
		if n < 0 {
			out = append(out, v(q.QuestionID, "NEGATIVE_VALUE", "values must be non-negative"))
		}
		if n == 0 && !q.Config.AllowZero {
			out = append(out, v(q.QuestionID, "ZERO_NOT_ALLOWED", "zero values are not allowed"))
		}
		sum += n
	}
	if math.Abs(sum-q.Config.TotalPoints) > 0.01 {
		out = append(out, v(q.QuestionID, "INVALID_SUM", fmt.Sprintf("values must sum to %v", q.Config.TotalPoints)))
	}
	return out
}

func dateTime(q models.Question, av models.AnswerValue) []Violation {
	var out []Violation
	if q.Type != models.QuestionTime && av.DateValue == nil {
		out = append(out, v(q.QuestionID, "INVALID_DATE", "not a parseable date"))
		return out
	}
	if av.DateValue != nil {
		if q.Config.MinDate != nil && av.DateValue.Before(*q.Config.MinDate) {
			out = append(out, v(q.QuestionID, "DATE_TOO_EARLY", "date is before the allowed range"))
		}
		if q.Config.MaxDate != nil && av.DateValue.After(*q.Config.MaxDate) {
			out = append(out, v(q.QuestionID, "DATE_TOO_LATE", "date is after the allowed range"))
		}
	}
	return out
}

func files(q models.Question, av models.AnswerValue) []Violation {
	var out []Violation
	if len(av.FileURLs) < 1 {
		out = append(out, v(q.QuestionID, "NO_FILES", "at least one file is required"))
	}
	if q.Config.MaxFiles != nil && len(av.FileURLs) > *q.Config.MaxFiles {
		out = append(out, v(q.QuestionID, "TOO_MANY_FILES", fmt.Sprintf("at most %d files allowed", *q.Config.MaxFiles)))
	}
	return out
}

func matrix(q models.Question, av models.AnswerValue) []Violation {
	if len(av.JSONValue) == 0 {
		return []Violation{v(q.QuestionID, "EMPTY_MATRIX", "every row requires a response")}
	}
	return nil
}

func rank(q models.Question, av models.AnswerValue) []Violation {
	if len(av.RankValues) == 0 {
		return []Violation{v(q.QuestionID, "EMPTY_RANK", "a rank order is required")}
	}
	seen := map[int]bool{}
	for _, rank := range av.RankValues {
		if seen[rank] {
			return []Violation{v(q.QuestionID, "DUPLICATE_RANK", "rank positions must be unique")}
		}
		seen[rank] = true
	}
	return nil
}

func payment(q models.Question, av models.AnswerValue) []Violation {
	if av.PaymentID == "" || av.PaymentStatus != "completed" {
		return []Violation{v(q.QuestionID, "INVALID_PAYMENT", "payment has not completed")}
	}
	return nil
}

func signatureOrConsent(q models.Question, av models.AnswerValue) []Violation {
	if av.BooleanValue != nil && *av.BooleanValue {
		return nil
	}
	if av.SignatureURL != "" {
		return nil
	}
	return []Violation{v(q.QuestionID, "INVALID_SIGNATURE", "a signature or confirmation is required")}
}

func contactForm(q models.Question, av models.AnswerValue) []Violation {
	var out []Violation
	for _, f := range q.Config.ContactFields {
		if !f.Enabled {
			continue
		}
		switch f.Name {
		case "email":
			if av.EmailValue == "" {
				if f.Required {
					out = append(out, Violation{QuestionID: q.QuestionID, Code: "REQUIRED", Message: "email is required", Field: f.Name})
				}
				continue
			}
			if !emailPattern.MatchString(av.EmailValue) {
				out = append(out, Violation{QuestionID: q.QuestionID, Code: "INVALID_EMAIL", Message: "not a valid email address", Field: f.Name})
			}
		case "phone":
			if av.PhoneValue == "" {
				if f.Required {
					out = append(out, Violation{QuestionID: q.QuestionID, Code: "REQUIRED", Message: "phone is required", Field: f.Name})
				}
				continue
			}
			if !phonePattern.MatchString(av.PhoneValue) {
				out = append(out, Violation{QuestionID: q.QuestionID, Code: "INVALID_PHONE", Message: "not a valid phone number", Field: f.Name})
			}
		default:
			// name/company/address: presence only, sourced from JSONValue
			// keyed by field name.
			if f.Required && (av.JSONValue == nil || fmt.Sprintf("%v", av.JSONValue[f.Name]) == "") {
				out = append(out, Violation{QuestionID: q.QuestionID, Code: "REQUIRED", Message: f.Name + " is required", Field: f.Name})
			}
		}
	}
	return out
}
