package wizard

import (
	"fmt"
	"strings"

	"github.com/benvon/taskbot/internal/identity"
	"github.com/benvon/taskbot/internal/models"
	"github.com/benvon/taskbot/internal/validation"
)

// Stage is a step of the task creation dialog
type Stage int

const (
	StageAskName Stage = iota
	StageAskDesc
	StageAskDate
	StageAskPriority
	StageAskCategory
	StageAskMember
)

func (s Stage) String() string {
	switch s {
	case StageAskName:
		return "ask_name"
	case StageAskDesc:
		return "ask_desc"
	case StageAskDate:
		return "ask_date"
	case StageAskPriority:
		return "ask_priority"
	case StageAskCategory:
		return "ask_category"
	case StageAskMember:
		return "ask_member"
	default:
		return fmt.Sprintf("stage(%d)", int(s))
	}
}

// Selection token prefixes
const (
	PriorityTokenPrefix = "pri:"
	CategoryTokenPrefix = "cat:"
	AssignTokenPrefix   = "assign:"
)

// skipDescription stores an empty description
const skipDescription = "-"

// IsSelectionToken reports whether a callback token belongs to the dialog
func IsSelectionToken(token string) bool {
	for _, prefix := range []string{PriorityTokenPrefix, CategoryTokenPrefix, AssignTokenPrefix} {
		if strings.HasPrefix(token, prefix) {
			return true
		}
	}
	return false
}

// Verdict is the outcome of validating one answer
type Verdict struct {
	OK     bool
	Reason string
}

func accept() Verdict { return Verdict{OK: true} }

func reject(reason string) Verdict { return Verdict{Reason: reason} }

func validateName(input string) (string, Verdict) {
	name := validation.SanitizeText(input)
	if err := validation.ValidateTitle(name); err != nil {
		return "", reject("The task name can't be empty.")
	}
	return name, accept()
}

func validateDescription(input string) (string, Verdict) {
	desc := validation.SanitizeText(input)
	if desc == "" {
		return "", reject("Send a description, or - to skip.")
	}
	if desc == skipDescription {
		return "", accept()
	}
	if err := validation.ValidateDescription(desc); err != nil {
		return "", reject(fmt.Sprintf("The description is too long (max %d characters).", validation.MaxTextLength))
	}
	return desc, accept()
}

func validateDate(input string) (string, Verdict) {
	date := strings.TrimSpace(input)
	if err := validation.ValidateDueDate(date); err != nil {
		return "", reject("Please use the YYYY-MM-DD format, e.g. 2025-03-14.")
	}
	return date, accept()
}

func validatePriority(input string) (models.Priority, Verdict) {
	if err := validation.ValidatePriority(strings.TrimSpace(input)); err != nil {
		return "", reject("Please choose High, Medium or Low.")
	}
	p, _ := models.ParsePriority(input)
	return p, accept()
}

func validateCategory(input string, options []string) (string, Verdict) {
	input = strings.TrimSpace(input)
	for _, option := range options {
		if strings.EqualFold(option, input) {
			return option, accept()
		}
	}
	return "", reject("Please choose one of the listed categories.")
}

// validateMember accepts a person id (from a button) or a username typed by hand
func validateMember(input string, persons []models.Person, byID bool) (string, Verdict) {
	input = strings.TrimSpace(input)
	for _, p := range persons {
		if byID && p.ID == input {
			return p.ID, accept()
		}
		if !byID && identity.Normalize(p.Username) == identity.Normalize(input) && input != "" {
			return p.ID, accept()
		}
	}
	return "", reject("Please choose one of the listed team members.")
}
