package validation

import (
	"fmt"
	"strings"
	"unicode"

	"github.com/benvon/taskbot/internal/models"
	"github.com/go-playground/validator/v10"
)

// MaxTextLength caps free text collected from chat input
const MaxTextLength = 2000

var (
	// Validate is a shared validator instance
	Validate *validator.Validate
)

func init() {
	Validate = validator.New()

	if err := Validate.RegisterValidation("task_priority", validateTaskPriority); err != nil {
		panic(fmt.Sprintf("failed to register task_priority validator: %v", err))
	}
}

// validateTaskPriority validates that a string is a valid Priority value
func validateTaskPriority(fl validator.FieldLevel) bool {
	_, ok := models.ParsePriority(fl.Field().String())
	return ok
}

// SanitizeText sanitizes text input by trimming whitespace and removing control characters
func SanitizeText(text string) string {
	// Trim whitespace
	text = strings.TrimSpace(text)

	// Remove control characters except newline and tab
	var sanitized strings.Builder
	for _, r := range text {
		if unicode.IsControl(r) && r != '\n' && r != '\t' {
			continue
		}
		sanitized.WriteRune(r)
	}

	return sanitized.String()
}

// ValidateTitle checks a task title
func ValidateTitle(value string) error {
	if err := Validate.Var(value, fmt.Sprintf("required,max=%d", MaxTextLength)); err != nil {
		return fmt.Errorf("invalid title: must be between 1 and %d characters", MaxTextLength)
	}
	return nil
}

// ValidateDescription checks a task description, which may be empty
func ValidateDescription(value string) error {
	if err := Validate.Var(value, fmt.Sprintf("max=%d", MaxTextLength)); err != nil {
		return fmt.Errorf("invalid description: must be at most %d characters", MaxTextLength)
	}
	return nil
}

// ValidateDueDate checks a YYYY-MM-DD calendar date
func ValidateDueDate(value string) error {
	if err := Validate.Var(value, "required,datetime=2006-01-02"); err != nil {
		return fmt.Errorf("invalid due date: %q (must be YYYY-MM-DD)", value)
	}
	return nil
}

// ValidatePriority checks a priority name, case-insensitively
func ValidatePriority(value string) error {
	if err := Validate.Var(value, "required,task_priority"); err != nil {
		return fmt.Errorf("invalid priority: %s (must be 'High', 'Medium', or 'Low')", value)
	}
	return nil
}

// ValidateTimeOfDay checks an HH:MM clock time
func ValidateTimeOfDay(value string) error {
	if err := Validate.Var(value, "required,datetime=15:04"); err != nil {
		return fmt.Errorf("invalid time of day: %q (must be HH:MM)", value)
	}
	return nil
}
