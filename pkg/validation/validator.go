package validation

import (
	"fmt"
	"regexp"
	"strings"

	"github.com/go-playground/validator/v10"
	"github.com/shopspring/decimal"
)

var (
	// Custom validator instance
	validate = validator.New()

	// CoinGecko ids: lowercase slugs like "usd-coin" or "the-open-network"
	coinNamePattern = regexp.MustCompile(`^[a-z0-9-]{1,100}$`)
)

// ValidationError represents a validation error with field and message
type ValidationError struct {
	Field   string      `json:"field"`
	Message string      `json:"message"`
	Value   interface{} `json:"value,omitempty"`
}

// ValidationErrors is a collection of validation errors
type ValidationErrors []ValidationError

// Error implements the error interface
func (ve ValidationErrors) Error() string {
	if len(ve) == 0 {
		return ""
	}

	var messages []string
	for _, err := range ve {
		messages = append(messages, fmt.Sprintf("%s: %s", err.Field, err.Message))
	}
	return strings.Join(messages, "; ")
}

func init() {
	validate.RegisterValidation("coinname", validateCoinName)
	validate.RegisterValidation("decimal", validateDecimal)
	validate.RegisterValidation("password", validatePassword)
}

// validateCoinName validates a CoinGecko id slug
func validateCoinName(fl validator.FieldLevel) bool {
	name, ok := fl.Field().Interface().(string)
	if !ok {
		return false
	}
	return coinNamePattern.MatchString(name)
}

// validateDecimal accepts any finite decimal value; the zero value is
// allowed so that partially populated records can flow into reconciliation,
// which treats missing sides as a forced update.
func validateDecimal(fl validator.FieldLevel) bool {
	_, ok := fl.Field().Interface().(decimal.Decimal)
	return ok
}

// validatePassword enforces the registration password policy
func validatePassword(fl validator.FieldLevel) bool {
	password, ok := fl.Field().Interface().(string)
	if !ok {
		return false
	}
	return len(password) >= 6 && len(password) <= 100
}

// ValidateStruct validates a struct using tags
func ValidateStruct(s interface{}) ValidationErrors {
	err := validate.Struct(s)
	if err == nil {
		return nil
	}

	var errors ValidationErrors
	for _, err := range err.(validator.ValidationErrors) {
		field := err.Field()
		tag := err.Tag()
		value := err.Value()

		message := getErrorMessage(field, tag, value)
		errors = append(errors, ValidationError{
			Field:   field,
			Message: message,
			Value:   value,
		})
	}

	return errors
}

// getErrorMessage returns a user-friendly error message
func getErrorMessage(field, tag string, value interface{}) string {
	switch tag {
	case "required":
		return fmt.Sprintf("%s is required", field)
	case "coinname":
		return fmt.Sprintf("%s must be a valid coin id (lowercase letters, digits, hyphens)", field)
	case "decimal":
		return fmt.Sprintf("%s must be a decimal value", field)
	case "password":
		return fmt.Sprintf("%s must be between 6 and 100 characters", field)
	case "email":
		return fmt.Sprintf("%s must be a valid email address", field)
	case "min":
		return fmt.Sprintf("%s must be at least %v", field, value)
	case "max":
		return fmt.Sprintf("%s must be at most %v", field, value)
	default:
		return fmt.Sprintf("%s failed validation: %s", field, tag)
	}
}

// SanitizeString removes potentially dangerous characters
func SanitizeString(s string) string {
	// Remove null bytes and control characters
	s = strings.Map(func(r rune) rune {
		if r < 32 && r != 9 && r != 10 && r != 13 { // Keep tab, newline, carriage return
			return -1
		}
		return r
	}, s)

	// Trim whitespace
	return strings.TrimSpace(s)
}

// SanitizeEmail lowercases and trims an email address
func SanitizeEmail(s string) string {
	return strings.ToLower(SanitizeString(s))
}
