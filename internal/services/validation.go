package services

import (
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"reflect"

	"github.com/earnhub/backend/internal/models"
	"github.com/go-playground/validator/v10"
	"github.com/shopspring/decimal"
)

// ErrorResponse represents error response structure
type ErrorResponse struct {
	Error   string            `json:"error"`             // Error message
	Details map[string]string `json:"details,omitempty"` // Validation details
}

// ValidationHelper provides shared validation functionality
type ValidationHelper struct {
	validator *validator.Validate
}

// NewValidationHelper creates a new validation helper with the money and enum tags registered
func NewValidationHelper() *ValidationHelper {
	v := validator.New()
	v.RegisterCustomTypeFunc(func(field reflect.Value) any {
		if d, ok := field.Interface().(decimal.Decimal); ok {
			return d.String()
		}
		return nil
	}, decimal.Decimal{})
	v.RegisterValidation("amount", func(fl validator.FieldLevel) bool {
		d, err := decimal.NewFromString(fl.Field().String())
		return err == nil && ValidateAmount(d) == nil
	})
	v.RegisterValidation("wallet", func(fl validator.FieldLevel) bool {
		return models.Wallet(fl.Field().String()).Valid()
	})
	v.RegisterValidation("level", func(fl validator.FieldLevel) bool {
		_, err := models.ParseLevel(fl.Field().String())
		return err == nil
	})
	return &ValidationHelper{validator: v}
}

// ValidateStruct validates a struct and returns validation errors
func (vh *ValidationHelper) ValidateStruct(s any) error {
	return vh.validator.Struct(s)
}

// ValidateAmount accepts positive amounts with at most two decimal places.
func ValidateAmount(d decimal.Decimal) error {
	if !d.IsPositive() {
		return fmt.Errorf("%w: must be greater than zero", ErrInvalidAmount)
	}
	if !d.Equal(d.Round(2)) {
		return fmt.Errorf("%w: at most two decimal places", ErrInvalidAmount)
	}
	return nil
}

// ValidateTransactionPassword enforces the length bounds of a transaction password.
func ValidateTransactionPassword(p string) error {
	if len(p) < 4 || len(p) > 64 {
		return fmt.Errorf("%w: transaction password must be 4-64 characters", ErrInvalidRequest)
	}
	return nil
}

// SendErrorResponse sends a JSON error response
func SendErrorResponse(w http.ResponseWriter, message string, statusCode int, validationErr error) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(statusCode)

	errorResp := ErrorResponse{Error: message}
	var fieldErrs validator.ValidationErrors
	if errors.As(validationErr, &fieldErrs) {
		errorResp.Details = make(map[string]string)
		for _, err := range fieldErrs {
			errorResp.Details[err.Field()] = fmt.Sprintf("Field Validation Failed on '%s' tag", err.Tag())
		}
	}

	json.NewEncoder(w).Encode(errorResp)
}
