package service

import (
	"errors"
	"fmt"
	"reflect"
	"strings"

	"github.com/go-playground/validator/v10"

	"github.com/noah-isme/docvault-api/internal/models"
	"github.com/noah-isme/docvault-api/internal/tenant"
	appErrors "github.com/noah-isme/docvault-api/pkg/errors"
)

// NewValidator returns a validator with the document enumerations registered.
func NewValidator() *validator.Validate {
	v := validator.New()
	v.RegisterTagNameFunc(func(f reflect.StructField) string {
		if name := tagName(f.Tag.Get("json")); name != "" {
			return name
		}
		if name := tagName(f.Tag.Get("form")); name != "" {
			return name
		}
		return f.Name
	})
	v.RegisterValidation("doc_category", func(fl validator.FieldLevel) bool {
		return models.DocumentCategory(fl.Field().String()).Valid()
	})
	v.RegisterValidation("doc_status", func(fl validator.FieldLevel) bool {
		return models.DocumentStatus(fl.Field().String()).Valid()
	})
	return v
}

func ensureDocumentValidations(v *validator.Validate) *validator.Validate {
	if v == nil {
		return NewValidator()
	}
	return v
}

// validationFailure converts validator output into a VALIDATION_ERROR with one reason per field.
func validationFailure(err error, message string) error {
	var fieldErrs validator.ValidationErrors
	if !errors.As(err, &fieldErrs) {
		return appErrors.Wrap(err, appErrors.ErrValidation.Code, appErrors.ErrValidation.Status, message)
	}
	details := make(map[string]string, len(fieldErrs))
	for _, fe := range fieldErrs {
		details[fe.Field()] = reasonFor(fe)
	}
	return appErrors.Validation(message, details)
}

func reasonFor(fe validator.FieldError) string {
	switch fe.Tag() {
	case "required":
		return "required"
	case "uuid":
		return "must be a valid uuid"
	case "doc_category":
		return fmt.Sprintf("must be one of %s", joinValues(models.DocumentCategories))
	case "doc_status":
		return fmt.Sprintf("must be one of %s", joinValues(models.DocumentStatuses))
	case "max":
		return "must be at most " + fe.Param() + " characters"
	case "min":
		return "must be at least " + fe.Param()
	default:
		return "invalid value"
	}
}

func joinValues[T ~string](values []T) string {
	parts := make([]string, len(values))
	for i, v := range values {
		parts[i] = string(v)
	}
	return strings.Join(parts, ", ")
}

func tagName(tag string) string {
	name := strings.SplitN(tag, ",", 2)[0]
	if name == "-" {
		return ""
	}
	return name
}

// scopeFor resolves the tenant an authenticated caller acts within.
func scopeFor(actor *models.JWTClaims) (tenant.Scope, error) {
	if actor == nil {
		return tenant.Scope{}, appErrors.ErrUnauthorized
	}
	scope, err := tenant.NewScope(actor.TenantID)
	if err != nil {
		return tenant.Scope{}, appErrors.Clone(appErrors.ErrUnauthorized, "token carries no tenant")
	}
	return scope, nil
}
