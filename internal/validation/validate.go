// Package validation applies struct-tag validation to inbound ingest
// payloads before they reach the store layer.
package validation

import (
	"fmt"
	"reflect"
	"strings"

	"github.com/go-playground/validator/v10"

	"github.com/agentops-sre/rca-engine/pkg/apperror"
)

var validate = newValidator()

func newValidator() *validator.Validate {
	v := validator.New(validator.WithRequiredStructEnabled())
	v.RegisterTagNameFunc(func(field reflect.StructField) string {
		name := strings.SplitN(field.Tag.Get("json"), ",", 2)[0]
		if name == "-" || name == "" {
			return field.Name
		}
		return name
	})
	return v
}

// Struct validates v against its `validate` tags and returns an
// apperror.Error of type TypeValidation describing every failing field,
// or nil if v is valid.
func Struct(v any) error {
	err := validate.Struct(v)
	if err == nil {
		return nil
	}

	fieldErrs, ok := err.(validator.ValidationErrors)
	if !ok {
		return apperror.Wrap(err, apperror.TypeValidation, "request failed validation")
	}

	reasons := make([]string, len(fieldErrs))
	for i, fe := range fieldErrs {
		reasons[i] = fmt.Sprintf("%s failed on %q", fe.Namespace(), fe.Tag())
	}

	return apperror.New(apperror.TypeValidation, "request failed validation").
		WithDetails(strings.Join(reasons, "; "))
}
