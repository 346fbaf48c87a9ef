package handler

import (
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"reflect"
	"strings"

	"github.com/go-playground/validator/v10"

	apperrors "github.com/edupaila/community-server-go/internal/errors"
)

var validate = newValidator()

func newValidator() *validator.Validate {
	v := validator.New()
	v.RegisterTagNameFunc(func(f reflect.StructField) string {
		name, _, _ := strings.Cut(f.Tag.Get("json"), ",")
		if name == "-" {
			return ""
		}
		return name
	})
	return v
}

// decodeAndValidate reads a JSON body into dst and runs its validate tags.
// The returned error is always an *AppError.
func decodeAndValidate(r *http.Request, dst any) error {
	if err := json.NewDecoder(r.Body).Decode(dst); err != nil {
		var maxErr *http.MaxBytesError
		if errors.As(err, &maxErr) {
			return apperrors.InvalidInput("body", "Request body too large")
		}
		return apperrors.ValidationError("Invalid JSON body").WithCause(err)
	}

	if err := validate.Struct(dst); err != nil {
		var verrs validator.ValidationErrors
		if errors.As(err, &verrs) && len(verrs) > 0 {
			return fieldError(verrs[0])
		}
		return apperrors.ValidationError(err.Error())
	}
	return nil
}

func fieldError(fe validator.FieldError) *apperrors.AppError {
	switch fe.Tag() {
	case "required":
		return apperrors.MissingRequired(fe.Field())
	case "max":
		return apperrors.InvalidInput(fe.Field(), fmt.Sprintf("must be at most %s long", fe.Param()))
	case "url":
		return apperrors.InvalidInput(fe.Field(), "must be a URL")
	default:
		return apperrors.InvalidInput(fe.Field(), "failed "+fe.Tag()+" validation")
	}
}
