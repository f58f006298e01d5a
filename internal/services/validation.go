package services

import (
	"errors"
	"reflect"
	"strings"

	"github.com/go-playground/validator/v10"
	"github.com/shopspring/decimal"

	"fund-balance-service/internal/apperrors"
)

const dateLayout = "2006-01-02"

var validate = newValidator()

func newValidator() *validator.Validate {
	v := validator.New()
	// Report JSON field names so error details match the request body.
	v.RegisterTagNameFunc(func(fld reflect.StructField) string {
		name := strings.SplitN(fld.Tag.Get("json"), ",", 2)[0]
		if name == "-" {
			return ""
		}
		return name
	})
	return v
}

// validationError maps validator failures onto the bilingual taxonomy. A
// missing field wins over any other failure so callers get the same code
// as an empty request.
func validationError(err error, missingEn string) error {
	var verrs validator.ValidationErrors
	if !errors.As(err, &verrs) {
		return apperrors.Validation("INVALID_INPUT", err.Error())
	}

	var missing, invalid []string
	for _, fe := range verrs {
		if fe.Tag() == "required" {
			missing = append(missing, fe.Field())
		} else {
			invalid = append(invalid, fe.Field())
		}
	}

	if len(missing) > 0 {
		return apperrors.New(apperrors.KindValidation, "MISSING_REQUIRED_FIELDS",
			"يرجى إدخال جميع الحقول المطلوبة", missingEn).
			WithDetails(map[string]any{"fields": missing})
	}
	return apperrors.Validation("INVALID_INPUT", "Invalid field values").
		WithDetails(map[string]any{"fields": invalid})
}

// validateAmount requires a positive amount with at most two decimal places.
func validateAmount(field string, amount decimal.Decimal) error {
	if !amount.IsPositive() {
		return apperrors.New(apperrors.KindValidation, "INVALID_AMOUNT",
			"يجب أن يكون المبلغ أكبر من صفر", "Amount must be greater than zero").
			WithDetails(map[string]any{"field": field})
	}
	if !amount.Equal(amount.Round(2)) {
		return apperrors.New(apperrors.KindValidation, "INVALID_AMOUNT",
			"المبلغ يقبل خانتين عشريتين فقط", "Amount must have at most two decimal places").
			WithDetails(map[string]any{"field": field})
	}
	return nil
}
