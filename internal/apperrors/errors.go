// Package apperrors defines the fund engine's error taxonomy. Every error
// that reaches a caller carries a stable code and a message in Arabic and
// English.
package apperrors

import (
	"errors"
	"net/http"
)

type Kind int

const (
	KindInternal Kind = iota
	KindAccessDenied
	KindValidation
	KindInsufficientFunds
	KindConflict
	KindDataUnavailable
	KindNotFound
	KindInvalidState
)

func (k Kind) String() string {
	switch k {
	case KindAccessDenied:
		return "access_denied"
	case KindValidation:
		return "validation_error"
	case KindInsufficientFunds:
		return "insufficient_funds"
	case KindConflict:
		return "conflict"
	case KindDataUnavailable:
		return "data_unavailable"
	case KindNotFound:
		return "not_found"
	case KindInvalidState:
		return "invalid_state"
	default:
		return "internal"
	}
}

// HTTPStatus maps a kind onto the status code the handlers answer with.
func (k Kind) HTTPStatus() int {
	switch k {
	case KindAccessDenied:
		return http.StatusForbidden
	case KindValidation:
		return http.StatusBadRequest
	case KindInsufficientFunds:
		return http.StatusUnprocessableEntity
	case KindConflict, KindInvalidState:
		return http.StatusConflict
	case KindDataUnavailable:
		return http.StatusServiceUnavailable
	case KindNotFound:
		return http.StatusNotFound
	default:
		return http.StatusInternalServerError
	}
}

type Error struct {
	Kind      Kind           `json:"-"`
	Code      string         `json:"code"`
	Message   string         `json:"error"`
	MessageEn string         `json:"error_en"`
	Details   map[string]any `json:"details,omitempty"`
	Err       error          `json:"-"`
}

func (e *Error) Error() string {
	if e.Err != nil {
		return e.MessageEn + ": " + e.Err.Error()
	}
	return e.MessageEn
}

func (e *Error) Unwrap() error {
	return e.Err
}

// WithDetails returns a copy of e carrying details.
func (e *Error) WithDetails(details map[string]any) *Error {
	cp := *e
	cp.Details = details
	return &cp
}

func New(kind Kind, code, message, messageEn string) *Error {
	return &Error{Kind: kind, Code: code, Message: message, MessageEn: messageEn}
}

func Wrap(err error, kind Kind, code, message, messageEn string) *Error {
	return &Error{Kind: kind, Code: code, Message: message, MessageEn: messageEn, Err: err}
}

// KindOf returns the kind of the first *Error in err's chain, or
// KindInternal when there is none.
func KindOf(err error) Kind {
	var e *Error
	if errors.As(err, &e) {
		return e.Kind
	}
	return KindInternal
}

func Is(err error, kind Kind) bool {
	return err != nil && KindOf(err) == kind
}

func AccessDenied(messageEn string) *Error {
	return New(KindAccessDenied, "INSUFFICIENT_PRIVILEGES", "ليس لديك صلاحية لهذه العملية", messageEn)
}

func Validation(code, messageEn string) *Error {
	return New(KindValidation, code, "البيانات المدخلة غير صحيحة", messageEn)
}

func NotFound(code, messageEn string) *Error {
	return New(KindNotFound, code, "السجل غير موجود", messageEn)
}

func InvalidState(code, messageEn string) *Error {
	return New(KindInvalidState, code, "لا يمكن تنفيذ العملية في الحالة الحالية", messageEn)
}

func InsufficientFunds() *Error {
	return New(KindInsufficientFunds, "INSUFFICIENT_BALANCE", "رصيد الصندوق غير كافي", "Insufficient fund balance")
}

func Conflict(err error) *Error {
	return Wrap(err, KindConflict, "CONCURRENT_ADMISSION_CONFLICT",
		"تعارض مع عملية أخرى، يرجى المحاولة مرة أخرى",
		"Transaction aborted by a concurrent admission, please retry")
}

func DataUnavailable(err error) *Error {
	return Wrap(err, KindDataUnavailable, "BALANCE_UNAVAILABLE",
		"فشل في جلب رصيد الصندوق",
		"Failed to retrieve fund balance")
}

// BelowReserve rejects an expense that fits the balance but would leave the
// fund under its minimum reserve.
func BelowReserve() *Error {
	return New(KindInsufficientFunds, "BELOW_MINIMUM_RESERVE",
		"المصروف يخفض رصيد الصندوق عن الحد الأدنى",
		"Expense would take the fund below its minimum reserve")
}

func StoreUnavailable(err error) *Error {
	return Wrap(err, KindDataUnavailable, "STORE_UNAVAILABLE",
		"تعذر الوصول إلى قاعدة البيانات",
		"Data store unavailable")
}
