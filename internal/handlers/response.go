package handlers

import (
	"encoding/json"
	"errors"
	"net/http"

	"go.uber.org/zap"

	"fund-balance-service/internal/apperrors"
)

// SuccessResponse is the envelope every successful answer is wrapped in.
type SuccessResponse struct {
	Success   bool   `json:"success"`
	Data      any    `json:"data,omitempty"`
	Message   string `json:"message,omitempty"`
	MessageEn string `json:"message_en,omitempty"`
}

type ErrorResponse struct {
	Success bool           `json:"success"`
	Error   string         `json:"error"`
	ErrorEn string         `json:"error_en"`
	Code    string         `json:"code"`
	Details map[string]any `json:"details,omitempty"`
}

var errInternal = apperrors.New(apperrors.KindInternal, "INTERNAL_ERROR",
	"حدث خطأ داخلي", "Internal server error")

func respondWithData(w http.ResponseWriter, code int, data any) {
	respondWithJSON(w, code, SuccessResponse{Success: true, Data: data})
}

func respondWithMessage(w http.ResponseWriter, code int, data any, message, messageEn string) {
	respondWithJSON(w, code, SuccessResponse{Success: true, Data: data, Message: message, MessageEn: messageEn})
}

// respondWithError answers with the status the error's kind maps to.
// Anything outside the taxonomy is logged and hidden behind a 500.
func respondWithError(w http.ResponseWriter, log *zap.Logger, err error) {
	var appErr *apperrors.Error
	if !errors.As(err, &appErr) {
		log.Error("unhandled error", zap.Error(err))
		appErr = errInternal
	} else if appErr.Kind == apperrors.KindInternal || appErr.Kind == apperrors.KindDataUnavailable {
		log.Error("request failed", zap.String("code", appErr.Code), zap.Error(err))
	}
	respondWithStatus(w, appErr.Kind.HTTPStatus(), appErr)
}

func respondWithStatus(w http.ResponseWriter, code int, appErr *apperrors.Error) {
	respondWithJSON(w, code, ErrorResponse{
		Success: false,
		Error:   appErr.Message,
		ErrorEn: appErr.MessageEn,
		Code:    appErr.Code,
		Details: appErr.Details,
	})
}

func respondWithJSON(w http.ResponseWriter, code int, payload any) {
	response, err := json.Marshal(payload)
	if err != nil {
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusInternalServerError)
		w.Write([]byte(`{"success":false,"error_en":"Error marshaling JSON response","code":"INTERNAL_ERROR"}`))
		return
	}

	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	w.Write(response)
}

// decodeJSON reads the request body into v.
func decodeJSON(r *http.Request, v any) error {
	if err := json.NewDecoder(r.Body).Decode(v); err != nil {
		return apperrors.Validation("INVALID_REQUEST_BODY", "Invalid request payload")
	}
	return nil
}
