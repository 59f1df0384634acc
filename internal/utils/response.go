package utils

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"time"

	"dgc-transports/internal/domain"
)

type APIResponse struct {
	Success   bool        `json:"success"`
	Message   string      `json:"message,omitempty"`
	Data      interface{} `json:"data,omitempty"`
	Error     string      `json:"error,omitempty"`
	Code      string      `json:"code,omitempty"`
	Seats     []int       `json:"seats,omitempty"`
	Timestamp time.Time   `json:"timestamp"`
}

func SuccessResponse(message string, data interface{}) APIResponse {
	return APIResponse{
		Success:   true,
		Message:   message,
		Data:      data,
		Timestamp: time.Now(),
	}
}

func ErrorResponse(code, error string) APIResponse {
	return APIResponse{
		Success:   false,
		Code:      code,
		Error:     error,
		Timestamp: time.Now(),
	}
}

// WriteJSON encodes body with status. Encoding failures after the header
// is written cannot be reported to the client.
func WriteJSON(w http.ResponseWriter, status int, body interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(body)
}

// ErrorFor maps err onto a status code and a client-safe response.
// Unavailable and internal failures never expose their text.
func ErrorFor(err error) (int, APIResponse) {
	var (
		validation domain.ValidationError
		notFound   domain.NotFoundError
	)
	switch {
	case errors.As(err, &validation):
		return http.StatusBadRequest, ErrorResponse(domain.CodeValidation, validation.Error())
	case errors.As(err, &notFound):
		return http.StatusNotFound, ErrorResponse(domain.CodeNotFound, notFound.Error())
	}
	if conflict, ok := domain.AsConflict(err); ok {
		resp := ErrorResponse(conflict.Code(), conflict.Error())
		resp.Seats = conflict.Seats
		return http.StatusConflict, resp
	}
	switch {
	case domain.IsUnavailable(err), errors.Is(err, context.DeadlineExceeded):
		return http.StatusServiceUnavailable, ErrorResponse(domain.CodeUnavailable, "service temporarily unavailable, please retry")
	default:
		return http.StatusInternalServerError, ErrorResponse(domain.CodeInternal, "internal server error")
	}
}
