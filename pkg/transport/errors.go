package transport

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"strconv"
	"strings"

	"github.com/rhuss/digsite/pkg/api"
)

// HTTPStatusFromError maps an APIError type to the corresponding HTTP status
// code.
func HTTPStatusFromError(err *api.APIError) int {
	switch err.Type {
	case api.ErrorTypeValidation, api.ErrorTypeResetTokenInvalid:
		return http.StatusBadRequest
	case api.ErrorTypeInvalidCredentials, api.ErrorTypeUnauthenticated:
		return http.StatusUnauthorized
	case api.ErrorTypePaymentRequired:
		return http.StatusPaymentRequired
	case api.ErrorTypeForbidden:
		return http.StatusForbidden
	case api.ErrorTypeNotFound:
		return http.StatusNotFound
	case api.ErrorTypeRateLimited:
		return http.StatusTooManyRequests
	default:
		return http.StatusInternalServerError
	}
}

// WriteErrorResponse writes a JSON error response using the ErrorResponse
// wrapper format from pkg/api. It sets the Content-Type header and writes
// the HTTP status code.
func WriteErrorResponse(w http.ResponseWriter, apiErr *api.APIError, statusCode int) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(statusCode)
	json.NewEncoder(w).Encode(api.ErrorResponse{Error: apiErr})
}

// WriteAPIError writes an APIError response, deriving the HTTP status code
// from the error type. Rate limit errors also get a Retry-After header in
// whole seconds, rounded up.
func WriteAPIError(w http.ResponseWriter, apiErr *api.APIError) {
	status := HTTPStatusFromError(apiErr)
	switch status {
	case http.StatusTooManyRequests:
		if apiErr.RetryAfterSeconds > 0 {
			w.Header().Set("Retry-After", strconv.Itoa(apiErr.RetryAfterSeconds))
		}
	case http.StatusUnauthorized:
		w.Header().Set("WWW-Authenticate", `Bearer realm="digsite"`)
	}
	WriteErrorResponse(w, apiErr, status)
}

// WriteError writes err as an API error. An *api.APIError anywhere in the
// chain is written as is; anything else is logged with the request id and
// answered with a generic server error.
func WriteError(w http.ResponseWriter, r *http.Request, err error) {
	var apiErr *api.APIError
	if errors.As(err, &apiErr) {
		WriteAPIError(w, apiErr)
		return
	}
	slog.Error("internal error",
		"request_id", RequestIDFromContext(r.Context()),
		"path", LogPath(r),
		"error", err,
	)
	WriteAPIError(w, api.NewServerError())
}

// WriteJSON writes v as a JSON body with the given status.
func WriteJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(v)
}

// WriteData writes {"success":true,"data":data}.
func WriteData(w http.ResponseWriter, status int, data any) {
	WriteJSON(w, status, api.Envelope{Success: true, Data: data})
}

// WriteMessage writes {"success":true,"message":msg} with status 200.
func WriteMessage(w http.ResponseWriter, msg string) {
	WriteJSON(w, http.StatusOK, api.Envelope{Success: true, Message: msg})
}

// DecodeJSON decodes the request body into v. Bodies larger than maxBytes,
// unknown fields, trailing data, and non-JSON content types are validation
// errors.
func DecodeJSON(r *http.Request, maxBytes int64, v any) *api.APIError {
	if ct := r.Header.Get("Content-Type"); ct != "" && !strings.HasPrefix(ct, "application/json") {
		return api.NewValidationError("body", fmt.Sprintf("unsupported content type %q", ct))
	}

	body := io.Reader(r.Body)
	if maxBytes > 0 {
		body = io.LimitReader(r.Body, maxBytes+1)
	}
	data, err := io.ReadAll(body)
	if err != nil {
		return api.NewValidationError("body", "failed to read request body")
	}
	if maxBytes > 0 && int64(len(data)) > maxBytes {
		return api.NewValidationError("body", fmt.Sprintf("request body exceeds %d bytes", maxBytes))
	}
	if len(data) == 0 {
		return api.NewValidationError("body", "request body is required")
	}

	dec := json.NewDecoder(bytes.NewReader(data))
	dec.DisallowUnknownFields()
	if err := dec.Decode(v); err != nil {
		return api.NewValidationError("body", "invalid JSON: "+jsonErrorText(err))
	}
	if dec.More() {
		return api.NewValidationError("body", "unexpected data after JSON object")
	}
	return nil
}

// jsonErrorText strips the "json: " prefix the encoding package adds.
func jsonErrorText(err error) string {
	return strings.TrimPrefix(err.Error(), "json: ")
}
