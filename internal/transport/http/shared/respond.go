// Package shared holds response helpers common to all HTTP handlers.
package shared

import (
	"encoding/json"
	"net/http"

	dErrors "tidemark/pkg/domain-errors"
)

// ErrorResponse is the uniform error body returned by every endpoint.
type ErrorResponse struct {
	Error struct {
		Code    string `json:"code"`
		Message string `json:"message"`
	} `json:"error"`
}

// WriteError maps a domain error onto an HTTP status and writes the uniform
// error body. Unknown errors become a 500 with no internal detail leaked.
func WriteError(w http.ResponseWriter, err error) {
	code := dErrors.CodeOf(err)
	message := "internal error"
	if code != dErrors.CodeInternal {
		message = err.Error()
	}

	var body ErrorResponse
	body.Error.Code = string(code)
	body.Error.Message = message

	WriteJSON(w, dErrors.ToHTTPStatus(code), body)
}

// WriteJSON writes v as a JSON response with the given status.
func WriteJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}
