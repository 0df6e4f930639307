package handler

import (
	"encoding/json"
	"net/http"

	"github.com/mcoot/battleship-go/internal/api/apierr"
)

// WriteError writes an error response to the response writer
func WriteError(w http.ResponseWriter, err error) {
	apierr.WriteError(w, err)
}

// NewInvalidRequestError creates an invalid request error
func NewInvalidRequestError(message string) error {
	return apierr.NewInvalidRequestError(message)
}

// decodeBody decodes a JSON request body into dst
func decodeBody(r *http.Request, dst any) error {
	if r.Body == nil {
		return NewInvalidRequestError("request body is required")
	}
	if err := json.NewDecoder(r.Body).Decode(dst); err != nil {
		return NewInvalidRequestError("invalid request body")
	}
	return nil
}
