package query

import (
	"errors"
	"net/http"
)

// Envelope is the response shape shared by every front end.
type Envelope struct {
	Status  string `json:"status"`
	Message string `json:"message,omitempty"`
	Data    any    `json:"data,omitempty"`
}

func Success(data any, message string) Envelope {
	return Envelope{Status: "success", Message: message, Data: data}
}

func Failure(err error) Envelope {
	return Envelope{Status: "error", Message: err.Error()}
}

// HTTPStatus maps an error to a response code: 400 for bad input, 500 otherwise.
func HTTPStatus(err error) int {
	if errors.Is(err, ErrInvalidInput) {
		return http.StatusBadRequest
	}
	return http.StatusInternalServerError
}
