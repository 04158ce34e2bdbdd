package formstream

import (
	"errors"
	"net/http"
)

// HTTPStatus maps a failed upload to the status an HTTP front end answers
// with. A body cut off by http.MaxBytesReader is 413 whatever its code.
func HTTPStatus(err *Error) int {
	var tooLarge *http.MaxBytesError
	if errors.As(err, &tooLarge) {
		return http.StatusRequestEntityTooLarge
	}
	switch err.Code {
	case CodeTimeout:
		return http.StatusRequestTimeout
	case CodeRequest:
		return http.StatusBadRequest
	case CodeNoFiles:
		return http.StatusUnprocessableEntity
	default:
		return http.StatusInternalServerError
	}
}
