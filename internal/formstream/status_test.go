package formstream

import (
	"fmt"
	"net/http"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestHTTPStatus(t *testing.T) {
	cases := map[ErrorCode]int{
		CodeTimeout:        http.StatusRequestTimeout,
		CodeRequest:        http.StatusBadRequest,
		CodeNoFiles:        http.StatusUnprocessableEntity,
		CodeFileProcessing: http.StatusInternalServerError,
		CodeUnknown:        http.StatusInternalServerError,
	}
	for code, want := range cases {
		assert.Equal(t, want, HTTPStatus(&Error{Code: code}), code)
	}

	tooLarge := newError(CodeRequest, "read multipart body", fmt.Errorf("multipart: NextPart: %w", &http.MaxBytesError{Limit: 10}))
	assert.Equal(t, http.StatusRequestEntityTooLarge, HTTPStatus(tooLarge))
}
