package apperr

import (
	"errors"
	"fmt"
	"net/http"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestAs(t *testing.T) {
	wrapped := fmt.Errorf("handler: %w", ProblemNotFound("two-sum"))
	e := As(wrapped)
	assert.Equal(t, CodeProblemNotFound, e.Code())
	assert.Equal(t, http.StatusNotFound, e.HTTPStatus())
	assert.Equal(t, "problem not found: two-sum", e.Error())

	cause := errors.New("boom")
	e = As(cause)
	assert.Equal(t, CodeInternal, e.Code())
	assert.Equal(t, http.StatusInternalServerError, e.HTTPStatus())
	assert.ErrorIs(t, e, cause)
}

func TestDefaultStatus(t *testing.T) {
	assert.Equal(t, http.StatusInternalServerError, New("x", "y").HTTPStatus())
	assert.Equal(t, http.StatusRequestEntityTooLarge, PayloadTooLarge().HTTPStatus())
	assert.Equal(t, http.StatusServiceUnavailable, Overloaded().HTTPStatus())
}
