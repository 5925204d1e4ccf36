package errors

import (
	"errors"
	"fmt"
	"net/http"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestStatusOf(t *testing.T) {
	cause := errors.New("cause")

	assert.Equal(t, http.StatusNotFound, StatusOf(NotFound("doctor", cause)))
	assert.Equal(t, http.StatusConflict, StatusOf(fmt.Errorf("wrapped: %w", Conflict("dup", nil))))
	assert.Equal(t, http.StatusBadGateway, StatusOf(BadGateway("remote", cause)))
	assert.Equal(t, http.StatusNotImplemented, StatusOf(NotImplemented("nope", nil)))
	assert.Equal(t, http.StatusInternalServerError, StatusOf(cause))
}

func TestAppErrorUnwrap(t *testing.T) {
	cause := errors.New("cause")
	err := Unavailable("offline", cause)

	assert.ErrorIs(t, err, cause)
	assert.Equal(t, "offline: cause", err.Error())
}
