package apperr

import (
	"errors"
	"fmt"
	"net/http"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestIsUnwrapsWrappedErrors(t *testing.T) {
	err := fmt.Errorf("award: %w", AlreadyCompleted("task already completed"))

	assert.True(t, Is(err, CodeAlreadyCompleted))
	assert.False(t, Is(err, CodeNotFound))
	assert.False(t, Is(errors.New("plain"), CodeNotFound))
}

func TestFrom(t *testing.T) {
	assert.Nil(t, From(nil))

	ae := From(errors.New("disk on fire"))
	assert.Equal(t, http.StatusInternalServerError, ae.GetStatus())
	assert.Equal(t, CodeInternal, ae.Code)
	assert.Equal(t, "disk on fire", ae.Details)

	nf := NotFound("user")
	assert.Same(t, nf, From(fmt.Errorf("lookup: %w", nf)))
}

func TestWithStatusCopies(t *testing.T) {
	orig := AlreadyCompleted("done")
	bad := orig.WithStatus(http.StatusBadRequest)

	assert.Equal(t, http.StatusConflict, orig.Status)
	assert.Equal(t, http.StatusBadRequest, bad.Status)
	assert.Equal(t, "already completed", bad.Reason)
}
