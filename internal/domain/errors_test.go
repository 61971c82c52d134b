package domain

import (
	"errors"
	"fmt"
	"net/http"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestKindOf(t *testing.T) {
	assert.Equal(t, KindValidation, KindOf(ErrInvalidPaymentType))
	assert.Equal(t, KindNotFound, KindOf(fmt.Errorf("reserve: %w", ErrServiceNotFound)))
	assert.Equal(t, KindConflict, KindOf(ErrSlotNotAvailable))
	assert.Equal(t, KindInternal, KindOf(Internal("insert booking", errors.New("boom"))))
	assert.Equal(t, KindInternal, KindOf(errors.New("plain")))
	assert.Equal(t, ErrorKind(""), KindOf(nil))
}

func TestError_IsMatchesByKindAndMessage(t *testing.T) {
	assert.ErrorIs(t, Conflict("slot not available"), ErrSlotNotAvailable)
	assert.NotErrorIs(t, Validation("slot not available"), ErrSlotNotAvailable)

	wrapped := Internal("commit reservation", errors.New("connection reset"))
	assert.Equal(t, "commit reservation: connection reset", wrapped.Error())
	assert.Equal(t, "connection reset", errors.Unwrap(wrapped).Error())
}

func TestErrorKind_HTTPStatus(t *testing.T) {
	assert.Equal(t, http.StatusBadRequest, KindValidation.HTTPStatus())
	assert.Equal(t, http.StatusNotFound, KindNotFound.HTTPStatus())
	assert.Equal(t, http.StatusConflict, KindConflict.HTTPStatus())
	assert.Equal(t, http.StatusInternalServerError, KindInternal.HTTPStatus())
}
