package apperr

import (
	"errors"
	"fmt"
	"net/http"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestStatusMapping(t *testing.T) {
	cases := []struct {
		code   string
		status int
	}{
		{CodeProjectNotFound, http.StatusNotFound},
		{CodeProjectNotOwner, http.StatusForbidden},
		{CodeBidAlreadyActive, http.StatusConflict},
		{CodeEscrowExists, http.StatusConflict},
		{CodeEscrowNotHeld, http.StatusBadRequest},
		{CodeMilestoneOrderViolation, http.StatusBadRequest},
		{CodeMatchNotFound, http.StatusNotFound},
		{CodeUnauthorized, http.StatusUnauthorized},
		{CodeForbidden, http.StatusForbidden},
		{CodeInvalidInput, http.StatusBadRequest},
		{CodeConflict, http.StatusConflict},
		{CodeInternal, http.StatusInternalServerError},
	}
	for _, tc := range cases {
		assert.Equal(t, tc.status, StatusFor(tc.code), tc.code)
		assert.Equal(t, tc.status, New(tc.code, "x").Status, tc.code)
	}
}

func TestUnknownCodeMapsTo500(t *testing.T) {
	assert.Equal(t, http.StatusInternalServerError, StatusFor("NO_SUCH_CODE"))
	assert.Equal(t, http.StatusInternalServerError, New("NO_SUCH_CODE", "x").Status)
}

func TestFromUnwraps(t *testing.T) {
	base := New(CodeProjectNotFound, "project not found")
	wrapped := fmt.Errorf("loading project: %w", base)

	appErr := From(wrapped)
	require.NotNil(t, appErr)
	assert.Equal(t, CodeProjectNotFound, appErr.Code)

	assert.Nil(t, From(errors.New("plain")))
	assert.Nil(t, From(nil))
}

func TestIsCode(t *testing.T) {
	err := New(CodeEscrowInvalidAmount, "too much")
	assert.True(t, IsCode(err, CodeEscrowInvalidAmount))
	assert.False(t, IsCode(err, CodeEscrowNotFound))
	assert.False(t, IsCode(errors.New("plain"), CodeEscrowNotFound))
	assert.False(t, IsCode(nil, CodeEscrowNotFound))
}

func TestErrorString(t *testing.T) {
	err := New(CodeFeeNotFound, "fee not found")
	assert.Equal(t, "FEE_NOT_FOUND: fee not found", err.Error())
}

func TestInternalHelper(t *testing.T) {
	err := Internal("failed to load fee")
	assert.Equal(t, CodeInternal, err.Code)
	assert.Equal(t, http.StatusInternalServerError, err.Status)
}
