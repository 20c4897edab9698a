package domainerrors

import (
	"errors"
	"fmt"
	"net/http"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestIs(t *testing.T) {
	err := New(CodeForbidden, "auditor firm not assigned")
	assert.True(t, Is(err, CodeForbidden))
	assert.False(t, Is(err, CodeNotFound))
	assert.False(t, Is(errors.New("plain"), CodeForbidden))

	wrapped := fmt.Errorf("handler: %w", err)
	assert.True(t, Is(wrapped, CodeForbidden))
}

func TestCodeOf(t *testing.T) {
	assert.Equal(t, CodeValidation, CodeOf(New(CodeValidation, "missing subject")))
	assert.Equal(t, CodeInternal, CodeOf(errors.New("db gone")))
}

func TestWrapPreservesCause(t *testing.T) {
	cause := errors.New("no rows")
	err := Wrap(cause, CodeNotFound, "audit not found")
	assert.True(t, errors.Is(err, cause))
	assert.Equal(t, CodeNotFound, CodeOf(err))
}

func TestToHTTPStatus(t *testing.T) {
	cases := map[Code]int{
		CodeForbidden:              http.StatusForbidden,
		CodeNotFound:               http.StatusNotFound,
		CodeValidation:             http.StatusBadRequest,
		CodeInvalidState:           http.StatusConflict,
		CodeConflictingObservation: http.StatusConflict,
		CodeNoticeStillPending:     http.StatusConflict,
		CodeInternal:               http.StatusInternalServerError,
	}
	for code, want := range cases {
		assert.Equal(t, want, ToHTTPStatus(code), string(code))
	}
}
