package errs

import (
	"errors"
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestPredicates(t *testing.T) {
	tests := []struct {
		name string
		err  error
		pred func(error) bool
		want bool
	}{
		{"not found matches", New(ErrKindNotFound, "missing"), IsNotFound, true},
		{"not found mismatch", New(ErrKindTimeout, "slow"), IsNotFound, false},
		{"permission denied matches", New(ErrKindPermissionDenied, "denied"), IsPermissionDenied, true},
		{"plain error matches nothing", errors.New("plain"), IsQueryFailed, false},
		{"wrapped cause is traversed", fmt.Errorf("outer: %w", New(ErrKindQueryFailed, "bad sql")), IsQueryFailed, true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, tt.pred(tt.err))
		})
	}
}

func TestErrorString(t *testing.T) {
	e := Wrap(ErrKindConnectionFailed, "cannot reach postgres", errors.New("dial tcp: refused"))
	assert.Equal(t, "[connection_failed] cannot reach postgres: dial tcp: refused", e.Error())

	bare := New(ErrKindInvalidInput, "empty table name")
	assert.Equal(t, "[invalid_input] empty table name", bare.Error())
}

func TestUnwrap(t *testing.T) {
	cause := errors.New("root cause")
	e := Wrap(ErrKindUnknown, "wrapped", cause)
	assert.ErrorIs(t, e, cause)
}
