package errs

import (
	"errors"
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestKindOf(t *testing.T) {
	cases := []struct {
		name string
		err  error
		want Kind
	}{
		{"nil", nil, ""},
		{"not found", NotFoundf("project %q", "x"), NotFound},
		{"already exists", AlreadyExistsf("slug %q", "y"), AlreadyExists},
		{"invalid", Invalidf("bad input"), Invalid},
		{"conflict", Conflictf("stale version"), Conflict},
		{"unavailable", Unavailablef("db down"), Unavailable},
		{"forbidden", Forbiddenf("denied"), Forbidden},
		{"internal wrap", Internalf(errors.New("boom"), "saving"), Internal},
		{"unrecognized plain error", fmt.Errorf("some other error"), Internal},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			assert.Equal(t, tc.want, KindOf(tc.err))
		})
	}
}

func TestErrorUnwrap(t *testing.T) {
	cause := errors.New("connection reset")
	err := Internalf(cause, "writing row")
	assert.ErrorIs(t, err, cause)
}

func TestErrorMessageIncludesCause(t *testing.T) {
	cause := errors.New("disk full")
	err := Internalf(cause, "saving project %q", "demo")
	assert.Contains(t, err.Error(), "disk full")
	assert.Contains(t, err.Error(), "demo")
}

func TestErrorMessageWithoutCause(t *testing.T) {
	err := NotFoundf("project %q", "missing")
	assert.NotContains(t, err.Error(), "<nil>")
	assert.Equal(t, "not_found: project \"missing\"", err.Error())
}

func TestAsExtractsConcreteError(t *testing.T) {
	var target *Error
	err := Forbiddenf("no access")
	assert.True(t, errors.As(err, &target))
	assert.Equal(t, Forbidden, target.Kind)
}
