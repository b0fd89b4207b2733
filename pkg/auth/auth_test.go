package auth

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/AXLMRIN/activetigger-go/pkg/errs"
	"github.com/AXLMRIN/activetigger-go/pkg/models"
)

func TestHashAndVerifyPasswordRoundTrip(t *testing.T) {
	hash, err := HashPassword("correct horse battery staple")
	require.NoError(t, err)
	assert.NotEqual(t, "correct horse battery staple", hash)
	assert.True(t, VerifyPassword(hash, "correct horse battery staple"))
	assert.False(t, VerifyPassword(hash, "wrong password"))
}

func TestHashPasswordRejectsEmpty(t *testing.T) {
	_, err := HashPassword("")
	require.Error(t, err)
	assert.Equal(t, errs.Invalid, errs.KindOf(err))
}

func TestAuthorizeMatrix(t *testing.T) {
	cases := []struct {
		status models.AuthStatus
		action models.Action
		allow  bool
	}{
		{models.AuthRoot, models.ActionManageServer, true},
		{models.AuthRoot, models.ActionDelete, true},
		{models.AuthManager, models.ActionAdd, true},
		{models.AuthManager, models.ActionManageServer, false},
		{models.AuthAnnotator, models.ActionGet, true},
		{models.AuthAnnotator, models.ActionUpdate, true},
		{models.AuthAnnotator, models.ActionDelete, false},
		{models.AuthAnnotator, models.ActionAdd, false},
		{models.AuthStatus("unknown"), models.ActionGet, false},
	}
	for _, tc := range cases {
		err := Authorize(tc.status, tc.action)
		if tc.allow {
			assert.NoErrorf(t, err, "%s should be allowed to %s", tc.status, tc.action)
		} else {
			require.Errorf(t, err, "%s should not be allowed to %s", tc.status, tc.action)
			assert.Equal(t, errs.Forbidden, errs.KindOf(err))
		}
	}
}
