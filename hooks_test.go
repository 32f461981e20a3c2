package authmanagement_test

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	authmanagement "github.com/MHerszak/authentication-management"
)

func TestAddVerification(t *testing.T) {
	f := newMemFixture(t, nil)
	user := &authmanagement.User{
		ID:         "new",
		Identity:   map[string]string{"email": "ann@example.com"},
		IsVerified: true,
	}

	require.NoError(t, f.svc.AddVerification(context.Background(), user))

	assert.False(t, user.IsVerified)
	assert.Len(t, user.Verify.Long, 30)
	assert.Len(t, user.Verify.Short, 6)
	require.NotNil(t, user.Verify.Expires)
	assert.True(t, user.Verify.Expires.Equal(f.clock.Now().Add(5*24*time.Hour)))
	assert.NotNil(t, user.VerifyChanges)
	assert.Empty(t, user.VerifyChanges)
}

func TestAddVerificationFailureIsGeneralError(t *testing.T) {
	f := newMemFixture(t, nil, authmanagement.WithTokenGenerator(failingGenerator{}))

	err := f.svc.AddVerification(context.Background(), &authmanagement.User{ID: "new"})
	require.Error(t, err)
	assert.True(t, authmanagement.IsGeneralError(err))
}

func TestRemoveVerification(t *testing.T) {
	f := newMemFixture(t, nil)

	tests := []struct {
		name         string
		caller       authmanagement.HookCaller
		returnTokens bool
		wantMissing  []string
		wantPresent  []string
	}{
		{
			name:        "internal caller sees everything",
			caller:      authmanagement.CallerInternal,
			wantPresent: append([]string{}, authmanagement.ClientSecretFields...),
		},
		{
			name:   "external caller",
			caller: authmanagement.CallerExternal,
			wantMissing: []string{
				authmanagement.FieldPassword,
				authmanagement.FieldVerifyExpires, authmanagement.FieldResetExpires, authmanagement.FieldVerifyChanges,
				authmanagement.FieldVerifyToken, authmanagement.FieldVerifyShortToken,
				authmanagement.FieldResetToken, authmanagement.FieldResetShortToken,
			},
			wantPresent: []string{authmanagement.FieldIsVerified, "email"},
		},
		{
			name:         "external caller with tokens",
			caller:       authmanagement.CallerExternal,
			returnTokens: true,
			wantMissing: []string{
				authmanagement.FieldPassword,
				authmanagement.FieldVerifyExpires, authmanagement.FieldResetExpires, authmanagement.FieldVerifyChanges,
			},
			wantPresent:  []string{authmanagement.FieldVerifyToken, authmanagement.FieldResetShortToken},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			out := f.svc.RemoveVerification(fullUser(), tt.caller, tt.returnTokens)
			for _, key := range tt.wantMissing {
				assert.NotContains(t, out, key)
			}
			for _, key := range tt.wantPresent {
				assert.Contains(t, out, key)
			}
		})
	}

	assert.Nil(t, f.svc.RemoveVerification(nil, authmanagement.CallerExternal, false))
}

func TestRemoveVerificationWithoutVerifiedFlag(t *testing.T) {
	f := newMemFixture(t, nil)
	out := f.svc.RemoveVerification(authmanagement.Record{"id": "u1", "verify_token": "t"}, authmanagement.CallerExternal, false)
	assert.Equal(t, authmanagement.SanitizedUser{"id": "u1"}, out)
}

func TestRequireVerified(t *testing.T) {
	assert.NoError(t, authmanagement.RequireVerified(verifiedUser("u1", "a@example.com")))

	err := authmanagement.RequireVerified(&authmanagement.User{ID: "u2"})
	require.Error(t, err)
	assert.True(t, authmanagement.IsBadRequest(err))

	assert.Error(t, authmanagement.RequireVerified(nil))
}
