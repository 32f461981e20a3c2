package authmanagement_test

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	authmanagement "github.com/MHerszak/authentication-management"
)

func TestDefaultConfig(t *testing.T) {
	cfg := authmanagement.DefaultConfig()
	require.NoError(t, cfg.Validate())

	assert.Equal(t, "authManagement", cfg.Name)
	assert.Equal(t, "users", cfg.ServiceName)
	assert.Equal(t, []string{"email"}, cfg.IdentifyUserProps)
	assert.Equal(t, 15, cfg.LongTokenLen)
	assert.Equal(t, 6, cfg.ShortTokenLen)
	assert.True(t, cfg.ShortTokenDigits)
	assert.Equal(t, 5*24*time.Hour, cfg.VerifyDelay)
	assert.Equal(t, 2*time.Hour, cfg.ResetDelay)

	cfg.IdentifyUserProps[0] = "changed"
	assert.Equal(t, []string{"email"}, authmanagement.DefaultIdentifyUserProps)
}

func TestWithConfig(t *testing.T) {
	cfg := authmanagement.DefaultConfig()
	cfg.Name = "custom"
	cfg.ShortTokenDigits = false
	cfg.IdentifyUserProps = []string{"email", "phone"}

	svc, err := authmanagement.New(newMemStore(),
		authmanagement.WithConfig(cfg),
		authmanagement.WithResetDelay(time.Minute),
		authmanagement.WithLogger(silentLogger{}),
	)
	require.NoError(t, err)

	got := svc.Config()
	assert.Equal(t, "custom", got.Name)
	assert.False(t, got.ShortTokenDigits)
	assert.Equal(t, time.Minute, got.ResetDelay)
	assert.Equal(t, []string{"email", "phone"}, got.IdentifyUserProps)

	cfg.IdentifyUserProps[1] = "mutated"
	assert.Equal(t, []string{"email", "phone"}, svc.Config().IdentifyUserProps)
}

func TestAlphanumericShortTokens(t *testing.T) {
	store := newMemStore(verifiedUser("u1", "ann@example.com"))
	svc, err := authmanagement.New(store,
		authmanagement.WithShortTokenDigits(false),
		authmanagement.WithLongTokenLen(8),
		authmanagement.WithLogger(silentLogger{}),
		authmanagement.WithPasswordAuthenticator(plainHasher{}),
	)
	require.NoError(t, err)

	_, err = svc.Reset().SendResetPwd(context.Background(), authmanagement.Query{"email": "ann@example.com"}, nil)
	require.NoError(t, err)

	stored := store.get(t, "u1")
	assert.Len(t, stored.Reset.Long, 16)
	assert.Regexp(t, `^[2-9A-HJKMNP-Z]{6}$`, stored.Reset.Short)
	assert.Regexp(t, `[A-Z]`, stored.Reset.Short)
}
