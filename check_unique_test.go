package authmanagement_test

import (
	"context"
	"errors"
	"testing"

	goerrors "github.com/goliatone/go-errors"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"

	authmanagement "github.com/MHerszak/authentication-management"
)

func TestCheckUnique(t *testing.T) {
	users := []*authmanagement.User{
		{ID: "u1", Identity: map[string]string{"email": "ann@example.com", "username": "ann"}},
		{ID: "u2", Identity: map[string]string{"email": "bob@example.com", "username": "bob"}},
		{ID: "u3", Identity: map[string]string{"email": "dup@example.com"}},
		{ID: "u4", Identity: map[string]string{"email": "dup@example.com"}},
	}

	tests := []struct {
		name      string
		identity  authmanagement.Query
		ownID     string
		wantTaken []string
	}{
		{name: "free value", identity: authmanagement.Query{"email": "new@example.com"}},
		{name: "own value", identity: authmanagement.Query{"email": "ann@example.com"}, ownID: "u1"},
		{name: "value of other user", identity: authmanagement.Query{"email": "ann@example.com"}, ownID: "u2", wantTaken: []string{"email"}},
		{name: "no own id", identity: authmanagement.Query{"email": "bob@example.com"}, wantTaken: []string{"email"}},
		{name: "several matches", identity: authmanagement.Query{"email": "dup@example.com"}, ownID: "u3", wantTaken: []string{"email"}},
		{name: "trimmed", identity: authmanagement.Query{"email": "  bob@example.com "}, wantTaken: []string{"email"}},
		{name: "blank ignored", identity: authmanagement.Query{"email": "  "}},
		{name: "empty", identity: authmanagement.Query{}},
		{
			name:      "per field",
			identity:  authmanagement.Query{"email": "free@example.com", "username": "bob"},
			ownID:     "u1",
			wantTaken: []string{"username"},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			f := newMemFixture(t, users, authmanagement.WithIdentifyUserProps("email", "username"))

			err := f.svc.Uniqueness().CheckUnique(context.Background(), tt.identity, tt.ownID, false)
			if len(tt.wantTaken) == 0 {
				require.NoError(t, err)
				return
			}

			require.Error(t, err)
			assert.True(t, authmanagement.HasTextCode(err, authmanagement.TextCodeValuesTaken))

			var richErr *goerrors.Error
			require.True(t, goerrors.As(err, &richErr))
			errs, ok := richErr.Metadata["errors"].(map[string]any)
			require.True(t, ok)
			assert.Len(t, errs, len(tt.wantTaken))
			for _, field := range tt.wantTaken {
				assert.Equal(t, "Already taken.", errs[field])
			}
		})
	}
}

func TestCheckUniqueNoErrMsg(t *testing.T) {
	f := newMemFixture(t, []*authmanagement.User{verifiedUser("u1", "ann@example.com")})

	err := f.svc.Uniqueness().CheckUnique(context.Background(), authmanagement.Query{"email": "ann@example.com"}, "", true)
	require.Error(t, err)

	var richErr *goerrors.Error
	require.True(t, goerrors.As(err, &richErr))
	assert.Empty(t, richErr.Message)
	assert.NotEmpty(t, richErr.Metadata["errors"])

	// the package sentinel keeps its message
	assert.NotEmpty(t, authmanagement.ErrValuesTaken.Message)
}

func TestCheckUniqueRejectsUnknownField(t *testing.T) {
	f := newMemFixture(t, nil)

	err := f.svc.Uniqueness().CheckUnique(context.Background(), authmanagement.Query{"ssn": "123"}, "", false)
	require.Error(t, err)
	assert.True(t, authmanagement.HasTextCode(err, authmanagement.TextCodeInvalidIdentity))
	assert.Zero(t, f.store.finds)
}

func TestCheckUniqueStoreFailure(t *testing.T) {
	store := &MockStore{}
	store.On("Find", mock.Anything, authmanagement.Query{"email": "ann@example.com"}).
		Return(nil, errors.New("db down"))

	svc, err := authmanagement.New(store, authmanagement.WithLogger(silentLogger{}))
	require.NoError(t, err)

	err = svc.Uniqueness().CheckUnique(context.Background(), authmanagement.Query{"email": "ann@example.com"}, "", false)
	require.Error(t, err)
	assert.True(t, authmanagement.IsGeneralError(err))
	assert.True(t, authmanagement.HasTextCode(err, authmanagement.TextCodeStoreFailure))
	store.AssertExpectations(t)
}

func TestCheckUniqueCountsTruncatedPage(t *testing.T) {
	store := &MockStore{}
	store.On("Find", mock.Anything, authmanagement.Query{"email": "dup@example.com"}).
		Return(&authmanagement.Page{
			Total: 2,
			Limit: 1,
			Data:  []*authmanagement.User{{ID: "u1", Identity: map[string]string{"email": "dup@example.com"}}},
		}, nil)

	svc, err := authmanagement.New(store, authmanagement.WithLogger(silentLogger{}))
	require.NoError(t, err)

	err = svc.Uniqueness().CheckUnique(context.Background(), authmanagement.Query{"email": "dup@example.com"}, "u1", false)
	require.Error(t, err)
	assert.True(t, authmanagement.HasTextCode(err, authmanagement.TextCodeValuesTaken))
	store.AssertExpectations(t)
}
