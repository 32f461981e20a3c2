package authmanagement_test

import (
	"context"
	"fmt"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"

	authmanagement "github.com/MHerszak/authentication-management"
)

// MockStore implements authmanagement.Store
type MockStore struct {
	mock.Mock
}

func (m *MockStore) Find(ctx context.Context, query authmanagement.Query) (authmanagement.FindResult, error) {
	args := m.Called(ctx, query)
	result, _ := args.Get(0).(authmanagement.FindResult)
	return result, args.Error(1)
}

func (m *MockStore) Patch(ctx context.Context, id string, patch authmanagement.Patch) error {
	args := m.Called(ctx, id, patch)
	return args.Error(0)
}

// MockNotifier implements authmanagement.Notifier
type MockNotifier struct {
	mock.Mock
}

func (m *MockNotifier) Notify(ctx context.Context, n authmanagement.Notification) error {
	args := m.Called(ctx, n)
	return args.Error(0)
}

// plainHasher keeps tests fast, bcrypt has its own tests.
type plainHasher struct{}

func (plainHasher) HashPassword(password string) (string, error) {
	if password == "" {
		return "", fmt.Errorf("empty password")
	}
	return "hashed:" + password, nil
}

func (plainHasher) ComparePasswordAndHash(password, hash string) error {
	if hash != "hashed:"+password {
		return fmt.Errorf("mismatch")
	}
	return nil
}

// seqGenerator hands out predictable tokens.
type seqGenerator struct {
	mu sync.Mutex
	n  int
}

func (g *seqGenerator) Long(byteLength int) (string, error) {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.n++
	return fmt.Sprintf("%0*d", byteLength*2, g.n), nil
}

func (g *seqGenerator) Short(length int, digitsOnly bool) (string, error) {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.n++
	return fmt.Sprintf("%0*d", length, g.n), nil
}

type failingGenerator struct{}

func (failingGenerator) Long(int) (string, error)        { return "", fmt.Errorf("no entropy") }
func (failingGenerator) Short(int, bool) (string, error) { return "", fmt.Errorf("no entropy") }

// memStore is an in-memory Store. Find matches identity, token and id fields.
type memStore struct {
	mu      sync.Mutex
	users   map[string]*authmanagement.User
	finds   int
	patches []authmanagement.Patch
	findErr error
}

func newMemStore(users ...*authmanagement.User) *memStore {
	s := &memStore{users: map[string]*authmanagement.User{}}
	for _, u := range users {
		s.users[u.ID] = cloneUser(u)
	}
	return s
}

func (s *memStore) Find(_ context.Context, query authmanagement.Query) (authmanagement.FindResult, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.finds++
	if s.findErr != nil {
		return nil, s.findErr
	}

	out := authmanagement.UserList{}
	for _, u := range s.users {
		if matches(u, query) {
			out = append(out, cloneUser(u))
		}
	}
	return out, nil
}

func (s *memStore) Patch(_ context.Context, id string, patch authmanagement.Patch) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	u, ok := s.users[id]
	if !ok {
		return fmt.Errorf("user %s not found", id)
	}
	s.patches = append(s.patches, patch)
	patch.Apply(u)
	return nil
}

func (s *memStore) get(t *testing.T, id string) *authmanagement.User {
	t.Helper()
	s.mu.Lock()
	defer s.mu.Unlock()
	u, ok := s.users[id]
	require.True(t, ok, "user %s not in store", id)
	return cloneUser(u)
}

func (s *memStore) patchCount() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.patches)
}

// condStore adds conditional patches to memStore.
type condStore struct {
	*memStore
	// beforePatchIf runs inside PatchIf before the guard is checked.
	beforePatchIf func(u *authmanagement.User)
}

func (s *condStore) PatchIf(_ context.Context, id string, patch authmanagement.Patch, cond authmanagement.Condition) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	u, ok := s.users[id]
	if !ok {
		return fmt.Errorf("user %s not found", id)
	}
	if s.beforePatchIf != nil {
		s.beforePatchIf(u)
	}
	if fieldValue(u, cond.Field) != cond.Value {
		return authmanagement.ErrPatchConditionFailed
	}
	s.patches = append(s.patches, patch)
	patch.Apply(u)
	return nil
}

func matches(u *authmanagement.User, query authmanagement.Query) bool {
	if len(query) == 0 {
		return false
	}
	for field, value := range query {
		if fieldValue(u, field) != value {
			return false
		}
	}
	return true
}

func fieldValue(u *authmanagement.User, field string) string {
	switch field {
	case authmanagement.FieldID:
		return u.ID
	case authmanagement.FieldVerifyToken:
		return u.Verify.Long
	case authmanagement.FieldVerifyShortToken:
		return u.Verify.Short
	case authmanagement.FieldResetToken:
		return u.Reset.Long
	case authmanagement.FieldResetShortToken:
		return u.Reset.Short
	}
	if v, ok := u.Identity[field]; ok {
		return v
	}
	return "\x00missing"
}

func cloneUser(u *authmanagement.User) *authmanagement.User {
	c := *u
	c.Identity = map[string]string{}
	for k, v := range u.Identity {
		c.Identity[k] = v
	}
	c.VerifyChanges = u.VerifyChanges.Clone()
	if u.Verify.Expires != nil {
		exp := *u.Verify.Expires
		c.Verify.Expires = &exp
	}
	if u.Reset.Expires != nil {
		exp := *u.Reset.Expires
		c.Reset.Expires = &exp
	}
	return &c
}

// recordingNotifier keeps every notification.
type recordingNotifier struct {
	mu   sync.Mutex
	sent []authmanagement.Notification
}

func (n *recordingNotifier) Notify(_ context.Context, note authmanagement.Notification) error {
	n.mu.Lock()
	defer n.mu.Unlock()
	n.sent = append(n.sent, note)
	return nil
}

func (n *recordingNotifier) last(t *testing.T) authmanagement.Notification {
	t.Helper()
	n.mu.Lock()
	defer n.mu.Unlock()
	require.NotEmpty(t, n.sent, "no notification sent")
	return n.sent[len(n.sent)-1]
}

func (n *recordingNotifier) count() int {
	n.mu.Lock()
	defer n.mu.Unlock()
	return len(n.sent)
}

// testClock is a settable clock.
type testClock struct {
	mu  sync.Mutex
	now time.Time
}

func newTestClock() *testClock {
	return &testClock{now: time.Date(2024, 3, 1, 12, 0, 0, 0, time.UTC)}
}

func (c *testClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *testClock) Set(t time.Time) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.now = t
}

// silentLogger drops everything.
type silentLogger struct{}

func (silentLogger) Trace(string, ...any) {}
func (silentLogger) Debug(string, ...any) {}
func (silentLogger) Info(string, ...any)  {}
func (silentLogger) Warn(string, ...any)  {}
func (silentLogger) Error(string, ...any) {}
func (silentLogger) Fatal(string, ...any) {}

func (l silentLogger) WithContext(context.Context) authmanagement.Logger { return l }

type fixture struct {
	store    *memStore
	notifier *recordingNotifier
	clock    *testClock
	svc      *authmanagement.Service
}

func newFixture(t *testing.T, store authmanagement.Store, mem *memStore, opts ...authmanagement.Option) *fixture {
	t.Helper()
	f := &fixture{
		store:    mem,
		notifier: &recordingNotifier{},
		clock:    newTestClock(),
	}

	base := []authmanagement.Option{
		authmanagement.WithNotifier(f.notifier),
		authmanagement.WithPasswordAuthenticator(plainHasher{}),
		authmanagement.WithTokenGenerator(&seqGenerator{}),
		authmanagement.WithClock(f.clock.Now),
		authmanagement.WithLogger(silentLogger{}),
	}

	svc, err := authmanagement.New(store, append(base, opts...)...)
	require.NoError(t, err)
	f.svc = svc
	return f
}

func newMemFixture(t *testing.T, users []*authmanagement.User, opts ...authmanagement.Option) *fixture {
	t.Helper()
	mem := newMemStore(users...)
	return newFixture(t, mem, mem, opts...)
}

func unverifiedUser(id, email string, expires time.Time) *authmanagement.User {
	return &authmanagement.User{
		ID:           id,
		Identity:     map[string]string{"email": email},
		PasswordHash: "hashed:secret",
		Verify: authmanagement.Tokens{
			Long:    strings.Repeat("a", 30),
			Short:   "123456",
			Expires: &expires,
		},
		VerifyChanges: authmanagement.Changes{},
	}
}

func verifiedUser(id, email string) *authmanagement.User {
	return &authmanagement.User{
		ID:            id,
		Identity:      map[string]string{"email": email},
		PasswordHash:  "hashed:secret",
		IsVerified:    true,
		VerifyChanges: authmanagement.Changes{},
	}
}
