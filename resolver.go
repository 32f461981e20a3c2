package authmanagement

import (
	"context"
	"time"
)

// Predicate is a named check applied to a resolved record.
type Predicate string

const (
	PredicateIsVerified                      Predicate = "isVerified"
	PredicateIsNotVerified                   Predicate = "isNotVerified"
	PredicateIsNotVerifiedOrHasPendingChange Predicate = "isNotVerifiedOrHasPendingChange"
	PredicateVerifyNotExpired                Predicate = "verifyNotExpired"
	PredicateResetNotExpired                 Predicate = "resetNotExpired"
)

// Resolver finds exactly one record for a query and checks predicates on it.
type Resolver struct {
	store  Store
	now    func() time.Time
	logger Logger
}

// NewResolver returns a Resolver. A nil clock falls back to time.Now.
func NewResolver(store Store, now func() time.Time, logger Logger) *Resolver {
	if now == nil {
		now = time.Now
	}
	if logger == nil {
		logger = defaultLogger()
	}
	return &Resolver{store: store, now: now, logger: logger}
}

// Resolve calls Store.Find once. Zero matches fail with ErrUserNotFound, more
// than one with ErrUserAmbiguous. A Page counts its Total, not just the
// records it carries. Predicates run in order and the first
// failure is returned.
func (r *Resolver) Resolve(ctx context.Context, query Query, predicates ...Predicate) (*User, error) {
	result, err := r.store.Find(ctx, query)
	if err != nil {
		r.logger.Error("resolve user: store find failed", "fields", query.Keys(), "error", err)
		return nil, wrapError(err, ErrStoreFailure, map[string]any{"operation": "find"})
	}

	records, count := matches(result)
	switch {
	case count == 0 || len(records) == 0:
		return nil, newError(ErrUserNotFound, map[string]any{"fields": query.Keys()})
	case count > 1:
		return nil, newError(ErrUserAmbiguous, map[string]any{
			"fields":  query.Keys(),
			"matches": count,
		})
	}

	user := records[0]
	if user == nil {
		return nil, newError(ErrUserNotFound, map[string]any{"fields": query.Keys()})
	}

	for _, p := range predicates {
		if err := r.check(user, p); err != nil {
			return nil, err
		}
	}

	return user, nil
}

func (r *Resolver) check(user *User, p Predicate) error {
	switch p {
	case PredicateIsVerified:
		if !user.IsVerified {
			return newError(ErrUserNotVerified, map[string]any{"user_id": user.ID})
		}
	case PredicateIsNotVerified:
		if user.IsVerified {
			return newError(ErrUserAlreadyVerified, map[string]any{"user_id": user.ID})
		}
	case PredicateIsNotVerifiedOrHasPendingChange:
		if user.IsVerified && len(user.VerifyChanges) == 0 {
			return newError(ErrNothingToVerify, map[string]any{"user_id": user.ID})
		}
	case PredicateVerifyNotExpired:
		if user.Verify.ExpiredAt(r.now()) {
			return newError(ErrVerifyTokenExpired, map[string]any{"user_id": user.ID})
		}
	case PredicateResetNotExpired:
		if user.Reset.ExpiredAt(r.now()) {
			return newError(ErrResetTokenExpired, map[string]any{"user_id": user.ID})
		}
	default:
		return newError(ErrInvalidConfig, map[string]any{"predicate": string(p)})
	}
	return nil
}
