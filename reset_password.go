package authmanagement

import (
	"context"

	validation "github.com/go-ozzo/ozzo-validation"
)

// ResetEngine issues and consumes password reset tokens. Only verified users
// can reset their password.
type ResetEngine struct {
	*engine
}

// SendResetPwd issues a fresh reset triple for the user matched by identity.
func (r *ResetEngine) SendResetPwd(ctx context.Context, identity Query, notifierOptions map[string]any) (SanitizedUser, error) {
	if err := checkContext(ctx, "send reset password"); err != nil {
		return nil, err
	}

	if err := r.validator.Validate(identity, r.identifyUserProps()); err != nil {
		return nil, err
	}

	user, err := r.resolver.Resolve(ctx, identity, PredicateIsVerified)
	if err != nil {
		return nil, err
	}

	tokens, err := r.issueTokens(r.cfg.ResetDelay)
	if err != nil {
		return nil, err
	}

	if err := r.patch(ctx, user, Patch{Reset: tokensPtr(tokens)}); err != nil {
		return nil, err
	}

	if err := r.notify(ctx, NotifySendResetPwd, user, notifierOptions, nil); err != nil {
		return nil, err
	}

	r.logger.Info("password reset token issued", "user_id", user.ID)
	return SanitizeForClient(user), nil
}

// ResetPwdLong sets a new password using a long reset token.
func (r *ResetEngine) ResetPwdLong(ctx context.Context, token, password string) (SanitizedUser, error) {
	if err := checkContext(ctx, "reset password"); err != nil {
		return nil, err
	}

	if err := requireValues(map[string]string{"token": token, "password": password}); err != nil {
		return nil, err
	}

	hash, err := r.hash(password)
	if err != nil {
		return nil, err
	}

	user, err := r.resolver.Resolve(ctx, Query{FieldResetToken: token},
		PredicateIsVerified,
		PredicateResetNotExpired,
	)
	if err != nil {
		return nil, err
	}

	return r.reset(ctx, user, hash, tokensEqual(token, user.Reset.Long))
}

// ResetPwdShort sets a new password using a short reset token and an
// identity query.
func (r *ResetEngine) ResetPwdShort(ctx context.Context, token string, identity Query, password string) (SanitizedUser, error) {
	if err := checkContext(ctx, "reset password"); err != nil {
		return nil, err
	}

	if err := requireValues(map[string]string{"token": token, "password": password}); err != nil {
		return nil, err
	}

	if err := r.validator.Validate(identity, r.identifyUserProps()); err != nil {
		return nil, err
	}

	hash, err := r.hash(password)
	if err != nil {
		return nil, err
	}

	user, err := r.resolver.Resolve(ctx, identity,
		PredicateIsVerified,
		PredicateResetNotExpired,
	)
	if err != nil {
		return nil, err
	}

	return r.reset(ctx, user, hash, tokensEqual(token, user.Reset.Short))
}

// hash runs before the lookup so timing does not reveal whether a token exists.
func (r *ResetEngine) hash(password string) (string, error) {
	hash, err := r.hasher.HashPassword(password)
	if err != nil {
		return "", wrapError(err, ErrHashFailure, nil)
	}
	return hash, nil
}

func (r *ResetEngine) reset(ctx context.Context, user *User, hash string, matched bool) (SanitizedUser, error) {
	readToken := user.Reset.Long

	if !matched {
		if err := r.patch(ctx, user, Patch{Reset: tokensPtr(ClearedTokens())}); err != nil {
			return nil, err
		}
		r.logger.Warn("reset token mismatch, tokens erased", "user_id", user.ID)
		return nil, newError(ErrInvalidToken, map[string]any{"user_id": user.ID})
	}

	patch := Patch{
		PasswordHash: stringPtr(hash),
		Reset:        tokensPtr(ClearedTokens()),
	}
	if err := r.consume(ctx, user, patch, Condition{Field: FieldResetToken, Value: readToken}); err != nil {
		return nil, err
	}

	if err := r.notify(ctx, NotifyResetPwd, user, nil, nil); err != nil {
		return nil, err
	}

	r.logger.Info("password reset", "user_id", user.ID)
	return SanitizeForClient(user), nil
}

// requireValues rejects blank token and password payload values.
func requireValues(values map[string]string) error {
	fields := make(map[string]string)
	for name, value := range values {
		if err := validation.Validate(value, validation.Required); err != nil {
			fields[name] = err.Error()
		}
	}
	if len(fields) == 0 {
		return nil
	}
	return newError(ErrInvalidPayload, fieldErrors(fields))
}
