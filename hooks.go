package authmanagement

import "context"

// HookCaller tells the after hook who triggered the call. Internal calls get
// the record untouched.
type HookCaller int

const (
	CallerInternal HookCaller = iota
	CallerExternal
)

// AddVerification prepares a record before it is created: unverified, with a
// fresh verification triple and no pending changes.
func (s *Service) AddVerification(ctx context.Context, user *User) error {
	if err := checkContext(ctx, "add verification"); err != nil {
		return err
	}
	if user == nil {
		return newError(ErrInvalidPayload, map[string]any{"reason": "user is nil"})
	}

	tokens, err := s.verification.issueTokens(s.cfg.VerifyDelay)
	if err != nil {
		s.logger.Error("add verification: token generation failed", "error", err)
		return wrapError(err, ErrTokenGeneration, nil)
	}

	Patch{
		IsVerified:    boolPtr(false),
		Verify:        tokensPtr(tokens),
		VerifyChanges: Changes{},
	}.Apply(user)

	return nil
}

// RemoveVerification strips verification data from a record on its way out.
// External callers never see the password hash, expiries or pending changes,
// and see tokens only when returnTokens is set.
func (s *Service) RemoveVerification(record Projector, caller HookCaller, returnTokens bool) SanitizedUser {
	if record == nil {
		return nil
	}

	out := sanitize(record)
	if _, ok := out[FieldIsVerified]; !ok {
		s.logger.Warn("remove verification: is_verified not found in record, was AddVerification run on create?")
	}

	if caller != CallerExternal {
		return out
	}

	delete(out, FieldPassword)
	delete(out, FieldVerifyExpires)
	delete(out, FieldResetExpires)
	delete(out, FieldVerifyChanges)
	if !returnTokens {
		delete(out, FieldVerifyToken)
		delete(out, FieldVerifyShortToken)
		delete(out, FieldResetToken)
		delete(out, FieldResetShortToken)
	}
	return out
}

// RequireVerified guards operations reserved to verified users.
func RequireVerified(user *User) error {
	if user == nil || !user.IsVerified {
		return newError(ErrUserNotVerified, nil)
	}
	return nil
}
