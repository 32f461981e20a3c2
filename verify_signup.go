package authmanagement

import "context"

// VerificationEngine issues and consumes sign up verification tokens. The same
// tokens confirm pending identity changes.
type VerificationEngine struct {
	*engine
}

// ResendVerifySignup issues a fresh verification triple for an unverified
// user. The query may use identity fields or the current verify tokens.
func (v *VerificationEngine) ResendVerifySignup(ctx context.Context, identity Query, notifierOptions map[string]any) (SanitizedUser, error) {
	if err := checkContext(ctx, "resend verify signup"); err != nil {
		return nil, err
	}

	allowed := v.identifyUserProps(FieldVerifyToken, FieldVerifyShortToken)
	if err := v.validator.Validate(identity, allowed); err != nil {
		return nil, err
	}

	user, err := v.resolver.Resolve(ctx, identity, PredicateIsNotVerified)
	if err != nil {
		return nil, err
	}

	tokens, err := v.issueTokens(v.cfg.VerifyDelay)
	if err != nil {
		return nil, err
	}

	if err := v.transition(user, StateUnverified); err != nil {
		return nil, err
	}
	patch := Patch{
		IsVerified: boolPtr(false),
		Verify:     tokensPtr(tokens),
	}
	if err := v.patch(ctx, user, patch); err != nil {
		return nil, err
	}

	if err := v.notify(ctx, NotifyResendVerifySignup, user, notifierOptions, nil); err != nil {
		return nil, err
	}

	v.logger.Info("verification token issued", "user_id", user.ID)
	return SanitizeForClient(user), nil
}

// VerifySignupLong consumes a long verification token.
func (v *VerificationEngine) VerifySignupLong(ctx context.Context, token string) (SanitizedUser, error) {
	if err := checkContext(ctx, "verify signup"); err != nil {
		return nil, err
	}

	if err := requireValues(map[string]string{"token": token}); err != nil {
		return nil, err
	}

	user, err := v.resolver.Resolve(ctx, Query{FieldVerifyToken: token},
		PredicateIsNotVerifiedOrHasPendingChange,
		PredicateVerifyNotExpired,
	)
	if err != nil {
		return nil, err
	}

	return v.verify(ctx, user, tokensEqual(token, user.Verify.Long))
}

// VerifySignupShort consumes a short verification token for the user matched
// by identity.
func (v *VerificationEngine) VerifySignupShort(ctx context.Context, token string, identity Query) (SanitizedUser, error) {
	if err := checkContext(ctx, "verify signup"); err != nil {
		return nil, err
	}

	if err := requireValues(map[string]string{"token": token}); err != nil {
		return nil, err
	}

	if err := v.validator.Validate(identity, v.identifyUserProps()); err != nil {
		return nil, err
	}

	user, err := v.resolver.Resolve(ctx, identity,
		PredicateIsNotVerifiedOrHasPendingChange,
		PredicateVerifyNotExpired,
	)
	if err != nil {
		return nil, err
	}

	return v.verify(ctx, user, tokensEqual(token, user.Verify.Short))
}

func (v *VerificationEngine) verify(ctx context.Context, user *User, matched bool) (SanitizedUser, error) {
	readToken := user.Verify.Long

	if !matched {
		// erase without changing the verified flag
		erase := Patch{
			IsVerified:    boolPtr(user.IsVerified),
			Verify:        tokensPtr(ClearedTokens()),
			VerifyChanges: Changes{},
		}
		if err := v.patch(ctx, user, erase); err != nil {
			return nil, err
		}
		v.logger.Warn("verification token mismatch, tokens erased", "user_id", user.ID)
		return nil, newError(ErrInvalidToken, map[string]any{"user_id": user.ID})
	}

	if err := v.transition(user, StateVerified); err != nil {
		return nil, err
	}
	changes := user.VerifyChanges.Clone()
	patch := Patch{
		IsVerified:    boolPtr(true),
		Identity:      changes,
		Verify:        tokensPtr(ClearedTokens()),
		VerifyChanges: Changes{},
	}
	if err := v.consume(ctx, user, patch, Condition{Field: FieldVerifyToken, Value: readToken}); err != nil {
		return nil, err
	}

	if err := v.notify(ctx, NotifyVerifySignup, user, nil, nil); err != nil {
		return nil, err
	}

	v.logger.Info("user verified", "user_id", user.ID, "applied_changes", sortedKeys(changes))
	return SanitizeForClient(user), nil
}
