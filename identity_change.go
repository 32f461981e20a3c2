package authmanagement

import "context"

// IdentityChangeEngine records a pending identity change. The change is
// applied only when the new verification token is consumed.
type IdentityChangeEngine struct {
	*engine
}

// IdentityChange checks the current password, stores changes as pending and
// issues a verification triple for them.
func (c *IdentityChangeEngine) IdentityChange(ctx context.Context, identity Query, password string, changes Changes) (SanitizedUser, error) {
	if err := checkContext(ctx, "identity change"); err != nil {
		return nil, err
	}

	if err := requireValues(map[string]string{"password": password}); err != nil {
		return nil, err
	}

	allowed := c.identifyUserProps()
	if err := c.validator.Validate(identity, allowed); err != nil {
		return nil, err
	}
	if err := c.validator.ValidateChanges(changes, allowed); err != nil {
		return nil, err
	}

	user, err := c.resolver.Resolve(ctx, identity)
	if err != nil {
		return nil, err
	}

	if err := comparePassword(c.hasher, password, user.PasswordHash); err != nil {
		return nil, err
	}

	tokens, err := c.issueTokens(c.cfg.VerifyDelay)
	if err != nil {
		return nil, err
	}

	target := StateUnverified
	if user.IsVerified {
		target = StateVerifiedWithPendingChange
	}
	if err := c.transition(user, target); err != nil {
		return nil, err
	}
	pending := changes.Clone()
	patch := Patch{
		Verify:        tokensPtr(tokens),
		VerifyChanges: pending,
	}
	if err := c.patch(ctx, user, patch); err != nil {
		return nil, err
	}

	if err := c.notify(ctx, NotifyIdentityChange, user, nil, pending.Clone()); err != nil {
		return nil, err
	}

	c.logger.Info("identity change pending", "user_id", user.ID, "fields", sortedKeys(pending))
	return SanitizeForClient(user), nil
}

// comparePassword treats every comparison failure as an incorrect password.
func comparePassword(hasher PasswordAuthenticator, password, hash string) error {
	if err := hasher.ComparePasswordAndHash(password, hash); err != nil {
		return newError(ErrIncorrectPassword, fieldErrors(map[string]string{"password": "Password is incorrect."}))
	}
	return nil
}
