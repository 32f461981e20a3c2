package authmanagement

import "context"

// PasswordChangeEngine replaces a known password.
type PasswordChangeEngine struct {
	*engine
}

// PasswordChange checks oldPassword and stores the hash of password.
func (p *PasswordChangeEngine) PasswordChange(ctx context.Context, identity Query, oldPassword, password string) (SanitizedUser, error) {
	if err := checkContext(ctx, "password change"); err != nil {
		return nil, err
	}

	if err := requireValues(map[string]string{"oldPassword": oldPassword, "password": password}); err != nil {
		return nil, err
	}

	if err := p.validator.Validate(identity, p.identifyUserProps()); err != nil {
		return nil, err
	}

	user, err := p.resolver.Resolve(ctx, identity)
	if err != nil {
		return nil, err
	}

	if err := comparePassword(p.hasher, oldPassword, user.PasswordHash); err != nil {
		return nil, err
	}

	hash, err := p.hasher.HashPassword(password)
	if err != nil {
		return nil, wrapError(err, ErrHashFailure, nil)
	}

	if err := p.patch(ctx, user, Patch{PasswordHash: stringPtr(hash)}); err != nil {
		return nil, err
	}

	if err := p.notify(ctx, NotifyPasswordChange, user, nil, nil); err != nil {
		return nil, err
	}

	p.logger.Info("password changed", "user_id", user.ID)
	return SanitizeForClient(user), nil
}
