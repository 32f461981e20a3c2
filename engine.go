package authmanagement

import (
	"context"
	"crypto/subtle"
	"errors"
	"time"

	goerrors "github.com/goliatone/go-errors"
	"github.com/goliatone/go-print"

	"github.com/MHerszak/authentication-management/token"
)

// engine holds the collaborators shared by every lifecycle engine. Engines
// never keep per call state, one value is safe for concurrent use.
type engine struct {
	cfg       Config
	store     Store
	notifier  Notifier
	hasher    PasswordAuthenticator
	gen       token.Generator
	resolver  *Resolver
	validator *IdentityValidator
	now       func() time.Time
	logger    Logger
}

func (e *engine) identifyUserProps(extra ...string) []string {
	props := make([]string, 0, len(e.cfg.IdentifyUserProps)+len(extra))
	props = append(props, e.cfg.IdentifyUserProps...)
	return append(props, extra...)
}

// issueTokens draws a fresh triple expiring delay from now.
func (e *engine) issueTokens(delay time.Duration) (Tokens, error) {
	long, err := e.gen.Long(e.cfg.LongTokenLen)
	if err != nil {
		return Tokens{}, wrapError(err, ErrTokenGeneration, map[string]any{"kind": "long"})
	}

	short, err := e.gen.Short(e.cfg.ShortTokenLen, e.cfg.ShortTokenDigits)
	if err != nil {
		return Tokens{}, wrapError(err, ErrTokenGeneration, map[string]any{"kind": "short"})
	}

	return issueTokens(long, short, e.now().Add(delay)), nil
}

// patch persists p and mirrors it onto user.
func (e *engine) patch(ctx context.Context, user *User, p Patch) error {
	if err := e.store.Patch(ctx, user.ID, p); err != nil {
		e.logger.Error("patch user failed", "user_id", user.ID, "error", err)
		return wrapError(err, ErrStoreFailure, map[string]any{
			"operation": "patch",
			"user_id":   user.ID,
		})
	}
	p.Apply(user)
	return nil
}

// consume persists a token consuming patch. Stores implementing
// ConditionalPatcher only apply it while cond still holds, a lost race is
// reported as an invalid token.
func (e *engine) consume(ctx context.Context, user *User, p Patch, cond Condition) error {
	patcher, ok := e.store.(ConditionalPatcher)
	if !ok {
		return e.patch(ctx, user, p)
	}

	if err := patcher.PatchIf(ctx, user.ID, p, cond); err != nil {
		if errors.Is(err, ErrPatchConditionFailed) || HasTextCode(err, TextCodePatchConflict) {
			e.logger.Warn("token consumed concurrently", "user_id", user.ID, "field", cond.Field)
			return newError(ErrInvalidToken, map[string]any{"reason": "token already consumed"})
		}
		e.logger.Error("conditional patch failed", "user_id", user.ID, "error", err)
		return wrapError(err, ErrStoreFailure, map[string]any{
			"operation": "patch_if",
			"user_id":   user.ID,
		})
	}
	p.Apply(user)
	return nil
}

func (e *engine) notify(ctx context.Context, action NotifyAction, user *User, options map[string]any, changes Changes) error {
	n := Notification{
		Action:  action,
		User:    SanitizeForNotifier(user),
		Options: options,
		Changes: changes,
	}

	e.logger.Debug("notify", "action", action, "user", print.MaybePrettyJSON(SanitizeForClient(user)))

	if err := e.notifier.Notify(ctx, n); err != nil {
		e.logger.Error("notifier failed", "action", action, "user_id", user.ID, "error", err)
		return wrapError(err, ErrNotifierFailure, map[string]any{"action": string(action)})
	}
	return nil
}

// transition guards a state change before it is persisted.
func (e *engine) transition(user *User, to VerificationState) error {
	from := CurrentVerificationState(user)
	if CanTransition(from, to) {
		return nil
	}
	e.logger.Warn("verification transition rejected", "user_id", user.ID, "from", from, "to", to)
	return newError(ErrInvalidTransition, map[string]any{
		"user_id": user.ID,
		"from":    string(from),
		"to":      string(to),
	})
}

func checkContext(ctx context.Context, operation string) error {
	select {
	case <-ctx.Done():
		return goerrors.Wrap(
			ctx.Err(),
			goerrors.CategoryOperation,
			"context cancelled during "+operation,
		)
	default:
		return nil
	}
}

// tokensEqual compares in constant time. Empty values never match.
func tokensEqual(given, stored string) bool {
	if given == "" || stored == "" {
		return false
	}
	return subtle.ConstantTimeCompare([]byte(given), []byte(stored)) == 1
}
