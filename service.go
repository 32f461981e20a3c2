package authmanagement

import (
	"context"
	"time"

	goerrors "github.com/goliatone/go-errors"

	"github.com/MHerszak/authentication-management/token"
)

// Service wires the lifecycle engines to one user store and one
// configuration. Several services with different configurations can share a
// process.
type Service struct {
	cfg            Config
	store          Store
	notifier       Notifier
	hasher         PasswordAuthenticator
	gen            token.Generator
	validator      *IdentityValidator
	now            func() time.Time
	logger         Logger
	loggerProvider LoggerProvider

	verification   *VerificationEngine
	reset          *ResetEngine
	identityChange *IdentityChangeEngine
	passwordChange *PasswordChangeEngine
	unique         *UniquenessChecker
}

// New builds a Service over store. The configuration is validated once here.
func New(store Store, opts ...Option) (*Service, error) {
	if store == nil {
		return nil, newError(ErrInvalidConfig, map[string]any{"reason": "store is required"})
	}

	s := &Service{
		cfg:       DefaultConfig(),
		store:     store,
		notifier:  noopNotifier{},
		hasher:    NewBcryptAuthenticator(),
		gen:       token.New(),
		validator: NewIdentityValidator(nil),
		now:       time.Now,
	}

	for _, opt := range opts {
		if opt != nil {
			opt(s)
		}
	}

	if err := s.cfg.Validate(); err != nil {
		return nil, err
	}

	s.loggerProvider, s.logger = ResolveLogger(s.cfg.Name, s.loggerProvider, s.logger)

	base := func(scope string) *engine {
		logger := s.loggerProvider.GetLogger(s.cfg.Name + "." + scope)
		if logger == nil {
			logger = s.logger
		}
		return &engine{
			cfg:       s.cfg,
			store:     s.store,
			notifier:  s.notifier,
			hasher:    s.hasher,
			gen:       s.gen,
			resolver:  NewResolver(s.store, s.now, logger),
			validator: s.validator,
			now:       s.now,
			logger:    logger,
		}
	}

	s.verification = &VerificationEngine{engine: base("verify")}
	s.reset = &ResetEngine{engine: base("reset")}
	s.identityChange = &IdentityChangeEngine{engine: base("identity")}
	s.passwordChange = &PasswordChangeEngine{engine: base("password")}
	s.unique = &UniquenessChecker{engine: base("unique")}

	return s, nil
}

// MustNew is New that panics on error.
func MustNew(store Store, opts ...Option) *Service {
	s, err := New(store, opts...)
	if err != nil {
		panic(err)
	}
	return s
}

func (s *Service) Verification() *VerificationEngine     { return s.verification }
func (s *Service) Reset() *ResetEngine                   { return s.reset }
func (s *Service) IdentityChange() *IdentityChangeEngine { return s.identityChange }
func (s *Service) PasswordChange() *PasswordChangeEngine { return s.passwordChange }
func (s *Service) Uniqueness() *UniquenessChecker        { return s.unique }

// Config returns a copy of the active configuration.
func (s *Service) Config() Config {
	cfg := s.cfg
	cfg.IdentifyUserProps = append([]string(nil), s.cfg.IdentifyUserProps...)
	return cfg
}

// Options returns the introspection view of the configuration.
func (s *Service) Options() OptionsView {
	return s.cfg.view()
}

// Dispatch validates msg and routes it to its engine. Issue and consume
// actions return a client sanitized record, checkUnique returns nil, options
// returns an OptionsView.
func (s *Service) Dispatch(ctx context.Context, msg Message) (any, error) {
	select {
	case <-ctx.Done():
		return nil, goerrors.Wrap(
			ctx.Err(),
			goerrors.CategoryOperation,
			"context cancelled before dispatch",
		)
	default:
	}

	if msg != nil {
		if err := msg.Validate(); err != nil {
			s.logger.Debug("dispatch: invalid payload", "action", msg.Type(), "error", err)
			return nil, err
		}
	}

	switch m := msg.(type) {
	case CheckUniqueMessage:
		return nil, s.unique.CheckUnique(ctx, m.Identity, m.OwnID, m.NoErrMsg)
	case ResendVerifySignupMessage:
		return s.verification.ResendVerifySignup(ctx, m.Identity, m.NotifierOptions)
	case VerifySignupLongMessage:
		return s.verification.VerifySignupLong(ctx, m.Token)
	case VerifySignupShortMessage:
		return s.verification.VerifySignupShort(ctx, m.Token, m.Identity)
	case SendResetPwdMessage:
		return s.reset.SendResetPwd(ctx, m.Identity, m.NotifierOptions)
	case ResetPwdLongMessage:
		return s.reset.ResetPwdLong(ctx, m.Token, m.Password)
	case ResetPwdShortMessage:
		return s.reset.ResetPwdShort(ctx, m.Token, m.Identity, m.Password)
	case PasswordChangeMessage:
		return s.passwordChange.PasswordChange(ctx, m.Identity, m.OldPassword, m.Password)
	case IdentityChangeMessage:
		return s.identityChange.IdentityChange(ctx, m.Identity, m.Password, m.Changes)
	case OptionsMessage:
		return s.Options(), nil
	}

	action := ""
	if msg != nil {
		action = msg.Type()
	}
	s.logger.Warn("dispatch: unknown action", "action", action)
	return nil, newError(ErrInvalidAction, map[string]any{"action": action})
}

// Handle decodes a JSON request envelope and dispatches it.
func (s *Service) Handle(ctx context.Context, data []byte) (any, error) {
	msg, err := DecodeRequest(data)
	if err != nil {
		return nil, err
	}
	return s.Dispatch(ctx, msg)
}
