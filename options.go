package authmanagement

import (
	"errors"
	"fmt"
	"slices"
	"time"

	validation "github.com/go-ozzo/ozzo-validation"

	"github.com/MHerszak/authentication-management/token"
)

const (
	DefaultName             = "authManagement"
	DefaultServiceName      = "users"
	DefaultLongTokenLen     = 15
	DefaultShortTokenLen    = 6
	DefaultShortTokenDigits = true
	DefaultVerifyDelay      = 5 * 24 * time.Hour
	DefaultResetDelay       = 2 * time.Hour
)

// DefaultIdentifyUserProps is the identity whitelist used when none is set.
var DefaultIdentifyUserProps = []string{"email"}

// Config holds the tunables of a Service. The zero value is not usable, start
// from DefaultConfig.
type Config struct {
	Name              string        `json:"name"`
	ServiceName       string        `json:"service"`
	IdentifyUserProps []string      `json:"identifyUserProps"`
	LongTokenLen      int           `json:"longTokenLen"`
	ShortTokenLen     int           `json:"shortTokenLen"`
	ShortTokenDigits  bool          `json:"shortTokenDigits"`
	VerifyDelay       time.Duration `json:"delay"`
	ResetDelay        time.Duration `json:"resetDelay"`
}

// DefaultConfig returns the default configuration.
func DefaultConfig() Config {
	return Config{
		Name:              DefaultName,
		ServiceName:       DefaultServiceName,
		IdentifyUserProps: append([]string(nil), DefaultIdentifyUserProps...),
		LongTokenLen:      DefaultLongTokenLen,
		ShortTokenLen:     DefaultShortTokenLen,
		ShortTokenDigits:  DefaultShortTokenDigits,
		VerifyDelay:       DefaultVerifyDelay,
		ResetDelay:        DefaultResetDelay,
	}
}

// Validate checks the configuration.
func (c Config) Validate() error {
	err := validation.ValidateStruct(&c,
		validation.Field(&c.Name, validation.Required),
		validation.Field(&c.ServiceName, validation.Required),
		validation.Field(&c.IdentifyUserProps,
			validation.Required,
			validation.By(validIdentityProps),
		),
		validation.Field(&c.LongTokenLen, validation.Required, validation.Min(1)),
		validation.Field(&c.ShortTokenLen, validation.Required, validation.Min(1)),
		validation.Field(&c.VerifyDelay, validation.Required, validation.Min(time.Millisecond)),
		validation.Field(&c.ResetDelay, validation.Required, validation.Min(time.Millisecond)),
	)
	if err != nil {
		return wrapError(err, ErrInvalidConfig, map[string]any{"errors": err.Error()})
	}
	return nil
}

// identity fields may not be blank or shadow the fields this package owns.
func validIdentityProps(value interface{}) error {
	props, _ := value.([]string)
	for _, prop := range props {
		if prop == "" {
			return errors.New("identity field names cannot be blank")
		}
		if slices.Contains(reservedFields, prop) {
			return fmt.Errorf("reserved field name %q", prop)
		}
	}
	return nil
}

var reservedFields = append([]string{FieldID, FieldIsVerified}, ClientSecretFields...)

// Option configures a Service.
type Option func(*Service)

// WithConfig replaces the whole configuration. Later options still apply.
func WithConfig(cfg Config) Option {
	return func(s *Service) {
		s.cfg = cfg
		s.cfg.IdentifyUserProps = append([]string(nil), cfg.IdentifyUserProps...)
	}
}

// WithName sets the instance name, used for logger scoping and introspection.
func WithName(name string) Option {
	return func(s *Service) {
		if name != "" {
			s.cfg.Name = name
		}
	}
}

// WithServiceName sets the name of the user collection the instance manages.
func WithServiceName(name string) Option {
	return func(s *Service) {
		if name != "" {
			s.cfg.ServiceName = name
		}
	}
}

// WithIdentifyUserProps sets the identity whitelist.
func WithIdentifyUserProps(props ...string) Option {
	return func(s *Service) {
		if len(props) > 0 {
			s.cfg.IdentifyUserProps = append([]string(nil), props...)
		}
	}
}

// WithLongTokenLen sets the long token byte length. The hex token is twice as long.
func WithLongTokenLen(n int) Option {
	return func(s *Service) {
		s.cfg.LongTokenLen = n
	}
}

// WithShortTokenLen sets the short token length.
func WithShortTokenLen(n int) Option {
	return func(s *Service) {
		s.cfg.ShortTokenLen = n
	}
}

// WithShortTokenDigits toggles digit only short tokens.
func WithShortTokenDigits(digits bool) Option {
	return func(s *Service) {
		s.cfg.ShortTokenDigits = digits
	}
}

// WithVerifyDelay sets the verification token lifetime.
func WithVerifyDelay(d time.Duration) Option {
	return func(s *Service) {
		s.cfg.VerifyDelay = d
	}
}

// WithResetDelay sets the password reset token lifetime.
func WithResetDelay(d time.Duration) Option {
	return func(s *Service) {
		s.cfg.ResetDelay = d
	}
}

// WithNotifier sets the notifier. Nil keeps the no-op notifier.
func WithNotifier(n Notifier) Option {
	return func(s *Service) {
		s.notifier = normalizeNotifier(n)
	}
}

// WithPasswordAuthenticator sets the password hasher.
func WithPasswordAuthenticator(a PasswordAuthenticator) Option {
	return func(s *Service) {
		if a != nil {
			s.hasher = a
		}
	}
}

// WithTokenGenerator sets the token source, mostly for tests.
func WithTokenGenerator(g token.Generator) Option {
	return func(s *Service) {
		if g != nil {
			s.gen = g
		}
	}
}

// WithClock injects a custom clock.
func WithClock(now func() time.Time) Option {
	return func(s *Service) {
		if now != nil {
			s.now = now
		}
	}
}

// WithIdentityRules sets per field validation rules for identity values.
func WithIdentityRules(rules map[string][]validation.Rule) Option {
	return func(s *Service) {
		s.validator = NewIdentityValidator(rules)
	}
}

// WithLogger sets the logger.
func WithLogger(logger Logger) Option {
	return func(s *Service) {
		s.logger = logger
	}
}

// WithLoggerProvider sets the logger provider. It wins over WithLogger.
func WithLoggerProvider(provider LoggerProvider) Option {
	return func(s *Service) {
		s.loggerProvider = provider
	}
}

// OptionsView is the introspection view of a Service configuration. It never
// carries collaborator handles.
type OptionsView struct {
	Name              string   `json:"name"`
	Service           string   `json:"service"`
	IdentifyUserProps []string `json:"identifyUserProps"`
	LongTokenLen      int      `json:"longTokenLen"`
	ShortTokenLen     int      `json:"shortTokenLen"`
	ShortTokenDigits  bool     `json:"shortTokenDigits"`
	Delay             int64    `json:"delay"`
	ResetDelay        int64    `json:"resetDelay"`
}

func (c Config) view() OptionsView {
	return OptionsView{
		Name:              c.Name,
		Service:           c.ServiceName,
		IdentifyUserProps: append([]string(nil), c.IdentifyUserProps...),
		LongTokenLen:      c.LongTokenLen,
		ShortTokenLen:     c.ShortTokenLen,
		ShortTokenDigits:  c.ShortTokenDigits,
		Delay:             c.VerifyDelay.Milliseconds(),
		ResetDelay:        c.ResetDelay.Milliseconds(),
	}
}
