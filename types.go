package authmanagement

import (
	"context"
	"fmt"
	"strings"

	"github.com/goliatone/go-logger/glog"
)

// Logger is the logging contract shared with go-logger.
type Logger = glog.Logger

// LoggerProvider hands out named loggers.
type LoggerProvider = glog.LoggerProvider

// Store is the host's user collection. Find must understand identity field
// names as well as the token fields (verify_token, verify_short_token,
// reset_token, reset_short_token).
type Store interface {
	Find(ctx context.Context, query Query) (FindResult, error)
	Patch(ctx context.Context, id string, patch Patch) error
}

// ConditionalPatcher is implemented by stores that can apply a patch only
// when a field still holds an expected value.
type ConditionalPatcher interface {
	PatchIf(ctx context.Context, id string, patch Patch, cond Condition) error
}

// Condition guards a conditional patch.
type Condition struct {
	Field string
	Value string
}

// PasswordAuthenticator hashes and compares passwords.
type PasswordAuthenticator interface {
	HashPassword(password string) (string, error)
	ComparePasswordAndHash(password, hash string) error
}

// Notifier delivers tokens and lifecycle notices to the account owner.
type Notifier interface {
	Notify(ctx context.Context, n Notification) error
}

// NotifierFunc adapts a function to the Notifier interface.
type NotifierFunc func(ctx context.Context, n Notification) error

// Notify implements Notifier.
func (f NotifierFunc) Notify(ctx context.Context, n Notification) error {
	if f == nil {
		return nil
	}
	return f(ctx, n)
}

// NotifyAction names the event a notification is about.
type NotifyAction string

const (
	NotifyResendVerifySignup NotifyAction = "resendVerifySignup"
	NotifyVerifySignup       NotifyAction = "verifySignup"
	NotifySendResetPwd       NotifyAction = "sendResetPwd"
	NotifyResetPwd           NotifyAction = "resetPwd"
	NotifyPasswordChange     NotifyAction = "passwordChange"
	NotifyIdentityChange     NotifyAction = "identityChange"
)

// Notification is what a Notifier receives. User is sanitized for the
// notifier: tokens are present, the password hash is not.
type Notification struct {
	Action  NotifyAction
	User    SanitizedUser
	Options map[string]any
	Changes Changes
}

type noopNotifier struct{}

func (noopNotifier) Notify(context.Context, Notification) error {
	return nil
}

func normalizeNotifier(n Notifier) Notifier {
	if n == nil {
		return noopNotifier{}
	}
	return n
}

// ResolveLogger picks the logger for a component. A provider wins over an
// explicit logger, the explicit logger wins over the default.
func ResolveLogger(name string, provider LoggerProvider, logger Logger) (LoggerProvider, Logger) {
	if provider != nil {
		if resolved := provider.GetLogger(name); resolved != nil {
			return provider, resolved
		}
	}

	if logger == nil {
		logger = defaultLogger()
	}

	return staticProvider{logger: logger}, logger
}

type staticProvider struct {
	logger Logger
}

func (p staticProvider) GetLogger(string) Logger {
	return p.logger
}

func defaultLogger() Logger {
	return defLogger{}
}

type defLogger struct{}

func (d defLogger) Trace(msg string, args ...any) { d.print("TRC", msg, args...) }
func (d defLogger) Debug(msg string, args ...any) { d.print("DBG", msg, args...) }
func (d defLogger) Info(msg string, args ...any)  { d.print("INF", msg, args...) }
func (d defLogger) Warn(msg string, args ...any)  { d.print("WRN", msg, args...) }
func (d defLogger) Error(msg string, args ...any) { d.print("ERR", msg, args...) }
func (d defLogger) Fatal(msg string, args ...any) { d.print("FTL", msg, args...) }

func (d defLogger) WithContext(context.Context) Logger {
	return d
}

// print accepts both printf style calls and key/value pairs.
func (d defLogger) print(level, msg string, args ...any) {
	if strings.Contains(msg, "%") {
		fmt.Printf("[%s] AUTHMGMT %s\n", level, fmt.Sprintf(msg, args...))
		return
	}

	var b strings.Builder
	b.WriteString(msg)
	for i := 0; i < len(args); i += 2 {
		if i+1 < len(args) {
			fmt.Fprintf(&b, " %v=%v", args[i], args[i+1])
			continue
		}
		fmt.Fprintf(&b, " %v", args[i])
	}
	fmt.Printf("[%s] AUTHMGMT %s\n", level, b.String())
}
