package authmanagement

import (
	goerrors "github.com/goliatone/go-errors"

	"github.com/MHerszak/authentication-management/token"
)

const (
	TextCodeInvalidAction       = "INVALID_ACTION"
	TextCodeInvalidIdentity     = "INVALID_IDENTITY"
	TextCodeInvalidPayload      = "INVALID_PAYLOAD"
	TextCodeUserNotFound        = "USER_NOT_FOUND"
	TextCodeUserAmbiguous       = "USER_AMBIGUOUS"
	TextCodeUserAlreadyVerified = "USER_ALREADY_VERIFIED"
	TextCodeUserNotVerified     = "USER_NOT_VERIFIED"
	TextCodeNothingToVerify     = "NOTHING_TO_VERIFY"
	TextCodeVerifyTokenExpired  = "VERIFY_TOKEN_EXPIRED"
	TextCodeResetTokenExpired   = "RESET_TOKEN_EXPIRED"
	TextCodeInvalidToken        = "INVALID_TOKEN"
	TextCodeIncorrectPassword   = "INCORRECT_PASSWORD"
	TextCodeValuesTaken         = "VALUES_ALREADY_TAKEN"
	TextCodeTokenGeneration     = token.TextCodeGenerationFailed
	TextCodeStoreFailure        = "STORE_FAILURE"
	TextCodeNotifierFailure     = "NOTIFIER_FAILURE"
	TextCodeHashFailure         = "PASSWORD_HASH_FAILURE"
	TextCodePatchConflict       = "PATCH_CONDITION_FAILED"
	TextCodeInvalidConfig       = "INVALID_CONFIGURATION"
	TextCodeInvalidTransition   = "INVALID_VERIFICATION_TRANSITION"
)

// ErrInvalidAction is returned by the dispatcher for unknown actions.
var ErrInvalidAction = badRequest("invalid action", goerrors.CategoryBadInput, TextCodeInvalidAction)

// ErrInvalidIdentity flags identity queries with unknown or missing fields.
var ErrInvalidIdentity = badRequest("invalid identity fields", goerrors.CategoryValidation, TextCodeInvalidIdentity)

// ErrInvalidPayload flags action payloads with missing or malformed values.
var ErrInvalidPayload = badRequest("invalid action payload", goerrors.CategoryValidation, TextCodeInvalidPayload)

// ErrUserNotFound is returned when a lookup matched no record.
var ErrUserNotFound = badRequest("user not found", goerrors.CategoryNotFound, TextCodeUserNotFound)

// ErrUserAmbiguous is returned when a lookup matched more than one record.
var ErrUserAmbiguous = badRequest("more than one user selected", goerrors.CategoryBadInput, TextCodeUserAmbiguous)

var (
	ErrUserAlreadyVerified = badRequest("user is already verified", goerrors.CategoryValidation, TextCodeUserAlreadyVerified)
	ErrUserNotVerified     = badRequest("user is not verified", goerrors.CategoryValidation, TextCodeUserNotVerified)
	ErrNothingToVerify     = badRequest("user is already verified and not awaiting changes", goerrors.CategoryValidation, TextCodeNothingToVerify)
	ErrVerifyTokenExpired  = badRequest("verification token has expired", goerrors.CategoryValidation, TextCodeVerifyTokenExpired)
	ErrResetTokenExpired   = badRequest("password reset token has expired", goerrors.CategoryValidation, TextCodeResetTokenExpired)
)

// ErrInvalidTransition is returned when an engine would move a record to a
// verification state its current state does not lead to.
var ErrInvalidTransition = badRequest("invalid verification state transition", goerrors.CategoryValidation, TextCodeInvalidTransition)

// ErrInvalidToken is returned after a token mismatch. The tested token has
// already been erased when a caller sees this error.
var ErrInvalidToken = badRequest("invalid token, get a new one", goerrors.CategoryAuth, TextCodeInvalidToken)

// ErrIncorrectPassword is returned when the current password does not match.
var ErrIncorrectPassword = badRequest("password is incorrect", goerrors.CategoryAuth, TextCodeIncorrectPassword)

// ErrValuesTaken is returned by checkUnique when identity values are in use.
var ErrValuesTaken = badRequest("values already taken", goerrors.CategoryConflict, TextCodeValuesTaken)

var (
	ErrTokenGeneration = generalError("unable to generate token", TextCodeTokenGeneration)
	ErrStoreFailure    = generalError("user store operation failed", TextCodeStoreFailure)
	ErrNotifierFailure = generalError("notifier failed", TextCodeNotifierFailure)
	ErrHashFailure     = generalError("unable to hash password", TextCodeHashFailure)
	ErrInvalidConfig   = generalError("invalid configuration", TextCodeInvalidConfig)
)

// ErrPatchConditionFailed is returned by ConditionalPatcher implementations
// when the guarded field no longer holds the expected value.
var ErrPatchConditionFailed = goerrors.New("patch condition failed", goerrors.CategoryConflict).
	WithTextCode(TextCodePatchConflict).
	WithCode(goerrors.CodeConflict)

func badRequest(message string, category goerrors.Category, textCode string) *goerrors.Error {
	return goerrors.New(message, category).
		WithTextCode(textCode).
		WithCode(goerrors.CodeBadRequest)
}

func generalError(message, textCode string) *goerrors.Error {
	return goerrors.New(message, goerrors.CategoryInternal).
		WithTextCode(textCode).
		WithCode(goerrors.CodeInternal)
}

// newError clones a sentinel so per-call metadata never leaks into the
// package level value. The clone keeps the sentinel as its source.
func newError(sentinel *goerrors.Error, metadata map[string]any) *goerrors.Error {
	clone := sentinel.Clone()
	if clone == nil {
		return sentinel
	}
	clone.Source = sentinel
	if len(metadata) > 0 {
		clone = clone.WithMetadata(metadata)
	}
	return clone
}

// wrapError turns a collaborator failure into a general error that carries
// the sentinel's text code. The cause stays reachable via
// errors.Unwrap but is not part of the message.
func wrapError(err error, sentinel *goerrors.Error, metadata map[string]any) *goerrors.Error {
	var richErr *goerrors.Error
	if goerrors.As(err, &richErr) && richErr.Code == goerrors.CodeBadRequest {
		return richErr
	}

	wrapped := goerrors.Wrap(err, sentinel.Category, sentinel.Message).
		WithTextCode(sentinel.TextCode).
		WithCode(sentinel.Code)
	if len(metadata) > 0 {
		wrapped = wrapped.WithMetadata(metadata)
	}
	return wrapped
}

// IsBadRequest reports whether err is a caller error.
func IsBadRequest(err error) bool {
	var richErr *goerrors.Error
	if !goerrors.As(err, &richErr) {
		return false
	}
	return richErr.Code == goerrors.CodeBadRequest
}

// IsGeneralError reports whether err is a server side failure. Errors that
// are not structured count as general errors.
func IsGeneralError(err error) bool {
	if err == nil {
		return false
	}
	var richErr *goerrors.Error
	if !goerrors.As(err, &richErr) {
		return true
	}
	return richErr.Code != goerrors.CodeBadRequest
}

// HasTextCode reports whether err carries the given text code.
func HasTextCode(err error, textCode string) bool {
	var richErr *goerrors.Error
	if !goerrors.As(err, &richErr) {
		return false
	}
	return richErr.TextCode == textCode
}

func fieldErrors(fields map[string]string) map[string]any {
	out := make(map[string]any, len(fields))
	for k, v := range fields {
		out[k] = v
	}
	return map[string]any{"errors": out}
}
