// Package authmanagement manages the short lived credentials that prove
// control of an account: sign up verification, password reset and pending
// identity change tokens. The host owns user storage (Store) and delivery
// (Notifier); this package owns the token lifecycle.
//
// Verification lifecycle:
//   - ResendVerifySignup issues a long and short token pair with an expiry for
//     unverified users. VerifySignupLong and VerifySignupShort consume it,
//     mark the user verified and apply any pending identity changes.
//   - IdentityChange stores the requested changes as pending and issues a new
//     verification pair. Changes only land on the record when that pair is
//     consumed.
//
// Password reset:
//   - SendResetPwd issues a reset pair for verified users, ResetPwdLong and
//     ResetPwdShort consume it and store a new password hash.
//
// Fail closed:
//   - A token that does not match the stored one erases the whole triple
//     before ErrInvalidToken is returned. The verified flag is kept.
//
// Dispatch:
//   - Service.Dispatch takes typed messages. DecodeRequest and Service.Handle
//     accept the JSON envelope {action, value, notifierOptions, ownId, meta}.
//     Results are sanitized with SanitizeForClient.
//
// The repository subpackage ships a bun backed Store, the outbox subpackage a
// Redis backed Notifier queue for out of process delivery.
package authmanagement
