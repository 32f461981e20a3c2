package authmanagement

import "maps"

// SanitizedUser is a projected user record with secrets removed.
type SanitizedUser map[string]any

// Projector turns a record into its flat field view. User implements it, hosts
// can supply their own for custom record types.
type Projector interface {
	Project() map[string]any
}

// Record adapts an already flat map to Projector.
type Record map[string]any

// Project implements Projector. The map is returned as is, sanitizers copy it.
func (r Record) Project() map[string]any {
	return r
}

// ClientSecretFields lists the keys never returned to clients.
var ClientSecretFields = []string{
	FieldPassword,
	FieldVerifyExpires,
	FieldVerifyToken,
	FieldVerifyShortToken,
	FieldVerifyChanges,
	FieldResetExpires,
	FieldResetToken,
	FieldResetShortToken,
}

// SanitizeForClient returns a shallow copy of the projection without any
// password, token, expiry or pending change field.
func SanitizeForClient(p Projector) SanitizedUser {
	return sanitize(p, ClientSecretFields...)
}

// SanitizeForNotifier returns a shallow copy of the projection without the
// password hash. Tokens stay so the notifier can deliver them.
func SanitizeForNotifier(p Projector) SanitizedUser {
	return sanitize(p, FieldPassword)
}

func sanitize(p Projector, drop ...string) SanitizedUser {
	if p == nil {
		return SanitizedUser{}
	}

	src := p.Project()
	out := make(SanitizedUser, len(src))
	maps.Copy(out, src)
	for _, key := range drop {
		delete(out, key)
	}
	return out
}
