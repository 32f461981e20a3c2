package authmanagement

import (
	"maps"
	"time"
)

// Field names as seen by stores and serializers.
const (
	FieldID               = "id"
	FieldPassword         = "password"
	FieldIsVerified       = "is_verified"
	FieldVerifyToken      = "verify_token"
	FieldVerifyShortToken = "verify_short_token"
	FieldVerifyExpires    = "verify_expires"
	FieldVerifyChanges    = "verify_changes"
	FieldResetToken       = "reset_token"
	FieldResetShortToken  = "reset_short_token"
	FieldResetExpires     = "reset_expires"
)

// Query is a field equality lookup handed to Store.Find. Keys are either
// identity fields or token fields.
type Query map[string]string

// Keys returns the query field names, used for logging without values.
func (q Query) Keys() []string {
	keys := make([]string, 0, len(q))
	for k := range q {
		keys = append(keys, k)
	}
	return keys
}

// Changes is a set of pending identity field updates keyed by field name.
// Only fields in the identity whitelist are ever accepted into it.
type Changes map[string]string

// Clone returns a copy, never nil.
func (c Changes) Clone() Changes {
	out := make(Changes, len(c))
	maps.Copy(out, c)
	return out
}

// Tokens is a token triple. It is either fully set or fully cleared.
type Tokens struct {
	Long    string
	Short   string
	Expires *time.Time
}

// ClearedTokens returns the empty triple.
func ClearedTokens() Tokens {
	return Tokens{}
}

func issueTokens(long, short string, expires time.Time) Tokens {
	return Tokens{
		Long:    long,
		Short:   short,
		Expires: &expires,
	}
}

// IsZero reports whether the triple is cleared.
func (t Tokens) IsZero() bool {
	return t.Long == "" && t.Short == "" && t.Expires == nil
}

// ExpiredAt reports whether the triple is expired at now. A cleared triple
// counts as expired.
func (t Tokens) ExpiredAt(now time.Time) bool {
	if t.Expires == nil {
		return true
	}
	return !now.Before(*t.Expires)
}

// User is the subset of a user record this package reads and patches.
type User struct {
	ID            string
	Identity      map[string]string
	Attributes    map[string]any
	PasswordHash  string
	IsVerified    bool
	Verify        Tokens
	VerifyChanges Changes
	Reset         Tokens
}

// Project returns the flat field view of the record. Attributes come first so
// core fields always win on key collisions. Cleared tokens project as nil.
func (u *User) Project() map[string]any {
	if u == nil {
		return map[string]any{}
	}

	out := make(map[string]any, len(u.Attributes)+len(u.Identity)+10)
	maps.Copy(out, u.Attributes)
	for k, v := range u.Identity {
		out[k] = v
	}

	out[FieldID] = u.ID
	out[FieldPassword] = u.PasswordHash
	out[FieldIsVerified] = u.IsVerified
	projectTokens(out, u.Verify, FieldVerifyToken, FieldVerifyShortToken, FieldVerifyExpires)
	projectTokens(out, u.Reset, FieldResetToken, FieldResetShortToken, FieldResetExpires)
	out[FieldVerifyChanges] = u.VerifyChanges.Clone()

	return out
}

func projectTokens(out map[string]any, t Tokens, longField, shortField, expiresField string) {
	out[longField] = nilIfEmpty(t.Long)
	out[shortField] = nilIfEmpty(t.Short)
	if t.Expires == nil {
		out[expiresField] = nil
	} else {
		out[expiresField] = *t.Expires
	}
}

func nilIfEmpty(s string) any {
	if s == "" {
		return nil
	}
	return s
}

// FindResult normalizes the shapes a store may return from Find.
type FindResult interface {
	Records() []*User
}

// UserList is a plain, non paginated result.
type UserList []*User

// Records implements FindResult.
func (l UserList) Records() []*User {
	return l
}

// Page is a paginated result.
type Page struct {
	Total int
	Limit int
	Skip  int
	Data  []*User
}

// Records implements FindResult.
func (p *Page) Records() []*User {
	if p == nil {
		return nil
	}
	return p.Data
}

// matches returns the records of result and how many records matched in
// total. A Page reporting a Total above its Data length was truncated by the
// store's page size and still counts every match.
func matches(result FindResult) ([]*User, int) {
	if result == nil {
		return nil, 0
	}
	records := result.Records()
	count := len(records)
	if p, ok := result.(*Page); ok && p != nil && p.Total > count {
		count = p.Total
	}
	return records, count
}

// Patch is a partial update. Nil pointers leave fields untouched. Token
// triples are replaced as a unit.
type Patch struct {
	IsVerified    *bool
	PasswordHash  *string
	Identity      Changes
	Verify        *Tokens
	VerifyChanges Changes
	Reset         *Tokens
}

// Apply mirrors the patch onto an in-memory record so callers see the
// persisted state without a second read.
func (p Patch) Apply(u *User) {
	if u == nil {
		return
	}

	if p.IsVerified != nil {
		u.IsVerified = *p.IsVerified
	}
	if p.PasswordHash != nil {
		u.PasswordHash = *p.PasswordHash
	}
	if len(p.Identity) > 0 {
		if u.Identity == nil {
			u.Identity = make(map[string]string, len(p.Identity))
		}
		maps.Copy(u.Identity, p.Identity)
	}
	if p.Verify != nil {
		u.Verify = *p.Verify
	}
	if p.VerifyChanges != nil {
		u.VerifyChanges = p.VerifyChanges.Clone()
	}
	if p.Reset != nil {
		u.Reset = *p.Reset
	}
}

func boolPtr(b bool) *bool {
	return &b
}

func stringPtr(s string) *string {
	return &s
}

func tokensPtr(t Tokens) *Tokens {
	return &t
}
