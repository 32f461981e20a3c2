package authmanagement

import (
	"errors"
	"slices"
	"sort"
	"strings"

	validation "github.com/go-ozzo/ozzo-validation"
	"github.com/nyaruka/phonenumbers"
)

// IdentityValidator checks identity queries and change sets against a field
// whitelist before anything reaches the store.
type IdentityValidator struct {
	rules map[string][]validation.Rule
}

// NewIdentityValidator returns a validator. Rules are optional and keyed by
// identity field name.
func NewIdentityValidator(rules map[string][]validation.Rule) *IdentityValidator {
	v := &IdentityValidator{rules: make(map[string][]validation.Rule, len(rules))}
	for field, fieldRules := range rules {
		v.rules[field] = slices.Clone(fieldRules)
	}
	return v
}

// Validate rejects an empty candidate, keys outside allowed, empty values and
// values failing a field rule.
func (v *IdentityValidator) Validate(candidate Query, allowed []string) error {
	return v.validate(candidate, allowed, false)
}

// ValidateChanges applies the same checks to a pending change set. Token
// fields are never valid change targets.
func (v *IdentityValidator) ValidateChanges(changes Changes, allowed []string) error {
	return v.validate(Query(changes), allowed, false)
}

// validateOptional accepts an empty candidate. Used by uniqueness checks where
// no fields means nothing to check.
func (v *IdentityValidator) validateOptional(candidate Query, allowed []string) error {
	return v.validate(candidate, allowed, true)
}

func (v *IdentityValidator) validate(candidate Query, allowed []string, allowNone bool) error {
	if len(candidate) == 0 {
		if allowNone {
			return nil
		}
		return newError(ErrInvalidIdentity, map[string]any{
			"reason":  "no identity fields given",
			"allowed": allowed,
		})
	}

	fields := make(map[string]string)
	for _, key := range sortedKeys(candidate) {
		value := candidate[key]
		if !slices.Contains(allowed, key) {
			fields[key] = "field not allowed"
			continue
		}
		if strings.TrimSpace(value) == "" {
			fields[key] = "cannot be blank"
			continue
		}
		if v == nil {
			continue
		}
		if err := validation.Validate(value, v.rules[key]...); err != nil {
			fields[key] = err.Error()
		}
	}

	if len(fields) == 0 {
		return nil
	}

	md := fieldErrors(fields)
	md["allowed"] = allowed
	return newError(ErrInvalidIdentity, md)
}

// PhoneNumber validates a phone number for the given default region. Blank
// values pass so the rule composes with validation.Required.
func PhoneNumber(region string) validation.Rule {
	return validation.By(func(value interface{}) error {
		s, _ := value.(string)
		if s == "" {
			return nil
		}
		num, err := phonenumbers.Parse(s, region)
		if err != nil {
			return errors.New("must be a valid phone number")
		}
		if !phonenumbers.IsValidNumber(num) {
			return errors.New("must be a valid phone number")
		}
		return nil
	})
}

// NormalizePhoneNumber returns the E164 form of a phone number, used by hosts
// that store phone identities canonically.
func NormalizePhoneNumber(value, region string) (string, error) {
	num, err := phonenumbers.Parse(value, region)
	if err != nil {
		return "", newError(ErrInvalidIdentity, map[string]any{"reason": err.Error()})
	}
	return phonenumbers.Format(num, phonenumbers.E164), nil
}

func sortedKeys[M ~map[string]V, V any](m M) []string {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}
