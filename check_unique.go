package authmanagement

import (
	"context"
	"strings"
)

// UniquenessChecker reports identity values already used by other records.
type UniquenessChecker struct {
	*engine
}

// CheckUnique runs one lookup per non blank identity field. A field is taken
// when more than one record matches or the single match is not ownID. With
// noErrMsg the returned error has an empty message but keeps the per field
// errors.
func (u *UniquenessChecker) CheckUnique(ctx context.Context, identity Query, ownID string, noErrMsg bool) error {
	if err := checkContext(ctx, "check unique"); err != nil {
		return err
	}

	candidate := make(Query, len(identity))
	for field, value := range identity {
		if value = strings.TrimSpace(value); value != "" {
			candidate[field] = value
		}
	}

	if err := u.validator.validateOptional(candidate, u.identifyUserProps()); err != nil {
		return err
	}

	taken := make(map[string]string)
	for _, field := range sortedKeys(candidate) {
		result, err := u.store.Find(ctx, Query{field: candidate[field]})
		if err != nil {
			u.logger.Error("check unique: store find failed", "field", field, "error", err)
			return wrapError(err, ErrStoreFailure, map[string]any{"operation": "find", "field": field})
		}

		records, count := matches(result)
		if count > 1 || (len(records) == 1 && (records[0] == nil || records[0].ID != ownID)) {
			taken[field] = "Already taken."
		}
	}

	if len(taken) == 0 {
		return nil
	}

	u.logger.Debug("check unique: values taken", "fields", sortedKeys(taken))
	err := newError(ErrValuesTaken, fieldErrors(taken))
	if noErrMsg {
		err.Message = ""
	}
	return err
}
