package authmanagement

// VerificationState is the verification lifecycle position of a record.
type VerificationState string

const (
	StateUnverified                VerificationState = "unverified"
	StateVerified                  VerificationState = "verified"
	StateVerifiedWithPendingChange VerificationState = "verified_pending_change"
)

// verificationTransitions lists the moves the engines may perform. Fail closed
// erasure is not a transition: it keeps the current state and only drops tokens.
var verificationTransitions = map[VerificationState]map[VerificationState]struct{}{
	StateUnverified: {
		StateUnverified: {}, // resend, identityChange before verification
		StateVerified:   {}, // verifySignup
	},
	StateVerified: {
		StateVerifiedWithPendingChange: {}, // identityChange
	},
	StateVerifiedWithPendingChange: {
		StateVerified:                  {}, // verifySignup applies the change
		StateVerifiedWithPendingChange: {}, // identityChange replaces the change
	},
}

// CurrentVerificationState derives the state from the record fields.
func CurrentVerificationState(u *User) VerificationState {
	if u == nil || !u.IsVerified {
		return StateUnverified
	}
	if len(u.VerifyChanges) > 0 {
		return StateVerifiedWithPendingChange
	}
	return StateVerified
}

// CanTransition reports whether the engines allow moving from one state to
// another.
func CanTransition(from, to VerificationState) bool {
	targets, ok := verificationTransitions[from]
	if !ok {
		return false
	}
	_, ok = targets[to]
	return ok
}
