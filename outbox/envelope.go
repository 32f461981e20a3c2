package outbox

import (
	"encoding/json"
	"time"

	goerrors "github.com/goliatone/go-errors"

	authmanagement "github.com/MHerszak/authentication-management"
)

// Delivery is a notification read back from the queue. Time values in the
// user record come back as RFC 3339 strings.
type Delivery struct {
	Notification authmanagement.Notification
	QueuedAt     time.Time
}

type envelope struct {
	Action   authmanagement.NotifyAction `json:"action"`
	User     map[string]any              `json:"user"`
	Options  map[string]any              `json:"notifierOptions,omitempty"`
	Changes  map[string]string           `json:"changes,omitempty"`
	QueuedAt time.Time                   `json:"queued_at"`
}

func newEnvelope(n authmanagement.Notification, now time.Time) envelope {
	return envelope{
		Action:   n.Action,
		User:     n.User,
		Options:  n.Options,
		Changes:  n.Changes,
		QueuedAt: now.UTC(),
	}
}

func decodeDelivery(raw []byte) (*Delivery, error) {
	var env envelope
	if err := json.Unmarshal(raw, &env); err != nil {
		return nil, goerrors.Wrap(err, goerrors.CategoryBadInput, "decode notification").
			WithTextCode(TextCodeBadPayload)
	}
	if env.Action == "" {
		return nil, goerrors.New("notification has no action", goerrors.CategoryBadInput).
			WithTextCode(TextCodeBadPayload)
	}

	n := authmanagement.Notification{
		Action:  env.Action,
		User:    authmanagement.SanitizedUser(env.User),
		Options: env.Options,
	}
	if env.Changes != nil {
		n.Changes = authmanagement.Changes(env.Changes)
	}

	return &Delivery{Notification: n, QueuedAt: env.QueuedAt}, nil
}
