package outbox

import (
	"context"
	"encoding/json"
	"errors"
	"time"

	goerrors "github.com/goliatone/go-errors"
	"github.com/redis/go-redis/v9"

	authmanagement "github.com/MHerszak/authentication-management"
)

const (
	DefaultKey         = "authmanagement:notifications"
	DefaultPopTimeout  = 5 * time.Second
	failedKeySuffix    = ":failed"
	TextCodeEnqueue    = "NOTIFICATION_ENQUEUE_FAILED"
	TextCodeDequeue    = "NOTIFICATION_DEQUEUE_FAILED"
	TextCodeBadPayload = "NOTIFICATION_BAD_PAYLOAD"
)

// Queue is an authmanagement.Notifier that parks notifications on a Redis
// list. A delivery worker drains the list with Pop or Run. Payloads carry the
// notifier view of the user, tokens included, so the list must not be shared
// with untrusted readers.
type Queue struct {
	client redis.Cmdable
	key    string
	now    func() time.Time
	logger authmanagement.Logger
}

var _ authmanagement.Notifier = (*Queue)(nil)

type Option func(*Queue)

// WithKey sets the list key. Failed deliveries go to key + ":failed".
func WithKey(key string) Option {
	return func(q *Queue) {
		if key != "" {
			q.key = key
		}
	}
}

func WithClock(now func() time.Time) Option {
	return func(q *Queue) {
		if now != nil {
			q.now = now
		}
	}
}

func WithLogger(logger authmanagement.Logger) Option {
	return func(q *Queue) {
		if logger != nil {
			q.logger = logger
		}
	}
}

// New builds a queue over client.
func New(client redis.Cmdable, opts ...Option) (*Queue, error) {
	if client == nil {
		return nil, goerrors.New("redis client is required", goerrors.CategoryBadInput).
			WithTextCode(authmanagement.TextCodeInvalidConfig)
	}

	q := &Queue{
		client: client,
		key:    DefaultKey,
		now:    time.Now,
	}
	for _, opt := range opts {
		if opt != nil {
			opt(q)
		}
	}
	_, q.logger = authmanagement.ResolveLogger("authmanagement.outbox", nil, q.logger)

	return q, nil
}

// Key returns the list key notifications are pushed to.
func (q *Queue) Key() string { return q.key }

// FailedKey returns the list key undeliverable notifications are moved to.
func (q *Queue) FailedKey() string { return q.key + failedKeySuffix }

// Notify implements authmanagement.Notifier.
func (q *Queue) Notify(ctx context.Context, n authmanagement.Notification) error {
	payload, err := json.Marshal(newEnvelope(n, q.now()))
	if err != nil {
		return goerrors.Wrap(err, goerrors.CategoryInternal, "encode notification").
			WithTextCode(TextCodeBadPayload)
	}

	if err := q.client.RPush(ctx, q.key, payload).Err(); err != nil {
		q.logger.Error("outbox: enqueue failed", "key", q.key, "action", n.Action, "error", err)
		return goerrors.Wrap(err, goerrors.CategoryExternal, "enqueue notification").
			WithTextCode(TextCodeEnqueue)
	}

	q.logger.Debug("outbox: notification queued", "key", q.key, "action", n.Action)
	return nil
}

// Len reports the number of queued notifications.
func (q *Queue) Len(ctx context.Context) (int64, error) {
	n, err := q.client.LLen(ctx, q.key).Result()
	if err != nil {
		return 0, goerrors.Wrap(err, goerrors.CategoryExternal, "queue length").
			WithTextCode(TextCodeDequeue)
	}
	return n, nil
}

// Pop waits up to timeout for the next notification. A timeout returns nil
// without error. Redis rounds timeouts below one second up to one second.
func (q *Queue) Pop(ctx context.Context, timeout time.Duration) (*Delivery, error) {
	d, _, err := q.pop(ctx, timeout)
	return d, err
}

func (q *Queue) pop(ctx context.Context, timeout time.Duration) (*Delivery, string, error) {
	res, err := q.client.BLPop(ctx, timeout, q.key).Result()
	if errors.Is(err, redis.Nil) {
		return nil, "", nil
	}
	if err != nil {
		return nil, "", goerrors.Wrap(err, goerrors.CategoryExternal, "dequeue notification").
			WithTextCode(TextCodeDequeue)
	}
	if len(res) != 2 {
		return nil, "", goerrors.New("unexpected BLPOP reply", goerrors.CategoryExternal).
			WithTextCode(TextCodeDequeue).
			WithMetadata(map[string]any{"size": len(res)})
	}

	raw := res[1]
	d, err := decodeDelivery([]byte(raw))
	if err != nil {
		return nil, raw, err
	}
	return d, raw, nil
}

// Run drains the queue into deliver until ctx is done. Notifications that fail
// to decode or deliver are moved to FailedKey and the loop keeps going.
func (q *Queue) Run(ctx context.Context, deliver authmanagement.Notifier, timeout time.Duration) error {
	if deliver == nil {
		return goerrors.New("delivery notifier is required", goerrors.CategoryBadInput).
			WithTextCode(authmanagement.TextCodeInvalidConfig)
	}
	if timeout <= 0 {
		timeout = DefaultPopTimeout
	}

	for {
		select {
		case <-ctx.Done():
			return nil
		default:
		}

		d, raw, err := q.pop(ctx, timeout)
		if err != nil {
			if ctx.Err() != nil {
				return nil
			}
			if raw == "" {
				q.logger.Error("outbox: dequeue failed", "key", q.key, "error", err)
				return err
			}
			q.park(ctx, raw, err)
			continue
		}
		if d == nil {
			continue
		}

		if err := deliver.Notify(ctx, d.Notification); err != nil {
			q.park(ctx, raw, err)
			continue
		}
		q.logger.Debug("outbox: notification delivered", "action", d.Notification.Action, "queued_at", d.QueuedAt)
	}
}

func (q *Queue) park(ctx context.Context, raw string, cause error) {
	q.logger.Warn("outbox: delivery failed, parking notification", "key", q.FailedKey(), "error", cause)
	// parking must survive the worker being stopped mid delivery
	if err := q.client.RPush(context.WithoutCancel(ctx), q.FailedKey(), raw).Err(); err != nil {
		q.logger.Error("outbox: park failed, notification dropped", "key", q.FailedKey(), "error", err)
	}
}
