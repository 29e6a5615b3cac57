package service

import (
	"context"
	"encoding/json"

	"github.com/go-redis/redis/v8"

	"github.com/josh-kwaku/label-ledger/internal/domain"
	"github.com/josh-kwaku/label-ledger/internal/logging"
)

// Notifier pushes finance notifications onto a Redis list that the
// notification worker consumes. Delivery is best effort: the change behind a
// notification has already committed, so failures are only logged. A nil
// Notifier drops everything.
type Notifier struct {
	rdb   *redis.Client
	queue string
}

func NewNotifier(rdb *redis.Client, queue string) *Notifier {
	if rdb == nil {
		return nil
	}
	return &Notifier{rdb: rdb, queue: queue}
}

func (n *Notifier) Notify(ctx context.Context, note domain.Notification) {
	if n == nil {
		return
	}
	log := logging.FromContext(ctx)

	data, err := json.Marshal(note)
	if err != nil {
		log.Error("failed to encode notification", "type", note.Type, "error", err)
		return
	}
	if err := n.rdb.RPush(ctx, n.queue, data).Err(); err != nil {
		log.Warn("failed to enqueue notification",
			"type", note.Type,
			"account_id", note.AccountID,
			"error", err,
		)
	}
}
