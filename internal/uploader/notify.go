package uploader

import (
	"context"

	"github.com/avetisov/docpilot/internal/api"
	"github.com/avetisov/docpilot/internal/common"
	"github.com/avetisov/docpilot/internal/logging"
)

// Notifier performs the hand-off to the processing pipeline: until it
// succeeds, bytes exist in storage but are invisible to the rest of the
// system. Only retryable failures (network, timeout, 5xx, 429) consume the
// backoff budget; a client error aborts immediately.
type Notifier struct {
	api    *api.Client
	policy RetryPolicy
	log    logging.Logger
}

func NewNotifier(client *api.Client, policy RetryPolicy, log logging.Logger) *Notifier {
	policy.Retryable = common.Retryable
	return &Notifier{api: client, policy: policy, log: log}
}

// NotifyCompletion registers the given placeholders as uploaded and returns
// the queued count. On exhaustion the error is a *common.NotificationError:
// the bytes are safe, the documents just are not registered yet.
func (n *Notifier) NotifyCompletion(ctx context.Context, documentIDs []string) (int, error) {
	if len(documentIDs) == 0 {
		return 0, nil
	}

	var queued int
	err := n.policy.Do(ctx, func(ctx context.Context) error {
		q, err := n.api.CompleteUploads(ctx, documentIDs)
		if err != nil {
			n.log.Warn(ctx, "completion notification failed", "documents", len(documentIDs), "error", err)
			return err
		}
		queued = q
		return nil
	})
	if err != nil {
		return 0, &common.NotificationError{DocumentIDs: documentIDs, Err: err}
	}

	n.log.Info(ctx, "uploads registered for processing", "queued", queued)
	return queued, nil
}
