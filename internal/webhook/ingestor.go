// Package webhook applies engagement deltas pushed by platforms.
package webhook

import (
	"context"
	"crypto/subtle"
	"errors"
	"fmt"
	"log/slog"

	"github.com/vietddude/socialhub/internal/core/domain"
	"github.com/vietddude/socialhub/internal/infra/social/provider"
	"github.com/vietddude/socialhub/internal/infra/storage"
	"github.com/vietddude/socialhub/internal/metrics"
)

var (
	ErrInvalidSignature = errors.New("invalid webhook signature")
	ErrInvalidPayload   = errors.New("invalid webhook payload")
)

// Result counts what happened to the updates of one delivery.
type Result struct {
	Received  int `json:"received"`
	Applied   int `json:"applied"`
	Unmatched int `json:"unmatched"`
	Failed    int `json:"failed"`
}

type Ingestor struct {
	verifyToken string
	registry    *provider.Registry
	posts       storage.PostRepository
	metrics     storage.MetricsRepository
	logger      *slog.Logger
}

// NewIngestor creates an ingestor. verifyToken answers the Graph
// subscription handshake; empty disables it.
func NewIngestor(verifyToken string, registry *provider.Registry, posts storage.PostRepository, store storage.MetricsRepository, logger *slog.Logger) *Ingestor {
	if logger == nil {
		logger = slog.Default()
	}
	return &Ingestor{
		verifyToken: verifyToken,
		registry:    registry,
		posts:       posts,
		metrics:     store,
		logger:      logger,
	}
}

// Ingest verifies a delivery and applies its metric deltas. Deltas for
// posts this service did not publish are counted as unmatched.
//
// A verified delivery is always acknowledged, even when single updates fail
// to store, because the platform redelivers whole batches and deltas are not
// idempotent. Such updates are logged and counted as failed.
func (i *Ingestor) Ingest(ctx context.Context, platform domain.Platform, payload []byte, signature string) (*Result, error) {
	client, err := i.registry.Get(platform)
	if err != nil {
		return nil, err
	}

	if !client.ValidateWebhookSignature(payload, signature) {
		metrics.WebhookRejectedTotal.WithLabelValues(platform.String()).Inc()
		i.logger.Warn("Rejected webhook delivery", "platform", platform.String(), "bytes", len(payload))
		return nil, ErrInvalidSignature
	}

	updates, err := client.ProcessWebhookData(payload)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidPayload, err)
	}

	log := i.logger.With("platform", platform.String())
	res := &Result{Received: len(updates)}
	for _, u := range updates {
		post, err := i.posts.FindByPlatformPostID(ctx, platform, u.PostID)
		if errors.Is(err, domain.ErrNotFound) {
			res.Unmatched++
			continue
		}
		if err != nil {
			res.Failed++
			log.Error("Failed to resolve webhook post", "platform_post_id", u.PostID, "error", err)
			continue
		}

		if err := i.metrics.ApplyDelta(ctx, post.ID, u.Field, u.Delta); err != nil {
			res.Failed++
			log.Error("Failed to apply webhook delta",
				"post_id", post.ID,
				"field", string(u.Field),
				"delta", u.Delta,
				"error", err,
			)
			continue
		}
		metrics.WebhookUpdatesTotal.WithLabelValues(platform.String(), string(u.Field)).Inc()
		res.Applied++
	}
	if res.Failed > 0 {
		metrics.WebhookUpdatesFailedTotal.WithLabelValues(platform.String()).Add(float64(res.Failed))
	}

	log.Debug("Webhook processed",
		"received", res.Received,
		"applied", res.Applied,
		"unmatched", res.Unmatched,
		"failed", res.Failed,
	)
	return res, nil
}

// VerifySubscription answers the Graph hub.challenge handshake.
func (i *Ingestor) VerifySubscription(mode, token, challenge string) (string, bool) {
	if i.verifyToken == "" || mode != "subscribe" {
		return "", false
	}
	if subtle.ConstantTimeCompare([]byte(token), []byte(i.verifyToken)) != 1 {
		return "", false
	}
	return challenge, true
}
