package postgres

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/vietddude/socialhub/internal/core/domain"
	"github.com/vietddude/socialhub/internal/infra/storage"
)

// MetricsRepo implements storage.MetricsRepository using PostgreSQL.
type MetricsRepo struct {
	db *DB
}

var _ storage.MetricsRepository = (*MetricsRepo)(nil)

// NewMetricsRepo creates a new PostgreSQL metrics repository.
func NewMetricsRepo(db *DB) *MetricsRepo {
	return &MetricsRepo{db: db}
}

// Upsert replaces the snapshot for a post.
func (r *MetricsRepo) Upsert(ctx context.Context, m *domain.EngagementMetrics) error {
	_, err := r.db.NamedExecContext(ctx, `
		INSERT INTO post_metrics (post_id, likes, comments, shares, reach, impressions, collected_at, updated_at)
		VALUES (:post_id, :likes, :comments, :shares, :reach, :impressions, :collected_at, now())
		ON CONFLICT (post_id) DO UPDATE SET
			likes = EXCLUDED.likes,
			comments = EXCLUDED.comments,
			shares = EXCLUDED.shares,
			reach = EXCLUDED.reach,
			impressions = EXCLUDED.impressions,
			collected_at = EXCLUDED.collected_at,
			updated_at = now()`, m)
	if err != nil {
		return fmt.Errorf("failed to upsert metrics: %w", err)
	}
	return nil
}

// Get retrieves the snapshot for a post.
func (r *MetricsRepo) Get(ctx context.Context, postID string) (*domain.EngagementMetrics, error) {
	var m domain.EngagementMetrics
	err := r.db.GetContext(ctx, &m, `
		SELECT post_id, likes, comments, shares, reach, impressions, collected_at
		FROM post_metrics WHERE post_id = $1`, postID)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("metrics %s: %w", postID, domain.ErrNotFound)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get metrics: %w", err)
	}
	return &m, nil
}

// applyDeltaQueries holds one statement per counter so the column name never
// comes from input.
var applyDeltaQueries = map[domain.MetricField]string{
	domain.MetricLikes:    applyDeltaQuery("likes"),
	domain.MetricComments: applyDeltaQuery("comments"),
	domain.MetricShares:   applyDeltaQuery("shares"),
}

func applyDeltaQuery(column string) string {
	return fmt.Sprintf(`
		INSERT INTO post_metrics (post_id, %[1]s)
		VALUES ($1, GREATEST($2::bigint, 0))
		ON CONFLICT (post_id) DO UPDATE SET
			%[1]s = GREATEST(post_metrics.%[1]s + $2::bigint, 0),
			updated_at = now()`, column)
}

// ApplyDelta moves one counter in a single atomic statement.
func (r *MetricsRepo) ApplyDelta(ctx context.Context, postID string, field domain.MetricField, delta int64) error {
	query, ok := applyDeltaQueries[field]
	if !ok {
		return fmt.Errorf("metric field %q: %w", field, domain.ErrInvalidRequest)
	}
	if _, err := r.db.ExecContext(ctx, query, postID, delta); err != nil {
		return fmt.Errorf("failed to apply metric delta: %w", err)
	}
	return nil
}
