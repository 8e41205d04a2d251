package postgres

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/vietddude/socialhub/internal/core/domain"
	"github.com/vietddude/socialhub/internal/infra/storage"
)

// PostRepo implements storage.PostRepository using PostgreSQL.
type PostRepo struct {
	db *DB
}

var _ storage.PostRepository = (*PostRepo)(nil)

// NewPostRepo creates a new PostgreSQL post repository.
func NewPostRepo(db *DB) *PostRepo {
	return &PostRepo{db: db}
}

const postColumns = `id, user_id, account_id, platform, content, media_url, scheduled_at, target_org_id,
	status, platform_post_id, published_at, last_error, last_error_at, created_at, updated_at`

// Get retrieves a post by id.
func (r *PostRepo) Get(ctx context.Context, id string) (*domain.Post, error) {
	var p domain.Post
	err := r.db.GetContext(ctx, &p, `SELECT `+postColumns+` FROM posts WHERE id = $1`, id)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("post %s: %w", id, domain.ErrNotFound)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get post: %w", err)
	}
	return &p, nil
}

// Create inserts a new post, defaulting to draft.
func (r *PostRepo) Create(ctx context.Context, post *domain.Post) error {
	if post.ID == "" {
		post.ID = uuid.NewString()
	}
	if post.Status == "" {
		post.Status = domain.PostStatusDraft
	}
	now := time.Now().UTC()
	if post.CreatedAt.IsZero() {
		post.CreatedAt = now
	}
	post.UpdatedAt = now

	_, err := r.db.NamedExecContext(ctx, `
		INSERT INTO posts (`+postColumns+`)
		VALUES (:id, :user_id, :account_id, :platform, :content, :media_url, :scheduled_at, :target_org_id,
			:status, :platform_post_id, :published_at, :last_error, :last_error_at, :created_at, :updated_at)`, post)
	if err != nil {
		return fmt.Errorf("failed to create post: %w", err)
	}
	return nil
}

// Update persists the mutable state of a post.
func (r *PostRepo) Update(ctx context.Context, post *domain.Post) error {
	res, err := r.db.NamedExecContext(ctx, `
		UPDATE posts SET
			content = :content,
			media_url = :media_url,
			scheduled_at = :scheduled_at,
			target_org_id = :target_org_id,
			status = :status,
			platform_post_id = :platform_post_id,
			published_at = :published_at,
			last_error = :last_error,
			last_error_at = :last_error_at,
			updated_at = :updated_at
		WHERE id = :id`, post)
	if err != nil {
		return fmt.Errorf("failed to update post: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to update post: %w", err)
	}
	if n == 0 {
		return fmt.Errorf("post %s: %w", post.ID, domain.ErrNotFound)
	}
	return nil
}

// FindByPlatformPostID resolves a platform-assigned id.
func (r *PostRepo) FindByPlatformPostID(
	ctx context.Context,
	platform domain.Platform,
	platformPostID string,
) (*domain.Post, error) {
	var p domain.Post
	err := r.db.GetContext(ctx, &p,
		`SELECT `+postColumns+` FROM posts WHERE platform = $1 AND platform_post_id = $2 LIMIT 1`,
		platform, platformPostID,
	)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("post %s/%s: %w", platform, platformPostID, domain.ErrNotFound)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to find post: %w", err)
	}
	return &p, nil
}

// CountByStatus returns post counts grouped by status.
func (r *PostRepo) CountByStatus(ctx context.Context) (map[domain.PostStatus]int, error) {
	var rows []struct {
		Status domain.PostStatus `db:"status"`
		Count  int               `db:"count"`
	}
	if err := r.db.SelectContext(ctx, &rows, `SELECT status, COUNT(*) AS count FROM posts GROUP BY status`); err != nil {
		return nil, fmt.Errorf("failed to count posts: %w", err)
	}

	counts := make(map[domain.PostStatus]int, len(rows))
	for _, row := range rows {
		counts[row.Status] = row.Count
	}
	return counts, nil
}
