package domain

import (
	"fmt"
	"time"
)

// PostStatus is the approval/publication state of a post.
type PostStatus string

const (
	PostStatusDraft     PostStatus = "draft"
	PostStatusApproved  PostStatus = "approved"
	PostStatusPublished PostStatus = "published"
	PostStatusRejected  PostStatus = "rejected"
)

// Post is a piece of content bound to one platform account.
type Post struct {
	ID             string     `db:"id"               json:"id"`
	UserID         string     `db:"user_id"          json:"user_id"`
	AccountID      string     `db:"account_id"       json:"account_id"`
	Platform       Platform   `db:"platform"         json:"platform"`
	Content        string     `db:"content"          json:"content"`
	MediaURL       string     `db:"media_url"        json:"media_url,omitempty"`
	ScheduledAt    *time.Time `db:"scheduled_at"     json:"scheduled_at,omitempty"`
	TargetOrgID    string     `db:"target_org_id"    json:"target_org_id,omitempty"`
	Status         PostStatus `db:"status"           json:"status"`
	PlatformPostID string     `db:"platform_post_id" json:"platform_post_id,omitempty"`
	PublishedAt    *time.Time `db:"published_at"     json:"published_at,omitempty"`
	LastError      string     `db:"last_error"       json:"last_error,omitempty"`
	LastErrorAt    *time.Time `db:"last_error_at"    json:"last_error_at,omitempty"`
	CreatedAt      time.Time  `db:"created_at"       json:"created_at"`
	UpdatedAt      time.Time  `db:"updated_at"       json:"updated_at"`
}

// PublishRequest builds the immutable request for one publish attempt.
func (p *Post) PublishRequest() PublishRequest {
	return PublishRequest{
		Content:     p.Content,
		MediaURL:    p.MediaURL,
		ScheduledAt: p.ScheduledAt,
		TargetOrgID: p.TargetOrgID,
	}
}

// Approve moves a draft to approved.
func (p *Post) Approve(now time.Time) error {
	if p.Status != PostStatusDraft {
		return p.transitionErr(PostStatusApproved)
	}
	p.Status = PostStatusApproved
	p.UpdatedAt = now
	return nil
}

// Reject moves a draft to the terminal rejected state.
func (p *Post) Reject(now time.Time) error {
	if p.Status != PostStatusDraft {
		return p.transitionErr(PostStatusRejected)
	}
	p.Status = PostStatusRejected
	p.UpdatedAt = now
	return nil
}

// MarkPublished records a successful API publish. Only approved posts publish.
func (p *Post) MarkPublished(platformPostID string, now time.Time) error {
	if p.Status != PostStatusApproved {
		return p.transitionErr(PostStatusPublished)
	}
	p.setPublished(platformPostID, now)
	return nil
}

// MarkManuallyPublished records a post the user published outside the API.
// It is allowed from draft as well as approved.
func (p *Post) MarkManuallyPublished(platformPostID string, now time.Time) error {
	if p.Status != PostStatusApproved && p.Status != PostStatusDraft {
		return p.transitionErr(PostStatusPublished)
	}
	p.setPublished(platformPostID, now)
	return nil
}

// RevertToDraft records a publish failure. The post never stays approved
// after a failed attempt.
func (p *Post) RevertToDraft(message string, now time.Time) error {
	if p.Status != PostStatusApproved {
		return p.transitionErr(PostStatusDraft)
	}
	if message == "" {
		message = "publish failed"
	}
	p.Status = PostStatusDraft
	p.LastError = message
	p.LastErrorAt = &now
	p.UpdatedAt = now
	return nil
}

func (p *Post) setPublished(platformPostID string, now time.Time) {
	p.Status = PostStatusPublished
	p.PlatformPostID = platformPostID
	p.PublishedAt = &now
	p.LastError = ""
	p.LastErrorAt = nil
	p.UpdatedAt = now
}

func (p *Post) transitionErr(to PostStatus) error {
	return fmt.Errorf("%w: %s -> %s (post %s)", ErrInvalidTransition, p.Status, to, p.ID)
}
