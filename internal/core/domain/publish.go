package domain

import (
	"fmt"
	"sync"
	"time"

	"github.com/go-playground/validator/v10"
)

// PublishRequest is the immutable payload of a single publish attempt.
type PublishRequest struct {
	Content     string     `validate:"required,max=63206"`
	MediaURL    string     `validate:"omitempty,url"`
	ScheduledAt *time.Time `validate:"-"`
	TargetOrgID string     `validate:"omitempty,numeric"`
}

var (
	validate     *validator.Validate
	validateOnce sync.Once
)

func validatorInstance() *validator.Validate {
	validateOnce.Do(func() {
		validate = validator.New(validator.WithRequiredStructEnabled())
	})
	return validate
}

// Validate checks the request shape before any network call is made.
func (r PublishRequest) Validate() error {
	if err := validatorInstance().Struct(r); err != nil {
		return fmt.Errorf("%w: %v", ErrInvalidRequest, err)
	}
	return nil
}

// ScheduledEpoch returns the scheduled publish time as unix seconds, or 0.
func (r PublishRequest) ScheduledEpoch() int64 {
	if r.ScheduledAt == nil {
		return 0
	}
	return r.ScheduledAt.Unix()
}
