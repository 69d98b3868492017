package chat

import (
	"context"
	"time"

	"github.com/pkg/errors"
	"gorm.io/gorm"
)

type JobStatus string

const (
	JobQueued    JobStatus = "queued"
	JobRunning   JobStatus = "running"
	JobSucceeded JobStatus = "succeeded"
	JobFailed    JobStatus = "failed"
)

// TurnJob is one queued completion turn executed by the background
// worker. Jobs only exist for persisted chats and are removed with
// their chat by the foreign key cascade. Model may be blank, meaning
// the chat's current model at execution time.
type TurnJob struct {
	ID     string `gorm:"primaryKey;size:26" json:"id"` // ULID
	ChatID uint64 `gorm:"index;not null" json:"chat_id"`
	Model  string `gorm:"type:varchar(64)" json:"model,omitempty"`
	Prompt string `gorm:"type:text;not null" json:"prompt"`

	Status JobStatus `gorm:"type:varchar(16);index;not null" json:"status"`

	// Filled when succeeded
	ResultMessageID *uint64 `gorm:"index" json:"result_message_id,omitempty"`

	// Filled when failed
	Error *string `gorm:"type:text" json:"error,omitempty"`

	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

func (TurnJob) TableName() string { return "turn_jobs" }

// CreateJob inserts a queued job. A dead chat id surfaces as
// ErrNotFound via the foreign key.
func (s *Store) CreateJob(ctx context.Context, job *TurnJob) error {
	if s.db == nil {
		return ErrPersistenceUnavailable
	}
	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		return tx.Create(job).Error
	})
	if err != nil {
		if isFKViolation(err) {
			return errors.Wrapf(ErrNotFound, "chat %d", job.ChatID)
		}
		return errors.Wrap(err, "create job")
	}
	return nil
}

func (s *Store) GetJob(ctx context.Context, id string) (*TurnJob, error) {
	if s.db == nil {
		return nil, ErrPersistenceUnavailable
	}
	var job TurnJob
	err := s.db.WithContext(ctx).First(&job, "id = ?", id).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, errors.Wrapf(ErrNotFound, "job %s", id)
	}
	if err != nil {
		return nil, errors.Wrap(err, "get job")
	}
	return &job, nil
}

// MarkJobRunning moves a queued job to running. Already-claimed jobs
// are left alone so redelivered queue messages don't restart work.
func (s *Store) MarkJobRunning(ctx context.Context, id string) error {
	if s.db == nil {
		return ErrPersistenceUnavailable
	}
	err := s.db.WithContext(ctx).Model(&TurnJob{}).
		Where("id = ? AND status = ?", id, JobQueued).
		Update("status", JobRunning).Error
	return errors.Wrap(err, "mark job running")
}

func (s *Store) MarkJobSucceeded(ctx context.Context, id string, resultMessageID uint64) error {
	if s.db == nil {
		return ErrPersistenceUnavailable
	}
	err := s.db.WithContext(ctx).Model(&TurnJob{}).
		Where("id = ?", id).
		Updates(map[string]any{
			"status":            JobSucceeded,
			"result_message_id": resultMessageID,
			"error":             nil,
		}).Error
	return errors.Wrap(err, "mark job succeeded")
}

func (s *Store) MarkJobFailed(ctx context.Context, id string, errMsg string) error {
	if s.db == nil {
		return ErrPersistenceUnavailable
	}
	err := s.db.WithContext(ctx).Model(&TurnJob{}).
		Where("id = ?", id).
		Updates(map[string]any{
			"status":            JobFailed,
			"error":             errMsg,
			"result_message_id": nil,
		}).Error
	return errors.Wrap(err, "mark job failed")
}
