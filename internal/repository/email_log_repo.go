package repository

import (
	"context"
	"time"

	"collisionsystem/internal/model"

	"gorm.io/gorm"
)

type EmailLogRepository struct {
	db *gorm.DB
}

func NewEmailLogRepository(db *gorm.DB) *EmailLogRepository {
	return &EmailLogRepository{db: db}
}

func (r *EmailLogRepository) Create(ctx context.Context, tx *gorm.DB, log *model.EmailLog) error {
	if tx == nil {
		tx = r.db
	}
	return tx.WithContext(ctx).Create(log).Error
}

// GetPending 捞待发邮件：状态 pending 且到达重试时间（首发 next_retry_at 为空）
func (r *EmailLogRepository) GetPending(ctx context.Context, limit int) ([]*model.EmailLog, error) {
	var logs []*model.EmailLog
	err := r.db.WithContext(ctx).
		Where("status = ? AND (next_retry_at IS NULL OR next_retry_at <= ?)",
			model.EmailStatusPending, time.Now()).
		Order("created_at ASC").
		Limit(limit).
		Find(&logs).Error
	return logs, err
}

func (r *EmailLogRepository) MarkSent(ctx context.Context, id int64) error {
	return r.db.WithContext(ctx).
		Model(&model.EmailLog{}).
		Where("id = ?", id).
		Updates(map[string]interface{}{
			"status":  model.EmailStatusSent,
			"sent_at": time.Now(),
		}).Error
}

// MarkRetry 发送失败，指数退避后重试；超限置 failed
func (r *EmailLogRepository) MarkRetry(ctx context.Context, id int64, retryCount, maxRetry int, errMsg string) error {
	updates := map[string]interface{}{
		"retry_count": retryCount + 1,
		"error_msg":   errMsg,
	}
	if retryCount+1 >= maxRetry {
		updates["status"] = model.EmailStatusFailed
	} else {
		backoff := time.Duration(1<<uint(retryCount)) * time.Minute
		updates["next_retry_at"] = time.Now().Add(backoff)
	}
	return r.db.WithContext(ctx).
		Model(&model.EmailLog{}).
		Where("id = ?", id).
		Updates(updates).Error
}
