package model

import (
	"time"
)

const (
	EmailStatusPending = "pending"
	EmailStatusSent    = "sent"
	EmailStatusFailed  = "failed"
)

const (
	EmailTypeMatchNotify = "match_notify" // 匹配成功系统通知
	EmailTypeUserMessage = "user_message" // 用户付费发给匹配对象的信
)

// EmailLog 邮件发送队列兼发送记录
// 核心事务只负责落一行 pending，实际发送由后台任务带退避重试完成
type EmailLog struct {
	ID          int64      `gorm:"primaryKey;autoIncrement" json:"id"`
	UserID      int64      `gorm:"index;not null" json:"user_id"`
	MatchID     int64      `gorm:"index" json:"match_id"`
	ToEmail     string     `gorm:"size:191;not null" json:"to_email"`
	Subject     string     `gorm:"size:255;not null" json:"subject"`
	Content     string     `gorm:"type:text" json:"content"`
	Type        string     `gorm:"size:20;index;not null" json:"type"`
	Status      string     `gorm:"size:20;index;not null;default:pending" json:"status"`
	RetryCount  int        `gorm:"not null;default:0" json:"retry_count"`
	NextRetryAt *time.Time `gorm:"index" json:"next_retry_at"`
	ErrorMsg    string     `gorm:"type:text" json:"error_msg"`
	SentAt      *time.Time `json:"sent_at"`
	CreatedAt   time.Time  `gorm:"autoCreateTime" json:"created_at"`
}

func (EmailLog) TableName() string {
	return "email_log"
}
