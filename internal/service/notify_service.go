package service

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"gorm.io/gorm"

	"collisionsystem/internal/config"
	"collisionsystem/internal/model"
	"collisionsystem/internal/repository"
)

// MatchCreatedEvent 匹配成功事件，经 outbox 投递到 Kafka
type MatchCreatedEvent struct {
	MatchID           int64     `json:"match_id"`
	CodeAID           int64     `json:"code_a_id"`
	CodeBID           int64     `json:"code_b_id"`
	UserAID           int64     `json:"user_a_id"`
	UserBID           int64     `json:"user_b_id"`
	Tag               string    `json:"tag"`
	MatchTier         string    `json:"match_tier"`
	MatchedAt         time.Time `json:"matched_at"`
	AddFriendDeadline time.Time `json:"add_friend_deadline"`
}

// NotifyService 匹配通知
// 只在核心事务内落 outbox 行和邮件队列行，实际投递由后台任务完成：
// Kafka/SMTP 不可用时匹配照常成立。
type NotifyService struct {
	outboxRepo   *repository.OutboxRepository
	emailLogRepo *repository.EmailLogRepository
	topic        string
}

func NewNotifyService(outboxRepo *repository.OutboxRepository,
	emailLogRepo *repository.EmailLogRepository, cfg *config.Config) *NotifyService {
	return &NotifyService{
		outboxRepo:   outboxRepo,
		emailLogRepo: emailLogRepo,
		topic:        cfg.Kafka.Topic.MatchCreated,
	}
}

// MatchCreatedTx 与建匹配同一事务：写事件 + 给可通知的双方各落一封邮件
func (s *NotifyService) MatchCreatedTx(ctx context.Context, tx *gorm.DB,
	match *model.Match, userA, userB *model.User) error {
	event := MatchCreatedEvent{
		MatchID:           match.ID,
		CodeAID:           match.CodeAID,
		CodeBID:           match.CodeBID,
		UserAID:           match.UserAID,
		UserBID:           match.UserBID,
		Tag:               match.Tag,
		MatchTier:         match.MatchTier,
		MatchedAt:         match.MatchedAt,
		AddFriendDeadline: match.AddFriendDeadline,
	}
	payload, err := json.Marshal(event)
	if err != nil {
		return err
	}

	msg := &model.OutboxMessage{
		MessageKey: fmt.Sprintf("match:%d", match.ID),
		Topic:      s.topic,
		Payload:    string(payload),
		Status:     model.OutboxStatusPending,
	}
	if err := s.outboxRepo.Create(ctx, tx, msg); err != nil {
		return err
	}

	for _, u := range []*model.User{userA, userB} {
		if u == nil || u.Email == "" || !u.EmailVerified {
			continue
		}
		emailLog := &model.EmailLog{
			UserID:  u.ID,
			MatchID: match.ID,
			ToEmail: u.Email,
			Subject: fmt.Sprintf("碰撞成功：%s", match.Tag),
			Content: matchNotifyBody(match),
			Type:    model.EmailTypeMatchNotify,
			Status:  model.EmailStatusPending,
		}
		if err := s.emailLogRepo.Create(ctx, tx, emailLog); err != nil {
			return err
		}
	}
	return nil
}

func matchNotifyBody(match *model.Match) string {
	// 海底捞等付费匹配直接成好友，没有免费窗口可言
	if match.Status == model.MatchStatusFriendAdded {
		return fmt.Sprintf("<p>你的碰撞码「%s」匹配成功！对方信息已解锁，快去查看吧。</p>", match.Tag)
	}
	return fmt.Sprintf(
		"<p>你的碰撞码「%s」匹配成功！</p>"+
			"<p>请在 <b>%s</b> 前登录查看对方信息并免费加好友，逾期需付费找回。</p>",
		match.Tag, match.AddFriendDeadline.Format("2006-01-02 15:04"))
}
