package job

import (
	"context"
	"log"
	"time"

	"collisionsystem/internal/config"
	"collisionsystem/internal/infrastructure/email"
	"collisionsystem/internal/model"
	"collisionsystem/internal/repository"

	"gorm.io/gorm"
)

// EmailSender 发送邮件队列里的待发邮件，失败按指数退避重试
type EmailSender struct {
	db           *gorm.DB
	emailLogRepo *repository.EmailLogRepository
	mailer       email.Mailer
	cfg          *config.Config
	stopCh       chan struct{}
	interval     time.Duration
	batchSize    int
}

func NewEmailSender(db *gorm.DB, mailer email.Mailer, cfg *config.Config) *EmailSender {
	return &EmailSender{
		db:           db,
		emailLogRepo: repository.NewEmailLogRepository(db),
		mailer:       mailer,
		cfg:          cfg,
		stopCh:       make(chan struct{}),
		interval:     5 * time.Second,
		batchSize:    50,
	}
}

func (s *EmailSender) Start(ctx context.Context) {
	log.Println("[EmailSender] 邮件发送任务启动")

	ticker := time.NewTicker(s.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			log.Println("[EmailSender] 收到停止信号，任务退出")
			return
		case <-s.stopCh:
			log.Println("[EmailSender] 任务停止")
			return
		case <-ticker.C:
			s.processPendingEmails(ctx)
		}
	}
}

func (s *EmailSender) Stop() {
	close(s.stopCh)
}

func (s *EmailSender) processPendingEmails(ctx context.Context) {
	logs, err := s.emailLogRepo.GetPending(ctx, s.batchSize)
	if err != nil {
		log.Printf("[EmailSender] 查询待发邮件失败: %v", err)
		return
	}

	if len(logs) == 0 {
		return
	}

	for _, emailLog := range logs {
		s.send(ctx, emailLog)
	}
}

func (s *EmailSender) send(ctx context.Context, emailLog *model.EmailLog) {
	err := s.mailer.Send(emailLog.ToEmail, emailLog.Subject, emailLog.Content)

	if err == nil {
		if updateErr := s.emailLogRepo.MarkSent(ctx, emailLog.ID); updateErr != nil {
			log.Printf("[EmailSender] 更新邮件状态失败: id=%d, err=%v", emailLog.ID, updateErr)
		} else {
			log.Printf("[EmailSender] 邮件发送成功: id=%d, to=%s, type=%s",
				emailLog.ID, emailLog.ToEmail, emailLog.Type)
		}
		return
	}

	log.Printf("[EmailSender] 邮件发送失败: id=%d, to=%s, err=%v", emailLog.ID, emailLog.ToEmail, err)

	if markErr := s.emailLogRepo.MarkRetry(ctx, emailLog.ID, emailLog.RetryCount,
		s.cfg.Business.MaxRetryCount, err.Error()); markErr != nil {
		log.Printf("[EmailSender] 更新重试状态失败: id=%d, err=%v", emailLog.ID, markErr)
	}
}
