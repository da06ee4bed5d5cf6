package service

import (
	"context"
	"errors"
	"fmt"
	"html"
	"strings"
	"time"

	"github.com/go-redis/redis/v8"
	"gorm.io/gorm"

	"collisionsystem/internal/config"
	"collisionsystem/internal/infrastructure/lock"
	"collisionsystem/internal/location"
	"collisionsystem/internal/model"
	"collisionsystem/internal/repository"
)

// ============================================================================
// 匹配生命周期
// ============================================================================
//
// 匹配建立后进入免费加好友窗口：
//
//	matched --(窗口内确认)--> friend_added
//	matched --(窗口过期后付费强制加)--> friend_added
//	matched --(主动放弃)--> missed（终态）
//
// 窗口过期不落库：展示状态按 AddFriendDeadline 懒计算，存储状态只在
// 用户动作时迁移，迁移用条件 UPDATE 防并发双写。
// ============================================================================

// PartnerView 对方信息，联系方式按窗口状态打码
type PartnerView struct {
	UserID   int64              `json:"user_id"`
	Nickname string             `json:"nickname"`
	Avatar   string             `json:"avatar"`
	Gender   int                `json:"gender"`
	WechatNo string             `json:"wechat_no"`
	Email    string             `json:"email,omitempty"`
	Location *location.Snapshot `json:"location,omitempty"`
}

// MatchView 单方视角的匹配详情
type MatchView struct {
	MatchID           int64       `json:"match_id"`
	Tag               string      `json:"tag"`
	MatchTier         string      `json:"match_tier"`
	Status            string      `json:"status"`
	MatchedAt         time.Time   `json:"matched_at"`
	AddFriendDeadline time.Time   `json:"add_friend_deadline"`
	Partner           PartnerView `json:"partner"`
}

type MatchService struct {
	db           *gorm.DB
	redisClient  *redis.Client
	cfg          *config.Config
	matchRepo    *repository.MatchRepository
	codeRepo     *repository.CodeRepository
	userRepo     *repository.UserRepository
	emailLogRepo *repository.EmailLogRepository
	ledgerSvc    *LedgerService
	notifySvc    *NotifyService
	hotTagSvc    *HotTagService
}

func NewMatchService(db *gorm.DB, redisClient *redis.Client, cfg *config.Config,
	matchRepo *repository.MatchRepository, codeRepo *repository.CodeRepository,
	userRepo *repository.UserRepository, emailLogRepo *repository.EmailLogRepository,
	ledgerSvc *LedgerService, notifySvc *NotifyService, hotTagSvc *HotTagService) *MatchService {
	return &MatchService{
		db:           db,
		redisClient:  redisClient,
		cfg:          cfg,
		matchRepo:    matchRepo,
		codeRepo:     codeRepo,
		userRepo:     userRepo,
		emailLogRepo: emailLogRepo,
		ledgerSvc:    ledgerSvc,
		notifySvc:    notifySvc,
		hotTagSvc:    hotTagSvc,
	}
}

// displayStatus 展示状态：窗口已过的 matched 显示为 missed
func displayStatus(m *model.Match, now time.Time) string {
	if m.Status == model.MatchStatusMatched && m.DeadlinePassed(now) {
		return model.MatchStatusMissed
	}
	return m.Status
}

// contactVisible 联系方式是否透出：已加好友永远可见，matched 只在窗口内可见
func contactVisible(m *model.Match, now time.Time) bool {
	switch m.Status {
	case model.MatchStatusFriendAdded:
		return true
	case model.MatchStatusMatched:
		return !m.DeadlinePassed(now)
	}
	return false
}

func (s *MatchService) buildView(m *model.Match, viewerID int64, now time.Time) *MatchView {
	partner := &m.UserA
	if m.UserAID == viewerID {
		partner = &m.UserB
	}

	pv := PartnerView{
		UserID:   partner.ID,
		Nickname: partner.Nickname,
		Avatar:   partner.Avatar,
		Gender:   partner.Gender,
	}
	if contactVisible(m, now) {
		pv.WechatNo = partner.WechatNo
		if partner.EmailVisible {
			pv.Email = partner.Email
		}
	} else {
		pv.WechatNo = maskWechat(partner.WechatNo)
	}
	if partner.LocationVisible {
		loc := partner.Location()
		pv.Location = &loc
	}

	return &MatchView{
		MatchID:           m.ID,
		Tag:               m.Tag,
		MatchTier:         m.MatchTier,
		Status:            displayStatus(m, now),
		MatchedAt:         m.MatchedAt,
		AddFriendDeadline: m.AddFriendDeadline,
		Partner:           pv,
	}
}

func (s *MatchService) ListForUser(ctx context.Context, userID int64) ([]*MatchView, error) {
	matches, err := s.matchRepo.ListByUser(ctx, userID)
	if err != nil {
		return nil, err
	}
	now := time.Now()
	views := make([]*MatchView, 0, len(matches))
	for _, m := range matches {
		views = append(views, s.buildView(m, userID, now))
	}
	return views, nil
}

func (s *MatchService) Detail(ctx context.Context, userID, matchID int64) (*MatchView, error) {
	m, err := s.getInvolved(ctx, userID, matchID)
	if err != nil {
		return nil, err
	}
	return s.buildView(m, userID, time.Now()), nil
}

// getInvolved 取匹配并校验当前用户是其中一方，旁人一律无权
func (s *MatchService) getInvolved(ctx context.Context, userID, matchID int64) (*model.Match, error) {
	m, err := s.matchRepo.GetByID(ctx, matchID)
	if err != nil {
		if errors.Is(err, repository.ErrMatchNotFound) {
			return nil, ErrNotFound
		}
		return nil, err
	}
	if !m.Involves(userID) {
		return nil, ErrForbidden
	}
	return m, nil
}

// AddFriend 窗口内免费确认加好友
func (s *MatchService) AddFriend(ctx context.Context, userID, matchID int64) (*MatchView, error) {
	m, err := s.getInvolved(ctx, userID, matchID)
	if err != nil {
		return nil, err
	}
	if !model.CanTransitionTo(m.Status, model.MatchStatusFriendAdded) {
		return nil, ErrConflict
	}
	if m.DeadlinePassed(time.Now()) {
		return nil, ErrDeadlinePassed
	}

	ok, err := s.matchRepo.UpdateStatusIf(ctx, nil, matchID,
		model.MatchStatusMatched, model.MatchStatusFriendAdded)
	if err != nil {
		return nil, err
	}
	if !ok {
		return nil, ErrConflict
	}

	m.Status = model.MatchStatusFriendAdded
	return s.buildView(m, userID, time.Now()), nil
}

// Skip 主动放弃这次匹配
func (s *MatchService) Skip(ctx context.Context, userID, matchID int64) error {
	m, err := s.getInvolved(ctx, userID, matchID)
	if err != nil {
		return err
	}
	if !model.CanTransitionTo(m.Status, model.MatchStatusMissed) {
		return ErrConflict
	}

	ok, err := s.matchRepo.UpdateStatusIf(ctx, nil, matchID,
		model.MatchStatusMatched, model.MatchStatusMissed)
	if err != nil {
		return err
	}
	if !ok {
		return ErrConflict
	}
	return nil
}

// ForceAdd 窗口过期后付费强制加好友。
// 前提：对方开了"允许被强制加"，且窗口确实已过——没过只能走免费通道。
// 幂等键回查必须先于状态校验：首次请求已提交但响应丢了的重试，
// 此时状态已是 friend_added，先校验状态就会把合法重试打成 ErrConflict。
func (s *MatchService) ForceAdd(ctx context.Context, userID, matchID int64, requestID string) (*MatchView, error) {
	var m *model.Match
	err := s.ledgerSvc.WithUserLock(ctx, userID, func() error {
		if requestID != "" {
			entry, err := s.ledgerSvc.FindByRequestID(ctx, userID, requestID)
			if err != nil {
				return err
			}
			if entry != nil {
				m, err = s.matchRepo.GetByID(ctx, entry.RefID)
				return err
			}
		}

		cur, err := s.getInvolved(ctx, userID, matchID)
		if err != nil {
			return err
		}
		m = cur

		// 只有"窗口拖过期"的匹配能花钱找回；主动放弃的 missed 是终态
		if !model.CanTransitionTo(m.Status, model.MatchStatusFriendAdded) {
			return ErrConflict
		}
		if !m.DeadlinePassed(time.Now()) {
			return ErrTooEarly
		}

		partner, err := s.userRepo.GetByID(ctx, m.PartnerID(userID))
		if err != nil {
			return err
		}
		if !partner.AllowForceAdd {
			return ErrForbidden
		}

		var reqID *string
		if requestID != "" {
			reqID = &requestID
		}
		return s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
			_, err := s.ledgerSvc.DebitTx(ctx, tx, userID, s.cfg.Business.ForceAddCostCoins,
				model.ReasonForceAdd, fmt.Sprintf("强制加好友「%s」", m.Tag), m.ID, reqID)
			if err != nil {
				return err
			}
			ok, err := s.matchRepo.UpdateStatusIf(ctx, tx, m.ID,
				model.MatchStatusMatched, model.MatchStatusFriendAdded)
			if err != nil {
				return err
			}
			if !ok {
				return ErrConflict
			}
			m.Status = model.MatchStatusFriendAdded
			return nil
		})
	})
	if err != nil {
		return nil, err
	}
	return s.buildView(m, userID, time.Now()), nil
}

// Haidilao 付费从同关键词池子里"捞"一个开了被捞开关的用户，无视区域。
// 先找到人再扣费：捞不到人一分钱不扣。
// 钱已经花了，匹配直接以 friend_added 落地，联系方式立即透出。
func (s *MatchService) Haidilao(ctx context.Context, userID int64, tag, requestID string) (*MatchView, error) {
	tagNorm := location.NormalizeTag(tag)
	if tagNorm == "" {
		return nil, ErrValidation
	}

	// 捞人也得先有自己的码在池子里，匹配永远是一对码
	ownCode, err := s.codeRepo.GetByUserAndTag(ctx, userID, tagNorm)
	if err != nil {
		return nil, err
	}
	if ownCode == nil {
		return nil, ErrForbidden
	}

	var m *model.Match
	replayed := false
	err = s.ledgerSvc.WithUserLock(ctx, userID, func() error {
		if requestID != "" {
			entry, err := s.ledgerSvc.FindByRequestID(ctx, userID, requestID)
			if err != nil {
				return err
			}
			if entry != nil {
				replayed = true
				m, err = s.matchRepo.GetByID(ctx, entry.RefID)
				return err
			}
		}

		tagLock := lock.NewTagLock(s.redisClient, tagNorm)
		if err := tagLock.Lock(ctx, 50*time.Millisecond, 20); err != nil {
			return err
		}
		defer tagLock.Unlock(ctx)

		candidate, err := s.pickHaidilaoCandidate(ctx, userID, tagNorm)
		if err != nil {
			return err
		}
		if candidate == nil {
			return ErrNoCandidates
		}

		actor, err := s.userRepo.GetByID(ctx, userID)
		if err != nil {
			return err
		}

		now := time.Now()
		loc := ownCode.SearchLocation()
		m = &model.Match{
			CodeAID:           ownCode.ID,
			CodeBID:           candidate.ID,
			UserAID:           userID,
			UserBID:           candidate.UserID,
			Tag:               ownCode.Tag,
			TagNorm:           tagNorm,
			MatchTier:         model.MatchTierHaidilao,
			MatchCountry:      loc.Country,
			MatchProvince:     loc.Province,
			MatchCity:         loc.City,
			MatchDistrict:     loc.District,
			Status:            model.MatchStatusFriendAdded,
			MatchedAt:         now,
			AddFriendDeadline: now,
		}

		var reqID *string
		if requestID != "" {
			reqID = &requestID
		}
		return s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
			if err := s.matchRepo.Create(ctx, tx, m); err != nil {
				return err
			}
			_, err := s.ledgerSvc.DebitTx(ctx, tx, userID, s.cfg.Business.HaidilaoCostCoins,
				model.ReasonHaidilao, fmt.Sprintf("海底捞「%s」", ownCode.Tag), m.ID, reqID)
			if err != nil {
				return err
			}
			if err := s.codeRepo.MarkMatched(ctx, tx, ownCode.ID); err != nil {
				return err
			}
			if err := s.codeRepo.MarkMatched(ctx, tx, candidate.ID); err != nil {
				return err
			}
			return s.notifySvc.MatchCreatedTx(ctx, tx, m, actor, &candidate.User)
		})
	})
	if err != nil {
		return nil, err
	}

	if !replayed {
		s.hotTagSvc.RecordMatch(ctx, tagNorm)
	}
	return s.Detail(ctx, userID, m.ID)
}

// pickHaidilaoCandidate 海底捞候选：同关键词、开了被捞开关、没和本人
// 在这个关键词下匹配过。区域和人群筛选全部无视，先到先捞。
func (s *MatchService) pickHaidilaoCandidate(ctx context.Context, userID int64, tagNorm string) (*model.CollisionCode, error) {
	statuses := []string{model.CodeStatusActive, model.CodeStatusMatched}
	candidates, err := s.codeRepo.Candidates(ctx, tagNorm, userID, statuses)
	if err != nil {
		return nil, err
	}

	for _, cand := range candidates {
		if !cand.User.AllowHaidilao || !cand.User.LocationVisible {
			continue
		}
		exists, err := s.matchRepo.UserPairExistsForTag(ctx, userID, cand.UserID, tagNorm)
		if err != nil {
			return nil, err
		}
		if exists {
			continue
		}
		return cand, nil
	}
	return nil, nil
}

// SendEmail 给匹配对象付费发一封信，正文转义后限长
func (s *MatchService) SendEmail(ctx context.Context, userID, matchID int64, content, requestID string) error {
	content = strings.TrimSpace(content)
	if content == "" || len([]rune(content)) > s.cfg.Business.EmailContentLimit {
		return ErrValidation
	}

	m, err := s.getInvolved(ctx, userID, matchID)
	if err != nil {
		return err
	}

	partner, err := s.userRepo.GetByID(ctx, m.PartnerID(userID))
	if err != nil {
		return err
	}
	if partner.Email == "" || !partner.EmailVerified || !partner.EmailVisible {
		return ErrForbidden
	}

	sender, err := s.userRepo.GetByID(ctx, userID)
	if err != nil {
		return err
	}

	return s.ledgerSvc.WithUserLock(ctx, userID, func() error {
		if requestID != "" {
			entry, err := s.ledgerSvc.FindByRequestID(ctx, userID, requestID)
			if err != nil {
				return err
			}
			if entry != nil {
				return nil
			}
		}

		var reqID *string
		if requestID != "" {
			reqID = &requestID
		}
		return s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
			_, err := s.ledgerSvc.DebitTx(ctx, tx, userID, s.cfg.Business.EmailCostCoins,
				model.ReasonSendEmail, fmt.Sprintf("给匹配对象发邮件「%s」", m.Tag), m.ID, reqID)
			if err != nil {
				return err
			}
			emailLog := &model.EmailLog{
				UserID:  partner.ID,
				MatchID: m.ID,
				ToEmail: partner.Email,
				Subject: fmt.Sprintf("%s 给你发来一条消息", sender.Nickname),
				Content: fmt.Sprintf("<p>%s</p>", html.EscapeString(content)),
				Type:    model.EmailTypeUserMessage,
				Status:  model.EmailStatusPending,
			}
			return s.emailLogRepo.Create(ctx, tx, emailLog)
		})
	})
}
