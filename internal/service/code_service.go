package service

import (
	"context"
	"errors"
	"fmt"
	"log"
	"time"

	"gorm.io/gorm"

	"collisionsystem/internal/config"
	"collisionsystem/internal/location"
	"collisionsystem/internal/model"
	"collisionsystem/internal/repository"
)

// ============================================================================
// 碰撞码服务
// ============================================================================
//
// 发布/续期/重新提交/删除都是付费动作，统一走：
//
//	用户锁 -> 幂等键重放检查 -> 事务（建码/改码 + 账本扣费）
//
// 扣费与码的状态变更同一事务：余额不足时整单回滚，不会出现
// 扣了钱没建码、或建了码没扣钱。
// ============================================================================

// SubmitCodeRequest 发布碰撞码入参
type SubmitCodeRequest struct {
	Tag       string            `json:"tag" binding:"required"`
	Location  location.Snapshot `json:"location"` // 空则取本人地址
	Gender    int               `json:"gender"`   // 对方性别要求，0 不限
	AgeMin    int               `json:"age_min"`
	AgeMax    int               `json:"age_max"`
	RequestID string            `json:"request_id"`
}

// SearchResult 关键词搜索结果，联系方式打码
type SearchResult struct {
	CodeID       int64             `json:"code_id"`
	Tag          string            `json:"tag"`
	Status       string            `json:"status"`
	Location     location.Snapshot `json:"location"`
	Nickname     string            `json:"nickname"`
	Avatar       string            `json:"avatar"`
	Gender       int               `json:"gender"`
	MaskedWechat string            `json:"wechat_no"`
	CreatedAt    time.Time         `json:"created_at"`
}

type CodeService struct {
	db         *gorm.DB
	cfg        *config.Config
	userRepo   *repository.UserRepository
	codeRepo   *repository.CodeRepository
	ledgerSvc  *LedgerService
	hotTagSvc  *HotTagService
	matcherSvc *MatcherService
}

func NewCodeService(db *gorm.DB, cfg *config.Config,
	userRepo *repository.UserRepository, codeRepo *repository.CodeRepository,
	ledgerSvc *LedgerService, hotTagSvc *HotTagService,
	matcherSvc *MatcherService) *CodeService {
	return &CodeService{
		db:         db,
		cfg:        cfg,
		userRepo:   userRepo,
		codeRepo:   codeRepo,
		ledgerSvc:  ledgerSvc,
		hotTagSvc:  hotTagSvc,
		matcherSvc: matcherSvc,
	}
}

// initialStatus 开审核时新码先进待审核，否则直接激活
func (s *CodeService) initialStatus() string {
	if s.cfg.Business.EnableAudit {
		return model.CodeStatusPendingReview
	}
	return model.CodeStatusActive
}

func (s *CodeService) validateSubmit(req *SubmitCodeRequest) (string, error) {
	tagNorm := location.NormalizeTag(req.Tag)
	if tagNorm == "" {
		return "", ErrValidation
	}
	if req.Gender < 0 || req.Gender > 2 {
		return "", ErrValidation
	}
	if req.AgeMin < 0 || req.AgeMax < 0 {
		return "", ErrValidation
	}
	if req.AgeMin > 0 && req.AgeMax > 0 && req.AgeMin > req.AgeMax {
		return "", ErrValidation
	}
	return tagNorm, nil
}

// Submit 发布碰撞码并立即尝试撮合一次
func (s *CodeService) Submit(ctx context.Context, userID int64, req *SubmitCodeRequest) (*model.CollisionCode, error) {
	tagNorm, err := s.validateSubmit(req)
	if err != nil {
		return nil, err
	}

	user, err := s.userRepo.GetByID(ctx, userID)
	if err != nil {
		if errors.Is(err, repository.ErrUserNotFound) {
			return nil, ErrNotFound
		}
		return nil, err
	}

	loc := req.Location.Normalize()
	if loc.IsEmpty() {
		loc = user.Location().Normalize()
	}

	var code *model.CollisionCode
	replayed := false
	err = s.ledgerSvc.WithUserLock(ctx, userID, func() error {
		// 重放：幂等键已有流水，直接找回首次创建的码
		if req.RequestID != "" {
			entry, err := s.ledgerSvc.FindByRequestID(ctx, userID, req.RequestID)
			if err != nil {
				return err
			}
			if entry != nil {
				replayed = true
				code, err = s.codeRepo.GetByID(ctx, entry.RefID)
				return err
			}
		}

		now := time.Now()
		code = &model.CollisionCode{
			UserID:    userID,
			Tag:       req.Tag,
			TagNorm:   tagNorm,
			Country:   loc.Country,
			Province:  loc.Province,
			City:      loc.City,
			District:  loc.District,
			Gender:    req.Gender,
			AgeMin:    req.AgeMin,
			AgeMax:    req.AgeMax,
			Status:    s.initialStatus(),
			ExpiresAt: now.Add(s.cfg.Business.Validity()),
			CostCoins: s.cfg.Business.SubmitCostCoins,
		}

		var requestID *string
		if req.RequestID != "" {
			requestID = &req.RequestID
		}
		return s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
			if err := s.codeRepo.Create(ctx, tx, code); err != nil {
				return err
			}
			_, err := s.ledgerSvc.DebitTx(ctx, tx, userID, s.cfg.Business.SubmitCostCoins,
				model.ReasonCollisionSubmit, fmt.Sprintf("发布碰撞码「%s」", req.Tag),
				code.ID, requestID)
			return err
		})
	})
	if err != nil {
		return nil, err
	}

	if !replayed {
		s.hotTagSvc.RecordSubmit(ctx, tagNorm)
		s.tryMatch(ctx, code)
	}
	return code, nil
}

// BatchSubmit 批量发布：同一区域快照下多条关键词，一次扣费
func (s *CodeService) BatchSubmit(ctx context.Context, userID int64, tags []string,
	loc location.Snapshot, requestID string) ([]*model.CollisionCode, error) {
	if len(tags) == 0 || len(tags) > s.cfg.Business.BatchSubmitLimit {
		return nil, ErrValidation
	}

	tagNorms := make([]string, 0, len(tags))
	seen := make(map[string]bool, len(tags))
	for _, tag := range tags {
		tagNorm := location.NormalizeTag(tag)
		if tagNorm == "" || seen[tagNorm] {
			return nil, ErrValidation
		}
		seen[tagNorm] = true
		tagNorms = append(tagNorms, tagNorm)
	}

	user, err := s.userRepo.GetByID(ctx, userID)
	if err != nil {
		if errors.Is(err, repository.ErrUserNotFound) {
			return nil, ErrNotFound
		}
		return nil, err
	}

	locNorm := loc.Normalize()
	if locNorm.IsEmpty() {
		locNorm = user.Location().Normalize()
	}

	total := s.cfg.Business.SubmitCostCoins * int64(len(tags))

	var codes []*model.CollisionCode
	replayed := false
	err = s.ledgerSvc.WithUserLock(ctx, userID, func() error {
		if requestID != "" {
			entry, err := s.ledgerSvc.FindByRequestID(ctx, userID, requestID)
			if err != nil {
				return err
			}
			if entry != nil {
				replayed = true
				codes, err = s.codeRepo.ListByBatchNo(ctx, userID, requestID)
				return err
			}
		}

		now := time.Now()
		codes = make([]*model.CollisionCode, 0, len(tags))
		for i, tag := range tags {
			codes = append(codes, &model.CollisionCode{
				UserID:    userID,
				Tag:       tag,
				TagNorm:   tagNorms[i],
				BatchNo:   requestID,
				Country:   locNorm.Country,
				Province:  locNorm.Province,
				City:      locNorm.City,
				District:  locNorm.District,
				Status:    s.initialStatus(),
				ExpiresAt: now.Add(s.cfg.Business.Validity()),
				CostCoins: s.cfg.Business.SubmitCostCoins,
			})
		}

		var reqID *string
		if requestID != "" {
			reqID = &requestID
		}
		return s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
			for _, code := range codes {
				if err := s.codeRepo.Create(ctx, tx, code); err != nil {
					return err
				}
			}
			_, err := s.ledgerSvc.DebitTx(ctx, tx, userID, total,
				model.ReasonCollisionSubmit, fmt.Sprintf("批量发布%d条碰撞码", len(tags)),
				codes[0].ID, reqID)
			return err
		})
	})
	if err != nil {
		return nil, err
	}

	if !replayed {
		for _, code := range codes {
			s.hotTagSvc.RecordSubmit(ctx, code.TagNorm)
			s.tryMatch(ctx, code)
		}
	}
	return codes, nil
}

// Renew 续期：有效期从 max(当前时间, 原到期时间) 起向后延，按天计费。
// 已过期的码续期从现在起算，没过期的在原到期时间上累加。
func (s *CodeService) Renew(ctx context.Context, userID, codeID int64, days int, requestID string) (*model.CollisionCode, error) {
	if days < 1 || days > 365 {
		return nil, ErrValidation
	}

	code, err := s.codeRepo.GetOwned(ctx, codeID, userID)
	if err != nil {
		if errors.Is(err, repository.ErrCodeNotFound) {
			return nil, ErrNotFound
		}
		return nil, err
	}
	switch code.Status {
	case model.CodeStatusActive, model.CodeStatusMatched:
	default:
		return nil, ErrForbidden
	}

	cost := s.cfg.Business.RenewCostCoins * int64(days)

	err = s.ledgerSvc.WithUserLock(ctx, userID, func() error {
		if requestID != "" {
			entry, err := s.ledgerSvc.FindByRequestID(ctx, userID, requestID)
			if err != nil {
				return err
			}
			if entry != nil {
				code, err = s.codeRepo.GetByID(ctx, entry.RefID)
				return err
			}
		}

		now := time.Now()
		base := code.ExpiresAt
		if base.Before(now) {
			base = now
		}
		newExpiry := base.Add(time.Duration(days) * 24 * time.Hour)

		var reqID *string
		if requestID != "" {
			reqID = &requestID
		}
		return s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
			_, err := s.ledgerSvc.DebitTx(ctx, tx, userID, cost,
				model.ReasonRenewCollision, fmt.Sprintf("碰撞码「%s」续期%d天", code.Tag, days),
				code.ID, reqID)
			if err != nil {
				return err
			}
			if err := s.codeRepo.Updates(ctx, tx, code.ID, map[string]interface{}{
				"expires_at": newExpiry,
			}); err != nil {
				return err
			}
			code.ExpiresAt = newExpiry
			return nil
		})
	})
	if err != nil {
		return nil, err
	}
	return code, nil
}

// Resubmit 被拒的码修改后重新提交，按发布价再收一次费
func (s *CodeService) Resubmit(ctx context.Context, userID, codeID int64, requestID string) (*model.CollisionCode, error) {
	code, err := s.codeRepo.GetOwned(ctx, codeID, userID)
	if err != nil {
		if errors.Is(err, repository.ErrCodeNotFound) {
			return nil, ErrNotFound
		}
		return nil, err
	}
	if code.Status != model.CodeStatusRejected {
		return nil, ErrForbidden
	}

	replayed := false
	err = s.ledgerSvc.WithUserLock(ctx, userID, func() error {
		if requestID != "" {
			entry, err := s.ledgerSvc.FindByRequestID(ctx, userID, requestID)
			if err != nil {
				return err
			}
			if entry != nil {
				replayed = true
				code, err = s.codeRepo.GetByID(ctx, entry.RefID)
				return err
			}
		}

		newStatus := s.initialStatus()
		newExpiry := time.Now().Add(s.cfg.Business.Validity())

		var reqID *string
		if requestID != "" {
			reqID = &requestID
		}
		return s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
			_, err := s.ledgerSvc.DebitTx(ctx, tx, userID, s.cfg.Business.SubmitCostCoins,
				model.ReasonCollisionSubmit, fmt.Sprintf("重新提交碰撞码「%s」", code.Tag),
				code.ID, reqID)
			if err != nil {
				return err
			}
			if err := s.codeRepo.Updates(ctx, tx, code.ID, map[string]interface{}{
				"status":        newStatus,
				"reject_reason": "",
				"expires_at":    newExpiry,
			}); err != nil {
				return err
			}
			code.Status = newStatus
			code.RejectReason = ""
			code.ExpiresAt = newExpiry
			return nil
		})
	})
	if err != nil {
		return nil, err
	}

	if !replayed {
		s.hotTagSvc.RecordSubmit(ctx, code.TagNorm)
		s.tryMatch(ctx, code)
	}
	return code, nil
}

// Delete 删除碰撞码。当天删且尚未匹配的全额退费，隔天删不退。
func (s *CodeService) Delete(ctx context.Context, userID, codeID int64) error {
	code, err := s.codeRepo.GetOwned(ctx, codeID, userID)
	if err != nil {
		if errors.Is(err, repository.ErrCodeNotFound) {
			return ErrNotFound
		}
		return err
	}

	now := time.Now()
	refundable := sameDay(code.CreatedAt, now) && code.CostCoins > 0 &&
		(code.Status == model.CodeStatusActive || code.Status == model.CodeStatusPendingReview)

	return s.ledgerSvc.WithUserLock(ctx, userID, func() error {
		return s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
			if err := s.codeRepo.SoftDelete(ctx, tx, codeID, userID); err != nil {
				if errors.Is(err, repository.ErrCodeNotFound) {
					return ErrNotFound
				}
				return err
			}
			if refundable {
				_, err := s.ledgerSvc.CreditTx(ctx, tx, userID, code.CostCoins,
					model.ReasonCollisionRefund, fmt.Sprintf("删除碰撞码「%s」退费", code.Tag),
					code.ID, nil)
				return err
			}
			return nil
		})
	})
}

func (s *CodeService) ListMine(ctx context.Context, userID int64) ([]*model.CollisionCode, error) {
	return s.codeRepo.ListByUser(ctx, userID)
}

func (s *CodeService) GetMine(ctx context.Context, userID, codeID int64) (*model.CollisionCode, error) {
	code, err := s.codeRepo.GetOwned(ctx, codeID, userID)
	if err != nil {
		if errors.Is(err, repository.ErrCodeNotFound) {
			return nil, ErrNotFound
		}
		return nil, err
	}
	return code, nil
}

// Search 按关键词搜索他人的碰撞码，联系方式打码、不透出精确筛选条件
func (s *CodeService) Search(ctx context.Context, userID int64, tag string) ([]*SearchResult, error) {
	tagNorm := location.NormalizeTag(tag)
	if tagNorm == "" {
		return nil, ErrValidation
	}

	if blackhole, err := s.hotTagSvc.IsBlackhole(ctx, tagNorm); err != nil {
		return nil, err
	} else if blackhole {
		return []*SearchResult{}, nil
	}

	codes, err := s.codeRepo.Search(ctx, tagNorm, userID, s.cfg.Business.SearchResultLimit)
	if err != nil {
		return nil, err
	}

	now := time.Now()
	results := make([]*SearchResult, 0, len(codes))
	for _, code := range codes {
		if !code.User.LocationVisible {
			continue
		}
		results = append(results, &SearchResult{
			CodeID:       code.ID,
			Tag:          code.Tag,
			Status:       code.DisplayStatus(now),
			Location:     code.SearchLocation(),
			Nickname:     code.User.Nickname,
			Avatar:       code.User.Avatar,
			Gender:       code.User.Gender,
			MaskedWechat: maskWechat(code.User.WechatNo),
			CreatedAt:    code.CreatedAt,
		})
	}
	return results, nil
}

// tryMatch 提交后立即撮合一次，失败只打日志不影响提交结果
func (s *CodeService) tryMatch(ctx context.Context, code *model.CollisionCode) {
	if code.Status != model.CodeStatusActive {
		return
	}
	if _, err := s.matcherSvc.MatchForCode(ctx, code.ID); err != nil &&
		!errors.Is(err, ErrNoCandidates) {
		log.Printf("[Code] 提交后撮合失败 codeID=%d err=%v", code.ID, err)
	}
}

func sameDay(a, b time.Time) bool {
	ay, am, ad := a.Date()
	by, bm, bd := b.Date()
	return ay == by && am == bm && ad == bd
}

// maskWechat 微信号打码：保留首尾各2位，太短的整个隐去
func maskWechat(wechat string) string {
	runes := []rune(wechat)
	if len(runes) == 0 {
		return ""
	}
	if len(runes) <= 4 {
		return "***"
	}
	return string(runes[:2]) + "***" + string(runes[len(runes)-2:])
}
