package service

import (
	"context"
	"errors"
	"log"
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
// 匹配引擎
// ============================================================================
//
// 撮合规则：
//   1. 同一归一化关键词的码才可能相撞
//   2. 双方搜索区域按 国->省->市->区 自上而下比对，第一层不一致即停，
//      全不一致则不撞；命中的最深一层记为匹配层级
//   3. 双向人群筛选：A 的性别/年龄条件要套在 B 的主人身上，反之亦然
//   4. 关掉了"允许被搜索"的用户不进池子
//   5. 同一对码只撞一次
//   6. 候选中取创建最早的一个，每轮至多新建一条匹配
//
// 同一关键词的扫描+建匹配在 tag 维度分布式锁内串行执行。
// ============================================================================

type MatcherService struct {
	db          *gorm.DB
	redisClient *redis.Client
	cfg         *config.Config
	codeRepo    *repository.CodeRepository
	matchRepo   *repository.MatchRepository
	userRepo    *repository.UserRepository
	notifySvc   *NotifyService
	hotTagSvc   *HotTagService
}

func NewMatcherService(db *gorm.DB, redisClient *redis.Client, cfg *config.Config,
	codeRepo *repository.CodeRepository, matchRepo *repository.MatchRepository,
	userRepo *repository.UserRepository, notifySvc *NotifyService,
	hotTagSvc *HotTagService) *MatcherService {
	return &MatcherService{
		db:          db,
		redisClient: redisClient,
		cfg:         cfg,
		codeRepo:    codeRepo,
		matchRepo:   matchRepo,
		userRepo:    userRepo,
		notifySvc:   notifySvc,
		hotTagSvc:   hotTagSvc,
	}
}

// matchableStatuses 进池状态：开了多次匹配时已匹配的码继续参与
func (s *MatcherService) matchableStatuses() []string {
	statuses := []string{model.CodeStatusActive}
	if s.cfg.Business.AllowMultiMatch {
		statuses = append(statuses, model.CodeStatusMatched)
	}
	return statuses
}

// MatchForCode 为指定碰撞码撮合一次，无候选返回 ErrNoCandidates
func (s *MatcherService) MatchForCode(ctx context.Context, codeID int64) (*model.Match, error) {
	code, err := s.codeRepo.GetByID(ctx, codeID)
	if err != nil {
		if errors.Is(err, repository.ErrCodeNotFound) {
			return nil, ErrNotFound
		}
		return nil, err
	}
	if !code.Matchable(s.cfg.Business.AllowMultiMatch) {
		return nil, ErrNoCandidates
	}

	if blackhole, err := s.hotTagSvc.IsBlackhole(ctx, code.TagNorm); err != nil {
		return nil, err
	} else if blackhole {
		return nil, ErrNoCandidates
	}

	tagLock := lock.NewTagLock(s.redisClient, code.TagNorm)
	if err := tagLock.Lock(ctx, 50*time.Millisecond, 20); err != nil {
		return nil, err
	}
	defer tagLock.Unlock(ctx)

	// 锁内重读，状态可能已被并发匹配改掉
	code, err = s.codeRepo.GetByID(ctx, codeID)
	if err != nil {
		return nil, err
	}
	if !code.Matchable(s.cfg.Business.AllowMultiMatch) {
		return nil, ErrNoCandidates
	}

	owner, err := s.userRepo.GetByID(ctx, code.UserID)
	if err != nil {
		return nil, err
	}
	if !owner.LocationVisible {
		return nil, ErrNoCandidates
	}

	candidate, tier, err := s.pickCandidate(ctx, code, owner)
	if err != nil {
		return nil, err
	}
	if candidate == nil {
		return nil, ErrNoCandidates
	}

	match, err := s.createMatch(ctx, code, candidate, owner, &candidate.User, tier)
	if err != nil {
		return nil, err
	}

	s.hotTagSvc.RecordMatch(ctx, code.TagNorm)
	return match, nil
}

// pickCandidate 扫描候选池，返回第一个全部规则通过的候选及匹配层级。
// 候选按创建时间升序给出，先到先撞。
func (s *MatcherService) pickCandidate(ctx context.Context,
	code *model.CollisionCode, owner *model.User) (*model.CollisionCode, string, error) {
	candidates, err := s.codeRepo.Candidates(ctx, code.TagNorm, code.UserID, s.matchableStatuses())
	if err != nil {
		return nil, "", err
	}

	subjectLoc := code.SearchLocation().Normalize()
	for _, cand := range candidates {
		if !cand.User.LocationVisible {
			continue
		}

		tier := location.OverlapTier(subjectLoc, cand.SearchLocation().Normalize())
		if tier == location.TierNone {
			continue
		}

		// 双向人群筛选
		if !passesAudienceFilter(code, &cand.User) || !passesAudienceFilter(cand, owner) {
			continue
		}

		exists, err := s.matchRepo.PairExists(ctx, code.ID, cand.ID)
		if err != nil {
			return nil, "", err
		}
		if exists {
			continue
		}

		return cand, tier, nil
	}
	return nil, "", nil
}

// passesAudienceFilter 码上的人群条件是否放过目标用户，0 表示不限
func passesAudienceFilter(code *model.CollisionCode, target *model.User) bool {
	if code.Gender != 0 && code.Gender != target.Gender {
		return false
	}
	if code.AgeMin != 0 && target.Age < code.AgeMin {
		return false
	}
	if code.AgeMax != 0 && target.Age > code.AgeMax {
		return false
	}
	return true
}

// createMatch 事务建匹配：写匹配记录 + 更新双方码 + 落通知
func (s *MatcherService) createMatch(ctx context.Context,
	codeA, codeB *model.CollisionCode, userA, userB *model.User, tier string) (*model.Match, error) {
	now := time.Now()
	loc := codeA.SearchLocation()
	match := &model.Match{
		CodeAID:           codeA.ID,
		CodeBID:           codeB.ID,
		UserAID:           codeA.UserID,
		UserBID:           codeB.UserID,
		Tag:               codeA.Tag,
		TagNorm:           codeA.TagNorm,
		MatchTier:         tier,
		MatchCountry:      loc.Country,
		MatchProvince:     loc.Province,
		MatchCity:         loc.City,
		MatchDistrict:     loc.District,
		Status:            model.MatchStatusMatched,
		MatchedAt:         now,
		AddFriendDeadline: now.Add(s.cfg.Business.MatchWindow()),
	}

	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := s.matchRepo.Create(ctx, tx, match); err != nil {
			return err
		}
		if err := s.codeRepo.MarkMatched(ctx, tx, codeA.ID); err != nil {
			return err
		}
		if err := s.codeRepo.MarkMatched(ctx, tx, codeB.ID); err != nil {
			return err
		}
		return s.notifySvc.MatchCreatedTx(ctx, tx, match, userA, userB)
	})
	if err != nil {
		return nil, err
	}
	return match, nil
}

// Sweep 周期撮合：兜住提交时刻没碰上、后来才有候选的码
func (s *MatcherService) Sweep(ctx context.Context) (int, error) {
	codes, err := s.codeRepo.ListMatchable(ctx, s.matchableStatuses(), 500)
	if err != nil {
		return 0, err
	}

	matched := 0
	for _, code := range codes {
		_, err := s.MatchForCode(ctx, code.ID)
		if err != nil {
			if errors.Is(err, ErrNoCandidates) {
				continue
			}
			log.Printf("[Matcher] 扫描撮合失败 codeID=%d err=%v", code.ID, err)
			continue
		}
		matched++
	}
	return matched, nil
}
