package service

import (
	"context"
	"errors"
	"time"

	"github.com/go-redis/redis/v8"
	"gorm.io/gorm"

	"collisionsystem/internal/infrastructure/lock"
	"collisionsystem/internal/model"
	"collisionsystem/internal/repository"
	"collisionsystem/pkg/idgen"
)

// ============================================================================
// 账本服务
// ============================================================================
//
// 余额变更的唯一入口。任何付费动作都遵循同一套路：
//
//	用户维度分布式锁 -> 幂等键检查 -> 事务（行锁读余额 + 条件扣减 + 追加流水）
//
// 账本只追加不修改：user.coins 恒等于该用户全部 Delta 之和。
// ============================================================================

type LedgerService struct {
	db          *gorm.DB
	redisClient *redis.Client
	userRepo    *repository.UserRepository
	ledgerRepo  *repository.LedgerRepository
}

func NewLedgerService(db *gorm.DB, redisClient *redis.Client,
	userRepo *repository.UserRepository, ledgerRepo *repository.LedgerRepository) *LedgerService {
	return &LedgerService{
		db:          db,
		redisClient: redisClient,
		userRepo:    userRepo,
		ledgerRepo:  ledgerRepo,
	}
}

// Balance 查询余额
func (s *LedgerService) Balance(ctx context.Context, userID int64) (int64, error) {
	user, err := s.userRepo.GetByID(ctx, userID)
	if err != nil {
		if errors.Is(err, repository.ErrUserNotFound) {
			return 0, ErrNotFound
		}
		return 0, err
	}
	return user.Coins, nil
}

// Records 分页查询流水，kind 见 LedgerRepository.ListByUser
func (s *LedgerService) Records(ctx context.Context, userID int64, kind string, page, pageSize int) ([]*model.LedgerEntry, int64, error) {
	if page < 1 {
		page = 1
	}
	if pageSize < 1 || pageSize > 100 {
		pageSize = 20
	}
	return s.ledgerRepo.ListByUser(ctx, userID, kind, page, pageSize)
}

// FindByRequestID 幂等键回查，复合操作重放时用 RefID 找回首次创建的对象。
// 只查本人名下的流水：幂等键不跨用户，别人的键重放不到别人的结果。
func (s *LedgerService) FindByRequestID(ctx context.Context, userID int64, requestID string) (*model.LedgerEntry, error) {
	if requestID == "" {
		return nil, nil
	}
	return s.ledgerRepo.GetByRequestID(ctx, userID, requestID)
}

// WithUserLock 在用户维度锁内执行 fn，锁不可用时直接报错而不是裸跑
func (s *LedgerService) WithUserLock(ctx context.Context, userID int64, fn func() error) error {
	l := lock.NewLedgerLock(s.redisClient, userID, "")
	if err := l.Lock(ctx, 50*time.Millisecond, 20); err != nil {
		return err
	}
	defer l.Unlock(ctx)
	return fn()
}

// DebitTx 事务内扣费并落账。余额不足时整个事务应由调用方回滚。
// requestID 非空时写入流水的幂等键，数据库唯一索引兜底并发重放。
func (s *LedgerService) DebitTx(ctx context.Context, tx *gorm.DB, userID, amount int64,
	reason, remark string, refID int64, requestID *string) (*model.LedgerEntry, error) {
	if amount <= 0 {
		return nil, ErrValidation
	}

	user, err := s.userRepo.GetForUpdate(ctx, tx, userID)
	if err != nil {
		if errors.Is(err, repository.ErrUserNotFound) {
			return nil, ErrNotFound
		}
		return nil, err
	}

	if err := s.userRepo.Deduct(ctx, tx, userID, amount); err != nil {
		if errors.Is(err, repository.ErrBalanceNotEnough) {
			return nil, ErrInsufficientBalance
		}
		return nil, err
	}

	entry := &model.LedgerEntry{
		EntryNo:       idgen.GenerateEntryNo(),
		UserID:        userID,
		Delta:         -amount,
		Reason:        reason,
		Remark:        remark,
		RefID:         refID,
		RequestID:     requestID,
		BalanceBefore: user.Coins,
		BalanceAfter:  user.Coins - amount,
	}
	if err := s.ledgerRepo.Create(ctx, tx, entry); err != nil {
		return nil, err
	}
	return entry, nil
}

// CreditTx 事务内入账并落账
func (s *LedgerService) CreditTx(ctx context.Context, tx *gorm.DB, userID, amount int64,
	reason, remark string, refID int64, requestID *string) (*model.LedgerEntry, error) {
	if amount <= 0 {
		return nil, ErrValidation
	}

	user, err := s.userRepo.GetForUpdate(ctx, tx, userID)
	if err != nil {
		if errors.Is(err, repository.ErrUserNotFound) {
			return nil, ErrNotFound
		}
		return nil, err
	}

	if err := s.userRepo.Increase(ctx, tx, userID, amount); err != nil {
		return nil, err
	}

	entry := &model.LedgerEntry{
		EntryNo:       idgen.GenerateEntryNo(),
		UserID:        userID,
		Delta:         amount,
		Reason:        reason,
		Remark:        remark,
		RefID:         refID,
		RequestID:     requestID,
		BalanceBefore: user.Coins,
		BalanceAfter:  user.Coins + amount,
	}
	if err := s.ledgerRepo.Create(ctx, tx, entry); err != nil {
		return nil, err
	}
	return entry, nil
}

// Recharge 充值入账，orderNo 作为幂等键：支付回调重放不会重复加币
func (s *LedgerService) Recharge(ctx context.Context, userID, amount int64, orderNo string) (*model.LedgerEntry, error) {
	if amount <= 0 || orderNo == "" {
		return nil, ErrValidation
	}

	var entry *model.LedgerEntry
	err := s.WithUserLock(ctx, userID, func() error {
		existing, err := s.ledgerRepo.GetByRequestID(ctx, userID, orderNo)
		if err != nil {
			return err
		}
		if existing != nil {
			entry = existing
			return nil
		}

		return s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
			entry, err = s.CreditTx(ctx, tx, userID, amount,
				model.ReasonRecharge, "充值到账", 0, &orderNo)
			if err != nil {
				return err
			}
			return tx.Model(&model.User{}).
				Where("id = ?", userID).
				Update("total_recharge", gorm.Expr("total_recharge + ?", amount)).Error
		})
	})
	if err != nil {
		return nil, err
	}
	return entry, nil
}

// Verify 对账：流水之和必须等于当前余额
func (s *LedgerService) Verify(ctx context.Context, userID int64) (bool, error) {
	user, err := s.userRepo.GetByID(ctx, userID)
	if err != nil {
		return false, err
	}
	sum, err := s.ledgerRepo.SumDeltas(ctx, userID)
	if err != nil {
		return false, err
	}
	return sum == user.Coins, nil
}
