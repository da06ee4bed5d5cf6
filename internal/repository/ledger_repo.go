package repository

import (
	"context"

	"collisionsystem/internal/model"

	"gorm.io/gorm"
)

type LedgerRepository struct {
	db *gorm.DB
}

func NewLedgerRepository(db *gorm.DB) *LedgerRepository {
	return &LedgerRepository{db: db}
}

func (r *LedgerRepository) Create(ctx context.Context, tx *gorm.DB, entry *model.LedgerEntry) error {
	if tx == nil {
		tx = r.db
	}
	return tx.WithContext(ctx).Create(entry).Error
}

// GetByRequestID 幂等键查找，限定本人名下，未命中返回 (nil, nil)
func (r *LedgerRepository) GetByRequestID(ctx context.Context, userID int64, requestID string) (*model.LedgerEntry, error) {
	var entry model.LedgerEntry
	err := r.db.WithContext(ctx).
		Where("user_id = ? AND request_id = ?", userID, requestID).
		First(&entry).Error
	if err != nil {
		if err == gorm.ErrRecordNotFound {
			return nil, nil
		}
		return nil, err
	}
	return &entry, nil
}

// ListByUser 分页拉取账本，kind 过滤：
//
//	"consume"  只看扣费（delta < 0）
//	"recharge" 只看充值入账
//	其它       全部
func (r *LedgerRepository) ListByUser(ctx context.Context, userID int64, kind string, page, pageSize int) ([]*model.LedgerEntry, int64, error) {
	var entries []*model.LedgerEntry
	var total int64

	query := r.db.WithContext(ctx).Model(&model.LedgerEntry{}).Where("user_id = ?", userID)
	switch kind {
	case "consume":
		query = query.Where("delta < 0")
	case "recharge":
		query = query.Where("reason = ?", model.ReasonRecharge)
	}

	if err := query.Count(&total).Error; err != nil {
		return nil, 0, err
	}

	err := query.
		Order("created_at DESC, id DESC").
		Offset((page - 1) * pageSize).
		Limit(pageSize).
		Find(&entries).Error

	return entries, total, err
}

// SumDeltas 用户全部流水之和，对账校验用：必须恒等于 user.coins
func (r *LedgerRepository) SumDeltas(ctx context.Context, userID int64) (int64, error) {
	var sum int64
	err := r.db.WithContext(ctx).
		Model(&model.LedgerEntry{}).
		Where("user_id = ?", userID).
		Select("COALESCE(SUM(delta), 0)").
		Scan(&sum).Error
	return sum, err
}
