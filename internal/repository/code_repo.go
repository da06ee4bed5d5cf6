package repository

import (
	"context"
	"errors"

	"collisionsystem/internal/model"

	"gorm.io/gorm"
)

var ErrCodeNotFound = errors.New("碰撞码不存在")

type CodeRepository struct {
	db *gorm.DB
}

func NewCodeRepository(db *gorm.DB) *CodeRepository {
	return &CodeRepository{db: db}
}

func (r *CodeRepository) Create(ctx context.Context, tx *gorm.DB, code *model.CollisionCode) error {
	if tx == nil {
		tx = r.db
	}
	return tx.WithContext(ctx).Create(code).Error
}

func (r *CodeRepository) GetByID(ctx context.Context, id int64) (*model.CollisionCode, error) {
	var code model.CollisionCode
	err := r.db.WithContext(ctx).First(&code, id).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, ErrCodeNotFound
		}
		return nil, err
	}
	return &code, nil
}

// GetOwned 按主键 + 属主取码，别人的码一律按不存在处理
func (r *CodeRepository) GetOwned(ctx context.Context, id, userID int64) (*model.CollisionCode, error) {
	var code model.CollisionCode
	err := r.db.WithContext(ctx).
		Where("id = ? AND user_id = ?", id, userID).
		First(&code).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, ErrCodeNotFound
		}
		return nil, err
	}
	return &code, nil
}

// GetByUserAndTag 用户在某个归一化关键词下最早的未被拒的码，未命中返回 (nil, nil)
func (r *CodeRepository) GetByUserAndTag(ctx context.Context, userID int64, tagNorm string) (*model.CollisionCode, error) {
	var code model.CollisionCode
	err := r.db.WithContext(ctx).
		Where("user_id = ? AND tag_norm = ? AND status != ?", userID, tagNorm, model.CodeStatusRejected).
		Order("created_at ASC, id ASC").
		First(&code).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, nil
		}
		return nil, err
	}
	return &code, nil
}

// ListByBatchNo 批量提交重放时按幂等键找回整批
func (r *CodeRepository) ListByBatchNo(ctx context.Context, userID int64, batchNo string) ([]*model.CollisionCode, error) {
	var codes []*model.CollisionCode
	err := r.db.WithContext(ctx).
		Where("user_id = ? AND batch_no = ?", userID, batchNo).
		Order("id ASC").
		Find(&codes).Error
	return codes, err
}

func (r *CodeRepository) ListByUser(ctx context.Context, userID int64) ([]*model.CollisionCode, error) {
	var codes []*model.CollisionCode
	err := r.db.WithContext(ctx).
		Where("user_id = ?", userID).
		Order("created_at DESC").
		Find(&codes).Error
	return codes, err
}

// Candidates 匹配候选池：同一归一化关键词、非本人、状态在 statuses 内。
// 过期不在这里过滤——过期的码依然参与匹配。调用方负责人群筛选。
func (r *CodeRepository) Candidates(ctx context.Context, tagNorm string, excludeUserID int64, statuses []string) ([]*model.CollisionCode, error) {
	var codes []*model.CollisionCode
	err := r.db.WithContext(ctx).
		Where("tag_norm = ? AND user_id != ? AND status IN ?", tagNorm, excludeUserID, statuses).
		Preload("User").
		Order("created_at ASC, id ASC").
		Find(&codes).Error
	return codes, err
}

// ListMatchable 周期扫描用：全部可进池的码
func (r *CodeRepository) ListMatchable(ctx context.Context, statuses []string, limit int) ([]*model.CollisionCode, error) {
	var codes []*model.CollisionCode
	err := r.db.WithContext(ctx).
		Where("status IN ?", statuses).
		Order("created_at ASC, id ASC").
		Limit(limit).
		Find(&codes).Error
	return codes, err
}

// Search 关键词搜索他人的码（含过期），带属主信息
func (r *CodeRepository) Search(ctx context.Context, tagNorm string, excludeUserID int64, limit int) ([]*model.CollisionCode, error) {
	var codes []*model.CollisionCode
	err := r.db.WithContext(ctx).
		Where("tag_norm = ? AND user_id != ? AND status NOT IN ?", tagNorm, excludeUserID,
			[]string{model.CodeStatusRejected, model.CodeStatusPendingReview}).
		Preload("User").
		Order("created_at DESC").
		Limit(limit).
		Find(&codes).Error
	return codes, err
}

func (r *CodeRepository) Updates(ctx context.Context, tx *gorm.DB, id int64, updates map[string]interface{}) error {
	if tx == nil {
		tx = r.db
	}
	result := tx.WithContext(ctx).
		Model(&model.CollisionCode{}).
		Where("id = ?", id).
		Updates(updates)
	if result.Error != nil {
		return result.Error
	}
	if result.RowsAffected == 0 {
		return ErrCodeNotFound
	}
	return nil
}

// MarkMatched 建匹配时同事务更新双方的码
func (r *CodeRepository) MarkMatched(ctx context.Context, tx *gorm.DB, id int64) error {
	return tx.WithContext(ctx).
		Model(&model.CollisionCode{}).
		Where("id = ?", id).
		Updates(map[string]interface{}{
			"status":      model.CodeStatusMatched,
			"is_matched":  true,
			"match_count": gorm.Expr("match_count + 1"),
		}).Error
}

// SoftDelete 软删，属主校验在查询条件里
func (r *CodeRepository) SoftDelete(ctx context.Context, tx *gorm.DB, id, userID int64) error {
	if tx == nil {
		tx = r.db
	}
	result := tx.WithContext(ctx).
		Where("id = ? AND user_id = ?", id, userID).
		Delete(&model.CollisionCode{})
	if result.Error != nil {
		return result.Error
	}
	if result.RowsAffected == 0 {
		return ErrCodeNotFound
	}
	return nil
}
