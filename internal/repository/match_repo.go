package repository

import (
	"context"
	"errors"

	"collisionsystem/internal/model"

	"gorm.io/gorm"
)

var ErrMatchNotFound = errors.New("匹配记录不存在")

type MatchRepository struct {
	db *gorm.DB
}

func NewMatchRepository(db *gorm.DB) *MatchRepository {
	return &MatchRepository{db: db}
}

func (r *MatchRepository) Create(ctx context.Context, tx *gorm.DB, m *model.Match) error {
	if tx == nil {
		tx = r.db
	}
	return tx.WithContext(ctx).Create(m).Error
}

func (r *MatchRepository) GetByID(ctx context.Context, id int64) (*model.Match, error) {
	var m model.Match
	err := r.db.WithContext(ctx).
		Preload("UserA").
		Preload("UserB").
		First(&m, id).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, ErrMatchNotFound
		}
		return nil, err
	}
	return &m, nil
}

func (r *MatchRepository) ListByUser(ctx context.Context, userID int64) ([]*model.Match, error) {
	var matches []*model.Match
	err := r.db.WithContext(ctx).
		Where("user_a_id = ? OR user_b_id = ?", userID, userID).
		Preload("UserA").
		Preload("UserB").
		Order("matched_at DESC").
		Find(&matches).Error
	return matches, err
}

// PairExists 两个码之间是否已有匹配（双向查）
func (r *MatchRepository) PairExists(ctx context.Context, codeAID, codeBID int64) (bool, error) {
	var count int64
	err := r.db.WithContext(ctx).
		Model(&model.Match{}).
		Where("(code_a_id = ? AND code_b_id = ?) OR (code_a_id = ? AND code_b_id = ?)",
			codeAID, codeBID, codeBID, codeAID).
		Count(&count).Error
	return count > 0, err
}

// UserPairExistsForTag 两个用户在某个关键词下是否已匹配过，海底捞排重用
func (r *MatchRepository) UserPairExistsForTag(ctx context.Context, userAID, userBID int64, tagNorm string) (bool, error) {
	var count int64
	err := r.db.WithContext(ctx).
		Model(&model.Match{}).
		Where("tag_norm = ? AND ((user_a_id = ? AND user_b_id = ?) OR (user_a_id = ? AND user_b_id = ?))",
			tagNorm, userAID, userBID, userBID, userAID).
		Count(&count).Error
	return count > 0, err
}

// UpdateStatusIf 条件状态迁移，RowsAffected=0 说明被并发抢先，调用方转 Conflict
func (r *MatchRepository) UpdateStatusIf(ctx context.Context, tx *gorm.DB, id int64, from, to string) (bool, error) {
	if tx == nil {
		tx = r.db
	}
	result := tx.WithContext(ctx).
		Model(&model.Match{}).
		Where("id = ? AND status = ?", id, from).
		Update("status", to)
	if result.Error != nil {
		return false, result.Error
	}
	return result.RowsAffected > 0, nil
}
