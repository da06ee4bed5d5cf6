package repository

import (
	"context"
	"errors"
	"time"

	"collisionsystem/internal/model"

	"gorm.io/gorm"
)

type HotTagRepository struct {
	db *gorm.DB
}

func NewHotTagRepository(db *gorm.DB) *HotTagRepository {
	return &HotTagRepository{db: db}
}

// GetByKeyword 未命中返回 (nil, nil)
func (r *HotTagRepository) GetByKeyword(ctx context.Context, keyword string) (*model.HotTag, error) {
	var tag model.HotTag
	err := r.db.WithContext(ctx).Where("keyword = ?", keyword).First(&tag).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, nil
		}
		return nil, err
	}
	return &tag, nil
}

// IncrementSubmit 提交计数+1，不存在则新建（新词默认 hide，由运营放出）
func (r *HotTagRepository) IncrementSubmit(ctx context.Context, keyword string) error {
	now := time.Now()
	tag, err := r.GetByKeyword(ctx, keyword)
	if err != nil {
		return err
	}
	if tag == nil {
		return r.db.WithContext(ctx).Create(&model.HotTag{
			Keyword:      keyword,
			Status:       model.HotTagStatusHide,
			SubmitCount:  1,
			LastSubmitAt: &now,
		}).Error
	}
	return r.db.WithContext(ctx).
		Model(tag).
		Updates(map[string]interface{}{
			"submit_count":   gorm.Expr("submit_count + 1"),
			"last_submit_at": now,
		}).Error
}

// IncrementMatch 匹配计数+1，只统计已放出的词
func (r *HotTagRepository) IncrementMatch(ctx context.Context, keyword string) error {
	return r.db.WithContext(ctx).
		Model(&model.HotTag{}).
		Where("keyword = ? AND status = ?", keyword, model.HotTagStatusShow).
		Update("match_count", gorm.Expr("match_count + 1")).Error
}

func (r *HotTagRepository) TopVisible(ctx context.Context, limit int) ([]*model.HotTag, error) {
	var tags []*model.HotTag
	err := r.db.WithContext(ctx).
		Where("status = ?", model.HotTagStatusShow).
		Order("submit_count DESC, created_at DESC").
		Limit(limit).
		Find(&tags).Error
	return tags, err
}
