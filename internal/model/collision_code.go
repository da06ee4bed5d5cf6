package model

import (
	"time"

	"gorm.io/gorm"

	"collisionsystem/internal/location"
)

// 碰撞码状态机：
//
//	pending_review -> active -> matched
//	pending_review -> rejected -> (付费重新提交) pending_review/active
//
// expired 不落库：过期是 (created_at, validity) 的纯函数，读取时懒计算，
// 过期的码依然参与匹配（产品规则：过期但仍可碰撞）。
const (
	CodeStatusPendingReview = "pending_review"
	CodeStatusActive        = "active"
	CodeStatusMatched       = "matched"
	CodeStatusRejected      = "rejected"
	CodeStatusExpired       = "expired" // 仅用于展示
)

// CollisionCode 碰撞码表
type CollisionCode struct {
	ID     int64 `gorm:"primaryKey;autoIncrement" json:"id"`
	UserID int64 `gorm:"index;not null" json:"user_id"`
	User   User  `gorm:"foreignKey:UserID" json:"user,omitempty"`

	Tag     string `gorm:"size:100;not null" json:"tag"`
	TagNorm string `gorm:"size:100;index;not null" json:"-"` // 归一化关键词，匹配与查重以此为准
	BatchNo string `gorm:"size:64;index" json:"-"`           // 批量提交的幂等键，重放时按它找回整批

	// 搜索区域快照（可比本人地址更窄）
	Country  string `gorm:"size:50;index" json:"country"`
	Province string `gorm:"size:50;index" json:"province"`
	City     string `gorm:"size:50;index" json:"city"`
	District string `gorm:"size:50;index" json:"district"`

	// 对对方的人群筛选，0 表示不限
	Gender int `gorm:"default:0" json:"gender"`
	AgeMin int `gorm:"default:0" json:"age_min"`
	AgeMax int `gorm:"default:0" json:"age_max"`

	Status       string    `gorm:"size:20;index;not null;default:active" json:"status"`
	RejectReason string    `gorm:"size:200" json:"reject_reason,omitempty"`
	ExpiresAt    time.Time `gorm:"index;not null" json:"expires_at"`
	CostCoins    int64     `gorm:"not null;default:0" json:"cost_coins"`

	MatchCount int  `gorm:"not null;default:0" json:"match_count"`
	IsMatched  bool `gorm:"not null;default:false" json:"is_matched"`

	CreatedAt time.Time      `gorm:"autoCreateTime;index" json:"created_at"`
	UpdatedAt time.Time      `gorm:"autoUpdateTime" json:"updated_at"`
	DeletedAt gorm.DeletedAt `gorm:"index" json:"-"`
}

func (CollisionCode) TableName() string {
	return "collision_code"
}

// SearchLocation 搜索区域快照
func (c *CollisionCode) SearchLocation() location.Snapshot {
	return location.Snapshot{
		Country:  c.Country,
		Province: c.Province,
		City:     c.City,
		District: c.District,
	}
}

// IsExpired 懒计算过期，不修改存储状态
func (c *CollisionCode) IsExpired(now time.Time) bool {
	return now.After(c.ExpiresAt)
}

// DisplayStatus 展示状态：过期优先于 active/matched 显示
func (c *CollisionCode) DisplayStatus(now time.Time) string {
	switch c.Status {
	case CodeStatusPendingReview, CodeStatusRejected:
		return c.Status
	}
	if c.IsExpired(now) {
		return CodeStatusExpired
	}
	return c.Status
}

// Matchable 是否参与匹配：待审核、被拒的码不进池子，过期不影响
func (c *CollisionCode) Matchable(allowMultiMatch bool) bool {
	switch c.Status {
	case CodeStatusActive:
		return true
	case CodeStatusMatched:
		return allowMultiMatch
	}
	return false
}
