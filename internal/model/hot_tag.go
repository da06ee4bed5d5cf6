package model

import (
	"time"
)

const (
	HotTagStatusShow      = "show"
	HotTagStatusHide      = "hide"
	HotTagStatusBlackhole = "blackhole" // 黑洞词：可提交但永不匹配、不展示
)

// HotTag 热门关键词统计
type HotTag struct {
	ID           int64      `gorm:"primaryKey;autoIncrement" json:"id"`
	Keyword      string     `gorm:"size:100;uniqueIndex;not null" json:"keyword"`
	Status       string     `gorm:"size:20;index;not null;default:hide" json:"status"`
	SubmitCount  int        `gorm:"not null;default:0" json:"submit_count"`
	MatchCount   int        `gorm:"not null;default:0" json:"match_count"`
	LastSubmitAt *time.Time `json:"last_submit_at"`
	CreatedAt    time.Time  `gorm:"autoCreateTime" json:"created_at"`
	UpdatedAt    time.Time  `gorm:"autoUpdateTime" json:"updated_at"`
}

func (HotTag) TableName() string {
	return "hot_tag"
}
