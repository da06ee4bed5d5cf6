package model

import (
	"time"
)

const (
	MatchStatusMatched     = "matched"
	MatchStatusFriendAdded = "friend_added"
	MatchStatusMissed      = "missed"
)

// 海底捞产生的匹配没有常规层级，单独标记
const MatchTierHaidilao = "haidilao"

var validMatchTransitions = map[string][]string{
	MatchStatusMatched: {MatchStatusFriendAdded, MatchStatusMissed},
}

// CanTransitionTo 匹配状态机校验，friend_added/missed 均为终态
func CanTransitionTo(currentStatus, targetStatus string) bool {
	for _, s := range validMatchTransitions[currentStatus] {
		if s == targetStatus {
			return true
		}
	}
	return false
}

// Match 碰撞匹配记录
// 一行代表一对，双方视角由 handler 现算。除 Status 外创建后不可变，
// AddFriendDeadline 只在创建时写入，之后绝不重算。
type Match struct {
	ID      int64 `gorm:"primaryKey;autoIncrement" json:"id"`
	CodeAID int64 `gorm:"index;not null" json:"code_a_id"`
	CodeBID int64 `gorm:"index;not null" json:"code_b_id"`
	UserAID int64 `gorm:"index;not null" json:"user_a_id"`
	UserBID int64 `gorm:"index;not null" json:"user_b_id"`
	UserA   User  `gorm:"foreignKey:UserAID" json:"-"`
	UserB   User  `gorm:"foreignKey:UserBID" json:"-"`

	Tag       string `gorm:"size:100;not null" json:"tag"`
	TagNorm   string `gorm:"size:100;index;not null" json:"-"`
	MatchTier string `gorm:"size:20;not null" json:"match_tier"` // district/city/province/country/haidilao

	// 匹配时的区域快照（取 A 侧搜索区域）
	MatchCountry  string `gorm:"size:50" json:"match_country"`
	MatchProvince string `gorm:"size:50" json:"match_province"`
	MatchCity     string `gorm:"size:50" json:"match_city"`
	MatchDistrict string `gorm:"size:50" json:"match_district"`

	Status            string    `gorm:"size:20;index;not null;default:matched" json:"status"`
	MatchedAt         time.Time `gorm:"index;not null" json:"matched_at"`
	AddFriendDeadline time.Time `gorm:"not null" json:"add_friend_deadline"`

	CreatedAt time.Time `gorm:"autoCreateTime" json:"created_at"`
	UpdatedAt time.Time `gorm:"autoUpdateTime" json:"updated_at"`
}

func (Match) TableName() string {
	return "collision_match"
}

// Involves 用户是否是这对匹配的一方
func (m *Match) Involves(userID int64) bool {
	return m.UserAID == userID || m.UserBID == userID
}

// PartnerID 对方用户ID，调用前需先用 Involves 校验
func (m *Match) PartnerID(userID int64) int64 {
	if m.UserAID == userID {
		return m.UserBID
	}
	return m.UserAID
}

// DeadlinePassed 免费加好友窗口是否已过
func (m *Match) DeadlinePassed(now time.Time) bool {
	return now.After(m.AddFriendDeadline)
}
