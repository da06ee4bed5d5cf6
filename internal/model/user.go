package model

import (
	"time"

	"collisionsystem/internal/location"
)

// User 用户表
// Coins 是整个系统唯一的余额字段，只允许账本（LedgerEntry）伴随变更
type User struct {
	ID            int64     `gorm:"primaryKey;autoIncrement" json:"id"`
	Nickname      string    `gorm:"size:100" json:"nickname"`
	Avatar        string    `gorm:"size:255" json:"avatar"`
	WechatNo      string    `gorm:"size:50" json:"wechat_no"`
	Phone         string    `gorm:"size:20" json:"phone"`
	Email         string    `gorm:"size:191;index" json:"email"`
	EmailVerified bool      `gorm:"default:false" json:"email_verified"`
	EmailVisible  bool      `gorm:"default:true" json:"email_visible"` // 邮箱是否允许在匹配结果中透出
	Gender        int       `gorm:"default:0" json:"gender"`           // 0:未知 1:男 2:女
	Age           int       `gorm:"default:0" json:"age"`
	Coins         int64     `gorm:"not null;default:0" json:"coins"`
	TotalRecharge int64     `gorm:"not null;default:0" json:"total_recharge"`

	// 个人地址（匹配用快照的来源）
	Country  string `gorm:"size:50" json:"country"`
	Province string `gorm:"size:50" json:"province"`
	City     string `gorm:"size:50" json:"city"`
	District string `gorm:"size:50" json:"district"`

	// 碰撞相关开关
	LocationVisible bool `gorm:"default:true" json:"location_visible"` // 允许被搜索/匹配
	AllowForceAdd   bool `gorm:"default:false" json:"allow_force_add"` // 允许过期后被强制加好友
	AllowHaidilao   bool `gorm:"default:false" json:"allow_haidilao"`  // 允许被海底捞

	CreatedAt time.Time `gorm:"autoCreateTime" json:"created_at"`
	UpdatedAt time.Time `gorm:"autoUpdateTime" json:"updated_at"`
}

func (User) TableName() string {
	return "user"
}

// Location 用户个人地址快照
func (u *User) Location() location.Snapshot {
	return location.Snapshot{
		Country:  u.Country,
		Province: u.Province,
		City:     u.City,
		District: u.District,
	}
}
