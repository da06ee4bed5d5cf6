package model

import (
	"time"
)

// 账本原因码，覆盖全部付费/入账动作
const (
	ReasonCollisionSubmit = "collision_submit"
	ReasonRenewCollision  = "renew_collision"
	ReasonCollisionRefund = "collision_refund"
	ReasonHaidilao        = "haidilao"
	ReasonForceAdd        = "force_add"
	ReasonSendEmail       = "send_email"
	ReasonRecharge        = "recharge"
	ReasonRefund          = "refund"
	ReasonMatchReward     = "match_reward"
	ReasonSystem          = "system"
)

// LedgerEntry 金币账本
//
// 【重要】账本设计原则：
// 1. 只追加，不修改，不删除 —— 用户余额恒等于其全部 Delta 之和
// 2. 每一笔付费动作先落账再生效，同一事务内完成
// 3. 记录变动前后余额，便于对账校验
// 4. RequestID 按用户唯一兜底幂等：同一用户同一幂等键重放不会二次扣费。
//    幂等键只在本人名下生效，拿别人的键查不到、也撞不上别人的流水
type LedgerEntry struct {
	ID            int64      `gorm:"primaryKey;autoIncrement" json:"id"`
	EntryNo       string     `gorm:"type:varchar(64);uniqueIndex;not null" json:"entry_no"`
	UserID        int64      `gorm:"index;uniqueIndex:uk_user_request;not null" json:"user_id"`
	Delta         int64      `gorm:"not null" json:"delta"` // 正数入账，负数扣费
	Reason        string     `gorm:"type:varchar(32);index;not null" json:"reason"`
	Remark        string     `gorm:"type:varchar(256)" json:"remark"`
	RefID         int64      `gorm:"index" json:"ref_id"` // 关联碰撞码/匹配记录ID，0 表示无
	RequestID     *string    `gorm:"type:varchar(64);uniqueIndex:uk_user_request" json:"request_id,omitempty"`
	BalanceBefore int64      `gorm:"not null" json:"balance_before"`
	BalanceAfter  int64      `gorm:"not null" json:"balance_after"`
	CreatedAt     time.Time  `gorm:"autoCreateTime;index" json:"created_at"`
}

func (LedgerEntry) TableName() string {
	return "ledger_entry"
}
