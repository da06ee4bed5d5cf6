package location

import "strings"

// 匹配层级，从最具体到最粗
const (
	TierDistrict = "district"
	TierCity     = "city"
	TierProvince = "province"
	TierCountry  = "country"
	TierNone     = ""
)

// Snapshot 国/省/市/区四级地址快照
type Snapshot struct {
	Country  string `json:"country"`
	Province string `json:"province"`
	City     string `json:"city"`
	District string `json:"district"`
}

// Normalize 去首尾空白并统一小写，供比较使用
func (s Snapshot) Normalize() Snapshot {
	return Snapshot{
		Country:  norm(s.Country),
		Province: norm(s.Province),
		City:     norm(s.City),
		District: norm(s.District),
	}
}

// IsEmpty 连国家都没填视为空快照
func (s Snapshot) IsEmpty() bool {
	return norm(s.Country) == ""
}

func norm(v string) string {
	return strings.ToLower(strings.TrimSpace(v))
}

// OverlapTier 计算两个地址快照重合的最具体层级。
//
// 从国家逐级向下比较，某一级任意一方缺失、或双方不相等时停止下钻，
// 返回已经确认重合的层级；国家就对不上则返回 TierNone。
func OverlapTier(a, b Snapshot) string {
	a, b = a.Normalize(), b.Normalize()

	if a.Country == "" || b.Country == "" || a.Country != b.Country {
		return TierNone
	}
	tier := TierCountry

	if a.Province == "" || b.Province == "" || a.Province != b.Province {
		return tier
	}
	tier = TierProvince

	if a.City == "" || b.City == "" || a.City != b.City {
		return tier
	}
	tier = TierCity

	if a.District == "" || b.District == "" || a.District != b.District {
		return tier
	}
	return TierDistrict
}

// NormalizeTag 碰撞码关键词归一化：去首尾空白、压缩连续空白、统一小写。
// 匹配、查重、搜索都以归一化结果为准。
func NormalizeTag(tag string) string {
	return strings.ToLower(strings.Join(strings.Fields(tag), " "))
}
