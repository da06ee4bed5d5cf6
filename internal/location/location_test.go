package location

import "testing"

func TestOverlapTier(t *testing.T) {
	cn := func(p, c, d string) Snapshot {
		return Snapshot{Country: "中国", Province: p, City: c, District: d}
	}

	tests := []struct {
		name string
		a, b Snapshot
		want string
	}{
		{
			name: "same district",
			a:    cn("北京", "北京市", "朝阳区"),
			b:    cn("北京", "北京市", "朝阳区"),
			want: TierDistrict,
		},
		{
			name: "same city different district",
			a:    cn("北京", "北京市", "朝阳区"),
			b:    cn("北京", "北京市", "海淀区"),
			want: TierCity,
		},
		{
			name: "same province different city",
			a:    cn("广东", "深圳市", "南山区"),
			b:    cn("广东", "广州市", "天河区"),
			want: TierProvince,
		},
		{
			name: "same country only",
			a:    cn("广东", "深圳市", ""),
			b:    cn("浙江", "杭州市", ""),
			want: TierCountry,
		},
		{
			name: "different country",
			a:    Snapshot{Country: "中国", Province: "广东"},
			b:    Snapshot{Country: "日本", Province: "東京都"},
			want: TierNone,
		},
		{
			name: "missing country excludes everything",
			a:    Snapshot{Province: "广东", City: "深圳市"},
			b:    cn("广东", "深圳市", ""),
			want: TierNone,
		},
		{
			name: "missing district caps at city",
			a:    cn("北京", "北京市", ""),
			b:    cn("北京", "北京市", "朝阳区"),
			want: TierCity,
		},
		{
			name: "missing city caps at province even when district present",
			a:    cn("广东", "", "南山区"),
			b:    cn("广东", "深圳市", "南山区"),
			want: TierProvince,
		},
		{
			name: "case and whitespace insensitive",
			a:    Snapshot{Country: " China ", Province: "Guangdong", City: "Shenzhen"},
			b:    Snapshot{Country: "china", Province: "GUANGDONG", City: " shenzhen"},
			want: TierCity,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := OverlapTier(tt.a, tt.b); got != tt.want {
				t.Errorf("OverlapTier() = %q, want %q", got, tt.want)
			}
			// 对称性
			if got := OverlapTier(tt.b, tt.a); got != tt.want {
				t.Errorf("OverlapTier() reversed = %q, want %q", got, tt.want)
			}
		})
	}
}

func TestNormalizeTag(t *testing.T) {
	tests := []struct {
		in   string
		want string
	}{
		{"  Hiking ", "hiking"},
		{"三体  读者", "三体 读者"},
		{"GO   语言", "go 语言"},
		{"\t\n", ""},
	}

	for _, tt := range tests {
		if got := NormalizeTag(tt.in); got != tt.want {
			t.Errorf("NormalizeTag(%q) = %q, want %q", tt.in, got, tt.want)
		}
	}
}
