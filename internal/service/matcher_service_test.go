package service

import (
	"context"
	"errors"
	"testing"
	"time"

	"collisionsystem/internal/location"
	"collisionsystem/internal/model"
)

func (e *testEnv) matchesOf(t *testing.T, userID int64) []*model.Match {
	t.Helper()
	matches, err := e.matchRepo.ListByUser(context.Background(), userID)
	if err != nil {
		t.Fatalf("查匹配失败: %v", err)
	}
	return matches
}

func TestCollisionOnSubmit(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()
	alice := env.seedUser(t, "alice", 100)
	bob := env.seedUser(t, "bob", 100)

	if _, err := env.codeSvc.Submit(ctx, alice.ID, &SubmitCodeRequest{Tag: "羽毛球"}); err != nil {
		t.Fatalf("alice 发布失败: %v", err)
	}
	// 同区同关键词，bob 提交时应当立即撞上
	before := time.Now()
	bobCode, err := env.codeSvc.Submit(ctx, bob.ID, &SubmitCodeRequest{Tag: " 羽毛球 "})
	if err != nil {
		t.Fatalf("bob 发布失败: %v", err)
	}

	matches := env.matchesOf(t, alice.ID)
	if len(matches) != 1 {
		t.Fatalf("匹配数 = %d, 想要 1", len(matches))
	}
	m := matches[0]
	if m.MatchTier != location.TierDistrict {
		t.Errorf("匹配层级 = %s, 想要 district", m.MatchTier)
	}
	if m.Status != model.MatchStatusMatched {
		t.Errorf("状态 = %s, 想要 matched", m.Status)
	}
	// 窗口从匹配时刻起算，只在创建时写死
	wantDeadline := m.MatchedAt.Add(env.cfg.Business.MatchWindow())
	if !m.AddFriendDeadline.Equal(wantDeadline) {
		t.Errorf("窗口截止 = %v, 想要 %v", m.AddFriendDeadline, wantDeadline)
	}
	if m.MatchedAt.Before(before.Add(-time.Minute)) {
		t.Errorf("匹配时间 = %v 太早", m.MatchedAt)
	}

	// 双方的码都翻成 matched
	got, err := env.codeRepo.GetByID(ctx, bobCode.ID)
	if err != nil {
		t.Fatalf("查码失败: %v", err)
	}
	if got.Status != model.CodeStatusMatched || got.MatchCount != 1 {
		t.Errorf("码状态 = %s matchCount = %d", got.Status, got.MatchCount)
	}
}

func TestCollisionTiers(t *testing.T) {
	cases := []struct {
		name     string
		aliceLoc location.Snapshot
		bobLoc   location.Snapshot
		wantTier string
	}{
		{
			"同区",
			location.Snapshot{Country: "中国", Province: "北京", City: "北京", District: "海淀"},
			location.Snapshot{Country: "中国", Province: "北京", City: "北京", District: "海淀"},
			location.TierDistrict,
		},
		{
			"同市不同区",
			location.Snapshot{Country: "中国", Province: "北京", City: "北京", District: "海淀"},
			location.Snapshot{Country: "中国", Province: "北京", City: "北京", District: "朝阳"},
			location.TierCity,
		},
		{
			"同省不同市",
			location.Snapshot{Country: "中国", Province: "广东", City: "深圳"},
			location.Snapshot{Country: "中国", Province: "广东", City: "广州"},
			location.TierProvince,
		},
		{
			"只剩国家",
			location.Snapshot{Country: "中国", Province: "北京"},
			location.Snapshot{Country: "中国", Province: "上海"},
			location.TierCountry,
		},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			env := newTestEnv(t)
			ctx := context.Background()
			alice := env.seedUser(t, "alice", 100)
			bob := env.seedUser(t, "bob", 100)

			if _, err := env.codeSvc.Submit(ctx, alice.ID, &SubmitCodeRequest{Tag: "羽毛球", Location: tc.aliceLoc}); err != nil {
				t.Fatalf("alice 发布失败: %v", err)
			}
			if _, err := env.codeSvc.Submit(ctx, bob.ID, &SubmitCodeRequest{Tag: "羽毛球", Location: tc.bobLoc}); err != nil {
				t.Fatalf("bob 发布失败: %v", err)
			}

			matches := env.matchesOf(t, alice.ID)
			if len(matches) != 1 {
				t.Fatalf("匹配数 = %d, 想要 1", len(matches))
			}
			if matches[0].MatchTier != tc.wantTier {
				t.Errorf("匹配层级 = %s, 想要 %s", matches[0].MatchTier, tc.wantTier)
			}
		})
	}
}

func TestNoCollisionAcrossCountries(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()
	alice := env.seedUser(t, "alice", 100)
	bob := env.seedUser(t, "bob", 100)

	if _, err := env.codeSvc.Submit(ctx, alice.ID, &SubmitCodeRequest{
		Tag: "羽毛球", Location: location.Snapshot{Country: "中国", Province: "北京"}}); err != nil {
		t.Fatalf("alice 发布失败: %v", err)
	}
	if _, err := env.codeSvc.Submit(ctx, bob.ID, &SubmitCodeRequest{
		Tag: "羽毛球", Location: location.Snapshot{Country: "日本", Province: "东京"}}); err != nil {
		t.Fatalf("bob 发布失败: %v", err)
	}

	if matches := env.matchesOf(t, alice.ID); len(matches) != 0 {
		t.Errorf("跨国不应匹配, 匹配数 = %d", len(matches))
	}
}

func TestNoCollisionAcrossTags(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()
	alice := env.seedUser(t, "alice", 100)
	bob := env.seedUser(t, "bob", 100)

	if _, err := env.codeSvc.Submit(ctx, alice.ID, &SubmitCodeRequest{Tag: "羽毛球"}); err != nil {
		t.Fatalf("alice 发布失败: %v", err)
	}
	if _, err := env.codeSvc.Submit(ctx, bob.ID, &SubmitCodeRequest{Tag: "网球"}); err != nil {
		t.Fatalf("bob 发布失败: %v", err)
	}

	if matches := env.matchesOf(t, alice.ID); len(matches) != 0 {
		t.Errorf("不同关键词不应匹配, 匹配数 = %d", len(matches))
	}
}

func TestAudienceFilterIsBidirectional(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()
	// seedUser 默认 gender=1
	alice := env.seedUser(t, "alice", 100)
	bob := env.seedUser(t, "bob", 100)

	// alice 只想撞女性，bob 是男性：即便 bob 不挑，也不能撞
	if _, err := env.codeSvc.Submit(ctx, alice.ID, &SubmitCodeRequest{Tag: "羽毛球", Gender: 2}); err != nil {
		t.Fatalf("alice 发布失败: %v", err)
	}
	if _, err := env.codeSvc.Submit(ctx, bob.ID, &SubmitCodeRequest{Tag: "羽毛球"}); err != nil {
		t.Fatalf("bob 发布失败: %v", err)
	}

	if matches := env.matchesOf(t, alice.ID); len(matches) != 0 {
		t.Errorf("性别筛选应双向生效, 匹配数 = %d", len(matches))
	}
}

func TestAudienceAgeFilter(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()
	alice := env.seedUser(t, "alice", 100)
	bob := env.seedUser(t, "bob", 100) // 25 岁

	if _, err := env.codeSvc.Submit(ctx, alice.ID, &SubmitCodeRequest{Tag: "羽毛球", AgeMin: 30, AgeMax: 40}); err != nil {
		t.Fatalf("alice 发布失败: %v", err)
	}
	if _, err := env.codeSvc.Submit(ctx, bob.ID, &SubmitCodeRequest{Tag: "羽毛球"}); err != nil {
		t.Fatalf("bob 发布失败: %v", err)
	}
	if matches := env.matchesOf(t, alice.ID); len(matches) != 0 {
		t.Errorf("年龄不在区间不应匹配, 匹配数 = %d", len(matches))
	}

	// 区间内的 carol 可以撞上
	carol := env.seedUser(t, "carol", 100)
	env.db.Model(&model.User{}).Where("id = ?", carol.ID).Update("age", 35)
	if _, err := env.codeSvc.Submit(ctx, carol.ID, &SubmitCodeRequest{Tag: "羽毛球"}); err != nil {
		t.Fatalf("carol 发布失败: %v", err)
	}
	if matches := env.matchesOf(t, alice.ID); len(matches) != 1 {
		t.Errorf("区间内应匹配, 匹配数 = %d", len(matches))
	}
}

func TestHiddenUserNotMatched(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()
	alice := env.seedUser(t, "alice", 100)
	bob := env.seedUser(t, "bob", 100)

	if _, err := env.codeSvc.Submit(ctx, alice.ID, &SubmitCodeRequest{Tag: "羽毛球"}); err != nil {
		t.Fatalf("alice 发布失败: %v", err)
	}
	env.db.Model(&model.User{}).Where("id = ?", alice.ID).Update("location_visible", false)

	if _, err := env.codeSvc.Submit(ctx, bob.ID, &SubmitCodeRequest{Tag: "羽毛球"}); err != nil {
		t.Fatalf("bob 发布失败: %v", err)
	}
	if matches := env.matchesOf(t, bob.ID); len(matches) != 0 {
		t.Errorf("关了可见性的用户不应被匹配, 匹配数 = %d", len(matches))
	}
}

func TestPairMatchesOnlyOnce(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()
	alice := env.seedUser(t, "alice", 100)
	bob := env.seedUser(t, "bob", 100)

	aliceCode, err := env.codeSvc.Submit(ctx, alice.ID, &SubmitCodeRequest{Tag: "羽毛球"})
	if err != nil {
		t.Fatalf("alice 发布失败: %v", err)
	}
	if _, err := env.codeSvc.Submit(ctx, bob.ID, &SubmitCodeRequest{Tag: "羽毛球"}); err != nil {
		t.Fatalf("bob 发布失败: %v", err)
	}
	if matches := env.matchesOf(t, alice.ID); len(matches) != 1 {
		t.Fatalf("匹配数 = %d, 想要 1", len(matches))
	}

	// 开着多次匹配，但同一对码不重复撞
	if _, err := env.matcherSvc.MatchForCode(ctx, aliceCode.ID); !errors.Is(err, ErrNoCandidates) {
		t.Errorf("err = %v, 想要 ErrNoCandidates", err)
	}
	if matches := env.matchesOf(t, alice.ID); len(matches) != 1 {
		t.Errorf("匹配数 = %d, 想要仍是 1", len(matches))
	}
}

func TestEarliestCandidateWins(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()
	alice := env.seedUser(t, "alice", 100)
	bob := env.seedUser(t, "bob", 100)
	carol := env.seedUser(t, "carol", 100)

	// bob 和 carol 性别互斥等不上彼此，先后入池等 alice
	if _, err := env.codeSvc.Submit(ctx, bob.ID, &SubmitCodeRequest{Tag: "羽毛球", Gender: 2}); err != nil {
		t.Fatalf("bob 发布失败: %v", err)
	}
	if _, err := env.codeSvc.Submit(ctx, carol.ID, &SubmitCodeRequest{Tag: "羽毛球", Gender: 2}); err != nil {
		t.Fatalf("carol 发布失败: %v", err)
	}

	// alice 是女性，两边条件都满足，应撞上先入池的 bob
	env.db.Model(&model.User{}).Where("id = ?", alice.ID).Update("gender", 2)
	if _, err := env.codeSvc.Submit(ctx, alice.ID, &SubmitCodeRequest{Tag: "羽毛球"}); err != nil {
		t.Fatalf("alice 发布失败: %v", err)
	}

	matches := env.matchesOf(t, alice.ID)
	if len(matches) != 1 {
		t.Fatalf("匹配数 = %d, 想要 1", len(matches))
	}
	partner := matches[0].PartnerID(alice.ID)
	if partner != bob.ID {
		t.Errorf("对方 = %d, 想要先入池的 bob(%d)", partner, bob.ID)
	}
}

func TestMultiMatchDisabled(t *testing.T) {
	env := newTestEnv(t)
	env.cfg.Business.AllowMultiMatch = false
	ctx := context.Background()
	alice := env.seedUser(t, "alice", 100)
	bob := env.seedUser(t, "bob", 100)
	carol := env.seedUser(t, "carol", 100)

	if _, err := env.codeSvc.Submit(ctx, alice.ID, &SubmitCodeRequest{Tag: "羽毛球"}); err != nil {
		t.Fatalf("alice 发布失败: %v", err)
	}
	if _, err := env.codeSvc.Submit(ctx, bob.ID, &SubmitCodeRequest{Tag: "羽毛球"}); err != nil {
		t.Fatalf("bob 发布失败: %v", err)
	}
	// alice 和 bob 已配对且关了多次匹配，carol 入池应空手而归
	if _, err := env.codeSvc.Submit(ctx, carol.ID, &SubmitCodeRequest{Tag: "羽毛球"}); err != nil {
		t.Fatalf("carol 发布失败: %v", err)
	}

	if matches := env.matchesOf(t, carol.ID); len(matches) != 0 {
		t.Errorf("关了多次匹配后 matched 的码不应再撞, 匹配数 = %d", len(matches))
	}
}

func TestExpiredCodeStillMatches(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()
	alice := env.seedUser(t, "alice", 100)
	bob := env.seedUser(t, "bob", 100)

	aliceCode, err := env.codeSvc.Submit(ctx, alice.ID, &SubmitCodeRequest{Tag: "羽毛球"})
	if err != nil {
		t.Fatalf("alice 发布失败: %v", err)
	}
	env.db.Model(&model.CollisionCode{}).Where("id = ?", aliceCode.ID).
		Update("expires_at", time.Now().Add(-48*time.Hour))

	if _, err := env.codeSvc.Submit(ctx, bob.ID, &SubmitCodeRequest{Tag: "羽毛球"}); err != nil {
		t.Fatalf("bob 发布失败: %v", err)
	}

	// 过期只影响展示，不把码踢出匹配池
	if matches := env.matchesOf(t, alice.ID); len(matches) != 1 {
		t.Errorf("过期的码也应参与匹配, 匹配数 = %d", len(matches))
	}
}

func TestBlackholeTagNeverMatches(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()
	alice := env.seedUser(t, "alice", 100)
	bob := env.seedUser(t, "bob", 100)

	env.db.Create(&model.HotTag{Keyword: "前任", Status: model.HotTagStatusBlackhole})

	if _, err := env.codeSvc.Submit(ctx, alice.ID, &SubmitCodeRequest{Tag: "前任"}); err != nil {
		t.Fatalf("alice 发布失败: %v", err)
	}
	if _, err := env.codeSvc.Submit(ctx, bob.ID, &SubmitCodeRequest{Tag: "前任"}); err != nil {
		t.Fatalf("bob 发布失败: %v", err)
	}

	// 黑洞词正常扣费但永不匹配
	if got := env.balance(t, alice.ID); got != 90 {
		t.Errorf("alice 余额 = %d, 想要 90", got)
	}
	if matches := env.matchesOf(t, alice.ID); len(matches) != 0 {
		t.Errorf("黑洞词不应匹配, 匹配数 = %d", len(matches))
	}
}

func TestMatchWritesOutboxAndEmails(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()
	alice := env.seedUser(t, "alice", 100)
	bob := env.seedUser(t, "bob", 100)

	if _, err := env.codeSvc.Submit(ctx, alice.ID, &SubmitCodeRequest{Tag: "羽毛球"}); err != nil {
		t.Fatalf("alice 发布失败: %v", err)
	}
	if _, err := env.codeSvc.Submit(ctx, bob.ID, &SubmitCodeRequest{Tag: "羽毛球"}); err != nil {
		t.Fatalf("bob 发布失败: %v", err)
	}

	var outboxCount int64
	env.db.Model(&model.OutboxMessage{}).Where("status = ?", model.OutboxStatusPending).Count(&outboxCount)
	if outboxCount != 1 {
		t.Errorf("outbox 条数 = %d, 想要 1", outboxCount)
	}

	// 双方都验证过邮箱，各落一封待发通知
	var emailCount int64
	env.db.Model(&model.EmailLog{}).
		Where("type = ? AND status = ?", model.EmailTypeMatchNotify, model.EmailStatusPending).
		Count(&emailCount)
	if emailCount != 2 {
		t.Errorf("待发邮件条数 = %d, 想要 2", emailCount)
	}
}

func TestSweepMatchesLateCandidates(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()
	alice := env.seedUser(t, "alice", 100)
	bob := env.seedUser(t, "bob", 100)

	// 两个码互相性别不合，先各自入池撞不上
	if _, err := env.codeSvc.Submit(ctx, alice.ID, &SubmitCodeRequest{Tag: "羽毛球", Gender: 2}); err != nil {
		t.Fatalf("alice 发布失败: %v", err)
	}
	if _, err := env.codeSvc.Submit(ctx, bob.ID, &SubmitCodeRequest{Tag: "羽毛球", Gender: 2}); err != nil {
		t.Fatalf("bob 发布失败: %v", err)
	}
	if matches := env.matchesOf(t, alice.ID); len(matches) != 0 {
		t.Fatalf("预期先撞不上, 匹配数 = %d", len(matches))
	}

	// bob 改了性别，提交时刻已过，靠周期扫描兜底
	env.db.Model(&model.User{}).Where("id = ?", bob.ID).Update("gender", 2)
	env.db.Model(&model.User{}).Where("id = ?", alice.ID).Update("gender", 2)

	matched, err := env.matcherSvc.Sweep(ctx)
	if err != nil {
		t.Fatalf("扫描失败: %v", err)
	}
	if matched != 1 {
		t.Errorf("扫描新建匹配数 = %d, 想要 1", matched)
	}
	if matches := env.matchesOf(t, alice.ID); len(matches) != 1 {
		t.Errorf("匹配数 = %d, 想要 1", len(matches))
	}
}
