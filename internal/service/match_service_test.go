package service

import (
	"context"
	"errors"
	"strings"
	"testing"
	"time"

	"collisionsystem/internal/location"
	"collisionsystem/internal/model"
)

// setupMatchedPair 造一对已撞上的用户
func setupMatchedPair(t *testing.T, env *testEnv) (*model.User, *model.User, *model.Match) {
	t.Helper()
	ctx := context.Background()
	alice := env.seedUser(t, "alice", 200)
	bob := env.seedUser(t, "bob", 200)

	if _, err := env.codeSvc.Submit(ctx, alice.ID, &SubmitCodeRequest{Tag: "羽毛球"}); err != nil {
		t.Fatalf("alice 发布失败: %v", err)
	}
	if _, err := env.codeSvc.Submit(ctx, bob.ID, &SubmitCodeRequest{Tag: "羽毛球"}); err != nil {
		t.Fatalf("bob 发布失败: %v", err)
	}

	matches := env.matchesOf(t, alice.ID)
	if len(matches) != 1 {
		t.Fatalf("匹配数 = %d, 想要 1", len(matches))
	}
	return alice, bob, matches[0]
}

func (e *testEnv) expireMatchWindow(t *testing.T, matchID int64) {
	t.Helper()
	err := e.db.Model(&model.Match{}).Where("id = ?", matchID).
		Update("add_friend_deadline", time.Now().Add(-time.Hour)).Error
	if err != nil {
		t.Fatalf("改窗口截止失败: %v", err)
	}
}

func TestAddFriendWithinWindow(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()
	alice, bob, m := setupMatchedPair(t, env)

	view, err := env.matchSvc.AddFriend(ctx, alice.ID, m.ID)
	if err != nil {
		t.Fatalf("加好友失败: %v", err)
	}
	if view.Status != model.MatchStatusFriendAdded {
		t.Errorf("状态 = %s, 想要 friend_added", view.Status)
	}
	// 加了好友联系方式全量透出
	if view.Partner.WechatNo != "wx_bob" {
		t.Errorf("微信号 = %q, 想要 wx_bob", view.Partner.WechatNo)
	}
	if view.Partner.Email != bob.Email {
		t.Errorf("邮箱 = %q, 想要 %q", view.Partner.Email, bob.Email)
	}
}

func TestAddFriendAfterDeadline(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()
	alice, _, m := setupMatchedPair(t, env)
	env.expireMatchWindow(t, m.ID)

	if _, err := env.matchSvc.AddFriend(ctx, alice.ID, m.ID); !errors.Is(err, ErrDeadlinePassed) {
		t.Errorf("err = %v, 想要 ErrDeadlinePassed", err)
	}
}

func TestAddFriendTwiceConflict(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()
	alice, _, m := setupMatchedPair(t, env)

	if _, err := env.matchSvc.AddFriend(ctx, alice.ID, m.ID); err != nil {
		t.Fatalf("加好友失败: %v", err)
	}
	if _, err := env.matchSvc.AddFriend(ctx, alice.ID, m.ID); !errors.Is(err, ErrConflict) {
		t.Errorf("err = %v, 想要 ErrConflict", err)
	}
}

func TestSkipMatch(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()
	alice, _, m := setupMatchedPair(t, env)

	if err := env.matchSvc.Skip(ctx, alice.ID, m.ID); err != nil {
		t.Fatalf("放弃失败: %v", err)
	}
	view, err := env.matchSvc.Detail(ctx, alice.ID, m.ID)
	if err != nil {
		t.Fatalf("查详情失败: %v", err)
	}
	if view.Status != model.MatchStatusMissed {
		t.Errorf("状态 = %s, 想要 missed", view.Status)
	}

	// 放弃后免费通道关闭
	if _, err := env.matchSvc.AddFriend(ctx, alice.ID, m.ID); !errors.Is(err, ErrConflict) {
		t.Errorf("err = %v, 想要 ErrConflict", err)
	}
}

func TestDetailContactGating(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()
	alice, _, m := setupMatchedPair(t, env)

	// 窗口内：联系方式可见
	view, err := env.matchSvc.Detail(ctx, alice.ID, m.ID)
	if err != nil {
		t.Fatalf("查详情失败: %v", err)
	}
	if view.Partner.WechatNo != "wx_bob" {
		t.Errorf("窗口内微信号 = %q, 想要 wx_bob", view.Partner.WechatNo)
	}

	// 窗口过了：展示状态翻 missed、联系方式打码
	env.expireMatchWindow(t, m.ID)
	view, err = env.matchSvc.Detail(ctx, alice.ID, m.ID)
	if err != nil {
		t.Fatalf("查详情失败: %v", err)
	}
	if view.Status != model.MatchStatusMissed {
		t.Errorf("过期展示状态 = %s, 想要 missed", view.Status)
	}
	if view.Partner.WechatNo != "wx***ob" {
		t.Errorf("过期微信号 = %q, 想要 wx***ob", view.Partner.WechatNo)
	}
	if view.Partner.Email != "" {
		t.Errorf("过期不应透出邮箱, 得到 %q", view.Partner.Email)
	}
}

func TestDetailNonParticipantForbidden(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()
	_, _, m := setupMatchedPair(t, env)
	carol := env.seedUser(t, "carol", 100)

	if _, err := env.matchSvc.Detail(ctx, carol.ID, m.ID); !errors.Is(err, ErrForbidden) {
		t.Errorf("err = %v, 想要 ErrForbidden", err)
	}
}

func TestForceAddBeforeDeadlineTooEarly(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()
	alice, bob, m := setupMatchedPair(t, env)
	env.db.Model(&model.User{}).Where("id = ?", bob.ID).Update("allow_force_add", true)

	if _, err := env.matchSvc.ForceAdd(ctx, alice.ID, m.ID, ""); !errors.Is(err, ErrTooEarly) {
		t.Errorf("err = %v, 想要 ErrTooEarly", err)
	}
	// 没成功就不扣费
	if got := env.balance(t, alice.ID); got != 190 {
		t.Errorf("余额 = %d, 想要 190", got)
	}
}

func TestForceAddAfterDeadline(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()
	alice, bob, m := setupMatchedPair(t, env)
	env.db.Model(&model.User{}).Where("id = ?", bob.ID).Update("allow_force_add", true)
	env.expireMatchWindow(t, m.ID)

	view, err := env.matchSvc.ForceAdd(ctx, alice.ID, m.ID, "FA-001")
	if err != nil {
		t.Fatalf("强制加好友失败: %v", err)
	}
	if view.Status != model.MatchStatusFriendAdded {
		t.Errorf("状态 = %s, 想要 friend_added", view.Status)
	}
	if view.Partner.WechatNo != "wx_bob" {
		t.Errorf("微信号 = %q, 想要 wx_bob", view.Partner.WechatNo)
	}
	// 发布 10 + 强制加 50
	if got := env.balance(t, alice.ID); got != 140 {
		t.Errorf("余额 = %d, 想要 140", got)
	}
	env.assertLedgerConsistent(t, alice.ID, 200)

	// 幂等重放不二次扣费
	if _, err := env.matchSvc.ForceAdd(ctx, alice.ID, m.ID, "FA-001"); err != nil {
		t.Fatalf("重放失败: %v", err)
	}
	if got := env.balance(t, alice.ID); got != 140 {
		t.Errorf("重放后余额 = %d, 想要 140", got)
	}
}

func TestForceAddPartnerOptedOut(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()
	alice, _, m := setupMatchedPair(t, env)
	env.expireMatchWindow(t, m.ID)

	// bob 没开"允许被强制加"
	if _, err := env.matchSvc.ForceAdd(ctx, alice.ID, m.ID, ""); !errors.Is(err, ErrForbidden) {
		t.Errorf("err = %v, 想要 ErrForbidden", err)
	}
	if got := env.balance(t, alice.ID); got != 190 {
		t.Errorf("余额 = %d, 想要 190", got)
	}
}

func TestForceAddAfterSkip(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()
	alice, bob, m := setupMatchedPair(t, env)
	env.db.Model(&model.User{}).Where("id = ?", bob.ID).Update("allow_force_add", true)

	if err := env.matchSvc.Skip(ctx, alice.ID, m.ID); err != nil {
		t.Fatalf("放弃失败: %v", err)
	}

	// 主动放弃是终态，不能再花钱找回
	if _, err := env.matchSvc.ForceAdd(ctx, alice.ID, m.ID, ""); !errors.Is(err, ErrConflict) {
		t.Fatalf("err = %v, 想要 ErrConflict", err)
	}
	if got := env.balance(t, alice.ID); got != 190 {
		t.Errorf("余额 = %d, 想要 190 (未扣费)", got)
	}
}

func TestForceAddReplayScopedToUser(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()
	alice, bob, m := setupMatchedPair(t, env)
	env.db.Model(&model.User{}).Where("id = ?", bob.ID).Update("allow_force_add", true)
	env.expireMatchWindow(t, m.ID)

	if _, err := env.matchSvc.ForceAdd(ctx, alice.ID, m.ID, "FA-001"); err != nil {
		t.Fatalf("强制加好友失败: %v", err)
	}

	carol := env.seedUser(t, "carol", 200)
	dave := env.seedUser(t, "dave", 200)
	for _, u := range []*model.User{carol, dave} {
		if _, err := env.codeSvc.Submit(ctx, u.ID, &SubmitCodeRequest{Tag: "网球"}); err != nil {
			t.Fatalf("发布失败: %v", err)
		}
	}
	carolMatches := env.matchesOf(t, carol.ID)
	if len(carolMatches) != 1 {
		t.Fatalf("匹配数 = %d, 想要 1", len(carolMatches))
	}

	// carol 拿 alice 的幂等键重放不到 alice 的结果，照常走自己的校验
	if _, err := env.matchSvc.ForceAdd(ctx, carol.ID, carolMatches[0].ID, "FA-001"); !errors.Is(err, ErrTooEarly) {
		t.Fatalf("err = %v, 想要 ErrTooEarly", err)
	}
	if got := env.balance(t, carol.ID); got != 190 {
		t.Errorf("carol 余额 = %d, 想要 190 (未扣费)", got)
	}
}

func setupHaidilaoPool(t *testing.T, env *testEnv) (*model.User, *model.User) {
	t.Helper()
	ctx := context.Background()
	alice := env.seedUser(t, "alice", 500)
	bob := env.seedUser(t, "bob", 200)

	// 两人隔着国界撞不上，只能海底捞
	if _, err := env.codeSvc.Submit(ctx, alice.ID, &SubmitCodeRequest{
		Tag: "羽毛球", Location: location.Snapshot{Country: "中国", Province: "北京"}}); err != nil {
		t.Fatalf("alice 发布失败: %v", err)
	}
	if _, err := env.codeSvc.Submit(ctx, bob.ID, &SubmitCodeRequest{
		Tag: "羽毛球", Location: location.Snapshot{Country: "日本", Province: "东京"}}); err != nil {
		t.Fatalf("bob 发布失败: %v", err)
	}
	if matches := env.matchesOf(t, alice.ID); len(matches) != 0 {
		t.Fatalf("预期撞不上, 匹配数 = %d", len(matches))
	}
	return alice, bob
}

func TestHaidilao(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()
	alice, bob := setupHaidilaoPool(t, env)
	env.db.Model(&model.User{}).Where("id = ?", bob.ID).Update("allow_haidilao", true)

	view, err := env.matchSvc.Haidilao(ctx, alice.ID, "羽毛球", "HDL-001")
	if err != nil {
		t.Fatalf("海底捞失败: %v", err)
	}
	if view.MatchTier != model.MatchTierHaidilao {
		t.Errorf("匹配层级 = %s, 想要 haidilao", view.MatchTier)
	}
	// 付费捞人直接成好友，联系方式立即可见
	if view.Status != model.MatchStatusFriendAdded {
		t.Errorf("状态 = %s, 想要 friend_added", view.Status)
	}
	if view.Partner.UserID != bob.ID {
		t.Errorf("对方 = %d, 想要 bob(%d)", view.Partner.UserID, bob.ID)
	}
	if view.Partner.WechatNo != "wx_bob" {
		t.Errorf("微信号 = %q, 想要 wx_bob", view.Partner.WechatNo)
	}
	// 发布 10 + 海底捞 100
	if got := env.balance(t, alice.ID); got != 390 {
		t.Errorf("余额 = %d, 想要 390", got)
	}
	env.assertLedgerConsistent(t, alice.ID, 500)

	// 重放不二次扣费、不再建新匹配
	if _, err := env.matchSvc.Haidilao(ctx, alice.ID, "羽毛球", "HDL-001"); err != nil {
		t.Fatalf("重放失败: %v", err)
	}
	if got := env.balance(t, alice.ID); got != 390 {
		t.Errorf("重放后余额 = %d, 想要 390", got)
	}
	if matches := env.matchesOf(t, alice.ID); len(matches) != 1 {
		t.Errorf("匹配数 = %d, 想要 1", len(matches))
	}
}

func TestHaidilaoNoCandidatesNoDebit(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()
	alice, _ := setupHaidilaoPool(t, env)

	// bob 没开"允许被捞"：先找人再扣费，捞不到分文不动
	if _, err := env.matchSvc.Haidilao(ctx, alice.ID, "羽毛球", ""); !errors.Is(err, ErrNoCandidates) {
		t.Fatalf("err = %v, 想要 ErrNoCandidates", err)
	}
	if got := env.balance(t, alice.ID); got != 490 {
		t.Errorf("余额 = %d, 想要 490", got)
	}
}

func TestHaidilaoRequiresOwnCode(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()
	carol := env.seedUser(t, "carol", 500)

	// 自己没有这个关键词的码，不能凭空捞人
	if _, err := env.matchSvc.Haidilao(ctx, carol.ID, "羽毛球", ""); !errors.Is(err, ErrForbidden) {
		t.Errorf("err = %v, 想要 ErrForbidden", err)
	}
}

func TestHaidilaoSamePairOnlyOnce(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()
	alice, bob := setupHaidilaoPool(t, env)
	env.db.Model(&model.User{}).Where("id = ?", bob.ID).Update("allow_haidilao", true)

	if _, err := env.matchSvc.Haidilao(ctx, alice.ID, "羽毛球", ""); err != nil {
		t.Fatalf("海底捞失败: %v", err)
	}
	// 同一个人在同一关键词下只能捞一次
	if _, err := env.matchSvc.Haidilao(ctx, alice.ID, "羽毛球", ""); !errors.Is(err, ErrNoCandidates) {
		t.Errorf("err = %v, 想要 ErrNoCandidates", err)
	}
}

func TestSendEmail(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()
	alice, bob, m := setupMatchedPair(t, env)

	err := env.matchSvc.SendEmail(ctx, alice.ID, m.ID, "<b>周六球馆见</b>", "MAIL-001")
	if err != nil {
		t.Fatalf("发邮件失败: %v", err)
	}
	// 发布 10 + 邮件 1
	if got := env.balance(t, alice.ID); got != 189 {
		t.Errorf("余额 = %d, 想要 189", got)
	}

	var emailLog model.EmailLog
	err = env.db.Where("type = ? AND match_id = ?", model.EmailTypeUserMessage, m.ID).
		First(&emailLog).Error
	if err != nil {
		t.Fatalf("查邮件失败: %v", err)
	}
	if emailLog.ToEmail != bob.Email {
		t.Errorf("收件人 = %q, 想要 %q", emailLog.ToEmail, bob.Email)
	}
	// 正文必须转义，防止往对方邮箱里注 HTML
	if strings.Contains(emailLog.Content, "<b>") {
		t.Errorf("正文未转义: %q", emailLog.Content)
	}
	if !strings.Contains(emailLog.Content, "&lt;b&gt;") {
		t.Errorf("正文转义结果不对: %q", emailLog.Content)
	}

	// 重放不二次扣费、不重复落邮件
	if err := env.matchSvc.SendEmail(ctx, alice.ID, m.ID, "<b>周六球馆见</b>", "MAIL-001"); err != nil {
		t.Fatalf("重放失败: %v", err)
	}
	if got := env.balance(t, alice.ID); got != 189 {
		t.Errorf("重放后余额 = %d, 想要 189", got)
	}
	var count int64
	env.db.Model(&model.EmailLog{}).
		Where("type = ? AND match_id = ?", model.EmailTypeUserMessage, m.ID).Count(&count)
	if count != 1 {
		t.Errorf("邮件条数 = %d, 想要 1", count)
	}
}

func TestSendEmailValidation(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()
	alice, _, m := setupMatchedPair(t, env)

	if err := env.matchSvc.SendEmail(ctx, alice.ID, m.ID, "   ", ""); !errors.Is(err, ErrValidation) {
		t.Errorf("空正文 err = %v, 想要 ErrValidation", err)
	}
	tooLong := strings.Repeat("长", env.cfg.Business.EmailContentLimit+1)
	if err := env.matchSvc.SendEmail(ctx, alice.ID, m.ID, tooLong, ""); !errors.Is(err, ErrValidation) {
		t.Errorf("超长正文 err = %v, 想要 ErrValidation", err)
	}
}

func TestSendEmailPartnerHidden(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()
	alice, bob, m := setupMatchedPair(t, env)
	env.db.Model(&model.User{}).Where("id = ?", bob.ID).Update("email_visible", false)

	if err := env.matchSvc.SendEmail(ctx, alice.ID, m.ID, "你好", ""); !errors.Is(err, ErrForbidden) {
		t.Errorf("err = %v, 想要 ErrForbidden", err)
	}
	if got := env.balance(t, alice.ID); got != 190 {
		t.Errorf("余额 = %d, 想要 190", got)
	}
}
