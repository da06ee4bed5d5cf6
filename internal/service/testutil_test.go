package service

import (
	"path/filepath"
	"testing"

	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"

	"collisionsystem/internal/config"
	"collisionsystem/internal/infrastructure/database"
	"collisionsystem/internal/model"
	"collisionsystem/internal/repository"
)

// testEnv 单测环境：sqlite 落盘库 + 全套服务。
// 不接 Redis，分布式锁退化为 no-op；不接 Kafka/SMTP，通知只落库。
type testEnv struct {
	db         *gorm.DB
	cfg        *config.Config
	userRepo   *repository.UserRepository
	ledgerRepo *repository.LedgerRepository
	codeRepo   *repository.CodeRepository
	matchRepo  *repository.MatchRepository
	ledgerSvc  *LedgerService
	codeSvc    *CodeService
	matcherSvc *MatcherService
	matchSvc   *MatchService
	userSvc    *UserService
	hotTagSvc  *HotTagService
}

func newTestEnv(t *testing.T) *testEnv {
	t.Helper()

	db, err := gorm.Open(sqlite.Open(filepath.Join(t.TempDir(), "test.db")), &gorm.Config{
		Logger: logger.Default.LogMode(logger.Silent),
	})
	if err != nil {
		t.Fatalf("打开 sqlite 失败: %v", err)
	}
	if err := database.Migrate(db); err != nil {
		t.Fatalf("迁移表结构失败: %v", err)
	}

	cfg := config.Default()

	userRepo := repository.NewUserRepository(db)
	ledgerRepo := repository.NewLedgerRepository(db)
	codeRepo := repository.NewCodeRepository(db)
	matchRepo := repository.NewMatchRepository(db)
	outboxRepo := repository.NewOutboxRepository(db)
	emailLogRepo := repository.NewEmailLogRepository(db)
	hotTagRepo := repository.NewHotTagRepository(db)

	ledgerSvc := NewLedgerService(db, nil, userRepo, ledgerRepo)
	hotTagSvc := NewHotTagService(hotTagRepo, nil, cfg)
	notifySvc := NewNotifyService(outboxRepo, emailLogRepo, cfg)
	matcherSvc := NewMatcherService(db, nil, cfg, codeRepo, matchRepo, userRepo, notifySvc, hotTagSvc)
	codeSvc := NewCodeService(db, cfg, userRepo, codeRepo, ledgerSvc, hotTagSvc, matcherSvc)
	matchSvc := NewMatchService(db, nil, cfg, matchRepo, codeRepo, userRepo, emailLogRepo,
		ledgerSvc, notifySvc, hotTagSvc)

	return &testEnv{
		db:         db,
		cfg:        cfg,
		userRepo:   userRepo,
		ledgerRepo: ledgerRepo,
		codeRepo:   codeRepo,
		matchRepo:  matchRepo,
		ledgerSvc:  ledgerSvc,
		codeSvc:    codeSvc,
		matcherSvc: matcherSvc,
		matchSvc:   matchSvc,
		userSvc:    NewUserService(userRepo),
		hotTagSvc:  hotTagSvc,
	}
}

// seedUser 建一个北京海淀、余额 coins 的测试用户
func (e *testEnv) seedUser(t *testing.T, nickname string, coins int64) *model.User {
	t.Helper()
	user := &model.User{
		Nickname:        nickname,
		WechatNo:        "wx_" + nickname,
		Email:           nickname + "@example.com",
		EmailVerified:   true,
		EmailVisible:    true,
		Gender:          1,
		Age:             25,
		Coins:           coins,
		Country:         "中国",
		Province:        "北京",
		City:            "北京",
		District:        "海淀",
		LocationVisible: true,
	}
	if err := e.db.Create(user).Error; err != nil {
		t.Fatalf("建测试用户失败: %v", err)
	}
	return user
}

// balance 直接读库取余额
func (e *testEnv) balance(t *testing.T, userID int64) int64 {
	t.Helper()
	var user model.User
	if err := e.db.First(&user, userID).Error; err != nil {
		t.Fatalf("读用户失败: %v", err)
	}
	return user.Coins
}

// assertLedgerConsistent 余额必须恒等于账本流水之和
func (e *testEnv) assertLedgerConsistent(t *testing.T, userID int64, seedCoins int64) {
	t.Helper()
	var sum int64
	err := e.db.Model(&model.LedgerEntry{}).
		Where("user_id = ?", userID).
		Select("COALESCE(SUM(delta), 0)").
		Scan(&sum).Error
	if err != nil {
		t.Fatalf("汇总流水失败: %v", err)
	}
	if got := e.balance(t, userID); got != seedCoins+sum {
		t.Errorf("余额与账本不一致: 余额=%d 初始=%d 流水和=%d", got, seedCoins, sum)
	}
}
