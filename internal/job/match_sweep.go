package job

import (
	"context"
	"log"
	"time"

	"github.com/go-redis/redis/v8"

	"collisionsystem/internal/config"
	"collisionsystem/internal/infrastructure/lock"
	"collisionsystem/internal/service"
)

// MatchSweepJob 周期撮合扫描
// 提交时刻没碰上的码，候选可能后来才出现，定时全池扫一遍兜底。
// 多实例部署时抢一把扫描锁，同一时刻只有一个实例在扫。
type MatchSweepJob struct {
	matcherSvc  *service.MatcherService
	redisClient *redis.Client
	stopCh      chan struct{}
	interval    time.Duration
}

func NewMatchSweepJob(matcherSvc *service.MatcherService, redisClient *redis.Client, cfg *config.Config) *MatchSweepJob {
	interval := time.Duration(cfg.Business.SweepIntervalSec) * time.Second
	if interval <= 0 {
		interval = 5 * time.Minute
	}
	return &MatchSweepJob{
		matcherSvc:  matcherSvc,
		redisClient: redisClient,
		stopCh:      make(chan struct{}),
		interval:    interval,
	}
}

func (j *MatchSweepJob) Start(ctx context.Context) {
	log.Println("[MatchSweepJob] 周期撮合任务启动")

	ticker := time.NewTicker(j.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			log.Println("[MatchSweepJob] 收到停止信号，任务退出")
			return
		case <-j.stopCh:
			log.Println("[MatchSweepJob] 任务停止")
			return
		case <-ticker.C:
			j.sweep(ctx)
		}
	}
}

func (j *MatchSweepJob) Stop() {
	close(j.stopCh)
}

func (j *MatchSweepJob) sweep(ctx context.Context) {
	sweepLock := lock.NewSweepLock(j.redisClient, j.interval)
	ok, err := sweepLock.TryLock(ctx)
	if err != nil {
		log.Printf("[MatchSweepJob] 获取扫描锁失败: %v", err)
		return
	}
	if !ok {
		return
	}
	defer sweepLock.Unlock(ctx)

	matched, err := j.matcherSvc.Sweep(ctx)
	if err != nil {
		log.Printf("[MatchSweepJob] 扫描撮合失败: %v", err)
		return
	}
	if matched > 0 {
		log.Printf("[MatchSweepJob] 本轮新建 %d 条匹配", matched)
	}
}
