package main

import (
	"context"
	"fmt"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"collisionsystem/internal/config"
	"collisionsystem/internal/handler"
	"collisionsystem/internal/infrastructure/cache"
	"collisionsystem/internal/infrastructure/database"
	"collisionsystem/internal/infrastructure/email"
	"collisionsystem/internal/infrastructure/mq"
	"collisionsystem/internal/job"
	"collisionsystem/internal/repository"
	"collisionsystem/internal/service"
	"collisionsystem/pkg/idgen"
)

func main() {
	// 加载配置
	cfg := config.LoadConfig("config/config.yaml")

	// 初始化 ID 生成器
	idgen.Init(1)

	// 初始化 MySQL
	db := database.InitMySQL(&cfg.MySQL)

	// 初始化 Redis
	redisClient := cache.InitRedis(&cfg.Redis)

	// 初始化 Kafka
	mq.InitKafka(&cfg.Kafka)
	defer mq.CloseKafka()

	// 邮件客户端（未开启时只落库不外发）
	mailer := email.NewMailer(&cfg.Email)

	// 创建上下文（用于优雅关闭）
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	// 周期撮合扫描用的匹配引擎
	userRepo := repository.NewUserRepository(db)
	codeRepo := repository.NewCodeRepository(db)
	matchRepo := repository.NewMatchRepository(db)
	hotTagSvc := service.NewHotTagService(repository.NewHotTagRepository(db), redisClient, cfg)
	notifySvc := service.NewNotifyService(
		repository.NewOutboxRepository(db), repository.NewEmailLogRepository(db), cfg)
	matcherSvc := service.NewMatcherService(db, redisClient, cfg,
		codeRepo, matchRepo, userRepo, notifySvc, hotTagSvc)

	// 启动后台任务
	outboxSender := job.NewOutboxSender(db, cfg)
	go outboxSender.Start(ctx)

	emailSender := job.NewEmailSender(db, mailer, cfg)
	go emailSender.Start(ctx)

	matchSweep := job.NewMatchSweepJob(matcherSvc, redisClient, cfg)
	go matchSweep.Start(ctx)

	// 设置路由
	router := handler.SetupRouter(db, redisClient, cfg)

	// 启动 HTTP 服务
	server := &http.Server{
		Addr:    fmt.Sprintf(":%d", cfg.Server.Port),
		Handler: router,
	}

	go func() {
		log.Printf("服务启动，监听端口: %d", cfg.Server.Port)
		if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Fatalf("服务启动失败: %v", err)
		}
	}()

	// 等待中断信号
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	log.Println("正在关闭服务...")

	// 取消上下文，停止后台任务
	cancel()

	// 关闭 HTTP 服务（等待最多5秒）
	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer shutdownCancel()

	if err := server.Shutdown(shutdownCtx); err != nil {
		log.Printf("服务关闭异常: %v", err)
	}

	log.Println("服务已关闭")
}
