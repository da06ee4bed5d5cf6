package handler

import (
	"collisionsystem/internal/config"

	"github.com/gin-gonic/gin"
	"github.com/go-redis/redis/v8"
	"gorm.io/gorm"
)

// SetupRouter 配置路由
func SetupRouter(db *gorm.DB, rdb *redis.Client, cfg *config.Config) *gin.Engine {
	gin.SetMode(gin.ReleaseMode)

	r := gin.New()

	r.Use(RecoveryMiddleware())
	r.Use(LoggerMiddleware())
	r.Use(CORSMiddleware())

	h := NewHandler(db, rdb, cfg)

	api := r.Group("/api/v1")

	// 支付渠道回调不走登录态
	api.POST("/pay/callback", h.PayCallback)

	authed := api.Group("")
	authed.Use(AuthMiddleware(rdb))
	{
		account := authed.Group("/account")
		{
			account.GET("/balance", h.GetBalance)
			account.GET("/records", h.GetRecords)
		}

		user := authed.Group("/user")
		{
			user.GET("/profile", h.GetProfile)
			user.PUT("/settings", h.UpdateSettings)
		}

		collision := authed.Group("/collision")
		{
			collision.POST("/submit", h.SubmitCode)
			collision.POST("/batch-submit", h.BatchSubmitCode)
			collision.GET("/mine", h.ListMyCodes)
			collision.GET("/detail", h.GetMyCode)
			collision.POST("/renew", h.RenewCode)
			collision.POST("/resubmit", h.ResubmitCode)
			collision.POST("/delete", h.DeleteCode)
			collision.GET("/search", h.SearchCodes)
			collision.GET("/hot-tags", h.HotTags)
		}

		match := authed.Group("/match")
		{
			match.GET("/list", h.ListMatches)
			match.GET("/detail", h.GetMatch)
			match.POST("/add-friend", h.AddFriend)
			match.POST("/skip", h.SkipMatch)
			match.POST("/force-add", h.ForceAdd)
			match.POST("/haidilao", h.Haidilao)
			match.POST("/send-email", h.SendEmail)
		}
	}

	// 健康检查
	r.GET("/health", func(c *gin.Context) {
		c.JSON(200, gin.H{"status": "ok"})
	})

	return r
}
