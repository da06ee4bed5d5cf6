package handler

import (
	"log"
	"strconv"
	"strings"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/go-redis/redis/v8"

	"collisionsystem/pkg/response"
)

// LoggerMiddleware 日志中间件
func LoggerMiddleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()
		path := c.Request.URL.Path
		query := c.Request.URL.RawQuery

		c.Next()

		latency := time.Since(start)
		status := c.Writer.Status()

		if query != "" {
			path = path + "?" + query
		}

		log.Printf("[HTTP] %d | %13v | %15s | %-7s %s",
			status,
			latency,
			c.ClientIP(),
			c.Request.Method,
			path,
		)
	}
}

// RecoveryMiddleware 恢复中间件，防止 panic 导致服务崩溃
func RecoveryMiddleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		defer func() {
			if err := recover(); err != nil {
				log.Printf("[PANIC] %v", err)
				c.AbortWithStatusJSON(500, gin.H{
					"code": 500,
					"msg":  "服务器内部错误",
				})
			}
		}()
		c.Next()
	}
}

// CORSMiddleware 跨域中间件
func CORSMiddleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		c.Header("Access-Control-Allow-Origin", "*")
		c.Header("Access-Control-Allow-Methods", "GET, POST, PUT, DELETE, OPTIONS")
		c.Header("Access-Control-Allow-Headers", "Origin, Content-Type, Authorization, X-Request-ID")

		if c.Request.Method == "OPTIONS" {
			c.AbortWithStatus(204)
			return
		}

		c.Next()
	}
}

const ctxUserIDKey = "user_id"

// AuthMiddleware 登录态校验
// 小程序登录后服务端在 Redis 写 auth:token:<token> -> userID，
// 这里只做 token 换 userID，换不到回 HTTP 401 触发客户端静默重登。
func AuthMiddleware(rdb *redis.Client) gin.HandlerFunc {
	return func(c *gin.Context) {
		token := strings.TrimPrefix(c.GetHeader("Authorization"), "Bearer ")
		if token == "" || rdb == nil {
			response.Unauthorized(c)
			return
		}

		val, err := rdb.Get(c.Request.Context(), "auth:token:"+token).Result()
		if err != nil {
			response.Unauthorized(c)
			return
		}

		userID, err := strconv.ParseInt(val, 10, 64)
		if err != nil || userID <= 0 {
			response.Unauthorized(c)
			return
		}

		c.Set(ctxUserIDKey, userID)
		c.Next()
	}
}

// currentUserID 取 AuthMiddleware 放进上下文的用户ID
func currentUserID(c *gin.Context) int64 {
	return c.GetInt64(ctxUserIDKey)
}
