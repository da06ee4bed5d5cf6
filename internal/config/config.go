package config

import (
	"log"
	"time"

	"github.com/spf13/viper"
)

// Config 全局配置结构
type Config struct {
	Server   ServerConfig   `mapstructure:"server"`
	MySQL    MySQLConfig    `mapstructure:"mysql"`
	Redis    RedisConfig    `mapstructure:"redis"`
	Kafka    KafkaConfig    `mapstructure:"kafka"`
	Email    EmailConfig    `mapstructure:"email"`
	Business BusinessConfig `mapstructure:"business"`
}

type ServerConfig struct {
	Port int `mapstructure:"port"`
}

type MySQLConfig struct {
	Host         string `mapstructure:"host"`
	Port         int    `mapstructure:"port"`
	User         string `mapstructure:"user"`
	Password     string `mapstructure:"password"`
	Database     string `mapstructure:"database"`
	MaxOpenConns int    `mapstructure:"max_open_conns"`
	MaxIdleConns int    `mapstructure:"max_idle_conns"`
}

type RedisConfig struct {
	Host     string `mapstructure:"host"`
	Port     int    `mapstructure:"port"`
	Password string `mapstructure:"password"`
	DB       int    `mapstructure:"db"`
}

type KafkaConfig struct {
	Brokers []string         `mapstructure:"brokers"`
	Topic   KafkaTopicConfig `mapstructure:"topic"`
}

type KafkaTopicConfig struct {
	MatchCreated string `mapstructure:"match_created"`
}

// EmailConfig SMTP 发信配置
// Enabled=false 时邮件只落库不外发（开发环境用）
type EmailConfig struct {
	Enabled  bool   `mapstructure:"enabled"`
	Host     string `mapstructure:"host"`
	Port     int    `mapstructure:"port"`
	UserName string `mapstructure:"username"`
	Password string `mapstructure:"password"`
	FromName string `mapstructure:"from_name"`
}

// BusinessConfig 业务参数
type BusinessConfig struct {
	SubmitCostCoins   int64 `mapstructure:"submit_cost_coins"`    // 发布碰撞码单价
	RenewCostCoins    int64 `mapstructure:"renew_cost_coins"`     // 续期单价（每天）
	ForceAddCostCoins int64 `mapstructure:"force_add_cost_coins"` // 强制加好友
	HaidilaoCostCoins int64 `mapstructure:"haidilao_cost_coins"`  // 海底捞
	EmailCostCoins    int64 `mapstructure:"email_cost_coins"`     // 给匹配对象发邮件
	ValidityHours     int   `mapstructure:"validity_hours"`       // 碰撞码有效时长（小时）
	BatchSubmitLimit  int   `mapstructure:"batch_submit_limit"`   // 单次批量提交上限
	EnableAudit       bool  `mapstructure:"enable_audit"`         // 新碰撞码是否先进审核
	AllowMultiMatch   bool  `mapstructure:"allow_multi_match"`    // 已匹配的码是否继续参与匹配
	SweepIntervalSec  int   `mapstructure:"sweep_interval_sec"`   // 周期匹配扫描间隔（秒）
	MaxRetryCount     int   `mapstructure:"max_retry_count"`      // outbox/邮件最大重试次数
	HotTagCacheTTLMs  int   `mapstructure:"hot_tag_cache_ttl_ms"` // 热门标签读缓存 TTL
	SearchResultLimit int   `mapstructure:"search_result_limit"`  // 关键词搜索返回上限
	MatchWindowHours  int   `mapstructure:"match_window_hours"`   // 免费加好友窗口（小时）
	EmailContentLimit int   `mapstructure:"email_content_limit"`  // 邮件正文最大字数
}

// Validity 碰撞码有效时长
func (b BusinessConfig) Validity() time.Duration {
	return time.Duration(b.ValidityHours) * time.Hour
}

// MatchWindow 免费加好友窗口时长
func (b BusinessConfig) MatchWindow() time.Duration {
	return time.Duration(b.MatchWindowHours) * time.Hour
}

var GlobalConfig *Config

// LoadConfig 加载配置文件
func LoadConfig(configPath string) *Config {
	viper.SetConfigFile(configPath)
	viper.SetConfigType("yaml")

	if err := viper.ReadInConfig(); err != nil {
		log.Fatalf("读取配置文件失败: %v", err)
	}

	config := &Config{}
	if err := viper.Unmarshal(config); err != nil {
		log.Fatalf("解析配置文件失败: %v", err)
	}

	GlobalConfig = config
	return config
}

// Default 测试和本地调试用的缺省业务参数
func Default() *Config {
	return &Config{
		Business: BusinessConfig{
			SubmitCostCoins:   10,
			RenewCostCoins:    10,
			ForceAddCostCoins: 50,
			HaidilaoCostCoins: 100,
			EmailCostCoins:    1,
			ValidityHours:     24,
			BatchSubmitLimit:  50,
			EnableAudit:       false,
			AllowMultiMatch:   true,
			SweepIntervalSec:  300,
			MaxRetryCount:     5,
			HotTagCacheTTLMs:  5000,
			SearchResultLimit: 50,
			MatchWindowHours:  24,
			EmailContentLimit: 500,
		},
	}
}
