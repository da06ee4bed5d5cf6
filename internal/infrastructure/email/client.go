package email

import (
	"crypto/tls"
	"log"

	"gopkg.in/gomail.v2"

	"collisionsystem/internal/config"
)

// Mailer 邮件发送抽象，outbox 任务和测试都面向它
type Mailer interface {
	Send(to, subject, htmlBody string) error
}

// Client 基于 SMTP 的邮件客户端
type Client struct {
	cfg *config.EmailConfig
}

func NewClient(cfg *config.EmailConfig) *Client {
	return &Client{cfg: cfg}
}

func (c *Client) Send(to, subject, htmlBody string) error {
	m := gomail.NewMessage()
	// FormatAddress 可以带发件人别名，即"XX官方"
	m.SetHeader("From", m.FormatAddress(c.cfg.UserName, c.cfg.FromName))
	m.SetHeader("To", to)
	m.SetHeader("Subject", subject)
	m.SetBody("text/html", htmlBody)

	dialer := gomail.NewDialer(c.cfg.Host, c.cfg.Port, c.cfg.UserName, c.cfg.Password)
	dialer.TLSConfig = &tls.Config{InsecureSkipVerify: true}

	return dialer.DialAndSend(m)
}

// NopMailer 开发环境用：只打日志不真正外发
type NopMailer struct{}

func (NopMailer) Send(to, subject, _ string) error {
	log.Printf("[Email] 发送已关闭，丢弃邮件 to=%s subject=%s", to, subject)
	return nil
}

// NewMailer 按配置选择真实客户端或 Nop
func NewMailer(cfg *config.EmailConfig) Mailer {
	if cfg == nil || !cfg.Enabled {
		return NopMailer{}
	}
	return NewClient(cfg)
}
