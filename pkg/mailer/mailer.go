// Package mailer 发送通知邮件
package mailer

import (
	"bytes"
	"context"
	"fmt"
	"net"
	"time"

	"github.com/wneessen/go-mail"
	"go.uber.org/zap"

	"immersion/backend/config"
)

// 未配置 mail.timeout 时的单封时限
const defaultTimeout = 10 * time.Second

// Attachment 邮件附件
type Attachment struct {
	Filename    string
	ContentType string
	Content     []byte
}

// Message 一封待发送的邮件
type Message struct {
	To          []string
	Subject     string
	Body        string
	Attachments []Attachment
}

// Mailer 邮件发送接口
type Mailer interface {
	Send(ctx context.Context, msg *Message) error
}

// New 根据配置返回 SMTP 发送器；mail.disabled 或未配置主机时返回只写日志的发送器
func New(cfg *config.MailConfig, logger *zap.Logger) Mailer {
	if cfg.Disabled || cfg.SMTPHost == "" {
		return &LogMailer{logger: logger}
	}
	return &SMTPMailer{cfg: *cfg, logger: logger}
}

// ────────────────────── SMTP ──────────────────────

// SMTPMailer 基于 go-mail 的发送器，每封邮件独立连接
type SMTPMailer struct {
	cfg    config.MailConfig
	logger *zap.Logger
}

func (m *SMTPMailer) timeout() time.Duration {
	if m.cfg.Timeout > 0 {
		return m.cfg.Timeout
	}
	return defaultTimeout
}

// Send 发送邮件；连接、握手与投递都受 ctx 与 mail.timeout 约束
func (m *SMTPMailer) Send(ctx context.Context, msg *Message) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	if len(msg.To) == 0 {
		return fmt.Errorf("邮件缺少收件人")
	}

	gm, err := Build(m.cfg.From, msg, time.Now())
	if err != nil {
		return err
	}
	client, err := mail.NewClient(m.cfg.SMTPHost, m.clientOptions()...)
	if err != nil {
		return fmt.Errorf("初始化 SMTP 客户端失败: %w", err)
	}

	ctx, cancel := context.WithTimeout(ctx, m.timeout())
	defer cancel()
	if err := client.DialAndSendWithContext(ctx, gm); err != nil {
		return fmt.Errorf("SMTP 发送失败: %w", err)
	}

	m.logger.Debug("邮件已发送", zap.Strings("to", msg.To), zap.String("subject", msg.Subject))
	return nil
}

func (m *SMTPMailer) clientOptions() []mail.Option {
	opts := []mail.Option{
		mail.WithTimeout(m.timeout()),
		mail.WithTLSPolicy(tlsPolicy(m.cfg.TLS)),
		mail.WithDialContextFunc(dialWithDeadline),
	}
	if m.cfg.SMTPPort > 0 {
		opts = append(opts, mail.WithPort(m.cfg.SMTPPort))
	}
	if m.cfg.Username != "" {
		opts = append(opts,
			mail.WithSMTPAuth(mail.SMTPAuthPlain),
			mail.WithUsername(m.cfg.Username),
			mail.WithPassword(m.cfg.Password),
		)
	}
	return opts
}

// dialWithDeadline 把拨号 ctx 的截止时间设到连接上，
// 服务器接受连接却不发送问候时读取同样会超时
func dialWithDeadline(ctx context.Context, network, address string) (net.Conn, error) {
	var d net.Dialer
	conn, err := d.DialContext(ctx, network, address)
	if err != nil {
		return nil, err
	}
	if deadline, ok := ctx.Deadline(); ok {
		if err := conn.SetDeadline(deadline); err != nil {
			conn.Close()
			return nil, err
		}
	}
	return conn, nil
}

func tlsPolicy(v string) mail.TLSPolicy {
	switch v {
	case "mandatory":
		return mail.TLSMandatory
	case "none":
		return mail.NoTLS
	default:
		return mail.TLSOpportunistic
	}
}

// ────────────────────── Log ──────────────────────

// LogMailer 仅记录日志，不真正投递（开发与测试环境）
type LogMailer struct {
	logger *zap.Logger
}

// Send 记录邮件摘要
func (m *LogMailer) Send(_ context.Context, msg *Message) error {
	m.logger.Info("邮件发送已禁用，仅记录",
		zap.Strings("to", msg.To),
		zap.String("subject", msg.Subject),
		zap.Int("attachments", len(msg.Attachments)),
	)
	return nil
}

// ────────────────────── MIME ──────────────────────

// Build 组装邮件；有附件时为 multipart/mixed
func Build(from string, msg *Message, date time.Time) (*mail.Msg, error) {
	m := mail.NewMsg(mail.WithCharset(mail.CharsetUTF8))
	if err := m.From(from); err != nil {
		return nil, fmt.Errorf("发件人无效: %w", err)
	}
	if err := m.To(msg.To...); err != nil {
		return nil, fmt.Errorf("收件人无效: %w", err)
	}
	m.Subject(msg.Subject)
	m.SetDateWithValue(date)
	m.SetBodyString(mail.TypeTextPlain, msg.Body)

	for _, a := range msg.Attachments {
		ct := mail.TypeAppOctetStream
		if a.ContentType != "" {
			ct = mail.ContentType(a.ContentType)
		}
		if err := m.AttachReader(a.Filename, bytes.NewReader(a.Content), mail.WithFileContentType(ct)); err != nil {
			return nil, fmt.Errorf("添加附件 %s 失败: %w", a.Filename, err)
		}
	}
	return m, nil
}
