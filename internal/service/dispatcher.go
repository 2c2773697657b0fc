package service

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"text/template"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"
	"gorm.io/gorm"

	"immersion/backend/internal/model"
	"immersion/backend/internal/repository"
	"immersion/backend/pkg/mailer"
	"immersion/backend/pkg/metrics"
)

// ── 通知分发 ──
//
// 核心服务只产生 Event，不关心格式。Dispatcher 负责：
//   - 按 dedup_key 写入 outbound_messages（重复执行的定时任务不会重复发送）
//   - 用 mail_templates 渲染主题与正文
//   - 通过 Mailer 投递并回写状态
// 配置了队列时 Emit 只入队，由 Run 在后台消费。

// Event 一次通知事件
type Event struct {
	Template    string                 `json:"template"`
	Recipients  []string               `json:"recipients"`
	Vars        map[string]interface{} `json:"vars"`
	DedupKey    string                 `json:"dedup_key,omitempty"` // 为空时不去重
	Attachments []mailer.Attachment    `json:"attachments,omitempty"`
}

// Notifier 通知事件的接收方
type Notifier interface {
	// Emit 尽力投递，失败只记录日志；返回成功投递（或入队）的消息数
	Emit(ctx context.Context, events ...Event) int
}

// NotificationQueue 通知队列（redis 实现）
type NotificationQueue interface {
	PushNotification(ctx context.Context, payload []byte) error
	PopNotification(ctx context.Context, timeout time.Duration) ([]byte, error)
}

// Dispatcher 通知分发器
type Dispatcher struct {
	repo    *repository.Repository
	mailer  mailer.Mailer
	queue   NotificationQueue
	metrics *metrics.Metrics
	clock   Clock
	logger  *zap.Logger
}

// NewDispatcher 创建 Dispatcher；queue 为 nil 时同步投递
func NewDispatcher(repo *repository.Repository, m mailer.Mailer, queue NotificationQueue, mt *metrics.Metrics, clock Clock, logger *zap.Logger) *Dispatcher {
	return &Dispatcher{repo: repo, mailer: m, queue: queue, metrics: mt, clock: clock, logger: logger}
}

// ────────────────────── Emit ──────────────────────

func (d *Dispatcher) Emit(ctx context.Context, events ...Event) int {
	n := 0
	for _, ev := range events {
		if len(ev.Recipients) == 0 {
			continue
		}
		if d.queue != nil {
			if err := d.enqueue(ctx, ev); err == nil {
				n += len(ev.Recipients)
				continue
			}
		}
		n += d.Deliver(ctx, ev)
	}
	return n
}

func (d *Dispatcher) enqueue(ctx context.Context, ev Event) error {
	payload, err := json.Marshal(ev)
	if err != nil {
		d.logger.Error("序列化通知事件失败", zap.String("template", ev.Template), zap.Error(err))
		return err
	}
	if err := d.queue.PushNotification(ctx, payload); err != nil {
		d.logger.Warn("通知入队失败，改为同步发送", zap.String("template", ev.Template), zap.Error(err))
		return err
	}
	return nil
}

// ────────────────────── Run ──────────────────────

// Run 消费通知队列直到 ctx 取消
func (d *Dispatcher) Run(ctx context.Context) {
	if d.queue == nil {
		return
	}
	d.logger.Info("通知队列消费者已启动")
	for {
		if ctx.Err() != nil {
			d.logger.Info("通知队列消费者已停止")
			return
		}
		payload, err := d.queue.PopNotification(ctx, 5*time.Second)
		if err != nil {
			if ctx.Err() != nil {
				continue
			}
			d.logger.Warn("读取通知队列失败", zap.Error(err))
			time.Sleep(time.Second)
			continue
		}
		if payload == nil {
			continue
		}
		var ev Event
		if err := json.Unmarshal(payload, &ev); err != nil {
			d.logger.Error("通知事件格式错误，已丢弃", zap.Error(err))
			continue
		}
		d.Deliver(ctx, ev)
	}
}

// ────────────────────── Deliver ──────────────────────

// Deliver 渲染并逐个收件人发送，返回成功发送数
func (d *Dispatcher) Deliver(ctx context.Context, ev Event) int {
	tpl, err := d.repo.Notification.GetTemplate(ctx, ev.Template)
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			d.logger.Warn("邮件模板缺失",
				zap.String("tag", TagConfigMissing),
				zap.String("template", ev.Template),
			)
		} else {
			d.logger.Error("读取邮件模板失败", zap.String("template", ev.Template), zap.Error(err))
		}
		d.metrics.IncNotification(ev.Template, model.MessageFailed)
		return 0
	}

	subject, body, err := Render(tpl, ev.Vars)
	if err != nil {
		d.logger.Error("渲染邮件模板失败", zap.String("template", ev.Template), zap.Error(err))
		d.metrics.IncNotification(ev.Template, model.MessageFailed)
		return 0
	}

	sent := 0
	for _, rcpt := range ev.Recipients {
		if rcpt == "" {
			continue
		}
		key := ev.DedupKey
		if key == "" {
			key = uuid.NewString()
		}
		msg := &model.OutboundMessage{
			Template:  ev.Template,
			Recipient: rcpt,
			DedupKey:  key + ":" + rcpt,
			Subject:   subject,
			Body:      body,
			Status:    model.MessageQueued,
		}
		created, err := d.repo.Notification.CreateMessage(ctx, msg)
		if err != nil {
			d.logger.Error("写入外发消息失败", zap.String("template", ev.Template), zap.Error(err))
			continue
		}
		if !created {
			d.logger.Debug("消息已发送或正在发送，跳过", zap.String("dedup_key", msg.DedupKey))
			continue
		}

		sendErr := d.mailer.Send(ctx, &mailer.Message{
			To:          []string{rcpt},
			Subject:     subject,
			Body:        body,
			Attachments: ev.Attachments,
		})
		if sendErr != nil {
			msg.Status = model.MessageFailed
			msg.Error = sendErr.Error()
			d.logger.Warn("邮件发送失败",
				zap.String("template", ev.Template),
				zap.String("recipient", rcpt),
				zap.Error(sendErr),
			)
		} else {
			now := d.clock.Now()
			msg.Status = model.MessageSent
			msg.SentAt = &now
			sent++
		}
		if err := d.repo.Notification.UpdateMessage(ctx, msg); err != nil {
			d.logger.Warn("更新外发消息状态失败", zap.String("message_id", msg.MessageID), zap.Error(err))
		}
		d.metrics.IncNotification(ev.Template, msg.Status)
	}
	return sent
}

// Render 用模板变量渲染主题与正文
func Render(tpl *model.MailTemplate, vars map[string]interface{}) (string, string, error) {
	subject, err := execute(tpl.Code+":subject", tpl.Subject, vars)
	if err != nil {
		return "", "", err
	}
	body, err := execute(tpl.Code+":body", tpl.Body, vars)
	if err != nil {
		return "", "", err
	}
	return subject, body, nil
}

func execute(name, text string, vars map[string]interface{}) (string, error) {
	t, err := template.New(name).Option("missingkey=zero").Parse(text)
	if err != nil {
		return "", fmt.Errorf("解析模板 %s 失败: %w", name, err)
	}
	var buf bytes.Buffer
	if err := t.Execute(&buf, vars); err != nil {
		return "", fmt.Errorf("渲染模板 %s 失败: %w", name, err)
	}
	return buf.String(), nil
}
