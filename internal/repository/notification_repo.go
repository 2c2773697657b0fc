package repository

import (
	"context"

	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"immersion/backend/internal/model"
)

// NotificationRepository 邮件模板与外发消息数据访问接口
type NotificationRepository interface {
	GetTemplate(ctx context.Context, code string) (*model.MailTemplate, error)
	// CreateMessage 按 dedup_key 幂等写入；已存在且未失败时 created 为 false，
	// 之前发送失败的行重新置为 queued 并返回 true，以便重试
	CreateMessage(ctx context.Context, msg *model.OutboundMessage) (created bool, err error)
	UpdateMessage(ctx context.Context, msg *model.OutboundMessage) error
	CountByStatus(ctx context.Context, status string) (int64, error)
}

type notificationRepo struct {
	db *gorm.DB
}

// NewNotificationRepo 创建 NotificationRepository 实例
func NewNotificationRepo(db *gorm.DB) NotificationRepository {
	return &notificationRepo{db: db}
}

func (r *notificationRepo) GetTemplate(ctx context.Context, code string) (*model.MailTemplate, error) {
	var tpl model.MailTemplate
	if err := r.db.WithContext(ctx).Where("code = ? AND active = ?", code, true).First(&tpl).Error; err != nil {
		return nil, err
	}
	return &tpl, nil
}

func (r *notificationRepo) CreateMessage(ctx context.Context, msg *model.OutboundMessage) (bool, error) {
	result := r.db.WithContext(ctx).
		Clauses(clause.OnConflict{
			Columns: []clause.Column{{Name: "dedup_key"}},
			DoUpdates: clause.Assignments(map[string]interface{}{
				"subject": msg.Subject,
				"body":    msg.Body,
				"status":  model.MessageQueued,
				"error":   "",
			}),
			Where: clause.Where{Exprs: []clause.Expression{
				gorm.Expr("outbound_messages.status = ?", model.MessageFailed),
			}},
		}).
		Create(msg)
	if result.Error != nil {
		return false, result.Error
	}
	return result.RowsAffected > 0, nil
}

func (r *notificationRepo) UpdateMessage(ctx context.Context, msg *model.OutboundMessage) error {
	return r.db.WithContext(ctx).
		Model(&model.OutboundMessage{}).
		Where("message_id = ?", msg.MessageID).
		Updates(map[string]interface{}{
			"subject": msg.Subject,
			"body":    msg.Body,
			"status":  msg.Status,
			"error":   msg.Error,
			"sent_at": msg.SentAt,
		}).Error
}

func (r *notificationRepo) CountByStatus(ctx context.Context, status string) (int64, error) {
	var n int64
	err := r.db.WithContext(ctx).Model(&model.OutboundMessage{}).Where("status = ?", status).Count(&n).Error
	return n, err
}
