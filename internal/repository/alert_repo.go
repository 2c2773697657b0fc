package repository

import (
	"context"

	"gorm.io/gorm"

	"immersion/backend/internal/model"
)

// AlertRepository 课程名额提醒数据访问接口
type AlertRepository interface {
	Create(ctx context.Context, alert *model.UserCourseAlert) error
	ExistsPending(ctx context.Context, email, courseID string) (bool, error)
	Delete(ctx context.Context, email, courseID string) (int64, error)
	ListPending(ctx context.Context, courseID string) ([]model.UserCourseAlert, error)
	MarkSent(ctx context.Context, ids []string) error
	DeleteAll(ctx context.Context) (int64, error)
}

type alertRepo struct {
	db *gorm.DB
}

// NewAlertRepo 创建 AlertRepository 实例
func NewAlertRepo(db *gorm.DB) AlertRepository {
	return &alertRepo{db: db}
}

func (r *alertRepo) Create(ctx context.Context, alert *model.UserCourseAlert) error {
	return r.db.WithContext(ctx).Omit("Course").Create(alert).Error
}

func (r *alertRepo) ExistsPending(ctx context.Context, email, courseID string) (bool, error) {
	var n int64
	err := r.db.WithContext(ctx).
		Model(&model.UserCourseAlert{}).
		Where("lower(email) = lower(?) AND course_id = ? AND email_sent = ?", email, courseID, false).
		Count(&n).Error
	return n > 0, err
}

func (r *alertRepo) Delete(ctx context.Context, email, courseID string) (int64, error) {
	result := r.db.WithContext(ctx).
		Where("lower(email) = lower(?) AND course_id = ? AND email_sent = ?", email, courseID, false).
		Delete(&model.UserCourseAlert{})
	return result.RowsAffected, result.Error
}

// ListPending 待发送的提醒，courseID 为空时返回全部课程
func (r *alertRepo) ListPending(ctx context.Context, courseID string) ([]model.UserCourseAlert, error) {
	var items []model.UserCourseAlert
	query := r.db.WithContext(ctx).Preload("Course").Where("email_sent = ?", false)
	if courseID != "" {
		query = query.Where("course_id = ?", courseID)
	}
	err := query.Order("created_at").Find(&items).Error
	return items, err
}

func (r *alertRepo) MarkSent(ctx context.Context, ids []string) error {
	if len(ids) == 0 {
		return nil
	}
	return r.db.WithContext(ctx).
		Model(&model.UserCourseAlert{}).
		Where("alert_id IN ?", ids).
		Update("email_sent", true).Error
}

func (r *alertRepo) DeleteAll(ctx context.Context) (int64, error) {
	result := r.db.WithContext(ctx).Where("1 = 1").Delete(&model.UserCourseAlert{})
	return result.RowsAffected, result.Error
}
