package repository

import (
	"context"
	"time"

	"gorm.io/gorm"

	"immersion/backend/internal/model"
)

// SlotRepository 时段数据访问接口
type SlotRepository interface {
	Create(ctx context.Context, slot *model.Slot) error
	GetByID(ctx context.Context, id string) (*model.Slot, error)
	GetForUpdate(ctx context.Context, id string) (*model.Slot, error)
	Update(ctx context.Context, slot *model.Slot) error
	Delete(ctx context.Context, id string, deletedBy string) error
	ListByDateRange(ctx context.Context, from, to time.Time, publishedOnly bool) ([]model.Slot, error)
	ListByCourse(ctx context.Context, courseID string) ([]model.Slot, error)
	ListPendingClosedReminder(ctx context.Context, fromDate time.Time) ([]model.Slot, error)
	MarkReminderNotificationSent(ctx context.Context, id string) error
	DeleteAll(ctx context.Context) (int64, error)
}

type slotRepo struct {
	db *gorm.DB
}

// NewSlotRepo 创建 SlotRepository 实例
func NewSlotRepo(db *gorm.DB) SlotRepository {
	return &slotRepo{db: db}
}

func (r *slotRepo) Create(ctx context.Context, slot *model.Slot) error {
	return r.db.WithContext(ctx).Create(slot).Error
}

func (r *slotRepo) GetByID(ctx context.Context, id string) (*model.Slot, error) {
	var slot model.Slot
	err := r.db.WithContext(ctx).
		Preload("Course").
		Preload("Event").
		Where("slot_id = ?", id).
		First(&slot).Error
	if err != nil {
		return nil, err
	}
	return &slot, nil
}

// GetForUpdate 在事务内对时段加行锁
func (r *slotRepo) GetForUpdate(ctx context.Context, id string) (*model.Slot, error) {
	var slot model.Slot
	if err := forUpdate(r.db.WithContext(ctx)).Where("slot_id = ?", id).First(&slot).Error; err != nil {
		return nil, err
	}
	return &slot, nil
}

func (r *slotRepo) Update(ctx context.Context, slot *model.Slot) error {
	return r.db.WithContext(ctx).Omit("Course", "Event").Save(slot).Error
}

func (r *slotRepo) Delete(ctx context.Context, id string, deletedBy string) error {
	return r.db.WithContext(ctx).
		Model(&model.Slot{}).
		Where("slot_id = ?", id).
		Updates(map[string]interface{}{
			"deleted_by": deletedBy,
			"deleted_at": gorm.Expr("NOW()"),
		}).Error
}

// ListByDateRange 查询 [from, to] 日期内的时段（含首尾）
func (r *slotRepo) ListByDateRange(ctx context.Context, from, to time.Time, publishedOnly bool) ([]model.Slot, error) {
	var slots []model.Slot
	query := r.db.WithContext(ctx).
		Preload("Course").
		Preload("Event").
		Where("date >= ? AND date <= ?", from.Format(model.DateLayout), to.Format(model.DateLayout))
	if publishedOnly {
		query = query.Where("published = ?", true)
	}
	err := query.Order("date, start_time").Find(&slots).Error
	return slots, err
}

func (r *slotRepo) ListByCourse(ctx context.Context, courseID string) ([]model.Slot, error) {
	var slots []model.Slot
	err := r.db.WithContext(ctx).
		Where("course_id = ?", courseID).
		Order("date, start_time").
		Find(&slots).Error
	return slots, err
}

// ListPendingClosedReminder 尚未发送截止提醒的已发布时段
func (r *slotRepo) ListPendingClosedReminder(ctx context.Context, fromDate time.Time) ([]model.Slot, error) {
	var slots []model.Slot
	err := r.db.WithContext(ctx).
		Preload("Course").
		Preload("Event").
		Where("published = ? AND reminder_notification_sent = ? AND date >= ?", true, false, fromDate.Format(model.DateLayout)).
		Order("date, start_time").
		Find(&slots).Error
	return slots, err
}

func (r *slotRepo) MarkReminderNotificationSent(ctx context.Context, id string) error {
	return r.db.WithContext(ctx).
		Model(&model.Slot{}).
		Where("slot_id = ?", id).
		Update("reminder_notification_sent", true).Error
}

// DeleteAll 年度清理：物理删除全部时段
func (r *slotRepo) DeleteAll(ctx context.Context) (int64, error) {
	result := r.db.WithContext(ctx).Unscoped().Where("1 = 1").Delete(&model.Slot{})
	return result.RowsAffected, result.Error
}
