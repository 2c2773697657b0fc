package repository

import (
	"context"
	"time"

	"gorm.io/gorm"

	"immersion/backend/internal/model"
)

// ImmersionStats 报名统计
type ImmersionStats struct {
	Live      int64
	Cancelled int64
	Attended  int64
}

// ImmersionRepository 个人报名数据访问接口
// 报名记录只做取消标记，不提供删除单条记录的方法
type ImmersionRepository interface {
	Create(ctx context.Context, imm *model.Immersion) error
	GetByID(ctx context.Context, id string) (*model.Immersion, error)
	GetByIDForUpdate(ctx context.Context, id string) (*model.Immersion, error)
	Update(ctx context.Context, imm *model.Immersion) error
	FindLive(ctx context.Context, userID, slotID string) (*model.Immersion, error)
	CountLiveBySlot(ctx context.Context, slotID string) (int64, error)
	ListLiveByUser(ctx context.Context, userID string) ([]model.Immersion, error)
	ListBySlot(ctx context.Context, slotID string, liveOnly bool) ([]model.Immersion, error)
	ListLiveBySlots(ctx context.Context, slotIDs []string) ([]model.Immersion, error)
	ListLiveByUsersBetween(ctx context.Context, userIDs []string, from, to time.Time) ([]model.Immersion, error)
	ListPendingSurvey(ctx context.Context, until time.Time) ([]model.Immersion, error)
	ListLiveEmailsByStructure(ctx context.Context, structureID string) ([]string, error)
	MarkReminderSent(ctx context.Context, id string) error
	MarkSurveySent(ctx context.Context, id string) error
	Stats(ctx context.Context) (*ImmersionStats, error)
	DeleteAll(ctx context.Context) (int64, error)
}

type immersionRepo struct {
	db *gorm.DB
}

// NewImmersionRepo 创建 ImmersionRepository 实例
func NewImmersionRepo(db *gorm.DB) ImmersionRepository {
	return &immersionRepo{db: db}
}

func (r *immersionRepo) Create(ctx context.Context, imm *model.Immersion) error {
	return r.db.WithContext(ctx).Omit("Slot", "User").Create(imm).Error
}

func (r *immersionRepo) GetByID(ctx context.Context, id string) (*model.Immersion, error) {
	var imm model.Immersion
	err := r.db.WithContext(ctx).
		Preload("Slot").
		Preload("Slot.Course").
		Preload("Slot.Event").
		Preload("User").
		Where("immersion_id = ?", id).
		First(&imm).Error
	if err != nil {
		return nil, err
	}
	return &imm, nil
}

func (r *immersionRepo) GetByIDForUpdate(ctx context.Context, id string) (*model.Immersion, error) {
	var imm model.Immersion
	if err := forUpdate(r.db.WithContext(ctx)).Where("immersion_id = ?", id).First(&imm).Error; err != nil {
		return nil, err
	}
	return &imm, nil
}

func (r *immersionRepo) Update(ctx context.Context, imm *model.Immersion) error {
	return r.db.WithContext(ctx).Omit("Slot", "User").Save(imm).Error
}

// FindLive 查询 (user, slot) 的有效报名，不存在时返回 gorm.ErrRecordNotFound
func (r *immersionRepo) FindLive(ctx context.Context, userID, slotID string) (*model.Immersion, error) {
	var imm model.Immersion
	err := r.db.WithContext(ctx).
		Where("user_id = ? AND slot_id = ? AND cancellation_type_id IS NULL", userID, slotID).
		First(&imm).Error
	if err != nil {
		return nil, err
	}
	return &imm, nil
}

func (r *immersionRepo) CountLiveBySlot(ctx context.Context, slotID string) (int64, error) {
	var n int64
	err := r.db.WithContext(ctx).
		Model(&model.Immersion{}).
		Where("slot_id = ? AND cancellation_type_id IS NULL", slotID).
		Count(&n).Error
	return n, err
}

// ListLiveByUser 用户的全部有效报名（附带时段），供配额计算使用
func (r *immersionRepo) ListLiveByUser(ctx context.Context, userID string) ([]model.Immersion, error) {
	var items []model.Immersion
	err := r.db.WithContext(ctx).
		Preload("Slot").
		Where("user_id = ? AND cancellation_type_id IS NULL", userID).
		Find(&items).Error
	return items, err
}

func (r *immersionRepo) ListBySlot(ctx context.Context, slotID string, liveOnly bool) ([]model.Immersion, error) {
	var items []model.Immersion
	query := r.db.WithContext(ctx).Preload("User").Where("slot_id = ?", slotID)
	if liveOnly {
		query = query.Where("cancellation_type_id IS NULL")
	}
	err := query.Order("registration_date").Find(&items).Error
	return items, err
}

func (r *immersionRepo) ListLiveBySlots(ctx context.Context, slotIDs []string) ([]model.Immersion, error) {
	var items []model.Immersion
	if len(slotIDs) == 0 {
		return items, nil
	}
	err := r.db.WithContext(ctx).
		Preload("User").
		Preload("Slot").
		Where("slot_id IN ? AND cancellation_type_id IS NULL", slotIDs).
		Order("registration_date").
		Find(&items).Error
	return items, err
}

// ListLiveByUsersBetween 指定用户在 [from, to] 日期内时段上的有效报名
func (r *immersionRepo) ListLiveByUsersBetween(ctx context.Context, userIDs []string, from, to time.Time) ([]model.Immersion, error) {
	var items []model.Immersion
	if len(userIDs) == 0 {
		return items, nil
	}
	err := r.db.WithContext(ctx).
		Preload("Slot").
		Preload("User").
		Joins("JOIN slots ON slots.slot_id = immersions.slot_id").
		Where("immersions.user_id IN ? AND immersions.cancellation_type_id IS NULL", userIDs).
		Where("slots.date >= ? AND slots.date <= ?", from.Format(model.DateLayout), to.Format(model.DateLayout)).
		Find(&items).Error
	return items, err
}

// ListPendingSurvey 时段日期不晚于 until、尚未发送评价邮件的有效报名
func (r *immersionRepo) ListPendingSurvey(ctx context.Context, until time.Time) ([]model.Immersion, error) {
	var items []model.Immersion
	err := r.db.WithContext(ctx).
		Preload("Slot").
		Preload("Slot.Course").
		Preload("Slot.Event").
		Preload("User").
		Joins("JOIN slots ON slots.slot_id = immersions.slot_id").
		Where("immersions.cancellation_type_id IS NULL AND immersions.survey_email_sent = ?", false).
		Where("slots.date <= ?", until.Format(model.DateLayout)).
		Find(&items).Error
	return items, err
}

// ListLiveEmailsByStructure 在结构下至少有一条有效报名的用户邮箱
func (r *immersionRepo) ListLiveEmailsByStructure(ctx context.Context, structureID string) ([]string, error) {
	var emails []string
	err := r.db.WithContext(ctx).
		Model(&model.Immersion{}).
		Distinct("users.email").
		Joins("JOIN slots ON slots.slot_id = immersions.slot_id").
		Joins("JOIN users ON users.user_id = immersions.user_id").
		Where("immersions.cancellation_type_id IS NULL AND slots.structure_id = ?", structureID).
		Order("users.email").
		Pluck("users.email", &emails).Error
	return emails, err
}

func (r *immersionRepo) MarkReminderSent(ctx context.Context, id string) error {
	return r.db.WithContext(ctx).
		Model(&model.Immersion{}).
		Where("immersion_id = ?", id).
		Update("reminder_sent", true).Error
}

func (r *immersionRepo) MarkSurveySent(ctx context.Context, id string) error {
	return r.db.WithContext(ctx).
		Model(&model.Immersion{}).
		Where("immersion_id = ?", id).
		Update("survey_email_sent", true).Error
}

func (r *immersionRepo) Stats(ctx context.Context) (*ImmersionStats, error) {
	var stats ImmersionStats
	err := r.db.WithContext(ctx).
		Model(&model.Immersion{}).
		Select(`COUNT(*) FILTER (WHERE cancellation_type_id IS NULL) AS live,
			COUNT(*) FILTER (WHERE cancellation_type_id IS NOT NULL) AS cancelled,
			COUNT(*) FILTER (WHERE attendance_status = ?) AS attended`, model.AttendanceAttended).
		Scan(&stats).Error
	if err != nil {
		return nil, err
	}
	return &stats, nil
}

// DeleteAll 年度清理：物理删除全部报名
func (r *immersionRepo) DeleteAll(ctx context.Context) (int64, error) {
	result := r.db.WithContext(ctx).Where("1 = 1").Delete(&model.Immersion{})
	return result.RowsAffected, result.Error
}
