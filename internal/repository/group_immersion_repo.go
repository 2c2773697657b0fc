package repository

import (
	"context"

	"gorm.io/gorm"

	"immersion/backend/internal/model"
)

// GroupImmersionRepository 团体报名数据访问接口
type GroupImmersionRepository interface {
	Create(ctx context.Context, g *model.GroupImmersion) error
	GetByID(ctx context.Context, id string) (*model.GroupImmersion, error)
	GetByIDForUpdate(ctx context.Context, id string) (*model.GroupImmersion, error)
	Update(ctx context.Context, g *model.GroupImmersion) error
	ListLiveBySlot(ctx context.Context, slotID string) ([]model.GroupImmersion, error)
	FindLiveByHighSchool(ctx context.Context, highSchoolID, slotID string) (*model.GroupImmersion, error)
	CountLive(ctx context.Context) (int64, error)
	DeleteAll(ctx context.Context) (int64, error)
}

type groupImmersionRepo struct {
	db *gorm.DB
}

// NewGroupImmersionRepo 创建 GroupImmersionRepository 实例
func NewGroupImmersionRepo(db *gorm.DB) GroupImmersionRepository {
	return &groupImmersionRepo{db: db}
}

func (r *groupImmersionRepo) Create(ctx context.Context, g *model.GroupImmersion) error {
	return r.db.WithContext(ctx).Omit("Slot").Create(g).Error
}

func (r *groupImmersionRepo) GetByID(ctx context.Context, id string) (*model.GroupImmersion, error) {
	var g model.GroupImmersion
	err := r.db.WithContext(ctx).
		Preload("Slot").
		Where("group_immersion_id = ?", id).
		First(&g).Error
	if err != nil {
		return nil, err
	}
	return &g, nil
}

func (r *groupImmersionRepo) GetByIDForUpdate(ctx context.Context, id string) (*model.GroupImmersion, error) {
	var g model.GroupImmersion
	if err := forUpdate(r.db.WithContext(ctx)).Where("group_immersion_id = ?", id).First(&g).Error; err != nil {
		return nil, err
	}
	return &g, nil
}

func (r *groupImmersionRepo) Update(ctx context.Context, g *model.GroupImmersion) error {
	return r.db.WithContext(ctx).Omit("Slot").Save(g).Error
}

func (r *groupImmersionRepo) ListLiveBySlot(ctx context.Context, slotID string) ([]model.GroupImmersion, error) {
	var items []model.GroupImmersion
	err := r.db.WithContext(ctx).
		Where("slot_id = ? AND cancellation_type_id IS NULL", slotID).
		Order("registration_date").
		Find(&items).Error
	return items, err
}

func (r *groupImmersionRepo) FindLiveByHighSchool(ctx context.Context, highSchoolID, slotID string) (*model.GroupImmersion, error) {
	var g model.GroupImmersion
	err := r.db.WithContext(ctx).
		Where("high_school_id = ? AND slot_id = ? AND cancellation_type_id IS NULL", highSchoolID, slotID).
		First(&g).Error
	if err != nil {
		return nil, err
	}
	return &g, nil
}

func (r *groupImmersionRepo) CountLive(ctx context.Context) (int64, error) {
	var n int64
	err := r.db.WithContext(ctx).
		Model(&model.GroupImmersion{}).
		Where("cancellation_type_id IS NULL").
		Count(&n).Error
	return n, err
}

func (r *groupImmersionRepo) DeleteAll(ctx context.Context) (int64, error) {
	result := r.db.WithContext(ctx).Where("1 = 1").Delete(&model.GroupImmersion{})
	return result.RowsAffected, result.Error
}
