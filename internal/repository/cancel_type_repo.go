package repository

import (
	"context"

	"gorm.io/gorm"

	"immersion/backend/internal/model"
)

// CancelTypeRepository 取消原因数据访问接口
type CancelTypeRepository interface {
	GetByID(ctx context.Context, id string) (*model.CancelType, error)
	GetByCode(ctx context.Context, code string) (*model.CancelType, error)
	List(ctx context.Context) ([]model.CancelType, error)
}

type cancelTypeRepo struct {
	db *gorm.DB
}

// NewCancelTypeRepo 创建 CancelTypeRepository 实例
func NewCancelTypeRepo(db *gorm.DB) CancelTypeRepository {
	return &cancelTypeRepo{db: db}
}

func (r *cancelTypeRepo) GetByID(ctx context.Context, id string) (*model.CancelType, error) {
	var ct model.CancelType
	if err := r.db.WithContext(ctx).Where("cancel_type_id = ?", id).First(&ct).Error; err != nil {
		return nil, err
	}
	return &ct, nil
}

func (r *cancelTypeRepo) GetByCode(ctx context.Context, code string) (*model.CancelType, error) {
	var ct model.CancelType
	if err := r.db.WithContext(ctx).Where("code = ?", code).First(&ct).Error; err != nil {
		return nil, err
	}
	return &ct, nil
}

func (r *cancelTypeRepo) List(ctx context.Context) ([]model.CancelType, error) {
	var items []model.CancelType
	err := r.db.WithContext(ctx).Where("active = ?", true).Order("label").Find(&items).Error
	return items, err
}
