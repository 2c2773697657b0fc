package repository

import (
	"context"

	"gorm.io/gorm"

	"immersion/backend/internal/model"
)

// CampusRepository 校区与楼宇数据访问接口
type CampusRepository interface {
	GetCampus(ctx context.Context, id string) (*model.Campus, error)
	GetBuilding(ctx context.Context, id string) (*model.Building, error)
	ListCampuses(ctx context.Context, establishmentID string) ([]model.Campus, error)
}

type campusRepo struct {
	db *gorm.DB
}

// NewCampusRepo 创建 CampusRepository 实例
func NewCampusRepo(db *gorm.DB) CampusRepository {
	return &campusRepo{db: db}
}

func (r *campusRepo) GetCampus(ctx context.Context, id string) (*model.Campus, error) {
	var c model.Campus
	if err := r.db.WithContext(ctx).Where("campus_id = ?", id).First(&c).Error; err != nil {
		return nil, err
	}
	return &c, nil
}

func (r *campusRepo) GetBuilding(ctx context.Context, id string) (*model.Building, error) {
	var b model.Building
	if err := r.db.WithContext(ctx).Where("building_id = ?", id).First(&b).Error; err != nil {
		return nil, err
	}
	return &b, nil
}

func (r *campusRepo) ListCampuses(ctx context.Context, establishmentID string) ([]model.Campus, error) {
	var items []model.Campus
	db := r.db.WithContext(ctx).Where("active = ?", true)
	if establishmentID != "" {
		db = db.Where("establishment_id = ?", establishmentID)
	}
	err := db.Order("label ASC").Find(&items).Error
	return items, err
}
