package repository

import (
	"context"

	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"immersion/backend/internal/model"
)

// EstablishmentRepository 机构、结构、高中与外部目录数据访问接口
type EstablishmentRepository interface {
	GetEstablishment(ctx context.Context, id string) (*model.Establishment, error)
	GetStructure(ctx context.Context, id string) (*model.Structure, error)
	GetHighSchool(ctx context.Context, id string) (*model.HighSchool, error)
	ListEstablishments(ctx context.Context) ([]model.Establishment, error)
	ListStructures(ctx context.Context) ([]model.Structure, error)
	ListHighSchools(ctx context.Context) ([]model.HighSchool, error)
	UpsertInstitutions(ctx context.Context, items []model.HigherEducationInstitution) error
	UpsertUAIs(ctx context.Context, items []model.UAI) error
}

type establishmentRepo struct {
	db *gorm.DB
}

// NewEstablishmentRepo 创建 EstablishmentRepository 实例
func NewEstablishmentRepo(db *gorm.DB) EstablishmentRepository {
	return &establishmentRepo{db: db}
}

func (r *establishmentRepo) GetEstablishment(ctx context.Context, id string) (*model.Establishment, error) {
	var e model.Establishment
	if err := r.db.WithContext(ctx).Where("establishment_id = ?", id).First(&e).Error; err != nil {
		return nil, err
	}
	return &e, nil
}

func (r *establishmentRepo) GetStructure(ctx context.Context, id string) (*model.Structure, error) {
	var s model.Structure
	err := r.db.WithContext(ctx).
		Preload("Establishment").
		Where("structure_id = ?", id).
		First(&s).Error
	if err != nil {
		return nil, err
	}
	return &s, nil
}

func (r *establishmentRepo) GetHighSchool(ctx context.Context, id string) (*model.HighSchool, error) {
	var h model.HighSchool
	if err := r.db.WithContext(ctx).Where("high_school_id = ?", id).First(&h).Error; err != nil {
		return nil, err
	}
	return &h, nil
}

func (r *establishmentRepo) ListEstablishments(ctx context.Context) ([]model.Establishment, error) {
	var items []model.Establishment
	err := r.db.WithContext(ctx).Where("active = ?", true).Order("label").Find(&items).Error
	return items, err
}

func (r *establishmentRepo) ListStructures(ctx context.Context) ([]model.Structure, error) {
	var items []model.Structure
	err := r.db.WithContext(ctx).Where("active = ?", true).Order("label").Find(&items).Error
	return items, err
}

func (r *establishmentRepo) ListHighSchools(ctx context.Context) ([]model.HighSchool, error) {
	var items []model.HighSchool
	err := r.db.WithContext(ctx).Where("active = ?", true).Order("label").Find(&items).Error
	return items, err
}

func (r *establishmentRepo) UpsertInstitutions(ctx context.Context, items []model.HigherEducationInstitution) error {
	if len(items) == 0 {
		return nil
	}
	return r.db.WithContext(ctx).
		Clauses(clause.OnConflict{
			Columns:   []clause.Column{{Name: "uai"}},
			DoUpdates: clause.AssignmentColumns([]string{"label", "city", "department", "country", "updated_at"}),
		}).
		CreateInBatches(items, 500).Error
}

func (r *establishmentRepo) UpsertUAIs(ctx context.Context, items []model.UAI) error {
	if len(items) == 0 {
		return nil
	}
	return r.db.WithContext(ctx).
		Clauses(clause.OnConflict{
			Columns:   []clause.Column{{Name: "code"}},
			DoUpdates: clause.AssignmentColumns([]string{"label", "city", "academy_label", "updated_at"}),
		}).
		CreateInBatches(items, 500).Error
}
