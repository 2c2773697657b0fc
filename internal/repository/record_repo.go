package repository

import (
	"context"
	"time"

	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"immersion/backend/internal/model"
)

// RecordRepository 档案、证明与个人配额数据访问接口
type RecordRepository interface {
	GetByID(ctx context.Context, id string) (*model.Record, error)
	GetByUserID(ctx context.Context, userID string) (*model.Record, error)
	GetByUserIDForUpdate(ctx context.Context, userID string) (*model.Record, error)
	Update(ctx context.Context, record *model.Record) error
	ListAttestations(ctx context.Context, recordID string) ([]model.Attestation, error)
	ArchiveAttestations(ctx context.Context, ids []string) error
	ListQuotas(ctx context.Context, recordID string) ([]model.RecordQuota, error)
	UpsertQuota(ctx context.Context, quota *model.RecordQuota) error
	CountToValidateByHighSchool(ctx context.Context) (map[string]int64, error)
	ListUserIDsWithExpiredAttestations(ctx context.Context, today time.Time) ([]string, error)
	CountByKind(ctx context.Context) (map[string]int64, error)
}

type recordRepo struct {
	db *gorm.DB
}

// NewRecordRepo 创建 RecordRepository 实例
func NewRecordRepo(db *gorm.DB) RecordRepository {
	return &recordRepo{db: db}
}

func (r *recordRepo) GetByID(ctx context.Context, id string) (*model.Record, error) {
	var record model.Record
	err := r.db.WithContext(ctx).
		Preload("User").
		Where("record_id = ?", id).
		First(&record).Error
	if err != nil {
		return nil, err
	}
	return &record, nil
}

func (r *recordRepo) GetByUserID(ctx context.Context, userID string) (*model.Record, error) {
	var record model.Record
	if err := r.db.WithContext(ctx).Where("user_id = ?", userID).First(&record).Error; err != nil {
		return nil, err
	}
	return &record, nil
}

// GetByUserIDForUpdate 对档案加行锁，串行化同一人的并发报名
func (r *recordRepo) GetByUserIDForUpdate(ctx context.Context, userID string) (*model.Record, error) {
	var record model.Record
	if err := forUpdate(r.db.WithContext(ctx)).Where("user_id = ?", userID).First(&record).Error; err != nil {
		return nil, err
	}
	return &record, nil
}

func (r *recordRepo) Update(ctx context.Context, record *model.Record) error {
	return r.db.WithContext(ctx).Omit("User").Save(record).Error
}

func (r *recordRepo) ListAttestations(ctx context.Context, recordID string) ([]model.Attestation, error) {
	var items []model.Attestation
	err := r.db.WithContext(ctx).
		Where("record_id = ? AND archived = ?", recordID, false).
		Find(&items).Error
	return items, err
}

func (r *recordRepo) ArchiveAttestations(ctx context.Context, ids []string) error {
	if len(ids) == 0 {
		return nil
	}
	return r.db.WithContext(ctx).
		Model(&model.Attestation{}).
		Where("attestation_id IN ?", ids).
		Update("archived", true).Error
}

func (r *recordRepo) ListQuotas(ctx context.Context, recordID string) ([]model.RecordQuota, error) {
	var items []model.RecordQuota
	err := r.db.WithContext(ctx).Where("record_id = ?", recordID).Find(&items).Error
	return items, err
}

func (r *recordRepo) UpsertQuota(ctx context.Context, quota *model.RecordQuota) error {
	return r.db.WithContext(ctx).
		Clauses(clause.OnConflict{
			Columns:   []clause.Column{{Name: "record_id"}, {Name: "period_id"}},
			DoUpdates: clause.AssignmentColumns([]string{"allowed_immersions", "updated_at"}),
		}).
		Create(quota).Error
}

// CountToValidateByHighSchool 各高中待审核的高中生档案数
func (r *recordRepo) CountToValidateByHighSchool(ctx context.Context) (map[string]int64, error) {
	var rows []struct {
		HighSchoolID string
		Total        int64
	}
	err := r.db.WithContext(ctx).
		Model(&model.Record{}).
		Select("high_school_id, COUNT(*) AS total").
		Where("kind = ? AND validation IN ? AND high_school_id IS NOT NULL",
			model.RecordKindPupil, []string{model.ValidationToValidate, model.ValidationToRevalidate}).
		Group("high_school_id").
		Scan(&rows).Error
	if err != nil {
		return nil, err
	}
	result := make(map[string]int64, len(rows))
	for _, row := range rows {
		result[row.HighSchoolID] = row.Total
	}
	return result, nil
}

// ListUserIDsWithExpiredAttestations 存在必需证明已过期（validity_date < today）的用户
func (r *recordRepo) ListUserIDsWithExpiredAttestations(ctx context.Context, today time.Time) ([]string, error) {
	var ids []string
	err := r.db.WithContext(ctx).
		Model(&model.Attestation{}).
		Distinct("records.user_id").
		Joins("JOIN records ON records.record_id = attestations.record_id").
		Where("attestations.mandatory = ? AND attestations.requires_validity_date = ? AND attestations.archived = ?", true, true, false).
		Where("attestations.validity_date IS NOT NULL AND attestations.validity_date < ?", today.Format(model.DateLayout)).
		Pluck("records.user_id", &ids).Error
	return ids, err
}

func (r *recordRepo) CountByKind(ctx context.Context) (map[string]int64, error) {
	var rows []struct {
		Kind  string
		Total int64
	}
	err := r.db.WithContext(ctx).
		Model(&model.Record{}).
		Select("kind, COUNT(*) AS total").
		Group("kind").
		Scan(&rows).Error
	if err != nil {
		return nil, err
	}
	result := make(map[string]int64, len(rows))
	for _, row := range rows {
		result[row.Kind] = row.Total
	}
	return result, nil
}
