package repository

import (
	"context"

	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"immersion/backend/internal/model"
)

// StatsRepository 年度统计数据访问接口
type StatsRepository interface {
	Collect(ctx context.Context, yearLabel string) (*model.AnnualStatistic, error)
	Save(ctx context.Context, stat *model.AnnualStatistic) error
}

type statsRepo struct {
	db *gorm.DB
}

// NewStatsRepo 创建 StatsRepository 实例
func NewStatsRepo(db *gorm.DB) StatsRepository {
	return &statsRepo{db: db}
}

// Collect 汇总当前库中的报名数据
func (r *statsRepo) Collect(ctx context.Context, yearLabel string) (*model.AnnualStatistic, error) {
	db := r.db.WithContext(ctx)
	stat := &model.AnnualStatistic{YearLabel: yearLabel}

	// 按档案类型统计至少有一条有效报名的人数
	var byKind []struct {
		Kind  string
		Total int
	}
	err := db.Model(&model.Record{}).
		Select("records.kind AS kind, COUNT(DISTINCT records.user_id) AS total").
		Joins("JOIN immersions ON immersions.user_id = records.user_id AND immersions.cancellation_type_id IS NULL").
		Group("records.kind").
		Scan(&byKind).Error
	if err != nil {
		return nil, err
	}
	for _, row := range byKind {
		switch row.Kind {
		case model.RecordKindPupil:
			stat.PupilsRegistered = row.Total
		case model.RecordKindStudent:
			stat.StudentsRegistered = row.Total
		case model.RecordKindVisitor:
			stat.VisitorsRegistered = row.Total
		}
	}

	immStats, err := NewImmersionRepo(r.db).Stats(ctx)
	if err != nil {
		return nil, err
	}
	stat.ImmersionsLive = int(immStats.Live)
	stat.ImmersionsCancelled = int(immStats.Cancelled)
	stat.ImmersionsAttended = int(immStats.Attended)

	var n int64
	if err := db.Model(&model.GroupImmersion{}).Where("cancellation_type_id IS NULL").Count(&n).Error; err != nil {
		return nil, err
	}
	stat.GroupImmersions = int(n)

	if err := db.Model(&model.Slot{}).Count(&n).Error; err != nil {
		return nil, err
	}
	stat.Slots = int(n)

	if err := db.Model(&model.Course{}).Where("published = ?", true).Count(&n).Error; err != nil {
		return nil, err
	}
	stat.CoursesPublished = int(n)

	if err := db.Model(&model.HighSchool{}).Where("with_convention = ? AND active = ?", true, true).Count(&n).Error; err != nil {
		return nil, err
	}
	stat.HighSchoolsConvention = int(n)

	return stat, nil
}

func (r *statsRepo) Save(ctx context.Context, stat *model.AnnualStatistic) error {
	return r.db.WithContext(ctx).
		Clauses(clause.OnConflict{UpdateAll: true}).
		Create(stat).Error
}
