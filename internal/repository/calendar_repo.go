package repository

import (
	"context"
	"time"

	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"immersion/backend/internal/model"
)

// CalendarRepository 学年、周期与假期数据访问接口
type CalendarRepository interface {
	ListActiveYears(ctx context.Context) ([]model.UniversityYear, error)
	ListPeriods(ctx context.Context, yearID string) ([]model.Period, error)
	ListVacations(ctx context.Context) ([]model.Vacation, error)
	ListHolidays(ctx context.Context) ([]model.Holiday, error)
	UpsertVacation(ctx context.Context, v *model.Vacation) error
	PurgeYear(ctx context.Context, yearID string, purgeDate time.Time) error
}

type calendarRepo struct {
	db *gorm.DB
}

// NewCalendarRepo 创建 CalendarRepository 实例
func NewCalendarRepo(db *gorm.DB) CalendarRepository {
	return &calendarRepo{db: db}
}

func (r *calendarRepo) ListActiveYears(ctx context.Context) ([]model.UniversityYear, error) {
	var years []model.UniversityYear
	err := r.db.WithContext(ctx).
		Where("active = ?", true).
		Order("start_date").
		Find(&years).Error
	return years, err
}

func (r *calendarRepo) ListPeriods(ctx context.Context, yearID string) ([]model.Period, error) {
	var periods []model.Period
	err := r.db.WithContext(ctx).
		Where("year_id = ?", yearID).
		Order("immersion_start_date").
		Find(&periods).Error
	return periods, err
}

func (r *calendarRepo) ListVacations(ctx context.Context) ([]model.Vacation, error) {
	var vacations []model.Vacation
	err := r.db.WithContext(ctx).Order("start_date").Find(&vacations).Error
	return vacations, err
}

func (r *calendarRepo) ListHolidays(ctx context.Context) ([]model.Holiday, error) {
	var holidays []model.Holiday
	err := r.db.WithContext(ctx).Order("date").Find(&holidays).Error
	return holidays, err
}

// UpsertVacation 按 external_id（ICS UID）幂等写入
func (r *calendarRepo) UpsertVacation(ctx context.Context, v *model.Vacation) error {
	return r.db.WithContext(ctx).
		Clauses(clause.OnConflict{
			Columns:   []clause.Column{{Name: "external_id"}},
			DoUpdates: clause.AssignmentColumns([]string{"label", "start_date", "end_date", "updated_at"}),
		}).
		Create(v).Error
}

// PurgeYear 删除学年的周期与全部假期数据，并标记学年已清理
func (r *calendarRepo) PurgeYear(ctx context.Context, yearID string, purgeDate time.Time) error {
	db := r.db.WithContext(ctx)
	if err := db.Where("year_id = ?", yearID).Delete(&model.Period{}).Error; err != nil {
		return err
	}
	if err := db.Where("1 = 1").Delete(&model.Vacation{}).Error; err != nil {
		return err
	}
	if err := db.Where("1 = 1").Delete(&model.Holiday{}).Error; err != nil {
		return err
	}
	return db.Model(&model.UniversityYear{}).
		Where("year_id = ?", yearID).
		Updates(map[string]interface{}{
			"purge_date": purgeDate,
			"purged":     true,
			"updated_at": gorm.Expr("NOW()"),
		}).Error
}
