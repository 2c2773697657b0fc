package service

import (
	"context"
	"time"

	"go.uber.org/zap"

	"immersion/backend/internal/model"
	"immersion/backend/internal/repository"
)

// CalendarService 将日期翻译为学年、周期与工作日概念
type CalendarService interface {
	ActiveYear(ctx context.Context) (*model.UniversityYear, error)
	Periods(ctx context.Context) ([]model.Period, error)
	PeriodOf(ctx context.Context, date time.Time) (*model.Period, error)
	IsVacationOrHoliday(ctx context.Context, date time.Time) (bool, error)
	NextWorkingRange(ctx context.Context, anchor time.Time, weeks int) (from, to time.Time, err error)
}

type calendarService struct {
	repo   *repository.Repository
	loc    *time.Location
	logger *zap.Logger
}

// NewCalendarService 创建 CalendarService 实例
func NewCalendarService(repo *repository.Repository, loc *time.Location, logger *zap.Logger) CalendarService {
	return &calendarService{repo: repo, loc: loc, logger: logger}
}

// ────────────────────── ActiveYear ──────────────────────

// ActiveYear 唯一启用的学年；没有或多于一个时返回配置类拒绝
func (s *calendarService) ActiveYear(ctx context.Context) (*model.UniversityYear, error) {
	years, err := s.repo.Calendar.ListActiveYears(ctx)
	if err != nil {
		return nil, err
	}
	switch len(years) {
	case 0:
		s.logger.Warn("没有启用的学年")
		return nil, Deny(TagNoActiveYear)
	case 1:
		return &years[0], nil
	default:
		s.logger.Warn("存在多个启用的学年", zap.Int("count", len(years)))
		return nil, Deny(TagAmbiguousYear)
	}
}

// ────────────────────── Periods ──────────────────────

func (s *calendarService) Periods(ctx context.Context) ([]model.Period, error) {
	year, err := s.ActiveYear(ctx)
	if err != nil {
		return nil, err
	}
	return s.repo.Calendar.ListPeriods(ctx, year.YearID)
}

// PeriodOf 日期所在的周期，不在任何周期内时返回 nil
func (s *calendarService) PeriodOf(ctx context.Context, date time.Time) (*model.Period, error) {
	periods, err := s.Periods(ctx)
	if err != nil {
		return nil, err
	}
	return PeriodOf(periods, date), nil
}

// PeriodOf 在给定周期中查找包含 date 的周期
func PeriodOf(periods []model.Period, date time.Time) *model.Period {
	for i := range periods {
		if periods[i].Contains(date) {
			return &periods[i]
		}
	}
	return nil
}

// RegistrationOpen registration_start ≤ date ≤ immersion_end
func RegistrationOpen(date time.Time, p *model.Period) bool {
	if p == nil {
		return false
	}
	return model.SameOrBefore(p.RegistrationStartDate, date) && model.SameOrBefore(date, p.ImmersionEndDate)
}

// ────────────────────── Vacations ──────────────────────

func (s *calendarService) IsVacationOrHoliday(ctx context.Context, date time.Time) (bool, error) {
	vacations, err := s.repo.Calendar.ListVacations(ctx)
	if err != nil {
		return false, err
	}
	if vacationAt(vacations, date) != nil {
		return true, nil
	}
	holidays, err := s.repo.Calendar.ListHolidays(ctx)
	if err != nil {
		return false, err
	}
	for _, h := range holidays {
		if model.SameOrBefore(h.Date, date) && model.SameOrBefore(date, h.Date) {
			return true, nil
		}
	}
	return false, nil
}

// NextWorkingRange 从 anchor 之后的周一起 weeks 周后的周一到周日；
// 起始日落在假期内时，结束日延长到假期结束后一周
func (s *calendarService) NextWorkingRange(ctx context.Context, anchor time.Time, weeks int) (time.Time, time.Time, error) {
	vacations, err := s.repo.Calendar.ListVacations(ctx)
	if err != nil {
		return time.Time{}, time.Time{}, err
	}
	from, to := NextWorkingRange(model.DateOf(anchor, s.loc), weeks, vacations)
	return from, to, nil
}

// NextWorkingRange 纯函数版本
func NextWorkingRange(anchor time.Time, weeks int, vacations []model.Vacation) (time.Time, time.Time) {
	if weeks < 1 {
		weeks = 1
	}
	untilMonday := (8 - int(anchor.Weekday())) % 7
	if untilMonday == 0 {
		untilMonday = 7
	}
	from := anchor.AddDate(0, 0, untilMonday+7*weeks)
	to := from.AddDate(0, 0, 6)
	if v := vacationAt(vacations, from); v != nil {
		to = v.EndDate.AddDate(0, 0, 7)
	}
	return from, to
}

func vacationAt(vacations []model.Vacation, date time.Time) *model.Vacation {
	for i := range vacations {
		if vacations[i].Contains(date) {
			return &vacations[i]
		}
	}
	return nil
}
