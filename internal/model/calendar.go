package model

import "time"

// UniversityYear 学年表 — 对应 university_years
type UniversityYear struct {
	YearID                string     `gorm:"type:uuid;primaryKey;default:gen_random_uuid()" json:"year_id"`
	Label                 string     `gorm:"type:varchar(256);not null;uniqueIndex"         json:"label"`
	StartDate             time.Time  `gorm:"type:date;not null"                             json:"start_date"`
	EndDate               time.Time  `gorm:"type:date;not null"                             json:"end_date"`
	RegistrationStartDate time.Time  `gorm:"type:date;not null"                             json:"registration_start_date"`
	PurgeDate             *time.Time `gorm:"type:date"                                      json:"purge_date,omitempty"`
	Active                bool       `gorm:"not null;default:false"                         json:"active"`
	Purged                bool       `gorm:"not null;default:false"                         json:"purged"`
	BaseModel
}

// TableName 指定表名
func (UniversityYear) TableName() string { return "university_years" }

// Period 报名周期表 — 对应 periods
type Period struct {
	PeriodID              string    `gorm:"type:uuid;primaryKey;default:gen_random_uuid()" json:"period_id"`
	YearID                string    `gorm:"type:uuid;not null"                             json:"year_id"`
	Label                 string    `gorm:"type:varchar(256);not null"                     json:"label"`
	RegistrationStartDate time.Time `gorm:"type:date;not null"                             json:"registration_start_date"`
	ImmersionStartDate    time.Time `gorm:"type:date;not null"                             json:"immersion_start_date"`
	ImmersionEndDate      time.Time `gorm:"type:date;not null"                             json:"immersion_end_date"`
	AllowedImmersions     int       `gorm:"not null;default:1"                             json:"allowed_immersions"`
	BaseModel
}

// TableName 指定表名
func (Period) TableName() string { return "periods" }

// Contains 日期是否落在 [immersion_start, immersion_end] 内（按日历日期）
func (p *Period) Contains(date time.Time) bool {
	return SameOrBefore(p.ImmersionStartDate, date) && SameOrBefore(date, p.ImmersionEndDate)
}

// Vacation 假期表 — 对应 vacations
type Vacation struct {
	VacationID string    `gorm:"type:uuid;primaryKey;default:gen_random_uuid()" json:"vacation_id"`
	Label      string    `gorm:"type:varchar(256);not null"                     json:"label"`
	StartDate  time.Time `gorm:"type:date;not null"                             json:"start_date"`
	EndDate    time.Time `gorm:"type:date;not null"                             json:"end_date"`
	ExternalID string    `gorm:"type:varchar(256);uniqueIndex"                  json:"external_id,omitempty"` // ICS UID
	BaseModel
}

// TableName 指定表名
func (Vacation) TableName() string { return "vacations" }

// Contains 日期是否在假期内（含首尾）
func (v *Vacation) Contains(date time.Time) bool {
	return SameOrBefore(v.StartDate, date) && SameOrBefore(date, v.EndDate)
}

// Holiday 法定节假日表 — 对应 holidays
type Holiday struct {
	HolidayID string    `gorm:"type:uuid;primaryKey;default:gen_random_uuid()" json:"holiday_id"`
	Label     string    `gorm:"type:varchar(256);not null"                     json:"label"`
	Date      time.Time `gorm:"type:date;not null;uniqueIndex"                 json:"date"`
	BaseModel
}

// TableName 指定表名
func (Holiday) TableName() string { return "holidays" }
