package model

import "time"

// JobLog 定时命令执行记录 — 对应 job_logs
type JobLog struct {
	JobLogID   string     `gorm:"type:uuid;primaryKey;default:gen_random_uuid()" json:"job_log_id"`
	Command    string     `gorm:"type:varchar(128);not null;index"               json:"command"`
	Success    bool       `gorm:"not null;default:false"                         json:"success"`
	Message    string     `gorm:"type:text"                                      json:"message"`
	StartedAt  time.Time  `gorm:"not null"                                       json:"started_at"`
	FinishedAt *time.Time `json:"finished_at,omitempty"`
}

// TableName 指定表名
func (JobLog) TableName() string { return "job_logs" }

// AnnualStatistic 年度统计快照 — 对应 annual_statistics
type AnnualStatistic struct {
	YearLabel             string    `gorm:"type:varchar(256);primaryKey" json:"year_label"`
	PupilsRegistered      int       `gorm:"not null;default:0"           json:"pupils_registered"`
	StudentsRegistered    int       `gorm:"not null;default:0"           json:"students_registered"`
	VisitorsRegistered    int       `gorm:"not null;default:0"           json:"visitors_registered"`
	ImmersionsLive        int       `gorm:"not null;default:0"           json:"immersions_live"`
	ImmersionsCancelled   int       `gorm:"not null;default:0"           json:"immersions_cancelled"`
	ImmersionsAttended    int       `gorm:"not null;default:0"           json:"immersions_attended"`
	GroupImmersions       int       `gorm:"not null;default:0"           json:"group_immersions"`
	Slots                 int       `gorm:"not null;default:0"           json:"slots"`
	CoursesPublished      int       `gorm:"not null;default:0"           json:"courses_published"`
	HighSchoolsConvention int       `gorm:"not null;default:0"           json:"high_schools_convention"`
	CreatedAt             time.Time `gorm:"not null;default:CURRENT_TIMESTAMP" json:"created_at"`
}

// TableName 指定表名
func (AnnualStatistic) TableName() string { return "annual_statistics" }
