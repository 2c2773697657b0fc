package model

// UserCourseAlert 课程名额提醒订阅 — 对应 user_course_alerts
type UserCourseAlert struct {
	AlertID   string `gorm:"type:uuid;primaryKey;default:gen_random_uuid()" json:"alert_id"`
	Email     string `gorm:"type:varchar(254);not null"                     json:"email"`
	CourseID  string `gorm:"type:uuid;not null"                             json:"course_id"`
	EmailSent bool   `gorm:"not null;default:false"                         json:"email_sent"`
	BaseModel

	// 关联
	Course *Course `gorm:"foreignKey:CourseID;references:CourseID" json:"course,omitempty"`
}

// TableName 指定表名
func (UserCourseAlert) TableName() string { return "user_course_alerts" }
