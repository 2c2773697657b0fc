package model

import "time"

// 出勤状态
const (
	AttendanceNotEntered = 0
	AttendanceAttended   = 1
	AttendanceAbsent     = 2
)

// 系统取消原因：证明文件过期
const CancelTypeAttestationCode = "ATT"

// Immersion 个人报名表 — 对应 immersions
// 取消时仅标记 cancellation_type_id 与 cancellation_date，不物理删除
type Immersion struct {
	ImmersionID        string     `gorm:"type:uuid;primaryKey;default:gen_random_uuid()" json:"immersion_id"`
	UserID             string     `gorm:"type:uuid;not null;index"                       json:"user_id"`
	SlotID             string     `gorm:"type:uuid;not null;index"                       json:"slot_id"`
	RegistrationDate   time.Time  `gorm:"not null"                                       json:"registration_date"`
	CancellationTypeID *string    `gorm:"type:uuid"                                      json:"cancellation_type_id,omitempty"`
	CancellationDate   *time.Time `json:"cancellation_date,omitempty"`
	AttendanceStatus   int        `gorm:"type:smallint;not null;default:0"               json:"attendance_status"`
	SurveyEmailSent    bool       `gorm:"not null;default:false"                         json:"survey_email_sent"`
	ReminderSent       bool       `gorm:"not null;default:false"                         json:"reminder_sent"`
	RegisteredBy       *string    `gorm:"type:uuid"                                      json:"registered_by,omitempty"`
	CancelledBy        *string    `gorm:"type:uuid"                                      json:"cancelled_by,omitempty"`
	BaseModel

	// 关联
	Slot *Slot `gorm:"foreignKey:SlotID;references:SlotID" json:"slot,omitempty"`
	User *User `gorm:"foreignKey:UserID;references:UserID" json:"user,omitempty"`
}

// TableName 指定表名
func (Immersion) TableName() string { return "immersions" }

// IsCancelled 是否已取消
func (i *Immersion) IsCancelled() bool { return i.CancellationTypeID != nil }

// GroupImmersion 团体报名表 — 对应 group_immersions
type GroupImmersion struct {
	GroupImmersionID   string     `gorm:"type:uuid;primaryKey;default:gen_random_uuid()" json:"group_immersion_id"`
	HighSchoolID       string     `gorm:"type:uuid;not null"                             json:"high_school_id"`
	SlotID             string     `gorm:"type:uuid;not null;index"                       json:"slot_id"`
	StudentsCount      int        `gorm:"not null"                                       json:"students_count"`
	GuidesCount        int        `gorm:"not null"                                       json:"guides_count"`
	RegistrationDate   time.Time  `gorm:"not null"                                       json:"registration_date"`
	CancellationTypeID *string    `gorm:"type:uuid"                                      json:"cancellation_type_id,omitempty"`
	CancellationDate   *time.Time `json:"cancellation_date,omitempty"`
	Emails             string     `gorm:"type:text"                                      json:"emails,omitempty"`
	Comments           string     `gorm:"type:text"                                      json:"comments,omitempty"`
	RegisteredBy       *string    `gorm:"type:uuid"                                      json:"registered_by,omitempty"`
	BaseModel

	// 关联
	Slot *Slot `gorm:"foreignKey:SlotID;references:SlotID" json:"slot,omitempty"`
}

// TableName 指定表名
func (GroupImmersion) TableName() string { return "group_immersions" }

// Size 团体人数（学生 + 带队）
func (g *GroupImmersion) Size() int { return g.StudentsCount + g.GuidesCount }

// IsCancelled 是否已取消
func (g *GroupImmersion) IsCancelled() bool { return g.CancellationTypeID != nil }

// CancelType 取消原因表 — 对应 cancel_types
type CancelType struct {
	CancelTypeID string `gorm:"type:uuid;primaryKey;default:gen_random_uuid()" json:"cancel_type_id"`
	Code         string `gorm:"type:varchar(16);not null;uniqueIndex"           json:"code"`
	Label        string `gorm:"type:varchar(256);not null"                     json:"label"`
	Active       bool   `gorm:"not null;default:true"                          json:"active"`
	System       bool   `gorm:"not null;default:false"                         json:"system"` // 仅定时任务可用
	Students     bool   `gorm:"column:for_students;not null;default:true"      json:"students"`
	Groups       bool   `gorm:"column:for_groups;not null;default:false"       json:"groups"`
	Managers     bool   `gorm:"column:for_managers;not null;default:true"      json:"managers"`
	BaseModel
}

// TableName 指定表名
func (CancelType) TableName() string { return "cancel_types" }
