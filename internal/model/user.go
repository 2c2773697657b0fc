package model

import (
	"time"

	"github.com/lib/pq"
)

// 用户角色
const (
	RolePupil                = "pupil"                 // 高中生
	RoleStudent              = "student"               // 大学生
	RoleVisitor              = "visitor"               // 校外访客
	RoleSpeaker              = "speaker"               // 授课人
	RoleStructureManager     = "structure_manager"     // 结构负责人
	RoleStructureConsultant  = "structure_consultant"  // 结构顾问（只读 + 签到）
	RoleEstablishmentManager = "establishment_manager" // 机构负责人
	RoleMasterManager        = "master_manager"        // 主机构负责人
	RoleOperator             = "operator"              // 平台运维
	RoleHighSchoolManager    = "highschool_manager"    // 高中负责人
)

// AttendeeRoles 可自行报名的角色
var AttendeeRoles = []string{RolePupil, RoleStudent, RoleVisitor}

// User 用户表 — 对应 users
type User struct {
	UserID          string         `gorm:"type:uuid;primaryKey;default:gen_random_uuid()" json:"user_id"`
	Email           string         `gorm:"type:varchar(254);not null;uniqueIndex"         json:"email"`
	FirstName       string         `gorm:"type:varchar(150)"                              json:"first_name"`
	LastName        string         `gorm:"type:varchar(150)"                              json:"last_name"`
	PasswordHash    string         `gorm:"type:varchar(255)"                              json:"-"`
	Role            string         `gorm:"type:varchar(32);not null"                      json:"role"`
	EstablishmentID *string        `gorm:"type:uuid"                                      json:"establishment_id,omitempty"`
	HighSchoolID    *string        `gorm:"type:uuid"                                      json:"high_school_id,omitempty"`
	StructureIDs    pq.StringArray `gorm:"type:text[]"                                    json:"structure_ids"`
	IsActive        bool           `gorm:"not null;default:false"                         json:"is_active"`
	LastLoginAt     *time.Time     `json:"last_login_at,omitempty"`
	// DestructionDate 从未激活的账号到期删除日期
	DestructionDate *time.Time `gorm:"type:date" json:"destruction_date,omitempty"`

	// 通知偏好
	ReceiveRegisteredStudentsList bool `gorm:"not null;default:false" json:"receive_registered_students_list"`
	ReceiveStructureNotifications bool `gorm:"not null;default:false" json:"receive_structure_notifications"`
	VersionedModel
}

// TableName 指定表名
func (User) TableName() string { return "users" }

// FullName 显示名
func (u *User) FullName() string {
	if u.FirstName == "" {
		return u.LastName
	}
	return u.FirstName + " " + u.LastName
}

// IsAttendee 是否为报名者角色
func (u *User) IsAttendee() bool {
	return ContainsString(AttendeeRoles, u.Role)
}

// ManagesStructure 是否管理指定结构
func (u *User) ManagesStructure(structureID string) bool {
	return ContainsString(u.StructureIDs, structureID)
}
