package model

import (
	"time"

	"github.com/lib/pq"
)

// 残障通知设置（机构/高中级别）
const (
	DisabilityNotifyNever   = "never"
	DisabilityNotifyChecked = "auto"      // 学生勾选后自动通知
	DisabilityNotifyAsked   = "on_demand" // 由学生在报名后选择是否通知
)

// Establishment 高等教育机构表 — 对应 establishments
type Establishment struct {
	EstablishmentID         string `gorm:"type:uuid;primaryKey;default:gen_random_uuid()" json:"establishment_id"`
	Code                    string `gorm:"type:varchar(20);not null;uniqueIndex"           json:"code"`
	Label                   string `gorm:"type:varchar(256);not null"                     json:"label"`
	ShortLabel              string `gorm:"type:varchar(64)"                               json:"short_label,omitempty"`
	UAIReference            string `gorm:"column:uai_reference;type:varchar(20)"          json:"uai_reference,omitempty"`
	Master                  bool   `gorm:"not null;default:false"                         json:"master"`
	Active                  bool   `gorm:"not null;default:true"                          json:"active"`
	Email                   string `gorm:"type:varchar(254)"                              json:"email,omitempty"`
	MailingList             string `gorm:"type:varchar(254)"                              json:"mailing_list,omitempty"`
	DisabilityNotification  string `gorm:"type:varchar(20);not null;default:'never'"      json:"disability_notification"`
	DisabilityReferentEmail string `gorm:"type:varchar(254)"                              json:"disability_referent_email,omitempty"`
	VersionedModel
}

// TableName 指定表名
func (Establishment) TableName() string { return "establishments" }

// Structure 教学结构表 — 对应 structures
type Structure struct {
	StructureID     string `gorm:"type:uuid;primaryKey;default:gen_random_uuid()" json:"structure_id"`
	Code            string `gorm:"type:varchar(20);not null;uniqueIndex"           json:"code"`
	Label           string `gorm:"type:varchar(256);not null"                     json:"label"`
	EstablishmentID string `gorm:"type:uuid;not null"                             json:"establishment_id"`
	MailingList     string `gorm:"type:varchar(254)"                              json:"mailing_list,omitempty"`
	Active          bool   `gorm:"not null;default:true"                          json:"active"`
	VersionedModel

	// 关联
	Establishment *Establishment `gorm:"foreignKey:EstablishmentID;references:EstablishmentID" json:"establishment,omitempty"`
}

// TableName 指定表名
func (Structure) TableName() string { return "structures" }

// HighSchool 高中表 — 对应 high_schools
type HighSchool struct {
	HighSchoolID            string         `gorm:"type:uuid;primaryKey;default:gen_random_uuid()" json:"high_school_id"`
	Label                   string         `gorm:"type:varchar(256);not null"                     json:"label"`
	City                    string         `gorm:"type:varchar(128)"                              json:"city,omitempty"`
	Country                 string         `gorm:"type:varchar(64)"                               json:"country,omitempty"`
	Postbac                 bool           `gorm:"not null;default:false"                         json:"postbac"`
	WithConvention          bool           `gorm:"not null;default:false"                         json:"with_convention"`
	ConventionStartDate     *time.Time     `gorm:"type:date"                                      json:"convention_start_date,omitempty"`
	ConventionEndDate       *time.Time     `gorm:"type:date"                                      json:"convention_end_date,omitempty"`
	Email                   string         `gorm:"type:varchar(254)"                              json:"email,omitempty"`
	MailingList             string         `gorm:"type:varchar(254)"                              json:"mailing_list,omitempty"`
	UsesFederation          bool           `gorm:"not null;default:false"                         json:"uses_federation"`
	UAICodes                pq.StringArray `gorm:"column:uai_codes;type:text[]"                   json:"uai_codes"`
	Active                  bool           `gorm:"not null;default:true"                          json:"active"`
	DisabilityNotification  string         `gorm:"type:varchar(20);not null;default:'never'"      json:"disability_notification"`
	DisabilityReferentEmail string         `gorm:"type:varchar(254)"                              json:"disability_referent_email,omitempty"`
	VersionedModel
}

// TableName 指定表名
func (HighSchool) TableName() string { return "high_schools" }

// HigherEducationInstitution 高校目录（外部导入）— 对应 higher_education_institutions
type HigherEducationInstitution struct {
	UAI        string    `gorm:"column:uai;type:varchar(20);primaryKey" json:"uai"`
	Label      string    `gorm:"type:varchar(512);not null"             json:"label"`
	City       string    `gorm:"type:varchar(128)"                      json:"city,omitempty"`
	Department string    `gorm:"type:varchar(128)"                      json:"department,omitempty"`
	Country    string    `gorm:"type:varchar(128)"                      json:"country,omitempty"`
	UpdatedAt  time.Time `gorm:"not null;default:CURRENT_TIMESTAMP"     json:"updated_at"`
}

// TableName 指定表名
func (HigherEducationInstitution) TableName() string { return "higher_education_institutions" }

// UAI 学校行政编码目录（CSV 导入）— 对应 uais
type UAI struct {
	Code         string    `gorm:"type:varchar(20);primaryKey"        json:"code"`
	Label        string    `gorm:"type:varchar(512);not null"         json:"label"`
	City         string    `gorm:"type:varchar(128)"                  json:"city,omitempty"`
	AcademyLabel string    `gorm:"type:varchar(128)"                  json:"academy_label,omitempty"`
	UpdatedAt    time.Time `gorm:"not null;default:CURRENT_TIMESTAMP" json:"updated_at"`
}

// TableName 指定表名
func (UAI) TableName() string { return "uais" }
