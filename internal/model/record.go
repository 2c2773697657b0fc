package model

import (
	"time"

	"github.com/lib/pq"
)

// 档案类型
const (
	RecordKindPupil   = "pupil"
	RecordKindStudent = "student"
	RecordKindVisitor = "visitor"
)

// 档案审核状态
const (
	ValidationToComplete   = "to_complete"
	ValidationToValidate   = "to_validate"
	ValidationValidated    = "validated"
	ValidationRejected     = "rejected"
	ValidationToRevalidate = "to_revalidate"
)

// 高中会考类型
const (
	BachelorGeneral       = "general"
	BachelorTechnological = "technological"
	BachelorProfessional  = "professional"
)

// Record 报名者档案表 — 对应 records
// 三类档案共用一张表，按 Kind 区分，仅填写各自相关的列
type Record struct {
	RecordID   string     `gorm:"type:uuid;primaryKey;default:gen_random_uuid()" json:"record_id"`
	UserID     string     `gorm:"type:uuid;not null;uniqueIndex"                 json:"user_id"`
	Kind       string     `gorm:"type:varchar(10);not null"                      json:"kind"`
	Validation string     `gorm:"type:varchar(16);not null;default:'to_complete'" json:"validation"`
	Disability bool       `gorm:"not null;default:false"                         json:"disability"`
	BirthDate  *time.Time `gorm:"type:date"                                      json:"birth_date,omitempty"`

	// 高中生
	HighSchoolID         *string        `gorm:"type:uuid"         json:"high_school_id,omitempty"`
	Level                string         `gorm:"type:varchar(32)"  json:"level,omitempty"`
	BachelorType         string         `gorm:"type:varchar(32)"  json:"bachelor_type,omitempty"`
	TechnologicalMention string         `gorm:"type:varchar(64)"  json:"technological_mention,omitempty"`
	GeneralTeachings     pq.StringArray `gorm:"type:text[]"       json:"general_teachings"`

	// 大学生
	EstablishmentID *string `gorm:"type:uuid"        json:"establishment_id,omitempty"`
	HomeInstitution string  `gorm:"type:varchar(20)" json:"home_institution,omitempty"` // UAI
	PostBacLevel    string  `gorm:"type:varchar(32)" json:"post_bac_level,omitempty"`
	OriginBachelor  string  `gorm:"type:varchar(32)" json:"origin_bachelor,omitempty"`

	// 访客
	VisitorType string `gorm:"type:varchar(64)" json:"visitor_type,omitempty"`

	ValidationDate *time.Time `json:"validation_date,omitempty"`
	RejectedDate   *time.Time `json:"rejected_date,omitempty"`
	BaseModel

	// 关联
	User *User `gorm:"foreignKey:UserID;references:UserID" json:"user,omitempty"`
}

// TableName 指定表名
func (Record) TableName() string { return "records" }

// Attestation 档案附带的证明文件 — 对应 attestations
type Attestation struct {
	AttestationID        string     `gorm:"type:uuid;primaryKey;default:gen_random_uuid()" json:"attestation_id"`
	RecordID             string     `gorm:"type:uuid;not null;index"                       json:"record_id"`
	Label                string     `gorm:"type:varchar(256);not null"                     json:"label"`
	Mandatory            bool       `gorm:"not null;default:false"                         json:"mandatory"`
	RequiresValidityDate bool       `gorm:"not null;default:false"                         json:"requires_validity_date"`
	ValidityDate         *time.Time `gorm:"type:date"                                      json:"validity_date,omitempty"`
	Document             string     `gorm:"type:varchar(512)"                              json:"document,omitempty"`
	Archived             bool       `gorm:"not null;default:false"                         json:"archived"`
	BaseModel
}

// TableName 指定表名
func (Attestation) TableName() string { return "attestations" }

// RecordQuota 档案在某周期的个人配额覆盖值 — 对应 record_quotas
type RecordQuota struct {
	RecordID          string `gorm:"type:uuid;primaryKey" json:"record_id"`
	PeriodID          string `gorm:"type:uuid;primaryKey" json:"period_id"`
	AllowedImmersions int    `gorm:"not null"             json:"allowed_immersions"`
	BaseModel
}

// TableName 指定表名
func (RecordQuota) TableName() string { return "record_quotas" }
