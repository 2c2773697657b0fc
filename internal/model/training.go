package model

import "github.com/lib/pq"

// Training 培训项目表 — 对应 trainings
// StructureIDs 与 HighSchoolID 二选一
type Training struct {
	TrainingID        string         `gorm:"type:uuid;primaryKey;default:gen_random_uuid()" json:"training_id"`
	Label             string         `gorm:"type:varchar(256);not null"                     json:"label"`
	Subdomains        pq.StringArray `gorm:"type:text[]"                                    json:"subdomains"`
	StructureIDs      pq.StringArray `gorm:"type:text[]"                                    json:"structure_ids"`
	HighSchoolID      *string        `gorm:"type:uuid"                                      json:"high_school_id,omitempty"`
	AllowedImmersions *int           `json:"allowed_immersions,omitempty"` // 单个培训的报名上限，为空时使用全局默认
	Active            bool           `gorm:"not null;default:true"                          json:"active"`
	VersionedModel
}

// TableName 指定表名
func (Training) TableName() string { return "trainings" }

// Course 课程表 — 对应 courses
// StructureID 与 HighSchoolID 二选一
type Course struct {
	CourseID     string         `gorm:"type:uuid;primaryKey;default:gen_random_uuid()" json:"course_id"`
	Label        string         `gorm:"type:varchar(256);not null"                     json:"label"`
	TrainingID   string         `gorm:"type:uuid;not null"                             json:"training_id"`
	StructureID  *string        `gorm:"type:uuid"                                      json:"structure_id,omitempty"`
	HighSchoolID *string        `gorm:"type:uuid"                                      json:"high_school_id,omitempty"`
	Published    bool           `gorm:"not null;default:false"                         json:"published"`
	SpeakerIDs   pq.StringArray `gorm:"type:text[]"                                    json:"speaker_ids"`
	VersionedModel

	// 关联
	Training *Training `gorm:"foreignKey:TrainingID;references:TrainingID" json:"training,omitempty"`
}

// TableName 指定表名
func (Course) TableName() string { return "courses" }

// OffOfferEvent 课程外活动表（讲座、开放日、参观）— 对应 off_offer_events
type OffOfferEvent struct {
	EventID         string         `gorm:"type:uuid;primaryKey;default:gen_random_uuid()" json:"event_id"`
	Label           string         `gorm:"type:varchar(256);not null"                     json:"label"`
	EventType       string         `gorm:"type:varchar(64);not null"                      json:"event_type"`
	EstablishmentID *string        `gorm:"type:uuid"                                      json:"establishment_id,omitempty"`
	StructureID     *string        `gorm:"type:uuid"                                      json:"structure_id,omitempty"`
	HighSchoolID    *string        `gorm:"type:uuid"                                      json:"high_school_id,omitempty"`
	Published       bool           `gorm:"not null;default:false"                         json:"published"`
	SpeakerIDs      pq.StringArray `gorm:"type:text[]"                                    json:"speaker_ids"`
	VersionedModel
}

// TableName 指定表名
func (OffOfferEvent) TableName() string { return "off_offer_events" }
