package model

import "time"

// 消息模板代码
const (
	TemplateImmersionConfirm        = "IMMERSION_CONFIRM"
	TemplateImmersionCancel         = "IMMERSION_ANNUL"
	TemplateCancelSpeaker           = "IMMERSION_ANNULATION_INT"
	TemplateCancelStructure         = "IMMERSION_ANNULATION_STR"
	TemplateSlotReminder            = "IMMERSION_RAPPEL"
	TemplateSpeakerReminder         = "IMMERSION_RAPPEL_INT_J"
	TemplateClosedSpeaker           = "IMMERSION_RAPPEL_INT"
	TemplateClosedStructure         = "IMMERSION_RAPPEL_STR"
	TemplateStructureWeekly         = "RAPPEL_COMPOSANTE"
	TemplateEvaluation              = "EVALUATION_CRENEAU"
	TemplateCourseAlert             = "ALERTE_DISPO"
	TemplateAttestationCancellation = "IMMERSION_ANNUL_ATT"
	TemplatePendingValidations      = "CPT_AVALIDER_LYCEE"
	TemplateDisabilityReferent      = "IMMERSION_HANDICAP"
	TemplateRecordValidated         = "CPT_VALIDE"
	TemplateRecordRejected          = "CPT_REJET"
	TemplateGroupConfirm            = "IMMERSION_GROUPE_CONFIRM"
	TemplateGroupCancel             = "IMMERSION_GROUPE_ANNUL"
)

// 外发消息状态
const (
	MessageQueued = "queued"
	MessageSent   = "sent"
	MessageFailed = "failed"
)

// MailTemplate 邮件模板表 — 对应 mail_templates
type MailTemplate struct {
	Code    string `gorm:"type:varchar(64);primaryKey" json:"code"`
	Label   string `gorm:"type:varchar(256);not null"  json:"label"`
	Subject string `gorm:"type:varchar(512);not null"  json:"subject"`
	Body    string `gorm:"type:text;not null"          json:"body"`
	Active  bool   `gorm:"not null;default:true"       json:"active"`
	BaseModel
}

// TableName 指定表名
func (MailTemplate) TableName() string { return "mail_templates" }

// OutboundMessage 外发消息流水 — 对应 outbound_messages
// DedupKey 唯一，保证定时任务重复执行时同一消息只发一次
type OutboundMessage struct {
	MessageID string     `gorm:"type:uuid;primaryKey;default:gen_random_uuid()" json:"message_id"`
	Template  string     `gorm:"type:varchar(64);not null"                      json:"template"`
	Recipient string     `gorm:"type:varchar(254);not null"                     json:"recipient"`
	DedupKey  string     `gorm:"type:varchar(512);not null;uniqueIndex"         json:"dedup_key"`
	Subject   string     `gorm:"type:varchar(512)"                              json:"subject"`
	Body      string     `gorm:"type:text"                                      json:"body"`
	Status    string     `gorm:"type:varchar(16);not null;default:'queued'"     json:"status"`
	Error     string     `gorm:"type:text"                                      json:"error,omitempty"`
	SentAt    *time.Time `json:"sent_at,omitempty"`
	CreatedAt time.Time  `gorm:"not null;default:CURRENT_TIMESTAMP"             json:"created_at"`
}

// TableName 指定表名
func (OutboundMessage) TableName() string { return "outbound_messages" }
