package model

import (
	"errors"
	"fmt"
	"time"

	"github.com/lib/pq"
)

// 时段类型
const (
	SlotKindCourse = "course"
	SlotKindEvent  = "event"
	SlotKindVisit  = "visit"
)

// 授课形式
const (
	PlaceFaceToFace = "face_to_face"
	PlaceRemote     = "remote"
	PlaceHybrid     = "hybrid"
)

// 团体名额模式
const (
	GroupModeSeparate = 0 // 个人与团体名额独立
	GroupModeShared   = 1 // 共用 n_places
)

var (
	ErrSlotPlaceMissing = errors.New("线下时段必须指定校区与楼宇")
	ErrSlotURLMissing   = errors.New("线上时段必须指定链接")
	ErrSlotDelay        = errors.New("报名与取消截止提前量不能为负数")
	ErrSlotTime         = errors.New("时段结束时间必须晚于开始时间")
	ErrSlotOwner        = errors.New("时段必须且只能属于一个课程或活动")
)

// Slot 时段表 — 对应 slots
type Slot struct {
	SlotID       string  `gorm:"type:uuid;primaryKey;default:gen_random_uuid()" json:"slot_id"`
	Kind         string  `gorm:"type:varchar(10);not null;default:'course'"     json:"kind"` // course | event | visit
	CourseID     *string `gorm:"type:uuid"                                      json:"course_id,omitempty"`
	EventID      *string `gorm:"type:uuid"                                      json:"event_id,omitempty"`
	TrainingID   *string `gorm:"type:uuid"                                      json:"training_id,omitempty"` // 冗余自课程，用于培训配额
	StructureID  *string `gorm:"type:uuid"                                      json:"structure_id,omitempty"`
	HighSchoolID *string `gorm:"type:uuid"                                      json:"high_school_id,omitempty"`
	// EstablishmentID 时段归属机构（由结构推导），用于权限范围判断
	EstablishmentID *string `gorm:"type:uuid" json:"establishment_id,omitempty"`

	Date      time.Time `gorm:"type:date;not null"      json:"date"`
	StartTime string    `gorm:"type:varchar(5);not null" json:"start_time"` // HH:MM
	EndTime   string    `gorm:"type:varchar(5);not null" json:"end_time"`

	PlaceKind  string  `gorm:"type:varchar(16);not null;default:'face_to_face'" json:"place_kind"`
	CampusID   *string `gorm:"type:uuid"                                       json:"campus_id,omitempty"`
	BuildingID *string `gorm:"type:uuid"                                       json:"building_id,omitempty"`
	Room       string  `gorm:"type:varchar(128)"                               json:"room,omitempty"`
	URL        string  `gorm:"type:varchar(512)"                               json:"url,omitempty"`

	NPlaces                      int  `gorm:"column:n_places;not null;default:0"       json:"n_places"`
	NGroupPlaces                 int  `gorm:"column:n_group_places;not null;default:0" json:"n_group_places"`
	GroupMode                    int  `gorm:"not null;default:0"                       json:"group_mode"`
	AllowIndividualRegistrations bool `gorm:"not null;default:true"                    json:"allow_individual_registrations"`
	AllowGroupRegistrations      bool `gorm:"not null;default:false"                   json:"allow_group_registrations"`
	RegistrationLimitDelay       int  `gorm:"not null;default:0"                       json:"registration_limit_delay"` // 小时
	CancellationLimitDelay       int  `gorm:"not null;default:0"                       json:"cancellation_limit_delay"` // 小时

	EstablishmentsRestrictions bool           `gorm:"not null;default:false" json:"establishments_restrictions"`
	HighSchoolsRestrictions    bool           `gorm:"not null;default:false" json:"high_schools_restrictions"`
	LevelsRestrictions         bool           `gorm:"not null;default:false" json:"levels_restrictions"`
	BachelorsRestrictions      bool           `gorm:"not null;default:false" json:"bachelors_restrictions"`
	AllowedEstablishments      pq.StringArray `gorm:"type:text[]"            json:"allowed_establishments"`
	AllowedHighSchools         pq.StringArray `gorm:"type:text[]"            json:"allowed_high_schools"`
	AllowedLevels              pq.StringArray `gorm:"type:text[]"            json:"allowed_levels"`
	AllowedPostBacLevels       pq.StringArray `gorm:"type:text[]"            json:"allowed_post_bac_levels"`
	AllowedBachelorTypes       pq.StringArray `gorm:"type:text[]"            json:"allowed_bachelor_types"`
	AllowedBachelorMentions    pq.StringArray `gorm:"type:text[]"            json:"allowed_bachelor_mentions"`
	AllowedBachelorTeachings   pq.StringArray `gorm:"type:text[]"            json:"allowed_bachelor_teachings"`

	Published                bool           `gorm:"not null;default:false" json:"published"`
	ReminderNotificationSent bool           `gorm:"not null;default:false" json:"reminder_notification_sent"`
	SpeakerIDs               pq.StringArray `gorm:"type:text[]"            json:"speaker_ids"`
	AdditionalInformation    string         `gorm:"type:text"              json:"additional_information,omitempty"`
	VersionedModel

	// 关联
	Course *Course        `gorm:"foreignKey:CourseID;references:CourseID" json:"course,omitempty"`
	Event  *OffOfferEvent `gorm:"foreignKey:EventID;references:EventID"   json:"event,omitempty"`
}

// TableName 指定表名
func (Slot) TableName() string { return "slots" }

// Validate 校验时段的结构性约束
func (s *Slot) Validate() error {
	if (s.CourseID == nil) == (s.EventID == nil) {
		return ErrSlotOwner
	}
	if s.RegistrationLimitDelay < 0 || s.CancellationLimitDelay < 0 {
		return ErrSlotDelay
	}
	start, err := parseClock(s.StartTime)
	if err != nil {
		return err
	}
	end, err := parseClock(s.EndTime)
	if err != nil {
		return err
	}
	if end <= start {
		return ErrSlotTime
	}
	needPlace := s.PlaceKind == PlaceFaceToFace || s.PlaceKind == PlaceHybrid
	needURL := s.PlaceKind == PlaceRemote || s.PlaceKind == PlaceHybrid
	if needPlace && (s.CampusID == nil || s.BuildingID == nil) {
		return ErrSlotPlaceMissing
	}
	if needURL && s.URL == "" {
		return ErrSlotURLMissing
	}
	return nil
}

// IsCourse 课程时段（占用配额）
func (s *Slot) IsCourse() bool { return s.Kind == SlotKindCourse || s.Kind == "" }

// StartAt 时段开始时刻（date + start_time）
func (s *Slot) StartAt(loc *time.Location) time.Time {
	return combine(s.Date, s.StartTime, loc)
}

// EndAt 时段结束时刻（date + end_time）
func (s *Slot) EndAt(loc *time.Location) time.Time {
	return combine(s.Date, s.EndTime, loc)
}

// RegistrationLimitDate 报名截止时刻
func (s *Slot) RegistrationLimitDate(loc *time.Location) time.Time {
	return s.StartAt(loc).Add(-time.Duration(s.RegistrationLimitDelay) * time.Hour)
}

// CancellationLimitDate 取消截止时刻
func (s *Slot) CancellationLimitDate(loc *time.Location) time.Time {
	return s.StartAt(loc).Add(-time.Duration(s.CancellationLimitDelay) * time.Hour)
}

func combine(date time.Time, clock string, loc *time.Location) time.Time {
	minutes, _ := parseClock(clock)
	return time.Date(date.Year(), date.Month(), date.Day(), minutes/60, minutes%60, 0, 0, loc)
}

// parseClock 解析 HH:MM，返回当日分钟数
func parseClock(v string) (int, error) {
	t, err := time.Parse("15:04", v)
	if err != nil {
		return 0, fmt.Errorf("无效的时间 %q: %w", v, err)
	}
	return t.Hour()*60 + t.Minute(), nil
}
