package service

import (
	"time"

	"immersion/backend/internal/model"
)

// Intent 报名意图
type Intent int

const (
	IntentIndividual Intent = iota
	IntentGroup
	IntentCancel
)

func (i Intent) String() string {
	switch i {
	case IntentGroup:
		return "group"
	case IntentCancel:
		return "cancel"
	default:
		return "individual"
	}
}

// Overrides 管理人员的豁免开关
type Overrides struct {
	AllowUnpublished   bool // 管理操作可报名未发布时段
	AllowPendingRecord bool // 允许档案待审核的报名
	Force              bool // 强制报名：跳过截止时间、受众限制与配额
}

// Facts 评估所需的全部事实，由调用方一次性收集
type Facts struct {
	Slot              *model.Slot
	Period            *model.Period
	Record            *model.Record
	Attestations      []model.Attestation
	AlreadyRegistered bool
	// GroupHighSchoolID 团体报名所属高中
	GroupHighSchoolID string
	// Quota 仅课程时段的个人报名需要
	Quota *QuotaStatus
	// Seats 请求类型的可用名额；SeatsNeeded 本次需要的名额
	Seats       int
	SeatsNeeded int
	Location    *time.Location
}

// Decision 评估结果
type Decision struct {
	Allowed bool
	Denial  *Denial
	// Bypassed 因强制报名而被跳过的检查
	Bypassed []string
}

// Err 拒绝时返回 *Denial，否则 nil
func (d Decision) Err() error {
	if d.Denial == nil {
		return nil
	}
	return d.Denial
}

func denied(tag string) Decision {
	return Decision{Denial: Deny(tag)}
}

// Evaluate 按固定顺序执行资格检查，首个失败即返回。纯函数，不修改任何状态。
func Evaluate(f *Facts, now time.Time, intent Intent, ov Overrides) Decision {
	var bypassed []string
	slot := f.Slot
	loc := f.Location
	if loc == nil {
		loc = now.Location()
	}

	// 1. 存在与发布
	if slot == nil {
		return denied(TagUnknownSlot)
	}
	if intent != IntentCancel && !slot.Published && !ov.AllowUnpublished {
		return denied(TagUnpublishedSlot)
	}

	// 2. 是否已过去
	if intent == IntentCancel {
		if !now.Before(slot.EndAt(loc)) {
			return denied(TagSlotPast)
		}
		if !now.Before(slot.StartAt(loc)) {
			return denied(TagSlotHasStarted)
		}
	} else if !now.Before(slot.StartAt(loc)) {
		return denied(TagSlotPast)
	}

	// 3. 周期
	if intent != IntentCancel && f.Period == nil {
		return denied(TagOutsideAnyPeriod)
	}

	// 4. 报名 / 取消窗口
	if intent == IntentCancel {
		if now.After(slot.CancellationLimitDate(loc)) {
			return denied(TagCancellationDeadlinePassed)
		}
		return Decision{Allowed: true}
	}
	// 周期报名开放日之前一律拒绝，强制报名也不例外
	if !model.SameOrBefore(f.Period.RegistrationStartDate, model.DateOf(now, loc)) {
		return denied(TagRegistrationNotOpen)
	}
	if now.After(slot.RegistrationLimitDate(loc)) {
		if !ov.Force {
			return denied(TagRegistrationDeadlinePassed)
		}
		bypassed = append(bypassed, TagRegistrationDeadlinePassed)
	}

	// 5. 重复报名
	if f.AlreadyRegistered {
		return denied(TagAlreadyRegistered)
	}

	if intent == IntentIndividual {
		// 6. 档案状态
		if d := checkRecord(f.Record, ov); d != nil {
			return Decision{Denial: d}
		}
		// 7. 证明文件
		if d := checkAttestations(f.Attestations, now, loc); d != nil {
			return Decision{Denial: d}
		}
	}

	// 8. 报名方式
	if intent == IntentIndividual && !slot.AllowIndividualRegistrations {
		return denied(TagIndividualNotAllowed)
	}
	if intent == IntentGroup && !slot.AllowGroupRegistrations {
		return denied(TagGroupNotAllowed)
	}

	// 9. 受众限制
	var restriction *Denial
	if intent == IntentGroup {
		restriction = checkGroupRestrictions(slot, f.GroupHighSchoolID)
	} else {
		restriction = checkRestrictions(slot, f.Record)
	}
	if restriction != nil {
		if !ov.Force {
			return Decision{Denial: restriction}
		}
		bypassed = append(bypassed, restriction.Tag)
	}

	// 10. 配额（仅课程时段的个人报名）
	if intent == IntentIndividual && slot.IsCourse() && f.Quota != nil {
		if tag := f.Quota.Exceeded(); tag != "" {
			if !ov.Force {
				return denied(tag)
			}
			bypassed = append(bypassed, tag)
		}
	}

	// 11. 名额
	needed := f.SeatsNeeded
	if needed < 1 {
		needed = 1
	}
	if f.Seats < needed {
		return denied(TagNoSeatAvailable)
	}

	return Decision{Allowed: true, Bypassed: bypassed}
}

func checkRecord(rec *model.Record, ov Overrides) *Denial {
	if rec == nil {
		return Deny(TagRecordToComplete)
	}
	switch rec.Validation {
	case model.ValidationValidated:
		return nil
	case model.ValidationToValidate:
		if ov.AllowPendingRecord {
			return nil
		}
		return Deny(TagRecordNotValidated)
	case model.ValidationToRevalidate:
		if ov.AllowPendingRecord {
			return nil
		}
		return Deny(TagRecordToValidate)
	case model.ValidationRejected:
		return Deny(TagRecordRejected)
	default:
		return Deny(TagRecordToComplete)
	}
}

func checkAttestations(items []model.Attestation, now time.Time, loc *time.Location) *Denial {
	today := model.DateOf(now, loc)
	for _, a := range items {
		if !a.Mandatory || a.Archived || !a.RequiresValidityDate {
			continue
		}
		if a.ValidityDate == nil {
			return Deny(TagMissingAttestationDates)
		}
		if !model.SameOrBefore(today, *a.ValidityDate) {
			return Deny(TagAttestationExpired)
		}
	}
	return nil
}

func checkRestrictions(slot *model.Slot, rec *model.Record) *Denial {
	if rec == nil {
		if slot.EstablishmentsRestrictions || slot.HighSchoolsRestrictions ||
			slot.LevelsRestrictions || slot.BachelorsRestrictions {
			return Deny(TagRestrictionEstablishment)
		}
		return nil
	}

	if slot.EstablishmentsRestrictions && !affiliationAllowed(slot, rec) {
		return Deny(TagRestrictionEstablishment)
	}
	if slot.HighSchoolsRestrictions {
		if rec.Kind != model.RecordKindPupil || rec.HighSchoolID == nil ||
			!model.ContainsString(slot.AllowedHighSchools, *rec.HighSchoolID) {
			return Deny(TagRestrictionHighSchool)
		}
	}
	if slot.LevelsRestrictions && !levelAllowed(slot, rec) {
		return Deny(TagRestrictionLevel)
	}
	if slot.BachelorsRestrictions && !bachelorAllowed(slot, rec) {
		return Deny(TagRestrictionBachelor)
	}
	return nil
}

// affiliationAllowed 大学生按所属机构、高中生按所在高中匹配；访客只能报名开放时段
func affiliationAllowed(slot *model.Slot, rec *model.Record) bool {
	switch rec.Kind {
	case model.RecordKindStudent:
		return rec.EstablishmentID != nil && model.ContainsString(slot.AllowedEstablishments, *rec.EstablishmentID)
	case model.RecordKindPupil:
		return rec.HighSchoolID != nil &&
			(model.ContainsString(slot.AllowedHighSchools, *rec.HighSchoolID) ||
				model.ContainsString(slot.AllowedEstablishments, *rec.HighSchoolID))
	default:
		return false
	}
}

func levelAllowed(slot *model.Slot, rec *model.Record) bool {
	switch rec.Kind {
	case model.RecordKindPupil:
		return rec.Level != "" && model.ContainsString(slot.AllowedLevels, rec.Level)
	case model.RecordKindStudent:
		return rec.PostBacLevel != "" && model.ContainsString(slot.AllowedPostBacLevels, rec.PostBacLevel)
	default:
		return false
	}
}

func bachelorAllowed(slot *model.Slot, rec *model.Record) bool {
	switch rec.Kind {
	case model.RecordKindStudent:
		return rec.OriginBachelor != "" && model.ContainsString(slot.AllowedBachelorTypes, rec.OriginBachelor)
	case model.RecordKindPupil:
	default:
		return false
	}

	if !model.ContainsString(slot.AllowedBachelorTypes, rec.BachelorType) {
		return false
	}
	switch rec.BachelorType {
	case model.BachelorTechnological:
		if len(slot.AllowedBachelorMentions) > 0 {
			return model.ContainsString(slot.AllowedBachelorMentions, rec.TechnologicalMention)
		}
	case model.BachelorGeneral:
		if len(slot.AllowedBachelorTeachings) > 0 {
			for _, t := range rec.GeneralTeachings {
				if model.ContainsString(slot.AllowedBachelorTeachings, t) {
					return true
				}
			}
			return false
		}
	}
	return true
}

func checkGroupRestrictions(slot *model.Slot, highSchoolID string) *Denial {
	if slot.EstablishmentsRestrictions &&
		!model.ContainsString(slot.AllowedHighSchools, highSchoolID) &&
		!model.ContainsString(slot.AllowedEstablishments, highSchoolID) {
		return Deny(TagRestrictionEstablishment)
	}
	if slot.HighSchoolsRestrictions && !model.ContainsString(slot.AllowedHighSchools, highSchoolID) {
		return Deny(TagRestrictionHighSchool)
	}
	return nil
}
