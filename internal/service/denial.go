package service

import (
	"errors"
	"fmt"

	"gorm.io/gorm"
)

// ── 业务拒绝 ──
//
// Denial 是可预期的业务拒绝结果（而非故障），携带稳定的标签供 API 返回。
// 所有核心操作以返回值形式报告拒绝，不会 panic。

// DenialKind 拒绝类别，决定 HTTP 状态码
type DenialKind int

const (
	KindBusiness      DenialKind = iota // 422
	KindForbidden                       // 403
	KindNotFound                        // 404
	KindConfiguration                   // 503
)

// 拒绝标签
const (
	// 时间
	TagSlotPast                   = "SLOT_PAST"
	TagSlotHasStarted             = "SLOT_HAS_STARTED"
	TagRegistrationNotOpen        = "REGISTRATION_NOT_OPEN"
	TagRegistrationDeadlinePassed = "REGISTRATION_DEADLINE_PASSED"
	TagCancellationDeadlinePassed = "CANCELLATION_DEADLINE_PASSED"
	TagOutsideAnyPeriod           = "OUTSIDE_ANY_PERIOD"

	// 身份与权限
	TagNotAuthorized    = "NOT_AUTHORIZED"
	TagNotOwner         = "NOT_OWNER"
	TagUnknownPerson    = "UNKNOWN_PERSON"
	TagUnknownSlot      = "UNKNOWN_SLOT"
	TagUnknownImmersion = "UNKNOWN_IMMERSION"
	TagUnknownRecord    = "UNKNOWN_RECORD"
	TagUnknownCourse    = "UNKNOWN_COURSE"
	TagUnknownAlert     = "UNKNOWN_ALERT"

	// 档案
	TagRecordNotValidated      = "RECORD_NOT_VALIDATED"
	TagRecordToComplete        = "RECORD_TO_COMPLETE"
	TagRecordToValidate        = "RECORD_TO_VALIDATE"
	TagRecordRejected          = "RECORD_REJECTED"
	TagMissingAttestationDates = "MISSING_ATTESTATION_DATES"
	TagAttestationExpired      = "ATTESTATION_EXPIRED"

	// 受众限制
	TagRestrictionEstablishment = "RESTRICTION_ESTABLISHMENT"
	TagRestrictionHighSchool    = "RESTRICTION_HIGHSCHOOL"
	TagRestrictionLevel         = "RESTRICTION_LEVEL"
	TagRestrictionBachelor      = "RESTRICTION_BACHELOR"

	// 名额与配额
	TagNoSeatAvailable      = "NO_SEAT_AVAILABLE"
	TagOverPeriodQuota      = "OVER_PERIOD_QUOTA"
	TagOverTrainingQuota    = "OVER_TRAINING_QUOTA"
	TagUnpublishedSlot      = "UNPUBLISHED_SLOT"
	TagAlreadyRegistered    = "ALREADY_REGISTERED"
	TagIndividualNotAllowed = "INDIVIDUAL_NOT_ALLOWED"
	TagGroupNotAllowed      = "GROUP_NOT_ALLOWED"
	TagGroupsDisabled       = "GROUPS_DISABLED"
	TagInvalidGroupSize     = "INVALID_GROUP_SIZE"

	// 取消与出勤
	TagNoCancellationReason = "NO_CANCELLATION_REASON"
	TagBadReason            = "BAD_REASON"
	TagAlreadyCancelled     = "ALREADY_CANCELLED"
	TagInvalidParams        = "INVALID_PARAMS"
	TagBadStatus            = "BAD_STATUS"

	// 课程提醒
	TagInvalidEmail = "INVALID_EMAIL"
	TagAlertExists  = "ALERT_EXISTS"

	// 时段管理
	TagHasLiveRegistrations = "HAS_LIVE_REGISTRATIONS"
	TagHasSlots             = "HAS_SLOTS"
	TagInvalidSlot          = "INVALID_SLOT"

	// 配置
	TagConfigMissing = "CONFIG_MISSING"
	TagNoActiveYear  = "NO_ACTIVE_YEAR"
	TagAmbiguousYear = "AMBIGUOUS_YEAR"
)

var denialMessages = map[string]string{
	TagSlotPast:                   "时段已经结束",
	TagSlotHasStarted:             "时段已经开始",
	TagRegistrationNotOpen:        "本周期尚未开放报名",
	TagRegistrationDeadlinePassed: "报名截止时间已过",
	TagCancellationDeadlinePassed: "取消截止时间已过",
	TagOutsideAnyPeriod:           "时段不在任何报名周期内",
	TagNotAuthorized:              "无权执行该操作",
	TagNotOwner:                   "只能操作本人的报名",
	TagUnknownPerson:              "用户不存在",
	TagUnknownSlot:                "时段不存在",
	TagUnknownImmersion:           "报名记录不存在",
	TagUnknownRecord:              "档案不存在",
	TagUnknownCourse:              "课程不存在",
	TagUnknownAlert:               "提醒订阅不存在",
	TagRecordNotValidated:         "档案尚未通过审核",
	TagRecordToComplete:           "档案尚未填写完整",
	TagRecordToValidate:           "档案正在等待审核",
	TagRecordRejected:             "档案已被驳回",
	TagMissingAttestationDates:    "必需的证明文件缺少有效期",
	TagAttestationExpired:         "必需的证明文件已过期",
	TagRestrictionEstablishment:   "该时段仅对指定机构开放",
	TagRestrictionHighSchool:      "该时段仅对指定高中开放",
	TagRestrictionLevel:           "该时段仅对指定年级开放",
	TagRestrictionBachelor:        "该时段仅对指定会考类型开放",
	TagNoSeatAvailable:            "时段名额已满",
	TagOverPeriodQuota:            "本周期的报名次数已用完",
	TagOverTrainingQuota:          "本周期该培训项目的报名次数已用完",
	TagUnpublishedSlot:            "时段尚未发布",
	TagAlreadyRegistered:          "已报名该时段",
	TagIndividualNotAllowed:       "该时段不接受个人报名",
	TagGroupNotAllowed:            "该时段不接受团体报名",
	TagGroupsDisabled:             "团体报名功能未开启",
	TagInvalidGroupSize:           "团体人数无效",
	TagNoCancellationReason:       "必须指定取消原因",
	TagBadReason:                  "该取消原因不可用",
	TagAlreadyCancelled:           "报名已取消",
	TagInvalidParams:              "参数无效",
	TagBadStatus:                  "出勤状态无效",
	TagInvalidEmail:               "邮箱格式无效",
	TagAlertExists:                "已订阅该课程的名额提醒",
	TagHasLiveRegistrations:       "时段存在有效报名",
	TagHasSlots:                   "课程下仍有时段",
	TagInvalidSlot:                "时段参数无效",
	TagConfigMissing:              "系统配置缺失",
	TagNoActiveYear:               "没有启用的学年",
	TagAmbiguousYear:              "存在多个启用的学年",
}

var denialKinds = map[string]DenialKind{
	TagNotAuthorized:    KindForbidden,
	TagNotOwner:         KindForbidden,
	TagUnknownPerson:    KindNotFound,
	TagUnknownSlot:      KindNotFound,
	TagUnknownImmersion: KindNotFound,
	TagUnknownRecord:    KindNotFound,
	TagUnknownCourse:    KindNotFound,
	TagUnknownAlert:     KindNotFound,
	TagConfigMissing:    KindConfiguration,
	TagNoActiveYear:     KindConfiguration,
	TagAmbiguousYear:    KindConfiguration,
}

// Denial 业务拒绝
type Denial struct {
	Tag     string `json:"tag"`
	Message string `json:"message"`
}

func (d *Denial) Error() string {
	return d.Tag + ": " + d.Message
}

// Kind 拒绝类别
func (d *Denial) Kind() DenialKind {
	return denialKinds[d.Tag]
}

// Deny 以默认文案构造拒绝
func Deny(tag string) *Denial {
	msg, ok := denialMessages[tag]
	if !ok {
		msg = tag
	}
	return &Denial{Tag: tag, Message: msg}
}

// Denyf 以自定义文案构造拒绝
func Denyf(tag, format string, args ...interface{}) *Denial {
	return &Denial{Tag: tag, Message: fmt.Sprintf(format, args...)}
}

// AsDenial 从错误链中提取拒绝
func AsDenial(err error) (*Denial, bool) {
	var d *Denial
	if errors.As(err, &d) {
		return d, true
	}
	return nil, false
}

// IsDenial 判断错误是否为指定标签的拒绝
func IsDenial(err error, tag string) bool {
	d, ok := AsDenial(err)
	return ok && d.Tag == tag
}

// notFoundOr 记录不存在时转换为指定标签的拒绝，其余错误原样返回
func notFoundOr(err error, tag string) error {
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return Deny(tag)
	}
	return err
}
