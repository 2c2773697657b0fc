package service

import (
	"context"
	"errors"
	"strings"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
	"go.uber.org/zap"
	"gorm.io/gorm"

	"immersion/backend/config"
	"immersion/backend/internal/model"
	"immersion/backend/internal/repository"
	pkgerrors "immersion/backend/pkg/errors"
	"immersion/backend/pkg/mailer"
	"immersion/backend/pkg/metrics"
)

var tracer = otel.Tracer("immersion/backend/internal/service")

// SlotLocker 按时段串行化报名；redis 分布式锁与进程内 KeyedMutex 均满足该接口
type SlotLocker interface {
	Lock(ctx context.Context, key string) (func(), error)
}

// RegisterOptions 报名请求中的可选开关
type RegisterOptions struct {
	Force              bool
	AllowPendingRecord bool
}

// RegisterResult 个人报名结果
type RegisterResult struct {
	Immersion        *model.Immersion
	NotifyDisability string
	Forced           bool
	Bypassed         []string
}

// GroupRequest 团体报名参数
type GroupRequest struct {
	HighSchoolID  string
	StudentsCount int
	GuidesCount   int
	Emails        string
	Comments      string
	Force         bool
}

// BatchCancelResult 批量取消结果
type BatchCancelResult struct {
	Count  int
	Errors map[string]string
}

// AttendanceOutcome 单条出勤更新结果
type AttendanceOutcome struct {
	ImmersionID string
	Status      int
	Tag         string
}

// ProbeResult 资格预检结果
type ProbeResult struct {
	Decision Decision
	Seats    int
}

// RegistrationService 报名引擎的唯一写入口
type RegistrationService interface {
	RegisterIndividual(ctx context.Context, actor *model.User, slotID, personID string, opts RegisterOptions) (*RegisterResult, error)
	RegisterGroup(ctx context.Context, actor *model.User, slotID string, req GroupRequest) (*model.GroupImmersion, error)
	UpdateGroup(ctx context.Context, actor *model.User, groupID string, studentsCount, guidesCount int) (*model.GroupImmersion, error)
	Cancel(ctx context.Context, actor *model.User, immersionID, cancelTypeID string) error
	CancelGroup(ctx context.Context, actor *model.User, groupID, cancelTypeID string) error
	BatchCancel(ctx context.Context, actor *model.User, slotID string, immersionIDs []string, cancelTypeID string) (*BatchCancelResult, error)
	// SystemCancel 定时任务使用的取消（无操作人，跳过截止时间检查）
	SystemCancel(ctx context.Context, immersionID, cancelTypeCode, template string) error
	SetAttendance(ctx context.Context, actor *model.User, immersionIDs []string, status int) ([]AttendanceOutcome, error)
	MarkAttended(ctx context.Context, actor *model.User, immersionID string) error
	Probe(ctx context.Context, actor *model.User, slotID, personID string) (*ProbeResult, error)
	RemainingCounts(ctx context.Context, actor *model.User, personID string) ([]PeriodCount, error)
}

// RegistrationDeps 报名服务依赖
type RegistrationDeps struct {
	Config   *config.RegistrationConfig
	Feature  *config.FeatureConfig
	Repo     *repository.Repository
	Calendar CalendarService
	Ledger   *QuotaLedger
	Capacity *CapacityManager
	Locker   SlotLocker
	Notifier Notifier
	Clock    Clock
	Location *time.Location
	Metrics  *metrics.Metrics
	Logger   *zap.Logger
}

type registrationService struct {
	RegistrationDeps
}

// NewRegistrationService 创建 RegistrationService 实例
func NewRegistrationService(deps RegistrationDeps) RegistrationService {
	if deps.Location == nil {
		deps.Location = time.Local
	}
	if deps.Feature == nil {
		deps.Feature = &config.FeatureConfig{ActivateCohort: true}
	}
	return &registrationService{RegistrationDeps: deps}
}

func slotKey(slotID string) string { return "slot:" + slotID }

// ────────────────────── RegisterIndividual ──────────────────────

func (s *registrationService) RegisterIndividual(ctx context.Context, actor *model.User, slotID, personID string, opts RegisterOptions) (result *RegisterResult, err error) {
	start := time.Now()
	now := s.Clock.Now()
	ctx, span := tracer.Start(ctx, "registration.RegisterIndividual",
		trace.WithAttributes(attribute.String("slot_id", slotID)))
	defer func() {
		s.Metrics.ObserveRegister(start)
		s.finish(span, err)
	}()

	if personID == "" && actor != nil {
		personID = actor.UserID
	}

	slot, err := s.loadSlot(ctx, slotID)
	if err != nil {
		return nil, err
	}
	person, err := s.loadPerson(ctx, personID)
	if err != nil {
		return nil, err
	}
	record, err := s.findRecord(ctx, person.UserID)
	if err != nil {
		return nil, err
	}

	if d := Authorize(actor, OpRegister, Target{Slot: slot, Person: person, Record: record}); d != nil {
		return nil, s.deny(d)
	}

	periods, err := s.Calendar.Periods(ctx)
	if err != nil {
		return nil, err
	}
	period := PeriodOf(periods, slot.Date)
	ov := OverridesFor(actor, opts.Force, opts.AllowPendingRecord)

	facts, err := s.individualFacts(ctx, slot, period, person, record)
	if err != nil {
		return nil, err
	}
	decision := Evaluate(facts, now, IntentIndividual, ov)
	if !decision.Allowed {
		return nil, s.deny(decision.Denial)
	}

	imm, err := s.reserveIndividual(ctx, slot, period, person, record, actor, ov, now)
	if err != nil {
		return nil, err
	}

	s.Metrics.IncRegistration("individual")
	s.Logger.Info("个人报名成功",
		zap.String("immersion_id", imm.ImmersionID),
		zap.String("user_id", person.UserID),
		zap.String("slot_id", slot.SlotID),
		zap.Bool("forced", len(decision.Bypassed) > 0),
	)

	result = &RegisterResult{
		Immersion: imm,
		Forced:    len(decision.Bypassed) > 0,
		Bypassed:  decision.Bypassed,
	}
	result.NotifyDisability = s.notifyRegistration(ctx, slot, person, record, imm, now)
	return result, nil
}

// individualFacts 在锁外收集评估所需事实
func (s *registrationService) individualFacts(ctx context.Context, slot *model.Slot, period *model.Period, person *model.User, record *model.Record) (*Facts, error) {
	facts := &Facts{Slot: slot, Period: period, Record: record, Location: s.Location, SeatsNeeded: 1}

	if record != nil {
		items, err := s.Repo.Record.ListAttestations(ctx, record.RecordID)
		if err != nil {
			return nil, err
		}
		facts.Attestations = items
	}

	_, err := s.Repo.Immersion.FindLive(ctx, person.UserID, slot.SlotID)
	switch {
	case err == nil:
		facts.AlreadyRegistered = true
	case !errors.Is(err, gorm.ErrRecordNotFound):
		return nil, err
	}

	quota, err := s.Ledger.Status(ctx, s.Repo, person.UserID, slot, period)
	if err != nil {
		return nil, err
	}
	facts.Quota = quota

	seats, err := s.Capacity.Available(ctx, s.Repo, slot, SeatIndividual, "")
	if err != nil {
		return nil, err
	}
	facts.Seats = seats
	return facts, nil
}

// reserveIndividual 临界区：时段锁 → 事务（时段行锁、档案行锁）→ 配额 → 名额 → 写入
func (s *registrationService) reserveIndividual(ctx context.Context, slot *model.Slot, period *model.Period, person *model.User, record *model.Record, actor *model.User, ov Overrides, now time.Time) (*model.Immersion, error) {
	unlock, err := s.Locker.Lock(ctx, slotKey(slot.SlotID))
	if err != nil {
		return nil, err
	}
	defer unlock()

	var imm *model.Immersion
	var res *Reservation
	err = s.Repo.Transaction(ctx, func(tx *repository.Repository) error {
		locked, err := tx.Slot.GetForUpdate(ctx, slot.SlotID)
		if err != nil {
			return err
		}
		lockedRecord, err := tx.Record.GetByUserIDForUpdate(ctx, record.UserID)
		if err != nil {
			return err
		}

		res, err = s.Ledger.CheckAndReserve(ctx, tx, lockedRecord, locked, period, ov.Force)
		if err != nil {
			return err
		}
		if res.Existing != nil {
			return Deny(TagAlreadyRegistered)
		}

		if err := s.Capacity.Reserve(ctx, tx, locked, SeatIndividual, 1, ""); err != nil {
			s.Ledger.Release(ctx, res)
			return err
		}

		imm = &model.Immersion{
			UserID:           person.UserID,
			SlotID:           locked.SlotID,
			RegistrationDate: now,
		}
		if actor != nil && actor.UserID != person.UserID {
			imm.RegisteredBy = &actor.UserID
		}
		if err := tx.Immersion.Create(ctx, imm); err != nil {
			if pkgerrors.IsUniqueViolation(err) {
				return Deny(TagAlreadyRegistered)
			}
			return err
		}
		imm.Slot = locked
		imm.User = person
		return nil
	})
	if err != nil {
		if d, ok := AsDenial(err); ok {
			return nil, s.deny(d)
		}
		s.Logger.Error("写入报名失败", zap.String("slot_id", slot.SlotID), zap.Error(err))
		return nil, err
	}
	return imm, nil
}

// notifyRegistration 发送确认邮件，并根据残障设置决定是否通知接待负责人
func (s *registrationService) notifyRegistration(ctx context.Context, slot *model.Slot, person *model.User, record *model.Record, imm *model.Immersion, now time.Time) string {
	title := SlotTitle(slot)
	vars := s.slotVars(slot)
	vars["recipient"] = person.FullName()
	vars["immersion_id"] = imm.ImmersionID

	events := []Event{{
		Template:   model.TemplateImmersionConfirm,
		Recipients: []string{person.Email},
		Vars:       vars,
		DedupKey:   model.TemplateImmersionConfirm + ":" + imm.ImmersionID,
		Attachments: []mailer.Attachment{{
			Filename:    "immersion.ics",
			ContentType: "text/calendar; charset=utf-8; method=REQUEST",
			Content:     SlotInvite(slot, title, SlotPlace(slot), s.Location, now),
		}},
	}}

	notify, referent := s.disabilitySetting(ctx, slot, record)
	if notify == model.DisabilityNotifyChecked && referent != "" {
		events = append(events, Event{
			Template:   model.TemplateDisabilityReferent,
			Recipients: []string{referent},
			Vars:       vars,
			DedupKey:   model.TemplateDisabilityReferent + ":" + imm.ImmersionID,
		})
	}
	s.Notifier.Emit(ctx, events...)
	return notify
}

// disabilitySetting 报名者申报残障时，按时段归属（高中或机构）的设置决定通知方式
func (s *registrationService) disabilitySetting(ctx context.Context, slot *model.Slot, record *model.Record) (string, string) {
	if record == nil || !record.Disability {
		return model.DisabilityNotifyNever, ""
	}
	notify, referent := s.Config.DisabilityNotification, s.Config.DisabilityReferentEmail

	switch {
	case slot.HighSchoolID != nil:
		hs, err := s.Repo.Establishment.GetHighSchool(ctx, *slot.HighSchoolID)
		if err == nil {
			notify, referent = hs.DisabilityNotification, hs.DisabilityReferentEmail
		}
	case slot.EstablishmentID != nil:
		est, err := s.Repo.Establishment.GetEstablishment(ctx, *slot.EstablishmentID)
		if err == nil {
			notify, referent = est.DisabilityNotification, est.DisabilityReferentEmail
		}
	}
	if notify == "" {
		notify = model.DisabilityNotifyNever
	}
	return notify, referent
}

// ────────────────────── RegisterGroup ──────────────────────

func (s *registrationService) RegisterGroup(ctx context.Context, actor *model.User, slotID string, req GroupRequest) (group *model.GroupImmersion, err error) {
	now := s.Clock.Now()
	ctx, span := tracer.Start(ctx, "registration.RegisterGroup",
		trace.WithAttributes(attribute.String("slot_id", slotID)))
	defer func() { s.finish(span, err) }()

	if !s.Feature.ActivateCohort {
		return nil, s.deny(Deny(TagGroupsDisabled))
	}
	if req.HighSchoolID == "" && actor != nil && actor.HighSchoolID != nil {
		req.HighSchoolID = *actor.HighSchoolID
	}
	if req.HighSchoolID == "" {
		return nil, s.deny(Deny(TagInvalidParams))
	}
	if req.StudentsCount < 1 || req.GuidesCount < 0 {
		return nil, s.deny(Deny(TagInvalidGroupSize))
	}
	size := req.StudentsCount + req.GuidesCount

	slot, err := s.loadSlot(ctx, slotID)
	if err != nil {
		return nil, err
	}
	if _, err := s.Repo.Establishment.GetHighSchool(ctx, req.HighSchoolID); err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, s.deny(Deny(TagInvalidParams))
		}
		return nil, err
	}
	if d := Authorize(actor, OpRegisterGroup, Target{Slot: slot, HighSchoolID: req.HighSchoolID}); d != nil {
		return nil, s.deny(d)
	}

	periods, err := s.Calendar.Periods(ctx)
	if err != nil {
		return nil, err
	}
	facts := &Facts{
		Slot:              slot,
		Period:            PeriodOf(periods, slot.Date),
		GroupHighSchoolID: req.HighSchoolID,
		SeatsNeeded:       SeatsNeeded(slot, SeatGroup, size),
		Location:          s.Location,
	}
	if _, err := s.Repo.GroupImmersion.FindLiveByHighSchool(ctx, req.HighSchoolID, slot.SlotID); err == nil {
		facts.AlreadyRegistered = true
	} else if !errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, err
	}
	if facts.Seats, err = s.Capacity.Available(ctx, s.Repo, slot, SeatGroup, ""); err != nil {
		return nil, err
	}

	ov := OverridesFor(actor, req.Force, false)
	decision := Evaluate(facts, now, IntentGroup, ov)
	if !decision.Allowed {
		return nil, s.deny(decision.Denial)
	}

	group, err = s.reserveGroup(ctx, slot, req, actor, facts.SeatsNeeded, now)
	if err != nil {
		return nil, err
	}

	s.Metrics.IncRegistration("group")
	s.Logger.Info("团体报名成功",
		zap.String("group_immersion_id", group.GroupImmersionID),
		zap.String("high_school_id", group.HighSchoolID),
		zap.String("slot_id", slot.SlotID),
		zap.Int("size", size),
	)
	s.notifyGroup(ctx, model.TemplateGroupConfirm, slot, group, actor)
	return group, nil
}

func (s *registrationService) reserveGroup(ctx context.Context, slot *model.Slot, req GroupRequest, actor *model.User, needed int, now time.Time) (*model.GroupImmersion, error) {
	unlock, err := s.Locker.Lock(ctx, slotKey(slot.SlotID))
	if err != nil {
		return nil, err
	}
	defer unlock()

	var group *model.GroupImmersion
	err = s.Repo.Transaction(ctx, func(tx *repository.Repository) error {
		locked, err := tx.Slot.GetForUpdate(ctx, slot.SlotID)
		if err != nil {
			return err
		}
		if _, err := tx.GroupImmersion.FindLiveByHighSchool(ctx, req.HighSchoolID, locked.SlotID); err == nil {
			return Deny(TagAlreadyRegistered)
		} else if !errors.Is(err, gorm.ErrRecordNotFound) {
			return err
		}
		if err := s.Capacity.Reserve(ctx, tx, locked, SeatGroup, needed, ""); err != nil {
			return err
		}
		group = &model.GroupImmersion{
			HighSchoolID:     req.HighSchoolID,
			SlotID:           locked.SlotID,
			StudentsCount:    req.StudentsCount,
			GuidesCount:      req.GuidesCount,
			RegistrationDate: now,
			Emails:           req.Emails,
			Comments:         req.Comments,
		}
		if actor != nil {
			group.RegisteredBy = &actor.UserID
		}
		if err := tx.GroupImmersion.Create(ctx, group); err != nil {
			return err
		}
		group.Slot = locked
		return nil
	})
	if err != nil {
		if d, ok := AsDenial(err); ok {
			return nil, s.deny(d)
		}
		s.Logger.Error("写入团体报名失败", zap.String("slot_id", slot.SlotID), zap.Error(err))
		return nil, err
	}
	return group, nil
}

// ────────────────────── UpdateGroup ──────────────────────

// UpdateGroup 修改团体人数；名额按新旧差值复核（不计本团体原占用）
func (s *registrationService) UpdateGroup(ctx context.Context, actor *model.User, groupID string, studentsCount, guidesCount int) (*model.GroupImmersion, error) {
	now := s.Clock.Now()
	if studentsCount < 1 || guidesCount < 0 {
		return nil, s.deny(Deny(TagInvalidGroupSize))
	}

	group, err := s.Repo.GroupImmersion.GetByID(ctx, groupID)
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, s.deny(Deny(TagUnknownImmersion))
		}
		return nil, err
	}
	if group.IsCancelled() {
		return nil, s.deny(Deny(TagAlreadyCancelled))
	}
	slot, err := s.loadSlot(ctx, group.SlotID)
	if err != nil {
		return nil, err
	}
	if d := Authorize(actor, OpRegisterGroup, Target{Slot: slot, HighSchoolID: group.HighSchoolID}); d != nil {
		return nil, s.deny(d)
	}
	if !now.Before(slot.StartAt(s.Location)) {
		return nil, s.deny(Deny(TagSlotPast))
	}

	oldSize := group.Size()
	newSize := studentsCount + guidesCount

	unlock, err := s.Locker.Lock(ctx, slotKey(slot.SlotID))
	if err != nil {
		return nil, err
	}
	err = s.Repo.Transaction(ctx, func(tx *repository.Repository) error {
		locked, err := tx.Slot.GetForUpdate(ctx, slot.SlotID)
		if err != nil {
			return err
		}
		current, err := tx.GroupImmersion.GetByIDForUpdate(ctx, groupID)
		if err != nil {
			return err
		}
		if current.IsCancelled() {
			return Deny(TagAlreadyCancelled)
		}
		if newSize > oldSize {
			if err := s.Capacity.Reserve(ctx, tx, locked, SeatGroup, SeatsNeeded(locked, SeatGroup, newSize), groupID); err != nil {
				return err
			}
		}
		current.StudentsCount = studentsCount
		current.GuidesCount = guidesCount
		if err := tx.GroupImmersion.Update(ctx, current); err != nil {
			return err
		}
		group = current
		return nil
	})
	unlock()
	if err != nil {
		if d, ok := AsDenial(err); ok {
			return nil, s.deny(d)
		}
		return nil, err
	}

	if newSize < oldSize && slot.GroupMode == model.GroupModeShared {
		s.Capacity.Release(ctx, slot, SeatGroup, oldSize-newSize)
	}
	s.Logger.Info("团体人数已修改",
		zap.String("group_immersion_id", groupID),
		zap.Int("old_size", oldSize),
		zap.Int("new_size", newSize),
	)
	return group, nil
}

// ────────────────────── Cancel ──────────────────────

func (s *registrationService) Cancel(ctx context.Context, actor *model.User, immersionID, cancelTypeID string) (err error) {
	now := s.Clock.Now()
	ctx, span := tracer.Start(ctx, "registration.Cancel",
		trace.WithAttributes(attribute.String("immersion_id", immersionID)))
	defer func() { s.finish(span, err) }()

	imm, err := s.loadImmersion(ctx, immersionID)
	if err != nil {
		return err
	}
	record, err := s.findRecord(ctx, imm.UserID)
	if err != nil {
		return err
	}
	if d := Authorize(actor, OpCancel, Target{Slot: imm.Slot, Person: imm.User, Record: record}); d != nil {
		return s.deny(d)
	}
	if imm.IsCancelled() {
		return s.deny(Deny(TagAlreadyCancelled))
	}

	ct, err := s.cancelType(ctx, cancelTypeID, actor, false)
	if err != nil {
		return err
	}

	decision := Evaluate(&Facts{Slot: imm.Slot, Location: s.Location}, now, IntentCancel, Overrides{})
	if !decision.Allowed {
		return s.deny(decision.Denial)
	}

	if err := s.markCancelled(ctx, imm, ct, &actor.UserID, now); err != nil {
		return err
	}

	origin := "self"
	if actor.UserID != imm.UserID {
		origin = "manager"
	}
	s.Metrics.IncCancellation(origin)
	s.Logger.Info("报名已取消",
		zap.String("immersion_id", imm.ImmersionID),
		zap.String("cancel_type", ct.Code),
		zap.String("origin", origin),
	)

	s.Capacity.Release(ctx, imm.Slot, SeatIndividual, 1)
	s.notifyCancellation(ctx, imm, model.TemplateImmersionCancel, ct, now)
	return nil
}

// SystemCancel 无操作人的取消（证明文件过期）；只要求时段尚未开始
func (s *registrationService) SystemCancel(ctx context.Context, immersionID, cancelTypeCode, template string) error {
	now := s.Clock.Now()
	imm, err := s.loadImmersion(ctx, immersionID)
	if err != nil {
		return err
	}
	if imm.IsCancelled() {
		return s.deny(Deny(TagAlreadyCancelled))
	}
	if !now.Before(imm.Slot.StartAt(s.Location)) {
		return s.deny(Deny(TagSlotHasStarted))
	}
	ct, err := s.Repo.CancelType.GetByCode(ctx, cancelTypeCode)
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			s.Logger.Warn("系统取消原因缺失", zap.String("tag", TagConfigMissing), zap.String("code", cancelTypeCode))
			return Denyf(TagConfigMissing, "取消原因 %s 不存在", cancelTypeCode)
		}
		return err
	}

	if err := s.markCancelled(ctx, imm, ct, nil, now); err != nil {
		return err
	}
	s.Metrics.IncCancellation("system")
	s.Capacity.Release(ctx, imm.Slot, SeatIndividual, 1)
	s.notifyCancellation(ctx, imm, template, ct, now)
	return nil
}

// markCancelled 在时段锁内标记取消；已取消的报名不会被再次修改
func (s *registrationService) markCancelled(ctx context.Context, imm *model.Immersion, ct *model.CancelType, cancelledBy *string, now time.Time) error {
	unlock, err := s.Locker.Lock(ctx, slotKey(imm.SlotID))
	if err != nil {
		return err
	}
	defer unlock()

	err = s.Repo.Transaction(ctx, func(tx *repository.Repository) error {
		if _, err := tx.Slot.GetForUpdate(ctx, imm.SlotID); err != nil {
			return err
		}
		current, err := tx.Immersion.GetByIDForUpdate(ctx, imm.ImmersionID)
		if err != nil {
			return err
		}
		if current.IsCancelled() {
			return Deny(TagAlreadyCancelled)
		}
		current.CancellationTypeID = &ct.CancelTypeID
		current.CancellationDate = &now
		current.CancelledBy = cancelledBy
		if err := tx.Immersion.Update(ctx, current); err != nil {
			return err
		}
		imm.CancellationTypeID = current.CancellationTypeID
		imm.CancellationDate = current.CancellationDate
		imm.CancelledBy = cancelledBy
		return nil
	})
	if err != nil {
		if d, ok := AsDenial(err); ok {
			return s.deny(d)
		}
		s.Logger.Error("取消报名失败", zap.String("immersion_id", imm.ImmersionID), zap.Error(err))
		return err
	}
	s.Ledger.Release(ctx, &Reservation{UserID: imm.UserID, SlotID: imm.SlotID})
	return nil
}

// cancelType 校验取消原因是否可被当前操作者使用
func (s *registrationService) cancelType(ctx context.Context, id string, actor *model.User, group bool) (*model.CancelType, error) {
	if id == "" {
		return nil, s.deny(Deny(TagNoCancellationReason))
	}
	ct, err := s.Repo.CancelType.GetByID(ctx, id)
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, s.deny(Deny(TagBadReason))
		}
		return nil, err
	}
	usable := ct.Active && !ct.System
	switch {
	case group:
		usable = usable && ct.Groups
	case actor.IsAttendee():
		usable = usable && ct.Students
	default:
		usable = usable && ct.Managers
	}
	if !usable {
		return nil, s.deny(Deny(TagBadReason))
	}
	return ct, nil
}

// notifyCancellation 通知报名者；报名窗口已关闭时再通知授课人、结构负责人与高中负责人
func (s *registrationService) notifyCancellation(ctx context.Context, imm *model.Immersion, template string, ct *model.CancelType, now time.Time) {
	slot := imm.Slot
	vars := s.slotVars(slot)
	vars["cancel_reason"] = ct.Label
	if imm.User != nil {
		vars["recipient"] = imm.User.FullName()
		vars["attendee"] = imm.User.FullName()
	}

	var events []Event
	if imm.User != nil {
		events = append(events, Event{
			Template:   template,
			Recipients: []string{imm.User.Email},
			Vars:       vars,
			DedupKey:   template + ":" + imm.ImmersionID,
		})
	}

	if now.After(slot.RegistrationLimitDate(s.Location)) {
		key := ":" + imm.ImmersionID
		if speakers := s.speakerEmails(ctx, slot); len(speakers) > 0 {
			events = append(events, Event{
				Template:   model.TemplateCancelSpeaker,
				Recipients: speakers,
				Vars:       vars,
				DedupKey:   model.TemplateCancelSpeaker + key,
			})
		}
		if managers := s.referentEmails(ctx, slot); len(managers) > 0 {
			events = append(events, Event{
				Template:   model.TemplateCancelStructure,
				Recipients: managers,
				Vars:       vars,
				DedupKey:   model.TemplateCancelStructure + key,
			})
		}
	}
	s.Notifier.Emit(ctx, events...)
}

// ────────────────────── CancelGroup ──────────────────────

// CancelGroup 团体整体取消，不支持部分取消
func (s *registrationService) CancelGroup(ctx context.Context, actor *model.User, groupID, cancelTypeID string) error {
	now := s.Clock.Now()
	group, err := s.Repo.GroupImmersion.GetByID(ctx, groupID)
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return s.deny(Deny(TagUnknownImmersion))
		}
		return err
	}
	slot, err := s.loadSlot(ctx, group.SlotID)
	if err != nil {
		return err
	}
	if d := Authorize(actor, OpRegisterGroup, Target{Slot: slot, HighSchoolID: group.HighSchoolID}); d != nil {
		return s.deny(d)
	}
	if group.IsCancelled() {
		return s.deny(Deny(TagAlreadyCancelled))
	}
	ct, err := s.cancelType(ctx, cancelTypeID, actor, true)
	if err != nil {
		return err
	}
	decision := Evaluate(&Facts{Slot: slot, Location: s.Location}, now, IntentCancel, Overrides{})
	if !decision.Allowed {
		return s.deny(decision.Denial)
	}

	unlock, err := s.Locker.Lock(ctx, slotKey(slot.SlotID))
	if err != nil {
		return err
	}
	err = s.Repo.Transaction(ctx, func(tx *repository.Repository) error {
		current, err := tx.GroupImmersion.GetByIDForUpdate(ctx, groupID)
		if err != nil {
			return err
		}
		if current.IsCancelled() {
			return Deny(TagAlreadyCancelled)
		}
		current.CancellationTypeID = &ct.CancelTypeID
		current.CancellationDate = &now
		if err := tx.GroupImmersion.Update(ctx, current); err != nil {
			return err
		}
		group = current
		return nil
	})
	unlock()
	if err != nil {
		if d, ok := AsDenial(err); ok {
			return s.deny(d)
		}
		return err
	}

	s.Metrics.IncCancellation("group")
	s.Capacity.Release(ctx, slot, SeatGroup, SeatsNeeded(slot, SeatGroup, group.Size()))
	s.notifyGroup(ctx, model.TemplateGroupCancel, slot, group, actor)
	return nil
}

func (s *registrationService) notifyGroup(ctx context.Context, template string, slot *model.Slot, group *model.GroupImmersion, actor *model.User) {
	vars := s.slotVars(slot)
	vars["students_count"] = group.StudentsCount
	vars["guides_count"] = group.GuidesCount

	recipients := splitEmails(group.Emails)
	if actor != nil && actor.Email != "" {
		recipients = append(recipients, actor.Email)
	}
	s.Notifier.Emit(ctx, Event{
		Template:   template,
		Recipients: uniqueStrings(recipients),
		Vars:       vars,
		DedupKey:   template + ":" + group.GroupImmersionID,
	})
}

// ────────────────────── BatchCancel ──────────────────────

// BatchCancel 逐条取消，单条拒绝不影响其他条目
func (s *registrationService) BatchCancel(ctx context.Context, actor *model.User, slotID string, immersionIDs []string, cancelTypeID string) (*BatchCancelResult, error) {
	if slotID == "" || len(immersionIDs) == 0 || cancelTypeID == "" {
		return nil, s.deny(Deny(TagInvalidParams))
	}

	result := &BatchCancelResult{Errors: map[string]string{}}
	for _, id := range immersionIDs {
		imm, err := s.Repo.Immersion.GetByID(ctx, id)
		if err != nil {
			if errors.Is(err, gorm.ErrRecordNotFound) {
				result.Errors[id] = TagUnknownImmersion
				continue
			}
			return nil, err
		}
		if imm.SlotID != slotID {
			result.Errors[id] = TagInvalidParams
			continue
		}

		err = s.Cancel(ctx, actor, id, cancelTypeID)
		if err == nil {
			result.Count++
			continue
		}
		d, ok := AsDenial(err)
		if !ok {
			return nil, err
		}
		result.Errors[id] = d.Tag
	}
	return result, nil
}

// ────────────────────── SetAttendance ──────────────────────

// SetAttendance 单条更新时，状态与当前一致则重置为未录入；批量更新不做切换
func (s *registrationService) SetAttendance(ctx context.Context, actor *model.User, immersionIDs []string, status int) ([]AttendanceOutcome, error) {
	if status < model.AttendanceNotEntered || status > model.AttendanceAbsent {
		return nil, s.deny(Deny(TagBadStatus))
	}
	if len(immersionIDs) == 0 {
		return nil, s.deny(Deny(TagInvalidParams))
	}

	toggle := len(immersionIDs) == 1
	outcomes := make([]AttendanceOutcome, 0, len(immersionIDs))
	for _, id := range immersionIDs {
		out := AttendanceOutcome{ImmersionID: id}
		newStatus, err := s.setAttendance(ctx, actor, id, status, toggle)
		if err != nil {
			d, ok := AsDenial(err)
			if !ok {
				return nil, err
			}
			out.Tag = d.Tag
		}
		out.Status = newStatus
		outcomes = append(outcomes, out)
	}
	return outcomes, nil
}

// MarkAttended 扫码签到：直接标记为出席
func (s *registrationService) MarkAttended(ctx context.Context, actor *model.User, immersionID string) error {
	_, err := s.setAttendance(ctx, actor, immersionID, model.AttendanceAttended, false)
	return err
}

func (s *registrationService) setAttendance(ctx context.Context, actor *model.User, id string, status int, toggle bool) (int, error) {
	imm, err := s.loadImmersion(ctx, id)
	if err != nil {
		return 0, err
	}
	if d := Authorize(actor, OpSetAttendance, Target{Slot: imm.Slot, Person: imm.User}); d != nil {
		return imm.AttendanceStatus, s.deny(d)
	}
	if imm.IsCancelled() {
		return imm.AttendanceStatus, s.deny(Deny(TagAlreadyCancelled))
	}

	newStatus := status
	if toggle && imm.AttendanceStatus == status {
		newStatus = model.AttendanceNotEntered
	}
	imm.AttendanceStatus = newStatus
	if err := s.Repo.Immersion.Update(ctx, imm); err != nil {
		s.Logger.Error("更新出勤状态失败", zap.String("immersion_id", id), zap.Error(err))
		return 0, err
	}
	s.Logger.Info("出勤状态已更新",
		zap.String("immersion_id", id),
		zap.Int("status", newStatus),
		zap.String("actor_id", actor.UserID),
	)
	return newStatus, nil
}

// ────────────────────── Probe ──────────────────────

// Probe 只读地执行资格评估
func (s *registrationService) Probe(ctx context.Context, actor *model.User, slotID, personID string) (*ProbeResult, error) {
	now := s.Clock.Now()
	if personID == "" && actor != nil {
		personID = actor.UserID
	}
	slot, err := s.loadSlot(ctx, slotID)
	if err != nil {
		return nil, err
	}
	person, err := s.loadPerson(ctx, personID)
	if err != nil {
		return nil, err
	}
	record, err := s.findRecord(ctx, person.UserID)
	if err != nil {
		return nil, err
	}
	if d := Authorize(actor, OpRegister, Target{Slot: slot, Person: person, Record: record}); d != nil {
		return nil, d
	}
	periods, err := s.Calendar.Periods(ctx)
	if err != nil {
		return nil, err
	}
	facts, err := s.individualFacts(ctx, slot, PeriodOf(periods, slot.Date), person, record)
	if err != nil {
		return nil, err
	}
	return &ProbeResult{
		Decision: Evaluate(facts, now, IntentIndividual, OverridesFor(actor, false, false)),
		Seats:    facts.Seats,
	}, nil
}

// ────────────────────── RemainingCounts ──────────────────────

func (s *registrationService) RemainingCounts(ctx context.Context, actor *model.User, personID string) ([]PeriodCount, error) {
	person, err := s.loadPerson(ctx, personID)
	if err != nil {
		return nil, err
	}
	record, err := s.findRecord(ctx, person.UserID)
	if err != nil {
		return nil, err
	}
	if d := Authorize(actor, OpViewRemaining, Target{Person: person, Record: record}); d != nil {
		return nil, d
	}
	periods, err := s.Calendar.Periods(ctx)
	if err != nil {
		return nil, err
	}
	return s.Ledger.RemainingCounts(ctx, s.Repo, periods, person.UserID)
}

// ────────────────────── 辅助函数 ──────────────────────

func (s *registrationService) loadSlot(ctx context.Context, id string) (*model.Slot, error) {
	slot, err := s.Repo.Slot.GetByID(ctx, id)
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, s.deny(Deny(TagUnknownSlot))
		}
		return nil, err
	}
	return slot, nil
}

func (s *registrationService) loadPerson(ctx context.Context, id string) (*model.User, error) {
	if id == "" {
		return nil, s.deny(Deny(TagUnknownPerson))
	}
	u, err := s.Repo.User.GetByID(ctx, id)
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, s.deny(Deny(TagUnknownPerson))
		}
		return nil, err
	}
	return u, nil
}

func (s *registrationService) loadImmersion(ctx context.Context, id string) (*model.Immersion, error) {
	imm, err := s.Repo.Immersion.GetByID(ctx, id)
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, s.deny(Deny(TagUnknownImmersion))
		}
		return nil, err
	}
	if imm.Slot == nil {
		slot, err := s.loadSlot(ctx, imm.SlotID)
		if err != nil {
			return nil, err
		}
		imm.Slot = slot
	}
	return imm, nil
}

// findRecord 档案不存在时返回 nil
func (s *registrationService) findRecord(ctx context.Context, userID string) (*model.Record, error) {
	rec, err := s.Repo.Record.GetByUserID(ctx, userID)
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, nil
		}
		return nil, err
	}
	return rec, nil
}

func (s *registrationService) speakerEmails(ctx context.Context, slot *model.Slot) []string {
	if len(slot.SpeakerIDs) == 0 {
		return nil
	}
	users, err := s.Repo.User.ListByIDs(ctx, slot.SpeakerIDs)
	if err != nil {
		s.Logger.Warn("查询授课人失败", zap.String("slot_id", slot.SlotID), zap.Error(err))
		return nil
	}
	emails := make([]string, 0, len(users))
	for _, u := range users {
		emails = append(emails, u.Email)
	}
	return emails
}

// referentEmails 订阅了通知的结构负责人；高中时段为高中负责人
func (s *registrationService) referentEmails(ctx context.Context, slot *model.Slot) []string {
	var (
		users []model.User
		err   error
	)
	switch {
	case slot.HighSchoolID != nil:
		users, err = s.Repo.User.ListHighSchoolManagers(ctx, *slot.HighSchoolID)
	case slot.StructureID != nil:
		users, err = s.Repo.User.ListStructureManagers(ctx, *slot.StructureID)
	default:
		return nil
	}
	if err != nil {
		s.Logger.Warn("查询时段负责人失败", zap.String("slot_id", slot.SlotID), zap.Error(err))
		return nil
	}
	emails := make([]string, 0, len(users))
	for _, u := range users {
		if slot.StructureID != nil && slot.HighSchoolID == nil && !u.ReceiveStructureNotifications {
			continue
		}
		emails = append(emails, u.Email)
	}
	return emails
}

func (s *registrationService) slotVars(slot *model.Slot) map[string]interface{} {
	return slotVars(slot, s.Location)
}

// slotVars 邮件模板中与时段相关的变量
func slotVars(slot *model.Slot, loc *time.Location) map[string]interface{} {
	return map[string]interface{}{
		"slot_id":    slot.SlotID,
		"title":      SlotTitle(slot),
		"date":       slot.Date.Format(model.DateLayout),
		"start_time": slot.StartTime,
		"end_time":   slot.EndTime,
		"place":      SlotPlace(slot),
		"starts_at":  slot.StartAt(loc).Format(time.RFC3339),
	}
}

// deny 记录拒绝指标后原样返回
func (s *registrationService) deny(d *Denial) error {
	s.Metrics.IncDenial(d.Tag)
	return d
}

func (s *registrationService) finish(span trace.Span, err error) {
	if err != nil {
		if d, ok := AsDenial(err); ok {
			span.SetAttributes(attribute.String("denial", d.Tag))
		} else {
			span.RecordError(err)
			span.SetStatus(codes.Error, err.Error())
		}
	}
	span.End()
}

func splitEmails(raw string) []string {
	fields := strings.FieldsFunc(raw, func(r rune) bool {
		return r == ',' || r == ';' || r == '\n' || r == ' '
	})
	result := make([]string, 0, len(fields))
	for _, f := range fields {
		if f = strings.TrimSpace(f); f != "" {
			result = append(result, f)
		}
	}
	return result
}

func uniqueStrings(items []string) []string {
	seen := make(map[string]struct{}, len(items))
	result := make([]string, 0, len(items))
	for _, v := range items {
		key := strings.ToLower(v)
		if _, ok := seen[key]; ok {
			continue
		}
		seen[key] = struct{}{}
		result = append(result, v)
	}
	return result
}
