package service

import (
	"context"
	"errors"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/lib/pq"
	"go.uber.org/zap"

	"immersion/backend/config"
	"immersion/backend/internal/model"
	"immersion/backend/internal/repository"
	"immersion/backend/pkg/jwt"
	"immersion/backend/pkg/mailer"
)

// testNow 2026-03-02 为周一
var testNow = time.Date(2026, 3, 2, 9, 0, 0, 0, time.UTC)

// day 相对 testNow 的日历日期（零点）
func day(offset int) time.Time {
	return time.Date(2026, 3, 2+offset, 0, 0, 0, 0, time.UTC)
}

func strPtr(s string) *string { return &s }

// ── 记录型 Mailer ──

type recordingMailer struct {
	mu   sync.Mutex
	sent []mailer.Message
	fail map[string]bool
}

func newRecordingMailer() *recordingMailer {
	return &recordingMailer{fail: make(map[string]bool)}
}

func (m *recordingMailer) Send(_ context.Context, msg *mailer.Message) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, to := range msg.To {
		if m.fail[to] {
			return errors.New("smtp: 550 mailbox unavailable")
		}
	}
	m.sent = append(m.sent, *msg)
	return nil
}

func (m *recordingMailer) count() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.sent)
}

func (m *recordingMailer) to(addr string) []mailer.Message {
	m.mu.Lock()
	defer m.mu.Unlock()
	var result []mailer.Message
	for _, msg := range m.sent {
		for _, to := range msg.To {
			if to == addr {
				result = append(result, msg)
			}
		}
	}
	return result
}

// ── 测试环境 ──

type testEnv struct {
	t      *testing.T
	ctx    context.Context
	cfg    *config.Config
	repo   *repository.Repository
	store  *memStore
	clock  *FixedClock
	mailer *recordingMailer
	jwt    *jwt.Manager
	svc    *Service

	operator      *model.User
	structManager *model.User
	estManager    *model.User
	hsManager     *model.User
	speaker       *model.User
}

// newTestEnv 组装完整的 Service 聚合：学年 2025-2026 启用，唯一周期覆盖 2025-09-01 至 2026-06-30（allowed=4）
func newTestEnv(t *testing.T, opts ...func(*config.Config)) *testEnv {
	t.Helper()

	cfg := testAuthConfig()
	cfg.Server.Timezone = "UTC"
	cfg.Mail.Disabled = true
	cfg.Feature.ActivateCohort = true
	cfg.Registration = config.RegistrationConfig{
		DefaultTrainingQuota:          1,
		NbDaysSlotReminder:            1,
		NbDaysSpeakerSlotReminder:     3,
		NbWeeksStructuresSlotReminder: 1,
		StructuresReminderWeekday:     "monday",
		AutoSlotUnsubscribeDelay:      7,
		GlobalMailingList:             "global.txt",
		DisabilityNotification:        model.DisabilityNotifyNever,
	}
	base := t.TempDir()
	cfg.Jobs = config.JobsConfig{
		MailingListDir: filepath.Join(base, "lists"),
		StatisticsDir:  filepath.Join(base, "stats"),
		HTTPTimeout:    5 * time.Second,
	}
	for _, opt := range opts {
		opt(cfg)
	}

	repo, store := newMockRepository()
	env := &testEnv{
		t:      t,
		ctx:    context.Background(),
		cfg:    cfg,
		repo:   repo,
		store:  store,
		clock:  NewFixedClock(testNow),
		mailer: newRecordingMailer(),
		jwt:    jwt.NewManager(&cfg.Auth),
	}
	env.seed()
	env.svc = NewService(Deps{
		Config: cfg,
		Repo:   repo,
		JWT:    env.jwt,
		Mailer: env.mailer,
		Clock:  env.clock,
		Logger: zap.NewNop(),
	})
	return env
}

func (e *testEnv) seed() {
	s := e.store
	s.years["year-1"] = &model.UniversityYear{
		YearID:                "year-1",
		Label:                 "2025-2026",
		StartDate:             time.Date(2025, 9, 1, 0, 0, 0, 0, time.UTC),
		EndDate:               time.Date(2026, 7, 31, 0, 0, 0, 0, time.UTC),
		RegistrationStartDate: time.Date(2025, 9, 1, 0, 0, 0, 0, time.UTC),
		Active:                true,
	}
	s.periods["period-1"] = &model.Period{
		PeriodID:              "period-1",
		YearID:                "year-1",
		Label:                 "Année 2025-2026",
		RegistrationStartDate: time.Date(2025, 9, 1, 0, 0, 0, 0, time.UTC),
		ImmersionStartDate:    time.Date(2025, 9, 1, 0, 0, 0, 0, time.UTC),
		ImmersionEndDate:      time.Date(2026, 6, 30, 0, 0, 0, 0, time.UTC),
		AllowedImmersions:     4,
	}

	s.establishments["est-1"] = &model.Establishment{
		EstablishmentID:         "est-1",
		Code:                    "UNISTRA",
		Label:                   "Université de Strasbourg",
		Active:                  true,
		DisabilityNotification:  model.DisabilityNotifyChecked,
		DisabilityReferentEmail: "handicap@unistra.fr",
	}
	s.structures["str-1"] = &model.Structure{
		StructureID:     "str-1",
		Code:            "UFR-MATH",
		Label:           "UFR Mathématiques",
		EstablishmentID: "est-1",
		MailingList:     "ufr-math.txt",
		Active:          true,
	}
	s.highSchools["hs-1"] = &model.HighSchool{
		HighSchoolID:   "hs-1",
		Label:          "Lycée Kléber",
		City:           "Strasbourg",
		WithConvention: true,
		Active:         true,
	}

	s.trainings["tr-1"] = &model.Training{TrainingID: "tr-1", Label: "Licence Mathématiques", StructureIDs: pq.StringArray{"str-1"}, Active: true}
	s.trainings["tr-2"] = &model.Training{TrainingID: "tr-2", Label: "Licence Informatique", StructureIDs: pq.StringArray{"str-1"}, Active: true}
	s.courses["course-1"] = &model.Course{CourseID: "course-1", Label: "Analyse", TrainingID: "tr-1", StructureID: strPtr("str-1"), Published: true, SpeakerIDs: pq.StringArray{"speaker-1"}}
	s.courses["course-2"] = &model.Course{CourseID: "course-2", Label: "Algorithmique", TrainingID: "tr-2", StructureID: strPtr("str-1"), Published: true}
	s.events["event-1"] = &model.OffOfferEvent{EventID: "event-1", Label: "Journée portes ouvertes", EventType: "open_day", EstablishmentID: strPtr("est-1"), Published: true}

	e.operator = e.addUser("operator", model.RoleOperator, nil)
	e.structManager = e.addUser("sm-1", model.RoleStructureManager, func(u *model.User) {
		u.StructureIDs = pq.StringArray{"str-1"}
		u.EstablishmentID = strPtr("est-1")
		u.ReceiveStructureNotifications = true
	})
	e.estManager = e.addUser("em-1", model.RoleEstablishmentManager, func(u *model.User) {
		u.EstablishmentID = strPtr("est-1")
	})
	e.hsManager = e.addUser("hsm-1", model.RoleHighSchoolManager, func(u *model.User) {
		u.HighSchoolID = strPtr("hs-1")
		u.ReceiveRegisteredStudentsList = true
	})
	e.speaker = e.addUser("speaker-1", model.RoleSpeaker, nil)

	s.cancelTypes["ct-student"] = &model.CancelType{CancelTypeID: "ct-student", Code: "EMP", Label: "Empêchement", Active: true, Students: true}
	s.cancelTypes["ct-manager"] = &model.CancelType{CancelTypeID: "ct-manager", Code: "ANN", Label: "Annulation du cours", Active: true, Managers: true}
	s.cancelTypes["ct-group"] = &model.CancelType{CancelTypeID: "ct-group", Code: "GRP", Label: "Sortie annulée", Active: true, Groups: true}
	s.cancelTypes["ct-att"] = &model.CancelType{CancelTypeID: "ct-att", Code: model.CancelTypeAttestationCode, Label: "Attestation expirée", Active: true, System: true}
	s.cancelTypes["ct-inactive"] = &model.CancelType{CancelTypeID: "ct-inactive", Code: "OLD", Label: "Ancien motif", Students: true, Managers: true}

	for _, code := range []string{
		model.TemplateImmersionConfirm, model.TemplateImmersionCancel, model.TemplateCancelSpeaker,
		model.TemplateCancelStructure, model.TemplateSlotReminder, model.TemplateSpeakerReminder,
		model.TemplateClosedSpeaker, model.TemplateClosedStructure, model.TemplateStructureWeekly,
		model.TemplateEvaluation, model.TemplateCourseAlert, model.TemplateAttestationCancellation,
		model.TemplatePendingValidations, model.TemplateDisabilityReferent, model.TemplateRecordValidated,
		model.TemplateRecordRejected, model.TemplateGroupConfirm, model.TemplateGroupCancel,
	} {
		s.templates[code] = &model.MailTemplate{
			Code:    code,
			Label:   code,
			Subject: "[{{.title}}] " + code,
			Body:    "Bonjour {{.recipient}}, {{.date}} {{.start_time}}",
			Active:  true,
		}
	}
}

func (e *testEnv) addUser(id, role string, mut func(*model.User)) *model.User {
	u := &model.User{
		UserID:    id,
		Email:     id + "@example.fr",
		FirstName: "Prénom",
		LastName:  id,
		Role:      role,
		IsActive:  true,
	}
	if mut != nil {
		mut(u)
	}
	e.store.users[id] = u
	c := *u
	return &c
}

// addPupil 高中生账号及已审核的档案（hs-1，年级 terminale）
func (e *testEnv) addPupil(id string, mut ...func(*model.Record)) *model.User {
	u := e.addUser(id, model.RolePupil, func(u *model.User) {
		u.Email = id + "@lycee.fr"
		u.HighSchoolID = strPtr("hs-1")
	})
	rec := &model.Record{
		RecordID:     "rec-" + id,
		UserID:       id,
		Kind:         model.RecordKindPupil,
		Validation:   model.ValidationValidated,
		HighSchoolID: strPtr("hs-1"),
		Level:        "terminale",
		BachelorType: model.BachelorGeneral,
	}
	for _, m := range mut {
		m(rec)
	}
	e.store.records[rec.RecordID] = rec
	return u
}

// addStudent 大学生账号及已审核的档案（est-1，L1）
func (e *testEnv) addStudent(id string, mut ...func(*model.Record)) *model.User {
	u := e.addUser(id, model.RoleStudent, func(u *model.User) {
		u.Email = id + "@etu.unistra.fr"
		u.EstablishmentID = strPtr("est-1")
	})
	rec := &model.Record{
		RecordID:        "rec-" + id,
		UserID:          id,
		Kind:            model.RecordKindStudent,
		Validation:      model.ValidationValidated,
		EstablishmentID: strPtr("est-1"),
		PostBacLevel:    "L1",
		OriginBachelor:  model.BachelorGeneral,
	}
	for _, m := range mut {
		m(rec)
	}
	e.store.records[rec.RecordID] = rec
	return u
}

// addSlot 课程 course-1 的已发布时段：10:00-12:00，报名与取消截止提前 24 小时
func (e *testEnv) addSlot(id string, dayOffset, nPlaces int, mut ...func(*model.Slot)) *model.Slot {
	slot := &model.Slot{
		SlotID:                       id,
		Kind:                         model.SlotKindCourse,
		CourseID:                     strPtr("course-1"),
		TrainingID:                   strPtr("tr-1"),
		StructureID:                  strPtr("str-1"),
		EstablishmentID:              strPtr("est-1"),
		Date:                         day(dayOffset),
		StartTime:                    "10:00",
		EndTime:                      "12:00",
		PlaceKind:                    model.PlaceFaceToFace,
		CampusID:                     strPtr("campus-1"),
		BuildingID:                   strPtr("building-1"),
		Room:                         "Amphi A",
		NPlaces:                      nPlaces,
		AllowIndividualRegistrations: true,
		RegistrationLimitDelay:       24,
		CancellationLimitDelay:       24,
		Published:                    true,
		SpeakerIDs:                   pq.StringArray{"speaker-1"},
	}
	for _, m := range mut {
		m(slot)
	}
	e.store.slots[id] = slot
	c := *slot
	return &c
}

// addImmersion 直接写入一条有效报名（不经过报名引擎）
func (e *testEnv) addImmersion(id, userID, slotID string) {
	e.store.immersions[id] = &model.Immersion{
		ImmersionID:      id,
		UserID:           userID,
		SlotID:           slotID,
		RegistrationDate: testNow.AddDate(0, 0, -10),
	}
}

func (e *testEnv) register(actor *model.User, slotID string) (*RegisterResult, error) {
	return e.svc.Registration.RegisterIndividual(e.ctx, actor, slotID, "", RegisterOptions{})
}

// remaining period-1 的剩余次数
func (e *testEnv) remaining(person *model.User) int {
	e.t.Helper()
	counts, err := e.svc.Registration.RemainingCounts(e.ctx, person, person.UserID)
	if err != nil {
		e.t.Fatalf("RemainingCounts 失败: %v", err)
	}
	for _, c := range counts {
		if c.Period.PeriodID == "period-1" {
			return c.Remaining
		}
	}
	e.t.Fatalf("RemainingCounts 未返回 period-1")
	return -1
}

// available 时段个人可用名额
func (e *testEnv) available(slotID string) int {
	e.t.Helper()
	slot, err := e.repo.Slot.GetByID(e.ctx, slotID)
	if err != nil {
		e.t.Fatalf("读取时段失败: %v", err)
	}
	n, err := NewCapacityManager(zap.NewNop()).Available(e.ctx, e.repo, slot, SeatIndividual, "")
	if err != nil {
		e.t.Fatalf("Available 失败: %v", err)
	}
	return n
}

// requireDenial 断言 err 为指定标签的业务拒绝
func requireDenial(t *testing.T, err error, tag string) {
	t.Helper()
	if err == nil {
		t.Fatalf("期望拒绝 %s，实际成功", tag)
	}
	d, ok := AsDenial(err)
	if !ok {
		t.Fatalf("期望拒绝 %s，实际错误: %v", tag, err)
	}
	if d.Tag != tag {
		t.Fatalf("期望拒绝 %s，实际 %s", tag, d.Tag)
	}
}
