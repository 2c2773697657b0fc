package service

import (
	"context"
	"fmt"
	"sort"
	"strings"
	"sync"
	"time"

	"gorm.io/gorm"

	"immersion/backend/internal/model"
	"immersion/backend/internal/repository"
	pkgerrors "immersion/backend/pkg/errors"
)

// ═══════════════════════════════════════════════════════════
// 内存存储：所有 mock repository 共享同一份数据，
// 以便模拟 Preload 关联与跨表查询
// ═══════════════════════════════════════════════════════════

type memStore struct {
	mu  sync.Mutex
	seq int

	years     map[string]*model.UniversityYear
	periods   map[string]*model.Period
	vacations map[string]*model.Vacation
	holidays  map[string]*model.Holiday

	establishments map[string]*model.Establishment
	structures     map[string]*model.Structure
	highSchools    map[string]*model.HighSchool
	campuses       map[string]*model.Campus
	buildings      map[string]*model.Building
	institutions   map[string]model.HigherEducationInstitution
	uais           map[string]model.UAI

	trainings map[string]*model.Training
	courses   map[string]*model.Course
	events    map[string]*model.OffOfferEvent
	slots     map[string]*model.Slot

	users        map[string]*model.User
	records      map[string]*model.Record
	attestations map[string]*model.Attestation
	quotas       map[string]*model.RecordQuota

	immersions  map[string]*model.Immersion
	groups      map[string]*model.GroupImmersion
	cancelTypes map[string]*model.CancelType
	alerts      map[string]*model.UserCourseAlert

	templates map[string]*model.MailTemplate
	messages  map[string]*model.OutboundMessage
	jobLogs   map[string]*model.JobLog
	stats     map[string]*model.AnnualStatistic
}

func newMemStore() *memStore {
	return &memStore{
		years:          map[string]*model.UniversityYear{},
		periods:        map[string]*model.Period{},
		vacations:      map[string]*model.Vacation{},
		holidays:       map[string]*model.Holiday{},
		establishments: map[string]*model.Establishment{},
		structures:     map[string]*model.Structure{},
		highSchools:    map[string]*model.HighSchool{},
		campuses:       map[string]*model.Campus{},
		buildings:      map[string]*model.Building{},
		institutions:   map[string]model.HigherEducationInstitution{},
		uais:           map[string]model.UAI{},
		trainings:      map[string]*model.Training{},
		courses:        map[string]*model.Course{},
		events:         map[string]*model.OffOfferEvent{},
		slots:          map[string]*model.Slot{},
		users:          map[string]*model.User{},
		records:        map[string]*model.Record{},
		attestations:   map[string]*model.Attestation{},
		quotas:         map[string]*model.RecordQuota{},
		immersions:     map[string]*model.Immersion{},
		groups:         map[string]*model.GroupImmersion{},
		cancelTypes:    map[string]*model.CancelType{},
		alerts:         map[string]*model.UserCourseAlert{},
		templates:      map[string]*model.MailTemplate{},
		messages:       map[string]*model.OutboundMessage{},
		jobLogs:        map[string]*model.JobLog{},
		stats:          map[string]*model.AnnualStatistic{},
	}
}

// newMockRepository 组装一个不绑定数据库的 Repository（Transaction 直接调用 fn）
func newMockRepository() (*repository.Repository, *memStore) {
	s := newMemStore()
	return &repository.Repository{
		Calendar:       &mockCalendarRepo{s},
		Establishment:  &mockEstablishmentRepo{s},
		Campus:         &mockCampusRepo{s},
		Offer:          &mockOfferRepo{s},
		Slot:           &mockSlotRepo{s},
		User:           &mockUserRepo{s},
		Record:         &mockRecordRepo{s},
		Immersion:      &mockImmersionRepo{s},
		GroupImmersion: &mockGroupImmersionRepo{s},
		CancelType:     &mockCancelTypeRepo{s},
		Alert:          &mockAlertRepo{s},
		Notification:   &mockNotificationRepo{s},
		JobLog:         &mockJobLogRepo{s},
		Stats:          &mockStatsRepo{s},
	}, s
}

// nextID 生成的 ID 带 new 段，不会与 fixture 中的 imm-1、slot-1 等冲突
func (s *memStore) nextID(prefix string) string {
	s.seq++
	return fmt.Sprintf("%s-new-%d", prefix, s.seq)
}

func dateStr(t time.Time) string { return t.Format(model.DateLayout) }

// inDateRange 按日历日期比较 from ≤ d ≤ to
func inDateRange(d, from, to time.Time) bool {
	return dateStr(d) >= dateStr(from) && dateStr(d) <= dateStr(to)
}

// slotCopy 带 Course / Event 关联的时段副本（调用方持有锁）
func (s *memStore) slotCopy(sl *model.Slot) *model.Slot {
	c := *sl
	if sl.CourseID != nil {
		if course, ok := s.courses[*sl.CourseID]; ok {
			cc := *course
			c.Course = &cc
		}
	}
	if sl.EventID != nil {
		if ev, ok := s.events[*sl.EventID]; ok {
			ec := *ev
			c.Event = &ec
		}
	}
	return &c
}

// immersionCopy 带 Slot / User 关联的报名副本（调用方持有锁）
func (s *memStore) immersionCopy(imm *model.Immersion) model.Immersion {
	c := *imm
	if sl, ok := s.slots[imm.SlotID]; ok {
		c.Slot = s.slotCopy(sl)
	}
	if u, ok := s.users[imm.UserID]; ok {
		uc := *u
		c.User = &uc
	}
	return c
}

func sortImmersions(items []model.Immersion) {
	sort.SliceStable(items, func(i, j int) bool {
		if items[i].RegistrationDate.Equal(items[j].RegistrationDate) {
			return items[i].ImmersionID < items[j].ImmersionID
		}
		return items[i].RegistrationDate.Before(items[j].RegistrationDate)
	})
}

// ── Mock CalendarRepository ──

type mockCalendarRepo struct{ s *memStore }

func (m *mockCalendarRepo) ListActiveYears(_ context.Context) ([]model.UniversityYear, error) {
	m.s.mu.Lock()
	defer m.s.mu.Unlock()
	var result []model.UniversityYear
	for _, y := range m.s.years {
		if y.Active {
			result = append(result, *y)
		}
	}
	return result, nil
}

func (m *mockCalendarRepo) ListPeriods(_ context.Context, yearID string) ([]model.Period, error) {
	m.s.mu.Lock()
	defer m.s.mu.Unlock()
	var result []model.Period
	for _, p := range m.s.periods {
		if p.YearID == yearID {
			result = append(result, *p)
		}
	}
	sort.Slice(result, func(i, j int) bool { return result[i].ImmersionStartDate.Before(result[j].ImmersionStartDate) })
	return result, nil
}

func (m *mockCalendarRepo) ListVacations(_ context.Context) ([]model.Vacation, error) {
	m.s.mu.Lock()
	defer m.s.mu.Unlock()
	var result []model.Vacation
	for _, v := range m.s.vacations {
		result = append(result, *v)
	}
	return result, nil
}

func (m *mockCalendarRepo) ListHolidays(_ context.Context) ([]model.Holiday, error) {
	m.s.mu.Lock()
	defer m.s.mu.Unlock()
	var result []model.Holiday
	for _, h := range m.s.holidays {
		result = append(result, *h)
	}
	return result, nil
}

func (m *mockCalendarRepo) UpsertVacation(_ context.Context, v *model.Vacation) error {
	m.s.mu.Lock()
	defer m.s.mu.Unlock()
	for _, existing := range m.s.vacations {
		if v.ExternalID != "" && existing.ExternalID == v.ExternalID {
			existing.Label, existing.StartDate, existing.EndDate = v.Label, v.StartDate, v.EndDate
			v.VacationID = existing.VacationID
			return nil
		}
	}
	if v.VacationID == "" {
		v.VacationID = m.s.nextID("vac")
	}
	c := *v
	m.s.vacations[v.VacationID] = &c
	return nil
}

func (m *mockCalendarRepo) PurgeYear(_ context.Context, yearID string, purgeDate time.Time) error {
	m.s.mu.Lock()
	defer m.s.mu.Unlock()
	for id, p := range m.s.periods {
		if p.YearID == yearID {
			delete(m.s.periods, id)
		}
	}
	m.s.vacations = map[string]*model.Vacation{}
	m.s.holidays = map[string]*model.Holiday{}
	if y, ok := m.s.years[yearID]; ok {
		y.Purged = true
		y.PurgeDate = &purgeDate
	}
	return nil
}

// ── Mock EstablishmentRepository ──

type mockEstablishmentRepo struct{ s *memStore }

func (m *mockEstablishmentRepo) GetEstablishment(_ context.Context, id string) (*model.Establishment, error) {
	m.s.mu.Lock()
	defer m.s.mu.Unlock()
	if e, ok := m.s.establishments[id]; ok {
		c := *e
		return &c, nil
	}
	return nil, gorm.ErrRecordNotFound
}

func (m *mockEstablishmentRepo) GetStructure(_ context.Context, id string) (*model.Structure, error) {
	m.s.mu.Lock()
	defer m.s.mu.Unlock()
	if st, ok := m.s.structures[id]; ok {
		c := *st
		if e, ok := m.s.establishments[st.EstablishmentID]; ok {
			ec := *e
			c.Establishment = &ec
		}
		return &c, nil
	}
	return nil, gorm.ErrRecordNotFound
}

func (m *mockEstablishmentRepo) GetHighSchool(_ context.Context, id string) (*model.HighSchool, error) {
	m.s.mu.Lock()
	defer m.s.mu.Unlock()
	if h, ok := m.s.highSchools[id]; ok {
		c := *h
		return &c, nil
	}
	return nil, gorm.ErrRecordNotFound
}

func (m *mockEstablishmentRepo) ListEstablishments(_ context.Context) ([]model.Establishment, error) {
	m.s.mu.Lock()
	defer m.s.mu.Unlock()
	var result []model.Establishment
	for _, e := range m.s.establishments {
		result = append(result, *e)
	}
	return result, nil
}

func (m *mockEstablishmentRepo) ListStructures(_ context.Context) ([]model.Structure, error) {
	m.s.mu.Lock()
	defer m.s.mu.Unlock()
	var result []model.Structure
	for _, st := range m.s.structures {
		result = append(result, *st)
	}
	sort.Slice(result, func(i, j int) bool { return result[i].StructureID < result[j].StructureID })
	return result, nil
}

func (m *mockEstablishmentRepo) ListHighSchools(_ context.Context) ([]model.HighSchool, error) {
	m.s.mu.Lock()
	defer m.s.mu.Unlock()
	var result []model.HighSchool
	for _, h := range m.s.highSchools {
		result = append(result, *h)
	}
	return result, nil
}

func (m *mockEstablishmentRepo) UpsertInstitutions(_ context.Context, items []model.HigherEducationInstitution) error {
	m.s.mu.Lock()
	defer m.s.mu.Unlock()
	for _, it := range items {
		m.s.institutions[it.UAI] = it
	}
	return nil
}

func (m *mockEstablishmentRepo) UpsertUAIs(_ context.Context, items []model.UAI) error {
	m.s.mu.Lock()
	defer m.s.mu.Unlock()
	for _, it := range items {
		m.s.uais[it.Code] = it
	}
	return nil
}

// ── Mock CampusRepository ──

type mockCampusRepo struct{ s *memStore }

func (m *mockCampusRepo) GetCampus(_ context.Context, id string) (*model.Campus, error) {
	m.s.mu.Lock()
	defer m.s.mu.Unlock()
	if c, ok := m.s.campuses[id]; ok {
		cc := *c
		return &cc, nil
	}
	return nil, gorm.ErrRecordNotFound
}

func (m *mockCampusRepo) GetBuilding(_ context.Context, id string) (*model.Building, error) {
	m.s.mu.Lock()
	defer m.s.mu.Unlock()
	if b, ok := m.s.buildings[id]; ok {
		bc := *b
		return &bc, nil
	}
	return nil, gorm.ErrRecordNotFound
}

func (m *mockCampusRepo) ListCampuses(_ context.Context, establishmentID string) ([]model.Campus, error) {
	m.s.mu.Lock()
	defer m.s.mu.Unlock()
	var result []model.Campus
	for _, c := range m.s.campuses {
		if c.EstablishmentID == establishmentID {
			result = append(result, *c)
		}
	}
	return result, nil
}

// ── Mock OfferRepository ──

type mockOfferRepo struct{ s *memStore }

func (m *mockOfferRepo) GetTraining(_ context.Context, id string) (*model.Training, error) {
	m.s.mu.Lock()
	defer m.s.mu.Unlock()
	if t, ok := m.s.trainings[id]; ok {
		c := *t
		return &c, nil
	}
	return nil, gorm.ErrRecordNotFound
}

func (m *mockOfferRepo) GetCourse(_ context.Context, id string) (*model.Course, error) {
	m.s.mu.Lock()
	defer m.s.mu.Unlock()
	if c, ok := m.s.courses[id]; ok {
		cc := *c
		if t, ok := m.s.trainings[c.TrainingID]; ok {
			tc := *t
			cc.Training = &tc
		}
		return &cc, nil
	}
	return nil, gorm.ErrRecordNotFound
}

func (m *mockOfferRepo) GetEvent(_ context.Context, id string) (*model.OffOfferEvent, error) {
	m.s.mu.Lock()
	defer m.s.mu.Unlock()
	if e, ok := m.s.events[id]; ok {
		c := *e
		return &c, nil
	}
	return nil, gorm.ErrRecordNotFound
}

func (m *mockOfferRepo) DeleteCourse(_ context.Context, id string, _ string) error {
	m.s.mu.Lock()
	defer m.s.mu.Unlock()
	delete(m.s.courses, id)
	return nil
}

func (m *mockOfferRepo) UnpublishAll(_ context.Context) error {
	m.s.mu.Lock()
	defer m.s.mu.Unlock()
	for _, c := range m.s.courses {
		c.Published = false
	}
	for _, e := range m.s.events {
		e.Published = false
	}
	return nil
}

func (m *mockOfferRepo) CountPublishedCourses(_ context.Context) (int64, error) {
	m.s.mu.Lock()
	defer m.s.mu.Unlock()
	var n int64
	for _, c := range m.s.courses {
		if c.Published {
			n++
		}
	}
	return n, nil
}

// ── Mock SlotRepository ──

type mockSlotRepo struct{ s *memStore }

func (m *mockSlotRepo) Create(_ context.Context, slot *model.Slot) error {
	m.s.mu.Lock()
	defer m.s.mu.Unlock()
	if slot.SlotID == "" {
		slot.SlotID = m.s.nextID("slot")
	}
	c := *slot
	c.Course, c.Event = nil, nil
	m.s.slots[slot.SlotID] = &c
	return nil
}

func (m *mockSlotRepo) GetByID(_ context.Context, id string) (*model.Slot, error) {
	m.s.mu.Lock()
	defer m.s.mu.Unlock()
	if sl, ok := m.s.slots[id]; ok {
		return m.s.slotCopy(sl), nil
	}
	return nil, gorm.ErrRecordNotFound
}

func (m *mockSlotRepo) GetForUpdate(ctx context.Context, id string) (*model.Slot, error) {
	return m.GetByID(ctx, id)
}

func (m *mockSlotRepo) Update(_ context.Context, slot *model.Slot) error {
	m.s.mu.Lock()
	defer m.s.mu.Unlock()
	c := *slot
	c.Course, c.Event = nil, nil
	m.s.slots[slot.SlotID] = &c
	return nil
}

func (m *mockSlotRepo) Delete(_ context.Context, id string, _ string) error {
	m.s.mu.Lock()
	defer m.s.mu.Unlock()
	delete(m.s.slots, id)
	return nil
}

func (m *mockSlotRepo) ListByDateRange(_ context.Context, from, to time.Time, publishedOnly bool) ([]model.Slot, error) {
	m.s.mu.Lock()
	defer m.s.mu.Unlock()
	var result []model.Slot
	for _, sl := range m.s.slots {
		if !inDateRange(sl.Date, from, to) || (publishedOnly && !sl.Published) {
			continue
		}
		result = append(result, *m.s.slotCopy(sl))
	}
	sort.Slice(result, func(i, j int) bool { return result[i].SlotID < result[j].SlotID })
	return result, nil
}

func (m *mockSlotRepo) ListByCourse(_ context.Context, courseID string) ([]model.Slot, error) {
	m.s.mu.Lock()
	defer m.s.mu.Unlock()
	var result []model.Slot
	for _, sl := range m.s.slots {
		if sl.CourseID != nil && *sl.CourseID == courseID {
			result = append(result, *m.s.slotCopy(sl))
		}
	}
	sort.Slice(result, func(i, j int) bool { return result[i].Date.Before(result[j].Date) })
	return result, nil
}

func (m *mockSlotRepo) ListPendingClosedReminder(_ context.Context, fromDate time.Time) ([]model.Slot, error) {
	m.s.mu.Lock()
	defer m.s.mu.Unlock()
	var result []model.Slot
	for _, sl := range m.s.slots {
		if sl.Published && !sl.ReminderNotificationSent && dateStr(sl.Date) >= dateStr(fromDate) {
			result = append(result, *m.s.slotCopy(sl))
		}
	}
	return result, nil
}

func (m *mockSlotRepo) MarkReminderNotificationSent(_ context.Context, id string) error {
	m.s.mu.Lock()
	defer m.s.mu.Unlock()
	if sl, ok := m.s.slots[id]; ok {
		sl.ReminderNotificationSent = true
	}
	return nil
}

func (m *mockSlotRepo) DeleteAll(_ context.Context) (int64, error) {
	m.s.mu.Lock()
	defer m.s.mu.Unlock()
	n := int64(len(m.s.slots))
	m.s.slots = map[string]*model.Slot{}
	return n, nil
}

// ── Mock UserRepository ──

type mockUserRepo struct{ s *memStore }

func (m *mockUserRepo) Create(_ context.Context, user *model.User) error {
	m.s.mu.Lock()
	defer m.s.mu.Unlock()
	for _, u := range m.s.users {
		if strings.EqualFold(u.Email, user.Email) {
			return pkgerrors.ErrUniqueViolation
		}
	}
	if user.UserID == "" {
		user.UserID = m.s.nextID("user")
	}
	c := *user
	m.s.users[user.UserID] = &c
	return nil
}

func (m *mockUserRepo) GetByID(_ context.Context, id string) (*model.User, error) {
	m.s.mu.Lock()
	defer m.s.mu.Unlock()
	if u, ok := m.s.users[id]; ok {
		c := *u
		return &c, nil
	}
	return nil, gorm.ErrRecordNotFound
}

func (m *mockUserRepo) GetByEmail(_ context.Context, email string) (*model.User, error) {
	m.s.mu.Lock()
	defer m.s.mu.Unlock()
	for _, u := range m.s.users {
		if strings.EqualFold(u.Email, email) {
			c := *u
			return &c, nil
		}
	}
	return nil, gorm.ErrRecordNotFound
}

func (m *mockUserRepo) Update(_ context.Context, user *model.User) error {
	m.s.mu.Lock()
	defer m.s.mu.Unlock()
	c := *user
	m.s.users[user.UserID] = &c
	return nil
}

func (m *mockUserRepo) UpdateLastLogin(_ context.Context, id string, at time.Time) error {
	m.s.mu.Lock()
	defer m.s.mu.Unlock()
	if u, ok := m.s.users[id]; ok {
		u.LastLoginAt = &at
	}
	return nil
}

func (m *mockUserRepo) ListByIDs(_ context.Context, ids []string) ([]model.User, error) {
	return m.filter(func(u *model.User) bool { return model.ContainsString(ids, u.UserID) }), nil
}

func (m *mockUserRepo) ListByRole(_ context.Context, role string) ([]model.User, error) {
	return m.filter(func(u *model.User) bool { return u.Role == role && u.IsActive }), nil
}

func (m *mockUserRepo) ListStructureManagers(_ context.Context, structureID string) ([]model.User, error) {
	return m.filter(func(u *model.User) bool {
		return u.Role == model.RoleStructureManager && u.ManagesStructure(structureID)
	}), nil
}

func (m *mockUserRepo) ListHighSchoolManagers(_ context.Context, highSchoolID string) ([]model.User, error) {
	return m.filter(func(u *model.User) bool {
		return u.Role == model.RoleHighSchoolManager && u.HighSchoolID != nil && *u.HighSchoolID == highSchoolID
	}), nil
}

func (m *mockUserRepo) ListUnactivatedExpired(_ context.Context, today time.Time) ([]model.User, error) {
	return m.filter(func(u *model.User) bool {
		return !u.IsActive && u.DestructionDate != nil && dateStr(*u.DestructionDate) <= dateStr(today)
	}), nil
}

func (m *mockUserRepo) ListActiveAttendees(_ context.Context) ([]model.User, error) {
	return m.filter(func(u *model.User) bool { return u.IsAttendee() && u.IsActive }), nil
}

func (m *mockUserRepo) HardDelete(_ context.Context, ids []string) (int64, error) {
	m.s.mu.Lock()
	defer m.s.mu.Unlock()
	var n int64
	for _, id := range ids {
		if _, ok := m.s.users[id]; ok {
			delete(m.s.users, id)
			n++
		}
	}
	return n, nil
}

func (m *mockUserRepo) DeleteByRoles(_ context.Context, roles []string) (int64, error) {
	m.s.mu.Lock()
	defer m.s.mu.Unlock()
	var n int64
	for id, u := range m.s.users {
		if model.ContainsString(roles, u.Role) {
			delete(m.s.users, id)
			n++
		}
	}
	return n, nil
}

func (m *mockUserRepo) filter(keep func(u *model.User) bool) []model.User {
	m.s.mu.Lock()
	defer m.s.mu.Unlock()
	var result []model.User
	for _, u := range m.s.users {
		if keep(u) {
			result = append(result, *u)
		}
	}
	sort.Slice(result, func(i, j int) bool { return result[i].Email < result[j].Email })
	return result
}

// ── Mock RecordRepository ──

type mockRecordRepo struct{ s *memStore }

func (m *mockRecordRepo) GetByID(_ context.Context, id string) (*model.Record, error) {
	m.s.mu.Lock()
	defer m.s.mu.Unlock()
	if r, ok := m.s.records[id]; ok {
		c := *r
		if u, ok := m.s.users[r.UserID]; ok {
			uc := *u
			c.User = &uc
		}
		return &c, nil
	}
	return nil, gorm.ErrRecordNotFound
}

func (m *mockRecordRepo) GetByUserID(_ context.Context, userID string) (*model.Record, error) {
	m.s.mu.Lock()
	defer m.s.mu.Unlock()
	for _, r := range m.s.records {
		if r.UserID == userID {
			c := *r
			return &c, nil
		}
	}
	return nil, gorm.ErrRecordNotFound
}

func (m *mockRecordRepo) GetByUserIDForUpdate(ctx context.Context, userID string) (*model.Record, error) {
	return m.GetByUserID(ctx, userID)
}

func (m *mockRecordRepo) Update(_ context.Context, record *model.Record) error {
	m.s.mu.Lock()
	defer m.s.mu.Unlock()
	c := *record
	c.User = nil
	m.s.records[record.RecordID] = &c
	return nil
}

func (m *mockRecordRepo) ListAttestations(_ context.Context, recordID string) ([]model.Attestation, error) {
	m.s.mu.Lock()
	defer m.s.mu.Unlock()
	var result []model.Attestation
	for _, a := range m.s.attestations {
		if a.RecordID == recordID && !a.Archived {
			result = append(result, *a)
		}
	}
	sort.Slice(result, func(i, j int) bool { return result[i].AttestationID < result[j].AttestationID })
	return result, nil
}

func (m *mockRecordRepo) ArchiveAttestations(_ context.Context, ids []string) error {
	m.s.mu.Lock()
	defer m.s.mu.Unlock()
	for _, id := range ids {
		if a, ok := m.s.attestations[id]; ok {
			a.Archived = true
		}
	}
	return nil
}

func (m *mockRecordRepo) ListQuotas(_ context.Context, recordID string) ([]model.RecordQuota, error) {
	m.s.mu.Lock()
	defer m.s.mu.Unlock()
	var result []model.RecordQuota
	for _, q := range m.s.quotas {
		if q.RecordID == recordID {
			result = append(result, *q)
		}
	}
	return result, nil
}

func (m *mockRecordRepo) UpsertQuota(_ context.Context, quota *model.RecordQuota) error {
	m.s.mu.Lock()
	defer m.s.mu.Unlock()
	c := *quota
	m.s.quotas[quota.RecordID+"/"+quota.PeriodID] = &c
	return nil
}

func (m *mockRecordRepo) CountToValidateByHighSchool(_ context.Context) (map[string]int64, error) {
	m.s.mu.Lock()
	defer m.s.mu.Unlock()
	result := map[string]int64{}
	for _, r := range m.s.records {
		if r.Kind != model.RecordKindPupil || r.HighSchoolID == nil {
			continue
		}
		if r.Validation == model.ValidationToValidate || r.Validation == model.ValidationToRevalidate {
			result[*r.HighSchoolID]++
		}
	}
	return result, nil
}

func (m *mockRecordRepo) ListUserIDsWithExpiredAttestations(_ context.Context, today time.Time) ([]string, error) {
	m.s.mu.Lock()
	defer m.s.mu.Unlock()
	seen := map[string]bool{}
	var ids []string
	for _, a := range m.s.attestations {
		if !a.Mandatory || !a.RequiresValidityDate || a.Archived || a.ValidityDate == nil {
			continue
		}
		if dateStr(*a.ValidityDate) >= dateStr(today) {
			continue
		}
		if r, ok := m.s.records[a.RecordID]; ok && !seen[r.UserID] {
			seen[r.UserID] = true
			ids = append(ids, r.UserID)
		}
	}
	sort.Strings(ids)
	return ids, nil
}

func (m *mockRecordRepo) CountByKind(_ context.Context) (map[string]int64, error) {
	m.s.mu.Lock()
	defer m.s.mu.Unlock()
	result := map[string]int64{}
	for _, r := range m.s.records {
		result[r.Kind]++
	}
	return result, nil
}

// ── Mock ImmersionRepository ──

type mockImmersionRepo struct{ s *memStore }

func (m *mockImmersionRepo) Create(_ context.Context, imm *model.Immersion) error {
	m.s.mu.Lock()
	defer m.s.mu.Unlock()
	for _, existing := range m.s.immersions {
		if existing.UserID == imm.UserID && existing.SlotID == imm.SlotID && !existing.IsCancelled() {
			return fmt.Errorf("写入报名失败: %w", pkgerrors.ErrUniqueViolation)
		}
	}
	if imm.ImmersionID == "" {
		imm.ImmersionID = m.s.nextID("imm")
	}
	c := *imm
	c.Slot, c.User = nil, nil
	m.s.immersions[imm.ImmersionID] = &c
	return nil
}

func (m *mockImmersionRepo) GetByID(_ context.Context, id string) (*model.Immersion, error) {
	m.s.mu.Lock()
	defer m.s.mu.Unlock()
	if imm, ok := m.s.immersions[id]; ok {
		c := m.s.immersionCopy(imm)
		return &c, nil
	}
	return nil, gorm.ErrRecordNotFound
}

func (m *mockImmersionRepo) GetByIDForUpdate(_ context.Context, id string) (*model.Immersion, error) {
	m.s.mu.Lock()
	defer m.s.mu.Unlock()
	if imm, ok := m.s.immersions[id]; ok {
		c := *imm
		return &c, nil
	}
	return nil, gorm.ErrRecordNotFound
}

func (m *mockImmersionRepo) Update(_ context.Context, imm *model.Immersion) error {
	m.s.mu.Lock()
	defer m.s.mu.Unlock()
	stored, ok := m.s.immersions[imm.ImmersionID]
	if !ok {
		return gorm.ErrRecordNotFound
	}
	if stored.CancellationTypeID != nil && (imm.CancellationTypeID == nil || *imm.CancellationTypeID != *stored.CancellationTypeID) {
		return fmt.Errorf("取消原因写入后不可修改")
	}
	c := *imm
	c.Slot, c.User = nil, nil
	m.s.immersions[imm.ImmersionID] = &c
	return nil
}

func (m *mockImmersionRepo) FindLive(_ context.Context, userID, slotID string) (*model.Immersion, error) {
	m.s.mu.Lock()
	defer m.s.mu.Unlock()
	for _, imm := range m.s.immersions {
		if imm.UserID == userID && imm.SlotID == slotID && !imm.IsCancelled() {
			c := *imm
			return &c, nil
		}
	}
	return nil, gorm.ErrRecordNotFound
}

func (m *mockImmersionRepo) CountLiveBySlot(_ context.Context, slotID string) (int64, error) {
	m.s.mu.Lock()
	defer m.s.mu.Unlock()
	var n int64
	for _, imm := range m.s.immersions {
		if imm.SlotID == slotID && !imm.IsCancelled() {
			n++
		}
	}
	return n, nil
}

func (m *mockImmersionRepo) ListLiveByUser(_ context.Context, userID string) ([]model.Immersion, error) {
	return m.list(func(imm *model.Immersion) bool { return imm.UserID == userID && !imm.IsCancelled() }), nil
}

func (m *mockImmersionRepo) ListBySlot(_ context.Context, slotID string, liveOnly bool) ([]model.Immersion, error) {
	return m.list(func(imm *model.Immersion) bool {
		return imm.SlotID == slotID && (!liveOnly || !imm.IsCancelled())
	}), nil
}

func (m *mockImmersionRepo) ListLiveBySlots(_ context.Context, slotIDs []string) ([]model.Immersion, error) {
	return m.list(func(imm *model.Immersion) bool {
		return model.ContainsString(slotIDs, imm.SlotID) && !imm.IsCancelled()
	}), nil
}

func (m *mockImmersionRepo) ListLiveByUsersBetween(_ context.Context, userIDs []string, from, to time.Time) ([]model.Immersion, error) {
	return m.list(func(imm *model.Immersion) bool {
		sl, ok := m.s.slots[imm.SlotID]
		return ok && model.ContainsString(userIDs, imm.UserID) && !imm.IsCancelled() && inDateRange(sl.Date, from, to)
	}), nil
}

func (m *mockImmersionRepo) ListPendingSurvey(_ context.Context, until time.Time) ([]model.Immersion, error) {
	return m.list(func(imm *model.Immersion) bool {
		sl, ok := m.s.slots[imm.SlotID]
		return ok && !imm.IsCancelled() && !imm.SurveyEmailSent && dateStr(sl.Date) <= dateStr(until)
	}), nil
}

func (m *mockImmersionRepo) ListLiveEmailsByStructure(_ context.Context, structureID string) ([]string, error) {
	m.s.mu.Lock()
	defer m.s.mu.Unlock()
	seen := map[string]bool{}
	var emails []string
	for _, imm := range m.s.immersions {
		sl, ok := m.s.slots[imm.SlotID]
		if !ok || imm.IsCancelled() || sl.StructureID == nil || *sl.StructureID != structureID {
			continue
		}
		if u, ok := m.s.users[imm.UserID]; ok && !seen[u.Email] {
			seen[u.Email] = true
			emails = append(emails, u.Email)
		}
	}
	sort.Strings(emails)
	return emails, nil
}

func (m *mockImmersionRepo) MarkReminderSent(_ context.Context, id string) error {
	m.s.mu.Lock()
	defer m.s.mu.Unlock()
	if imm, ok := m.s.immersions[id]; ok {
		imm.ReminderSent = true
	}
	return nil
}

func (m *mockImmersionRepo) MarkSurveySent(_ context.Context, id string) error {
	m.s.mu.Lock()
	defer m.s.mu.Unlock()
	if imm, ok := m.s.immersions[id]; ok {
		imm.SurveyEmailSent = true
	}
	return nil
}

func (m *mockImmersionRepo) Stats(_ context.Context) (*repository.ImmersionStats, error) {
	m.s.mu.Lock()
	defer m.s.mu.Unlock()
	stats := &repository.ImmersionStats{}
	for _, imm := range m.s.immersions {
		if imm.IsCancelled() {
			stats.Cancelled++
		} else {
			stats.Live++
		}
		if imm.AttendanceStatus == model.AttendanceAttended {
			stats.Attended++
		}
	}
	return stats, nil
}

func (m *mockImmersionRepo) DeleteAll(_ context.Context) (int64, error) {
	m.s.mu.Lock()
	defer m.s.mu.Unlock()
	n := int64(len(m.s.immersions))
	m.s.immersions = map[string]*model.Immersion{}
	return n, nil
}

func (m *mockImmersionRepo) list(keep func(imm *model.Immersion) bool) []model.Immersion {
	m.s.mu.Lock()
	defer m.s.mu.Unlock()
	var result []model.Immersion
	for _, imm := range m.s.immersions {
		if keep(imm) {
			result = append(result, m.s.immersionCopy(imm))
		}
	}
	sortImmersions(result)
	return result
}

// ── Mock GroupImmersionRepository ──

type mockGroupImmersionRepo struct{ s *memStore }

func (m *mockGroupImmersionRepo) Create(_ context.Context, g *model.GroupImmersion) error {
	m.s.mu.Lock()
	defer m.s.mu.Unlock()
	if g.GroupImmersionID == "" {
		g.GroupImmersionID = m.s.nextID("grp")
	}
	c := *g
	c.Slot = nil
	m.s.groups[g.GroupImmersionID] = &c
	return nil
}

func (m *mockGroupImmersionRepo) GetByID(_ context.Context, id string) (*model.GroupImmersion, error) {
	m.s.mu.Lock()
	defer m.s.mu.Unlock()
	if g, ok := m.s.groups[id]; ok {
		c := *g
		if sl, ok := m.s.slots[g.SlotID]; ok {
			c.Slot = m.s.slotCopy(sl)
		}
		return &c, nil
	}
	return nil, gorm.ErrRecordNotFound
}

func (m *mockGroupImmersionRepo) GetByIDForUpdate(ctx context.Context, id string) (*model.GroupImmersion, error) {
	return m.GetByID(ctx, id)
}

func (m *mockGroupImmersionRepo) Update(_ context.Context, g *model.GroupImmersion) error {
	m.s.mu.Lock()
	defer m.s.mu.Unlock()
	c := *g
	c.Slot = nil
	m.s.groups[g.GroupImmersionID] = &c
	return nil
}

func (m *mockGroupImmersionRepo) ListLiveBySlot(_ context.Context, slotID string) ([]model.GroupImmersion, error) {
	m.s.mu.Lock()
	defer m.s.mu.Unlock()
	var result []model.GroupImmersion
	for _, g := range m.s.groups {
		if g.SlotID == slotID && !g.IsCancelled() {
			result = append(result, *g)
		}
	}
	return result, nil
}

func (m *mockGroupImmersionRepo) FindLiveByHighSchool(_ context.Context, highSchoolID, slotID string) (*model.GroupImmersion, error) {
	m.s.mu.Lock()
	defer m.s.mu.Unlock()
	for _, g := range m.s.groups {
		if g.HighSchoolID == highSchoolID && g.SlotID == slotID && !g.IsCancelled() {
			c := *g
			return &c, nil
		}
	}
	return nil, gorm.ErrRecordNotFound
}

func (m *mockGroupImmersionRepo) CountLive(_ context.Context) (int64, error) {
	m.s.mu.Lock()
	defer m.s.mu.Unlock()
	var n int64
	for _, g := range m.s.groups {
		if !g.IsCancelled() {
			n++
		}
	}
	return n, nil
}

func (m *mockGroupImmersionRepo) DeleteAll(_ context.Context) (int64, error) {
	m.s.mu.Lock()
	defer m.s.mu.Unlock()
	n := int64(len(m.s.groups))
	m.s.groups = map[string]*model.GroupImmersion{}
	return n, nil
}

// ── Mock CancelTypeRepository ──

type mockCancelTypeRepo struct{ s *memStore }

func (m *mockCancelTypeRepo) GetByID(_ context.Context, id string) (*model.CancelType, error) {
	m.s.mu.Lock()
	defer m.s.mu.Unlock()
	if ct, ok := m.s.cancelTypes[id]; ok {
		c := *ct
		return &c, nil
	}
	return nil, gorm.ErrRecordNotFound
}

func (m *mockCancelTypeRepo) GetByCode(_ context.Context, code string) (*model.CancelType, error) {
	m.s.mu.Lock()
	defer m.s.mu.Unlock()
	for _, ct := range m.s.cancelTypes {
		if ct.Code == code {
			c := *ct
			return &c, nil
		}
	}
	return nil, gorm.ErrRecordNotFound
}

func (m *mockCancelTypeRepo) List(_ context.Context) ([]model.CancelType, error) {
	m.s.mu.Lock()
	defer m.s.mu.Unlock()
	var result []model.CancelType
	for _, ct := range m.s.cancelTypes {
		result = append(result, *ct)
	}
	return result, nil
}

// ── Mock AlertRepository ──

type mockAlertRepo struct{ s *memStore }

func (m *mockAlertRepo) Create(_ context.Context, alert *model.UserCourseAlert) error {
	m.s.mu.Lock()
	defer m.s.mu.Unlock()
	for _, a := range m.s.alerts {
		if strings.EqualFold(a.Email, alert.Email) && a.CourseID == alert.CourseID && !a.EmailSent {
			return pkgerrors.ErrUniqueViolation
		}
	}
	if alert.AlertID == "" {
		alert.AlertID = m.s.nextID("alert")
	}
	c := *alert
	m.s.alerts[alert.AlertID] = &c
	return nil
}

func (m *mockAlertRepo) ExistsPending(_ context.Context, email, courseID string) (bool, error) {
	m.s.mu.Lock()
	defer m.s.mu.Unlock()
	for _, a := range m.s.alerts {
		if strings.EqualFold(a.Email, email) && a.CourseID == courseID && !a.EmailSent {
			return true, nil
		}
	}
	return false, nil
}

func (m *mockAlertRepo) Delete(_ context.Context, email, courseID string) (int64, error) {
	m.s.mu.Lock()
	defer m.s.mu.Unlock()
	var n int64
	for id, a := range m.s.alerts {
		if strings.EqualFold(a.Email, email) && a.CourseID == courseID && !a.EmailSent {
			delete(m.s.alerts, id)
			n++
		}
	}
	return n, nil
}

func (m *mockAlertRepo) ListPending(_ context.Context, courseID string) ([]model.UserCourseAlert, error) {
	m.s.mu.Lock()
	defer m.s.mu.Unlock()
	var result []model.UserCourseAlert
	for _, a := range m.s.alerts {
		if a.EmailSent || (courseID != "" && a.CourseID != courseID) {
			continue
		}
		c := *a
		if course, ok := m.s.courses[a.CourseID]; ok {
			cc := *course
			c.Course = &cc
		}
		result = append(result, c)
	}
	sort.Slice(result, func(i, j int) bool { return result[i].AlertID < result[j].AlertID })
	return result, nil
}

func (m *mockAlertRepo) MarkSent(_ context.Context, ids []string) error {
	m.s.mu.Lock()
	defer m.s.mu.Unlock()
	for _, id := range ids {
		if a, ok := m.s.alerts[id]; ok {
			a.EmailSent = true
		}
	}
	return nil
}

func (m *mockAlertRepo) DeleteAll(_ context.Context) (int64, error) {
	m.s.mu.Lock()
	defer m.s.mu.Unlock()
	n := int64(len(m.s.alerts))
	m.s.alerts = map[string]*model.UserCourseAlert{}
	return n, nil
}

// ── Mock NotificationRepository ──

type mockNotificationRepo struct{ s *memStore }

func (m *mockNotificationRepo) GetTemplate(_ context.Context, code string) (*model.MailTemplate, error) {
	m.s.mu.Lock()
	defer m.s.mu.Unlock()
	if tpl, ok := m.s.templates[code]; ok {
		c := *tpl
		return &c, nil
	}
	return nil, gorm.ErrRecordNotFound
}

func (m *mockNotificationRepo) CreateMessage(_ context.Context, msg *model.OutboundMessage) (bool, error) {
	m.s.mu.Lock()
	defer m.s.mu.Unlock()
	if prev, ok := m.s.messages[msg.DedupKey]; ok {
		if prev.Status != model.MessageFailed {
			return false, nil
		}
		msg.MessageID = prev.MessageID
	}
	if msg.MessageID == "" {
		msg.MessageID = m.s.nextID("msg")
	}
	c := *msg
	m.s.messages[msg.DedupKey] = &c
	return true, nil
}

func (m *mockNotificationRepo) UpdateMessage(_ context.Context, msg *model.OutboundMessage) error {
	m.s.mu.Lock()
	defer m.s.mu.Unlock()
	c := *msg
	m.s.messages[msg.DedupKey] = &c
	return nil
}

func (m *mockNotificationRepo) CountByStatus(_ context.Context, status string) (int64, error) {
	m.s.mu.Lock()
	defer m.s.mu.Unlock()
	var n int64
	for _, msg := range m.s.messages {
		if msg.Status == status {
			n++
		}
	}
	return n, nil
}

// ── Mock JobLogRepository ──

type mockJobLogRepo struct{ s *memStore }

func (m *mockJobLogRepo) Create(_ context.Context, log *model.JobLog) error {
	m.s.mu.Lock()
	defer m.s.mu.Unlock()
	if log.JobLogID == "" {
		log.JobLogID = m.s.nextID("job")
	}
	c := *log
	m.s.jobLogs[log.JobLogID] = &c
	return nil
}

func (m *mockJobLogRepo) Update(_ context.Context, log *model.JobLog) error {
	m.s.mu.Lock()
	defer m.s.mu.Unlock()
	c := *log
	m.s.jobLogs[log.JobLogID] = &c
	return nil
}

// ── Mock StatsRepository ──

type mockStatsRepo struct{ s *memStore }

func (m *mockStatsRepo) Collect(_ context.Context, yearLabel string) (*model.AnnualStatistic, error) {
	m.s.mu.Lock()
	defer m.s.mu.Unlock()
	stat := &model.AnnualStatistic{YearLabel: yearLabel, Slots: len(m.s.slots)}
	registered := map[string]bool{}
	for _, imm := range m.s.immersions {
		if imm.IsCancelled() {
			stat.ImmersionsCancelled++
			continue
		}
		stat.ImmersionsLive++
		if imm.AttendanceStatus == model.AttendanceAttended {
			stat.ImmersionsAttended++
		}
		registered[imm.UserID] = true
	}
	for _, r := range m.s.records {
		if !registered[r.UserID] {
			continue
		}
		switch r.Kind {
		case model.RecordKindPupil:
			stat.PupilsRegistered++
		case model.RecordKindStudent:
			stat.StudentsRegistered++
		case model.RecordKindVisitor:
			stat.VisitorsRegistered++
		}
	}
	for _, g := range m.s.groups {
		if !g.IsCancelled() {
			stat.GroupImmersions++
		}
	}
	for _, c := range m.s.courses {
		if c.Published {
			stat.CoursesPublished++
		}
	}
	return stat, nil
}

func (m *mockStatsRepo) Save(_ context.Context, stat *model.AnnualStatistic) error {
	m.s.mu.Lock()
	defer m.s.mu.Unlock()
	c := *stat
	m.s.stats[stat.YearLabel] = &c
	return nil
}

// ── 读取辅助 ──

func (s *memStore) immersion(id string) model.Immersion {
	s.mu.Lock()
	defer s.mu.Unlock()
	return *s.immersions[id]
}

func (s *memStore) liveCount(slotID string) int {
	s.mu.Lock()
	defer s.mu.Unlock()
	n := 0
	for _, imm := range s.immersions {
		if imm.SlotID == slotID && !imm.IsCancelled() {
			n++
		}
	}
	return n
}

func (s *memStore) messagesFor(template string) []model.OutboundMessage {
	s.mu.Lock()
	defer s.mu.Unlock()
	var result []model.OutboundMessage
	for _, msg := range s.messages {
		if msg.Template == template {
			result = append(result, *msg)
		}
	}
	sort.Slice(result, func(i, j int) bool { return result[i].Recipient < result[j].Recipient })
	return result
}
