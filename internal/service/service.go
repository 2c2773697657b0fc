package service

import (
	"net/http"
	"time"

	"go.uber.org/zap"

	"immersion/backend/config"
	"immersion/backend/internal/repository"
	"immersion/backend/pkg/jwt"
	"immersion/backend/pkg/lock"
	"immersion/backend/pkg/mailer"
	"immersion/backend/pkg/metrics"
)

// Service 所有 Service 的聚合入口
type Service struct {
	Auth         AuthService
	Registration RegistrationService
	Alert        AlertService
	Record       RecordService
	Slot         SlotService
	Export       ExportService
	Attendance   AttendanceService
	Job          JobService
	Calendar     CalendarService
	Dispatcher   *Dispatcher
}

// Deps 聚合入口的外部依赖；Blacklist、Locker、Queue、Metrics 可为 nil
type Deps struct {
	Config    *config.Config
	Repo      *repository.Repository
	JWT       *jwt.Manager
	Blacklist TokenBlacklist
	Locker    SlotLocker
	Queue     NotificationQueue
	Mailer    mailer.Mailer
	Metrics   *metrics.Metrics
	Clock     Clock
	Logger    *zap.Logger
}

// NewService 创建 Service 聚合
func NewService(d Deps) *Service {
	loc := d.Config.Location()
	if d.Clock == nil {
		d.Clock = NewSystemClock(loc)
	}
	if d.Locker == nil {
		d.Locker = lock.NewKeyedMutex()
	}
	if d.Mailer == nil {
		d.Mailer = mailer.New(&d.Config.Mail, d.Logger)
	}

	dispatcher := NewDispatcher(d.Repo, d.Mailer, d.Queue, d.Metrics, d.Clock, d.Logger)
	calendar := NewCalendarService(d.Repo, loc, d.Logger)
	capacity := NewCapacityManager(d.Logger)
	alerts := NewAlertService(d.Repo, capacity, dispatcher, d.Clock, loc, d.Logger)

	registration := NewRegistrationService(RegistrationDeps{
		Config:   &d.Config.Registration,
		Feature:  &d.Config.Feature,
		Repo:     d.Repo,
		Calendar: calendar,
		Ledger:   NewQuotaLedger(&d.Config.Registration, d.Logger),
		Capacity: capacity,
		Locker:   d.Locker,
		Notifier: dispatcher,
		Clock:    d.Clock,
		Location: loc,
		Metrics:  d.Metrics,
		Logger:   d.Logger,
	})
	export := NewExportService(d.Repo, d.Logger)

	timeout := d.Config.Jobs.HTTPTimeout
	if timeout <= 0 {
		timeout = 30 * time.Second
	}

	return &Service{
		Auth:         NewAuthService(d.Config, d.Repo, d.JWT, d.Blacklist, d.Logger),
		Registration: registration,
		Alert:        alerts,
		Record:       NewRecordService(d.Repo, dispatcher, d.Clock, loc, d.Logger),
		Slot:         NewSlotService(d.Repo, capacity, loc, d.Logger),
		Export:       export,
		Attendance:   NewAttendanceService(d.Repo, d.JWT, registration, d.Logger),
		Job: NewJobService(JobDeps{
			Config:       d.Config,
			Repo:         d.Repo,
			Calendar:     calendar,
			Registration: registration,
			Alerts:       alerts,
			Export:       export,
			Notifier:     dispatcher,
			Clock:        d.Clock,
			Location:     loc,
			Metrics:      d.Metrics,
			HTTPClient:   &http.Client{Timeout: timeout},
			Logger:       d.Logger,
		}),
		Calendar:   calendar,
		Dispatcher: dispatcher,
	}
}
