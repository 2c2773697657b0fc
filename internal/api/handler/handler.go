package handler

import "immersion/backend/internal/service"

// Handler 所有 Handler 的聚合入口
type Handler struct {
	Auth         *AuthHandler
	Registration *RegistrationHandler
	Slot         *SlotHandler
	Alert        *AlertHandler
	Record       *RecordHandler
	Attendance   *AttendanceHandler
	Export       *ExportHandler
	Job          *JobHandler
}

// NewHandler 创建 Handler 聚合
func NewHandler(svc *service.Service) *Handler {
	return &Handler{
		Auth:         NewAuthHandler(svc.Auth),
		Registration: NewRegistrationHandler(svc.Registration),
		Slot:         NewSlotHandler(svc.Slot),
		Alert:        NewAlertHandler(svc.Alert),
		Record:       NewRecordHandler(svc.Record),
		Attendance:   NewAttendanceHandler(svc.Attendance),
		Export:       NewExportHandler(svc.Export),
		Job:          NewJobHandler(svc.Job),
	}
}
