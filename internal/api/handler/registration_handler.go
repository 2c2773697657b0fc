package handler

import (
	"github.com/gin-gonic/gin"

	"immersion/backend/internal/dto"
	"immersion/backend/internal/service"
	"immersion/backend/pkg/response"
)

// RegistrationHandler 报名模块 HTTP 处理器
type RegistrationHandler struct {
	registrationSvc service.RegistrationService
}

// NewRegistrationHandler 创建 RegistrationHandler
func NewRegistrationHandler(registrationSvc service.RegistrationService) *RegistrationHandler {
	return &RegistrationHandler{registrationSvc: registrationSvc}
}

// Register 个人报名（本人或管理人员代报名）
// POST /api/v1/slots/:id/register
func (h *RegistrationHandler) Register(c *gin.Context) {
	actor, ok := MustGetActor(c)
	if !ok {
		return
	}
	var req dto.RegisterRequest
	if c.Request.ContentLength != 0 {
		if !bindJSON(c, &req) {
			return
		}
	}

	result, err := h.registrationSvc.RegisterIndividual(c.Request.Context(), actor, c.Param("id"), req.StudentID, service.RegisterOptions{
		Force:              req.Force,
		AllowPendingRecord: req.AllowPendingRecord,
	})
	if err != nil {
		handleServiceError(c, err)
		return
	}

	response.Created(c, dto.RegisterResponse{
		OK:               true,
		ImmersionID:      result.Immersion.ImmersionID,
		NotifyDisability: result.NotifyDisability,
		Forced:           result.Forced,
	})
}

// Probe 报名资格预检，不产生任何写入
// GET /api/v1/slots/:id/eligibility?student_id=xxx
func (h *RegistrationHandler) Probe(c *gin.Context) {
	actor, ok := MustGetActor(c)
	if !ok {
		return
	}

	result, err := h.registrationSvc.Probe(c.Request.Context(), actor, c.Param("id"), c.Query("student_id"))
	if err != nil {
		handleServiceError(c, err)
		return
	}

	resp := dto.EligibilityResponse{Allowed: result.Decision.Allowed, Seats: result.Seats}
	if d := result.Decision.Denial; d != nil {
		resp.Tag = d.Tag
		resp.Message = d.Message
	}
	response.OK(c, resp)
}

// RegisterGroup 团体报名
// POST /api/v1/slots/:id/groups
func (h *RegistrationHandler) RegisterGroup(c *gin.Context) {
	actor, ok := MustGetActor(c)
	if !ok {
		return
	}
	var req dto.GroupRegisterRequest
	if !bindJSON(c, &req) {
		return
	}

	group, err := h.registrationSvc.RegisterGroup(c.Request.Context(), actor, c.Param("id"), service.GroupRequest{
		HighSchoolID:  req.HighSchoolID,
		StudentsCount: req.StudentsCount,
		GuidesCount:   req.GuidesCount,
		Emails:        req.Emails,
		Comments:      req.Comments,
		Force:         req.Force,
	})
	if err != nil {
		handleServiceError(c, err)
		return
	}

	response.Created(c, dto.GroupRegisterResponse{OK: true, GroupImmersionID: group.GroupImmersionID, Size: group.Size()})
}

// UpdateGroup 修改团体人数
// PUT /api/v1/groups/:id
func (h *RegistrationHandler) UpdateGroup(c *gin.Context) {
	actor, ok := MustGetActor(c)
	if !ok {
		return
	}
	var req dto.UpdateGroupRequest
	if !bindJSON(c, &req) {
		return
	}

	group, err := h.registrationSvc.UpdateGroup(c.Request.Context(), actor, c.Param("id"), req.StudentsCount, req.GuidesCount)
	if err != nil {
		handleServiceError(c, err)
		return
	}

	response.OK(c, dto.GroupRegisterResponse{OK: true, GroupImmersionID: group.GroupImmersionID, Size: group.Size()})
}

// CancelGroup 取消团体报名
// POST /api/v1/groups/:id/cancel
func (h *RegistrationHandler) CancelGroup(c *gin.Context) {
	actor, ok := MustGetActor(c)
	if !ok {
		return
	}
	var req dto.CancelRequest
	if !bindJSON(c, &req) {
		return
	}

	if err := h.registrationSvc.CancelGroup(c.Request.Context(), actor, c.Param("id"), req.CancellationTypeID); err != nil {
		handleServiceError(c, err)
		return
	}
	response.OK(c, dto.OKResponse{OK: true})
}

// Cancel 取消个人报名
// POST /api/v1/immersions/:id/cancel
func (h *RegistrationHandler) Cancel(c *gin.Context) {
	actor, ok := MustGetActor(c)
	if !ok {
		return
	}
	var req dto.CancelRequest
	if !bindJSON(c, &req) {
		return
	}

	if err := h.registrationSvc.Cancel(c.Request.Context(), actor, c.Param("id"), req.CancellationTypeID); err != nil {
		handleServiceError(c, err)
		return
	}
	response.OK(c, dto.OKResponse{OK: true})
}

// BatchCancel 批量取消同一时段的报名
// POST /api/v1/slots/:id/batch-cancel
func (h *RegistrationHandler) BatchCancel(c *gin.Context) {
	actor, ok := MustGetActor(c)
	if !ok {
		return
	}
	var req dto.BatchCancelRequest
	if !bindJSON(c, &req) {
		return
	}

	result, err := h.registrationSvc.BatchCancel(c.Request.Context(), actor, c.Param("id"), req.ImmersionIDs, req.CancellationTypeID)
	if err != nil {
		handleServiceError(c, err)
		return
	}

	resp := dto.BatchCancelResponse{CountCancelled: result.Count}
	if len(result.Errors) > 0 {
		resp.Errors = result.Errors
	}
	response.OK(c, resp)
}

// SetAttendance 录入出勤状态
// PUT /api/v1/immersions/attendance
func (h *RegistrationHandler) SetAttendance(c *gin.Context) {
	actor, ok := MustGetActor(c)
	if !ok {
		return
	}
	var req dto.AttendanceRequest
	if !bindJSON(c, &req) {
		return
	}

	outcomes, err := h.registrationSvc.SetAttendance(c.Request.Context(), actor, req.ImmersionIDs, *req.Status)
	if err != nil {
		handleServiceError(c, err)
		return
	}

	results := make([]dto.AttendanceResult, 0, len(outcomes))
	for _, o := range outcomes {
		results = append(results, dto.AttendanceResult{
			ImmersionID: o.ImmersionID,
			OK:          o.Tag == "",
			Status:      o.Status,
			Error:       o.Tag,
		})
	}
	response.OK(c, gin.H{"list": results})
}

// RemainingCounts 各周期剩余报名次数
// GET /api/v1/users/:id/remaining-registrations
func (h *RegistrationHandler) RemainingCounts(c *gin.Context) {
	actor, ok := MustGetActor(c)
	if !ok {
		return
	}
	personID := c.Param("id")
	if personID == "me" {
		personID = actor.UserID
	}

	counts, err := h.registrationSvc.RemainingCounts(c.Request.Context(), actor, personID)
	if err != nil {
		handleServiceError(c, err)
		return
	}

	resp := dto.RemainingCountsResponse{UserID: personID, Periods: make([]dto.PeriodRemaining, 0, len(counts))}
	for _, pc := range counts {
		resp.Periods = append(resp.Periods, dto.PeriodRemaining{
			PeriodID:  pc.Period.PeriodID,
			Label:     pc.Period.Label,
			Allowed:   pc.Allowed,
			Used:      pc.Used,
			Remaining: pc.Remaining,
		})
	}
	response.OK(c, resp)
}
