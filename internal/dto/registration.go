package dto

// ── 报名模块 DTO ──

// RegisterRequest 个人报名请求
// StudentID 为空时为本人报名；管理人员代报名时填写目标用户
type RegisterRequest struct {
	StudentID          string `json:"student_id"           binding:"omitempty,uuid"`
	Force              bool   `json:"force"`                // 强制报名（机构负责人及以上）
	AllowPendingRecord bool   `json:"allow_pending_record"` // 允许档案待审核
}

// RegisterResponse 个人报名结果
type RegisterResponse struct {
	OK               bool   `json:"ok"`
	ImmersionID      string `json:"immersion_id"`
	NotifyDisability string `json:"notify_disability"` // never | auto | on_demand
	Forced           bool   `json:"forced,omitempty"`
}

// GroupRegisterRequest 团体报名请求
type GroupRegisterRequest struct {
	HighSchoolID  string `json:"high_school_id" binding:"omitempty,uuid"`
	StudentsCount int    `json:"students_count" binding:"required,min=1"`
	GuidesCount   int    `json:"guides_count"   binding:"required,min=1"`
	Emails        string `json:"emails"         binding:"omitempty,max=2000"`
	Comments      string `json:"comments"       binding:"omitempty,max=2000"`
	Force         bool   `json:"force"`
}

// GroupRegisterResponse 团体报名结果
type GroupRegisterResponse struct {
	OK               bool   `json:"ok"`
	GroupImmersionID string `json:"group_immersion_id"`
	Size             int    `json:"size"`
}

// UpdateGroupRequest 修改团体人数请求
type UpdateGroupRequest struct {
	StudentsCount int `json:"students_count" binding:"required,min=1"`
	GuidesCount   int `json:"guides_count"   binding:"min=0"`
}

// CancelRequest 取消报名请求
type CancelRequest struct {
	CancellationTypeID string `json:"cancellation_type_id" binding:"omitempty,uuid"`
}

// BatchCancelRequest 批量取消请求
type BatchCancelRequest struct {
	ImmersionIDs       []string `json:"immersion_ids"        binding:"omitempty,dive,uuid"`
	CancellationTypeID string   `json:"cancellation_type_id" binding:"omitempty,uuid"`
}

// BatchCancelResponse 批量取消结果
type BatchCancelResponse struct {
	CountCancelled int               `json:"count_cancelled"`
	Errors         map[string]string `json:"errors,omitempty"` // immersion_id → 拒绝标签
}

// AttendanceRequest 出勤状态更新请求
type AttendanceRequest struct {
	ImmersionIDs []string `json:"immersion_ids" binding:"required,min=1,dive,uuid"`
	Status       *int     `json:"status"        binding:"required,attendance"`
}

// AttendanceResult 单条出勤更新结果
type AttendanceResult struct {
	ImmersionID string `json:"immersion_id"`
	OK          bool   `json:"ok"`
	Status      int    `json:"status"`
	Error       string `json:"error,omitempty"`
}

// AttendanceScanRequest 扫码签到请求
type AttendanceScanRequest struct {
	Token string `json:"token" binding:"required"`
}

// EligibilityResponse 报名资格预检结果
type EligibilityResponse struct {
	Allowed bool   `json:"allowed"`
	Tag     string `json:"tag,omitempty"`
	Message string `json:"message,omitempty"`
	Seats   int    `json:"seats"`
}

// RemainingCountsResponse 各周期剩余报名次数
type RemainingCountsResponse struct {
	UserID  string            `json:"user_id"`
	Periods []PeriodRemaining `json:"periods"`
}

// PeriodRemaining 单个周期的配额情况
type PeriodRemaining struct {
	PeriodID  string `json:"period_id"`
	Label     string `json:"label"`
	Allowed   int    `json:"allowed"`
	Used      int    `json:"used"`
	Remaining int    `json:"remaining"`
}
