package dto

// ── 课程名额提醒 DTO ──

// CourseAlertRequest 订阅 / 取消订阅请求
// 邮箱格式由服务层校验，以返回稳定的 INVALID_EMAIL 标签
type CourseAlertRequest struct {
	CourseID string `json:"course_id" binding:"required,uuid"`
	Email    string `json:"email"     binding:"required"`
}
