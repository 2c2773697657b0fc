package dto

// ── 通用响应 ──

// OKResponse 仅包含成功标志的响应
type OKResponse struct {
	OK bool `json:"ok"`
}

// JobResult 定时命令执行结果
type JobResult struct {
	Command string `json:"command"`
	Success bool   `json:"success"`
	Message string `json:"message"`
	Count   int    `json:"count"`
}
