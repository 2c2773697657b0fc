package dto

// ── 档案审核 DTO ──

// RecordDecisionResponse 档案审核结果
type RecordDecisionResponse struct {
	OK                   bool   `json:"ok"`
	RecordID             string `json:"record_id"`
	Validation           string `json:"validation"`
	ArchivedAttestations int    `json:"archived_attestations"`
}
