package model

// Campus 校区表 — 对应 campuses
type Campus struct {
	CampusID        string `gorm:"type:uuid;primaryKey;default:gen_random_uuid()" json:"campus_id"`
	Label           string `gorm:"type:varchar(256);not null"                     json:"label"`
	EstablishmentID string `gorm:"type:uuid;not null"                             json:"establishment_id"`
	City            string `gorm:"type:varchar(128)"                              json:"city,omitempty"`
	Active          bool   `gorm:"not null;default:true"                          json:"active"`
	SoftDeleteModel
}

// TableName 指定表名
func (Campus) TableName() string { return "campuses" }

// Building 楼宇表 — 对应 buildings
type Building struct {
	BuildingID string `gorm:"type:uuid;primaryKey;default:gen_random_uuid()" json:"building_id"`
	CampusID   string `gorm:"type:uuid;not null"                             json:"campus_id"`
	Label      string `gorm:"type:varchar(256);not null"                     json:"label"`
	URL        string `gorm:"column:url;type:varchar(512)"                   json:"url,omitempty"`
	Active     bool   `gorm:"not null;default:true"                          json:"active"`
	SoftDeleteModel
}

// TableName 指定表名
func (Building) TableName() string { return "buildings" }
