package dto

// ── 时段模块 DTO ──

// CreateSlotRequest 创建时段请求
type CreateSlotRequest struct {
	CourseID                     *string  `json:"course_id"   binding:"omitempty,uuid"`
	EventID                      *string  `json:"event_id"    binding:"omitempty,uuid"`
	Kind                         string   `json:"kind"        binding:"omitempty,oneof=course event visit"`
	Date                         string   `json:"date"        binding:"required,datetime=2006-01-02"`
	StartTime                    string   `json:"start_time"  binding:"required,hhmm"`
	EndTime                      string   `json:"end_time"    binding:"required,hhmm"`
	PlaceKind                    string   `json:"place_kind"  binding:"omitempty,oneof=face_to_face remote hybrid"`
	CampusID                     *string  `json:"campus_id"   binding:"omitempty,uuid"`
	BuildingID                   *string  `json:"building_id" binding:"omitempty,uuid"`
	Room                         string   `json:"room"        binding:"omitempty,max=128"`
	URL                          string   `json:"url"         binding:"omitempty,url"`
	NPlaces                      int      `json:"n_places"        binding:"min=0"`
	NGroupPlaces                 int      `json:"n_group_places"  binding:"min=0"`
	GroupMode                    int      `json:"group_mode"      binding:"oneof=0 1"`
	AllowIndividualRegistrations *bool    `json:"allow_individual_registrations"`
	AllowGroupRegistrations      bool     `json:"allow_group_registrations"`
	RegistrationLimitDelay       int      `json:"registration_limit_delay" binding:"min=0"`
	CancellationLimitDelay       int      `json:"cancellation_limit_delay" binding:"min=0"`
	LevelsRestrictions           bool     `json:"levels_restrictions"`
	AllowedLevels                []string `json:"allowed_levels"`
	AllowedPostBacLevels         []string `json:"allowed_post_bac_levels"`
	EstablishmentsRestrictions   bool     `json:"establishments_restrictions"`
	AllowedEstablishments        []string `json:"allowed_establishments" binding:"omitempty,dive,uuid"`
	HighSchoolsRestrictions      bool     `json:"high_schools_restrictions"`
	AllowedHighSchools           []string `json:"allowed_high_schools"   binding:"omitempty,dive,uuid"`
	BachelorsRestrictions        bool     `json:"bachelors_restrictions"`
	AllowedBachelorTypes         []string `json:"allowed_bachelor_types"`
	AllowedBachelorMentions      []string `json:"allowed_bachelor_mentions"`
	AllowedBachelorTeachings     []string `json:"allowed_bachelor_teachings"`
	SpeakerIDs                   []string `json:"speaker_ids" binding:"omitempty,dive,uuid"`
	Published                    bool     `json:"published"`
	AdditionalInformation        string   `json:"additional_information" binding:"omitempty,max=4000"`
}

// SlotResponse 时段信息响应
type SlotResponse struct {
	ID                    string  `json:"id"`
	Kind                  string  `json:"kind"`
	CourseID              *string `json:"course_id,omitempty"`
	EventID               *string `json:"event_id,omitempty"`
	Label                 string  `json:"label"`
	Date                  string  `json:"date"`
	StartTime             string  `json:"start_time"`
	EndTime               string  `json:"end_time"`
	PlaceKind             string  `json:"place_kind"`
	NPlaces               int     `json:"n_places"`
	NGroupPlaces          int     `json:"n_group_places"`
	GroupMode             int     `json:"group_mode"`
	AvailableSeats        int     `json:"available_seats"`
	AvailableGroupSeats   int     `json:"available_group_seats"`
	RegistrationLimitDate string  `json:"registration_limit_date"`
	CancellationLimitDate string  `json:"cancellation_limit_date"`
	Published             bool    `json:"published"`
	RegisteredCount       int     `json:"registered_count"`
}

// SlotListRequest 时段列表查询参数
type SlotListRequest struct {
	From          string `form:"from" binding:"required,datetime=2006-01-02"`
	To            string `form:"to"   binding:"required,datetime=2006-01-02"`
	PublishedOnly bool   `form:"published_only"`
}
