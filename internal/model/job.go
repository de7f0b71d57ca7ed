package model

// Job 招聘岗位描述，由 HR 创建
// swagger:model Job
type Job struct {
	BaseModel
	CompanyID             uint               `gorm:"index;not null" json:"CompanyId"`
	Title                 string             `gorm:"size:150" json:"Title"`
	Description           string             `gorm:"type:text" json:"Description"`
	SkillScores           map[string]float64 `gorm:"serializer:json;type:text" json:"SkillScores"`
	GenderRequirement     string             `gorm:"size:50" json:"GenderRequirement"`
	EducationRequirement  string             `gorm:"size:50" json:"EducationRequirement"`
	ExperienceRequirement int                `json:"ExperienceRequirement"`
}

func (Job) TableName() string {
	return "jobs"
}
