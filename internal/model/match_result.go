package model

// PoolQuestion 预生成题库中的一条候选题目
type PoolQuestion struct {
	Text       string `json:"text"`
	Difficulty string `json:"difficulty"`
	Topic      string `json:"topic"`
}

// MatchResult 候选人与岗位的匹配结果，是一场面试的上下文来源。
// InterviewQuestions 为外部匹配流程预生成的题库，题目出题时优先消费。
// swagger:model MatchResult
type MatchResult struct {
	BaseModel
	CandidateID        uint               `gorm:"index;not null" json:"CandidateId"`
	JobID              uint               `gorm:"index;not null" json:"JobId"`
	ApplicationID      string             `gorm:"size:64;uniqueIndex" json:"ApplicationId"`
	Score              float64            `json:"Score"`
	Shortlisted        bool               `gorm:"default:false" json:"Shortlisted"`
	Explanation        map[string]any     `gorm:"serializer:json;type:text" json:"Explanation"`
	InterviewQuestions []PoolQuestion     `gorm:"serializer:json;type:text" json:"InterviewQuestions"`
	InterviewDate      string             `gorm:"size:50" json:"InterviewDate"`
}

func (MatchResult) TableName() string {
	return "match_results"
}
