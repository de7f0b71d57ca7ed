package model

// InterviewQuestion 会话内按创建顺序排列的题目。
// TimeTakenSeconds 为空表示尚未作答；答案字段仅允许被首次提交写入一次。
// swagger:model InterviewQuestion
type InterviewQuestion struct {
	BaseModel
	SessionID        uint     `gorm:"index;not null" json:"SessionId"`
	Text             string   `gorm:"type:text;not null" json:"Text"`
	Difficulty       string   `gorm:"size:30;default:'medium';not null" json:"Difficulty"`
	Topic            string   `gorm:"size:255;default:'general';not null" json:"Topic"`
	AllottedSeconds  int      `gorm:"not null" json:"AllottedSeconds"`
	AnswerText       *string  `gorm:"type:text" json:"AnswerText"`
	AnswerSummary    string   `gorm:"type:text" json:"AnswerSummary"`
	RelevanceScore   *float64 `json:"RelevanceScore"`
	TimeTakenSeconds *int     `json:"TimeTakenSeconds"`
	Skipped          bool     `gorm:"default:false;not null" json:"Skipped"`
}

func (InterviewQuestion) TableName() string {
	return "interview_questions"
}

func (q *InterviewQuestion) Answered() bool {
	return q.TimeTakenSeconds != nil
}
