package model

import "time"

// InterviewAnswer 每次作答的审计记录，和题目上的答案字段分开保存
type InterviewAnswer struct {
	BaseModel
	SessionID        uint       `gorm:"index;not null" json:"SessionId"`
	QuestionID       uint       `gorm:"index;not null" json:"QuestionId"`
	AnswerText       *string    `gorm:"type:text" json:"AnswerText"`
	StartedAt        *time.Time `json:"StartedAt"`
	EndedAt          time.Time  `gorm:"not null" json:"EndedAt"`
	Skipped          bool       `gorm:"default:false;not null" json:"Skipped"`
	TimeTakenSeconds int        `gorm:"default:0;not null" json:"TimeTakenSeconds"`
}

func (InterviewAnswer) TableName() string {
	return "interview_answers"
}
