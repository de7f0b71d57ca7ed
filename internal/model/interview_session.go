package model

import (
	"time"
)

type SessionStatus string

const (
	SessionInProgress SessionStatus = "in_progress"
	SessionCompleted  SessionStatus = "completed"
)

// InterviewSession 一场计时面试的持久状态。
// 阶段机字段（Phase/FollowupDepth/CurrentTopic/CoveredProjects）只允许
// 通过 InterviewService 在会话锁内更新；RemainingTimeSeconds 单调递减。
// swagger:model InterviewSession
type InterviewSession struct {
	BaseModel
	CandidateID          uint          `gorm:"index;not null" json:"CandidateId"`
	ResultID             uint          `gorm:"index;not null" json:"ResultId"`
	Status               SessionStatus `gorm:"size:50;default:'in_progress';not null" json:"Status"`
	Phase                string        `gorm:"size:30;default:'intro';not null" json:"Phase"`
	FollowupDepth        int           `gorm:"default:0" json:"FollowupDepth"`
	CurrentTopic         string        `gorm:"size:255" json:"CurrentTopic"`
	Experiences          []string      `gorm:"serializer:json;type:text" json:"Experiences"`
	Projects             []string      `gorm:"serializer:json;type:text" json:"Projects"`
	CoveredProjects      []string      `gorm:"serializer:json;type:text" json:"CoveredProjects"`
	QuestionCount        int           `gorm:"default:0" json:"QuestionCount"`
	PerQuestionSeconds   int           `gorm:"default:60;not null" json:"PerQuestionSeconds"`
	TotalTimeSeconds     int           `gorm:"default:1200;not null" json:"TotalTimeSeconds"`
	RemainingTimeSeconds int           `gorm:"default:1200;not null" json:"RemainingTimeSeconds"`
	MaxQuestions         int           `gorm:"default:8;not null" json:"MaxQuestions"`
	BaselineSignature    string        `gorm:"type:text" json:"-"` // JSON 数组，首次基线采集写入
	BaselineCapturedAt   *time.Time    `json:"BaselineCapturedAt"`
	StartedAt            time.Time     `gorm:"not null" json:"StartedAt"`
	EndedAt              *time.Time    `json:"EndedAt"`
}

func (InterviewSession) TableName() string {
	return "interview_sessions"
}

func (s *InterviewSession) Completed() bool {
	return s.Status == SessionCompleted
}
