package repository

import (
	"ai_interview_backend/internal/model"
	"time"

	"gorm.io/gorm"
)

type InterviewRepository struct {
	DB *gorm.DB
}

func NewInterviewRepository(db *gorm.DB) *InterviewRepository {
	return &InterviewRepository{DB: db}
}

func (r *InterviewRepository) CreateSession(session *model.InterviewSession) error {
	return r.DB.Create(session).Error
}

func (r *InterviewRepository) FindSessionByID(id uint) (*model.InterviewSession, error) {
	var session model.InterviewSession
	err := r.DB.First(&session, id).Error
	return &session, err
}

// FindActiveSession 返回候选人在该结果下最新的进行中会话
func (r *InterviewRepository) FindActiveSession(candidateID, resultID uint) (*model.InterviewSession, error) {
	var session model.InterviewSession
	err := r.DB.Where("candidate_id = ? AND result_id = ? AND status = ?",
		candidateID, resultID, model.SessionInProgress).
		Order("id desc").First(&session).Error
	return &session, err
}

// UpdateSession 持久化会话的进度字段。基线签名等监考侧字段走
// UpdateSessionFields 单独写入，这里不整行覆盖，避免并发时互相冲掉。
func (r *InterviewRepository) UpdateSession(session *model.InterviewSession) error {
	return r.DB.Model(session).
		Select("status", "phase", "followup_depth", "current_topic", "covered_projects",
			"question_count", "remaining_time_seconds", "ended_at").
		Updates(session).Error
}

// UpdateSessionFields 事务性地更新单条会话记录的部分字段
func (r *InterviewRepository) UpdateSessionFields(id uint, fields map[string]interface{}) error {
	return r.DB.Model(&model.InterviewSession{}).Where("id = ?", id).Updates(fields).Error
}

// ListStaleSessions 返回总预算耗尽后仍挂起超过宽限期的进行中会话，
// 用于后台兜底收尾。预算是每行自己的字段，粗筛后在内存里过滤。
func (r *InterviewRepository) ListStaleSessions(grace time.Duration) ([]model.InterviewSession, error) {
	var candidates []model.InterviewSession
	now := time.Now()
	err := r.DB.Where("status = ? AND started_at < ?", model.SessionInProgress, now.Add(-grace)).
		Find(&candidates).Error
	if err != nil {
		return nil, err
	}

	var sessions []model.InterviewSession
	for _, session := range candidates {
		deadline := session.StartedAt.Add(time.Duration(session.TotalTimeSeconds)*time.Second + grace)
		if now.After(deadline) {
			sessions = append(sessions, session)
		}
	}
	return sessions, nil
}

func (r *InterviewRepository) CreateQuestion(question *model.InterviewQuestion) error {
	return r.DB.Create(question).Error
}

func (r *InterviewRepository) FindQuestionByID(id uint) (*model.InterviewQuestion, error) {
	var question model.InterviewQuestion
	err := r.DB.First(&question, id).Error
	return &question, err
}

// ListQuestions 按创建顺序返回会话的全部题目
func (r *InterviewRepository) ListQuestions(sessionID uint) ([]model.InterviewQuestion, error) {
	var questions []model.InterviewQuestion
	err := r.DB.Where("session_id = ?", sessionID).Order("id asc").Find(&questions).Error
	return questions, err
}

func (r *InterviewRepository) UpdateQuestion(question *model.InterviewQuestion) error {
	return r.DB.Save(question).Error
}

func (r *InterviewRepository) CreateAnswer(answer *model.InterviewAnswer) error {
	return r.DB.Create(answer).Error
}

func (r *InterviewRepository) CountAnswered(sessionID uint) (int64, error) {
	var count int64
	err := r.DB.Model(&model.InterviewQuestion{}).
		Where("session_id = ? AND time_taken_seconds IS NOT NULL", sessionID).
		Count(&count).Error
	return count, err
}
