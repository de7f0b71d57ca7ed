package repository

import (
	"ai_interview_backend/internal/model"

	"gorm.io/gorm"
)

type ProctorRepository struct {
	DB *gorm.DB
}

func NewProctorRepository(db *gorm.DB) *ProctorRepository {
	return &ProctorRepository{DB: db}
}

func (r *ProctorRepository) CreateEvent(event *model.ProctorEvent) error {
	return r.DB.Create(event).Error
}

func (r *ProctorRepository) ListEvents(sessionID uint) ([]model.ProctorEvent, error) {
	var events []model.ProctorEvent
	err := r.DB.Where("session_id = ?", sessionID).Order("created_at asc").Find(&events).Error
	return events, err
}

func (r *ProctorRepository) CountSuspicious(sessionID uint) (int64, error) {
	var count int64
	err := r.DB.Model(&model.ProctorEvent{}).
		Where("session_id = ? AND event_type IN ?", sessionID, []model.ProctorEventType{
			model.EventNoFace,
			model.EventMultiFace,
			model.EventFaceMismatch,
			model.EventHighMotion,
			model.EventBaselineNoFace,
			model.EventBaselineMultiFace,
		}).
		Count(&count).Error
	return count, err
}
