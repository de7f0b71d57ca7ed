package repository

import (
	"ai_interview_backend/internal/model"

	"gorm.io/gorm"
)

type ResultRepository struct {
	DB *gorm.DB
}

func NewResultRepository(db *gorm.DB) *ResultRepository {
	return &ResultRepository{DB: db}
}

func (r *ResultRepository) Create(result *model.MatchResult) error {
	return r.DB.Create(result).Error
}

func (r *ResultRepository) FindByID(id uint) (*model.MatchResult, error) {
	var result model.MatchResult
	err := r.DB.First(&result, id).Error
	return &result, err
}

func (r *ResultRepository) FindByIDForCandidate(id, candidateID uint) (*model.MatchResult, error) {
	var result model.MatchResult
	err := r.DB.Where("id = ? AND candidate_id = ?", id, candidateID).First(&result).Error
	return &result, err
}

// FindLatestForCandidate 优先返回已入围的最新结果，否则退回最新结果
func (r *ResultRepository) FindLatestForCandidate(candidateID uint) (*model.MatchResult, error) {
	var result model.MatchResult
	err := r.DB.Where("candidate_id = ? AND shortlisted = ?", candidateID, true).
		Order("id desc").First(&result).Error
	if err == nil {
		return &result, nil
	}
	if err != gorm.ErrRecordNotFound {
		return nil, err
	}
	err = r.DB.Where("candidate_id = ?", candidateID).Order("id desc").First(&result).Error
	return &result, err
}

func (r *ResultRepository) ListByJob(jobID uint, page, limit int) ([]model.MatchResult, int64, error) {
	var results []model.MatchResult
	var total int64
	query := r.DB.Model(&model.MatchResult{}).Where("job_id = ?", jobID)
	if err := query.Count(&total).Error; err != nil {
		return nil, 0, err
	}
	offset := (page - 1) * limit
	err := query.Order("score desc").Offset(offset).Limit(limit).Find(&results).Error
	return results, total, err
}

func (r *ResultRepository) Update(result *model.MatchResult) error {
	return r.DB.Save(result).Error
}

func (r *ResultRepository) SetShortlisted(id uint, shortlisted bool) error {
	return r.DB.Model(&model.MatchResult{}).Where("id = ?", id).
		Update("shortlisted", shortlisted).Error
}
