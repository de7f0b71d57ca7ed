package controller

import (
	"ai_interview_backend/internal/model"
	"ai_interview_backend/internal/repository"
	"ai_interview_backend/internal/service"
	"ai_interview_backend/internal/util"
	"strconv"

	"github.com/gin-gonic/gin"
)

// HRController 面向 HR 的岗位、匹配结果与监考回放接口
type HRController struct {
	JobRepo          *repository.JobRepository
	ResultRepo       *repository.ResultRepository
	InterviewService *service.InterviewService
	ProctorService   *service.ProctorService
	Hub              *service.ProctorHub
}

func NewHRController(
	jobRepo *repository.JobRepository,
	resultRepo *repository.ResultRepository,
	interviewService *service.InterviewService,
	proctorService *service.ProctorService,
	hub *service.ProctorHub,
) *HRController {
	return &HRController{
		JobRepo:          jobRepo,
		ResultRepo:       resultRepo,
		InterviewService: interviewService,
		ProctorService:   proctorService,
		Hub:              hub,
	}
}

// CreateJobRequest 创建岗位请求
// swagger:model CreateJobRequest
type CreateJobRequest struct {
	Title                 string             `json:"title" binding:"required"`
	Description           string             `json:"description" binding:"required"`
	SkillScores           map[string]float64 `json:"skillScores"`
	GenderRequirement     string             `json:"genderRequirement"`
	EducationRequirement  string             `json:"educationRequirement"`
	ExperienceRequirement int                `json:"experienceRequirement"`
}

// CreateJob godoc
// @Summary 创建岗位
// @Tags HR
// @Accept  json
// @Produce  json
// @Security BearerAuth
// @Param   body body CreateJobRequest true "岗位信息"
// @Success 201 {object} util.Response{data=model.Job}
// @Failure 400 {object} util.Response
// @Router /api/hr/jobs [post]
func (c *HRController) CreateJob(ctx *gin.Context) {
	claims := util.GetUserFromContext(ctx)
	if claims == nil {
		util.Unauthorized(ctx)
		return
	}

	var req CreateJobRequest
	if err := ctx.ShouldBindJSON(&req); err != nil {
		util.BadRequest(ctx, err.Error())
		return
	}

	job := &model.Job{
		CompanyID:             claims.UserID,
		Title:                 req.Title,
		Description:           req.Description,
		SkillScores:           req.SkillScores,
		GenderRequirement:     req.GenderRequirement,
		EducationRequirement:  req.EducationRequirement,
		ExperienceRequirement: req.ExperienceRequirement,
	}
	if err := c.JobRepo.Create(job); err != nil {
		util.LogInternalError(ctx, err)
		return
	}

	util.Created(ctx, job)
}

// ListJobs godoc
// @Summary 岗位列表
// @Tags HR
// @Produce  json
// @Security BearerAuth
// @Param   page query int false "页码"
// @Param   limit query int false "每页数量"
// @Success 200 {object} util.Response{data=object}
// @Router /api/hr/jobs [get]
func (c *HRController) ListJobs(ctx *gin.Context) {
	claims := util.GetUserFromContext(ctx)
	if claims == nil {
		util.Unauthorized(ctx)
		return
	}

	page, _ := strconv.Atoi(ctx.DefaultQuery("page", "1"))
	limit, _ := strconv.Atoi(ctx.DefaultQuery("limit", "20"))

	jobs, total, err := c.JobRepo.ListByCompany(claims.UserID, page, limit)
	if err != nil {
		util.LogInternalError(ctx, err)
		return
	}

	util.Success(ctx, gin.H{"items": jobs, "total": total})
}

// CreateResultRequest 登记匹配结果请求，题库随结果一起写入
// swagger:model CreateResultRequest
type CreateResultRequest struct {
	CandidateID        uint                 `json:"candidateId" binding:"required"`
	JobID              uint                 `json:"jobId" binding:"required"`
	ApplicationID      string               `json:"applicationId" binding:"required"`
	Score              float64              `json:"score"`
	Shortlisted        bool                 `json:"shortlisted"`
	Explanation        map[string]any       `json:"explanation"`
	InterviewQuestions []model.PoolQuestion `json:"interviewQuestions"`
	InterviewDate      string               `json:"interviewDate"`
}

// CreateResult godoc
// @Summary 登记匹配结果
// @Description 写入候选人与岗位的匹配结果及预生成题库，作为面试上下文
// @Tags HR
// @Accept  json
// @Produce  json
// @Security BearerAuth
// @Param   body body CreateResultRequest true "匹配结果"
// @Success 201 {object} util.Response{data=model.MatchResult}
// @Failure 400 {object} util.Response
// @Router /api/hr/results [post]
func (c *HRController) CreateResult(ctx *gin.Context) {
	var req CreateResultRequest
	if err := ctx.ShouldBindJSON(&req); err != nil {
		util.BadRequest(ctx, err.Error())
		return
	}

	result := &model.MatchResult{
		CandidateID:        req.CandidateID,
		JobID:              req.JobID,
		ApplicationID:      req.ApplicationID,
		Score:              req.Score,
		Shortlisted:        req.Shortlisted,
		Explanation:        req.Explanation,
		InterviewQuestions: req.InterviewQuestions,
		InterviewDate:      req.InterviewDate,
	}
	if err := c.ResultRepo.Create(result); err != nil {
		util.LogInternalError(ctx, err)
		return
	}

	util.Created(ctx, result)
}

// ListResults godoc
// @Summary 岗位下的匹配结果
// @Tags HR
// @Produce  json
// @Security BearerAuth
// @Param   jobId path int true "岗位ID"
// @Param   page query int false "页码"
// @Param   limit query int false "每页数量"
// @Success 200 {object} util.Response{data=object}
// @Router /api/hr/jobs/{jobId}/results [get]
func (c *HRController) ListResults(ctx *gin.Context) {
	jobID, err := strconv.ParseUint(ctx.Param("jobId"), 10, 64)
	if err != nil {
		util.BadRequest(ctx, "无效的岗位ID")
		return
	}

	page, _ := strconv.Atoi(ctx.DefaultQuery("page", "1"))
	limit, _ := strconv.Atoi(ctx.DefaultQuery("limit", "20"))

	results, total, err := c.ResultRepo.ListByJob(uint(jobID), page, limit)
	if err != nil {
		util.LogInternalError(ctx, err)
		return
	}

	util.Success(ctx, gin.H{"items": results, "total": total})
}

// Shortlist godoc
// @Summary 入围/取消入围
// @Tags HR
// @Accept  json
// @Produce  json
// @Security BearerAuth
// @Param   id path int true "匹配结果ID"
// @Success 200 {object} util.Response
// @Router /api/hr/results/{id}/shortlist [put]
func (c *HRController) Shortlist(ctx *gin.Context) {
	resultID, err := strconv.ParseUint(ctx.Param("id"), 10, 64)
	if err != nil {
		util.BadRequest(ctx, "无效的结果ID")
		return
	}

	var req struct {
		Shortlisted bool `json:"shortlisted"`
	}
	if err := ctx.ShouldBindJSON(&req); err != nil {
		util.BadRequest(ctx, err.Error())
		return
	}

	if err := c.ResultRepo.SetShortlisted(uint(resultID), req.Shortlisted); err != nil {
		util.LogInternalError(ctx, err)
		return
	}
	util.Success(ctx, gin.H{"shortlisted": req.Shortlisted})
}

// SessionReport godoc
// @Summary 面试报告
// @Description 会话全量视图加可疑事件计数，供复盘
// @Tags HR
// @Produce  json
// @Security BearerAuth
// @Param   id path int true "会话ID"
// @Success 200 {object} util.Response{data=object}
// @Failure 404 {object} util.Response
// @Router /api/hr/sessions/{id}/report [get]
func (c *HRController) SessionReport(ctx *gin.Context) {
	claims := util.GetUserFromContext(ctx)
	if claims == nil {
		util.Unauthorized(ctx)
		return
	}

	sessionID, err := strconv.ParseUint(ctx.Param("id"), 10, 64)
	if err != nil {
		util.BadRequest(ctx, "无效的会话ID")
		return
	}

	snapshot, err := c.InterviewService.GetSession(uint(sessionID), claims.UserID, true)
	if err != nil {
		writeInterviewError(ctx, err)
		return
	}

	suspicious, err := c.ProctorService.SuspiciousCount(uint(sessionID))
	if err != nil {
		util.LogInternalError(ctx, err)
		return
	}

	util.Success(ctx, gin.H{
		"session":         snapshot,
		"suspiciousCount": suspicious,
	})
}

// ProctorTimeline godoc
// @Summary 监考事件时间线
// @Tags HR
// @Produce  json
// @Security BearerAuth
// @Param   id path int true "会话ID"
// @Success 200 {object} util.Response{data=[]model.ProctorEvent}
// @Router /api/hr/sessions/{id}/proctoring [get]
func (c *HRController) ProctorTimeline(ctx *gin.Context) {
	sessionID, err := strconv.ParseUint(ctx.Param("id"), 10, 64)
	if err != nil {
		util.BadRequest(ctx, "无效的会话ID")
		return
	}

	events, err := c.ProctorService.Timeline(uint(sessionID))
	if err != nil {
		util.LogInternalError(ctx, err)
		return
	}
	util.Success(ctx, events)
}

// WatchLive godoc
// @Summary 实时观察
// @Description 升级为 WebSocket，推送该会话的可疑监考事件
// @Tags HR
// @Security BearerAuth
// @Param   id path int true "会话ID"
// @Router /api/hr/sessions/{id}/live [get]
func (c *HRController) WatchLive(ctx *gin.Context) {
	claims := util.GetUserFromContext(ctx)
	if claims == nil {
		util.Unauthorized(ctx)
		return
	}

	sessionID, err := strconv.ParseUint(ctx.Param("id"), 10, 64)
	if err != nil {
		util.BadRequest(ctx, "无效的会话ID")
		return
	}

	service.ServeProctorWs(c.Hub, ctx.Writer, ctx.Request, claims.UserID, uint(sessionID))
}
