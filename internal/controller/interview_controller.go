package controller

import (
	"ai_interview_backend/internal/model"
	"ai_interview_backend/internal/service"
	"ai_interview_backend/internal/util"
	"errors"
	"strconv"

	"github.com/gin-gonic/gin"
)

type InterviewController struct {
	InterviewService *service.InterviewService
}

func NewInterviewController(interviewService *service.InterviewService) *InterviewController {
	return &InterviewController{InterviewService: interviewService}
}

// StartSession godoc
// @Summary 开始面试
// @Description 为当前候选人开始（或恢复）一场面试，返回会话与首题
// @Tags 面试
// @Produce  json
// @Security BearerAuth
// @Success 200 {object} util.Response{data=service.SessionSnapshot}
// @Failure 404 {object} util.Response "没有可用的面试上下文"
// @Failure 500 {object} util.Response
// @Router /api/interview/sessions [post]
func (c *InterviewController) StartSession(ctx *gin.Context) {
	claims := util.GetUserFromContext(ctx)
	if claims == nil {
		util.Unauthorized(ctx)
		return
	}

	snapshot, err := c.InterviewService.StartSession(ctx.Request.Context(), claims.UserID)
	if err != nil {
		switch {
		case errors.Is(err, util.ErrNoInterviewContext), errors.Is(err, util.ErrUserNotFound):
			util.Error(ctx, 404, err.Error())
		default:
			util.LogInternalError(ctx, err)
		}
		return
	}

	util.Success(ctx, snapshot)
}

// GetSession godoc
// @Summary 会话详情
// @Description 返回会话状态与题目列表；候选人只能查看自己的会话
// @Tags 面试
// @Produce  json
// @Security BearerAuth
// @Param   id path int true "会话ID"
// @Success 200 {object} util.Response{data=service.SessionSnapshot}
// @Failure 403 {object} util.Response
// @Failure 404 {object} util.Response
// @Router /api/interview/sessions/{id} [get]
func (c *InterviewController) GetSession(ctx *gin.Context) {
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

	privileged := claims.Role == model.HR || claims.Role == model.Admin
	snapshot, err := c.InterviewService.GetSession(uint(sessionID), claims.UserID, privileged)
	if err != nil {
		writeInterviewError(ctx, err)
		return
	}

	util.Success(ctx, snapshot)
}

// SubmitAnswerRequest 作答请求
// swagger:model SubmitAnswerRequest
type SubmitAnswerRequest struct {
	AnswerText       string `json:"answerText"`
	Skipped          bool   `json:"skipped"`
	TimeTakenSeconds int    `json:"timeTakenSeconds" binding:"min=0"`
}

// SubmitAnswer godoc
// @Summary 提交回答
// @Description 提交一道题的回答并获取下一题或收尾语；每题只能提交一次
// @Tags 面试
// @Accept  json
// @Produce  json
// @Security BearerAuth
// @Param   id path int true "会话ID"
// @Param   questionId path int true "题目ID"
// @Param   body body SubmitAnswerRequest true "回答内容"
// @Success 200 {object} util.Response{data=service.SubmitResult}
// @Failure 403 {object} util.Response
// @Failure 404 {object} util.Response
// @Failure 409 {object} util.Response "会话已结束 / 题目已作答 / 会话正在处理中"
// @Router /api/interview/sessions/{id}/questions/{questionId}/answer [post]
func (c *InterviewController) SubmitAnswer(ctx *gin.Context) {
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
	questionID, err := strconv.ParseUint(ctx.Param("questionId"), 10, 64)
	if err != nil {
		util.BadRequest(ctx, "无效的题目ID")
		return
	}

	var req SubmitAnswerRequest
	if err := ctx.ShouldBindJSON(&req); err != nil {
		util.BadRequest(ctx, err.Error())
		return
	}

	result, err := c.InterviewService.SubmitAnswer(ctx.Request.Context(),
		claims.UserID, uint(sessionID), uint(questionID), req.AnswerText, req.Skipped, req.TimeTakenSeconds)
	if err != nil {
		writeInterviewError(ctx, err)
		return
	}

	util.Success(ctx, result)
}

// writeInterviewError 把面试域错误映射为 HTTP 状态码
func writeInterviewError(ctx *gin.Context, err error) {
	switch {
	case errors.Is(err, util.ErrPermissionDenied):
		util.Forbidden(ctx)
	case errors.Is(err, util.ErrSessionNotFound), errors.Is(err, util.ErrQuestionNotFound),
		errors.Is(err, util.ErrResultNotFound), errors.Is(err, util.ErrUserNotFound):
		util.Error(ctx, 404, err.Error())
	case errors.Is(err, util.ErrSessionCompleted), errors.Is(err, util.ErrQuestionAnswered),
		errors.Is(err, util.ErrSessionBusy):
		util.Conflict(ctx, err.Error())
	case errors.Is(err, util.ErrInvalidFramePayload):
		util.BadRequest(ctx, err.Error())
	default:
		util.LogInternalError(ctx, err)
	}
}
