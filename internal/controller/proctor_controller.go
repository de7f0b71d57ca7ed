package controller

import (
	"ai_interview_backend/internal/service"
	"ai_interview_backend/internal/util"
	"io"
	"strconv"

	"github.com/gin-gonic/gin"
)

// maxFrameBytes 单帧最大 2MB，超出直接拒绝
const maxFrameBytes = 2 << 20

type ProctorController struct {
	ProctorService   *service.ProctorService
	InterviewService *service.InterviewService
}

func NewProctorController(proctorService *service.ProctorService, interviewService *service.InterviewService) *ProctorController {
	return &ProctorController{
		ProctorService:   proctorService,
		InterviewService: interviewService,
	}
}

// UploadFrame godoc
// @Summary 上报监控帧
// @Description 候选人客户端周期性上报摄像头帧；intent=baseline 采集基线，intent=scan 常规扫描
// @Tags 监考
// @Accept  multipart/form-data
// @Produce  json
// @Security BearerAuth
// @Param   id path int true "会话ID"
// @Param   frame formData file true "JPEG/PNG 帧"
// @Param   intent formData string false "baseline 或 scan，默认 scan"
// @Success 200 {object} util.Response{data=service.FrameVerdict}
// @Failure 400 {object} util.Response "帧无法解码"
// @Failure 403 {object} util.Response
// @Failure 409 {object} util.Response "会话已结束"
// @Router /api/interview/sessions/{id}/frames [post]
func (c *ProctorController) UploadFrame(ctx *gin.Context) {
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

	snapshot, err := c.InterviewService.GetSession(uint(sessionID), claims.UserID, false)
	if err != nil {
		writeInterviewError(ctx, err)
		return
	}
	if snapshot.Session.Completed() {
		util.Conflict(ctx, util.ErrSessionCompleted.Error())
		return
	}

	fileHeader, err := ctx.FormFile("frame")
	if err != nil {
		util.BadRequest(ctx, "缺少帧数据")
		return
	}
	if fileHeader.Size > maxFrameBytes {
		util.BadRequest(ctx, "帧超过大小限制")
		return
	}

	file, err := fileHeader.Open()
	if err != nil {
		util.LogInternalError(ctx, err)
		return
	}
	defer file.Close()

	raw, err := io.ReadAll(io.LimitReader(file, maxFrameBytes))
	if err != nil {
		util.LogInternalError(ctx, err)
		return
	}

	intent := service.IntentScan
	if ctx.PostForm("intent") == string(service.IntentBaseline) {
		intent = service.IntentBaseline
	}

	contentType := fileHeader.Header.Get("Content-Type")
	if contentType == "" {
		contentType = "image/jpeg"
	}

	verdict, err := c.ProctorService.HandleFrame(ctx.Request.Context(), snapshot.Session, intent, raw, contentType)
	if err != nil {
		writeInterviewError(ctx, err)
		return
	}

	util.Success(ctx, verdict)
}
