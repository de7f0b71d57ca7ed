package util

import "errors"

var (
	ErrUserNotFound        = errors.New("用户不存在")
	ErrEmailRegistered     = errors.New("该邮箱已被注册")
	ErrPermissionDenied    = errors.New("permission denied")
	ErrSessionNotFound     = errors.New("interview session not found")
	ErrSessionCompleted    = errors.New("interview session already completed")
	ErrQuestionNotFound    = errors.New("question not found in session")
	ErrQuestionAnswered    = errors.New("question already answered")
	ErrResultNotFound      = errors.New("interview result not found")
	ErrNoInterviewContext  = errors.New("no interview context found for candidate")
	ErrInvalidFramePayload = errors.New("invalid frame payload")
	ErrSessionBusy         = errors.New("session is processing another submission")
)
