package service

import (
	"ai_interview_backend/internal/config"
	"ai_interview_backend/internal/model"
	"ai_interview_backend/internal/repository"
	"ai_interview_backend/pkg/monitoring"
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"
)

// FrameIntent 帧上报意图：基线采集或常规扫描
type FrameIntent string

const (
	IntentBaseline FrameIntent = "baseline"
	IntentScan     FrameIntent = "scan"
)

// FrameVerdict 单帧处理结论，返回给客户端
type FrameVerdict struct {
	EventType     model.ProctorEventType `json:"EventType"`
	Suspicious    bool                   `json:"Suspicious"`
	Score         float64                `json:"Score"`
	Stored        bool                   `json:"Stored"`
	ImageURL      string                 `json:"ImageUrl,omitempty"`
	FacesCount    int                    `json:"FacesCount"`
	MotionScore   float64                `json:"MotionScore"`
	Similarity    *float64               `json:"Similarity,omitempty"`
	ChecksEnabled bool                   `json:"ChecksEnabled"`
}

// ProctorService 监考完整性引擎：逐帧分析、事件分级与节流落库
type ProctorService struct {
	Config        *config.Config
	InterviewRepo *repository.InterviewRepository
	ProctorRepo   *repository.ProctorRepository
	Analyzer      *FrameAnalyzer
	Arena         *ProctorStateArena
	Storage       *StorageService
	Hub           *ProctorHub
	Logger        *zap.Logger

	// 有界并发：帧分析是 CPU 密集操作，超出配额的请求排队
	workers chan struct{}
	now     func() time.Time
}

func NewProctorService(
	cfg *config.Config,
	interviewRepo *repository.InterviewRepository,
	proctorRepo *repository.ProctorRepository,
	analyzer *FrameAnalyzer,
	arena *ProctorStateArena,
	storage *StorageService,
	hub *ProctorHub,
	log *zap.Logger,
) *ProctorService {
	return &ProctorService{
		Config:        cfg,
		InterviewRepo: interviewRepo,
		ProctorRepo:   proctorRepo,
		Analyzer:      analyzer,
		Arena:         arena,
		Storage:       storage,
		Hub:           hub,
		Logger:        log,
		workers:       make(chan struct{}, cfg.Proctor.AnalysisWorkers),
		now:           time.Now,
	}
}

// HandleFrame 处理候选人上报的一帧画面。同会话的帧串行处理，
// 跨会话受 worker 配额限制。
func (s *ProctorService) HandleFrame(ctx context.Context, session *model.InterviewSession, intent FrameIntent, raw []byte, contentType string) (*FrameVerdict, error) {
	select {
	case s.workers <- struct{}{}:
		defer func() { <-s.workers }()
	case <-ctx.Done():
		return nil, ctx.Err()
	}

	state := s.Arena.get(session.ID)
	state.mu.Lock()
	defer state.mu.Unlock()

	start := s.now()
	analysis, err := s.Analyzer.Analyze(raw, state.lastFrame)
	monitoring.FrameAnalysisDuration.Observe(s.now().Sub(start).Seconds())
	if err != nil {
		return nil, err
	}

	state.lastSeen = s.now()
	if analysis.SmallFrame != nil {
		state.lastFrame = analysis.SmallFrame
	}

	if intent == IntentBaseline {
		return s.handleBaseline(ctx, session, analysis, raw, contentType)
	}
	return s.handleScan(ctx, session, state, analysis, raw, contentType)
}

func (s *ProctorService) handleBaseline(ctx context.Context, session *model.InterviewSession, analysis *FrameAnalysis, raw []byte, contentType string) (*FrameVerdict, error) {
	meta := map[string]any{"facesCount": analysis.FacesCount}
	if !analysis.ChecksEnabled {
		meta["checksEnabled"] = false
	}

	var eventType model.ProctorEventType
	var score float64
	switch {
	case analysis.FacesCount == 0:
		eventType, score = model.EventBaselineNoFace, 1.0
	case analysis.FacesCount > 1:
		eventType, score = model.EventBaselineMultiFace, 1.0
	default:
		eventType, score = model.EventBaseline, 0.0
	}

	// 单脸基线写入会话，后续扫描帧据此做身份连续性对比
	if eventType == model.EventBaseline && len(analysis.FaceSignature) > 0 {
		encoded, err := json.Marshal(analysis.FaceSignature)
		if err == nil {
			now := s.now()
			if err := s.InterviewRepo.UpdateSessionFields(session.ID, map[string]any{
				"baseline_signature":   string(encoded),
				"baseline_captured_at": now,
			}); err != nil {
				return nil, err
			}
			session.BaselineSignature = string(encoded)
			session.BaselineCapturedAt = &now
		}
	}

	event, imageURL := s.persistEvent(ctx, session.ID, eventType, score, meta, raw, contentType, true)
	if event != nil && eventType.Suspicious() {
		s.publishLive(session.ID, event, imageURL)
	}

	return &FrameVerdict{
		EventType:     eventType,
		Suspicious:    eventType.Suspicious(),
		Score:         score,
		Stored:        event != nil,
		ImageURL:      imageURL,
		FacesCount:    analysis.FacesCount,
		MotionScore:   analysis.MotionScore,
		ChecksEnabled: analysis.ChecksEnabled,
	}, nil
}

func (s *ProctorService) handleScan(ctx context.Context, session *model.InterviewSession, state *sessionProctorState, analysis *FrameAnalysis, raw []byte, contentType string) (*FrameVerdict, error) {
	meta := map[string]any{
		"facesCount":  analysis.FacesCount,
		"motionScore": analysis.MotionScore,
	}
	if !analysis.ChecksEnabled {
		meta["checksEnabled"] = false
	}

	baseline := s.baselineSignature(session, meta)

	var similarity *float64
	eventType := model.EventPeriodic
	switch {
	case !analysis.ChecksEnabled:
		// 检测能力降级，只保留周期留痕
	case analysis.FacesCount == 0:
		eventType = model.EventNoFace
	case analysis.FacesCount > 1:
		eventType = model.EventMultiFace
	default:
		if sim, ok := CompareSignatures(baseline, analysis.FaceSignature); ok {
			similarity = &sim
			meta["similarity"] = sim
			if sim < s.Config.Proctor.MismatchThreshold {
				eventType = model.EventFaceMismatch
			}
		}
		if eventType == model.EventPeriodic && analysis.MotionScore > s.Config.Proctor.HighMotionThreshold {
			eventType = model.EventHighMotion
		}
	}

	score := analysis.MotionScore
	switch eventType {
	case model.EventNoFace, model.EventMultiFace, model.EventFaceMismatch:
		score += 1.0
	case model.EventHighMotion:
		score += 0.7
	}

	// 可疑事件立即留痕；周期事件按间隔节流
	shouldStore := eventType.Suspicious()
	if !shouldStore && eventType == model.EventPeriodic {
		interval := time.Duration(s.Config.Proctor.PeriodicSaveSeconds) * time.Second
		if state.lastPeriodicSave.IsZero() || s.now().Sub(state.lastPeriodicSave) >= interval {
			shouldStore = true
		}
	}

	event, imageURL := s.persistEvent(ctx, session.ID, eventType, score, meta, raw, contentType, shouldStore)
	if event != nil && eventType == model.EventPeriodic {
		state.lastPeriodicSave = s.now()
	}
	if event != nil && eventType.Suspicious() {
		s.publishLive(session.ID, event, imageURL)
	}

	return &FrameVerdict{
		EventType:     eventType,
		Suspicious:    eventType.Suspicious(),
		Score:         score,
		Stored:        event != nil,
		ImageURL:      imageURL,
		FacesCount:    analysis.FacesCount,
		MotionScore:   analysis.MotionScore,
		Similarity:    similarity,
		ChecksEnabled: analysis.ChecksEnabled,
	}, nil
}

// baselineSignature 解析会话存储的基线签名。解码失败按无基线处理，
// 不中断面试，只在事件 meta 里标记。
func (s *ProctorService) baselineSignature(session *model.InterviewSession, meta map[string]any) []float64 {
	if session.BaselineSignature == "" {
		return nil
	}
	var signature []float64
	if err := json.Unmarshal([]byte(session.BaselineSignature), &signature); err != nil {
		s.Logger.Warn("基线签名损坏，按无基线处理",
			zap.Uint("sessionId", session.ID), zap.Error(err))
		meta["baselineCorrupt"] = true
		return nil
	}
	return signature
}

// persistEvent 落库一条事件并按需上传快照；stored=false 时只记指标
func (s *ProctorService) persistEvent(ctx context.Context, sessionID uint, eventType model.ProctorEventType, score float64, meta map[string]any, raw []byte, contentType string, store bool) (*model.ProctorEvent, string) {
	if !store {
		monitoring.ProctorEventCounter.WithLabelValues(string(eventType), "false").Inc()
		return nil, ""
	}

	var imagePath, imageURL string
	if len(raw) > 0 {
		ext := ".jpg"
		if contentType == "image/png" {
			ext = ".png"
		}
		imagePath = fmt.Sprintf("proctor/%d/%s%s", sessionID, uuid.New().String(), ext)
		url, err := s.Storage.Upload(ctx, imagePath, bytes.NewReader(raw), int64(len(raw)), contentType)
		if err != nil {
			// 快照上传失败不阻断事件记录
			s.Logger.Warn("快照上传失败", zap.Uint("sessionId", sessionID), zap.Error(err))
			imagePath = ""
		} else {
			imageURL = url
		}
	}

	event := &model.ProctorEvent{
		SessionID: sessionID,
		EventType: eventType,
		Score:     score,
		Meta:      meta,
		ImagePath: imagePath,
	}
	if err := s.ProctorRepo.CreateEvent(event); err != nil {
		s.Logger.Error("监考事件写入失败", zap.Uint("sessionId", sessionID), zap.Error(err))
		return nil, ""
	}
	monitoring.ProctorEventCounter.WithLabelValues(string(eventType), "true").Inc()
	return event, imageURL
}

func (s *ProctorService) publishLive(sessionID uint, event *model.ProctorEvent, imageURL string) {
	if s.Hub == nil {
		return
	}
	s.Hub.Publish(LiveEvent{
		SessionID: sessionID,
		EventType: string(event.EventType),
		Score:     event.Score,
		ImageURL:  imageURL,
		Meta:      event.Meta,
		At:        event.CreatedAt,
	})
}

// Timeline 返回会话的全部监考事件，带快照访问地址
func (s *ProctorService) Timeline(sessionID uint) ([]model.ProctorEvent, error) {
	events, err := s.ProctorRepo.ListEvents(sessionID)
	if err != nil {
		return nil, err
	}
	for i := range events {
		if events[i].ImagePath != "" {
			events[i].ImagePath = s.Storage.GetURL(events[i].ImagePath)
		}
	}
	return events, nil
}

func (s *ProctorService) SuspiciousCount(sessionID uint) (int64, error) {
	return s.ProctorRepo.CountSuspicious(sessionID)
}

// ReleaseSession 会话结束时清理内存状态
func (s *ProctorService) ReleaseSession(sessionID uint) {
	s.Arena.Evict(sessionID)
}
