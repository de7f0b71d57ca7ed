package service

import (
	"ai_interview_backend/internal/config"
	"ai_interview_backend/internal/model"
	"ai_interview_backend/internal/repository"
	"ai_interview_backend/pkg/database"
	"context"
	"encoding/json"
	"fmt"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
)

type fakeClock struct {
	current time.Time
}

func (c *fakeClock) Now() time.Time { return c.current }

func (c *fakeClock) Advance(d time.Duration) { c.current = c.current.Add(d) }

func newTestDB(t *testing.T) *gorm.DB {
	t.Helper()
	dsn := fmt.Sprintf("file:%d?mode=memory&cache=shared", time.Now().UnixNano())
	db, err := gorm.Open(sqlite.Open(dsn), &gorm.Config{})
	require.NoError(t, err)
	require.NoError(t, database.Migrate(db))
	return db
}

func testProctorConfig() *config.Config {
	return &config.Config{
		Proctor: config.ProctorConfig{
			HighMotionThreshold: 0.20,
			MismatchThreshold:   0.78,
			PeriodicSaveSeconds: 10,
			AnalysisWorkers:     2,
			StateIdleMinutes:    30,
		},
	}
}

func newProctorService(t *testing.T, db *gorm.DB, detector FaceDetector) (*ProctorService, *fakeClock) {
	t.Helper()
	clock := &fakeClock{current: time.Date(2026, 3, 1, 10, 0, 0, 0, time.UTC)}
	svc := NewProctorService(
		testProctorConfig(),
		repository.NewInterviewRepository(db),
		repository.NewProctorRepository(db),
		NewFrameAnalyzer(detector),
		NewProctorStateArena(),
		&StorageService{Provider: &LocalStorageProvider{BasePath: t.TempDir()}},
		nil,
		zap.NewNop(),
	)
	svc.now = clock.Now
	return svc, clock
}

func createTestSession(t *testing.T, db *gorm.DB) *model.InterviewSession {
	t.Helper()
	session := &model.InterviewSession{
		CandidateID:          1,
		ResultID:             1,
		Status:               model.SessionInProgress,
		Phase:                string(PhaseIntro),
		PerQuestionSeconds:   60,
		TotalTimeSeconds:     1200,
		RemainingTimeSeconds: 1200,
		MaxQuestions:         8,
		StartedAt:            time.Now(),
	}
	require.NoError(t, db.Create(session).Error)
	return session
}

func TestHandleFrameBaselineCapture(t *testing.T) {
	db := newTestDB(t)
	svc, _ := newProctorService(t, db, stubDetector{faces: 1})
	session := createTestSession(t, db)

	verdict, err := svc.HandleFrame(context.Background(), session, IntentBaseline, encodeFrame(t, 128), "image/png")
	require.NoError(t, err)

	assert.Equal(t, model.EventBaseline, verdict.EventType)
	assert.False(t, verdict.Suspicious)
	assert.Zero(t, verdict.Score)
	assert.True(t, verdict.Stored)
	assert.NotEmpty(t, session.BaselineSignature)

	var stored model.InterviewSession
	require.NoError(t, db.First(&stored, session.ID).Error)
	assert.NotEmpty(t, stored.BaselineSignature)
	assert.NotNil(t, stored.BaselineCapturedAt)

	var events []model.ProctorEvent
	require.NoError(t, db.Where("session_id = ?", session.ID).Find(&events).Error)
	require.Len(t, events, 1)
	assert.NotEmpty(t, events[0].ImagePath)
}

func TestHandleFrameBaselineNoFace(t *testing.T) {
	db := newTestDB(t)
	svc, _ := newProctorService(t, db, stubDetector{faces: 0})
	session := createTestSession(t, db)

	verdict, err := svc.HandleFrame(context.Background(), session, IntentBaseline, encodeFrame(t, 128), "image/png")
	require.NoError(t, err)

	assert.Equal(t, model.EventBaselineNoFace, verdict.EventType)
	assert.True(t, verdict.Suspicious)
	assert.Equal(t, 1.0, verdict.Score)
	assert.Empty(t, session.BaselineSignature)
}

func TestHandleFrameScanClassification(t *testing.T) {
	tests := []struct {
		name     string
		faces    int
		expected model.ProctorEventType
	}{
		{"无人脸", 0, model.EventNoFace},
		{"多张人脸", 3, model.EventMultiFace},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			db := newTestDB(t)
			svc, _ := newProctorService(t, db, stubDetector{faces: tt.faces})
			session := createTestSession(t, db)

			verdict, err := svc.HandleFrame(context.Background(), session, IntentScan, encodeFrame(t, 128), "image/png")
			require.NoError(t, err)

			assert.Equal(t, tt.expected, verdict.EventType)
			assert.True(t, verdict.Suspicious)
			assert.True(t, verdict.Stored)
			assert.InDelta(t, 1.0, verdict.Score, 1e-9, "首帧运动为 0，分值只含违规项")
		})
	}
}

func TestHandleFrameFaceMismatch(t *testing.T) {
	db := newTestDB(t)
	svc, _ := newProctorService(t, db, stubDetector{faces: 1})
	session := createTestSession(t, db)

	// 基线集中在 0 号亮度桶，和亮帧的签名正交
	baseline := make([]float64, signatureBins)
	baseline[0] = 1
	encoded, err := json.Marshal(baseline)
	require.NoError(t, err)
	session.BaselineSignature = string(encoded)

	verdict, err := svc.HandleFrame(context.Background(), session, IntentScan, encodeFrame(t, 200), "image/png")
	require.NoError(t, err)

	assert.Equal(t, model.EventFaceMismatch, verdict.EventType)
	assert.True(t, verdict.Suspicious)
	require.NotNil(t, verdict.Similarity)
	assert.Less(t, *verdict.Similarity, 0.78)
}

func TestHandleFrameIdentityMatchAndThrottle(t *testing.T) {
	db := newTestDB(t)
	svc, clock := newProctorService(t, db, stubDetector{faces: 1})
	session := createTestSession(t, db)

	// 先采基线，再用同一帧扫描：相似度 1，落为周期留痕
	_, err := svc.HandleFrame(context.Background(), session, IntentBaseline, encodeFrame(t, 128), "image/png")
	require.NoError(t, err)

	first, err := svc.HandleFrame(context.Background(), session, IntentScan, encodeFrame(t, 128), "image/png")
	require.NoError(t, err)
	assert.Equal(t, model.EventPeriodic, first.EventType)
	assert.False(t, first.Suspicious)
	require.NotNil(t, first.Similarity)
	assert.InDelta(t, 1.0, *first.Similarity, 1e-9)
	assert.True(t, first.Stored)

	// 间隔内的周期帧不落库
	clock.Advance(2 * time.Second)
	second, err := svc.HandleFrame(context.Background(), session, IntentScan, encodeFrame(t, 128), "image/png")
	require.NoError(t, err)
	assert.Equal(t, model.EventPeriodic, second.EventType)
	assert.False(t, second.Stored)

	// 超过间隔后恢复留痕
	clock.Advance(11 * time.Second)
	third, err := svc.HandleFrame(context.Background(), session, IntentScan, encodeFrame(t, 128), "image/png")
	require.NoError(t, err)
	assert.True(t, third.Stored)

	var count int64
	require.NoError(t, db.Model(&model.ProctorEvent{}).
		Where("session_id = ? AND event_type = ?", session.ID, model.EventPeriodic).
		Count(&count).Error)
	assert.Equal(t, int64(2), count)
}

func TestHandleFrameHighMotion(t *testing.T) {
	db := newTestDB(t)
	svc, _ := newProctorService(t, db, stubDetector{faces: 1})
	session := createTestSession(t, db)

	// 无基线时不做身份对比，大幅画面变化落为 high_motion
	_, err := svc.HandleFrame(context.Background(), session, IntentScan, encodeFrame(t, 0), "image/png")
	require.NoError(t, err)

	verdict, err := svc.HandleFrame(context.Background(), session, IntentScan, encodeFrame(t, 255), "image/png")
	require.NoError(t, err)

	assert.Equal(t, model.EventHighMotion, verdict.EventType)
	assert.True(t, verdict.Suspicious)
	assert.InDelta(t, 1.7, verdict.Score, 1e-9)
}

func TestHandleFrameCorruptBaselineFailsOpen(t *testing.T) {
	db := newTestDB(t)
	svc, _ := newProctorService(t, db, stubDetector{faces: 1})
	session := createTestSession(t, db)
	session.BaselineSignature = "{not json"

	verdict, err := svc.HandleFrame(context.Background(), session, IntentScan, encodeFrame(t, 128), "image/png")
	require.NoError(t, err)

	// 损坏的基线按无基线处理，不误报换人
	assert.Equal(t, model.EventPeriodic, verdict.EventType)
	assert.Nil(t, verdict.Similarity)

	var events []model.ProctorEvent
	require.NoError(t, db.Where("session_id = ?", session.ID).Find(&events).Error)
	require.Len(t, events, 1)
	assert.Equal(t, true, events[0].Meta["baselineCorrupt"])
}

func TestHandleFrameDegradedDetector(t *testing.T) {
	db := newTestDB(t)
	svc, _ := newProctorService(t, db, NoopFaceDetector{})
	session := createTestSession(t, db)

	verdict, err := svc.HandleFrame(context.Background(), session, IntentScan, []byte("raw"), "image/jpeg")
	require.NoError(t, err)

	assert.Equal(t, model.EventPeriodic, verdict.EventType)
	assert.False(t, verdict.ChecksEnabled)
}

func TestArenaEviction(t *testing.T) {
	db := newTestDB(t)
	svc, _ := newProctorService(t, db, stubDetector{faces: 1})
	session := createTestSession(t, db)

	_, err := svc.HandleFrame(context.Background(), session, IntentScan, encodeFrame(t, 128), "image/png")
	require.NoError(t, err)
	assert.Equal(t, 1, svc.Arena.Size())

	svc.ReleaseSession(session.ID)
	assert.Equal(t, 0, svc.Arena.Size())
}

func TestArenaEvictIdle(t *testing.T) {
	arena := NewProctorStateArena()
	clock := &fakeClock{current: time.Now()}
	arena.now = clock.Now

	arena.get(1)
	arena.get(2)
	clock.Advance(31 * time.Minute)
	arena.get(3)

	removed := arena.EvictIdle(30 * time.Minute)
	assert.Equal(t, 2, removed)
	assert.Equal(t, 1, arena.Size())
}
