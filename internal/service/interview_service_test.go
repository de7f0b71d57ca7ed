package service

import (
	"ai_interview_backend/internal/config"
	"ai_interview_backend/internal/model"
	"ai_interview_backend/internal/repository"
	"ai_interview_backend/internal/util"
	"context"
	"errors"
	"fmt"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/go-redis/redis/v8"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

type stubGenerator struct {
	text  string
	err   error
	calls int
}

func (g *stubGenerator) Generate(ctx context.Context, input GenerateInput) (string, error) {
	g.calls++
	return g.text, g.err
}

func testInterviewConfig() *config.Config {
	return &config.Config{
		Interview: config.InterviewConfig{
			PerQuestionSeconds: 60,
			TotalTimeSeconds:   1200,
			MaxQuestions:       3,
			GeneratorRetries:   2,
		},
		Proctor: config.ProctorConfig{
			AnalysisWorkers:  2,
			StateIdleMinutes: 30,
		},
	}
}

func newInterviewService(t *testing.T, db *gorm.DB, cfg *config.Config, generator QuestionGenerator, rdb *redis.Client) *InterviewService {
	t.Helper()
	return NewInterviewService(
		cfg,
		repository.NewUserRepository(db),
		repository.NewJobRepository(db),
		repository.NewResultRepository(db),
		repository.NewInterviewRepository(db),
		generator,
		NewProctorStateArena(),
		rdb,
		zap.NewNop(),
	)
}

func seedCandidate(t *testing.T, db *gorm.DB, pool []model.PoolQuestion) (*model.User, *model.MatchResult) {
	t.Helper()

	user := &model.User{
		Name:       "候选人",
		Email:      fmt.Sprintf("candidate-%d@test.local", time.Now().UnixNano()),
		Password:   "hashed",
		Role:       model.Candidate,
		ResumeText: "Project: payments gateway\nExperience: Acme Corp backend team",
	}
	require.NoError(t, db.Create(user).Error)

	job := &model.Job{CompanyID: 1, Title: "Backend Engineer", Description: "Go services at scale"}
	require.NoError(t, db.Create(job).Error)

	result := &model.MatchResult{
		CandidateID:        user.ID,
		JobID:              job.ID,
		ApplicationID:      fmt.Sprintf("app-%d", time.Now().UnixNano()),
		Score:              0.9,
		Shortlisted:        true,
		InterviewQuestions: pool,
	}
	require.NoError(t, db.Create(result).Error)

	return user, result
}

func TestStartSessionCreatesIntroQuestion(t *testing.T) {
	db := newTestDB(t)
	svc := newInterviewService(t, db, testInterviewConfig(), nil, nil)
	user, _ := seedCandidate(t, db, nil)

	snapshot, err := svc.StartSession(context.Background(), user.ID)
	require.NoError(t, err)

	require.Len(t, snapshot.Questions, 1)
	assert.Equal(t, IntroPrompt, snapshot.Questions[0].Text)
	assert.Equal(t, 50, snapshot.Questions[0].AllottedSeconds, "开场白无上一回答，时长在基础值上减短回答修正")
	assert.Equal(t, string(PhaseResume), snapshot.Session.Phase)
	assert.Equal(t, 1, snapshot.Session.QuestionCount)
	assert.Equal(t, ModeDeep, snapshot.Mode)

	// 简历条目被抽取进会话状态
	assert.Len(t, snapshot.Session.Projects, 1)
	assert.Len(t, snapshot.Session.Experiences, 1)
}

func TestStartSessionResumesActiveSession(t *testing.T) {
	db := newTestDB(t)
	svc := newInterviewService(t, db, testInterviewConfig(), nil, nil)
	user, _ := seedCandidate(t, db, nil)

	first, err := svc.StartSession(context.Background(), user.ID)
	require.NoError(t, err)

	second, err := svc.StartSession(context.Background(), user.ID)
	require.NoError(t, err)

	assert.Equal(t, first.Session.ID, second.Session.ID)
	assert.Len(t, second.Questions, 1, "恢复会话不重复出题")
}

func TestStartSessionWithoutContext(t *testing.T) {
	db := newTestDB(t)
	svc := newInterviewService(t, db, testInterviewConfig(), nil, nil)

	user := &model.User{Name: "无结果", Email: fmt.Sprintf("u-%d@test.local", time.Now().UnixNano()), Password: "x", Role: model.Candidate}
	require.NoError(t, db.Create(user).Error)

	_, err := svc.StartSession(context.Background(), user.ID)
	assert.ErrorIs(t, err, util.ErrNoInterviewContext)
}

func TestSubmitAnswerConsumesPool(t *testing.T) {
	db := newTestDB(t)
	svc := newInterviewService(t, db, testInterviewConfig(), nil, nil)
	pool := []model.PoolQuestion{
		{Text: "Explain Go channels.", Difficulty: "easy", Topic: "go"},
		{Text: "Design a URL shortener.", Difficulty: "hard", Topic: "system"},
	}
	user, _ := seedCandidate(t, db, pool)

	snapshot, err := svc.StartSession(context.Background(), user.ID)
	require.NoError(t, err)
	intro := snapshot.Questions[0]

	result, err := svc.SubmitAnswer(context.Background(), user.ID, snapshot.Session.ID, intro.ID,
		"I am a backend engineer with five years of Go experience.", false, 30)
	require.NoError(t, err)

	assert.False(t, result.Completed)
	require.NotNil(t, result.NextQuestion)
	assert.Equal(t, "Explain Go channels.", result.NextQuestion.Text, "题库未耗尽时优先消费题库")
	assert.Equal(t, snapshot.Session.TotalTimeSeconds-30, result.RemainingTimeSeconds)
}

func TestSubmitAnswerRejectsSecondAttempt(t *testing.T) {
	db := newTestDB(t)
	svc := newInterviewService(t, db, testInterviewConfig(), nil, nil)
	user, _ := seedCandidate(t, db, nil)

	snapshot, err := svc.StartSession(context.Background(), user.ID)
	require.NoError(t, err)
	intro := snapshot.Questions[0]

	_, err = svc.SubmitAnswer(context.Background(), user.ID, snapshot.Session.ID, intro.ID, "a solid first answer here", false, 10)
	require.NoError(t, err)

	_, err = svc.SubmitAnswer(context.Background(), user.ID, snapshot.Session.ID, intro.ID, "trying again", false, 5)
	assert.ErrorIs(t, err, util.ErrQuestionAnswered)
}

func TestSubmitAnswerForeignSession(t *testing.T) {
	db := newTestDB(t)
	svc := newInterviewService(t, db, testInterviewConfig(), nil, nil)
	user, _ := seedCandidate(t, db, nil)

	snapshot, err := svc.StartSession(context.Background(), user.ID)
	require.NoError(t, err)

	_, err = svc.SubmitAnswer(context.Background(), user.ID+100, snapshot.Session.ID, snapshot.Questions[0].ID, "answer", false, 5)
	assert.ErrorIs(t, err, util.ErrPermissionDenied)
}

func TestSessionCompletesAtMaxQuestions(t *testing.T) {
	db := newTestDB(t)
	cfg := testInterviewConfig() // MaxQuestions = 3
	svc := newInterviewService(t, db, cfg, nil, nil)
	user, _ := seedCandidate(t, db, []model.PoolQuestion{
		{Text: "Pool question one?"},
		{Text: "Pool question two?"},
		{Text: "Pool question three?"},
	})

	snapshot, err := svc.StartSession(context.Background(), user.ID)
	require.NoError(t, err)

	current := &snapshot.Questions[0]
	var last *SubmitResult
	for i := 0; i < 3; i++ {
		last, err = svc.SubmitAnswer(context.Background(), user.ID, snapshot.Session.ID, current.ID,
			"a reasonably detailed answer about software engineering", false, 20)
		require.NoError(t, err)
		if last.NextQuestion != nil {
			current = last.NextQuestion
		}
	}

	require.NotNil(t, last)
	assert.True(t, last.Completed)
	assert.Equal(t, ClosingMessage, last.ClosingMessage)

	var stored model.InterviewSession
	require.NoError(t, db.First(&stored, snapshot.Session.ID).Error)
	assert.Equal(t, model.SessionCompleted, stored.Status)
	assert.NotNil(t, stored.EndedAt)

	// 会话结束后拒绝继续作答
	_, err = svc.SubmitAnswer(context.Background(), user.ID, snapshot.Session.ID, current.ID, "late answer", false, 5)
	assert.Error(t, err)
}

func TestSessionCompletesWhenTimeExhausted(t *testing.T) {
	db := newTestDB(t)
	cfg := testInterviewConfig()
	cfg.Interview.TotalTimeSeconds = 50
	svc := newInterviewService(t, db, cfg, nil, nil)
	user, _ := seedCandidate(t, db, nil)

	snapshot, err := svc.StartSession(context.Background(), user.ID)
	require.NoError(t, err)
	intro := snapshot.Questions[0]

	// 上报用时超过配额会按配额收口，预算因此耗尽
	result, err := svc.SubmitAnswer(context.Background(), user.ID, snapshot.Session.ID, intro.ID,
		"spent the whole allotment thinking out loud about the design", false, 9999)
	require.NoError(t, err)

	assert.True(t, result.Completed)
	assert.Zero(t, result.RemainingTimeSeconds)
	assert.Equal(t, ModeLightning, result.Mode)
}

func TestSubmitAnswerGeneratorAndFallback(t *testing.T) {
	db := newTestDB(t)
	gen := &stubGenerator{text: "Tell me how you profile Go memory usage."}
	svc := newInterviewService(t, db, testInterviewConfig(), gen, nil)
	user, _ := seedCandidate(t, db, nil)

	snapshot, err := svc.StartSession(context.Background(), user.ID)
	require.NoError(t, err)

	result, err := svc.SubmitAnswer(context.Background(), user.ID, snapshot.Session.ID, snapshot.Questions[0].ID,
		"I have been writing Go services for several years now.", false, 20)
	require.NoError(t, err)
	require.NotNil(t, result.NextQuestion)
	assert.Equal(t, gen.text, result.NextQuestion.Text, "题库为空时走生成器")
	assert.Equal(t, 1, gen.calls)

	// 生成器复读已问题目时换本地模板兜底
	gen.text = IntroPrompt
	result, err = svc.SubmitAnswer(context.Background(), user.ID, snapshot.Session.ID, result.NextQuestion.ID,
		"pprof heap profiles plus continuous profiling in production", false, 20)
	require.NoError(t, err)
	require.NotNil(t, result.NextQuestion)
	assert.NotEqual(t, IntroPrompt, result.NextQuestion.Text)
	assert.NotEmpty(t, result.NextQuestion.Text)
}

func TestGeneratorFailureFallsBackToTemplates(t *testing.T) {
	db := newTestDB(t)
	gen := &stubGenerator{err: errors.New("upstream timeout")}
	svc := newInterviewService(t, db, testInterviewConfig(), gen, nil)
	user, _ := seedCandidate(t, db, nil)

	snapshot, err := svc.StartSession(context.Background(), user.ID)
	require.NoError(t, err)

	result, err := svc.SubmitAnswer(context.Background(), user.ID, snapshot.Session.ID, snapshot.Questions[0].ID,
		"a long enough answer talking about distributed systems design", false, 20)
	require.NoError(t, err)

	require.NotNil(t, result.NextQuestion)
	assert.NotEmpty(t, result.NextQuestion.Text)
	assert.Equal(t, 2, gen.calls, "按配置重试后才放弃")
}

func TestSubmitAnswerSessionLock(t *testing.T) {
	db := newTestDB(t)
	mr := miniredis.RunT(t)
	rdb := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	svc := newInterviewService(t, db, testInterviewConfig(), nil, rdb)
	user, _ := seedCandidate(t, db, nil)

	snapshot, err := svc.StartSession(context.Background(), user.ID)
	require.NoError(t, err)

	// 锁被占用时提交立即失败
	lockKey := fmt.Sprintf("interview:session:lock:%d", snapshot.Session.ID)
	require.NoError(t, rdb.Set(context.Background(), lockKey, "1", time.Minute).Err())

	_, err = svc.SubmitAnswer(context.Background(), user.ID, snapshot.Session.ID, snapshot.Questions[0].ID, "answer text long enough", false, 5)
	assert.ErrorIs(t, err, util.ErrSessionBusy)

	// 释放后恢复正常
	require.NoError(t, rdb.Del(context.Background(), lockKey).Err())
	_, err = svc.SubmitAnswer(context.Background(), user.ID, snapshot.Session.ID, snapshot.Questions[0].ID, "answer text long enough", false, 5)
	assert.NoError(t, err)
}

func TestCompleteStaleSessions(t *testing.T) {
	db := newTestDB(t)
	svc := newInterviewService(t, db, testInterviewConfig(), nil, nil)
	user, _ := seedCandidate(t, db, nil)

	snapshot, err := svc.StartSession(context.Background(), user.ID)
	require.NoError(t, err)

	// 把开始时间拨回到总预算之外
	stale := time.Now().Add(-time.Duration(snapshot.Session.TotalTimeSeconds)*time.Second - 5*time.Minute)
	require.NoError(t, db.Model(&model.InterviewSession{}).
		Where("id = ?", snapshot.Session.ID).
		Update("started_at", stale).Error)

	closed := svc.CompleteStaleSessions(2 * time.Minute)
	assert.Equal(t, 1, closed)

	var stored model.InterviewSession
	require.NoError(t, db.First(&stored, snapshot.Session.ID).Error)
	assert.Equal(t, model.SessionCompleted, stored.Status)
}

func TestMigrateFillsUserTimestamps(t *testing.T) {
	db := newTestDB(t)
	repo := repository.NewUserRepository(db)

	user := &model.User{
		Name:     "新注册",
		Email:    fmt.Sprintf("fresh-%d@test.local", time.Now().UnixNano()),
		Password: "hashed",
		Role:     model.Candidate,
	}
	require.NoError(t, repo.Create(user))

	found, err := repo.FindByID(user.ID)
	require.NoError(t, err)
	assert.False(t, found.LastLogin.IsZero(), "新用户的最近登录时间由建表默认值填充")
	assert.False(t, found.LastSeen.IsZero())
}

func TestSubmitAnswerSkippedFlagDiscardsText(t *testing.T) {
	db := newTestDB(t)
	svc := newInterviewService(t, db, testInterviewConfig(), nil, nil)
	pool := []model.PoolQuestion{{Text: "Explain Go channels.", Difficulty: "easy", Topic: "go"}}
	user, _ := seedCandidate(t, db, pool)

	snapshot, err := svc.StartSession(context.Background(), user.ID)
	require.NoError(t, err)

	// 主动跳题时即使带了文本也不入库
	_, err = svc.SubmitAnswer(context.Background(), user.ID, snapshot.Session.ID, snapshot.Questions[0].ID,
		"typed something but changed my mind", true, 12)
	require.NoError(t, err)

	question, err := repository.NewInterviewRepository(db).FindQuestionByID(snapshot.Questions[0].ID)
	require.NoError(t, err)
	assert.True(t, question.Skipped)
	assert.Nil(t, question.AnswerText)
	assert.Nil(t, question.RelevanceScore)
}

// hookGenerator 在出题时机执行注入的回调，用来模拟答题进行中发生的并发写入
type hookGenerator struct {
	text string
	hook func()
}

func (g *hookGenerator) Generate(ctx context.Context, input GenerateInput) (string, error) {
	if g.hook != nil {
		g.hook()
	}
	return g.text, nil
}

func TestBaselineSurvivesAnswerProgressWrite(t *testing.T) {
	db := newTestDB(t)
	repo := repository.NewInterviewRepository(db)
	gen := &hookGenerator{text: "Walk me through your deployment pipeline."}
	svc := newInterviewService(t, db, testInterviewConfig(), gen, nil)
	user, _ := seedCandidate(t, db, nil)

	snapshot, err := svc.StartSession(context.Background(), user.ID)
	require.NoError(t, err)
	sessionID := snapshot.Session.ID

	// 答题处理中途（会话已被读入内存后）监考侧采集基线
	captured := time.Now()
	gen.hook = func() {
		require.NoError(t, repo.UpdateSessionFields(sessionID, map[string]any{
			"baseline_signature":   `[0.7,0.7,0.14]`,
			"baseline_captured_at": captured,
		}))
	}

	_, err = svc.SubmitAnswer(context.Background(), user.ID, sessionID, snapshot.Questions[0].ID,
		"I am a backend engineer focused on payment systems.", false, 10)
	require.NoError(t, err)

	session, err := repo.FindSessionByID(sessionID)
	require.NoError(t, err)
	assert.Equal(t, `[0.7,0.7,0.14]`, session.BaselineSignature, "答题进度落库不能冲掉中途写入的基线")
	require.NotNil(t, session.BaselineCapturedAt)
	assert.Equal(t, 2, session.QuestionCount, "进度字段本身照常更新")
}
