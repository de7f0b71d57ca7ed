package service

import (
	"ai_interview_backend/internal/config"
	"ai_interview_backend/internal/model"
	"ai_interview_backend/internal/repository"
	"ai_interview_backend/internal/util"
	"ai_interview_backend/pkg/monitoring"
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/go-redis/redis/v8"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

// sessionLockTTL 提交锁的过期时间，防止持有方崩溃后死锁
const sessionLockTTL = 10 * time.Second

// SessionSnapshot 会话当前视图：状态、全部题目与节奏
type SessionSnapshot struct {
	Session   *model.InterviewSession   `json:"Session"`
	Questions []model.InterviewQuestion `json:"Questions"`
	Mode      TimePressureMode          `json:"Mode"`
	Closing   string                    `json:"Closing,omitempty"`
}

// SubmitResult 一次作答的结果：收尾或下一题
type SubmitResult struct {
	Completed            bool                     `json:"Completed"`
	ClosingMessage       string                   `json:"ClosingMessage,omitempty"`
	NextQuestion         *model.InterviewQuestion `json:"NextQuestion,omitempty"`
	RemainingTimeSeconds int                      `json:"RemainingTimeSeconds"`
	Mode                 TimePressureMode         `json:"Mode"`
}

// InterviewService 面试会话引擎：会话生命周期、阶段推进与出题编排。
// 阶段机本身是纯函数，这里负责加锁、持久化和题目来源的逐级兜底。
type InterviewService struct {
	Config        *config.Config
	UserRepo      *repository.UserRepository
	JobRepo       *repository.JobRepository
	ResultRepo    *repository.ResultRepository
	InterviewRepo *repository.InterviewRepository
	Generator     QuestionGenerator
	Arena         *ProctorStateArena
	Redis         *redis.Client
	Logger        *zap.Logger

	localLocks sync.Map // sessionID -> *sync.Mutex，Redis 不可用时的进程内兜底
	now        func() time.Time
}

func NewInterviewService(
	cfg *config.Config,
	userRepo *repository.UserRepository,
	jobRepo *repository.JobRepository,
	resultRepo *repository.ResultRepository,
	interviewRepo *repository.InterviewRepository,
	generator QuestionGenerator,
	arena *ProctorStateArena,
	rdb *redis.Client,
	log *zap.Logger,
) *InterviewService {
	return &InterviewService{
		Config:        cfg,
		UserRepo:      userRepo,
		JobRepo:       jobRepo,
		ResultRepo:    resultRepo,
		InterviewRepo: interviewRepo,
		Generator:     generator,
		Arena:         arena,
		Redis:         rdb,
		Logger:        log,
		now:           time.Now,
	}
}

// lockSession 同一会话的写操作串行化。优先 Redis SETNX 覆盖多实例，
// Redis 异常时退化为进程内互斥。
func (s *InterviewService) lockSession(ctx context.Context, sessionID uint) (func(), error) {
	if s.Redis != nil {
		key := fmt.Sprintf("interview:session:lock:%d", sessionID)
		ok, err := s.Redis.SetNX(ctx, key, "1", sessionLockTTL).Result()
		if err == nil {
			if !ok {
				return nil, util.ErrSessionBusy
			}
			return func() { s.Redis.Del(context.Background(), key) }, nil
		}
		s.Logger.Warn("Redis 会话锁不可用，退化为进程内锁", zap.Error(err))
	}

	value, _ := s.localLocks.LoadOrStore(sessionID, &sync.Mutex{})
	mu := value.(*sync.Mutex)
	if !mu.TryLock() {
		return nil, util.ErrSessionBusy
	}
	return mu.Unlock, nil
}

// StartSession 开始或恢复候选人的面试。上下文取最近一条匹配结果
// （优先已入围的），已有进行中的会话则原样返回，不重复开场。
func (s *InterviewService) StartSession(ctx context.Context, candidateID uint) (*SessionSnapshot, error) {
	user, err := s.UserRepo.FindByID(candidateID)
	if err != nil {
		return nil, util.ErrUserNotFound
	}

	result, err := s.ResultRepo.FindLatestForCandidate(candidateID)
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, util.ErrNoInterviewContext
		}
		return nil, err
	}

	if existing, err := s.InterviewRepo.FindActiveSession(candidateID, result.ID); err == nil {
		return s.resumeSession(ctx, existing, result, user)
	}

	projects, experiences := ExtractResumeTopics(user.ResumeText)
	session := &model.InterviewSession{
		CandidateID:          candidateID,
		ResultID:             result.ID,
		Status:               model.SessionInProgress,
		Phase:                string(PhaseIntro),
		Experiences:          experiences,
		Projects:             projects,
		CoveredProjects:      []string{},
		PerQuestionSeconds:   s.Config.Interview.PerQuestionSeconds,
		TotalTimeSeconds:     s.Config.Interview.TotalTimeSeconds,
		RemainingTimeSeconds: s.Config.Interview.TotalTimeSeconds,
		MaxQuestions:         s.Config.Interview.MaxQuestions,
		StartedAt:            s.now(),
	}
	if err := s.InterviewRepo.CreateSession(session); err != nil {
		return nil, err
	}

	question, err := s.createNextQuestion(ctx, session, result, user, "", nil)
	if err != nil {
		return nil, err
	}

	s.Logger.Info("面试会话已创建",
		zap.Uint("sessionId", session.ID),
		zap.Uint("candidateId", candidateID),
		zap.Int("poolSize", len(result.InterviewQuestions)))

	return &SessionSnapshot{
		Session:   session,
		Questions: []model.InterviewQuestion{*question},
		Mode:      ModeForRemainingMinutes(session.RemainingTimeSeconds / 60),
	}, nil
}

func (s *InterviewService) resumeSession(ctx context.Context, session *model.InterviewSession, result *model.MatchResult, user *model.User) (*SessionSnapshot, error) {
	questions, err := s.InterviewRepo.ListQuestions(session.ID)
	if err != nil {
		return nil, err
	}

	// 正常情况下总有一道待答题；没有则补一道
	hasOpen := false
	for i := range questions {
		if !questions[i].Answered() {
			hasOpen = true
			break
		}
	}
	if !hasOpen {
		lastAnswer := ""
		if n := len(questions); n > 0 && questions[n-1].AnswerText != nil {
			lastAnswer = *questions[n-1].AnswerText
		}
		question, err := s.createNextQuestion(ctx, session, result, user, lastAnswer, questions)
		if err != nil {
			return nil, err
		}
		questions = append(questions, *question)
	}

	return &SessionSnapshot{
		Session:   session,
		Questions: questions,
		Mode:      ModeForRemainingMinutes(session.RemainingTimeSeconds / 60),
	}, nil
}

// GetSession 返回会话视图。候选人只能看自己的会话，HR 不受限。
func (s *InterviewService) GetSession(sessionID, requesterID uint, privileged bool) (*SessionSnapshot, error) {
	session, err := s.InterviewRepo.FindSessionByID(sessionID)
	if err != nil {
		return nil, util.ErrSessionNotFound
	}
	if !privileged && session.CandidateID != requesterID {
		return nil, util.ErrPermissionDenied
	}

	questions, err := s.InterviewRepo.ListQuestions(sessionID)
	if err != nil {
		return nil, err
	}

	snapshot := &SessionSnapshot{
		Session:   session,
		Questions: questions,
		Mode:      ModeForRemainingMinutes(session.RemainingTimeSeconds / 60),
	}
	if session.Completed() {
		snapshot.Closing = ClosingMessage
	}
	return snapshot, nil
}

// SubmitAnswer 提交一道题的回答。每题只允许作答一次；时间记账、
// 阶段推进和出题都在会话锁内完成。
func (s *InterviewService) SubmitAnswer(ctx context.Context, candidateID, sessionID, questionID uint, answerText string, skipped bool, timeTakenSeconds int) (*SubmitResult, error) {
	release, err := s.lockSession(ctx, sessionID)
	if err != nil {
		return nil, err
	}
	defer release()

	session, err := s.InterviewRepo.FindSessionByID(sessionID)
	if err != nil {
		return nil, util.ErrSessionNotFound
	}
	if session.CandidateID != candidateID {
		return nil, util.ErrPermissionDenied
	}
	if session.Completed() {
		return nil, util.ErrSessionCompleted
	}

	question, err := s.InterviewRepo.FindQuestionByID(questionID)
	if err != nil || question.SessionID != sessionID {
		return nil, util.ErrQuestionNotFound
	}
	if question.Answered() {
		return nil, util.ErrQuestionAnswered
	}

	// 用时按题目配额收口，客户端报多少不直接采信
	if timeTakenSeconds < 0 {
		timeTakenSeconds = 0
	}
	if timeTakenSeconds > question.AllottedSeconds {
		timeTakenSeconds = question.AllottedSeconds
	}

	// 主动跳题时丢弃附带的文本，空文本也按跳过处理
	if skipped {
		answerText = ""
	}
	skipped = skipped || strings.TrimSpace(answerText) == ""
	if !skipped {
		summary, score := SummarizeAndScore(question.Text, answerText)
		question.AnswerSummary = summary
		question.RelevanceScore = &score
		question.AnswerText = &answerText
	}
	question.Skipped = skipped
	question.TimeTakenSeconds = &timeTakenSeconds
	if err := s.InterviewRepo.UpdateQuestion(question); err != nil {
		return nil, err
	}

	answer := &model.InterviewAnswer{
		SessionID:        sessionID,
		QuestionID:       questionID,
		EndedAt:          s.now(),
		Skipped:          skipped,
		TimeTakenSeconds: timeTakenSeconds,
	}
	if !skipped {
		answer.AnswerText = &answerText
	}
	if err := s.InterviewRepo.CreateAnswer(answer); err != nil {
		return nil, err
	}

	session.RemainingTimeSeconds -= timeTakenSeconds
	if session.RemainingTimeSeconds < 0 {
		session.RemainingTimeSeconds = 0
	}

	if s.shouldComplete(session) {
		if err := s.completeSession(session); err != nil {
			return nil, err
		}
		return &SubmitResult{
			Completed:            true,
			ClosingMessage:       ClosingMessage,
			RemainingTimeSeconds: session.RemainingTimeSeconds,
			Mode:                 ModeForRemainingMinutes(session.RemainingTimeSeconds / 60),
		}, nil
	}

	result, err := s.ResultRepo.FindByID(session.ResultID)
	if err != nil {
		return nil, util.ErrResultNotFound
	}
	user, err := s.UserRepo.FindByID(session.CandidateID)
	if err != nil {
		return nil, util.ErrUserNotFound
	}

	next, err := s.createNextQuestion(ctx, session, result, user, answerText, nil)
	if err != nil {
		return nil, err
	}

	return &SubmitResult{
		NextQuestion:         next,
		RemainingTimeSeconds: session.RemainingTimeSeconds,
		Mode:                 ModeForRemainingMinutes(session.RemainingTimeSeconds / 60),
	}, nil
}

// shouldComplete 收尾条件：题量达到上限、预算耗尽或总墙钟超时
func (s *InterviewService) shouldComplete(session *model.InterviewSession) bool {
	if session.QuestionCount >= session.MaxQuestions {
		return true
	}
	if session.RemainingTimeSeconds <= 0 {
		return true
	}
	return s.now().Sub(session.StartedAt) >= time.Duration(session.TotalTimeSeconds)*time.Second
}

func (s *InterviewService) completeSession(session *model.InterviewSession) error {
	now := s.now()
	session.Status = model.SessionCompleted
	session.EndedAt = &now
	if err := s.InterviewRepo.UpdateSession(session); err != nil {
		return err
	}
	if s.Arena != nil {
		s.Arena.Evict(session.ID)
	}
	s.Logger.Info("面试会话已结束",
		zap.Uint("sessionId", session.ID),
		zap.Int("questionCount", session.QuestionCount),
		zap.Int("remainingSeconds", session.RemainingTimeSeconds))
	return nil
}

// createNextQuestion 推进阶段机并产出下一题，来源逐级兜底：
// 开场白 → 预生成题库 → 外部生成器（重试 + 去重）→ 模板 → 静态默认题。
// 会话状态和新题在同一次调用里持久化。
func (s *InterviewService) createNextQuestion(ctx context.Context, session *model.InterviewSession, result *model.MatchResult, user *model.User, lastAnswer string, asked []model.InterviewQuestion) (*model.InterviewQuestion, error) {
	if asked == nil {
		var err error
		asked, err = s.InterviewRepo.ListQuestions(session.ID)
		if err != nil {
			return nil, err
		}
	}
	askedTexts := make([]string, 0, len(asked))
	for i := range asked {
		askedTexts = append(askedTexts, asked[i].Text)
	}
	askedSet := NormalizeAskedSet(askedTexts)

	mode := ModeForRemainingMinutes(session.RemainingTimeSeconds / 60)
	state := PhaseState{
		Phase:           InterviewPhase(session.Phase),
		FollowupDepth:   session.FollowupDepth,
		CurrentTopic:    session.CurrentTopic,
		Experiences:     session.Experiences,
		Projects:        session.Projects,
		CoveredProjects: session.CoveredProjects,
	}
	state, info := AdvancePhase(state, mode, IsWeakAnswer(lastAnswer))

	stage := info.Stage
	if stage == "" {
		stage = StageForQuestionIndex(session.QuestionCount)
	}

	draft, source := s.resolveDraft(ctx, session, result, user, info, stage, lastAnswer, askedSet)
	monitoring.QuestionSourceCounter.WithLabelValues(source).Inc()

	question := &model.InterviewQuestion{
		SessionID:       session.ID,
		Text:            draft.Text,
		Difficulty:      draft.Difficulty,
		Topic:           draft.Topic,
		AllottedSeconds: ComputeDynamicSeconds(session.PerQuestionSeconds, stage, lastAnswer),
	}
	if err := s.InterviewRepo.CreateQuestion(question); err != nil {
		return nil, err
	}

	session.Phase = string(state.Phase)
	session.FollowupDepth = state.FollowupDepth
	session.CurrentTopic = state.CurrentTopic
	session.CoveredProjects = state.CoveredProjects
	session.QuestionCount++
	if err := s.InterviewRepo.UpdateSession(session); err != nil {
		return nil, err
	}

	return question, nil
}

func (s *InterviewService) resolveDraft(ctx context.Context, session *model.InterviewSession, result *model.MatchResult, user *model.User, info StageInfo, stage, lastAnswer string, askedSet map[string]bool) (QuestionDraft, string) {
	if info.IntroQuestion {
		return QuestionDraft{Text: IntroPrompt, Difficulty: "easy", Topic: "introduction"}, "intro"
	}

	// 题库优先：外部匹配流程预生成的题目按顺序消费
	pool := make([]QuestionDraft, 0, len(result.InterviewQuestions))
	for _, item := range result.InterviewQuestions {
		pool = append(pool, QuestionDraft{Text: item.Text, Difficulty: item.Difficulty, Topic: item.Topic})
	}
	if draft := NextPoolQuestion(pool, askedSet); draft != nil {
		return *draft, "pool"
	}

	if s.Generator != nil {
		jobText := ""
		if job, err := s.JobRepo.FindByID(result.JobID); err == nil {
			jobText = job.Title + "\n" + job.Description
		}
		input := GenerateInput{
			JobText:          jobText,
			ResumeText:       user.ResumeText,
			LastAnswer:       lastAnswer,
			Stage:            stage,
			AskedQuestions:   mapKeys(askedSet),
			RemainingMinutes: session.RemainingTimeSeconds / 60,
			FocusProject:     info.FocusProject,
			FocusExperience:  info.FocusExperience,
			Mode:             ModeForRemainingMinutes(session.RemainingTimeSeconds / 60),
		}
		for attempt := 0; attempt < s.Config.Interview.GeneratorRetries; attempt++ {
			text, err := s.Generator.Generate(ctx, input)
			if err != nil {
				s.Logger.Warn("出题器调用失败",
					zap.Uint("sessionId", session.ID), zap.Int("attempt", attempt+1), zap.Error(err))
				continue
			}
			text = strings.TrimSpace(text)
			if text == "" || askedSet[strings.ToLower(text)] {
				continue
			}
			return QuestionDraft{
				Text:       text,
				Difficulty: DifficultyForStage(stage),
				Topic:      stage,
			}, "generated"
		}
	}

	jobTitle := ""
	if job, err := s.JobRepo.FindByID(result.JobID); err == nil {
		jobTitle = job.Title
	}
	draft := FallbackQuestion(stage, session.QuestionCount, lastAnswer, jobTitle)
	if !askedSet[strings.ToLower(strings.TrimSpace(draft.Text))] {
		return draft, "fallback"
	}
	return DefaultQuestion(stage), "default"
}

func mapKeys(set map[string]bool) []string {
	keys := make([]string, 0, len(set))
	for key := range set {
		keys = append(keys, key)
	}
	return keys
}

// CompleteStaleSessions 定时任务：把超过总时长仍未收尾的会话关掉
func (s *InterviewService) CompleteStaleSessions(grace time.Duration) int {
	sessions, err := s.InterviewRepo.ListStaleSessions(grace)
	if err != nil {
		s.Logger.Error("过期会话扫描失败", zap.Error(err))
		return 0
	}
	closed := 0
	for i := range sessions {
		if err := s.completeSession(&sessions[i]); err != nil {
			s.Logger.Error("过期会话收尾失败", zap.Uint("sessionId", sessions[i].ID), zap.Error(err))
			continue
		}
		closed++
	}
	return closed
}
