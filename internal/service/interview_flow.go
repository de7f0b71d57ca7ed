package service

import (
	"regexp"
	"strings"
)

// 面试阶段状态机的阶段标识
type InterviewPhase string

const (
	PhaseIntro      InterviewPhase = "intro"
	PhaseResume     InterviewPhase = "resume"
	PhaseExperience InterviewPhase = "experience"
	PhaseProject    InterviewPhase = "project"
	PhaseSystem     InterviewPhase = "system"
	PhaseHR         InterviewPhase = "hr"
	PhaseDone       InterviewPhase = "completed"
)

// 各阶段对应的提问风格（stage），出题和计时都按它区分
const (
	StageBasics     = "basics"
	StageExperience = "experience"
	StageProjects   = "advanced_projects"
	StageDeepDive   = "deep_dive"
	StageBehavioral = "behavioral"
)

// TimePressureMode 按剩余时间派生的提问节奏
type TimePressureMode string

const (
	ModeDeep      TimePressureMode = "deep"
	ModeRapid     TimePressureMode = "rapid"
	ModeLightning TimePressureMode = "lightning"
)

// forceAdvanceDepth 弱回答触发的强制推进哨兵值
const forceAdvanceDepth = 999

// weakAnswerMinChars 去除首尾空白后低于该长度的回答视为弱回答
const weakAnswerMinChars = 15

const IntroPrompt = "Introduce yourself. Explain your academic background, " +
	"work experience, technical strengths, and key projects."

const ClosingMessage = "Thank you for attending the interview."

const defaultFallbackQuestion = "Explain a complex technical challenge you solved recently."

func ModeForRemainingMinutes(remaining int) TimePressureMode {
	if remaining <= 1 {
		return ModeLightning
	}
	if remaining <= 3 {
		return ModeRapid
	}
	return ModeDeep
}

// IsWeakAnswer 判断上一个回答是否过短（沉默或敷衍）
func IsWeakAnswer(answer string) bool {
	trimmed := strings.TrimSpace(answer)
	return trimmed != "" && len([]rune(trimmed)) < weakAnswerMinChars
}

// PhaseState 阶段机的全部可变状态，纯值语义，转移函数不做任何 I/O
type PhaseState struct {
	Phase           InterviewPhase
	FollowupDepth   int
	CurrentTopic    string
	Experiences     []string
	Projects        []string
	CoveredProjects []string
}

// StageInfo 一次转移的产出：本题的提问风格与聚焦对象
type StageInfo struct {
	Stage           string
	FocusExperience string
	FocusProject    string
	IntroQuestion   bool
}

// AdvancePhase 按提交的回答推进阶段机，返回新状态与下一题的提问风格。
// 弱回答通过哨兵深度强制触发一次推进，推进路径自身会把深度清零，
// 因此只跳过当前阶段剩余的追问，不会级联跳过后续阶段。
func AdvancePhase(state PhaseState, mode TimePressureMode, weakAnswer bool) (PhaseState, StageInfo) {
	next := state
	next.CoveredProjects = append([]string(nil), state.CoveredProjects...)

	if weakAnswer {
		next.FollowupDepth = forceAdvanceDepth
	}

	// 空的经历/项目列表直接跳段，最多循环固定阶段数
	for i := 0; i < 6; i++ {
		switch next.Phase {
		case PhaseIntro:
			next.Phase = PhaseResume
			next.FollowupDepth = 0
			return next, StageInfo{Stage: StageBasics, IntroQuestion: true}

		case PhaseResume:
			if next.FollowupDepth >= 2 {
				next.Phase = PhaseExperience
				next.FollowupDepth = 0
			} else {
				next.FollowupDepth++
			}
			return next, StageInfo{Stage: StageBasics}

		case PhaseExperience:
			if len(next.Experiences) == 0 {
				next.Phase = PhaseProject
				next.FollowupDepth = 0
				continue
			}
			if next.CurrentTopic == "" {
				next.CurrentTopic = next.Experiences[0]
			}
			info := StageInfo{Stage: StageExperience, FocusExperience: next.CurrentTopic}
			if next.FollowupDepth >= 2 || mode != ModeDeep {
				next.Phase = PhaseProject
				next.CurrentTopic = ""
				next.FollowupDepth = 0
			} else {
				next.FollowupDepth++
			}
			return next, info

		case PhaseProject:
			if len(next.Projects) == 0 {
				next.Phase = PhaseSystem
				next.FollowupDepth = 0
				continue
			}
			if next.CurrentTopic == "" {
				for _, p := range next.Projects {
					if !containsFold(next.CoveredProjects, p) {
						next.CurrentTopic = p
						break
					}
				}
			}
			info := StageInfo{Stage: StageProjects, FocusProject: next.CurrentTopic}
			if next.FollowupDepth >= 2 || mode != ModeDeep {
				if next.CurrentTopic != "" && !containsFold(next.CoveredProjects, next.CurrentTopic) {
					next.CoveredProjects = append(next.CoveredProjects, next.CurrentTopic)
				}
				next.CurrentTopic = ""
				next.FollowupDepth = 0
				if len(next.CoveredProjects) >= len(next.Projects) {
					next.Phase = PhaseSystem
				}
			} else {
				next.FollowupDepth++
			}
			return next, info

		case PhaseSystem:
			info := StageInfo{Stage: StageDeepDive}
			if next.FollowupDepth >= 1 || mode != ModeDeep {
				next.Phase = PhaseHR
				next.FollowupDepth = 0
			} else {
				next.FollowupDepth++
			}
			return next, info

		default:
			// hr 阶段保持到时间耗尽，由调用方按剩余时间收尾
			return next, StageInfo{Stage: StageBehavioral}
		}
	}

	return next, StageInfo{Stage: StageBehavioral}
}

// ---------------------------------------------------------------------------
// 计时策略
// ---------------------------------------------------------------------------

var stageBonus = map[string]int{
	StageBasics:     0,
	StageExperience: 10,
	StageDeepDive:   20,
	StageBehavioral: 5,
	// 索引派生出的历史别名
	"system": 20,
	"hr":     5,
}

// ComputeDynamicSeconds 计算单题时长：基础值 + 阶段加成 + 回答长度修正，
// 结果限制在 [30,180] 秒，纯函数。
func ComputeDynamicSeconds(baseSeconds int, stage string, lastAnswer string) int {
	words := len(strings.Fields(lastAnswer))

	adjust := 0
	if words < 15 {
		adjust = -10
	} else if words > 80 {
		adjust = 15
	}

	seconds := baseSeconds + stageBonus[stage] + adjust
	if seconds < 30 {
		return 30
	}
	if seconds > 180 {
		return 180
	}
	return seconds
}

// StageForQuestionIndex 按题目序号粗分阶段，用于题库耗尽后的兜底模板选择
func StageForQuestionIndex(index int) string {
	switch {
	case index < 2:
		return StageBasics
	case index < 5:
		return StageExperience
	case index < 7:
		return "system"
	default:
		return StageBehavioral
	}
}

// ---------------------------------------------------------------------------
// 题目来源：题库优先，兜底模板 + 焦点短语
// ---------------------------------------------------------------------------

type QuestionDraft struct {
	Text       string
	Difficulty string
	Topic      string
}

var fallbackStageQuestions = map[string][]string{
	StageBasics: {
		"Introduce your most relevant project and your personal ownership in it.",
		"Which core technologies do you use confidently in production and why?",
	},
	StageExperience: {
		"Describe a production bug you solved end-to-end, including root cause and fix.",
		"Tell me about a technical trade-off where you chose speed vs quality.",
	},
	"system": {
		"How would you design this feature to support scale and failures?",
		"What monitoring, alerts, and rollback strategy would you define here?",
	},
	StageBehavioral: {
		"Describe a difficult team conflict and how you resolved it professionally.",
		"Tell me about a time you failed, what you learned, and what changed.",
	},
}

var focusStopwords = map[string]bool{
	"about": true, "after": true, "also": true, "because": true, "could": true,
	"from": true, "have": true, "just": true, "like": true, "make": true,
	"more": true, "should": true, "that": true, "them": true, "then": true,
	"they": true, "this": true, "what": true, "when": true, "with": true,
	"your": true,
}

var focusTokenRe = regexp.MustCompile(`[A-Za-z][A-Za-z0-9+#.-]{2,}`)

// FocusPhrase 从上一个回答中提取前 4 个非停用词作为追问焦点
func FocusPhrase(lastAnswer string) string {
	tokens := focusTokenRe.FindAllString(strings.ToLower(lastAnswer), -1)
	filtered := make([]string, 0, 4)
	for _, token := range tokens {
		if focusStopwords[token] {
			continue
		}
		filtered = append(filtered, token)
		if len(filtered) == 4 {
			break
		}
	}
	return strings.Join(filtered, " ")
}

// NormalizeAskedSet 小写、去空白后的已问题目集合，用于防重复
func NormalizeAskedSet(asked []string) map[string]bool {
	set := make(map[string]bool, len(asked))
	for _, text := range asked {
		normalized := strings.ToLower(strings.TrimSpace(text))
		if normalized != "" {
			set[normalized] = true
		}
	}
	return set
}

// NextPoolQuestion 按顺序扫描预生成题库，返回第一条未问过的题目
func NextPoolQuestion(pool []QuestionDraft, askedSet map[string]bool) *QuestionDraft {
	for _, item := range pool {
		text := strings.TrimSpace(item.Text)
		if text == "" || askedSet[strings.ToLower(text)] {
			continue
		}
		draft := item
		draft.Text = text
		if draft.Difficulty == "" {
			draft.Difficulty = "medium"
		}
		if draft.Topic == "" {
			draft.Topic = "general"
		}
		return &draft
	}
	return nil
}

// FallbackQuestion 题库与生成器都不可用时的确定性兜底：
// 按 (stage, questionIndex) 选模板并拼接焦点短语。
func FallbackQuestion(stage string, questionIndex int, lastAnswer, jobTitle string) QuestionDraft {
	bank, ok := fallbackStageQuestions[canonicalFallbackStage(stage)]
	if !ok {
		bank = fallbackStageQuestions[StageExperience]
	}

	focus := FocusPhrase(lastAnswer)
	if focus == "" {
		focus = jobTitle
	}
	if focus == "" {
		focus = "your recent project"
	}

	base := bank[questionIndex%len(bank)]
	var text string
	switch canonicalFallbackStage(stage) {
	case StageExperience, "system":
		text = base + " Please include metrics, decisions, and trade-offs around " + focus + "."
	case StageBehavioral:
		text = base + " Explain your communication style while handling " + focus + "."
	default:
		text = base + " Connect it to " + focus + "."
	}

	return QuestionDraft{
		Text:       text,
		Difficulty: DifficultyForStage(stage),
		Topic:      canonicalFallbackStage(stage),
	}
}

// DefaultQuestion 生成重试全部失败后的最后一道静态兜底题
func DefaultQuestion(stage string) QuestionDraft {
	return QuestionDraft{
		Text:       defaultFallbackQuestion,
		Difficulty: DifficultyForStage(stage),
		Topic:      "general",
	}
}

func DifficultyForStage(stage string) string {
	switch canonicalFallbackStage(stage) {
	case StageBasics:
		return "easy"
	case StageExperience:
		return "medium"
	default:
		return "hard"
	}
}

// canonicalFallbackStage 把阶段机的 stage 名折叠到兜底题库的四个键
func canonicalFallbackStage(stage string) string {
	switch stage {
	case StageProjects:
		return StageExperience
	case StageDeepDive:
		return "system"
	case "hr":
		return StageBehavioral
	default:
		return stage
	}
}

func containsFold(list []string, target string) bool {
	for _, item := range list {
		if strings.EqualFold(item, target) {
			return true
		}
	}
	return false
}

// ---------------------------------------------------------------------------
// 简历结构抽取（外部抽取器给出纯文本后，这里只做粗粒度定位）
// ---------------------------------------------------------------------------

var (
	projectLineRe    = regexp.MustCompile(`(?im)^.*(project\s*[:\-]?\s*.+)$`)
	experienceLineRe = regexp.MustCompile(`(?im)^.*((experience|company)\s*[:\-]?\s*.+)$`)
)

// ExtractResumeTopics 从简历文本定位项目与经历条目，供阶段机逐个钻取
func ExtractResumeTopics(resumeText string) (projects, experiences []string) {
	seen := map[string]bool{}
	for _, m := range projectLineRe.FindAllStringSubmatch(resumeText, -1) {
		line := strings.TrimSpace(m[1])
		key := strings.ToLower(line)
		if line != "" && !seen[key] {
			seen[key] = true
			projects = append(projects, line)
		}
	}
	seen = map[string]bool{}
	for _, m := range experienceLineRe.FindAllStringSubmatch(resumeText, -1) {
		line := strings.TrimSpace(m[1])
		key := strings.ToLower(line)
		if line != "" && !seen[key] {
			seen[key] = true
			experiences = append(experiences, line)
		}
	}
	return projects, experiences
}
