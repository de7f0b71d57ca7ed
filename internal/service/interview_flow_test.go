package service

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestModeForRemainingMinutes(t *testing.T) {
	assert.Equal(t, ModeLightning, ModeForRemainingMinutes(0))
	assert.Equal(t, ModeLightning, ModeForRemainingMinutes(1))
	assert.Equal(t, ModeRapid, ModeForRemainingMinutes(2))
	assert.Equal(t, ModeRapid, ModeForRemainingMinutes(3))
	assert.Equal(t, ModeDeep, ModeForRemainingMinutes(4))
	assert.Equal(t, ModeDeep, ModeForRemainingMinutes(20))
}

func TestIsWeakAnswer(t *testing.T) {
	assert.False(t, IsWeakAnswer(""), "空回答按跳过处理，不算弱回答")
	assert.False(t, IsWeakAnswer("   \n\t  "))
	assert.True(t, IsWeakAnswer("yes"))
	assert.True(t, IsWeakAnswer("  short ans  "))
	assert.False(t, IsWeakAnswer("this answer is definitely long enough to count"))
}

func TestComputeDynamicSeconds(t *testing.T) {
	tests := []struct {
		name     string
		base     int
		stage    string
		answer   string
		expected int
	}{
		{"经验阶段短回答", 60, StageExperience, "short words here", 60},
		{"系统阶段长回答", 60, "system", strings.Repeat("word ", 100), 95},
		{"基础阶段无加成", 60, StageBasics, strings.Repeat("word ", 40), 60},
		{"行为阶段", 60, StageBehavioral, strings.Repeat("word ", 40), 65},
		{"下限收口", 30, StageBasics, "hi", 30},
		{"上限收口", 160, StageDeepDive, strings.Repeat("word ", 100), 180},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.expected, ComputeDynamicSeconds(tt.base, tt.stage, tt.answer))
		})
	}
}

func TestStageForQuestionIndex(t *testing.T) {
	assert.Equal(t, StageBasics, StageForQuestionIndex(0))
	assert.Equal(t, StageBasics, StageForQuestionIndex(1))
	assert.Equal(t, StageExperience, StageForQuestionIndex(2))
	assert.Equal(t, StageExperience, StageForQuestionIndex(4))
	assert.Equal(t, "system", StageForQuestionIndex(5))
	assert.Equal(t, "system", StageForQuestionIndex(6))
	assert.Equal(t, StageBehavioral, StageForQuestionIndex(7))
	assert.Equal(t, StageBehavioral, StageForQuestionIndex(12))
}

func TestAdvancePhaseIntroToResume(t *testing.T) {
	state := PhaseState{Phase: PhaseIntro}

	next, info := AdvancePhase(state, ModeDeep, false)

	assert.Equal(t, PhaseResume, next.Phase)
	assert.Equal(t, 0, next.FollowupDepth)
	assert.True(t, info.IntroQuestion)
	assert.Equal(t, StageBasics, info.Stage)
}

func TestAdvancePhaseResumeFollowups(t *testing.T) {
	state := PhaseState{Phase: PhaseResume}

	// 两次追问后才离开 resume 阶段
	state, info := AdvancePhase(state, ModeDeep, false)
	assert.Equal(t, PhaseResume, state.Phase)
	assert.Equal(t, 1, state.FollowupDepth)
	assert.Equal(t, StageBasics, info.Stage)

	state, _ = AdvancePhase(state, ModeDeep, false)
	assert.Equal(t, PhaseResume, state.Phase)
	assert.Equal(t, 2, state.FollowupDepth)

	state, _ = AdvancePhase(state, ModeDeep, false)
	assert.Equal(t, PhaseExperience, state.Phase)
	assert.Equal(t, 0, state.FollowupDepth)
}

func TestAdvancePhaseWeakAnswerSkipsFollowups(t *testing.T) {
	state := PhaseState{
		Phase:       PhaseResume,
		Experiences: []string{"Company: Acme"},
	}

	next, _ := AdvancePhase(state, ModeDeep, true)

	// 弱回答直接跳过剩余追问，且深度被重置，不会级联到后续阶段
	assert.Equal(t, PhaseExperience, next.Phase)
	assert.Equal(t, 0, next.FollowupDepth)

	next, _ = AdvancePhase(next, ModeDeep, false)
	assert.Equal(t, PhaseExperience, next.Phase, "下一阶段正常追问，没有被哨兵值波及")
	assert.Equal(t, 1, next.FollowupDepth)
}

func TestAdvancePhaseSkipsEmptyExperienceAndProject(t *testing.T) {
	state := PhaseState{Phase: PhaseExperience}

	next, info := AdvancePhase(state, ModeDeep, false)

	// 没有经历和项目可聊，直接落到系统设计阶段，先留一次追问
	assert.Equal(t, StageDeepDive, info.Stage)
	assert.Equal(t, PhaseSystem, next.Phase)
	assert.Equal(t, 1, next.FollowupDepth)

	next, _ = AdvancePhase(next, ModeDeep, false)
	assert.Equal(t, PhaseHR, next.Phase)
}

func TestAdvancePhaseExperienceFocus(t *testing.T) {
	state := PhaseState{
		Phase:       PhaseExperience,
		Experiences: []string{"Company: Acme backend team"},
	}

	state, info := AdvancePhase(state, ModeDeep, false)
	assert.Equal(t, StageExperience, info.Stage)
	assert.Equal(t, "Company: Acme backend team", info.FocusExperience)
	assert.Equal(t, PhaseExperience, state.Phase)
	assert.Equal(t, 1, state.FollowupDepth)

	// 时间紧张时不做深挖，问完一次就走
	quick := PhaseState{
		Phase:       PhaseExperience,
		Experiences: []string{"Company: Acme backend team"},
	}
	quick, info = AdvancePhase(quick, ModeRapid, false)
	assert.Equal(t, PhaseProject, quick.Phase)
	assert.Equal(t, "Company: Acme backend team", info.FocusExperience)
}

func TestAdvancePhaseProjectRotation(t *testing.T) {
	state := PhaseState{
		Phase:    PhaseProject,
		Projects: []string{"Project: payments", "Project: search"},
	}

	// rapid 模式下每个项目问一次，全部覆盖后进入系统阶段
	state, info := AdvancePhase(state, ModeRapid, false)
	assert.Equal(t, "Project: payments", info.FocusProject)
	assert.Equal(t, PhaseProject, state.Phase)
	assert.Contains(t, state.CoveredProjects, "Project: payments")

	state, info = AdvancePhase(state, ModeRapid, false)
	assert.Equal(t, "Project: search", info.FocusProject)
	assert.Equal(t, PhaseSystem, state.Phase)
	assert.Len(t, state.CoveredProjects, 2)
}

func TestAdvancePhaseSystemToHR(t *testing.T) {
	state := PhaseState{Phase: PhaseSystem}

	state, info := AdvancePhase(state, ModeDeep, false)
	assert.Equal(t, StageDeepDive, info.Stage)
	assert.Equal(t, PhaseSystem, state.Phase)

	state, _ = AdvancePhase(state, ModeDeep, false)
	assert.Equal(t, PhaseHR, state.Phase)

	// hr 阶段保持行为面,由时间预算收尾
	state, info = AdvancePhase(state, ModeDeep, false)
	assert.Equal(t, PhaseHR, state.Phase)
	assert.Equal(t, StageBehavioral, info.Stage)
}

func TestFocusPhrase(t *testing.T) {
	phrase := FocusPhrase("I optimized the Redis cache with pipeline batching because latency")
	assert.Equal(t, "optimized the redis cache", phrase)

	assert.Equal(t, "", FocusPhrase(""))
	assert.Equal(t, "", FocusPhrase("a an of"), "过短的词直接被正则过滤")
}

func TestNextPoolQuestionSkipsAsked(t *testing.T) {
	pool := []QuestionDraft{
		{Text: "  What is a goroutine?  ", Difficulty: "easy", Topic: "go"},
		{Text: "Design a rate limiter.", Difficulty: "hard"},
	}
	asked := NormalizeAskedSet([]string{"what is a goroutine?"})

	draft := NextPoolQuestion(pool, asked)
	require.NotNil(t, draft)
	assert.Equal(t, "Design a rate limiter.", draft.Text)
	assert.Equal(t, "hard", draft.Difficulty)
	assert.Equal(t, "general", draft.Topic, "缺省主题被补齐")

	asked = NormalizeAskedSet([]string{"what is a goroutine?", "design a rate limiter."})
	assert.Nil(t, NextPoolQuestion(pool, asked))
}

func TestFallbackQuestionDeterministic(t *testing.T) {
	first := FallbackQuestion("system", 5, "I built a sharded queue", "Backend Engineer")
	second := FallbackQuestion("system", 5, "I built a sharded queue", "Backend Engineer")
	assert.Equal(t, first, second)
	assert.Equal(t, "hard", first.Difficulty)
	assert.Contains(t, first.Text, "built sharded queue")

	// 没有上一个回答时退回岗位名作为焦点
	byTitle := FallbackQuestion(StageBehavioral, 7, "", "Backend Engineer")
	assert.Contains(t, byTitle.Text, "Backend Engineer")

	// 阶段别名折叠到同一个模板库
	alias := FallbackQuestion(StageDeepDive, 5, "I built a sharded queue", "")
	assert.Equal(t, first.Topic, alias.Topic)
}

func TestDefaultQuestion(t *testing.T) {
	draft := DefaultQuestion(StageBasics)
	assert.Equal(t, "Explain a complex technical challenge you solved recently.", draft.Text)
	assert.Equal(t, "easy", draft.Difficulty)
}

func TestExtractResumeTopics(t *testing.T) {
	resume := "Project: realtime chat\nsome filler line\nExperience: Acme Corp backend\nProject: realtime chat\nCompany: Beta Inc"
	projects, experiences := ExtractResumeTopics(resume)

	assert.Len(t, projects, 1, "重复的项目条目被去重")
	assert.Contains(t, projects[0], "realtime chat")
	assert.Len(t, experiences, 2)
}
