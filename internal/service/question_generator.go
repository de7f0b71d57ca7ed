package service

import (
	"context"
	"fmt"
	"strings"
)

// GenerateInput 传给外部出题器的完整上下文
type GenerateInput struct {
	JobText          string
	ResumeText       string
	LastAnswer       string
	Stage            string
	AskedQuestions   []string
	RemainingMinutes int
	FocusProject     string
	FocusExperience  string
	Mode             TimePressureMode
}

// QuestionGenerator 外部出题器；任何失败都由调用方接确定性兜底
type QuestionGenerator interface {
	Generate(ctx context.Context, input GenerateInput) (string, error)
}

// AIQuestionGenerator 用 chat-completions 接口出题
type AIQuestionGenerator struct {
	ai *AIService
}

func NewAIQuestionGenerator(ai *AIService) *AIQuestionGenerator {
	return &AIQuestionGenerator{ai: ai}
}

const generatorSystemPrompt = "You are a strict FAANG interviewer. Never repeat. Adapt to time pressure."

func (g *AIQuestionGenerator) Generate(ctx context.Context, input GenerateInput) (string, error) {
	maxTokens := 250
	if input.Mode == ModeLightning {
		maxTokens = 180
	}

	text, err := g.ai.Chat(ctx, generatorSystemPrompt, buildGeneratorPrompt(input), 0.15, maxTokens)
	if err != nil {
		return "", err
	}
	return strings.TrimSpace(text), nil
}

func buildGeneratorPrompt(input GenerateInput) string {
	var b strings.Builder

	b.WriteString("You are conducting a dynamic FAANG-level technical interview.\n\n")
	fmt.Fprintf(&b, "Resume:\n%s\n\n", input.ResumeText)
	fmt.Fprintf(&b, "Job Description:\n%s\n\n", input.JobText)
	fmt.Fprintf(&b, "Last Answer:\n%s\n\n", input.LastAnswer)
	fmt.Fprintf(&b, "Forbidden Questions:\n%s\n\n", strings.Join(input.AskedQuestions, "\n"))
	fmt.Fprintf(&b, "Remaining Time:\n%d minutes\n\n", input.RemainingMinutes)
	fmt.Fprintf(&b, "Stage:\n%s\n\n", input.Stage)

	if input.FocusProject != "" {
		fmt.Fprintf(&b, "Current Project:\n%s\n\n", input.FocusProject)
	}
	if input.FocusExperience != "" {
		fmt.Fprintf(&b, "Current Experience:\n%s\n\n", input.FocusExperience)
	}

	b.WriteString("Time Behavior:\n")
	switch input.Mode {
	case ModeLightning:
		b.WriteString("Interview is ending very soon. Ask extremely short, high-impact, rapid-fire technical questions. No long scenarios. No multi-part questions. Be sharp and concise.\n\n")
	case ModeRapid:
		b.WriteString("Time is limited. Ask focused technical questions. Avoid long system design problems. Keep questions compact but meaningful.\n\n")
	default:
		b.WriteString("Ask structured, in-depth, architecture-level questions. Escalate difficulty logically. Push for deep technical reasoning.\n\n")
	}

	if IsWeakAnswer(input.LastAnswer) {
		b.WriteString("Weak Answer Behavior:\nThe candidate's previous answer was weak or too short. Do NOT repeat the previous question. Reframe the topic differently or move to a new angle. Increase clarity and depth.\n\n")
	}

	b.WriteString("Stage Instructions:\n")
	switch {
	case input.Stage == StageExperience && input.FocusExperience != "":
		fmt.Fprintf(&b, "Deeply analyze this work experience:\n%s\nAsk about production impact, architectural decisions, scaling challenges, debugging incidents, performance optimization, ownership and trade-offs. Drill based on the last answer. No repetition.\n\n", input.FocusExperience)
	case input.Stage == StageProjects && input.FocusProject != "":
		fmt.Fprintf(&b, "Focus deeply on this project:\n%s\nEscalate complexity across scalability, caching, deployment, monitoring and cost. No repetition.\n\n", input.FocusProject)
	case input.Stage == StageDeepDive:
		b.WriteString("Ask advanced system design or architecture questions. Discuss bottlenecks, failures, HA, distributed systems, edge cases and trade-offs. No repetition.\n\n")
	case input.Stage == StageBasics:
		b.WriteString("Ask foundational technical questions clearly. Test conceptual clarity. No repetition.\n\n")
	default:
		b.WriteString("Ask strong behavioral and leadership questions. Focus on conflict, failures, ownership, pressure situations and decision making. No repetition.\n\n")
	}

	b.WriteString("STRICT RULES:\n" +
		"1. Ask ONLY ONE question.\n" +
		"2. Never generate a question semantically similar to Forbidden Questions.\n" +
		"3. Do not restate previous topics in similar wording.\n" +
		"4. No numbering. No explanations. Output only the raw question.\n" +
		"5. Never ask to introduce again.\n" +
		"6. If in lightning mode, keep the question under 20 words.\n" +
		"7. Escalate difficulty logically.\n\n" +
		"Generate the next completely unique interview question.")

	return b.String()
}
