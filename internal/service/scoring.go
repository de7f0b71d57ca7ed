package service

import (
	"regexp"
	"strings"
)

var scoringTokenRe = regexp.MustCompile(`[a-zA-Z0-9]+`)

func tokenSet(text string) map[string]bool {
	set := map[string]bool{}
	for _, token := range scoringTokenRe.FindAllString(strings.ToLower(text), -1) {
		set[token] = true
	}
	return set
}

// SummarizeAndScore 轻量打分：按题干与回答的词面重合度给出 0-100 的相关度，
// 摘要取回答前 200 个字符。语义级评分由外部打分器替换本实现。
func SummarizeAndScore(question, answer string) (string, float64) {
	questionTokens := tokenSet(question)
	answerTokens := tokenSet(answer)
	if len(answerTokens) == 0 {
		return "", 0
	}

	overlap := 0
	for token := range questionTokens {
		if answerTokens[token] {
			overlap++
		}
	}

	score := 0.0
	if len(questionTokens) > 0 {
		score = float64(overlap) / float64(len(questionTokens)) * 100
		if score > 100 {
			score = 100
		}
	}

	summary := strings.TrimSpace(answer)
	if runes := []rune(summary); len(runes) > 200 {
		summary = string(runes[:200])
	}
	return summary, score
}
