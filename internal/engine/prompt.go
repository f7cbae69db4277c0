package engine

import (
	"fmt"
	"regexp"
	"strings"

	"github.com/brandlens/service/internal/models"
)

// =============================================================================
// 诊断prompt构造与回答的结构化提取
// 提取只做校验过的启发式扫描，AI输出再畸形也不会panic
// =============================================================================

// buildDiagnosisPrompt 把问题模板里的{brandName}替换为目标品牌
func buildDiagnosisPrompt(brand, question string) string {
	prompt := strings.ReplaceAll(question, "{brandName}", brand)
	if !strings.Contains(question, "{brandName}") && !strings.Contains(question, brand) {
		prompt = fmt.Sprintf("关于品牌「%s」：%s", brand, prompt)
	}
	return prompt
}

func errExecutionNotFound(executionID string) error {
	return fmt.Errorf("执行记录不存在: %s", executionID)
}

// numberedItem 匹配"1."、"2、"、"3)"开头的列表项
var numberedItem = regexp.MustCompile(`^\s*(\d{1,2})[.、)）]`)

// extractMentionRank 品牌在回答中的提及位次
// 优先找编号列表里的位次；正文提及算第1位；未提及返回0
func extractMentionRank(content, brand string) int {
	if brand == "" || !strings.Contains(content, brand) {
		return 0
	}

	for _, line := range strings.Split(content, "\n") {
		if !strings.Contains(line, brand) {
			continue
		}
		if m := numberedItem.FindStringSubmatch(line); m != nil {
			rank := 0
			fmt.Sscanf(m[1], "%d", &rank)
			if rank > 0 {
				return rank
			}
		}
	}
	return 1
}

var positiveWords = []string{
	"优秀", "领先", "知名", "创新", "可靠", "良好", "好评", "推荐", "出色", "驰名", "口碑",
}

var negativeWords = []string{
	"投诉", "负面", "争议", "落后", "质量问题", "差评", "诟病", "风险", "缺陷",
}

// extractSentiment 关键词计数的粗粒度情感判断
func extractSentiment(content string) string {
	positive, negative := 0, 0
	for _, w := range positiveWords {
		positive += strings.Count(content, w)
	}
	for _, w := range negativeWords {
		negative += strings.Count(content, w)
	}

	switch {
	case positive > negative:
		return models.SentimentPositive
	case negative > positive:
		return models.SentimentNegative
	default:
		return models.SentimentNeutral
	}
}
