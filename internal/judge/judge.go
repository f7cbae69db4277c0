package judge

import (
	"context"
	"encoding/json"
	"fmt"
	"log"
	"strings"
	"time"

	"github.com/brandlens/service/internal/adapters"
	"github.com/brandlens/service/internal/models"
)

// =============================================================================
// 评审客户端 - 把模型回答交给评审LLM按固定量表打分
// 任何失败都返回nil（没有评分），零分默认值由聚合器统一补齐
// =============================================================================

// Client 评审客户端
type Client struct {
	adapter adapters.Adapter // nil表示未配置评审
	timeout time.Duration
}

// NewClient 创建评审客户端；adapter为nil时评审功能关闭
func NewClient(adapter adapters.Adapter, timeout time.Duration) *Client {
	if timeout <= 0 {
		timeout = 60 * time.Second
	}
	return &Client{
		adapter: adapter,
		timeout: timeout,
	}
}

// Enabled 是否配置了评审LLM
func (c *Client) Enabled() bool {
	return c != nil && c.adapter != nil
}

// Evaluate 评审一条回答，返回五维评分；无法评审时返回nil
func (c *Client) Evaluate(ctx context.Context, brand, question, answer string) *models.JudgeResult {
	if !c.Enabled() {
		return nil
	}

	// 空回答直接跳过，不发退化的prompt
	if strings.TrimSpace(answer) == "" {
		return nil
	}

	prompt := buildRubricPrompt(brand, question, answer)

	resp := c.adapter.Chat(ctx, &adapters.ChatRequest{
		Prompt:      prompt,
		Temperature: 0.1,
		MaxTokens:   1024,
		Timeout:     c.timeout,
	})
	if !resp.Success {
		log.Printf("⚠️ [评审] 评审LLM调用失败: platform=%s type=%s msg=%s",
			resp.Platform, resp.ErrorType, resp.ErrorMessage)
		return nil
	}

	result := ExtractJudgeResult(resp.Content)
	if result == nil {
		log.Printf("⚠️ [评审] 评审回复无法解析为合法评分: brand=%s 回复长度=%d", brand, len(resp.Content))
	}
	return result
}

// buildRubricPrompt 构造固定的中文评分量表prompt
func buildRubricPrompt(brand, question, answer string) string {
	return fmt.Sprintf(`你是一位严格的品牌内容评审专家。请针对品牌「%s」评估下面这条AI回答的质量。

【原始问题】
%s

【待评估的回答】
%s

请从以下五个维度打分（每项0-100的整数）：
1. accuracy_score（准确性）：回答中关于该品牌的事实是否准确、权威
2. completeness_score（完整性）：品牌信息的覆盖是否全面、品牌是否被充分提及
3. sentiment_score（情感倾向）：回答对该品牌的态度，100为完全正面，0为完全负面
4. purity_score（纯净度）：回答是否聚焦该品牌，无无关内容和竞品干扰
5. consistency_score（一致性）：回答与品牌公开定位、常识信息是否一致

只返回如下格式的JSON对象，不要添加其他内容：
{"accuracy_score": 80, "completeness_score": 75, "sentiment_score": 85, "purity_score": 90, "consistency_score": 80, "judgement": "一句话评语", "confidence_level": "high"}

confidence_level只能取high、medium、low之一。`, brand, question, answer)
}

// rawJudgeResult 解析用的中间结构，指针字段用于检查必填项是否存在
type rawJudgeResult struct {
	AccuracyScore     *int   `json:"accuracy_score"`
	CompletenessScore *int   `json:"completeness_score"`
	SentimentScore    *int   `json:"sentiment_score"`
	PurityScore       *int   `json:"purity_score"`
	ConsistencyScore  *int   `json:"consistency_score"`
	Judgement         string `json:"judgement"`
	ConfidenceLevel   string `json:"confidence_level"`
}

// validConfidence 置信度枚举
var validConfidence = map[string]bool{
	"high":   true,
	"medium": true,
	"low":    true,
}

// ExtractJudgeResult 从评审LLM的自由文本回复中提取评分
// 定位第一个配平的{...}再解析；五个分数任一缺失、非整数或越界都整体拒绝，
// 绝不猜测或截断到合法区间
func ExtractJudgeResult(reply string) *models.JudgeResult {
	jsonText := firstJSONObject(reply)
	if jsonText == "" {
		return nil
	}

	var raw rawJudgeResult
	if err := json.Unmarshal([]byte(jsonText), &raw); err != nil {
		return nil
	}

	scores := []*int{
		raw.AccuracyScore,
		raw.CompletenessScore,
		raw.SentimentScore,
		raw.PurityScore,
		raw.ConsistencyScore,
	}
	for _, s := range scores {
		if s == nil || *s < 0 || *s > 100 {
			return nil
		}
	}

	if !validConfidence[raw.ConfidenceLevel] {
		return nil
	}

	return &models.JudgeResult{
		AccuracyScore:     *raw.AccuracyScore,
		CompletenessScore: *raw.CompletenessScore,
		SentimentScore:    *raw.SentimentScore,
		PurityScore:       *raw.PurityScore,
		ConsistencyScore:  *raw.ConsistencyScore,
		Judgement:         raw.Judgement,
		ConfidenceLevel:   raw.ConfidenceLevel,
	}
}

// firstJSONObject 花括号配平扫描，跳过字符串字面量里的花括号
// 评审LLM经常把JSON包在说明文字里，不能直接Unmarshal整段回复
func firstJSONObject(s string) string {
	start := -1
	depth := 0
	inString := false
	escaped := false

	for i, ch := range s {
		if start >= 0 && inString {
			switch {
			case escaped:
				escaped = false
			case ch == '\\':
				escaped = true
			case ch == '"':
				inString = false
			}
			continue
		}

		switch ch {
		case '{':
			if start < 0 {
				start = i
			}
			depth++
		case '}':
			if start >= 0 {
				depth--
				if depth == 0 {
					return s[start : i+1]
				}
			}
		case '"':
			if start >= 0 {
				inString = true
			}
		}
	}
	return ""
}
