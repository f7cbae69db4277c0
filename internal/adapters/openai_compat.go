package adapters

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"time"
)

// =============================================================================
// OpenAI兼容协议适配器
// DeepSeek、豆包(火山方舟)、智谱、ChatGPT、文心(千帆v2)走的都是
// /chat/completions这一套协议，只是端点、鉴权和默认模型不同
// =============================================================================

// chatCompletionRequest OpenAI兼容请求格式
type chatCompletionRequest struct {
	Model       string        `json:"model"`
	Messages    []chatMessage `json:"messages"`
	MaxTokens   int           `json:"max_tokens,omitempty"`
	Temperature float64       `json:"temperature,omitempty"`
	Stream      bool          `json:"stream,omitempty"`
}

// chatMessage 消息格式
type chatMessage struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

// chatCompletionResponse OpenAI兼容响应格式
type chatCompletionResponse struct {
	ID      string `json:"id"`
	Object  string `json:"object"`
	Created int64  `json:"created"`
	Model   string `json:"model"`
	Choices []struct {
		Index   int `json:"index"`
		Message struct {
			Role    string `json:"role"`
			Content string `json:"content"`
		} `json:"message"`
		FinishReason string `json:"finish_reason"`
	} `json:"choices"`
	Usage struct {
		PromptTokens     int `json:"prompt_tokens"`
		CompletionTokens int `json:"completion_tokens"`
		TotalTokens      int `json:"total_tokens"`
	} `json:"usage"`
}

// chatCompletionError OpenAI兼容错误响应
type chatCompletionError struct {
	Error struct {
		Message string `json:"message"`
		Type    string `json:"type"`
		Code    string `json:"code"`
	} `json:"error"`
}

// OpenAICompatAdapter OpenAI兼容协议的通用适配器
type OpenAICompatAdapter struct {
	*BaseAdapter
	endpoint string // 完整的chat/completions地址
}

// newOpenAICompatAdapter 创建OpenAI兼容适配器
func newOpenAICompatAdapter(platform Platform, config *AdapterConfig, defaultBaseURL, defaultModel string) (*OpenAICompatAdapter, error) {
	if config.APIKey == "" {
		return nil, fmt.Errorf("%s API key is required", platform)
	}

	baseURL := config.BaseURL
	if baseURL == "" {
		baseURL = defaultBaseURL
	}
	if config.Model == "" {
		config.Model = defaultModel
	}

	return &OpenAICompatAdapter{
		BaseAdapter: NewBaseAdapter(platform, config),
		endpoint:    baseURL + "/chat/completions",
	}, nil
}

// Chat 发起一次对话调用
func (a *OpenAICompatAdapter) Chat(ctx context.Context, req *ChatRequest) *PlatformResponse {
	model := a.resolveModel(req)
	if req.Prompt == "" {
		return a.failure(model, 0, ErrUnknown, "prompt不能为空")
	}

	callCtx, cancel := a.callContext(ctx, req)
	defer cancel()

	startTime := time.Now()

	if err := a.waitRateLimit(callCtx); err != nil {
		resp := a.failure(model, time.Since(startTime).Seconds(), ErrRateLimited, "限流等待失败: "+err.Error())
		a.logCall(req.Prompt, resp)
		return resp
	}

	body := &chatCompletionRequest{
		Model: model,
		Messages: []chatMessage{
			{Role: "user", Content: req.Prompt},
		},
		MaxTokens:   req.MaxTokens,
		Temperature: req.Temperature,
	}

	headers := map[string]string{
		"Authorization": "Bearer " + a.config.APIKey,
	}

	status, respBody, failResp := a.postJSON(callCtx, a.endpoint, headers, body)
	if failResp != nil {
		failResp.Model = model
		a.logCall(req.Prompt, failResp)
		return failResp
	}

	latency := time.Since(startTime).Seconds()

	if status != http.StatusOK {
		message := fmt.Sprintf("HTTP %d: %s", status, truncate(string(respBody), 200))
		var errorResp chatCompletionError
		if err := json.Unmarshal(respBody, &errorResp); err == nil && errorResp.Error.Message != "" {
			message = errorResp.Error.Message
		}
		resp := a.failure(model, latency, classifyHTTPStatus(status), message)
		a.logCall(req.Prompt, resp)
		return resp
	}

	var completion chatCompletionResponse
	if err := json.Unmarshal(respBody, &completion); err != nil {
		resp := a.failure(model, latency, ErrInvalidResponse, "解析响应失败: "+err.Error())
		a.logCall(req.Prompt, resp)
		return resp
	}

	if len(completion.Choices) == 0 {
		resp := a.failure(model, latency, ErrInvalidResponse, "响应中没有choices")
		a.logCall(req.Prompt, resp)
		return resp
	}

	resp := a.success(model, completion.Choices[0].Message.Content, completion.Usage.TotalTokens, latency)
	a.logCall(req.Prompt, resp)
	return resp
}

// truncate 截断长文本用于错误消息
func truncate(s string, max int) string {
	runes := []rune(s)
	if len(runes) <= max {
		return s
	}
	return string(runes[:max]) + "..."
}

// =============================================================================
// 各平台构造函数 - 端点和默认模型的差异都收敛在这里
// =============================================================================

// NewDeepSeekAdapter 创建DeepSeek适配器
func NewDeepSeekAdapter(config *AdapterConfig) (Adapter, error) {
	return newOpenAICompatAdapter(PlatformDeepSeek, config,
		"https://api.deepseek.com/v1", "deepseek-chat")
}

// NewDoubaoAdapter 创建豆包(火山方舟)适配器
func NewDoubaoAdapter(config *AdapterConfig) (Adapter, error) {
	return newOpenAICompatAdapter(PlatformDoubao, config,
		"https://ark.cn-beijing.volces.com/api/v3", "doubao-pro-32k")
}

// NewZhipuAdapter 创建智谱GLM适配器
func NewZhipuAdapter(config *AdapterConfig) (Adapter, error) {
	return newOpenAICompatAdapter(PlatformZhipu, config,
		"https://open.bigmodel.cn/api/paas/v4", "glm-4-flash")
}

// NewChatGPTAdapter 创建ChatGPT适配器
func NewChatGPTAdapter(config *AdapterConfig) (Adapter, error) {
	return newOpenAICompatAdapter(PlatformChatGPT, config,
		"https://api.openai.com/v1", "gpt-4o-mini")
}

// NewErnieAdapter 创建文心一言适配器（百度千帆v2兼容协议）
func NewErnieAdapter(config *AdapterConfig) (Adapter, error) {
	return newOpenAICompatAdapter(PlatformErnie, config,
		"https://qianfan.baidubce.com/v2", "ernie-4.0-8k")
}
