package adapters

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"time"
)

// =============================================================================
// Gemini适配器
// =============================================================================

// GeminiAdapter Gemini适配器
type GeminiAdapter struct {
	*BaseAdapter
	baseURL string
}

// GeminiRequest Gemini请求格式
type GeminiRequest struct {
	Contents         []GeminiContent        `json:"contents"`
	GenerationConfig GeminiGenerationConfig `json:"generationConfig"`
}

// GeminiContent Gemini内容块
type GeminiContent struct {
	Role  string       `json:"role,omitempty"`
	Parts []GeminiPart `json:"parts"`
}

// GeminiPart Gemini内容片段
type GeminiPart struct {
	Text string `json:"text"`
}

// GeminiGenerationConfig 生成参数
type GeminiGenerationConfig struct {
	Temperature     float64 `json:"temperature,omitempty"`
	MaxOutputTokens int     `json:"maxOutputTokens,omitempty"`
}

// GeminiResponse Gemini响应格式
type GeminiResponse struct {
	Candidates []struct {
		Content      GeminiContent `json:"content"`
		FinishReason string        `json:"finishReason"`
	} `json:"candidates"`
	UsageMetadata struct {
		PromptTokenCount     int `json:"promptTokenCount"`
		CandidatesTokenCount int `json:"candidatesTokenCount"`
		TotalTokenCount      int `json:"totalTokenCount"`
	} `json:"usageMetadata"`
}

// GeminiErrorResponse Gemini错误响应
type GeminiErrorResponse struct {
	Error struct {
		Code    int    `json:"code"`
		Message string `json:"message"`
		Status  string `json:"status"`
	} `json:"error"`
}

// NewGeminiAdapter 创建Gemini适配器
func NewGeminiAdapter(config *AdapterConfig) (Adapter, error) {
	if config.APIKey == "" {
		return nil, fmt.Errorf("gemini API key is required")
	}

	baseURL := config.BaseURL
	if baseURL == "" {
		baseURL = "https://generativelanguage.googleapis.com/v1beta"
	}
	if config.Model == "" {
		config.Model = "gemini-1.5-flash"
	}

	return &GeminiAdapter{
		BaseAdapter: NewBaseAdapter(PlatformGemini, config),
		baseURL:     baseURL,
	}, nil
}

// Chat 发起一次对话调用
func (ga *GeminiAdapter) Chat(ctx context.Context, req *ChatRequest) *PlatformResponse {
	model := ga.resolveModel(req)
	if req.Prompt == "" {
		return ga.failure(model, 0, ErrUnknown, "prompt不能为空")
	}

	callCtx, cancel := ga.callContext(ctx, req)
	defer cancel()

	startTime := time.Now()

	if err := ga.waitRateLimit(callCtx); err != nil {
		resp := ga.failure(model, time.Since(startTime).Seconds(), ErrRateLimited, "限流等待失败: "+err.Error())
		ga.logCall(req.Prompt, resp)
		return resp
	}

	body := &GeminiRequest{
		Contents: []GeminiContent{
			{Role: "user", Parts: []GeminiPart{{Text: req.Prompt}}},
		},
		GenerationConfig: GeminiGenerationConfig{
			Temperature:     req.Temperature,
			MaxOutputTokens: req.MaxTokens,
		},
	}

	// Gemini用query参数传key，模型名在路径里
	url := fmt.Sprintf("%s/models/%s:generateContent?key=%s", ga.baseURL, model, ga.config.APIKey)
	status, respBody, failResp := ga.postJSON(callCtx, url, nil, body)
	if failResp != nil {
		failResp.Model = model
		ga.logCall(req.Prompt, failResp)
		return failResp
	}

	latency := time.Since(startTime).Seconds()

	if status != http.StatusOK {
		message := fmt.Sprintf("HTTP %d: %s", status, truncate(string(respBody), 200))
		var errorResp GeminiErrorResponse
		if err := json.Unmarshal(respBody, &errorResp); err == nil && errorResp.Error.Message != "" {
			message = errorResp.Error.Message
		}
		errType := classifyHTTPStatus(status)
		// Gemini的无效key返回400 + INVALID_ARGUMENT
		if status == http.StatusBadRequest {
			errType = ErrAuth
		}
		resp := ga.failure(model, latency, errType, message)
		ga.logCall(req.Prompt, resp)
		return resp
	}

	var geminiResp GeminiResponse
	if err := json.Unmarshal(respBody, &geminiResp); err != nil {
		resp := ga.failure(model, latency, ErrInvalidResponse, "解析响应失败: "+err.Error())
		ga.logCall(req.Prompt, resp)
		return resp
	}

	if len(geminiResp.Candidates) == 0 || len(geminiResp.Candidates[0].Content.Parts) == 0 {
		resp := ga.failure(model, latency, ErrInvalidResponse, "响应中没有candidates")
		ga.logCall(req.Prompt, resp)
		return resp
	}

	content := geminiResp.Candidates[0].Content.Parts[0].Text
	resp := ga.success(model, content, geminiResp.UsageMetadata.TotalTokenCount, latency)
	ga.logCall(req.Prompt, resp)
	return resp
}
