package adapters

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"time"
)

// =============================================================================
// 通义千问(DashScope)适配器
// =============================================================================

// QwenAdapter 通义千问适配器
type QwenAdapter struct {
	*BaseAdapter
	baseURL string
}

// QwenRequest 千问请求格式
type QwenRequest struct {
	Model      string         `json:"model"`
	Input      QwenInput      `json:"input"`
	Parameters QwenParameters `json:"parameters"`
}

// QwenInput 千问输入格式
type QwenInput struct {
	Messages []chatMessage `json:"messages"`
}

// QwenParameters 千问参数
type QwenParameters struct {
	MaxTokens    int     `json:"max_tokens,omitempty"`
	Temperature  float64 `json:"temperature,omitempty"`
	ResultFormat string  `json:"result_format,omitempty"`
}

// QwenResponse 千问响应格式
type QwenResponse struct {
	Output struct {
		Text         string `json:"text"`
		FinishReason string `json:"finish_reason"`
	} `json:"output"`
	Usage struct {
		InputTokens  int `json:"input_tokens"`
		OutputTokens int `json:"output_tokens"`
		TotalTokens  int `json:"total_tokens"`
	} `json:"usage"`
	RequestID string `json:"request_id"`
}

// QwenErrorResponse 千问错误响应
type QwenErrorResponse struct {
	Code      string `json:"code"`
	Message   string `json:"message"`
	RequestID string `json:"request_id"`
}

// NewQwenAdapter 创建通义千问适配器
func NewQwenAdapter(config *AdapterConfig) (Adapter, error) {
	if config.APIKey == "" {
		return nil, fmt.Errorf("qwen API key is required")
	}

	baseURL := config.BaseURL
	if baseURL == "" {
		baseURL = "https://dashscope.aliyuncs.com/api/v1"
	}
	if config.Model == "" {
		config.Model = "qwen-turbo"
	}

	return &QwenAdapter{
		BaseAdapter: NewBaseAdapter(PlatformQwen, config),
		baseURL:     baseURL,
	}, nil
}

// Chat 发起一次对话调用
func (qa *QwenAdapter) Chat(ctx context.Context, req *ChatRequest) *PlatformResponse {
	model := qa.resolveModel(req)
	if req.Prompt == "" {
		return qa.failure(model, 0, ErrUnknown, "prompt不能为空")
	}

	callCtx, cancel := qa.callContext(ctx, req)
	defer cancel()

	startTime := time.Now()

	if err := qa.waitRateLimit(callCtx); err != nil {
		resp := qa.failure(model, time.Since(startTime).Seconds(), ErrRateLimited, "限流等待失败: "+err.Error())
		qa.logCall(req.Prompt, resp)
		return resp
	}

	body := &QwenRequest{
		Model: model,
		Input: QwenInput{
			Messages: []chatMessage{
				{Role: "user", Content: req.Prompt},
			},
		},
		Parameters: QwenParameters{
			MaxTokens:   req.MaxTokens,
			Temperature: req.Temperature,
		},
	}

	headers := map[string]string{
		"Authorization": "Bearer " + qa.config.APIKey,
	}

	url := qa.baseURL + "/services/aigc/text-generation/generation"
	status, respBody, failResp := qa.postJSON(callCtx, url, headers, body)
	if failResp != nil {
		failResp.Model = model
		qa.logCall(req.Prompt, failResp)
		return failResp
	}

	latency := time.Since(startTime).Seconds()

	if status != http.StatusOK {
		message := fmt.Sprintf("HTTP %d: %s", status, truncate(string(respBody), 200))
		var errorResp QwenErrorResponse
		if err := json.Unmarshal(respBody, &errorResp); err == nil && errorResp.Message != "" {
			message = errorResp.Message
		}
		resp := qa.failure(model, latency, classifyHTTPStatus(status), message)
		qa.logCall(req.Prompt, resp)
		return resp
	}

	var qwenResp QwenResponse
	if err := json.Unmarshal(respBody, &qwenResp); err != nil {
		resp := qa.failure(model, latency, ErrInvalidResponse, "解析响应失败: "+err.Error())
		qa.logCall(req.Prompt, resp)
		return resp
	}

	if qwenResp.Output.Text == "" {
		resp := qa.failure(model, latency, ErrInvalidResponse, "响应output为空")
		qa.logCall(req.Prompt, resp)
		return resp
	}

	resp := qa.success(model, qwenResp.Output.Text, qwenResp.Usage.TotalTokens, latency)
	qa.logCall(req.Prompt, resp)
	return resp
}
