package adapters

import (
	"context"
	"time"
)

// =============================================================================
// 核心类型定义
// =============================================================================

// Platform AI平台类型
type Platform string

const (
	PlatformDeepSeek Platform = "deepseek"
	PlatformQwen     Platform = "qwen"
	PlatformDoubao   Platform = "doubao"
	PlatformZhipu    Platform = "zhipu"
	PlatformChatGPT  Platform = "chatgpt"
	PlatformGemini   Platform = "gemini"
	PlatformErnie    Platform = "ernie"
)

// AllPlatforms 全部已注册平台，顺序即评审密钥回退的优先级
var AllPlatforms = []Platform{
	PlatformDeepSeek,
	PlatformQwen,
	PlatformZhipu,
	PlatformDoubao,
	PlatformChatGPT,
	PlatformGemini,
	PlatformErnie,
}

// ErrorType 调用失败分类
type ErrorType string

const (
	ErrTimeout         ErrorType = "timeout"
	ErrAuth            ErrorType = "auth_error"
	ErrRateLimited     ErrorType = "rate_limited"
	ErrInvalidResponse ErrorType = "invalid_response"
	ErrNetwork         ErrorType = "network_error"
	ErrUnknown         ErrorType = "unknown"
)

// ChatRequest 统一的对话请求
type ChatRequest struct {
	Prompt      string        `json:"prompt"`
	Model       string        `json:"model,omitempty"` // 为空时用适配器默认模型
	Temperature float64       `json:"temperature"`
	MaxTokens   int           `json:"max_tokens"`
	Timeout     time.Duration `json:"timeout"` // 单次调用的硬性墙钟上限
}

// PlatformResponse 统一的平台响应
// 每次调用恰好产生一个，构造后不再修改；失败也返回响应而不是error
type PlatformResponse struct {
	Success      bool      `json:"success"`
	Content      string    `json:"content"`
	Model        string    `json:"model"`
	Platform     Platform  `json:"platform"`
	Latency      float64   `json:"latency"` // 秒
	TokensUsed   int       `json:"tokens_used,omitempty"`
	ErrorMessage string    `json:"error_message,omitempty"`
	ErrorType    ErrorType `json:"error_type,omitempty"`
}

// AdapterConfig 适配器配置
type AdapterConfig struct {
	APIKey    string        `json:"api_key"`
	BaseURL   string        `json:"base_url"`
	Model     string        `json:"model"`
	Timeout   time.Duration `json:"timeout"`
	RateLimit int           `json:"rate_limit"` // 每分钟请求数
}

// Adapter 平台适配器接口 - 屏蔽各厂商API的请求/响应差异
type Adapter interface {
	// 获取平台标识
	Platform() Platform

	// 获取默认模型名
	Model() string

	// 发起一次对话调用，失败同样返回PlatformResponse（Success=false）
	Chat(ctx context.Context, req *ChatRequest) *PlatformResponse
}
