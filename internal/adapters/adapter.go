package adapters

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"io"
	"net"
	"net/http"
	"time"

	"golang.org/x/time/rate"
)

// =============================================================================
// 基础适配器 - 各平台适配器共享的HTTP/限流/延迟统计逻辑
// =============================================================================

// BaseAdapter 基础适配器
type BaseAdapter struct {
	platform    Platform
	config      *AdapterConfig
	httpClient  *http.Client
	rateLimiter *rate.Limiter
	respLog     *ResponseLog
}

// NewBaseAdapter 创建基础适配器
func NewBaseAdapter(platform Platform, config *AdapterConfig) *BaseAdapter {
	timeout := config.Timeout
	if timeout <= 0 {
		timeout = 60 * time.Second
	}

	httpClient := &http.Client{
		Timeout: timeout,
		Transport: &http.Transport{
			MaxIdleConns:        200,
			MaxIdleConnsPerHost: 50,
			MaxConnsPerHost:     100,
			IdleConnTimeout:     90 * time.Second,
			DisableKeepAlives:   false,
			DisableCompression:  false,
		},
	}

	rateLimit := config.RateLimit
	if rateLimit <= 0 {
		rateLimit = 60
	}
	rateLimiter := rate.NewLimiter(rate.Limit(float64(rateLimit)/60.0), rateLimit)

	return &BaseAdapter{
		platform:    platform,
		config:      config,
		httpClient:  httpClient,
		rateLimiter: rateLimiter,
	}
}

// Platform 获取平台标识
func (ba *BaseAdapter) Platform() Platform {
	return ba.platform
}

// Model 获取默认模型名
func (ba *BaseAdapter) Model() string {
	return ba.config.Model
}

// SetResponseLog 设置响应日志（可选，日志写入失败不影响调用）
func (ba *BaseAdapter) SetResponseLog(respLog *ResponseLog) {
	ba.respLog = respLog
}

// resolveModel 请求里带了模型名就用请求的，否则用适配器默认
func (ba *BaseAdapter) resolveModel(req *ChatRequest) string {
	if req.Model != "" {
		return req.Model
	}
	return ba.config.Model
}

// callContext 按请求超时构造上下文
func (ba *BaseAdapter) callContext(ctx context.Context, req *ChatRequest) (context.Context, context.CancelFunc) {
	timeout := req.Timeout
	if timeout <= 0 {
		timeout = ba.config.Timeout
	}
	if timeout <= 0 {
		timeout = 60 * time.Second
	}
	return context.WithTimeout(ctx, timeout)
}

// waitRateLimit 限流等待，超时归类为rate_limited
func (ba *BaseAdapter) waitRateLimit(ctx context.Context) error {
	return ba.rateLimiter.Wait(ctx)
}

// postJSON 发送JSON请求并读取完整响应体
// 传输层错误在这里分类，HTTP状态码由各平台适配器自行解释
func (ba *BaseAdapter) postJSON(ctx context.Context, url string, headers map[string]string, body interface{}) (int, []byte, *PlatformResponse) {
	reqBody, err := json.Marshal(body)
	if err != nil {
		return 0, nil, ba.failure("", 0, ErrUnknown, "序列化请求失败: "+err.Error())
	}

	httpReq, err := http.NewRequestWithContext(ctx, "POST", url, bytes.NewBuffer(reqBody))
	if err != nil {
		return 0, nil, ba.failure("", 0, ErrUnknown, "创建请求失败: "+err.Error())
	}

	httpReq.Header.Set("Content-Type", "application/json")
	for k, v := range headers {
		httpReq.Header.Set(k, v)
	}

	start := time.Now()
	httpResp, err := ba.httpClient.Do(httpReq)
	if err != nil {
		latency := time.Since(start).Seconds()
		return 0, nil, ba.failure("", latency, classifyTransportError(err), "发送请求失败: "+err.Error())
	}
	defer httpResp.Body.Close()

	respBody, err := io.ReadAll(httpResp.Body)
	if err != nil {
		latency := time.Since(start).Seconds()
		return 0, nil, ba.failure("", latency, ErrNetwork, "读取响应失败: "+err.Error())
	}

	return httpResp.StatusCode, respBody, nil
}

// success 构造成功响应
func (ba *BaseAdapter) success(model, content string, tokens int, latency float64) *PlatformResponse {
	return &PlatformResponse{
		Success:    true,
		Content:    content,
		Model:      model,
		Platform:   ba.platform,
		Latency:    latency,
		TokensUsed: tokens,
	}
}

// failure 构造失败响应
func (ba *BaseAdapter) failure(model string, latency float64, errType ErrorType, message string) *PlatformResponse {
	return &PlatformResponse{
		Success:      false,
		Model:        model,
		Platform:     ba.platform,
		Latency:      latency,
		ErrorType:    errType,
		ErrorMessage: message,
	}
}

// logCall 追加响应日志，失败只记录不上抛
func (ba *BaseAdapter) logCall(question string, resp *PlatformResponse) {
	if ba.respLog == nil {
		return
	}
	ba.respLog.Append(&ResponseLogEntry{
		Timestamp:  time.Now(),
		Platform:   string(resp.Platform),
		Model:      resp.Model,
		Question:   question,
		Answer:     resp.Content,
		Latency:    resp.Latency,
		TokensUsed: resp.TokensUsed,
		Success:    resp.Success,
		ErrorType:  string(resp.ErrorType),
	})
}

// classifyTransportError 传输层错误分类
func classifyTransportError(err error) ErrorType {
	if errors.Is(err, context.DeadlineExceeded) {
		return ErrTimeout
	}
	var netErr net.Error
	if errors.As(err, &netErr) && netErr.Timeout() {
		return ErrTimeout
	}
	return ErrNetwork
}

// classifyHTTPStatus HTTP状态码分类
func classifyHTTPStatus(status int) ErrorType {
	switch {
	case status == http.StatusUnauthorized || status == http.StatusForbidden:
		return ErrAuth
	case status == http.StatusTooManyRequests:
		return ErrRateLimited
	case status == http.StatusRequestTimeout || status == http.StatusGatewayTimeout:
		return ErrTimeout
	default:
		return ErrUnknown
	}
}
