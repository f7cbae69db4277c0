package breaker

import (
	"sync"
	"time"
)

// =============================================================================
// 熔断器实现 - 连续失败的平台+模型组合快速失败，不浪费全局超时预算
// 纯咨询性质：只在派发前被查询，自身从不返回error
// =============================================================================

// State 熔断器状态
type State int

const (
	StateClosed State = iota
	StateOpen
	StateHalfOpen
)

// String 状态名
func (s State) String() string {
	switch s {
	case StateClosed:
		return "closed"
	case StateOpen:
		return "open"
	case StateHalfOpen:
		return "half_open"
	default:
		return "unknown"
	}
}

// Config 熔断器配置
type Config struct {
	MaxFailures  int           `json:"max_failures"`
	ResetTimeout time.Duration `json:"reset_timeout"`
}

// DefaultConfig 默认配置
func DefaultConfig() *Config {
	return &Config{
		MaxFailures:  3,
		ResetTimeout: 30 * time.Second,
	}
}

// Breaker 单个平台+模型组合的熔断器
type Breaker struct {
	config       *Config
	state        State
	failures     int
	lastFailTime time.Time
	mutex        sync.Mutex
}

// NewBreaker 创建熔断器
func NewBreaker(config *Config) *Breaker {
	if config == nil {
		config = DefaultConfig()
	}
	return &Breaker{
		config: config,
		state:  StateClosed,
	}
}

// Allow 是否允许请求
// open状态下冷却期已过则进入half_open放行一次探测
func (b *Breaker) Allow() bool {
	b.mutex.Lock()
	defer b.mutex.Unlock()

	switch b.state {
	case StateClosed:
		return true

	case StateOpen:
		if time.Since(b.lastFailTime) > b.config.ResetTimeout {
			b.state = StateHalfOpen
			return true
		}
		return false

	case StateHalfOpen:
		return true

	default:
		return false
	}
}

// RecordSuccess 记录成功：清零失败计数并关闭熔断器
func (b *Breaker) RecordSuccess() {
	b.mutex.Lock()
	defer b.mutex.Unlock()

	b.failures = 0
	b.state = StateClosed
}

// RecordFailure 记录失败：计数达到阈值则打开熔断器并盖时间戳
func (b *Breaker) RecordFailure() {
	b.mutex.Lock()
	defer b.mutex.Unlock()

	b.failures++
	b.lastFailTime = time.Now()

	if b.failures >= b.config.MaxFailures {
		b.state = StateOpen
	}
}

// State 当前状态
func (b *Breaker) State() State {
	b.mutex.Lock()
	defer b.mutex.Unlock()
	return b.state
}

// Failures 当前失败计数
func (b *Breaker) Failures() int {
	b.mutex.Lock()
	defer b.mutex.Unlock()
	return b.failures
}

// Reset 管理动作：手动复位
func (b *Breaker) Reset() {
	b.mutex.Lock()
	defer b.mutex.Unlock()

	b.failures = 0
	b.state = StateClosed
}
