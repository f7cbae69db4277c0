package breaker

import (
	"sort"
	"sync"
)

// =============================================================================
// 熔断器注册表 - 进程级共享，按 平台+模型 组合分桶
// =============================================================================

// Status 单个熔断器的快照，供管理接口查看
type Status struct {
	Key      string `json:"key"`
	State    string `json:"state"`
	Failures int    `json:"failures"`
}

// Registry 熔断器注册表
type Registry struct {
	config   *Config
	breakers map[string]*Breaker
	mutex    sync.RWMutex
}

// NewRegistry 创建注册表
func NewRegistry(config *Config) *Registry {
	if config == nil {
		config = DefaultConfig()
	}
	return &Registry{
		config:   config,
		breakers: make(map[string]*Breaker),
	}
}

func breakerKey(platform, model string) string {
	return platform + "/" + model
}

// Get 取出指定组合的熔断器，不存在则创建
func (r *Registry) Get(platform, model string) *Breaker {
	key := breakerKey(platform, model)

	r.mutex.RLock()
	if b, exists := r.breakers[key]; exists {
		r.mutex.RUnlock()
		return b
	}
	r.mutex.RUnlock()

	r.mutex.Lock()
	defer r.mutex.Unlock()

	// 双重检查
	if b, exists := r.breakers[key]; exists {
		return b
	}

	b := NewBreaker(r.config)
	r.breakers[key] = b
	return b
}

// Allow 派发前的熔断检查
func (r *Registry) Allow(platform, model string) bool {
	return r.Get(platform, model).Allow()
}

// RecordSuccess 记录成功
func (r *Registry) RecordSuccess(platform, model string) {
	r.Get(platform, model).RecordSuccess()
}

// RecordFailure 记录失败
func (r *Registry) RecordFailure(platform, model string) {
	r.Get(platform, model).RecordFailure()
}

// Reset 管理动作：复位指定组合
func (r *Registry) Reset(platform, model string) {
	r.Get(platform, model).Reset()
}

// ResetAll 管理动作：复位全部熔断器
func (r *Registry) ResetAll() {
	r.mutex.RLock()
	defer r.mutex.RUnlock()

	for _, b := range r.breakers {
		b.Reset()
	}
}

// Snapshot 全部熔断器状态快照，按key排序保证输出稳定
func (r *Registry) Snapshot() []Status {
	r.mutex.RLock()
	defer r.mutex.RUnlock()

	statuses := make([]Status, 0, len(r.breakers))
	for key, b := range r.breakers {
		statuses = append(statuses, Status{
			Key:      key,
			State:    b.State().String(),
			Failures: b.Failures(),
		})
	}

	sort.Slice(statuses, func(i, j int) bool {
		return statuses[i].Key < statuses[j].Key
	})
	return statuses
}
