package adapters

import (
	"fmt"
	"strings"
	"sync"
)

// =============================================================================
// 工厂模式实现 - 创建各平台适配器
// 别名解析是全仓库唯一的标准化入口，其他组件不得自行维护别名表
// =============================================================================

// platformAliases 平台别名表：中文名/英文名/历史写法 -> 规范平台标识
// 解析时统一小写，所以这里只收录小写和中文条目
var platformAliases = map[string]Platform{
	// DeepSeek
	"deepseek":      PlatformDeepSeek,
	"deepseek-chat": PlatformDeepSeek,
	"深度求索":          PlatformDeepSeek,

	// 通义千问
	"qwen":    PlatformQwen,
	"qianwen": PlatformQwen,
	"tongyi":  PlatformQwen,
	"通义千问":    PlatformQwen,
	"通义":      PlatformQwen,

	// 豆包
	"doubao": PlatformDoubao,
	"豆包":     PlatformDoubao,

	// 智谱
	"zhipu":   PlatformZhipu,
	"glm":     PlatformZhipu,
	"chatglm": PlatformZhipu,
	"智谱":      PlatformZhipu,
	"智谱清言":    PlatformZhipu,

	// ChatGPT
	"chatgpt": PlatformChatGPT,
	"openai":  PlatformChatGPT,
	"gpt":     PlatformChatGPT,

	// Gemini
	"gemini": PlatformGemini,
	"google": PlatformGemini,

	// 文心一言
	"ernie":    PlatformErnie,
	"erniebot": PlatformErnie,
	"wenxin":   PlatformErnie,
	"文心一言":     PlatformErnie,
	"文心":       PlatformErnie,
}

// NormalizePlatform 别名 -> 规范平台标识
// 大小写不敏感；对规范标识本身幂等；未知别名返回false（fail closed）
func NormalizePlatform(nameOrAlias string) (Platform, bool) {
	key := strings.ToLower(strings.TrimSpace(nameOrAlias))
	platform, ok := platformAliases[key]
	return platform, ok
}

// KnownAliases 返回别名表的全部键，供校验和测试使用
func KnownAliases() []string {
	aliases := make([]string, 0, len(platformAliases))
	for alias := range platformAliases {
		aliases = append(aliases, alias)
	}
	return aliases
}

// AdapterCreator 适配器创建函数类型
type AdapterCreator func(config *AdapterConfig) (Adapter, error)

// Factory 适配器工厂
type Factory struct {
	configs  map[Platform]*AdapterConfig
	cache    map[Platform]Adapter
	creators map[Platform]AdapterCreator
	respLog  *ResponseLog
	mutex    sync.RWMutex
}

// NewFactory 创建适配器工厂
func NewFactory() *Factory {
	factory := &Factory{
		configs:  make(map[Platform]*AdapterConfig),
		cache:    make(map[Platform]Adapter),
		creators: make(map[Platform]AdapterCreator),
	}

	factory.registerDefaultCreators()
	return factory
}

// registerDefaultCreators 注册默认的适配器创建器
func (f *Factory) registerDefaultCreators() {
	f.creators[PlatformDeepSeek] = NewDeepSeekAdapter
	f.creators[PlatformQwen] = NewQwenAdapter
	f.creators[PlatformDoubao] = NewDoubaoAdapter
	f.creators[PlatformZhipu] = NewZhipuAdapter
	f.creators[PlatformChatGPT] = NewChatGPTAdapter
	f.creators[PlatformGemini] = NewGeminiAdapter
	f.creators[PlatformErnie] = NewErnieAdapter
}

// RegisterCreator 注册自定义创建器 - 支持扩展和测试替换
func (f *Factory) RegisterCreator(platform Platform, creator AdapterCreator) {
	f.mutex.Lock()
	defer f.mutex.Unlock()

	f.creators[platform] = creator
	delete(f.cache, platform)
}

// SetConfig 设置平台配置，清除缓存强制重建
func (f *Factory) SetConfig(platform Platform, config *AdapterConfig) {
	f.mutex.Lock()
	defer f.mutex.Unlock()

	f.configs[platform] = config
	delete(f.cache, platform)
}

// SetResponseLog 设置响应日志，之后创建的适配器都会挂上日志
func (f *Factory) SetResponseLog(respLog *ResponseLog) {
	f.mutex.Lock()
	defer f.mutex.Unlock()

	f.respLog = respLog
	f.cache = make(map[Platform]Adapter)
}

// Create 按名称或别名创建适配器
func (f *Factory) Create(nameOrAlias string) (Adapter, error) {
	platform, ok := NormalizePlatform(nameOrAlias)
	if !ok {
		return nil, fmt.Errorf("未知的平台名称: %s", nameOrAlias)
	}
	return f.CreatePlatform(platform)
}

// CreatePlatform 按规范平台标识创建适配器
func (f *Factory) CreatePlatform(platform Platform) (Adapter, error) {
	f.mutex.RLock()
	if adapter, exists := f.cache[platform]; exists {
		f.mutex.RUnlock()
		return adapter, nil
	}
	f.mutex.RUnlock()

	f.mutex.Lock()
	defer f.mutex.Unlock()

	// 双重检查锁定
	if adapter, exists := f.cache[platform]; exists {
		return adapter, nil
	}

	config, exists := f.configs[platform]
	if !exists || config.APIKey == "" {
		return nil, fmt.Errorf("平台未配置API密钥: %s", platform)
	}

	creator, exists := f.creators[platform]
	if !exists {
		return nil, fmt.Errorf("不支持的平台: %s", platform)
	}

	adapter, err := creator(config)
	if err != nil {
		return nil, fmt.Errorf("创建适配器失败: %w", err)
	}

	if f.respLog != nil {
		if base, ok := adapter.(interface{ SetResponseLog(*ResponseLog) }); ok {
			base.SetResponseLog(f.respLog)
		}
	}

	f.cache[platform] = adapter
	return adapter, nil
}

// CreateDetached 用独立配置创建适配器，不读写工厂的配置和缓存
// 评审LLM可能与诊断共用平台但使用不同的模型或密钥，走这里避免互相污染
func (f *Factory) CreateDetached(platform Platform, config *AdapterConfig) (Adapter, error) {
	if config == nil || config.APIKey == "" {
		return nil, fmt.Errorf("平台未配置API密钥: %s", platform)
	}

	f.mutex.RLock()
	creator, exists := f.creators[platform]
	respLog := f.respLog
	f.mutex.RUnlock()

	if !exists {
		return nil, fmt.Errorf("不支持的平台: %s", platform)
	}

	adapter, err := creator(config)
	if err != nil {
		return nil, fmt.Errorf("创建适配器失败: %w", err)
	}

	if respLog != nil {
		if base, ok := adapter.(interface{ SetResponseLog(*ResponseLog) }); ok {
			base.SetResponseLog(respLog)
		}
	}
	return adapter, nil
}

// IsAvailable 平台是否可用：已注册且配置了非空API密钥
// 任何派发前都必须先过这个检查
func (f *Factory) IsAvailable(nameOrAlias string) bool {
	platform, ok := NormalizePlatform(nameOrAlias)
	if !ok {
		return false
	}

	f.mutex.RLock()
	defer f.mutex.RUnlock()

	if _, registered := f.creators[platform]; !registered {
		return false
	}
	config, configured := f.configs[platform]
	return configured && config.APIKey != ""
}

// AvailablePlatforms 列出所有可用平台
func (f *Factory) AvailablePlatforms() []Platform {
	f.mutex.RLock()
	defer f.mutex.RUnlock()

	available := make([]Platform, 0, len(f.configs))
	for _, platform := range AllPlatforms {
		if config, ok := f.configs[platform]; ok && config.APIKey != "" {
			if _, registered := f.creators[platform]; registered {
				available = append(available, platform)
			}
		}
	}
	return available
}
