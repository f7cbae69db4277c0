package config

import (
	"fmt"
	"log"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"

	"github.com/brandlens/service/internal/adapters"
)

// Config 应用配置
type Config struct {
	// 服务配置
	ServiceName string
	Port        int
	Debug       bool
	Host        string // 服务监听地址
	GinMode     string // Gin运行模式

	// 调度配置
	DispatchMode   string // sequential 或 concurrent
	MaxConcurrency int    // 并发调度上限
	PerCallTimeout time.Duration
	BaseTimeout    time.Duration // 批次超时基数
	PerTaskTimeout time.Duration // 批次超时按任务追加量

	// 缺失模型处理策略：true=降级跳过未配置的平台，false=直接拒绝请求
	DegradeOnMissingModel bool

	// 熔断配置
	BreakerMaxFailures  int
	BreakerResetTimeout time.Duration

	// 平台调用速率限制（次/分钟）
	AdapterRateLimit int

	// 评审LLM配置
	JudgePlatform string
	JudgeModel    string
	JudgeAPIKey   string
	JudgeTimeout  time.Duration

	// 平台配置：平台名 -> 适配器配置
	Platforms map[adapters.Platform]adapters.AdapterConfig

	// 原始响应日志路径，空字符串关闭
	ResponseLogPath string
}

// Load 从环境变量加载配置
func Load() *Config {
	// 尝试加载.env文件，优先config目录，然后兼容根目录
	envPaths := []string{
		"config/.env",
		".env",
	}

	loaded := false
	for _, path := range envPaths {
		if _, err := os.Stat(path); err == nil {
			if err := godotenv.Load(path); err == nil {
				log.Printf("成功加载.env文件: %s", path)
				loaded = true
				break
			}
		}
	}

	if !loaded {
		log.Printf("警告: 未找到.env文件，尝试使用系统环境变量")
	}

	config := &Config{
		ServiceName: getEnv("SERVICE_NAME", "brandlens"),
		Port:        getEnvAsInt("PORT", 8090),
		Debug:       getEnvAsBool("DEBUG", false),
		Host:        getEnv("HOST", "0.0.0.0"),
		GinMode:     getEnv("GIN_MODE", "release"),

		DispatchMode:   getEnv("DISPATCH_MODE", "concurrent"),
		MaxConcurrency: getEnvAsInt("MAX_CONCURRENCY", 5),
		PerCallTimeout: getEnvAsDuration("PER_CALL_TIMEOUT", 45*time.Second),
		BaseTimeout:    getEnvAsDuration("BATCH_BASE_TIMEOUT", 30*time.Second),
		PerTaskTimeout: getEnvAsDuration("BATCH_PER_TASK_TIMEOUT", 20*time.Second),

		DegradeOnMissingModel: getEnvAsBool("DEGRADE_ON_MISSING_MODEL", true),

		BreakerMaxFailures:  getEnvAsInt("BREAKER_MAX_FAILURES", 3),
		BreakerResetTimeout: getEnvAsDuration("BREAKER_RESET_TIMEOUT", 30*time.Second),

		AdapterRateLimit: getEnvAsInt("ADAPTER_RATE_LIMIT", 60),

		JudgePlatform: getEnv("JUDGE_LLM_PLATFORM", ""),
		JudgeModel:    getEnv("JUDGE_LLM_MODEL", ""),
		JudgeAPIKey:   getEnv("JUDGE_LLM_API_KEY", ""),
		JudgeTimeout:  getEnvAsDuration("JUDGE_TIMEOUT", 30*time.Second),

		ResponseLogPath: getEnv("RESPONSE_LOG_PATH", ""),
	}

	config.Platforms = loadPlatforms(config.AdapterRateLimit)
	return config
}

// loadPlatforms 读取各平台的API密钥和模型配置
// 环境变量命名: <平台大写>_API_KEY / <平台大写>_MODEL_ID / <平台大写>_BASE_URL
func loadPlatforms(rateLimit int) map[adapters.Platform]adapters.AdapterConfig {
	platforms := make(map[adapters.Platform]adapters.AdapterConfig)
	for _, p := range adapters.AllPlatforms {
		prefix := strings.ToUpper(string(p))
		apiKey := getEnv(prefix+"_API_KEY", "")
		if apiKey == "" {
			continue
		}
		platforms[p] = adapters.AdapterConfig{
			APIKey:    apiKey,
			Model:     getEnv(prefix+"_MODEL_ID", ""),
			BaseURL:   getEnv(prefix+"_BASE_URL", ""),
			RateLimit: rateLimit,
		}
	}
	return platforms
}

// JudgeConfig 解析评审LLM的落点平台
// 未显式指定时按平台优先级从已配置的平台里挑第一个
func (c *Config) JudgeConfig() (adapters.Platform, adapters.AdapterConfig, bool) {
	if c.JudgePlatform != "" {
		p, ok := adapters.NormalizePlatform(c.JudgePlatform)
		if !ok {
			log.Printf("⚠️ [配置] 未知的评审平台: %s", c.JudgePlatform)
			return "", adapters.AdapterConfig{}, false
		}
		cfg, exists := c.Platforms[p]
		if c.JudgeAPIKey != "" {
			cfg.APIKey = c.JudgeAPIKey
		} else if !exists {
			return "", adapters.AdapterConfig{}, false
		}
		if c.JudgeModel != "" {
			cfg.Model = c.JudgeModel
		}
		cfg.RateLimit = c.AdapterRateLimit
		return p, cfg, true
	}

	// 按固定优先级回退
	for _, p := range adapters.AllPlatforms {
		if cfg, exists := c.Platforms[p]; exists {
			return p, cfg, true
		}
	}
	return "", adapters.AdapterConfig{}, false
}

// String 返回配置的字符串表示（密钥做掩码处理）
func (c *Config) String() string {
	names := make([]string, 0, len(c.Platforms))
	for p := range c.Platforms {
		names = append(names, string(p))
	}
	return fmt.Sprintf(
		"服务名称: %s, 端口: %d, 调度模式: %s, 并发上限: %d, 单次超时: %v, "+
			"降级策略: %v, 熔断阈值: %d, 已配置平台: %d个 %v",
		c.ServiceName, c.Port, c.DispatchMode, c.MaxConcurrency, c.PerCallTimeout,
		c.DegradeOnMissingModel, c.BreakerMaxFailures, len(names), names,
	)
}

// 从环境变量获取字符串值
func getEnv(key, defaultValue string) string {
	if value, exists := os.LookupEnv(key); exists {
		return value
	}
	return defaultValue
}

// 从环境变量获取整数值
func getEnvAsInt(key string, defaultValue int) int {
	strValue := getEnv(key, "")
	if value, err := strconv.Atoi(strValue); err == nil {
		return value
	}
	return defaultValue
}

// 从环境变量获取布尔值
func getEnvAsBool(key string, defaultValue bool) bool {
	strValue := getEnv(key, "")
	if value, err := strconv.ParseBool(strValue); err == nil {
		return value
	}
	return defaultValue
}

// 从环境变量获取时间间隔
func getEnvAsDuration(key string, defaultValue time.Duration) time.Duration {
	strValue := getEnv(key, "")
	if value, err := time.ParseDuration(strValue); err == nil {
		return value
	}
	return defaultValue
}
