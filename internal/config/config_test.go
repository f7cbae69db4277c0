package config

import (
	"strings"
	"testing"
	"time"

	"github.com/brandlens/service/internal/adapters"
)

func TestLoadDefaults(t *testing.T) {
	cfg := Load()

	if cfg.ServiceName != "brandlens" {
		t.Errorf("默认服务名错误: %s", cfg.ServiceName)
	}
	if cfg.DispatchMode != "concurrent" {
		t.Errorf("默认调度模式应为concurrent: %s", cfg.DispatchMode)
	}
	if cfg.MaxConcurrency != 5 {
		t.Errorf("默认并发上限应为5: %d", cfg.MaxConcurrency)
	}
	if !cfg.DegradeOnMissingModel {
		t.Error("默认应启用降级策略")
	}
}

func TestLoadEnvOverrides(t *testing.T) {
	t.Setenv("DISPATCH_MODE", "sequential")
	t.Setenv("MAX_CONCURRENCY", "10")
	t.Setenv("PER_CALL_TIMEOUT", "90s")
	t.Setenv("DEGRADE_ON_MISSING_MODEL", "false")

	cfg := Load()
	if cfg.DispatchMode != "sequential" {
		t.Errorf("调度模式覆盖失败: %s", cfg.DispatchMode)
	}
	if cfg.MaxConcurrency != 10 {
		t.Errorf("并发上限覆盖失败: %d", cfg.MaxConcurrency)
	}
	if cfg.PerCallTimeout != 90*time.Second {
		t.Errorf("单次超时覆盖失败: %v", cfg.PerCallTimeout)
	}
	if cfg.DegradeOnMissingModel {
		t.Error("降级开关覆盖失败")
	}
}

func TestLoadPlatformsFromEnv(t *testing.T) {
	t.Setenv("DEEPSEEK_API_KEY", "sk-test")
	t.Setenv("DEEPSEEK_MODEL_ID", "deepseek-reasoner")
	t.Setenv("QWEN_API_KEY", "sk-qwen")

	cfg := Load()

	ds, exists := cfg.Platforms[adapters.PlatformDeepSeek]
	if !exists {
		t.Fatal("配置了密钥的平台应被加载")
	}
	if ds.APIKey != "sk-test" || ds.Model != "deepseek-reasoner" {
		t.Errorf("平台配置错误: %+v", ds)
	}

	if _, exists := cfg.Platforms[adapters.PlatformQwen]; !exists {
		t.Error("qwen应被加载")
	}
	if _, exists := cfg.Platforms[adapters.PlatformGemini]; exists {
		t.Error("未配置密钥的平台不应出现")
	}
}

func TestJudgeConfigExplicitPlatform(t *testing.T) {
	t.Setenv("DEEPSEEK_API_KEY", "sk-diag")
	t.Setenv("JUDGE_LLM_PLATFORM", "deepseek")
	t.Setenv("JUDGE_LLM_MODEL", "deepseek-reasoner")
	t.Setenv("JUDGE_LLM_API_KEY", "sk-judge")

	cfg := Load()
	platform, judgeCfg, ok := cfg.JudgeConfig()
	if !ok {
		t.Fatal("显式评审配置应解析成功")
	}
	if platform != adapters.PlatformDeepSeek {
		t.Errorf("评审平台错误: %s", platform)
	}
	if judgeCfg.APIKey != "sk-judge" {
		t.Errorf("评审密钥应优先使用JUDGE_LLM_API_KEY: %s", judgeCfg.APIKey)
	}
	if judgeCfg.Model != "deepseek-reasoner" {
		t.Errorf("评审模型错误: %s", judgeCfg.Model)
	}
}

func TestJudgeConfigFallbackPriority(t *testing.T) {
	// 未显式指定时按优先级取第一个已配置平台
	t.Setenv("ZHIPU_API_KEY", "sk-zhipu")
	t.Setenv("GEMINI_API_KEY", "sk-gemini")

	cfg := Load()
	platform, _, ok := cfg.JudgeConfig()
	if !ok {
		t.Fatal("有已配置平台时回退应成功")
	}
	// zhipu在优先级序列里排在gemini前面
	if platform != adapters.PlatformZhipu {
		t.Errorf("回退应选择优先级更高的zhipu，实际为 %s", platform)
	}
}

func TestJudgeConfigNoPlatform(t *testing.T) {
	cfg := Load()
	cfg.Platforms = nil
	cfg.JudgePlatform = ""
	cfg.JudgeAPIKey = ""

	if _, _, ok := cfg.JudgeConfig(); ok {
		t.Error("无任何平台时评审配置应失败")
	}
}

func TestJudgeConfigUnknownPlatform(t *testing.T) {
	cfg := &Config{JudgePlatform: "不认识的平台", JudgeAPIKey: "sk"}
	if _, _, ok := cfg.JudgeConfig(); ok {
		t.Error("未知评审平台应失败")
	}
}

func TestConfigStringMasksNothing(t *testing.T) {
	t.Setenv("DEEPSEEK_API_KEY", "sk-secret-value")
	cfg := Load()

	// 配置摘要不能泄漏密钥
	if strings.Contains(cfg.String(), "sk-secret-value") {
		t.Error("配置摘要不应包含API密钥")
	}
}
