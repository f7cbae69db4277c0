package main

import (
	"context"
	"fmt"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/gin-contrib/cors"
	"github.com/gin-gonic/gin"

	"github.com/brandlens/service/internal/adapters"
	"github.com/brandlens/service/internal/aggregator"
	"github.com/brandlens/service/internal/api"
	"github.com/brandlens/service/internal/breaker"
	"github.com/brandlens/service/internal/config"
	"github.com/brandlens/service/internal/engine"
	"github.com/brandlens/service/internal/judge"
	"github.com/brandlens/service/internal/scoring"
	"github.com/brandlens/service/internal/utils"
)

func main() {
	utils.InitTraceIDSystem()

	cfg := config.Load()
	log.Printf("🚀 BrandLens 品牌感知诊断服务启动中...")
	log.Printf("配置: %s", cfg.String())

	gin.SetMode(cfg.GinMode)
	router := gin.Default()
	router.Use(utils.TraceIDMiddleware())

	config_cors := cors.DefaultConfig()
	config_cors.AllowAllOrigins = true
	config_cors.AllowMethods = []string{"GET", "POST", "PUT", "PATCH", "DELETE", "HEAD", "OPTIONS"}
	config_cors.AllowHeaders = []string{"Origin", "Content-Length", "Content-Type", "Authorization", "Accept", "Cache-Control", "X-Requested-With", "X-Trace-ID"}
	config_cors.AllowCredentials = true
	config_cors.ExposeHeaders = []string{"Content-Length", "X-Trace-ID"}
	config_cors.MaxAge = 12 * time.Hour
	router.Use(cors.New(config_cors))

	// 平台适配器工厂
	factory := adapters.NewFactory()
	for platform, platformCfg := range cfg.Platforms {
		pc := platformCfg
		factory.SetConfig(platform, &pc)
		log.Printf("🔌 [平台] 已配置: %s", platform)
	}
	if len(cfg.Platforms) == 0 {
		log.Printf("⚠️ 未配置任何平台API密钥，所有诊断请求都会被拒绝")
	}

	// 原始响应日志
	var respLog *adapters.ResponseLog
	if cfg.ResponseLogPath != "" {
		var err error
		respLog, err = adapters.NewResponseLog(cfg.ResponseLogPath)
		if err != nil {
			log.Printf("⚠️ 响应日志初始化失败: %v", err)
		} else {
			factory.SetResponseLog(respLog)
			log.Printf("✅ 响应日志已启用: %s", cfg.ResponseLogPath)
		}
	}

	// 熔断器注册表
	breakers := breaker.NewRegistry(&breaker.Config{
		MaxFailures:  cfg.BreakerMaxFailures,
		ResetTimeout: cfg.BreakerResetTimeout,
	})

	// 评审LLM：未配置时整体降级为不评审
	judgeClient := buildJudgeClient(cfg, factory)

	// 评分引擎使用默认权重
	scorer, err := scoring.NewEngine(scoring.DefaultWeights())
	if err != nil {
		log.Fatalf("❌ 评分引擎初始化失败: %v", err)
	}

	store := engine.NewStore()
	agg := aggregator.New(scorer)

	opts := engine.DefaultOptions()
	opts.DispatchMode = cfg.DispatchMode
	opts.MaxConcurrency = cfg.MaxConcurrency
	opts.PerCallTimeout = cfg.PerCallTimeout
	opts.BaseTimeout = cfg.BaseTimeout
	opts.PerTaskTimeout = cfg.PerTaskTimeout

	orch := engine.NewOrchestrator(factory, breakers, judgeClient, store, agg, opts)

	// WebSocket进度推送
	hub := api.NewProgressHub()
	orch.SetProgressSink(hub)
	router.GET("/ws/progress", hub.HandleProgressWS)

	// REST路由
	handler := api.NewHandler(orch, factory, breakers, judgeClient, cfg.DegradeOnMissingModel)
	if respLog != nil {
		handler.SetResponseLog(respLog)
	}
	handler.RegisterRoutes(router)

	addr := fmt.Sprintf("%s:%d", cfg.Host, cfg.Port)
	srv := &http.Server{
		Addr:         addr,
		Handler:      router,
		ReadTimeout:  2 * time.Minute,
		WriteTimeout: 2 * time.Minute, // LLM批次可能跑很久，轮询接口本身很快
		IdleTimeout:  5 * time.Minute,
	}

	// 优雅关闭处理
	go func() {
		sigint := make(chan os.Signal, 1)
		signal.Notify(sigint, os.Interrupt, syscall.SIGTERM)
		<-sigint

		log.Println("正在关闭服务器...")

		ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
		defer cancel()

		if err := srv.Shutdown(ctx); err != nil {
			log.Printf("服务器关闭时出错: %v", err)
		}
		log.Println("服务器已关闭")
	}()

	log.Printf("BrandLens 诊断服务启动在 %s", addr)
	log.Printf("健康检查: http://%s/health", addr)
	log.Printf("提交诊断: http://%s/api/diagnosis/submit", addr)
	log.Printf("进度查询: http://%s/api/diagnosis/progress", addr)
	log.Printf("进度推送: ws://%s/ws/progress", addr)

	if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
		log.Fatalf("HTTP服务器启动失败: %v", err)
	}
}

// buildJudgeClient 解析评审平台并创建评审客户端
func buildJudgeClient(cfg *config.Config, factory *adapters.Factory) *judge.Client {
	platform, judgeCfg, ok := cfg.JudgeConfig()
	if !ok {
		log.Printf("⚠️ 评审LLM未配置，诊断将跳过评分环节")
		return judge.NewClient(nil, cfg.JudgeTimeout)
	}

	// 评审配置可能覆盖了密钥或模型，独立创建避免污染诊断用的适配器
	adapter, err := factory.CreateDetached(platform, &judgeCfg)
	if err != nil {
		log.Printf("⚠️ 评审LLM创建失败(%s): %v，诊断将跳过评分环节", platform, err)
		return judge.NewClient(nil, cfg.JudgeTimeout)
	}

	log.Printf("✅ 评审LLM就绪: platform=%s model=%s", platform, adapter.Model())
	return judge.NewClient(adapter, cfg.JudgeTimeout)
}
