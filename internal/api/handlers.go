package api

import (
	"log"
	"net/http"
	"strconv"
	"strings"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"

	"github.com/brandlens/service/internal/adapters"
	"github.com/brandlens/service/internal/breaker"
	"github.com/brandlens/service/internal/engine"
	"github.com/brandlens/service/internal/judge"
	"github.com/brandlens/service/internal/models"
)

// =============================================================================
// 诊断API - 小程序端的提交/轮询/重试入口
// =============================================================================

// 单次诊断的品牌数上限，防止一次请求展开过多任务
const maxBrands = 5

// defaultQuestions 未传自定义问题时的默认题库
var defaultQuestions = []string{
	"请介绍一下这个品牌的主要产品和服务",
	"这个品牌在行业内的口碑如何？",
	"推荐几个该领域值得关注的品牌",
}

// Handler 诊断API处理器
type Handler struct {
	orch     *engine.Orchestrator
	factory  *adapters.Factory
	breakers *breaker.Registry
	judge    *judge.Client
	respLog  *adapters.ResponseLog

	// true时跳过未配置的平台继续执行，false时直接拒绝请求
	degradeOnMissing bool
}

// NewHandler 创建API处理器
func NewHandler(orch *engine.Orchestrator, factory *adapters.Factory, breakers *breaker.Registry, judgeClient *judge.Client, degradeOnMissing bool) *Handler {
	return &Handler{
		orch:             orch,
		factory:          factory,
		breakers:         breakers,
		judge:            judgeClient,
		degradeOnMissing: degradeOnMissing,
	}
}

// SetResponseLog 挂载原始响应日志，供管理端查询
func (h *Handler) SetResponseLog(respLog *adapters.ResponseLog) {
	h.respLog = respLog
}

// RegisterRoutes 注册全部路由
func (h *Handler) RegisterRoutes(router *gin.Engine) {
	diagnosis := router.Group("/api/diagnosis")
	{
		diagnosis.POST("/submit", h.HandleSubmit)
		diagnosis.GET("/progress", h.HandleProgress)
		diagnosis.POST("/retry", h.HandleRetry)
	}

	router.GET("/api/platforms", h.HandlePlatforms)

	admin := router.Group("/api/admin")
	{
		admin.GET("/breakers", h.HandleBreakers)
		admin.POST("/breakers/reset", h.HandleBreakerReset)
		admin.GET("/responses", h.HandleResponseTail)
	}

	router.GET("/health", h.HandleHealth)

	log.Println("诊断路由已注册:")
	log.Println("  POST /api/diagnosis/submit - 提交诊断任务")
	log.Println("  GET  /api/diagnosis/progress - 查询执行进度")
	log.Println("  POST /api/diagnosis/retry - 重试单个维度")
	log.Println("  GET  /api/platforms - 查询平台可用性")
	log.Println("  GET  /api/admin/breakers - 查询熔断器状态")
	log.Println("  POST /api/admin/breakers/reset - 重置熔断器")
	log.Println("  GET  /api/admin/responses - 查询最近的原始响应")
	log.Println("  GET  /health - 健康检查")
}

// HandleSubmit 提交诊断任务
func (h *Handler) HandleSubmit(c *gin.Context) {
	var req models.SubmitRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		log.Printf("❌ [诊断API] 请求参数错误: %v", err)
		c.JSON(http.StatusBadRequest, gin.H{
			"status": "error",
			"error":  "请求参数错误: " + err.Error(),
			"code":   http.StatusBadRequest,
		})
		return
	}

	brands := normalizeBrands(req.BrandList)
	if len(brands) == 0 {
		c.JSON(http.StatusBadRequest, gin.H{
			"status": "error",
			"error":  "brand_list不能为空",
			"code":   http.StatusBadRequest,
		})
		return
	}
	if len(brands) > maxBrands {
		c.JSON(http.StatusBadRequest, gin.H{
			"status": "error",
			"error":  "品牌数量超过上限",
			"code":   http.StatusBadRequest,
			"limit":  maxBrands,
		})
		return
	}

	selected := req.CheckedModels()
	if len(selected) == 0 {
		c.JSON(http.StatusBadRequest, gin.H{
			"status": "error",
			"error":  "至少需要勾选一个模型",
			"code":   http.StatusBadRequest,
		})
		return
	}

	platforms, rejected := h.resolvePlatforms(selected)
	if len(rejected) > 0 && !h.degradeOnMissing {
		c.JSON(http.StatusBadRequest, gin.H{
			"status":           "error",
			"error":            "部分模型不可用",
			"code":             http.StatusBadRequest,
			"unavailable":      rejected,
			"available_models": h.factory.AvailablePlatforms(),
		})
		return
	}
	if len(platforms) == 0 {
		c.JSON(http.StatusServiceUnavailable, gin.H{
			"status":           "error",
			"error":            "没有可用的模型平台",
			"code":             http.StatusServiceUnavailable,
			"unavailable":      rejected,
			"available_models": h.factory.AvailablePlatforms(),
		})
		return
	}
	if len(rejected) > 0 {
		log.Printf("⚠️ [诊断API] 降级执行，跳过不可用平台: %v", rejected)
	}

	questions := req.Questions()
	if len(questions) == 0 {
		questions = defaultQuestions
	}

	runReq := &engine.RunRequest{
		MainBrand:   brands[0],
		Competitors: brands[1:],
		Models:      platforms,
		Questions:   questions,
	}

	total := len(brands) * len(platforms) * len(questions)
	executionID := uuid.New().String()
	h.orch.Store().Create(executionID, total, h.judge.Enabled())

	log.Printf("🚀 [诊断API] 提交诊断任务: id=%s 品牌=%v 平台=%v 问题数=%d 总任务数=%d",
		executionID, brands, platforms, len(questions), total)

	go h.orch.Run(executionID, runReq)

	c.JSON(http.StatusOK, gin.H{
		"status":       "success",
		"execution_id": executionID,
		"total":        total,
		"skipped":      rejected,
		"message":      "诊断任务已提交",
	})
}

// HandleProgress 查询执行进度，小程序端轮询入口
func (h *Handler) HandleProgress(c *gin.Context) {
	executionID := c.Query("executionId")
	if executionID == "" {
		executionID = c.Query("execution_id")
	}
	if executionID == "" {
		c.JSON(http.StatusBadRequest, gin.H{
			"status":  "error",
			"message": "executionId不能为空",
		})
		return
	}

	snapshot, ok := h.orch.Store().Snapshot(executionID)
	if !ok {
		c.JSON(http.StatusNotFound, gin.H{
			"status":  "error",
			"message": "执行记录不存在: " + executionID,
		})
		return
	}

	c.JSON(http.StatusOK, snapshot)
}

// HandleRetry 重试单个维度
// 按 品牌|模型|问题 定位原单元格，成功后原位替换，不会重复计数
func (h *Handler) HandleRetry(c *gin.Context) {
	var req models.RetryRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{
			"status":  "error",
			"message": "请求参数错误: " + err.Error(),
		})
		return
	}

	if req.ExecutionID == "" || req.Source == "" {
		c.JSON(http.StatusBadRequest, gin.H{
			"status":  "error",
			"message": "executionId和source不能为空",
		})
		return
	}

	snapshot, ok := h.orch.Store().Snapshot(req.ExecutionID)
	if !ok {
		c.JSON(http.StatusNotFound, gin.H{
			"status":  "error",
			"message": "执行记录不存在: " + req.ExecutionID,
		})
		return
	}

	task, found := locateCell(snapshot.Results, &req)
	if !found {
		c.JSON(http.StatusNotFound, gin.H{
			"status":  "error",
			"message": "未找到匹配的诊断单元格",
		})
		return
	}

	log.Printf("🔄 [诊断API] 重试单元格: id=%s brand=%s model=%s", req.ExecutionID, task.Brand, task.AIModel)

	result, err := h.orch.RetryCell(req.ExecutionID, task)
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{
			"status":  "error",
			"message": "重试失败: " + err.Error(),
		})
		return
	}

	cellStatus := "failed"
	if result.Success {
		cellStatus = "success"
	}
	c.JSON(http.StatusOK, gin.H{
		"status":         cellStatus,
		"dimension_name": req.DimensionName,
		"source":         req.Source,
		"score":          judgeAverage(result.Judge),
		"data":           result,
		"message":        "重试完成",
	})
}

// judgeAverage 五维评分的算术平均，未评分时为0
func judgeAverage(j *models.JudgeResult) int {
	if j == nil {
		return 0
	}
	return (j.AccuracyScore + j.CompletenessScore + j.SentimentScore + j.PurityScore + j.ConsistencyScore) / 5
}

// locateCell 在已有结果里定位重试目标
// source匹配模型或平台，brand/question为空时取第一个匹配项
func locateCell(results []models.RawCellResult, req *models.RetryRequest) (models.TestCase, bool) {
	source := req.Source
	if p, ok := adapters.NormalizePlatform(source); ok {
		source = string(p)
	}

	for _, r := range results {
		if r.Model != source && r.Platform != source {
			continue
		}
		if req.Brand != "" && r.Brand != req.Brand {
			continue
		}
		if req.Question != "" && r.Question != req.Question {
			continue
		}
		return models.TestCase{Brand: r.Brand, AIModel: r.Model, Question: r.Question}, true
	}
	return models.TestCase{}, false
}

// HandlePlatforms 查询平台可用性
func (h *Handler) HandlePlatforms(c *gin.Context) {
	type platformInfo struct {
		Name      string `json:"name"`
		Available bool   `json:"available"`
	}

	infos := make([]platformInfo, 0, len(adapters.AllPlatforms))
	for _, p := range adapters.AllPlatforms {
		infos = append(infos, platformInfo{
			Name:      string(p),
			Available: h.factory.IsAvailable(string(p)),
		})
	}

	c.JSON(http.StatusOK, gin.H{
		"status":    "success",
		"platforms": infos,
	})
}

// HandleBreakers 查询全部熔断器状态
func (h *Handler) HandleBreakers(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{
		"status":   "success",
		"breakers": h.breakers.Snapshot(),
	})
}

// HandleBreakerReset 重置熔断器；不带参数时全部重置
func (h *Handler) HandleBreakerReset(c *gin.Context) {
	platform := c.Query("platform")
	model := c.Query("model")

	if platform == "" {
		h.breakers.ResetAll()
		log.Printf("🔌 [诊断API] 已重置全部熔断器")
		c.JSON(http.StatusOK, gin.H{
			"status":  "success",
			"message": "已重置全部熔断器",
		})
		return
	}

	h.breakers.Reset(platform, model)
	log.Printf("🔌 [诊断API] 已重置熔断器: %s/%s", platform, model)
	c.JSON(http.StatusOK, gin.H{
		"status":  "success",
		"message": "已重置熔断器: " + platform + "/" + model,
	})
}

// HandleResponseTail 查询最近的原始响应日志
func (h *Handler) HandleResponseTail(c *gin.Context) {
	if h.respLog == nil {
		c.JSON(http.StatusServiceUnavailable, gin.H{
			"status":  "error",
			"message": "响应日志未启用",
		})
		return
	}

	n := 20
	if raw := c.Query("n"); raw != "" {
		if parsed, err := strconv.Atoi(raw); err == nil && parsed > 0 {
			n = parsed
		}
	}

	entries, err := h.respLog.Tail(n)
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{
			"status":  "error",
			"message": "读取响应日志失败: " + err.Error(),
		})
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"status":  "success",
		"entries": entries,
	})
}

// HandleHealth 健康检查
func (h *Handler) HandleHealth(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{
		"status":        "ok",
		"service":       "brandlens",
		"judge_enabled": h.judge.Enabled(),
		"executions":    h.orch.Store().Count(),
		"platforms":     len(h.factory.AvailablePlatforms()),
	})
}

// normalizeBrands 去掉空白和重复的品牌名，保持原始顺序
func normalizeBrands(raw []string) []string {
	seen := make(map[string]bool, len(raw))
	brands := make([]string, 0, len(raw))
	for _, b := range raw {
		b = strings.TrimSpace(b)
		if b == "" || seen[b] {
			continue
		}
		seen[b] = true
		brands = append(brands, b)
	}
	return brands
}

// resolvePlatforms 把勾选的模型名解析为可用平台，返回可用列表和被拒列表
func (h *Handler) resolvePlatforms(selected []string) (available, rejected []string) {
	seen := make(map[adapters.Platform]bool, len(selected))
	for _, name := range selected {
		p, ok := adapters.NormalizePlatform(name)
		if !ok {
			rejected = append(rejected, name)
			continue
		}
		if seen[p] {
			continue
		}
		if !h.factory.IsAvailable(string(p)) {
			rejected = append(rejected, name)
			continue
		}
		seen[p] = true
		available = append(available, string(p))
	}
	return available, rejected
}
