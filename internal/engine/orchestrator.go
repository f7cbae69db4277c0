package engine

import (
	"context"
	"log"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/brandlens/service/internal/adapters"
	"github.com/brandlens/service/internal/aggregator"
	"github.com/brandlens/service/internal/breaker"
	"github.com/brandlens/service/internal/judge"
	"github.com/brandlens/service/internal/models"
)

// =============================================================================
// 执行编排器 - N×M引擎
// 展开 品牌×问题×模型 矩阵，经熔断器门控派发到各平台适配器，
// 结果流式落入执行存储，最终聚合成品牌健康报告
// =============================================================================

// 派发模式
const (
	DispatchSequential = "sequential"
	DispatchConcurrent = "concurrent"
)

// 熔断跳过的单元格在结果里的错误标记
const errTypeCircuitOpen = "circuit_open"

// Options 编排器配置
type Options struct {
	DispatchMode    string        // sequential | concurrent
	MaxConcurrency  int           // concurrent模式的最大并发数
	PerCallTimeout  time.Duration // 单次平台调用超时
	BaseTimeout     time.Duration // 批次超时的基础值
	PerTaskTimeout  time.Duration // 批次超时的单任务增量
	MinBatchTimeout time.Duration
	MaxBatchTimeout time.Duration
}

// DefaultOptions 默认配置
func DefaultOptions() *Options {
	return &Options{
		DispatchMode:    DispatchConcurrent,
		MaxConcurrency:  5,
		PerCallTimeout:  45 * time.Second,
		BaseTimeout:     30 * time.Second,
		PerTaskTimeout:  20 * time.Second,
		MinBatchTimeout: 35 * time.Second,
		MaxBatchTimeout: 1200 * time.Second,
	}
}

// RunRequest 一次诊断运行的输入
type RunRequest struct {
	MainBrand   string
	Competitors []string
	Models      []string // 已通过可用性校验的模型名
	Questions   []string
}

// ProgressSink 进度推送出口（WebSocket推送等），可选
type ProgressSink interface {
	Publish(snapshot *models.ExecutionSnapshot)
}

// Orchestrator 执行编排器
type Orchestrator struct {
	factory  *adapters.Factory
	breakers *breaker.Registry
	judge    *judge.Client
	store    *Store
	agg      *aggregator.Aggregator
	opts     *Options
	sink     ProgressSink
}

// NewOrchestrator 创建编排器
func NewOrchestrator(factory *adapters.Factory, breakers *breaker.Registry, judgeClient *judge.Client, store *Store, agg *aggregator.Aggregator, opts *Options) *Orchestrator {
	if opts == nil {
		opts = DefaultOptions()
	}
	return &Orchestrator{
		factory:  factory,
		breakers: breakers,
		judge:    judgeClient,
		store:    store,
		agg:      agg,
		opts:     opts,
	}
}

// SetProgressSink 挂接进度推送出口
func (o *Orchestrator) SetProgressSink(sink ProgressSink) {
	o.sink = sink
}

// Store 暴露执行存储给API层
func (o *Orchestrator) Store() *Store {
	return o.store
}

// ExpandTasks 展开任务矩阵
// 请求数 = (1+竞品数) × 问题数 × 模型数，竞品只用于生成对比数据
func (o *Orchestrator) ExpandTasks(req *RunRequest) []models.TestCase {
	brands := append([]string{req.MainBrand}, req.Competitors...)

	tasks := make([]models.TestCase, 0, len(brands)*len(req.Questions)*len(req.Models))
	for _, brand := range brands {
		for _, question := range req.Questions {
			for _, model := range req.Models {
				tasks = append(tasks, models.TestCase{
					Brand:    brand,
					AIModel:  model,
					Question: question,
				})
			}
		}
	}
	return tasks
}

// BatchTimeout 批次全局超时
// 随任务总数和并发度伸缩，不是一个与负载无关的固定常量
func (o *Orchestrator) BatchTimeout(totalTasks int) time.Duration {
	workers := 1
	if o.opts.DispatchMode == DispatchConcurrent && o.opts.MaxConcurrency > 1 {
		workers = o.opts.MaxConcurrency
	}

	waves := (totalTasks + workers - 1) / workers
	timeout := o.opts.BaseTimeout + time.Duration(waves)*o.opts.PerTaskTimeout

	if timeout < o.opts.MinBatchTimeout {
		timeout = o.opts.MinBatchTimeout
	}
	if timeout > o.opts.MaxBatchTimeout {
		timeout = o.opts.MaxBatchTimeout
	}
	return timeout
}

// Run 执行一次完整的诊断运行（阻塞，调用方负责go出去）
// 单元格失败绝不中断批次；全局超时后保留已有的部分结果出降级报告
func (o *Orchestrator) Run(executionID string, req *RunRequest) {
	tasks := o.ExpandTasks(req)
	total := len(tasks)
	batchTimeout := o.BatchTimeout(total)

	log.Printf("🚀 [N×M引擎] 开始执行诊断: id=%s 品牌=%d 问题=%d 模型=%d 总任务=%d 模式=%s 超时=%v",
		executionID, 1+len(req.Competitors), len(req.Questions), len(req.Models),
		total, o.opts.DispatchMode, batchTimeout)

	o.store.Update(executionID, func(r *models.ExecutionRecord) {
		r.Status = models.StatusProcessing
		r.Stage = models.StageAIFetching
	})
	o.publish(executionID)

	// 派发在独立goroutine里跑，这里只等"全部落定"或"全局超时"，先到为准。
	// 超时后在途调用随它跑完各自的单次超时，迟到结果被终态记录直接丢弃
	// （读超时语义，不做工作取消）
	done := make(chan struct{})
	go func() {
		defer close(done)
		o.dispatch(executionID, tasks)
	}()

	timedOut := false
	select {
	case <-done:
	case <-time.After(batchTimeout):
		timedOut = true
		log.Printf("⏰ [N×M引擎] 批次全局超时: id=%s 超时=%v", executionID, batchTimeout)
	}

	o.finalize(executionID, req, timedOut)
}

// dispatch 按配置的模式派发全部单元格
func (o *Orchestrator) dispatch(executionID string, tasks []models.TestCase) {
	if o.opts.DispatchMode == DispatchSequential {
		for _, task := range tasks {
			o.runCell(executionID, task)
		}
		return
	}

	var g errgroup.Group
	g.SetLimit(o.opts.MaxConcurrency)
	for _, task := range tasks {
		task := task
		g.Go(func() error {
			o.runCell(executionID, task)
			return nil
		})
	}
	g.Wait()
}

// runCell 执行一个单元格：熔断门控 → 适配器调用 → 结构化提取 → 评审 → 落库
func (o *Orchestrator) runCell(executionID string, task models.TestCase) {
	result := o.executeCell(task)

	if err := o.store.AppendResult(executionID, result); err != nil {
		log.Printf("⚠️ [N×M引擎] 结果落库失败: id=%s cell=%s err=%v", executionID, result.CellKey(), err)
		return
	}
	o.publish(executionID)
}

// executeCell 执行单元格并构造规范形状的结果（不落库）
func (o *Orchestrator) executeCell(task models.TestCase) models.RawCellResult {
	result := models.RawCellResult{
		Brand:       task.Brand,
		Model:       task.AIModel,
		Question:    task.Question,
		Sentiment:   models.SentimentNeutral,
		CompletedAt: time.Now(),
	}

	adapter, err := o.factory.Create(task.AIModel)
	if err != nil {
		result.ErrorType = string(adapters.ErrUnknown)
		result.ErrorMessage = "适配器创建失败: " + err.Error()
		return result
	}

	platform := string(adapter.Platform())
	modelName := adapter.Model()
	result.Platform = platform

	// 熔断器打开时直接跳过，不浪费批次超时预算
	if !o.breakers.Allow(platform, modelName) {
		log.Printf("🔌 [N×M引擎] 熔断器打开，跳过调用: platform=%s model=%s brand=%s",
			platform, modelName, task.Brand)
		result.ErrorType = errTypeCircuitOpen
		result.ErrorMessage = "熔断器打开，已跳过调用"
		return result
	}

	prompt := buildDiagnosisPrompt(task.Brand, task.Question)
	resp := adapter.Chat(context.Background(), &adapters.ChatRequest{
		Prompt:      prompt,
		Temperature: 0.7,
		MaxTokens:   2048,
		Timeout:     o.opts.PerCallTimeout,
	})

	result.Latency = resp.Latency
	result.TokensUsed = resp.TokensUsed
	result.CompletedAt = time.Now()

	if !resp.Success {
		o.breakers.RecordFailure(platform, modelName)
		result.ErrorType = string(resp.ErrorType)
		result.ErrorMessage = resp.ErrorMessage
		return result
	}

	o.breakers.RecordSuccess(platform, modelName)
	result.Success = true
	result.Content = resp.Content
	result.MentionRank = extractMentionRank(resp.Content, task.Brand)
	result.Sentiment = extractSentiment(resp.Content)

	if o.judge.Enabled() {
		judgeCtx, cancel := context.WithTimeout(context.Background(), o.opts.PerCallTimeout)
		result.Judge = o.judge.Evaluate(judgeCtx, task.Brand, task.Question, resp.Content)
		cancel()
	}

	return result
}

// RetryCell 重试单个单元格，结果替换原有条目而不是重复计数
// 人工重试是显式的恢复信号，先清掉该平台的熔断状态再调用，
// 否则打开的熔断器会让重试原地返回circuit_open
func (o *Orchestrator) RetryCell(executionID string, task models.TestCase) (*models.RawCellResult, error) {
	if adapter, err := o.factory.Create(task.AIModel); err == nil {
		o.breakers.Reset(string(adapter.Platform()), adapter.Model())
	}

	result := o.executeCell(task)

	// 运行中的记录走常规入口；已终态的记录只做原地替换
	snapshot, ok := o.store.Snapshot(executionID)
	if !ok {
		return nil, errExecutionNotFound(executionID)
	}

	if snapshot.Status.Terminal() {
		if err := o.store.ReplaceResult(executionID, result); err != nil {
			return nil, err
		}
	} else {
		if err := o.store.AppendResult(executionID, result); err != nil {
			return nil, err
		}
	}
	o.publish(executionID)
	return &result, nil
}

// finalize 收尾：聚合报告并打终态
func (o *Orchestrator) finalize(executionID string, req *RunRequest, timedOut bool) {
	snapshot, ok := o.store.Snapshot(executionID)
	if !ok {
		log.Printf("❌ [N×M引擎] 收尾时执行记录丢失: id=%s", executionID)
		return
	}

	o.store.Update(executionID, func(r *models.ExecutionRecord) {
		r.Stage = models.StageRankingAnalysis
	})
	o.publish(executionID)

	brands := append([]string{req.MainBrand}, req.Competitors...)
	report := o.agg.BuildReport(brands, snapshot.Results, o.judge.Enabled())

	o.store.Update(executionID, func(r *models.ExecutionRecord) {
		r.Stage = models.StageSourceTracing
	})

	// 报告挂载和终态迁移在同一次Update里完成
	o.store.Update(executionID, func(r *models.ExecutionRecord) {
		r.Report = report
		if timedOut {
			r.Status = models.StatusTimeout
			r.Stage = models.StageFailed
			r.Error = "批次执行超时，报告基于已完成的部分结果"
		} else {
			r.Status = models.StatusCompleted
			r.Stage = models.StageCompleted
			r.Progress = 100
		}
	})
	o.publish(executionID)

	log.Printf("✅ [N×M引擎] 诊断完成: id=%s 完成=%d/%d 超时=%v",
		executionID, snapshot.Completed, snapshot.Total, timedOut)
}

// publish 推送最新快照
func (o *Orchestrator) publish(executionID string) {
	if o.sink == nil {
		return
	}
	if snapshot, ok := o.store.Snapshot(executionID); ok {
		o.sink.Publish(snapshot)
	}
}
