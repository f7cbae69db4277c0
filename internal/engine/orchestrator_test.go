package engine

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/brandlens/service/internal/adapters"
	"github.com/brandlens/service/internal/aggregator"
	"github.com/brandlens/service/internal/breaker"
	"github.com/brandlens/service/internal/judge"
	"github.com/brandlens/service/internal/models"
	"github.com/brandlens/service/internal/scoring"
)

// fakeAdapter 可编程的平台适配器替身
type fakeAdapter struct {
	platform adapters.Platform
	reply    string
	fail     bool
	failType adapters.ErrorType

	mu    sync.Mutex
	calls int
}

func (f *fakeAdapter) Platform() adapters.Platform { return f.platform }
func (f *fakeAdapter) Model() string               { return string(f.platform) + "-test" }

func (f *fakeAdapter) Chat(ctx context.Context, req *adapters.ChatRequest) *adapters.PlatformResponse {
	f.mu.Lock()
	f.calls++
	f.mu.Unlock()

	if f.fail {
		return &adapters.PlatformResponse{
			Platform:     f.platform,
			Success:      false,
			ErrorType:    f.failType,
			ErrorMessage: "模拟失败",
		}
	}
	return &adapters.PlatformResponse{
		Platform:   f.platform,
		Success:    true,
		Content:    f.reply,
		TokensUsed: 10,
	}
}

func (f *fakeAdapter) callCount() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.calls
}

// newTestOrchestrator 组装一个全替身的编排器
func newTestOrchestrator(t *testing.T, fakes map[adapters.Platform]*fakeAdapter) (*Orchestrator, *Store) {
	t.Helper()

	factory := adapters.NewFactory()
	for platform, fake := range fakes {
		fake := fake
		factory.SetConfig(platform, &adapters.AdapterConfig{APIKey: "test-key"})
		factory.RegisterCreator(platform, func(config *adapters.AdapterConfig) (adapters.Adapter, error) {
			return fake, nil
		})
	}

	scorer, err := scoring.NewEngine(scoring.DefaultWeights())
	if err != nil {
		t.Fatalf("创建评分引擎失败: %v", err)
	}

	store := NewStore()
	opts := DefaultOptions()
	opts.DispatchMode = DispatchSequential
	opts.PerCallTimeout = time.Second

	orch := NewOrchestrator(
		factory,
		breaker.NewRegistry(breaker.DefaultConfig()),
		judge.NewClient(nil, time.Second),
		store,
		aggregator.New(scorer),
		opts,
	)
	return orch, store
}

func TestExpandTasksMatrix(t *testing.T) {
	orch, _ := newTestOrchestrator(t, nil)

	tasks := orch.ExpandTasks(&RunRequest{
		MainBrand:   "Acme",
		Competitors: []string{"Globex", "Initech"},
		Models:      []string{"deepseek", "qwen"},
		Questions:   []string{"q1", "q2", "q3"},
	})

	// (1+2)品牌 × 3问题 × 2模型 = 18
	if len(tasks) != 18 {
		t.Errorf("任务矩阵应展开为18个，实际 %d 个", len(tasks))
	}
	if tasks[0].Brand != "Acme" {
		t.Errorf("主品牌应排在最前: %s", tasks[0].Brand)
	}
}

func TestBatchTimeoutClamping(t *testing.T) {
	orch, _ := newTestOrchestrator(t, nil)

	// 极小批次也不低于下限
	if got := orch.BatchTimeout(1); got < orch.opts.MinBatchTimeout {
		t.Errorf("批次超时不应低于下限: %v", got)
	}
	// 超大批次封顶
	if got := orch.BatchTimeout(100000); got != orch.opts.MaxBatchTimeout {
		t.Errorf("超大批次应封顶为 %v，实际 %v", orch.opts.MaxBatchTimeout, got)
	}
	// 中等批次随规模增长
	small := orch.BatchTimeout(5)
	large := orch.BatchTimeout(50)
	if large <= small {
		t.Errorf("批次超时应随任务数增长: %v vs %v", small, large)
	}
}

func TestRunCompletesAndBuildsReport(t *testing.T) {
	fake := &fakeAdapter{platform: adapters.PlatformDeepSeek, reply: "Acme是一家优秀可靠的公司，推荐了解。"}
	orch, store := newTestOrchestrator(t, map[adapters.Platform]*fakeAdapter{
		adapters.PlatformDeepSeek: fake,
	})

	req := &RunRequest{
		MainBrand:   "Acme",
		Competitors: []string{"Globex"},
		Models:      []string{"deepseek"},
		Questions:   []string{"介绍一下这个品牌"},
	}
	store.Create("exec-1", 2, false)
	orch.Run("exec-1", req)

	snapshot, _ := store.Snapshot("exec-1")
	if snapshot.Status != models.StatusCompleted {
		t.Fatalf("运行应完成，实际状态: %s", snapshot.Status)
	}
	if snapshot.Stage != models.StageCompleted {
		t.Errorf("阶段应为completed，实际为 %s", snapshot.Stage)
	}
	if snapshot.Progress != 100 {
		t.Errorf("进度应为100，实际为 %d", snapshot.Progress)
	}
	if snapshot.Completed != 2 || len(snapshot.Results) != 2 {
		t.Errorf("2品牌×1问题×1模型应产生2个结果: completed=%d results=%d",
			snapshot.Completed, len(snapshot.Results))
	}
	if !snapshot.IsSynced {
		t.Error("完成后应判定为同步")
	}
	if fake.callCount() != 2 {
		t.Errorf("适配器应被调用2次，实际 %d 次", fake.callCount())
	}

	report := snapshot.Report
	if report == nil {
		t.Fatal("完成后应挂载报告")
	}
	for _, brand := range []string{"Acme", "Globex"} {
		if report.CompetitiveAnalysis.BrandScores[brand] == nil {
			t.Errorf("报告应包含品牌 %s 的得分", brand)
		}
	}
	if len(report.CompetitiveAnalysis.Rankings) != 2 {
		t.Errorf("排名应包含2个品牌，实际 %d 个", len(report.CompetitiveAnalysis.Rankings))
	}
	if report.JudgeEnabled {
		t.Error("未配置评审时报告应标记judge_enabled=false")
	}
}

func TestRunSingleFailureDoesNotAbortBatch(t *testing.T) {
	good := &fakeAdapter{platform: adapters.PlatformDeepSeek, reply: "正常回答"}
	bad := &fakeAdapter{platform: adapters.PlatformQwen, fail: true, failType: adapters.ErrTimeout}
	orch, store := newTestOrchestrator(t, map[adapters.Platform]*fakeAdapter{
		adapters.PlatformDeepSeek: good,
		adapters.PlatformQwen:     bad,
	})

	req := &RunRequest{
		MainBrand: "Acme",
		Models:    []string{"deepseek", "qwen"},
		Questions: []string{"q1"},
	}
	store.Create("exec-1", 2, false)
	orch.Run("exec-1", req)

	snapshot, _ := store.Snapshot("exec-1")
	if snapshot.Status != models.StatusCompleted {
		t.Fatalf("单元格失败不应中断批次，实际状态: %s", snapshot.Status)
	}
	if len(snapshot.Results) != 2 {
		t.Fatalf("失败单元格也应落库，结果数: %d", len(snapshot.Results))
	}

	var failCell *models.RawCellResult
	for i := range snapshot.Results {
		if !snapshot.Results[i].Success {
			failCell = &snapshot.Results[i]
		}
	}
	if failCell == nil {
		t.Fatal("应有一个失败单元格")
	}
	if failCell.ErrorType != string(adapters.ErrTimeout) {
		t.Errorf("失败单元格应保留错误分类，实际为 %s", failCell.ErrorType)
	}
}

func TestRunSkipsOpenBreaker(t *testing.T) {
	fake := &fakeAdapter{platform: adapters.PlatformDeepSeek, reply: "回答"}
	orch, store := newTestOrchestrator(t, map[adapters.Platform]*fakeAdapter{
		adapters.PlatformDeepSeek: fake,
	})

	// 预先把熔断器打到open
	for i := 0; i < breaker.DefaultConfig().MaxFailures; i++ {
		orch.breakers.RecordFailure("deepseek", "deepseek-test")
	}

	req := &RunRequest{
		MainBrand: "Acme",
		Models:    []string{"deepseek"},
		Questions: []string{"q1"},
	}
	store.Create("exec-1", 1, false)
	orch.Run("exec-1", req)

	snapshot, _ := store.Snapshot("exec-1")
	if len(snapshot.Results) != 1 {
		t.Fatalf("熔断跳过也应落库，结果数: %d", len(snapshot.Results))
	}
	if snapshot.Results[0].ErrorType != errTypeCircuitOpen {
		t.Errorf("熔断跳过应标记circuit_open，实际为 %s", snapshot.Results[0].ErrorType)
	}
	if fake.callCount() != 0 {
		t.Errorf("熔断打开时不应调用适配器，实际调用 %d 次", fake.callCount())
	}
}

func TestRetryCellReplacesOnCompletedRun(t *testing.T) {
	fake := &fakeAdapter{platform: adapters.PlatformDeepSeek, fail: true, failType: adapters.ErrNetwork}
	orch, store := newTestOrchestrator(t, map[adapters.Platform]*fakeAdapter{
		adapters.PlatformDeepSeek: fake,
	})

	req := &RunRequest{
		MainBrand: "Acme",
		Models:    []string{"deepseek"},
		Questions: []string{"q1"},
	}
	store.Create("exec-1", 1, false)
	orch.Run("exec-1", req)

	snapshot, _ := store.Snapshot("exec-1")
	if snapshot.Results[0].Success {
		t.Fatal("首次运行应失败")
	}

	// 平台恢复后重试，熔断状态由RetryCell自行清理
	fake.fail = false
	fake.reply = "恢复后的回答"

	task := models.TestCase{Brand: "Acme", AIModel: "deepseek", Question: "q1"}
	result, err := orch.RetryCell("exec-1", task)
	if err != nil {
		t.Fatalf("重试失败: %v", err)
	}
	if !result.Success {
		t.Fatalf("重试应成功: %s", result.ErrorMessage)
	}

	snapshot, _ = store.Snapshot("exec-1")
	if snapshot.Completed != 1 || len(snapshot.Results) != 1 {
		t.Errorf("重试不应改变计数: completed=%d results=%d", snapshot.Completed, len(snapshot.Results))
	}
	if !snapshot.Results[0].Success {
		t.Error("重试结果应替换原失败条目")
	}
}

func TestRetryCellResetsOpenBreaker(t *testing.T) {
	fake := &fakeAdapter{platform: adapters.PlatformDeepSeek, fail: true, failType: adapters.ErrTimeout}
	orch, store := newTestOrchestrator(t, map[adapters.Platform]*fakeAdapter{
		adapters.PlatformDeepSeek: fake,
	})

	req := &RunRequest{
		MainBrand: "Acme",
		Models:    []string{"deepseek"},
		Questions: []string{"q1"},
	}
	store.Create("exec-1", 1, false)
	orch.Run("exec-1", req)

	// 连续失败打开熔断器，这正是用户发起重试的典型场景
	for i := 0; i < breaker.DefaultConfig().MaxFailures; i++ {
		orch.breakers.RecordFailure("deepseek", "deepseek-test")
	}
	if orch.breakers.Allow("deepseek", "deepseek-test") {
		t.Fatal("熔断器应处于打开状态")
	}

	fake.fail = false
	fake.reply = "恢复后的回答"
	calls := fake.callCount()

	task := models.TestCase{Brand: "Acme", AIModel: "deepseek", Question: "q1"}
	result, err := orch.RetryCell("exec-1", task)
	if err != nil {
		t.Fatalf("重试失败: %v", err)
	}
	if result.ErrorType == errTypeCircuitOpen {
		t.Fatal("重试应先清理熔断状态，不应返回circuit_open")
	}
	if !result.Success {
		t.Fatalf("重试应成功: %s", result.ErrorMessage)
	}
	if fake.callCount() != calls+1 {
		t.Errorf("重试应真正调用适配器，调用次数 %d -> %d", calls, fake.callCount())
	}
}

func TestRetryCellMissingExecution(t *testing.T) {
	orch, _ := newTestOrchestrator(t, nil)

	task := models.TestCase{Brand: "Acme", AIModel: "deepseek", Question: "q1"}
	if _, err := orch.RetryCell("不存在", task); err == nil {
		t.Error("不存在的执行记录重试应返回错误")
	}
}

// recordingSink 记录推送次数的进度出口
type recordingSink struct {
	mu        sync.Mutex
	snapshots []*models.ExecutionSnapshot
}

func (r *recordingSink) Publish(snapshot *models.ExecutionSnapshot) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.snapshots = append(r.snapshots, snapshot)
}

func TestRunPublishesProgress(t *testing.T) {
	fake := &fakeAdapter{platform: adapters.PlatformDeepSeek, reply: "回答"}
	orch, store := newTestOrchestrator(t, map[adapters.Platform]*fakeAdapter{
		adapters.PlatformDeepSeek: fake,
	})

	sink := &recordingSink{}
	orch.SetProgressSink(sink)

	req := &RunRequest{
		MainBrand: "Acme",
		Models:    []string{"deepseek"},
		Questions: []string{"q1", "q2"},
	}
	store.Create("exec-1", 2, false)
	orch.Run("exec-1", req)

	sink.mu.Lock()
	defer sink.mu.Unlock()
	if len(sink.snapshots) == 0 {
		t.Fatal("运行过程应推送进度快照")
	}
	last := sink.snapshots[len(sink.snapshots)-1]
	if last.Status != models.StatusCompleted {
		t.Errorf("最后一次推送应是完成态，实际为 %s", last.Status)
	}
}
