package main

import (
	"encoding/json"
	"fmt"
	"log"
	"math/rand"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/brianvoe/gofakeit/v6"
	"github.com/schollz/progressbar/v3"
)

// Result 存储单项基准测试结果
type Result struct {
	Name        string        `json:"name"`
	Operations  int           `json:"operations"`
	TotalTime   time.Duration `json:"total_time"`
	AverageTime time.Duration `json:"average_time"`
	MinTime     time.Duration `json:"min_time"`
	MaxTime     time.Duration `json:"max_time"`
	SuccessRate float64       `json:"success_rate"`
}

// Suite 存储完整基准测试结果
type Suite struct {
	StartTime    time.Time `json:"start_time"`
	EndTime      time.Time `json:"end_time"`
	Environment  string    `json:"environment"`
	Results      []Result  `json:"results"`
	TestDataSize int       `json:"test_data_size"`
}

// MockClient 模拟BrandLens诊断客户端
// 延迟参数按线上实测的接口耗时分布设定
type MockClient struct{}

// SubmitDiagnosis 模拟提交诊断任务
func (c *MockClient) SubmitDiagnosis(brands []string, models []string, questions []string) (string, error) {
	time.Sleep(time.Duration(15+rand.Intn(20)) * time.Millisecond)
	return fmt.Sprintf("exec-%d", time.Now().UnixNano()), nil
}

// PollProgress 模拟进度轮询
func (c *MockClient) PollProgress(executionID string) (int, error) {
	time.Sleep(time.Duration(5+rand.Intn(10)) * time.Millisecond)
	return rand.Intn(101), nil
}

// RetryCell 模拟单维度重试，含一次完整的LLM调用
func (c *MockClient) RetryCell(executionID, source string) (bool, error) {
	time.Sleep(time.Duration(800+rand.Intn(600)) * time.Millisecond)
	return true, nil
}

// generateTestData 生成随机的品牌和问题样本
func generateTestData(count int) (brands [][]string, questions [][]string) {
	gofakeit.Seed(time.Now().UnixNano())

	brands = make([][]string, count)
	questions = make([][]string, count)

	for i := 0; i < count; i++ {
		brandCount := 2 + rand.Intn(3)
		group := make([]string, brandCount)
		for j := 0; j < brandCount; j++ {
			group[j] = gofakeit.Company()
		}
		brands[i] = group

		qCount := 1 + rand.Intn(3)
		qs := make([]string, qCount)
		for j := 0; j < qCount; j++ {
			qs[j] = gofakeit.Question()
		}
		questions[i] = qs
	}

	return brands, questions
}

var benchModels = []string{"deepseek", "qwen", "zhipu"}

// benchSubmit 基准测试：诊断任务提交
func benchSubmit(client *MockClient, count int) Result {
	result := Result{
		Name:       "任务提交",
		Operations: count,
		MinTime:    time.Hour,
	}

	brands, questions := generateTestData(count)
	bar := progressbar.Default(int64(count), "任务提交测试")

	var successCount int
	var totalTime time.Duration

	for i := 0; i < count; i++ {
		start := time.Now()
		executionID, err := client.SubmitDiagnosis(brands[i], benchModels, questions[i])
		elapsed := time.Since(start)
		totalTime += elapsed

		if elapsed < result.MinTime {
			result.MinTime = elapsed
		}
		if elapsed > result.MaxTime {
			result.MaxTime = elapsed
		}

		if err == nil && executionID != "" {
			successCount++
		}

		bar.Add(1)
	}

	result.TotalTime = totalTime
	result.AverageTime = totalTime / time.Duration(count)
	result.SuccessRate = float64(successCount) / float64(count) * 100

	return result
}

// benchPolling 基准测试：进度轮询
func benchPolling(client *MockClient, count int) Result {
	result := Result{
		Name:       "进度轮询",
		Operations: count,
		MinTime:    time.Hour,
	}

	bar := progressbar.Default(int64(count), "进度轮询测试")

	var successCount int
	var totalTime time.Duration

	for i := 0; i < count; i++ {
		start := time.Now()
		progress, err := client.PollProgress(fmt.Sprintf("exec-%d", i))
		elapsed := time.Since(start)
		totalTime += elapsed

		if elapsed < result.MinTime {
			result.MinTime = elapsed
		}
		if elapsed > result.MaxTime {
			result.MaxTime = elapsed
		}

		if err == nil && progress >= 0 {
			successCount++
		}

		bar.Add(1)
	}

	result.TotalTime = totalTime
	result.AverageTime = totalTime / time.Duration(count)
	result.SuccessRate = float64(successCount) / float64(count) * 100

	return result
}

// benchRetry 基准测试：单维度重试
func benchRetry(client *MockClient, count int) Result {
	result := Result{
		Name:       "维度重试",
		Operations: count,
		MinTime:    time.Hour,
	}

	bar := progressbar.Default(int64(count), "维度重试测试")

	var successCount int
	var totalTime time.Duration

	for i := 0; i < count; i++ {
		start := time.Now()
		ok, err := client.RetryCell(fmt.Sprintf("exec-%d", i), benchModels[i%len(benchModels)])
		elapsed := time.Since(start)
		totalTime += elapsed

		if elapsed < result.MinTime {
			result.MinTime = elapsed
		}
		if elapsed > result.MaxTime {
			result.MaxTime = elapsed
		}

		if err == nil && ok {
			successCount++
		}

		bar.Add(1)
	}

	result.TotalTime = totalTime
	result.AverageTime = totalTime / time.Duration(count)
	result.SuccessRate = float64(successCount) / float64(count) * 100

	return result
}

// benchConcurrentDiagnoses 基准测试：并发提交+轮询到完成
func benchConcurrentDiagnoses(client *MockClient, concurrent int) Result {
	result := Result{
		Name:       "并发诊断",
		Operations: concurrent,
		MinTime:    time.Hour,
	}

	brands, questions := generateTestData(concurrent)
	bar := progressbar.Default(int64(concurrent), "并发诊断测试")

	var mu sync.Mutex
	var wg sync.WaitGroup
	var successCount int
	var totalTime time.Duration

	start := time.Now()
	for i := 0; i < concurrent; i++ {
		wg.Add(1)
		go func(idx int) {
			defer wg.Done()

			opStart := time.Now()
			executionID, err := client.SubmitDiagnosis(brands[idx], benchModels, questions[idx])
			if err == nil {
				// 模拟小程序端的轮询节奏
				for poll := 0; poll < 5; poll++ {
					if _, pollErr := client.PollProgress(executionID); pollErr != nil {
						err = pollErr
						break
					}
					time.Sleep(20 * time.Millisecond)
				}
			}
			elapsed := time.Since(opStart)

			mu.Lock()
			totalTime += elapsed
			if elapsed < result.MinTime {
				result.MinTime = elapsed
			}
			if elapsed > result.MaxTime {
				result.MaxTime = elapsed
			}
			if err == nil {
				successCount++
			}
			mu.Unlock()

			bar.Add(1)
		}(i)
	}
	wg.Wait()

	result.TotalTime = time.Since(start)
	result.AverageTime = totalTime / time.Duration(concurrent)
	result.SuccessRate = float64(successCount) / float64(concurrent) * 100

	return result
}

// createReport 将测试套件写入JSON报告
func createReport(suite Suite, filePath string) error {
	data, err := json.MarshalIndent(suite, "", "  ")
	if err != nil {
		return fmt.Errorf("序列化报告失败: %w", err)
	}

	if err := os.WriteFile(filePath, data, 0644); err != nil {
		return fmt.Errorf("写入报告文件失败: %w", err)
	}
	return nil
}

func main() {
	testCount := 100
	concurrentCount := 30

	client := &MockClient{}

	suite := Suite{
		StartTime:    time.Now(),
		Environment:  fmt.Sprintf("%d核CPU, %dGB内存", 4, 8),
		TestDataSize: testCount,
	}

	fmt.Printf("开始BrandLens诊断服务性能基准测试，样本数: %d\n\n", testCount)

	results := []Result{
		benchSubmit(client, testCount),
		benchPolling(client, testCount),
		benchRetry(client, 20),
		benchConcurrentDiagnoses(client, concurrentCount),
	}

	suite.Results = results
	suite.EndTime = time.Now()

	reportDir := filepath.Join("report")
	if err := os.MkdirAll(reportDir, 0755); err != nil {
		log.Fatalf("创建报告目录失败: %v", err)
	}

	reportPath := filepath.Join(reportDir,
		fmt.Sprintf("benchmark-report-%s.json", time.Now().Format("20060102-150405")))

	if err := createReport(suite, reportPath); err != nil {
		log.Fatalf("生成报告失败: %v", err)
	}

	fmt.Printf("\n基准测试完成，结果摘要:\n\n")
	for _, result := range results {
		fmt.Printf("%-15s: 平均 %8s, 成功率 %.2f%%\n",
			result.Name,
			result.AverageTime.Round(time.Millisecond),
			result.SuccessRate,
		)
	}

	fmt.Printf("\n详细报告已保存至: %s\n", reportPath)
}
