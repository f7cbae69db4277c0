package engine

import (
	"testing"

	"github.com/brandlens/service/internal/models"
)

func cell(brand, model, question string, success bool) models.RawCellResult {
	return models.RawCellResult{
		Brand:    brand,
		Model:    model,
		Question: question,
		Success:  success,
		Content:  "回答内容",
	}
}

func TestStoreCreateAndSnapshot(t *testing.T) {
	s := NewStore()
	s.Create("exec-1", 4, true)

	if !s.Exists("exec-1") {
		t.Fatal("创建后记录应存在")
	}

	snapshot, ok := s.Snapshot("exec-1")
	if !ok {
		t.Fatal("应能获取快照")
	}
	if snapshot.Status != models.StatusInitializing {
		t.Errorf("初始状态应为initializing，实际为 %s", snapshot.Status)
	}
	if snapshot.Total != 4 || snapshot.ExpectedTotal != 4 {
		t.Errorf("总数错误: total=%d expected_total=%d", snapshot.Total, snapshot.ExpectedTotal)
	}
	if !snapshot.JudgeEnabled {
		t.Error("judge_enabled标志应保留")
	}
	if snapshot.ShouldStopPolling {
		t.Error("非终态不应建议停止轮询")
	}
	if !snapshot.IsSynced {
		t.Error("空记录的计数和结果数一致，应判定为同步")
	}
}

func TestStoreSnapshotMissing(t *testing.T) {
	s := NewStore()
	if _, ok := s.Snapshot("不存在"); ok {
		t.Error("不存在的记录不应返回快照")
	}
	if err := s.Update("不存在", func(r *models.ExecutionRecord) {}); err == nil {
		t.Error("更新不存在的记录应返回错误")
	}
}

func TestStoreAppendResultProgress(t *testing.T) {
	s := NewStore()
	s.Create("exec-1", 4, false)

	s.AppendResult("exec-1", cell("Acme", "deepseek", "q1", true))
	s.AppendResult("exec-1", cell("Acme", "qwen", "q1", false))

	snapshot, _ := s.Snapshot("exec-1")
	if snapshot.Completed != 2 {
		t.Errorf("完成数应为2，实际为 %d", snapshot.Completed)
	}
	if snapshot.Progress != 50 {
		t.Errorf("进度应为50，实际为 %d", snapshot.Progress)
	}
	if !snapshot.IsSynced {
		t.Error("结果数等于完成数，应判定为同步")
	}
}

func TestStoreAppendResultReplacesSameCell(t *testing.T) {
	s := NewStore()
	s.Create("exec-1", 2, false)

	s.AppendResult("exec-1", cell("Acme", "deepseek", "q1", false))
	snapshot, _ := s.Snapshot("exec-1")
	if snapshot.Completed != 1 {
		t.Fatalf("首次落库完成数应为1，实际为 %d", snapshot.Completed)
	}

	// 同一单元格重试替换，不重复计数
	retried := cell("Acme", "deepseek", "q1", true)
	s.AppendResult("exec-1", retried)

	snapshot, _ = s.Snapshot("exec-1")
	if snapshot.Completed != 1 {
		t.Errorf("重试不应重复计数，完成数应为1，实际为 %d", snapshot.Completed)
	}
	if len(snapshot.Results) != 1 {
		t.Errorf("结果列表长度应为1，实际为 %d", len(snapshot.Results))
	}
	if !snapshot.Results[0].Success {
		t.Error("重试结果应替换原条目")
	}
}

func TestStoreTerminalRecordDropsLateResults(t *testing.T) {
	s := NewStore()
	s.Create("exec-1", 2, false)

	s.AppendResult("exec-1", cell("Acme", "deepseek", "q1", true))
	s.Update("exec-1", func(r *models.ExecutionRecord) {
		r.Status = models.StatusTimeout
	})

	// 超时后才落地的迟到结果应被悄悄丢弃
	if err := s.AppendResult("exec-1", cell("Acme", "qwen", "q1", true)); err != nil {
		t.Fatalf("迟到结果不应报错: %v", err)
	}

	snapshot, _ := s.Snapshot("exec-1")
	if len(snapshot.Results) != 1 {
		t.Errorf("终态后结果不应再增加，实际为 %d 条", len(snapshot.Results))
	}
	if !snapshot.ShouldStopPolling {
		t.Error("终态应建议停止轮询")
	}
}

func TestStoreReplaceResultOnTerminalRecord(t *testing.T) {
	s := NewStore()
	s.Create("exec-1", 1, false)

	s.AppendResult("exec-1", cell("Acme", "deepseek", "q1", false))
	s.Update("exec-1", func(r *models.ExecutionRecord) {
		r.Status = models.StatusCompleted
	})

	// 终态记录上的重试走ReplaceResult原地替换
	if err := s.ReplaceResult("exec-1", cell("Acme", "deepseek", "q1", true)); err != nil {
		t.Fatalf("终态替换失败: %v", err)
	}

	snapshot, _ := s.Snapshot("exec-1")
	if snapshot.Completed != 1 || len(snapshot.Results) != 1 {
		t.Errorf("替换不应改变计数: completed=%d results=%d", snapshot.Completed, len(snapshot.Results))
	}
	if !snapshot.Results[0].Success {
		t.Error("替换后的结果应生效")
	}

	// 不存在的单元格不能替换
	if err := s.ReplaceResult("exec-1", cell("Globex", "deepseek", "q1", true)); err == nil {
		t.Error("替换不存在的单元格应返回错误")
	}
}

func TestStoreIsSyncedExposesMismatch(t *testing.T) {
	s := NewStore()
	s.Create("exec-1", 2, false)

	s.AppendResult("exec-1", cell("Acme", "deepseek", "q1", true))
	s.Update("exec-1", func(r *models.ExecutionRecord) {
		r.Status = models.StatusCompleted
	})

	// completed但结果数少于总数：同步bug必须暴露而不是掩盖
	snapshot, _ := s.Snapshot("exec-1")
	if snapshot.IsSynced {
		t.Error("completed状态下结果数不等于总数时应判定为不同步")
	}
}

func TestStoreSnapshotIsDeepCopy(t *testing.T) {
	s := NewStore()
	s.Create("exec-1", 1, false)
	s.AppendResult("exec-1", cell("Acme", "deepseek", "q1", true))

	snapshot, _ := s.Snapshot("exec-1")
	snapshot.Results[0].Brand = "篡改"

	fresh, _ := s.Snapshot("exec-1")
	if fresh.Results[0].Brand != "Acme" {
		t.Error("快照应是深拷贝，修改快照不应影响存储")
	}
}

func TestStoreSnapshotClonesReport(t *testing.T) {
	s := NewStore()
	s.Create("exec-1", 1, false)
	s.Update("exec-1", func(r *models.ExecutionRecord) {
		r.Report = &models.DiagnosisReport{
			CompetitiveAnalysis: models.CompetitiveAnalysis{
				BrandScores: map[string]*models.FinalScoreResult{
					"Acme": {GeoScore: 80, Grade: "B"},
				},
				Rankings: []models.BrandRanking{{Rank: 1, Brand: "Acme", GeoScore: 80}},
			},
			SentimentMap: map[string]map[string]int{
				"Acme": {models.SentimentPositive: 2},
			},
		}
	})

	snapshot, _ := s.Snapshot("exec-1")
	snapshot.Report.CompetitiveAnalysis.BrandScores["Acme"].GeoScore = 0
	snapshot.Report.CompetitiveAnalysis.Rankings[0].Brand = "篡改"
	snapshot.Report.SentimentMap["Acme"][models.SentimentPositive] = 99

	fresh, _ := s.Snapshot("exec-1")
	if fresh.Report.CompetitiveAnalysis.BrandScores["Acme"].GeoScore != 80 {
		t.Error("修改快照的品牌评分不应影响存储的报告")
	}
	if fresh.Report.CompetitiveAnalysis.Rankings[0].Brand != "Acme" {
		t.Error("修改快照的排名不应影响存储的报告")
	}
	if fresh.Report.SentimentMap["Acme"][models.SentimentPositive] != 2 {
		t.Error("修改快照的情感计数不应影响存储的报告")
	}
}
