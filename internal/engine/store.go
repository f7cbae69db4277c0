package engine

import (
	"fmt"
	"sync"
	"time"

	"github.com/brandlens/service/internal/models"
)

// =============================================================================
// 执行存储 - 诊断运行的共享可变状态
// 所有变更都走Update这一个入口，"追加结果+递增计数"在同一把锁下完成，
// 轮询方永远看不到计数和结果列表不一致的中间态
// =============================================================================

// Store 按执行ID索引的线程安全执行记录存储
type Store struct {
	records map[string]*models.ExecutionRecord
	mu      sync.RWMutex
}

// NewStore 创建执行存储
func NewStore() *Store {
	return &Store{
		records: make(map[string]*models.ExecutionRecord),
	}
}

// Create 创建一条新的执行记录
func (s *Store) Create(executionID string, total int, judgeEnabled bool) *models.ExecutionRecord {
	s.mu.Lock()
	defer s.mu.Unlock()

	record := &models.ExecutionRecord{
		ExecutionID:  executionID,
		Status:       models.StatusInitializing,
		Stage:        models.StageInit,
		Total:        total,
		Results:      make([]models.RawCellResult, 0, total),
		StartTime:    time.Now(),
		JudgeEnabled: judgeEnabled,
	}
	s.records[executionID] = record
	return record
}

// Update 在锁内对记录应用一次变更
// 终态记录忽略更新：全局超时后才落地的迟到结果直接丢弃
func (s *Store) Update(executionID string, fn func(*models.ExecutionRecord)) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	record, exists := s.records[executionID]
	if !exists {
		return fmt.Errorf("执行记录不存在: %s", executionID)
	}
	if record.Status.Terminal() {
		return nil
	}

	fn(record)
	return nil
}

// AppendResult 落地一个单元格结果
// 同一(brand,model,question)的重试替换旧结果，不重复计数
func (s *Store) AppendResult(executionID string, result models.RawCellResult) error {
	return s.Update(executionID, func(record *models.ExecutionRecord) {
		key := result.CellKey()
		replaced := false
		for i := range record.Results {
			if record.Results[i].CellKey() == key {
				record.Results[i] = result
				replaced = true
				break
			}
		}
		if !replaced {
			record.Results = append(record.Results, result)
			record.Completed++
		}
		if record.Total > 0 {
			record.Progress = record.Completed * 100 / record.Total
		}
	})
}

// ReplaceResult 终态记录上的重试也要能落地，单独走一个不检查终态的入口
// 只替换已有单元格，不改计数，不破坏终态不变式
func (s *Store) ReplaceResult(executionID string, result models.RawCellResult) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	record, exists := s.records[executionID]
	if !exists {
		return fmt.Errorf("执行记录不存在: %s", executionID)
	}

	key := result.CellKey()
	for i := range record.Results {
		if record.Results[i].CellKey() == key {
			record.Results[i] = result
			return nil
		}
	}
	return fmt.Errorf("未找到可替换的单元格: %s", key)
}

// Exists 记录是否存在
func (s *Store) Exists(executionID string) bool {
	s.mu.RLock()
	defer s.mu.RUnlock()

	_, exists := s.records[executionID]
	return exists
}

// Snapshot 返回记录的深拷贝快照，附带同步自检字段
func (s *Store) Snapshot(executionID string) (*models.ExecutionSnapshot, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	record, exists := s.records[executionID]
	if !exists {
		return nil, false
	}

	copied := *record
	copied.Results = make([]models.RawCellResult, len(record.Results))
	copy(copied.Results, record.Results)
	copied.Report = record.Report.Clone()

	snapshot := &models.ExecutionSnapshot{
		ExecutionRecord:   copied,
		ExpectedTotal:     record.Total,
		ShouldStopPolling: record.Status.Terminal(),
	}

	// completed状态下结果数必须等于总数，对不上就是同步bug，必须暴露出来
	if record.Status == models.StatusCompleted {
		snapshot.IsSynced = len(record.Results) == record.Total
	} else {
		snapshot.IsSynced = len(record.Results) == record.Completed
	}

	return snapshot, true
}

// Count 当前记录数
func (s *Store) Count() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.records)
}
