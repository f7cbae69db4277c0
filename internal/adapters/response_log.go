package adapters

import (
	"bufio"
	"encoding/json"
	"fmt"
	"log"
	"os"
	"path/filepath"
	"sync"
	"time"
)

// =============================================================================
// 响应日志 - 每次平台调用追加一行JSON，供离线分析和训练数据复用
// 只追加不回写；进程级互斥保证并发写入每行完整
// =============================================================================

// ResponseLogEntry 一次平台调用的日志条目
type ResponseLogEntry struct {
	Timestamp  time.Time `json:"timestamp"`
	Platform   string    `json:"platform"`
	Model      string    `json:"model"`
	Question   string    `json:"question"`
	Answer     string    `json:"answer"`
	Latency    float64   `json:"latency"`
	TokensUsed int       `json:"tokens_used"`
	Success    bool      `json:"success"`
	ErrorType  string    `json:"error_type,omitempty"`
}

// ResponseLog 追加式JSON-Lines日志
type ResponseLog struct {
	path string
	mu   sync.Mutex
}

// NewResponseLog 创建响应日志，确保目录存在
func NewResponseLog(path string) (*ResponseLog, error) {
	if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
		return nil, fmt.Errorf("创建响应日志目录失败: %w", err)
	}
	return &ResponseLog{path: path}, nil
}

// Append 追加一条日志，写入失败只记录告警，绝不影响调用方
func (l *ResponseLog) Append(entry *ResponseLogEntry) {
	l.mu.Lock()
	defer l.mu.Unlock()

	data, err := json.Marshal(entry)
	if err != nil {
		log.Printf("⚠️ [响应日志] 序列化日志条目失败: %v", err)
		return
	}

	file, err := os.OpenFile(l.path, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0644)
	if err != nil {
		log.Printf("⚠️ [响应日志] 打开日志文件失败: %v", err)
		return
	}
	defer file.Close()

	if _, err := file.Write(append(data, '\n')); err != nil {
		log.Printf("⚠️ [响应日志] 写入日志失败: %v", err)
	}
}

// Tail 读取最近n条日志，供离线分析接口使用
func (l *ResponseLog) Tail(n int) ([]ResponseLogEntry, error) {
	l.mu.Lock()
	defer l.mu.Unlock()

	file, err := os.Open(l.path)
	if err != nil {
		if os.IsNotExist(err) {
			return []ResponseLogEntry{}, nil
		}
		return nil, fmt.Errorf("打开响应日志失败: %w", err)
	}
	defer file.Close()

	var entries []ResponseLogEntry
	scanner := bufio.NewScanner(file)
	scanner.Buffer(make([]byte, 0, 1024*1024), 1024*1024)
	for scanner.Scan() {
		line := scanner.Bytes()
		if len(line) == 0 {
			continue
		}
		var entry ResponseLogEntry
		if err := json.Unmarshal(line, &entry); err != nil {
			// 坏行跳过，不让一条损坏记录挡住整个读取
			continue
		}
		entries = append(entries, entry)
	}
	if err := scanner.Err(); err != nil {
		return nil, fmt.Errorf("读取响应日志失败: %w", err)
	}

	if n > 0 && len(entries) > n {
		entries = entries[len(entries)-n:]
	}
	return entries, nil
}
