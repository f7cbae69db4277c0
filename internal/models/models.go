package models

import (
	"time"
)

// =============================================================================
// 核心领域模型
// =============================================================================

// JudgeResult 评审LLM给出的五维评分结果
// 五个分数字段必须是[0,100]内的整数，任一字段非法则整个结果被拒绝
type JudgeResult struct {
	AccuracyScore     int    `json:"accuracy_score"`
	CompletenessScore int    `json:"completeness_score"`
	SentimentScore    int    `json:"sentiment_score"`
	PurityScore       int    `json:"purity_score"`
	ConsistencyScore  int    `json:"consistency_score"`
	Judgement         string `json:"judgement"`
	ConfidenceLevel   string `json:"confidence_level"` // high/medium/low
}

// FinalScoreResult 品牌最终得分，由一个或多个JudgeResult加权平均得出
type FinalScoreResult struct {
	GeoScore         int     `json:"geo_score"`
	AuthorityScore   float64 `json:"authority_score"`
	VisibilityScore  float64 `json:"visibility_score"`
	SentimentScore   float64 `json:"sentiment_score"`
	PurityScore      float64 `json:"purity_score"`
	ConsistencyScore float64 `json:"consistency_score"`
	Grade            string  `json:"grade"` // A/B/C/D
	Label            string  `json:"label"`
	Summary          string  `json:"summary"`
}

// TestCase N×M矩阵中的一个单元格：品牌×模型×问题
type TestCase struct {
	Brand    string `json:"brand"`
	AIModel  string `json:"ai_model"`
	Question string `json:"question"`
}

// RawCellResult 单元格的原始执行结果
// 全仓库唯一的结果形状，只由执行引擎构造，聚合器不做多形状兼容
type RawCellResult struct {
	Brand        string        `json:"brand"`
	Model        string        `json:"model"`    // 用户选择的模型名
	Platform     string        `json:"platform"` // 规范化后的平台标识
	Question     string        `json:"question"`
	Success      bool          `json:"success"`
	Content      string        `json:"content"`
	Latency      float64       `json:"latency"` // 秒
	TokensUsed   int           `json:"tokens_used,omitempty"`
	ErrorType    string        `json:"error_type,omitempty"`
	ErrorMessage string        `json:"error_message,omitempty"`
	MentionRank  int           `json:"mention_rank"` // 品牌在回答中的提及位次，0表示未提及
	Sentiment    string        `json:"sentiment"`    // positive/neutral/negative
	Judge        *JudgeResult  `json:"judge,omitempty"`
	CompletedAt  time.Time     `json:"completed_at"`
	Elapsed      time.Duration `json:"-"`
}

// CellKey 单元格的唯一标识，重试时用于替换而不是追加
func (r *RawCellResult) CellKey() string {
	return r.Brand + "|" + r.Model + "|" + r.Question
}

// 情感标签
const (
	SentimentPositive = "positive"
	SentimentNeutral  = "neutral"
	SentimentNegative = "negative"
)

// =============================================================================
// 执行记录
// =============================================================================

// ExecutionStatus 诊断任务状态
type ExecutionStatus string

const (
	StatusInitializing ExecutionStatus = "initializing"
	StatusProcessing   ExecutionStatus = "processing"
	StatusCompleted    ExecutionStatus = "completed"
	StatusFailed       ExecutionStatus = "failed"
	StatusTimeout      ExecutionStatus = "timeout"
)

// Terminal 是否为终态（终态记录不再接受更新）
func (s ExecutionStatus) Terminal() bool {
	return s == StatusCompleted || s == StatusFailed || s == StatusTimeout
}

// ExecutionStage 诊断任务阶段
type ExecutionStage string

const (
	StageInit            ExecutionStage = "init"
	StageAIFetching      ExecutionStage = "ai_fetching"
	StageRankingAnalysis ExecutionStage = "ranking_analysis"
	StageSourceTracing   ExecutionStage = "source_tracing"
	StageCompleted       ExecutionStage = "completed"
	StageFailed          ExecutionStage = "failed"
)

// ExecutionRecord 一次诊断运行的完整记录
// 不变式：status==completed 时 len(Results)==Total
type ExecutionRecord struct {
	ExecutionID  string           `json:"execution_id"`
	Status       ExecutionStatus  `json:"status"`
	Stage        ExecutionStage   `json:"stage"`
	Progress     int              `json:"progress"` // 0..100
	Completed    int              `json:"completed"`
	Total        int              `json:"total"`
	Results      []RawCellResult  `json:"results"`
	StartTime    time.Time        `json:"start_time"`
	Error        string           `json:"error,omitempty"`
	JudgeEnabled bool             `json:"judge_enabled"`
	Report       *DiagnosisReport `json:"report,omitempty"`
}

// ExecutionSnapshot 轮询接口返回的快照，附带同步自检字段
type ExecutionSnapshot struct {
	ExecutionRecord
	ExpectedTotal     int  `json:"expected_total"`
	IsSynced          bool `json:"is_synced"`
	ShouldStopPolling bool `json:"should_stop_polling"`
}

// =============================================================================
// 诊断报告
// =============================================================================

// DiagnosisReport 聚合后的品牌健康报告
type DiagnosisReport struct {
	CompetitiveAnalysis CompetitiveAnalysis       `json:"competitiveAnalysis"`
	SentimentMap        map[string]map[string]int `json:"sentimentMap"` // 品牌 -> 情感 -> 计数
	SourceCitations     []SourceCitation          `json:"sourceCitations"`
	JudgeEnabled        bool                      `json:"judge_enabled"`
	GeneratedAt         time.Time                 `json:"generated_at"`
}

// Clone 深拷贝报告，快照接口对外只交副本
func (r *DiagnosisReport) Clone() *DiagnosisReport {
	if r == nil {
		return nil
	}

	copied := *r

	copied.CompetitiveAnalysis.BrandScores = make(map[string]*FinalScoreResult, len(r.CompetitiveAnalysis.BrandScores))
	for brand, score := range r.CompetitiveAnalysis.BrandScores {
		if score != nil {
			sc := *score
			copied.CompetitiveAnalysis.BrandScores[brand] = &sc
		} else {
			copied.CompetitiveAnalysis.BrandScores[brand] = nil
		}
	}
	copied.CompetitiveAnalysis.Rankings = make([]BrandRanking, len(r.CompetitiveAnalysis.Rankings))
	copy(copied.CompetitiveAnalysis.Rankings, r.CompetitiveAnalysis.Rankings)

	copied.SentimentMap = make(map[string]map[string]int, len(r.SentimentMap))
	for brand, counts := range r.SentimentMap {
		inner := make(map[string]int, len(counts))
		for k, v := range counts {
			inner[k] = v
		}
		copied.SentimentMap[brand] = inner
	}

	copied.SourceCitations = make([]SourceCitation, len(r.SourceCitations))
	copy(copied.SourceCitations, r.SourceCitations)

	return &copied
}

// CompetitiveAnalysis 主品牌与竞品的对比分析
type CompetitiveAnalysis struct {
	BrandScores map[string]*FinalScoreResult `json:"brandScores"`
	Rankings    []BrandRanking               `json:"rankings"`
}

// BrandRanking 品牌排名项
type BrandRanking struct {
	Rank     int    `json:"rank"`
	Brand    string `json:"brand"`
	GeoScore int    `json:"geo_score"`
	Grade    string `json:"grade"`
}

// SourceCitation 回答来源引用
type SourceCitation struct {
	Brand    string `json:"brand"`
	Platform string `json:"platform"`
	Model    string `json:"model"`
	Question string `json:"question"`
	Excerpt  string `json:"excerpt"`
}
