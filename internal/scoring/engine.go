package scoring

import (
	"fmt"
	"math"

	"github.com/brandlens/service/internal/models"
)

// =============================================================================
// 评分引擎 - 将一组评审结果确定性地聚合为0-100的品牌得分
// =============================================================================

const weightTolerance = 1e-6

// Weights 五维权重
// 维度映射：accuracy→权威度, completeness→可见度, sentiment→好感度,
// purity→纯净度, consistency→一致性
type Weights struct {
	Authority   float64 `json:"authority"`
	Visibility  float64 `json:"visibility"`
	Sentiment   float64 `json:"sentiment"`
	Purity      float64 `json:"purity"`
	Consistency float64 `json:"consistency"`
}

// DefaultWeights 默认权重
func DefaultWeights() Weights {
	return Weights{
		Authority:   0.25,
		Visibility:  0.20,
		Sentiment:   0.20,
		Purity:      0.15,
		Consistency: 0.20,
	}
}

// Sum 权重和
func (w Weights) Sum() float64 {
	return w.Authority + w.Visibility + w.Sentiment + w.Purity + w.Consistency
}

// Normalize 归一化为和等于1.0；权重和非正视为非法
func (w Weights) Normalize() (Weights, error) {
	sum := w.Sum()
	if sum <= 0 {
		return Weights{}, fmt.Errorf("权重之和必须为正数，当前为 %f", sum)
	}
	if math.Abs(sum-1.0) <= weightTolerance {
		return w, nil
	}
	return Weights{
		Authority:   w.Authority / sum,
		Visibility:  w.Visibility / sum,
		Sentiment:   w.Sentiment / sum,
		Purity:      w.Purity / sum,
		Consistency: w.Consistency / sum,
	}, nil
}

// Engine 评分引擎
type Engine struct {
	weights Weights
}

// NewEngine 创建评分引擎，构造时完成权重归一化
func NewEngine(weights Weights) (*Engine, error) {
	normalized, err := weights.Normalize()
	if err != nil {
		return nil, err
	}
	return &Engine{weights: normalized}, nil
}

// Weights 当前生效的（已归一化）权重
func (e *Engine) Weights() Weights {
	return e.weights
}

// Calculate 聚合一组评审结果
// nil条目按全零分参与，保证分母稳定：失败的单元格压低而不是抬高得分
func (e *Engine) Calculate(results []*models.JudgeResult) *models.FinalScoreResult {
	var authority, visibility, sentiment, purity, consistency float64

	count := len(results)
	if count > 0 {
		for _, r := range results {
			if r == nil {
				continue
			}
			authority += float64(r.AccuracyScore)
			visibility += float64(r.CompletenessScore)
			sentiment += float64(r.SentimentScore)
			purity += float64(r.PurityScore)
			consistency += float64(r.ConsistencyScore)
		}
		authority /= float64(count)
		visibility /= float64(count)
		sentiment /= float64(count)
		purity /= float64(count)
		consistency /= float64(count)
	}

	weighted := authority*e.weights.Authority +
		visibility*e.weights.Visibility +
		sentiment*e.weights.Sentiment +
		purity*e.weights.Purity +
		consistency*e.weights.Consistency

	geoScore := int(math.Round(weighted))
	if geoScore < 0 {
		geoScore = 0
	}
	if geoScore > 100 {
		geoScore = 100
	}

	grade, label := gradeFor(geoScore)

	result := &models.FinalScoreResult{
		GeoScore:         geoScore,
		AuthorityScore:   round1(authority),
		VisibilityScore:  round1(visibility),
		SentimentScore:   round1(sentiment),
		PurityScore:      round1(purity),
		ConsistencyScore: round1(consistency),
		Grade:            grade,
		Label:            label,
	}
	result.Summary = buildSummary(result)
	return result
}

// gradeFor 固定阈值的等级映射
func gradeFor(geoScore int) (string, string) {
	switch {
	case geoScore >= 85:
		return "A", "品牌健康"
	case geoScore >= 70:
		return "B", "表现良好"
	case geoScore >= 50:
		return "C", "有待提升"
	default:
		return "D", "亟需优化"
	}
}

// dimension 摘要用的维度名和取值
type dimension struct {
	name  string
	score float64
}

// buildSummary 找出最强和最弱维度，生成一句中文摘要
func buildSummary(r *models.FinalScoreResult) string {
	dims := []dimension{
		{"权威度", r.AuthorityScore},
		{"可见度", r.VisibilityScore},
		{"好感度", r.SentimentScore},
		{"纯净度", r.PurityScore},
		{"一致性", r.ConsistencyScore},
	}

	strongest, weakest := dims[0], dims[0]
	for _, d := range dims[1:] {
		if d.score > strongest.score {
			strongest = d
		}
		if d.score < weakest.score {
			weakest = d
		}
	}

	return fmt.Sprintf("品牌综合评级%s（%d分），%s表现最佳（%.1f分），%s相对薄弱（%.1f分），建议重点关注。",
		r.Grade, r.GeoScore, strongest.name, strongest.score, weakest.name, weakest.score)
}

func round1(v float64) float64 {
	return math.Round(v*10) / 10
}
