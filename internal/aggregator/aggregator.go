package aggregator

import (
	"log"
	"sort"
	"time"

	"github.com/brandlens/service/internal/models"
	"github.com/brandlens/service/internal/scoring"
)

// =============================================================================
// 结果聚合器 - 把平铺的单元格结果聚合成品牌对比报告
// 失败/无评审的单元格按零分计入，分母恒等于该品牌的单元格数：
// 把失败项从分母里剔除会悄悄抬高幸存结果的得分
// =============================================================================

const excerptMaxRunes = 120

// Aggregator 结果聚合器
type Aggregator struct {
	scorer *scoring.Engine
}

// New 创建聚合器
func New(scorer *scoring.Engine) *Aggregator {
	return &Aggregator{scorer: scorer}
}

// BuildReport 生成最终报告
// judgeEnabled区分"未配置评审"和"评审打了零分"，数据本身不缺失
func (a *Aggregator) BuildReport(brands []string, results []models.RawCellResult, judgeEnabled bool) *models.DiagnosisReport {
	report := &models.DiagnosisReport{
		CompetitiveAnalysis: models.CompetitiveAnalysis{
			BrandScores: make(map[string]*models.FinalScoreResult, len(brands)),
		},
		SentimentMap: make(map[string]map[string]int, len(brands)),
		JudgeEnabled: judgeEnabled,
		GeneratedAt:  time.Now(),
	}

	grouped := groupByBrand(brands, results)

	for _, brand := range brands {
		cells := grouped[brand]

		judgeResults := make([]*models.JudgeResult, 0, len(cells))
		sentiments := map[string]int{
			models.SentimentPositive: 0,
			models.SentimentNeutral:  0,
			models.SentimentNegative: 0,
		}

		for _, cell := range cells {
			// 失败单元格和评审缺失都显式补零，nil由评分引擎按全零参与
			judgeResults = append(judgeResults, cell.Judge)

			if cell.Success {
				sentiments[normalizeSentiment(cell.Sentiment)]++
				report.SourceCitations = append(report.SourceCitations, models.SourceCitation{
					Brand:    cell.Brand,
					Platform: cell.Platform,
					Model:    cell.Model,
					Question: cell.Question,
					Excerpt:  excerpt(cell.Content),
				})
			}
		}

		report.CompetitiveAnalysis.BrandScores[brand] = a.scorer.Calculate(judgeResults)
		report.SentimentMap[brand] = sentiments
	}

	report.CompetitiveAnalysis.Rankings = buildRankings(brands, report.CompetitiveAnalysis.BrandScores)
	return report
}

// groupByBrand 按品牌分组；形状不对的结果记日志跳过，不让一条坏数据中断聚合
func groupByBrand(brands []string, results []models.RawCellResult) map[string][]models.RawCellResult {
	known := make(map[string]bool, len(brands))
	for _, b := range brands {
		known[b] = true
	}

	grouped := make(map[string][]models.RawCellResult, len(brands))
	for _, r := range results {
		if r.Brand == "" || !known[r.Brand] {
			log.Printf("⚠️ [聚合器] 跳过无法归属品牌的结果: brand=%q model=%q", r.Brand, r.Model)
			continue
		}
		grouped[r.Brand] = append(grouped[r.Brand], r)
	}
	return grouped
}

// buildRankings GEO得分降序排名，同分按品牌名保证顺序稳定
func buildRankings(brands []string, scores map[string]*models.FinalScoreResult) []models.BrandRanking {
	rankings := make([]models.BrandRanking, 0, len(brands))
	for _, brand := range brands {
		score := scores[brand]
		if score == nil {
			continue
		}
		rankings = append(rankings, models.BrandRanking{
			Brand:    brand,
			GeoScore: score.GeoScore,
			Grade:    score.Grade,
		})
	}

	sort.Slice(rankings, func(i, j int) bool {
		if rankings[i].GeoScore != rankings[j].GeoScore {
			return rankings[i].GeoScore > rankings[j].GeoScore
		}
		return rankings[i].Brand < rankings[j].Brand
	})

	for i := range rankings {
		rankings[i].Rank = i + 1
	}
	return rankings
}

// normalizeSentiment 非法情感标签并入neutral
func normalizeSentiment(s string) string {
	switch s {
	case models.SentimentPositive, models.SentimentNegative:
		return s
	default:
		return models.SentimentNeutral
	}
}

// excerpt 引用摘录截断
func excerpt(content string) string {
	runes := []rune(content)
	if len(runes) <= excerptMaxRunes {
		return content
	}
	return string(runes[:excerptMaxRunes]) + "..."
}
