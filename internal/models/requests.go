package models

import (
	"encoding/json"
	"fmt"
)

// =============================================================================
// API请求模型
// =============================================================================

// SelectedModel 用户勾选的模型
// 前端可能传 {"name":"deepseek","checked":true} 也可能直接传 "deepseek"
type SelectedModel struct {
	Name    string `json:"name"`
	Checked bool   `json:"checked"`
}

// UnmarshalJSON 兼容字符串和对象两种写法
func (m *SelectedModel) UnmarshalJSON(data []byte) error {
	var name string
	if err := json.Unmarshal(data, &name); err == nil {
		m.Name = name
		m.Checked = true
		return nil
	}

	type alias SelectedModel
	var obj alias
	if err := json.Unmarshal(data, &obj); err != nil {
		return fmt.Errorf("selectedModels元素格式错误: %w", err)
	}
	*m = SelectedModel(obj)
	return nil
}

// SubmitRequest 提交诊断任务请求
// brand_list[0] 为主品牌，其余为竞品
type SubmitRequest struct {
	BrandList       []string        `json:"brand_list"`
	SelectedModels  []SelectedModel `json:"selectedModels"`
	CustomQuestion  string          `json:"custom_question"`
	CustomQuestions []string        `json:"customQuestions"`
}

// Questions 归并两种问题字段；都为空时返回nil由调用方决定默认题库
func (r *SubmitRequest) Questions() []string {
	if len(r.CustomQuestions) > 0 {
		questions := make([]string, 0, len(r.CustomQuestions))
		for _, q := range r.CustomQuestions {
			if q != "" {
				questions = append(questions, q)
			}
		}
		if len(questions) > 0 {
			return questions
		}
	}
	if r.CustomQuestion != "" {
		return []string{r.CustomQuestion}
	}
	return nil
}

// CheckedModels 返回勾选的模型名列表
func (r *SubmitRequest) CheckedModels() []string {
	names := make([]string, 0, len(r.SelectedModels))
	for _, m := range r.SelectedModels {
		if m.Checked && m.Name != "" {
			names = append(names, m.Name)
		}
	}
	return names
}

// RetryRequest 单维度重试请求
type RetryRequest struct {
	ExecutionID   string `json:"executionId"`
	DimensionName string `json:"dimensionName"`
	Source        string `json:"source"` // 平台/模型名
	Brand         string `json:"brand"`
	Question      string `json:"question"`
}
