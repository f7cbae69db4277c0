package models

import (
	"encoding/json"
	"testing"
)

func TestSelectedModelUnmarshalObject(t *testing.T) {
	var req SubmitRequest
	payload := `{"brand_list":["Acme"],"selectedModels":[{"name":"deepseek","checked":true},{"name":"qwen","checked":false}]}`
	if err := json.Unmarshal([]byte(payload), &req); err != nil {
		t.Fatalf("解析失败: %v", err)
	}

	checked := req.CheckedModels()
	if len(checked) != 1 || checked[0] != "deepseek" {
		t.Errorf("应只返回勾选的模型: %v", checked)
	}
}

func TestSelectedModelUnmarshalBareString(t *testing.T) {
	// 前端旧版本直接传字符串数组
	var req SubmitRequest
	payload := `{"brand_list":["Acme"],"selectedModels":["deepseek","通义千问"]}`
	if err := json.Unmarshal([]byte(payload), &req); err != nil {
		t.Fatalf("解析失败: %v", err)
	}

	checked := req.CheckedModels()
	if len(checked) != 2 {
		t.Fatalf("字符串写法应默认勾选: %v", checked)
	}
	if checked[1] != "通义千问" {
		t.Errorf("中文模型名应保留: %s", checked[1])
	}
}

func TestSelectedModelUnmarshalBadElement(t *testing.T) {
	var req SubmitRequest
	payload := `{"selectedModels":[42]}`
	if err := json.Unmarshal([]byte(payload), &req); err == nil {
		t.Error("非法元素类型应解析失败")
	}
}

func TestSubmitRequestQuestionsMerging(t *testing.T) {
	// customQuestions优先
	req := SubmitRequest{
		CustomQuestion:  "单个问题",
		CustomQuestions: []string{"问题一", "", "问题二"},
	}
	questions := req.Questions()
	if len(questions) != 2 {
		t.Errorf("空问题应被过滤，应剩2个: %v", questions)
	}

	// 没有customQuestions时退回custom_question
	req = SubmitRequest{CustomQuestion: "单个问题"}
	questions = req.Questions()
	if len(questions) != 1 || questions[0] != "单个问题" {
		t.Errorf("应退回单问题字段: %v", questions)
	}

	// 都为空返回nil，由调用方决定默认题库
	req = SubmitRequest{}
	if req.Questions() != nil {
		t.Error("无问题时应返回nil")
	}
}

func TestRawCellResultCellKey(t *testing.T) {
	a := RawCellResult{Brand: "Acme", Model: "deepseek", Question: "q1"}
	b := RawCellResult{Brand: "Acme", Model: "deepseek", Question: "q1", Success: true}
	c := RawCellResult{Brand: "Acme", Model: "qwen", Question: "q1"}

	if a.CellKey() != b.CellKey() {
		t.Error("同一单元格的不同结果应有相同的键")
	}
	if a.CellKey() == c.CellKey() {
		t.Error("不同模型的单元格键应不同")
	}
}

func TestExecutionStatusTerminal(t *testing.T) {
	terminal := []ExecutionStatus{StatusCompleted, StatusFailed, StatusTimeout}
	for _, s := range terminal {
		if !s.Terminal() {
			t.Errorf("%s 应为终态", s)
		}
	}
	for _, s := range []ExecutionStatus{StatusInitializing, StatusProcessing} {
		if s.Terminal() {
			t.Errorf("%s 不应为终态", s)
		}
	}
}
