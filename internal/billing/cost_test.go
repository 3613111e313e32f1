package billing

import (
	"testing"

	"llmgateway/internal/model"
)

func TestEstimateCost(t *testing.T) {
	m := &model.Model{Name: "m", InputCostPer1K: 0.5, OutputCostPer1K: 1.5}

	cost := EstimateCost(m, model.TokenUsage{PromptTokens: 1000, CompletionTokens: 2000})
	if cost == nil {
		t.Fatal("expected a cost")
	}
	// 1000*0.5/1000 + 2000*1.5/1000 = 3.5
	if *cost != 3.5 {
		t.Errorf("unexpected cost: %v", *cost)
	}
}

func TestEstimateCostDecimalPrecision(t *testing.T) {
	// 0.1 + 0.2 类的浮点陷阱不应出现在结果里
	m := &model.Model{Name: "m", InputCostPer1K: 0.1, OutputCostPer1K: 0.2}

	cost := EstimateCost(m, model.TokenUsage{PromptTokens: 1000, CompletionTokens: 1000})
	if cost == nil {
		t.Fatal("expected a cost")
	}
	if *cost != 0.3 {
		t.Errorf("unexpected cost: %v", *cost)
	}
}

func TestEstimateCostMissingData(t *testing.T) {
	if cost := EstimateCost(nil, model.TokenUsage{PromptTokens: 10}); cost != nil {
		t.Error("nil model must yield nil cost")
	}

	noRates := &model.Model{Name: "m"}
	if cost := EstimateCost(noRates, model.TokenUsage{PromptTokens: 10, CompletionTokens: 10}); cost != nil {
		t.Error("unpriced model must yield nil cost")
	}

	priced := &model.Model{Name: "m", InputCostPer1K: 1}
	if cost := EstimateCost(priced, model.TokenUsage{}); cost != nil {
		t.Error("missing token counts must yield nil cost, not zero")
	}
}

func TestEstimateCostSingleSidedRate(t *testing.T) {
	m := &model.Model{Name: "m", OutputCostPer1K: 2}

	cost := EstimateCost(m, model.TokenUsage{PromptTokens: 500, CompletionTokens: 500})
	if cost == nil {
		t.Fatal("expected a cost")
	}
	if *cost != 1.0 {
		t.Errorf("unexpected cost: %v", *cost)
	}
}
