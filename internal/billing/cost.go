package billing

import (
	log "github.com/sirupsen/logrus"
	"github.com/shopspring/decimal"

	"llmgateway/internal/model"
)

var oneThousand = decimal.NewFromInt(1000)

// EstimateCost 按 1K token 单价估算本次调用的美元成本
// 单价或 token 计量缺失时返回 nil（缺失不等于 0）
func EstimateCost(m *model.Model, usage model.TokenUsage) *float64 {
	if m == nil {
		return nil
	}
	if m.InputCostPer1K <= 0 && m.OutputCostPer1K <= 0 {
		return nil
	}
	if usage.PromptTokens == 0 && usage.CompletionTokens == 0 {
		return nil
	}

	// 用 decimal 累计，避免浮点误差
	inputCost := decimal.NewFromInt(int64(usage.PromptTokens)).
		Mul(decimal.NewFromFloat(m.InputCostPer1K)).
		Div(oneThousand)
	outputCost := decimal.NewFromInt(int64(usage.CompletionTokens)).
		Mul(decimal.NewFromFloat(m.OutputCostPer1K)).
		Div(oneThousand)

	total, _ := inputCost.Add(outputCost).Round(6).Float64()

	log.Debugf("billing: estimated cost for %s - input=%d, output=%d -> $%.6f",
		m.Name, usage.PromptTokens, usage.CompletionTokens, total)

	return &total
}
