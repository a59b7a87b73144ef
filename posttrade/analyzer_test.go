package posttrade

import (
	"math"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"dealer-market-go/internal/store"
)

func buildHistory(t *testing.T) *store.Store {
	t.Helper()
	st := store.New(nil)

	st.AppendStep(store.StepLog{
		Step: 1,
		Mid:  100,
		InvestorTrades: []store.InvestorTrade{
			{InvestorID: "INV_0", MakerID: "MM_0", Volume: -2, Price: 100.1},
			{InvestorID: "INV_1", MakerID: "MM_1", Volume: 3, Price: 99.9},
		},
		HedgeTrades: []store.HedgeTrade{
			{TakerID: "MM_1", MakerID: "MM_0", Volume: 1, Price: 100.05, SpreadPaid: 0.05},
		},
		Positions: map[string]float64{"MM_0": -3, "MM_1": 4},
	}, nil)
	st.AppendStep(store.StepLog{
		Step: 2,
		Mid:  101,
		InvestorTrades: []store.InvestorTrade{
			{InvestorID: "INV_0", MakerID: "MM_1", Volume: -1, Price: 101.2},
		},
		Positions: map[string]float64{"MM_0": -3, "MM_1": 3},
	}, nil)

	st.AppendReward(store.RewardEntry{Step: 1, MakerID: "MM_0", SpreadRevenue: 0.2, Total: 0.2})
	st.AppendReward(store.RewardEntry{Step: 2, MakerID: "MM_0", PositionRevenue: -3, RiskCost: -3, Total: -6})
	st.AppendReward(store.RewardEntry{Step: 1, MakerID: "MM_1", SpreadRevenue: 0.3, HedgeCost: 0.05, Total: 0.25})
	st.AppendReward(store.RewardEntry{Step: 2, MakerID: "MM_1", PositionRevenue: 4, Total: 4})
	return st
}

func TestAnalyzeMakerReports(t *testing.T) {
	summary := Analyze(buildHistory(t))
	require.Equal(t, 2, summary.Steps)
	require.Len(t, summary.Makers, 2)

	m0 := summary.Makers[0]
	assert.Equal(t, "MM_0", m0.MakerID)
	assert.InDelta(t, -5.8, m0.TotalReward, 1e-12)
	assert.InDelta(t, 0.2, m0.SpreadRevenue, 1e-12)
	assert.InDelta(t, -3, m0.RiskCost, 1e-12)
	assert.InDelta(t, -2.9, m0.MeanStepReward, 1e-12)
	// 样本标准差：|0.2-(-2.9)| 的 sqrt(2) 倍数关系。
	assert.InDelta(t, math.Sqrt2*3.1, m0.StdStepReward, 1e-9)
	assert.Equal(t, []float64{0.2, -5.8}, m0.Cumulative)
	assert.Equal(t, 1, m0.InvestorTrades)
	assert.InDelta(t, -3, m0.FinalPosition, 1e-12)

	m1 := summary.Makers[1]
	assert.Equal(t, "MM_1", m1.MakerID)
	assert.InDelta(t, 4.25, m1.TotalReward, 1e-12)
	assert.InDelta(t, 0.05, m1.HedgeCost, 1e-12)
	assert.Equal(t, 2, m1.InvestorTrades)
	assert.Equal(t, 1, m1.HedgeTrades)
}

func TestAnalyzeInvestorFlow(t *testing.T) {
	summary := Analyze(buildHistory(t))
	require.Len(t, summary.Investors, 2)

	inv0 := summary.Investors[0]
	assert.Equal(t, "INV_0", inv0.InvestorID)
	assert.Equal(t, 2, inv0.Trades)
	assert.InDelta(t, 3, inv0.AbsVolume, 1e-12)
	assert.InDelta(t, 0.5, inv0.MakerShare["MM_0"], 1e-12)
	assert.InDelta(t, 0.5, inv0.MakerShare["MM_1"], 1e-12)

	inv1 := summary.Investors[1]
	assert.InDelta(t, 1.0, inv1.MakerShare["MM_1"], 1e-12)
}

func TestAnalyzeEmptyHistory(t *testing.T) {
	summary := Analyze(store.New(nil))
	assert.Zero(t, summary.Steps)
	assert.Empty(t, summary.Makers)
	assert.Empty(t, summary.Investors)
}

func TestInternalizationRatio(t *testing.T) {
	st := buildHistory(t)
	// MM_0：投资者量 2 + 对冲量 1 = 3，末仓 |-3|。
	assert.InDelta(t, 1.0, InternalizationRatio(st, "MM_0"), 1e-12)
	// MM_1：投资者量 3+1 + 对冲量 1 = 5，末仓 |3|。
	assert.InDelta(t, 0.6, InternalizationRatio(st, "MM_1"), 1e-12)
	assert.Zero(t, InternalizationRatio(st, "absent"))
	assert.Zero(t, InternalizationRatio(store.New(nil), "MM_0"))
}
