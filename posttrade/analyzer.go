// Package posttrade 对一次运行的历史做事后分析：
// 奖励分解汇总、逐步累计序列与投资者流向统计。
package posttrade

import (
	"math"
	"sort"

	"gonum.org/v1/gonum/floats"
	"gonum.org/v1/gonum/stat"

	"dealer-market-go/internal/store"
)

// MakerReport 单个做市商的运行报告。
type MakerReport struct {
	MakerID string

	TotalReward     float64
	SpreadRevenue   float64
	PositionRevenue float64
	HedgeCost       float64
	RiskCost        float64

	MeanStepReward float64
	StdStepReward  float64

	// Cumulative[i] 为前 i+1 步的累计总奖励。
	Cumulative []float64

	FinalPosition  float64
	InvestorTrades int
	HedgeTrades    int
}

// InvestorFlow 单个投资者的成交流向。
type InvestorFlow struct {
	InvestorID string
	Trades     int
	AbsVolume  float64
	// MakerShare 各做市商赢得该投资者订单流的笔数占比。
	MakerShare map[string]float64
}

// Summary 一次运行的整体报告。
type Summary struct {
	Steps     int
	Makers    []MakerReport  // 按 id 升序
	Investors []InvestorFlow // 按 id 升序
}

// Analyze 汇总运行历史。空历史返回零值摘要。
func Analyze(st *store.Store) Summary {
	summary := Summary{Steps: st.Steps()}
	logs := st.StepLogs()

	for id, entries := range st.AllRewards() {
		r := MakerReport{MakerID: id}
		totals := make([]float64, len(entries))
		for i, e := range entries {
			r.SpreadRevenue += e.SpreadRevenue
			r.PositionRevenue += e.PositionRevenue
			r.HedgeCost += e.HedgeCost
			r.RiskCost += e.RiskCost
			totals[i] = e.Total
		}
		r.TotalReward = floats.Sum(totals)
		if len(totals) > 0 {
			r.MeanStepReward = stat.Mean(totals, nil)
			if len(totals) > 1 {
				r.StdStepReward = stat.StdDev(totals, nil)
			}
			r.Cumulative = make([]float64, len(totals))
			floats.CumSum(r.Cumulative, totals)
		}
		summary.Makers = append(summary.Makers, r)
	}
	sort.Slice(summary.Makers, func(i, j int) bool {
		return summary.Makers[i].MakerID < summary.Makers[j].MakerID
	})

	idx := make(map[string]*MakerReport, len(summary.Makers))
	for i := range summary.Makers {
		idx[summary.Makers[i].MakerID] = &summary.Makers[i]
	}
	flows := make(map[string]*InvestorFlow)
	for _, log := range logs {
		for _, t := range log.InvestorTrades {
			if r := idx[t.MakerID]; r != nil {
				r.InvestorTrades++
			}
			f := flows[t.InvestorID]
			if f == nil {
				f = &InvestorFlow{InvestorID: t.InvestorID, MakerShare: make(map[string]float64)}
				flows[t.InvestorID] = f
			}
			f.Trades++
			f.AbsVolume += math.Abs(t.Volume)
			f.MakerShare[t.MakerID]++
		}
		for _, h := range log.HedgeTrades {
			if r := idx[h.TakerID]; r != nil {
				r.HedgeTrades++
			}
		}
		for id, pos := range log.Positions {
			if r := idx[id]; r != nil {
				r.FinalPosition = pos
			}
		}
	}
	for _, f := range flows {
		for id := range f.MakerShare {
			f.MakerShare[id] /= float64(f.Trades)
		}
		summary.Investors = append(summary.Investors, *f)
	}
	sort.Slice(summary.Investors, func(i, j int) bool {
		return summary.Investors[i].InvestorID < summary.Investors[j].InvestorID
	})
	return summary
}

// InternalizationRatio 步末净仓绝对值与累计成交量之比，
// 衡量做市商在不对冲时内部消化订单流的程度。无成交时返回 0。
func InternalizationRatio(st *store.Store, makerID string) float64 {
	logs := st.StepLogs()
	if len(logs) == 0 {
		return 0
	}
	var volume float64
	for _, log := range logs {
		for _, t := range log.InvestorTrades {
			if t.MakerID == makerID {
				volume += math.Abs(t.Volume)
			}
		}
		for _, h := range log.HedgeTrades {
			if h.TakerID == makerID || h.MakerID == makerID {
				volume += math.Abs(h.Volume)
			}
		}
	}
	if volume == 0 {
		return 0
	}
	return math.Abs(logs[len(logs)-1].Positions[makerID]) / volume
}
