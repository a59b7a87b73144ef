package dealer

import (
	"fmt"
	"math"
	"sync"

	"dealer-market-go/dealer/hedge"
	"dealer-market-go/inventory"
	"dealer-market-go/market"
)

const (
	// 基础半价差低于该值时报价比例退化为 1，避免除零。
	spreadEpsilon = 1e-12
	// 成交量低于该值时跳过收益更新。
	yieldVolumeEpsilon = 1e-9
	// 净仓位低于该值视为无需对冲。
	positionEpsilon = 1e-6
)

// Curve 做市商定价所需的市场侧只读视图。
type Curve interface {
	MidPrice() float64
	ReferenceHalfSpread(v float64) float64
}

// MarketMaker 做市商：持有净仓位、层级表与收益估计，
// 基于参考曲线报价并给出对冲规模。
type MarketMaker struct {
	cfg    Config
	book   *inventory.Book
	solver *hedge.Solver

	mu       sync.RWMutex
	tiers    map[string]int
	yields   map[string]float64
	sigmaEst float64
	ewma     *market.EWMAEstimator
}

// New 创建做市商。配置非法时直接报错，不做隐式修正。
func New(cfg Config) (*MarketMaker, error) {
	cfg.fillDefaults()
	if err := cfg.validate(); err != nil {
		return nil, fmt.Errorf("maker %q config: %w", cfg.ID, err)
	}
	m := &MarketMaker{
		cfg:      cfg,
		book:     &inventory.Book{},
		solver:   hedge.NewSolver(cfg.Solver),
		tiers:    make(map[string]int),
		yields:   make(map[string]float64),
		sigmaEst: cfg.SigmaEst,
	}
	if cfg.AdaptiveSigma {
		m.ewma = market.NewEWMAEstimator(cfg.SigmaEWMALambda)
	}
	return m, nil
}

// ID 做市商标识。
func (m *MarketMaker) ID() string {
	return m.cfg.ID
}

// NetPosition 当前净仓位。
func (m *MarketMaker) NetPosition() float64 {
	return m.book.Net()
}

// Book 底层仓位账本。
func (m *MarketMaker) Book() *inventory.Book {
	return m.book
}

// Tier 返回投资者层级，未知投资者落在策略默认层。
func (m *MarketMaker) Tier(investorID string) int {
	m.mu.RLock()
	defer m.mu.RUnlock()
	if tier, ok := m.tiers[investorID]; ok {
		return tier
	}
	return m.cfg.Tiering.DefaultTier(m.cfg.NumTiers)
}

// HalfSpread 返回对 takerID 报出的半价差 s(v,u)：
// s_ref(0)*(s_ref(v)/s_ref(0))^alpha + delta_tier*u。
func (m *MarketMaker) HalfSpread(curve Curve, takerID string, volume float64) float64 {
	base0 := curve.ReferenceHalfSpread(0)
	baseV := curve.ReferenceHalfSpread(volume)
	ratio := 1.0
	if base0 >= spreadEpsilon {
		ratio = baseV / base0
	}
	return base0*math.Pow(ratio, m.cfg.Alpha) + m.cfg.DeltaTier*float64(m.Tier(takerID))
}

// InventorySkew 库存倾斜项 -gamma*sigma^2*net，持仓方向的报价被压低。
func (m *MarketMaker) InventorySkew() float64 {
	sigma := m.SigmaEstimate()
	return -m.cfg.Gamma * sigma * sigma * m.book.Net()
}

// QuotedPrice 对投资者的成交价：mid + skew + direction*halfSpread。
// direction 为 +1 表示投资者买入。纯函数，不改内部状态。
func (m *MarketMaker) QuotedPrice(curve Curve, investorID string, volume float64, direction int) float64 {
	return curve.MidPrice() + m.InventorySkew() + float64(direction)*m.HalfSpread(curve, investorID, volume)
}

// ApplyTrade 记录一笔成交，signedVolume 为本方视角的带符号数量。
func (m *MarketMaker) ApplyTrade(signedVolume, price float64) {
	m.book.Apply(signedVolume, price)
}

// UpdateTiering 按当前收益估计重建层级表。
func (m *MarketMaker) UpdateTiering() {
	m.mu.Lock()
	defer m.mu.Unlock()
	yields := make(map[string]float64, len(m.yields))
	for id, y := range m.yields {
		yields[id] = y
	}
	assigned := m.cfg.Tiering.Assign(yields, m.cfg.NumTiers)
	m.tiers = make(map[string]int, len(assigned))
	for id, tier := range assigned {
		m.tiers[id] = tier
	}
}

// RecordYield 在延迟收益实现时更新投资者收益 EMA。
// 首次观测直接取值，之后按 beta 衰减混合；接近零的成交量被跳过。
func (m *MarketMaker) RecordYield(investorID string, revenue, volume float64) {
	vol := math.Abs(volume)
	if vol < yieldVolumeEpsilon {
		return
	}
	y := revenue / vol
	m.mu.Lock()
	defer m.mu.Unlock()
	prev, ok := m.yields[investorID]
	if !ok {
		m.yields[investorID] = y
		return
	}
	m.yields[investorID] = m.cfg.YieldBeta*prev + (1-m.cfg.YieldBeta)*y
}

// YieldEMA 返回投资者当前收益估计。
func (m *MarketMaker) YieldEMA(investorID string) (float64, bool) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	y, ok := m.yields[investorID]
	return y, ok
}

// HedgeQuantity 求解对冲规模：返回本步应成交的数量与方向。
// 方向永远朝减仓一侧；策略关闭或仓位接近零时返回 (0,0)。
func (m *MarketMaker) HedgeQuantity(cost hedge.CostFunc) (float64, int) {
	if m.cfg.DisableHedging {
		return 0, 0
	}
	net := m.book.Net()
	if math.Abs(net) < positionEpsilon {
		return 0, 0
	}
	first := m.solver.FirstTranche(net, m.cfg.NMax, m.cfg.Gamma, m.SigmaEstimate(), cost)
	direction := -1
	if net < 0 {
		direction = 1
	}
	return first * math.Abs(net), direction
}

// ObserveMid 喂入最新中间价；开启 AdaptiveSigma 时更新波动率估计。
func (m *MarketMaker) ObserveMid(mid float64) {
	if m.ewma == nil {
		return
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	m.ewma.AddMid(mid)
	if m.ewma.Ready() {
		m.sigmaEst = m.ewma.Sigma()
	}
}

// SigmaEstimate 当前波动率估计。
func (m *MarketMaker) SigmaEstimate() float64 {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.sigmaEst
}

// SolverStats 求解次数与退化为均匀方案的次数。
func (m *MarketMaker) SolverStats() (solves, fallbacks int64) {
	return m.solver.Stats()
}

// GetStatistics 返回统计信息。
func (m *MarketMaker) GetStatistics() map[string]interface{} {
	m.mu.RLock()
	defer m.mu.RUnlock()
	solves, fallbacks := m.solver.Stats()
	return map[string]interface{}{
		"id":               m.cfg.ID,
		"net_position":     m.book.Net(),
		"cash":             m.book.Cash(),
		"tiered_investors": len(m.tiers),
		"tracked_yields":   len(m.yields),
		"sigma_est":        m.sigmaEst,
		"solver_solves":    solves,
		"solver_fallbacks": fallbacks,
	}
}
