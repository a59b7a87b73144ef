package engine

import (
	"errors"
	"fmt"
	"math"
	"math/rand"
	"sync"
	"time"

	"go.uber.org/zap"

	"dealer-market-go/dealer"
	"dealer-market-go/dealer/hedge"
	"dealer-market-go/infrastructure/logger"
	"dealer-market-go/internal/store"
	"dealer-market-go/investor"
	"dealer-market-go/market"
	"dealer-market-go/monitor"
)

// EngineState 引擎状态
type EngineState int

const (
	// StateIdle 尚未执行任何步
	StateIdle EngineState = iota
	// StateRunning 正在执行步循环
	StateRunning
	// StateStopped 已完成或被停止
	StateStopped
)

// String 返回状态名称
func (s EngineState) String() string {
	switch s {
	case StateIdle:
		return "IDLE"
	case StateRunning:
		return "RUNNING"
	case StateStopped:
		return "STOPPED"
	default:
		return "UNKNOWN"
	}
}

// Environment 引擎消费的外生市场接口。
type Environment interface {
	Step()
	MidPrice() float64
	ReferenceHalfSpread(v float64) float64
	PeekNextDelta() float64
	TakeSnapshot() market.Snapshot
}

// Config 清算引擎配置。
type Config struct {
	DelayWindow    int     // 仓位收益延迟结算的步数
	HedgeThreshold float64 // 低于该量的对冲不执行
	TieEpsilon     float64 // 报价并列判定阈值
}

// Components 引擎依赖组件。
type Components struct {
	Environment Environment
	Makers      []*dealer.MarketMaker
	Investors   []investor.Investor
	Store       *store.Store
	Logger      *logger.Logger
	Recorder    monitor.Recorder  // 可选
	Publisher   *market.Publisher // 可选
	RNG         *rand.Rand        // 并列随机打破所用；为空时时间种子
}

// Engine 市场清算引擎：每个离散时间步依次执行
// 行情推进、分层刷新、投资者撮合、对冲撮合与延迟奖励结算。
// 步内各阶段共享状态且顺序固定，不支持并发执行步。
type Engine struct {
	cfg  Config
	env  Environment
	mks  []*dealer.MarketMaker
	invs []investor.Investor
	st   *store.Store
	log  *logger.Logger
	rec  monitor.Recorder
	pub  *market.Publisher
	rng  *rand.Rand

	mu      sync.Mutex
	state   EngineState
	step    int
	prevMid float64
}

// New 创建清算引擎。配置或组件非法时直接报错。
func New(cfg Config, components Components) (*Engine, error) {
	if err := validateConfig(cfg); err != nil {
		return nil, fmt.Errorf("invalid config: %w", err)
	}
	if err := validateComponents(components); err != nil {
		return nil, fmt.Errorf("invalid components: %w", err)
	}
	if cfg.HedgeThreshold == 0 {
		cfg.HedgeThreshold = 1e-4
	}
	if cfg.TieEpsilon == 0 {
		cfg.TieEpsilon = 1e-12
	}
	rng := components.RNG
	if rng == nil {
		rng = rand.New(rand.NewSource(time.Now().UnixNano()))
	}
	return &Engine{
		cfg:     cfg,
		env:     components.Environment,
		mks:     components.Makers,
		invs:    components.Investors,
		st:      components.Store,
		log:     components.Logger,
		rec:     components.Recorder,
		pub:     components.Publisher,
		rng:     rng,
		state:   StateIdle,
		prevMid: components.Environment.MidPrice(),
	}, nil
}

// Run 连续执行 steps 步。
func (e *Engine) Run(steps int) error {
	if steps <= 0 {
		return fmt.Errorf("steps must be positive, got %d", steps)
	}
	for i := 0; i < steps; i++ {
		e.RunStep()
	}
	return nil
}

// RunStep 执行一个完整时间步。做市商与投资者的遍历顺序固定，
// 同种子下逐步可复现。
func (e *Engine) RunStep() {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.state = StateRunning

	// 步初仓位：风险成本按价格变动期间持有的敞口计。
	startPositions := make([]float64, len(e.mks))
	for i, m := range e.mks {
		startPositions[i] = m.NetPosition()
	}

	// 阶段 1：行情推进。知情投资者的信号是下一步的预期价格变化。
	e.env.Step()
	futureDelta := e.env.PeekNextDelta()
	snap := e.env.TakeSnapshot()
	mid := snap.Mid
	e.step++

	// 阶段 2：分层刷新与波动率观测。
	for _, m := range e.mks {
		m.ObserveMid(mid)
		m.UpdateTiering()
	}

	bucket := make([]store.TradeRecord, 0, len(e.invs))
	stepLog := store.StepLog{
		Step:      e.step,
		Mid:       mid,
		Positions: make(map[string]float64, len(e.mks)),
	}

	// 阶段 3：投资者撮合。
	for _, inv := range e.invs {
		req, ok := inv.GenerateRequest(futureDelta)
		if !ok {
			continue
		}
		winner := e.pickBestQuote(inv.ID(), req.Volume, req.Direction)
		if winner == nil {
			continue
		}
		execPrice := winner.QuotedPrice(e.env, inv.ID(), req.Volume, req.Direction)
		signedVol := -float64(req.Direction) * req.Volume
		winner.ApplyTrade(signedVol, execPrice)

		rec := store.TradeRecord{
			Step:           e.step,
			Kind:           store.TradeInvestor,
			OwnerID:        winner.ID(),
			CounterpartyID: inv.ID(),
			SignedVolume:   signedVol,
			ExecPrice:      execPrice,
			MidAtTrade:     mid,
			SpreadRevenue:  signedVol * (mid - execPrice),
		}
		bucket = append(bucket, rec)
		stepLog.InvestorTrades = append(stepLog.InvestorTrades, store.InvestorTrade{
			InvestorID: inv.ID(),
			MakerID:    winner.ID(),
			Volume:     signedVol,
			Price:      execPrice,
		})
		e.count(monitor.MetricInvestorTrades, winner.ID())
		e.publishTrade("investor", winner.ID(), inv.ID(), signedVol, execPrice, mid)
	}

	// 阶段 4：对冲撮合。每个做市商以其他做市商的最优报价为边际成本。
	if len(e.mks) >= 2 {
		for i, taker := range e.mks {
			hedgeVol, dir := taker.HedgeQuantity(e.competitorCost(i))
			if hedgeVol <= e.cfg.HedgeThreshold || dir == 0 {
				continue
			}
			counterparty := e.pickHedgeCounterparty(i, taker.ID(), hedgeVol)
			if counterparty == nil {
				continue
			}
			spread := counterparty.HalfSpread(e.env, taker.ID(), hedgeVol)
			price := mid + float64(dir)*spread
			takerVol := float64(dir) * hedgeVol
			taker.ApplyTrade(takerVol, price)
			counterparty.ApplyTrade(-takerVol, price)

			bucket = append(bucket,
				store.TradeRecord{
					Step:           e.step,
					Kind:           store.TradeHedge,
					OwnerID:        taker.ID(),
					CounterpartyID: counterparty.ID(),
					SignedVolume:   takerVol,
					ExecPrice:      price,
					MidAtTrade:     mid,
					Taker:          true,
				},
				store.TradeRecord{
					Step:           e.step,
					Kind:           store.TradeHedge,
					OwnerID:        counterparty.ID(),
					CounterpartyID: taker.ID(),
					SignedVolume:   -takerVol,
					ExecPrice:      price,
					MidAtTrade:     mid,
				},
			)
			stepLog.HedgeTrades = append(stepLog.HedgeTrades, store.HedgeTrade{
				TakerID:    taker.ID(),
				MakerID:    counterparty.ID(),
				Volume:     takerVol,
				Price:      price,
				SpreadPaid: spread * hedgeVol,
			})
			e.count(monitor.MetricHedgeTrades, taker.ID())
			e.publishTrade("hedge", counterparty.ID(), taker.ID(), takerVol, price, mid)
		}
	}

	for _, m := range e.mks {
		stepLog.Positions[m.ID()] = m.NetPosition()
	}

	// 阶段 5：结算。当步桶入队后按固定延迟读取历史桶实现仓位收益。
	e.st.AppendStep(stepLog, bucket)
	delayed := e.st.Bucket(e.step - e.cfg.DelayWindow)
	rewards := make(map[string]float64, len(e.mks))
	for i, m := range e.mks {
		entry := e.settle(m, startPositions[i], mid, stepLog, delayed)
		e.st.AppendReward(entry)
		rewards[m.ID()] = entry.Total
	}
	e.prevMid = mid
	e.count(monitor.MetricStepsExecuted, "")

	if e.pub != nil {
		e.pub.PublishStep(market.StepEvent{
			Step:      e.step,
			Mid:       mid,
			Trades:    len(stepLog.InvestorTrades),
			Hedges:    len(stepLog.HedgeTrades),
			Positions: stepLog.Positions,
			Rewards:   rewards,
		})
	}
	e.log.Debug("step cleared",
		zap.Int("step", e.step),
		zap.Float64("mid", mid),
		zap.Int("investor_trades", len(stepLog.InvestorTrades)),
		zap.Int("hedge_trades", len(stepLog.HedgeTrades)))
}

// settle 计算单个做市商当步的奖励分解。
// 价差收益只来自当步投资者成交；对冲成本取当步 taker 侧支付的价差；
// 仓位收益来自 delay 步前的成交桶，按 signed_vol*(mid_now-mid_at_trade) 统一计算，
// 并在此刻用已实现总收益更新投资者收益 EMA；风险成本只罚损失。
func (e *Engine) settle(m *dealer.MarketMaker, startPos, mid float64, stepLog store.StepLog, delayed []store.TradeRecord) store.RewardEntry {
	id := m.ID()
	entry := store.RewardEntry{Step: e.step, MakerID: id}

	for _, t := range stepLog.InvestorTrades {
		if t.MakerID == id {
			entry.SpreadRevenue += math.Abs(t.Price-mid) * math.Abs(t.Volume)
		}
	}
	for _, h := range stepLog.HedgeTrades {
		if h.TakerID == id {
			entry.HedgeCost += h.SpreadPaid
		}
	}
	for _, rec := range delayed {
		if rec.OwnerID != id {
			continue
		}
		posComponent := rec.SignedVolume * (mid - rec.MidAtTrade)
		entry.PositionRevenue += posComponent
		if rec.Kind == store.TradeInvestor {
			m.RecordYield(rec.CounterpartyID, rec.SpreadRevenue+posComponent, rec.SignedVolume)
		}
	}
	entry.RiskCost = math.Min(startPos*(mid-e.prevMid), 0)
	entry.Total = entry.SpreadRevenue + entry.PositionRevenue - entry.HedgeCost + entry.RiskCost
	return entry
}

// pickBestQuote 返回对该请求报价最优的做市商。
// 买单取最低价，卖单取最高价；并列时在并列者中均匀随机选择。
func (e *Engine) pickBestQuote(investorID string, volume float64, direction int) *dealer.MarketMaker {
	var tied []*dealer.MarketMaker
	best := 0.0
	for _, m := range e.mks {
		p := m.QuotedPrice(e.env, investorID, volume, direction)
		if math.IsNaN(p) || math.IsInf(p, 0) {
			continue
		}
		if len(tied) == 0 {
			tied = append(tied, m)
			best = p
			continue
		}
		if math.Abs(p-best) <= e.cfg.TieEpsilon {
			tied = append(tied, m)
			continue
		}
		better := p < best
		if direction < 0 {
			better = p > best
		}
		if better {
			tied = tied[:0]
			tied = append(tied, m)
			best = p
		}
	}
	return e.pickTied(tied)
}

// pickHedgeCounterparty 返回对 takerID 的对冲量报价最低的其他做市商。
func (e *Engine) pickHedgeCounterparty(takerIdx int, takerID string, volume float64) *dealer.MarketMaker {
	var tied []*dealer.MarketMaker
	best := math.Inf(1)
	for j, other := range e.mks {
		if j == takerIdx {
			continue
		}
		s := other.HalfSpread(e.env, takerID, volume)
		if math.IsNaN(s) || math.IsInf(s, 0) {
			continue
		}
		switch {
		case len(tied) == 0 || s < best-e.cfg.TieEpsilon:
			tied = tied[:0]
			tied = append(tied, other)
			best = s
		case math.Abs(s-best) <= e.cfg.TieEpsilon:
			tied = append(tied, other)
		}
	}
	return e.pickTied(tied)
}

func (e *Engine) pickTied(tied []*dealer.MarketMaker) *dealer.MarketMaker {
	switch len(tied) {
	case 0:
		return nil
	case 1:
		return tied[0]
	default:
		e.count(monitor.MetricPriceTies, "")
		return tied[e.rng.Intn(len(tied))]
	}
}

// competitorCost 构造第 i 个做市商的边际成本函数：
// 其余做市商对该量报出的最低半价差；无人可报时为 +Inf，求解器据此退化。
func (e *Engine) competitorCost(i int) hedge.CostFunc {
	takerID := e.mks[i].ID()
	return func(v float64) float64 {
		best := math.Inf(1)
		for j, other := range e.mks {
			if j == i {
				continue
			}
			if s := other.HalfSpread(e.env, takerID, v); s < best {
				best = s
			}
		}
		return best
	}
}

func (e *Engine) count(name, maker string) {
	if e.rec == nil {
		return
	}
	var labels map[string]string
	if maker != "" {
		labels = map[string]string{"maker": maker}
	}
	e.rec.Inc(name, labels)
}

func (e *Engine) publishTrade(kind, maker, taker string, volume, price, mid float64) {
	if e.pub == nil {
		return
	}
	e.pub.PublishTrade(market.TradeEvent{
		Step:   e.step,
		Kind:   kind,
		Maker:  maker,
		Taker:  taker,
		Volume: volume,
		Price:  price,
		Mid:    mid,
	})
}

// CurrentStep 已执行的步数。
func (e *Engine) CurrentStep() int {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.step
}

// GetState 获取引擎状态
func (e *Engine) GetState() EngineState {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.state
}

// Finish 标记运行结束。
func (e *Engine) Finish() {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.state = StateStopped
}

// validateConfig 验证配置
func validateConfig(cfg Config) error {
	if cfg.DelayWindow < 0 {
		return errors.New("delay_window must be >= 0")
	}
	if cfg.HedgeThreshold < 0 {
		return errors.New("hedge_threshold must be >= 0")
	}
	if cfg.TieEpsilon < 0 {
		return errors.New("tie_epsilon must be >= 0")
	}
	return nil
}

// validateComponents 验证组件
func validateComponents(comp Components) error {
	if comp.Environment == nil {
		return errors.New("environment is required")
	}
	if len(comp.Makers) == 0 {
		return errors.New("at least one market maker is required")
	}
	seen := make(map[string]struct{}, len(comp.Makers))
	for _, m := range comp.Makers {
		if _, dup := seen[m.ID()]; dup {
			return fmt.Errorf("duplicate maker id %q", m.ID())
		}
		seen[m.ID()] = struct{}{}
	}
	if comp.Store == nil {
		return errors.New("store is required")
	}
	if comp.Logger == nil {
		return errors.New("logger is required")
	}
	return nil
}
