package store

import (
	"sync"
)

// TradeKind 成交记录类型。
type TradeKind int

const (
	// TradeInvestor 投资者与做市商之间的成交。
	TradeInvestor TradeKind = iota
	// TradeHedge 做市商之间的对冲成交。
	TradeHedge
)

// String 返回类型名称。
func (k TradeKind) String() string {
	switch k {
	case TradeInvestor:
		return "investor"
	case TradeHedge:
		return "hedge"
	default:
		return "unknown"
	}
}

// TradeRecord 单侧成交记录，归属于仓位发生变化的做市商。
// 追加进当步桶后不再修改；延迟结算阶段按 MidAtTrade 与当前中间价差计算仓位收益。
type TradeRecord struct {
	Step           int
	Kind           TradeKind
	OwnerID        string  // 记录归属的做市商
	CounterpartyID string  // 投资者 id 或对手做市商 id
	SignedVolume   float64 // 归属方视角的带符号数量
	ExecPrice      float64
	MidAtTrade     float64
	SpreadRevenue  float64 // signed_volume*(mid-exec)，投资者成交的价差收益分量
	Taker          bool    // 对冲成交中本方是否为 taker（支付价差一侧）
}

// RewardEntry 每做市商每步的奖励分解。
type RewardEntry struct {
	Step            int
	MakerID         string
	SpreadRevenue   float64 // 当步投资者成交价差收益
	PositionRevenue float64 // 延迟实现的仓位收益
	HedgeCost       float64 // 当步对冲支付的价差（正数，计入总奖励时取负）
	RiskCost        float64 // min(步初仓位*价格变化, 0)，非正
	Total           float64
}

// InvestorTrade 步日志中的投资者成交摘要。
type InvestorTrade struct {
	InvestorID string
	MakerID    string
	Volume     float64 // 做市商视角带符号数量
	Price      float64
}

// HedgeTrade 步日志中的对冲成交摘要。
type HedgeTrade struct {
	TakerID    string
	MakerID    string
	Volume     float64 // taker 视角带符号数量
	Price      float64
	SpreadPaid float64
}

// StepLog 单步汇总。
type StepLog struct {
	Step           int
	Mid            float64
	InvestorTrades []InvestorTrade
	HedgeTrades    []HedgeTrade
	Positions      map[string]float64 // 步末仓位
}

// EventSink 可注入的事件回调，用于镜像到日志或推流。
type EventSink func(event string, fields map[string]interface{})

// Store 保存一次运行的历史：步日志、延迟成交队列与奖励序列。
// 队列按步追加且从不删减，桶 t 恰好包含第 t 步执行的成交。
type Store struct {
	mu       sync.RWMutex
	buckets  [][]TradeRecord
	stepLogs []StepLog
	rewards  map[string][]RewardEntry

	sink EventSink
}

// New 创建空的运行历史。sink 可为空。
func New(sink EventSink) *Store {
	return &Store{
		rewards: make(map[string][]RewardEntry),
		sink:    sink,
	}
}

// AppendStep 追加一步的日志与成交桶。步号必须连续（从 1 开始）。
func (s *Store) AppendStep(log StepLog, bucket []TradeRecord) {
	s.mu.Lock()
	s.buckets = append(s.buckets, bucket)
	s.stepLogs = append(s.stepLogs, log)
	s.mu.Unlock()

	s.emit("step_log", map[string]interface{}{
		"step":      log.Step,
		"mid":       log.Mid,
		"trades":    len(log.InvestorTrades),
		"hedges":    len(log.HedgeTrades),
		"positions": log.Positions,
	})
}

// Bucket 返回第 step 步（1 起）的成交桶副本；不存在时返回 nil。
func (s *Store) Bucket(step int) []TradeRecord {
	s.mu.RLock()
	defer s.mu.RUnlock()
	idx := step - 1
	if idx < 0 || idx >= len(s.buckets) {
		return nil
	}
	out := make([]TradeRecord, len(s.buckets[idx]))
	copy(out, s.buckets[idx])
	return out
}

// AppendReward 追加一条奖励记录。
func (s *Store) AppendReward(e RewardEntry) {
	s.mu.Lock()
	s.rewards[e.MakerID] = append(s.rewards[e.MakerID], e)
	s.mu.Unlock()

	s.emit("reward", map[string]interface{}{
		"step":             e.Step,
		"maker":            e.MakerID,
		"spread_revenue":   e.SpreadRevenue,
		"position_revenue": e.PositionRevenue,
		"hedge_cost":       e.HedgeCost,
		"risk_cost":        e.RiskCost,
		"total":            e.Total,
	})
}

// Steps 已记录的步数。
func (s *Store) Steps() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.stepLogs)
}

// StepLogs 全部步日志的副本。
func (s *Store) StepLogs() []StepLog {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]StepLog, len(s.stepLogs))
	copy(out, s.stepLogs)
	return out
}

// Rewards 指定做市商的奖励序列副本。
func (s *Store) Rewards(makerID string) []RewardEntry {
	s.mu.RLock()
	defer s.mu.RUnlock()
	entries := s.rewards[makerID]
	out := make([]RewardEntry, len(entries))
	copy(out, entries)
	return out
}

// AllRewards 全部奖励序列的副本，键为做市商 id。
func (s *Store) AllRewards() map[string][]RewardEntry {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make(map[string][]RewardEntry, len(s.rewards))
	for id, entries := range s.rewards {
		cp := make([]RewardEntry, len(entries))
		copy(cp, entries)
		out[id] = cp
	}
	return out
}

func (s *Store) emit(event string, fields map[string]interface{}) {
	if s == nil || s.sink == nil {
		return
	}
	s.sink(event, fields)
}
