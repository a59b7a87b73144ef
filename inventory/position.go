package inventory

import "sync"

// Book 维护单个做市商的净仓位与现金。
type Book struct {
	mu   sync.RWMutex
	net  float64
	cash float64
}

// Apply 记录一笔成交：deltaQty 为带符号数量，买入为正。
// 现金按成交价扣减，卖出时增加。
func (b *Book) Apply(deltaQty float64, price float64) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.net += deltaQty
	b.cash -= deltaQty * price
}

// Net 当前净仓位。
func (b *Book) Net() float64 {
	b.mu.RLock()
	defer b.mu.RUnlock()
	return b.net
}

// Cash 当前现金余额。
func (b *Book) Cash() float64 {
	b.mu.RLock()
	defer b.mu.RUnlock()
	return b.cash
}

// MarkToMarket 按给定中间价估值：现金加持仓市值。
func (b *Book) MarkToMarket(mid float64) float64 {
	b.mu.RLock()
	defer b.mu.RUnlock()
	return b.cash + b.net*mid
}
