package monitor

// 仿真运行中的计数指标名，供 Recorder 实现与外部收集使用。
const (
	MetricInvestorTrades  = "investor_trades_total"
	MetricHedgeTrades     = "hedge_trades_total"
	MetricSolverFallbacks = "hedge_solver_fallbacks_total"
	MetricPriceTies       = "price_ties_total"
	MetricStepsExecuted   = "steps_executed_total"
)

// Recorder 计数出口，实际可接 Prometheus，单测用 mock。
type Recorder interface {
	Inc(name string, labels map[string]string)
}
