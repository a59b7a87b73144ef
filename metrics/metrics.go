// Package metrics 提供仿真运行的 Prometheus 指标出口。
package metrics

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"dealer-market-go/market"
	"dealer-market-go/monitor"
)

// Config 指标配置
type Config struct {
	Namespace string
	Subsystem string
}

// DefaultConfig 返回默认配置
func DefaultConfig() Config {
	return Config{
		Namespace: "dm",
		Subsystem: "sim",
	}
}

// Exporter 持有独立 registry 的指标收集器，实现 monitor.Recorder。
type Exporter struct {
	registry *prometheus.Registry

	stepsExecuted   prometheus.Counter
	priceTies       prometheus.Counter
	runsCompleted   prometheus.Counter
	investorTrades  *prometheus.CounterVec
	hedgeTrades     *prometheus.CounterVec
	solverFallbacks *prometheus.CounterVec

	midPrice    prometheus.Gauge
	netPosition *prometheus.GaugeVec
	stepReward  *prometheus.GaugeVec

	runDuration prometheus.Histogram
}

// New 创建Exporter实例
func New(cfg Config) *Exporter {
	reg := prometheus.NewRegistry()
	factory := promauto.With(reg)

	return &Exporter{
		registry: reg,

		stepsExecuted: factory.NewCounter(prometheus.CounterOpts{
			Namespace: cfg.Namespace,
			Subsystem: cfg.Subsystem,
			Name:      monitor.MetricStepsExecuted,
			Help:      "已执行的清算步总数",
		}),
		priceTies: factory.NewCounter(prometheus.CounterOpts{
			Namespace: cfg.Namespace,
			Subsystem: cfg.Subsystem,
			Name:      monitor.MetricPriceTies,
			Help:      "报价并列随机打破的次数",
		}),
		runsCompleted: factory.NewCounter(prometheus.CounterOpts{
			Namespace: cfg.Namespace,
			Subsystem: cfg.Subsystem,
			Name:      "runs_completed_total",
			Help:      "完成的仿真运行次数",
		}),
		investorTrades: factory.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: cfg.Namespace,
				Subsystem: cfg.Subsystem,
				Name:      monitor.MetricInvestorTrades,
				Help:      "投资者成交笔数",
			},
			[]string{"maker"},
		),
		hedgeTrades: factory.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: cfg.Namespace,
				Subsystem: cfg.Subsystem,
				Name:      monitor.MetricHedgeTrades,
				Help:      "做市商间对冲成交笔数",
			},
			[]string{"maker"},
		),
		solverFallbacks: factory.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: cfg.Namespace,
				Subsystem: cfg.Subsystem,
				Name:      monitor.MetricSolverFallbacks,
				Help:      "对冲求解退化为均匀方案的次数",
			},
			[]string{"maker"},
		),

		midPrice: factory.NewGauge(prometheus.GaugeOpts{
			Namespace: cfg.Namespace,
			Subsystem: cfg.Subsystem,
			Name:      "mid_price",
			Help:      "当前中间价",
		}),
		netPosition: factory.NewGaugeVec(
			prometheus.GaugeOpts{
				Namespace: cfg.Namespace,
				Subsystem: cfg.Subsystem,
				Name:      "net_position",
				Help:      "做市商当前净仓位",
			},
			[]string{"maker"},
		),
		stepReward: factory.NewGaugeVec(
			prometheus.GaugeOpts{
				Namespace: cfg.Namespace,
				Subsystem: cfg.Subsystem,
				Name:      "step_reward",
				Help:      "做市商最近一步的总奖励",
			},
			[]string{"maker"},
		),

		runDuration: factory.NewHistogram(prometheus.HistogramOpts{
			Namespace: cfg.Namespace,
			Subsystem: cfg.Subsystem,
			Name:      "run_duration_seconds",
			Help:      "单次仿真运行耗时（秒）",
			Buckets:   []float64{0.01, 0.05, 0.1, 0.5, 1, 5, 10, 30, 60},
		}),
	}
}

// Inc 实现 monitor.Recorder。未知指标名直接忽略。
func (e *Exporter) Inc(name string, labels map[string]string) {
	maker := labels["maker"]
	switch name {
	case monitor.MetricStepsExecuted:
		e.stepsExecuted.Inc()
	case monitor.MetricPriceTies:
		e.priceTies.Inc()
	case monitor.MetricInvestorTrades:
		e.investorTrades.WithLabelValues(maker).Inc()
	case monitor.MetricHedgeTrades:
		e.hedgeTrades.WithLabelValues(maker).Inc()
	case monitor.MetricSolverFallbacks:
		e.solverFallbacks.WithLabelValues(maker).Inc()
	}
}

// Add 按指标名一次累加多次计数，用于运行结束后的批量回填
// （如一次运行内的求解退化总数）。未知指标名与非正增量忽略。
func (e *Exporter) Add(name string, labels map[string]string, delta float64) {
	if delta <= 0 {
		return
	}
	maker := labels["maker"]
	switch name {
	case monitor.MetricStepsExecuted:
		e.stepsExecuted.Add(delta)
	case monitor.MetricPriceTies:
		e.priceTies.Add(delta)
	case monitor.MetricInvestorTrades:
		e.investorTrades.WithLabelValues(maker).Add(delta)
	case monitor.MetricHedgeTrades:
		e.hedgeTrades.WithLabelValues(maker).Add(delta)
	case monitor.MetricSolverFallbacks:
		e.solverFallbacks.WithLabelValues(maker).Add(delta)
	}
}

// ObserveStep 将一步的快照写入各 gauge。
func (e *Exporter) ObserveStep(ev market.StepEvent) {
	e.midPrice.Set(ev.Mid)
	for id, pos := range ev.Positions {
		e.netPosition.WithLabelValues(id).Set(pos)
	}
	for id, reward := range ev.Rewards {
		e.stepReward.WithLabelValues(id).Set(reward)
	}
}

// RecordRunCompleted 记录一次完整运行及其耗时。
func (e *Exporter) RecordRunCompleted(seconds float64) {
	e.runsCompleted.Inc()
	e.runDuration.Observe(seconds)
}

// Handler 返回该 registry 的 /metrics 处理器。
func (e *Exporter) Handler() http.Handler {
	return promhttp.HandlerFor(e.registry, promhttp.HandlerOpts{})
}

// Registry 暴露底层 registry，便于附加采集器。
func (e *Exporter) Registry() *prometheus.Registry {
	return e.registry
}
