package integration

import (
	"math"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"dealer-market-go/config"
	"dealer-market-go/infrastructure/alert"
	"dealer-market-go/infrastructure/logger"
	"dealer-market-go/internal/store"
	"dealer-market-go/market"
	"dealer-market-go/monitor"
	mockmetrics "dealer-market-go/monitor/metrics"
	"dealer-market-go/posttrade"
	"dealer-market-go/sim"
)

func quietLogger(t *testing.T) *logger.Logger {
	t.Helper()
	cfg := logger.DefaultConfig()
	cfg.Level = "error"
	log, err := logger.New(cfg)
	require.NoError(t, err)
	return log
}

func testScenario(seed int64, steps int) config.Scenario {
	cfg := config.DefaultScenario()
	cfg.Seed = seed
	cfg.Steps = steps
	cfg.Logging.Level = "error"
	return cfg
}

// 对冲只在做市商之间转移仓位：每步对冲量净和为零，
// 系统总仓位恰等于投资者净卖出量的累计。
func TestPositionConservationEndToEnd(t *testing.T) {
	res, err := sim.RunScenario(testScenario(7, 300), sim.Options{Logger: quietLogger(t)})
	require.NoError(t, err)

	var investorNet float64
	for _, log := range res.Store.StepLogs() {
		// 每笔对冲在桶里记两条腿（taker/对手），符号量必须抵消。
		var hedgeNet float64
		for _, rec := range res.Store.Bucket(log.Step) {
			if rec.Kind == store.TradeHedge {
				hedgeNet += rec.SignedVolume
			}
		}
		assert.InDelta(t, 0, hedgeNet, 1e-9, "step %d hedge legs must net out", log.Step)

		for _, tr := range log.InvestorTrades {
			investorNet += tr.Volume
		}
		var systemNet float64
		for _, pos := range log.Positions {
			systemNet += pos
		}
		assert.InDelta(t, investorNet, systemNet, 1e-6, "step %d system position", log.Step)
	}
}

func TestEveryStepSettlesEveryMaker(t *testing.T) {
	cfg := testScenario(11, 120)
	res, err := sim.RunScenario(cfg, sim.Options{Logger: quietLogger(t)})
	require.NoError(t, err)

	for _, mc := range cfg.Makers {
		entries := res.Store.Rewards(mc.ID)
		require.Len(t, entries, cfg.Steps)
		for i, e := range entries {
			assert.Equal(t, i+1, e.Step)
			assert.LessOrEqual(t, e.RiskCost, 0.0)
			assert.GreaterOrEqual(t, e.HedgeCost, 0.0)
			assert.GreaterOrEqual(t, e.SpreadRevenue, 0.0)
			total := e.SpreadRevenue + e.PositionRevenue - e.HedgeCost + e.RiskCost
			assert.InDelta(t, total, e.Total, 1e-12)
		}
	}
}

// 关闭对冲后订单流只能内部消化，内部化比率上升、对冲成交消失。
func TestDisablingHedgingRaisesInternalization(t *testing.T) {
	withHedge, err := sim.RunScenario(testScenario(21, 400), sim.Options{Logger: quietLogger(t)})
	require.NoError(t, err)

	noHedgeCfg := testScenario(21, 400)
	for i := range noHedgeCfg.Makers {
		noHedgeCfg.Makers[i].DisableHedging = true
	}
	noHedge, err := sim.RunScenario(noHedgeCfg, sim.Options{Logger: quietLogger(t)})
	require.NoError(t, err)

	for _, log := range noHedge.Store.StepLogs() {
		assert.Empty(t, log.HedgeTrades)
	}

	var hedged, unhedged float64
	for _, id := range []string{"MM_0", "MM_1"} {
		hedged += posttrade.InternalizationRatio(withHedge.Store, id)
		unhedged += posttrade.InternalizationRatio(noHedge.Store, id)
	}
	assert.Greater(t, unhedged, hedged,
		"hedging must reduce retained exposure per unit of flow")
}

// 运行后的做市商统计直接喂给告警规则，类型与取值都要接得上。
func TestAlertRulesConsumeSolverStats(t *testing.T) {
	a, err := sim.Build(testScenario(5, 50), sim.Options{Logger: quietLogger(t)})
	require.NoError(t, err)
	_, err = sim.NewRunner(a).Run()
	require.NoError(t, err)

	mock := alert.NewMockChannel("mock")
	mgr := alert.NewManager([]alert.Channel{mock}, time.Minute)

	stats := make([]alert.RunStats, 0, len(a.Makers))
	for _, m := range a.Makers {
		solves, fails := m.SolverStats()
		assert.LessOrEqual(t, fails, solves)
		stats = append(stats, alert.RunStats{
			MakerID:       m.ID(),
			FinalPosition: m.NetPosition(),
			SolverSolves:  solves,
			SolverFails:   fails,
		})
	}

	fired := alert.CheckRun(mgr, alert.RuleConfig{MaxAbsPosition: 1e-9}, stats)
	assert.Equal(t, fired, mock.Count(), "every fired rule must reach the channel")
}

// 事件出口联动：Recorder 计数、Publisher 步事件与 Store 记录一致。
func TestRecorderAndPublisherSeeSameRun(t *testing.T) {
	rec := &mockmetrics.MockRecorder{}
	pub := market.NewPublisher()
	steps := pub.SubscribeStep()

	// 订阅通道带丢弃语义，慢消费者可能漏步；只断言收到的事件自洽。
	received := make([]market.StepEvent, 0, 60)
	quit := make(chan struct{})
	done := make(chan struct{})
	go func() {
		defer close(done)
		for {
			select {
			case ev := <-steps:
				received = append(received, ev)
			case <-quit:
				return
			}
		}
	}()

	cfg := testScenario(3, 60)
	res, err := sim.RunScenario(cfg, sim.Options{
		Logger:    quietLogger(t),
		Recorder:  rec,
		Publisher: pub,
	})
	require.NoError(t, err)
	close(quit)
	<-done

	assert.Equal(t, float64(cfg.Steps), rec.Count(monitor.MetricStepsExecuted, nil))

	var trades int
	for _, log := range res.Store.StepLogs() {
		trades += len(log.InvestorTrades)
	}
	var counted float64
	for _, id := range []string{"MM_0", "MM_1"} {
		counted += rec.Count(monitor.MetricInvestorTrades, map[string]string{"maker": id})
	}
	assert.Equal(t, float64(trades), counted)

	require.NotEmpty(t, received)
	prev := 0
	for _, ev := range received {
		assert.Greater(t, ev.Step, prev, "step events must arrive in order")
		assert.False(t, math.IsNaN(ev.Mid))
		prev = ev.Step
	}
	assert.LessOrEqual(t, prev, 60)
}
