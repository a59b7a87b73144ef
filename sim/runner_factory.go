package sim

import (
	"fmt"
	"math/rand"
	"time"

	"dealer-market-go/config"
	"dealer-market-go/dealer"
	"dealer-market-go/infrastructure/logger"
	"dealer-market-go/internal/engine"
	"dealer-market-go/internal/store"
	"dealer-market-go/investor"
	"dealer-market-go/market"
	"dealer-market-go/monitor"
)

// Options 场景之外的运行时注入点，全部可选。
type Options struct {
	Logger    *logger.Logger    // 为空时按场景 Logging 创建
	Recorder  monitor.Recorder  // 指标计数
	Publisher *market.Publisher // 事件推流
	Sink      store.EventSink   // 事件回调（日志镜像等）
}

// Assembly 按场景装配好的一整套组件。
type Assembly struct {
	Scenario  config.Scenario
	Seed      int64
	Env       *market.Environment
	Makers    []*dealer.MarketMaker
	Investors []investor.Investor
	Store     *store.Store
	Engine    *engine.Engine
	Logger    *logger.Logger
}

// Build 从场景构建全部组件。Seed 为 0 时取时间种子并回填，
// 市场、投资者与撮合并列使用独立派生的随机流，互不串扰。
func Build(cfg config.Scenario, opts Options) (*Assembly, error) {
	if err := config.Validate(cfg); err != nil {
		return nil, err
	}
	seed := cfg.Seed
	if seed == 0 {
		seed = time.Now().UnixNano()
	}

	log := opts.Logger
	if log == nil {
		var err error
		log, err = logger.New(cfg.Logging)
		if err != nil {
			return nil, fmt.Errorf("build logger: %w", err)
		}
	}

	env, err := market.NewEnvironment(cfg.Market, rand.New(rand.NewSource(seed)))
	if err != nil {
		return nil, fmt.Errorf("build environment: %w", err)
	}

	makers := make([]*dealer.MarketMaker, 0, len(cfg.Makers))
	for _, mc := range cfg.Makers {
		m, err := dealer.New(mc)
		if err != nil {
			return nil, fmt.Errorf("build maker %q: %w", mc.ID, err)
		}
		makers = append(makers, m)
	}

	invs, err := buildInvestors(cfg.Investors, seed)
	if err != nil {
		return nil, err
	}

	st := store.New(opts.Sink)
	eng, err := engine.New(
		engine.Config{
			DelayWindow:    cfg.DelayWindow,
			HedgeThreshold: cfg.HedgeThreshold,
		},
		engine.Components{
			Environment: env,
			Makers:      makers,
			Investors:   invs,
			Store:       st,
			Logger:      log,
			Recorder:    opts.Recorder,
			Publisher:   opts.Publisher,
			RNG:         rand.New(rand.NewSource(seed + 1)),
		},
	)
	if err != nil {
		return nil, fmt.Errorf("build engine: %w", err)
	}

	return &Assembly{
		Scenario:  cfg,
		Seed:      seed,
		Env:       env,
		Makers:    makers,
		Investors: invs,
		Store:     st,
		Engine:    eng,
		Logger:    log,
	}, nil
}

// buildInvestors 展开投资者池。显式列表优先；否则生成异质群体，
// mu_trade 线性爬升、末尾 informed_count 个改为知情投资者。
func buildInvestors(pool config.InvestorPool, seed int64) ([]investor.Investor, error) {
	if len(pool.Explicit) > 0 {
		out := make([]investor.Investor, 0, len(pool.Explicit))
		for i, ic := range pool.Explicit {
			agent, err := investor.New(ic, rand.New(rand.NewSource(seed+100+int64(i))))
			if err != nil {
				return nil, fmt.Errorf("build investor %q: %w", ic.ID, err)
			}
			out = append(out, agent)
		}
		return out, nil
	}

	out := make([]investor.Investor, 0, pool.Count)
	for i := 0; i < pool.Count; i++ {
		ic := investor.Config{
			ID:         fmt.Sprintf("INV_%d", i),
			PTrade:     pool.PTrade,
			MuTrade:    rampMuTrade(pool, i),
			SigmaTrade: pool.SigmaTrade,
			PBuy:       pool.PBuy,
		}
		if i >= pool.Count-pool.InformedCount {
			ic.Informed = true
			ic.InformedProb = pool.InformedProb
		}
		agent, err := investor.New(ic, rand.New(rand.NewSource(seed+100+int64(i))))
		if err != nil {
			return nil, fmt.Errorf("build investor %q: %w", ic.ID, err)
		}
		out = append(out, agent)
	}
	return out, nil
}

func rampMuTrade(pool config.InvestorPool, i int) float64 {
	if pool.Count <= 1 {
		return pool.MuTradeMin
	}
	span := pool.MuTradeMax - pool.MuTradeMin
	return pool.MuTradeMin + span*float64(i)/float64(pool.Count-1)
}
