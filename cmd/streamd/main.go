package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	sd "github.com/coreos/go-systemd/v22/daemon"
	"go.uber.org/zap"

	"dealer-market-go/config"
	"dealer-market-go/infrastructure/alert"
	"dealer-market-go/internal/container"
	internalconfig "dealer-market-go/internal/config"
	"dealer-market-go/market"
	"dealer-market-go/monitor"
	"dealer-market-go/sim"
)

// streamd 长驻仿真守护进程：按固定间隔重复运行场景，
// 通过 /metrics 暴露指标、/stream 推送事件，支持场景文件热更新。
func main() {
	cfgPath := flag.String("config", "configs/scenario.yaml", "场景文件路径")
	flag.Parse()

	c, err := container.New(*cfgPath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "初始化容器失败: %v\n", err)
		os.Exit(1)
	}
	if err := c.Build(); err != nil {
		fmt.Fprintf(os.Stderr, "构建容器失败: %v\n", err)
		os.Exit(1)
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	if err := c.Start(ctx); err != nil {
		fmt.Fprintf(os.Stderr, "启动失败: %v\n", err)
		os.Exit(1)
	}
	log := c.Logger()

	reloader := startHotReload(ctx, *cfgPath, c)
	go runLoop(ctx, c)
	go watchdog(ctx, log)

	_, _ = sd.SdNotify(false, sd.SdNotifyReady)
	log.Info("streamd ready", zap.String("config", *cfgPath))

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	_, _ = sd.SdNotify(false, sd.SdNotifyStopping)
	log.Info("shutting down")
	cancel()
	if reloader != nil {
		_ = reloader.Stop()
	}
	_ = c.Stop()
}

// runLoop 按间隔重复装配并运行场景，产出喂给指标、推流与告警。
// 发布器跨运行复用，推流与指标消费各挂一条订阅。
func runLoop(ctx context.Context, c *container.Container) {
	log := c.Logger()

	pub := market.NewPublisher()
	go c.Hub().Pump(pub.SubscribeStep(), pub.SubscribeTrade())
	gaugeSteps := pub.SubscribeStep()
	go func() {
		for {
			select {
			case <-ctx.Done():
				return
			case ev := <-gaugeSteps:
				c.Exporter().ObserveStep(ev)
			}
		}
	}()

	for {
		cfg := c.Scenario()
		runOnce(ctx, c, cfg, pub)

		interval := cfg.Daemon.RunInterval.Std()
		if interval <= 0 {
			interval = time.Minute
		}
		select {
		case <-ctx.Done():
			return
		case <-time.After(interval):
		}
		if ctx.Err() != nil {
			return
		}
		log.Debug("starting next run")
	}
}

func runOnce(ctx context.Context, c *container.Container, cfg config.Scenario, pub *market.Publisher) {
	if ctx.Err() != nil {
		return
	}
	log := c.Logger()

	a, err := sim.Build(cfg, sim.Options{
		Logger:    log,
		Recorder:  c.Exporter(),
		Publisher: pub,
	})
	if err != nil {
		log.Error("assemble failed", zap.Error(err))
		return
	}

	start := time.Now()
	res, err := sim.NewRunner(a).Run()
	if err != nil {
		log.Error("run failed", zap.Error(err))
		return
	}
	c.Exporter().RecordRunCompleted(time.Since(start).Seconds())

	stats := make([]alert.RunStats, 0, len(a.Makers))
	for _, m := range a.Makers {
		solves, fails := m.SolverStats()
		stats = append(stats, alert.RunStats{
			MakerID:       m.ID(),
			FinalPosition: m.NetPosition(),
			SolverSolves:  solves,
			SolverFails:   fails,
		})
		c.Exporter().Add(monitor.MetricSolverFallbacks,
			map[string]string{"maker": m.ID()}, float64(fails))
	}
	rules := alert.RuleConfig{
		MaxAbsPosition:  cfg.Daemon.Alerts.MaxAbsPosition,
		MaxFallbackRate: cfg.Daemon.Alerts.MaxFallbackRate,
	}
	if fired := alert.CheckRun(c.Alerts(), rules, stats); fired > 0 {
		log.Warn("run alerts fired", zap.Int("count", fired))
	}

	log.Info("run completed",
		zap.Int64("seed", res.Seed),
		zap.Int("steps", res.Summary.Steps),
		zap.Duration("elapsed", time.Since(start)))
}

// startHotReload 监听场景文件，通过验证后替换容器内配置，下一次运行生效。
func startHotReload(ctx context.Context, path string, c *container.Container) *internalconfig.HotReloader {
	log := c.Logger()
	reloader, err := internalconfig.NewHotReloader(path, internalconfig.DefaultHotReloadConfig())
	if err != nil {
		log.Warn("hot reload unavailable", zap.Error(err))
		return nil
	}
	reloader.RegisterValidator("maker", &internalconfig.MakerParameterValidator{})
	reloader.RegisterValidator("market", &internalconfig.MarketParameterValidator{})
	reloader.RegisterValidator("alert", &internalconfig.AlertParameterValidator{})
	reloader.SetReloadHandler(func(interface{}) error {
		cfg, err := config.LoadWithEnvOverrides(path)
		if err != nil {
			log.Warn("scenario reload rejected", zap.Error(err))
			return err
		}
		c.SetScenario(cfg)
		log.Info("scenario reloaded", zap.String("name", cfg.Name))
		return nil
	})
	if err := reloader.Start(ctx); err != nil {
		log.Warn("hot reload start failed", zap.Error(err))
		return nil
	}
	return reloader
}

// watchdog 按 systemd 配置的间隔喂狗。
func watchdog(ctx context.Context, log interface{ Debug(string, ...zap.Field) }) {
	interval, err := sd.SdWatchdogEnabled(false)
	if err != nil || interval == 0 {
		return
	}
	ticker := time.NewTicker(interval / 2)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			_, _ = sd.SdNotify(false, sd.SdNotifyWatchdog)
			log.Debug("watchdog ping")
		}
	}
}
