package container

import (
	"context"
	"fmt"
	"net/http"
	"time"

	"dealer-market-go/config"
	"dealer-market-go/infrastructure/alert"
	"dealer-market-go/infrastructure/logger"
	"dealer-market-go/metrics"
	"dealer-market-go/stream"
)

// Container 守护进程的依赖注入容器，管理长驻组件的生命周期。
// 仿真组件（引擎、做市商、投资者）每次运行重新装配，不在此管理。
type Container struct {
	// 配置
	cfg *config.Scenario

	// 基础设施
	logger   *logger.Logger
	exporter *metrics.Exporter
	hub      *stream.Hub
	alerts   *alert.Manager

	// HTTP服务器
	metricsServer *http.Server
	streamServer  *http.Server

	// 生命周期管理
	lifecycle *LifecycleManager
}

// New 创建新的Container实例
func New(configPath string) (*Container, error) {
	cfg, err := config.LoadWithEnvOverrides(configPath)
	if err != nil {
		return nil, fmt.Errorf("load config failed: %w", err)
	}

	return &Container{
		cfg:       &cfg,
		lifecycle: NewLifecycleManager(),
	}, nil
}

// Build 构建所有组件
func (c *Container) Build() error {
	if err := c.buildInfrastructure(); err != nil {
		return fmt.Errorf("build infrastructure failed: %w", err)
	}

	c.registerLifecycleComponents()
	c.logger.Info("container built successfully")
	return nil
}

func (c *Container) buildInfrastructure() error {
	var err error
	c.logger, err = logger.New(c.cfg.Logging)
	if err != nil {
		return fmt.Errorf("create logger failed: %w", err)
	}

	c.exporter = metrics.New(metrics.DefaultConfig())
	c.hub = stream.NewHub(c.logger)

	throttle := c.cfg.Daemon.Alerts.Throttle.Std()
	if throttle <= 0 {
		throttle = 5 * time.Minute
	}
	c.alerts = alert.NewManager(
		[]alert.Channel{alert.NewZapChannel("log", c.logger)},
		throttle,
	)

	c.logger.Info("infrastructure built")
	return nil
}

func (c *Container) registerLifecycleComponents() {
	if c.cfg.Daemon.MetricsAddr != "" {
		c.lifecycle.Register(&httpServerComponent{
			name:    "metrics_server",
			handler: c.exporter.Handler(),
			addr:    c.cfg.Daemon.MetricsAddr,
			logger:  c.logger,
			server:  &c.metricsServer,
		})
	}
	if c.cfg.Daemon.StreamAddr != "" {
		mux := http.NewServeMux()
		mux.Handle("/stream", c.hub)
		c.lifecycle.Register(&httpServerComponent{
			name:    "stream_server",
			handler: mux,
			addr:    c.cfg.Daemon.StreamAddr,
			logger:  c.logger,
			server:  &c.streamServer,
		})
	}
}

// Start 启动全部长驻组件
func (c *Container) Start(ctx context.Context) error {
	c.logger.Info("starting container...")

	if err := c.lifecycle.StartAll(ctx); err != nil {
		return fmt.Errorf("start failed: %w", err)
	}

	c.logger.Info("container started")
	return nil
}

// Stop 逆序停止组件并断开推流客户端
func (c *Container) Stop() error {
	c.logger.Info("stopping container...")

	c.hub.Close()
	if err := c.lifecycle.StopAll(); err != nil {
		c.logger.LogError(err, map[string]interface{}{"action": "stop"})
		return err
	}

	if c.logger != nil {
		c.logger.Close()
	}

	return nil
}

// HealthCheck 检查全部组件健康状态
func (c *Container) HealthCheck() error {
	return c.lifecycle.CheckHealth()
}

// Scenario 当前场景配置。
func (c *Container) Scenario() config.Scenario {
	return *c.cfg
}

// SetScenario 替换场景配置（热更新后由守护进程调用）。
func (c *Container) SetScenario(cfg config.Scenario) {
	*c.cfg = cfg
}

// Logger 容器日志器。
func (c *Container) Logger() *logger.Logger {
	return c.logger
}

// Exporter 指标出口。
func (c *Container) Exporter() *metrics.Exporter {
	return c.exporter
}

// Hub 推流中心。
func (c *Container) Hub() *stream.Hub {
	return c.hub
}

// Alerts 告警管理器。
func (c *Container) Alerts() *alert.Manager {
	return c.alerts
}
