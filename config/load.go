package config

import (
	"fmt"
	"os"
	"strconv"
	"time"

	"gopkg.in/yaml.v3"

	"dealer-market-go/dealer"
	"dealer-market-go/infrastructure/logger"
	"dealer-market-go/investor"
	"dealer-market-go/market"
)

// Scenario 一次仿真运行的完整配置。
type Scenario struct {
	Name           string          `yaml:"name"`
	Seed           int64           `yaml:"seed"` // 0 表示使用时间种子
	Steps          int             `yaml:"steps"`
	DelayWindow    int             `yaml:"delay_window"`
	HedgeThreshold float64         `yaml:"hedge_threshold"`
	Market         market.Config   `yaml:"market"`
	Makers         []dealer.Config `yaml:"makers"`
	Investors      InvestorPool    `yaml:"investors"`
	Logging        logger.Config   `yaml:"logging"`
	Daemon         DaemonConfig    `yaml:"daemon"`
}

// InvestorPool 投资者群体。Explicit 非空时逐个使用；
// 否则按 Count 生成异质群体，mu_trade 在 [MuTradeMin, MuTradeMax) 线性爬升。
type InvestorPool struct {
	Count      int     `yaml:"count"`
	PTrade     float64 `yaml:"p_trade"`
	SigmaTrade float64 `yaml:"sigma_trade"`
	PBuy       float64 `yaml:"p_buy"`
	MuTradeMin float64 `yaml:"mu_trade_min"`
	MuTradeMax float64 `yaml:"mu_trade_max"`

	// InformedCount 群体末尾改为知情投资者的个数。
	InformedCount int     `yaml:"informed_count"`
	InformedProb  float64 `yaml:"informed_prob"`

	Explicit []investor.Config `yaml:"explicit"`
}

// DaemonConfig 长驻进程（streamd）的服务参数。
type DaemonConfig struct {
	MetricsAddr string      `yaml:"metrics_addr"` // 留空关闭
	StreamAddr  string      `yaml:"stream_addr"`  // 留空关闭
	RunInterval Duration    `yaml:"run_interval"`
	Alerts      AlertConfig `yaml:"alerts"`
}

// AlertConfig 运行间评估的告警阈值。
type AlertConfig struct {
	MaxAbsPosition  float64  `yaml:"max_abs_position"`  // 0 关闭
	MaxFallbackRate float64  `yaml:"max_fallback_rate"` // 0 关闭
	Throttle        Duration `yaml:"throttle"`
}

// Duration 让 YAML 里能写 "1m" 这类时长字面量，也接受纳秒整数。
type Duration time.Duration

func (d *Duration) UnmarshalYAML(value *yaml.Node) error {
	var s string
	if err := value.Decode(&s); err == nil {
		parsed, err := time.ParseDuration(s)
		if err != nil {
			return fmt.Errorf("parse duration %q: %w", s, err)
		}
		*d = Duration(parsed)
		return nil
	}
	var n int64
	if err := value.Decode(&n); err != nil {
		return fmt.Errorf("duration must be a string or integer: %w", err)
	}
	*d = Duration(n)
	return nil
}

// Std 转换为标准库时长。
func (d Duration) Std() time.Duration { return time.Duration(d) }

// DefaultScenario 返回两做市商、十投资者的默认场景。
func DefaultScenario() Scenario {
	pool := InvestorPool{
		Count:      10,
		PTrade:     0.5,
		SigmaTrade: 0.5,
		PBuy:       0.5,
		MuTradeMin: 0.5,
		MuTradeMax: 4.5,
	}
	return Scenario{
		Name:        "default",
		Steps:       96,
		DelayWindow: 4,
		Market:      market.DefaultConfig(),
		Makers: []dealer.Config{
			dealer.DefaultConfig("MM_0"),
			dealer.DefaultConfig("MM_1"),
		},
		Investors: pool,
		Logging:   logger.DefaultConfig(),
		Daemon: DaemonConfig{
			RunInterval: Duration(time.Minute),
			Alerts:      AlertConfig{Throttle: Duration(5 * time.Minute)},
		},
	}
}

// Load 读取 YAML 场景并做基础验证。
func Load(path string) (Scenario, error) {
	cfg := DefaultScenario()
	raw, err := os.ReadFile(path)
	if err != nil {
		return cfg, fmt.Errorf("read scenario: %w", err)
	}
	if err := yaml.Unmarshal(raw, &cfg); err != nil {
		return cfg, fmt.Errorf("parse yaml: %w", err)
	}
	if err := Validate(cfg); err != nil {
		return cfg, err
	}
	return cfg, nil
}

// LoadWithEnvOverrides 加载场景后用环境变量覆盖种子与步数（便于批量实验）。
func LoadWithEnvOverrides(path string) (Scenario, error) {
	cfg, err := Load(path)
	if err != nil {
		return cfg, err
	}
	if v := os.Getenv("DM_SEED"); v != "" {
		seed, err := strconv.ParseInt(v, 10, 64)
		if err != nil {
			return cfg, fmt.Errorf("DM_SEED: %w", err)
		}
		cfg.Seed = seed
	}
	if v := os.Getenv("DM_STEPS"); v != "" {
		steps, err := strconv.Atoi(v)
		if err != nil {
			return cfg, fmt.Errorf("DM_STEPS: %w", err)
		}
		cfg.Steps = steps
	}
	return cfg, Validate(cfg)
}
