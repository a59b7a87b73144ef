package dealer

import (
	"fmt"

	"dealer-market-go/dealer/hedge"
)

// 默认策略参数。
const (
	DefaultAlpha     = 1.5
	DefaultGamma     = 0.5
	DefaultNMax      = 20
	DefaultSigmaEst  = 0.01
	DefaultDeltaTier = 1e-4
	DefaultNumTiers  = 5
	DefaultYieldBeta = 0.9
)

// Config 做市商策略配置。所有参数均为实例级注入，不存在进程级共享状态。
type Config struct {
	ID        string  `yaml:"id"`
	Alpha     float64 `yaml:"alpha"`      // 定价曲线凸性
	Gamma     float64 `yaml:"gamma"`      // 风险厌恶（对冲与库存倾斜共用）
	NMax      int     `yaml:"n_max"`      // 对冲清仓最大步数
	SigmaEst  float64 `yaml:"sigma_est"`  // 波动率估计（每步）
	DeltaTier float64 `yaml:"delta_tier"` // 每档固定加价
	NumTiers  int     `yaml:"num_tiers"`  // 层级数 K
	YieldBeta float64 `yaml:"yield_beta"` // 收益 EMA 衰减

	// DisableHedging 关闭对冲决策（实验用策略变体），零值为开启。
	DisableHedging bool `yaml:"disable_hedging"`

	// AdaptiveSigma 开启后按中间价序列的 EWMA 更新 SigmaEst。
	AdaptiveSigma   bool    `yaml:"adaptive_sigma"`
	SigmaEWMALambda float64 `yaml:"sigma_ewma_lambda"`

	// Tiering 为空时使用按收益率的动态分层。
	Tiering TieringPolicy `yaml:"-"`

	// Solver 数值求解器参数，零值使用默认。
	Solver hedge.Config `yaml:"solver"`
}

// DefaultConfig 返回默认做市商配置。
func DefaultConfig(id string) Config {
	return Config{
		ID:        id,
		Alpha:     DefaultAlpha,
		Gamma:     DefaultGamma,
		NMax:      DefaultNMax,
		SigmaEst:  DefaultSigmaEst,
		DeltaTier: DefaultDeltaTier,
		NumTiers:  DefaultNumTiers,
		YieldBeta: DefaultYieldBeta,
	}
}

// fillDefaults 填充结构性参数；Gamma、SigmaEst、DeltaTier 允许显式为零。
func (c *Config) fillDefaults() {
	if c.Alpha == 0 {
		c.Alpha = DefaultAlpha
	}
	if c.NMax == 0 {
		c.NMax = DefaultNMax
	}
	if c.NumTiers == 0 {
		c.NumTiers = DefaultNumTiers
	}
	if c.YieldBeta == 0 {
		c.YieldBeta = DefaultYieldBeta
	}
	if c.SigmaEWMALambda == 0 {
		c.SigmaEWMALambda = 0.94
	}
	if c.Tiering == nil {
		c.Tiering = YieldTiering{}
	}
}

func (c Config) validate() error {
	if c.ID == "" {
		return fmt.Errorf("maker id must not be empty")
	}
	if c.Alpha <= 0 {
		return fmt.Errorf("alpha must be positive, got %v", c.Alpha)
	}
	if c.Gamma < 0 {
		return fmt.Errorf("gamma must be non-negative, got %v", c.Gamma)
	}
	if c.NMax <= 0 {
		return fmt.Errorf("n_max must be positive, got %d", c.NMax)
	}
	if c.SigmaEst < 0 {
		return fmt.Errorf("sigma_est must be non-negative, got %v", c.SigmaEst)
	}
	if c.DeltaTier < 0 {
		return fmt.Errorf("delta_tier must be non-negative, got %v", c.DeltaTier)
	}
	if c.NumTiers < 1 {
		return fmt.Errorf("num_tiers must be at least 1, got %d", c.NumTiers)
	}
	if c.YieldBeta < 0 || c.YieldBeta >= 1 {
		return fmt.Errorf("yield_beta must be in [0,1), got %v", c.YieldBeta)
	}
	return nil
}
