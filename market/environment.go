package market

import (
	"fmt"
	"math"
	"math/rand"
	"sync"
	"time"
)

// 默认市场参数。
const (
	DefaultMidStart   = 100.0
	DefaultMu         = 0.0
	DefaultSigma      = 0.10
	DefaultDt         = 1.0 / (252 * 96) // 15分钟一步，252个交易日
	DefaultSpreadMean = 1.5e-4
	DefaultSpreadStd  = 0.5e-4
	DefaultSpreadMin  = 2e-5
	DefaultSpreadMax  = 5e-4
	DefaultLambda     = 1.6
	DefaultVMax       = 10000.0

	SigmaLow  = 0.10
	SigmaHigh = 0.30
)

// RegimeConfig 波动率状态切换（可选，默认关闭）。
type RegimeConfig struct {
	Enabled    bool    `yaml:"enabled"`
	SigmaLow   float64 `yaml:"sigma_low"`
	SigmaHigh  float64 `yaml:"sigma_high"`
	SwitchProb float64 `yaml:"switch_prob"` // 每步状态翻转概率
}

// Config 外生市场过程参数。
type Config struct {
	MidStart   float64      `yaml:"mid_start"`
	Mu         float64      `yaml:"mu"`          // 年化漂移
	Sigma      float64      `yaml:"sigma"`       // 年化波动率
	Dt         float64      `yaml:"dt"`          // 单步对应的年化时间
	SpreadMean float64      `yaml:"spread_mean"` // 基础全价差均值
	SpreadStd  float64      `yaml:"spread_std"`
	SpreadMin  float64      `yaml:"spread_min"`
	SpreadMax  float64      `yaml:"spread_max"`
	Lambda     float64      `yaml:"lambda"` // LOB 深度衰减参数
	VMax       float64      `yaml:"v_max"`  // 流动性容量
	Regime     RegimeConfig `yaml:"regime"`
}

// DefaultConfig 返回默认市场配置。
func DefaultConfig() Config {
	return Config{
		MidStart:   DefaultMidStart,
		Mu:         DefaultMu,
		Sigma:      DefaultSigma,
		Dt:         DefaultDt,
		SpreadMean: DefaultSpreadMean,
		SpreadStd:  DefaultSpreadStd,
		SpreadMin:  DefaultSpreadMin,
		SpreadMax:  DefaultSpreadMax,
		Lambda:     DefaultLambda,
		VMax:       DefaultVMax,
	}
}

// fillDefaults 只填充不可能有意取零的结构参数。
// 波动率与价差参数允许显式为零（平坦中间价、固定价差场景）。
func (c *Config) fillDefaults() {
	if c.MidStart == 0 {
		c.MidStart = DefaultMidStart
	}
	if c.Dt == 0 {
		c.Dt = DefaultDt
	}
	if c.Lambda == 0 {
		c.Lambda = DefaultLambda
	}
	if c.VMax == 0 {
		c.VMax = DefaultVMax
	}
}

func (c Config) validate() error {
	if c.MidStart <= 0 {
		return fmt.Errorf("mid_start must be positive, got %v", c.MidStart)
	}
	if c.Sigma < 0 {
		return fmt.Errorf("sigma must be non-negative, got %v", c.Sigma)
	}
	if c.Dt <= 0 {
		return fmt.Errorf("dt must be positive, got %v", c.Dt)
	}
	if c.VMax <= 0 {
		return fmt.Errorf("v_max must be positive, got %v", c.VMax)
	}
	if c.Lambda <= 1 {
		return fmt.Errorf("lambda must exceed 1, got %v", c.Lambda)
	}
	if c.SpreadMin > c.SpreadMax {
		return fmt.Errorf("spread_min %v exceeds spread_max %v", c.SpreadMin, c.SpreadMax)
	}
	if c.Regime.Enabled {
		if c.Regime.SigmaLow < 0 || c.Regime.SigmaHigh < 0 {
			return fmt.Errorf("regime sigmas must be non-negative")
		}
		if c.Regime.SwitchProb < 0 || c.Regime.SwitchProb > 1 {
			return fmt.Errorf("regime switch_prob must be in [0,1], got %v", c.Regime.SwitchProb)
		}
	}
	return nil
}

// Environment 模拟外生交易所市场：GBM 中间价与每步重抽的基础价差。
// 报价曲线见 curve.go。
type Environment struct {
	mu  sync.RWMutex
	cfg Config
	rng *rand.Rand

	stepCount  int
	mid        float64
	baseSpread float64 // 当前全价差 s0
	sigma      float64 // 当前步所用波动率
	highVol    bool
	nextZ      float64 // 下一步扩散项将消费的正态抽样

	omega   float64
	logForm bool
}

// NewEnvironment 创建市场环境。rng 为空时使用时间种子。
func NewEnvironment(cfg Config, rng *rand.Rand) (*Environment, error) {
	cfg.fillDefaults()
	if err := cfg.validate(); err != nil {
		return nil, fmt.Errorf("market config: %w", err)
	}
	if rng == nil {
		rng = rand.New(rand.NewSource(time.Now().UnixNano()))
	}
	e := &Environment{
		cfg:   cfg,
		rng:   rng,
		mid:   cfg.MidStart,
		sigma: cfg.Sigma,
	}
	if cfg.Regime.Enabled {
		e.sigma = cfg.Regime.SigmaLow
	}
	// lambda=2 时幂律形式退化为对数形式
	if math.Abs(cfg.Lambda-2.0) < 1e-5 {
		e.logForm = true
	} else {
		e.omega = (cfg.Lambda - 1) / (cfg.Lambda - 2)
	}
	e.baseSpread = e.drawBaseSpreadLocked()
	e.nextZ = rng.NormFloat64()
	return e, nil
}

// Step 推进一步：更新中间价并重抽基础价差。
func (e *Environment) Step() {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.stepCount++
	if e.cfg.Regime.Enabled {
		if e.rng.Float64() < e.cfg.Regime.SwitchProb {
			e.highVol = !e.highVol
		}
		if e.highVol {
			e.sigma = e.cfg.Regime.SigmaHigh
		} else {
			e.sigma = e.cfg.Regime.SigmaLow
		}
	}
	z := e.nextZ
	drift := (e.cfg.Mu - 0.5*e.sigma*e.sigma) * e.cfg.Dt
	diffusion := e.sigma * math.Sqrt(e.cfg.Dt) * z
	e.mid *= math.Exp(drift + diffusion)
	e.baseSpread = e.drawBaseSpreadLocked()
	e.nextZ = e.rng.NormFloat64()
}

// PeekNextDelta 返回下一步中间价相对当前的预期变化。
// 扩散抽样是预先生成的，因此同一种子下峰值与实际走势一致；
// 状态切换场景下使用当前波动率，信号只是近似。
func (e *Environment) PeekNextDelta() float64 {
	e.mu.RLock()
	defer e.mu.RUnlock()
	drift := (e.cfg.Mu - 0.5*e.sigma*e.sigma) * e.cfg.Dt
	diffusion := e.sigma * math.Sqrt(e.cfg.Dt) * e.nextZ
	return e.mid*math.Exp(drift+diffusion) - e.mid
}

func (e *Environment) drawBaseSpreadLocked() float64 {
	s := e.cfg.SpreadMean + e.cfg.SpreadStd*e.rng.NormFloat64()
	if s < e.cfg.SpreadMin {
		s = e.cfg.SpreadMin
	}
	if s > e.cfg.SpreadMax {
		s = e.cfg.SpreadMax
	}
	return s
}

// MidPrice 当前中间价。
func (e *Environment) MidPrice() float64 {
	e.mu.RLock()
	defer e.mu.RUnlock()
	return e.mid
}

// StepCount 已推进的步数。
func (e *Environment) StepCount() int {
	e.mu.RLock()
	defer e.mu.RUnlock()
	return e.stepCount
}

// Sigma 当前步所用波动率。
func (e *Environment) Sigma() float64 {
	e.mu.RLock()
	defer e.mu.RUnlock()
	return e.sigma
}

// TakeSnapshot 返回当前市场状态快照。
func (e *Environment) TakeSnapshot() Snapshot {
	e.mu.RLock()
	defer e.mu.RUnlock()
	return Snapshot{
		Step:           e.stepCount,
		Mid:            e.mid,
		BaseHalfSpread: e.baseSpread / 2,
		Sigma:          e.sigma,
	}
}
