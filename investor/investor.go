package investor

import (
	"fmt"
	"math"
	"math/rand"
	"time"
)

// Request 一次交易请求。Volume 恒为正，Direction +1 买入 / -1 卖出。
type Request struct {
	Volume    float64
	Direction int
}

// Investor 随机交易请求生成器。futureDelta 为下一步中间价的预期变化，
// 仅知情投资者会使用该信号。
type Investor interface {
	ID() string
	GenerateRequest(futureDelta float64) (Request, bool)
}

// Config 投资者参数。
type Config struct {
	ID         string  `yaml:"id"`
	PTrade     float64 `yaml:"p_trade"`     // 每步发出请求的概率
	MuTrade    float64 `yaml:"mu_trade"`    // 对数正态尺寸参数 mu
	SigmaTrade float64 `yaml:"sigma_trade"` // 对数正态尺寸参数 sigma
	PBuy       float64 `yaml:"p_buy"`       // 买方向概率

	// Informed 知情投资者：以 InformedProb 的概率按价格信号定方向。
	Informed     bool    `yaml:"informed"`
	InformedProb float64 `yaml:"informed_prob"`
}

// DefaultConfig 返回默认投资者配置。
func DefaultConfig(id string) Config {
	return Config{
		ID:         id,
		PTrade:     0.5,
		MuTrade:    1.0,
		SigmaTrade: 0.5,
		PBuy:       0.5,
	}
}

func (c Config) validate() error {
	if c.ID == "" {
		return fmt.Errorf("investor id must not be empty")
	}
	if c.PTrade < 0 || c.PTrade > 1 {
		return fmt.Errorf("p_trade must be in [0,1], got %v", c.PTrade)
	}
	if c.SigmaTrade < 0 {
		return fmt.Errorf("sigma_trade must be non-negative, got %v", c.SigmaTrade)
	}
	if c.PBuy < 0 || c.PBuy > 1 {
		return fmt.Errorf("p_buy must be in [0,1], got %v", c.PBuy)
	}
	if c.InformedProb < 0 || c.InformedProb > 1 {
		return fmt.Errorf("informed_prob must be in [0,1], got %v", c.InformedProb)
	}
	return nil
}

// Agent 实现 Investor。除自身 RNG 流外不持有跨步状态。
type Agent struct {
	cfg Config
	rng *rand.Rand
}

// New 创建投资者。rng 为空时使用时间种子。
func New(cfg Config, rng *rand.Rand) (*Agent, error) {
	if err := cfg.validate(); err != nil {
		return nil, fmt.Errorf("investor %q config: %w", cfg.ID, err)
	}
	if rng == nil {
		rng = rand.New(rand.NewSource(time.Now().UnixNano()))
	}
	return &Agent{cfg: cfg, rng: rng}, nil
}

// ID 投资者标识。
func (a *Agent) ID() string {
	return a.cfg.ID
}

// Config 返回创建时的参数副本。
func (a *Agent) Config() Config {
	return a.cfg
}

// GenerateRequest 以 p_trade 概率生成一次请求：
// 尺寸服从 LogNormal(mu_trade, sigma_trade)；方向默认按 p_buy 抽取，
// 知情投资者以 informed_prob 概率改按 futureDelta 的符号定方向。
func (a *Agent) GenerateRequest(futureDelta float64) (Request, bool) {
	if a.rng.Float64() > a.cfg.PTrade {
		return Request{}, false
	}

	vol := math.Exp(a.cfg.MuTrade + a.cfg.SigmaTrade*a.rng.NormFloat64())

	direction := -1
	if a.cfg.Informed && a.rng.Float64() < a.cfg.InformedProb {
		if futureDelta > 0 {
			direction = 1
		}
	} else if a.rng.Float64() < a.cfg.PBuy {
		direction = 1
	}
	return Request{Volume: vol, Direction: direction}, true
}
