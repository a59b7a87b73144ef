package config

import "fmt"

// Validate 验证场景的结构性约束。
// 做市商与市场参数自身的合法性由各自构造器负责。
func Validate(cfg Scenario) error {
	if cfg.Steps <= 0 {
		return ErrInvalid(fmt.Sprintf("steps must be > 0, got %d", cfg.Steps))
	}
	if cfg.DelayWindow < 0 {
		return ErrInvalid(fmt.Sprintf("delay_window must be >= 0, got %d", cfg.DelayWindow))
	}
	if cfg.HedgeThreshold < 0 {
		return ErrInvalid("hedge_threshold must be >= 0")
	}
	if len(cfg.Makers) == 0 {
		return ErrInvalid("at least one maker is required")
	}
	seen := make(map[string]struct{}, len(cfg.Makers))
	for _, m := range cfg.Makers {
		if m.ID == "" {
			return ErrInvalid("maker id must not be empty")
		}
		if _, dup := seen[m.ID]; dup {
			return ErrInvalid(fmt.Sprintf("duplicate maker id %q", m.ID))
		}
		seen[m.ID] = struct{}{}
	}
	if err := validatePool(cfg.Investors); err != nil {
		return err
	}
	if cfg.Daemon.RunInterval < 0 {
		return ErrInvalid("daemon.run_interval must be >= 0")
	}
	if cfg.Daemon.Alerts.MaxFallbackRate < 0 || cfg.Daemon.Alerts.MaxFallbackRate > 1 {
		return ErrInvalid("daemon.alerts.max_fallback_rate must be in [0,1]")
	}
	return nil
}

func validatePool(p InvestorPool) error {
	if len(p.Explicit) > 0 {
		ids := make(map[string]struct{}, len(p.Explicit))
		for _, ic := range p.Explicit {
			if ic.ID == "" {
				return ErrInvalid("investor id must not be empty")
			}
			if _, dup := ids[ic.ID]; dup {
				return ErrInvalid(fmt.Sprintf("duplicate investor id %q", ic.ID))
			}
			ids[ic.ID] = struct{}{}
		}
		return nil
	}
	if p.Count < 0 {
		return ErrInvalid("investors.count must be >= 0")
	}
	if p.PTrade < 0 || p.PTrade > 1 {
		return ErrInvalid("investors.p_trade must be in [0,1]")
	}
	if p.PBuy < 0 || p.PBuy > 1 {
		return ErrInvalid("investors.p_buy must be in [0,1]")
	}
	if p.SigmaTrade < 0 {
		return ErrInvalid("investors.sigma_trade must be >= 0")
	}
	if p.MuTradeMax < p.MuTradeMin {
		return ErrInvalid("investors.mu_trade_max must be >= mu_trade_min")
	}
	if p.InformedCount < 0 || p.InformedCount > p.Count {
		return ErrInvalid("investors.informed_count must be in [0,count]")
	}
	if p.InformedProb < 0 || p.InformedProb > 1 {
		return ErrInvalid("investors.informed_prob must be in [0,1]")
	}
	return nil
}

// ErrInvalid 用于参数验证错误。
type ErrInvalid string

func (e ErrInvalid) Error() string { return string(e) }
