package alert

import "fmt"

// 规则名，写入告警的 rule 字段。
const (
	RulePositionLimit  = "max_abs_position"
	RuleSolverFallback = "max_fallback_rate"
)

// RuleConfig 运行结束后评估的阈值，零值表示对应规则关闭。
type RuleConfig struct {
	MaxAbsPosition  float64 `yaml:"max_abs_position"`  // 末仓绝对值上限
	MaxFallbackRate float64 `yaml:"max_fallback_rate"` // 求解退化次数占比上限
}

// RunStats 单个做市商一次运行的告警输入。
// 求解计数与 MarketMaker.SolverStats 的返回类型一致。
type RunStats struct {
	MakerID       string
	FinalPosition float64
	SolverSolves  int64
	SolverFails   int64
}

// CheckRun 按规则评估一次运行并发送触发的告警，返回触发条数。
func CheckRun(m *Manager, cfg RuleConfig, stats []RunStats) int {
	fired := 0
	for _, s := range stats {
		if cfg.MaxAbsPosition > 0 && abs(s.FinalPosition) > cfg.MaxAbsPosition {
			fired++
			_ = m.SendAlert(Alert{
				Level:   LevelWarning,
				Rule:    RulePositionLimit,
				Message: fmt.Sprintf("maker %s position limit breached", s.MakerID),
				Fields: map[string]interface{}{
					"maker":    s.MakerID,
					"position": s.FinalPosition,
					"limit":    cfg.MaxAbsPosition,
				},
			})
		}
		if cfg.MaxFallbackRate > 0 && s.SolverSolves > 0 {
			rate := float64(s.SolverFails) / float64(s.SolverSolves)
			if rate > cfg.MaxFallbackRate {
				fired++
				_ = m.SendAlert(Alert{
					Level:   LevelError,
					Rule:    RuleSolverFallback,
					Message: fmt.Sprintf("maker %s hedge solver degraded", s.MakerID),
					Fields: map[string]interface{}{
						"maker":         s.MakerID,
						"fallback_rate": rate,
						"limit":         cfg.MaxFallbackRate,
					},
				})
			}
		}
	}
	return fired
}

func abs(x float64) float64 {
	if x < 0 {
		return -x
	}
	return x
}
