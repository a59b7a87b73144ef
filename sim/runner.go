package sim

import (
	"fmt"

	"go.uber.org/zap"

	"dealer-market-go/config"
	"dealer-market-go/internal/store"
	"dealer-market-go/posttrade"
)

// Result 一次完整运行的产出。
type Result struct {
	Scenario config.Scenario
	Seed     int64
	Store    *store.Store
	Summary  posttrade.Summary
}

// Runner 把场景装配结果跑满配置的步数并汇总。
type Runner struct {
	assembly *Assembly
}

// NewRunner 包装一套已装配的组件。
func NewRunner(a *Assembly) *Runner {
	return &Runner{assembly: a}
}

// Run 执行全部步并生成事后分析摘要。
func (r *Runner) Run() (Result, error) {
	a := r.assembly
	steps := a.Scenario.Steps
	a.Logger.Info("run started",
		zap.String("scenario", a.Scenario.Name),
		zap.Int64("seed", a.Seed),
		zap.Int("steps", steps),
		zap.Int("makers", len(a.Makers)),
		zap.Int("investors", len(a.Investors)))

	if err := a.Engine.Run(steps); err != nil {
		return Result{}, fmt.Errorf("run %q: %w", a.Scenario.Name, err)
	}
	a.Engine.Finish()

	summary := posttrade.Analyze(a.Store)
	a.Logger.Info("run finished",
		zap.String("scenario", a.Scenario.Name),
		zap.Int("steps", a.Engine.CurrentStep()))
	return Result{
		Scenario: a.Scenario,
		Seed:     a.Seed,
		Store:    a.Store,
		Summary:  summary,
	}, nil
}

// RunScenario 装配并运行一个场景，实验入口共用。
func RunScenario(cfg config.Scenario, opts Options) (Result, error) {
	a, err := Build(cfg, opts)
	if err != nil {
		return Result{}, err
	}
	return NewRunner(a).Run()
}
