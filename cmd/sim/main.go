package main

import (
	"encoding/csv"
	"flag"
	"fmt"
	"os"
	"strconv"

	"dealer-market-go/config"
	"dealer-market-go/infrastructure/logger"
	"dealer-market-go/posttrade"
	"dealer-market-go/sim"
)

// 运行一个场景并输出奖励分解：终端摘要 + 可选 CSV。
func main() {
	cfgPath := flag.String("config", "", "场景文件路径，留空使用默认场景")
	seed := flag.Int64("seed", 0, "随机种子，非零时覆盖场景配置")
	steps := flag.Int("steps", 0, "步数，非零时覆盖场景配置")
	rewardsOut := flag.String("rewardsOut", "", "奖励序列 CSV 输出路径，留空不输出")
	logLevel := flag.String("logLevel", "warn", "日志级别")
	flag.Parse()

	cfg := config.DefaultScenario()
	if *cfgPath != "" {
		var err error
		cfg, err = config.LoadWithEnvOverrides(*cfgPath)
		if err != nil {
			fmt.Fprintf(os.Stderr, "加载场景失败: %v\n", err)
			os.Exit(1)
		}
	}
	if *seed != 0 {
		cfg.Seed = *seed
	}
	if *steps != 0 {
		cfg.Steps = *steps
	}
	cfg.Logging.Level = *logLevel

	log, err := logger.New(cfg.Logging)
	if err != nil {
		fmt.Fprintf(os.Stderr, "初始化日志失败: %v\n", err)
		os.Exit(1)
	}
	defer log.Close()

	res, err := sim.RunScenario(cfg, sim.Options{Logger: log})
	if err != nil {
		fmt.Fprintf(os.Stderr, "运行失败: %v\n", err)
		os.Exit(1)
	}

	printSummary(res)

	if *rewardsOut != "" {
		if err := writeRewardsCSV(*rewardsOut, res); err != nil {
			fmt.Fprintf(os.Stderr, "写出 CSV 失败: %v\n", err)
			os.Exit(1)
		}
		fmt.Printf("奖励序列已写出: %s\n", *rewardsOut)
	}
}

func printSummary(res sim.Result) {
	fmt.Printf("场景: %s  种子: %d  步数: %d\n", res.Scenario.Name, res.Seed, res.Summary.Steps)
	for _, m := range res.Summary.Makers {
		fmt.Printf("  %s: 总奖励=%.4f 价差=%.4f 仓位=%.4f 对冲成本=%.4f 风险成本=%.4f 末仓=%.2f 成交=%d 对冲=%d\n",
			m.MakerID, m.TotalReward, m.SpreadRevenue, m.PositionRevenue,
			m.HedgeCost, m.RiskCost, m.FinalPosition, m.InvestorTrades, m.HedgeTrades)
	}
	for _, f := range res.Summary.Investors {
		fmt.Printf("  %s: 成交=%d 总量=%.2f\n", f.InvestorID, f.Trades, f.AbsVolume)
	}
	for _, m := range res.Summary.Makers {
		fmt.Printf("  %s: 内部化比率=%.4f\n", m.MakerID, posttrade.InternalizationRatio(res.Store, m.MakerID))
	}
}

func writeRewardsCSV(path string, res sim.Result) error {
	f, err := os.Create(path)
	if err != nil {
		return err
	}
	defer f.Close()

	w := csv.NewWriter(f)
	defer w.Flush()

	if err := w.Write([]string{"step", "maker", "spread_revenue", "position_revenue", "hedge_cost", "risk_cost", "total"}); err != nil {
		return err
	}
	for _, m := range res.Summary.Makers {
		for _, e := range res.Store.Rewards(m.MakerID) {
			row := []string{
				strconv.Itoa(e.Step),
				e.MakerID,
				formatFloat(e.SpreadRevenue),
				formatFloat(e.PositionRevenue),
				formatFloat(e.HedgeCost),
				formatFloat(e.RiskCost),
				formatFloat(e.Total),
			}
			if err := w.Write(row); err != nil {
				return err
			}
		}
	}
	return w.Error()
}

func formatFloat(v float64) string {
	return strconv.FormatFloat(v, 'g', -1, 64)
}
